package rplidar

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

const (
	syncByte         byte = 0xA5
	syncByte2        byte = 0x5A
	scanByte         byte = 0x20
	stopByte         byte = 0x25
	resetByte        byte = 0x40
	getInfoByte      byte = 0x50
	getHealthByte    byte = 0x52
	descriptorLength      = 7
	infoLength            = 20
	healthLength          = 3
)

var healthStatus = map[byte]string{
	0: "Good",
	1: "Warning",
	2: "Error",
}

func command(cmd byte) []byte {
	return []byte{syncByte, cmd}
}

// checkDescriptor validates a response descriptor.
func checkDescriptor(descriptor []byte) error {
	if len(descriptor) != descriptorLength {
		return errors.Errorf("expected %d byte descriptor, got %d", descriptorLength, len(descriptor))
	}
	if descriptor[0] != syncByte || descriptor[1] != syncByte2 {
		return errors.Errorf("descriptor must start with %#x %#x, got % x", syncByte, syncByte2, descriptor)
	}
	return nil
}

// Info is the device information reported by the lidar.
type Info struct {
	Model            byte
	FirmwareMajor    byte
	FirmwareMinor    byte
	HardwareRevision byte
	SerialNumber     [16]byte
}

// FirmwareVersion returns the firmware version as "major.minor".
func (i Info) FirmwareVersion() string {
	return fmt.Sprintf("%d.%02d", i.FirmwareMajor, i.FirmwareMinor)
}

// SerialNumberString returns the serial number as hex.
func (i Info) SerialNumberString() string {
	return fmt.Sprintf("%X", i.SerialNumber[:])
}

func parseInfo(data []byte) (Info, error) {
	if len(data) != infoLength {
		return Info{}, errors.Errorf("expected %d byte info response, got %d", infoLength, len(data))
	}
	info := Info{
		Model:            data[0],
		FirmwareMinor:    data[1],
		FirmwareMajor:    data[2],
		HardwareRevision: data[3],
	}
	copy(info.SerialNumber[:], data[4:])
	return info, nil
}

// Health is the self check status reported by the lidar.
type Health struct {
	Status    string
	ErrorCode uint16
}

func parseHealth(data []byte) (Health, error) {
	if len(data) != healthLength {
		return Health{}, errors.Errorf("expected %d byte health response, got %d", healthLength, len(data))
	}
	status, ok := healthStatus[data[0]]
	if !ok {
		status = "Unknown"
	}
	return Health{Status: status, ErrorCode: binary.LittleEndian.Uint16(data[1:])}, nil
}
