package serial

import (
	"sort"
	"strconv"
	"strings"

	"go.bug.st/serial/enumerator"
)

// DeviceKind is what is probably attached to a port, judging by its USB bridge.
type DeviceKind string

// Known device kinds.
const (
	DeviceUnknown DeviceKind = ""
	DeviceLidar   DeviceKind = "rplidar"
	DeviceCreate  DeviceKind = "create"
)

// USBIdentifier is a USB vendor and product pair.
type USBIdentifier struct {
	Vendor  int
	Product int
}

// KnownUSBDevices maps the bridges shipped with each device to its kind. The lidar uses a
// CP2102, the Create cable an FTDI FT231X.
var KnownUSBDevices = map[USBIdentifier]DeviceKind{
	{Vendor: 0x10c4, Product: 0xea60}: DeviceLidar,
	{Vendor: 0x0403, Product: 0x6015}: DeviceCreate,
}

// DeviceDescription describes a serial port found on the system.
type DeviceDescription struct {
	Path         string         `json:"path"`
	Kind         DeviceKind     `json:"kind,omitempty"`
	USB          *USBIdentifier `json:"usb,omitempty"`
	SerialNumber string         `json:"serial_number,omitempty"`
}

var detailedPortsList = enumerator.GetDetailedPortsList

// Search returns the serial ports present on the system, sorted by path.
func Search() ([]DeviceDescription, error) {
	ports, err := detailedPortsList()
	if err != nil {
		return nil, err
	}
	results := make([]DeviceDescription, 0, len(ports))
	for _, p := range ports {
		desc := DeviceDescription{Path: p.Name}
		if p.IsUSB {
			desc.SerialNumber = p.SerialNumber
			if id, ok := parseUSBIdentifier(p.VID, p.PID); ok {
				desc.USB = &id
				desc.Kind = KnownUSBDevices[id]
			}
		}
		results = append(results, desc)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	return results, nil
}

// SearchKind returns the paths of ports that look like the given kind of device.
func SearchKind(kind DeviceKind) ([]string, error) {
	devices, err := Search()
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, d := range devices {
		if d.Kind == kind {
			paths = append(paths, d.Path)
		}
	}
	return paths, nil
}

func parseUSBIdentifier(vid, pid string) (USBIdentifier, bool) {
	vendor, err := strconv.ParseInt(strings.TrimPrefix(strings.ToLower(vid), "0x"), 16, 32)
	if err != nil {
		return USBIdentifier{}, false
	}
	product, err := strconv.ParseInt(strings.TrimPrefix(strings.ToLower(pid), "0x"), 16, 32)
	if err != nil {
		return USBIdentifier{}, false
	}
	return USBIdentifier{Vendor: int(vendor), Product: int(product)}, true
}
