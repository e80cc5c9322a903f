// Package lidar defines the readings produced by spinning range sensors and the helpers to
// decode and project them.
package lidar

import (
	"github.com/pkg/errors"
)

// RecordSize is the size in bytes of a single scan record on the wire.
const RecordSize = 5

// A Hit is one decoded range sample.
type Hit struct {
	// Error marks a record with bad framing bits or an out of range angle.
	Error          bool  `json:"error"`
	IsNewScanStart bool  `json:"new_scan"`
	Quality        uint8 `json:"quality"`
	// AngleDegrees is clockwise from the front of the sensor, in [0, 360) for valid hits.
	AngleDegrees int `json:"angle_deg"`
	// DistanceMillimeters of 0 means no return.
	DistanceMillimeters int `json:"distance_mm"`
}

// Valid reports whether the hit is clean and has a return.
func (h Hit) Valid() bool {
	return !h.Error && h.DistanceMillimeters > 0
}

// FormatData decodes a scan record.
//
// byte 0: bit0 new scan flag, bit1 its inverse, bits 2-7 quality.
// bytes 1-2: bit0 of byte 1 is a check bit, the remaining 15 bits are the angle in 1/64 degree.
// bytes 3-4: little endian distance in 1/4 mm.
//
// A record is errored unless exactly one of the two flag bits is set.
func FormatData(record []byte) (Hit, error) {
	if len(record) != RecordSize {
		return Hit{Error: true}, errors.Errorf("lidar record must be %d bytes, got %d", RecordSize, len(record))
	}
	b0, b1, b2, b3, b4 := record[0], record[1], record[2], record[3], record[4]

	isNewScanStart := b0&0x01 == 0x01
	notNewScan := b0&0x02 == 0x02

	hit := Hit{
		Error:          !(isNewScanStart != notNewScan),
		IsNewScanStart: isNewScanStart,
		Quality:        b0 >> 2,
	}

	b1 &^= 0x01
	hit.AngleDegrees = ((int(b2) << 7) + int(b1>>1)) / 64
	hit.DistanceMillimeters = ((int(b4) << 8) + int(b3)) / 4

	if hit.AngleDegrees < 0 || hit.AngleDegrees >= 360 {
		hit.Error = true
	}
	return hit, nil
}
