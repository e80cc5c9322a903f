package lidar

import (
	"time"

	"github.com/golang/geo/r2"
)

// A Scan is the set of clean hits collected during one rotation, in arrival order.
type Scan struct {
	Hits      []Hit     `json:"hits"`
	Timestamp time.Time `json:"timestamp"`
}

// Closest returns the nearest hit with a return.
func (s Scan) Closest() (Hit, bool) {
	var best Hit
	found := false
	for _, h := range s.Hits {
		if !h.Valid() {
			continue
		}
		if !found || h.DistanceMillimeters < best.DistanceMillimeters {
			best = h
			found = true
		}
	}
	return best, found
}

// Points returns the cartesian projection of every hit with a return.
func (s Scan) Points() []r2.Point {
	points := make([]r2.Point, 0, len(s.Hits))
	for _, h := range s.Hits {
		if h.Valid() {
			points = append(points, h.Point())
		}
	}
	return points
}

// InSector returns the hits with a return whose angle lies in [from, to) degrees. The sector may
// wrap through 0, e.g. from 330 to 30.
func (s Scan) InSector(from, to int) []Hit {
	var out []Hit
	for _, h := range s.Hits {
		if !h.Valid() {
			continue
		}
		a := h.AngleDegrees
		if from <= to {
			if a >= from && a < to {
				out = append(out, h)
			}
		} else if a >= from || a < to {
			out = append(out, h)
		}
	}
	return out
}
