package lidar

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/navbot/navbot/utils"
)

// ConvertToCartesian projects a reading onto the sensor plane: y points to the front of the
// sensor and angles grow clockwise, so 90 degrees is +x.
func ConvertToCartesian(angleDegrees, distance float64) r2.Point {
	x, y := utils.RayToUpwardCWCartesian(angleDegrees, distance)
	return r2.Point{X: x, Y: y}
}

// ConvertToPolar is the inverse of ConvertToCartesian. The angle is in [0, 360).
func ConvertToPolar(p r2.Point) (angleDegrees, distance float64) {
	angleDegrees = utils.ModAngDeg(utils.RadToDeg(math.Atan2(p.X, p.Y)))
	return angleDegrees, p.Norm()
}

// Point returns the hit in sensor cartesian coordinates, millimeters.
func (h Hit) Point() r2.Point {
	return ConvertToCartesian(float64(h.AngleDegrees), float64(h.DistanceMillimeters))
}
