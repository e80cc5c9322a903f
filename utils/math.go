package utils

import (
	"math"
)

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// ModAngDeg returns the angle wrapped into [0, 360).
func ModAngDeg(ang float64) float64 {
	return math.Mod(math.Mod(ang, 360)+360, 360)
}

// RayToUpwardCWCartesian returns coordinates based off of a coordinate system where the center
// is x,y=0,0 and zero degrees is pointing up. This is helpful for visualizing
// measurement devices that scan clockwise.
// ray is in degrees
// 0°   -  (0,increasing) // Up
// 90°  -  (increasing, 0) // Right
// 180° -  (0, decreasing) // Down
// 270° -  (decreasing,0) // Left
func RayToUpwardCWCartesian(angle, distance float64) (float64, float64) {
	angleRad := DegToRad(angle)
	x := distance * math.Sin(angleRad)
	y := distance * math.Cos(angleRad)
	return x, y
}

// ClampInt restricts n to [lo, hi].
func ClampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// AbsInt returns the absolute value of n.
func AbsInt(n int) int {
	if n < 0 {
		return -1 * n
	}
	return n
}
