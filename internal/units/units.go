// Package units provides shared angle conversions and wrapping helpers.
package units

import "math"

// Conversion factors between degrees and radians.
const (
	DegPerRad = 180 / math.Pi
	RadPerDeg = math.Pi / 180
)

// Radians converts degrees to radians.
func Radians(deg float64) float64 { return deg * RadPerDeg }

// Degrees converts radians to degrees.
func Degrees(rad float64) float64 { return rad * DegPerRad }

// WrapDeg180 folds an angle in degrees into (-180, 180].
func WrapDeg180(deg float64) float64 {
	d := math.Mod(deg, 360)
	switch {
	case d <= -180:
		d += 360
	case d > 180:
		d -= 360
	}
	return d
}

// WrapDeg360 folds an angle in degrees into [0, 360).
func WrapDeg360(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// AngleDiffDeg returns the signed difference a-b folded into (-180, 180],
// so nearly equal headings on opposite sides of the +/-180 seam compare
// small instead of near 360.
func AngleDiffDeg(a, b float64) float64 {
	return WrapDeg180(a - b)
}
