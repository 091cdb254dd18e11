// Package geodesy converts between WGS84 geodetic coordinates and a local
// East-North-Up (ENU) tangent-plane frame.
//
// All solver math runs in ENU meters: absolute ECEF coordinates are on the
// order of 6.4e6 m, which wastes most of a float64's precision on the offset
// from the geocenter. Anchoring a local frame at the centroid of the input
// points keeps coordinates small (meters to tens of kilometers) and the
// normal equations well conditioned.
package geodesy

import (
	"math"

	"github.com/golang/geo/r3"
)

// WGS84 ellipsoid parameters.
const (
	// SemiMajorAxisMeters is the WGS84 equatorial radius (meters).
	SemiMajorAxisMeters = 6378137.0
	// Flattening is the WGS84 ellipsoid flattening.
	Flattening = 1.0 / 298.257223563
)

// heightConvergenceMeters bounds the fixed-point iteration in ECEFToLLA.
// The iteration contracts by ~e^2 per pass, so stopping at 1e-6 m leaves a
// sub-nanometer altitude residual and geodetic round-trips hold to 1e-6 m.
const heightConvergenceMeters = 1e-6

// LLA is a geodetic position: latitude and longitude in degrees, altitude in
// meters above the WGS84 ellipsoid.
type LLA struct {
	Lat float64
	Lon float64
	Alt float64
}

// LLAToECEF converts a geodetic position to Earth-Centered Earth-Fixed
// Cartesian coordinates (meters).
func LLAToECEF(p LLA) r3.Vector {
	lat := p.Lat * math.Pi / 180
	lon := p.Lon * math.Pi / 180
	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	sinLon := math.Sin(lon)
	cosLon := math.Cos(lon)
	e2 := Flattening * (2.0 - Flattening)
	// Prime vertical radius of curvature.
	v := SemiMajorAxisMeters / math.Sqrt(1.0-e2*sinLat*sinLat)

	return r3.Vector{
		X: (v + p.Alt) * cosLat * cosLon,
		Y: (v + p.Alt) * cosLat * sinLon,
		Z: (v*(1.0-e2) + p.Alt) * sinLat,
	}
}

// ECEFToLLA converts ECEF Cartesian coordinates (meters) to a geodetic
// position. Altitude is recovered by fixed-point iteration on the ellipsoid
// normal, which converges to sub-millimeter in a few passes for any point
// between the geocenter and satellite altitudes.
func ECEFToLLA(r r3.Vector) LLA {
	e2 := Flattening * (2.0 - Flattening)
	r2 := r.X*r.X + r.Y*r.Y
	v := SemiMajorAxisMeters

	z := r.Z
	zk := 0.0
	sinLat := 0.0
	for math.Abs(z-zk) >= heightConvergenceMeters {
		zk = z
		sinLat = z / math.Sqrt(r2+z*z)
		v = SemiMajorAxisMeters / math.Sqrt(1.0-e2*sinLat*sinLat)
		z = r.Z + v*e2*sinLat
	}

	var lat, lon float64
	if r2 > 1e-12 {
		lat = math.Atan(z / math.Sqrt(r2))
		lon = math.Atan2(r.Y, r.X)
	} else if r.Z > 0 {
		lat = math.Pi / 2
	} else {
		lat = -math.Pi / 2
	}

	return LLA{
		Lat: lat * 180 / math.Pi,
		Lon: lon * 180 / math.Pi,
		Alt: math.Sqrt(r2+z*z) - v,
	}
}

// Centroid returns the arithmetic mean of the given geodetic positions.
// Longitudes are averaged directly, which is fine for the intended scale
// (points within one photograph's footprint) but wrong across the antimeridian.
// Panics on an empty slice; callers validate input length first.
func Centroid(points []LLA) LLA {
	if len(points) == 0 {
		panic("geodesy: centroid of empty point list")
	}
	var c LLA
	for _, p := range points {
		c.Lat += p.Lat
		c.Lon += p.Lon
		c.Alt += p.Alt
	}
	n := float64(len(points))
	c.Lat /= n
	c.Lon /= n
	c.Alt /= n
	return c
}

// Frame is a local East-North-Up tangent-plane frame anchored at a geodetic
// origin. The zero value is not usable; construct with NewFrame.
type Frame struct {
	Origin LLA

	originECEF r3.Vector
	// Unit axes of the local frame expressed in ECEF. Rows of the
	// ECEF-to-ENU rotation matrix.
	east  r3.Vector
	north r3.Vector
	up    r3.Vector
}

// NewFrame builds a local ENU frame anchored at origin.
func NewFrame(origin LLA) Frame {
	lat := origin.Lat * math.Pi / 180
	lon := origin.Lon * math.Pi / 180
	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	sinLon := math.Sin(lon)
	cosLon := math.Cos(lon)

	return Frame{
		Origin:     origin,
		originECEF: LLAToECEF(origin),
		east:       r3.Vector{X: -sinLon, Y: cosLon, Z: 0},
		north:      r3.Vector{X: -sinLat * cosLon, Y: -sinLat * sinLon, Z: cosLat},
		up:         r3.Vector{X: cosLat * cosLon, Y: cosLat * sinLon, Z: sinLat},
	}
}

// NewFrameAtCentroid builds a local ENU frame anchored at the centroid of
// the given points. Panics on an empty slice.
func NewFrameAtCentroid(points []LLA) Frame {
	return NewFrame(Centroid(points))
}

// ToENU converts a geodetic position to East/North/Up offsets in meters from
// the frame origin.
func (f Frame) ToENU(p LLA) r3.Vector {
	d := LLAToECEF(p).Sub(f.originECEF)
	return r3.Vector{
		X: f.east.Dot(d),
		Y: f.north.Dot(d),
		Z: f.up.Dot(d),
	}
}

// ToLLA converts East/North/Up offsets in meters back to a geodetic position.
// Inverse of ToENU up to floating-point roundoff.
func (f Frame) ToLLA(enu r3.Vector) LLA {
	ecef := f.originECEF.
		Add(f.east.Mul(enu.X)).
		Add(f.north.Mul(enu.Y)).
		Add(f.up.Mul(enu.Z))
	return ECEFToLLA(ecef)
}

// ToENUAll converts a batch of geodetic positions. Convenience wrapper used
// when preparing correspondence sets.
func (f Frame) ToENUAll(points []LLA) []r3.Vector {
	out := make([]r3.Vector, len(points))
	for i, p := range points {
		out[i] = f.ToENU(p)
	}
	return out
}
