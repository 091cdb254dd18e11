// Package camera models a pinhole camera with Brown-Conrady lens distortion
// in a local East-North-Up world frame.
//
// Conventions: the world frame is right-handed ENU (+X east, +Y north,
// +Z up); the camera frame is the usual computer-vision one (+X image
// right, +Y image down, +Z forward along the view). A world point W seen by
// a camera with center C and world-to-camera rotation R projects through
//
//	Xc     = R * (W - C)
//	(x, y) = (Xc.X/Xc.Z, Xc.Y/Xc.Z)          normalized coordinates
//	(u, v) = (cx + f*distort(x,y).x, cy + f*distort(x,y).y)
//
// Points with camera-frame depth Xc.Z at or below MinDepthMeters are behind
// the camera (or on its plane) and have no defined projection.
package camera

import (
	"math"

	"github.com/golang/geo/r3"
)

// MinDepthMeters is the smallest camera-frame depth treated as in front of
// the camera.
const MinDepthMeters = 1e-6

// Newton-Raphson bounds for Undistort.
const (
	undistortMaxIterations = 20
	undistortTolerance     = 1e-10
)

// Intrinsics holds pinhole and Brown-Conrady distortion parameters. A single
// focal length is used for both axes (square pixels). Zero distortion
// coefficients disable their terms, so the zero-coefficient Intrinsics is a
// pure pinhole model.
type Intrinsics struct {
	FocalPx float64 // focal length in pixels
	Cx, Cy  float64 // principal point in pixels
	K1, K2  float64 // radial distortion coefficients
	P1, P2  float64 // tangential distortion coefficients
}

// HasDistortion reports whether any distortion coefficient is nonzero.
func (in Intrinsics) HasDistortion() bool {
	return in.K1 != 0 || in.K2 != 0 || in.P1 != 0 || in.P2 != 0
}

// Distort applies the forward Brown-Conrady model to normalized image
// coordinates:
//
//	xd = x*(1 + k1*r² + k2*r⁴) + 2*p1*x*y + p2*(r² + 2*x²)
//	yd = y*(1 + k1*r² + k2*r⁴) + p1*(r² + 2*y²) + 2*p2*x*y
func (in Intrinsics) Distort(x, y float64) (xd, yd float64) {
	if !in.HasDistortion() {
		return x, y
	}
	r2 := x*x + y*y
	radial := 1.0 + in.K1*r2 + in.K2*r2*r2
	xd = x*radial + 2.0*in.P1*x*y + in.P2*(r2+2.0*x*x)
	yd = y*radial + in.P1*(r2+2.0*y*y) + 2.0*in.P2*x*y
	return xd, yd
}

// Undistort inverts Distort by Newton-Raphson on the forward model, starting
// from the distorted point. For physically plausible coefficients the
// iteration reaches undistortTolerance well inside the iteration cap; if the
// 2x2 Jacobian degenerates the current estimate is returned as-is.
func (in Intrinsics) Undistort(xd, yd float64) (x, y float64) {
	if !in.HasDistortion() {
		return xd, yd
	}

	x, y = xd, yd
	for i := 0; i < undistortMaxIterations; i++ {
		r2 := x*x + y*y
		radial := 1.0 + in.K1*r2 + in.K2*r2*r2

		xdEst := x*radial + 2.0*in.P1*x*y + in.P2*(r2+2.0*x*x)
		ydEst := y*radial + in.P1*(r2+2.0*y*y) + 2.0*in.P2*x*y

		errX := xdEst - xd
		errY := ydEst - yd
		if errX*errX+errY*errY < undistortTolerance*undistortTolerance {
			break
		}

		// Jacobian of the forward model at the current estimate.
		dRadial := 2.0 * (in.K1 + 2.0*in.K2*r2)
		j00 := radial + x*x*dRadial + 2.0*in.P1*y + 6.0*in.P2*x
		j01 := x*y*dRadial + 2.0*in.P1*x + 2.0*in.P2*y
		j10 := x*y*dRadial + 2.0*in.P2*y + 2.0*in.P1*x
		j11 := radial + y*y*dRadial + 2.0*in.P2*x + 6.0*in.P1*y

		det := j00*j11 - j01*j10
		if det == 0 {
			break
		}
		x -= (j11*errX - j01*errY) / det
		y -= (-j10*errX + j00*errY) / det
	}
	return x, y
}

// Project maps a world point (ENU meters) to pixel coordinates through the
// given pose and intrinsics. ok is false when the point is behind the camera
// or on its plane, in which case u, v are meaningless.
func Project(pose Pose, intr Intrinsics, world r3.Vector) (u, v float64, ok bool) {
	pc := pose.R.Apply(world.Sub(pose.Center))
	if pc.Z < MinDepthMeters {
		return 0, 0, false
	}
	xd, yd := intr.Distort(pc.X/pc.Z, pc.Y/pc.Z)
	return intr.Cx + intr.FocalPx*xd, intr.Cy + intr.FocalPx*yd, true
}

// Ray returns the unit bearing vector in the camera frame whose projection
// is the given pixel, with distortion removed. Used by minimal solvers that
// work on ideal pinhole directions.
func Ray(intr Intrinsics, u, v float64) r3.Vector {
	x := (u - intr.Cx) / intr.FocalPx
	y := (v - intr.Cy) / intr.FocalPx
	x, y = intr.Undistort(x, y)
	n := math.Sqrt(x*x + y*y + 1)
	return r3.Vector{X: x / n, Y: y / n, Z: 1 / n}
}
