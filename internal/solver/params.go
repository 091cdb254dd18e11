package solver

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/geofix-app/geofix/internal/camera"
)

// paramLayout fixes the parameter-vector order for one solve: camera
// position east/north/up in meters, orientation yaw/pitch/roll in radians,
// then the estimated intrinsics in the order focalPx, cx, cy, k1, k2, p1,
// p2. Refinement, covariance and bootstrap all index parameters through one
// layout so they cannot disagree on ordering.
type paramLayout struct {
	model SolverModel
	dim   int

	// Index of each optional parameter, or -1 when the model holds it fixed.
	focal, cx, cy, k1, k2, p1, p2 int
}

// Parameter indices of the always-present pose block.
const (
	idxPosE = iota
	idxPosN
	idxPosU
	idxYaw
	idxPitch
	idxRoll
	poseDim
)

func newParamLayout(model SolverModel) paramLayout {
	l := paramLayout{
		model: model,
		dim:   poseDim,
		focal: -1, cx: -1, cy: -1, k1: -1, k2: -1, p1: -1, p2: -1,
	}
	next := func() int { i := l.dim; l.dim++; return i }
	if model.EstimateFocal {
		l.focal = next()
	}
	if model.EstimatePrincipalPoint {
		l.cx = next()
		l.cy = next()
	}
	if model.EstimateDistortion {
		l.k1 = next()
		l.k2 = next()
		if model.EstimateTangential {
			l.p1 = next()
			l.p2 = next()
		}
	}
	return l
}

// Dim is the parameter-vector length.
func (l paramLayout) Dim() int { return l.dim }

// Labels names each parameter in wire units: meters for position, degrees
// for orientation, pixels for focal/principal point.
func (l paramLayout) Labels() []string {
	labels := make([]string, 0, l.dim)
	labels = append(labels, "posE", "posN", "posU", "yawDeg", "pitchDeg", "rollDeg")
	if l.focal >= 0 {
		labels = append(labels, "focalPx")
	}
	if l.cx >= 0 {
		labels = append(labels, "cx", "cy")
	}
	if l.k1 >= 0 {
		labels = append(labels, "k1", "k2")
	}
	if l.p1 >= 0 {
		labels = append(labels, "p1", "p2")
	}
	return labels
}

// WireScale is the factor converting parameter i from its internal unit to
// its reported unit: orientation runs in radians internally but degrees on
// the wire; everything else is 1:1.
func (l paramLayout) WireScale(i int) float64 {
	if i >= idxYaw && i <= idxRoll {
		return 180 / math.Pi
	}
	return 1
}

// Pack flattens a pose and intrinsics into a parameter vector.
func (l paramLayout) Pack(pose camera.Pose, intr camera.Intrinsics) []float64 {
	theta := make([]float64, l.dim)
	theta[idxPosE] = pose.Center.X
	theta[idxPosN] = pose.Center.Y
	theta[idxPosU] = pose.Center.Z
	theta[idxYaw], theta[idxPitch], theta[idxRoll] = pose.R.YawPitchRoll()
	if l.focal >= 0 {
		theta[l.focal] = intr.FocalPx
	}
	if l.cx >= 0 {
		theta[l.cx] = intr.Cx
		theta[l.cy] = intr.Cy
	}
	if l.k1 >= 0 {
		theta[l.k1] = intr.K1
		theta[l.k2] = intr.K2
	}
	if l.p1 >= 0 {
		theta[l.p1] = intr.P1
		theta[l.p2] = intr.P2
	}
	return theta
}

// Unpack rebuilds pose and intrinsics from a parameter vector. base
// supplies the fixed values of whatever the model does not estimate.
func (l paramLayout) Unpack(theta []float64, base camera.Intrinsics) (camera.Pose, camera.Intrinsics) {
	pose := camera.NewPose(
		r3.Vector{X: theta[idxPosE], Y: theta[idxPosN], Z: theta[idxPosU]},
		theta[idxYaw], theta[idxPitch], theta[idxRoll],
	)
	intr := base
	if l.focal >= 0 {
		intr.FocalPx = theta[l.focal]
	}
	if l.cx >= 0 {
		intr.Cx = theta[l.cx]
		intr.Cy = theta[l.cy]
	}
	if l.k1 >= 0 {
		intr.K1 = theta[l.k1]
		intr.K2 = theta[l.k2]
	}
	if l.p1 >= 0 {
		intr.P1 = theta[l.p1]
		intr.P2 = theta[l.p2]
	}
	return pose, intr
}
