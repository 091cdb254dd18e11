package camera

import (
	"math"

	"github.com/golang/geo/r3"
)

// Rotation is a 3x3 world-to-camera rotation matrix in row-major order.
// Rows are the camera's right, down and forward axes expressed as unit
// vectors in the ENU world frame, so for a world-frame vector d the
// camera-frame vector is R*d.
type Rotation [9]float64

// RotationValidationTolerance is the tolerance for checking that a matrix is
// a proper rotation (orthonormal rows, determinant +1).
const RotationValidationTolerance = 1e-6

// verticalForwardTolerance guards yaw/roll extraction: below this horizontal
// forward-vector norm the viewing direction is treated as vertical and the
// yaw/roll split is fixed by convention (roll = 0).
const verticalForwardTolerance = 1e-12

// RotationFromYawPitchRoll composes a world-to-camera rotation from the
// navigation-style angles used throughout this package, all in radians:
//
//   - yaw: azimuth of the viewing direction, measured clockwise from north
//     (0 = north, pi/2 = east);
//   - pitch: elevation of the viewing direction above the horizon
//     (positive = looking up);
//   - roll: rotation about the viewing axis, positive tips the camera's
//     right side toward the ground.
//
// The zero-angle camera looks due north, level, with east to its right.
func RotationFromYawPitchRoll(yaw, pitch, roll float64) Rotation {
	sinYaw, cosYaw := math.Sincos(yaw)
	sinPitch, cosPitch := math.Sincos(pitch)
	sinRoll, cosRoll := math.Sincos(roll)

	// Viewing direction and the zero-roll right/down axes. down0 is
	// forward x right0, so the triplet is orthonormal by construction.
	forward := r3.Vector{X: cosPitch * sinYaw, Y: cosPitch * cosYaw, Z: sinPitch}
	right0 := r3.Vector{X: cosYaw, Y: -sinYaw, Z: 0}
	down0 := r3.Vector{X: sinPitch * sinYaw, Y: sinPitch * cosYaw, Z: -cosPitch}

	right := right0.Mul(cosRoll).Add(down0.Mul(sinRoll))
	down := right0.Mul(-sinRoll).Add(down0.Mul(cosRoll))

	return Rotation{
		right.X, right.Y, right.Z,
		down.X, down.Y, down.Z,
		forward.X, forward.Y, forward.Z,
	}
}

// YawPitchRoll decomposes the rotation back into yaw/pitch/roll radians.
// Inverse of RotationFromYawPitchRoll for any proper rotation. When the
// viewing direction is vertical the yaw/roll split is ambiguous; this
// returns roll = 0 and folds the full twist into yaw.
func (r Rotation) YawPitchRoll() (yaw, pitch, roll float64) {
	forward := r.Forward()
	pitch = math.Asin(clampUnit(forward.Z))

	horizontal := math.Hypot(forward.X, forward.Y)
	if horizontal < verticalForwardTolerance {
		// Looking straight up or down: recover the twist from the
		// right axis, which stays horizontal at zero roll.
		right := r.Right()
		return math.Atan2(-right.Y, right.X), pitch, 0
	}

	yaw = math.Atan2(forward.X, forward.Y)

	sinYaw, cosYaw := math.Sincos(yaw)
	right0 := r3.Vector{X: cosYaw, Y: -sinYaw, Z: 0}
	down0 := forward.Cross(right0)
	right := r.Right()
	roll = math.Atan2(right.Dot(down0), right.Dot(right0))
	return yaw, pitch, roll
}

// Right returns the camera's +X (image right) axis in world coordinates.
func (r Rotation) Right() r3.Vector {
	return r3.Vector{X: r[0], Y: r[1], Z: r[2]}
}

// Down returns the camera's +Y (image down) axis in world coordinates.
func (r Rotation) Down() r3.Vector {
	return r3.Vector{X: r[3], Y: r[4], Z: r[5]}
}

// Forward returns the camera's +Z (viewing) axis in world coordinates.
func (r Rotation) Forward() r3.Vector {
	return r3.Vector{X: r[6], Y: r[7], Z: r[8]}
}

// Apply rotates a world-frame vector into the camera frame.
func (r Rotation) Apply(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: r[0]*v.X + r[1]*v.Y + r[2]*v.Z,
		Y: r[3]*v.X + r[4]*v.Y + r[5]*v.Z,
		Z: r[6]*v.X + r[7]*v.Y + r[8]*v.Z,
	}
}

// ApplyTranspose rotates a camera-frame vector back into the world frame.
func (r Rotation) ApplyTranspose(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: r[0]*v.X + r[3]*v.Y + r[6]*v.Z,
		Y: r[1]*v.X + r[4]*v.Y + r[7]*v.Z,
		Z: r[2]*v.X + r[5]*v.Y + r[8]*v.Z,
	}
}

// Det returns the matrix determinant. A proper rotation has Det() == +1.
func (r Rotation) Det() float64 {
	return r[0]*(r[4]*r[8]-r[5]*r[7]) -
		r[1]*(r[3]*r[8]-r[5]*r[6]) +
		r[2]*(r[3]*r[7]-r[4]*r[6])
}

// IsValid reports whether the matrix is a proper rotation: unit-norm
// orthogonal rows and determinant +1, all within tol.
func (r Rotation) IsValid(tol float64) bool {
	for i := range r {
		if math.IsNaN(r[i]) || math.IsInf(r[i], 0) {
			return false
		}
	}
	rows := [3]r3.Vector{r.Right(), r.Down(), r.Forward()}
	for i := 0; i < 3; i++ {
		if math.Abs(rows[i].Norm()-1) > tol {
			return false
		}
		for j := i + 1; j < 3; j++ {
			if math.Abs(rows[i].Dot(rows[j])) > tol {
				return false
			}
		}
	}
	return math.Abs(r.Det()-1) <= tol
}

// Pose is a camera placement in the local ENU frame: the camera center in
// meters plus the world-to-camera rotation.
type Pose struct {
	Center r3.Vector
	R      Rotation
}

// NewPose builds a Pose from an ENU center and yaw/pitch/roll radians.
func NewPose(center r3.Vector, yaw, pitch, roll float64) Pose {
	return Pose{Center: center, R: RotationFromYawPitchRoll(yaw, pitch, roll)}
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
