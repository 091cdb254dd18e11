package solver

import (
	"math"
	"sort"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/geofix-app/geofix/internal/camera"
)

// bearingRays builds the unit camera-frame rays a camera at the given pose
// would observe for three world points.
func bearingRays(pose camera.Pose, world [3]r3.Vector) [3]r3.Vector {
	var rays [3]r3.Vector
	for i, w := range world {
		rays[i] = pose.R.Apply(w.Sub(pose.Center)).Normalize()
	}
	return rays
}

func maxRotationDiff(a, b camera.Rotation) float64 {
	var m float64
	for i := range a {
		if d := math.Abs(a[i] - b[i]); d > m {
			m = d
		}
	}
	return m
}

func TestP3PRecoversKnownPose(t *testing.T) {
	tests := []struct {
		name  string
		pose  camera.Pose
		world [3]r3.Vector
	}{
		{
			name: "looking north",
			pose: camera.NewPose(r3.Vector{X: 3, Y: -40, Z: 6}, 0.35, -0.10, 0.02),
			world: [3]r3.Vector{
				{X: -15, Y: 20, Z: 2}, {X: 18, Y: 35, Z: -4}, {X: 5, Y: 60, Z: 10},
			},
		},
		{
			name: "elevated looking down",
			pose: camera.NewPose(r3.Vector{X: -20, Y: -55, Z: 140}, -0.6, -0.9, -0.04),
			world: [3]r3.Vector{
				{X: -30, Y: 10, Z: 0}, {X: 12, Y: -25, Z: 5}, {X: 8, Y: 30, Z: -2},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rays := bearingRays(tt.pose, tt.world)
			candidates := p3pCandidates(tt.world, rays)
			if len(candidates) == 0 {
				t.Fatal("no candidates returned for a valid configuration")
			}
			bestCenter := math.Inf(1)
			bestRot := math.Inf(1)
			for _, c := range candidates {
				if d := c.Center.Sub(tt.pose.Center).Norm(); d < bestCenter {
					bestCenter = d
					bestRot = maxRotationDiff(c.R, tt.pose.R)
				}
			}
			if bestCenter > 1e-6 {
				t.Errorf("closest candidate center is %g m from truth", bestCenter)
			}
			if bestRot > 1e-6 {
				t.Errorf("closest candidate rotation differs by %g", bestRot)
			}
		})
	}
}

func TestP3PCoincidentRaysRejected(t *testing.T) {
	pose := camera.NewPose(r3.Vector{X: 0, Y: -30, Z: 2}, 0, 0, 0)
	world := [3]r3.Vector{
		{X: -10, Y: 20, Z: 0}, {X: 10, Y: 25, Z: 3}, {X: 0, Y: 40, Z: -2},
	}
	rays := bearingRays(pose, world)
	rays[1] = rays[0]
	if got := p3pCandidates(world, rays); len(got) != 0 {
		t.Errorf("coincident rays produced %d candidates, want 0", len(got))
	}
}

func TestAbsoluteOrientation(t *testing.T) {
	truth := camera.NewPose(r3.Vector{X: 7, Y: -3, Z: 11}, 1.1, 0.4, -0.2)
	world := []r3.Vector{
		{X: 0, Y: 0, Z: 0}, {X: 10, Y: 2, Z: -1},
		{X: -4, Y: 8, Z: 5}, {X: 3, Y: -6, Z: 9},
	}
	cam := make([]r3.Vector, len(world))
	for i, w := range world {
		cam[i] = truth.R.Apply(w.Sub(truth.Center))
	}

	rot, center, ok := absoluteOrientation(world, cam)
	if !ok {
		t.Fatal("absoluteOrientation failed on clean input")
	}
	if d := center.Sub(truth.Center).Norm(); d > 1e-9 {
		t.Errorf("center off by %g m", d)
	}
	if d := maxRotationDiff(rot, truth.R); d > 1e-9 {
		t.Errorf("rotation off by %g", d)
	}
}

func TestRealPolynomialRoots(t *testing.T) {
	tests := []struct {
		name   string
		coeffs []float64
		want   []float64
	}{
		{"quadratic", []float64{2, -3, 1}, []float64{1, 2}},
		{"cubic one real root", []float64{0, 1, 0, 1}, []float64{0}},
		{"quartic", []float64{4, 0, -5, 0, 1}, []float64{-2, -1, 1, 2}},
		{"vanishing leading terms", []float64{6, -5, 1, 0, 0}, []float64{2, 3}},
		{"double root", []float64{1, -2, 1}, []float64{1, 1}},
		{"linear", []float64{-4, 2}, []float64{2}},
		{"constant", []float64{5}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := realPolynomialRoots(tt.coeffs)
			sort.Float64s(got)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d roots %v, want %d %v", len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if math.Abs(got[i]-tt.want[i]) > 1e-6 {
					t.Errorf("root %d = %g, want %g", i, got[i], tt.want[i])
				}
			}
		})
	}
}
