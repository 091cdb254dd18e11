package solver

import (
	"fmt"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geofix-app/geofix/internal/camera"
	"github.com/geofix-app/geofix/internal/geodesy"
)

func fillSlice(n int, v float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// refineScene builds a fixed-focal problem with exact pixel observations
// around a known camera.
func refineScene(t *testing.T) (*problem, camera.Pose) {
	t.Helper()
	truth := camera.NewPose(r3.Vector{X: 2, Y: -80, Z: 5}, 0.2, -0.05, 0.015)
	intr := camera.Intrinsics{FocalPx: 1000, Cx: 500, Cy: 375}
	world := []r3.Vector{
		{X: -30, Y: 10, Z: 0}, {X: 25, Y: 5, Z: 6},
		{X: -12, Y: 35, Z: 14}, {X: 18, Y: 50, Z: -4},
		{X: 35, Y: 25, Z: 10}, {X: -28, Y: 45, Z: -8},
		{X: 6, Y: -2, Z: 2}, {X: 0, Y: 70, Z: 20},
		{X: -8, Y: 18, Z: 7}, {X: 14, Y: 28, Z: 1},
	}
	ids := make([]string, len(world))
	for i := range ids {
		ids[i] = fmt.Sprintf("p%d", i)
	}
	prob := &problem{
		world:   world,
		pixels:  projectAll(t, truth, intr, world),
		sigmaPx: fillSlice(len(world), 1),
		sigmaM:  fillSlice(len(world), 0.01),
		ids:     ids,
		base:    intr,
		model:   SolverModel{},
		frame:   geodesy.NewFrame(geodesy.LLA{Lat: 47.6, Lon: -122.3, Alt: 20}),
	}
	return prob, truth
}

func allIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func TestRefineRecoversFromPerturbedStart(t *testing.T) {
	prob, truth := refineScene(t)
	layout := newParamLayout(prob.model)
	yaw, pitch, roll := truth.R.YawPitchRoll()
	init := hypothesis{
		pose: camera.NewPose(
			truth.Center.Add(r3.Vector{X: 0.5, Y: -0.3, Z: 0.4}),
			yaw+0.005, pitch-0.004, roll+0.002,
		),
		intr: prob.base,
	}

	res := refinePose(prob, layout, allIndices(len(prob.world)), init, nil)

	require.True(t, res.converged, "refinement did not converge on clean data")
	assert.Less(t, res.pose.Center.Sub(truth.Center).Norm(), 1e-6)
	assert.Less(t, maxRotationDiff(res.pose.R, truth.R), 1e-7)
}

func TestRefineHuberResistsOutlier(t *testing.T) {
	prob, truth := refineScene(t)
	prob.pixels[3][0] += 40 // gross outlier left inside the refinement set

	layout := newParamLayout(prob.model)
	yaw, pitch, roll := truth.R.YawPitchRoll()
	init := hypothesis{
		pose: camera.NewPose(truth.Center.Add(r3.Vector{X: 0.2, Y: 0.1, Z: -0.1}), yaw, pitch, roll),
		intr: prob.base,
	}
	inliers := allIndices(len(prob.world))

	huber := refinePose(prob, layout, inliers, init, &RefineConfig{RobustLoss: RobustLossHuber})
	plain := refinePose(prob, layout, inliers, init, &RefineConfig{RobustLoss: RobustLossNone})

	huberErr := huber.pose.Center.Sub(truth.Center).Norm()
	plainErr := plain.pose.Center.Sub(truth.Center).Norm()
	assert.Less(t, huberErr, 0.5, "huber estimate should stay near truth")
	assert.Less(t, huberErr, plainErr, "huber should beat unweighted least squares under an outlier")
}

func TestRefineAltitudePriorPulls(t *testing.T) {
	prob, truth := refineScene(t)
	truthAlt := prob.frame.ToLLA(truth.Center).Alt
	prob.priors = &Priors{CameraAlt: &Prior{Mean: truthAlt + 5, Sigma: 0.1}}

	layout := newParamLayout(prob.model)
	init := hypothesis{pose: truth, intr: prob.base}
	res := refinePose(prob, layout, allIndices(len(prob.world)), init, nil)

	alt := prob.frame.ToLLA(res.pose.Center).Alt
	assert.Greater(t, alt, truthAlt+0.01, "altitude prior should pull the estimate up")
	assert.Less(t, alt, truthAlt+5, "pixel evidence should hold the estimate below the prior mean")
}

func TestBoundsPenaltyMeters(t *testing.T) {
	b := &Bounds{MinLat: 47.0, MaxLat: 47.1, MinLon: -122.5, MaxLon: -122.3}
	tests := []struct {
		name string
		p    geodesy.LLA
		want float64
		tol  float64
	}{
		{"inside", geodesy.LLA{Lat: 47.05, Lon: -122.4}, 0, 0},
		{"on boundary", geodesy.LLA{Lat: 47.1, Lon: -122.3}, 0, 0},
		{"north overshoot", geodesy.LLA{Lat: 47.101, Lon: -122.4}, 111.19, 0.2},
		{"east overshoot", geodesy.LLA{Lat: 47.05, Lon: -122.299}, 75.76, 0.2},
		{"corner overshoot", geodesy.LLA{Lat: 47.101, Lon: -122.299}, 134.51, 0.3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := boundsPenaltyMeters(tt.p, b)
			if math.Abs(got-tt.want) > tt.tol {
				t.Errorf("penalty = %g m, want %g +/- %g", got, tt.want, tt.tol)
			}
		})
	}
}

func TestRefineJacobianShape(t *testing.T) {
	prob, truth := refineScene(t)
	prob.priors = &Priors{
		CameraAlt: &Prior{Mean: 25, Sigma: 2},
		Bounds:    &Bounds{MinLat: 47, MaxLat: 48, MinLon: -123, MaxLon: -122},
	}
	layout := newParamLayout(prob.model)
	init := hypothesis{pose: truth, intr: prob.base}

	res := refinePose(prob, layout, allIndices(len(prob.world)), init, nil)

	rows, cols := res.jacobianW.Dims()
	assert.Equal(t, 2*len(prob.world)+2, rows, "two rows per inlier plus one per active prior")
	assert.Equal(t, layout.Dim(), cols)
}
