package solver

import (
	"fmt"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geofix-app/geofix/internal/camera"
)

func TestRansacFindsConsensusOnCleanScene(t *testing.T) {
	prob, truth := refineScene(t)

	cons, err := runRansac(prob, nil, 7, 4)
	require.NoError(t, err)
	assert.Len(t, cons.inlierIdx, len(prob.world), "every clean correspondence should be an inlier")
	assert.Less(t, cons.hyp.pose.Center.Sub(truth.Center).Norm(), 1e-6)
}

func TestRansacRejectsOutliers(t *testing.T) {
	prob, truth := refineScene(t)
	corrupted := map[int]bool{2: true, 7: true}
	prob.pixels[2] = [2]float64{900, 50}
	prob.pixels[7] = [2]float64{100, 700}

	cons, err := runRansac(prob, nil, 11, 4)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(cons.inlierIdx), 8, "should keep all true inliers")
	for _, i := range cons.inlierIdx {
		assert.False(t, corrupted[i], "corrupted correspondence %d made the inlier set", i)
	}
	assert.Less(t, cons.hyp.pose.Center.Sub(truth.Center).Norm(), 1e-6)
}

func TestRansacDeterministicAcrossWorkerCounts(t *testing.T) {
	prob, _ := refineScene(t)
	prob.pixels[4][0] += 30 // one outlier so hypothesis selection is nontrivial

	a, err := runRansac(prob, nil, 12345, 1)
	require.NoError(t, err)
	b, err := runRansac(prob, nil, 12345, 8)
	require.NoError(t, err)

	assert.Equal(t, a.inlierIdx, b.inlierIdx)
	assert.Equal(t, a.iterations, b.iterations)
	assert.Equal(t, a.hyp, b.hyp, "winning hypothesis must not depend on worker count")
}

func TestRansacNoConsensus(t *testing.T) {
	prob, _ := refineScene(t)
	// Scatter the pixels so they bear no consistent relation to the world
	// points; minimal subsets still generate poses, but none can gather a
	// viable consensus.
	rng := newRand(3)
	for i := range prob.pixels {
		prob.pixels[i] = [2]float64{rng.Float64() * 1000, rng.Float64() * 750}
	}

	_, err := runRansac(prob, &RansacConfig{MaxIters: 300, InlierPx: 0.2}, 5, 4)
	require.Error(t, err)
	assert.Equal(t, KindNoConsensus, KindOf(err))
}

func TestRansacAllSubsetsDegenerate(t *testing.T) {
	truth := camera.NewPose(r3.Vector{X: 0, Y: -50, Z: 3}, 0, 0, 0)
	intr := camera.Intrinsics{FocalPx: 1000, Cx: 500, Cy: 375}
	world := make([]r3.Vector, 6)
	for i := range world {
		world[i] = r3.Vector{X: -20 + 8*float64(i), Y: 30, Z: 2}
	}
	ids := make([]string, len(world))
	for i := range ids {
		ids[i] = fmt.Sprintf("line%d", i)
	}
	prob := &problem{
		world:   world,
		pixels:  projectAll(t, truth, intr, world),
		sigmaPx: fillSlice(len(world), 1),
		sigmaM:  fillSlice(len(world), 1),
		ids:     ids,
		base:    intr,
		model:   SolverModel{},
	}

	_, err := runRansac(prob, &RansacConfig{MaxIters: 64}, 9, 2)
	require.Error(t, err)
	assert.Equal(t, KindDegenerateGeometry, KindOf(err))
}

func TestItersNeeded(t *testing.T) {
	if got := itersNeeded(10, 10, 4, 0.999); got != 1 {
		t.Errorf("all-inlier ratio should need exactly one iteration, got %g", got)
	}
	want := math.Log(1-0.999) / math.Log(1-math.Pow(0.5, 4))
	if got := itersNeeded(5, 10, 4, 0.999); math.Abs(got-want) > 1e-9 {
		t.Errorf("itersNeeded = %g, want %g", got, want)
	}
	if got := itersNeeded(0, 10, 4, 0.999); !math.IsInf(got, 1) {
		t.Errorf("zero inliers should need unbounded iterations, got %g", got)
	}
}
