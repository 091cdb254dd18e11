package synth

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geofix-app/geofix/internal/solver"
)

func TestGenerateDeterministic(t *testing.T) {
	s := Default()
	s.Seed = 99
	s.NoisePx = 1
	s.OutlierRate = 0.25

	reqA, truthA, err := s.Generate()
	require.NoError(t, err)
	reqB, truthB, err := s.Generate()
	require.NoError(t, err)

	assert.Empty(t, cmp.Diff(reqA, reqB), "equal scenarios must generate identical requests")
	assert.Empty(t, cmp.Diff(truthA, truthB))
}

func TestGenerateCleanSceneSolves(t *testing.T) {
	s := Default()
	s.Seed = 7

	req, truth, err := s.Generate()
	require.NoError(t, err)
	require.Len(t, req.Correspondences, s.Points)

	resp, err := solver.Solve(req)
	require.NoError(t, err)
	assert.Less(t, truth.PositionErrorM(resp.Pose), 1e-3)
	dyaw, dpitch, droll := truth.AngleErrorsDeg(resp.Pose)
	assert.Less(t, dyaw, 1e-3)
	assert.Less(t, dpitch, 1e-3)
	assert.Less(t, droll, 1e-3)
	assert.Equal(t, 1.0, resp.Diagnostics.InlierRatio)
}

func TestGenerateFreeFocalSolves(t *testing.T) {
	s := Default()
	s.Seed = 13
	s.Model = solver.SolverModel{EstimateFocal: true}

	req, truth, err := s.Generate()
	require.NoError(t, err)
	require.Nil(t, req.Priors, "free-focal requests carry no focal prior")

	resp, err := solver.Solve(req)
	require.NoError(t, err)
	assert.InEpsilon(t, truth.Intrinsics.FocalPx, resp.Intrinsics.FocalPx, 1e-3)
	assert.Less(t, truth.PositionErrorM(resp.Pose), 1e-2)
}

func TestGenerateOutliersAreExcluded(t *testing.T) {
	s := Default()
	s.Seed = 21
	s.OutlierRate = 0.25

	req, truth, err := s.Generate()
	require.NoError(t, err)
	require.Len(t, truth.OutlierIDs, 3, "25%% of 12 points")

	resp, err := solver.Solve(req)
	require.NoError(t, err)
	assert.InDelta(t, 9.0/12.0, resp.Diagnostics.InlierRatio, 1e-12)
	for _, id := range truth.OutlierIDs {
		assert.NotContains(t, resp.Diagnostics.InlierIDs, id)
	}
	assert.Less(t, truth.PositionErrorM(resp.Pose), 0.01)
}

func TestGenerateCameraFacingAway(t *testing.T) {
	s := Default()
	s.YawDeg = 180 // looking south, away from the point area

	_, _, err := s.Generate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sees too little")
}

func TestGenerateRejectsBadConfig(t *testing.T) {
	s := Default()
	s.Points = 0
	if _, _, err := s.Generate(); err == nil {
		t.Fatal("zero points should fail")
	}

	s = Default()
	s.FocalPx = 0
	if _, _, err := s.Generate(); err == nil {
		t.Fatal("zero focal should fail")
	}
}
