package export

import (
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geofix-app/geofix/internal/solver"
	"github.com/geofix-app/geofix/internal/synth"
)

func floatPtr(v float64) *float64 { return &v }
func boolPtr(v bool) *bool        { return &v }

func TestGeoJSONFromSolve(t *testing.T) {
	scenario := synth.Default()
	scenario.Seed = 7
	req, _, err := scenario.Generate()
	require.NoError(t, err)

	resp, err := solver.Solve(req)
	require.NoError(t, err)

	fc, err := GeoJSON(resp, req.Correspondences)
	require.NoError(t, err)
	require.Len(t, fc.Features, 1+len(req.Correspondences))

	camera := fc.Features[0]
	assert.Equal(t, "camera", camera.Properties["kind"])
	pt, ok := camera.Geometry.(orb.Point)
	require.True(t, ok)
	assert.Equal(t, resp.Pose.Lon, pt[0], "GeoJSON coordinates are lon,lat")
	assert.Equal(t, resp.Pose.Lat, pt[1])
	assert.Equal(t, resp.Diagnostics.RmsePx, camera.Properties["rmsePx"])

	for i, f := range fc.Features[1:] {
		c := req.Correspondences[i]
		assert.Equal(t, "correspondence", f.Properties["kind"])
		assert.Equal(t, c.ID, f.Properties["id"])
		pt, ok := f.Geometry.(orb.Point)
		require.True(t, ok)
		assert.Equal(t, c.World.Lon, pt[0])
		assert.Equal(t, c.World.Lat, pt[1])
		assert.Contains(t, f.Properties, "residualPx")
		assert.Equal(t, true, f.Properties["inlier"])
	}

	data, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"FeatureCollection"`)
}

func testResponse(residuals []float64, inlierIDs []string) *solver.SolveResponse {
	return &solver.SolveResponse{
		Pose:       solver.Pose{Lat: 47.6205, Lon: -122.3493, Alt: 56, YawDeg: 4},
		Intrinsics: solver.Intrinsics{FocalPx: 1000, Cx: 500, Cy: 375},
		Diagnostics: solver.Diagnostics{
			RmsePx:      0.5,
			InlierRatio: 1.0,
			ResidualsPx: residuals,
			InlierIDs:   inlierIDs,
		},
	}
}

func TestGeoJSONSkipsResidualForDisabled(t *testing.T) {
	corrs := []solver.Correspondence{
		{
			ID:    "on",
			Pixel: solver.PixelObservation{U: 10, V: 20, SigmaPx: floatPtr(0.5)},
			World: solver.WorldPoint{Lat: 47.62, Lon: -122.35, Alt: floatPtr(3)},
		},
		{
			ID:      "off",
			Pixel:   solver.PixelObservation{U: 30, V: 40},
			World:   solver.WorldPoint{Lat: 47.63, Lon: -122.34},
			Enabled: boolPtr(false),
		},
	}
	resp := testResponse([]float64{0.25}, []string{"on"})

	fc, err := GeoJSON(resp, corrs)
	require.NoError(t, err)
	require.Len(t, fc.Features, 3)

	on := fc.Features[1]
	assert.Equal(t, 0.25, on.Properties["residualPx"])
	assert.Equal(t, true, on.Properties["inlier"])
	assert.Equal(t, 0.5, on.Properties["sigmaPx"])
	assert.Equal(t, 3.0, on.Properties["alt"])

	off := fc.Features[2]
	assert.Equal(t, false, off.Properties["enabled"])
	assert.NotContains(t, off.Properties, "residualPx")
	assert.NotContains(t, off.Properties, "inlier")
}

func TestGeoJSONMarksInvisiblePoints(t *testing.T) {
	corrs := []solver.Correspondence{
		{ID: "behind", Pixel: solver.PixelObservation{U: 1, V: 2}, World: solver.WorldPoint{Lat: 47.62, Lon: -122.35}},
	}
	resp := testResponse([]float64{solver.ResidualSentinelPx}, nil)

	fc, err := GeoJSON(resp, corrs)
	require.NoError(t, err)

	f := fc.Features[1]
	assert.Equal(t, false, f.Properties["visible"])
	assert.NotContains(t, f.Properties, "residualPx")
	assert.Equal(t, false, f.Properties["inlier"])
}

func TestGeoJSONBootstrapProperties(t *testing.T) {
	resp := testResponse(nil, nil)
	resp.Bootstrap = &solver.Bootstrap{
		Samples:   100,
		Succeeded: 98,
		Summary:   solver.BootstrapSummary{PositionStdM: 1.2, YawStdDeg: 0.3},
	}

	fc, err := GeoJSON(resp, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.2, fc.Features[0].Properties["positionStdM"])
	assert.Equal(t, 0.3, fc.Features[0].Properties["yawStdDeg"])
}

func TestGeoJSONRejectsMismatchedResiduals(t *testing.T) {
	corrs := []solver.Correspondence{
		{ID: "a", Pixel: solver.PixelObservation{U: 1, V: 2}, World: solver.WorldPoint{Lat: 1, Lon: 2}},
	}
	resp := testResponse([]float64{0.1, 0.2}, nil)

	_, err := GeoJSON(resp, corrs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "do not match")

	_, err = GeoJSON(nil, corrs)
	require.Error(t, err)
}

func TestGeoJSONFeatureCollectionType(t *testing.T) {
	fc, err := GeoJSON(testResponse(nil, nil), nil)
	require.NoError(t, err)

	var decoded geojson.FeatureCollection
	data, err := json.Marshal(fc)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded.Features, 1)
	assert.Equal(t, "camera", decoded.Features[0].Properties["kind"])
}
