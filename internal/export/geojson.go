// Package export renders solve results as GeoJSON for map display: one
// point feature for the camera fix and one per correspondence, carrying
// reprojection residuals and inlier flags as properties.
package export

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/geofix-app/geofix/internal/solver"
)

// GeoJSON builds a FeatureCollection from a solve result and the
// correspondences the solve was run with. Residuals in the response
// diagnostics are positional over the enabled correspondences, so corrs
// must be the same set, in the same order, as the originating request.
func GeoJSON(resp *solver.SolveResponse, corrs []solver.Correspondence) (*geojson.FeatureCollection, error) {
	if resp == nil {
		return nil, fmt.Errorf("export: response is required")
	}

	enabled := 0
	for _, c := range corrs {
		if c.IsEnabled() {
			enabled++
		}
	}
	if len(resp.Diagnostics.ResidualsPx) != enabled {
		return nil, fmt.Errorf("export: %d residuals for %d enabled correspondences; response and correspondences do not match",
			len(resp.Diagnostics.ResidualsPx), enabled)
	}

	inliers := make(map[string]bool, len(resp.Diagnostics.InlierIDs))
	for _, id := range resp.Diagnostics.InlierIDs {
		inliers[id] = true
	}

	fc := geojson.NewFeatureCollection()
	fc.Append(cameraFeature(resp))

	residualIdx := 0
	for _, c := range corrs {
		f := geojson.NewFeature(orb.Point{c.World.Lon, c.World.Lat})
		f.ID = c.ID
		f.Properties = geojson.Properties{
			"kind":    "correspondence",
			"id":      c.ID,
			"enabled": c.IsEnabled(),
			"pixelU":  c.Pixel.U,
			"pixelV":  c.Pixel.V,
		}
		if c.World.Alt != nil {
			f.Properties["alt"] = *c.World.Alt
		}
		if c.Pixel.SigmaPx != nil {
			f.Properties["sigmaPx"] = *c.Pixel.SigmaPx
		}
		if c.World.SigmaM != nil {
			f.Properties["sigmaM"] = *c.World.SigmaM
		}
		if c.IsEnabled() {
			r := resp.Diagnostics.ResidualsPx[residualIdx]
			residualIdx++
			if r >= solver.ResidualSentinelPx {
				// The refined pose puts this point behind the camera.
				f.Properties["visible"] = false
			} else {
				f.Properties["residualPx"] = r
			}
			f.Properties["inlier"] = inliers[c.ID]
		}
		fc.Append(f)
	}

	return fc, nil
}

func cameraFeature(resp *solver.SolveResponse) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{resp.Pose.Lon, resp.Pose.Lat})
	f.ID = "camera"
	f.Properties = geojson.Properties{
		"kind":        "camera",
		"alt":         resp.Pose.Alt,
		"yawDeg":      resp.Pose.YawDeg,
		"pitchDeg":    resp.Pose.PitchDeg,
		"rollDeg":     resp.Pose.RollDeg,
		"focalPx":     resp.Intrinsics.FocalPx,
		"rmsePx":      resp.Diagnostics.RmsePx,
		"inlierRatio": resp.Diagnostics.InlierRatio,
	}
	if b := resp.Bootstrap; b != nil {
		f.Properties["positionStdM"] = b.Summary.PositionStdM
		f.Properties["yawStdDeg"] = b.Summary.YawStdDeg
	}
	return f
}
