// Package report renders solve diagnostics for human review: PNG plots of
// reprojection residuals and bootstrap spreads via gonum/plot, and a
// self-contained HTML page of interactive charts via go-echarts.
package report

import (
	"fmt"

	"github.com/geofix-app/geofix/internal/geodesy"
	"github.com/geofix-app/geofix/internal/solver"
)

// Report pairs a solve request with its response and knows how to render
// diagnostics from them. Residuals in the response are positional over
// the enabled correspondences, so the request must be the one the
// response was produced from.
type Report struct {
	req  *solver.SolveRequest
	resp *solver.SolveResponse

	// Enabled correspondences with finite residuals, in request order.
	// Points the refined pose cannot see are counted, not drawn.
	ids       []string
	residuals []float64
	isInlier  []bool
	invisible int
}

// New validates that req and resp belong together and prepares a report.
func New(req *solver.SolveRequest, resp *solver.SolveResponse) (*Report, error) {
	if req == nil || resp == nil {
		return nil, fmt.Errorf("report: request and response are required")
	}

	enabled := 0
	for _, c := range req.Correspondences {
		if c.IsEnabled() {
			enabled++
		}
	}
	if len(resp.Diagnostics.ResidualsPx) != enabled {
		return nil, fmt.Errorf("report: %d residuals for %d enabled correspondences; request and response do not match",
			len(resp.Diagnostics.ResidualsPx), enabled)
	}

	inlier := make(map[string]bool, len(resp.Diagnostics.InlierIDs))
	for _, id := range resp.Diagnostics.InlierIDs {
		inlier[id] = true
	}

	r := &Report{req: req, resp: resp}
	idx := 0
	for _, c := range req.Correspondences {
		if !c.IsEnabled() {
			continue
		}
		res := resp.Diagnostics.ResidualsPx[idx]
		idx++
		if res >= solver.ResidualSentinelPx {
			r.invisible++
			continue
		}
		r.ids = append(r.ids, c.ID)
		r.residuals = append(r.residuals, res)
		r.isInlier = append(r.isInlier, inlier[c.ID])
	}
	return r, nil
}

// bootstrapENU converts the bootstrap position samples to east/north
// offsets in meters from the full-solve pose. Returns nil when the
// response carries no bootstrap block.
func (r *Report) bootstrapENU() ([][2]float64, error) {
	b := r.resp.Bootstrap
	if b == nil {
		return nil, nil
	}
	if len(b.Lat) != len(b.Lon) || len(b.Lat) != len(b.Alt) {
		return nil, fmt.Errorf("report: bootstrap position arrays are not parallel")
	}

	frame := geodesy.NewFrame(geodesy.LLA{Lat: r.resp.Pose.Lat, Lon: r.resp.Pose.Lon, Alt: r.resp.Pose.Alt})
	out := make([][2]float64, len(b.Lat))
	for i := range b.Lat {
		enu := frame.ToENU(geodesy.LLA{Lat: b.Lat[i], Lon: b.Lon[i], Alt: b.Alt[i]})
		out[i] = [2]float64{enu.X, enu.Y}
	}
	return out, nil
}

// hasFocalSpread reports whether the bootstrap sampled a free focal
// length worth plotting.
func (r *Report) hasFocalSpread() bool {
	b := r.resp.Bootstrap
	if b == nil || len(b.FocalPx) == 0 {
		return false
	}
	first := b.FocalPx[0]
	for _, f := range b.FocalPx[1:] {
		if f != first {
			return true
		}
	}
	return false
}

func (r *Report) subtitle() string {
	s := fmt.Sprintf("rmse=%.2fpx inliers=%.0f%% points=%d",
		r.resp.Diagnostics.RmsePx,
		100*r.resp.Diagnostics.InlierRatio,
		len(r.req.Correspondences))
	if r.invisible > 0 {
		s += fmt.Sprintf(" (%d behind camera)", r.invisible)
	}
	return s
}
