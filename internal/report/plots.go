package report

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	inlierColor  = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	outlierColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// SavePlots writes the diagnostic PNGs into dir and returns the paths
// written. Bootstrap plots are produced only when the response carries a
// bootstrap block.
func (r *Report) SavePlots(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	var written []string
	save := func(p *plot.Plot, name string) error {
		path := filepath.Join(dir, name)
		if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
			return fmt.Errorf("failed to save %s: %w", name, err)
		}
		written = append(written, path)
		return nil
	}

	p, err := r.residualScatterPlot()
	if err != nil {
		return nil, err
	}
	if err := save(p, "residuals.png"); err != nil {
		return nil, err
	}

	p, err = r.residualHistogramPlot()
	if err != nil {
		return nil, err
	}
	if err := save(p, "residual_histogram.png"); err != nil {
		return nil, err
	}

	enu, err := r.bootstrapENU()
	if err != nil {
		return nil, err
	}
	if len(enu) > 0 {
		p, err = r.bootstrapPositionPlot(enu)
		if err != nil {
			return nil, err
		}
		if err := save(p, "bootstrap_position.png"); err != nil {
			return nil, err
		}
	}

	if r.hasFocalSpread() {
		p, err = r.bootstrapFocalPlot()
		if err != nil {
			return nil, err
		}
		if err := save(p, "bootstrap_focal.png"); err != nil {
			return nil, err
		}
	}

	return written, nil
}

// residualScatterPlot draws one point per visible correspondence,
// inliers and outliers as separate series.
func (r *Report) residualScatterPlot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Reprojection Residuals"
	p.Title.Padding = vg.Points(5)
	p.X.Label.Text = "Correspondence"
	p.Y.Label.Text = "Residual (px)"

	var inliers, outliers plotter.XYs
	for i, res := range r.residuals {
		pt := plotter.XY{X: float64(i), Y: res}
		if r.isInlier[i] {
			inliers = append(inliers, pt)
		} else {
			outliers = append(outliers, pt)
		}
	}

	if len(inliers) > 0 {
		s, err := plotter.NewScatter(inliers)
		if err != nil {
			return nil, fmt.Errorf("failed to build inlier scatter: %w", err)
		}
		s.GlyphStyle.Color = inlierColor
		s.GlyphStyle.Radius = vg.Points(3)
		p.Add(s)
		p.Legend.Add("inliers", s)
	}

	if len(outliers) > 0 {
		s, err := plotter.NewScatter(outliers)
		if err != nil {
			return nil, fmt.Errorf("failed to build outlier scatter: %w", err)
		}
		s.GlyphStyle.Color = outlierColor
		s.GlyphStyle.Radius = vg.Points(3)
		p.Add(s)
		p.Legend.Add("outliers", s)
	}

	p.Legend.Top = true
	return p, nil
}

// residualHistogramPlot bins every finite residual, inlier or not.
func (r *Report) residualHistogramPlot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Residual Distribution"
	p.X.Label.Text = "Residual (px)"
	p.Y.Label.Text = "Count"

	// A histogram needs spread; a lone residual or a constant set has none.
	if len(r.residuals) < 2 {
		return p, nil
	}
	spread := false
	for _, res := range r.residuals[1:] {
		if res != r.residuals[0] {
			spread = true
			break
		}
	}
	if !spread {
		return p, nil
	}

	values := make(plotter.Values, len(r.residuals))
	copy(values, r.residuals)
	h, err := plotter.NewHist(values, histBins(len(values)))
	if err != nil {
		return nil, fmt.Errorf("failed to build residual histogram: %w", err)
	}
	h.FillColor = inlierColor
	p.Add(h)
	return p, nil
}

// bootstrapPositionPlot scatters the resampled camera positions as
// east/north offsets from the full solve.
func (r *Report) bootstrapPositionPlot(enu [][2]float64) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Bootstrap Camera Position"
	p.X.Label.Text = "East offset (m)"
	p.Y.Label.Text = "North offset (m)"

	pts := make(plotter.XYs, len(enu))
	for i, en := range enu {
		pts[i] = plotter.XY{X: en[0], Y: en[1]}
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, fmt.Errorf("failed to build position scatter: %w", err)
	}
	s.GlyphStyle.Color = inlierColor
	s.GlyphStyle.Radius = vg.Points(2)
	p.Add(s)
	return p, nil
}

// bootstrapFocalPlot draws the focal length distribution across resamples.
func (r *Report) bootstrapFocalPlot() (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Bootstrap Focal Length"
	p.X.Label.Text = "Focal (px)"
	p.Y.Label.Text = "Count"

	values := make(plotter.Values, len(r.resp.Bootstrap.FocalPx))
	copy(values, r.resp.Bootstrap.FocalPx)
	h, err := plotter.NewHist(values, histBins(len(values)))
	if err != nil {
		return nil, fmt.Errorf("failed to build focal histogram: %w", err)
	}
	h.FillColor = inlierColor
	p.Add(h)
	return p, nil
}

// histBins picks a bin count that stays readable for both handfuls of
// correspondences and hundreds of bootstrap samples.
func histBins(n int) int {
	switch {
	case n < 16:
		return 8
	case n < 100:
		return 16
	default:
		return 24
	}
}
