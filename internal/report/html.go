package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// WriteHTML renders the interactive report page: a residual bar chart per
// correspondence and, when present, the bootstrap position scatter.
func (r *Report) WriteHTML(w io.Writer) error {
	page := components.NewPage()
	page.PageTitle = "Camera Solve Report"
	page.AddCharts(r.residualBarChart())

	enu, err := r.bootstrapENU()
	if err != nil {
		return err
	}
	if len(enu) > 0 {
		page.AddCharts(r.bootstrapScatterChart(enu))
	}
	if r.hasFocalSpread() {
		page.AddCharts(r.focalBarChart())
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render report page: %w", err)
	}
	return nil
}

func (r *Report) residualBarChart() *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Reprojection Residuals (px)", Subtitle: r.subtitle()}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "px"}),
	)

	inliers := make([]opts.BarData, len(r.residuals))
	outliers := make([]opts.BarData, len(r.residuals))
	for i, res := range r.residuals {
		if r.isInlier[i] {
			inliers[i] = opts.BarData{Value: res}
		} else {
			outliers[i] = opts.BarData{Value: res}
		}
	}

	bar.SetXAxis(r.ids).
		AddSeries("inliers", inliers).
		AddSeries("outliers", outliers)
	return bar
}

func (r *Report) bootstrapScatterChart(enu [][2]float64) *charts.Scatter {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "640px", Height: "640px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Bootstrap Camera Position",
			Subtitle: fmt.Sprintf("%d/%d resamples", r.resp.Bootstrap.Succeeded, r.resp.Bootstrap.Samples),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "East (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "North (m)", NameLocation: "middle", NameGap: 30}),
	)

	data := make([]opts.ScatterData, len(enu))
	for i, en := range enu {
		data[i] = opts.ScatterData{Value: []interface{}{en[0], en[1]}}
	}
	scatter.AddSeries("resamples", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	return scatter
}

func (r *Report) focalBarChart() *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Bootstrap Focal Length (px)",
			Subtitle: fmt.Sprintf("std=%.1fpx", r.resp.Bootstrap.Summary.FocalStdPx),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	// Bin the samples so the bar chart reads as a histogram.
	focals := r.resp.Bootstrap.FocalPx
	lo, hi := focals[0], focals[0]
	for _, f := range focals {
		if f < lo {
			lo = f
		}
		if f > hi {
			hi = f
		}
	}
	bins := histBins(len(focals))
	width := (hi - lo) / float64(bins)
	counts := make([]int, bins)
	for _, f := range focals {
		idx := int((f - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}

	labels := make([]string, bins)
	data := make([]opts.BarData, bins)
	for i, c := range counts {
		labels[i] = fmt.Sprintf("%.0f", lo+(float64(i)+0.5)*width)
		data[i] = opts.BarData{Value: c}
	}
	bar.SetXAxis(labels).AddSeries("samples", data)
	return bar
}
