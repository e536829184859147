package report

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderSummaryHTML writes a standalone page with a bar chart of point
// counts per value and, when Z was available, the mean Z per value.
func RenderSummaryHTML(w io.Writer, s Summary) error {
	x := make([]string, 0, len(s.Values))
	counts := make([]opts.BarData, 0, len(s.Values))
	meanZ := make([]opts.BarData, 0, len(s.Values))
	hasZ := false
	for _, v := range s.Values {
		x = append(x, fmt.Sprintf("%g", v.Value))
		counts = append(counts, opts.BarData{Value: v.Count})
		z := 0.0
		if !math.IsNaN(v.MeanZ) {
			z = math.Round(v.MeanZ*1000) / 1000
			hasZ = true
		}
		meanZ = append(meanZ, opts.BarData{Value: z})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Overlay summary", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("%s distribution", s.Field), Subtitle: fmt.Sprintf("points=%d values=%d", s.Total, len(s.Values))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: s.Field, NameLocation: "middle", NameGap: 25}),
	)
	bar.SetXAxis(x).
		AddSeries("points", counts,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	if hasZ {
		bar.AddSeries("mean Z", meanZ)
	}

	page := components.NewPage()
	page.AddCharts(bar)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	return nil
}
