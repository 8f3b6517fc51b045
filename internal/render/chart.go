package render

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/rovermap/internal/pathstore"
)

// ChartOptions tweak the interactive path chart.
type ChartOptions struct {
	// AssetsHost overrides where the echarts javascript is loaded from.
	AssetsHost string
	Subtitle   string
}

// WriteChart renders an interactive HTML chart of the path in rover units.
func WriteChart(w io.Writer, samples []pathstore.Sample, o ChartOptions) error {
	data := make([]opts.LineData, 0, len(samples))
	for _, s := range samples {
		data = append(data, opts.LineData{Value: []interface{}{s.X, s.Y}})
	}

	initOpts := opts.Initialization{PageTitle: "Rover map", Width: "900px", Height: "700px"}
	if o.AssetsHost != "" {
		initOpts.AssetsHost = o.AssetsHost
	}
	subtitle := o.Subtitle
	if subtitle == "" {
		subtitle = fmt.Sprintf("samples=%d", len(samples))
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(initOpts),
		charts.WithTitleOpts(opts.Title{Title: "2D Map", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "X (cm)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "Y (cm)", NameLocation: "middle", NameGap: 30}),
	)
	line.AddSeries("path", data,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: "blue", Width: 2}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "red"}),
	)

	if err := line.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
