package monitor

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/swing.report/internal/swing"
)

// echartsAssetsPrefix serves the echarts bundle from the public CDN.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// GyroChart builds an interactive line chart of the gyro magnitudes in v.
func GyroChart(v swing.AlignmentView, title string) *charts.Line {
	line := charts.NewLine()
	subtitle := ""
	if v.MasterStartTime != "" {
		subtitle = fmt.Sprintf("%s to %s", v.MasterStartTime, v.MasterEndTime)
	}
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "t (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: Gyro.Label(), NameLocation: "middle", NameGap: 40}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}, opts.DataZoom{Type: "slider"}),
	)

	for _, role := range swing.Roles {
		s, ok := v.Sensors[role]
		if !ok || len(s.Times) == 0 {
			continue
		}
		data := make([]opts.LineData, len(s.Times))
		for i, t := range s.Times {
			data[i] = opts.LineData{Value: []interface{}{t, s.GyroMagnitudes[i]}}
		}
		line.AddSeries(string(role), data, charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}
	return line
}

// RenderGyroHTML writes the gyro chart page to w.
func RenderGyroHTML(w io.Writer, v swing.AlignmentView, title string) error {
	return GyroChart(v, title).Render(w)
}
