package history

import (
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	apperrors "botwatch/internal/errors"
	"botwatch/internal/models"
)

const (
	colorBackground    = "#0f172a"
	colorTextPrimary   = "#e2e8f0"
	colorTextSecondary = "#94a3b8"
	colorProfit        = "#22c55e"
	colorLoss          = "#ef4444"
	colorFlat          = "#38bdf8"

	chartWidthPx  = 800
	chartHeightPx = 400
	yAxisTicks    = 5
)

// RenderHTML writes the replayed P&L curve as a standalone HTML chart. The
// y axis uses the analyzer's bounds so a flat series still gets a visible
// band around it.
func RenderHTML(w io.Writer, result models.HistoricalRunResult) error {
	analysis := Analyze(result.PnLData)
	if analysis.Insufficient {
		msg := result.Message
		if msg == "" {
			msg = "Not enough data to display chart."
		}
		return apperrors.Wrap(apperrors.ErrInsufficientData, msg)
	}

	ticks := NewScale(analysis, len(result.PnLData), chartWidthPx, chartHeightPx).Ticks(yAxisTicks)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
			PageTitle:       "Historical Performance",
		}),
		charts.WithTitleOpts(opts.Title{
			Title: "Historical Performance",
			Subtitle: fmt.Sprintf("Final P/L %.2f | Max Profit %.2f | Max Drawdown %.2f",
				result.FinalPnL, analysis.MaxProfit, analysis.MaxDrawdown),
			Left:          "left",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel:   &opts.AxisLabel{Color: colorTextSecondary},
			Min:         round2(ticks[0]),
			Max:         round2(ticks[len(ticks)-1]),
			SplitNumber: len(ticks) - 1,
			SplitLine:   &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)

	xAxis := make([]string, len(result.PnLData))
	data := make([]opts.LineData, len(result.PnLData))
	for i, p := range result.PnLData {
		xAxis[i] = p.Timestamp
		data[i] = opts.LineData{Value: round2(p.PnL)}
	}

	line.SetXAxis(xAxis)
	line.AddSeries("P/L", data,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: seriesColor(result.FinalPnL), Width: 2}),
	)

	page := components.NewPage()
	page.PageTitle = "Historical Performance"
	page.AddCharts(line)
	return page.Render(w)
}

func seriesColor(final float64) string {
	switch {
	case final > 0:
		return colorProfit
	case final < 0:
		return colorLoss
	default:
		return colorFlat
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
