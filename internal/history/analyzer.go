// Package history analyzes replayed P&L curves: running peak, drawdown and
// the axis bounds used to draw them.
package history

import (
	"math"

	"botwatch/internal/models"
)

const (
	// MinPoints is the number of samples needed to draw a trend.
	MinPoints = 2

	axisBufferRatio   = 0.15
	flatSeriesBuffer  = 100.0
	emptySeriesBounds = 100.0
)

// Analysis is the result of a single forward pass over a P&L series.
type Analysis struct {
	MaxProfit   float64 `json:"maxProfit"`
	MaxDrawdown float64 `json:"maxDrawdown"` // reported as a negative number
	YAxisMin    float64 `json:"yAxisMin"`
	YAxisMax    float64 `json:"yAxisMax"`

	// Peaks and Drawdowns are the running values after each sample.
	Peaks     []float64 `json:"peaks"`
	Drawdowns []float64 `json:"drawdowns"`

	// Insufficient is set when there are fewer than MinPoints samples. It
	// is a normal "no data yet" state, not an error.
	Insufficient bool `json:"insufficient"`
}

// Analyze computes peak, drawdown and axis bounds in arrival order, with no
// look-ahead.
func Analyze(points []models.HistoricalPnlPoint) Analysis {
	if len(points) == 0 {
		return Analysis{
			YAxisMin:     -emptySeriesBounds,
			YAxisMax:     emptySeriesBounds,
			Insufficient: true,
		}
	}

	var (
		peak      = math.Inf(-1)
		maxP      = math.Inf(-1)
		minP      = math.Inf(1)
		drawdown  = 0.0
		peaks     = make([]float64, 0, len(points))
		drawdowns = make([]float64, 0, len(points))
	)

	for _, p := range points {
		pnl := p.PnL
		maxP = math.Max(maxP, pnl)
		minP = math.Min(minP, pnl)
		peak = math.Max(peak, pnl)
		current := peak - pnl
		drawdown = math.Max(drawdown, current)
		peaks = append(peaks, peak)
		drawdowns = append(drawdowns, current)
	}

	// A flat series gets at least the fallback band so it stays visible. The
	// fallback is a floor, not the "ratio or 100 when zero" rule, so a tiny
	// non-zero flat value still yields a usable axis.
	buffer := math.Max(math.Abs(maxP), math.Abs(minP)) * axisBufferRatio
	if buffer == 0 || maxP == minP {
		buffer = math.Max(buffer, flatSeriesBuffer)
	}

	return Analysis{
		MaxProfit:    maxP,
		MaxDrawdown:  -drawdown,
		YAxisMin:     minP - buffer,
		YAxisMax:     maxP + buffer,
		Peaks:        peaks,
		Drawdowns:    drawdowns,
		Insufficient: len(points) < MinPoints,
	}
}

// Scale maps series samples onto a drawing area.
type Scale struct {
	Width  float64
	Height float64
	Count  int
	YMin   float64
	YMax   float64
}

// NewScale builds a scale for n samples drawn into width x height.
func NewScale(a Analysis, n int, width, height float64) Scale {
	return Scale{Width: width, Height: height, Count: n, YMin: a.YAxisMin, YMax: a.YAxisMax}
}

// X returns the horizontal pixel position of sample i.
func (s Scale) X(i int) float64 {
	if s.Count < 2 {
		return s.Width / 2
	}
	return float64(i) / float64(s.Count-1) * s.Width
}

// Y returns the vertical pixel position of pnl, with 0 at the top. A flat
// axis maps everything onto the vertical midpoint.
func (s Scale) Y(pnl float64) float64 {
	if s.YMax == s.YMin {
		return s.Height / 2
	}
	return s.Height - (pnl-s.YMin)/(s.YMax-s.YMin)*s.Height
}

// Ticks returns n evenly spaced axis values from YMin to YMax.
func (s Scale) Ticks(n int) []float64 {
	if n < 2 {
		return []float64{s.YMin}
	}
	ticks := make([]float64, n)
	step := (s.YMax - s.YMin) / float64(n-1)
	for i := range ticks {
		ticks[i] = s.YMin + step*float64(i)
	}
	return ticks
}
