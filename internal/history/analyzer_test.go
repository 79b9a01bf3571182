package history

import (
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "botwatch/internal/errors"
	"botwatch/internal/models"
)

func series(values ...float64) []models.HistoricalPnlPoint {
	points := make([]models.HistoricalPnlPoint, len(values))
	for i, v := range values {
		points[i] = models.HistoricalPnlPoint{
			Timestamp: time.Date(2024, 11, 21, 9, 15+i, 0, 0, time.UTC).Format("15:04:05"),
			PnL:       v,
		}
	}
	return points
}

func TestAnalyze_PeakAndDrawdown(t *testing.T) {
	a := Analyze(series(100, 150, 90, 200, 50))

	assert.False(t, a.Insufficient)
	assert.Equal(t, 200.0, a.MaxProfit)
	assert.Equal(t, []float64{100, 150, 150, 200, 200}, a.Peaks)
	assert.Equal(t, []float64{0, 0, 60, 0, 150}, a.Drawdowns)
	assert.Equal(t, -150.0, a.MaxDrawdown)

	// buffer = max(|200|, |50|) * 0.15 = 30
	assert.InDelta(t, 20.0, a.YAxisMin, 1e-9)
	assert.InDelta(t, 230.0, a.YAxisMax, 1e-9)
}

func TestAnalyze_FlatSeriesUsesFallbackBuffer(t *testing.T) {
	a := Analyze(series(50, 50, 50))

	assert.Equal(t, 0.0, a.MaxDrawdown)
	assert.InDelta(t, -50.0, a.YAxisMin, 1e-9)
	assert.InDelta(t, 150.0, a.YAxisMax, 1e-9)
	assert.GreaterOrEqual(t, a.YAxisMax-a.YAxisMin, 100.0)

	s := NewScale(a, 3, 720, 340)
	assert.InDelta(t, 170.0, s.Y(50), 1e-9)

	wide := Analyze(series(100000, 100000))
	assert.InDelta(t, 85000.0, wide.YAxisMin, 1e-6)

	zero := Analyze(series(0, 0, 0))
	assert.Equal(t, -100.0, zero.YAxisMin)
	assert.Equal(t, 100.0, zero.YAxisMax)
	assert.GreaterOrEqual(t, zero.YAxisMax-zero.YAxisMin, 100.0)
}

func TestAnalyze_InsufficientData(t *testing.T) {
	empty := Analyze(nil)
	assert.True(t, empty.Insufficient)
	assert.Equal(t, 0.0, empty.MaxProfit)
	assert.Equal(t, 0.0, empty.MaxDrawdown)
	assert.Equal(t, -100.0, empty.YAxisMin)
	assert.Equal(t, 100.0, empty.YAxisMax)

	single := Analyze(series(-75))
	assert.True(t, single.Insufficient)
	assert.Equal(t, -75.0, single.MaxProfit)
}

func TestScale_DegenerateAxisReturnsMidpoint(t *testing.T) {
	s := Scale{Width: 720, Height: 340, Count: 3, YMin: 50, YMax: 50}

	y := s.Y(50)
	assert.False(t, math.IsNaN(y))
	assert.False(t, math.IsInf(y, 0))
	assert.Equal(t, 170.0, y)
}

func TestScale_MapsBoundsToEdges(t *testing.T) {
	a := Analyze(series(100, 150, 90, 200, 50))
	s := NewScale(a, 5, 720, 340)

	assert.InDelta(t, 340.0, s.Y(a.YAxisMin), 1e-9)
	assert.InDelta(t, 0.0, s.Y(a.YAxisMax), 1e-9)
	assert.Equal(t, 0.0, s.X(0))
	assert.Equal(t, 720.0, s.X(4))

	ticks := s.Ticks(5)
	require.Len(t, ticks, 5)
	assert.InDelta(t, a.YAxisMin, ticks[0], 1e-9)
	assert.InDelta(t, a.YAxisMax, ticks[4], 1e-9)
}

func TestRenderHTML(t *testing.T) {
	var buf bytes.Buffer
	err := RenderHTML(&buf, models.HistoricalRunResult{
		ExecutionID: "hist-1",
		FinalPnL:    50,
		PnLData:     series(100, 150, 90, 200, 50),
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Historical Performance")
	assert.Contains(t, buf.String(), `"splitNumber":4`)

	buf.Reset()
	err = RenderHTML(&buf, models.HistoricalRunResult{PnLData: series(10)})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientData)
}

// Property: drawdown is never positive and the axis always brackets the data.
func TestProperty_AnalyzeBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("axis brackets every sample", prop.ForAll(
		func(values []float64) bool {
			a := Analyze(series(values...))
			if a.MaxDrawdown > 0 {
				return false
			}
			if a.YAxisMax <= a.YAxisMin {
				return false
			}
			for _, v := range values {
				if v < a.YAxisMin || v > a.YAxisMax {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(20, gen.Float64Range(-50000, 50000)),
	))

	properties.Property("running peak is monotonic", prop.ForAll(
		func(values []float64) bool {
			a := Analyze(series(values...))
			for i := 1; i < len(a.Peaks); i++ {
				if a.Peaks[i] < a.Peaks[i-1] {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(20, gen.Float64Range(-50000, 50000)),
	))

	properties.TestingRun(t)
}
