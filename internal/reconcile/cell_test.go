package reconcile

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"botwatch/internal/models"
)

func strategy(id string, pl float64) models.StrategyPosition {
	return models.StrategyPosition{
		ExecutionID: id,
		Status:      models.StrategyActive,
		ProfitLoss:  models.Float(pl),
	}
}

func TestCell_EqualSetKeepsVersion(t *testing.T) {
	c := NewCell[[]models.StrategyPosition](nil, models.StrategiesEqual)

	assert.True(t, c.Set([]models.StrategyPosition{strategy("a", 10), strategy("b", -5)}))
	v := c.Version()

	// Same content, different order and a fresh allocation.
	changed := c.Set([]models.StrategyPosition{strategy("b", -5), strategy("a", 10)})
	assert.False(t, changed)
	assert.Equal(t, v, c.Version())
	assert.Equal(t, "a", c.Get()[0].ExecutionID, "the held value is kept on an equal set")
}

func TestCell_ToleranceAbsorbsFloatNoise(t *testing.T) {
	c := NewCell(0.0, models.PriceEqual)
	c.Set(24350.15)
	v := c.Version()

	assert.False(t, c.Set(24350.15+1e-12))
	assert.Equal(t, v, c.Version())
	assert.True(t, c.Set(24350.20))
}

func TestCell_EmptyFetchOnEmptyCellIsNoChange(t *testing.T) {
	c := NewCell[[]models.Order](nil, models.OrdersEqual)

	assert.False(t, c.Set([]models.Order{}))
	assert.Equal(t, uint64(0), c.Version())
	assert.True(t, c.Loaded())
}

func TestCell_OnChangeFiresOnlyOnRealChange(t *testing.T) {
	c := NewCell(0.0, models.PriceEqual)
	calls := 0
	c.OnChange(func(float64) { calls++ })

	c.Set(1)
	c.Set(1)
	c.Set(2)

	assert.Equal(t, 2, calls)
}

func TestCell_Reset(t *testing.T) {
	c := NewCell(0.0, models.PriceEqual)
	c.Set(5)
	c.Reset(0)

	assert.False(t, c.Loaded())
	assert.Equal(t, 0.0, c.Get())
	assert.Equal(t, uint64(2), c.Version())
}

// Property: applying the same fetch twice never moves the version.
func TestProperty_SetIsIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("second identical set is a no-op", prop.ForAll(
		func(pls []float64) bool {
			build := func() []models.StrategyPosition {
				out := make([]models.StrategyPosition, len(pls))
				for i, pl := range pls {
					out[i] = strategy(string(rune('a'+i)), pl)
				}
				return out
			}
			c := NewCell[[]models.StrategyPosition](nil, models.StrategiesEqual)
			c.Set(build())
			before := c.Version()
			return !c.Set(build()) && c.Version() == before
		},
		gen.SliceOfN(8, gen.Float64Range(-10000, 10000)),
	))

	properties.Property("reversed order is equal", prop.ForAll(
		func(pls []float64) bool {
			var fwd, rev []models.StrategyPosition
			for i, pl := range pls {
				fwd = append(fwd, strategy(string(rune('a'+i)), pl))
			}
			for i := len(fwd) - 1; i >= 0; i-- {
				rev = append(rev, fwd[i])
			}
			return models.StrategiesEqual(fwd, rev)
		},
		gen.SliceOfN(8, gen.Float64Range(-10000, 10000)),
	))

	properties.TestingRun(t)
}
