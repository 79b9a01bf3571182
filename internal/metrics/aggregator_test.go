package metrics

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"botwatch/internal/models"
)

func TestGrossPL_UsesLegFallbackForTerminalOnly(t *testing.T) {
	strategies := []models.StrategyPosition{
		{
			ExecutionID: "exec-1",
			Status:      models.StrategyCompleted,
			OrderLegs: []models.OrderLeg{
				{OrderID: "a", RealizedPnl: models.Float(120)},
				{OrderID: "b", RealizedPnl: models.Float(-40)},
			},
		},
		{
			ExecutionID: "exec-2",
			Status:      models.StrategyActive,
			ProfitLoss:  models.Float(999),
		},
	}

	assert.InDelta(t, 80.0, GrossPL(strategies), 1e-9)
}

func TestGrossPL_PrefersStrategyLevelProfitLoss(t *testing.T) {
	strategies := []models.StrategyPosition{
		{
			ExecutionID: "exec-1",
			Status:      models.StrategyStopped,
			ProfitLoss:  models.Float(-250),
			OrderLegs: []models.OrderLeg{
				{OrderID: "a", RealizedPnl: models.Float(1000)},
			},
		},
		{
			ExecutionID: "exec-2",
			Status:      models.StrategyMaxLossReached,
			ProfitLoss:  models.Float(-1500.5),
		},
	}

	assert.InDelta(t, -1750.5, GrossPL(strategies), 1e-9)
}

func TestCharges_TotalsAndMissingFields(t *testing.T) {
	records := []models.OrderCharge{
		{
			TradingSymbol: "NIFTY24N2124000CE",
			Charges: &models.ChargeDetail{
				Brokerage:      20,
				TransactionTax: 5.5,
				GST:            &models.GSTCharge{Total: 3.6},
				Total:          models.Float(29.1),
			},
		},
		{
			TradingSymbol: "NIFTY24N2124000PE",
			Charges: &models.ChargeDetail{
				Brokerage: 20,
				StampDuty: 0.3,
			},
		},
		{TradingSymbol: "no-charges"},
	}

	got := Charges(records)

	assert.InDelta(t, 40.0, got.Brokerage, 1e-9)
	assert.InDelta(t, 5.5, got.STT, 1e-9)
	assert.InDelta(t, 3.6, got.GST, 1e-9)
	assert.InDelta(t, 0.3, got.StampDuty, 1e-9)
	// 29.1 from the first record, 20.3 summed from the second's components
	assert.InDelta(t, 49.4, got.Total, 1e-9)
}

func TestAggregate_NetPL(t *testing.T) {
	res := Aggregate(Input{
		Strategies: []models.StrategyPosition{
			{ExecutionID: "x", Status: models.StrategyCompleted, ProfitLoss: models.Float(500)},
		},
		Charges: []models.OrderCharge{
			{Charges: &models.ChargeDetail{Total: models.Float(62.25)}},
		},
		MaxLossLimit:   3000,
		PreviousStatus: models.BotRunning,
	})

	assert.InDelta(t, 500.0, res.GrossPL, 1e-9)
	assert.InDelta(t, 62.25, res.TotalCharges, 1e-9)
	assert.InDelta(t, 437.75, res.NetPL, 1e-9)
	assert.False(t, res.MaxLossBreached)
}

func TestAggregate_MaxLossBreach(t *testing.T) {
	in := Input{
		Strategies: []models.StrategyPosition{
			{ExecutionID: "x", Status: models.StrategyStopped, ProfitLoss: models.Float(-3000.01)},
		},
		MaxLossLimit:   3000,
		PreviousStatus: models.BotRunning,
	}

	assert.True(t, Aggregate(in).MaxLossBreached)

	in.PreviousStatus = models.BotStopped
	assert.False(t, Aggregate(in).MaxLossBreached, "a stopped bot cannot breach")

	in.PreviousStatus = models.BotRunning
	in.Strategies[0].ProfitLoss = models.Float(-2999.99)
	assert.False(t, Aggregate(in).MaxLossBreached)

	in.Strategies[0].ProfitLoss = models.Float(-3000)
	assert.True(t, Aggregate(in).MaxLossBreached, "the limit itself is a breach")
}

func TestUnrealizedPL(t *testing.T) {
	strategies := []models.StrategyPosition{
		{ExecutionID: "a", Status: models.StrategyActive, ProfitLoss: models.Float(120)},
		{ExecutionID: "b", Status: models.StrategyActive},
		{ExecutionID: "c", Status: models.StrategyCompleted, ProfitLoss: models.Float(50)},
	}
	assert.InDelta(t, 120.0, UnrealizedPL(strategies), 1e-9)
}

// Property: active strategies never change gross P&L.
func TestProperty_ActiveStrategiesDoNotCount(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("adding an active strategy leaves gross P&L unchanged", prop.ForAll(
		func(realized, unrealized float64) bool {
			base := []models.StrategyPosition{
				{ExecutionID: "done", Status: models.StrategyCompleted, ProfitLoss: models.Float(realized)},
			}
			withActive := append([]models.StrategyPosition{
				{ExecutionID: "live", Status: models.StrategyActive, ProfitLoss: models.Float(unrealized)},
			}, base...)
			return GrossPL(base) == GrossPL(withActive)
		},
		gen.Float64Range(-100000, 100000),
		gen.Float64Range(-100000, 100000),
	))

	properties.Property("net P&L is gross minus charges", prop.ForAll(
		func(realized, total float64) bool {
			res := Aggregate(Input{
				Strategies: []models.StrategyPosition{
					{ExecutionID: "done", Status: models.StrategyCompleted, ProfitLoss: models.Float(realized)},
				},
				Charges: []models.OrderCharge{
					{Charges: &models.ChargeDetail{Total: models.Float(total)}},
				},
				MaxLossLimit:   1e9,
				PreviousStatus: models.BotRunning,
			})
			diff := res.NetPL - (res.GrossPL - res.TotalCharges)
			return diff < 1e-6 && diff > -1e-6
		},
		gen.Float64Range(-100000, 100000),
		gen.Float64Range(0, 5000),
	))

	properties.TestingRun(t)
}
