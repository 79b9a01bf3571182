package models

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestDeriveBotStatus(t *testing.T) {
	tests := []struct {
		name        string
		server      BotStatus
		latched     bool
		gross       float64
		wantStatus  BotStatus
		wantLatched bool
	}{
		{"running within limit", BotRunning, false, -2999, BotRunning, false},
		{"running at the limit", BotRunning, false, -3000, BotMaxLossReached, true},
		{"latched after recovery", BotRunning, true, 500, BotMaxLossReached, true},
		{"server stop clears latch", BotStopped, true, -5000, BotStopped, false},
		{"no report yet", "", false, 0, BotInactive, false},
		{"no report keeps latch", "", true, 0, BotMaxLossReached, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, latched := DeriveBotStatus(tt.server, tt.latched, tt.gross, 3000)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantLatched, latched)
		})
	}
}

func TestTradingModeOpposite(t *testing.T) {
	assert.Equal(t, LiveTrading, PaperTrading.Opposite())
	assert.Equal(t, PaperTrading, LiveTrading.Opposite())
	assert.True(t, PaperTrading.IsPaper())
	assert.False(t, TradingMode("").IsPaper())
}

func TestRealizedPnL(t *testing.T) {
	s := StrategyPosition{
		Status: StrategyCompleted,
		OrderLegs: []OrderLeg{
			{RealizedPnl: Float(120), EntryPrice: Float(10), ExitPrice: Float(7)},
			{RealizedPnl: Float(-20), EntryPrice: Float(12)},
		},
	}
	pnl, ok := s.RealizedPnL()
	assert.True(t, ok)
	assert.Equal(t, 100.0, pnl)

	entry, ok := s.EffectiveEntryPrice()
	assert.True(t, ok)
	assert.Equal(t, 22.0, entry)

	exit, ok := s.EffectiveExitPrice()
	assert.True(t, ok)
	assert.Equal(t, 7.0, exit)

	s.ProfitLoss = Float(90)
	pnl, _ = s.RealizedPnL()
	assert.Equal(t, 90.0, pnl)

	s.Status = StrategyActive
	_, ok = s.RealizedPnL()
	assert.False(t, ok)
	_, ok = StrategyPosition{Status: StrategyActive}.EffectiveExitPrice()
	assert.False(t, ok)
}

func TestPositionBookPreferred(t *testing.T) {
	day := []Position{{TradingSymbol: "A"}}
	net := []Position{{TradingSymbol: "B"}}
	assert.Equal(t, day, PositionBook{Net: net, Day: day}.Preferred())
	assert.Equal(t, net, PositionBook{Net: net}.Preferred())
	assert.NotNil(t, PositionBook{}.Preferred())
}

func TestChargeEquality(t *testing.T) {
	a := OrderCharge{TradingSymbol: "X", Charges: &ChargeDetail{Brokerage: 20, GST: &GSTCharge{Total: 3.6}}}
	b := OrderCharge{TradingSymbol: "X", Charges: &ChargeDetail{Brokerage: 20 + 1e-12, GST: &GSTCharge{Total: 3.6}}}
	assert.True(t, ChargesEqual([]OrderCharge{a}, []OrderCharge{b}))

	b.Charges.GST = nil
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(OrderCharge{TradingSymbol: "X"}))
	assert.True(t, MonitoringEqual(nil, nil))
	assert.False(t, MonitoringEqual(&MonitoringStatus{}, nil))
}

func TestProperty_SnapshotEqualityIgnoresOrder(t *testing.T) {
	properties := gopter.NewProperties(nil)

	build := func(pnls []float64) []StrategyPosition {
		out := make([]StrategyPosition, len(pnls))
		for i, p := range pnls {
			out[i] = StrategyPosition{ExecutionID: fmt.Sprintf("exec-%d", i), Status: StrategyActive, ProfitLoss: Float(p)}
		}
		return out
	}

	properties.Property("reversed snapshots are equal", prop.ForAll(
		func(pnls []float64) bool {
			a := build(pnls)
			b := make([]StrategyPosition, len(a))
			for i := range a {
				b[len(a)-1-i] = a[i]
			}
			return StrategiesEqual(a, b)
		},
		gen.SliceOf(gen.Float64Range(-1e5, 1e5)),
	))

	properties.Property("a changed value is detected", prop.ForAll(
		func(pnls []float64, delta float64) bool {
			a := build(pnls)
			b := build(pnls)
			*b[0].ProfitLoss += delta
			return !StrategiesEqual(a, b)
		},
		gen.SliceOfN(3, gen.Float64Range(-1e5, 1e5)),
		gen.Float64Range(0.01, 100),
	))

	properties.TestingRun(t)
}
