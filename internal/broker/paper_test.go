package broker

import (
	"context"
	"errors"
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

func fixedNow() time.Time {
	return time.Date(2024, 11, 21, 10, 0, 0, 0, time.UTC)
}

func TestPaperService_ExecuteAndStop(t *testing.T) {
	ctx := context.Background()
	p := NewPaperService(PaperConfig{Now: fixedNow})

	gap := 100
	res, err := p.ExecuteStrategy(ctx, models.ExecuteRequest{
		StrategyType:   models.StrategyOTMStrangle,
		InstrumentType: "NIFTY",
		Expiry:         "WEEKLY",
		Lots:           1,
		StrikeGap:      &gap,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.ExecutionID)

	strategies, err := p.ActiveStrategies(ctx)
	require.NoError(t, err)
	require.Len(t, strategies, 1)
	require.Len(t, strategies[0].OrderLegs, 2)
	assert.Equal(t, "NIFTY24NOV24450CE", strategies[0].OrderLegs[0].TradingSymbol)
	assert.Equal(t, "NIFTY24NOV24250PE", strategies[0].OrderLegs[1].TradingSymbol)

	status, err := p.BotStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.BotRunning, status.Status)

	charges, err := p.OrderCharges(ctx)
	require.NoError(t, err)
	assert.Len(t, charges, 2)

	msg, err := p.StopAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Stopped 1 strategies.", msg)

	status, _ = p.BotStatus(ctx)
	assert.Equal(t, models.BotStopped, status.Status)
	positions, _ := p.Positions(ctx)
	assert.Len(t, positions, 2, "stopping never closes positions")
}

func TestPaperService_StopUnknownMonitor(t *testing.T) {
	p := NewPaperService(PaperConfig{})
	_, err := p.StopMonitoring(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrDataNotFound)
}

func TestPaperService_HooksAndCalls(t *testing.T) {
	ctx := context.Background()
	p := NewPaperService(PaperConfig{})
	boom := errors.New("connection reset")
	p.FailWith(CallOrders, boom)

	_, err := p.Orders(ctx)
	assert.ErrorIs(t, err, boom)

	p.FailWith(CallOrders, nil)
	_, err = p.Orders(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []Call{CallOrders, CallOrders}, p.Calls())

	require.NoError(t, p.Logout(ctx))
	_, err = p.Profile(ctx)
	assert.True(t, apperrors.IsUnauthorized(err))
}

func TestPaperService_ModeAndHistory(t *testing.T) {
	ctx := context.Background()
	p := NewPaperService(PaperConfig{})

	st, err := p.SetTradingMode(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, models.LiveTrading, st.Mode)
	assert.False(t, st.PaperTradingEnabled)

	hist, err := p.ExecuteHistorical(ctx, models.ExecuteRequest{Lots: 2})
	require.NoError(t, err)
	assert.Len(t, hist.PnLData, 75)
	assert.Equal(t, hist.PnLData[len(hist.PnLData)-1].PnL, hist.FinalPnL)
}

// Property: after StopAll no execution is left ACTIVE and no monitor remains.
func TestProperty_StopAllLeavesNothingActive(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("stop-all stops every execution", prop.ForAll(
		func(lots []int) bool {
			ctx := context.Background()
			p := NewPaperService(PaperConfig{Now: fixedNow})
			for _, l := range lots {
				if _, err := p.ExecuteStrategy(ctx, models.ExecuteRequest{
					StrategyType:   models.StrategyATMStraddle,
					InstrumentType: "BANKNIFTY",
					Lots:           l,
				}); err != nil {
					return false
				}
			}
			if _, err := p.StopAll(ctx); err != nil {
				return false
			}
			strategies, _ := p.ActiveStrategies(ctx)
			for _, s := range strategies {
				if s.Status == models.StrategyActive {
					return false
				}
			}
			mon, _ := p.MonitoringStatus(ctx)
			return mon.ActiveMonitors == 0 && len(strategies) == len(lots)
		},
		gen.SliceOfN(5, gen.IntRange(1, 10)),
	))

	properties.TestingRun(t)
}
