package dashboard

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botwatch/internal/broker"
	"botwatch/internal/config"
	"botwatch/internal/confirm"
	apperrors "botwatch/internal/errors"
	"botwatch/internal/logging"
	"botwatch/internal/models"
	"botwatch/internal/security"
	"botwatch/pkg/utils"
)

var testNow = time.Date(2024, 11, 21, 10, 0, 0, 0, time.UTC)

type memRecorder struct {
	mu        sync.Mutex
	snapshots []models.PnLSnapshot
	actions   []models.ActionRecord
	lastSync  time.Time
}

func (m *memRecorder) SavePnLSnapshot(_ context.Context, snap models.PnLSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *memRecorder) SaveAction(_ context.Context, rec models.ActionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, rec)
	return nil
}

func (m *memRecorder) SetLastSync(_ string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSync = t
	return nil
}

func (m *memRecorder) snapshotCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots)
}

func (m *memRecorder) actionList() []models.ActionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ActionRecord(nil), m.actions...)
}

type harness struct {
	svc      *broker.PaperService
	tradeLog *logging.TradeLog
	d        *Dashboard
	poller   *Poller
	ctrl     *Controller
	clock    *confirm.ManualClock
	rec      *memRecorder
	access   *security.AccessController
	ended    atomic.Int32
}

type harnessOption func(*PollerConfig, *Settings)

func withInterval(d time.Duration) harnessOption {
	return func(pc *PollerConfig, _ *Settings) { pc.Interval = d }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		svc:      broker.NewPaperService(broker.PaperConfig{Now: func() time.Time { return testNow }}),
		tradeLog: logging.NewTradeLog(zerolog.Nop()),
		clock:    confirm.NewManualClock(testNow),
		rec:      &memRecorder{},
	}
	h.tradeLog.SetClock(func() time.Time { return testNow })

	settings := Settings{
		MaxLossLimit: 3000,
		Risk: config.RiskConfig{
			MaxLossLimit:   3000,
			SLTargetMode:   config.SLTargetPoints,
			StopLossPoints: 10,
			TargetPoints:   15,
		},
		Lots: 1,
	}
	pc := PollerConfig{Recorder: h.rec, Logger: zerolog.Nop(), Now: func() time.Time { return testNow }}
	for _, opt := range opts {
		opt(&pc, &settings)
	}

	h.d = New(h.svc, h.tradeLog, zerolog.Nop(), settings)
	h.d.SetRetry(utils.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1})
	h.poller = NewPoller(h.d, h.svc, pc)
	h.access = security.NewAccessController(false, h.rec)
	h.ctrl = NewController(h.d, h.poller, h.svc, ControllerConfig{
		Gate:         confirm.NewGate(h.tradeLog, confirm.WithClock(h.clock)),
		Access:       h.access,
		Recorder:     h.rec,
		Logger:       zerolog.Nop(),
		Now:          func() time.Time { return testNow },
		OnSessionEnd: func() { h.ended.Add(1) },
	})
	t.Cleanup(h.poller.Stop)
	return h
}

// messages returns the trade log oldest first.
func (h *harness) messages() []string {
	entries := h.tradeLog.Entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = e.Message
	}
	return out
}

func (h *harness) count(msg string) int {
	n := 0
	for _, m := range h.messages() {
		if m == msg {
			n++
		}
	}
	return n
}

func (h *harness) countCalls(c broker.Call) int {
	n := 0
	for _, call := range h.svc.Calls() {
		if call == c {
			n++
		}
	}
	return n
}

func (h *harness) load(t *testing.T) {
	t.Helper()
	require.NoError(t, h.d.LoadCatalog(context.Background()))
}

func unauthorized() error {
	return apperrors.NewAPIError(http.MethodGet, "/strategies/active", http.StatusUnauthorized, "Unauthorized", apperrors.ErrSessionExpired)
}

var cycleReads = []broker.Call{
	broker.CallActiveStrategies,
	broker.CallMonitoringStatus,
	broker.CallPositions,
	broker.CallOrders,
	broker.CallOrderCharges,
	broker.CallBotStatus,
	broker.CallLTP,
}

func TestLoadCatalog_SelectsDefaults(t *testing.T) {
	h := newHarness(t)
	h.load(t)

	sel := h.d.Selection()
	assert.Equal(t, Selection{
		Strategy:   models.StrategyATMStraddle,
		Instrument: "NIFTY",
		Expiry:     "WEEKLY",
		Lots:       1,
		StrikeGap:  50,
	}, sel)

	cat := h.d.Catalog()
	assert.Len(t, cat.StrategyTypes, 3, "unimplemented strategies are hidden")
	assert.Equal(t, []string{"WEEKLY", "MONTHLY"}, cat.Expiries)
	assert.Equal(t, 24350.15, h.d.LTP.Get())
	require.NotNil(t, h.d.Mode.Get())
	assert.Equal(t, models.PaperTrading, h.d.Mode.Get().Mode)

	msgs := h.messages()
	assert.Contains(t, msgs, "Welcome, Paper Trader. Configurations loaded.")
	assert.Contains(t, msgs, "Expiries loaded successfully for NIFTY.")
}

func TestLoadCatalog_ConfiguredDefaults(t *testing.T) {
	h := newHarness(t, func(_ *PollerConfig, s *Settings) {
		s.DefaultInstrument = "banknifty"
		s.DefaultStrategy = models.StrategyOTMStrangle
		s.StrikeGap = 200
	})
	h.load(t)

	sel := h.d.Selection()
	assert.Equal(t, "BANKNIFTY", sel.Instrument)
	assert.Equal(t, models.StrategyOTMStrangle, sel.Strategy)
	assert.Equal(t, 200, sel.StrikeGap)
	assert.Equal(t, "MONTHLY", sel.Expiry)
}

func TestLoadCatalog_UnauthorizedIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.svc.FailWith(broker.CallProfile, unauthorized())

	err := h.d.LoadCatalog(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsUnauthorized(err))
	assert.Equal(t, 1, h.countCalls(broker.CallProfile))
	assert.Contains(t, h.messages(), "Failed to load initial data: Unauthorized")
}

func TestLoadCatalog_TransientFailureIsRetried(t *testing.T) {
	h := newHarness(t)
	var attempts atomic.Int32
	h.svc.SetHook(broker.CallInstruments, func(context.Context) error {
		if attempts.Add(1) < 3 {
			return apperrors.ErrConnectionFailed
		}
		return nil
	})

	require.NoError(t, h.d.LoadCatalog(context.Background()))
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, "NIFTY", h.d.Selection().Instrument)
}

func TestSelectInstrument_ResetsSelection(t *testing.T) {
	h := newHarness(t)
	h.load(t)
	require.NoError(t, h.d.SetLots(4))
	require.NoError(t, h.d.SelectStrategy(models.StrategyOTMStrangle))

	require.NoError(t, h.d.SelectInstrument(context.Background(), "BANKNIFTY"))

	sel := h.d.Selection()
	assert.Equal(t, 1, sel.Lots)
	assert.Equal(t, "MONTHLY", sel.Expiry)
	assert.Equal(t, 100, sel.StrikeGap)
	assert.Equal(t, models.StrategyOTMStrangle, sel.Strategy, "strategy survives an instrument change")
	assert.Equal(t, 52180.40, h.d.LTP.Get())

	err := h.d.SelectInstrument(context.Background(), "SENSEX")
	assert.ErrorIs(t, err, apperrors.ErrInputValidation)
	assert.Equal(t, "BANKNIFTY", h.d.Selection().Instrument)
}

func TestLots(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, 1, h.d.DecrementLots(), "never below one")
	assert.Equal(t, 2, h.d.IncrementLots())
	assert.ErrorIs(t, h.d.SetLots(0), apperrors.ErrInputValidation)
	assert.ErrorIs(t, h.d.SetMaxLossLimit(-5), apperrors.ErrInputValidation)
	require.NoError(t, h.d.SetMaxLossLimit(4500))
	assert.Equal(t, 4500.0, h.d.Settings().MaxLossLimit)
}

func TestReset(t *testing.T) {
	h := newHarness(t)
	h.load(t)
	require.NoError(t, h.poller.Refresh(context.Background()))

	h.d.Reset()

	assert.Equal(t, Selection{Lots: 1}, h.d.Selection())
	assert.Empty(t, h.d.Catalog().Instruments)
	assert.Nil(t, h.d.Profile())
	assert.Equal(t, models.BotInactive, h.d.BotStatus())
	assert.False(t, h.d.Strategies.Loaded())
	assert.Nil(t, h.d.Mode.Get())
}

func TestSnapshot(t *testing.T) {
	h := newHarness(t)
	h.load(t)
	h.svc.SetBotStatus(models.BotRunning)
	h.svc.AddStrategy(models.StrategyPosition{
		ExecutionID: "done-1",
		Status:      models.StrategyCompleted,
		ProfitLoss:  models.Float(420),
	})
	h.svc.AddCharge(models.OrderCharge{TradingSymbol: "X", Quantity: 75, Charges: &models.ChargeDetail{Total: models.Float(20)}})
	require.NoError(t, h.poller.Refresh(context.Background()))

	snap := h.d.Snapshot()
	assert.Equal(t, 420.0, snap.GrossPL)
	assert.Equal(t, 20.0, snap.TotalCharges)
	assert.Equal(t, 400.0, snap.NetPL)
	assert.Equal(t, models.BotRunning, snap.BotStatus)
}

func TestServerStatusChangeIsLogged(t *testing.T) {
	var buf bytes.Buffer
	svc := broker.NewPaperService(broker.PaperConfig{Now: func() time.Time { return testNow }})
	d := New(svc, logging.NewTradeLog(zerolog.Nop()), zerolog.New(&buf), Settings{MaxLossLimit: 3000})
	p := NewPoller(d, svc, PollerConfig{Logger: zerolog.Nop()})

	require.NoError(t, p.Refresh(context.Background()))
	assert.Contains(t, buf.String(), `"server_status":"STOPPED"`)

	buf.Reset()
	require.NoError(t, p.Refresh(context.Background()))
	assert.NotContains(t, buf.String(), "server_status", "an unchanged report is not a change")
}
