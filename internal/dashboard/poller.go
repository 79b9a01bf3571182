package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"botwatch/internal/broker"
	apperrors "botwatch/internal/errors"
	"botwatch/internal/logging"
	"botwatch/internal/models"
	"botwatch/internal/store"
)

// DefaultPollInterval is the time between background cycles.
const DefaultPollInterval = 10 * time.Second

// Recorder persists what the session produces. store.SQLiteStore
// implements it.
type Recorder interface {
	SavePnLSnapshot(ctx context.Context, snap models.PnLSnapshot) error
	SaveAction(ctx context.Context, rec models.ActionRecord) error
	SetLastSync(dataType string, t time.Time) error
}

// PollerConfig holds poll scheduler configuration.
type PollerConfig struct {
	Interval    time.Duration
	AutoRefresh bool
	Recorder    Recorder
	Logger      zerolog.Logger
	Now         func() time.Time
}

// Poller runs fetch-reconcile-aggregate cycles, on a ticker while
// auto-refresh is on and on demand otherwise. At most one cycle runs at a
// time; a tick that lands during a cycle is skipped, not queued.
type Poller struct {
	d        *Dashboard
	svc      broker.Reader
	recorder Recorder
	logger   zerolog.Logger
	interval time.Duration
	now      func() time.Time

	inFlight atomic.Bool
	rerun    atomic.Bool
	cycles   atomic.Uint64

	mu        sync.Mutex
	auto      bool
	parent    context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	onExpired func()
}

// NewPoller creates a poll scheduler for d.
func NewPoller(d *Dashboard, svc broker.Reader, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Poller{
		d:        d,
		svc:      svc,
		recorder: cfg.Recorder,
		logger:   logging.WithOperation(cfg.Logger, "poller"),
		interval: cfg.Interval,
		now:      cfg.Now,
		auto:     cfg.AutoRefresh,
	}
}

// OnSessionExpired registers the forced-logout handler run when a cycle
// fails with an authorization error.
func (p *Poller) OnSessionExpired(fn func()) {
	p.mu.Lock()
	p.onExpired = fn
	p.mu.Unlock()
}

// Start binds the scheduler to ctx and starts the background loop if
// auto-refresh is enabled.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.parent = ctx
	if p.auto {
		p.startLoopLocked()
	}
}

// Stop stops the background loop. A cycle in flight is cancelled. Stop does
// not wait for the loop to exit; use Wait for that.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLoopLocked()
	p.parent = nil
}

// Wait blocks until the background loop, if any, has exited.
func (p *Poller) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Running reports whether the background loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// AutoRefresh reports whether background polling is enabled.
func (p *Poller) AutoRefresh() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.auto
}

// Cycles returns the number of cycles completed, successful or not.
func (p *Poller) Cycles() uint64 {
	return p.cycles.Load()
}

// InFlight reports whether a cycle is running.
func (p *Poller) InFlight() bool {
	return p.inFlight.Load()
}

// SetAutoRefresh turns background polling on or off. Turning it on runs a
// cycle immediately.
func (p *Poller) SetAutoRefresh(enabled bool) {
	p.mu.Lock()
	if p.auto == enabled {
		p.mu.Unlock()
		return
	}
	p.auto = enabled
	if enabled {
		if p.parent != nil {
			p.startLoopLocked()
		}
	} else {
		p.stopLoopLocked()
	}
	p.mu.Unlock()

	if enabled {
		p.d.log.Info("Auto-refresh enabled.")
	} else {
		p.d.log.Info("Auto-refresh disabled.")
	}
}

func (p *Poller) startLoopLocked() {
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(p.parent)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	go p.loop(ctx, done)
}

func (p *Poller) stopLoopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel = nil
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	if err := p.run(ctx, false); errors.Is(err, apperrors.ErrCycleInFlight) {
		p.logger.Debug().Msg("Cycle in flight, skipping tick")
	}
}

// Refresh runs exactly one cycle now and reports its completion. It
// returns ErrCycleInFlight without doing anything if a cycle is running.
func (p *Poller) Refresh(ctx context.Context) error {
	return p.run(ctx, true)
}

// Trigger requests an immediate cycle after a mutation. If a cycle is in
// flight, another one runs as soon as it finishes, so the state always
// reflects a read that started after the mutation.
func (p *Poller) Trigger(ctx context.Context) error {
	p.rerun.Store(true)
	if !p.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	p.rerun.Store(false)
	err := p.cycle(ctx, false)
	p.release(ctx)
	return err
}

func (p *Poller) run(ctx context.Context, manual bool) error {
	if !p.inFlight.CompareAndSwap(false, true) {
		return apperrors.ErrCycleInFlight
	}
	p.rerun.Store(false)
	err := p.cycle(ctx, manual)
	p.release(ctx)
	return err
}

// release clears the in-flight flag, first running any cycle requested by
// Trigger in the meantime.
func (p *Poller) release(ctx context.Context) {
	for {
		p.inFlight.Store(false)
		if !p.rerun.Load() || ctx.Err() != nil || !p.inFlight.CompareAndSwap(false, true) {
			return
		}
		p.rerun.Store(false)
		_ = p.cycle(ctx, false)
	}
}

// cycle runs one fetch-reconcile-aggregate pass and handles its failure.
// The caller holds the in-flight flag.
func (p *Poller) cycle(ctx context.Context, manual bool) error {
	if manual {
		p.d.log.Info("Manually refreshing data...")
	}

	start := p.now()
	err := p.safeFetch(ctx)
	p.cycles.Add(1)
	logging.LogCycle(p.logger, manual, time.Since(start), err)

	if err != nil {
		if ctx.Err() != nil {
			// Teardown, not a service failure.
			return err
		}
		p.d.log.Error("Error in main loop: %s", apperrors.Message(err))
		switch kind := apperrors.Classify(err); kind {
		case apperrors.KindAuth:
			p.d.log.Error("Session expired. Please log in again.")
			p.mu.Lock()
			onExpired := p.onExpired
			p.mu.Unlock()
			if onExpired != nil {
				onExpired()
			}
		default:
			p.logger.Debug().Str("kind", kind.String()).Msg("Keeping previous snapshot until the next cycle")
		}
		return err
	}

	if manual {
		p.d.log.Success("Manual refresh complete.")
	}
	return nil
}

func (p *Poller) safeFetch(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Msg("Recovered from panic in poll cycle")
			err = fmt.Errorf("poll cycle panic: %v", r)
		}
	}()
	return p.fetch(ctx)
}

// fetch performs the reads in their fixed order, applying each result as
// soon as it arrives. The first failure aborts the rest of the cycle and
// leaves everything not yet read untouched.
func (p *Poller) fetch(ctx context.Context) error {
	d := p.d

	strategies, err := p.svc.ActiveStrategies(ctx)
	if err = settled(ctx, err); err != nil {
		return err
	}
	if strategies == nil {
		strategies = []models.StrategyPosition{}
	}
	d.Strategies.Set(strategies)

	monitoring, err := p.svc.MonitoringStatus(ctx)
	if err = settled(ctx, err); err != nil {
		return err
	}
	d.Monitoring.Set(monitoring)

	positions, err := p.svc.Positions(ctx)
	if err = settled(ctx, err); err != nil {
		return err
	}
	if positions == nil {
		positions = []models.Position{}
	}
	d.Positions.Set(positions)

	orders, err := p.svc.Orders(ctx)
	if err = settled(ctx, err); err != nil {
		return err
	}
	if orders == nil {
		orders = []models.Order{}
	}
	d.Orders.Set(orders)

	charges, err := p.svc.OrderCharges(ctx)
	if err = settled(ctx, err); err != nil {
		return err
	}
	if charges == nil {
		charges = []models.OrderCharge{}
	}
	d.Charges.Set(charges)

	bot, err := p.svc.BotStatus(ctx)
	if err = settled(ctx, err); err != nil {
		return err
	}
	var server models.BotStatus
	if bot != nil {
		server = bot.Status
	}
	statusChanged := d.ServerStatus.Set(server)

	update := d.recompute()
	if update.enteredMaxLoss {
		limit := strconv.FormatFloat(d.Settings().MaxLossLimit, 'f', -1, 64)
		d.log.Error("Max daily loss of %s reached. Bot stopped.", limit)
		d.log.Warning("Note: Positions must be closed manually.")
	}
	if update.metricsChanged || statusChanged || update.status != update.previous {
		p.record(ctx, update)
	}

	if inst, ok := d.SelectedInstrument(); ok {
		ltp, err := p.svc.LTP(ctx, inst.Name)
		if err = settled(ctx, err); err != nil {
			return err
		}
		d.LTP.Set(ltp)
	}

	if p.recorder != nil {
		if err := p.recorder.SetLastSync(store.SyncPoll, p.now()); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to record poll time")
		}
	}
	return nil
}

// settled returns err, or the context error if the cycle was cancelled
// while the read was in flight.
func settled(ctx context.Context, err error) error {
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (p *Poller) record(ctx context.Context, update statusUpdate) {
	if p.recorder == nil {
		return
	}
	snap := models.PnLSnapshot{
		Timestamp:    p.now(),
		GrossPL:      update.result.GrossPL,
		TotalCharges: update.result.TotalCharges,
		NetPL:        update.result.NetPL,
		BotStatus:    update.status,
	}
	if err := p.recorder.SavePnLSnapshot(ctx, snap); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to save P&L snapshot")
	}
}
