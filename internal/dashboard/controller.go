package dashboard

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"botwatch/internal/broker"
	"botwatch/internal/config"
	"botwatch/internal/confirm"
	apperrors "botwatch/internal/errors"
	"botwatch/internal/history"
	"botwatch/internal/logging"
	"botwatch/internal/models"
	"botwatch/internal/security"
	"botwatch/pkg/utils"
)

// Outcome is the result of one operator action.
type Outcome int

const (
	// Armed means the action waits for its confirming second invocation.
	Armed Outcome = iota
	// Done means the mutating call was made and succeeded.
	Done
	// Ignored means nothing was done: the action does not apply right now
	// or was rejected before any network call.
	Ignored
	// Failed means the mutating call was made and failed.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Armed:
		return "armed"
	case Done:
		return "confirmed"
	case Ignored:
		return "ignored"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// ControllerConfig holds action controller configuration.
type ControllerConfig struct {
	Gate     *confirm.Gate
	Access   *security.AccessController
	Recorder Recorder
	Logger   zerolog.Logger
	Now      func() time.Time
	// OnSessionEnd runs after a logout, confirmed or forced.
	OnSessionEnd func()
}

// Controller performs operator actions against the trading service. The
// destructive ones go through the confirmation gate.
type Controller struct {
	d        *Dashboard
	poller   *Poller
	svc      broker.Writer
	gate     *confirm.Gate
	access   *security.AccessController
	recorder Recorder
	logger   zerolog.Logger
	now      func() time.Time

	onSessionEnd func()

	stoppingBot atomic.Bool
	ended       atomic.Bool

	mu              sync.Mutex
	stoppingMonitor string
}

// NewController creates a controller and registers its forced logout with
// the poller.
func NewController(d *Dashboard, poller *Poller, svc broker.Writer, cfg ControllerConfig) *Controller {
	if cfg.Gate == nil {
		cfg.Gate = confirm.NewGate(d.log)
	}
	if cfg.Access == nil {
		cfg.Access = security.NewAccessController(false, cfg.Recorder)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	c := &Controller{
		d:            d,
		poller:       poller,
		svc:          svc,
		gate:         cfg.Gate,
		access:       cfg.Access,
		recorder:     cfg.Recorder,
		logger:       logging.WithOperation(cfg.Logger, "controller"),
		now:          cfg.Now,
		onSessionEnd: cfg.OnSessionEnd,
	}
	poller.OnSessionExpired(func() { c.ForceLogout(context.Background()) })
	return c
}

// Gate returns the confirmation gate, for display of the armed action.
func (c *Controller) Gate() *confirm.Gate {
	return c.gate
}

// Ended reports whether the session has been logged out.
func (c *Controller) Ended() bool {
	return c.ended.Load()
}

func (c *Controller) audit(ctx context.Context, kind, target, outcome, message string) {
	if c.recorder == nil {
		return
	}
	rec := models.ActionRecord{
		Timestamp: c.now(),
		Kind:      kind,
		Target:    target,
		Outcome:   outcome,
		Message:   message,
	}
	if err := c.recorder.SaveAction(ctx, rec); err != nil {
		c.logger.Warn().Err(err).Str("kind", kind).Msg("Failed to audit action")
	}
}

// permit checks op against read-only mode and reports a denial to the
// trade log.
func (c *Controller) permit(ctx context.Context, op security.OperationType, target string) error {
	if err := c.access.CheckPermission(ctx, op, target); err != nil {
		c.d.log.Error("%s is not allowed in read-only mode.", security.OperationDescription(op))
		return err
	}
	return nil
}

// failed reports a failed mutating call, ending the session on an
// authorization failure.
func (c *Controller) failed(ctx context.Context, err error) {
	if apperrors.Classify(err) == apperrors.KindAuth {
		c.d.log.Error("Session expired. Please log in again.")
		c.ForceLogout(ctx)
	}
}

// reconcile re-reads the service after a mutation. The poll result is
// authoritative over any optimistic update.
func (c *Controller) reconcile(ctx context.Context) {
	if c.ended.Load() {
		return
	}
	if err := c.poller.Trigger(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("Post-action refresh failed")
	}
}

// StopBot stops all strategies after confirmation. It applies only while
// the bot is RUNNING or MAX_LOSS_REACHED; open positions are left as they
// are.
func (c *Controller) StopBot(ctx context.Context) (Outcome, error) {
	if err := c.permit(ctx, security.OpStopBot, ""); err != nil {
		return Ignored, err
	}
	status := c.d.BotStatus()
	if status != models.BotRunning && status != models.BotMaxLossReached {
		c.d.log.Warning("Bot is not running (%s).", utils.FormatEnum(string(status)))
		return Ignored, apperrors.ErrBotNotRunning
	}
	if c.stoppingBot.Load() {
		return Ignored, apperrors.ErrActionInFlight
	}
	if c.gate.Invoke(confirm.Action{Kind: confirm.StopBot}) == confirm.OutcomeArmed {
		return Armed, nil
	}
	if !c.stoppingBot.CompareAndSwap(false, true) {
		return Ignored, apperrors.ErrActionInFlight
	}
	defer c.stoppingBot.Store(false)

	c.d.log.Info("Requesting to stop all strategies...")
	msg, err := c.svc.StopAll(ctx)
	if err != nil {
		c.d.log.Error("Failed to stop bot: %s", apperrors.Message(err))
		c.audit(ctx, string(confirm.StopBot), "", "failed", apperrors.Message(err))
		c.failed(ctx, err)
		return Failed, err
	}
	if msg == "" {
		msg = "All strategies stopped."
	}
	c.d.log.Success("%s", msg)
	c.audit(ctx, string(confirm.StopBot), "", "confirmed", msg)
	c.d.markStopped()
	c.reconcile(ctx)
	return Done, nil
}

// StopMonitor stops the server-side monitor of one execution after
// confirmation.
func (c *Controller) StopMonitor(ctx context.Context, executionID string) (Outcome, error) {
	if err := security.ValidateExecutionID(executionID); err != nil {
		c.d.log.Error("Invalid execution id %q.", security.SanitizeText(executionID))
		return Ignored, err
	}
	if err := c.permit(ctx, security.OpStopMonitor, executionID); err != nil {
		return Ignored, err
	}

	c.mu.Lock()
	busy := c.stoppingMonitor == executionID
	c.mu.Unlock()
	if busy {
		return Ignored, apperrors.ErrActionInFlight
	}

	if c.gate.Invoke(confirm.Action{Kind: confirm.StopMonitor, Target: executionID}) == confirm.OutcomeArmed {
		return Armed, nil
	}

	c.mu.Lock()
	c.stoppingMonitor = executionID
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.stoppingMonitor = ""
		c.mu.Unlock()
	}()

	c.d.log.Info("Requesting to stop monitoring for %s...", executionID)
	msg, err := c.svc.StopMonitoring(ctx, executionID)
	if err != nil {
		c.d.log.Error("Failed to stop monitoring: %s", apperrors.Message(err))
		c.audit(ctx, string(confirm.StopMonitor), executionID, "failed", apperrors.Message(err))
		c.failed(ctx, err)
		return Failed, err
	}
	if msg == "" {
		msg = "Stopped monitoring for " + executionID
	}
	c.d.log.Success("%s", msg)
	c.audit(ctx, string(confirm.StopMonitor), executionID, "confirmed", msg)
	c.reconcile(ctx)
	return Done, nil
}

// SwitchMode flips between paper and live trading after confirmation.
func (c *Controller) SwitchMode(ctx context.Context) (Outcome, error) {
	if err := c.permit(ctx, security.OpSwitchMode, ""); err != nil {
		return Ignored, err
	}
	if c.gate.Invoke(confirm.Action{Kind: confirm.SwitchMode}) == confirm.OutcomeArmed {
		return Armed, nil
	}

	current := models.PaperTrading
	if m := c.d.Mode.Get(); m != nil {
		current = m.Mode
	}
	target := current.Opposite()

	c.d.log.Info("Switching trading mode to %s...", utils.FormatEnum(string(target)))
	status, err := c.svc.SetTradingMode(ctx, target.IsPaper())
	if err != nil {
		c.d.log.Error("Failed to switch trading mode: %s", apperrors.Message(err))
		c.audit(ctx, string(confirm.SwitchMode), string(target), "failed", apperrors.Message(err))
		c.failed(ctx, err)
		return Failed, err
	}
	if status == nil {
		status = &models.TradingModeStatus{Mode: target, PaperTradingEnabled: target.IsPaper()}
	}
	c.d.Mode.Set(status)

	msg := status.Message
	if msg == "" {
		msg = fmt.Sprintf("Trading mode switched to %s.", utils.FormatEnum(string(status.Mode)))
	}
	c.d.log.Success("%s", msg)
	c.audit(ctx, string(confirm.SwitchMode), string(status.Mode), "confirmed", msg)
	c.reconcile(ctx)
	return Done, nil
}

// Logout ends the session after confirmation. The service logout is
// best-effort; local teardown happens regardless.
func (c *Controller) Logout(ctx context.Context) (Outcome, error) {
	if c.ended.Load() {
		return Ignored, apperrors.ErrSessionEnded
	}
	if c.gate.Invoke(confirm.Action{Kind: confirm.Logout}) == confirm.OutcomeArmed {
		return Armed, nil
	}

	if err := c.svc.Logout(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("Logout API call failed, continuing with local logout")
	}
	c.audit(ctx, string(confirm.Logout), "", "confirmed", "")
	c.teardown()
	c.d.log.Info("Logged out.")
	return Done, nil
}

// ForceLogout ends the session without confirmation. Used when the service
// reports the session as expired; the service is not called.
func (c *Controller) ForceLogout(ctx context.Context) {
	if c.ended.Load() {
		return
	}
	c.audit(ctx, string(confirm.Logout), "", "forced", "session expired")
	c.teardown()
}

func (c *Controller) teardown() {
	if !c.ended.CompareAndSwap(false, true) {
		return
	}
	c.poller.Stop()
	c.gate.Cancel()
	c.d.Reset()
	if c.onSessionEnd != nil {
		c.onSessionEnd()
	}
}

// buildRequest validates the selection and settings and builds the
// execution request. Failures are reported with what, naming the action.
func (c *Controller) buildRequest(what string) (models.ExecuteRequest, error) {
	sel := c.d.Selection()
	settings := c.d.Settings()

	if sel.Strategy == "" || sel.Instrument == "" || sel.Expiry == "" {
		c.d.log.Error("Strategy, instrument, or expiry not selected. Cannot %s.", what)
		return models.ExecuteRequest{}, apperrors.NewValidationError("selection", sel, "strategy, instrument, or expiry not selected")
	}
	if sel.Lots < 1 {
		c.d.log.Error("Lots must be at least 1.")
		return models.ExecuteRequest{}, apperrors.NewValidationError("lots", sel.Lots, "lots must be at least 1")
	}

	req := models.ExecuteRequest{
		StrategyType:   sel.Strategy,
		InstrumentType: sel.Instrument,
		Expiry:         sel.Expiry,
		Lots:           sel.Lots,
		MaxLossLimit:   settings.MaxLossLimit,
	}

	if models.IsStrangle(sel.Strategy) {
		if sel.StrikeGap <= 0 {
			c.d.log.Error("Strangle distance must be positive.")
			return models.ExecuteRequest{}, apperrors.NewValidationError("strikeGap", sel.StrikeGap, "strangle distance must be positive")
		}
		gap := sel.StrikeGap
		req.StrikeGap = &gap
	}

	risk := settings.Risk
	if risk.SLTargetMode == config.SLTargetPercentage {
		if risk.StopLossPercent <= 0 || risk.TargetDecayPercent <= 0 {
			c.d.log.Error("Stop-loss and target percentages must be positive.")
			return models.ExecuteRequest{}, apperrors.NewValidationError("stopLossPercent", risk.StopLossPercent, "stop-loss and target percentages must be positive")
		}
		sl, td := risk.StopLossPercent, risk.TargetDecayPercent
		req.StopLossPercent, req.TargetDecayPercent = &sl, &td
	} else {
		if risk.StopLossPoints <= 0 || risk.TargetPoints <= 0 {
			c.d.log.Error("Stop-loss and target points must be positive.")
			return models.ExecuteRequest{}, apperrors.NewValidationError("stopLossPoints", risk.StopLossPoints, "stop-loss and target points must be positive")
		}
		sl, tp := risk.StopLossPoints, risk.TargetPoints
		req.StopLossPoints, req.TargetPoints = &sl, &tp
	}
	return req, nil
}

func describe(req models.ExecuteRequest) string {
	desc := utils.FormatEnum(req.StrategyType)
	if req.StrikeGap != nil {
		desc = fmt.Sprintf("%s (%d pts)", desc, *req.StrikeGap)
	}
	return desc
}

// RunStrategy executes the selected strategy. It needs no confirmation but
// refuses once the max daily loss has been reached.
func (c *Controller) RunStrategy(ctx context.Context) (*models.ExecuteResult, error) {
	if err := c.permit(ctx, security.OpExecuteStrategy, ""); err != nil {
		return nil, err
	}

	limit := c.d.Settings().MaxLossLimit
	if models.MaxLossBreached(c.d.Metrics.Get().GrossPL, limit) {
		c.d.latchMaxLoss()
		c.d.log.Error("Max daily loss of %s reached. Stopping trade for the day.", strconv.FormatFloat(limit, 'f', -1, 64))
		return nil, apperrors.ErrMaxLossReached
	}

	req, err := c.buildRequest("place trade")
	if err != nil {
		return nil, err
	}

	c.d.log.Warning("Note: Open positions are not closed automatically. A new strategy will be opened.")
	c.d.log.Info("Executing: %s on %s for %s expiry with %d lot(s).", describe(req), req.InstrumentType, req.Expiry, req.Lots)

	result, err := c.svc.ExecuteStrategy(ctx, req)
	if err != nil {
		c.d.log.Error("Failed to execute strategy: %s", apperrors.Message(err))
		c.audit(ctx, string(security.OpExecuteStrategy), req.InstrumentType, "failed", apperrors.Message(err))
		c.failed(ctx, err)
		return nil, err
	}

	msg := ""
	if result != nil {
		msg = result.Message
	}
	c.d.log.Success("Strategy execution request sent successfully. Message: %s", msg)
	c.audit(ctx, string(security.OpExecuteStrategy), req.InstrumentType, "confirmed", msg)
	c.reconcile(ctx)
	return result, nil
}

// HistoricalRun is a replay result together with its analysis.
type HistoricalRun struct {
	Result   models.HistoricalRunResult
	Analysis history.Analysis
}

// RunHistorical replays the selected strategy over historical data.
func (c *Controller) RunHistorical(ctx context.Context) (*HistoricalRun, error) {
	if err := c.permit(ctx, security.OpHistorical, ""); err != nil {
		return nil, err
	}
	req, err := c.buildRequest("run simulation")
	if err != nil {
		return nil, err
	}

	c.d.log.Info("Starting historical simulation...")
	result, err := c.svc.ExecuteHistorical(ctx, req)
	if err != nil {
		c.d.log.Error("Historical simulation failed: %s", apperrors.Message(err))
		c.failed(ctx, err)
		return nil, err
	}
	if result == nil {
		result = &models.HistoricalRunResult{}
	}

	run := &HistoricalRun{Result: *result, Analysis: history.Analyze(result.PnLData)}
	c.d.log.Success("Historical simulation complete. Final P/L: %.2f", result.FinalPnL)
	if run.Analysis.Insufficient {
		c.d.log.Info("Not enough data points to draw a trend.")
	}
	return run, nil
}
