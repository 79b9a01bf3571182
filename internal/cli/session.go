package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"botwatch/internal/confirm"
	"botwatch/internal/dashboard"
	"botwatch/internal/logging"
	"botwatch/internal/models"
	"botwatch/internal/security"
)

var (
	errNotConfirmed  = errors.New("action not confirmed")
	errWindowExpired = errors.New("confirmation window expired")
)

// session is one operator session against the trading service.
type session struct {
	app    *App
	out    *Output
	log    *logging.TradeLog
	dash   *dashboard.Dashboard
	poller *dashboard.Poller
	ctrl   *dashboard.Controller
	gate   *confirm.Gate

	endOnce sync.Once
	ended   chan struct{}
	unsub   func()
}

// newSession wires the dashboard, poller and controller for one command.
// With echo set, trade log entries are printed as they are added.
func (a *App) newSession(cmd *cobra.Command, echo bool) *session {
	cfg := a.Config
	out := NewOutput(cmd)

	tradeLog := logging.NewTradeLog(a.Logger)
	var recorder dashboard.Recorder
	var auditor security.Auditor
	if a.Store != nil {
		tradeLog.SetSink(a.Store)
		rec := auditRecorder{DataStore: a.Store, enabled: cfg.Security.AuditEnabled}
		recorder, auditor = rec, rec
	}

	s := &session{
		app:   a,
		out:   out,
		log:   tradeLog,
		ended: make(chan struct{}),
		unsub: func() {},
	}
	if echo && !out.IsJSON() {
		s.unsub = tradeLog.Subscribe(func(e models.LogEntry) {
			out.Println(out.LogEntry(e, cfg.UI.TimeFormat))
		})
	}

	gateLog := logging.WithOperation(a.Logger, "confirm")
	s.gate = confirm.NewGate(tradeLog,
		confirm.WithWindow(cfg.Confirmation.Window),
		confirm.WithObserver(func(tr confirm.Transition) {
			gateLog.Debug().
				Str("action", string(tr.Action.Kind)).
				Str("target", tr.Action.Target).
				Str("from", string(tr.From)).
				Str("to", string(tr.To)).
				Msg("Confirmation transition")
		}),
	)
	s.dash = dashboard.New(a.Service, tradeLog, a.Logger, dashboard.SettingsFromConfig(cfg))
	s.poller = dashboard.NewPoller(s.dash, a.Service, dashboard.PollerConfig{
		Interval:    cfg.Polling.Interval,
		AutoRefresh: cfg.Polling.AutoRefresh,
		Recorder:    recorder,
		Logger:      a.Logger,
	})
	s.ctrl = dashboard.NewController(s.dash, s.poller, a.Service, dashboard.ControllerConfig{
		Gate:         s.gate,
		Access:       security.NewAccessController(cfg.Security.ReadOnlyMode, auditor),
		Recorder:     recorder,
		Logger:       a.Logger,
		OnSessionEnd: func() { s.endOnce.Do(func() { close(s.ended) }) },
	})
	if cfg.Security.ReadOnlyMode {
		tradeLog.Warning("Read-only mode: actions that change the bot are disabled.")
	}
	return s
}

// open loads the catalog, applies the selection flags of cmd and runs a
// first poll cycle.
func (s *session) open(ctx context.Context, cmd *cobra.Command) error {
	if err := s.dash.LoadCatalog(ctx); err != nil {
		return err
	}
	if err := applySelection(ctx, s.dash, cmd); err != nil {
		return err
	}
	return s.poller.Refresh(ctx)
}

func (s *session) close() {
	s.unsub()
	s.poller.Stop()
	s.poller.Wait()
	s.gate.Cancel()
}

// Ended reports whether the session was logged out.
func (s *session) Ended() <-chan struct{} {
	return s.ended
}

// addSelectionFlags registers the strategy selection flags on cmd.
func addSelectionFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("instrument", "i", "", "instrument code, e.g. NIFTY")
	cmd.Flags().StringP("strategy", "s", "", "strategy type, e.g. OTM_STRANGLE")
	cmd.Flags().StringP("expiry", "e", "", "expiry, e.g. WEEKLY")
	cmd.Flags().IntP("lots", "l", 0, "number of lots")
	cmd.Flags().Int("gap", 0, "strangle distance in points")
	cmd.Flags().Float64("max-loss", 0, "max daily loss limit")
}

// applySelection applies the selection flags that were set on cmd.
func applySelection(ctx context.Context, d *dashboard.Dashboard, cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Lookup("instrument") == nil {
		return nil
	}
	if flags.Changed("instrument") {
		code, _ := flags.GetString("instrument")
		if err := security.ValidateInstrumentCode(code); err != nil {
			return err
		}
		if err := d.SelectInstrument(ctx, strings.ToUpper(code)); err != nil {
			return err
		}
	}
	if flags.Changed("strategy") {
		name, _ := flags.GetString("strategy")
		if err := d.SelectStrategy(name); err != nil {
			return err
		}
	}
	if flags.Changed("expiry") {
		expiry, _ := flags.GetString("expiry")
		if err := d.SelectExpiry(strings.ToUpper(expiry)); err != nil {
			return err
		}
	}
	if flags.Changed("lots") {
		lots, _ := flags.GetInt("lots")
		if err := d.SetLots(lots); err != nil {
			return err
		}
	}
	if flags.Changed("gap") {
		gap, _ := flags.GetInt("gap")
		d.SetStrikeGap(gap)
	}
	if flags.Changed("max-loss") {
		limit, _ := flags.GetFloat64("max-loss")
		if err := d.SetMaxLossLimit(limit); err != nil {
			return err
		}
	}
	return nil
}

// confirmAndRun drives a confirmable action from a one-shot command. The
// first invocation arms it; the operator then has the gate's window to
// answer the prompt before the second invocation confirms it. With yes set
// the action is confirmed immediately.
func confirmAndRun(ctx context.Context, cmd *cobra.Command, gate *confirm.Gate, yes bool,
	invoke func() (dashboard.Outcome, error)) (dashboard.Outcome, error) {

	outcome, err := invoke()
	if err != nil || outcome != dashboard.Armed {
		return outcome, err
	}
	if !yes {
		fmt.Fprint(cmd.OutOrStdout(), "Confirm? [y/N]: ")
		ok, err := promptYes(ctx, cmd.InOrStdin(), gate.Window())
		if err != nil {
			gate.Cancel()
			return dashboard.Ignored, err
		}
		if !ok {
			gate.Cancel()
			return dashboard.Ignored, errNotConfirmed
		}
	}
	outcome, err = invoke()
	if err == nil && outcome == dashboard.Armed {
		// The window lapsed between the answer and the second invocation.
		gate.Cancel()
		return dashboard.Ignored, errWindowExpired
	}
	return outcome, err
}

// promptYes reads one answer from in, waiting at most window.
func promptYes(ctx context.Context, in io.Reader, window time.Duration) (bool, error) {
	answer := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(in).ReadString('\n')
		answer <- strings.ToLower(strings.TrimSpace(line))
	}()

	timer := time.NewTimer(window)
	defer timer.Stop()
	select {
	case a := <-answer:
		return a == "y" || a == "yes", nil
	case <-timer.C:
		return false, errWindowExpired
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
