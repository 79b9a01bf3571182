package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	apperrors "botwatch/internal/errors"
)

const watchHelp = `Keys: r refresh  a auto-refresh  s stop bot  m <id> stop monitor  t switch mode
      x run strategy  h historical  i <code> instrument  g <strategy>  e <expiry>
      + / - lots  l <n> lots  gap <n>  loss <n>  o logout  q quit  ? help`

// addWatchCommands adds the live dashboard.
func addWatchCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newWatchCmd(app))
}

func newWatchCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live dashboard with keyboard control",
		Long: `Open the live dashboard. The bot is polled in the background while
auto-refresh is on, and commands are read one per line from stdin.

` + watchHelp + `

Stop bot, stop monitor, switch mode and logout must be entered twice within
the confirmation window.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interval, _ := cmd.Flags().GetDuration("interval"); interval > 0 {
				app.Config.Polling.Interval = interval
			}
			if cmd.Flags().Changed("auto") {
				app.Config.Polling.AutoRefresh, _ = cmd.Flags().GetBool("auto")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := app.newSession(cmd, false)
			defer s.close()
			if s.out.IsJSON() {
				return errors.New("watch does not support --json; use status --json")
			}
			if err := s.open(ctx, cmd); err != nil {
				return err
			}

			w := &watcher{s: s, html: mustString(cmd, "html")}
			return w.run(ctx, cmd.InOrStdin())
		},
	}
	addSelectionFlags(cmd)
	cmd.Flags().Duration("interval", 0, "poll interval (default: polling.interval)")
	cmd.Flags().Bool("auto", true, "start with auto-refresh on")
	cmd.Flags().String("html", "", "write historical replays as HTML charts to this file")
	return cmd
}

func mustString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}

// watcher runs the interactive dashboard loop.
type watcher struct {
	s    *session
	html string

	drawn uint64
}

func (w *watcher) run(ctx context.Context, in io.Reader) error {
	s := w.s
	s.poller.Start(ctx)

	lines := readLines(ctx, in)
	display := time.NewTicker(time.Second)
	defer display.Stop()

	w.draw(true)
	for {
		select {
		case <-ctx.Done():
			s.out.Println()
			s.out.Dim("Interrupted.")
			return nil

		case <-s.Ended():
			w.draw(true)
			s.out.Info("Session ended.")
			return nil

		case line, ok := <-lines:
			if !ok {
				// stdin closed; keep watching until interrupted.
				lines = nil
				continue
			}
			if quit := w.dispatch(ctx, line); quit {
				return nil
			}
			w.draw(true)

		case <-display.C:
			w.draw(false)
		}
	}
}

// stateVersion changes whenever anything shown on the dashboard changes.
func (w *watcher) stateVersion() uint64 {
	d := w.s.dash
	v := d.Strategies.Version() + d.Orders.Version() + d.Positions.Version() +
		d.Charges.Version() + d.Monitoring.Version() + d.ServerStatus.Version() +
		d.LTP.Version() + d.Metrics.Version() + d.Mode.Version()
	return v + w.s.log.Count()
}

// draw renders the dashboard. Terminals are redrawn every tick for the
// confirmation countdown; other writers only when the state changed.
func (w *watcher) draw(force bool) {
	version := w.stateVersion()
	_, _, armed := w.s.gate.Armed()
	if !force && version == w.drawn && !(armed && w.s.out.tty) {
		return
	}
	w.drawn = version

	out := w.s.out
	out.Clear()
	renderDashboard(out, w.s, time.Now())
	out.Println()
	renderRecentLog(out, w.s)
	out.Println()
	out.Dim("%s", watchHelp)
}

// dispatch runs one command line and reports whether to quit.
func (w *watcher) dispatch(ctx context.Context, line string) bool {
	s := w.s
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	key, arg := fields[0], strings.Join(fields[1:], " ")
	logged := s.log.Count()

	var err error
	switch key {
	case "q", "quit", "exit":
		return true
	case "?", "help":
		s.log.Info("%s", strings.Join(strings.Fields(watchHelp), " "))
	case "r":
		err = s.poller.Refresh(ctx)
		if errors.Is(err, apperrors.ErrCycleInFlight) {
			s.log.Info("Refresh already in progress.")
			err = nil
		}
	case "a":
		s.poller.SetAutoRefresh(!s.poller.AutoRefresh())
	case "s":
		_, err = s.ctrl.StopBot(ctx)
	case "m":
		_, err = s.ctrl.StopMonitor(ctx, arg)
	case "t":
		_, err = s.ctrl.SwitchMode(ctx)
	case "o":
		_, err = s.ctrl.Logout(ctx)
	case "x":
		_, err = s.ctrl.RunStrategy(ctx)
	case "h":
		err = w.historical(ctx)
	case "i":
		err = s.dash.SelectInstrument(ctx, strings.ToUpper(arg))
	case "g":
		err = s.dash.SelectStrategy(strings.ToUpper(arg))
	case "e":
		err = s.dash.SelectExpiry(strings.ToUpper(arg))
	case "+":
		s.dash.IncrementLots()
	case "-":
		s.dash.DecrementLots()
	case "l":
		var lots int
		if lots, err = strconv.Atoi(arg); err == nil {
			err = s.dash.SetLots(lots)
		}
	case "gap":
		var gap int
		if gap, err = strconv.Atoi(arg); err == nil {
			s.dash.SetStrikeGap(gap)
		}
	case "loss":
		var limit float64
		if limit, err = strconv.ParseFloat(arg, 64); err == nil {
			err = s.dash.SetMaxLossLimit(limit)
		}
	default:
		s.log.Warning("Unknown command %q. Enter ? for help.", key)
	}

	// Most failures are already in the trade log; surface the rest.
	if err != nil && s.log.Count() == logged {
		if errors.Is(err, apperrors.ErrActionInFlight) {
			s.log.Warning("Action already in progress.")
		} else {
			s.log.Error("%s", apperrors.Message(err))
		}
	}
	return false
}

func (w *watcher) historical(ctx context.Context) error {
	run, err := w.s.ctrl.RunHistorical(ctx)
	if err != nil {
		return err
	}
	a := run.Analysis
	if !a.Insufficient {
		w.s.log.Info("Max profit %.2f, max drawdown %.2f over %d samples.", a.MaxProfit, a.MaxDrawdown, len(run.Result.PnLData))
	}
	if w.html == "" {
		return nil
	}
	if err := writeChart(w.html, run); err != nil {
		return fmt.Errorf("writing chart: %w", err)
	}
	w.s.log.Success("Chart written to %s", w.html)
	return nil
}

// readLines sends each line of in until EOF or ctx is done.
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}
