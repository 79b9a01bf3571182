package cli

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"botwatch/internal/models"
	"botwatch/internal/store"
	"botwatch/pkg/utils"
)

var errNoStore = errors.New("history store is not available")

// addJournalCommands adds the commands that read the local history.
func addJournalCommands(rootCmd *cobra.Command, app *App) {
	offline := map[string]string{"offline": "true"}

	logCmd := newLogCmd(app)
	pnlCmd := newPnLCmd(app)
	actionsCmd := newActionsCmd(app)
	exportCmd := newExportCmd(app)
	for _, c := range []*cobra.Command{logCmd, pnlCmd, actionsCmd, exportCmd} {
		c.Annotations = offline
		addRangeFlags(c)
		rootCmd.AddCommand(c)
	}
}

func addRangeFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("since", 24*time.Hour, "how far back to look")
	cmd.Flags().String("date", "", "a single day (config ui.date_format), overrides --since")
	cmd.Flags().Int("limit", 100, "maximum number of records, 0 for all")
}

// dateRange builds the query range from the range flags.
func (a *App) dateRange(cmd *cobra.Command, now time.Time) (store.DateRange, error) {
	limit, _ := cmd.Flags().GetInt("limit")
	if day, _ := cmd.Flags().GetString("date"); day != "" {
		start, err := time.ParseInLocation(a.Config.UI.DateFormat, day, time.Local)
		if err != nil {
			return store.DateRange{}, fmt.Errorf("parsing --date %q: %w", day, err)
		}
		return store.DateRange{Start: start, End: start.AddDate(0, 0, 1), Limit: limit}, nil
	}
	since, _ := cmd.Flags().GetDuration("since")
	r := store.DateRange{Limit: limit}
	if since > 0 {
		r.Start = now.Add(-since)
	}
	return r, nil
}

func (a *App) journalContext(cmd *cobra.Command) (context.Context, context.CancelFunc, error) {
	if a.Store == nil {
		return nil, nil, errNoStore
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	return ctx, cancel, nil
}

func newLogCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show the recorded trade log",
		Example: `  botwatch log --since 2h
  botwatch log --date 21-Nov-2024 --level error --grep "stop"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel, err := app.journalContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			entries, err := queryLog(ctx, app, cmd)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(entries)
			}
			if len(entries) == 0 {
				output.Info("No log entries in range.")
				return nil
			}
			layout := app.Config.UI.DateFormat + " " + app.Config.UI.TimeFormat
			for i := len(entries) - 1; i >= 0; i-- {
				output.Println(output.LogEntry(entries[i], layout))
			}
			return nil
		},
	}
	cmd.Flags().StringSlice("level", nil, "only these levels (info, success, warning, error)")
	cmd.Flags().String("grep", "", "only entries containing this text")
	return cmd
}

func queryLog(ctx context.Context, app *App, cmd *cobra.Command) ([]models.LogEntry, error) {
	r, err := app.dateRange(cmd, time.Now())
	if err != nil {
		return nil, err
	}
	filter := store.LogFilter{DateRange: r}
	if cmd.Flags().Lookup("level") != nil {
		levels, _ := cmd.Flags().GetStringSlice("level")
		for _, l := range levels {
			filter.Levels = append(filter.Levels, models.LogLevel(strings.ToLower(l)))
		}
		filter.Contains, _ = cmd.Flags().GetString("grep")
	}
	return app.Store.GetLogEntries(ctx, filter)
}

func newPnLCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "pnl",
		Short: "Show recorded P&L snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel, err := app.journalContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			r, err := app.dateRange(cmd, time.Now())
			if err != nil {
				return err
			}
			snaps, err := app.Store.GetPnLSnapshots(ctx, r)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(snaps)
			}
			if len(snaps) == 0 {
				output.Info("No P&L snapshots in range.")
				return nil
			}

			layout := app.Config.UI.DateFormat + " " + app.Config.UI.TimeFormat
			table := NewTable(output, "TIME", "GROSS", "CHARGES", "NET", "BOT")
			for _, s := range snaps {
				table.AddRow(
					s.Timestamp.Local().Format(layout),
					output.PnL(s.GrossPL),
					utils.FormatIndianCurrency(s.TotalCharges),
					output.PnL(s.NetPL),
					output.BotStatus(s.BotStatus),
				)
			}
			table.Render()

			low, high := snaps[0].NetPL, snaps[0].NetPL
			for _, s := range snaps {
				low, high = min(low, s.NetPL), max(high, s.NetPL)
			}
			output.Println()
			output.Printf("Net P&L range: %s to %s\n", output.PnL(low), output.PnL(high))
			if sync := app.Store.GetLastSync(store.SyncPoll); !sync.IsZero() {
				output.Dim("Last successful poll: %s", sync.Local().Format(layout))
			}
			return nil
		},
	}
}

func newActionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Show the audit trail of operator actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel, err := app.journalContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			records, err := queryActions(ctx, app, cmd)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(records)
			}
			if len(records) == 0 {
				output.Info("No actions in range.")
				return nil
			}

			layout := app.Config.UI.DateFormat + " " + app.Config.UI.TimeFormat
			table := NewTable(output, "TIME", "ACTION", "TARGET", "OUTCOME", "MESSAGE")
			for _, r := range records {
				outcome := r.Outcome
				switch r.Outcome {
				case "confirmed":
					outcome = output.Green(outcome)
				case "failed", "denied":
					outcome = output.Red(outcome)
				case "forced":
					outcome = output.Yellow(outcome)
				}
				table.AddRow(r.Timestamp.Local().Format(layout), r.Kind, orDash(r.Target), outcome, serverText(r.Message))
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().String("kind", "", "only this action kind, e.g. stopBot")
	cmd.Flags().String("outcome", "", "only this outcome, e.g. failed")
	return cmd
}

func queryActions(ctx context.Context, app *App, cmd *cobra.Command) ([]models.ActionRecord, error) {
	r, err := app.dateRange(cmd, time.Now())
	if err != nil {
		return nil, err
	}
	filter := store.ActionFilter{DateRange: r}
	if cmd.Flags().Lookup("kind") != nil {
		filter.Kind, _ = cmd.Flags().GetString("kind")
		filter.Outcome, _ = cmd.Flags().GetString("outcome")
	}
	return app.Store.GetActions(ctx, filter)
}

func newExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "export <log|pnl|actions>",
		Short:     "Export recorded history as CSV",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"log", "pnl", "actions"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel, err := app.journalContext(cmd)
			if err != nil {
				return err
			}
			defer cancel()

			rows, err := exportRows(ctx, app, cmd, args[0])
			if err != nil {
				return err
			}

			outFile, _ := cmd.Flags().GetString("output")
			var w io.Writer = cmd.OutOrStdout()
			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return fmt.Errorf("creating export file: %w", err)
				}
				defer f.Close()
				w = f
			}

			cw := csv.NewWriter(w)
			if err := cw.WriteAll(rows); err != nil {
				return fmt.Errorf("writing csv: %w", err)
			}
			if outFile != "" {
				output.Success("Exported %d records to %s", len(rows)-1, outFile)
			}
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "write to this file instead of stdout")
	return cmd
}

// exportRows returns the header and records of one history table.
func exportRows(ctx context.Context, app *App, cmd *cobra.Command, what string) ([][]string, error) {
	stamp := func(t time.Time) string { return t.Format(time.RFC3339) }
	money := func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

	switch what {
	case "log":
		entries, err := queryLog(ctx, app, cmd)
		if err != nil {
			return nil, err
		}
		rows := [][]string{{"timestamp", "level", "message"}}
		for _, e := range entries {
			rows = append(rows, []string{stamp(e.Timestamp), string(e.Level), e.Message})
		}
		return rows, nil
	case "pnl":
		r, err := app.dateRange(cmd, time.Now())
		if err != nil {
			return nil, err
		}
		snaps, err := app.Store.GetPnLSnapshots(ctx, r)
		if err != nil {
			return nil, err
		}
		rows := [][]string{{"timestamp", "gross_pl", "total_charges", "net_pl", "bot_status"}}
		for _, s := range snaps {
			rows = append(rows, []string{stamp(s.Timestamp), money(s.GrossPL), money(s.TotalCharges), money(s.NetPL), string(s.BotStatus)})
		}
		return rows, nil
	case "actions":
		records, err := queryActions(ctx, app, cmd)
		if err != nil {
			return nil, err
		}
		rows := [][]string{{"timestamp", "kind", "target", "outcome", "message"}}
		for _, r := range records {
			rows = append(rows, []string{stamp(r.Timestamp), r.Kind, r.Target, r.Outcome, r.Message})
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("unknown history %q", what)
	}
}
