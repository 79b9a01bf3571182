package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"botwatch/internal/dashboard"
	apperrors "botwatch/internal/errors"
	"botwatch/internal/history"
)

// addHistoryCommands adds the historical replay command.
func addHistoryCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newHistoricalCmd(app))
}

type historicalView struct {
	ExecutionID string           `json:"executionId,omitempty"`
	FinalPnL    float64          `json:"finalPnL"`
	Points      int              `json:"points"`
	Message     string           `json:"message,omitempty"`
	Analysis    history.Analysis `json:"analysis"`
	Chart       string           `json:"chart,omitempty"`
}

func newHistoricalCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "historical",
		Aliases: []string{"replay"},
		Short:   "Replay the selected strategy over historical data",
		Long: `Replay the selected strategy over the bot's historical data and report
the final P&L, the peak profit and the maximum drawdown.

With --html the P&L curve is written as an interactive chart.`,
		Example: `  botwatch historical --instrument BANKNIFTY --strategy ATM_STRADDLE --html replay.html`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := app.newSession(cmd, true)
			defer s.close()
			ctx := cmd.Context()
			if err := s.open(ctx, cmd); err != nil {
				return err
			}

			run, err := s.ctrl.RunHistorical(ctx)
			if err != nil {
				return err
			}

			chart, _ := cmd.Flags().GetString("html")
			if chart != "" {
				if err := writeChart(chart, run); err != nil {
					if !errors.Is(err, apperrors.ErrInsufficientData) {
						return err
					}
					s.log.Warning("Chart not written: %s", err)
					chart = ""
				}
			}

			if s.out.IsJSON() {
				return s.out.JSON(historicalView{
					ExecutionID: run.Result.ExecutionID,
					FinalPnL:    run.Result.FinalPnL,
					Points:      len(run.Result.PnLData),
					Message:     run.Result.Message,
					Analysis:    run.Analysis,
					Chart:       chart,
				})
			}
			renderHistorical(s.out, run)
			if chart != "" {
				s.out.Success("Chart written to %s", chart)
			}
			return nil
		},
	}
	addSelectionFlags(cmd)
	cmd.Flags().String("html", "", "write the P&L curve as an HTML chart to this file")
	return cmd
}

func writeChart(path string, run *dashboard.HistoricalRun) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating chart file: %w", err)
	}
	if err := history.RenderHTML(f, run.Result); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func renderHistorical(out *Output, run *dashboard.HistoricalRun) {
	a := run.Analysis
	out.Bold("Historical replay")
	if msg := serverText(run.Result.Message); msg != "" {
		out.Dim("%s", msg)
	}
	table := NewTable(out, "METRIC", "VALUE")
	table.AddRow("Final P&L", out.PnL(run.Result.FinalPnL))
	table.AddRow("Samples", itoa(len(run.Result.PnLData)))
	if !a.Insufficient {
		table.AddRow("Max profit", out.PnL(a.MaxProfit))
		table.AddRow("Max drawdown", out.PnL(a.MaxDrawdown))
	}
	table.Render()
	if a.Insufficient {
		out.Dim("Not enough data points to draw a trend.")
	}
}
