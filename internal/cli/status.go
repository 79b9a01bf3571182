package cli

import (
	"time"

	"github.com/spf13/cobra"

	"botwatch/pkg/utils"
)

// addSessionCommands adds the read-only session commands.
func addSessionCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newCatalogCmd(app))
}

func newStatusCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show bot status, P&L, strategies, positions and orders",
		Long: `Run one poll cycle against the bot service and print the dashboard.

Gross P&L counts only finished strategy executions; net P&L subtracts the
day's charges.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := app.newSession(cmd, false)
			defer s.close()
			if err := s.open(cmd.Context(), cmd); err != nil {
				return err
			}

			out := s.out
			if out.IsJSON() {
				return out.JSON(newStatusView(s))
			}

			renderDashboard(out, s, time.Now())
			if charges, _ := cmd.Flags().GetBool("charges"); charges {
				out.Println()
				out.Bold("Charges")
				renderCharges(out, s.dash.Metrics.Get().Charges)
			}
			if showLog, _ := cmd.Flags().GetBool("log"); showLog {
				out.Println()
				renderRecentLog(out, s)
			}
			return nil
		},
	}
	addSelectionFlags(cmd)
	cmd.Flags().Bool("charges", false, "show the charges breakdown")
	cmd.Flags().Bool("log", false, "show the session log")
	return cmd
}

func newCatalogCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List strategies, instruments and expiries offered by the bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := app.newSession(cmd, false)
			defer s.close()
			if err := s.dash.LoadCatalog(cmd.Context()); err != nil {
				return err
			}

			cat := s.dash.Catalog()
			out := s.out
			if out.IsJSON() {
				return out.JSON(cat)
			}

			out.Bold("Strategies")
			strategies := NewTable(out, "NAME", "DESCRIPTION", "AVAILABLE")
			for _, st := range cat.StrategyTypes {
				available := out.Green("yes")
				if !st.Implemented {
					available = out.DimText("coming soon")
				}
				strategies.AddRow(utils.FormatEnum(st.Name), serverText(st.Description), available)
			}
			strategies.Render()
			out.Println()

			out.Bold("Instruments")
			instruments := NewTable(out, "CODE", "NAME", "LOT SIZE", "STRIKE STEP")
			for _, in := range cat.Instruments {
				instruments.AddRow(in.Code, in.Name, itoa(in.LotSize), itoa(in.StrikeInterval))
			}
			instruments.Render()
			out.Println()

			out.Printf("Expiries: %s\n", joinOrDash(cat.Expiries))
			return nil
		},
	}
}
