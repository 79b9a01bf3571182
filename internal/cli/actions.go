package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"botwatch/internal/dashboard"
	"botwatch/pkg/utils"
)

// actionResult is the JSON form of a confirmable action's outcome.
type actionResult struct {
	Action  string `json:"action"`
	Target  string `json:"target,omitempty"`
	Outcome string `json:"outcome"`
	Message string `json:"message,omitempty"`
}

// addActionCommands adds the commands that change the remote bot.
func addActionCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newStopBotCmd(app))
	rootCmd.AddCommand(newStopMonitorCmd(app))
	rootCmd.AddCommand(newModeCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newLogoutCmd(app))
}

// runConfirmable opens a session and drives one confirmable action.
func runConfirmable(app *App, cmd *cobra.Command, name, target string,
	action func(ctx context.Context, s *session) (dashboard.Outcome, error)) error {

	s := app.newSession(cmd, true)
	defer s.close()
	ctx := cmd.Context()
	if err := s.open(ctx, cmd); err != nil {
		return err
	}

	yes, err := confirmFlag(cmd, s.out)
	if err != nil {
		return err
	}
	outcome, err := confirmAndRun(ctx, cmd, s.gate, yes, func() (dashboard.Outcome, error) {
		return action(ctx, s)
	})

	if s.out.IsJSON() {
		res := actionResult{Action: name, Target: target, Outcome: outcome.String()}
		if latest, ok := s.log.Latest(); ok {
			res.Message = latest.Message
		}
		if jerr := s.out.JSON(res); jerr != nil {
			return jerr
		}
	}
	return err
}

// confirmFlag reads --yes. JSON output cannot carry a prompt, so it
// requires --yes.
func confirmFlag(cmd *cobra.Command, out *Output) (bool, error) {
	yes, _ := cmd.Flags().GetBool("yes")
	if out.IsJSON() && !yes {
		return false, errors.New("--json needs --yes for actions that ask for confirmation")
	}
	return yes, nil
}

func addYesFlag(cmd *cobra.Command) {
	cmd.Flags().BoolP("yes", "y", false, "confirm without prompting")
}

func newStopBotCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop-bot",
		Short: "Stop all running strategies",
		Long: `Ask the bot to stop every running strategy.

Open positions are not closed. The bot must be running, or halted at the
max daily loss.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfirmable(app, cmd, "stopBot", "", func(ctx context.Context, s *session) (dashboard.Outcome, error) {
				return s.ctrl.StopBot(ctx)
			})
		},
	}
	addYesFlag(cmd)
	return cmd
}

func newStopMonitorCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop-monitor <execution-id>",
		Short: "Stop the server-side monitor of one strategy execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return runConfirmable(app, cmd, "stopMonitor", id, func(ctx context.Context, s *session) (dashboard.Outcome, error) {
				return s.ctrl.StopMonitor(ctx, id)
			})
		},
	}
	addYesFlag(cmd)
	return cmd
}

func newModeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mode",
		Short: "Show the bot's trading mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := app.newSession(cmd, false)
			defer s.close()
			if err := s.dash.LoadCatalog(cmd.Context()); err != nil {
				return err
			}

			mode := s.dash.Mode.Get()
			if s.out.IsJSON() {
				return s.out.JSON(mode)
			}
			if mode == nil {
				s.out.Warning("Trading mode unknown")
				return nil
			}
			label := utils.FormatEnum(string(mode.Mode))
			if mode.PaperTradingEnabled {
				s.out.Success("%s", label)
			} else {
				s.out.Error("%s", label)
			}
			if mode.Description != "" {
				s.out.Dim("%s", serverText(mode.Description))
			}
			return nil
		},
	}

	switchCmd := &cobra.Command{
		Use:   "switch",
		Short: "Switch between paper and live trading",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfirmable(app, cmd, "switchMode", "", func(ctx context.Context, s *session) (dashboard.Outcome, error) {
				return s.ctrl.SwitchMode(ctx)
			})
		},
	}
	addYesFlag(switchCmd)
	cmd.AddCommand(switchCmd)
	return cmd
}

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the selected strategy",
		Long: `Execute a strategy on the bot.

The selection defaults to the configured strategy and instrument and can be
changed with flags. Open positions are not closed first. Execution is
refused once the max daily loss has been reached.`,
		Example: `  botwatch run --instrument NIFTY --strategy OTM_STRANGLE --expiry WEEKLY --lots 2 --gap 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := app.newSession(cmd, true)
			defer s.close()
			ctx := cmd.Context()
			if err := s.open(ctx, cmd); err != nil {
				return err
			}

			result, err := s.ctrl.RunStrategy(ctx)
			if err != nil {
				return err
			}
			if s.out.IsJSON() {
				return s.out.JSON(result)
			}
			if result != nil && result.ExecutionID != "" {
				s.out.Printf("Execution %s %s\n", s.out.BoldText(result.ExecutionID), utils.FormatEnum(result.Status))
			}
			return nil
		},
	}
	addSelectionFlags(cmd)
	return cmd
}

func newLogoutCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "End the bot session",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := app.newSession(cmd, true)
			defer s.close()
			ctx := cmd.Context()

			yes, err := confirmFlag(cmd, s.out)
			if err != nil {
				return err
			}
			outcome, err := confirmAndRun(ctx, cmd, s.gate, yes, func() (dashboard.Outcome, error) {
				return s.ctrl.Logout(ctx)
			})
			if err != nil {
				return err
			}
			if s.out.IsJSON() {
				return s.out.JSON(actionResult{Action: "logout", Outcome: outcome.String()})
			}
			if outcome == dashboard.Done && !app.Paper {
				s.out.Dim("Remove service.token from %s to forget the session.", fmt.Sprintf("%s/config.toml", app.ConfigDir))
			}
			return nil
		},
	}
	addYesFlag(cmd)
	return cmd
}
