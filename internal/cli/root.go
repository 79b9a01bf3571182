// Package cli provides the command-line interface for botwatch.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"botwatch/internal/broker"
	"botwatch/internal/config"
	"botwatch/internal/logging"
	"botwatch/internal/models"
	"botwatch/internal/store"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2024-11-21"
)

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	Viper     *viper.Viper
	ConfigDir string
	Logger    zerolog.Logger
	Service   broker.TradingService
	Store     store.DataStore
	Paper     bool
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(newApp())
}

func newApp() *App {
	return &App{Logger: zerolog.Nop()}
}

func newRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "botwatch",
		Short: "Monitor and control a remote options-trading bot",
		Long: `botwatch monitors and controls a remote automated options-trading bot.

It polls the bot service for strategies, orders, positions and charges,
derives gross and net P&L, enforces the max daily loss display, and gates
destructive actions (stop bot, stop monitor, switch mode, logout) behind a
short confirmation window.

Use 'botwatch watch' for the live dashboard, or '--paper' to try it against
an in-memory simulated service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipSetup(cmd) {
				return nil
			}
			return app.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/botwatch)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().Bool("no-color", false, "disable colored output")
	rootCmd.PersistentFlags().Bool("paper", false, "use the in-memory paper service instead of the remote bot")
	rootCmd.PersistentFlags().Bool("read-only", false, "deny every operation that changes the remote bot")

	rootCmd.AddCommand(newVersionCmd())
	addConfigCommands(rootCmd, app)
	addSessionCommands(rootCmd, app)
	addActionCommands(rootCmd, app)
	addHistoryCommands(rootCmd, app)
	addJournalCommands(rootCmd, app)
	addWatchCommands(rootCmd, app)

	return rootCmd
}

// Execute runs the root command with ctx and releases what it opened.
func Execute(ctx context.Context) error {
	app := newApp()
	err := newRootCmd(app).ExecuteContext(ctx)
	if cerr := app.close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// skipSetup reports whether cmd runs without configuration.
func skipSetup(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "version", "help", "completion":
		return true
	}
	return cmd.Annotations["setup"] == "self"
}

// setup loads configuration and opens the logger, the store and the
// trading service.
func (a *App) setup(cmd *cobra.Command) error {
	dir := configDir(cmd)
	cfg, v, err := config.LoadWithViper(dir)
	if err != nil {
		return err
	}
	if readOnly, _ := cmd.Flags().GetBool("read-only"); readOnly {
		cfg.Security.ReadOnlyMode = true
	}
	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		cfg.Logging.Level = "debug"
		cfg.Logging.Console = true
	}
	a.Config, a.Viper, a.ConfigDir = cfg, v, dir
	if !cfg.UI.ColorEnabled {
		_ = cmd.Flags().Set("no-color", "true")
	}
	a.Logger = logging.NewLoggerWithConfig(cfg.Logging)

	if cmd.Parent() != nil && cmd.Parent().Name() == "config" {
		// config subcommands only need the configuration.
		return nil
	}

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to initialize store, history will not be kept")
	} else {
		a.Store = st
		a.pruneStore(cmd.Context())
	}

	a.Paper, _ = cmd.Flags().GetBool("paper")
	if a.Paper {
		a.Service = broker.NewPaperService(broker.PaperConfig{
			UserID:   cfg.Service.UserID,
			UserName: "Paper Trader",
		})
		a.Logger.Debug().Msg("Paper service initialized")
		return nil
	}

	if !cfg.HasSession() && needsSession(cmd) {
		return fmt.Errorf("no session token configured: set service.token in %s or BOTWATCH_TOKEN, or use --paper",
			dir)
	}
	a.Service = broker.NewClient(broker.ClientConfig{
		BaseURL:   apiRoot(cfg.Service.BaseURL),
		Token:     cfg.Service.Token,
		UserID:    cfg.Service.UserID,
		Timeout:   cfg.Service.Timeout,
		RateLimit: cfg.Service.RateLimit,
		RateBurst: cfg.Service.RateBurst,
		Logger:    a.Logger,
	})
	a.Logger.Debug().Str("base_url", cfg.Service.BaseURL).Msg("Trading service client initialized")
	return nil
}

// configDir returns the --config directory or the default one.
func configDir(cmd *cobra.Command) string {
	dir, _ := cmd.Flags().GetString("config")
	if dir == "" {
		dir = config.DefaultConfigDir()
	}
	return dir
}

// needsSession reports whether cmd talks to the trading service.
func needsSession(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["offline"] == "true" {
			return false
		}
	}
	return true
}

func (a *App) pruneStore(ctx context.Context) {
	days := a.Config.Store.RetentionDays
	if days <= 0 || a.Store == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	n, err := a.Store.Prune(ctx, time.Now().AddDate(0, 0, -days))
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to prune store")
		return
	}
	if n > 0 {
		a.Logger.Debug().Int64("rows", n).Int("retention_days", days).Msg("Pruned old history")
	}
}

func (a *App) close() error {
	if a.Store == nil {
		return nil
	}
	err := a.Store.Close()
	a.Store = nil
	return err
}

// apiRoot appends the /api prefix the bot service mounts its routes under.
func apiRoot(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/api") {
		return base
	}
	return base + "/api"
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				_ = output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
				return
			}
			output.Printf("botwatch v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
		},
	}
}

// auditRecorder drops action records when auditing is disabled.
type auditRecorder struct {
	store.DataStore
	enabled bool
}

func (r auditRecorder) SaveAction(ctx context.Context, rec models.ActionRecord) error {
	if !r.enabled {
		return nil
	}
	return r.DataStore.SaveAction(ctx, rec)
}
