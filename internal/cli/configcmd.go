package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"botwatch/internal/config"
	apperrors "botwatch/internal/errors"
	"botwatch/internal/security"
)

// addConfigCommands adds configuration commands.
func addConfigCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "Show, locate, create and validate the botwatch configuration.",
	}

	cmd.AddCommand(newConfigShowCmd(app))
	cmd.AddCommand(newConfigPathCmd(app))
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigValidateCmd())

	rootCmd.AddCommand(cmd)
}

func newConfigShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long:  "Show the merged configuration from defaults, config.toml, .env and environment. Credentials are masked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			settings := security.MaskSettings(app.Viper.AllSettings())
			if output.IsJSON() {
				return output.JSON(settings)
			}

			table := NewTable(output, "KEY", "VALUE")
			for _, kv := range security.FlattenSettings(settings) {
				table.AddRow(fmt.Sprint(kv[0]), fmt.Sprint(kv[1]))
			}
			table.Render()
			if used := app.Viper.ConfigFileUsed(); used != "" {
				output.Println()
				output.Dim("Loaded from %s", used)
			}
			return nil
		},
	}
}

func newConfigPathCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := filepath.Join(app.ConfigDir, "config.toml")
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"config_dir":  app.ConfigDir,
					"config_file": path,
					"store":       app.Config.Store.Path,
					"log_file":    app.Config.Logging.FilePath,
				})
			}
			output.Println(path)
			return nil
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "init",
		Short:       "Create config.toml from the template",
		Annotations: map[string]string{"setup": "self"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dir := configDir(cmd)
			path := filepath.Join(dir, "config.toml")
			_, statErr := os.Stat(path)
			existed := statErr == nil

			if _, err := config.CreateTemplate(dir); err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"path": path, "created": !existed})
			}
			if existed {
				output.Info("Config already exists at %s", path)
				return nil
			}
			output.Success("Created %s", path)
			output.Dim("Set service.base_url and BOTWATCH_TOKEN before connecting.")
			return nil
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Validate the configuration",
		Annotations: map[string]string{"setup": "self"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg, _, err := config.LoadWithViper(configDir(cmd))
			if err != nil {
				var verr *apperrors.ValidationError
				if errors.As(err, &verr) && !output.IsJSON() {
					output.Error("%s: %s (got %v)", verr.Field, verr.Message, verr.Value)
				}
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{"valid": true, "session": cfg.HasSession()})
			}
			output.Success("Configuration is valid")
			if !cfg.HasSession() {
				output.Warning("No session token configured")
			}
			if cfg.Security.ReadOnlyMode {
				output.Info("Read-only mode is on")
			}
			return nil
		},
	}
}
