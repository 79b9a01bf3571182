// Package config provides configuration management for botwatch.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "botwatch/internal/errors"
	"botwatch/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Service      ServiceConfig      `mapstructure:"service"`
	Polling      PollingConfig      `mapstructure:"polling"`
	Confirmation ConfirmationConfig `mapstructure:"confirmation"`
	Risk         RiskConfig         `mapstructure:"risk"`
	Strategy     StrategyConfig     `mapstructure:"strategy"`
	Security     SecurityConfig     `mapstructure:"security"`
	UI           UIConfig           `mapstructure:"ui"`
	Logging      logging.LogConfig  `mapstructure:"logging"`
	Store        StoreConfig        `mapstructure:"store"`
}

// ServiceConfig describes the remote trading-bot service.
type ServiceConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Token     string        `mapstructure:"token"`
	UserID    string        `mapstructure:"user_id"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst int           `mapstructure:"rate_burst"`
}

// PollingConfig holds poll scheduler settings.
type PollingConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	AutoRefresh bool          `mapstructure:"auto_refresh"`
}

// ConfirmationConfig holds the confirmation gate window.
type ConfirmationConfig struct {
	Window time.Duration `mapstructure:"window"`
}

// SL/target modes.
const (
	SLTargetPoints     = "points"
	SLTargetPercentage = "percentage"
)

// RiskConfig holds the per-run risk parameters sent with every execution.
type RiskConfig struct {
	MaxLossLimit       float64 `mapstructure:"max_loss_limit"`
	SLTargetMode       string  `mapstructure:"sl_target_mode"` // points, percentage
	StopLossPoints     float64 `mapstructure:"stop_loss_points"`
	TargetPoints       float64 `mapstructure:"target_points"`
	StopLossPercent    float64 `mapstructure:"stop_loss_percent"`
	TargetDecayPercent float64 `mapstructure:"target_decay_percent"`
}

// StrategyConfig holds the default strategy selection.
type StrategyConfig struct {
	DefaultInstrument string `mapstructure:"default_instrument"`
	DefaultStrategy   string `mapstructure:"default_strategy"`
	Lots              int    `mapstructure:"lots"`
	StrikeGap         int    `mapstructure:"strike_gap"` // 0 = instrument strike interval
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	ReadOnlyMode bool `mapstructure:"read_only_mode"`
	AuditEnabled bool `mapstructure:"audit_enabled"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	DateFormat   string `mapstructure:"date_format"`
	TimeFormat   string `mapstructure:"time_format"`
}

// StoreConfig holds local persistence settings.
type StoreConfig struct {
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/botwatch"
	}
	return filepath.Join(home, ".config", "botwatch")
}

// setDefaults registers every key with its default value.
func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("service.base_url", "http://localhost:8080")
	v.SetDefault("service.token", "")
	v.SetDefault("service.user_id", "")
	v.SetDefault("service.timeout", "15s")
	v.SetDefault("service.rate_limit", 5.0)
	v.SetDefault("service.rate_burst", 10)

	v.SetDefault("polling.interval", "10s")
	v.SetDefault("polling.auto_refresh", true)

	v.SetDefault("confirmation.window", "5s")

	v.SetDefault("risk.max_loss_limit", 3000.0)
	v.SetDefault("risk.sl_target_mode", SLTargetPoints)
	v.SetDefault("risk.stop_loss_points", 10.0)
	v.SetDefault("risk.target_points", 15.0)
	v.SetDefault("risk.stop_loss_percent", 30.0)
	v.SetDefault("risk.target_decay_percent", 50.0)

	v.SetDefault("strategy.default_instrument", "")
	v.SetDefault("strategy.default_strategy", "")
	v.SetDefault("strategy.lots", 1)
	v.SetDefault("strategy.strike_gap", 0)

	v.SetDefault("security.read_only_mode", false)
	v.SetDefault("security.audit_enabled", true)

	v.SetDefault("ui.color_enabled", true)
	v.SetDefault("ui.date_format", "02-Jan-2006")
	v.SetDefault("ui.time_format", "15:04:05")

	logDefaults := logging.DefaultLogConfig()
	v.SetDefault("logging.level", logDefaults.Level)
	v.SetDefault("logging.console", logDefaults.Console)
	v.SetDefault("logging.file", logDefaults.File)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "botwatch.log"))
	v.SetDefault("logging.max_size", logDefaults.MaxSize)
	v.SetDefault("logging.max_backups", logDefaults.MaxBackups)
	v.SetDefault("logging.max_age", logDefaults.MaxAge)

	v.SetDefault("store.path", filepath.Join(configDir, "botwatch.db"))
	v.SetDefault("store.retention_days", 30)
}

// Default returns the configuration with every default applied.
func Default(configDir string) *Config {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	v := viper.New()
	setDefaults(v, configDir)
	cfg := &Config{}
	// Defaults alone always decode.
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing
// config.toml is created from the template and loading continues with it.
func Load(configDir string) (*Config, error) {
	cfg, _, err := LoadWithViper(configDir)
	return cfg, err
}

// LoadWithViper loads configuration and also returns the viper instance
// holding the merged settings, for display.
func LoadWithViper(configDir string) (*Config, *viper.Viper, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	loadDotEnv(configDir)

	v := viper.New()
	setDefaults(v, configDir)
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("loading config.toml: %w", err)
		}
		if _, err := CreateTemplate(configDir); err != nil {
			return nil, nil, err
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("loading config.toml: %w", err)
		}
	}

	applyEnvOverrides(v)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, v, nil
}

// loadDotEnv loads .env from the working directory and the config
// directory. Variables already set in the environment win.
func loadDotEnv(configDir string) {
	for _, path := range []string{".env", filepath.Join(configDir, ".env")} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}

// envOverrides maps environment variables to config keys.
var envOverrides = map[string]string{
	"BOTWATCH_BASE_URL":    "service.base_url",
	"BOTWATCH_TOKEN":       "service.token",
	"BOTWATCH_USER_ID":     "service.user_id",
	"BOTWATCH_MAX_LOSS":    "risk.max_loss_limit",
	"BOTWATCH_READ_ONLY":   "security.read_only_mode",
	"BOTWATCH_LOG_LEVEL":   "logging.level",
	"BOTWATCH_STORE_PATH":  "store.path",
	"BOTWATCH_POLL_PERIOD": "polling.interval",
}

func applyEnvOverrides(v *viper.Viper) {
	for env, key := range envOverrides {
		val, ok := os.LookupEnv(env)
		if !ok || val == "" {
			continue
		}
		switch key {
		case "risk.max_loss_limit":
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				v.Set(key, f)
			}
		case "security.read_only_mode":
			if b, err := strconv.ParseBool(val); err == nil {
				v.Set(key, b)
			}
		default:
			v.Set(key, val)
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Service.BaseURL == "" {
		return invalid("service.base_url", c.Service.BaseURL, "must not be empty")
	}
	if !strings.HasPrefix(c.Service.BaseURL, "http://") && !strings.HasPrefix(c.Service.BaseURL, "https://") {
		return invalid("service.base_url", c.Service.BaseURL, "must be an http(s) URL")
	}
	if c.Service.Timeout <= 0 {
		return invalid("service.timeout", c.Service.Timeout, "must be positive")
	}
	if c.Service.RateLimit < 0 {
		return invalid("service.rate_limit", c.Service.RateLimit, "must be non-negative")
	}
	if c.Polling.Interval < time.Second {
		return invalid("polling.interval", c.Polling.Interval, "must be at least 1s")
	}
	if c.Confirmation.Window <= 0 {
		return invalid("confirmation.window", c.Confirmation.Window, "must be positive")
	}

	if c.Risk.MaxLossLimit <= 0 {
		return invalid("risk.max_loss_limit", c.Risk.MaxLossLimit, "must be positive")
	}
	switch c.Risk.SLTargetMode {
	case SLTargetPoints:
		if c.Risk.StopLossPoints <= 0 || c.Risk.TargetPoints <= 0 {
			return invalid("risk.stop_loss_points", c.Risk.StopLossPoints, "stop-loss and target points must be positive")
		}
	case SLTargetPercentage:
		if c.Risk.StopLossPercent <= 0 || c.Risk.TargetDecayPercent <= 0 {
			return invalid("risk.stop_loss_percent", c.Risk.StopLossPercent, "stop-loss and target decay percent must be positive")
		}
		if c.Risk.TargetDecayPercent > 100 {
			return invalid("risk.target_decay_percent", c.Risk.TargetDecayPercent, "must not exceed 100")
		}
	default:
		return invalid("risk.sl_target_mode", c.Risk.SLTargetMode, "must be 'points' or 'percentage'")
	}

	if c.Strategy.Lots < 1 {
		return invalid("strategy.lots", c.Strategy.Lots, "must be at least 1")
	}
	if c.Strategy.StrikeGap < 0 {
		return invalid("strategy.strike_gap", c.Strategy.StrikeGap, "must be non-negative")
	}
	if c.Store.RetentionDays < 0 {
		return invalid("store.retention_days", c.Store.RetentionDays, "must be non-negative")
	}

	return nil
}

func invalid(field string, value interface{}, msg string) error {
	return fmt.Errorf("%w: %w", apperrors.ErrConfigInvalid, apperrors.NewValidationError(field, value, msg))
}

// UsesPercentage reports whether stop-loss and target are percentages.
func (c *Config) UsesPercentage() bool {
	return c.Risk.SLTargetMode == SLTargetPercentage
}

// HasSession reports whether a session token is configured.
func (c *Config) HasSession() bool {
	return c.Service.Token != ""
}
