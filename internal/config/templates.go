package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# botwatch configuration

[service]
# Base URL of the trading-bot service (the client appends /api)
base_url = "http://localhost:8080"
# Session token and user id. Prefer BOTWATCH_TOKEN / BOTWATCH_USER_ID or a
# .env file over storing them here.
token = ""
user_id = ""
# Per-request timeout
timeout = "15s"
# Client-side request rate (requests per second, 0 = unlimited) and burst
rate_limit = 5.0
rate_burst = 10

[polling]
# Interval between background poll cycles
interval = "10s"
# Start polling automatically when the dashboard opens
auto_refresh = true

[confirmation]
# Window for the second click on destructive actions
window = "5s"

[risk]
# Maximum daily loss in INR; the bot is reported as MAX_LOSS_REACHED beyond it
max_loss_limit = 3000.0
# Stop-loss / target mode: "points" or "percentage"
sl_target_mode = "points"
stop_loss_points = 10.0
target_points = 15.0
stop_loss_percent = 30.0
target_decay_percent = 50.0

[strategy]
# Defaults for the run command; empty means the first one the service offers
default_instrument = ""
default_strategy = ""
lots = 1
# Strangle distance in points; 0 uses the instrument's strike interval
strike_gap = 0

[security]
# Enable read-only mode (blocks all bot control operations)
read_only_mode = false
# Record every control action in the local audit table
audit_enabled = true

[ui]
# Enable colored output
color_enabled = true
# Date format
date_format = "02-Jan-2006"
# Time format
time_format = "15:04:05"

[logging]
level = "info"
console = false
file = true

[store]
# Days of trade log and P&L history to keep
retention_days = 30
`

// CreateTemplate writes config.toml into configDir unless it exists and
// returns its path.
func CreateTemplate(configDir string) (string, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	// The file may come to hold a session token.
	if err := os.WriteFile(path, []byte(configTemplate), 0600); err != nil {
		return "", fmt.Errorf("writing config template: %w", err)
	}

	return path, nil
}
