package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Zerodha Strategist Configuration

[trading]
# Market data source: "live" (Kite Connect) or "paper" (simulated chains)
mode = "paper"

[strategy]
# Underlying selected when none is given
default_underlying = "NIFTY"
# Extra or overriding presets, relative to this directory
presets_file = "presets.yaml"

# Contract specifications. Entries here override the built-in table.
# [underlyings.NIFTY]
# lot_size = 75
# strike_step = 50

[chain]
# Strikes either side of ATM to fetch
strike_window = 15
# Annual risk-free rate used for implied volatility and Greeks
risk_free_rate = 0.065
# Cached chains older than this are refetched on demand
max_age = "2m"

[server]
host = "127.0.0.1"
port = 8080
request_timeout = "30s"
cors_origins = ["*"]

[cache]
# SQLite database for saved strategies and chain snapshots
db_path = "strategist.db"
# Optional Redis front for chain snapshots, e.g. "localhost:6379"
redis_addr = ""
redis_password = ""
redis_db = 0
ttl = "5m"

[refresh]
enabled = true
# cron spec or descriptor
schedule = "@every 30s"
symbols = ["NIFTY", "BANKNIFTY"]
# Skip refreshes outside 09:15-15:30 IST
market_hours_only = true

[simulation]
# Paper mode volatility surface: base IV plus skew per unit log-moneyness
base_iv = 0.14
skew = 0.8

[simulation.spots]
NIFTY = 24000.0
BANKNIFTY = 51500.0

[logging]
level = "info"
file = "logs/strategist.log"
max_size_mb = 100
max_backups = 5
max_age_days = 30
console = true

[ui]
color_enabled = true
`

const credentialsTemplate = `# Zerodha Strategist Credentials
# Keep this file private (permissions 0600).

[zerodha]
api_key = ""
api_secret = ""
user_id = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}
	return nil
}
