// Package config provides configuration management for the strategist.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	apperrors "zerodha-strategist/internal/errors"
	"zerodha-strategist/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Trading     TradingConfig                `mapstructure:"trading"`
	Strategy    StrategyConfig               `mapstructure:"strategy"`
	Underlyings map[string]models.Underlying `mapstructure:"underlyings"`
	Chain       ChainConfig                  `mapstructure:"chain"`
	Server      ServerConfig                 `mapstructure:"server"`
	Cache       CacheConfig                  `mapstructure:"cache"`
	Refresh     RefreshConfig                `mapstructure:"refresh"`
	Simulation  SimulationConfig             `mapstructure:"simulation"`
	Logging     LoggingConfig                `mapstructure:"logging"`
	UI          UIConfig                     `mapstructure:"ui"`
	Credentials Credentials                  `mapstructure:"-"` // Loaded separately

	// Dir is the directory the files were read from.
	Dir string `mapstructure:"-"`
}

// TradingConfig selects where market data comes from.
type TradingConfig struct {
	Mode string `mapstructure:"mode"` // "live", "paper"
}

// StrategyConfig holds strategy builder defaults.
type StrategyConfig struct {
	DefaultUnderlying string `mapstructure:"default_underlying"`
	PresetsFile       string `mapstructure:"presets_file"`
}

// ChainConfig controls option chain fetching.
type ChainConfig struct {
	StrikeWindow int           `mapstructure:"strike_window"`
	RiskFreeRate float64       `mapstructure:"risk_free_rate"`
	MaxAge       time.Duration `mapstructure:"max_age"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// CacheConfig holds persistence settings.
type CacheConfig struct {
	DBPath        string        `mapstructure:"db_path"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// RefreshConfig controls the background chain refresh job.
type RefreshConfig struct {
	Enabled         bool     `mapstructure:"enabled"`
	Schedule        string   `mapstructure:"schedule"`
	Symbols         []string `mapstructure:"symbols"`
	MarketHoursOnly bool     `mapstructure:"market_hours_only"`
}

// SimulationConfig parameterises the paper chain source.
type SimulationConfig struct {
	BaseIV float64            `mapstructure:"base_iv"`
	Skew   float64            `mapstructure:"skew"`
	Spots  map[string]float64 `mapstructure:"spots"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Console    bool   `mapstructure:"console"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool `mapstructure:"color_enabled"`
}

// Credentials holds API credentials.
type Credentials struct {
	Zerodha ZerodhaCredentials `mapstructure:"zerodha"`
}

// ZerodhaCredentials holds Zerodha API credentials.
type ZerodhaCredentials struct {
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	UserID    string `mapstructure:"user_id"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/zerodha-strategist"
	}
	return filepath.Join(home, ".config", "zerodha-strategist")
}

// Load loads configuration from the specified directory, creating template
// files for any that are missing. If configDir is empty, uses the default
// config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// .env in the working directory, then in the config directory. Neither
	// overrides variables already set.
	_ = godotenv.Load()
	_ = godotenv.Load(filepath.Join(configDir, ".env"))

	cfg := &Config{Dir: configDir}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}
	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("trading.mode", "paper")
	v.SetDefault("strategy.default_underlying", "NIFTY")
	v.SetDefault("strategy.presets_file", "presets.yaml")
	v.SetDefault("chain.strike_window", 15)
	v.SetDefault("chain.risk_free_rate", 0.065)
	v.SetDefault("chain.max_age", "2m")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("cache.db_path", "strategist.db")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("refresh.enabled", true)
	v.SetDefault("refresh.schedule", "@every 30s")
	v.SetDefault("refresh.symbols", []string{"NIFTY", "BANKNIFTY"})
	v.SetDefault("refresh.market_hours_only", true)
	v.SetDefault("simulation.base_iv", 0.14)
	v.SetDefault("simulation.skew", 0.8)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "logs/strategist.log")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("logging.console", true)
	v.SetDefault("ui.color_enabled", true)
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}
	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}
	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ZERODHA_API_KEY"); v != "" {
		cfg.Credentials.Zerodha.APIKey = v
	}
	if v := os.Getenv("ZERODHA_API_SECRET"); v != "" {
		cfg.Credentials.Zerodha.APISecret = v
	}
	if v := os.Getenv("ZERODHA_USER_ID"); v != "" {
		cfg.Credentials.Zerodha.UserID = v
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("STRATEGIST_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("STRATEGIST_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// resolvePaths anchors relative file settings at the config directory.
func (c *Config) resolvePaths() {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(c.Dir, p)
	}
	c.Cache.DBPath = abs(c.Cache.DBPath)
	c.Logging.File = abs(c.Logging.File)
	c.Strategy.PresetsFile = abs(c.Strategy.PresetsFile)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return apperrors.Wrapf(apperrors.ErrConfigInvalid, format, args...)
	}

	if c.Trading.Mode != "" && c.Trading.Mode != "live" && c.Trading.Mode != "paper" {
		return invalid("invalid trading mode: %s (must be 'live' or 'paper')", c.Trading.Mode)
	}

	for name, u := range c.Underlyings {
		if u.LotSize < 0 {
			return invalid("underlyings.%s.lot_size must be positive", name)
		}
		if u.StrikeStep < 0 {
			return invalid("underlyings.%s.strike_step must be positive", name)
		}
		if _, known := models.DefaultUnderlyings[strings.ToUpper(name)]; !known && (u.LotSize == 0 || u.StrikeStep == 0) {
			return invalid("underlyings.%s needs lot_size and strike_step", name)
		}
	}

	if c.Chain.StrikeWindow < 0 {
		return invalid("chain.strike_window must be non-negative")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return invalid("server.port %d out of range", c.Server.Port)
	}
	if c.Simulation.BaseIV < 0 || c.Simulation.Skew < 0 {
		return invalid("simulation.base_iv and simulation.skew must be non-negative")
	}

	if c.Refresh.Enabled {
		if _, err := cron.ParseStandard(c.Refresh.Schedule); err != nil {
			return invalid("refresh.schedule %q: %v", c.Refresh.Schedule, err)
		}
	}
	return nil
}

// IsPaperMode returns true if market data is simulated.
func (c *Config) IsPaperMode() bool {
	return c.Trading.Mode != "live"
}

// HasCredentials reports whether Kite API credentials are configured.
func (c *Config) HasCredentials() bool {
	return c.Credentials.Zerodha.APIKey != "" && c.Credentials.Zerodha.APISecret != ""
}

// SessionPath is where the Kite access token is persisted.
func (c *Config) SessionPath() string {
	return filepath.Join(c.Dir, "session.json")
}
