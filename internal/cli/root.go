// Package cli provides the command-line interface for the strategy builder.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"zerodha-strategist/internal/broker"
	"zerodha-strategist/internal/chains"
	"zerodha-strategist/internal/config"
	"zerodha-strategist/internal/logging"
	"zerodha-strategist/internal/metrics"
	"zerodha-strategist/internal/resilience"
	"zerodha-strategist/internal/security"
	"zerodha-strategist/internal/store"
	"zerodha-strategist/internal/strategy"
)

// Version information
const (
	Version   = "0.3.0"
	BuildDate = "2024-06-14"
)

// App holds the application dependencies.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Broker  broker.Broker
	Zerodha *broker.ZerodhaBroker // nil without API credentials
	Specs   *broker.ContractSpecs
	Catalog *strategy.Catalog
	Store   *store.SQLiteStore // nil when the database could not be opened
	Cache   store.ChainCache
	Redis   *store.RedisChainCache // nil unless cache.redis_addr is reachable
	Chains  *chains.Service
	Metrics *metrics.Metrics

	closers []func() error
}

// NewApp wires the dependencies described by cfg. Optional backends that
// fail to start are logged and left nil.
func NewApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Specs:   broker.NewContractSpecs(cfg.Underlyings),
		Metrics: metrics.NewMetrics(),
	}

	catalog, err := strategy.LoadCatalog(cfg.Strategy.PresetsFile)
	if err != nil {
		return nil, err
	}
	app.Catalog = catalog

	if cfg.HasCredentials() {
		app.Zerodha = broker.NewZerodhaBroker(broker.ZerodhaConfig{
			APIKey:       cfg.Credentials.Zerodha.APIKey,
			APISecret:    cfg.Credentials.Zerodha.APISecret,
			UserID:       cfg.Credentials.Zerodha.UserID,
			TokenPath:    cfg.SessionPath(),
			Specs:        app.Specs,
			StrikeWindow: cfg.Chain.StrikeWindow,
			RiskFreeRate: cfg.Chain.RiskFreeRate,
			Logger:       &logger,
		})
		logger.Debug().Bool("authenticated", app.Zerodha.IsAuthenticated()).Msg("Zerodha broker initialized")
	}

	if cfg.IsPaperMode() {
		paperCfg := broker.PaperBrokerConfig{
			Specs:        app.Specs,
			Spots:        cfg.Simulation.Spots,
			BaseIV:       cfg.Simulation.BaseIV,
			Skew:         cfg.Simulation.Skew,
			RiskFreeRate: cfg.Chain.RiskFreeRate,
			StrikeWindow: cfg.Chain.StrikeWindow,
		}
		// Real chains when a live session exists, simulated ones otherwise.
		if app.Zerodha != nil && app.Zerodha.IsAuthenticated() {
			paperCfg.DataBroker = app.Zerodha
		}
		app.Broker = broker.NewPaperBroker(paperCfg)
		logger.Debug().Bool("live_data", paperCfg.DataBroker != nil).Msg("Paper broker initialized")
	} else if app.Zerodha != nil {
		app.Broker = app.Zerodha
	}

	db, err := store.NewSQLiteStore(cfg.Cache.DBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to initialize store, saved strategies are unavailable")
	} else {
		app.Store = db
		app.Cache = db
		app.closers = append(app.closers, db.Close)
		logger.Debug().Str("path", cfg.Cache.DBPath).Msg("SQLite store initialized")
	}

	if cfg.Cache.RedisAddr != "" {
		rctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		rc, err := store.NewRedisChainCache(rctx, store.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			TTL:      cfg.Cache.TTL,
		})
		cancel()
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("Redis unavailable, using SQLite chain cache")
		} else {
			app.Redis = rc
			app.closers = append(app.closers, rc.Close)
			if app.Cache != nil {
				app.Cache = store.Tiered{rc, app.Cache}
			} else {
				app.Cache = rc
			}
			logger.Debug().Str("addr", cfg.Cache.RedisAddr).Msg("Redis chain cache initialized")
		}
	}

	var provider broker.ChainProvider
	if app.Broker != nil {
		provider = app.Broker
	}
	breakerCfg := resilience.DefaultCircuitBreakerConfig()
	breakerCfg.IsFailure = chains.BrokerFault
	breaker := resilience.NewCircuitBreaker("chain-provider", breakerCfg)

	app.Chains = chains.NewService(chains.Config{
		Provider: provider,
		Cache:    app.Cache,
		MaxAge:   cfg.Chain.MaxAge,
		Metrics:  app.Metrics,
		Logger:   logger,
		Breaker:  breaker,
	})

	return app, nil
}

// Close releases the database and cache connections.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// NewRootCmd creates the root command for the CLI. Configuration is loaded
// before any subcommand runs, from --config or the default directory.
func NewRootCmd() *cobra.Command {
	app := &App{}

	rootCmd := &cobra.Command{
		Use:   "strategist",
		Short: "Zerodha options strategy builder",
		Long: `Zerodha Strategist builds multi-leg option strategies on Indian index
derivatives and shows their payoff at expiry.

Legs can be entered by hand or seeded from presets (straddle, iron condor,
spreads...). Market prices come from Kite Connect in live mode or from a
simulated chain in paper mode.

Use 'strategist options presets' to list the templates.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}

			logCfg := logging.LogConfig{
				Level:      cfg.Logging.Level,
				Console:    cfg.Logging.Console,
				FilePath:   cfg.Logging.File,
				MaxSize:    cfg.Logging.MaxSizeMB,
				MaxBackups: cfg.Logging.MaxBackups,
				MaxAge:     cfg.Logging.MaxAgeDays,
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				logCfg.Level = "debug"
			}
			logger := logging.NewLoggerWithConfig(logCfg)

			if !cfg.UI.ColorEnabled {
				color.NoColor = true
			}

			built, err := NewApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			*app = *built
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/zerodha-strategist)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addHelpCommands(rootCmd)
	addAuthCommands(rootCmd, app)
	addOptionsCommands(rootCmd, app)
	addServeCommand(rootCmd, app)

	return rootCmd
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("Zerodha Strategist v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				shown := *app.Config
				shown.Credentials.Zerodha.APIKey = security.MaskCredential(shown.Credentials.Zerodha.APIKey)
				shown.Credentials.Zerodha.APISecret = security.MaskCredential(shown.Credentials.Zerodha.APISecret)
				return output.JSON(shown)
			}
			return showConfig(output, app)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": app.Config.Dir})
			}
			output.Println(app.Config.Dir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, app *App) error {
	cfg := app.Config

	output.Bold("Market Data")
	output.Printf("  Mode:             %s\n", cfg.Trading.Mode)
	if cfg.HasCredentials() {
		output.Printf("  API key:          %s\n", security.MaskCredential(cfg.Credentials.Zerodha.APIKey))
	} else {
		output.Printf("  API key:          %s\n", output.Yellow("not configured"))
	}
	output.Printf("  Strike window:    ±%d\n", cfg.Chain.StrikeWindow)
	output.Printf("  Risk-free rate:   %.2f%%\n", cfg.Chain.RiskFreeRate*100)
	output.Printf("  Chain max age:    %s\n", cfg.Chain.MaxAge)
	output.Println()

	output.Bold("Strategy")
	output.Printf("  Default:          %s\n", cfg.Strategy.DefaultUnderlying)
	output.Printf("  Presets:          %d (%s)\n", len(app.Catalog.List()), cfg.Strategy.PresetsFile)
	output.Println()

	output.Bold("Underlyings")
	table := NewTable(output, "Symbol", "Exchange", "Lot", "Step")
	for _, u := range app.Specs.List() {
		table.AddRow(u.Symbol, string(u.Exchange), fmt.Sprintf("%d", u.LotSize), fmt.Sprintf("%.0f", u.StrikeStep))
	}
	table.Render()
	output.Println()

	output.Bold("Server")
	output.Printf("  Address:          %s\n", cfg.Server.Addr())
	output.Printf("  Refresh:          %v (%s, %v)\n", cfg.Refresh.Enabled, cfg.Refresh.Schedule, cfg.Refresh.Symbols)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Database:         %s\n", cfg.Cache.DBPath)
	if cfg.Cache.RedisAddr != "" {
		output.Printf("  Redis:            %s (db %d, ttl %s)\n", cfg.Cache.RedisAddr, cfg.Cache.RedisDB, cfg.Cache.TTL)
	}
	output.Printf("  Log file:         %s\n", cfg.Logging.File)

	return nil
}
