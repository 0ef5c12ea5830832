package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"zerodha-strategist/internal/scheduler"
	"zerodha-strategist/internal/server"
	"zerodha-strategist/internal/store"
)

const shutdownTimeout = 10 * time.Second

// addServeCommand adds the HTTP API command.
func addServeCommand(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newServeCmd(app))
}

func newServeCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve the payoff engine over HTTP.

Exposes presets, payoff analysis, option chains and saved strategies under
/api, plus /health and /metrics. When refresh is enabled, chains for the
configured symbols are re-fetched on the refresh schedule.`,
		Example: `  strategist serve
  strategist serve --port 9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			addr := app.Config.Server.Addr()
			if port, _ := cmd.Flags().GetInt("port"); port > 0 {
				addr = fmt.Sprintf("%s:%d", app.Config.Server.Host, port)
			}

			if !app.Config.IsPaperMode() && app.Zerodha != nil && app.Zerodha.IsAuthenticated() {
				lctx, cancel := context.WithTimeout(ctx, 30*time.Second)
				changed, err := app.Specs.LoadLotSizes(lctx, app.Zerodha)
				cancel()
				if err != nil {
					app.Logger.Warn().Err(err).Msg("Failed to load lot sizes, using configured values")
				} else {
					app.Logger.Info().Int("changed", changed).Msg("Lot sizes loaded from instruments")
				}
			}

			var strategies store.StrategyStore
			health := map[string]server.Pinger{}
			if app.Store != nil {
				strategies = app.Store
				health["sqlite"] = app.Store
			}
			if app.Redis != nil {
				health["redis"] = app.Redis
			}

			srv := server.New(server.Config{
				Addr:           addr,
				RequestTimeout: app.Config.Server.RequestTimeout,
				CORSOrigins:    app.Config.Server.CORSOrigins,
				Log:            app.Logger,
				Specs:          app.Specs,
				Catalog:        app.Catalog,
				Chains:         app.Chains,
				Strategies:     strategies,
				Metrics:        app.Metrics,
				Health:         health,
			})

			sched := scheduler.New(app.Logger)
			if app.Config.Refresh.Enabled {
				job := scheduler.NewChainRefreshJob(scheduler.ChainRefreshConfig{
					Context:         ctx,
					Chains:          app.Chains,
					Symbols:         app.Config.Refresh.Symbols,
					MarketHoursOnly: app.Config.Refresh.MarketHoursOnly,
					Metrics:         app.Metrics,
					Log:             app.Logger,
				})
				if err := sched.AddJob(app.Config.Refresh.Schedule, job); err != nil {
					return err
				}
			}
			sched.Start()
			defer sched.Stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			if !output.IsJSON() {
				output.Success("✓ Listening on http://%s", addr)
				output.Dim("Mode: %s. Press Ctrl+C to stop.", app.Config.Trading.Mode)
			}

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
			return <-errCh
		},
	}

	cmd.Flags().Int("port", 0, "Port to listen on (default: server.port)")

	return cmd
}
