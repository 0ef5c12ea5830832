package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"zerodha-strategist/internal/logging"
	"zerodha-strategist/internal/metrics"
	"zerodha-strategist/internal/models"
	"zerodha-strategist/internal/payoff"
	"zerodha-strategist/internal/strategy"
)

// addOptionsCommands adds option chain and strategy commands.
func addOptionsCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newOptionsCmd(app))
}

func newOptionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "options",
		Short: "Option chains and strategy payoff",
		Long:  "Commands for option chains, Greeks, strategy presets, and payoff analysis.",
	}

	cmd.AddCommand(newOptionsChainCmd(app))
	cmd.AddCommand(newOptionsGreeksCmd(app))
	cmd.AddCommand(newOptionsPresetsCmd(app))
	cmd.AddCommand(newOptionsPayoffCmd(app))
	cmd.AddCommand(newOptionsStrategyCmd(app))

	return cmd
}

// loadChain returns the nearest-expiry chain through the cache, or the chain
// for a specific expiry straight from the broker.
func loadChain(ctx context.Context, app *App, symbol string, expiry time.Time) (*models.OptionChain, string, error) {
	if expiry.IsZero() {
		return app.Chains.Get(ctx, symbol)
	}
	chain, err := app.Chains.Fetch(ctx, symbol, expiry)
	return chain, metrics.SourceBroker, err
}

func newOptionsChainCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chain <symbol>",
		Short: "Display option chain",
		Long: `Display the option chain for an index.

Shows calls and puts around the ATM strike with LTP, OI and IV. Chains are
served from the cache while fresh.`,
		Example: `  strategist options chain NIFTY
  strategist options chain BANKNIFTY --expiry 2024-06-26
  strategist options chain NIFTY --strikes 5`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			u, err := app.Specs.Lookup(args[0])
			if err != nil {
				output.Error("%v", err)
				return err
			}
			expiryStr, _ := cmd.Flags().GetString("expiry")
			strikes, _ := cmd.Flags().GetInt("strikes")

			var expiry time.Time
			if expiryStr != "" {
				expiry, err = time.ParseInLocation("2006-01-02", expiryStr, time.Local)
				if err != nil {
					output.Error("Invalid expiry format. Use YYYY-MM-DD")
					return err
				}
			}

			chain, source, err := loadChain(ctx, app, u.Symbol, expiry)
			if err != nil {
				output.Error("Failed to get option chain: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(chain)
			}
			displayOptionChain(output, chain, u, strikes, source)
			return nil
		},
	}

	cmd.Flags().String("expiry", "", "Expiry date (YYYY-MM-DD)")
	cmd.Flags().Int("strikes", 10, "Number of strikes to show either side of ATM")

	return cmd
}

func displayOptionChain(output *Output, chain *models.OptionChain, u models.Underlying, strikes int, source string) {
	if chain == nil || len(chain.Strikes) == 0 {
		output.Warning("Option chain is empty")
		return
	}

	output.Bold("Option Chain - %s", chain.Symbol)
	output.Printf("  Spot: %s  Expiry: %s  Lot: %d\n", FormatPrice(chain.SpotPrice), FormatDate(chain.Expiry), u.LotSize)
	output.Dim("  %s, fetched %s", source, FormatDateTime(chain.FetchedAt))
	output.Println()

	atm := chain.ATMStrike()
	center := 0
	for i, s := range chain.Strikes {
		if s.Strike == atm {
			center = i
		}
	}
	lo, hi := center-strikes, center+strikes
	if lo < 0 {
		lo = 0
	}
	if hi > len(chain.Strikes)-1 {
		hi = len(chain.Strikes) - 1
	}

	table := NewTable(output, "Call OI", "Call IV", "Call LTP", "Strike", "Put LTP", "Put IV", "Put OI")
	for _, s := range chain.Strikes[lo : hi+1] {
		strike := FormatStrike(s.Strike)
		if s.Strike == atm {
			strike = output.BoldText(strike)
		}
		callOI, callIV, callLTP := "-", "-", "-"
		if c := s.Call; c != nil {
			callOI, callIV, callLTP = FormatVolume(c.OI), FormatIV(c.IV), FormatPrice(c.LTP)
		}
		putOI, putIV, putLTP := "-", "-", "-"
		if p := s.Put; p != nil {
			putOI, putIV, putLTP = FormatVolume(p.OI), FormatIV(p.IV), FormatPrice(p.LTP)
		}
		table.AddRow(callOI, callIV, callLTP, strike, putLTP, putIV, putOI)
	}
	table.Render()
}

func newOptionsGreeksCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "greeks <symbol>",
		Short: "Show Greeks for a contract",
		Long: `Show implied volatility and Greeks for one strike of the nearest expiry.

Theta is per calendar day; vega and rho are per volatility/rate point.`,
		Example: `  strategist options greeks NIFTY --strike 24000 --type CE`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			u, err := app.Specs.Lookup(args[0])
			if err != nil {
				output.Error("%v", err)
				return err
			}
			strike, _ := cmd.Flags().GetFloat64("strike")
			typ, _ := cmd.Flags().GetString("type")

			chain, _, err := app.Chains.Get(ctx, u.Symbol)
			if err != nil {
				output.Error("Failed to get option chain: %v", err)
				return err
			}
			if strike <= 0 {
				strike = chain.ATMStrike()
			}
			optType := models.OptionType(strings.ToUpper(typ))

			q := strategy.Quote(chain, strike, optType)
			if q == nil {
				err := fmt.Errorf("no %s %s quote in the chain", FormatStrike(strike), optType)
				output.Error("%v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"symbol": u.Symbol,
					"strike": strike,
					"type":   optType,
					"expiry": chain.Expiry,
					"quote":  q,
				})
			}

			output.Bold("Option Greeks")
			output.Printf("  %s %s %s  (expiry %s)\n\n", u.Symbol, FormatStrike(strike), optType, FormatDate(chain.Expiry))
			output.Printf("  LTP:        %s\n", FormatPrice(q.LTP))
			output.Printf("  IV:         %s\n", FormatIV(q.IV))
			output.Printf("  Delta (Δ):  %s\n", output.BoldText(fmt.Sprintf("%.4f", q.Greeks.Delta)))
			output.Printf("  Gamma (Γ):  %.6f\n", q.Greeks.Gamma)
			output.Printf("  Theta (Θ):  %s\n", output.Red(fmt.Sprintf("%.2f", q.Greeks.Theta)))
			output.Printf("  Vega (ν):   %.2f\n", q.Greeks.Vega)
			output.Printf("  Rho (ρ):    %.2f\n", q.Greeks.Rho)
			return nil
		},
	}

	cmd.Flags().Float64("strike", 0, "Strike price (default: ATM)")
	cmd.Flags().String("type", "CE", "Option type (CE or PE)")

	return cmd
}

func newOptionsPresetsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List strategy presets",
		Long: `List the strategy templates that can seed the leg set.

Offsets are in strike steps from the ATM strike.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			presets := app.Catalog.List()
			if output.IsJSON() {
				return output.JSON(presets)
			}

			output.Bold("Strategy Presets")
			output.Println()
			for _, p := range presets {
				var legs []string
				for _, l := range p.Legs {
					side := "BUY"
					if l.Direction == models.Short {
						side = "SELL"
					}
					legs = append(legs, fmt.Sprintf("%s %dx ATM%+d %s", side, l.Lots, l.Offset, l.Type))
				}
				output.Printf("  %-20s %s\n", output.Cyan(p.Name), p.Description)
				output.Dim("  %-20s %s", "", strings.Join(legs, ", "))
			}
			return nil
		},
	}
}

func newOptionsPayoffCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payoff",
		Short: "Analyse a strategy's payoff at expiry",
		Long: `Build a strategy from a preset and/or explicit legs and show its payoff.

Legs are SIDE:TYPE:STRIKE[:LOTS[:PRICE]]. Legs without a price, and preset
legs, are priced from the option chain. Use --save to keep the result.`,
		Example: `  strategist options payoff --preset iron-condor
  strategist options payoff --preset straddle --spot 24010 --underlying NIFTY
  strategist options payoff --leg BUY:CE:24000:1:120 --leg SELL:CE:24200:1:60
  strategist options payoff --preset bull-call-spread --save my-spread`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			symbol, _ := cmd.Flags().GetString("underlying")
			if symbol == "" {
				symbol = app.Config.Strategy.DefaultUnderlying
			}
			preset, _ := cmd.Flags().GetString("preset")
			spot, _ := cmd.Flags().GetFloat64("spot")
			rawLegs, _ := cmd.Flags().GetStringArray("leg")
			saveAs, _ := cmd.Flags().GetString("save")

			u, err := app.Specs.Lookup(symbol)
			if err != nil {
				output.Error("%v", err)
				return err
			}

			var legs []models.OptionLeg
			for _, raw := range rawLegs {
				leg, err := strategy.ParseLeg(raw)
				if err != nil {
					output.Error("%v", err)
					return err
				}
				legs = append(legs, leg)
			}
			if preset == "" && len(legs) == 0 {
				output.Error("Nothing to analyse: pass --preset or at least one --leg")
				return fmt.Errorf("no legs")
			}

			b := strategy.NewBuilder(u, app.Catalog)
			if preset != "" || needsPricing(legs) {
				chain, source, err := app.Chains.Get(ctx, u.Symbol)
				if err != nil {
					output.Warning("Option chain unavailable, unpriced legs stay at zero: %v", err)
				} else {
					b.SetChain(chain)
					app.Logger.Debug().Str("symbol", u.Symbol).Str("source", source).Msg("Pricing legs from chain")
				}
			}

			if preset != "" {
				if _, err := b.ApplyPreset(preset, spot); err != nil {
					output.Error("%v", err)
					return err
				}
			}
			for _, leg := range legs {
				if _, err := b.AddLeg(leg); err != nil {
					output.Error("%v", err)
					return err
				}
			}

			start := time.Now()
			analysis := b.Analysis()
			app.Metrics.ObservePayoff(time.Since(start))
			logging.LogAnalysis(app.Logger, u.Symbol, b.Store().Len(), len(analysis.Points), analysis.Breakevens, time.Since(start))

			if saveAs != "" {
				if err := saveStrategy(ctx, app, saveAs, u.Symbol, b.Store()); err != nil {
					output.Error("Failed to save strategy: %v", err)
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(analysis)
			}

			width, _ := cmd.Flags().GetInt("width")
			height, _ := cmd.Flags().GetInt("height")
			title := u.Symbol
			if p := b.Store().LastPreset(); p != "" {
				title += " " + p
			}
			renderAnalysis(output, title, b.Store().Legs(), analysis, width, height)
			if saveAs != "" {
				output.Println()
				output.Success("✓ Saved as %s", saveAs)
			}
			return nil
		},
	}

	cmd.Flags().String("underlying", "", "Underlying index (default: strategy.default_underlying)")
	cmd.Flags().String("preset", "", "Seed the legs from a preset")
	cmd.Flags().Float64("spot", 0, "Spot used to place preset legs (default: chain spot)")
	cmd.Flags().StringArray("leg", nil, "Leg as SIDE:TYPE:STRIKE[:LOTS[:PRICE]] (repeatable)")
	cmd.Flags().String("save", "", "Save the strategy under this name")
	cmd.Flags().Int("width", defaultChartWidth, "Chart width in columns")
	cmd.Flags().Int("height", defaultChartHeight, "Chart height in rows")

	return cmd
}

func needsPricing(legs []models.OptionLeg) bool {
	for _, l := range legs {
		if l.Price == 0 {
			return true
		}
	}
	return false
}

func saveStrategy(ctx context.Context, app *App, name, underlying string, legs *strategy.Store) error {
	if app.Store == nil {
		return fmt.Errorf("strategy store unavailable")
	}
	return app.Store.SaveStrategy(ctx, &models.SavedStrategy{
		Name:       name,
		Underlying: underlying,
		Preset:     legs.LastPreset(),
		Legs:       legs.Legs(),
	})
}

func renderAnalysis(output *Output, title string, legs []models.OptionLeg, a payoff.Analysis, width, height int) {
	output.Bold("Payoff at Expiry - %s", title)
	output.Println()

	table := NewTable(output, "#", "Side", "Lots", "Strike", "Type", "Price", "IV", "Delta")
	for i, l := range legs {
		side := output.Green("BUY")
		if l.Direction == models.Short {
			side = output.Red("SELL")
		}
		table.AddRow(
			fmt.Sprintf("%d", i+1),
			side,
			fmt.Sprintf("%d", l.Lots),
			FormatStrike(l.Strike),
			string(l.Type),
			FormatPrice(l.Price),
			FormatIV(l.IV),
			fmt.Sprintf("%.2f", l.Delta),
		)
	}
	table.Render()
	output.Println()

	if s := a.Summary; s != nil {
		maxProfit := output.FormatPnL(s.MaxProfit)
		if s.MaxProfitUnlimited {
			maxProfit = output.Green("Unlimited")
		}
		maxLoss := output.FormatPnL(s.MaxLoss)
		if s.MaxLossUnlimited {
			maxLoss = output.Red("Unlimited")
		}
		output.Printf("  Lot size:     %d\n", a.LotSize)
		output.Printf("  Net premium:  %s\n", output.FormatPnL(s.NetPremium))
		output.Printf("  Max profit:   %s\n", maxProfit)
		output.Printf("  Max loss:     %s\n", maxLoss)
		output.Printf("  Breakevens:   %s\n", FormatBreakevens(a.Breakevens))
		output.Printf("  Net delta:    %.2f   Net theta: %.2f/day\n", s.NetDelta, s.NetTheta)
		output.Println()
	}

	for _, line := range RenderChart(output, a.Points, width, height) {
		output.Println(line)
	}
}

func newOptionsStrategyCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategy",
		Short: "Manage saved strategies",
		Long:  "List, show, and delete strategies saved with 'options payoff --save'.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved strategies",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("strategy store unavailable")
			}
			list, err := app.Store.ListStrategies(cmd.Context())
			if err != nil {
				output.Error("Failed to list strategies: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(list)
			}
			if len(list) == 0 {
				output.Dim("No saved strategies")
				return nil
			}

			table := NewTable(output, "Name", "Underlying", "Preset", "Legs", "Updated")
			for _, st := range list {
				preset := st.Preset
				if preset == "" {
					preset = "-"
				}
				table.AddRow(st.Name, st.Underlying, preset, fmt.Sprintf("%d", len(st.Legs)), FormatDateTime(st.UpdatedAt))
			}
			table.Render()
			return nil
		},
	})

	show := &cobra.Command{
		Use:   "show <name>",
		Short: "Show a saved strategy and its payoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if app.Store == nil {
				return fmt.Errorf("strategy store unavailable")
			}
			st, err := app.Store.GetStrategy(ctx, args[0])
			if err != nil {
				output.Error("%v", err)
				return err
			}
			u, err := app.Specs.Lookup(st.Underlying)
			if err != nil {
				output.Error("%v", err)
				return err
			}

			b := strategy.NewBuilder(u, app.Catalog)
			if err := b.Store().Replace(st.Legs); err != nil {
				return err
			}
			if reprice, _ := cmd.Flags().GetBool("reprice"); reprice {
				chain, _, err := app.Chains.Get(ctx, u.Symbol)
				if err != nil {
					output.Warning("Option chain unavailable, showing saved prices: %v", err)
				} else {
					b.Refresh(chain)
				}
			}

			analysis := b.Analysis()
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"strategy": st,
					"legs":     b.Store().Legs(),
					"analysis": analysis,
				})
			}

			width, _ := cmd.Flags().GetInt("width")
			height, _ := cmd.Flags().GetInt("height")
			renderAnalysis(output, fmt.Sprintf("%s (%s)", st.Name, u.Symbol), b.Store().Legs(), analysis, width, height)
			return nil
		},
	}
	show.Flags().Bool("reprice", false, "Re-price legs from the current chain")
	show.Flags().Int("width", defaultChartWidth, "Chart width in columns")
	show.Flags().Int("height", defaultChartHeight, "Chart height in rows")
	cmd.AddCommand(show)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if app.Store == nil {
				return fmt.Errorf("strategy store unavailable")
			}
			if err := app.Store.DeleteStrategy(cmd.Context(), args[0]); err != nil {
				output.Error("%v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"deleted": args[0]})
			}
			output.Success("✓ Deleted %s", args[0])
			return nil
		},
	})

	return cmd
}
