package cli

import (
	"github.com/spf13/cobra"
)

// addHelpCommands adds workflow guides.
func addHelpCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newExamplesCmd())
	rootCmd.AddCommand(newQuickstartCmd())
}

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show common workflow examples",
		Long:  "Display examples of common strategy-building workflows.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Common Workflow Examples")
			output.Println()

			examples := []struct {
				title    string
				commands []string
			}{
				{
					title: "Explore the Chain",
					commands: []string{
						"strategist options chain NIFTY --strikes 5        # Calls and puts around ATM",
						"strategist options greeks NIFTY --strike 24000    # IV and Greeks for one contract",
					},
				},
				{
					title: "Presets",
					commands: []string{
						"strategist options presets                        # List templates",
						"strategist options payoff --preset iron-condor    # Place around the chain's ATM",
						"strategist options payoff --preset straddle --spot 24010 --underlying NIFTY",
					},
				},
				{
					title: "Custom Legs",
					commands: []string{
						"strategist options payoff --leg BUY:CE:24000 --leg SELL:CE:24200",
						"strategist options payoff --leg SELL:PE:23800:2:55 --json",
					},
				},
				{
					title: "Saved Strategies",
					commands: []string{
						"strategist options payoff --preset bull-put-spread --save weekly",
						"strategist options strategy list",
						"strategist options strategy show weekly --reprice",
						"strategist options strategy delete weekly",
					},
				},
				{
					title: "HTTP API",
					commands: []string{
						"strategist serve --port 8080",
						"curl -s localhost:8080/api/presets",
						"curl -s -XPOST localhost:8080/api/presets/straddle/apply -d '{\"underlying\":\"NIFTY\"}'",
					},
				},
			}

			for _, ex := range examples {
				output.Printf("%s\n", output.Cyan(ex.title))
				for _, c := range ex.commands {
					output.Printf("  %s\n", c)
				}
				output.Println()
			}
			return nil
		},
	}
}

func newQuickstartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quickstart",
		Short: "New user guide",
		Long:  "Step-by-step guide for new users.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Zerodha Strategist - Quick Start Guide")
			output.Println()

			steps := []struct {
				title string
				desc  string
				cmd   string
			}{
				{
					title: "Try Paper Mode",
					desc:  "Without credentials, chains are simulated with Black-Scholes.",
					cmd:   "strategist options chain NIFTY",
				},
				{
					title: "Build a Strategy",
					desc:  "Seed legs from a preset and read the payoff chart.",
					cmd:   "strategist options payoff --preset iron-condor",
				},
				{
					title: "Configure Credentials",
					desc:  "Add your Kite Connect API key and secret for live chains.",
					cmd:   "strategist config path  # Shows config directory",
				},
				{
					title: "Login to Zerodha",
					desc:  "Authenticate once a day; the session lasts until 6 AM IST.",
					cmd:   "strategist login",
				},
				{
					title: "Serve the API",
					desc:  "Expose payoff analysis to a frontend, with chains kept warm.",
					cmd:   "strategist serve",
				},
			}

			for i, s := range steps {
				output.Printf("%s Step %d: %s\n", output.Cyan("→"), i+1, output.BoldText(s.title))
				output.Printf("  %s\n", s.desc)
				output.Printf("  %s\n\n", output.DimText(s.cmd))
			}

			output.Bold("Configuration Files")
			output.Println()
			output.Printf("  %s - Kite Connect API key and secret\n", output.Cyan("credentials.toml"))
			output.Printf("  %s - Mode, chains, server, refresh schedule\n", output.Cyan("config.toml"))
			output.Printf("  %s - Extra or overriding strategy presets\n", output.Cyan("presets.yaml"))
			output.Println()
			output.Printf("  %s Payoff is at expiry only; it ignores time value left in the legs\n", output.Yellow("⚠"))
			return nil
		},
	}
}
