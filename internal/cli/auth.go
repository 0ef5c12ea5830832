package cli

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"zerodha-strategist/internal/broker"
)

// addAuthCommands adds Kite Connect session commands.
func addAuthCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newLoginCmd(app))
	rootCmd.AddCommand(newLogoutCmd(app))
	rootCmd.AddCommand(newAuthStatusCmd(app))
}

func requireZerodha(app *App, output *Output) (*broker.ZerodhaBroker, error) {
	if app.Zerodha == nil {
		output.Error("Kite Connect credentials not configured")
		output.Dim("Set api_key and api_secret in %s/credentials.toml or ZERODHA_API_KEY / ZERODHA_API_SECRET", app.Config.Dir)
		return nil, fmt.Errorf("broker not configured")
	}
	return app.Zerodha, nil
}

func newLoginCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to Zerodha Kite Connect",
		Long: `Login to Zerodha Kite Connect.

Opens the Kite login page in a browser. After logging in, paste the
request_token from the redirect URL, or pass it with --token.

The session is saved and reused until it expires at 6 AM IST.`,
		Example: `  strategist login
  strategist login --token=<request_token>`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			zb, err := requireZerodha(app, output)
			if err != nil {
				return err
			}

			if token, _ := cmd.Flags().GetString("token"); token != "" {
				return completeLogin(ctx, zb, output, token)
			}

			if err := zb.Login(ctx); err == nil {
				output.Success("✓ Already logged in")
				return showSession(zb, output)
			}

			loginURL := zb.LoginURL()
			output.Info("Opening Zerodha login page...")
			output.Println()
			output.Bold("Login URL:")
			output.Println(loginURL)
			output.Println()

			if err := openURL(loginURL); err != nil {
				output.Warning("Could not open browser automatically")
			}

			output.Info("After logging in, you'll be redirected to a URL like:")
			output.Dim("  https://your-redirect-url.com/?request_token=XXXXXX&status=success")
			output.Println()
			output.Bold("Paste the request_token value here:")
			output.Printf("> ")

			reader := bufio.NewReader(cmd.InOrStdin())
			token, _ := reader.ReadString('\n')
			token = strings.TrimSpace(token)
			if token == "" {
				output.Error("No token provided")
				return fmt.Errorf("no token provided")
			}

			return completeLogin(ctx, zb, output, token)
		},
	}

	cmd.Flags().String("token", "", "Request token from redirect URL")

	return cmd
}

func completeLogin(ctx context.Context, zb *broker.ZerodhaBroker, output *Output, token string) error {
	output.Info("Completing login with token...")
	if err := zb.CompleteLogin(ctx, token); err != nil {
		output.Error("Login failed: %v", err)
		return err
	}
	output.Success("✓ Login successful!")
	output.Dim("Paper mode now prices strategies from live chains.")
	return showSession(zb, output)
}

func showSession(zb *broker.ZerodhaBroker, output *Output) error {
	expiry, err := zb.SessionExpiry()
	if err != nil {
		return nil
	}
	output.Println()
	output.Bold("Session")
	output.Printf("  Expires:    %s (%s remaining)\n",
		FormatDateTime(expiry),
		FormatDuration(time.Until(expiry)))
	return nil
}

func openURL(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform")
	}
	return cmd.Start()
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Logout from Zerodha Kite Connect",
		Long: `Invalidate the current session and remove the saved access token.

Paper mode falls back to simulated chains until you login again.`,
		Example: `  strategist logout`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			zb, err := requireZerodha(app, output)
			if err != nil {
				return err
			}
			if !zb.IsAuthenticated() {
				output.Warning("Not currently logged in.")
				return nil
			}

			if err := zb.Logout(ctx); err != nil {
				output.Error("Logout failed: %v", err)
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"success":   true,
					"timestamp": time.Now().Format(time.RFC3339),
				})
			}
			output.Success("✓ Logged out successfully!")
			return nil
		},
	}
}

func newAuthStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "auth-status",
		Short: "Check authentication status",
		Long:  "Display the Kite Connect session state and where chains come from.",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			status := map[string]interface{}{
				"mode":          app.Config.Trading.Mode,
				"configured":    app.Zerodha != nil,
				"authenticated": app.Zerodha != nil && app.Zerodha.IsAuthenticated(),
			}
			var expiry time.Time
			if app.Zerodha != nil {
				if e, err := app.Zerodha.SessionExpiry(); err == nil {
					expiry = e
					status["expires_at"] = e
				}
			}

			if output.IsJSON() {
				return output.JSON(status)
			}

			output.Printf("  Mode:       %s\n", app.Config.Trading.Mode)
			switch {
			case app.Zerodha == nil:
				output.Printf("  Kite:       %s\n", output.Yellow("not configured"))
				output.Printf("  Chains:     simulated\n")
			case !app.Zerodha.IsAuthenticated():
				output.Printf("  Kite:       %s\n", output.Red("not authenticated"))
				output.Printf("  Chains:     simulated\n")
				output.Println()
				output.Info("Run 'strategist login' to authenticate")
			default:
				output.Printf("  Kite:       %s\n", output.Green("authenticated"))
				output.Printf("  Chains:     live\n")
				if !expiry.IsZero() {
					output.Printf("  Expires:    %s (%s remaining)\n", FormatDateTime(expiry), FormatDuration(time.Until(expiry)))
				}
			}
			return nil
		},
	}
}
