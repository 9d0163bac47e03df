// Command crmapp serves the task and CRM mini-app and its terminal client.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"crmapp/internal/config"
	"crmapp/internal/util"
)

var (
	configPath string
	verbose    bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "crmapp",
	Short: "Task and CRM mini-app for the Telegram webview",
	Long: `crmapp renders the task and CRM mini-app over a remote task API.

Available commands:
  serve         - Run the web front end with live updates
  tui           - Drive the same screens from the terminal
  fake-backend  - Run an in-memory task API for local development`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", util.EnvOrDefault("CRM_CONFIG", "crmapp.yaml"), "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(fakeBackendCmd)
}

// loadConfig reads the config file and validates it.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, cfg.NewLogger(), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
