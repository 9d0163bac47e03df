package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"crmapp/internal/app"
	"crmapp/internal/backend"
	"crmapp/internal/storage"
	"crmapp/internal/storage/memory"
	"crmapp/internal/tui"
)

var (
	tuiUserID    int64
	tuiEphemeral bool
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Run the mini-app in the terminal",
	Long: `Drive the home, tasks, calendar and profile screens from the keyboard.

The terminal has no chat identity; the user is taken from --user or the
configured fallback user.`,
	RunE: runTUI,
}

func init() {
	tuiCmd.Flags().Int64Var(&tuiUserID, "user", 0, "Telegram user id (default: view.fallback_user_id)")
	tuiCmd.Flags().BoolVar(&tuiEphemeral, "ephemeral", false, "Keep page state in memory only")
}

func runTUI(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if tuiUserID != 0 {
		cfg.View.FallbackUserID = tuiUserID
	}
	if cfg.View.FallbackUserID == 0 {
		return fmt.Errorf("no user: pass --user or set view.fallback_user_id")
	}
	// Log lines would tear the alternate screen.
	cfg.Logging.Level = "error"
	logger = cfg.NewLogger()

	opts, err := controllerOptions(cfg)
	if err != nil {
		return err
	}

	var store storage.Store = memory.New()
	if !tuiEphemeral {
		if store, err = storage.Open(cmd.Context(), cfg.State, logger); err != nil {
			return err
		}
	}
	defer store.Close()

	client := backend.New(cfg.Backend.BaseURL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithLogger(logger))
	ctrl := app.New(client, opts, app.WithStore(store), app.WithLogger(logger))

	p := tea.NewProgram(tui.New(cmd.Context(), ctrl), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	_, err = p.Run()
	return err
}
