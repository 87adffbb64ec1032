package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/vigil/internal/config"
	"github.com/ShayCichocki/vigil/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch queue state in a live dashboard",
	Long: `Open a live dashboard that polls the queue and displays job counts,
active sessions, backlog totals, and recent validation reports.

The refresh rate is controlled by tui.refresh_rate. Press q to quit.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	manager := newManager(db, cfg)

	model := tui.NewWatchModel(manager, cfg.TUI.RefreshRate)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run dashboard: %w", err)
	}
	return nil
}
