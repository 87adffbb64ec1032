// Package tui provides the terminal user interface for Vigil's watch command.
//
// The package contains a read-only dashboard that polls the queue manager
// and displays:
//   - Queue depth and running job counts
//   - Live agent sessions
//   - Backlog entries awaiting scheduling or approval
//   - The most recent validation reports with their gate verdicts
//
// The dashboard does not support interactive job control. Users can only
// quit with 'q' or Ctrl+C.
//
// Usage:
//
//	model := tui.NewWatchModel(manager, time.Second)
//	program := tea.NewProgram(model, tea.WithAltScreen())
//	if _, err := program.Run(); err != nil {
//	    ...
//	}
package tui
