package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/vigil/internal/config"
	"github.com/ShayCichocki/vigil/internal/queue"
	"github.com/ShayCichocki/vigil/pkg/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue and validation state",
	Long: `Display the current state of the validation queue.

Shows:
  - Pending and running job counts
  - Live agent sessions
  - Backlog entries awaiting scheduling or approval
  - Recent validation reports and their verdicts`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	snap, err := manager.Snapshot(5)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	open := models.BugOpen
	openBugs, err := db.ListBugs(&open)
	if err != nil {
		return fmt.Errorf("list open bugs: %w", err)
	}

	displaySnapshot(snap)
	displayOpenBugs(openBugs)
	return nil
}

func displayOpenBugs(bugs []models.Bug) {
	if len(bugs) == 0 {
		return
	}

	critical := 0
	for _, b := range bugs {
		if b.Severity == models.SeverityCritical {
			critical++
		}
	}

	fmt.Println("\nBugs:")
	fmt.Printf("  Open:              %d\n", len(bugs))
	if critical > 0 {
		fmt.Printf("  Critical:          %s  (run 'vigil bugs' to review)\n",
			color.New(color.FgRed, color.Bold).Sprintf("%d", critical))
	}
}

func displaySnapshot(snap *queue.Snapshot) {
	fmt.Println("Queue:")
	fmt.Printf("  Pending:           %d\n", snap.PendingJobs)
	fmt.Printf("  Running:           %d\n", snap.RunningJobs)
	if snap.TerminallyFailed > 0 {
		fmt.Printf("  Terminally failed: %s\n", color.RedString("%d", snap.TerminallyFailed))
	} else {
		fmt.Printf("  Terminally failed: 0\n")
	}
	fmt.Printf("  Active sessions:   %d\n", snap.ActiveSessions)

	fmt.Println("Backlog:")
	fmt.Printf("  Ready:             %d\n", snap.BacklogReady)
	if snap.BacklogNeedsApproval > 0 {
		fmt.Printf("  Needs approval:    %s  (run 'vigil backlog' to review)\n",
			color.YellowString("%d", snap.BacklogNeedsApproval))
	} else {
		fmt.Printf("  Needs approval:    0\n")
	}

	if len(snap.RecentReports) == 0 {
		fmt.Println("\nNo reports yet. Run 'vigil enqueue <story-id>' to queue work.")
		return
	}

	fmt.Println("\nRecent Reports:")
	for _, r := range snap.RecentReports {
		verdict := color.GreenString("✓ pass")
		if !r.Passed {
			verdict = color.RedString("✗ fail")
		}
		age := formatDuration(time.Since(r.FinishedAt))
		fmt.Printf("  %s  %s attempt %d (%s ago)\n", verdict, r.StoryID, r.Attempt, age)
		for _, v := range r.Gate.Violations {
			fmt.Printf("         %s: %s\n", color.YellowString(v.Gate), v.Detail)
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
