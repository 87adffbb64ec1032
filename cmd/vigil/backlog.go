package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/vigil/internal/config"
	"github.com/ShayCichocki/vigil/internal/queue"
	"github.com/ShayCichocki/vigil/pkg/models"
)

var backlogCmd = &cobra.Command{
	Use:   "backlog",
	Short: "List re-validation backlog entries",
	Long: `List backlog entries awaiting re-validation.

Entries in ready state are picked up automatically by a running
scheduler. Entries in needs_approval state were denied by the autonomy
policy and wait for 'vigil backlog approve'.`,
	RunE: runBacklog,
}

var backlogApproveCmd = &cobra.Command{
	Use:   "approve <entry-id>",
	Short: "Approve a held backlog entry for scheduling",
	Args:  cobra.ExactArgs(1),
	RunE:  runBacklogApprove,
}

func init() {
	backlogCmd.AddCommand(backlogApproveCmd)
}

func runBacklog(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.ListBacklog(nil)
	if err != nil {
		return fmt.Errorf("list backlog: %w", err)
	}

	if len(entries) == 0 {
		fmt.Println("Backlog is empty.")
		return nil
	}

	for _, e := range entries {
		state := string(e.State)
		switch e.State {
		case models.BacklogNeedsApproval:
			state = color.YellowString(state)
		case models.BacklogReady:
			state = color.GreenString(state)
		}
		origin := "terminal failure"
		if e.BugID != "" {
			origin = "bug " + e.BugID[:8]
		}
		fmt.Printf("%s  %-8s %-16s %s  %s\n",
			e.ID[:8], severityString(e.Severity), state, e.StoryID, origin)
	}
	return nil
}

func runBacklogApprove(cmd *cobra.Command, args []string) error {
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

	if err := manager.ApproveBacklogEntry(args[0]); err != nil {
		var terr *queue.TransitionError
		if errors.As(err, &terr) {
			return fmt.Errorf("entry %s is not awaiting approval", args[0])
		}
		return err
	}
	fmt.Printf("Approved entry %s. A running scheduler will pick it up.\n", args[0])
	return nil
}
