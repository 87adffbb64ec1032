package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/vigil/internal/config"
	"github.com/ShayCichocki/vigil/pkg/models"
)

var bugsAll bool

var bugsCmd = &cobra.Command{
	Use:   "bugs",
	Short: "List detected bugs",
	Long: `List bugs produced by validation failures.

By default only open bugs are shown. Bugs are archived when resolved,
never deleted; use --all to include archived bugs.`,
	RunE: runBugs,
}

var bugsArchiveCmd = &cobra.Command{
	Use:   "archive <bug-id>",
	Short: "Archive a resolved bug",
	Args:  cobra.ExactArgs(1),
	RunE:  runBugsArchive,
}

func init() {
	bugsCmd.Flags().BoolVar(&bugsAll, "all", false, "Include archived bugs")
	bugsCmd.AddCommand(bugsArchiveCmd)
}

func runBugs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var filter *models.BugStatus
	if !bugsAll {
		open := models.BugOpen
		filter = &open
	}

	list, err := db.ListBugs(filter)
	if err != nil {
		return fmt.Errorf("list bugs: %w", err)
	}

	if len(list) == 0 {
		fmt.Println("No bugs.")
		return nil
	}

	for _, b := range list {
		status := color.RedString("open")
		if b.Status == models.BugArchived {
			status = color.New(color.Faint).Sprint("archived")
		}
		fmt.Printf("%s  %-8s %-8s %s  %s\n",
			b.ID[:8], severityString(b.Severity), status, b.StoryID, b.Summary)
		if b.Rationale != "" {
			fmt.Printf("          %s\n", b.Rationale)
		}
		if n := len(b.Evidence); n > 1 {
			fmt.Printf("          seen %d times since %s\n", n, b.CreatedAt.Format(time.DateOnly))
		}
	}
	return nil
}

func runBugsArchive(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	bug, err := db.GetBug(args[0])
	if err != nil {
		return fmt.Errorf("get bug: %w", err)
	}
	if bug == nil {
		return fmt.Errorf("bug %s not found", args[0])
	}
	if bug.Status == models.BugArchived {
		fmt.Printf("Bug %s is already archived.\n", bug.ID[:8])
		return nil
	}

	if err := db.ArchiveBug(bug.ID, time.Now().UTC()); err != nil {
		return fmt.Errorf("archive bug: %w", err)
	}
	fmt.Printf("Archived bug %s.\n", bug.ID[:8])
	return nil
}

func severityString(s models.Severity) string {
	switch s {
	case models.SeverityCritical:
		return color.New(color.FgRed, color.Bold).Sprint(string(s))
	case models.SeverityHigh:
		return color.RedString(string(s))
	case models.SeverityMedium:
		return color.YellowString(string(s))
	default:
		return string(s)
	}
}
