package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Validation orchestration engine",
	Long: `Vigil runs bounded pools of validation agents against queued stories,
evaluates quality gates, and turns failures into deduplicated bugs with
scheduled re-validation.

Core capabilities:
- Priority job queue with atomic assignment and retry accounting
- Layered validation pipeline (code quality, functional, integration, UX review)
- Quality gates for coverage, performance regression, and security scans
- Bug detection with signature dedup and backlog scheduling
- Heartbeat monitoring with automatic recovery of orphaned jobs`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(bugsCmd)
	rootCmd.AddCommand(backlogCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(pauseCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(versionCmd)
}
