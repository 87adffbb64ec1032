package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/vigil/internal/config"
	"github.com/ShayCichocki/vigil/internal/queue"
	"github.com/ShayCichocki/vigil/pkg/models"
)

var enqueueCritical bool

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <story-id> [story-id...]",
	Short: "Queue stories for validation",
	Long: `Queue one or more stories for validation.

A story can have at most one active job at a time; enqueueing a story
that is already pending or running is rejected. Stories that failed
terminally can be enqueued again.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runEnqueue,
}

func init() {
	enqueueCmd.Flags().BoolVar(&enqueueCritical, "critical", false, "Queue at critical priority (ahead of normal work)")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
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

	priority := models.PriorityNormal
	if enqueueCritical {
		priority = models.PriorityCritical
	}

	var failed bool
	for _, storyID := range args {
		job, err := manager.Enqueue(storyID, priority)
		if err != nil {
			if errors.Is(err, queue.ErrDuplicateJob) {
				fmt.Printf("skipped %s: already has an active job\n", storyID)
			} else {
				fmt.Printf("failed %s: %v\n", storyID, err)
				failed = true
			}
			continue
		}
		fmt.Printf("queued %s as job %s\n", storyID, job.ID)
	}

	if failed {
		return fmt.Errorf("some stories could not be queued")
	}
	return nil
}
