package main

import (
	"fmt"
	"os"

	"github.com/ShayCichocki/vigil/internal/config"
	"github.com/ShayCichocki/vigil/internal/policy"
	"github.com/ShayCichocki/vigil/internal/queue"
	"github.com/ShayCichocki/vigil/internal/state"
)

// openDatabase opens the configured database, falling back to the
// project-local database and then the global one.
func openDatabase(cfg *config.Config) (*state.DB, error) {
	path := cfg.Database.Path
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		path = state.ProjectDBPath(cwd)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if _, gerr := os.Stat(state.DefaultDBPath()); gerr == nil {
				path = state.DefaultDBPath()
			}
		}
	}

	db, err := state.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// policyEngine builds the autonomy policy from configuration.
func policyEngine(cfg *config.Config) policy.Engine {
	var allowed []policy.Action
	if cfg.Policy.AutoScheduleBacklog {
		allowed = append(allowed, policy.ActionScheduleBacklog)
	}
	if cfg.Policy.AutoEscalateTerminalFailures {
		allowed = append(allowed, policy.ActionEscalateTerminalFailure)
	}
	return policy.NewRuleEngine(allowed...)
}

// newManager builds a queue manager from configuration.
func newManager(db *state.DB, cfg *config.Config) *queue.Manager {
	return queue.NewManager(db,
		queue.WithMaxAttempts(cfg.Scheduler.MaxAttempts),
		queue.WithPolicy(policyEngine(cfg)),
	)
}
