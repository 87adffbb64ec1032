// Package pipeline executes the four validation layers for one job and
// assembles the resulting validation report.
package pipeline

import (
	"context"

	"github.com/ShayCichocki/vigil/pkg/models"
)

// JobContext carries everything a layer executor needs to validate one
// story.
type JobContext struct {
	// JobID is the validation job being executed.
	JobID string
	// StoryID is the story under validation.
	StoryID string
	// Attempt is the attempt number (1-indexed).
	Attempt int
	// WorkDir is the checkout the layer executors run against.
	WorkDir string
	// Heartbeat, when non-nil, is invoked by the pipeline between
	// layers so the session stays live during long validations.
	Heartbeat func()
}

// LayerExecutor runs the checks for one validation layer. Executors are
// external collaborators: they may fail independently, and the pipeline
// captures their faults instead of propagating them.
type LayerExecutor interface {
	// Layer returns the layer name this executor serves.
	Layer() string
	// Run executes the layer's checks. A returned error is an executor
	// fault (tooling failure), not a check failure; check failures are
	// expressed through the LayerResult itself.
	Run(ctx context.Context, jc JobContext) (models.LayerResult, error)
}
