package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/vigil/internal/gate"
	"github.com/ShayCichocki/vigil/pkg/models"
)

// Pipeline runs the ordered validation layers for one job, evaluates
// the quality gates, and assembles the validation report.
//
// A failing layer does not abort the pipeline: all layers always run so
// a single report captures the full quality picture.
type Pipeline struct {
	executors []LayerExecutor
	gateCfg   gate.Config
}

// New creates a pipeline over the given executors. Executors run in the
// order provided; callers normally pass them in models.LayerOrder.
func New(executors []LayerExecutor, gateCfg gate.Config) *Pipeline {
	return &Pipeline{
		executors: executors,
		gateCfg:   gateCfg,
	}
}

// Run executes every layer for the job and returns the assembled
// report. Exactly one report is produced per attempt. The only error
// returned is context cancellation; executor faults are recorded as
// failed layer results with a synthetic finding.
func (p *Pipeline) Run(ctx context.Context, jc JobContext) (*models.ValidationReport, error) {
	startedAt := time.Now()
	layers := make([]models.LayerResult, 0, len(p.executors))

	for _, ex := range p.executors {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("pipeline cancelled: %w", err)
		}

		layers = append(layers, p.runLayer(ctx, ex, jc))

		if jc.Heartbeat != nil {
			jc.Heartbeat()
		}
	}

	gateResult := gate.Evaluate(layers, p.gateCfg)

	return &models.ValidationReport{
		ID:         uuid.New().String(),
		JobID:      jc.JobID,
		StoryID:    jc.StoryID,
		Attempt:    jc.Attempt,
		Layers:     layers,
		Gate:       gateResult,
		Passed:     gateResult.Passed,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
	}, nil
}

// runLayer executes one layer, converting an executor fault into a
// failed result so a tooling problem never crashes the pipeline.
func (p *Pipeline) runLayer(ctx context.Context, ex LayerExecutor, jc JobContext) models.LayerResult {
	start := time.Now()

	result, err := ex.Run(ctx, jc)
	if err != nil {
		return models.LayerResult{
			Layer:                 ex.Layer(),
			Passed:                false,
			ExecutionError:        err.Error(),
			CoveragePercent:       -1,
			PerfRegressionPercent: -1,
			Findings: []models.Finding{{
				Description:  fmt.Sprintf("layer executor fault: %v", err),
				Component:    ex.Layer(),
				SeverityHint: models.SeverityMedium,
			}},
			Duration: time.Since(start),
		}
	}

	result.Layer = ex.Layer()
	if result.Duration == 0 {
		result.Duration = time.Since(start)
	}
	return result
}
