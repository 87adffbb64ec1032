package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/ShayCichocki/vigil/internal/gate"
	"github.com/ShayCichocki/vigil/pkg/models"
)

// fakeExecutor returns a canned result or error for its layer.
type fakeExecutor struct {
	layer  string
	result models.LayerResult
	err    error
	runs   int
}

func (f *fakeExecutor) Layer() string { return f.layer }

func (f *fakeExecutor) Run(ctx context.Context, jc JobContext) (models.LayerResult, error) {
	f.runs++
	if f.err != nil {
		return models.LayerResult{}, f.err
	}
	return f.result, nil
}

func passingExecutor(layer string) *fakeExecutor {
	return &fakeExecutor{
		layer:  layer,
		result: models.LayerResult{Passed: true, CoveragePercent: -1, PerfRegressionPercent: -1},
	}
}

func failingExecutor(layer string) *fakeExecutor {
	return &fakeExecutor{
		layer: layer,
		result: models.LayerResult{
			Passed:                false,
			CoveragePercent:       -1,
			PerfRegressionPercent: -1,
			Findings: []models.Finding{
				{Description: layer + " check failed", SeverityHint: models.SeverityMedium},
			},
		},
	}
}

func TestRunExecutesEveryLayerDespiteFailures(t *testing.T) {
	execs := []*fakeExecutor{
		passingExecutor(models.LayerCodeQuality),
		failingExecutor(models.LayerFunctional),
		passingExecutor(models.LayerIntegration),
		passingExecutor(models.LayerUserExperience),
	}

	var layerExecs []LayerExecutor
	for _, e := range execs {
		layerExecs = append(layerExecs, e)
	}
	p := New(layerExecs, gate.Config{})

	report, err := p.Run(context.Background(), JobContext{JobID: "job-1", StoryID: "story-1", Attempt: 1})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// No short-circuiting: the failing functional layer must not stop
	// the later layers.
	for _, e := range execs {
		if e.runs != 1 {
			t.Errorf("layer %s ran %d times, want 1", e.layer, e.runs)
		}
	}
	if len(report.Layers) != 4 {
		t.Fatalf("report has %d layers, want 4", len(report.Layers))
	}
	if report.Layers[1].Passed {
		t.Error("functional layer should be failed in the report")
	}
}

func TestRunConvertsExecutorFaultToFailedResult(t *testing.T) {
	broken := &fakeExecutor{layer: models.LayerIntegration, err: errors.New("docker daemon unreachable")}
	p := New([]LayerExecutor{passingExecutor(models.LayerCodeQuality), broken}, gate.Config{})

	report, err := p.Run(context.Background(), JobContext{JobID: "job-1", StoryID: "story-1", Attempt: 1})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	lr := report.LayerNamed(models.LayerIntegration)
	if lr == nil {
		t.Fatal("integration layer missing from report")
	}
	if lr.Passed {
		t.Error("faulted layer should be failed")
	}
	if lr.ExecutionError == "" {
		t.Error("execution error not recorded")
	}
	if len(lr.Findings) != 1 {
		t.Fatalf("expected one synthetic finding, got %d", len(lr.Findings))
	}
}

func TestRunVerdictFollowsGate(t *testing.T) {
	// Layers pass but coverage is unmeasured against a floor: the gate
	// decides the verdict.
	p := New([]LayerExecutor{passingExecutor(models.LayerCodeQuality)}, gate.Config{MinCoveragePercent: 80})

	report, err := p.Run(context.Background(), JobContext{JobID: "job-1", StoryID: "story-1", Attempt: 1})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Passed {
		t.Error("report should fail on the coverage gate")
	}
	if report.Gate.Passed {
		t.Error("gate result should be failed")
	}
}

func TestRunHeartbeatsBetweenLayers(t *testing.T) {
	beats := 0
	p := New([]LayerExecutor{
		passingExecutor(models.LayerCodeQuality),
		passingExecutor(models.LayerFunctional),
	}, gate.Config{})

	_, err := p.Run(context.Background(), JobContext{
		JobID:     "job-1",
		StoryID:   "story-1",
		Attempt:   1,
		Heartbeat: func() { beats++ },
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if beats != 2 {
		t.Errorf("heartbeats = %d, want 2", beats)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New([]LayerExecutor{passingExecutor(models.LayerCodeQuality)}, gate.Config{})
	if _, err := p.Run(ctx, JobContext{JobID: "job-1"}); err == nil {
		t.Fatal("expected cancellation error")
	}
}
