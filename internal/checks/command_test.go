package checks

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ShayCichocki/vigil/internal/gate"
	"github.com/ShayCichocki/vigil/internal/pipeline"
	"github.com/ShayCichocki/vigil/pkg/models"
)

// faultRunner simulates commands that cannot be started at all.
type faultRunner struct {
	err error
}

func (f *faultRunner) RunShell(ctx context.Context, workDir, command string) ([]byte, error) {
	return nil, f.err
}

func testJobContext() pipeline.JobContext {
	return pipeline.JobContext{
		JobID:   "job-1",
		StoryID: "story-1",
		Attempt: 1,
	}
}

func TestCommandExecutorAllPass(t *testing.T) {
	e := NewCommandExecutor(models.LayerFunctional, []LayerCommand{
		{Name: "unit tests", Command: `echo "coverage: 85.3% of statements"`},
		{Name: "smoke", Command: "true"},
	})

	result, err := e.Run(context.Background(), testJobContext())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.Passed {
		t.Errorf("Passed = false, want true (findings: %v)", result.Findings)
	}
	if len(result.Findings) != 0 {
		t.Errorf("Findings = %d, want 0", len(result.Findings))
	}
	if result.CoveragePercent != 85.3 {
		t.Errorf("CoveragePercent = %v, want 85.3", result.CoveragePercent)
	}
	if result.Layer != models.LayerFunctional {
		t.Errorf("Layer = %q, want %q", result.Layer, models.LayerFunctional)
	}
}

func TestCommandExecutorExitFailure(t *testing.T) {
	e := NewCommandExecutor(models.LayerCodeQuality, []LayerCommand{
		{Name: "lint", Command: "echo lint error found; exit 3"},
		{Name: "vet", Command: "true"},
	})

	result, err := e.Run(context.Background(), testJobContext())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Passed {
		t.Error("Passed = true, want false")
	}
	if len(result.Findings) != 1 {
		t.Fatalf("Findings = %d, want 1", len(result.Findings))
	}
	f := result.Findings[0]
	if !strings.Contains(f.Description, "exit code 3") {
		t.Errorf("Description = %q, want exit code 3 mention", f.Description)
	}
	if f.Component != "lint" {
		t.Errorf("Component = %q, want lint", f.Component)
	}
	if len(f.Evidence) != 1 || !strings.Contains(f.Evidence[0], "lint error found") {
		t.Errorf("Evidence = %v, want captured output", f.Evidence)
	}
}

func TestCommandExecutorTimeout(t *testing.T) {
	e := NewCommandExecutor(models.LayerIntegration, []LayerCommand{
		{Name: "e2e", Command: "sleep 5"},
	}, WithTimeout(50*time.Millisecond))

	result, err := e.Run(context.Background(), testJobContext())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Passed {
		t.Error("Passed = true, want false")
	}
	if len(result.Findings) != 1 {
		t.Fatalf("Findings = %d, want 1", len(result.Findings))
	}
	if !strings.Contains(result.Findings[0].Description, "timed out") {
		t.Errorf("Description = %q, want timeout mention", result.Findings[0].Description)
	}
	if result.Findings[0].SeverityHint != models.SeverityHigh {
		t.Errorf("SeverityHint = %q, want high", result.Findings[0].SeverityHint)
	}
}

func TestCommandExecutorStartFault(t *testing.T) {
	spawnErr := errors.New("spawn failed")
	e := NewCommandExecutor(models.LayerFunctional, []LayerCommand{
		{Name: "unit tests", Command: "true"},
	}, WithRunner(&faultRunner{err: spawnErr}))

	_, err := e.Run(context.Background(), testJobContext())
	if err == nil {
		t.Fatal("Run succeeded, want execution fault")
	}
	if !errors.Is(err, spawnErr) {
		t.Errorf("error = %v, want wrapped spawn failure", err)
	}
}

func TestCommandExecutorSecurityScan(t *testing.T) {
	passing := NewCommandExecutor(models.LayerCodeQuality, nil, WithSecurityScan("true"))
	result, err := passing.Run(context.Background(), testJobContext())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.SecurityScan != gate.ScanPassed {
		t.Errorf("SecurityScan = %q, want %q", result.SecurityScan, gate.ScanPassed)
	}
	if !result.Passed {
		t.Error("Passed = false, want true")
	}

	failing := NewCommandExecutor(models.LayerCodeQuality, nil, WithSecurityScan("echo CVE-0001; exit 1"))
	result, err = failing.Run(context.Background(), testJobContext())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.SecurityScan != gate.ScanFailed {
		t.Errorf("SecurityScan = %q, want %q", result.SecurityScan, gate.ScanFailed)
	}
	if result.Passed {
		t.Error("Passed = true, want false")
	}
	if len(result.Findings) != 1 {
		t.Fatalf("Findings = %d, want 1", len(result.Findings))
	}
}

func TestCommandExecutorUnmeasuredMetrics(t *testing.T) {
	e := NewCommandExecutor(models.LayerFunctional, []LayerCommand{
		{Name: "unit tests", Command: "true"},
	})

	result, err := e.Run(context.Background(), testJobContext())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.CoveragePercent != -1 {
		t.Errorf("CoveragePercent = %v, want -1", result.CoveragePercent)
	}
	if result.PerfRegressionPercent != -1 {
		t.Errorf("PerfRegressionPercent = %v, want -1", result.PerfRegressionPercent)
	}
}

func TestExtractCoverage(t *testing.T) {
	tests := []struct {
		output string
		want   float64
		ok     bool
	}{
		{"ok  \tpkg\t0.5s\tcoverage: 72.4% of statements", 72.4, true},
		{"coverage: 100% of statements", 100, true},
		{"no tests here", 0, false},
	}
	for _, tt := range tests {
		got, ok := extractCoverage([]byte(tt.output))
		if ok != tt.ok || got != tt.want {
			t.Errorf("extractCoverage(%q) = %v, %v, want %v, %v", tt.output, got, ok, tt.want, tt.ok)
		}
	}
}

func TestExtractPerfRegression(t *testing.T) {
	got, ok := extractPerfRegression([]byte("benchcheck: regression: 12.5% vs baseline"))
	if !ok || got != 12.5 {
		t.Errorf("extractPerfRegression = %v, %v, want 12.5, true", got, ok)
	}
	if _, ok := extractPerfRegression([]byte("all benchmarks stable")); ok {
		t.Error("extractPerfRegression matched output with no regression line")
	}
}

func TestTruncateOutput(t *testing.T) {
	long := strings.Repeat("x", 3000) + "summary line"
	got := truncateOutput([]byte(long))
	if !strings.HasPrefix(got, "...") {
		t.Errorf("truncated output missing prefix: %q", got[:10])
	}
	if !strings.HasSuffix(got, "summary line") {
		t.Error("truncated output lost the tail")
	}
	if short := truncateOutput([]byte("  short  ")); short != "short" {
		t.Errorf("truncateOutput(short) = %q, want %q", short, "short")
	}
}
