package checks

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ShayCichocki/vigil/internal/gate"
	"github.com/ShayCichocki/vigil/internal/pipeline"
	"github.com/ShayCichocki/vigil/pkg/models"
)

// coveragePattern matches the statement coverage line emitted by
// "go test -cover" and compatible tools.
var coveragePattern = regexp.MustCompile(`coverage:\s+(\d+(?:\.\d+)?)%`)

// perfRegressionPattern matches a benchmark comparison summary line of
// the form "regression: 12.5%".
var perfRegressionPattern = regexp.MustCompile(`regression:\s+(-?\d+(?:\.\d+)?)%`)

// LayerCommand is a single named check within a layer.
type LayerCommand struct {
	// Name identifies the check in findings, e.g. "lint" or "unit tests".
	Name string
	// Command is the shell command to run.
	Command string
}

// CommandExecutor runs a sequence of shell commands for one validation
// layer. A non-zero exit from any command produces a finding; the layer
// passes only when every command exits zero.
type CommandExecutor struct {
	layer           string
	commands        []LayerCommand
	securityCommand string
	timeout         time.Duration
	runner          CommandRunner
}

// CommandExecutorOption configures a CommandExecutor.
type CommandExecutorOption func(*CommandExecutor)

// WithSecurityScan adds a security scan command to the executor. The
// scan's exit status is recorded separately from pass/fail findings so
// the quality gate can enforce it.
func WithSecurityScan(command string) CommandExecutorOption {
	return func(e *CommandExecutor) {
		e.securityCommand = command
	}
}

// WithRunner overrides the command runner, primarily for tests.
func WithRunner(r CommandRunner) CommandExecutorOption {
	return func(e *CommandExecutor) {
		e.runner = r
	}
}

// WithTimeout overrides the per-layer timeout.
func WithTimeout(d time.Duration) CommandExecutorOption {
	return func(e *CommandExecutor) {
		e.timeout = d
	}
}

// NewCommandExecutor creates an executor for the given layer running
// the given commands in order.
func NewCommandExecutor(layer string, commands []LayerCommand, opts ...CommandExecutorOption) *CommandExecutor {
	e := &CommandExecutor{
		layer:    layer,
		commands: commands,
		timeout:  10 * time.Minute,
		runner:   NewShellRunner(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Layer returns the validation layer this executor serves.
func (e *CommandExecutor) Layer() string {
	return e.layer
}

// Run executes every configured command and collects findings for the
// ones that fail. Commands that cannot be started at all are reported
// as an execution fault rather than a check failure.
func (e *CommandExecutor) Run(ctx context.Context, jc pipeline.JobContext) (models.LayerResult, error) {
	start := time.Now()
	result := models.LayerResult{
		Layer:                 e.layer,
		Passed:                true,
		CoveragePercent:       -1,
		PerfRegressionPercent: -1,
	}

	for _, lc := range e.commands {
		output, err := e.runCommand(ctx, jc.WorkDir, lc.Command)
		if cov, ok := extractCoverage(output); ok && cov > result.CoveragePercent {
			result.CoveragePercent = cov
		}
		if reg, ok := extractPerfRegression(output); ok && reg > result.PerfRegressionPercent {
			result.PerfRegressionPercent = reg
		}
		if err == nil {
			continue
		}
		var exitErr *exec.ExitError
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			result.Passed = false
			result.Findings = append(result.Findings, models.Finding{
				Description:  fmt.Sprintf("%s timed out after %s", lc.Name, e.timeout),
				Component:    lc.Name,
				SeverityHint: models.SeverityHigh,
				Evidence:     []string{truncateOutput(output)},
			})
		case errors.As(err, &exitErr):
			result.Passed = false
			result.Findings = append(result.Findings, models.Finding{
				Description:  fmt.Sprintf("%s failed with exit code %d", lc.Name, exitErr.ExitCode()),
				Component:    lc.Name,
				SeverityHint: models.SeverityMedium,
				Evidence:     []string{truncateOutput(output)},
			})
		default:
			return models.LayerResult{}, fmt.Errorf("run %s check %q: %w", e.layer, lc.Name, err)
		}
	}

	if e.securityCommand != "" {
		output, err := e.runCommand(ctx, jc.WorkDir, e.securityCommand)
		var exitErr *exec.ExitError
		switch {
		case err == nil:
			result.SecurityScan = gate.ScanPassed
		case errors.As(err, &exitErr) || errors.Is(err, context.DeadlineExceeded):
			result.SecurityScan = gate.ScanFailed
			result.Passed = false
			result.Findings = append(result.Findings, models.Finding{
				Description:  "security scan reported issues",
				Component:    "security scan",
				SeverityHint: models.SeverityHigh,
				Evidence:     []string{truncateOutput(output)},
			})
		default:
			return models.LayerResult{}, fmt.Errorf("run %s security scan: %w", e.layer, err)
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// runCommand executes one command under the layer timeout. Deadline
// expiry is surfaced as context.DeadlineExceeded regardless of how the
// shell died.
func (e *CommandExecutor) runCommand(ctx context.Context, workDir, command string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	output, err := e.runner.RunShell(runCtx, workDir, command)
	if runCtx.Err() == context.DeadlineExceeded {
		return output, context.DeadlineExceeded
	}
	return output, err
}

func extractCoverage(output []byte) (float64, bool) {
	m := coveragePattern.FindSubmatch(output)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(string(m[1]), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func extractPerfRegression(output []byte) (float64, bool) {
	m := perfRegressionPattern.FindSubmatch(output)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(string(m[1]), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// truncateOutput keeps the tail of command output, where test runners
// and linters put their summaries.
func truncateOutput(output []byte) string {
	const maxLen = 2000
	s := strings.TrimSpace(string(output))
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}
