// Package checks provides the layer executors consumed by the
// validation pipeline: command-backed executors for the code-quality,
// functional, and integration layers, and a Claude-backed reviewer for
// the user-experience layer.
package checks

import (
	"context"
	"os/exec"
)

// CommandRunner defines the interface for running external commands.
// This abstraction allows mocking check execution in tests.
type CommandRunner interface {
	// RunShell executes a shell command through "sh -c" and returns
	// combined stdout/stderr output. The working directory is set to
	// workDir if non-empty.
	RunShell(ctx context.Context, workDir string, command string) (output []byte, err error)
}

// ShellRunner implements CommandRunner using os/exec.
type ShellRunner struct{}

// NewShellRunner creates a new ShellRunner.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{}
}

// RunShell executes a shell command through "sh -c".
func (r *ShellRunner) RunShell(ctx context.Context, workDir string, command string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if workDir != "" {
		cmd.Dir = workDir
	}
	return cmd.CombinedOutput()
}

// Verify ShellRunner implements CommandRunner at compile time.
var _ CommandRunner = (*ShellRunner)(nil)
