// Package verifier executes external verification commands and maps
// their exit status to structured outcomes. A non-zero exit is the
// expected "failed" signal, distinct from an infrastructure error
// such as a missing binary.
package verifier

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	execrunner "github.com/oIoTShipTalk/convex-evals/internal/exec"
)

// Result holds the outcome of one verification command.
type Result struct {
	// ExitCode is the command's exit status. Zero means the check passed.
	ExitCode int
	// Output is the combined stdout/stderr captured from the command.
	Output []byte
}

// OK reports whether the command exited successfully.
func (r *Result) OK() bool {
	return r.ExitCode == 0
}

// OutputLines splits the captured output into trimmed, non-empty lines
// for use as textual diagnostics.
func (r *Result) OutputLines() []string {
	var lines []string
	for _, line := range strings.Split(string(r.Output), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// InfraError indicates the verification command could not run at all:
// binary not found, process failed to start, or similar. It is
// unrecoverable for the current project, unlike a non-zero exit.
type InfraError struct {
	Command string
	Err     error
}

// Error implements the error interface.
func (e *InfraError) Error() string {
	return fmt.Sprintf("verifier %s could not run: %v", e.Command, e.Err)
}

// Unwrap returns the underlying cause.
func (e *InfraError) Unwrap() error {
	return e.Err
}

// Runner executes verification commands through a CommandRunner.
type Runner struct {
	runner execrunner.CommandRunner
}

// NewRunner creates a verification Runner backed by the given
// CommandRunner.
func NewRunner(runner execrunner.CommandRunner) *Runner {
	return &Runner{runner: runner}
}

// Run executes one verification command in workDir and captures its
// combined output. A non-zero exit code is returned as a normal
// Result, never as an error; errors are reserved for infrastructure
// failures.
func (r *Runner) Run(ctx context.Context, workDir string, name string, args ...string) (*Result, error) {
	out, err := r.runner.Run(ctx, workDir, name, args...)
	if err == nil {
		return &Result{ExitCode: 0, Output: out}, nil
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		return &Result{ExitCode: exitErr.ExitCode(), Output: out}, nil
	}

	return nil, &InfraError{Command: name, Err: err}
}

// RunStreaming executes one verification command with output wired to
// the console instead of captured. Used for the setup stage so long
// dependency installs stay visible.
func (r *Runner) RunStreaming(ctx context.Context, workDir string, name string, args ...string) (*Result, error) {
	err := r.runner.RunStreaming(ctx, workDir, name, args...)
	if err == nil {
		return &Result{ExitCode: 0}, nil
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		return &Result{ExitCode: exitErr.ExitCode()}, nil
	}

	return nil, &InfraError{Command: name, Err: err}
}
