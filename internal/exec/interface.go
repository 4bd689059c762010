// Package exec provides an interface for command execution.
package exec

import (
	"context"
)

// CommandRunner defines the interface for running external commands.
// This abstraction allows mocking command execution in tests.
type CommandRunner interface {
	// Run executes a command and returns combined stdout/stderr output.
	// The working directory is set to workDir if non-empty.
	Run(ctx context.Context, workDir string, name string, args ...string) (output []byte, err error)

	// RunStreaming executes a command with stdout and stderr inherited
	// from the harness process. Used for long-running installs where
	// progress should be visible as it happens.
	RunStreaming(ctx context.Context, workDir string, name string, args ...string) error
}
