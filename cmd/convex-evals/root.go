package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// checkBun verifies that the 'bun' runtime is available in PATH.
// Returns an error with installation instructions if not found.
func checkBun() error {
	_, err := exec.LookPath("bun")
	if err != nil {
		return fmt.Errorf("bun not found in PATH\n\n" +
			"The evaluation pipeline runs bun install, tsc, eslint and the\n" +
			"convex CLI through bun.\n\n" +
			"Install it with:\n" +
			"  curl -fsSL https://bun.sh/install | bash")
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "convex-evals",
	Short: "Evaluation harness for generated Convex backends",
	Long: `convex-evals generates candidate Convex backend projects from
natural-language task descriptions and verifies each candidate through
a fixed pipeline: dependency install, framework codegen, type
checking, linting, and deployment to a local Convex backend.

Test cases live under an evals root as <category>/<test>/TASK.txt.
Each evaluated project gets one report entry recording per-stage
pass/fail outcomes.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}
