package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/oIoTShipTalk/convex-evals/internal/backend"
	"github.com/oIoTShipTalk/convex-evals/internal/codegen"
	"github.com/oIoTShipTalk/convex-evals/internal/config"
	execrunner "github.com/oIoTShipTalk/convex-evals/internal/exec"
	"github.com/oIoTShipTalk/convex-evals/internal/orchestrator"
	"github.com/oIoTShipTalk/convex-evals/internal/pipeline"
	"github.com/oIoTShipTalk/convex-evals/internal/report"
	"github.com/oIoTShipTalk/convex-evals/internal/state"
)

var (
	runEvalsDir       string
	runOutputDir      string
	runForce          bool
	runFilter         string
	runSkipGeneration bool
	runSkipEvaluation bool
	runConcurrency    int
	runModel          string
	runBedrock        bool
	runReportPath     string
	runHistoryDB      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate and evaluate Convex backend projects",
	Long: `Run the evaluation harness over a directory of test cases.

Each test case is a <category>/<test> directory under the evals root
containing a TASK.txt task description. For every case the harness
generates a candidate project, then verifies it through four stages:

  setup      bun install and convex codegen
  typecheck  tsc -noEmit over the convex directory
  lint       eslint with the fixed config
  deploy     push to a local convex backend instance

Generation runs concurrently up to --concurrency. Evaluation is
strictly serial because the deploy stage binds fixed local ports.

Examples:
  convex-evals run --evals-dir ./evals
  convex-evals run --filter 'crud.*' --concurrency 8
  convex-evals run --skip-generation --output-dir ./previous-run`,
	Args: cobra.NoArgs,
	RunE: runEvals,
}

func init() {
	runCmd.Flags().StringVar(&runEvalsDir, "evals-dir", "", "Directory of <category>/<test> test cases (default from config)")
	runCmd.Flags().StringVar(&runOutputDir, "output-dir", "", "Directory for generated projects and backend storage")
	runCmd.Flags().BoolVar(&runForce, "force", false, "Remove an existing output directory before generating")
	runCmd.Flags().StringVar(&runFilter, "filter", "", "Regexp matched against test case names")
	runCmd.Flags().BoolVar(&runSkipGeneration, "skip-generation", false, "Reuse projects already in the output directory")
	runCmd.Flags().BoolVar(&runSkipEvaluation, "skip-evaluation", false, "Stop after generation, run no verification stages")
	runCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "Max parallel generation calls (default from config)")
	runCmd.Flags().StringVar(&runModel, "model", "", "Claude model for generation (default from config)")
	runCmd.Flags().BoolVar(&runBedrock, "bedrock", false, "Route generation through AWS Bedrock")
	runCmd.Flags().StringVar(&runReportPath, "report", "", "Report JSON path (default <output-dir>/report.json)")
	runCmd.Flags().StringVar(&runHistoryDB, "history-db", "", "SQLite database for run history (default from config)")
}

func runEvals(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyRunFlags(cmd, cfg)

	runID := uuid.New().String()
	startedAt := time.Now()

	outputDir := cfg.Evals.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(os.TempDir(), "convex-evals", runID)
	}
	if err := prepareOutputDir(outputDir); err != nil {
		return err
	}

	var filter *regexp.Regexp
	if runFilter != "" {
		filter, err = regexp.Compile(runFilter)
		if err != nil {
			return fmt.Errorf("invalid --filter: %w", err)
		}
	}

	var generator codegen.Generator
	if !runSkipGeneration {
		generator, err = codegen.NewClient(codegen.ClientConfig{
			Model:         anthropic.Model(cfg.Anthropic.Model),
			APIKey:        cfg.Anthropic.APIKey,
			UseAWSBedrock: cfg.Anthropic.UseBedrock,
			AWSRegion:     cfg.Anthropic.AWSRegion,
			AWSProfile:    cfg.Anthropic.AWSProfile,
		})
		if err != nil {
			return err
		}
	}

	pipe := pipeline.New(pipeline.Config{
		Runner:       execrunner.NewRunner(),
		OutputRoot:   outputDir,
		ESLintConfig: cfg.Lint.ESLintConfig,
		Backend: backend.Config{
			Binary:       cfg.Backend.Binary,
			Port:         cfg.Backend.Port,
			SitePort:     cfg.Backend.SitePort,
			ProbeTimeout: cfg.Backend.ProbeTimeout,
		},
	})

	orch := orchestrator.New(orchestrator.Config{
		EvalsRoot:      cfg.Evals.Root,
		OutputRoot:     outputDir,
		Filter:         filter,
		SkipGeneration: runSkipGeneration,
		SkipEvaluation: runSkipEvaluation,
		Concurrency:    cfg.Evals.Concurrency,
		Generator:      generator,
		Pipeline:       pipe,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rep, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	if runSkipEvaluation {
		fmt.Printf("\nGeneration complete. Projects written under %s\n", outputDir)
		return nil
	}

	reportPath := runReportPath
	if reportPath == "" {
		reportPath = filepath.Join(outputDir, "report.json")
	}
	if err := rep.WriteJSON(reportPath); err != nil {
		return err
	}

	if cfg.History.DBPath != "" {
		if err := recordHistory(cfg.History.DBPath, runID, startedAt, cfg.Evals.Root, rep); err != nil {
			// History is a convenience layer; a broken database should
			// not mask the evaluation result.
			fmt.Fprintf(os.Stderr, "warning: recording history: %v\n", err)
		}
	}

	printSummary(rep, reportPath)

	if !rep.AllPassed() {
		return fmt.Errorf("%d of %d project(s) failed", failedCount(rep), len(rep.Entries))
	}
	return nil
}

// applyRunFlags overlays explicitly set flags onto the loaded config.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if runEvalsDir != "" {
		cfg.Evals.Root = runEvalsDir
	}
	if runOutputDir != "" {
		cfg.Evals.OutputDir = runOutputDir
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Evals.Concurrency = runConcurrency
	}
	if runModel != "" {
		cfg.Anthropic.Model = runModel
	}
	if cmd.Flags().Changed("bedrock") {
		cfg.Anthropic.UseBedrock = runBedrock
	}
	if runHistoryDB != "" {
		cfg.History.DBPath = runHistoryDB
	}
}

// prepareOutputDir ensures the output directory is usable. An existing
// directory is an error unless the run reuses it (--skip-generation)
// or the caller asked for a clean slate (--force).
func prepareOutputDir(dir string) error {
	if _, err := os.Stat(dir); err == nil {
		switch {
		case runForce:
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("removing output directory: %w", err)
			}
		case runSkipGeneration:
			return nil
		default:
			return fmt.Errorf("output directory %s already exists (use --force to overwrite or --skip-generation to reuse it)", dir)
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	return nil
}

func recordHistory(dbPath, runID string, startedAt time.Time, evalsRoot string, rep *report.Report) error {
	db, err := state.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	return db.RecordRun(state.Run{
		ID:         runID,
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		EvalsRoot:  evalsRoot,
		Passed:     rep.AllPassed(),
	}, rep)
}

// printSummary prints a per-project, per-stage results table.
func printSummary(rep *report.Report, reportPath string) {
	fmt.Printf("\nResults (%d project(s)):\n", len(rep.Entries))

	stageNames := []string{"setup", "typecheck", "lint", "deploy"}
	for _, entry := range rep.Entries {
		fmt.Printf("  %s/%s\n", entry.Category, entry.Test)
		for i, outcome := range entry.Outcomes() {
			switch {
			case outcome == nil:
				fmt.Printf("    %s %s (not attempted)\n", color.HiBlackString("-"), stageNames[i])
			case outcome.Passed():
				fmt.Printf("    %s %s\n", color.GreenString("✓"), stageNames[i])
			default:
				fmt.Printf("    %s %s\n", color.RedString("✗"), stageNames[i])
			}
		}
	}

	fmt.Println()
	if rep.AllPassed() {
		fmt.Printf("%s All stages passed\n", color.GreenString("✓"))
	} else {
		fmt.Printf("%s %d of %d project(s) failed\n",
			color.RedString("✗"), failedCount(rep), len(rep.Entries))
	}
	fmt.Printf("Report written to %s\n", reportPath)
}

func failedCount(rep *report.Report) int {
	n := 0
	for _, entry := range rep.Entries {
		if !entry.AllPassed() {
			n++
		}
	}
	return n
}
