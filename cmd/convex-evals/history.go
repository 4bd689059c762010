package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/oIoTShipTalk/convex-evals/internal/config"
	"github.com/oIoTShipTalk/convex-evals/internal/state"
)

var (
	historyDB    string
	historyRunID string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded evaluation runs",
	Long: `List runs recorded in the history database, most recent first.

With --run, show the per-stage outcomes recorded for one run instead.

The database path comes from --db, falling back to history.db_path in
the configuration. Runs are only recorded when a history path is
configured for 'convex-evals run'.

Examples:
  convex-evals history --db ./history.db
  convex-evals history --run 4f9c1b2a --db ./history.db`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyDB, "db", "", "SQLite history database path (default from config)")
	historyCmd.Flags().StringVar(&historyRunID, "run", "", "Show stage outcomes for one run ID")
}

func runHistory(cmd *cobra.Command, args []string) error {
	dbPath := historyDB
	if dbPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		dbPath = cfg.History.DBPath
	}
	if dbPath == "" {
		return fmt.Errorf("no history database configured (set --db or history.db_path)")
	}
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("history database %s not found", dbPath)
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if historyRunID != "" {
		results, err := db.StageResults(historyRunID)
		if err != nil {
			return err
		}
		printStageResults(os.Stdout, historyRunID, results)
		return nil
	}

	runs, err := db.Runs()
	if err != nil {
		return err
	}
	printRuns(os.Stdout, runs)
	return nil
}

// printRuns writes one line per recorded run, most recent first.
func printRuns(w io.Writer, runs []state.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}

	for _, run := range runs {
		result := color.GreenString("passed")
		if !run.Passed {
			result = color.RedString("failed")
		}
		fmt.Fprintf(w, "%s  %s  %-7s  %s\n",
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Second),
			result)
		fmt.Fprintf(w, "  evals root: %s\n", run.EvalsRoot)
	}
}

// printStageResults writes the recorded stage outcomes of one run,
// grouped by project.
func printStageResults(w io.Writer, runID string, results []state.StageResult) {
	if len(results) == 0 {
		fmt.Fprintf(w, "No stage results recorded for run %s.\n", runID)
		return
	}

	lastProject := ""
	for _, r := range results {
		project := r.Category + "/" + r.Test
		if project != lastProject {
			fmt.Fprintf(w, "%s\n", project)
			lastProject = project
		}
		symbol := color.GreenString("✓")
		if r.Status != "ok" {
			symbol = color.RedString("✗")
		}
		fmt.Fprintf(w, "  %s %s\n", symbol, r.Stage)
	}
}
