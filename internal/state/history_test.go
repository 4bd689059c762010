package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/oIoTShipTalk/convex-evals/internal/report"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history", "evals.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordRun_RoundTrip(t *testing.T) {
	db := openTestDB(t)

	var rep report.Report
	entry := report.NewEntry("basic", "echo")
	entry.Setup = report.OK()
	entry.Typecheck = report.FailedLines([]string{"error TS2304"})
	rep.Append(entry)

	started := time.Now().Add(-time.Minute).UTC().Truncate(time.Second)
	finished := time.Now().UTC().Truncate(time.Second)
	run := Run{
		ID:         "abc12345",
		StartedAt:  started,
		FinishedAt: finished,
		EvalsRoot:  "/evals",
		Passed:     false,
	}
	if err := db.RecordRun(run, &rep); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	runs, err := db.Runs()
	if err != nil {
		t.Fatalf("Runs failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].ID != "abc12345" || runs[0].Passed {
		t.Errorf("unexpected run row: %+v", runs[0])
	}

	results, err := db.StageResults("abc12345")
	if err != nil {
		t.Fatalf("StageResults failed: %v", err)
	}
	// Only attempted stages are recorded: setup and typecheck.
	if len(results) != 2 {
		t.Fatalf("expected 2 stage results, got %d", len(results))
	}
	byStage := make(map[string]string)
	for _, r := range results {
		byStage[r.Stage] = r.Status
	}
	if byStage["setup"] != "ok" {
		t.Errorf("unexpected setup status: %q", byStage["setup"])
	}
	if byStage["typecheck"] != "failed" {
		t.Errorf("unexpected typecheck status: %q", byStage["typecheck"])
	}
}

func TestRecordRun_DuplicateRunID(t *testing.T) {
	db := openTestDB(t)

	var rep report.Report
	run := Run{ID: "dup", StartedAt: time.Now(), FinishedAt: time.Now(), EvalsRoot: "/evals", Passed: true}
	if err := db.RecordRun(run, &rep); err != nil {
		t.Fatalf("first RecordRun failed: %v", err)
	}
	if err := db.RecordRun(run, &rep); err == nil {
		t.Error("duplicate run id should fail")
	}
}
