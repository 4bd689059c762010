// Package report defines the per-project evaluation record and the
// run-level report written at the end of an evaluation.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oIoTShipTalk/convex-evals/internal/verifier"
)

// Status is the pass/fail state of one attempted stage.
type Status string

const (
	// StatusOK means the stage's verification command succeeded.
	StatusOK Status = "ok"
	// StatusFailed means the stage was attempted and failed.
	StatusFailed Status = "failed"
)

// Diagnostics is the stage-specific failure payload. Each stage
// produces its own shape: text lines from the type checker,
// structured findings from the linter, or raw text when structured
// parsing was not possible.
type Diagnostics interface {
	isDiagnostics()
}

// TextLines is an ordered sequence of diagnostic lines.
type TextLines []string

func (TextLines) isDiagnostics() {}

// Findings is a list of structured linter records.
type Findings []verifier.Finding

func (Findings) isDiagnostics() {}

// RawText is an unstructured diagnostic blob, used as the fallback
// when structured output could not be parsed.
type RawText string

func (RawText) isDiagnostics() {}

// Outcome records the result of one attempted stage. Produced exactly
// once per attempted stage per project and immutable afterwards.
type Outcome struct {
	Status Status
	Error  Diagnostics
}

// OK returns a successful outcome.
func OK() *Outcome {
	return &Outcome{Status: StatusOK}
}

// FailedLines returns a failed outcome carrying line diagnostics.
func FailedLines(lines []string) *Outcome {
	return &Outcome{Status: StatusFailed, Error: TextLines(lines)}
}

// FailedFindings returns a failed outcome carrying structured linter
// findings.
func FailedFindings(findings []verifier.Finding) *Outcome {
	return &Outcome{Status: StatusFailed, Error: Findings(findings)}
}

// FailedText returns a failed outcome carrying an unparsed text blob.
func FailedText(text string) *Outcome {
	return &Outcome{Status: StatusFailed, Error: RawText(text)}
}

// Passed reports whether the stage succeeded.
func (o *Outcome) Passed() bool {
	return o != nil && o.Status == StatusOK
}

// MarshalJSON emits {"status":"ok"} or {"status":"failed","error":...}.
func (o *Outcome) MarshalJSON() ([]byte, error) {
	if o.Status == StatusOK {
		return json.Marshal(struct {
			Status Status `json:"status"`
		}{o.Status})
	}
	return json.Marshal(struct {
		Status Status      `json:"status"`
		Error  Diagnostics `json:"error,omitempty"`
	}{o.Status, o.Error})
}

// Entry is the per-project record of all attempted stage outcomes.
// A nil stage field means the stage was never attempted.
type Entry struct {
	Category  string   `json:"category"`
	Test      string   `json:"test"`
	Setup     *Outcome `json:"setup,omitempty"`
	Typecheck *Outcome `json:"typecheck,omitempty"`
	Lint      *Outcome `json:"lint,omitempty"`
	Deploy    *Outcome `json:"deploy,omitempty"`
}

// NewEntry creates an empty entry for the given project identity.
func NewEntry(category, test string) *Entry {
	return &Entry{Category: category, Test: test}
}

// Outcomes returns the stage outcomes in pipeline order. Unattempted
// stages appear as nil.
func (e *Entry) Outcomes() []*Outcome {
	return []*Outcome{e.Setup, e.Typecheck, e.Lint, e.Deploy}
}

// AllPassed reports whether every attempted stage succeeded.
func (e *Entry) AllPassed() bool {
	for _, o := range e.Outcomes() {
		if o != nil && !o.Passed() {
			return false
		}
	}
	return true
}

// Report is the ordered sequence of entries for one evaluation run,
// in project discovery order.
type Report struct {
	Entries []*Entry
}

// Append adds one finalized entry.
func (r *Report) Append(entry *Entry) {
	r.Entries = append(r.Entries, entry)
}

// AllPassed reports whether every entry has only passing stages.
func (r *Report) AllPassed() bool {
	for _, e := range r.Entries {
		if !e.AllPassed() {
			return false
		}
	}
	return true
}

// WriteJSON writes the report as a single JSON array, one object per
// evaluated project.
func (r *Report) WriteJSON(path string) error {
	entries := r.Entries
	if entries == nil {
		entries = []*Entry{}
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}
