package verifier

import (
	"encoding/json"
	"fmt"
)

// Finding is one linter diagnostic, flattened to (file, message) pairs
// from the linter's per-file JSON output. The linter's verbose source
// snippet is stripped to keep reports compact.
type Finding struct {
	File     string `json:"file"`
	Rule     string `json:"rule,omitempty"`
	Severity int    `json:"severity"`
	Message  string `json:"message"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
}

// eslintFileResult mirrors one element of eslint's --format json
// output. Only the fields we report on are decoded.
type eslintFileResult struct {
	FilePath string          `json:"filePath"`
	Messages []eslintMessage `json:"messages"`
}

type eslintMessage struct {
	RuleID   string `json:"ruleId"`
	Severity int    `json:"severity"`
	Message  string `json:"message"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	// Source is decoded only so it can be dropped explicitly.
	Source string `json:"source"`
}

// ParseLintOutput decodes eslint's JSON formatter output into a flat
// list of findings with the source snippet field stripped. Callers
// should fall back to raw-text diagnostics when decoding fails.
func ParseLintOutput(output []byte) ([]Finding, error) {
	var files []eslintFileResult
	if err := json.Unmarshal(output, &files); err != nil {
		return nil, fmt.Errorf("parsing lint output: %w", err)
	}

	var findings []Finding
	for _, file := range files {
		for _, msg := range file.Messages {
			findings = append(findings, Finding{
				File:     file.FilePath,
				Rule:     msg.RuleID,
				Severity: msg.Severity,
				Message:  msg.Message,
				Line:     msg.Line,
				Column:   msg.Column,
			})
		}
	}
	return findings, nil
}
