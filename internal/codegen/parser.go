package codegen

import (
	"fmt"
	"strings"
)

// ParseError indicates the generation response's file markup could not
// be decoded. It is an infrastructure error: the response is malformed,
// not merely a failing candidate project.
type ParseError struct {
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed generation output: %s", e.Reason)
}

// ExtractFiles decodes the model's response text into an ordered
// sequence of file records. Each file is a fenced code block whose
// opening fence carries a path="..." attribute; fenced blocks without
// one are treated as prose and skipped. A response with an
// unterminated block, a repeated path, or no files at all is a
// *ParseError.
func ExtractFiles(text string) ([]File, error) {
	lines := strings.Split(text, "\n")

	var files []File
	seen := make(map[string]bool)

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "```") {
			continue
		}

		path, hasPath := fencePath(line)

		// Collect the block body up to the closing fence.
		var body []string
		closed := false
		for i++; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == "```" {
				closed = true
				break
			}
			body = append(body, lines[i])
		}
		if !closed {
			return nil, &ParseError{Reason: "unterminated code block"}
		}
		if !hasPath {
			continue
		}

		if path == "" {
			return nil, &ParseError{Reason: "empty file path on code fence"}
		}
		if seen[path] {
			return nil, &ParseError{Reason: fmt.Sprintf("duplicate file path %q", path)}
		}
		seen[path] = true

		files = append(files, File{
			Path:    path,
			Content: strings.Join(body, "\n"),
		})
	}

	if len(files) == 0 {
		return nil, &ParseError{Reason: "no file blocks found"}
	}
	return files, nil
}

// fencePath extracts the path="..." attribute from an opening fence
// line, if present.
func fencePath(fence string) (string, bool) {
	const marker = `path="`
	start := strings.Index(fence, marker)
	if start < 0 {
		return "", false
	}
	rest := fence[start+len(marker):]
	end := strings.Index(rest, `"`)
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}
