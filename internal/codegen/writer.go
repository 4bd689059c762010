package codegen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathEscapeError indicates a generated file path resolved outside the
// target project directory. This is a hard generation error; nothing
// is written for the project.
type PathEscapeError struct {
	Path string
	Root string
}

// Error implements the error interface.
func (e *PathEscapeError) Error() string {
	return fmt.Sprintf("generated path %q escapes project directory %s", e.Path, e.Root)
}

// WriteFiles writes the generated files under dir. Every relative
// path must resolve strictly inside dir; if any path escapes, no file
// is written at all.
func WriteFiles(dir string, files []File) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving project directory: %w", err)
	}

	// Validate all paths before writing anything.
	resolved := make([]string, len(files))
	for i, f := range files {
		target := filepath.Join(root, filepath.Clean(f.Path))
		if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
			return &PathEscapeError{Path: f.Path, Root: root}
		}
		if filepath.IsAbs(f.Path) || target == root {
			return &PathEscapeError{Path: f.Path, Root: root}
		}
		resolved[i] = target
	}

	for i, f := range files {
		if err := os.MkdirAll(filepath.Dir(resolved[i]), 0755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", f.Path, err)
		}
		if err := os.WriteFile(resolved[i], []byte(f.Content), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", f.Path, err)
		}
	}
	return nil
}
