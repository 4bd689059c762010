// Package evals discovers evaluation test cases and manages their
// generated project directories.
package evals

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// TaskFileName is the file holding a test case's task description.
const TaskFileName = "TASK.txt"

// Project is one generation task: a (category, test name) identity
// paired with its source directory and generated output directory.
// Projects are created by discovery and immutable thereafter.
type Project struct {
	// Category is the eval category directory name (e.g. "basic").
	Category string
	// Name is the test case directory name (e.g. "echo").
	Name string
	// Dir is the test case's source directory under the evals root.
	Dir string
	// OutputDir is where the generated candidate project is written.
	OutputDir string
}

// ID returns the project's display identity.
func (p *Project) ID() string {
	return p.Category + "/" + p.Name
}

// Task reads the project's task description.
func (p *Project) Task() (string, error) {
	data, err := os.ReadFile(filepath.Join(p.Dir, TaskFileName))
	if err != nil {
		return "", fmt.Errorf("reading task for %s: %w", p.ID(), err)
	}
	return string(data), nil
}

// BackendDir returns the storage directory for this project's deploy
// attempt, disjoint from the generated project files.
func (p *Project) BackendDir(outputRoot string) string {
	return filepath.Join(outputRoot, "backends", p.Category, p.Name)
}

// Discover lists categories under root, then test cases under each
// category, keeping directories that contain a TASK.txt. The optional
// filter is matched against the test case name only, never the
// category. The result is sorted by (category, name) for determinism.
func Discover(root, outputRoot string, filter *regexp.Regexp) ([]*Project, error) {
	categories, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading evals root %s: %w", root, err)
	}

	var projects []*Project
	for _, category := range categories {
		if !category.IsDir() {
			continue
		}

		tests, err := os.ReadDir(filepath.Join(root, category.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading category %s: %w", category.Name(), err)
		}

		for _, test := range tests {
			if !test.IsDir() {
				continue
			}
			if filter != nil && !filter.MatchString(test.Name()) {
				continue
			}

			dir := filepath.Join(root, category.Name(), test.Name())
			if _, err := os.Stat(filepath.Join(dir, TaskFileName)); err != nil {
				continue
			}

			projects = append(projects, &Project{
				Category:  category.Name(),
				Name:      test.Name(),
				Dir:       dir,
				OutputDir: filepath.Join(outputRoot, "output", category.Name(), test.Name()),
			})
		}
	}

	sort.Slice(projects, func(i, j int) bool {
		if projects[i].Category != projects[j].Category {
			return projects[i].Category < projects[j].Category
		}
		return projects[i].Name < projects[j].Name
	})

	return projects, nil
}
