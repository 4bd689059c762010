package codegen

import (
	"errors"
	"strings"
	"testing"
)

func TestExtractFiles_MultipleFiles(t *testing.T) {
	text := "Here is the project.\n\n" +
		"```json path=\"package.json\"\n" +
		"{\"dependencies\": {\"convex\": \"^1.0.0\"}}\n" +
		"```\n\n" +
		"And the schema:\n\n" +
		"```ts path=\"convex/schema.ts\"\n" +
		"import { defineSchema } from \"convex/server\";\n" +
		"export default defineSchema({});\n" +
		"```\n"

	files, err := ExtractFiles(text)
	if err != nil {
		t.Fatalf("ExtractFiles failed: %v", err)
	}

	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if files[0].Path != "package.json" {
		t.Errorf("unexpected first path: %q", files[0].Path)
	}
	if !strings.Contains(files[0].Content, "convex") {
		t.Errorf("unexpected first content: %q", files[0].Content)
	}
	if files[1].Path != "convex/schema.ts" {
		t.Errorf("unexpected second path: %q", files[1].Path)
	}
	if !strings.Contains(files[1].Content, "defineSchema") {
		t.Errorf("unexpected second content: %q", files[1].Content)
	}
}

func TestExtractFiles_SkipsProseBlocks(t *testing.T) {
	text := "An example, not a file:\n\n" +
		"```ts\nconst example = 1;\n```\n\n" +
		"```ts path=\"convex/tasks.ts\"\nexport const x = 1;\n```\n"

	files, err := ExtractFiles(text)
	if err != nil {
		t.Fatalf("ExtractFiles failed: %v", err)
	}
	if len(files) != 1 || files[0].Path != "convex/tasks.ts" {
		t.Errorf("unexpected files: %v", files)
	}
}

func TestExtractFiles_Malformed(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{"no files", "I could not produce any files, sorry."},
		{"unterminated block", "```ts path=\"a.ts\"\nconst x = 1;"},
		{"duplicate path", "```ts path=\"a.ts\"\n1\n```\n```ts path=\"a.ts\"\n2\n```"},
		{"empty path", "```ts path=\"\"\n1\n```"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ExtractFiles(tc.text)
			if err == nil {
				t.Fatal("expected parse error")
			}
			var parseErr *ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected *ParseError, got %T: %v", err, err)
			}
		})
	}
}

func TestExtractFiles_PreservesOrder(t *testing.T) {
	text := "```ts path=\"b.ts\"\n2\n```\n```ts path=\"a.ts\"\n1\n```"

	files, err := ExtractFiles(text)
	if err != nil {
		t.Fatalf("ExtractFiles failed: %v", err)
	}
	if files[0].Path != "b.ts" || files[1].Path != "a.ts" {
		t.Errorf("files should keep response order, got %v", files)
	}
}
