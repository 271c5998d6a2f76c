// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jeranaias/rigtool/internal/ignore"
)

// =============================================================================
// ARGUMENT BUILDING TESTS
// =============================================================================

func TestBuildFindArgs(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		args := buildFindArgs("main", findOptions{Root: "/repo"}, nil)
		want := "--color=never -- main /repo"
		if got := strings.Join(args, " "); got != want {
			t.Errorf("buildFindArgs() = %q, want %q", got, want)
		}
	})

	t.Run("all filters with enforcement", func(t *testing.T) {
		opts := findOptions{
			Root:      "/repo",
			Extension: "go",
			FileType:  "f",
			MaxDepth:  2,
			Hidden:    true,
		}
		enforcement := []string{"--no-ignore", "--ignore-file=/g/rules"}

		args := buildFindArgs("main", opts, enforcement)
		want := "--color=never -H -e go -t f --max-depth 2 --no-ignore --ignore-file=/g/rules -- main /repo"
		if got := strings.Join(args, " "); got != want {
			t.Errorf("buildFindArgs() = %q, want %q", got, want)
		}
	})

	t.Run("enforcement precedes positionals", func(t *testing.T) {
		args := buildFindArgs("x", findOptions{Root: "/r"}, []string{"--no-ignore"})
		joined := strings.Join(args, " ")
		if strings.Index(joined, "--no-ignore") > strings.Index(joined, " -- ") {
			t.Errorf("buildFindArgs() = %q, enforcement must come before the separator", joined)
		}
	})
}

func TestBuildSearchArgs(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		args := buildSearchArgs("todo", searchOptions{Target: "/repo"}, nil)
		want := "--color=never -n -e todo /repo"
		if got := strings.Join(args, " "); got != want {
			t.Errorf("buildSearchArgs() = %q, want %q", got, want)
		}
	})

	t.Run("files only suppresses line numbers and context", func(t *testing.T) {
		opts := searchOptions{Target: "/repo", FilesOnly: true, Context: 3}
		args := buildSearchArgs("todo", opts, nil)
		joined := strings.Join(args, " ")
		if !strings.Contains(joined, "-l") {
			t.Errorf("buildSearchArgs() = %q, want -l", joined)
		}
		if strings.Contains(joined, "-n") || strings.Contains(joined, "-C") {
			t.Errorf("buildSearchArgs() = %q, -n and -C have no effect with -l", joined)
		}
	})

	t.Run("all filters with enforcement", func(t *testing.T) {
		opts := searchOptions{
			Target:     "/repo",
			IgnoreCase: true,
			Context:    3,
			Glob:       "*.go",
			MaxCount:   5,
		}
		enforcement := []string{"--no-ignore", "--ignore-file=/g/rules"}

		args := buildSearchArgs("todo", opts, enforcement)
		want := "--color=never -n -i -C 3 --glob *.go -m 5 --no-ignore --ignore-file=/g/rules -e todo /repo"
		if got := strings.Join(args, " "); got != want {
			t.Errorf("buildSearchArgs() = %q, want %q", got, want)
		}
	})
}

// =============================================================================
// WALK HELPER TESTS
// =============================================================================

func TestRelativeDepth(t *testing.T) {
	root := filepath.Join("/", "repo")
	tests := []struct {
		path string
		want int
	}{
		{root, 0},
		{filepath.Join(root, "a"), 1},
		{filepath.Join(root, "a", "b"), 2},
		{filepath.Join(root, "a", "b", "c.go"), 3},
	}

	for _, tt := range tests {
		if got := relativeDepth(root, tt.path); got != tt.want {
			t.Errorf("relativeDepth(%q, %q) = %d, want %d", root, tt.path, got, tt.want)
		}
	}
}

func TestMatchFileGlob(t *testing.T) {
	root := filepath.Join("/", "repo")
	tests := []struct {
		name string
		glob string
		path string
		want bool
	}{
		{
			name: "bare glob matches basename at any depth",
			glob: "*.go",
			path: filepath.Join(root, "internal", "deep", "main.go"),
			want: true,
		},
		{
			name: "bare glob rejects other extensions",
			glob: "*.txt",
			path: filepath.Join(root, "main.go"),
			want: false,
		},
		{
			name: "doublestar prefix matches basename at any depth",
			glob: "**/*.txt",
			path: filepath.Join(root, "docs", "notes.txt"),
			want: true,
		},
		{
			name: "path glob matches relative path",
			glob: "cmd/*.go",
			path: filepath.Join(root, "cmd", "main.go"),
			want: true,
		},
		{
			name: "path glob rejects other directories",
			glob: "cmd/*.go",
			path: filepath.Join(root, "internal", "main.go"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchFileGlob(tt.glob, root, tt.path); got != tt.want {
				t.Errorf("matchFileGlob(%q, root, %q) = %v, want %v", tt.glob, tt.path, got, tt.want)
			}
		})
	}
}

func TestIsBinaryExtension(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"logo.png", true},
		{"photo.JPG", true},
		{"archive.tar", true},
		{"report.pdf", true},
		{"main.go", false},
		{"README", false},
		{"notes.txt", false},
	}

	for _, tt := range tests {
		if got := isBinaryExtension(tt.path); got != tt.want {
			t.Errorf("isBinaryExtension(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

// =============================================================================
// FIND FILES TESTS
// =============================================================================

// findTree builds the fixture tree used across the find_files tests:
//
//	a.go  b.txt  sub/c.go  .hiddendir/d.go  skip/e.go
//
// with a rule file at the root ignoring skip/.
func findTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	mustWriteFile(t, filepath.Join(dir, "a.go"), "package a")
	mustWriteFile(t, filepath.Join(dir, "b.txt"), "b")
	for _, sub := range []string{"sub", ".hiddendir", "skip"} {
		if err := os.Mkdir(filepath.Join(dir, sub), 0755); err != nil {
			t.Fatal(err)
		}
	}
	mustWriteFile(t, filepath.Join(dir, "sub", "c.go"), "package c")
	mustWriteFile(t, filepath.Join(dir, ".hiddendir", "d.go"), "package d")
	mustWriteFile(t, filepath.Join(dir, "skip", "e.go"), "package e")
	mustWriteFile(t, filepath.Join(dir, ignore.RuleFileName), "skip/\n")
	return dir
}

func TestFindFilesExecutor(t *testing.T) {
	ctx := context.Background()

	// Runner stays nil so the native walk runs regardless of what is
	// installed on the host.

	t.Run("matches names against the pattern", func(t *testing.T) {
		dir := findTree(t)
		e := &FindFilesExecutor{Engine: testEngine(t, "")}

		result, err := e.Execute(ctx, map[string]interface{}{
			"pattern": `\.go$`,
			"path":    dir,
		})
		if err != nil {
			t.Fatalf("Execute() error: %v", err)
		}
		if !result.Success {
			t.Fatalf("Execute() failed: %s", result.Error)
		}
		if result.FilesMatched != 2 {
			t.Errorf("Execute() FilesMatched = %d, want 2\noutput:\n%s", result.FilesMatched, result.Output)
		}
		if !strings.Contains(result.Output, "a.go") || !strings.Contains(result.Output, "c.go") {
			t.Errorf("Execute() Output = %q, want a.go and c.go", result.Output)
		}
		if strings.Contains(result.Output, "d.go") {
			t.Errorf("Execute() Output = %q, hidden directory should be pruned", result.Output)
		}
		if strings.Contains(result.Output, "e.go") {
			t.Errorf("Execute() Output = %q, ignored directory should be pruned", result.Output)
		}
	})

	t.Run("extension filter", func(t *testing.T) {
		dir := findTree(t)
		e := &FindFilesExecutor{Engine: testEngine(t, "")}

		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern":   ".",
			"path":      dir,
			"extension": "txt",
		})
		if result.FilesMatched != 1 || !strings.Contains(result.Output, "b.txt") {
			t.Errorf("Execute() = %+v, want only b.txt", result)
		}
	})

	t.Run("directory type filter", func(t *testing.T) {
		dir := findTree(t)
		e := &FindFilesExecutor{Engine: testEngine(t, "")}

		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern":   "sub",
			"path":      dir,
			"file_type": "d",
		})
		if result.FilesMatched != 1 || !strings.Contains(result.Output, "sub") {
			t.Errorf("Execute() = %+v, want the sub directory", result)
		}
	})

	t.Run("max_depth prunes deeper levels", func(t *testing.T) {
		dir := findTree(t)
		e := &FindFilesExecutor{Engine: testEngine(t, "")}

		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern":   `\.go$`,
			"path":      dir,
			"max_depth": float64(1),
		})
		if result.FilesMatched != 1 {
			t.Errorf("Execute() FilesMatched = %d, want 1\noutput:\n%s", result.FilesMatched, result.Output)
		}
		if strings.Contains(result.Output, "c.go") {
			t.Errorf("Execute() Output = %q, c.go sits below max_depth", result.Output)
		}
	})

	t.Run("hidden flag includes dot directories", func(t *testing.T) {
		dir := findTree(t)
		e := &FindFilesExecutor{Engine: testEngine(t, "")}

		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern": `\.go$`,
			"path":    dir,
			"hidden":  true,
		})
		if result.FilesMatched != 3 {
			t.Errorf("Execute() FilesMatched = %d, want 3\noutput:\n%s", result.FilesMatched, result.Output)
		}
		if !strings.Contains(result.Output, "d.go") {
			t.Errorf("Execute() Output = %q, want hidden d.go", result.Output)
		}
		if strings.Contains(result.Output, "e.go") {
			t.Errorf("Execute() Output = %q, ignore rules hold even with hidden", result.Output)
		}
	})

	t.Run("no matches", func(t *testing.T) {
		dir := findTree(t)
		e := &FindFilesExecutor{Engine: testEngine(t, "")}

		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern": "zzz",
			"path":    dir,
		})
		if !result.Success || result.Output != "No files matched pattern: zzz" {
			t.Errorf("Execute() = %+v, want no-match message", result)
		}
	})

	t.Run("result cap truncates", func(t *testing.T) {
		dir := findTree(t)
		e := &FindFilesExecutor{Engine: testEngine(t, ""), MaxResults: 1}

		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern": `\.go$`,
			"path":    dir,
		})
		if !result.Truncated || result.FilesMatched != 1 {
			t.Errorf("Execute() = %+v, want one truncated result", result)
		}
		if !strings.Contains(result.Output, "[Results limited to 1 files]") {
			t.Errorf("Execute() Output = %q, want limit marker", result.Output)
		}
	})

	t.Run("invalid pattern", func(t *testing.T) {
		dir := t.TempDir()
		e := &FindFilesExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern": "(",
			"path":    dir,
		})
		if result.Success || !strings.Contains(result.Error, "invalid pattern") {
			t.Errorf("Execute() = %+v, want pattern failure", result)
		}
	})

	t.Run("invalid file_type", func(t *testing.T) {
		e := &FindFilesExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern":   "x",
			"file_type": "x",
		})
		if result.Success || !strings.Contains(result.Error, `file_type must be "f" or "d"`) {
			t.Errorf("Execute() = %+v, want file_type failure", result)
		}
	})

	t.Run("pattern is required", func(t *testing.T) {
		e := &FindFilesExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{})
		if result.Success || !strings.Contains(result.Error, "pattern parameter is required") {
			t.Errorf("Execute() = %+v, want required-pattern failure", result)
		}
	})

	t.Run("root must be a directory", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "f.txt")
		mustWriteFile(t, path, "x")

		e := &FindFilesExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern": "x",
			"path":    path,
		})
		if result.Success || !strings.Contains(result.Error, "search path is not a directory") {
			t.Errorf("Execute() = %+v, want directory failure", result)
		}
	})
}

// =============================================================================
// SEARCH CONTENT TESTS
// =============================================================================

func TestSearchContentExecutor(t *testing.T) {
	ctx := context.Background()

	// Runner stays nil so the native scanner runs regardless of what is
	// installed on the host.

	t.Run("reports matches in grep form", func(t *testing.T) {
		dir := t.TempDir()
		mustWriteFile(t, filepath.Join(dir, "one.txt"), "needle here\nnothing\n")

		e := &SearchContentExecutor{}
		result, err := e.Execute(ctx, map[string]interface{}{
			"pattern": "needle",
			"path":    dir,
		})
		if err != nil {
			t.Fatalf("Execute() error: %v", err)
		}
		if !result.Success {
			t.Fatalf("Execute() failed: %s", result.Error)
		}
		if !strings.Contains(result.Output, "one.txt:1:needle here") {
			t.Errorf("Execute() Output = %q, want file:line:content form", result.Output)
		}
		if result.MatchCount != 1 || result.FilesMatched != 1 {
			t.Errorf("Execute() counts = (%d, %d), want (1, 1)", result.MatchCount, result.FilesMatched)
		}
	})

	t.Run("case sensitivity", func(t *testing.T) {
		dir := t.TempDir()
		mustWriteFile(t, filepath.Join(dir, "loud.txt"), "NEEDLE\n")

		e := &SearchContentExecutor{}

		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern": "needle",
			"path":    dir,
		})
		if result.Output != "No matches found for pattern: needle" {
			t.Errorf("Execute() Output = %q, want case-sensitive miss", result.Output)
		}

		result, _ = e.Execute(ctx, map[string]interface{}{
			"pattern":     "needle",
			"path":        dir,
			"ignore_case": true,
		})
		if result.MatchCount != 1 {
			t.Errorf("Execute() MatchCount = %d, want 1 with ignore_case", result.MatchCount)
		}
	})

	t.Run("no-match message shows the original pattern", func(t *testing.T) {
		dir := t.TempDir()
		mustWriteFile(t, filepath.Join(dir, "f.txt"), "content\n")

		e := &SearchContentExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern":     "zzz",
			"path":        dir,
			"ignore_case": true,
		})
		if result.Output != "No matches found for pattern: zzz" {
			t.Errorf("Execute() Output = %q, case prefix must not leak", result.Output)
		}
	})

	t.Run("context lines", func(t *testing.T) {
		dir := t.TempDir()
		mustWriteFile(t, filepath.Join(dir, "ctx.txt"), "one\ntwo needle\nthree\nfour\n")

		e := &SearchContentExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern": "needle",
			"path":    dir,
			"context": float64(1),
		})
		if !result.Success {
			t.Fatalf("Execute() failed: %s", result.Error)
		}
		for _, want := range []string{"ctx.txt:1-one", "ctx.txt:2:two needle", "ctx.txt:3+three"} {
			if !strings.Contains(result.Output, want) {
				t.Errorf("Execute() Output = %q, want %q", result.Output, want)
			}
		}
		if strings.Contains(result.Output, ":4") {
			t.Errorf("Execute() Output = %q, line 4 is outside the context window", result.Output)
		}
	})

	t.Run("files only lists paths", func(t *testing.T) {
		dir := t.TempDir()
		mustWriteFile(t, filepath.Join(dir, "hit.txt"), "needle\nneedle\n")

		e := &SearchContentExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern":    "needle",
			"path":       dir,
			"files_only": true,
		})
		if !strings.Contains(result.Output, "hit.txt") {
			t.Errorf("Execute() Output = %q, want the file path", result.Output)
		}
		if strings.Contains(result.Output, ":1:") {
			t.Errorf("Execute() Output = %q, line detail has no place in files_only", result.Output)
		}
		if result.FilesMatched != 1 {
			t.Errorf("Execute() FilesMatched = %d, want 1", result.FilesMatched)
		}
	})

	t.Run("glob filters files", func(t *testing.T) {
		dir := t.TempDir()
		mustWriteFile(t, filepath.Join(dir, "a.txt"), "needle\n")
		mustWriteFile(t, filepath.Join(dir, "b.log"), "needle\n")

		e := &SearchContentExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern": "needle",
			"path":    dir,
			"glob":    "*.txt",
		})
		if !strings.Contains(result.Output, "a.txt") || strings.Contains(result.Output, "b.log") {
			t.Errorf("Execute() Output = %q, want only a.txt", result.Output)
		}
	})

	t.Run("max_count caps per-file matches", func(t *testing.T) {
		dir := t.TempDir()
		mustWriteFile(t, filepath.Join(dir, "multi.txt"), "needle\nneedle\nneedle\n")

		e := &SearchContentExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern":   "needle",
			"path":      dir,
			"max_count": float64(1),
		})
		if result.MatchCount != 1 {
			t.Errorf("Execute() MatchCount = %d, want 1", result.MatchCount)
		}
	})

	t.Run("result cap truncates", func(t *testing.T) {
		dir := t.TempDir()
		mustWriteFile(t, filepath.Join(dir, "multi.txt"), "needle\nneedle\nneedle\n")

		e := &SearchContentExecutor{MaxResults: 2}
		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern": "needle",
			"path":    dir,
		})
		if !result.Truncated || result.MatchCount != 2 {
			t.Errorf("Execute() = %+v, want two truncated matches", result)
		}
		if !strings.Contains(result.Output, "[Results limited to 2 matches]") {
			t.Errorf("Execute() Output = %q, want limit marker", result.Output)
		}
	})

	t.Run("single file target", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "only.txt")
		mustWriteFile(t, path, "a needle in line one\n")

		e := &SearchContentExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern": "needle",
			"path":    path,
		})
		if result.MatchCount != 1 || !strings.Contains(result.Output, "only.txt:1:") {
			t.Errorf("Execute() = %+v, want a single-file match", result)
		}
	})

	t.Run("ignored directories are pruned", func(t *testing.T) {
		dir := t.TempDir()
		mustWriteFile(t, filepath.Join(dir, ignore.RuleFileName), "secret/\n")
		if err := os.Mkdir(filepath.Join(dir, "secret"), 0755); err != nil {
			t.Fatal(err)
		}
		mustWriteFile(t, filepath.Join(dir, "secret", "hidden.txt"), "needle\n")

		e := &SearchContentExecutor{Engine: testEngine(t, "")}
		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern": "needle",
			"path":    dir,
		})
		if !strings.HasPrefix(result.Output, "No matches found") {
			t.Errorf("Execute() Output = %q, ignored directory must not be scanned", result.Output)
		}
	})

	t.Run("dot directories are never scanned", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.Mkdir(filepath.Join(dir, ".git"), 0755); err != nil {
			t.Fatal(err)
		}
		mustWriteFile(t, filepath.Join(dir, ".git", "config"), "needle\n")

		e := &SearchContentExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern": "needle",
			"path":    dir,
		})
		if !strings.HasPrefix(result.Output, "No matches found") {
			t.Errorf("Execute() Output = %q, dot directories must not be scanned", result.Output)
		}
	})

	t.Run("binary extensions are skipped", func(t *testing.T) {
		dir := t.TempDir()
		mustWriteFile(t, filepath.Join(dir, "logo.png"), "needle text\n")

		e := &SearchContentExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern": "needle",
			"path":    dir,
		})
		if !strings.HasPrefix(result.Output, "No matches found") {
			t.Errorf("Execute() Output = %q, binary extensions must not be scanned", result.Output)
		}
	})

	t.Run("invalid regex", func(t *testing.T) {
		dir := t.TempDir()
		e := &SearchContentExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern": "(",
			"path":    dir,
		})
		if result.Success || !strings.Contains(result.Error, "invalid pattern") {
			t.Errorf("Execute() = %+v, want pattern failure", result)
		}
	})

	t.Run("malformed glob", func(t *testing.T) {
		dir := t.TempDir()
		e := &SearchContentExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern": "x",
			"path":    dir,
			"glob":    "[",
		})
		if result.Success || !strings.Contains(result.Error, "malformed glob") {
			t.Errorf("Execute() = %+v, want glob failure", result)
		}
	})

	t.Run("pattern is required", func(t *testing.T) {
		e := &SearchContentExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{})
		if result.Success || !strings.Contains(result.Error, "pattern parameter is required") {
			t.Errorf("Execute() = %+v, want required-pattern failure", result)
		}
	})

	t.Run("missing target", func(t *testing.T) {
		dir := t.TempDir()
		e := &SearchContentExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{
			"pattern": "x",
			"path":    filepath.Join(dir, "nope"),
		})
		if result.Success || !strings.Contains(result.Error, "cannot access search path") {
			t.Errorf("Execute() = %+v, want access failure", result)
		}
	})
}
