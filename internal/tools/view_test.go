// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// =============================================================================
// LINE RANGE TESTS
// =============================================================================

func TestParseLineRange(t *testing.T) {
	tests := []struct {
		spec      string
		wantStart int
		wantEnd   int
		wantErr   string
	}{
		{spec: "5:20", wantStart: 5, wantEnd: 20},
		{spec: "5:", wantStart: 5, wantEnd: 0},
		{spec: ":20", wantStart: 0, wantEnd: 20},
		{spec: "1:1", wantStart: 1, wantEnd: 1},
		{spec: "abc:2", wantErr: "start must be a positive line number"},
		{spec: "0:5", wantErr: "start must be a positive line number"},
		{spec: "2:x", wantErr: "end must be a positive line number"},
		{spec: "5:2", wantErr: "end precedes start"},
		{spec: "7", wantErr: "expected start:end"},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			start, end, err := parseLineRange(tt.spec)

			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("parseLineRange(%q) error = %v, want %q", tt.spec, err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("parseLineRange(%q) error: %v", tt.spec, err)
			}
			if start != tt.wantStart || end != tt.wantEnd {
				t.Errorf("parseLineRange(%q) = (%d, %d), want (%d, %d)",
					tt.spec, start, end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

// =============================================================================
// RENDERING TESTS
// =============================================================================

func TestRenderView(t *testing.T) {
	content := "alpha\nbeta\ngamma\n"

	t.Run("numbers every line", func(t *testing.T) {
		output, shown := renderView(content, "f.txt", "", 0, 0, false)
		want := "     1\talpha\n     2\tbeta\n     3\tgamma"
		if output != want {
			t.Errorf("renderView() = %q, want %q", output, want)
		}
		if shown != 3 {
			t.Errorf("renderView() shown = %d, want 3", shown)
		}
	})

	t.Run("bounded range", func(t *testing.T) {
		output, shown := renderView(content, "f.txt", "", 2, 3, false)
		want := "     2\tbeta\n     3\tgamma"
		if output != want {
			t.Errorf("renderView() = %q, want %q", output, want)
		}
		if shown != 2 {
			t.Errorf("renderView() shown = %d, want 2", shown)
		}
	})

	t.Run("open-ended range", func(t *testing.T) {
		output, shown := renderView(content, "f.txt", "", 2, 0, false)
		if !strings.HasPrefix(output, "     2\tbeta") || shown != 2 {
			t.Errorf("renderView() = (%q, %d), want lines 2-3", output, shown)
		}
	})

	t.Run("range beyond the file", func(t *testing.T) {
		output, shown := renderView(content, "f.txt", "", 5, 0, false)
		if output != "(no lines in range; file has 3 lines)" || shown != 0 {
			t.Errorf("renderView() = (%q, %d), want empty-range message", output, shown)
		}
	})
}

func TestHighlightSource(t *testing.T) {
	source := "package main\n\nfunc main() {}"

	t.Run("emits terminal escapes", func(t *testing.T) {
		output, ok := highlightSource(source, "go", "main.go")
		if !ok {
			t.Fatal("highlightSource() ok = false, want true")
		}
		if !strings.Contains(output, "\x1b[") {
			t.Errorf("highlightSource() = %q, want ANSI escapes", output)
		}
	})

	t.Run("falls back without language or filename", func(t *testing.T) {
		output, ok := highlightSource("just some plain words", "", "")
		if !ok {
			t.Fatal("highlightSource() ok = false, want true")
		}
		if output == "" {
			t.Error("highlightSource() returned empty output")
		}
	})
}

// =============================================================================
// VIEW FILE TESTS
// =============================================================================

func TestViewFileExecutor(t *testing.T) {
	ctx := context.Background()

	// Runner stays nil so rendering is native and the assertions do not
	// depend on bat being installed.

	t.Run("numbered output", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "f.txt")
		mustWriteFile(t, path, "alpha\nbeta\n")

		e := &ViewFileExecutor{}
		result, err := e.Execute(ctx, map[string]interface{}{"path": path})
		if err != nil {
			t.Fatalf("Execute() error: %v", err)
		}
		if !result.Success {
			t.Fatalf("Execute() failed: %s", result.Error)
		}
		want := "     1\talpha\n     2\tbeta"
		if result.Output != want {
			t.Errorf("Execute() Output = %q, want %q", result.Output, want)
		}
		if result.LinesCount != 2 {
			t.Errorf("Execute() LinesCount = %d, want 2", result.LinesCount)
		}
	})

	t.Run("range selects a window", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "f.txt")
		mustWriteFile(t, path, "alpha\nbeta\ngamma\n")

		e := &ViewFileExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{
			"path":  path,
			"range": "2:2",
		})
		if !result.Success {
			t.Fatalf("Execute() failed: %s", result.Error)
		}
		if result.Output != "     2\tbeta" {
			t.Errorf("Execute() Output = %q, want line 2 only", result.Output)
		}
		if result.LinesCount != 1 {
			t.Errorf("Execute() LinesCount = %d, want 1", result.LinesCount)
		}
	})

	t.Run("invalid range", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "f.txt")
		mustWriteFile(t, path, "x\n")

		e := &ViewFileExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{
			"path":  path,
			"range": "x:2",
		})
		if result.Success || !strings.Contains(result.Error, "invalid range") {
			t.Errorf("Execute() = %+v, want range failure", result)
		}
	})

	t.Run("empty file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "empty.txt")
		mustWriteFile(t, path, "")

		e := &ViewFileExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{"path": path})
		if !result.Success || result.Output != "(empty file)" {
			t.Errorf("Execute() = %+v, want (empty file)", result)
		}
	})

	t.Run("binary file rejected", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "blob.bin")
		if err := os.WriteFile(path, []byte{0x00, 0x01, 0xFF}, 0644); err != nil {
			t.Fatal(err)
		}

		e := &ViewFileExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{"path": path})
		if result.Success || !strings.Contains(result.Error, "cannot view binary file") {
			t.Errorf("Execute() = %+v, want binary rejection", result)
		}
	})

	t.Run("directory rejected", func(t *testing.T) {
		dir := t.TempDir()
		e := &ViewFileExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{"path": dir})
		if result.Success || !strings.Contains(result.Error, "directory") {
			t.Errorf("Execute() = %+v, want directory rejection", result)
		}
	})

	t.Run("file size limit", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "big.txt")
		mustWriteFile(t, path, "0123456789\n")

		e := &ViewFileExecutor{MaxFileSize: 4}
		result, _ := e.Execute(ctx, map[string]interface{}{"path": path})
		if result.Success || !strings.Contains(result.Error, "file too large") {
			t.Errorf("Execute() = %+v, want size rejection", result)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		dir := t.TempDir()
		e := &ViewFileExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{"path": filepath.Join(dir, "nope.txt")})
		if result.Success || !strings.Contains(result.Error, "cannot open file") {
			t.Errorf("Execute() = %+v, want open failure", result)
		}
	})

	t.Run("ignored file is blocked", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "secret.txt")
		mustWriteFile(t, path, "s\n")

		e := &ViewFileExecutor{Engine: testEngine(t, "secret.txt\n")}
		result, _ := e.Execute(ctx, map[string]interface{}{"path": path})
		if result.Success || !strings.Contains(result.Error, "blocked by") {
			t.Errorf("Execute() = %+v, want ignore block", result)
		}
	})

	t.Run("color renders escapes", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "main.go")
		mustWriteFile(t, path, "package main\n\nfunc main() {}\n")

		e := &ViewFileExecutor{}
		result, _ := e.Execute(ctx, map[string]interface{}{
			"path":  path,
			"color": true,
		})
		if !result.Success {
			t.Fatalf("Execute() failed: %s", result.Error)
		}
		if !strings.Contains(result.Output, "\x1b[") {
			t.Errorf("Execute() Output = %q, want ANSI escapes", result.Output)
		}
	})
}
