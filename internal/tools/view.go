// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// view.go implements view_file: numbered file display with optional
// syntax highlighting, rendered by bat when installed and by chroma
// otherwise.
package tools

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"

	"github.com/jeranaias/rigtool/internal/ignore"
)

// ViewFileExecutor implements the view_file tool.
type ViewFileExecutor struct {
	// Engine enforces the user's ignore rules
	Engine *ignore.Engine

	// Runner executes bat when installed (nil = always native)
	Runner *CommandRunner

	// MaxFileSize limits viewable file size (default: FileMaxReadSize)
	MaxFileSize int64
}

// Execute displays a file numbered like cat -n, optionally highlighted.
func (e *ViewFileExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	start := time.Now()

	maxFileSize := e.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = FileMaxReadSize
	}

	path := getStringParam(params, "path", "")
	if path == "" {
		return Result{
			Success:  false,
			Error:    "path parameter is required",
			Duration: time.Since(start),
		}, nil
	}

	language := getStringParam(params, "language", "")
	rangeSpec := getStringParam(params, "range", "")
	color := getBoolParam(params, "color", false)

	var rangeStart, rangeEnd int
	if rangeSpec != "" {
		var err error
		rangeStart, rangeEnd, err = parseLineRange(rangeSpec)
		if err != nil {
			return Result{
				Success:  false,
				Error:    err.Error(),
				Duration: time.Since(start),
			}, nil
		}
	}

	if err := checkIgnore(e.Engine, path); err != nil {
		return Result{
			Success:  false,
			Error:    err.Error(),
			Duration: time.Since(start),
		}, nil
	}

	file, err := OpenSecureFile(path, os.O_RDONLY)
	if err != nil {
		return Result{
			Success:  false,
			Error:    err.Error(),
			Duration: time.Since(start),
		}, nil
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Result{
			Success:  false,
			Error:    fmt.Sprintf("cannot stat file: %v", err),
			Duration: time.Since(start),
		}, nil
	}
	if info.IsDir() {
		return Result{
			Success:  false,
			Error:    "path is a directory, not a file",
			Duration: time.Since(start),
		}, nil
	}
	if info.Size() > maxFileSize {
		return Result{
			Success:  false,
			Error:    fmt.Sprintf("file too large: %s (limit %s)", formatSize(info.Size()), formatSize(maxFileSize)),
			Duration: time.Since(start),
		}, nil
	}
	if info.Size() == 0 {
		return Result{
			Success:  true,
			Output:   "(empty file)",
			Duration: time.Since(start),
		}, nil
	}

	binary, err := isBinaryFile(file)
	if err != nil {
		return Result{
			Success:  false,
			Error:    fmt.Sprintf("cannot inspect file: %v", err),
			Duration: time.Since(start),
		}, nil
	}
	if binary {
		return Result{
			Success:  false,
			Error:    "cannot view binary file: " + path,
			Duration: time.Since(start),
		}, nil
	}

	if output, ok := e.viewWithBat(ctx, file.Name(), language, rangeSpec, color); ok {
		return Result{
			Success:    true,
			Output:     output,
			Duration:   time.Since(start),
			BytesRead:  info.Size(),
			LinesCount: strings.Count(output, "\n") + 1,
		}, nil
	}

	content, err := io.ReadAll(file)
	if err != nil {
		return Result{
			Success:  false,
			Error:    fmt.Sprintf("cannot read file: %v", err),
			Duration: time.Since(start),
		}, nil
	}

	output, shown := renderView(string(content), file.Name(), language, rangeStart, rangeEnd, color)
	return Result{
		Success:    true,
		Output:     output,
		Duration:   time.Since(start),
		BytesRead:  int64(len(content)),
		LinesCount: shown,
	}, nil
}

// viewWithBat renders the file through bat. Returns false when bat is
// unavailable or fails, so the caller can render natively.
func (e *ViewFileExecutor) viewWithBat(ctx context.Context, path, language, rangeSpec string, color bool) (string, bool) {
	if e.Runner == nil || !e.Runner.Available("bat") {
		return "", false
	}

	args := []string{"--paging=never", "-n"}
	if color {
		args = append(args, "--color=always")
	} else {
		args = append(args, "--color=never")
	}
	if language != "" {
		args = append(args, "--language="+language)
	}
	if rangeSpec != "" {
		args = append(args, "--line-range="+rangeSpec)
	}
	args = append(args, "--", path)

	out, err := e.Runner.Run(ctx, RunSpec{Name: "bat", Args: args})
	if err != nil || !out.Success {
		return "", false
	}
	return strings.TrimRight(out.Stdout, "\n"), true
}

// renderView renders file content natively: the requested line window,
// numbered, highlighted through chroma when color is requested.
func renderView(content, filename, language string, rangeStart, rangeEnd int, color bool) (string, int) {
	lines := strings.Split(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	first := 1
	last := len(lines)
	if rangeStart > 0 {
		first = rangeStart
	}
	if rangeEnd > 0 && rangeEnd < last {
		last = rangeEnd
	}
	if first > len(lines) {
		return fmt.Sprintf("(no lines in range; file has %d lines)", len(lines)), 0
	}

	window := lines[first-1 : last]
	text := strings.Join(window, "\n")

	if color {
		if highlighted, ok := highlightSource(text, language, filename); ok {
			text = highlighted
		}
	}

	rendered := strings.Split(text, "\n")
	var out strings.Builder
	for i, line := range rendered {
		if i > 0 {
			out.WriteString("\n")
		}
		out.WriteString(formatLineNumber(first + i))
		out.WriteString("\t")
		out.WriteString(line)
	}
	return out.String(), len(window)
}

// highlightSource applies chroma syntax highlighting for terminal
// output. Language wins over filename detection over content analysis.
func highlightSource(content, language, filename string) (string, bool) {
	var lexer chroma.Lexer
	if language != "" {
		lexer = lexers.Get(language)
	}
	if lexer == nil && filename != "" {
		lexer = lexers.Match(filepath.Base(filename))
	}
	if lexer == nil {
		lexer = lexers.Analyse(content)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, content)
	if err != nil {
		return content, false
	}

	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return content, false
	}
	return strings.TrimRight(buf.String(), "\n"), true
}

// parseLineRange parses "start:end" forms: "5:20", "5:" (to the end),
// ":20" (from the start). Lines are 1-based and inclusive.
func parseLineRange(spec string) (int, int, error) {
	startStr, endStr, found := strings.Cut(spec, ":")
	if !found {
		return 0, 0, fmt.Errorf("invalid range %q: expected start:end", spec)
	}

	var start, end int
	var err error
	if startStr != "" {
		start, err = strconv.Atoi(startStr)
		if err != nil || start < 1 {
			return 0, 0, fmt.Errorf("invalid range %q: start must be a positive line number", spec)
		}
	}
	if endStr != "" {
		end, err = strconv.Atoi(endStr)
		if err != nil || end < 1 {
			return 0, 0, fmt.Errorf("invalid range %q: end must be a positive line number", spec)
		}
	}
	if start > 0 && end > 0 && end < start {
		return 0, 0, fmt.Errorf("invalid range %q: end precedes start", spec)
	}
	return start, end, nil
}
