// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// file.go implements the native file executors: read_file, write_file,
// and edit_file. Every path passes the ignore engine first, then the
// platform security checks.
package tools

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jeranaias/rigtool/internal/ignore"
	"github.com/jeranaias/rigtool/internal/util"
)

// File operation limits.
const (
	// FileMaxReadSize is the largest file read_file will open (10MB)
	FileMaxReadSize = 10 * 1024 * 1024

	// FileMaxWriteSize is the largest content write_file accepts (10MB)
	FileMaxWriteSize = 10 * 1024 * 1024

	// FileDefaultLineLimit is the default number of lines returned
	FileDefaultLineLimit = 2000

	// FileMaxLineLength is the rune limit per returned line
	FileMaxLineLength = 2000
)

// checkIgnore applies the user's ignore rules to a path. A nil engine
// applies no rules.
func checkIgnore(eng *ignore.Engine, path string) error {
	if eng == nil {
		return nil
	}
	return eng.ValidatePath(path)
}

// =============================================================================
// READ FILE
// =============================================================================

// ReadFileExecutor implements the read_file tool.
type ReadFileExecutor struct {
	// Engine enforces the user's ignore rules
	Engine *ignore.Engine

	// MaxFileSize limits readable file size (default: FileMaxReadSize)
	MaxFileSize int64

	// MaxLines limits the number of returned lines (default: FileDefaultLineLimit)
	MaxLines int

	// MaxLineLength truncates longer lines (default: FileMaxLineLength)
	MaxLineLength int
}

// Execute reads a text file and returns its lines numbered like cat -n.
func (e *ReadFileExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	start := time.Now()

	maxFileSize := e.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = FileMaxReadSize
	}
	maxLines := e.MaxLines
	if maxLines <= 0 {
		maxLines = FileDefaultLineLimit
	}
	maxLineLength := e.MaxLineLength
	if maxLineLength <= 0 {
		maxLineLength = FileMaxLineLength
	}

	path := getStringParam(params, "path", "")
	if path == "" {
		return Result{
			Success:  false,
			Error:    "path parameter is required",
			Duration: time.Since(start),
		}, nil
	}

	offset := getIntParam(params, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	limit := getIntParam(params, "limit", maxLines)
	if limit <= 0 || limit > maxLines {
		limit = maxLines
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
			Error:    "cannot read binary file: " + path,
			Duration: time.Since(start),
		}, nil
	}

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var output strings.Builder
	lineNum := 0
	linesRead := 0
	firstLine := 0
	var bytesRead int64
	truncated := false

	for scanner.Scan() {
		lineNum++

		// Check for cancellation periodically
		if lineNum%100 == 0 {
			select {
			case <-ctx.Done():
				return Result{
					Success:  false,
					Error:    "read canceled: " + ctx.Err().Error(),
					Duration: time.Since(start),
				}, nil
			default:
			}
		}

		if offset > 0 && lineNum < offset {
			continue
		}
		if linesRead >= limit {
			truncated = true
			break
		}

		line := scanner.Text()
		bytesRead += int64(len(line)) + 1

		if utf8.RuneCountInString(line) > maxLineLength {
			line = util.TruncateRunes(line, maxLineLength)
		}

		if firstLine == 0 {
			firstLine = lineNum
		}
		output.WriteString(formatLineNumber(lineNum))
		output.WriteString("\t")
		output.WriteString(line)
		output.WriteString("\n")
		linesRead++
	}

	if err := scanner.Err(); err != nil {
		return Result{
			Success:  false,
			Error:    fmt.Sprintf("error reading file: %v", err),
			Duration: time.Since(start),
		}, nil
	}

	if linesRead == 0 {
		return Result{
			Success:  true,
			Output:   fmt.Sprintf("(no lines at offset %d; file has %d lines)", offset, lineNum),
			Duration: time.Since(start),
		}, nil
	}

	if truncated {
		output.WriteString(fmt.Sprintf("\n[Showing lines %d-%d. Use offset and limit to read more.]", firstLine, lineNum-1))
	}

	return Result{
		Success:    true,
		Output:     output.String(),
		Duration:   time.Since(start),
		Truncated:  truncated,
		BytesRead:  bytesRead,
		LinesCount: linesRead,
	}, nil
}

// =============================================================================
// WRITE FILE
// =============================================================================

// WriteFileExecutor implements the write_file tool.
type WriteFileExecutor struct {
	// Engine enforces the user's ignore rules
	Engine *ignore.Engine

	// MaxFileSize limits accepted content size (default: FileMaxWriteSize)
	MaxFileSize int
}

// Execute creates or overwrites a file. The write goes through a temp
// file and rename, so a crash cannot leave partial content behind.
func (e *WriteFileExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	start := time.Now()

	maxFileSize := e.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = FileMaxWriteSize
	}

	path := getStringParam(params, "path", "")
	if path == "" {
		return Result{
			Success:  false,
			Error:    "path parameter is required",
			Duration: time.Since(start),
		}, nil
	}

	content, ok := params["content"].(string)
	if !ok {
		return Result{
			Success:  false,
			Error:    "content parameter is required",
			Duration: time.Since(start),
		}, nil
	}

	createDirs := getBoolParam(params, "create_dirs", true)

	if len(content) > maxFileSize {
		return Result{
			Success:  false,
			Error:    fmt.Sprintf("content too large: %s (limit %s)", formatSize(int64(len(content))), formatSize(int64(maxFileSize))),
			Duration: time.Since(start),
		}, nil
	}

	if err := checkIgnore(e.Engine, path); err != nil {
		return Result{
			Success:  false,
			Error:    err.Error(),
			Duration: time.Since(start),
		}, nil
	}

	validated, err := ValidatePathSecure(path)
	if err != nil {
		return Result{
			Success:  false,
			Error:    err.Error(),
			Duration: time.Since(start),
		}, nil
	}

	dir := filepath.Dir(validated)
	if createDirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Result{
				Success:  false,
				Error:    fmt.Sprintf("cannot create parent directories: %v", err),
				Duration: time.Since(start),
			}, nil
		}
	} else if _, err := os.Stat(dir); err != nil {
		return Result{
			Success:  false,
			Error:    "parent directory does not exist: " + dir,
			Duration: time.Since(start),
		}, nil
	}

	existed := false
	if info, err := os.Stat(validated); err == nil {
		if info.IsDir() {
			return Result{
				Success:  false,
				Error:    "path is a directory: " + path,
				Duration: time.Since(start),
			}, nil
		}
		existed = true
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(validated, []byte(content), 0644); err != nil {
		return Result{
			Success:  false,
			Error:    fmt.Sprintf("cannot write file: %v", err),
			Duration: time.Since(start),
		}, nil
	}

	lines := countLines(content)
	action := "Created"
	if existed {
		action = "Overwrote"
	}

	return Result{
		Success:      true,
		Output:       fmt.Sprintf("%s %s (%d lines, %s)", action, path, lines, formatSize(int64(len(content)))),
		Duration:     time.Since(start),
		BytesWritten: int64(len(content)),
		LinesCount:   lines,
	}, nil
}

// =============================================================================
// EDIT FILE
// =============================================================================

// EditFileExecutor implements the edit_file tool.
type EditFileExecutor struct {
	// Engine enforces the user's ignore rules
	Engine *ignore.Engine

	// MaxFileSize limits editable file size (default: FileMaxReadSize)
	MaxFileSize int64
}

// Execute replaces an exact text occurrence in a file. The match must be
// unique unless replace_all is set.
func (e *EditFileExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
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

	oldText := getStringParam(params, "old_text", "")
	if oldText == "" {
		return Result{
			Success:  false,
			Error:    "old_text parameter is required",
			Duration: time.Since(start),
		}, nil
	}

	newText, ok := params["new_text"].(string)
	if !ok {
		return Result{
			Success:  false,
			Error:    "new_text parameter is required",
			Duration: time.Since(start),
		}, nil
	}

	replaceAll := getBoolParam(params, "replace_all", false)

	if oldText == newText {
		return Result{
			Success:  false,
			Error:    "old_text and new_text are identical",
			Duration: time.Since(start),
		}, nil
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
		if secErr, isSec := err.(*SecurityError); isSec && secErr.Type == "file_open" {
			return Result{
				Success:  false,
				Error:    "file not found: " + path,
				Duration: time.Since(start),
			}, nil
		}
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
			Error:    fmt.Sprintf("file too large to edit: %s (limit %s)", formatSize(info.Size()), formatSize(maxFileSize)),
			Duration: time.Since(start),
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
	contentStr := string(content)

	if !strings.Contains(contentStr, oldText) {
		hint := ""
		if strings.Contains(strings.ToLower(contentStr), strings.ToLower(oldText)) {
			hint = " (a case-insensitive match exists; old_text matching is case-sensitive)"
		} else if strings.Contains(collapseWhitespace(contentStr), collapseWhitespace(oldText)) {
			hint = " (a match exists with different whitespace; old_text must match exactly)"
		}
		return Result{
			Success:  false,
			Error:    "old_text not found in file" + hint,
			Duration: time.Since(start),
		}, nil
	}

	count := strings.Count(contentStr, oldText)
	if !replaceAll && count > 1 {
		return Result{
			Success:  false,
			Error:    fmt.Sprintf("old_text found %d times - use replace_all or provide more context for a unique match", count),
			Duration: time.Since(start),
		}, nil
	}

	var newContent string
	var replacements int
	if replaceAll {
		replacements = count
		newContent = strings.ReplaceAll(contentStr, oldText, newText)
	} else {
		replacements = 1
		newContent = strings.Replace(contentStr, oldText, newText, 1)
	}

	if err := util.AtomicWriteFile(file.Name(), []byte(newContent), info.Mode()); err != nil {
		return Result{
			Success:  false,
			Error:    fmt.Sprintf("cannot write file: %v", err),
			Duration: time.Since(start),
		}, nil
	}

	var out strings.Builder
	out.WriteString(fmt.Sprintf("Edited %s (%d replacement", path, replacements))
	if replacements != 1 {
		out.WriteString("s")
	}
	out.WriteString(")\n\n")
	out.WriteString("--- Before:\n")
	out.WriteString(diffContext(oldText))
	out.WriteString("\n+++ After:\n")
	out.WriteString(diffContext(newText))

	return Result{
		Success:      true,
		Output:       out.String(),
		Duration:     time.Since(start),
		BytesWritten: int64(len(newContent)),
		LinesCount:   countLines(newContent),
		MatchCount:   replacements,
	}, nil
}

// =============================================================================
// PARAMETER HELPERS
// =============================================================================

// getStringParam returns a string parameter or the default.
func getStringParam(params map[string]interface{}, key, defaultVal string) string {
	if val, ok := params[key].(string); ok {
		return val
	}
	return defaultVal
}

// getIntParam returns an integer parameter or the default. JSON numbers
// arrive as float64 and are converted.
func getIntParam(params map[string]interface{}, key string, defaultVal int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return defaultVal
}

// getBoolParam returns a boolean parameter or the default.
func getBoolParam(params map[string]interface{}, key string, defaultVal bool) bool {
	if val, ok := params[key].(bool); ok {
		return val
	}
	return defaultVal
}

// =============================================================================
// FORMAT HELPERS
// =============================================================================

// formatLineNumber formats a line number right-aligned to 6 characters,
// matching cat -n.
func formatLineNumber(n int) string {
	s := fmt.Sprintf("%d", n)
	if padding := 6 - len(s); padding > 0 {
		return strings.Repeat(" ", padding) + s
	}
	return s
}

// formatSize formats a byte count for humans.
func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.1fGB", float64(bytes)/float64(gb))
	case bytes >= mb:
		return fmt.Sprintf("%.1fMB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1fKB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%dB", bytes)
	}
}

// countLines counts the lines in content. A trailing newline does not
// count as an extra line.
func countLines(content string) int {
	if len(content) == 0 {
		return 0
	}

	lines := 1
	for _, c := range content {
		if c == '\n' {
			lines++
		}
	}

	if content[len(content)-1] == '\n' {
		lines--
	}

	return lines
}

// collapseWhitespace squeezes all whitespace runs to single spaces, for
// the near-miss hint in edit_file.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// isBinaryFile sniffs the first 512 bytes of an open file and rewinds.
// A NUL byte or a high ratio of non-printable bytes marks it binary.
func isBinaryFile(file *os.File) (bool, error) {
	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil && err != io.EOF {
		return false, err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	nonPrintable := 0
	for _, b := range buf[:n] {
		if b == 0 {
			return true, nil
		}
		if b < 32 && b != '\n' && b != '\r' && b != '\t' {
			nonPrintable++
		}
	}
	return nonPrintable*100/n > 30, nil
}

// diffContext formats replacement text for the edit_file summary: each
// line indented, long lines truncated, capped at ten lines.
func diffContext(s string) string {
	if s == "" {
		return "  (empty)\n"
	}

	lines := strings.Split(s, "\n")
	var result strings.Builder

	const maxLines = 10
	for i, line := range lines {
		if i >= maxLines {
			result.WriteString(fmt.Sprintf("  ... (%d more lines)\n", len(lines)-maxLines))
			break
		}

		// UNICODE: Rune-aware truncation preserves multi-byte characters
		line = util.TruncateRunes(line, 80)

		result.WriteString("  ")
		result.WriteString(line)
		result.WriteString("\n")
	}

	return result.String()
}
