// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// fsops.go implements the filesystem tools: list_files, file_info,
// move_file, copy_file, and remove_file. Listing delegates rendering to
// eza when installed; the entry set itself is always decided natively so
// ignore rules hold regardless of what is on PATH.
package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jeranaias/rigtool/internal/ignore"
)

// =============================================================================
// LIST FILES
// =============================================================================

// ListMaxEntries is the default cap on listed entries.
const ListMaxEntries = 500

// ListFilesExecutor implements the list_files tool.
type ListFilesExecutor struct {
	// Engine enforces the user's ignore rules
	Engine *ignore.Engine

	// Runner executes eza when installed (nil = always native)
	Runner *CommandRunner

	// MaxEntries caps the listing (default: ListMaxEntries)
	MaxEntries int
}

// Execute lists a directory. Hidden entries are skipped unless all is
// set; entries blocked by ignore rules are always skipped.
func (e *ListFilesExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	start := time.Now()

	maxEntries := e.MaxEntries
	if maxEntries <= 0 {
		maxEntries = ListMaxEntries
	}

	dir := getStringParam(params, "path", ".")
	showAll := getBoolParam(params, "all", false)
	long := getBoolParam(params, "long", false)

	if err := checkIgnore(e.Engine, dir); err != nil {
		return Result{
			Success:  false,
			Error:    err.Error(),
			Duration: time.Since(start),
		}, nil
	}

	validated, err := ValidatePathSecure(dir)
	if err != nil {
		return Result{
			Success:  false,
			Error:    err.Error(),
			Duration: time.Since(start),
		}, nil
	}

	entries, err := os.ReadDir(validated)
	if err != nil {
		return Result{
			Success:  false,
			Error:    fmt.Sprintf("cannot list directory: %v", err),
			Duration: time.Since(start),
		}, nil
	}

	// Decide the entry set natively: hidden filter first, then the
	// ignore rules over the joined paths. eza only ever sees the
	// approved names.
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !showAll && strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	if e.Engine != nil {
		joined := make([]string, len(names))
		for i, name := range names {
			joined[i] = filepath.Join(validated, name)
		}
		allowed := e.Engine.FilterPaths(joined)
		allowedSet := make(map[string]bool, len(allowed))
		for _, p := range allowed {
			allowedSet[p] = true
		}
		kept := names[:0]
		for i, name := range names {
			if allowedSet[joined[i]] {
				kept = append(kept, name)
			}
		}
		names = kept
	}

	truncated := false
	if len(names) > maxEntries {
		names = names[:maxEntries]
		truncated = true
	}

	if len(names) == 0 {
		return Result{
			Success:  true,
			Output:   "(empty directory)",
			Duration: time.Since(start),
		}, nil
	}

	output, rendered := e.renderWithEza(ctx, validated, names, long)
	if !rendered {
		output = renderListing(validated, names, long)
	}

	if truncated {
		output += fmt.Sprintf("\n[Listing limited to %d entries]", maxEntries)
	}

	return Result{
		Success:      true,
		Output:       output,
		Duration:     time.Since(start),
		Truncated:    truncated,
		FilesMatched: len(names),
	}, nil
}

// renderWithEza renders the approved names through eza. Returns false
// when eza is unavailable or fails, so the caller can render natively.
func (e *ListFilesExecutor) renderWithEza(ctx context.Context, dir string, names []string, long bool) (string, bool) {
	if e.Runner == nil || !e.Runner.Available("eza") {
		return "", false
	}

	args := []string{"--color=never", "-d"}
	if long {
		args = append(args, "-l")
	} else {
		args = append(args, "-1")
	}
	args = append(args, "--")
	args = append(args, names...)

	out, err := e.Runner.Run(ctx, RunSpec{Name: "eza", Args: args, Dir: dir})
	if err != nil || !out.Success {
		return "", false
	}
	return strings.TrimRight(out.Stdout, "\n"), true
}

// renderListing renders a directory listing natively: one name per line,
// directories marked with a trailing slash, long mode adds permissions,
// size, and modification time.
func renderListing(dir string, names []string, long bool) string {
	var out strings.Builder
	for i, name := range names {
		if i > 0 {
			out.WriteString("\n")
		}

		info, err := os.Lstat(filepath.Join(dir, name))
		if err != nil {
			out.WriteString(name)
			continue
		}

		display := name
		if info.IsDir() {
			display += "/"
		}

		if long {
			out.WriteString(fmt.Sprintf("%s %8s %s %s",
				info.Mode().String(),
				formatSize(info.Size()),
				info.ModTime().Format("2006-01-02 15:04"),
				display))
		} else {
			out.WriteString(display)
		}
	}
	return out.String()
}

// =============================================================================
// FILE INFO
// =============================================================================

// FileInfoExecutor implements the file_info tool.
type FileInfoExecutor struct {
	// Engine enforces the user's ignore rules
	Engine *ignore.Engine
}

// Execute reports metadata for a path without reading its contents.
func (e *FileInfoExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	start := time.Now()

	path := getStringParam(params, "path", "")
	if path == "" {
		return Result{
			Success:  false,
			Error:    "path parameter is required",
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

	info, err := os.Lstat(validated)
	if err != nil {
		return Result{
			Success:  false,
			Error:    fmt.Sprintf("cannot stat path: %v", err),
			Duration: time.Since(start),
		}, nil
	}

	var out strings.Builder
	out.WriteString("Path: " + validated + "\n")

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		out.WriteString("Type: symlink\n")
		if target, rerr := os.Readlink(validated); rerr == nil {
			out.WriteString("Target: " + target + "\n")
		}
	case info.IsDir():
		out.WriteString("Type: directory\n")
		if entries, rerr := os.ReadDir(validated); rerr == nil {
			out.WriteString(fmt.Sprintf("Entries: %d\n", len(entries)))
		}
	default:
		out.WriteString("Type: file\n")
		out.WriteString("Category: " + categorizeFile(validated, info) + "\n")
	}

	out.WriteString(fmt.Sprintf("Size: %s (%d bytes)\n", formatSize(info.Size()), info.Size()))
	out.WriteString("Mode: " + info.Mode().String() + "\n")
	out.WriteString("Modified: " + info.ModTime().Format("2006-01-02 15:04:05"))

	return Result{
		Success:  true,
		Output:   out.String(),
		Duration: time.Since(start),
	}, nil
}

// fileCategories maps extensions to coarse content categories.
var fileCategories = map[string]string{
	".png": "image", ".jpg": "image", ".jpeg": "image", ".gif": "image",
	".bmp": "image", ".svg": "image", ".webp": "image", ".ico": "image",

	".mp3": "audio", ".wav": "audio", ".flac": "audio", ".ogg": "audio",
	".m4a": "audio",

	".mp4": "video", ".mkv": "video", ".avi": "video", ".mov": "video",
	".webm": "video",

	".zip": "archive", ".tar": "archive", ".gz": "archive", ".bz2": "archive",
	".xz": "archive", ".7z": "archive", ".rar": "archive", ".zst": "archive",

	".exe": "executable", ".so": "executable", ".dll": "executable",
	".dylib": "executable",
}

// categorizeFile assigns a coarse category: extension first, then the
// executable bit, then a content sniff for text versus binary.
func categorizeFile(path string, info os.FileInfo) string {
	if category, ok := fileCategories[strings.ToLower(filepath.Ext(path))]; ok {
		return category
	}
	if info.Mode()&0111 != 0 {
		return "executable"
	}

	file, err := os.Open(path)
	if err != nil {
		return "other"
	}
	defer file.Close()

	binary, err := isBinaryFile(file)
	if err != nil {
		return "other"
	}
	if binary {
		return "binary"
	}
	return "text"
}

// =============================================================================
// MOVE FILE
// =============================================================================

// MoveFileExecutor implements the move_file tool.
type MoveFileExecutor struct {
	// Engine enforces the user's ignore rules
	Engine *ignore.Engine
}

// Execute moves source to dest. Cross-filesystem moves of regular files
// fall back to copy-and-remove.
func (e *MoveFileExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	start := time.Now()

	source := getStringParam(params, "source", "")
	dest := getStringParam(params, "dest", "")
	if source == "" || dest == "" {
		return Result{
			Success:  false,
			Error:    "source and dest parameters are required",
			Duration: time.Since(start),
		}, nil
	}
	overwrite := getBoolParam(params, "overwrite", false)

	validatedSrc, validatedDst, failure := validatePathPair(e.Engine, source, dest)
	if failure != "" {
		return Result{
			Success:  false,
			Error:    failure,
			Duration: time.Since(start),
		}, nil
	}

	srcInfo, err := os.Lstat(validatedSrc)
	if err != nil {
		return Result{
			Success:  false,
			Error:    "source not found: " + source,
			Duration: time.Since(start),
		}, nil
	}

	if dstInfo, err := os.Lstat(validatedDst); err == nil {
		if !overwrite {
			return Result{
				Success:  false,
				Error:    "destination already exists: " + dest + " (pass overwrite to replace)",
				Duration: time.Since(start),
			}, nil
		}
		if dstInfo.IsDir() {
			return Result{
				Success:  false,
				Error:    "destination is a directory: " + dest,
				Duration: time.Since(start),
			}, nil
		}
	}

	if err := os.Rename(validatedSrc, validatedDst); err != nil {
		if !isCrossDevice(err) {
			return Result{
				Success:  false,
				Error:    fmt.Sprintf("cannot move: %v", err),
				Duration: time.Since(start),
			}, nil
		}
		if srcInfo.IsDir() {
			return Result{
				Success:  false,
				Error:    "cannot move a directory across filesystems",
				Duration: time.Since(start),
			}, nil
		}
		if _, cerr := copyFileContents(validatedSrc, validatedDst, srcInfo.Mode().Perm()); cerr != nil {
			return Result{
				Success:  false,
				Error:    fmt.Sprintf("cannot move across filesystems: %v", cerr),
				Duration: time.Since(start),
			}, nil
		}
		if rerr := os.Remove(validatedSrc); rerr != nil {
			return Result{
				Success:  false,
				Error:    fmt.Sprintf("copied to %s but cannot remove source: %v", dest, rerr),
				Duration: time.Since(start),
			}, nil
		}
	}

	return Result{
		Success:  true,
		Output:   fmt.Sprintf("Moved %s to %s", source, dest),
		Duration: time.Since(start),
	}, nil
}

// isCrossDevice reports whether a rename failed because source and
// destination live on different filesystems.
func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	return errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV)
}

// =============================================================================
// COPY FILE
// =============================================================================

// CopyMaxFileSize is the default cap on copied file size (100MB).
const CopyMaxFileSize = 100 * 1024 * 1024

// CopyFileExecutor implements the copy_file tool.
type CopyFileExecutor struct {
	// Engine enforces the user's ignore rules
	Engine *ignore.Engine

	// MaxFileSize caps the source size (default: CopyMaxFileSize)
	MaxFileSize int64
}

// Execute copies a regular file, preserving its permissions.
func (e *CopyFileExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	start := time.Now()

	maxFileSize := e.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = CopyMaxFileSize
	}

	source := getStringParam(params, "source", "")
	dest := getStringParam(params, "dest", "")
	if source == "" || dest == "" {
		return Result{
			Success:  false,
			Error:    "source and dest parameters are required",
			Duration: time.Since(start),
		}, nil
	}
	overwrite := getBoolParam(params, "overwrite", false)

	validatedSrc, validatedDst, failure := validatePathPair(e.Engine, source, dest)
	if failure != "" {
		return Result{
			Success:  false,
			Error:    failure,
			Duration: time.Since(start),
		}, nil
	}

	srcInfo, err := os.Stat(validatedSrc)
	if err != nil {
		return Result{
			Success:  false,
			Error:    "source not found: " + source,
			Duration: time.Since(start),
		}, nil
	}
	if !srcInfo.Mode().IsRegular() {
		return Result{
			Success:  false,
			Error:    "copy_file only copies regular files",
			Duration: time.Since(start),
		}, nil
	}
	if srcInfo.Size() > maxFileSize {
		return Result{
			Success:  false,
			Error:    fmt.Sprintf("file too large to copy: %s (limit %s)", formatSize(srcInfo.Size()), formatSize(maxFileSize)),
			Duration: time.Since(start),
		}, nil
	}

	if _, err := os.Lstat(validatedDst); err == nil && !overwrite {
		return Result{
			Success:  false,
			Error:    "destination already exists: " + dest + " (pass overwrite to replace)",
			Duration: time.Since(start),
		}, nil
	}

	written, err := copyFileContents(validatedSrc, validatedDst, srcInfo.Mode().Perm())
	if err != nil {
		return Result{
			Success:  false,
			Error:    fmt.Sprintf("cannot copy: %v", err),
			Duration: time.Since(start),
		}, nil
	}

	return Result{
		Success:      true,
		Output:       fmt.Sprintf("Copied %s to %s (%s)", source, dest, formatSize(written)),
		Duration:     time.Since(start),
		BytesWritten: written,
	}, nil
}

// copyFileContents streams src into dst with the given permissions.
func copyFileContents(src, dst string, perm os.FileMode) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return 0, err
	}

	written, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return written, err
}

// =============================================================================
// REMOVE FILE
// =============================================================================

// RemoveFileExecutor implements the remove_file tool.
type RemoveFileExecutor struct {
	// Engine enforces the user's ignore rules
	Engine *ignore.Engine
}

// Execute permanently removes a path. Directories require recursive.
func (e *RemoveFileExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	start := time.Now()

	path := getStringParam(params, "path", "")
	if path == "" {
		return Result{
			Success:  false,
			Error:    "path parameter is required",
			Duration: time.Since(start),
		}, nil
	}
	recursive := getBoolParam(params, "recursive", false)

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

	info, err := os.Lstat(validated)
	if err != nil {
		return Result{
			Success:  false,
			Error:    "path not found: " + path,
			Duration: time.Since(start),
		}, nil
	}

	if info.IsDir() {
		if !recursive {
			return Result{
				Success:  false,
				Error:    "path is a directory: " + path + " (pass recursive to remove)",
				Duration: time.Since(start),
			}, nil
		}
		if err := os.RemoveAll(validated); err != nil {
			return Result{
				Success:  false,
				Error:    fmt.Sprintf("cannot remove directory: %v", err),
				Duration: time.Since(start),
			}, nil
		}
		return Result{
			Success:  true,
			Output:   fmt.Sprintf("Removed %s (directory)", path),
			Duration: time.Since(start),
		}, nil
	}

	if err := os.Remove(validated); err != nil {
		return Result{
			Success:  false,
			Error:    fmt.Sprintf("cannot remove: %v", err),
			Duration: time.Since(start),
		}, nil
	}

	return Result{
		Success:  true,
		Output:   "Removed " + path,
		Duration: time.Since(start),
	}, nil
}

// =============================================================================
// SHARED VALIDATION
// =============================================================================

// validatePathPair runs both boundaries over a source/dest pair and
// returns the validated paths, or a failure message.
func validatePathPair(eng *ignore.Engine, source, dest string) (string, string, string) {
	if err := checkIgnore(eng, source); err != nil {
		return "", "", err.Error()
	}
	if err := checkIgnore(eng, dest); err != nil {
		return "", "", err.Error()
	}

	validatedSrc, err := ValidatePathSecure(source)
	if err != nil {
		return "", "", err.Error()
	}
	validatedDst, err := ValidatePathSecure(dest)
	if err != nil {
		return "", "", err.Error()
	}
	return validatedSrc, validatedDst, ""
}
