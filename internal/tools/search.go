// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// search.go implements find_files and search_content. Both delegate to
// the fast scanners (fd, rg) when installed, passing the ignore rule
// files through on the command line so the scanner enforces the same
// boundary; the native fallbacks prune ignored paths during the walk.
package tools

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	slashpath "path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jeranaias/rigtool/internal/ignore"
	"github.com/jeranaias/rigtool/internal/util"
)

// PatternError reports an invalid search pattern.
type PatternError struct {
	Pattern string
	Reason  string
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %s", e.Pattern, e.Reason)
}

// =============================================================================
// FIND FILES
// =============================================================================

// FindMaxResults is the default cap on find_files results.
const FindMaxResults = 200

// FindFilesExecutor implements the find_files tool.
type FindFilesExecutor struct {
	// Engine enforces the user's ignore rules
	Engine *ignore.Engine

	// Runner executes fd when installed (nil = always native)
	Runner *CommandRunner

	// MaxResults caps the result count (default: FindMaxResults)
	MaxResults int
}

// findOptions carries the optional find_files filters.
type findOptions struct {
	Root      string
	Extension string
	FileType  string
	MaxDepth  int
	Hidden    bool
}

// Execute searches a directory tree for entries whose names match a
// regular expression.
func (e *FindFilesExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	start := time.Now()

	maxResults := e.MaxResults
	if maxResults <= 0 {
		maxResults = FindMaxResults
	}

	pattern := getStringParam(params, "pattern", "")
	if pattern == "" {
		return Result{
			Success:  false,
			Error:    "pattern parameter is required",
			Duration: time.Since(start),
		}, nil
	}

	root := getStringParam(params, "path", ".")
	opts := findOptions{
		Extension: strings.TrimPrefix(getStringParam(params, "extension", ""), "."),
		FileType:  getStringParam(params, "file_type", ""),
		MaxDepth:  getIntParam(params, "max_depth", 0),
		Hidden:    getBoolParam(params, "hidden", false),
	}

	if opts.FileType != "" && opts.FileType != "f" && opts.FileType != "d" {
		return Result{
			Success:  false,
			Error:    `file_type must be "f" or "d"`,
			Duration: time.Since(start),
		}, nil
	}

	if err := checkIgnore(e.Engine, root); err != nil {
		return Result{
			Success:  false,
			Error:    err.Error(),
			Duration: time.Since(start),
		}, nil
	}

	validated, err := ValidatePathSecure(root)
	if err != nil {
		return Result{
			Success:  false,
			Error:    err.Error(),
			Duration: time.Since(start),
		}, nil
	}
	opts.Root = validated

	if info, serr := os.Stat(validated); serr != nil || !info.IsDir() {
		return Result{
			Success:  false,
			Error:    "search path is not a directory: " + root,
			Duration: time.Since(start),
		}, nil
	}

	if e.Runner != nil && e.Runner.Available("fd") {
		return e.findWithFd(ctx, start, pattern, opts)
	}
	return e.findNative(ctx, start, pattern, opts, maxResults)
}

// findWithFd delegates the search to fd with the ignore rule files
// passed through.
func (e *FindFilesExecutor) findWithFd(ctx context.Context, start time.Time, pattern string, opts findOptions) (Result, error) {
	var enforcement []string
	if e.Engine != nil {
		enforcement = e.Engine.EnforcementArgs(opts.Root)
	}

	out, err := e.Runner.Run(ctx, RunSpec{
		Name: "fd",
		Args: buildFindArgs(pattern, opts, enforcement),
	})
	if err != nil {
		if errors.Is(err, ErrCommandNotFound) {
			return e.findNative(ctx, start, pattern, opts, FindMaxResults)
		}
		return Result{
			Success:  false,
			Error:    err.Error(),
			Duration: time.Since(start),
		}, nil
	}

	if !out.Success {
		return Result{
			Success:  false,
			Error:    out.ResultString(),
			Duration: time.Since(start),
		}, nil
	}

	output := strings.TrimRight(out.Stdout, "\n")
	if output == "" {
		return Result{
			Success:  true,
			Output:   "No files matched pattern: " + pattern,
			Duration: time.Since(start),
		}, nil
	}

	count := strings.Count(output, "\n") + 1
	return Result{
		Success:      true,
		Output:       output,
		Duration:     time.Since(start),
		Truncated:    out.Truncated,
		FilesMatched: count,
	}, nil
}

// buildFindArgs assembles the fd argument vector. Enforcement args come
// before the positionals so fd applies the rule files to the walk.
func buildFindArgs(pattern string, opts findOptions, enforcement []string) []string {
	args := []string{"--color=never"}
	if opts.Hidden {
		args = append(args, "-H")
	}
	if opts.Extension != "" {
		args = append(args, "-e", opts.Extension)
	}
	if opts.FileType != "" {
		args = append(args, "-t", opts.FileType)
	}
	if opts.MaxDepth > 0 {
		args = append(args, "--max-depth", strconv.Itoa(opts.MaxDepth))
	}
	args = append(args, enforcement...)
	args = append(args, "--", pattern)
	if opts.Root != "" {
		args = append(args, opts.Root)
	}
	return args
}

// findNative walks the tree, pruning ignored and hidden directories.
func (e *FindFilesExecutor) findNative(ctx context.Context, start time.Time, pattern string, opts findOptions, maxResults int) (Result, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Result{
			Success:  false,
			Error:    (&PatternError{Pattern: pattern, Reason: err.Error()}).Error(),
			Duration: time.Since(start),
		}, nil
	}

	var results []string
	limited := false

	walkErr := filepath.WalkDir(opts.Root, func(path string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return nil // skip unreadable entries
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if path == opts.Root {
			return nil
		}

		if !opts.Hidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if e.Engine != nil && e.Engine.IsIgnored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if opts.MaxDepth > 0 && relativeDepth(opts.Root, path) > opts.MaxDepth {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if opts.FileType == "f" && d.IsDir() {
			return nil
		}
		if opts.FileType == "d" && !d.IsDir() {
			return nil
		}

		if opts.Extension != "" {
			ext := strings.TrimPrefix(filepath.Ext(d.Name()), ".")
			if !strings.EqualFold(ext, opts.Extension) {
				return nil
			}
		}

		if re.MatchString(d.Name()) {
			results = append(results, path)
			if len(results) >= maxResults {
				limited = true
				return filepath.SkipAll
			}
		}
		return nil
	})
	if walkErr != nil {
		return Result{
			Success:  false,
			Error:    "search canceled: " + walkErr.Error(),
			Duration: time.Since(start),
		}, nil
	}

	if len(results) == 0 {
		return Result{
			Success:  true,
			Output:   "No files matched pattern: " + pattern,
			Duration: time.Since(start),
		}, nil
	}

	output := strings.Join(results, "\n")
	if limited {
		output += fmt.Sprintf("\n[Results limited to %d files]", maxResults)
	}

	return Result{
		Success:      true,
		Output:       output,
		Duration:     time.Since(start),
		Truncated:    limited,
		FilesMatched: len(results),
	}, nil
}

// relativeDepth returns how many levels below root a path sits.
// Immediate children are depth 1.
func relativeDepth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return len(strings.Split(rel, string(filepath.Separator)))
}

// =============================================================================
// SEARCH CONTENT
// =============================================================================

// Search limits applied when the corresponding field is zero.
const (
	SearchMaxResults      = 100
	SearchMaxFileSize     = 5 * 1024 * 1024
	SearchMaxContextLines = 10
	searchMaxLineRunes    = 500
)

// SearchContentExecutor implements the search_content tool.
type SearchContentExecutor struct {
	// Engine enforces the user's ignore rules
	Engine *ignore.Engine

	// Runner executes rg when installed (nil = always native)
	Runner *CommandRunner

	// MaxResults caps the total match count (default: SearchMaxResults)
	MaxResults int

	// MaxFileSize skips larger files in the native walk (default: 5MB)
	MaxFileSize int64

	// MaxContextLines clamps the context parameter (default: 10)
	MaxContextLines int
}

// searchOptions carries the optional search_content filters.
type searchOptions struct {
	Target     string
	IgnoreCase bool
	Context    int
	Glob       string
	FilesOnly  bool
	MaxCount   int
}

// Execute searches file contents for a regular expression.
func (e *SearchContentExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	start := time.Now()

	maxResults := e.MaxResults
	if maxResults <= 0 {
		maxResults = SearchMaxResults
	}
	maxContext := e.MaxContextLines
	if maxContext <= 0 {
		maxContext = SearchMaxContextLines
	}

	pattern := getStringParam(params, "pattern", "")
	if pattern == "" {
		return Result{
			Success:  false,
			Error:    "pattern parameter is required",
			Duration: time.Since(start),
		}, nil
	}

	target := getStringParam(params, "path", ".")
	opts := searchOptions{
		IgnoreCase: getBoolParam(params, "ignore_case", false),
		Context:    getIntParam(params, "context", 0),
		Glob:       getStringParam(params, "glob", ""),
		FilesOnly:  getBoolParam(params, "files_only", false),
		MaxCount:   getIntParam(params, "max_count", 0),
	}
	if opts.Context < 0 {
		opts.Context = 0
	}
	if opts.Context > maxContext {
		opts.Context = maxContext
	}

	if opts.Glob != "" {
		if _, err := slashpath.Match(strings.ReplaceAll(opts.Glob, "**", "*"), "probe"); err != nil {
			return Result{
				Success:  false,
				Error:    (&PatternError{Pattern: opts.Glob, Reason: "malformed glob"}).Error(),
				Duration: time.Since(start),
			}, nil
		}
	}

	if err := checkIgnore(e.Engine, target); err != nil {
		return Result{
			Success:  false,
			Error:    err.Error(),
			Duration: time.Since(start),
		}, nil
	}

	validated, err := ValidatePathSecure(target)
	if err != nil {
		return Result{
			Success:  false,
			Error:    err.Error(),
			Duration: time.Since(start),
		}, nil
	}
	opts.Target = validated

	if e.Runner != nil && e.Runner.Available("rg") {
		return e.searchWithRg(ctx, start, pattern, opts)
	}
	return e.searchNative(ctx, start, pattern, opts, maxResults)
}

// searchWithRg delegates the search to ripgrep with the ignore rule
// files passed through.
func (e *SearchContentExecutor) searchWithRg(ctx context.Context, start time.Time, pattern string, opts searchOptions) (Result, error) {
	var enforcement []string
	if e.Engine != nil {
		enforcement = e.Engine.EnforcementArgs(searchRootDir(opts.Target))
	}

	out, err := e.Runner.Run(ctx, RunSpec{
		Name: "rg",
		Args: buildSearchArgs(pattern, opts, enforcement),
	})
	if err != nil {
		if errors.Is(err, ErrCommandNotFound) {
			return e.searchNative(ctx, start, pattern, opts, SearchMaxResults)
		}
		return Result{
			Success:  false,
			Error:    err.Error(),
			Duration: time.Since(start),
		}, nil
	}

	// rg exits 1 with empty output when nothing matched
	if !out.Success {
		if out.ExitCode == 1 && strings.TrimSpace(out.Stderr) == "" {
			return Result{
				Success:  true,
				Output:   "No matches found for pattern: " + pattern,
				Duration: time.Since(start),
			}, nil
		}
		return Result{
			Success:  false,
			Error:    out.ResultString(),
			Duration: time.Since(start),
		}, nil
	}

	output := strings.TrimRight(out.Stdout, "\n")
	lines := 0
	if output != "" {
		lines = strings.Count(output, "\n") + 1
	}

	result := Result{
		Success:   true,
		Output:    output,
		Duration:  time.Since(start),
		Truncated: out.Truncated,
	}
	if opts.FilesOnly {
		result.FilesMatched = lines
	} else if opts.Context == 0 {
		result.MatchCount = lines
	}
	return result, nil
}

// buildSearchArgs assembles the rg argument vector. Enforcement args
// come before the pattern so rg applies the rule files to the walk.
func buildSearchArgs(pattern string, opts searchOptions, enforcement []string) []string {
	args := []string{"--color=never"}
	if opts.FilesOnly {
		args = append(args, "-l")
	} else {
		args = append(args, "-n")
	}
	if opts.IgnoreCase {
		args = append(args, "-i")
	}
	if opts.Context > 0 && !opts.FilesOnly {
		args = append(args, "-C", strconv.Itoa(opts.Context))
	}
	if opts.Glob != "" {
		args = append(args, "--glob", opts.Glob)
	}
	if opts.MaxCount > 0 {
		args = append(args, "-m", strconv.Itoa(opts.MaxCount))
	}
	args = append(args, enforcement...)
	args = append(args, "-e", pattern, opts.Target)
	return args
}

// searchRootDir returns the directory enforcement args are computed
// from: the target itself when it is a directory, its parent otherwise.
func searchRootDir(target string) string {
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		return target
	}
	return filepath.Dir(target)
}

// searchNative scans files with the Go regexp engine, pruning ignored
// and hidden directories during the walk.
func (e *SearchContentExecutor) searchNative(ctx context.Context, start time.Time, pattern string, opts searchOptions, maxResults int) (Result, error) {
	if opts.IgnoreCase {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Result{
			Success:  false,
			Error:    (&PatternError{Pattern: pattern, Reason: err.Error()}).Error(),
			Duration: time.Since(start),
		}, nil
	}

	maxFileSize := e.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = SearchMaxFileSize
	}

	state := &searchState{
		re:          re,
		opts:        opts,
		maxResults:  maxResults,
		maxFileSize: maxFileSize,
	}

	info, err := os.Stat(opts.Target)
	if err != nil {
		return Result{
			Success:  false,
			Error:    fmt.Sprintf("cannot access search path: %v", err),
			Duration: time.Since(start),
		}, nil
	}

	if !info.IsDir() {
		if serr := state.searchFile(ctx, opts.Target); serr != nil && !errors.Is(serr, errSearchLimit) {
			return Result{
				Success:  false,
				Error:    "search canceled: " + serr.Error(),
				Duration: time.Since(start),
			}, nil
		}
	} else {
		walkErr := filepath.WalkDir(opts.Target, func(p string, d fs.DirEntry, werr error) error {
			if werr != nil {
				return nil
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if p == opts.Target {
				return nil
			}

			if strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if e.Engine != nil && e.Engine.IsIgnored(p) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if d.IsDir() {
				return nil
			}

			if opts.Glob != "" && !matchFileGlob(opts.Glob, opts.Target, p) {
				return nil
			}

			if isBinaryExtension(p) {
				return nil
			}

			if serr := state.searchFile(ctx, p); serr != nil {
				if errors.Is(serr, errSearchLimit) {
					return filepath.SkipAll
				}
				return serr
			}
			return nil
		})
		if walkErr != nil {
			return Result{
				Success:  false,
				Error:    "search canceled: " + walkErr.Error(),
				Duration: time.Since(start),
			}, nil
		}
	}

	if state.totalMatches == 0 {
		return Result{
			Success:  true,
			Output:   "No matches found for pattern: " + getOriginalPattern(pattern, opts.IgnoreCase),
			Duration: time.Since(start),
		}, nil
	}

	var output string
	if opts.FilesOnly {
		output = strings.Join(state.files, "\n")
	} else {
		output = strings.Join(state.lines, "\n")
	}
	if state.limited {
		output += fmt.Sprintf("\n[Results limited to %d matches]", maxResults)
	}

	return Result{
		Success:      true,
		Output:       output,
		Duration:     time.Since(start),
		Truncated:    state.limited,
		MatchCount:   state.totalMatches,
		FilesMatched: len(state.files),
	}, nil
}

// getOriginalPattern strips the case-insensitivity prefix injected for
// the native engine, for display.
func getOriginalPattern(pattern string, ignoreCase bool) string {
	if ignoreCase {
		return strings.TrimPrefix(pattern, "(?i)")
	}
	return pattern
}

// errSearchLimit stops the walk once the global match cap is reached.
var errSearchLimit = errors.New("search result limit reached")

// searchState accumulates matches across files during a native search.
type searchState struct {
	re          *regexp.Regexp
	opts        searchOptions
	maxResults  int
	maxFileSize int64

	lines        []string
	files        []string
	totalMatches int
	limited      bool
	lastFile     string
}

// searchFile scans one file, emitting matches and context lines in
// grep-style file:line:content form.
func (s *searchState) searchFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil || info.Size() > s.maxFileSize {
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	type numbered struct {
		num  int
		text string
	}

	lineNum := 0
	fileMatches := 0
	afterRemaining := 0
	var ring []numbered

	for scanner.Scan() {
		lineNum++
		if lineNum%200 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		line := scanner.Text()
		if utf8.RuneCountInString(line) > searchMaxLineRunes {
			line = util.TruncateRunes(line, searchMaxLineRunes)
		}

		if s.re.MatchString(line) {
			if fileMatches == 0 {
				s.files = append(s.files, path)
				if s.opts.Context > 0 && s.lastFile != "" && s.lastFile != path && !s.opts.FilesOnly {
					s.lines = append(s.lines, "--")
				}
				s.lastFile = path
			}
			fileMatches++
			s.totalMatches++

			if !s.opts.FilesOnly {
				for _, c := range ring {
					s.lines = append(s.lines, fmt.Sprintf("%s:%d-%s", path, c.num, c.text))
				}
				ring = ring[:0]
				s.lines = append(s.lines, fmt.Sprintf("%s:%d:%s", path, lineNum, line))
				afterRemaining = s.opts.Context
			}

			if s.totalMatches >= s.maxResults {
				s.limited = true
				return errSearchLimit
			}
			if s.opts.FilesOnly {
				return nil // one hit per file is enough
			}
			if s.opts.MaxCount > 0 && fileMatches >= s.opts.MaxCount {
				return nil
			}
			continue
		}

		if s.opts.FilesOnly || s.opts.Context == 0 {
			continue
		}

		if afterRemaining > 0 {
			s.lines = append(s.lines, fmt.Sprintf("%s:%d+%s", path, lineNum, line))
			afterRemaining--
			continue
		}

		ring = append(ring, numbered{num: lineNum, text: line})
		if len(ring) > s.opts.Context {
			ring = ring[1:]
		}
	}

	return nil
}

// matchFileGlob matches a file against a glob. Bare globs ("*.go")
// match the basename; globs with a "**/" prefix match the basename at
// any depth; globs with path separators match the root-relative path.
func matchFileGlob(glob, root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	if after, found := strings.CutPrefix(glob, "**/"); found {
		if ok, _ := slashpath.Match(after, slashpath.Base(rel)); ok {
			return true
		}
		ok, _ := slashpath.Match(after, rel)
		return ok
	}

	if !strings.Contains(glob, "/") {
		ok, _ := slashpath.Match(glob, slashpath.Base(rel))
		return ok
	}

	ok, _ := slashpath.Match(glob, rel)
	return ok
}

// binaryExtensions are file types the native search never scans.
var binaryExtensions = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true, ".bin": true,
	".o": true, ".obj": true, ".a": true, ".lib": true, ".wasm": true,
	".class": true, ".pyc": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".ico": true, ".webp": true,
	".mp3": true, ".wav": true, ".flac": true, ".ogg": true,
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true, ".webm": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".xz": true,
	".7z": true, ".rar": true, ".zst": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
}

// isBinaryExtension checks the extension against the binary blacklist.
func isBinaryExtension(path string) bool {
	return binaryExtensions[strings.ToLower(filepath.Ext(path))]
}
