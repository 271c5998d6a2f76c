// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ignore implements the access-control boundary consulted before any
// filesystem-touching tool operation.
// ignore.go implements the Engine: global rules, the directory rule cache,
// and the query/translation operations.
package ignore

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// RuleFileName is the per-directory rule file discovered by the upward walk.
const RuleFileName = ".agentignore"

// DefaultGlobalFile returns the platform location of the global rule file,
// <user config dir>/agent/ignore, or "" when the config dir is unknown.
func DefaultGlobalFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "agent", "ignore")
}

// =============================================================================
// ACCESS DENIED ERROR
// =============================================================================

// AccessDeniedError reports a path blocked by ignore rules. Tools surface it
// to the caller as a blocked-operation message; it is never retried.
type AccessDeniedError struct {
	Path string
}

func (e *AccessDeniedError) Error() string {
	return "path is blocked by " + RuleFileName + ": " + e.Path
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine combines the global rules and per-directory rule files into a single
// boundary. It is a long-lived object shared across concurrent tool
// invocations; all methods are safe for concurrent use.
type Engine struct {
	// globalPath is where the global rule file lives (or would live). Kept
	// even when no rules loaded so EnforcementArgs stays consistent with a
	// file that appears later.
	globalPath string

	mu sync.RWMutex

	// global is the compiled global rule set, nil when the file is absent.
	// Replaced wholesale by ReloadGlobal, never mutated in place, so clones
	// holding the old set stay valid.
	global *PatternSet

	cache map[string]*PatternSet // directory -> compiled rules
}

// New creates an Engine that loads global rules from the platform location.
// An absent global file is fine; a global file that fails to compile is a
// construction error, on the grounds that a misconfigured security boundary
// should fail loudly at startup rather than quietly at query time.
func New() (*Engine, error) {
	return NewWithGlobalFile(DefaultGlobalFile())
}

// NewWithGlobalFile is New with an explicit global rule file location.
func NewWithGlobalFile(path string) (*Engine, error) {
	e := &Engine{
		globalPath: path,
		cache:      make(map[string]*PatternSet),
	}
	if path == "" || !fileExists(path) {
		return e, nil
	}

	ps, err := compilePatternSet(path, "")
	if err != nil {
		return nil, fmt.Errorf("global ignore rules: %w", err)
	}
	e.global = ps
	return e, nil
}

// NewDefault is the availability-over-safety constructor: a global rule file
// that fails to compile is logged and dropped instead of failing construction.
// The engine then runs with directory rules only.
func NewDefault() *Engine {
	e, err := New()
	if err != nil {
		log.Printf("ignore: proceeding without global rules: %v", err)
		return &Engine{
			globalPath: DefaultGlobalFile(),
			cache:      make(map[string]*PatternSet),
		}
	}
	return e
}

// Clone returns an independent engine sharing the current global rules but
// starting with an empty private cache, so clones never observe each other's
// cached entries. A later ReloadGlobal on either engine does not affect the
// other.
func (e *Engine) Clone() *Engine {
	e.mu.RLock()
	global := e.global
	e.mu.RUnlock()
	return &Engine{
		globalPath: e.globalPath,
		global:     global,
		cache:      make(map[string]*PatternSet),
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// IsIgnored reports whether path is excluded by the global rules or by any
// ancestor directory's rule file. Sources are additive: the first match from
// any of them decides, and no rule file can un-ignore a match from another.
func (e *Engine) IsIgnored(path string) bool {
	canonical := canonicalPath(path)
	isDir := pathIsDir(canonical)

	e.mu.RLock()
	global := e.global
	e.mu.RUnlock()
	if global != nil && global.Matches(canonical, isDir) {
		return true
	}

	// Walk ancestors starting at the parent: a directory's own rule file
	// governs its contents, never the directory itself.
	for dir := filepath.Dir(canonical); ; {
		if fileExists(filepath.Join(dir, RuleFileName)) {
			if ps := e.getOrCompile(dir); ps != nil && ps.Matches(canonical, isDir) {
				return true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return false
		}
		dir = parent
	}
}

// ValidatePath returns an AccessDeniedError when path is ignored, carrying
// the full path for user-facing diagnostics.
func (e *Engine) ValidatePath(path string) error {
	if e.IsIgnored(path) {
		return &AccessDeniedError{Path: path}
	}
	return nil
}

// FilterPaths retains, in the original order, exactly the entries that are
// not ignored.
func (e *Engine) FilterPaths(paths []string) []string {
	filtered := make([]string, 0, len(paths))
	for _, p := range paths {
		if !e.IsIgnored(p) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// EnforcementArgs translates the boundary into flags for a delegated scanner
// run in workingDir: --no-ignore first, then --ignore-file=<path> for the
// global file and for every .agentignore from workingDir (inclusive) up to
// the root, nearest first. Callers must append the tokens verbatim and in
// full; in-process and delegated enforcement agree only when the whole list
// is honored.
func (e *Engine) EnforcementArgs(workingDir string) []string {
	args := []string{"--no-ignore"}

	if e.globalPath != "" && fileExists(e.globalPath) {
		args = append(args, "--ignore-file="+e.globalPath)
	}

	for dir := canonicalPath(workingDir); ; {
		ruleFile := filepath.Join(dir, RuleFileName)
		if fileExists(ruleFile) {
			args = append(args, "--ignore-file="+ruleFile)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return args
		}
		dir = parent
	}
}

// =============================================================================
// CACHE
// =============================================================================

// getOrCompile returns dir's compiled rules, compiling and caching them on
// first use. A directory without a rule file yields nil and is never cached;
// absence is cheap to re-derive. A rule file that fails to compile also
// yields nil: that directory contributes no rules, while global rules and
// other ancestors still apply.
func (e *Engine) getOrCompile(dir string) *PatternSet {
	e.mu.RLock()
	ps, ok := e.cache[dir]
	e.mu.RUnlock()
	if ok {
		return ps
	}

	ruleFile := filepath.Join(dir, RuleFileName)
	if !fileExists(ruleFile) {
		return nil
	}

	ps, err := compilePatternSet(ruleFile, dir)
	if err != nil {
		log.Printf("ignore: skipping rule file %s: %v", ruleFile, err)
		return nil
	}

	// Concurrent misses for the same directory may both compile; the later
	// insert overwrites an equivalent value, so no double-check is needed.
	e.mu.Lock()
	e.cache[dir] = ps
	e.mu.Unlock()
	return ps
}

// ClearCache discards all cached directory rules. Global rules are untouched.
// Callers use it after rule files are known to have changed on disk; the
// cache never invalidates itself.
func (e *Engine) ClearCache() {
	e.mu.Lock()
	e.cache = make(map[string]*PatternSet)
	e.mu.Unlock()
}

// ReloadGlobal recompiles the global rule file from disk. An absent file
// clears the global rules, matching construction. A file that fails to
// compile leaves the previous rules in force and returns the error: a
// half-saved edit must not drop the boundary.
func (e *Engine) ReloadGlobal() error {
	if e.globalPath == "" {
		return nil
	}

	var ps *PatternSet
	if fileExists(e.globalPath) {
		compiled, err := compilePatternSet(e.globalPath, "")
		if err != nil {
			return fmt.Errorf("global ignore rules: %w", err)
		}
		ps = compiled
	}

	e.mu.Lock()
	e.global = ps
	e.mu.Unlock()
	return nil
}

// CachedDirs returns, sorted, the directories whose rule files are currently
// compiled into the cache.
func (e *Engine) CachedDirs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	dirs := make([]string, 0, len(e.cache))
	for dir := range e.cache {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs
}

// GlobalFile returns the global rule file location the engine was built with.
func (e *Engine) GlobalFile() string {
	return e.globalPath
}

// GlobalLoaded reports whether global rules are currently compiled.
func (e *Engine) GlobalLoaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.global != nil
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// canonicalPath resolves path to its absolute, symlink-free form. When
// resolution fails (typically a path that does not exist yet) the path is
// used as given, so queries about not-yet-created files still resolve
// against their intended location.
func canonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return path
	}
	return resolved
}

// pathIsDir reports whether path names an existing directory.
func pathIsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// fileExists reports whether path exists at all. Stat errors count as absent,
// matching how the walk treats unreadable directories.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
