// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ignore implements the access-control boundary consulted before any
// filesystem-touching tool operation.
// patterns.go compiles one rule file into an immutable PatternSet.
package ignore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// =============================================================================
// PATTERN SET
// =============================================================================

// PatternSet is the compiled, immutable form of one rule file. It is safe for
// concurrent use and may be shared freely; nothing mutates it after
// compilation.
type PatternSet struct {
	// matcher evaluates patterns in gitignore order: the last pattern that
	// matches a path wins, and ! patterns negate earlier matches.
	matcher gitignore.Matcher

	// base is the directory the rule file lives in. Paths are matched
	// relative to it. The global rule set uses "" and matches against the
	// full path.
	base string

	// source is the rule file the set was compiled from.
	source string
}

// compilePatternSet reads the rule file at path and compiles it into a
// PatternSet rooted at base. The file must exist; callers check existence
// first. A file containing a malformed glob pattern is a compile error.
func compilePatternSet(path, base string) (*PatternSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule file %s: %w", path, err)
	}

	var patterns []gitignore.Pattern
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := validatePattern(line); err != nil {
			return nil, fmt.Errorf("rule file %s line %d: %w", path, i+1, err)
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}

	return &PatternSet{
		matcher: gitignore.NewMatcher(patterns),
		base:    base,
		source:  path,
	}, nil
}

// Matches reports whether the set ignores path. Directory-only patterns
// (trailing slash) match only when isDir is true, but still cover everything
// below a matched directory.
func (ps *PatternSet) Matches(path string, isDir bool) bool {
	parts := ps.split(path)
	if parts == nil {
		return false
	}
	return ps.matcher.Match(parts, isDir)
}

// Source returns the rule file the set was compiled from.
func (ps *PatternSet) Source() string {
	return ps.source
}

// split turns path into the slash-separated components the matcher expects,
// relative to the set's base. A path outside the base (or the base itself)
// yields nil: the set has nothing to say about it.
func (ps *PatternSet) split(path string) []string {
	if ps.base == "" {
		return splitFullPath(path)
	}

	rel, err := filepath.Rel(ps.base, path)
	if err != nil {
		return nil
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil
	}
	return strings.Split(filepath.ToSlash(rel), "/")
}

// splitFullPath splits an entire path into components, dropping the volume
// name and any leading separator so "/a/b" and "C:\a\b" both become [a b].
func splitFullPath(path string) []string {
	p := strings.TrimPrefix(path, filepath.VolumeName(path))
	p = strings.TrimPrefix(filepath.ToSlash(p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// =============================================================================
// PATTERN VALIDATION
// =============================================================================

// validatePattern rejects lines whose glob syntax cannot compile, such as an
// unclosed character class. The matcher itself silently treats such patterns
// as non-matching, which would turn a typo in a rule file into a hole in the
// boundary; surfacing the error lets construction-time policy decide instead.
func validatePattern(line string) error {
	p := strings.TrimPrefix(line, "!")
	p = strings.TrimSuffix(p, "/")

	for _, segment := range strings.Split(p, "/") {
		if segment == "**" || segment == "" {
			continue
		}
		if _, err := filepath.Match(segment, "probe"); err != nil {
			return fmt.Errorf("malformed pattern %q: %w", line, err)
		}
	}
	return nil
}
