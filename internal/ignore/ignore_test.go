// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ignore

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// newBareEngine returns an engine with no global rules, pointing the global
// path into an empty temp dir so a developer's real config cannot leak in.
func newBareEngine(t *testing.T) *Engine {
	t.Helper()

	e, err := NewWithGlobalFile(filepath.Join(t.TempDir(), "ignore"))
	if err != nil {
		t.Fatalf("NewWithGlobalFile() error: %v", err)
	}
	return e
}

func writeRuleFile(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, RuleFileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write rule file: %v", err)
	}
	return path
}

// =============================================================================
// QUERY TESTS
// =============================================================================

func TestIsIgnoredNoRuleFiles(t *testing.T) {
	e := newBareEngine(t)
	dir := t.TempDir()

	for _, path := range []string{
		filepath.Join(dir, "test.txt"),
		filepath.Join(dir, "x.secret"),
		filepath.Join(dir, "nested", "deep", "file.go"),
	} {
		if e.IsIgnored(path) {
			t.Errorf("IsIgnored(%q) = true with no rule files anywhere", path)
		}
	}
}

func TestIsIgnoredDirectoryRules(t *testing.T) {
	e := newBareEngine(t)
	dir := t.TempDir()
	writeRuleFile(t, dir, "*.secret\nsecrets/\n")

	tests := []struct {
		name    string
		path    string
		ignored bool
	}{
		{"unmatched file", filepath.Join(dir, "a.txt"), false},
		{"glob match", filepath.Join(dir, "x.secret"), true},
		{"glob match at depth", filepath.Join(dir, "sub", "y.secret"), true},
		{"inside dir-only match", filepath.Join(dir, "secrets", "file.txt"), true},
		{"file named like the dir pattern", filepath.Join(dir, "sub", "secrets"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.IsIgnored(tt.path); got != tt.ignored {
				t.Errorf("IsIgnored(%q) = %v, want %v", tt.path, got, tt.ignored)
			}
		})
	}
}

func TestIsIgnoredDirOnlyPattern(t *testing.T) {
	e := newBareEngine(t)
	dir := t.TempDir()
	writeRuleFile(t, dir, "cache/\n")

	cacheDir := filepath.Join(dir, "cache")
	if err := os.Mkdir(cacheDir, 0755); err != nil {
		t.Fatal(err)
	}
	plainFile := filepath.Join(dir, "sub", "cache")
	if err := os.MkdirAll(filepath.Dir(plainFile), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(plainFile, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if !e.IsIgnored(cacheDir) {
		t.Error("directory matching a dir-only pattern should be ignored")
	}
	if !e.IsIgnored(filepath.Join(cacheDir, "entry.bin")) {
		t.Error("contents of an ignored directory should be ignored")
	}
	if e.IsIgnored(plainFile) {
		t.Error("a plain file must not match a dir-only pattern")
	}
}

func TestIsIgnoredNestedScopes(t *testing.T) {
	e := newBareEngine(t)
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	writeRuleFile(t, root, "*.root\n")
	writeRuleFile(t, sub, "*.sub\n")

	tests := []struct {
		name    string
		path    string
		ignored bool
	}{
		{"root rule in root", filepath.Join(root, "test.root"), true},
		{"root rule reaches into sub", filepath.Join(sub, "test.root"), true},
		{"sub rule in sub", filepath.Join(sub, "test.sub"), true},
		{"sub rule does not reach root", filepath.Join(root, "test.sub"), false},
		{"unmatched in sub", filepath.Join(sub, "normal.txt"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.IsIgnored(tt.path); got != tt.ignored {
				t.Errorf("IsIgnored(%q) = %v, want %v", tt.path, got, tt.ignored)
			}
		})
	}
}

func TestIsIgnoredNegationStaysWithinFile(t *testing.T) {
	e := newBareEngine(t)
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}

	// Within one file, a later ! pattern wins over an earlier match.
	writeRuleFile(t, root, "*.secret\n!keep.secret\n")
	if e.IsIgnored(filepath.Join(root, "keep.secret")) {
		t.Error("negation in the same file should un-ignore keep.secret")
	}
	if !e.IsIgnored(filepath.Join(root, "other.secret")) {
		t.Error("other .secret files stay ignored")
	}

	// Across files there is no un-ignore: the subdirectory cannot carve a
	// hole in the root's rules.
	writeRuleFile(t, sub, "!*.secret\n")
	if !e.IsIgnored(filepath.Join(sub, "leak.secret")) {
		t.Error("a child rule file must not un-ignore a parent match")
	}
}

func TestIsIgnoredGlobalRules(t *testing.T) {
	globalDir := t.TempDir()
	globalFile := filepath.Join(globalDir, "ignore")
	if err := os.WriteFile(globalFile, []byte("*.secret\n"), 0644); err != nil {
		t.Fatal(err)
	}

	e, err := NewWithGlobalFile(globalFile)
	if err != nil {
		t.Fatalf("NewWithGlobalFile() error: %v", err)
	}
	if !e.GlobalLoaded() {
		t.Fatal("global rules should have loaded")
	}

	work := t.TempDir()
	if !e.IsIgnored(filepath.Join(work, "x.secret")) {
		t.Error("global pattern should apply with no directory rules present")
	}
	if !e.IsIgnored(filepath.Join(work, "a", "b", "c", "deep.secret")) {
		t.Error("global pattern should apply at any depth")
	}
	if e.IsIgnored(filepath.Join(work, "x.txt")) {
		t.Error("unmatched path ignored by global rules")
	}
}

func TestIsIgnoredOwnDirectoryRuleDoesNotSelfApply(t *testing.T) {
	e := newBareEngine(t)
	root := t.TempDir()
	hidden := filepath.Join(root, "hidden")
	if err := os.Mkdir(hidden, 0755); err != nil {
		t.Fatal(err)
	}
	// The rule lives inside hidden/ and names the directory itself. Only
	// ancestors are consulted for a path, so hidden/ is not hidden by its
	// own file, while its contents still are via the parent walk.
	writeRuleFile(t, hidden, "*\n")

	if e.IsIgnored(hidden) {
		t.Error("a directory's own rule file must not apply to the directory itself")
	}
	if !e.IsIgnored(filepath.Join(hidden, "anything.txt")) {
		t.Error("contents are governed by the directory's rule file")
	}
}

// =============================================================================
// CONSTRUCTION AND FAILURE TESTS
// =============================================================================

func TestNewWithGlobalFileAbsent(t *testing.T) {
	e, err := NewWithGlobalFile(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("absent global file should not be an error, got: %v", err)
	}
	if e.GlobalLoaded() {
		t.Error("GlobalLoaded() = true for an absent file")
	}
}

func TestNewWithGlobalFileMalformed(t *testing.T) {
	globalFile := filepath.Join(t.TempDir(), "ignore")
	if err := os.WriteFile(globalFile, []byte("ok.txt\nbad[pattern\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := NewWithGlobalFile(globalFile); err == nil {
		t.Fatal("strict construction should fail on a malformed global rule file")
	}
}

func TestNewDefaultSwallowsGlobalError(t *testing.T) {
	cfg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", cfg)
	if !strings.HasPrefix(DefaultGlobalFile(), cfg) {
		t.Skip("platform config dir does not honor XDG_CONFIG_HOME")
	}

	if err := os.MkdirAll(filepath.Join(cfg, "agent"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfg, "agent", "ignore"), []byte("bad[\n"), 0644); err != nil {
		t.Fatal(err)
	}

	e := NewDefault()
	if e == nil {
		t.Fatal("NewDefault() returned nil")
	}
	if e.GlobalLoaded() {
		t.Error("malformed global rules should have been dropped")
	}
	if e.IsIgnored(filepath.Join(t.TempDir(), "anything.txt")) {
		t.Error("engine without rules should ignore nothing")
	}
}

func TestDirectoryRuleParseFailureFailsOpen(t *testing.T) {
	e := newBareEngine(t)
	root := t.TempDir()
	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	writeRuleFile(t, root, "*.secret\n")
	writeRuleFile(t, sub, "bad[pattern\n")

	// The broken file contributes nothing, the intact ancestor still applies.
	if e.IsIgnored(filepath.Join(sub, "normal.txt")) {
		t.Error("broken directory rules must fail open")
	}
	if !e.IsIgnored(filepath.Join(sub, "x.secret")) {
		t.Error("ancestor rules still apply below a broken rule file")
	}
}

// =============================================================================
// VALIDATE AND FILTER TESTS
// =============================================================================

func TestValidatePath(t *testing.T) {
	e := newBareEngine(t)
	dir := t.TempDir()
	writeRuleFile(t, dir, "*.secret\n")

	if err := e.ValidatePath(filepath.Join(dir, "open.txt")); err != nil {
		t.Errorf("ValidatePath() unexpected error: %v", err)
	}

	blocked := filepath.Join(dir, "x.secret")
	err := e.ValidatePath(blocked)
	if err == nil {
		t.Fatal("ValidatePath() should reject an ignored path")
	}
	var denied *AccessDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected *AccessDeniedError, got %T: %v", err, err)
	}
	if denied.Path != blocked {
		t.Errorf("AccessDeniedError.Path = %q, want %q", denied.Path, blocked)
	}
	if !strings.Contains(err.Error(), blocked) {
		t.Errorf("error message should carry the path, got %q", err.Error())
	}
}

func TestFilterPaths(t *testing.T) {
	e := newBareEngine(t)
	dir := t.TempDir()
	writeRuleFile(t, dir, "*.secret\n")

	in := []string{
		filepath.Join(dir, "a.txt"),
		filepath.Join(dir, "b.secret"),
		filepath.Join(dir, "c.go"),
		filepath.Join(dir, "d.secret"),
		filepath.Join(dir, "e.md"),
	}
	want := []string{in[0], in[2], in[4]}

	got := e.FilterPaths(in)
	if len(got) != len(want) {
		t.Fatalf("FilterPaths() kept %d paths, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("FilterPaths()[%d] = %q, want %q (order must be preserved)", i, got[i], want[i])
		}
	}

	if got := e.FilterPaths(nil); len(got) != 0 {
		t.Errorf("FilterPaths(nil) = %v, want empty", got)
	}
}

// =============================================================================
// ENFORCEMENT ARGS TESTS
// =============================================================================

func TestEnforcementArgsNoRuleFiles(t *testing.T) {
	e := newBareEngine(t)
	args := e.EnforcementArgs(t.TempDir())

	if len(args) != 1 || args[0] != "--no-ignore" {
		t.Errorf("EnforcementArgs() = %v, want exactly [--no-ignore]", args)
	}
}

func TestEnforcementArgsNearestFirst(t *testing.T) {
	e := newBareEngine(t)
	root := t.TempDir()
	mid := filepath.Join(root, "mid")
	leaf := filepath.Join(mid, "leaf")
	if err := os.MkdirAll(leaf, 0755); err != nil {
		t.Fatal(err)
	}
	writeRuleFile(t, root, "*.root\n")
	writeRuleFile(t, leaf, "*.leaf\n")

	args := e.EnforcementArgs(leaf)

	if args[0] != "--no-ignore" {
		t.Fatalf("args[0] = %q, want --no-ignore", args[0])
	}
	var files []string
	for _, a := range args[1:] {
		if !strings.HasPrefix(a, "--ignore-file=") {
			t.Fatalf("unexpected token %q", a)
		}
		files = append(files, strings.TrimPrefix(a, "--ignore-file="))
	}
	if len(files) != 2 {
		t.Fatalf("got %d ignore files %v, want 2 (mid/ has no rule file)", len(files), files)
	}
	wantLeaf := filepath.Join(canonicalPath(leaf), RuleFileName)
	wantRoot := filepath.Join(canonicalPath(root), RuleFileName)
	if files[0] != wantLeaf || files[1] != wantRoot {
		t.Errorf("files = %v, want nearest-first [%s %s]", files, wantLeaf, wantRoot)
	}
}

func TestEnforcementArgsIncludesGlobal(t *testing.T) {
	globalFile := filepath.Join(t.TempDir(), "ignore")
	if err := os.WriteFile(globalFile, []byte("*.secret\n"), 0644); err != nil {
		t.Fatal(err)
	}
	e, err := NewWithGlobalFile(globalFile)
	if err != nil {
		t.Fatal(err)
	}

	work := t.TempDir()
	writeRuleFile(t, work, "*.local\n")

	args := e.EnforcementArgs(work)
	if len(args) != 3 {
		t.Fatalf("EnforcementArgs() = %v, want 3 tokens", args)
	}
	if args[0] != "--no-ignore" {
		t.Errorf("args[0] = %q", args[0])
	}
	if args[1] != "--ignore-file="+globalFile {
		t.Errorf("args[1] = %q, want the global file before directory files", args[1])
	}
	if args[2] != "--ignore-file="+filepath.Join(canonicalPath(work), RuleFileName) {
		t.Errorf("args[2] = %q, want the working directory rule file", args[2])
	}
}

// =============================================================================
// CACHE TESTS
// =============================================================================

func TestClearCachePicksUpEdits(t *testing.T) {
	e := newBareEngine(t)
	dir := t.TempDir()
	writeRuleFile(t, dir, "*.a\n")

	if !e.IsIgnored(filepath.Join(dir, "x.a")) {
		t.Fatal("initial rules not applied")
	}

	// Edits are invisible until the caller clears: the cache never watches.
	writeRuleFile(t, dir, "*.b\n")
	if e.IsIgnored(filepath.Join(dir, "x.b")) {
		t.Error("edit observed without ClearCache; cache should be stale")
	}
	if !e.IsIgnored(filepath.Join(dir, "x.a")) {
		t.Error("stale rules should still apply before ClearCache")
	}

	e.ClearCache()
	if !e.IsIgnored(filepath.Join(dir, "x.b")) {
		t.Error("updated rules not observed after ClearCache")
	}
	if e.IsIgnored(filepath.Join(dir, "x.a")) {
		t.Error("old rules still applied after ClearCache")
	}
}

func TestReloadGlobal(t *testing.T) {
	globalFile := filepath.Join(t.TempDir(), "ignore")
	if err := os.WriteFile(globalFile, []byte("*.secret\n"), 0644); err != nil {
		t.Fatal(err)
	}
	e, err := NewWithGlobalFile(globalFile)
	if err != nil {
		t.Fatalf("NewWithGlobalFile() error: %v", err)
	}

	work := t.TempDir()
	if !e.IsIgnored(filepath.Join(work, "x.secret")) {
		t.Fatal("initial global rules not applied")
	}

	if err := os.WriteFile(globalFile, []byte("*.private\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := e.ReloadGlobal(); err != nil {
		t.Fatalf("ReloadGlobal() error: %v", err)
	}
	if e.IsIgnored(filepath.Join(work, "x.secret")) {
		t.Error("old global rules still applied after reload")
	}
	if !e.IsIgnored(filepath.Join(work, "x.private")) {
		t.Error("new global rules not applied after reload")
	}

	// A malformed file keeps the previous rules in force.
	if err := os.WriteFile(globalFile, []byte("[\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := e.ReloadGlobal(); err == nil {
		t.Error("ReloadGlobal() should report a malformed rule file")
	}
	if !e.IsIgnored(filepath.Join(work, "x.private")) {
		t.Error("previous rules dropped after failed reload")
	}

	// Removing the file clears the global rules, matching construction.
	if err := os.Remove(globalFile); err != nil {
		t.Fatal(err)
	}
	if err := e.ReloadGlobal(); err != nil {
		t.Fatalf("ReloadGlobal() after remove error: %v", err)
	}
	if e.GlobalLoaded() {
		t.Error("global rules should be gone once the file is removed")
	}
	if e.IsIgnored(filepath.Join(work, "x.private")) {
		t.Error("removed global rules still applied")
	}
}

func TestReloadGlobalNoPath(t *testing.T) {
	e, err := NewWithGlobalFile("")
	if err != nil {
		t.Fatal(err)
	}
	if err := e.ReloadGlobal(); err != nil {
		t.Errorf("ReloadGlobal() with no global path error: %v", err)
	}
	if e.GlobalLoaded() {
		t.Error("engine without a global path should never load global rules")
	}
}

func TestCachedDirs(t *testing.T) {
	e := newBareEngine(t)
	dir := t.TempDir()
	writeRuleFile(t, dir, "*.secret\n")

	if got := e.CachedDirs(); len(got) != 0 {
		t.Fatalf("CachedDirs() = %v before any query", got)
	}

	// The queried file does not exist, so canonicalization keeps the path
	// as given and the cache key is its parent verbatim.
	e.IsIgnored(filepath.Join(dir, "x.secret"))
	got := e.CachedDirs()
	if len(got) != 1 || got[0] != dir {
		t.Errorf("CachedDirs() = %v, want [%s]", got, dir)
	}

	e.ClearCache()
	if got := e.CachedDirs(); len(got) != 0 {
		t.Errorf("CachedDirs() = %v after ClearCache", got)
	}
}

func TestCloneSharesGlobalNotCache(t *testing.T) {
	globalFile := filepath.Join(t.TempDir(), "ignore")
	if err := os.WriteFile(globalFile, []byte("*.secret\n"), 0644); err != nil {
		t.Fatal(err)
	}
	e, err := NewWithGlobalFile(globalFile)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	writeRuleFile(t, dir, "*.local\n")
	e.IsIgnored(filepath.Join(dir, "x.local")) // warm the parent cache

	clone := e.Clone()
	if !clone.GlobalLoaded() {
		t.Error("clone should share the global rules")
	}
	if clone.global != e.global {
		t.Error("global rules should be shared by reference, not recompiled")
	}
	if got := clone.CachedDirs(); len(got) != 0 {
		t.Errorf("clone cache should start empty, got %v", got)
	}

	// The clone recompiles on its own and reaches the same answers.
	if !clone.IsIgnored(filepath.Join(dir, "x.local")) {
		t.Error("clone should reach the same directory-rule answer")
	}
	if !clone.IsIgnored(filepath.Join(dir, "x.secret")) {
		t.Error("clone should apply the shared global rules")
	}
}

func TestConcurrentQueries(t *testing.T) {
	e := newBareEngine(t)
	dir := t.TempDir()
	writeRuleFile(t, dir, "*.secret\n")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if !e.IsIgnored(filepath.Join(dir, "x.secret")) {
					t.Error("concurrent query returned wrong answer")
					return
				}
				if e.IsIgnored(filepath.Join(dir, "x.txt")) {
					t.Error("concurrent query returned wrong answer")
					return
				}
			}
		}()
	}
	wg.Wait()
}
