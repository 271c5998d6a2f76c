// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Tests for CLI parsing, command suggestion, path checking, and the
// formatting helpers the commands share.
package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/rigtool/internal/groups"
	"github.com/jeranaias/rigtool/internal/ignore"
	"github.com/jeranaias/rigtool/internal/tools"
)

// Rendered-output assertions need colors off regardless of the
// environment running the tests.
func init() {
	ApplyColorMode("never")
}

// =============================================================================
// ARG PARSER TESTS (args.go)
// =============================================================================

func TestArgParser_BasicParsing(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantSub  string
		validate func(*testing.T, *ArgParser)
	}{
		{
			name:    "simple subcommand",
			args:    []string{"tasks"},
			wantSub: "tasks",
		},
		{
			name:    "subcommand with flag",
			args:    []string{"tasks", "--status", "pending"},
			wantSub: "tasks",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("status") != "pending" {
					t.Errorf("Flag(status) = %q, want %q", p.Flag("status"), "pending")
				}
			},
		},
		{
			name:    "flag with equals",
			args:    []string{"context", "--scope=session"},
			wantSub: "context",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Flag("scope") != "session" {
					t.Errorf("Flag(scope) = %q, want %q", p.Flag("scope"), "session")
				}
			},
		},
		{
			name:    "boolean flag",
			args:    []string{"cleanup", "--all"},
			wantSub: "cleanup",
			validate: func(t *testing.T, p *ArgParser) {
				if !p.BoolFlag("all") {
					t.Error("BoolFlag(all) should be true")
				}
			},
		},
		{
			name:    "explicit boolean false",
			args:    []string{"cleanup", "--all=false"},
			wantSub: "cleanup",
			validate: func(t *testing.T, p *ArgParser) {
				if p.BoolFlag("all") {
					t.Error("BoolFlag(all) should be false")
				}
			},
		},
		{
			name:    "positional arguments",
			args:    []string{"get", "server.profile"},
			wantSub: "get",
			validate: func(t *testing.T, p *ArgParser) {
				if p.Positional(1) != "server.profile" {
					t.Errorf("Positional(1) = %q, want %q", p.Positional(1), "server.profile")
				}
				if p.PositionalCount() != 2 {
					t.Errorf("PositionalCount() = %d, want 2", p.PositionalCount())
				}
			},
		},
		{
			name:    "no arguments",
			args:    []string{},
			wantSub: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewArgParser(tt.args)
			if p.Subcommand() != tt.wantSub {
				t.Errorf("Subcommand() = %q, want %q", p.Subcommand(), tt.wantSub)
			}
			if tt.validate != nil {
				tt.validate(t, p)
			}
		})
	}
}

func TestArgParser_Helpers(t *testing.T) {
	p := NewArgParser([]string{"tasks", "--status", "pending", "--all", "extra", "args"})

	if !p.HasFlag("status") {
		t.Error("HasFlag(status) should be true")
	}
	if !p.HasFlag("--all") {
		t.Error("HasFlag(--all) should accept a dashed name")
	}
	if p.HasFlag("missing") {
		t.Error("HasFlag(missing) should be false")
	}

	if got := p.FlagOrDefault("status", "completed"); got != "pending" {
		t.Errorf("FlagOrDefault(status) = %q, want %q", got, "pending")
	}
	if got := p.FlagOrDefault("scope", "session"); got != "session" {
		t.Errorf("FlagOrDefault(scope) = %q, want default %q", got, "session")
	}

	rest := p.PositionalFrom(1)
	if len(rest) != 2 || rest[0] != "extra" || rest[1] != "args" {
		t.Errorf("PositionalFrom(1) = %v, want [extra args]", rest)
	}
	if got := p.PositionalFrom(10); len(got) != 0 {
		t.Errorf("PositionalFrom(10) = %v, want empty", got)
	}
}

// =============================================================================
// PARSE TESTS (cli.go)
// =============================================================================

func TestParse_Commands(t *testing.T) {
	tests := []struct {
		name    string
		argv    []string
		wantCmd Command
	}{
		{"no args defaults to serve", []string{}, CmdServe},
		{"serve", []string{"serve"}, CmdServe},
		{"check", []string{"check", "a.txt"}, CmdCheck},
		{"tools", []string{"tools"}, CmdTools},
		{"tools alias", []string{"ls"}, CmdTools},
		{"describe", []string{"describe", "read_file"}, CmdDescribe},
		{"describe alias", []string{"desc", "read_file"}, CmdDescribe},
		{"state", []string{"state", "tasks"}, CmdState},
		{"state alias", []string{"st"}, CmdState},
		{"config", []string{"config", "show"}, CmdConfig},
		{"config alias", []string{"cfg"}, CmdConfig},
		{"version", []string{"version"}, CmdVersion},
		{"version flag", []string{"--version"}, CmdVersion},
		{"help", []string{"help"}, CmdHelp},
		{"help flag", []string{"-h"}, CmdHelp},
		{"unknown", []string{"frobnicate"}, CmdUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, _ := Parse(tt.argv)
			if cmd != tt.wantCmd {
				t.Errorf("Parse(%v) = %v, want %v", tt.argv, cmd, tt.wantCmd)
			}
		})
	}
}

func TestParse_GlobalFlags(t *testing.T) {
	cmd, args := Parse([]string{"--json", "-q", "tools", "--group", "write"})
	if cmd != CmdTools {
		t.Fatalf("cmd = %v, want CmdTools", cmd)
	}
	if !args.JSON || !args.Quiet {
		t.Error("JSON and Quiet should both be set")
	}
	// Command-specific flags stay in Raw for the handler's ArgParser
	if len(args.Raw) != 2 || args.Raw[0] != "--group" || args.Raw[1] != "write" {
		t.Errorf("Raw = %v, want [--group write]", args.Raw)
	}
}

func TestParse_ValueFlags(t *testing.T) {
	_, args := Parse([]string{"--profile=readonly", "--config", "/tmp/alt.toml", "tools"})
	if args.Profile != "readonly" {
		t.Errorf("Profile = %q, want %q", args.Profile, "readonly")
	}
	if args.ConfigPath != "/tmp/alt.toml" {
		t.Errorf("ConfigPath = %q, want %q", args.ConfigPath, "/tmp/alt.toml")
	}
}

func TestParse_ForceFlag(t *testing.T) {
	cmd, args := Parse([]string{"serve", "--force"})
	if cmd != CmdServe {
		t.Fatalf("cmd = %v, want CmdServe", cmd)
	}
	if !args.Force {
		t.Error("Force should be set")
	}
}

func TestParse_UnknownKeepsCommandWord(t *testing.T) {
	_, args := Parse([]string{"frobnicate", "x"})
	if args.Command != "frobnicate" {
		t.Errorf("Command = %q, want %q", args.Command, "frobnicate")
	}
}

// =============================================================================
// SUGGESTION TESTS (suggest.go)
// =============================================================================

func TestSuggestCommand(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"sreve", "serve"},
		{"chck", "check"},
		{"tols", "tools"},
		{"describ", "describe"},
		{"stat", "state"},
		{"hepl", "help"},
		{"x", ""},         // too short to guess
		{"qqqq", ""},      // nothing close
		{"serve", ""},     // exact matches get no suggestion
		{"VERSON", "version"},
	}

	for _, tt := range tests {
		if got := SuggestCommand(tt.input); got != tt.want {
			t.Errorf("SuggestCommand(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "abc", 3},
		{"abc", "", 3},
		{"abc", "abc", 0},
		{"kitten", "sitting", 3},
		{"serve", "sreve", 2},
	}

	for _, tt := range tests {
		if got := levenshteinDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshteinDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

// =============================================================================
// CHECK TESTS (check.go)
// =============================================================================

func newCheckEngine(t *testing.T) (*ignore.Engine, string) {
	t.Helper()

	dir := t.TempDir()
	rules := filepath.Join(dir, ignore.RuleFileName)
	if err := os.WriteFile(rules, []byte("*.secret\n"), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	eng, err := ignore.NewWithGlobalFile("")
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return eng, dir
}

func TestEvaluatePaths(t *testing.T) {
	eng, dir := newCheckEngine(t)

	results := evaluatePaths(eng, []string{
		filepath.Join(dir, "key.secret"),
		filepath.Join(dir, "readme.txt"),
	})

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if !results[0].Blocked {
		t.Errorf("%s should be blocked", results[0].Path)
	}
	if results[1].Blocked {
		t.Errorf("%s should be allowed", results[1].Path)
	}
}

func TestHandleCheckCommand_Clear(t *testing.T) {
	eng, dir := newCheckEngine(t)

	// Populate the rule cache, then :clear must drop it
	eng.IsIgnored(filepath.Join(dir, "key.secret"))
	if len(eng.CachedDirs()) == 0 {
		t.Fatal("expected cached rule dirs before :clear")
	}

	if quit := handleCheckCommand(":clear", eng); quit {
		t.Error(":clear should not quit")
	}
	if len(eng.CachedDirs()) != 0 {
		t.Error(":clear should drop the rule cache")
	}
}

func TestHandleCheckCommand_Quit(t *testing.T) {
	eng, _ := newCheckEngine(t)

	for _, cmd := range []string{":quit", ":q", ":exit"} {
		if !handleCheckCommand(cmd, eng) {
			t.Errorf("%s should quit", cmd)
		}
	}
	if handleCheckCommand(":unknown", eng) {
		t.Error("unknown command should not quit")
	}
}

// =============================================================================
// DESCRIBE TESTS (describe.go)
// =============================================================================

func fullRegistry(t *testing.T) *tools.Registry {
	t.Helper()

	eng, err := ignore.NewWithGlobalFile("")
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return tools.DefaultRegistry(groups.ProfileFull, eng)
}

func TestBuildToolDoc(t *testing.T) {
	registry := fullRegistry(t)
	tool := registry.Get("write_file")
	if tool == nil {
		t.Fatal("write_file should be registered")
	}

	doc := buildToolDoc(tool, groups.ProfileReadOnly)

	if !strings.HasPrefix(doc, "# write_file") {
		t.Errorf("doc should start with the tool name header, got %q", firstLine(doc))
	}
	if !strings.Contains(doc, "**Group:** write") {
		t.Error("doc should name the tool group")
	}
	if !strings.Contains(doc, `**Enabled in profile "readonly":** no`) {
		t.Error("write_file should be disabled in the readonly profile")
	}
	if !strings.Contains(doc, "| path | string | yes |") {
		t.Error("doc should include the required path parameter row")
	}

	enabledDoc := buildToolDoc(tool, groups.ProfileStandard)
	if !strings.Contains(enabledDoc, `**Enabled in profile "standard":** yes`) {
		t.Error("write_file should be enabled in the standard profile")
	}
}

func TestDescribeJSON(t *testing.T) {
	registry := fullRegistry(t)
	tool := registry.Get("read_file")
	if tool == nil {
		t.Fatal("read_file should be registered")
	}

	out := describeJSON(tool, groups.ProfileReadOnly)

	if out["name"] != "read_file" {
		t.Errorf("name = %v, want read_file", out["name"])
	}
	if out["group"] != "read" {
		t.Errorf("group = %v, want read", out["group"])
	}
	if out["enabled"] != true {
		t.Error("read_file should be enabled in the readonly profile")
	}

	params, ok := out["parameters"].([]map[string]interface{})
	if !ok || len(params) == 0 {
		t.Fatal("parameters should be a non-empty slice")
	}
	if params[0]["name"] == "" {
		t.Error("parameter entries should carry names")
	}
}

func firstLine(s string) string {
	if idx := strings.Index(s, "\n"); idx >= 0 {
		return s[:idx]
	}
	return s
}

// =============================================================================
// TOOLS TABLE TESTS (tools_cmd.go)
// =============================================================================

func TestToolRows(t *testing.T) {
	registry := fullRegistry(t)
	rows := toolRows(registry.All())

	if len(rows) != len(registry.Names()) {
		t.Fatalf("got %d rows, want %d", len(rows), len(registry.Names()))
	}

	seen := make(map[string]toolRow)
	for _, row := range rows {
		if row.Name == "" || row.Group == "" || row.Risk == "" || row.Description == "" {
			t.Errorf("row %+v has empty fields", row)
		}
		seen[row.Name] = row
	}

	if row, ok := seen["remove_file"]; !ok {
		t.Error("remove_file should be listed")
	} else if row.Group != "manage" {
		t.Errorf("remove_file group = %q, want manage", row.Group)
	}
}

// =============================================================================
// FORMATTING HELPER TESTS (helpers.go, terminal.go, styles.go)
// =============================================================================

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{3 * time.Hour, "3h"},
		{49 * time.Hour, "2d"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes int64
		want  string
	}{
		{512, "512 bytes"},
		{2048, "2.00 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.bytes); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.bytes, got, tt.want)
		}
	}
}

func TestWrapText(t *testing.T) {
	if got := WrapText("short", 80); got != "short" {
		t.Errorf("short text should pass through, got %q", got)
	}

	wrapped := WrapText("one two three four five six seven eight nine ten", 20)
	for _, line := range strings.Split(wrapped, "\n") {
		if len(line) > 18 { // 20 minus the margin
			t.Errorf("line %q exceeds wrap width", line)
		}
	}

	if got := WrapText("a\nb", 80); got != "a\nb" {
		t.Errorf("existing newlines should be preserved, got %q", got)
	}
}

func TestRenderStatus(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{"ok", "[OK]"},
		{"allowed", "[OK]"},
		{"blocked", "[BLOCKED]"},
		{"fail", "[FAIL]"},
		{"warn", "[WARN]"},
		{"other", "[OTHER]"},
	}

	for _, tt := range tests {
		if got := RenderStatus(tt.status); got != tt.want {
			t.Errorf("RenderStatus(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

// =============================================================================
// ERROR MAPPING TESTS (errors.go)
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"validation", NewValidationError("field", "v", "bad"), ExitUsageError},
		{"not found", NewNotFoundError("tool", "x"), ExitNotFoundError},
		{"tty", &TTYRequiredError{Operation: "check paths"}, ExitTTYError},
		{"config", NewCommandError("config", "set", "configuration invalid", nil), ExitConfigError},
		{"generic", os.ErrPermission, ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.want {
				t.Errorf("GetExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestCommandErrorUnwrap(t *testing.T) {
	underlying := os.ErrNotExist
	err := NewCommandError("state", "open", "store unavailable", underlying)

	if !errors.Is(err, os.ErrNotExist) {
		t.Error("errors.Is should see through CommandError")
	}

	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatal("error should be a *CommandError")
	}
	if !strings.Contains(err.Error(), "store unavailable") {
		t.Errorf("message should carry the reason, got %q", err.Error())
	}
}

// =============================================================================
// CONFIG COMMAND TESTS (config_cmd.go)
// =============================================================================

func TestSplitKey(t *testing.T) {
	tests := []struct {
		key         string
		wantSection string
		wantName    string
	}{
		{"server.profile", "server", "profile"},
		{"state.cache_ttl_hours", "state", "cache_ttl_hours"},
		{"version", "general", "version"},
	}

	for _, tt := range tests {
		section, name := splitKey(tt.key)
		if section != tt.wantSection || name != tt.wantName {
			t.Errorf("splitKey(%q) = (%q, %q), want (%q, %q)",
				tt.key, section, name, tt.wantSection, tt.wantName)
		}
	}
}
