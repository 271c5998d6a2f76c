// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// check.go - Check command: test paths against the ignore rules.
//
// Command: check
//
// Examples:
//   rigtool check src/secret.pem        One-shot check of one path
//   rigtool check a.txt b.txt --json    Machine-readable results
//   rigtool check                       Interactive REPL (requires a TTY)
//
// One-shot mode prints a status per path and exits non-zero when any path
// is blocked, so scripts can gate on the boundary the same way the server
// does. The REPL keeps the engine (and its rule cache) alive between
// checks, which makes it the fastest way to debug a rule file: edit the
// file, :clear, re-test.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/peterh/liner"

	"github.com/jeranaias/rigtool/internal/config"
	"github.com/jeranaias/rigtool/internal/ignore"
)

// ErrPathsBlocked is returned by one-shot check when at least one path is
// blocked. Callers map it to a non-zero exit so scripts can gate on it.
var ErrPathsBlocked = errors.New("one or more paths are blocked by ignore rules")

// checkPromptStyle is the REPL prompt style.
var checkPromptStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("39")) // Cyan

// checkResult is the outcome of testing one path against the rules.
type checkResult struct {
	Path    string `json:"path"`
	Blocked bool   `json:"blocked"`
}

// HandleCheck implements the "check" command. With path arguments it runs
// one-shot; without, it starts the interactive REPL.
func HandleCheck(args Args) error {
	cfg := config.Global()
	eng, err := EngineFromConfig(cfg)
	if err != nil {
		return NewCommandError("check", "init", "ignore rules failed to load", err)
	}

	if len(args.Raw) > 0 {
		return checkPaths(eng, args)
	}

	if err := RequiresTTY("check paths"); err != nil {
		return err
	}
	return checkREPL(eng, args)
}

// evaluatePaths tests each path against the engine.
func evaluatePaths(eng *ignore.Engine, paths []string) []checkResult {
	results := make([]checkResult, 0, len(paths))
	for _, path := range paths {
		results = append(results, checkResult{
			Path:    path,
			Blocked: eng.IsIgnored(path),
		})
	}
	return results
}

// checkPaths runs the one-shot mode over args.Raw.
func checkPaths(eng *ignore.Engine, args Args) error {
	results := evaluatePaths(eng, args.Raw)

	blocked := 0
	for _, r := range results {
		if r.Blocked {
			blocked++
		}
	}

	if args.JSON {
		if err := outputJSON(map[string]interface{}{
			"results":       results,
			"blocked_count": blocked,
		}); err != nil {
			return err
		}
	} else if !args.Quiet {
		for _, r := range results {
			printCheckResult(r)
		}
		if args.Verbose {
			printEnforcementArgs(eng, workingDir())
		}
	}

	if blocked > 0 {
		return ErrPathsBlocked
	}
	return nil
}

// printCheckResult prints one status line.
func printCheckResult(r checkResult) {
	status := "allowed"
	if r.Blocked {
		status = "blocked"
	}
	fmt.Printf("%s %s\n", RenderStatus(status), r.Path)
}

// printEnforcementArgs prints the flags a delegated scanner would receive.
func printEnforcementArgs(eng *ignore.Engine, dir string) {
	fmt.Println(SectionStyle.Render("Scanner flags for " + dir))
	for _, arg := range eng.EnforcementArgs(dir) {
		fmt.Printf("  %s\n", ValueStyle.Render(arg))
	}
}

func workingDir() string {
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

// =============================================================================
// INTERACTIVE REPL
// =============================================================================

// CheckCLI provides input history and line editing for the check REPL.
type CheckCLI struct {
	line        *liner.State
	historyFile string
}

// NewCheckCLI creates a CheckCLI with input history support.
func NewCheckCLI() *CheckCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		// Fall back to the temp directory if the config dir is unavailable
		configDir = os.TempDir()
	}
	historyFile := filepath.Join(configDir, "check_history")

	cli := &CheckCLI{
		line:        line,
		historyFile: historyFile,
	}
	cli.LoadHistory()

	return cli
}

// LoadHistory loads input history from file.
func (c *CheckCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt.
// Supports history navigation with arrow keys.
func (c *CheckCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}

	return input, nil
}

// SaveHistory persists input history with owner-only permissions.
func (c *CheckCLI) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}

	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()

	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *CheckCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// checkREPL runs the interactive loop.
func checkREPL(eng *ignore.Engine, args Args) error {
	input := NewCheckCLI()
	defer input.Close()

	if !args.Quiet {
		printCheckWelcome(eng)
	}

	for {
		line, err := input.ReadInput(checkPromptStyle.Render("check> "))
		if err != nil {
			// Ctrl+C (ErrPromptAborted) and Ctrl+D (EOF) both exit cleanly
			if err == liner.ErrPromptAborted {
				fmt.Println()
				return nil
			}
			fmt.Println()
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, ":") {
			if quit := handleCheckCommand(line, eng); quit {
				return nil
			}
			continue
		}

		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			return nil
		}

		for _, r := range evaluatePaths(eng, strings.Fields(line)) {
			printCheckResult(r)
		}
	}
}

// printCheckWelcome prints the REPL banner and rule file status.
func printCheckWelcome(eng *ignore.Engine) {
	fmt.Println(TitleStyle.Render("rigtool check"))

	globalStatus := DimStyle.Render("not present")
	if eng.GlobalLoaded() {
		globalStatus = SuccessStyle.Render("loaded")
	}
	fmt.Printf("%s %s (%s)\n", RenderLabel("Global rules"), ValueStyle.Render(eng.GlobalFile()), globalStatus)
	fmt.Printf("%s %s\n", RenderLabel("Rule file"), ValueStyle.Render(ignore.RuleFileName+" (per directory)"))
	fmt.Println()
	fmt.Println(DimStyle.Render("Type a path to test it. :args shows scanner flags, :clear drops the"))
	fmt.Println(DimStyle.Render("rule cache after editing a rule file, :quit exits."))
	fmt.Println()
}

// handleCheckCommand dispatches a ":" command. Returns true to quit.
func handleCheckCommand(input string, eng *ignore.Engine) bool {
	fields := strings.Fields(input)

	switch fields[0] {
	case ":quit", ":q", ":exit":
		return true

	case ":clear":
		eng.ClearCache()
		fmt.Println(SuccessStyle.Render("rule cache cleared"))

	case ":args":
		dir := workingDir()
		if len(fields) > 1 {
			dir = fields[1]
		}
		printEnforcementArgs(eng, dir)

	case ":help", ":h":
		fmt.Println(DimStyle.Render(":args [dir]  show delegated scanner flags"))
		fmt.Println(DimStyle.Render(":clear       drop the compiled rule cache"))
		fmt.Println(DimStyle.Render(":quit        exit"))

	default:
		fmt.Printf("%s unknown command: %s (try :help)\n", ErrorStyle.Render("[ERROR]"), fields[0])
	}

	return false
}
