// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// command.go implements the runner for delegated external commands
// (eza, bat, fd, rg). Commands are invoked with an argument vector, never
// through a shell, so there is no quoting or injection surface.
package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ErrCommandNotFound indicates the requested binary is not installed.
// Callers use this to fall back to a native implementation.
var ErrCommandNotFound = errors.New("not found in PATH")

// lookPath is swappable in tests to simulate missing binaries.
var lookPath = exec.LookPath

// getEnviron is swappable in tests.
var getEnviron = func() []string {
	return os.Environ()
}

// =============================================================================
// ENVIRONMENT SANITIZATION
// =============================================================================

// DangerousEnvVars are environment variables that influence process
// loading or shell startup and are stripped before running commands.
var DangerousEnvVars = []string{
	"LD_PRELOAD",
	"LD_LIBRARY_PATH",
	"LD_AUDIT",
	"DYLD_INSERT_LIBRARIES",
	"DYLD_LIBRARY_PATH",
	"BASH_ENV",
	"ENV",
	"IFS",
	"PS4",
	"SHELLOPTS",
	"PERL5OPT",
	"PYTHONSTARTUP",
}

// sanitizeEnvironment returns the process environment with dangerous
// variables removed. Loader variables are stripped by prefix as well,
// since LD_* and DYLD_* families keep growing.
func sanitizeEnvironment() []string {
	dangerousSet := make(map[string]bool, len(DangerousEnvVars))
	for _, name := range DangerousEnvVars {
		dangerousSet[name] = true
	}

	var sanitized []string
	for _, entry := range getEnviron() {
		name, _, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if dangerousSet[name] {
			continue
		}
		if strings.HasPrefix(name, "BASH_FUNC_") ||
			strings.HasPrefix(name, "LD_") ||
			strings.HasPrefix(name, "DYLD_") {
			continue
		}
		sanitized = append(sanitized, entry)
	}
	return sanitized
}

// =============================================================================
// COMMAND RUNNER
// =============================================================================

// Runner limits applied when the corresponding field is zero.
const (
	defaultCommandTimeout = 30 * time.Second
	maxCommandTimeout     = 10 * time.Minute
	maxCommandOutput      = 100000 // bytes
	maxArgumentLength     = 10000  // bytes per argument
)

// CommandRunner executes external commands with timeouts, sanitized
// environment, and bounded output.
type CommandRunner struct {
	// WorkDir is the default working directory ("" = process cwd)
	WorkDir string

	// DefaultTimeout applies when the RunSpec gives none (default: 30s)
	DefaultTimeout time.Duration

	// MaxTimeout caps requested timeouts (default: 10m)
	MaxTimeout time.Duration

	// MaxOutputSize caps captured stdout+stderr bytes (default: 100000)
	MaxOutputSize int
}

// NewCommandRunner creates a runner with default limits.
func NewCommandRunner() *CommandRunner {
	return &CommandRunner{
		DefaultTimeout: defaultCommandTimeout,
		MaxTimeout:     maxCommandTimeout,
		MaxOutputSize:  maxCommandOutput,
	}
}

// Available reports whether a binary can be found in PATH.
func (r *CommandRunner) Available(name string) bool {
	_, err := lookPath(name)
	return err == nil
}

// RunSpec describes one command invocation.
type RunSpec struct {
	// Name is the binary to run (resolved via PATH)
	Name string

	// Args is the argument vector, passed verbatim to the process
	Args []string

	// Dir is the working directory ("" = runner default)
	Dir string

	// Stdin is written to the process's standard input when non-empty
	Stdin string

	// Timeout overrides the runner default when positive
	Timeout time.Duration
}

// CommandOutput is the captured result of a command invocation.
// A non-zero exit is not a Go error; it is reported here.
type CommandOutput struct {
	Success   bool
	ExitCode  int
	Stdout    string
	Stderr    string
	Duration  time.Duration
	Truncated bool
}

// ResultString flattens the output into a single string for tool results.
// Successful commands report stdout (or a placeholder when silent);
// failed commands report stderr merged with stdout, or the exit code when
// both are empty.
func (o *CommandOutput) ResultString() string {
	if o.Success {
		if strings.TrimSpace(o.Stdout) == "" {
			return "(no output)"
		}
		return o.Stdout
	}

	result := o.Stderr
	if strings.TrimSpace(o.Stdout) != "" {
		if result != "" {
			result += "\n"
		}
		result += o.Stdout
	}
	if strings.TrimSpace(result) == "" {
		return fmt.Sprintf("Command failed with exit code: %d", o.ExitCode)
	}
	return result
}

// Run executes a command and captures its output.
//
// The binary must exist in PATH before anything is spawned; a missing
// binary returns ErrCommandNotFound. Timeouts and context cancellation
// return errors; non-zero exits return a CommandOutput with Success
// false and a nil error.
func (r *CommandRunner) Run(ctx context.Context, spec RunSpec) (*CommandOutput, error) {
	if spec.Name == "" {
		return nil, errors.New("command name is required")
	}

	if err := validateArgs(spec.Args); err != nil {
		return nil, err
	}

	// Gate on PATH resolution first. Callers rely on this error to pick
	// their native fallback without side effects.
	binary, err := lookPath(spec.Name)
	if err != nil {
		return nil, fmt.Errorf("command %q %w", spec.Name, ErrCommandNotFound)
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = r.DefaultTimeout
	}
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	maxTimeout := r.MaxTimeout
	if maxTimeout <= 0 {
		maxTimeout = maxCommandTimeout
	}
	if timeout > maxTimeout {
		timeout = maxTimeout
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, binary, spec.Args...)

	if spec.Dir != "" {
		cmd.Dir = spec.Dir
	} else if r.WorkDir != "" {
		cmd.Dir = r.WorkDir
	}

	cmd.Env = sanitizeEnvironment()

	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	// Distinguish timeout and cancellation from a plain non-zero exit.
	select {
	case <-cmdCtx.Done():
		if cmdCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("command %q timed out after %s", spec.Name, timeout)
		}
		return nil, fmt.Errorf("command %q canceled: %w", spec.Name, cmdCtx.Err())
	default:
	}

	out := &CommandOutput{
		Success:  runErr == nil,
		Duration: duration,
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("command %q failed to start: %w", spec.Name, runErr)
		}
	}

	maxOutput := r.MaxOutputSize
	if maxOutput <= 0 {
		maxOutput = maxCommandOutput
	}
	out.Stdout, out.Truncated = truncateOutput(stdout.String(), maxOutput)
	var stderrTruncated bool
	out.Stderr, stderrTruncated = truncateOutput(stderr.String(), maxOutput)
	out.Truncated = out.Truncated || stderrTruncated

	return out, nil
}

// validateArgs checks the argument vector before it reaches exec.
// Each argument is normalized to Unicode NFC so lookalike spellings of
// flags compare canonically downstream.
func validateArgs(args []string) error {
	for i, arg := range args {
		if strings.ContainsRune(arg, 0) {
			return fmt.Errorf("argument %d contains a NUL byte", i)
		}
		if len(arg) > maxArgumentLength {
			return fmt.Errorf("argument %d exceeds %d bytes", i, maxArgumentLength)
		}
		args[i] = norm.NFC.String(arg)
	}
	return nil
}

// truncateOutput cuts output at the limit and appends a marker.
func truncateOutput(s string, limit int) (string, bool) {
	if len(s) <= limit {
		return s, false
	}
	return s[:limit] + fmt.Sprintf("\n[Output truncated at %d bytes]", limit), true
}
