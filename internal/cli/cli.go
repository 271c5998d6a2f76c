// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command-line parsing for rigtool.
package cli

import (
	"fmt"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.2.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdServe Command = iota
	CmdCheck
	CmdTools
	CmdDescribe
	CmdState
	CmdConfig
	CmdVersion
	CmdHelp
	CmdUnknown
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet      bool
	Verbose    bool
	JSON       bool   // Output in JSON format
	Force      bool   // Allow serve on a terminal
	Profile    string // Override the configured tool profile
	ConfigPath string // Alternate config file

	// Command is the raw command word as typed, kept for suggestions
	// and error messages
	Command string

	// Raw args remaining after the command word; handlers parse these
	// with ArgParser
	Raw []string
}

const usageText = `rigtool %s - agent tool server with ignore-rule enforcement

Rigtool exposes a curated set of filesystem and search tools to AI agents
over JSON-RPC 2.0 on stdin/stdout. Ignore rules from .agentignore files
and a global rule file are enforced on every path a tool touches.

Usage:
  rigtool serve               Run the stdio tool server (default when piped)
  rigtool check [path...]     Check paths against ignore rules
  rigtool tools, ls           List available tools
  rigtool describe <tool>     Show full documentation for one tool
  rigtool state [subcommand]  Inspect the state store
  rigtool config [subcommand] Show or change configuration
  rigtool version             Show version information
  rigtool help                Show this help

Serve:
  rigtool serve               Speaks line-delimited JSON-RPC 2.0 on stdio.
                              Refuses to start on a terminal without --force.

Check:
  rigtool check src/key.pem   One-shot: report allowed/blocked per path
    --verbose                 Also show delegated scanner flags
  rigtool check               Interactive REPL (requires a terminal):
                              type paths to test them
    :args [dir]               Show delegated scanner flags for a directory
    :clear                    Drop the compiled rule cache
    :quit                     Exit

Tools:
  rigtool tools               Table of tools in the active profile
    --group read|write|manage Only tools in one group

Describe:
  rigtool describe read_file  Parameters, risk, and permission for one tool

State:
  rigtool state               Store statistics (default)
  rigtool state tasks         List tasks
    --status pending|in_progress|completed
  rigtool state context       List context entries
    --scope session|project|global
  rigtool state auth          List cached auth providers
  rigtool state cleanup       Remove expired cache entries

Config:
  rigtool config show         Show effective configuration
  rigtool config get <key>    Show one value (e.g. server.profile)
  rigtool config set <key> <value>
                              Change and save a value
  rigtool config path         Show the config file location

Global Flags:
  -q, --quiet                 Suppress non-essential output
  -v, --verbose               Show extra detail
  --json                      Machine-readable JSON output
  --force                     Allow serve on a terminal
  --config FILE               Use an alternate config file
  --profile NAME              Override the configured tool profile

Environment:
  RIGTOOL_PROFILE             Overrides server.profile
  RIGTOOL_GLOBAL_IGNORE       Overrides the global rule file location
  RIGTOOL_WORKDIR             Overrides tools.working_dir
  RIGTOOL_STATE_PATH          Overrides state.path
  RIGTOOL_PASSPHRASE          State metadata encryption passphrase
  NO_COLOR                    Disable colored output
`

// Parse parses command-line arguments into a Command and Args.
// With no command word the result is CmdServe; main decides whether a
// terminal session should get the server or the usage text.
func Parse(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdServe, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	parsedArgs.Command = cmd
	parsedArgs.Raw = remaining[1:]

	switch cmd {
	case "serve":
		return CmdServe, parsedArgs

	case "check":
		return CmdCheck, parsedArgs

	case "tools", "ls":
		return CmdTools, parsedArgs

	case "describe", "desc":
		return CmdDescribe, parsedArgs

	case "state", "st":
		return CmdState, parsedArgs

	case "config", "cfg":
		return CmdConfig, parsedArgs

	case "version", "--version", "-V":
		return CmdVersion, parsedArgs

	case "help", "--help", "-h":
		return CmdHelp, parsedArgs

	default:
		return CmdUnknown, parsedArgs
	}
}

// parseGlobalFlags extracts global flags from the argument list, returning
// the remaining arguments and the parsed flags.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	var parsedArgs Args

	i := 0
	for i < len(args) {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--json":
			parsedArgs.JSON = true
		case "--force":
			parsedArgs.Force = true
		case "--profile":
			if i+1 < len(args) {
				i++
				parsedArgs.Profile = args[i]
			}
		case "--config":
			if i+1 < len(args) {
				i++
				parsedArgs.ConfigPath = args[i]
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--profile="):
				parsedArgs.Profile = strings.TrimPrefix(arg, "--profile=")
			case strings.HasPrefix(arg, "--config="):
				parsedArgs.ConfigPath = strings.TrimPrefix(arg, "--config=")
			default:
				remaining = append(remaining, arg)
			}
		}
		i++
	}

	return remaining, parsedArgs
}

// PrintUsage prints the usage text to stdout.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information to stdout.
func PrintVersion() {
	fmt.Printf("rigtool version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// PrintUnknownCommand prints an error for an unrecognized command, with a
// suggestion when the input is close to a real one.
func PrintUnknownCommand(cmd string) {
	fmt.Printf("%s unknown command: %s\n", ErrorStyle.Render("[ERROR]"), cmd)
	if suggestion := SuggestCommand(cmd); suggestion != "" {
		fmt.Printf("Did you mean %s?\n", HighlightStyle.Render(suggestion))
	}
	fmt.Printf("Run %s for usage.\n", HighlightStyle.Render("rigtool help"))
}
