// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the operator-facing
// commands for rigtool.
//
// The server itself is headless; everything here exists so an operator can
// see what a connected agent would see. "check" tests paths against the
// ignore rules the server enforces, "tools" and "describe" show the tool
// surface a profile exposes, "state" inspects the SQLite store, and
// "config" reads and writes the TOML configuration.
//
// # Key Types
//
//   - Command: enumeration of CLI commands, produced by Parse
//   - Args: global flags plus the raw arguments a handler parses itself
//   - ArgParser: subcommand flag parsing shared by all handlers
//
// # Usage
//
// Parse and dispatch:
//
//	cmd, args := cli.Parse(os.Args[1:])
//	switch cmd {
//	case cli.CmdCheck:
//	    err = cli.HandleCheck(args)
//	case cli.CmdTools:
//	    err = cli.HandleTools(args)
//	// ... other commands
//	}
//	cli.HandleErrorAndExit(err, args.JSON)
//
// # Output
//
// All commands honor --json for machine-readable output and follow the
// shared style set in styles.go for human output. Colors are dropped
// automatically when stdout is not a terminal and when NO_COLOR is set.
package cli
