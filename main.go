// rigtool - headless agent tool server with ignore-rule enforcement.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/rigtool/internal/cli"
	"github.com/jeranaias/rigtool/internal/config"
	"github.com/jeranaias/rigtool/internal/server"
	"github.com/jeranaias/rigtool/internal/state"
)

// Version information (set at build time)
var (
	Version   = "0.2.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	// Sync version info with cli package
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse(os.Args[1:])

	cfg := loadConfig(args)
	cli.ApplyColorMode(cfg.UI.Color)

	switch cmd {
	case cli.CmdServe:
		runServe(cfg, args)
	case cli.CmdCheck:
		if err := cli.HandleCheck(args); err != nil {
			cli.HandleErrorAndExit(err, args.JSON)
		}
	case cli.CmdTools:
		if err := cli.HandleTools(args); err != nil {
			cli.HandleErrorAndExit(err, args.JSON)
		}
	case cli.CmdDescribe:
		if err := cli.HandleDescribe(args); err != nil {
			cli.HandleErrorAndExit(err, args.JSON)
		}
	case cli.CmdState:
		if err := cli.HandleState(args); err != nil {
			cli.HandleErrorAndExit(err, args.JSON)
		}
	case cli.CmdConfig:
		if err := cli.HandleConfig(args); err != nil {
			cli.HandleErrorAndExit(err, args.JSON)
		}
	case cli.CmdVersion:
		cli.PrintVersion()
	case cli.CmdHelp:
		cli.PrintUsage()
	default:
		cli.PrintUnknownCommand(args.Command)
		os.Exit(cli.ExitUsageError)
	}
}

// loadConfig resolves the effective configuration. An explicit --config file
// wins over the standard lookup in ~/.rigtool, and --profile overrides the
// configured tool profile for this invocation only.
func loadConfig(args cli.Args) *config.Config {
	cfg := config.Global()
	if args.ConfigPath != "" {
		loaded, err := config.LoadFromPath(args.ConfigPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[ERROR] config %s: %v\n", args.ConfigPath, err)
			os.Exit(cli.ExitConfigError)
		}
		cfg = loaded
		config.SetGlobal(cfg)
	}
	if args.Profile != "" {
		cfg.Server.Profile = args.Profile
	}
	return cfg
}

// runServe starts the JSON-RPC server on stdio. A terminal on stdin almost
// always means a human typed "rigtool" by accident, so serve refuses to
// start there unless --force is given.
func runServe(cfg *config.Config, args cli.Args) {
	if cli.IsTTY() && !args.Force {
		fmt.Fprintln(os.Stderr, "rigtool serve speaks JSON-RPC on stdin/stdout and expects to be spawned by an agent, not a terminal.")
		fmt.Fprintln(os.Stderr, "Use --force to run it here anyway, or 'rigtool help' for the operator commands.")
		os.Exit(cli.ExitUsageError)
	}

	eng, err := cli.EngineFromConfig(cfg)
	if err != nil {
		cli.HandleErrorAndExit(err, args.JSON)
	}

	srv, err := server.FromConfig(cfg, eng)
	if err != nil {
		cli.HandleErrorAndExit(err, args.JSON)
	}

	// Session context from a previous run is stale once a new server
	// starts. A broken state store only costs the bookkeeping; the
	// server itself runs without it.
	if store, serr := cli.OpenStore(cfg); serr == nil {
		if _, cerr := store.ContextClearSession(); cerr == nil {
			_ = store.ContextSet("last_serve", time.Now().UTC().Format(time.RFC3339), state.ScopeGlobal)
		}
		store.Close()
	} else if !args.Quiet {
		fmt.Fprintf(os.Stderr, "[WARN] state store unavailable: %v\n", serr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Serve(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] serve: %v\n", err)
		os.Exit(cli.ExitGeneralError)
	}
}
