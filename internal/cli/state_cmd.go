// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// state_cmd.go - State command: inspect the SQLite state store.
//
// Command: state
// Aliases: st
//
// Examples:
//   rigtool state                     Store statistics
//   rigtool state tasks --status pending
//   rigtool state context --scope session
//   rigtool state auth                Cached auth providers
//   rigtool state cleanup             Remove expired cache entries
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigtool/internal/config"
	"github.com/jeranaias/rigtool/internal/state"
	"github.com/jeranaias/rigtool/internal/util"
)

// HandleState implements the "state" command.
func HandleState(args Args) error {
	cfg := config.Global()
	store, err := OpenStore(cfg)
	if err != nil {
		return NewCommandError("state", "open", "state store unavailable", err)
	}
	defer store.Close()

	parser := NewArgParser(args.Raw)

	switch parser.Subcommand() {
	case "", "stats":
		return stateStats(store, args)
	case "tasks":
		return stateTasks(store, parser, args)
	case "context":
		return stateContext(store, parser, args)
	case "auth":
		return stateAuth(store, args)
	case "cleanup":
		return stateCleanup(store, args)
	default:
		return NewValidationErrorWithExample("subcommand", parser.Subcommand(),
			"unknown state subcommand", "stats, tasks, context, auth, cleanup")
	}
}

// stateStats shows store statistics.
func stateStats(store *state.Store, args Args) error {
	stats, err := store.Stats()
	if err != nil {
		return NewCommandError("state", "stats", "could not read store", err)
	}

	var sizeBytes int64
	if info, err := os.Stat(stats.Path); err == nil {
		sizeBytes = info.Size()
	}

	if args.JSON {
		return outputJSON(map[string]interface{}{
			"path":            stats.Path,
			"size_bytes":      sizeBytes,
			"cache_entries":   stats.CacheEntries,
			"tasks":           stats.Tasks,
			"context_entries": stats.ContextEntries,
			"auth_providers":  stats.AuthProviders,
		})
	}

	fmt.Println(TitleStyle.Render("rigtool state"))
	fmt.Printf("%s %s\n", RenderLabel("Store"),
		ValueStyle.Render(fmt.Sprintf("%s (%s)", stats.Path, formatBytes(sizeBytes))))
	fmt.Printf("%s %s\n", RenderLabel("Cache entries"), ValueStyle.Render(util.IntToStr(stats.CacheEntries)))
	fmt.Printf("%s %s\n", RenderLabel("Tasks"), ValueStyle.Render(util.IntToStr(stats.Tasks)))
	fmt.Printf("%s %s\n", RenderLabel("Context entries"), ValueStyle.Render(util.IntToStr(stats.ContextEntries)))
	fmt.Printf("%s %s\n", RenderLabel("Auth providers"), ValueStyle.Render(util.IntToStr(stats.AuthProviders)))
	return nil
}

// stateTasks lists tasks, optionally filtered by --status.
func stateTasks(store *state.Store, parser *ArgParser, args Args) error {
	var filter state.TaskStatus
	if raw := parser.Flag("status"); raw != "" {
		parsed, err := state.ParseTaskStatus(raw)
		if err != nil {
			return NewValidationErrorWithExample("status", raw,
				"unknown task status", "pending, in_progress, completed")
		}
		filter = parsed
	}

	tasks, err := store.TaskList(filter)
	if err != nil {
		return NewCommandError("state", "tasks", "could not list tasks", err)
	}

	if args.JSON {
		return outputJSON(tasks)
	}

	fmt.Println(TitleStyle.Render(fmt.Sprintf("Tasks (%d)", len(tasks))))
	if len(tasks) == 0 {
		fmt.Println(DimStyle.Render("  (none)"))
		return nil
	}

	for _, t := range tasks {
		age := formatDuration(time.Since(time.Unix(t.UpdatedAt, 0)))
		fmt.Printf("  %s  %s  %s  %s\n",
			DimStyle.Render(fmt.Sprintf("#%-4d", t.ID)),
			taskStatusStyle(t.Status).Render(util.PadWidth(t.Status.String(), 11)),
			DimStyle.Render(util.PadWidth(age, 4)),
			ValueStyle.Render(util.TruncateWidth(t.Content, 60)))
	}
	return nil
}

// taskStatusStyle maps a task status to its display style.
func taskStatusStyle(status state.TaskStatus) lipgloss.Style {
	switch status {
	case state.TaskStatusCompleted:
		return SuccessStyle
	case state.TaskStatusInProgress:
		return HighlightStyle
	default:
		return WarningStyle
	}
}

// stateContext lists context entries, optionally filtered by --scope.
func stateContext(store *state.Store, parser *ArgParser, args Args) error {
	var scope state.ContextScope
	if raw := parser.Flag("scope"); raw != "" {
		parsed, err := state.ParseContextScope(raw)
		if err != nil {
			return NewValidationErrorWithExample("scope", raw,
				"unknown context scope", "session, project, global")
		}
		scope = parsed
	}

	entries, err := store.ContextList(scope)
	if err != nil {
		return NewCommandError("state", "context", "could not list context", err)
	}

	if args.JSON {
		return outputJSON(entries)
	}

	fmt.Println(TitleStyle.Render(fmt.Sprintf("Context (%d entries)", len(entries))))
	if len(entries) == 0 {
		fmt.Println(DimStyle.Render("  (none)"))
		return nil
	}

	for _, e := range entries {
		fmt.Printf("  %s %s = %s\n",
			DimStyle.Render(util.PadWidth("["+e.Scope.String()+"]", 10)),
			HighlightStyle.Render(e.Key),
			ValueStyle.Render(util.TruncateWidth(e.Value, 60)))
	}
	return nil
}

// stateAuth lists cached auth provider states.
func stateAuth(store *state.Store, args Args) error {
	states, err := store.AuthList()
	if err != nil {
		return NewCommandError("state", "auth", "could not list auth state", err)
	}

	if args.JSON {
		return outputJSON(states)
	}

	fmt.Println(TitleStyle.Render(fmt.Sprintf("Auth providers (%d)", len(states))))
	if len(states) == 0 {
		fmt.Println(DimStyle.Render("  (none)"))
		return nil
	}

	for _, st := range states {
		status := "fail"
		if st.Authenticated {
			status = "ok"
		}
		checked := formatDuration(time.Since(time.Unix(st.LastCheck, 0)))
		fmt.Printf("  %s %s %s\n",
			RenderStatus(status),
			HighlightStyle.Render(util.PadWidth(st.Provider, 12)),
			DimStyle.Render("checked "+checked+" ago"))
	}
	return nil
}

// stateCleanup removes expired cache entries.
func stateCleanup(store *state.Store, args Args) error {
	removed, err := store.CacheCleanup()
	if err != nil {
		return NewCommandError("state", "cleanup", "could not clean cache", err)
	}

	if args.JSON {
		return outputJSON(map[string]interface{}{"removed": removed})
	}

	fmt.Printf("%s removed %d expired cache entries\n", RenderStatus("ok"), removed)
	return nil
}
