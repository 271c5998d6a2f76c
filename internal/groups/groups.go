// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package groups defines the tool groups rigtool can expose to a connected
// agent and the named profiles that bundle them.
//
// A profile is chosen at server startup (config server.profile or
// RIGTOOL_PROFILE) and decides which tool groups are registered. Agents
// never see or call tools outside the active profile.
package groups

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// TOOL GROUPS
// =============================================================================

// ToolGroup identifies a family of tools with a shared risk posture.
type ToolGroup string

const (
	// GroupRead covers read-only filesystem inspection: listing, finding,
	// searching, and reading files.
	GroupRead ToolGroup = "read"

	// GroupWrite covers tools that create or modify file contents.
	GroupWrite ToolGroup = "write"

	// GroupManage covers tools that move, copy, or remove whole files.
	GroupManage ToolGroup = "manage"
)

// Description returns a one-line summary for display.
func (g ToolGroup) Description() string {
	switch g {
	case GroupRead:
		return "list, find, search, and read files"
	case GroupWrite:
		return "create and edit file contents"
	case GroupManage:
		return "move, copy, and remove files"
	default:
		return "unknown group"
	}
}

// String returns the group identifier.
func (g ToolGroup) String() string {
	return string(g)
}

// AllGroups returns every tool group in display order.
func AllGroups() []ToolGroup {
	return []ToolGroup{GroupRead, GroupWrite, GroupManage}
}

// ErrUnknownGroup is returned when a group name does not resolve.
var ErrUnknownGroup = errors.New("unknown tool group")

// ParseToolGroup resolves a group name, accepting common aliases.
func ParseToolGroup(s string) (ToolGroup, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read", "ro", "readonly", "read-only":
		return GroupRead, nil
	case "write", "edit":
		return GroupWrite, nil
	case "manage", "fileops", "file-ops":
		return GroupManage, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGroup, s)
	}
}

// =============================================================================
// AGENT PROFILES
// =============================================================================

// AgentProfile names a bundle of tool groups exposed to an agent.
type AgentProfile string

const (
	// ProfileReadOnly exposes only read tools. Safe for untrusted agents
	// that should inspect but never touch the tree.
	ProfileReadOnly AgentProfile = "readonly"

	// ProfileStandard exposes read and write tools. The default.
	ProfileStandard AgentProfile = "standard"

	// ProfileFull exposes every tool group including file management.
	ProfileFull AgentProfile = "full"
)

// profileGroups defines the group bundle for each profile.
var profileGroups = map[AgentProfile][]ToolGroup{
	ProfileReadOnly: {
		GroupRead,
	},
	ProfileStandard: {
		GroupRead,
		GroupWrite,
	},
	ProfileFull: {
		GroupRead,
		GroupWrite,
		GroupManage,
	},
}

// Groups returns the tool groups this profile exposes.
func (p AgentProfile) Groups() []ToolGroup {
	gs, ok := profileGroups[p]
	if !ok {
		return nil
	}
	out := make([]ToolGroup, len(gs))
	copy(out, gs)
	return out
}

// Includes reports whether the profile exposes the given group.
func (p AgentProfile) Includes(g ToolGroup) bool {
	for _, have := range profileGroups[p] {
		if have == g {
			return true
		}
	}
	return false
}

// String returns the profile identifier.
func (p AgentProfile) String() string {
	return string(p)
}

// Description returns a one-line summary for display.
func (p AgentProfile) Description() string {
	switch p {
	case ProfileReadOnly:
		return "inspection only: no writes of any kind"
	case ProfileStandard:
		return "read and edit files (default)"
	case ProfileFull:
		return "all tools including move, copy, and remove"
	default:
		return "unknown profile"
	}
}

// AllProfiles returns every profile in display order.
func AllProfiles() []AgentProfile {
	return []AgentProfile{ProfileReadOnly, ProfileStandard, ProfileFull}
}

// ErrUnknownProfile is returned when a profile name does not resolve.
var ErrUnknownProfile = errors.New("unknown agent profile")

// ParseProfile resolves a profile name, accepting common aliases.
func ParseProfile(s string) (AgentProfile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "readonly", "read-only", "ro":
		return ProfileReadOnly, nil
	case "standard", "std", "default", "":
		return ProfileStandard, nil
	case "full", "all":
		return ProfileFull, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProfile, s)
	}
}
