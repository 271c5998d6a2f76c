// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// tools_cmd.go - Tools command: list the tools a profile exposes.
//
// Command: tools
// Aliases: ls
//
// Examples:
//   rigtool tools                     Tools in the configured profile
//   rigtool tools --group write       Only the write group
//   rigtool tools --profile readonly  What an untrusted agent would see
//   rigtool tools --json              Machine-readable listing
package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigtool/internal/config"
	"github.com/jeranaias/rigtool/internal/groups"
	"github.com/jeranaias/rigtool/internal/tools"
	"github.com/jeranaias/rigtool/internal/util"
)

// toolRow is one tool in machine-readable output.
type toolRow struct {
	Name        string `json:"name"`
	Group       string `json:"group"`
	Risk        string `json:"risk"`
	Permission  string `json:"permission"`
	Description string `json:"description"`
}

// HandleTools implements the "tools" command.
func HandleTools(args Args) error {
	cfg := config.Global()

	profileName := cfg.Server.Profile
	if args.Profile != "" {
		profileName = args.Profile
	}
	profile, err := groups.ParseProfile(profileName)
	if err != nil {
		return NewValidationErrorWithExample("profile", profileName,
			"unknown profile", "readonly, standard, full")
	}

	eng, err := EngineFromConfig(cfg)
	if err != nil {
		return NewCommandError("tools", "init", "ignore rules failed to load", err)
	}

	registry := tools.DefaultRegistry(profile, eng)
	list := registry.All()

	parser := NewArgParser(args.Raw)
	if g := parser.Flag("group"); g != "" {
		group, err := groups.ParseToolGroup(g)
		if err != nil {
			return NewValidationErrorWithExample("group", g,
				"unknown tool group", "read, write, manage")
		}
		list = registry.ByGroup(group)
	}

	if args.JSON {
		return outputJSON(toolRows(list))
	}

	printToolsTable(list, profile)
	return nil
}

// toolRows converts tools to their machine-readable form.
func toolRows(list []*tools.Tool) []toolRow {
	rows := make([]toolRow, 0, len(list))
	for _, t := range list {
		rows = append(rows, toolRow{
			Name:        t.Name,
			Group:       t.Group.String(),
			Risk:        t.RiskLevel.String(),
			Permission:  t.Permission.String(),
			Description: t.GetShortDescription(),
		})
	}
	return rows
}

// printToolsTable renders the tool listing as a fixed-width table sized to
// the terminal. Column widths are display columns, not bytes.
func printToolsTable(list []*tools.Tool, profile groups.AgentProfile) {
	fmt.Println(TitleStyle.Render(fmt.Sprintf("Tools (%s profile, %d tools)", profile, len(list))))

	nameW := util.StringWidth("NAME")
	groupW := util.StringWidth("GROUP")
	riskW := util.StringWidth("RISK")
	for _, t := range list {
		if w := util.StringWidth(t.Name); w > nameW {
			nameW = w
		}
		if w := util.StringWidth(t.Group.String()); w > groupW {
			groupW = w
		}
		if w := util.StringWidth(t.RiskLevel.String()); w > riskW {
			riskW = w
		}
	}

	// Description takes whatever is left of the terminal line
	descW := GetTerminalWidth() - nameW - groupW - riskW - 6
	if descW < 20 {
		descW = 20
	}

	fmt.Printf("%s  %s  %s  %s\n",
		DimStyle.Render(util.PadWidth("NAME", nameW)),
		DimStyle.Render(util.PadWidth("GROUP", groupW)),
		DimStyle.Render(util.PadWidth("RISK", riskW)),
		DimStyle.Render("DESCRIPTION"))

	for _, t := range list {
		riskStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(t.RiskLevel.Color()))
		fmt.Printf("%s  %s  %s  %s\n",
			HighlightStyle.Render(util.PadWidth(t.Name, nameW)),
			ValueStyle.Render(util.PadWidth(t.Group.String(), groupW)),
			riskStyle.Render(util.PadWidth(t.RiskLevel.String(), riskW)),
			ValueStyle.Render(util.TruncateWidth(t.GetShortDescription(), descW)))
	}

	if len(list) == 0 {
		fmt.Println(DimStyle.Render("  (no tools in this selection)"))
	}
}
