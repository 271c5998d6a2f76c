// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// describe.go - Describe command: full documentation for one tool.
//
// Command: describe
// Aliases: desc
//
// Examples:
//   rigtool describe read_file        Rendered doc with parameter table
//   rigtool describe write_file --json  Machine-readable schema
//
// The doc is built as markdown and rendered with glamour when stdout is a
// terminal; piped output gets the raw markdown so it stays greppable.
package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/rigtool/internal/config"
	"github.com/jeranaias/rigtool/internal/groups"
	"github.com/jeranaias/rigtool/internal/tools"
)

// markdownRenderer is the shared glamour renderer for describe output.
var markdownRenderer *glamour.TermRenderer

func init() {
	var err error
	markdownRenderer, err = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		// Fall back to plain text if renderer initialization fails
		markdownRenderer = nil
	}
}

// renderMarkdown renders markdown for terminal display.
// Returns the original content if rendering fails.
func renderMarkdown(content string) string {
	if markdownRenderer == nil {
		return content
	}

	rendered, err := markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// displayMarkdown renders markdown only when stdout is a TTY, so piped
// output stays plain.
func displayMarkdown(content string) {
	if IsStdoutTTY() {
		fmt.Print(renderMarkdown(content))
	} else {
		fmt.Print(content)
	}
}

// HandleDescribe implements the "describe" command.
func HandleDescribe(args Args) error {
	if len(args.Raw) == 0 {
		return ErrMissingArgument("tool", "rigtool describe read_file")
	}
	name := args.Raw[0]

	cfg := config.Global()
	eng, err := EngineFromConfig(cfg)
	if err != nil {
		return NewCommandError("describe", "init", "ignore rules failed to load", err)
	}

	// Describe documents every tool; the active profile only decides the
	// enabled line.
	registry := tools.DefaultRegistry(groups.ProfileFull, eng)
	tool := registry.Get(name)
	if tool == nil {
		return NewNotFoundError("tool", name)
	}

	profileName := cfg.Server.Profile
	if args.Profile != "" {
		profileName = args.Profile
	}
	profile, err := groups.ParseProfile(profileName)
	if err != nil {
		return NewValidationErrorWithExample("profile", profileName,
			"unknown profile", "readonly, standard, full")
	}

	if args.JSON {
		return outputJSON(describeJSON(tool, profile))
	}

	displayMarkdown(buildToolDoc(tool, profile))
	return nil
}

// buildToolDoc builds the markdown document for a tool.
func buildToolDoc(tool *tools.Tool, profile groups.AgentProfile) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", tool.Name)
	fmt.Fprintf(&b, "%s\n\n", strings.TrimSpace(tool.Description))

	permission := tool.Permission.String()
	if tool.PermissionFunc != nil {
		permission += " (may escalate by target path)"
	}

	enabled := "no"
	if profile.Includes(tool.Group) {
		enabled = "yes"
	}

	fmt.Fprintf(&b, "- **Group:** %s\n", tool.Group)
	fmt.Fprintf(&b, "- **Risk:** %s\n", tool.RiskLevel)
	fmt.Fprintf(&b, "- **Permission:** %s\n", permission)
	fmt.Fprintf(&b, "- **Enabled in profile %q:** %s\n\n", string(profile), enabled)

	if len(tool.Schema.Parameters) == 0 {
		b.WriteString("This tool takes no parameters.\n")
		return b.String()
	}

	b.WriteString("## Parameters\n\n")
	b.WriteString("| Name | Type | Required | Description |\n")
	b.WriteString("|------|------|----------|-------------|\n")
	for _, p := range tool.Schema.Parameters {
		required := "no"
		if p.Required {
			required = "yes"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			p.Name, p.Type, required, parameterDoc(p))
	}

	return b.String()
}

// parameterDoc builds the description cell for one parameter, folding in
// defaults and enum values.
func parameterDoc(p tools.Parameter) string {
	doc := p.Description
	if len(p.Enum) > 0 {
		doc += fmt.Sprintf(" (one of: %s)", strings.Join(p.Enum, ", "))
	}
	if p.Default != nil {
		doc += fmt.Sprintf(" (default: %v)", p.Default)
	}
	return doc
}

// describeJSON builds the machine-readable form of a tool description.
func describeJSON(tool *tools.Tool, profile groups.AgentProfile) map[string]interface{} {
	params := make([]map[string]interface{}, 0, len(tool.Schema.Parameters))
	for _, p := range tool.Schema.Parameters {
		param := map[string]interface{}{
			"name":        p.Name,
			"type":        p.Type,
			"required":    p.Required,
			"description": p.Description,
		}
		if p.Default != nil {
			param["default"] = p.Default
		}
		if len(p.Enum) > 0 {
			param["enum"] = p.Enum
		}
		params = append(params, param)
	}

	return map[string]interface{}{
		"name":        tool.Name,
		"description": tool.Description,
		"group":       tool.Group.String(),
		"risk":        tool.RiskLevel.String(),
		"permission":  tool.Permission.String(),
		"enabled":     profile.Includes(tool.Group),
		"profile":     string(profile),
		"parameters":  params,
	}
}
