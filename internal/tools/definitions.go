// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/rigtool/internal/groups"
	"github.com/jeranaias/rigtool/internal/ignore"
)

// =============================================================================
// RISK LEVELS
// =============================================================================

// RiskLevel indicates how dangerous a tool operation is.
type RiskLevel int

const (
	// RiskLow - Read-only operations, no side effects
	RiskLow RiskLevel = iota

	// RiskMedium - May modify files but can be undone
	RiskMedium

	// RiskHigh - Modifies files, harder to undo
	RiskHigh

	// RiskCritical - Potentially destructive, system-wide impact
	RiskCritical
)

// String returns the string representation of a risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "Low"
	case RiskMedium:
		return "Medium"
	case RiskHigh:
		return "High"
	case RiskCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// Color returns the color associated with a risk level.
func (r RiskLevel) Color() string {
	switch r {
	case RiskLow:
		return "#34D399" // Emerald
	case RiskMedium:
		return "#FBBF24" // Amber
	case RiskHigh:
		return "#FB923C" // Orange
	case RiskCritical:
		return "#FB7185" // Rose
	default:
		return "#94A3B8" // Slate
	}
}

// =============================================================================
// PERMISSION LEVELS
// =============================================================================

// PermissionLevel controls when a tool requires approval before execution.
type PermissionLevel int

const (
	// PermissionAuto - Execute without asking
	PermissionAuto PermissionLevel = iota

	// PermissionAsk - Require approval before each execution
	PermissionAsk

	// PermissionNever - Never execute
	PermissionNever
)

// String returns the string representation of a permission level.
func (p PermissionLevel) String() string {
	switch p {
	case PermissionAuto:
		return "Auto"
	case PermissionAsk:
		return "Ask"
	case PermissionNever:
		return "Never"
	default:
		return "Unknown"
	}
}

// =============================================================================
// TOOL DEFINITION
// =============================================================================

// Tool describes a callable tool: its wire name, schema, risk
// classification, the group it belongs to, and the executor behind it.
type Tool struct {
	// Name is the wire name clients use to invoke the tool (e.g. "read_file")
	Name string

	// Description explains what the tool does, shown to the connected client
	Description string

	// ShortDescription is a one-line summary for listings
	ShortDescription string

	// Group is the capability group the tool belongs to. Profiles enable
	// tools by group, not individually.
	Group groups.ToolGroup

	// Schema defines the tool's parameters
	Schema Schema

	// RiskLevel indicates the potential impact
	RiskLevel RiskLevel

	// Permission is the static permission requirement
	Permission PermissionLevel

	// PermissionFunc determines permission dynamically from parameters.
	// When set, escalations take precedence over the static Permission.
	PermissionFunc func(params map[string]interface{}) PermissionLevel

	// Executor implements the tool
	Executor ToolExecutor
}

// GetShortDescription returns the short description, falling back to the
// first line of the full description.
func (t *Tool) GetShortDescription() string {
	if t.ShortDescription != "" {
		return t.ShortDescription
	}
	if idx := strings.Index(t.Description, "\n"); idx > 0 {
		return strings.TrimSpace(t.Description[:idx])
	}
	return t.Description
}

// =============================================================================
// SCHEMA
// =============================================================================

// Schema defines the parameters a tool accepts.
type Schema struct {
	Parameters []Parameter
}

// Parameter describes a single tool parameter.
type Parameter struct {
	// Name is the parameter name
	Name string

	// Type is the JSON type: "string", "number", "boolean", "array", "object"
	Type string

	// Required indicates the parameter must be provided
	Required bool

	// Description explains the parameter
	Description string

	// Default is the value used when the parameter is omitted
	Default interface{}

	// Enum restricts string values to a fixed set
	Enum []string
}

// =============================================================================
// EXECUTOR INTERFACE
// =============================================================================

// ToolExecutor is the interface implemented by all tool executors.
type ToolExecutor interface {
	// Execute runs the tool with the given parameters.
	// Tool-level failures (bad input, blocked path, missing file) are
	// reported in Result.Error with a nil error; a non-nil error means
	// the executor itself failed.
	Execute(ctx context.Context, params map[string]interface{}) (Result, error)
}

// Result is the outcome of a tool execution.
type Result struct {
	// Success indicates whether the execution succeeded
	Success bool

	// Output is the tool's output text
	Output string

	// Error describes the failure when Success is false
	Error string

	// Duration is how long the execution took
	Duration time.Duration

	// Truncated indicates the output was cut at the size limit
	Truncated bool

	// BytesRead is the number of bytes read (read operations)
	BytesRead int64

	// BytesWritten is the number of bytes written (write operations)
	BytesWritten int64

	// LinesCount is the number of lines processed
	LinesCount int

	// MatchCount is the number of matches found (search operations)
	MatchCount int

	// FilesMatched is the number of files matched (search/list operations)
	FilesMatched int
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry holds the available tools and their permission state.
type Registry struct {
	mu          sync.RWMutex
	tools       map[string]*Tool
	overrides   map[string]PermissionLevel
	alwaysAllow map[string]bool
	profile     groups.AgentProfile
}

// NewRegistry creates an empty registry with the standard profile.
func NewRegistry() *Registry {
	return &Registry{
		tools:       make(map[string]*Tool),
		overrides:   make(map[string]PermissionLevel),
		alwaysAllow: make(map[string]bool),
		profile:     groups.ProfileStandard,
	}
}

// DefaultRegistry creates a registry populated with the built-in tools
// enabled by the given profile. Every tool shares the same ignore engine
// and command runner.
func DefaultRegistry(profile groups.AgentProfile, eng *ignore.Engine) *Registry {
	r := NewRegistry()
	r.profile = profile

	runner := NewCommandRunner()
	for _, tool := range builtinTools(eng, runner) {
		if profile.Includes(tool.Group) {
			r.Register(tool)
		}
	}
	return r
}

// Register adds a tool to the registry, replacing any existing tool with
// the same name.
func (r *Registry) Register(tool *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
}

// Unregister removes a tool from the registry.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns the tool with the given name, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// All returns the registered tools sorted by name. Sorting keeps tool
// listings stable across calls.
func (r *Registry) All() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// Names returns the registered tool names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByGroup returns the registered tools in the given group, sorted by name.
func (r *Registry) ByGroup(g groups.ToolGroup) []*Tool {
	var out []*Tool
	for _, tool := range r.All() {
		if tool.Group == g {
			out = append(out, tool)
		}
	}
	return out
}

// Profile returns the profile the registry was built with.
func (r *Registry) Profile() groups.AgentProfile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.profile
}

// SetPermissionOverride overrides the permission level for a tool.
func (r *Registry) SetPermissionOverride(name string, level PermissionLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[name] = level
}

// ClearPermissionOverride removes a permission override.
func (r *Registry) ClearPermissionOverride(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overrides, name)
}

// SetAlwaysAllow marks a tool as always allowed ("Allow Always").
func (r *Registry) SetAlwaysAllow(name string, allow bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if allow {
		r.alwaysAllow[name] = true
	} else {
		delete(r.alwaysAllow, name)
	}
}

// IsAlwaysAllowed reports whether a tool is marked always allowed.
func (r *Registry) IsAlwaysAllowed(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.alwaysAllow[name]
}

// GetPermission returns the effective permission level for a tool without
// parameter context. Unknown tools are never executed.
func (r *Registry) GetPermission(name string) PermissionLevel {
	return r.GetPermissionWithParams(name, nil)
}

// GetPermissionWithParams returns the effective permission level for a
// tool given the actual call parameters.
//
// SECURITY: PermissionFunc is evaluated first. When it escalates to
// PermissionAsk or PermissionNever, the escalation is honored even for
// tools marked always-allowed, so a blanket approval cannot bypass
// path-based checks.
func (r *Registry) GetPermissionWithParams(name string, params map[string]interface{}) PermissionLevel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return PermissionNever
	}

	if tool.PermissionFunc != nil && params != nil {
		if level := tool.PermissionFunc(params); level >= PermissionAsk {
			return level
		}
	}

	if r.alwaysAllow[name] {
		return PermissionAuto
	}

	if level, ok := r.overrides[name]; ok {
		return level
	}

	return tool.Permission
}

// NeedsPermission reports whether a tool requires approval before execution.
func (r *Registry) NeedsPermission(name string) bool {
	return r.GetPermission(name) == PermissionAsk
}

// NeedsPermissionWithParams reports whether a tool call with the given
// parameters requires approval.
func (r *Registry) NeedsPermissionWithParams(name string, params map[string]interface{}) bool {
	return r.GetPermissionWithParams(name, params) == PermissionAsk
}

// =============================================================================
// BUILTIN TOOLS
// =============================================================================

// builtinTools returns the full tool set wired to the given ignore engine
// and command runner. Profile filtering happens at registration.
func builtinTools(eng *ignore.Engine, runner *CommandRunner) []*Tool {
	pathPermission := func(params map[string]interface{}) PermissionLevel {
		if path, ok := params["path"].(string); ok && path != "" {
			return GetPermissionForPath(path)
		}
		return PermissionAuto
	}

	return []*Tool{
		{
			Name: "list_files",
			Description: `List directory contents.

Lists the entries of a directory, one per line, with directories marked
by a trailing slash. Entries blocked by .agentignore rules are omitted.
When eza is installed it renders the listing; otherwise a native listing
is produced.

Parameters:
- path: Directory to list (default: current directory)
- all: Include hidden entries (default: false)
- long: Detailed listing with permissions, size, and modification time`,
			ShortDescription: "List directory contents",
			Group:            groups.GroupRead,
			Schema: Schema{
				Parameters: []Parameter{
					{Name: "path", Type: "string", Required: false, Description: "Directory to list", Default: "."},
					{Name: "all", Type: "boolean", Required: false, Description: "Include hidden entries", Default: false},
					{Name: "long", Type: "boolean", Required: false, Description: "Detailed listing", Default: false},
				},
			},
			RiskLevel:      RiskLow,
			Permission:     PermissionAuto,
			PermissionFunc: pathPermission,
			Executor:       &ListFilesExecutor{Engine: eng, Runner: runner},
		},
		{
			Name: "find_files",
			Description: `Find files by name pattern.

Searches a directory tree for entries whose names match a regular
expression. Ignore rules are enforced on every result: the search is
delegated to fd with the rule files passed through when fd is installed,
and pruned natively otherwise.

Parameters:
- pattern: Regular expression matched against entry names (required)
- path: Directory to search (default: current directory)
- extension: Only match files with this extension (e.g. "go")
- file_type: "f" for files, "d" for directories
- max_depth: Limit directory descent
- hidden: Include hidden files and directories (default: false)`,
			ShortDescription: "Find files by name pattern",
			Group:            groups.GroupRead,
			Schema: Schema{
				Parameters: []Parameter{
					{Name: "pattern", Type: "string", Required: true, Description: "Name pattern (regular expression)"},
					{Name: "path", Type: "string", Required: false, Description: "Directory to search", Default: "."},
					{Name: "extension", Type: "string", Required: false, Description: "File extension filter"},
					{Name: "file_type", Type: "string", Required: false, Description: "Entry type filter", Enum: []string{"f", "d"}},
					{Name: "max_depth", Type: "number", Required: false, Description: "Maximum directory depth"},
					{Name: "hidden", Type: "boolean", Required: false, Description: "Include hidden entries", Default: false},
				},
			},
			RiskLevel:      RiskLow,
			Permission:     PermissionAuto,
			PermissionFunc: pathPermission,
			Executor:       &FindFilesExecutor{Engine: eng, Runner: runner},
		},
		{
			Name: "search_content",
			Description: `Search file contents with a regular expression.

Searches files under a directory for lines matching a pattern and
returns file:line:content matches. Ignore rules are enforced on every
result: the search is delegated to ripgrep with the rule files passed
through when rg is installed, and pruned natively otherwise.

Parameters:
- pattern: Regular expression to search for (required)
- path: File or directory to search (default: current directory)
- ignore_case: Case-insensitive matching (default: false)
- context: Lines of context around each match (0-10)
- glob: Only search files matching this glob (e.g. "*.go")
- files_only: List matching files instead of matching lines
- max_count: Stop after this many matches per file`,
			ShortDescription: "Search file contents",
			Group:            groups.GroupRead,
			Schema: Schema{
				Parameters: []Parameter{
					{Name: "pattern", Type: "string", Required: true, Description: "Search pattern (regular expression)"},
					{Name: "path", Type: "string", Required: false, Description: "File or directory to search", Default: "."},
					{Name: "ignore_case", Type: "boolean", Required: false, Description: "Case-insensitive matching", Default: false},
					{Name: "context", Type: "number", Required: false, Description: "Context lines around matches", Default: 0},
					{Name: "glob", Type: "string", Required: false, Description: "File glob filter"},
					{Name: "files_only", Type: "boolean", Required: false, Description: "List files instead of lines", Default: false},
					{Name: "max_count", Type: "number", Required: false, Description: "Maximum matches per file"},
				},
			},
			RiskLevel:      RiskLow,
			Permission:     PermissionAuto,
			PermissionFunc: pathPermission,
			Executor:       &SearchContentExecutor{Engine: eng, Runner: runner},
		},
		{
			Name: "view_file",
			Description: `View a file with line numbers and optional syntax highlighting.

Displays file content numbered like cat -n. When color is requested the
output carries ANSI escape sequences, rendered by bat when installed and
by a native highlighter otherwise. Binary files are rejected.

Parameters:
- path: File to view (required)
- language: Override language detection for highlighting
- range: Line range "start:end" (1-based, inclusive)
- color: Emit ANSI color codes (default: false)`,
			ShortDescription: "View a file with line numbers",
			Group:            groups.GroupRead,
			Schema: Schema{
				Parameters: []Parameter{
					{Name: "path", Type: "string", Required: true, Description: "File to view"},
					{Name: "language", Type: "string", Required: false, Description: "Language for highlighting"},
					{Name: "range", Type: "string", Required: false, Description: "Line range start:end"},
					{Name: "color", Type: "boolean", Required: false, Description: "Emit ANSI colors", Default: false},
				},
			},
			RiskLevel:      RiskLow,
			Permission:     PermissionAuto,
			PermissionFunc: pathPermission,
			Executor:       &ViewFileExecutor{Engine: eng, Runner: runner},
		},
		{
			Name: "read_file",
			Description: `Read a file's contents.

Reads a text file and returns its lines numbered like cat -n. Supports
reading a window of the file via offset and limit. Binary files are
rejected; overlong lines are truncated.

Parameters:
- path: File to read (required)
- offset: Line number to start from (1-based)
- limit: Maximum number of lines to return (default: 2000)`,
			ShortDescription: "Read a file's contents",
			Group:            groups.GroupRead,
			Schema: Schema{
				Parameters: []Parameter{
					{Name: "path", Type: "string", Required: true, Description: "File to read"},
					{Name: "offset", Type: "number", Required: false, Description: "Starting line (1-based)"},
					{Name: "limit", Type: "number", Required: false, Description: "Maximum lines to read"},
				},
			},
			RiskLevel:      RiskLow,
			Permission:     PermissionAuto,
			PermissionFunc: pathPermission,
			Executor:       &ReadFileExecutor{Engine: eng},
		},
		{
			Name: "file_info",
			Description: `Show metadata for a file or directory.

Reports type, category, size, permissions, and modification time for a
path without reading its contents. Symlinks are not followed; the link
target is reported instead.

Parameters:
- path: File or directory to inspect (required)`,
			ShortDescription: "Show file metadata",
			Group:            groups.GroupRead,
			Schema: Schema{
				Parameters: []Parameter{
					{Name: "path", Type: "string", Required: true, Description: "File or directory to inspect"},
				},
			},
			RiskLevel:      RiskLow,
			Permission:     PermissionAuto,
			PermissionFunc: pathPermission,
			Executor:       &FileInfoExecutor{Engine: eng},
		},
		{
			Name: "write_file",
			Description: `Write content to a file.

Creates or overwrites a file with the given content. Parent directories
are created when missing. The write is atomic: a crash mid-write cannot
leave a half-written file. Writes to credential and shell startup files
are refused.

Parameters:
- path: File to write (required)
- content: Content to write (required)
- create_dirs: Create missing parent directories (default: true)`,
			ShortDescription: "Write content to a file",
			Group:            groups.GroupWrite,
			Schema: Schema{
				Parameters: []Parameter{
					{Name: "path", Type: "string", Required: true, Description: "File to write"},
					{Name: "content", Type: "string", Required: true, Description: "Content to write"},
					{Name: "create_dirs", Type: "boolean", Required: false, Description: "Create parent directories", Default: true},
				},
			},
			RiskLevel:      RiskHigh,
			Permission:     PermissionAsk,
			PermissionFunc: pathPermission,
			Executor:       &WriteFileExecutor{Engine: eng},
		},
		{
			Name: "edit_file",
			Description: `Edit a file by replacing exact text.

Replaces an exact occurrence of old_text with new_text. The match must
be unique unless replace_all is set. The old text must match exactly,
including whitespace and indentation.

Parameters:
- path: File to edit (required)
- old_text: Exact text to replace (required)
- new_text: Replacement text (required)
- replace_all: Replace every occurrence (default: false)`,
			ShortDescription: "Edit a file by text replacement",
			Group:            groups.GroupWrite,
			Schema: Schema{
				Parameters: []Parameter{
					{Name: "path", Type: "string", Required: true, Description: "File to edit"},
					{Name: "old_text", Type: "string", Required: true, Description: "Exact text to replace"},
					{Name: "new_text", Type: "string", Required: true, Description: "Replacement text"},
					{Name: "replace_all", Type: "boolean", Required: false, Description: "Replace all occurrences", Default: false},
				},
			},
			RiskLevel:      RiskHigh,
			Permission:     PermissionAsk,
			PermissionFunc: pathPermission,
			Executor:       &EditFileExecutor{Engine: eng},
		},
		{
			Name: "move_file",
			Description: `Move or rename a file or directory.

Moves source to dest, falling back to copy-and-remove when the rename
crosses filesystems. Refuses to replace an existing destination unless
overwrite is set. Both paths are validated.

Parameters:
- source: Path to move (required)
- dest: Destination path (required)
- overwrite: Replace an existing destination (default: false)`,
			ShortDescription: "Move or rename a file",
			Group:            groups.GroupManage,
			Schema: Schema{
				Parameters: []Parameter{
					{Name: "source", Type: "string", Required: true, Description: "Path to move"},
					{Name: "dest", Type: "string", Required: true, Description: "Destination path"},
					{Name: "overwrite", Type: "boolean", Required: false, Description: "Replace existing destination", Default: false},
				},
			},
			RiskLevel:  RiskMedium,
			Permission: PermissionAsk,
			PermissionFunc: func(params map[string]interface{}) PermissionLevel {
				return strictestPathPermission(params, "source", "dest")
			},
			Executor: &MoveFileExecutor{Engine: eng},
		},
		{
			Name: "copy_file",
			Description: `Copy a file.

Copies a regular file to a new path, preserving its permissions.
Refuses to replace an existing destination unless overwrite is set.
Directories are not copied.

Parameters:
- source: File to copy (required)
- dest: Destination path (required)
- overwrite: Replace an existing destination (default: false)`,
			ShortDescription: "Copy a file",
			Group:            groups.GroupManage,
			Schema: Schema{
				Parameters: []Parameter{
					{Name: "source", Type: "string", Required: true, Description: "File to copy"},
					{Name: "dest", Type: "string", Required: true, Description: "Destination path"},
					{Name: "overwrite", Type: "boolean", Required: false, Description: "Replace existing destination", Default: false},
				},
			},
			RiskLevel:  RiskMedium,
			Permission: PermissionAsk,
			PermissionFunc: func(params map[string]interface{}) PermissionLevel {
				return strictestPathPermission(params, "source", "dest")
			},
			Executor: &CopyFileExecutor{Engine: eng},
		},
		{
			Name: "remove_file",
			Description: `Remove a file or directory.

Permanently removes a file. Directories are only removed when recursive
is set. There is no trash or undo.

Parameters:
- path: Path to remove (required)
- recursive: Remove directories and their contents (default: false)`,
			ShortDescription: "Remove a file or directory",
			Group:            groups.GroupManage,
			Schema: Schema{
				Parameters: []Parameter{
					{Name: "path", Type: "string", Required: true, Description: "Path to remove"},
					{Name: "recursive", Type: "boolean", Required: false, Description: "Remove directories recursively", Default: false},
				},
			},
			RiskLevel:      RiskHigh,
			Permission:     PermissionAsk,
			PermissionFunc: pathPermission,
			Executor:       &RemoveFileExecutor{Engine: eng},
		},
	}
}

// strictestPathPermission evaluates the path permission for each named
// parameter and returns the strictest result.
func strictestPathPermission(params map[string]interface{}, keys ...string) PermissionLevel {
	level := PermissionAuto
	for _, key := range keys {
		if path, ok := params[key].(string); ok && path != "" {
			if p := GetPermissionForPath(path); p > level {
				level = p
			}
		}
	}
	return level
}

// =============================================================================
// TOOL CALL
// =============================================================================

// ToolCall is a request to execute a named tool with parameters.
type ToolCall struct {
	Name   string
	Params map[string]interface{}
}

// GetString returns a string parameter or the default.
func (tc *ToolCall) GetString(key, defaultVal string) string {
	if val, ok := tc.Params[key].(string); ok {
		return val
	}
	return defaultVal
}

// GetInt returns an integer parameter or the default. JSON numbers arrive
// as float64 and are converted.
func (tc *ToolCall) GetInt(key string, defaultVal int) int {
	switch v := tc.Params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return defaultVal
}

// GetBool returns a boolean parameter or the default.
func (tc *ToolCall) GetBool(key string, defaultVal bool) bool {
	if val, ok := tc.Params[key].(bool); ok {
		return val
	}
	return defaultVal
}
