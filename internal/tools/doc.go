// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools implements the agent-facing tool set for rigtool.
//
// Every tool executor enforces two boundaries before touching the
// filesystem: the user's .agentignore rules (the ignore engine) and the
// platform security checks (path traversal, blocked system paths,
// credential files). Tools that delegate to external scanners pass the
// rule files through on the command line so the scanner enforces the
// same boundary.
//
// # Key Types
//
//   - Tool: Tool definition with name, schema, group, and risk level
//   - Registry: Holds the tools enabled by an agent profile
//   - Executor: Orchestrates execution, permissions, and history
//   - Result: Tool execution result with output and status
//   - CommandRunner: Bounded runner for delegated external commands
//
// # Available Tools
//
// Read group:
//   - list_files: Directory listings (eza when installed)
//   - find_files: Name search (fd when installed)
//   - search_content: Content search (rg when installed)
//   - view_file: Numbered display with highlighting (bat when installed)
//   - read_file: Windowed file reads
//   - file_info: Metadata without content
//
// Write group:
//   - write_file: Atomic create/overwrite
//   - edit_file: Exact text replacement
//
// Manage group:
//   - move_file, copy_file, remove_file: File management
//
// # Security
//
//   - Ignore rules checked on every path, pruned on every walk
//   - Path traversal and symlink escape prevention
//   - Blocked system paths and shell startup files
//   - Sensitive paths escalate to ask-level permission
//   - Delegated commands run without a shell, with sanitized
//     environment and bounded output
package tools
