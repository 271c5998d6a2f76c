// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package state provides the SQLite-backed operational store.
package state

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// SchemaVersion tracks the database schema version for migrations
	SchemaVersion = 1
)

// SQLite schema for the operational store.
const Schema = `
-- Metadata table for schema version and store state
CREATE TABLE IF NOT EXISTS metadata (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
) WITHOUT ROWID;

-- Auth state for external service providers (git forges, registries)
CREATE TABLE IF NOT EXISTS auth_state (
    provider TEXT PRIMARY KEY,
    authenticated INTEGER NOT NULL DEFAULT 0,
    last_check INTEGER NOT NULL,  -- Unix timestamp
    metadata TEXT                 -- JSON blob, optionally ENC:-encrypted
);

-- Tool result cache with optional TTL
CREATE TABLE IF NOT EXISTS tool_cache (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    created_at INTEGER NOT NULL,  -- Unix timestamp
    ttl_secs INTEGER              -- NULL = never expires
);

CREATE INDEX IF NOT EXISTS idx_cache_expiry ON tool_cache(created_at, ttl_secs);

-- Session tasks
CREATE TABLE IF NOT EXISTS tasks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    content TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_task_status ON tasks(status);

-- Key-value context storage, scoped
CREATE TABLE IF NOT EXISTS context (
    key TEXT NOT NULL,
    scope TEXT NOT NULL DEFAULT 'session',
    value TEXT NOT NULL,
    PRIMARY KEY (key, scope)
);
`

// InitMetadata initializes the metadata table with default values
const InitMetadata = `
INSERT OR IGNORE INTO metadata (key, value) VALUES ('schema_version', '1');
INSERT OR IGNORE INTO metadata (key, value) VALUES ('created_at', strftime('%s', 'now'));
`

// =============================================================================
// TASK STATUS
// =============================================================================

// TaskStatus represents the lifecycle state of a stored task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// String returns the string representation of the task status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsValid checks if the task status is valid.
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	}
	return false
}

// ErrUnknownStatus indicates a task status string that does not name a
// known status.
var ErrUnknownStatus = errors.New("unknown task status")

// ParseTaskStatus resolves a status name, accepting common spellings.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return TaskStatusPending, nil
	case "in_progress", "in-progress", "inprogress":
		return TaskStatusInProgress, nil
	case "completed", "complete", "done":
		return TaskStatusCompleted, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
}

// =============================================================================
// CONTEXT SCOPE
// =============================================================================

// ContextScope controls the lifetime of a context entry. Session entries are
// cleared when a new server session starts; project and global entries persist.
type ContextScope string

const (
	ScopeSession ContextScope = "session"
	ScopeProject ContextScope = "project"
	ScopeGlobal  ContextScope = "global"
)

// String returns the string representation of the scope.
func (c ContextScope) String() string {
	return string(c)
}

// IsValid checks if the context scope is valid.
func (c ContextScope) IsValid() bool {
	switch c {
	case ScopeSession, ScopeProject, ScopeGlobal:
		return true
	}
	return false
}

// ErrUnknownScope indicates a scope string that does not name a known scope.
var ErrUnknownScope = errors.New("unknown context scope")

// ParseContextScope resolves a scope name. The empty string defaults to the
// session scope.
func ParseContextScope(s string) (ContextScope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "session", "":
		return ScopeSession, nil
	case "project", "proj":
		return ScopeProject, nil
	case "global":
		return ScopeGlobal, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownScope, s)
	}
}
