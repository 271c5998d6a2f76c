// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package state provides the SQLite-backed operational store.
package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrDatabaseError wraps unexpected SQLite failures.
	ErrDatabaseError = errors.New("database error")
	// ErrTaskNotFound indicates the task id does not exist.
	ErrTaskNotFound = errors.New("task not found")
	// ErrEncryptedMetadata indicates stored metadata carries the ENC: prefix
	// but the store has no cipher attached to decrypt it.
	ErrEncryptedMetadata = errors.New("metadata is encrypted: passphrase required")
)

// =============================================================================
// RECORD TYPES
// =============================================================================

// AuthState records the last known authentication status for an external
// provider (e.g. "gh:github.com").
type AuthState struct {
	Provider      string `json:"provider"`
	Authenticated bool   `json:"authenticated"`
	LastCheck     int64  `json:"last_check"` // Unix timestamp
	Metadata      string `json:"metadata,omitempty"`
}

// Task is a durable work item tracked across server sessions.
type Task struct {
	ID        int64      `json:"id"`
	Content   string     `json:"content"`
	Status    TaskStatus `json:"status"`
	CreatedAt int64      `json:"created_at"`
	UpdatedAt int64      `json:"updated_at"`
}

// ContextEntry is a scoped key-value pair.
type ContextEntry struct {
	Key   string       `json:"key"`
	Value string       `json:"value"`
	Scope ContextScope `json:"scope"`
}

// Stats summarizes store contents for diagnostics.
type Stats struct {
	Path           string
	CacheEntries   int
	Tasks          int
	ContextEntries int
	AuthProviders  int
}

// =============================================================================
// STORE
// =============================================================================

// Store is the SQLite-backed operational store: auth state, the tool result
// cache, session tasks, and scoped context. Safe for concurrent use; SQLite
// access is serialized through a single pooled connection.
type Store struct {
	db     *sql.DB
	path   string
	cipher *Cipher // nil when metadata encryption is disabled
}

// New opens (creating if needed) the store at the given path. The parent
// directory is created with 0700 so other users cannot list it.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return open(path)
}

// NewInMemory opens an ephemeral store for testing.
func NewInMemory() (*Store, error) {
	return open(":memory:")
}

func open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite
	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // No lifetime limit

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
		"PRAGMA wal_autocheckpoint=1000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the database schema.
func (s *Store) initSchema() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return err
	}
	if _, err := s.db.Exec(InitMetadata); err != nil {
		return err
	}
	return nil
}

// EnableEncryption attaches a cipher used to encrypt auth metadata at rest.
// Must be called before the store is shared between goroutines.
func (s *Store) EnableEncryption(c *Cipher) {
	s.cipher = c
}

// Path returns the database path ("" for in-memory stores).
func (s *Store) Path() string {
	if s.path == ":memory:" {
		return ""
	}
	return s.path
}

// Close closes the store and releases resources.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Stats returns current store statistics.
func (s *Store) Stats() (Stats, error) {
	st := Stats{Path: s.Path()}
	counts := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM tool_cache", &st.CacheEntries},
		{"SELECT COUNT(*) FROM tasks", &st.Tasks},
		{"SELECT COUNT(*) FROM context", &st.ContextEntries},
		{"SELECT COUNT(*) FROM auth_state", &st.AuthProviders},
	}
	for _, c := range counts {
		if err := s.db.QueryRow(c.query).Scan(c.dst); err != nil {
			return Stats{}, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
	}
	return st, nil
}

// =============================================================================
// AUTH STATE
// =============================================================================

// AuthGet returns the recorded auth state for a provider. The second return
// is false when no record exists.
func (s *Store) AuthGet(provider string) (AuthState, bool, error) {
	var (
		st     AuthState
		authed int64
		meta   sql.NullString
	)
	err := s.db.QueryRow(
		"SELECT provider, authenticated, last_check, metadata FROM auth_state WHERE provider = ?",
		provider,
	).Scan(&st.Provider, &authed, &st.LastCheck, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return AuthState{}, false, nil
	}
	if err != nil {
		return AuthState{}, false, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	st.Authenticated = authed != 0
	if meta.Valid {
		decoded, err := s.decodeMetadata(meta.String)
		if err != nil {
			return AuthState{}, false, err
		}
		st.Metadata = decoded
	}
	return st, true, nil
}

// AuthSet records the auth state for a provider, replacing any previous
// record. A zero LastCheck is stamped with the current time. Metadata is
// encrypted when a cipher is attached.
func (s *Store) AuthSet(st AuthState) error {
	if st.Provider == "" {
		return fmt.Errorf("provider cannot be empty")
	}

	meta, err := s.encodeMetadata(st.Metadata)
	if err != nil {
		return err
	}

	authed := 0
	if st.Authenticated {
		authed = 1
	}
	lastCheck := st.LastCheck
	if lastCheck == 0 {
		lastCheck = time.Now().Unix()
	}

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO auth_state (provider, authenticated, last_check, metadata) VALUES (?, ?, ?, ?)",
		st.Provider, authed, lastCheck, sql.NullString{String: meta, Valid: meta != ""},
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// AuthList returns all recorded auth states ordered by provider.
func (s *Store) AuthList() ([]AuthState, error) {
	rows, err := s.db.Query(
		"SELECT provider, authenticated, last_check, metadata FROM auth_state ORDER BY provider",
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var states []AuthState
	for rows.Next() {
		var (
			st     AuthState
			authed int64
			meta   sql.NullString
		)
		if err := rows.Scan(&st.Provider, &authed, &st.LastCheck, &meta); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		st.Authenticated = authed != 0
		if meta.Valid {
			decoded, err := s.decodeMetadata(meta.String)
			if err != nil {
				return nil, err
			}
			st.Metadata = decoded
		}
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return states, nil
}

// encodeMetadata encrypts a metadata blob when a cipher is attached.
func (s *Store) encodeMetadata(value string) (string, error) {
	if value == "" || s.cipher == nil {
		return value, nil
	}
	return s.cipher.EncryptString(value)
}

// decodeMetadata reverses encodeMetadata. Plaintext values pass through.
func (s *Store) decodeMetadata(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	if s.cipher == nil {
		return "", ErrEncryptedMetadata
	}
	return s.cipher.DecryptString(value)
}

// =============================================================================
// TOOL CACHE
// =============================================================================

// CacheGet returns the cached value for a key. Expired entries are reaped on
// read and reported as a miss. The second return is false on a miss.
func (s *Store) CacheGet(key string) (string, bool, error) {
	var (
		value     string
		createdAt int64
		ttl       sql.NullInt64
	)
	err := s.db.QueryRow(
		"SELECT value, created_at, ttl_secs FROM tool_cache WHERE key = ?",
		key,
	).Scan(&value, &createdAt, &ttl)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}

	if ttl.Valid && time.Now().Unix() > createdAt+ttl.Int64 {
		_, _ = s.db.Exec("DELETE FROM tool_cache WHERE key = ?", key)
		return "", false, nil
	}
	return value, true, nil
}

// CacheSet stores a value under a key. A ttlSecs of zero or less means the
// entry never expires.
func (s *Store) CacheSet(key, value string, ttlSecs int64) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO tool_cache (key, value, created_at, ttl_secs) VALUES (?, ?, ?, ?)",
		key, value, time.Now().Unix(), sql.NullInt64{Int64: ttlSecs, Valid: ttlSecs > 0},
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// CacheDelete removes a cached value. Deleting a missing key is not an error.
func (s *Store) CacheDelete(key string) error {
	if _, err := s.db.Exec("DELETE FROM tool_cache WHERE key = ?", key); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// CacheCleanup removes all expired entries and returns how many were deleted.
func (s *Store) CacheCleanup() (int64, error) {
	res, err := s.db.Exec(
		"DELETE FROM tool_cache WHERE ttl_secs IS NOT NULL AND created_at + ttl_secs < ?",
		time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return deleted, nil
}

// =============================================================================
// TASKS
// =============================================================================

// TaskCreate stores a new pending task and returns it with its assigned id.
func (s *Store) TaskCreate(content string) (Task, error) {
	now := time.Now().Unix()
	res, err := s.db.Exec(
		"INSERT INTO tasks (content, status, created_at, updated_at) VALUES (?, ?, ?, ?)",
		content, TaskStatusPending.String(), now, now,
	)
	if err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Task{}, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return Task{
		ID:        id,
		Content:   content,
		Status:    TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// TaskSetStatus updates a task's status and bumps its updated_at stamp.
func (s *Store) TaskSetStatus(id int64, status TaskStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	res, err := s.db.Exec(
		"UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?",
		status.String(), time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	return nil
}

// TaskList returns tasks ordered by id. An empty filter returns all tasks;
// otherwise only tasks with the given status.
func (s *Store) TaskList(filter TaskStatus) ([]Task, error) {
	query := "SELECT id, content, status, created_at, updated_at FROM tasks ORDER BY id"
	var args []interface{}
	if filter != "" {
		query = "SELECT id, content, status, created_at, updated_at FROM tasks WHERE status = ? ORDER BY id"
		args = append(args, filter.String())
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var (
			t      Task
			status string
		)
		if err := rows.Scan(&t.ID, &t.Content, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		t.Status = TaskStatus(status)
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return tasks, nil
}

// TaskDelete removes a task by id.
func (s *Store) TaskDelete(id int64) error {
	res, err := s.db.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	return nil
}

// TaskClear removes all tasks and returns how many were deleted.
func (s *Store) TaskClear() (int64, error) {
	res, err := s.db.Exec("DELETE FROM tasks")
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return deleted, nil
}

// =============================================================================
// CONTEXT
// =============================================================================

// ContextGet returns the value stored under (key, scope). The second return
// is false when no entry exists.
func (s *Store) ContextGet(key string, scope ContextScope) (string, bool, error) {
	var value string
	err := s.db.QueryRow(
		"SELECT value FROM context WHERE key = ? AND scope = ?",
		key, scope.String(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return value, true, nil
}

// ContextSet stores a value under (key, scope), replacing any previous value.
func (s *Store) ContextSet(key, value string, scope ContextScope) error {
	if key == "" {
		return fmt.Errorf("context key cannot be empty")
	}
	if !scope.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO context (key, scope, value) VALUES (?, ?, ?)",
		key, scope.String(), value,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// ContextDelete removes the entry under (key, scope). Deleting a missing
// entry is not an error.
func (s *Store) ContextDelete(key string, scope ContextScope) error {
	_, err := s.db.Exec(
		"DELETE FROM context WHERE key = ? AND scope = ?",
		key, scope.String(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return nil
}

// ContextList returns context entries ordered by scope then key. An empty
// scope returns entries from all scopes.
func (s *Store) ContextList(scope ContextScope) ([]ContextEntry, error) {
	query := "SELECT key, scope, value FROM context ORDER BY scope, key"
	var args []interface{}
	if scope != "" {
		query = "SELECT key, scope, value FROM context WHERE scope = ? ORDER BY key"
		args = append(args, scope.String())
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	var entries []ContextEntry
	for rows.Next() {
		var (
			e        ContextEntry
			scopeStr string
		)
		if err := rows.Scan(&e.Key, &scopeStr, &e.Value); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
		}
		e.Scope = ContextScope(scopeStr)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return entries, nil
}

// ContextClearSession removes all session-scoped entries and returns how many
// were deleted. Called at server startup so stale session context never leaks
// into a new session.
func (s *Store) ContextClearSession() (int64, error) {
	res, err := s.db.Exec("DELETE FROM context WHERE scope = ?", ScopeSession.String())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabaseError, err)
	}
	return deleted, nil
}
