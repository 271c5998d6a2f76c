// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package state provides the SQLite-backed operational store.
//
// The store holds data that outlives a single request but is not user
// content: provider auth state, a tool result cache with TTL, session
// tasks, and scoped key-value context.
//
// # Key Types
//
//   - Store: SQLite store with single-connection serialization
//   - AuthState: Last known authentication status per provider
//   - Task: Durable work item with pending/in_progress/completed lifecycle
//   - ContextEntry: Key-value pair scoped to session, project, or global
//   - Cipher: Optional AES-256-GCM encryption for auth metadata at rest
//
// # Usage
//
// Open the store and clear stale session context:
//
//	st, err := state.New(cfg.StatePath())
//	_, _ = st.ContextClearSession()
//
// Cache a tool result for an hour:
//
//	err = st.CacheSet("gh:user", payload, 3600)
//
// Enable metadata encryption:
//
//	ciph, err := state.NewCipher(passphrase, cfg.StatePath()+".salt")
//	st.EnableEncryption(ciph)
//
// Scope rule: session-scoped context is wiped at every server startup via
// ContextClearSession; project and global scopes persist until deleted.
package state
