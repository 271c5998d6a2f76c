// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server speaks line-delimited JSON-RPC 2.0 over stdio so agent
// frameworks can drive the tool set without linking against it.
//
// One process serves one session: requests arrive one per line on stdin,
// responses leave one per line on stdout, and logs go to stderr to keep the
// wire clean. Notifications (requests without an ID) are executed but never
// answered.
//
// # Methods
//
//   - initialize  - protocol version, server identity, capabilities
//   - tools/list  - the registered tools with their JSON schemas
//   - tools/call  - execute one tool; failures are tool results, not
//     protocol errors, so the client can hand them back to its model
//   - ping        - liveness check, exempt from rate limiting
//   - shutdown    - acknowledge and stop serving
//
// # Guardrails
//
//   - Per-session rate limiting (token bucket)
//   - Panic recovery around every dispatch
//   - Request size cap with stream realignment on oversized lines
//   - Live rule reload: a RuleWatcher invalidates compiled .agentignore
//     rules when the files change on disk
//
// # Usage
//
//	srv, err := server.FromConfig(cfg, engine)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := srv.Serve(ctx); err != nil {
//		log.Fatal(err)
//	}
package server
