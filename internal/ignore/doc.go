// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ignore implements the access-control boundary consulted before any
// filesystem-touching tool operation.
//
// Rules use gitignore pattern syntax and come from two sources: a single
// global file at <user config dir>/agent/ignore, and per-directory
// .agentignore files discovered by walking from a queried path toward the
// filesystem root. Matching is additive across sources: a path is ignored if
// the global rules or any ancestor directory's rules match it, and a !
// negation only takes effect within the file that contains it.
//
// # Key Types
//
//   - Engine: the public facade; answers queries and translates the boundary
//     into flags for delegated scanners
//   - PatternSet: one rule file compiled into an immutable matcher
//   - AccessDeniedError: returned by ValidatePath for blocked paths
//
// # Enforcement
//
// The same boundary is enforced two ways, and both must agree:
//
//   - In-process: IsIgnored, ValidatePath, FilterPaths
//   - Delegated: EnforcementArgs produces --no-ignore plus one
//     --ignore-file=<path> per applicable rule file, which callers pass
//     verbatim to external scanning tools (fd, rg)
//
// Compiled directory rules are cached per engine. The cache never
// self-invalidates; callers that know rule files changed on disk call
// ClearCache.
package ignore
