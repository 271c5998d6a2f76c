// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for rigtool.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - ServerConfig: Stdio server profile, rate limits, and request caps
//   - ToolsConfig: Tool execution limits (timeouts, output and file sizes)
//   - StateConfig: State database location and metadata encryption
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RIGTOOL_*)
//   - ~/.rigtool/config.toml
//   - ~/.rigtool/config.json
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Access settings:
//
//	profile := cfg.Server.Profile
//	timeout := cfg.Tools.CommandTimeoutSecs
package config
