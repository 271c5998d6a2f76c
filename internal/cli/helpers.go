// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// helpers.go - Shared helpers for rigtool CLI commands: formatting, JSON
// output, and construction of the engine and state store from config.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jeranaias/rigtool/internal/config"
	"github.com/jeranaias/rigtool/internal/ignore"
	"github.com/jeranaias/rigtool/internal/state"
)

// formatDuration formats a time.Duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
	return fmt.Sprintf("%dd", int(d.Hours()/24))
}

// formatBytes formats a byte count for display.
func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

// outputJSON writes data as indented JSON to stdout.
func outputJSON(data interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// EngineFromConfig builds the ignore engine from config. An ignore.global_rules
// setting overrides the platform default rule file location.
func EngineFromConfig(cfg *config.Config) (*ignore.Engine, error) {
	if cfg.Ignore.GlobalRules != "" {
		return ignore.NewWithGlobalFile(cfg.Ignore.GlobalRules)
	}
	return ignore.New()
}

// OpenStore opens the state store at the configured path, enabling metadata
// encryption when state.encrypt_metadata is set. The PBKDF2 salt lives next
// to the database so a relocated config dir keeps its ciphertexts readable.
func OpenStore(cfg *config.Config) (*state.Store, error) {
	path, err := cfg.StatePath()
	if err != nil {
		return nil, err
	}

	store, err := state.New(path)
	if err != nil {
		return nil, err
	}

	if cfg.State.EncryptMetadata && cfg.State.Passphrase != "" {
		saltPath := filepath.Join(filepath.Dir(path), "state.salt")
		cipher, err := state.NewCipher(cfg.State.Passphrase, saltPath)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("state encryption: %w", err)
		}
		store.EnableEncryption(cipher)
	}

	return store, nil
}
