// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for rigtool.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.rigtool/config.toml
//   - ~/.rigtool/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/jeranaias/rigtool/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete rigtool configuration.
type Config struct {
	// General settings
	Version string `toml:"version" json:"version"`

	// Server configuration
	Server ServerConfig `toml:"server" json:"server"`

	// Tool execution configuration
	Tools ToolsConfig `toml:"tools" json:"tools"`

	// Ignore rule configuration
	Ignore IgnoreConfig `toml:"ignore" json:"ignore"`

	// State store configuration
	State StateConfig `toml:"state" json:"state"`

	// Terminal output configuration
	UI UIConfig `toml:"ui" json:"ui"`
}

// ServerConfig contains stdio server configuration.
type ServerConfig struct {
	// Profile selects the tool groups exposed to connecting agents:
	// "readonly", "standard", or "full"
	Profile string `toml:"profile" json:"profile"`
	// RateLimitPerSec is the sustained tool-call rate allowed per session.
	// 0 disables rate limiting.
	RateLimitPerSec float64 `toml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	// RateLimitBurst is the burst capacity of the rate limiter
	RateLimitBurst int `toml:"rate_limit_burst" json:"rate_limit_burst"`
	// MaxRequestKB is the maximum accepted request size in kilobytes
	MaxRequestKB int `toml:"max_request_kb" json:"max_request_kb"`
	// ShutdownGraceSecs is how long in-flight calls get to finish on shutdown
	ShutdownGraceSecs int `toml:"shutdown_grace_secs" json:"shutdown_grace_secs"`
}

// ToolsConfig contains tool execution limits.
type ToolsConfig struct {
	// WorkingDir is the default working directory for tool execution.
	// Empty means the process working directory at startup.
	WorkingDir string `toml:"working_dir" json:"working_dir"`
	// CommandTimeoutSecs is the default timeout for delegated commands
	CommandTimeoutSecs int `toml:"command_timeout_secs" json:"command_timeout_secs"`
	// MaxOutputKB caps tool output size in kilobytes before truncation
	MaxOutputKB int `toml:"max_output_kb" json:"max_output_kb"`
	// MaxFileSizeMB caps the size of files tools will read
	MaxFileSizeMB int `toml:"max_file_size_mb" json:"max_file_size_mb"`
	// MaxSearchResults caps the number of results search tools return
	MaxSearchResults int `toml:"max_search_results" json:"max_search_results"`
}

// IgnoreConfig contains ignore rule configuration.
type IgnoreConfig struct {
	// GlobalRules overrides the platform location of the global rule file.
	// Empty means <user config dir>/agent/ignore.
	GlobalRules string `toml:"global_rules" json:"global_rules"`
}

// StateConfig contains state store configuration.
type StateConfig struct {
	// Path overrides the state database location.
	// Empty means ~/.rigtool/state.db.
	Path string `toml:"path" json:"path"`
	// CacheTTLHours is the time-to-live for cached tool results in hours
	CacheTTLHours int `toml:"cache_ttl_hours" json:"cache_ttl_hours"`
	// EncryptMetadata encrypts sensitive auth metadata at rest.
	// Encrypted values use the ENC: prefix with base64-encoded ciphertext.
	EncryptMetadata bool `toml:"encrypt_metadata" json:"encrypt_metadata"`
	// Passphrase derives the metadata encryption key.
	// SECURITY: Prefer the RIGTOOL_PASSPHRASE env var over storing this on disk.
	Passphrase string `toml:"passphrase" json:"passphrase"`
}

// UIConfig contains terminal output configuration.
type UIConfig struct {
	// Color controls colored output: "auto", "always", "never"
	Color string `toml:"color" json:"color"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Server: ServerConfig{
			Profile:           "standard",
			RateLimitPerSec:   10,
			RateLimitBurst:    100,
			MaxRequestKB:      1024,
			ShutdownGraceSecs: 5,
		},

		Tools: ToolsConfig{
			WorkingDir:         "",
			CommandTimeoutSecs: 60,
			MaxOutputKB:        30,
			MaxFileSizeMB:      10,
			MaxSearchResults:   100,
		},

		Ignore: IgnoreConfig{
			GlobalRules: "",
		},

		State: StateConfig{
			Path:            "",
			CacheTTLHours:   24,
			EncryptMetadata: false,
		},

		UI: UIConfig{
			Color: "auto",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the rigtool configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigtool"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// StatePath returns the effective state database path for this config.
func (c *Config) StatePath() (string, error) {
	if c.State.Path != "" {
		return c.State.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "state.db"), nil
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only) in case a
// passphrase was stored in them.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}

	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	// Try TOML first
	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finishLoad(cfg)
			}
		}
	}

	// Try JSON as fallback
	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			} else {
				return finishLoad(cfg)
			}
		}
	}

	// Defaults only (with any load error for informational purposes)
	cfg, err = finishLoad(cfg)
	if err != nil {
		return nil, err
	}
	return cfg, loadErr
}

// finishLoad applies env overrides, defaults, and validation to a loaded config.
func finishLoad(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all systems; warn and continue.
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
// SECURITY: Checks and fixes file permissions on load.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		// Default to TOML
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	return finishLoad(cfg)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveTOML(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	// Ensure permissions are correct even if the file already existed
	if err := os.Chmod(path, 0600); err != nil {
		return fmt.Errorf("failed to set config file permissions: %w", err)
	}

	fmt.Fprintln(file, "# rigtool configuration file")
	fmt.Fprintln(file, "# Generated by rigtool - edit with care")
	fmt.Fprintln(file, "#")
	fmt.Fprintln(file, "# Documentation: https://github.com/jeranaias/rigtool")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// SaveJSON saves the configuration to a JSON file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveJSON(cfg *Config, path string) error {
	if err := EnsureConfigDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// ==========================================================================
	// Server Settings Validation
	// ==========================================================================

	validProfiles := map[string]bool{
		"readonly": true, "read-only": true, "standard": true, "full": true,
	}
	if !validProfiles[strings.ToLower(c.Server.Profile)] {
		errs = append(errs, ValidationError{
			Field:   "server.profile",
			Message: fmt.Sprintf("invalid profile '%s', must be one of: readonly, standard, full", c.Server.Profile),
		})
	}

	if c.Server.RateLimitPerSec < 0 {
		errs = append(errs, ValidationError{
			Field:   "server.rate_limit_per_sec",
			Message: "cannot be negative",
		})
	}
	if c.Server.RateLimitPerSec > 0 && c.Server.RateLimitBurst < 1 {
		errs = append(errs, ValidationError{
			Field:   "server.rate_limit_burst",
			Message: "must be at least 1 when rate limiting is enabled",
		})
	}

	if c.Server.MaxRequestKB < 1 || c.Server.MaxRequestKB > 65536 {
		errs = append(errs, ValidationError{
			Field:   "server.max_request_kb",
			Message: fmt.Sprintf("must be 1-65536, got %d", c.Server.MaxRequestKB),
		})
	}

	if c.Server.ShutdownGraceSecs < 0 || c.Server.ShutdownGraceSecs > 60 {
		errs = append(errs, ValidationError{
			Field:   "server.shutdown_grace_secs",
			Message: fmt.Sprintf("must be 0-60, got %d", c.Server.ShutdownGraceSecs),
		})
	}

	// ==========================================================================
	// Tool Settings Validation
	// ==========================================================================

	// Timeouts above an hour are almost always a typo in another unit.
	if c.Tools.CommandTimeoutSecs < 1 || c.Tools.CommandTimeoutSecs > 3600 {
		errs = append(errs, ValidationError{
			Field:   "tools.command_timeout_secs",
			Message: fmt.Sprintf("must be 1-3600, got %d", c.Tools.CommandTimeoutSecs),
		})
	}

	if c.Tools.MaxOutputKB < 1 || c.Tools.MaxOutputKB > 10240 {
		errs = append(errs, ValidationError{
			Field:   "tools.max_output_kb",
			Message: fmt.Sprintf("must be 1-10240, got %d", c.Tools.MaxOutputKB),
		})
	}

	if c.Tools.MaxFileSizeMB < 1 || c.Tools.MaxFileSizeMB > 1024 {
		errs = append(errs, ValidationError{
			Field:   "tools.max_file_size_mb",
			Message: fmt.Sprintf("must be 1-1024, got %d", c.Tools.MaxFileSizeMB),
		})
	}

	if c.Tools.MaxSearchResults < 1 || c.Tools.MaxSearchResults > 10000 {
		errs = append(errs, ValidationError{
			Field:   "tools.max_search_results",
			Message: fmt.Sprintf("must be 1-10000, got %d", c.Tools.MaxSearchResults),
		})
	}

	// ==========================================================================
	// State Settings Validation
	// ==========================================================================

	if c.State.CacheTTLHours < 0 {
		errs = append(errs, ValidationError{
			Field:   "state.cache_ttl_hours",
			Message: "must be non-negative",
		})
	}

	if c.State.EncryptMetadata && c.State.Passphrase == "" && os.Getenv("RIGTOOL_PASSPHRASE") == "" {
		errs = append(errs, ValidationError{
			Field:   "state.encrypt_metadata",
			Message: "requires a passphrase via state.passphrase or RIGTOOL_PASSPHRASE",
		})
	}

	// ==========================================================================
	// UI Settings Validation
	// ==========================================================================

	validColors := map[string]bool{"auto": true, "always": true, "never": true}
	if !validColors[strings.ToLower(c.UI.Color)] {
		errs = append(errs, ValidationError{
			Field:   "ui.color",
			Message: fmt.Sprintf("invalid color mode '%s', must be one of: auto, always, never", c.UI.Color),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults sets default values for any missing or zero-value configuration fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}

	// Server defaults
	if c.Server.Profile == "" {
		c.Server.Profile = defaults.Server.Profile
	}
	if c.Server.RateLimitBurst == 0 {
		c.Server.RateLimitBurst = defaults.Server.RateLimitBurst
	}
	if c.Server.MaxRequestKB == 0 {
		c.Server.MaxRequestKB = defaults.Server.MaxRequestKB
	}
	if c.Server.ShutdownGraceSecs == 0 {
		c.Server.ShutdownGraceSecs = defaults.Server.ShutdownGraceSecs
	}

	// Tool defaults
	if c.Tools.CommandTimeoutSecs == 0 {
		c.Tools.CommandTimeoutSecs = defaults.Tools.CommandTimeoutSecs
	}
	if c.Tools.MaxOutputKB == 0 {
		c.Tools.MaxOutputKB = defaults.Tools.MaxOutputKB
	}
	if c.Tools.MaxFileSizeMB == 0 {
		c.Tools.MaxFileSizeMB = defaults.Tools.MaxFileSizeMB
	}
	if c.Tools.MaxSearchResults == 0 {
		c.Tools.MaxSearchResults = defaults.Tools.MaxSearchResults
	}

	// State defaults
	if c.State.CacheTTLHours == 0 {
		c.State.CacheTTLHours = defaults.State.CacheTTLHours
	}

	// UI defaults
	if c.UI.Color == "" {
		c.UI.Color = defaults.UI.Color
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - RIGTOOL_PROFILE: overrides server.profile
//   - RIGTOOL_WORKDIR: overrides tools.working_dir
//   - RIGTOOL_TIMEOUT_SECS: overrides tools.command_timeout_secs
//   - RIGTOOL_STATE_PATH: overrides state.path
//   - RIGTOOL_GLOBAL_IGNORE: overrides ignore.global_rules
//   - RIGTOOL_PASSPHRASE: overrides state.passphrase
//   - RIGTOOL_COLOR: overrides ui.color
func (c *Config) ApplyEnvOverrides() {
	if profile := os.Getenv("RIGTOOL_PROFILE"); profile != "" {
		c.Server.Profile = profile
	}

	if workdir := os.Getenv("RIGTOOL_WORKDIR"); workdir != "" {
		c.Tools.WorkingDir = workdir
	}

	if timeout := os.Getenv("RIGTOOL_TIMEOUT_SECS"); timeout != "" {
		if secs, err := strconv.Atoi(timeout); err == nil {
			c.Tools.CommandTimeoutSecs = secs
		}
	}

	if statePath := os.Getenv("RIGTOOL_STATE_PATH"); statePath != "" {
		c.State.Path = statePath
	}

	if globalIgnore := os.Getenv("RIGTOOL_GLOBAL_IGNORE"); globalIgnore != "" {
		c.Ignore.GlobalRules = globalIgnore
	}

	if passphrase := os.Getenv("RIGTOOL_PASSPHRASE"); passphrase != "" {
		c.State.Passphrase = passphrase
	}

	if color := os.Getenv("RIGTOOL_COLOR"); color != "" {
		c.UI.Color = color
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "server.profile").
func (c *Config) Get(key string) (interface{}, error) {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return nil, errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})

		if !field.IsValid() {
			return nil, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			return field.Interface(), nil
		}

		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return nil, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}

	return nil, fmt.Errorf("invalid key: %s", key)
}

// Set sets a configuration value using dot notation (e.g., "server.profile").
func (c *Config) Set(key string, value interface{}) error {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})

		if !field.IsValid() {
			return fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			if !field.CanSet() {
				return fmt.Errorf("cannot set field: %s", key)
			}
			return setFieldValue(field, value)
		}

		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}

	return fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}

	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	// Handle string input with type conversion
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal := strVal == "1" || strings.ToLower(strVal) == "true" || strings.ToLower(strVal) == "yes"
			field.SetBool(boolVal)
			return nil
		}
	}

	// Direct assignment for matching types
	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}

	// Type conversion for compatible types
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}

	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"server.profile",
		"server.rate_limit_per_sec",
		"server.rate_limit_burst",
		"server.max_request_kb",
		"server.shutdown_grace_secs",
		"tools.working_dir",
		"tools.command_timeout_secs",
		"tools.max_output_kb",
		"tools.max_file_size_mb",
		"tools.max_search_results",
		"ignore.global_rules",
		"state.path",
		"state.cache_ttl_hours",
		"state.encrypt_metadata",
		"ui.color",
	}
}

// Clone creates a copy of the configuration. The config holds only value
// types, so a struct copy is a full copy.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a string representation of the config for debugging.
// SECURITY: Redacts the passphrase to prevent accidental exposure in logs,
// error messages, or debug output.
func (c *Config) String() string {
	safe := c.Clone()

	if safe.State.Passphrase != "" {
		safe.State.Passphrase = "[REDACTED]"
	}

	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			// Log but don't fail - use defaults
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		}
		if cfg == nil {
			cfg = Default()
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
// This should only be used in tests to reset state between test runs.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
