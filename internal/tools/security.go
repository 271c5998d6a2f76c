// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// security.go implements the platform security boundary for file access.
// Every tool path passes through here after the ignore engine has applied
// the user's rules: the ignore check is the user boundary, this file is
// the platform boundary.
package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// =============================================================================
// SECURITY ERRORS
// =============================================================================

// SecurityError represents a security validation failure.
type SecurityError struct {
	Type    string // Category: "path_traversal", "blocked_path", "blocked_file", "invalid_path", "file_open", "toctou_detected"
	Path    string // The offending path
	Message string // Human-readable description
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("security error (%s): %s [path: %s]", e.Type, e.Message, e.Path)
}

// =============================================================================
// BLOCKED SHELL STARTUP FILES
// =============================================================================

// blockedShellFiles are shell startup/config files that should never be
// touched. Writing to them is a persistence vector.
var blockedShellFiles = []string{
	".bashrc",
	".bash_profile",
	".bash_login",
	".bash_logout",
	".zshrc",
	".zprofile",
	".zlogin",
	".zlogout",
	".profile",
	".login",
	".cshrc",
	".tcshrc",
	".kshrc",
	".config/fish/config.fish",
}

// blockedSensitiveDirs are directories containing credentials or keys.
var blockedSensitiveDirs = []string{
	".ssh/",
	".gnupg/",
	".aws/",
	".kube/",
	".docker/",
}

// isBlockedShellFile checks if a path points to a blocked shell startup
// file or lives inside a credential directory.
func isBlockedShellFile(path string) bool {
	normalizedPath := filepath.ToSlash(path)
	if runtime.GOOS == "windows" {
		normalizedPath = strings.ToLower(normalizedPath)
	}

	baseName := filepath.Base(normalizedPath)

	for _, blocked := range blockedShellFiles {
		blockedNorm := blocked
		if runtime.GOOS == "windows" {
			blockedNorm = strings.ToLower(blocked)
		}

		if baseName == filepath.Base(blockedNorm) {
			return true
		}

		if strings.HasSuffix(normalizedPath, "/"+blockedNorm) || normalizedPath == blockedNorm {
			return true
		}
	}

	for _, blocked := range blockedSensitiveDirs {
		blockedNorm := blocked
		if runtime.GOOS == "windows" {
			blockedNorm = strings.ToLower(blocked)
		}

		if strings.Contains(normalizedPath, "/"+blockedNorm) {
			return true
		}
	}

	return false
}

// =============================================================================
// SENSITIVE PATH PATTERNS
// =============================================================================

// SensitivePathPatterns are file patterns that escalate a tool call to
// PermissionAsk instead of PermissionAuto.
var SensitivePathPatterns = []string{
	// Environment files
	"*/.env",
	"*/.env.*",

	// Cloud credentials
	"*/.aws/*",
	"*/.azure/*",
	"*/.gcloud/*",
	"*/.kube/config",

	// SSH keys and config
	"*/.ssh/*",
	"*/id_rsa",
	"*/id_ed25519",
	"*/id_ecdsa",
	"*/id_dsa",
	"*/authorized_keys",
	"*/known_hosts",

	// Git and registry credentials
	"*/.git-credentials",
	"*/.netrc",
	"*/.npmrc",
	"*/.pypirc",

	// General credential names
	"*/credentials*",
	"*/secrets*",
	"*/password*",
	"*/passwd",

	// Certificate and key material
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",

	// System files
	"/etc/shadow",
	"/etc/passwd",
	"/etc/sudoers",
}

// isSensitivePath checks if a path matches any sensitive pattern.
// Paths that cannot be resolved are treated as sensitive.
func isSensitivePath(path string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return true
	}

	for _, pattern := range SensitivePathPatterns {
		if matchPath(pattern, absPath) {
			return true
		}
	}
	return false
}

// matchPath performs glob-like matching for sensitive path patterns.
// Supported forms: absolute paths ("/etc/shadow"), directory components
// ("*/.aws/*"), basename patterns ("*/id_rsa", "*/credentials*",
// "*/.env.*"), path suffixes ("*/.kube/config"), and extension suffixes
// ("*.pem").
func matchPath(pattern, path string) bool {
	pattern = filepath.ToSlash(pattern)
	path = filepath.ToSlash(path)
	if runtime.GOOS == "windows" {
		pattern = strings.ToLower(pattern)
		path = strings.ToLower(path)
	}

	// Absolute patterns match exactly or as a directory prefix.
	if !strings.Contains(pattern, "*") {
		return path == pattern || strings.HasPrefix(path, pattern+"/")
	}

	// */name/* - a directory component anywhere in the path
	if strings.HasPrefix(pattern, "*/") && strings.HasSuffix(pattern, "/*") {
		component := pattern[1 : len(pattern)-1] // "/name/"
		return strings.Contains(path+"/", component)
	}

	// */rest - basename or path-suffix patterns
	if strings.HasPrefix(pattern, "*/") {
		rest := pattern[2:]
		if strings.Contains(rest, "/") && !strings.Contains(rest, "*") {
			return strings.HasSuffix(path, "/"+rest)
		}
		return matchBaseName(rest, filepath.Base(path))
	}

	// *.ext - extension suffix
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(path, pattern[1:])
	}

	return false
}

// matchBaseName matches a basename against a pattern that may contain a
// single wildcard.
func matchBaseName(pattern, name string) bool {
	if !strings.Contains(pattern, "*") {
		return name == pattern
	}

	switch {
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*"):
		return strings.Contains(name, strings.Trim(pattern, "*"))
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(name, strings.TrimSuffix(pattern, "*"))
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(name, strings.TrimPrefix(pattern, "*"))
	}

	parts := strings.SplitN(pattern, "*", 2)
	return len(name) >= len(parts[0])+len(parts[1]) &&
		strings.HasPrefix(name, parts[0]) &&
		strings.HasSuffix(name, parts[1])
}

// =============================================================================
// PATH VALIDATION
// =============================================================================

// ValidatePathSecure validates a path for safe file access and returns
// the resolved path to use. The validation:
//
//  1. Normalizes the path to Unicode NFC so composed and decomposed
//     spellings resolve to one canonical form before any check
//  2. Converts to an absolute path
//  3. Resolves symlinks (resolving the parent when the target does not
//     exist yet, so new files can be created)
//  4. Verifies the resolved path is within an allowed root
//     (working directory, home directory, or temp directory)
//  5. Rejects blocked system paths
//  6. Rejects shell startup and credential files
func ValidatePathSecure(path string) (string, error) {
	if path == "" {
		return "", &SecurityError{
			Type:    "invalid_path",
			Path:    path,
			Message: "empty path",
		}
	}

	// Step 1: Canonical Unicode form. A decomposed spelling of a blocked
	// name must not slip past the string checks below.
	path = norm.NFC.String(path)

	// Step 2: Absolute path
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", &SecurityError{
			Type:    "invalid_path",
			Path:    path,
			Message: "cannot resolve absolute path: " + err.Error(),
		}
	}

	// Step 3: Resolve symlinks. For paths that do not exist yet, resolve
	// the parent directory so a symlinked parent cannot smuggle the write
	// outside the allowed roots.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			parent := filepath.Dir(absPath)
			resolvedParent, perr := filepath.EvalSymlinks(parent)
			if perr != nil {
				resolvedPath = absPath
			} else {
				resolvedPath = filepath.Join(resolvedParent, filepath.Base(absPath))
			}
		} else {
			return "", &SecurityError{
				Type:    "invalid_path",
				Path:    path,
				Message: "cannot resolve symlinks: " + err.Error(),
			}
		}
	}

	normalizedPath := normalizePath(resolvedPath)

	// Step 4: Allowed roots
	if !isWithinAllowedPaths(normalizedPath) {
		return "", &SecurityError{
			Type:    "path_traversal",
			Path:    path,
			Message: "path is outside allowed directories",
		}
	}

	// Step 5: Blocked system paths
	if err := checkBlockedPaths(normalizedPath); err != nil {
		return "", err
	}

	// Step 6: Shell startup and credential files
	if isBlockedShellFile(normalizedPath) {
		return "", &SecurityError{
			Type:    "blocked_file",
			Path:    path,
			Message: "shell startup and credential files cannot be accessed",
		}
	}

	return resolvedPath, nil
}

// validatePathSecurity is the error-only form of ValidatePathSecure.
func validatePathSecurity(path string) error {
	_, err := ValidatePathSecure(path)
	return err
}

// =============================================================================
// SECURE FILE OPEN
// =============================================================================

// OpenSecureFile validates a path and opens the file in one flow,
// re-validating the opened handle to close the gap between check and use.
// The caller must close the returned file.
func OpenSecureFile(path string, flag int) (*os.File, error) {
	return OpenSecureFileWithPerm(path, flag, 0644)
}

// OpenSecureFileWithPerm is OpenSecureFile with an explicit permission
// for newly created files.
func OpenSecureFileWithPerm(path string, flag int, perm os.FileMode) (*os.File, error) {
	cleanPath := filepath.Clean(path)

	if err := validatePathSecurity(cleanPath); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(cleanPath, flag, perm)
	if err != nil {
		return nil, &SecurityError{
			Type:    "file_open",
			Path:    path,
			Message: "cannot open file: " + err.Error(),
		}
	}

	// Re-resolve and re-validate the path now that the handle is held.
	// If the path was swapped for a symlink between the check and the
	// open, this catches it.
	resolvedPath, err := filepath.EvalSymlinks(file.Name())
	if err != nil {
		file.Close()
		return nil, &SecurityError{
			Type:    "toctou_detected",
			Path:    path,
			Message: "cannot re-resolve opened file: " + err.Error(),
		}
	}

	if err := validatePathSecurity(resolvedPath); err != nil {
		file.Close()
		return nil, &SecurityError{
			Type:    "toctou_detected",
			Path:    path,
			Message: "file was moved outside allowed paths during open",
		}
	}

	return file, nil
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// isWithinAllowedPaths checks if a normalized path is under one of the
// allowed roots: the working directory, the home directory, or the temp
// directory.
func isWithinAllowedPaths(path string) bool {
	var allowed []string

	if cwd, err := os.Getwd(); err == nil {
		if resolved, rerr := filepath.EvalSymlinks(cwd); rerr == nil {
			cwd = resolved
		}
		allowed = append(allowed, normalizePath(cwd))
	}
	if home, err := os.UserHomeDir(); err == nil {
		if resolved, rerr := filepath.EvalSymlinks(home); rerr == nil {
			home = resolved
		}
		allowed = append(allowed, normalizePath(home))
	}
	tempDir := os.TempDir()
	if resolved, rerr := filepath.EvalSymlinks(tempDir); rerr == nil {
		tempDir = resolved
	}
	allowed = append(allowed, normalizePath(tempDir))

	for _, dir := range allowed {
		if isPathWithinDir(path, dir) {
			return true
		}
	}
	return false
}

// normalizePath prepares a path for comparison. Windows paths are
// lowercased and slash-normalized because the filesystem is
// case-insensitive.
func normalizePath(path string) string {
	normalized := filepath.Clean(path)
	if runtime.GOOS == "windows" {
		normalized = strings.ToLower(filepath.ToSlash(normalized))
	}
	return normalized
}

// isPathWithinDir checks if path is dir itself or inside it. The
// separator check prevents "/home/user-evil" from matching "/home/user".
func isPathWithinDir(path, dir string) bool {
	if path == dir {
		return true
	}

	sep := string(filepath.Separator)
	if runtime.GOOS == "windows" {
		sep = "/"
	}
	if !strings.HasSuffix(dir, sep) {
		dir += sep
	}
	return strings.HasPrefix(path, dir)
}

// checkBlockedPaths rejects paths under system directories that no tool
// has any business touching, even when the process runs from a root that
// would otherwise allow them.
func checkBlockedPaths(path string) error {
	var blockedDirs, blockedFiles, blockedPatterns []string

	if runtime.GOOS == "windows" {
		blockedDirs = []string{
			"c:/windows/system32/config/",
			"c:/windows/system32/drivers/",
		}
		blockedFiles = []string{
			"c:/windows/system32/config/sam",
			"c:/windows/system32/config/security",
			"c:/windows/system32/config/system",
		}
	} else {
		blockedDirs = []string{
			"/proc/",
			"/sys/",
			"/dev/",
			"/boot/",
			"/root/.ssh/",
			"/etc/sudoers.d/",
		}
		blockedFiles = []string{
			"/etc/shadow",
			"/etc/gshadow",
			"/etc/passwd",
			"/etc/sudoers",
		}
		blockedPatterns = []string{
			"/etc/ssh/ssh_host_",
		}
	}

	for _, dir := range blockedDirs {
		if strings.HasPrefix(path, dir) {
			return &SecurityError{
				Type:    "blocked_path",
				Path:    path,
				Message: "system directory access is not permitted",
			}
		}
	}

	for _, file := range blockedFiles {
		if path == file {
			return &SecurityError{
				Type:    "blocked_file",
				Path:    path,
				Message: "system file access is not permitted",
			}
		}
	}

	for _, pattern := range blockedPatterns {
		if strings.HasPrefix(path, pattern) {
			return &SecurityError{
				Type:    "blocked_file",
				Path:    path,
				Message: "system file access is not permitted",
			}
		}
	}

	return nil
}

// =============================================================================
// PATH PERMISSIONS
// =============================================================================

// GetPermissionForPath returns the permission level required to access a
// path. Paths that fail validation and paths matching sensitive patterns
// require approval; everything else proceeds automatically.
func GetPermissionForPath(path string) PermissionLevel {
	if _, err := ValidatePathSecure(path); err != nil {
		return PermissionAsk
	}
	if isSensitivePath(path) {
		return PermissionAsk
	}
	return PermissionAuto
}
