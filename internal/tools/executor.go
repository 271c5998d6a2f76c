// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// executor.go orchestrates tool execution: permission checks, parameter
// validation, timeouts, output bounds, and the audit history.
package tools

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// PERMISSION CALLBACK
// =============================================================================

// PermissionCallback is called to check if a tool execution should be
// allowed. Returns true if the tool call is approved.
type PermissionCallback func(tool *Tool, params map[string]interface{}) bool

// AllowAllCallback returns a permission callback that approves every
// execution. Used by the headless server, where the connected client is
// the approver and path checks are enforced separately.
func AllowAllCallback() PermissionCallback {
	return func(tool *Tool, params map[string]interface{}) bool {
		return true
	}
}

// DenyAllCallback returns a permission callback that denies all executions.
func DenyAllCallback() PermissionCallback {
	return func(tool *Tool, params map[string]interface{}) bool {
		return false
	}
}

// ConfirmHighRiskCallback returns a callback that denies high and
// critical risk tools.
func ConfirmHighRiskCallback() PermissionCallback {
	return func(tool *Tool, params map[string]interface{}) bool {
		return tool.RiskLevel < RiskHigh
	}
}

// =============================================================================
// EXECUTION RECORD
// =============================================================================

// ExecutionRecord tracks the result of a tool execution for audit purposes.
type ExecutionRecord struct {
	// ID uniquely identifies this execution
	ID string

	// ToolName is the name of the executed tool
	ToolName string

	// Params are the parameters passed to the tool
	Params map[string]interface{}

	// Result is the outcome of the execution
	Result Result

	// Timestamp is when the execution started
	Timestamp time.Time

	// Duration is how long the execution took
	Duration time.Duration

	// Approved indicates whether the execution was approved
	Approved bool
}

// =============================================================================
// EXECUTOR
// =============================================================================

// Executor orchestrates tool execution with permission handling and
// audit logging.
type Executor struct {
	registry     *Registry
	permissionCb PermissionCallback
	autoApprove  PermissionLevel // Auto-approve up to this level
	history      []ExecutionRecord
	mu           sync.Mutex

	// Configuration
	workDir       string
	maxOutputSize int           // Max output size in bytes
	maxTimeout    time.Duration // Maximum execution timeout
}

// NewExecutor creates a tool executor with the given registry. The
// defaults are conservative: only auto-level tools run unattended and
// high-risk tools are denied until a callback or auto-approve level
// says otherwise.
func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry:      registry,
		permissionCb:  ConfirmHighRiskCallback(),
		autoApprove:   PermissionAuto,
		history:       make([]ExecutionRecord, 0),
		workDir:       ".",
		maxOutputSize: 262144,
		maxTimeout:    10 * time.Minute,
	}
}

// SetPermissionCallback sets the callback function for permission checks.
func (e *Executor) SetPermissionCallback(cb PermissionCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.permissionCb = cb
}

// SetAutoApproveLevel sets the permission level up to which tools are
// auto-approved. Tools with permission level <= this level will run
// without consulting the callback. PermissionNever is never approved.
func (e *Executor) SetAutoApproveLevel(level PermissionLevel) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.autoApprove = level
}

// SetWorkDir updates the working directory for tool execution.
func (e *Executor) SetWorkDir(dir string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workDir = dir
}

// GetWorkDir returns the current working directory.
func (e *Executor) GetWorkDir() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workDir
}

// SetMaxOutputSize sets the output truncation limit in bytes.
func (e *Executor) SetMaxOutputSize(size int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if size > 0 {
		e.maxOutputSize = size
	}
}

// History returns a copy of the execution history.
func (e *Executor) History() []ExecutionRecord {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := make([]ExecutionRecord, len(e.history))
	copy(result, e.history)
	return result
}

// ClearHistory clears the execution history.
func (e *Executor) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = make([]ExecutionRecord, 0)
}

// Registry returns the tool registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// =============================================================================
// EXECUTION
// =============================================================================

// DefaultToolTimeout applies when the caller's context has no deadline.
const DefaultToolTimeout = 30 * time.Second

// Execute runs a tool call and returns the result. It handles permission
// checking, parameter validation, timeouts, and history recording.
func (e *Executor) Execute(ctx context.Context, call ToolCall) Result {
	start := time.Now()

	tool := e.registry.Get(call.Name)
	if tool == nil {
		return Result{
			Success:  false,
			Error:    "unknown tool: " + call.Name,
			Duration: time.Since(start),
		}
	}

	approved := e.checkPermission(tool, call.Params)

	record := ExecutionRecord{
		ID:        uuid.NewString(),
		ToolName:  call.Name,
		Params:    call.Params,
		Timestamp: start,
		Approved:  approved,
	}

	if !approved {
		record.Duration = time.Since(start)
		record.Result = Result{
			Success:  false,
			Error:    "permission denied for tool: " + call.Name,
			Duration: record.Duration,
		}

		e.addToHistory(record)
		return record.Result
	}

	if err := e.validateParams(tool, call.Params); err != nil {
		result := Result{
			Success:  false,
			Error:    "parameter validation failed: " + err.Error(),
			Duration: time.Since(start),
		}
		record.Duration = result.Duration
		record.Result = result
		e.addToHistory(record)
		return result
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultToolTimeout)
		defer cancel()
	}

	// Execute in a goroutine so a stuck tool cannot hold the caller past
	// the deadline.
	resultCh := make(chan Result, 1)
	errCh := make(chan error, 1)

	go func() {
		result, err := tool.Executor.Execute(ctx, call.Params)
		if err != nil {
			errCh <- err
		} else {
			resultCh <- result
		}
	}()

	var result Result
	select {
	case result = <-resultCh:
		// Execution completed
	case err := <-errCh:
		result = Result{
			Success: false,
			Error:   err.Error(),
		}
	case <-ctx.Done():
		result = Result{
			Success: false,
			Error:   "tool execution timed out: " + ctx.Err().Error(),
		}
	}

	result.Duration = time.Since(start)

	if len(result.Output) > e.maxOutputSize {
		result.Output = result.Output[:e.maxOutputSize]
		result.Truncated = true
	}

	record.Duration = result.Duration
	record.Result = result
	e.addToHistory(record)

	return result
}

// ExecuteBatch executes multiple tool calls and returns their results.
func (e *Executor) ExecuteBatch(ctx context.Context, calls []ToolCall) []Result {
	results := make([]Result, len(calls))
	for i, call := range calls {
		results[i] = e.Execute(ctx, call)
	}
	return results
}

// checkPermission determines if a tool execution should be allowed.
// Permission is evaluated with the actual parameters so path-based rules
// apply to the real target, not just the tool name.
func (e *Executor) checkPermission(tool *Tool, params map[string]interface{}) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	toolPermission := e.registry.GetPermissionWithParams(tool.Name, params)

	// PermissionNever is absolute. No callback or auto-approve level can
	// override it.
	if toolPermission == PermissionNever {
		return false
	}

	if toolPermission <= e.autoApprove {
		return true
	}

	if e.permissionCb != nil {
		return e.permissionCb(tool, params)
	}

	return false
}

// addToHistory adds an execution record to the history.
func (e *Executor) addToHistory(record ExecutionRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Limit history size to prevent unbounded growth
	const maxHistorySize = 1000
	if len(e.history) >= maxHistorySize {
		e.history = e.history[len(e.history)-maxHistorySize+1:]
	}

	e.history = append(e.history, record)
}

// validateParams validates tool parameters against the schema.
func (e *Executor) validateParams(tool *Tool, params map[string]interface{}) error {
	for _, param := range tool.Schema.Parameters {
		val, exists := params[param.Name]

		if param.Required && (!exists || val == nil) {
			return &ValidationError{
				Param:   param.Name,
				Message: "required parameter is missing",
			}
		}

		if !exists || val == nil {
			continue
		}

		if err := validateArgType(param, val); err != nil {
			return err
		}
	}

	return nil
}

// =============================================================================
// STANDALONE VALIDATION
// =============================================================================

// ValidateToolArgs validates tool arguments against a schema before
// execution. It performs required parameter checking, type validation,
// bounds checking for numeric values, and string length validation.
func ValidateToolArgs(schema *Schema, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	for _, param := range schema.Parameters {
		val, exists := args[param.Name]

		if param.Required && (!exists || val == nil) {
			return &ValidationError{
				Param:   param.Name,
				Message: "missing required argument",
			}
		}

		if !exists || val == nil {
			continue
		}

		if err := validateArgType(param, val); err != nil {
			return err
		}

		if param.Type == "number" {
			if err := validateNumericBounds(param, val); err != nil {
				return err
			}
		}

		if param.Type == "string" {
			if str, ok := val.(string); ok {
				if err := validateStringLength(param, str); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

// validateArgType validates the type of an argument.
func validateArgType(param Parameter, val interface{}) error {
	switch param.Type {
	case "string":
		if _, ok := val.(string); !ok {
			return &ValidationError{
				Param:   param.Name,
				Message: "expected string type",
			}
		}
	case "number":
		switch val.(type) {
		case int, int32, int64, float32, float64:
			// OK
		default:
			return &ValidationError{
				Param:   param.Name,
				Message: "expected number type",
			}
		}
	case "boolean":
		if _, ok := val.(bool); !ok {
			return &ValidationError{
				Param:   param.Name,
				Message: "expected boolean type",
			}
		}
	case "array":
		if _, ok := val.([]interface{}); !ok {
			return &ValidationError{
				Param:   param.Name,
				Message: "expected array type",
			}
		}
	case "object":
		if _, ok := val.(map[string]interface{}); !ok {
			return &ValidationError{
				Param:   param.Name,
				Message: "expected object type",
			}
		}
	}
	return nil
}

// validateNumericBounds checks if a numeric value is within acceptable
// bounds.
func validateNumericBounds(param Parameter, val interface{}) error {
	var numVal float64

	switch v := val.(type) {
	case int:
		numVal = float64(v)
	case int32:
		numVal = float64(v)
	case int64:
		numVal = float64(v)
	case float32:
		numVal = float64(v)
	case float64:
		numVal = v
	default:
		return nil // Already validated type
	}

	const maxReasonableValue = 1e15
	const minReasonableValue = -1e15

	if numVal > maxReasonableValue || numVal < minReasonableValue {
		return &ValidationError{
			Param:   param.Name,
			Message: "numeric value out of reasonable bounds",
		}
	}

	return nil
}

// validateStringLength checks if a string is within acceptable length
// bounds.
func validateStringLength(param Parameter, val string) error {
	const maxStringLength = 10 * 1024 * 1024 // 10MB

	if len(val) > maxStringLength {
		return &ValidationError{
			Param:   param.Name,
			Message: "string value exceeds maximum length",
		}
	}

	return nil
}

// =============================================================================
// VALIDATION ERRORS
// =============================================================================

// ValidationError represents a parameter validation error.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Param + ": " + e.Message
}

// =============================================================================
// EXECUTION STATISTICS
// =============================================================================

// ExecutionStats provides statistics about tool executions.
type ExecutionStats struct {
	TotalExecutions int
	Successful      int
	Failed          int
	Denied          int
	TotalDuration   time.Duration
	AvgDuration     time.Duration
}

// Stats returns statistics about the execution history.
func (e *Executor) Stats() ExecutionStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	stats := ExecutionStats{}
	stats.TotalExecutions = len(e.history)

	for _, record := range e.history {
		if !record.Approved {
			stats.Denied++
		} else if record.Result.Success {
			stats.Successful++
		} else {
			stats.Failed++
		}
		stats.TotalDuration += record.Duration
	}

	if stats.TotalExecutions > 0 {
		stats.AvgDuration = stats.TotalDuration / time.Duration(stats.TotalExecutions)
	}

	return stats
}
