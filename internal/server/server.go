// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/jeranaias/rigtool/internal/config"
	"github.com/jeranaias/rigtool/internal/groups"
	"github.com/jeranaias/rigtool/internal/ignore"
	"github.com/jeranaias/rigtool/internal/tools"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// ServerName identifies this implementation to clients.
	ServerName = "rigtool"

	// Version is the server implementation version.
	Version = "0.2.0"

	// ProtocolVersion is the protocol revision spoken over stdio.
	ProtocolVersion = "2025-06-18"

	// DefaultMaxRequestSize caps a single request line at 1MB.
	DefaultMaxRequestSize = 1024 * 1024

	// DefaultRateLimitPerSec is the sustained request rate per session.
	DefaultRateLimitPerSec = 10

	// DefaultRateLimitBurst is the burst allowance per session.
	DefaultRateLimitBurst = 100

	// DefaultShutdownGrace bounds how long a canceled Serve waits for the
	// request in flight to finish.
	DefaultShutdownGrace = 5 * time.Second
)

// Method names understood by the server.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodListTools   = "tools/list"
	MethodCallTool    = "tools/call"
	MethodPing        = "ping"
	MethodShutdown    = "shutdown"
)

// JSON-RPC 2.0 error codes, plus the server-defined range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeRateLimited    = -32000
)

// serverInstructions is surfaced to clients during initialize so the model
// on the far end knows what it is holding.
const serverInstructions = "Sandboxed filesystem tools for coding agents: " +
	"list, find, search, read, view, write, edit, move, copy, and remove " +
	"files. Every path is checked against .agentignore rules before it is " +
	"touched, and delegated scanners inherit the same rules."

// =============================================================================
// WIRE TYPES
// =============================================================================

// Request is a single JSON-RPC 2.0 request or notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no ID and therefore
// must not receive a response, per JSON-RPC 2.0.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || string(r.ID) == "null"
}

// Response is a single JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the error member of a failed response.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// InitializeParams is what a client sends with initialize. All fields are
// optional; an empty initialize is accepted.
type InitializeParams struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ClientInfo      ClientInfo `json:"clientInfo"`
}

// ClientInfo identifies the connecting client.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the server's half of the handshake.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
	Instructions    string       `json:"instructions,omitempty"`
	SessionID       string       `json:"sessionId,omitempty"`
}

// ServerInfo identifies this server implementation.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Capabilities advertises what the server can do.
type Capabilities struct {
	Tools ToolsCapability `json:"tools"`
}

// ToolsCapability describes the tools capability. ListChanged is always
// false: the tool set is fixed for the life of the process.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

// ToolDescriptor is one entry in a tools/list result.
type ToolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ListToolsResult is the tools/list response payload.
type ListToolsResult struct {
	Tools []ToolDescriptor `json:"tools"`
}

// CallToolParams is the tools/call request payload.
type CallToolParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ContentBlock is one piece of tool output. Only text blocks are produced.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// CallToolResult is the tools/call response payload. Tool failures set
// IsError and put the message in the content, so the client can hand the
// failure back to its model instead of treating it as a broken connection.
type CallToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError"`
}

// =============================================================================
// STATS
// =============================================================================

// ServerStats tracks request counters for the lifetime of the process.
type ServerStats struct {
	TotalRequests  int64     `json:"total_requests"`
	ToolCalls      int64     `json:"tool_calls"`
	ToolErrors     int64     `json:"tool_errors"`
	ProtocolErrors int64     `json:"protocol_errors"`
	RateLimited    int64     `json:"rate_limited"`
	Notifications  int64     `json:"notifications"`
	StartTime      time.Time `json:"start_time"`

	mu sync.Mutex
}

// NewServerStats creates a stats tracker anchored at now.
func NewServerStats() *ServerStats {
	return &ServerStats{StartTime: time.Now()}
}

// RecordRequest counts one inbound line, well-formed or not.
func (s *ServerStats) RecordRequest() {
	s.mu.Lock()
	s.TotalRequests++
	s.mu.Unlock()
}

// RecordToolCall counts one tools/call dispatch and its outcome.
func (s *ServerStats) RecordToolCall(success bool) {
	s.mu.Lock()
	s.ToolCalls++
	if !success {
		s.ToolErrors++
	}
	s.mu.Unlock()
}

// RecordProtocolError counts one error response sent to the client.
func (s *ServerStats) RecordProtocolError() {
	s.mu.Lock()
	s.ProtocolErrors++
	s.mu.Unlock()
}

// RecordRateLimited counts one request rejected by the session limiter.
func (s *ServerStats) RecordRateLimited() {
	s.mu.Lock()
	s.RateLimited++
	s.mu.Unlock()
}

// RecordNotification counts one notification, which gets no response.
func (s *ServerStats) RecordNotification() {
	s.mu.Lock()
	s.Notifications++
	s.mu.Unlock()
}

// GetStats returns a copy of the current statistics.
func (s *ServerStats) GetStats() ServerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ServerStats{
		TotalRequests:  s.TotalRequests,
		ToolCalls:      s.ToolCalls,
		ToolErrors:     s.ToolErrors,
		ProtocolErrors: s.ProtocolErrors,
		RateLimited:    s.RateLimited,
		Notifications:  s.Notifications,
		StartTime:      s.StartTime,
	}
}

// Uptime returns how long the server has been running.
func (s *ServerStats) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.StartTime)
}

// =============================================================================
// SERVER
// =============================================================================

// Server speaks line-delimited JSON-RPC 2.0 over a reader/writer pair,
// normally stdin and stdout. One server serves exactly one session; logs go
// to stderr so stdout stays clean for the wire.
type Server struct {
	registry *tools.Registry
	executor *tools.Executor
	engine   *ignore.Engine

	in  io.Reader
	out io.Writer

	// writeMu serializes response lines. The dispatch loop is single
	// threaded today, but the watcher and future notifiers share out.
	writeMu sync.Mutex

	stats   *ServerStats
	limiter *rate.Limiter
	logger  *log.Logger

	sessionID      string
	maxRequestSize int
	grace          time.Duration
	watchRules     bool

	handler Handler
	watcher *RuleWatcher

	// quit is set by the shutdown handler. Only touched from the dispatch
	// goroutine.
	quit bool
}

// NewServer wires a server around the given registry and executor, reading
// stdin and writing stdout until configured otherwise.
func NewServer(registry *tools.Registry, executor *tools.Executor) *Server {
	return &Server{
		registry:       registry,
		executor:       executor,
		in:             os.Stdin,
		out:            os.Stdout,
		stats:          NewServerStats(),
		limiter:        rate.NewLimiter(rate.Limit(DefaultRateLimitPerSec), DefaultRateLimitBurst),
		logger:         log.Default(),
		sessionID:      uuid.NewString(),
		maxRequestSize: DefaultMaxRequestSize,
		grace:          DefaultShutdownGrace,
		watchRules:     true,
	}
}

// WithEngine attaches the ignore engine so rule files are watched for
// changes while the server runs.
func (s *Server) WithEngine(eng *ignore.Engine) *Server {
	s.engine = eng
	return s
}

// WithIO replaces stdin/stdout, primarily for tests.
func (s *Server) WithIO(in io.Reader, out io.Writer) *Server {
	s.in = in
	s.out = out
	return s
}

// WithLimiter replaces the session rate limiter.
func (s *Server) WithLimiter(perSec float64, burst int) *Server {
	s.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	return s
}

// WithMaxRequestSize caps the accepted request line length in bytes.
func (s *Server) WithMaxRequestSize(n int) *Server {
	if n > 0 {
		s.maxRequestSize = n
	}
	return s
}

// WithLogger replaces the event logger.
func (s *Server) WithLogger(l *log.Logger) *Server {
	s.logger = l
	return s
}

// WithRuleWatcher enables or disables the rule-file watcher.
func (s *Server) WithRuleWatcher(enabled bool) *Server {
	s.watchRules = enabled
	return s
}

// FromConfig builds a fully wired server from the loaded configuration:
// profile-filtered registry, executor, rate limits, and request size cap.
// The executor auto-approves everything the profile exposes; in a headless
// server there is nobody to ask, so the profile and the ignore rules are
// the policy.
func FromConfig(cfg *config.Config, eng *ignore.Engine) (*Server, error) {
	profile, err := groups.ParseProfile(cfg.Server.Profile)
	if err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	registry := tools.DefaultRegistry(profile, eng)
	executor := tools.NewExecutor(registry)
	executor.SetPermissionCallback(tools.AllowAllCallback())
	if cfg.Tools.WorkingDir != "" {
		executor.SetWorkDir(cfg.Tools.WorkingDir)
	}
	if cfg.Tools.MaxOutputKB > 0 {
		executor.SetMaxOutputSize(cfg.Tools.MaxOutputKB * 1024)
	}

	s := NewServer(registry, executor).WithEngine(eng)
	if cfg.Server.RateLimitPerSec > 0 {
		burst := cfg.Server.RateLimitBurst
		if burst <= 0 {
			burst = DefaultRateLimitBurst
		}
		s.WithLimiter(cfg.Server.RateLimitPerSec, burst)
	}
	if cfg.Server.MaxRequestKB > 0 {
		s.WithMaxRequestSize(cfg.Server.MaxRequestKB * 1024)
	}
	if cfg.Server.ShutdownGraceSecs > 0 {
		s.grace = time.Duration(cfg.Server.ShutdownGraceSecs) * time.Second
	}
	return s, nil
}

// Stats returns a snapshot of the request counters.
func (s *Server) Stats() ServerStats {
	return s.stats.GetStats()
}

// SessionID returns the identifier minted for this process.
func (s *Server) SessionID() string {
	return s.sessionID
}

// =============================================================================
// SERVE LOOP
// =============================================================================

// inbound carries one read attempt from the reader goroutine.
type inbound struct {
	line []byte
	err  error
}

// Serve reads requests until EOF, a shutdown request, or context
// cancellation. It returns nil on clean termination.
func (s *Server) Serve(ctx context.Context) error {
	s.startWatcher()
	defer s.stopWatcher()

	s.handler = Chain(
		RecoveryMiddleware(s.logger),
		RateLimitMiddleware(s.limiter, s.stats),
		LoggingMiddleware(s.logger),
	)(s.route)

	s.logger.Printf("SERVER_START | name=%s version=%s protocol=%s session=%s profile=%s",
		ServerName, Version, ProtocolVersion, s.sessionID, s.registry.Profile())

	in := make(chan inbound)
	done := make(chan struct{})
	defer close(done)
	go s.readLoop(in, done)

	for {
		select {
		case <-ctx.Done():
			// Give the read in flight a moment to surface, then stop.
			select {
			case msg := <-in:
				if msg.err == nil {
					s.handleLine(ctx, msg.line)
				}
			case <-time.After(s.grace):
			}
			s.logger.Printf("SERVER_STOP | reason=canceled session=%s", s.sessionID)
			return ctx.Err()

		case msg := <-in:
			switch {
			case msg.err == nil:
				if s.handleLine(ctx, msg.line) {
					s.logger.Printf("SERVER_STOP | reason=shutdown session=%s uptime=%s",
						s.sessionID, s.stats.Uptime().Round(time.Millisecond))
					return nil
				}
			case errors.Is(msg.err, errRequestTooLarge):
				s.stats.RecordRequest()
				s.stats.RecordProtocolError()
				s.writeResponse(errorResponse(nil, CodeInvalidRequest,
					fmt.Sprintf("request exceeds maximum size of %d bytes", s.maxRequestSize)))
			case errors.Is(msg.err, io.EOF):
				s.logger.Printf("SERVER_STOP | reason=eof session=%s uptime=%s",
					s.sessionID, s.stats.Uptime().Round(time.Millisecond))
				return nil
			default:
				s.logger.Printf("SERVER_STOP | reason=read_error error=%v", msg.err)
				return fmt.Errorf("read request: %w", msg.err)
			}
		}
	}
}

// readLoop feeds request lines to the dispatch loop. It exits on the first
// hard read error, including EOF, or when the dispatch loop is gone.
func (s *Server) readLoop(in chan<- inbound, done <-chan struct{}) {
	r := bufio.NewReaderSize(s.in, 64*1024)
	for {
		line, err := readLine(r, s.maxRequestSize)
		if err != nil {
			select {
			case in <- inbound{err: err}:
			case <-done:
				return
			}
			if !errors.Is(err, errRequestTooLarge) {
				return
			}
			continue
		}
		if len(trimSpace(line)) == 0 {
			continue
		}
		select {
		case in <- inbound{line: line}:
		case <-done:
			return
		}
	}
}

// errRequestTooLarge marks a request line over the configured cap.
var errRequestTooLarge = errors.New("request line too large")

// readLine returns the next newline-terminated line, refusing lines longer
// than max. An oversized line is drained through its newline so the stream
// stays aligned for the next request.
func readLine(r *bufio.Reader, max int) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		line = append(line, chunk...)
		if len(line) > max {
			if err == bufio.ErrBufferFull {
				drainLine(r)
			}
			return nil, errRequestTooLarge
		}
		switch err {
		case nil:
			return line, nil
		case bufio.ErrBufferFull:
			continue
		case io.EOF:
			if len(line) > 0 {
				return line, nil
			}
			return nil, io.EOF
		default:
			return nil, err
		}
	}
}

// drainLine discards input through the next newline.
func drainLine(r *bufio.Reader) {
	for {
		if _, err := r.ReadSlice('\n'); err != bufio.ErrBufferFull {
			return
		}
	}
}

// trimSpace trims leading ASCII whitespace so blank lines are skipped.
func trimSpace(b []byte) []byte {
	start := 0
	for start < len(b) && (b[start] == ' ' || b[start] == '\t' || b[start] == '\r' || b[start] == '\n') {
		start++
	}
	return b[start:]
}

// handleLine dispatches one request line and reports whether the server
// should stop.
func (s *Server) handleLine(ctx context.Context, line []byte) bool {
	s.stats.RecordRequest()

	req, rpcErr := parseRequest(line)
	if rpcErr != nil {
		s.stats.RecordProtocolError()
		var id json.RawMessage
		if req != nil {
			id = req.ID
		}
		s.writeResponse(errorResponse(id, rpcErr.Code, rpcErr.Message))
		return false
	}

	resp := s.handler(ctx, req)
	if req.IsNotification() {
		// Notifications never get a response, not even errors.
		s.stats.RecordNotification()
	} else if resp != nil {
		if resp.Error != nil {
			s.stats.RecordProtocolError()
		}
		s.writeResponse(resp)
	}
	return s.quit
}

// parseRequest decodes and validates a request line. On validation errors
// the partially decoded request is returned too, so the response can echo
// the ID; on parse errors the ID is unknowable and the request is nil.
func parseRequest(line []byte) (*Request, *RPCError) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, &RPCError{Code: CodeParseError, Message: "parse error: " + err.Error()}
	}
	if req.JSONRPC != "2.0" {
		return &req, &RPCError{Code: CodeInvalidRequest, Message: `invalid request: jsonrpc must be "2.0"`}
	}
	if req.Method == "" {
		return &req, &RPCError{Code: CodeInvalidRequest, Message: "invalid request: method is required"}
	}
	return &req, nil
}

// writeResponse marshals and writes one response line.
func (s *Server) writeResponse(resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Printf("MARSHAL_FAILED | error=%v", err)
		return
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(data); err != nil {
		s.logger.Printf("WRITE_FAILED | error=%v", err)
	}
}

// =============================================================================
// METHOD HANDLERS
// =============================================================================

// route dispatches a request to its method handler.
func (s *Server) route(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case MethodInitialize:
		return s.handleInitialize(req)
	case MethodInitialized:
		// Client handshake acknowledgment. Nothing to do.
		return nil
	case MethodListTools:
		return s.handleListTools(req)
	case MethodCallTool:
		return s.handleCallTool(ctx, req)
	case MethodPing:
		return resultResponse(req.ID, struct{}{})
	case MethodShutdown:
		return s.handleShutdown(req)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) handleInitialize(req *Request) *Response {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid initialize params: "+err.Error())
		}
	}
	if params.ClientInfo.Name != "" {
		s.logger.Printf("CLIENT_CONNECTED | name=%s version=%s protocol=%s",
			params.ClientInfo.Name, params.ClientInfo.Version, params.ProtocolVersion)
	}

	return resultResponse(req.ID, InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      ServerInfo{Name: ServerName, Version: Version},
		Capabilities:    Capabilities{Tools: ToolsCapability{ListChanged: false}},
		Instructions:    serverInstructions,
		SessionID:       s.sessionID,
	})
}

func (s *Server) handleListTools(req *Request) *Response {
	all := s.registry.All()
	descriptors := make([]ToolDescriptor, 0, len(all))
	for _, tool := range all {
		descriptors = append(descriptors, ToolDescriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaToJSON(tool.Schema),
		})
	}
	return resultResponse(req.ID, ListToolsResult{Tools: descriptors})
}

func (s *Server) handleCallTool(ctx context.Context, req *Request) *Response {
	if len(req.Params) == 0 {
		return errorResponse(req.ID, CodeInvalidParams, "invalid tools/call params: params are required")
	}
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid tools/call params: "+err.Error())
	}
	if params.Name == "" {
		return errorResponse(req.ID, CodeInvalidParams, "invalid tools/call params: name is required")
	}

	result := s.executor.Execute(ctx, tools.ToolCall{Name: params.Name, Params: params.Arguments})
	s.stats.RecordToolCall(result.Success)

	// Tool failures, blocked paths included, travel as tool results rather
	// than protocol errors so the client can show them to its model.
	if !result.Success {
		return resultResponse(req.ID, CallToolResult{
			Content: []ContentBlock{{Type: "text", Text: result.Error}},
			IsError: true,
		})
	}
	return resultResponse(req.ID, CallToolResult{
		Content: []ContentBlock{{Type: "text", Text: result.Output}},
	})
}

func (s *Server) handleShutdown(req *Request) *Response {
	s.quit = true
	stats := s.stats.GetStats()
	s.logger.Printf("SHUTDOWN_REQUESTED | total=%d tool_calls=%d tool_errors=%d",
		stats.TotalRequests, stats.ToolCalls, stats.ToolErrors)
	return resultResponse(req.ID, struct{}{})
}

// =============================================================================
// HELPERS
// =============================================================================

// schemaToJSON renders a tool schema as a JSON Schema object for tools/list.
func schemaToJSON(schema tools.Schema) map[string]interface{} {
	properties := make(map[string]interface{}, len(schema.Parameters))
	var required []string
	for _, p := range schema.Parameters {
		prop := map[string]interface{}{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	out := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func resultResponse(id json.RawMessage, result interface{}) *Response {
	return &Response{JSONRPC: "2.0", ID: normalizeID(id), Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) *Response {
	return &Response{JSONRPC: "2.0", ID: normalizeID(id), Error: &RPCError{Code: code, Message: message}}
}

// normalizeID substitutes the JSON null ID when a request's ID could not be
// read. An empty RawMessage would not marshal.
func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

// startWatcher begins rule-file watching when an engine is attached. A
// watcher that cannot start is logged and skipped; serving without live
// reload beats not serving.
func (s *Server) startWatcher() {
	if !s.watchRules || s.engine == nil {
		return
	}
	w, err := NewRuleWatcher(s.engine, DefaultWatchDebounce)
	if err != nil {
		s.logger.Printf("WATCHER_FAILED | error=%v", err)
		return
	}
	if err := w.Watch(); err != nil {
		s.logger.Printf("WATCHER_FAILED | error=%v", err)
		w.Close()
		return
	}
	s.watcher = w
}

func (s *Server) stopWatcher() {
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
}
