// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"log"
	"runtime/debug"
	"time"

	"golang.org/x/time/rate"
)

// Handler processes one decoded request and produces a response. A nil
// response means nothing is written, which is how notification-only
// methods answer.
type Handler func(ctx context.Context, req *Request) *Response

// Middleware wraps a Handler with cross-cutting behavior.
type Middleware func(Handler) Handler

// Chain composes middlewares so the first listed runs outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(final Handler) Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// RecoveryMiddleware converts handler panics into internal error responses
// so one bad request cannot take the session down.
func RecoveryMiddleware(logger *log.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (resp *Response) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Printf("PANIC_RECOVERED | method=%s error=%v\n%s",
						req.Method, rec, debug.Stack())
					resp = errorResponse(req.ID, CodeInternalError, "internal error")
				}
			}()
			return next(ctx, req)
		}
	}
}

// RateLimitMiddleware rejects requests once the session limiter runs dry.
// Pings stay exempt so liveness checks keep answering under load.
func RateLimitMiddleware(limiter *rate.Limiter, stats *ServerStats) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) *Response {
			if req.Method != MethodPing && !limiter.Allow() {
				stats.RecordRateLimited()
				log.Printf("RATE_LIMIT_EXCEEDED | method=%s", req.Method)
				return errorResponse(req.ID, CodeRateLimited, "rate limit exceeded, retry later")
			}
			return next(ctx, req)
		}
	}
}

// LoggingMiddleware records one line per request with outcome and latency.
func LoggingMiddleware(logger *log.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) *Response {
			start := time.Now()
			resp := next(ctx, req)

			outcome := "ok"
			switch {
			case resp == nil:
				outcome = "silent"
			case resp.Error != nil:
				outcome = "error"
			}
			logger.Printf("REQUEST | method=%s outcome=%s duration=%s",
				req.Method, outcome, time.Since(start).Round(time.Microsecond))
			return resp
		}
	}
}
