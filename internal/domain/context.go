package domain

import (
	"context"
	"strings"
)

// Well-known keys of the caller-supplied request context map.
// Any other key is opaque pass-through data.
const (
	CtxPreviousAgent     = "previousAgent"
	CtxMultiSystem       = "multiSystem"
	CtxCriticalOperation = "criticalOperation"
	CtxNoCache           = "noCache"
)

// BoolFlag reports whether key holds a truthy value (true, "true", "1", "yes", non-zero number).
func BoolFlag(reqCtx map[string]any, key string) bool {
	v, ok := reqCtx[key]
	if !ok || v == nil {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes", "on":
			return true
		}
		return false
	case int:
		return b != 0
	case int64:
		return b != 0
	case float64:
		return b != 0
	}
	return false
}

// StringValue returns the string stored under key, or "".
func StringValue(reqCtx map[string]any, key string) string {
	if s, ok := reqCtx[key].(string); ok {
		return s
	}
	return ""
}

type ctxKey string

const (
	requestIDCtxKey ctxKey = "request_id"
	execCtxKey      ctxKey = "tool_execution"
)

// ExecContext is passed to tool executors alongside their parameters.
type ExecContext struct {
	Agent     string
	RequestID string
	Request   string
	Values    map[string]any
}

// ContextWithRequestID returns a new context carrying the request ID (ULID).
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDCtxKey, id)
}

// RequestIDFromContext extracts the request ID from the context.
// Returns empty string if not set.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDCtxKey).(string); ok {
		return v
	}
	return ""
}

// ContextWithExecution attaches the tool execution context.
func ContextWithExecution(ctx context.Context, exec ExecContext) context.Context {
	return context.WithValue(ctx, execCtxKey, exec)
}

// ExecutionFromContext returns the tool execution context, if any.
func ExecutionFromContext(ctx context.Context) (ExecContext, bool) {
	exec, ok := ctx.Value(execCtxKey).(ExecContext)
	return exec, ok
}
