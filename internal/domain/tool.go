package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ToolSchema describes a tool for prompt construction and parameter validation.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ToolResult is the value a tool returns from a successful invocation.
type ToolResult struct {
	Content string `json:"content"`
	Data    any    `json:"data,omitempty"`
	IsError bool   `json:"is_error"`
}

// Tool is the interface every tool must implement.
// The execution context (agent name, ambient request context) travels on ctx;
// see ExecutionFromContext.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolExecutor abstracts tool lookup for one agent.
type ToolExecutor interface {
	Get(name string) (Tool, error)
	// Names returns registered tool names in registration order.
	Names() []string
	Schemas() []ToolSchema
}

// ToolStatus classifies a dispatch outcome.
type ToolStatus string

const (
	ToolStatusOK       ToolStatus = "ok"
	ToolStatusNotFound ToolStatus = "not_found"
	ToolStatusFailed   ToolStatus = "failed"
)

// ToolOutcome is the reportable result of dispatching one action.
// Not-found and failed outcomes are expected conditions, not errors.
type ToolOutcome struct {
	Tool      string        `json:"tool"`
	Status    ToolStatus    `json:"status"`
	Result    *ToolResult   `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	Available []string      `json:"available,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Succeeded reports whether the tool ran and returned a non-error result.
func (o ToolOutcome) Succeeded() bool {
	return o.Status == ToolStatusOK
}
