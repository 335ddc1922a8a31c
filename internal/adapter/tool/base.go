package tool

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"storefront-agent/internal/domain"
	applog "storefront-agent/internal/infra/logger"
)

// Handler runs one typed tool invocation.
type Handler[P any] func(ctx context.Context, p P) (any, error)

// FuncTool is a domain.Tool backed by a typed handler and a JSON Schema.
type FuncTool[P any] struct {
	name        string
	description string
	params      json.RawMessage
	handler     Handler[P]
	logger      *slog.Logger
}

// NewFuncTool creates a tool. params is the JSON Schema of P.
func NewFuncTool[P any](name, description, params string, logger *slog.Logger, h func(ctx context.Context, p P) (any, error)) *FuncTool[P] {
	return &FuncTool[P]{
		name:        name,
		description: description,
		params:      json.RawMessage(params),
		handler:     h,
		logger:      applog.OrDiscard(logger),
	}
}

func (t *FuncTool[P]) Name() string        { return t.name }
func (t *FuncTool[P]) Description() string { return t.description }

func (t *FuncTool[P]) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Description: t.description, Parameters: t.params}
}

func (t *FuncTool[P]) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool."+t.name, t.logger, params,
		func(ctx context.Context, _ trace.Span, p P) (any, error) {
			return t.handler(ctx, p)
		})
}
