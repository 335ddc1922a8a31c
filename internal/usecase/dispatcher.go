package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/trace"

	"storefront-agent/internal/domain"
	"storefront-agent/internal/infra/tracer"
)

// ToolDispatcher executes a decided action against one agent's tools.
// Missing tools and executor failures become outcomes, never errors.
type ToolDispatcher struct {
	tools  domain.ToolExecutor
	logger *slog.Logger
	now    func() time.Time // for testing
}

// NewToolDispatcher creates a dispatcher.
func NewToolDispatcher(tools domain.ToolExecutor, logger *slog.Logger) *ToolDispatcher {
	if logger == nil {
		logger = discardLogger()
	}
	return &ToolDispatcher{tools: tools, logger: logger, now: time.Now}
}

// Execute runs action with params. The execution context is attached to ctx
// for the tool to read. Tool execution is never retried here.
func (d *ToolDispatcher) Execute(ctx context.Context, action string, params map[string]any, exec domain.ExecContext) (outcome domain.ToolOutcome) {
	ctx, span := tracer.StartSpan(ctx, "agent.execute_tool",
		trace.WithAttributes(
			tracer.StringAttr("tool.name", action),
			tracer.StringAttr("agent.name", exec.Agent),
		),
	)
	defer span.End()

	outcome.Tool = action

	tool, err := d.tools.Get(action)
	if err != nil {
		available := d.tools.Names()
		sort.Strings(available)
		outcome.Status = domain.ToolStatusNotFound
		outcome.Available = available
		outcome.Error = domain.NewDomainError("Dispatcher.Execute", domain.ErrToolNotFound, action).Error()
		tracer.RecordError(span, err)
		d.logger.Warn("tool not found", "agent", exec.Agent, "tool", action)
		return outcome
	}

	if params == nil {
		params = map[string]any{}
	}
	raw, err := json.Marshal(params)
	if err != nil {
		outcome.Status = domain.ToolStatusFailed
		outcome.Error = domain.NewDomainError("Dispatcher.Execute", domain.ErrToolFailure, "encode parameters: "+err.Error()).Error()
		tracer.RecordError(span, err)
		return outcome
	}

	start := d.now()
	defer func() {
		outcome.Duration = d.now().Sub(start)
		if r := recover(); r != nil {
			outcome.Status = domain.ToolStatusFailed
			outcome.Result = nil
			outcome.Error = domain.NewDomainError("Dispatcher.Execute", domain.ErrToolFailure,
				fmt.Sprintf("%s panicked: %v", action, r)).Error()
			tracer.RecordError(span, fmt.Errorf("panic: %v", r))
			d.logger.Error("tool panicked", "agent", exec.Agent, "tool", action, "panic", r)
		}
	}()

	result, err := tool.Execute(domain.ContextWithExecution(ctx, exec), raw)
	switch {
	case err != nil:
		outcome.Status = domain.ToolStatusFailed
		outcome.Error = domain.NewDomainError("Dispatcher.Execute", domain.ErrToolFailure,
			fmt.Sprintf("%s: %v", action, err)).Error()
		tracer.RecordError(span, err)
		d.logger.Warn("tool execution failed", "agent", exec.Agent, "tool", action, "error", err)
	case result != nil && result.IsError:
		outcome.Status = domain.ToolStatusFailed
		outcome.Result = result
		outcome.Error = domain.NewDomainError("Dispatcher.Execute", domain.ErrToolFailure,
			fmt.Sprintf("%s: %s", action, result.Content)).Error()
		tracer.RecordError(span, domain.ErrToolFailure)
	default:
		outcome.Status = domain.ToolStatusOK
		outcome.Result = result
		tracer.SetOK(span)
	}
	return outcome
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
