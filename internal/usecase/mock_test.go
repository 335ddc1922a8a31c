package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"storefront-agent/internal/domain"
)

// --- reasoning service ---

// mockLLM answers each Chat call with the next reply; the last reply repeats.
type mockLLM struct {
	mu      sync.Mutex
	replies []func(context.Context) (string, error)
	calls   int
	last    domain.ChatRequest
}

func (m *mockLLM) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	m.mu.Lock()
	idx := m.calls
	m.calls++
	m.last = req
	var reply func(context.Context) (string, error)
	if len(m.replies) > 0 {
		reply = m.replies[min(idx, len(m.replies)-1)]
	}
	m.mu.Unlock()

	if reply == nil {
		return nil, errors.New("mockLLM: no replies configured")
	}
	content, err := reply(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.ChatResponse{
		Model:   "mock",
		Message: domain.Message{Role: domain.RoleAssistant, Content: content},
	}, nil
}

func (m *mockLLM) Name() string { return "mock" }

func (m *mockLLM) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockLLM) LastRequest() domain.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func replyWith(content string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return content, nil }
}

func replyErr(err error) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return "", err }
}

// replyHang blocks until the attempt deadline.
func replyHang() func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
}

// decisionJSON renders a well-formed reasoning decision.
func decisionJSON(action string, confidence float64) string {
	data, _ := json.Marshal(map[string]any{
		"analysis":     "request asks for " + action,
		"action":       action,
		"parameters":   map[string]any{},
		"confidence":   confidence,
		"reasoning":    "matched " + action,
		"humanMessage": fmt.Sprintf("Running %s.", action),
	})
	return string(data)
}

// staticRouter serves every tier from one provider and records the tiers asked for.
type staticRouter struct {
	mu       sync.Mutex
	provider domain.LLMProvider
	tiers    []domain.Tier
}

func (r *staticRouter) Route(tier domain.Tier) (domain.LLMProvider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiers = append(r.tiers, tier)
	return r.provider, nil
}

// --- tools ---

// staticTool returns a fixed result and records its last invocation.
type staticTool struct {
	mu       sync.Mutex
	name     string
	result   string
	calls    int
	lastArgs json.RawMessage
	lastExec domain.ExecContext
}

func (t *staticTool) Name() string        { return t.name }
func (t *staticTool) Description() string { return t.name + " tool" }
func (t *staticTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Description: t.Description()}
}

func (t *staticTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.lastArgs = params
	t.lastExec, _ = domain.ExecutionFromContext(ctx)

	content := t.result
	if content == "" {
		content = "ok"
	}
	return &domain.ToolResult{Content: content, Data: map[string]any{"tool": t.name}}, nil
}

type errorTool struct{ name string }

func (t *errorTool) Name() string        { return t.name }
func (t *errorTool) Description() string { return "always fails" }
func (t *errorTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Description: t.Description()}
}
func (t *errorTool) Execute(context.Context, json.RawMessage) (*domain.ToolResult, error) {
	return nil, errors.New("payment gateway declined")
}

type panicTool struct{ name string }

func (t *panicTool) Name() string        { return t.name }
func (t *panicTool) Description() string { return "panics" }
func (t *panicTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Description: t.Description()}
}
func (t *panicTool) Execute(context.Context, json.RawMessage) (*domain.ToolResult, error) {
	panic("nil inventory map")
}

// mockToolExecutor is an in-memory domain.ToolExecutor.
type mockToolExecutor struct {
	tools map[string]domain.Tool
	order []string
}

func newMockTools(tools ...domain.Tool) *mockToolExecutor {
	m := &mockToolExecutor{tools: make(map[string]domain.Tool, len(tools))}
	for _, t := range tools {
		m.tools[t.Name()] = t
		m.order = append(m.order, t.Name())
	}
	return m
}

func (m *mockToolExecutor) Get(name string) (domain.Tool, error) {
	t, ok := m.tools[name]
	if !ok {
		return nil, domain.ErrToolNotFound
	}
	return t, nil
}

func (m *mockToolExecutor) Names() []string {
	return append([]string(nil), m.order...)
}

func (m *mockToolExecutor) Schemas() []domain.ToolSchema {
	out := make([]domain.ToolSchema, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.tools[name].Schema())
	}
	return out
}

func newTestLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }
