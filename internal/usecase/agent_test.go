package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-agent/internal/domain"
	"storefront-agent/internal/usecase/resilience"
)

// fastRetry keeps retry tests quick.
var fastRetry = resilience.RetryConfig{
	MaxAttempts:    3,
	BaseDelay:      time.Millisecond,
	MaxDelay:       2 * time.Millisecond,
	AttemptTimeout: 50 * time.Millisecond,
}

func newTestAgent(t *testing.T, llm domain.LLMProvider, cfg domain.AgentConfig, tools ...domain.Tool) *AgentCore {
	t.Helper()
	if cfg.Name == "" {
		cfg.Name = "catalog"
	}
	return NewAgentCore(AgentDeps{
		Config: cfg,
		Router: &staticRouter{provider: llm},
		Tools:  newMockTools(tools...),
		Retry:  fastRetry,
		Logger: newTestLogger(),
	})
}

func TestProcessListProductsEndToEnd(t *testing.T) {
	llm := &mockLLM{replies: []func(context.Context) (string, error){replyWith(decisionJSON("list_products", 0.9))}}
	tool := &staticTool{name: "list_products", result: "3 products"}
	agent := newTestAgent(t, llm, domain.AgentConfig{}, tool)

	res := agent.Process(context.Background(), "list products", nil)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "catalog", res.Agent)
	assert.Equal(t, "list_products", res.Action)
	assert.Equal(t, 0.9, res.Confidence)
	require.NotNil(t, res.ToolResult())
	assert.Equal(t, "3 products", res.ToolResult().Content)
	assert.Equal(t, map[string]any{"tool": "list_products"}, res.ToolResult().Data)
	assert.Equal(t, "Running list_products.", res.Message)
	assert.False(t, res.Cached)
	assert.False(t, res.Fallback)
	assert.NotEmpty(t, res.RequestID)
	assert.False(t, res.CompletedAt.Before(res.StartedAt))
	assert.Equal(t, 1, agent.Cache().Len())
	assert.Equal(t, 1, tool.calls)
}

func TestProcessRetryExhaustionEscalatesBreaker(t *testing.T) {
	llm := &mockLLM{replies: []func(context.Context) (string, error){replyHang()}}
	tool := &staticTool{name: "list_products"}
	agent := newTestAgent(t, llm, domain.AgentConfig{MaxRetries: 3, AttemptTimeout: 20 * time.Millisecond}, tool)

	before := agent.Breaker().Failures()
	res := agent.Process(context.Background(), "list products", nil)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "retry attempts exhausted")
	assert.Equal(t, domain.CodeRetryExhausted, res.ErrorCode)
	assert.Equal(t, before+1, agent.Breaker().Failures())
	assert.Equal(t, 0, agent.Cache().Len())
	assert.Equal(t, 3, llm.Calls())
	assert.Zero(t, tool.calls)
	assert.NotEmpty(t, res.Message)
}

func TestProcessTrippingFailureCounted(t *testing.T) {
	llm := &mockLLM{replies: []func(context.Context) (string, error){replyHang()}}
	agent := newTestAgent(t, llm, domain.AgentConfig{
		MaxRetries:       2,
		AttemptTimeout:   10 * time.Millisecond,
		FailureThreshold: 1,
		Cooldown:         time.Hour,
	}, &staticTool{name: "list_products"})

	require.Zero(t, agent.Breaker().Failures())
	res := agent.Process(context.Background(), "list products", nil)

	assert.False(t, res.Success)
	assert.Equal(t, resilience.StateOpen, agent.Breaker().State())
	assert.Equal(t, uint32(1), agent.Breaker().Failures())
	assert.Equal(t, uint32(1), agent.HealthCheck(context.Background()).CircuitBreaker.Failures)
}

func TestProcessCachedResult(t *testing.T) {
	llm := &mockLLM{replies: []func(context.Context) (string, error){replyWith(decisionJSON("list_products", 0.9))}}
	agent := newTestAgent(t, llm, domain.AgentConfig{}, &staticTool{name: "list_products", result: "3 products"})

	first := agent.Process(context.Background(), "list products", map[string]any{"store": "eu", "page": 1})
	second := agent.Process(context.Background(), "list products", map[string]any{"page": 1, "store": "eu"})

	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.True(t, second.Cached)
	assert.Equal(t, first.ToolResult(), second.ToolResult())
	assert.NotEqual(t, first.RequestID, second.RequestID)
	assert.Equal(t, 1, llm.Calls())

	m := agent.Metrics()
	assert.Equal(t, int64(2), m.Requests)
	assert.Equal(t, int64(2), m.Successes)
	assert.Equal(t, int64(1), m.CacheHits)
}

func TestProcessCachedResultUnaffectedByCallerWrites(t *testing.T) {
	decision := `{"analysis":"browse","action":"list_products","parameters":{"category":"shoes"},"confidence":0.9,"reasoning":"list","humanMessage":"Listing."}`
	llm := &mockLLM{replies: []func(context.Context) (string, error){replyWith(decision)}}
	agent := newTestAgent(t, llm, domain.AgentConfig{}, &staticTool{name: "list_products", result: "3 products"})

	first := agent.Process(context.Background(), "list products", nil)
	require.True(t, first.Success)
	first.Parameters["x"] = 1
	first.ToolOutcome.Result.Content = "tampered"

	second := agent.Process(context.Background(), "list products", nil)
	require.True(t, second.Cached)
	assert.Equal(t, map[string]any{"category": "shoes"}, second.Parameters)
	assert.Equal(t, "3 products", second.ToolOutcome.Result.Content)
}

func TestProcessNoCacheFlag(t *testing.T) {
	llm := &mockLLM{replies: []func(context.Context) (string, error){replyWith(decisionJSON("list_products", 0.9))}}
	agent := newTestAgent(t, llm, domain.AgentConfig{}, &staticTool{name: "list_products"})
	reqCtx := map[string]any{domain.CtxNoCache: true}

	agent.Process(context.Background(), "list products", reqCtx)
	res := agent.Process(context.Background(), "list products", reqCtx)

	assert.True(t, res.Success)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, llm.Calls())
	assert.Equal(t, 0, agent.Cache().Len())
}

func TestProcessCircuitOpenSkipsReasoning(t *testing.T) {
	llm := &mockLLM{replies: []func(context.Context) (string, error){replyErr(domain.ErrAuthInvalid)}}
	agent := newTestAgent(t, llm, domain.AgentConfig{FailureThreshold: 1, Cooldown: time.Hour}, &staticTool{name: "list_products"})

	first := agent.Process(context.Background(), "list products", nil)
	require.False(t, first.Success)
	assert.Equal(t, 1, llm.Calls(), "permanent errors are not retried")
	require.Equal(t, resilience.StateOpen, agent.Breaker().State())

	res := agent.Process(context.Background(), "list products", nil)
	assert.False(t, res.Success)
	assert.Equal(t, domain.CodeCircuitOpen, res.ErrorCode)
	assert.Equal(t, circuitOpenMessage, res.Message)
	assert.Equal(t, 1, llm.Calls())
}

func TestProcessToolFailureDoesNotEscalateBreaker(t *testing.T) {
	llm := &mockLLM{replies: []func(context.Context) (string, error){replyWith(decisionJSON("refund_payment", 0.8))}}
	agent := newTestAgent(t, llm, domain.AgentConfig{Name: "payments", FailureThreshold: 1}, &errorTool{name: "refund_payment"})

	res := agent.Process(context.Background(), "refund order 42", nil)

	assert.False(t, res.Success)
	assert.Equal(t, domain.CodeToolFailure, res.ErrorCode)
	assert.Contains(t, res.Error, "payment gateway declined")
	require.NotNil(t, res.ToolOutcome)
	assert.Equal(t, domain.ToolStatusFailed, res.ToolOutcome.Status)
	assert.Equal(t, resilience.StateClosed, agent.Breaker().State())
	assert.Zero(t, agent.Breaker().Failures())
	assert.Equal(t, 0, agent.Cache().Len())
}

func TestProcessFallbackParse(t *testing.T) {
	llm := &mockLLM{replies: []func(context.Context) (string, error){replyWith("I would show the products in the catalog.")}}
	agent := newTestAgent(t, llm, domain.AgentConfig{},
		&staticTool{name: "list_products", result: "3 products"},
		&staticTool{name: "delete_product"},
	)

	res := agent.Process(context.Background(), "what do we sell?", nil)

	require.True(t, res.Success, res.Error)
	assert.True(t, res.Fallback)
	assert.Equal(t, "list_products", res.Action)
	assert.Equal(t, FallbackConfidence, res.Confidence)
	assert.NotEmpty(t, res.ParseError)
	assert.Equal(t, int64(1), agent.Metrics().FallbackParses)
}

func TestProcessSendsPromptAndRequest(t *testing.T) {
	llm := &mockLLM{replies: []func(context.Context) (string, error){replyWith(decisionJSON("list_products", 0.9))}}
	agent := newTestAgent(t, llm, domain.AgentConfig{PromptKind: domain.PromptCatalog}, &staticTool{name: "list_products"})

	agent.Process(context.Background(), "list products", map[string]any{"storeRegion": "eu"})

	req := llm.LastRequest()
	assert.Contains(t, req.System, "catalog manager")
	assert.Contains(t, req.System, "- list_products")
	assert.Contains(t, req.System, `"storeRegion":"eu"`)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "list products", req.Messages[0].Content)
}

func TestProcessUsesSelectedTier(t *testing.T) {
	llm := &mockLLM{replies: []func(context.Context) (string, error){replyWith(decisionJSON("analyze_sales", 0.9))}}
	router := &staticRouter{provider: llm}
	agent := NewAgentCore(AgentDeps{
		Config: domain.AgentConfig{Name: "data"},
		Router: router,
		Tools:  newMockTools(&staticTool{name: "analyze_sales"}),
		Retry:  fastRetry,
	})

	res := agent.Process(context.Background(),
		"analyze sales trends across payments and inventory, then recommend a strategy step by step",
		map[string]any{domain.CtxMultiSystem: true})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, domain.TierThorough, res.Tier)
	assert.Equal(t, []domain.Tier{domain.TierThorough}, router.tiers)
}

func TestProcessRequestIDFromContext(t *testing.T) {
	llm := &mockLLM{replies: []func(context.Context) (string, error){replyWith(decisionJSON("list_products", 0.9))}}
	tool := &staticTool{name: "list_products"}
	agent := newTestAgent(t, llm, domain.AgentConfig{}, tool)

	ctx := domain.ContextWithRequestID(context.Background(), "req-42")
	res := agent.Process(ctx, "list products", nil)

	assert.Equal(t, "req-42", res.RequestID)
	assert.Equal(t, "req-42", tool.lastExec.RequestID)
	assert.Equal(t, "list products", tool.lastExec.Request)
}

type panicRouter struct{}

func (panicRouter) Route(domain.Tier) (domain.LLMProvider, error) { panic("router table corrupted") }

func TestProcessRecoversPanic(t *testing.T) {
	agent := NewAgentCore(AgentDeps{
		Config: domain.AgentConfig{Name: "catalog", FailureThreshold: 2},
		Router: panicRouter{},
		Tools:  newMockTools(&staticTool{name: "list_products"}),
	})

	var res domain.ProcessingResult
	require.NotPanics(t, func() {
		res = agent.Process(context.Background(), "list products", nil)
	})
	assert.False(t, res.Success)
	assert.Equal(t, domain.CodeInternal, res.ErrorCode)
	assert.Contains(t, res.Error, "router table corrupted")
	assert.Equal(t, uint32(1), agent.Breaker().Failures())
}

func TestProcessEmergencyMessages(t *testing.T) {
	assert.Contains(t, emergencyMessage("HELP me"), "browse the catalog")
	assert.Contains(t, emergencyMessage("order status?"), "Status checks")
	assert.Contains(t, emergencyMessage("list products"), "try again")
}

func TestProcessConcurrentRequests(t *testing.T) {
	llm := &mockLLM{replies: []func(context.Context) (string, error){replyWith(decisionJSON("list_products", 0.9))}}
	agent := newTestAgent(t, llm, domain.AgentConfig{}, &staticTool{name: "list_products"})

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := agent.Process(context.Background(), "list products", map[string]any{"i": i})
			assert.True(t, res.Success)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(20), agent.Metrics().Requests)
	assert.Equal(t, 20, agent.Cache().Len())
}

type pingLLM struct {
	mockLLM
	err error
}

func (p *pingLLM) Ping(context.Context) error { return p.err }

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		agent := newTestAgent(t, &mockLLM{}, domain.AgentConfig{}, &staticTool{name: "list_products"})
		h := agent.HealthCheck(context.Background())
		assert.Equal(t, domain.HealthHealthy, h.Status)
		assert.True(t, h.ReasoningServiceReachable)
		assert.Equal(t, resilience.StateClosed, h.CircuitBreaker.State)
		assert.Equal(t, "catalog", h.Agent)
	})

	t.Run("unreachable is degraded", func(t *testing.T) {
		agent := newTestAgent(t, &pingLLM{err: errors.New("connection refused")}, domain.AgentConfig{}, &staticTool{name: "list_products"})
		h := agent.HealthCheck(context.Background())
		assert.Equal(t, domain.HealthDegraded, h.Status)
		assert.False(t, h.ReasoningServiceReachable)
	})

	t.Run("open is unhealthy", func(t *testing.T) {
		llm := &mockLLM{replies: []func(context.Context) (string, error){replyErr(domain.ErrAuthInvalid)}}
		agent := newTestAgent(t, llm, domain.AgentConfig{FailureThreshold: 1, Cooldown: time.Hour}, &staticTool{name: "list_products"})
		agent.Process(context.Background(), "list products", nil)

		h := agent.HealthCheck(context.Background())
		assert.Equal(t, domain.HealthUnhealthy, h.Status)
		assert.False(t, h.ReasoningServiceReachable)
		assert.Equal(t, int64(1), h.Metrics.Errors)
		assert.NotEmpty(t, h.Metrics.LastError)
	})
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes []string
	retries  int
	tools    []string
	states   []string
}

func (r *countingRecorder) ObserveRequest(_, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}
func (r *countingRecorder) CacheHit(string)      {}
func (r *countingRecorder) FallbackParse(string) {}
func (r *countingRecorder) Retry(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries++
}
func (r *countingRecorder) ToolExecution(_, tool, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools = append(r.tools, tool+":"+status)
}
func (r *countingRecorder) CircuitState(agent, state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, agent+":"+state)
}

func TestProcessReportsToRecorder(t *testing.T) {
	llm := &mockLLM{replies: []func(context.Context) (string, error){
		replyErr(domain.ErrRateLimit),
		replyWith(decisionJSON("list_products", 0.9)),
	}}
	rec := &countingRecorder{}
	agent := NewAgentCore(AgentDeps{
		Config:   domain.AgentConfig{Name: "catalog"},
		Router:   &staticRouter{provider: llm},
		Tools:    newMockTools(&staticTool{name: "list_products"}),
		Retry:    fastRetry,
		Recorder: rec,
	})

	agent.Process(context.Background(), "list products", nil)
	agent.Process(context.Background(), "list products", nil)

	assert.Equal(t, []string{OutcomeSuccess, OutcomeCached}, rec.outcomes)
	assert.Equal(t, 1, rec.retries)
	assert.Equal(t, []string{"list_products:ok"}, rec.tools)
	assert.Equal(t, []string{"catalog:closed"}, rec.states)
}

// captureBus records published events synchronously.
type captureBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *captureBus) Publish(_ context.Context, e domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
}
func (b *captureBus) Subscribe(domain.EventType, domain.EventHandler) func() { return func() {} }
func (b *captureBus) SubscribeAll(domain.EventHandler) func()                { return func() {} }
func (b *captureBus) Close()                                                 {}

func (b *captureBus) ofType(t domain.EventType) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Event
	for _, e := range b.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func TestProcessPublishesEvents(t *testing.T) {
	llm := &mockLLM{replies: []func(context.Context) (string, error){
		replyWith(decisionJSON("list_products", 0.9)),
		replyErr(domain.ErrAuthInvalid),
	}}
	bus := &captureBus{}
	agent := NewAgentCore(AgentDeps{
		Config: domain.AgentConfig{Name: "catalog", FailureThreshold: 1, Cooldown: time.Hour},
		Router: &staticRouter{provider: llm},
		Tools:  newMockTools(&staticTool{name: "list_products"}),
		Retry:  fastRetry,
		Events: bus,
	})

	ok := agent.Process(context.Background(), "list products", nil)
	agent.Process(context.Background(), "list products", map[string]any{domain.CtxNoCache: true})

	processed := bus.ofType(domain.EventRequestProcessed)
	require.Len(t, processed, 2)
	assert.Equal(t, "catalog", processed[0].Agent)
	assert.Equal(t, ok.RequestID, processed[0].RequestID)

	var first, second domain.ProcessedPayload
	require.NoError(t, json.Unmarshal(processed[0].Payload, &first))
	require.NoError(t, json.Unmarshal(processed[1].Payload, &second))
	assert.True(t, first.Success)
	assert.Equal(t, "list_products", first.Action)
	assert.False(t, second.Success)
	assert.Equal(t, domain.CodeRetryExhausted, second.ErrorCode)

	circuit := bus.ofType(domain.EventCircuitChanged)
	require.Len(t, circuit, 1)
	var change domain.CircuitPayload
	require.NoError(t, json.Unmarshal(circuit[0].Payload, &change))
	assert.Equal(t, resilience.StateClosed, change.From)
	assert.Equal(t, resilience.StateOpen, change.To)
}
