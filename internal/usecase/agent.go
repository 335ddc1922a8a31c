package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"storefront-agent/internal/domain"
	"storefront-agent/internal/infra/tracer"
	"storefront-agent/internal/usecase/cache"
	"storefront-agent/internal/usecase/resilience"
)

const (
	defaultMaxTokens   = 1024
	healthPingTimeout  = 5 * time.Second
	circuitOpenMessage = "This service is temporarily unavailable. Please try again in a minute."
)

// AgentDeps holds injected dependencies for the agent.
type AgentDeps struct {
	Config   domain.AgentConfig
	Router   domain.ModelRouter
	Tools    domain.ToolExecutor
	Selector *ModelSelector         // optional, nil = default weights
	Prompt   PromptBuilder          // optional, nil = chosen by Config.PromptKind
	Retry    resilience.RetryConfig // Config.MaxRetries and Config.AttemptTimeout override when set
	Logger   *slog.Logger
	Recorder MetricsRecorder // optional, nil = no export
	Events   domain.EventBus // optional, nil = no events
}

// AgentCore processes requests for one specialized agent. It owns the
// agent's circuit breaker, response cache and metrics.
type AgentCore struct {
	cfg        domain.AgentConfig
	router     domain.ModelRouter
	tools      domain.ToolExecutor
	selector   *ModelSelector
	prompt     PromptBuilder
	validator  *ResponseValidator
	dispatcher *ToolDispatcher
	breaker    *resilience.CircuitBreaker
	retrier    *resilience.Retrier
	cache      *cache.Cache
	metrics    *agentMetrics
	recorder   MetricsRecorder
	events     domain.EventBus
	logger     *slog.Logger
	now        func() time.Time // for testing
}

// NewAgentCore creates an agent with the given dependencies.
func NewAgentCore(deps AgentDeps) *AgentCore {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = discardLogger()
	}
	logger = logger.With("agent", cfg.Name)

	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	selector := deps.Selector
	if selector == nil {
		selector = NewModelSelector(DefaultSelectorConfig())
	}
	prompt := deps.Prompt
	if prompt == nil {
		prompt = NewPromptBuilder(cfg.PromptKind)
	}

	retryCfg := deps.Retry
	if cfg.MaxRetries > 0 {
		retryCfg.MaxAttempts = cfg.MaxRetries
	}
	if cfg.AttemptTimeout > 0 {
		retryCfg.AttemptTimeout = cfg.AttemptTimeout
	}
	retrier := resilience.NewRetrier(retryCfg, resilience.NewErrorClassifier(), logger)
	retrier.OnRetry = func(int, error) { recorder.Retry(cfg.Name) }

	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		Name:             cfg.Name,
		FailureThreshold: cfg.FailureThreshold,
		Cooldown:         cfg.Cooldown,
	}, logger, func(name, from, to string) {
		recorder.CircuitState(name, to)
		if deps.Events != nil {
			deps.Events.Publish(context.Background(), domain.NewEvent(domain.EventCircuitChanged, name, "",
				domain.CircuitPayload{From: from, To: to}))
		}
	})
	recorder.CircuitState(cfg.Name, resilience.StateClosed)

	return &AgentCore{
		cfg:        cfg,
		router:     deps.Router,
		tools:      deps.Tools,
		selector:   selector,
		prompt:     prompt,
		validator:  NewResponseValidator(deps.Tools),
		dispatcher: NewToolDispatcher(deps.Tools, logger),
		breaker:    breaker,
		retrier:    retrier,
		cache:      cache.New(cache.Config{Capacity: cfg.CacheCapacity, TTL: cfg.CacheTTL}),
		metrics:    &agentMetrics{},
		recorder:   recorder,
		events:     deps.Events,
		logger:     logger,
		now:        time.Now,
	}
}

// Name returns the agent name.
func (a *AgentCore) Name() string { return a.cfg.Name }

// Config returns the agent configuration.
func (a *AgentCore) Config() domain.AgentConfig { return a.cfg }

// Breaker exposes the agent's circuit breaker for diagnostics.
func (a *AgentCore) Breaker() *resilience.CircuitBreaker { return a.breaker }

// Cache exposes the agent's response cache for diagnostics.
func (a *AgentCore) Cache() *cache.Cache { return a.cache }

// Metrics returns a snapshot of the agent's counters.
func (a *AgentCore) Metrics() domain.MetricsSnapshot { return a.metrics.snapshot() }

// Process runs one request through breaker, cache, reasoning, validation and
// tool dispatch. It never returns an error value and never panics; every
// failure is reported in the result.
func (a *AgentCore) Process(ctx context.Context, request string, reqCtx map[string]any) (result domain.ProcessingResult) {
	start := a.now()
	requestID := domain.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = NewRequestID()
	}
	result = domain.ProcessingResult{Agent: a.cfg.Name, RequestID: requestID, StartedAt: start}
	logger := a.logger.With("request_id", requestID)
	if a.events != nil {
		defer func() { a.publishProcessed(ctx, result) }()
	}

	ctx, span := tracer.StartSpan(ctx, "agent.process",
		trace.WithAttributes(
			tracer.StringAttr("agent.name", a.cfg.Name),
			tracer.StringAttr("request.id", requestID),
		),
	)
	defer span.End()

	var done func(error)
	defer func() {
		if r := recover(); r != nil {
			err := domain.NewDomainError("AgentCore.Process", domain.ErrInternal, fmt.Sprint(r))
			logger.Error("panic while processing request", "panic", r)
			if done != nil {
				done(err)
			}
			tracer.RecordError(span, err)
			result = a.fail(result, err, "Something went wrong while handling your request.", OutcomeFailure)
		}
	}()

	// 1. Circuit check.
	done, err := a.breaker.Allow()
	if err != nil {
		logger.Warn("request rejected, circuit open")
		tracer.RecordError(span, err)
		return a.fail(result, err, circuitOpenMessage, OutcomeRejected)
	}

	// 2. Cache lookup.
	noCache := domain.BoolFlag(reqCtx, domain.CtxNoCache)
	key := cache.Fingerprint(request, reqCtx)
	if !noCache {
		if cached, ok := a.cache.Get(key); ok {
			settle(&done, resilience.ErrNotAttempted)
			cached.Cached = true
			cached.RequestID = requestID
			cached.StartedAt = start
			cached.CompletedAt = a.now()
			a.metrics.recordCacheHit(cached.Duration())
			a.recorder.CacheHit(a.cfg.Name)
			a.recorder.ObserveRequest(a.cfg.Name, OutcomeCached, cached.Duration())
			logger.Debug("cache hit")
			tracer.SetOK(span)
			return cached
		}
	}

	// 3. Model selection.
	tier := a.selector.Select(request, reqCtx)
	result.Tier = tier
	span.SetAttributes(tracer.StringAttr("agent.tier", string(tier)))

	// 4. Reasoning call with retries.
	raw, err := a.reason(ctx, tier, request, reqCtx)
	if err != nil {
		settle(&done, err)
		logger.Error("reasoning service failed", "tier", tier, "error", err)
		tracer.RecordError(span, err)
		return a.fail(result, err, emergencyMessage(request), OutcomeFailure)
	}
	// Tool faults below are not reasoning-service faults.
	settle(&done, nil)

	// 5. Validation with fallback.
	decision := a.validator.Validate(raw, request)
	if decision.Fallback {
		a.metrics.recordFallback()
		a.recorder.FallbackParse(a.cfg.Name)
		logger.Warn("reasoning output failed validation, using fallback",
			"action", decision.Action, "error", decision.ParseError)
	}
	result.Analysis = decision.Analysis
	result.Action = decision.Action
	result.Parameters = decision.Parameters
	result.Confidence = decision.Confidence
	result.Reasoning = decision.Reasoning
	result.Message = decision.HumanMessage
	result.Fallback = decision.Fallback
	result.ParseError = decision.ParseError

	if decision.Action == "" {
		err := domain.NewDomainError("AgentCore.Process", domain.ErrToolNotFound, "agent has no tools registered")
		return a.fail(result, err, "No operations are available for this request.", OutcomeFailure)
	}

	// 6. Tool dispatch.
	outcome := a.dispatcher.Execute(ctx, decision.Action, decision.Parameters, domain.ExecContext{
		Agent:     a.cfg.Name,
		RequestID: requestID,
		Request:   request,
		Values:    reqCtx,
	})
	result.ToolOutcome = &outcome
	a.recorder.ToolExecution(a.cfg.Name, outcome.Tool, string(outcome.Status))

	if !outcome.Succeeded() {
		var cause error = domain.ErrToolFailure
		if outcome.Status == domain.ToolStatusNotFound {
			cause = domain.ErrToolNotFound
		}
		result.Success = false
		result.Error = outcome.Error
		result.ErrorCode = domain.ErrorCodeOf(cause)
		if result.Message == "" {
			result.Message = fmt.Sprintf("The %s operation could not be completed.", outcome.Tool)
		}
		result.CompletedAt = a.now()
		a.metrics.recordError(result.Error, result.Duration(), result.CompletedAt)
		a.recorder.ObserveRequest(a.cfg.Name, OutcomeFailure, result.Duration())
		tracer.RecordError(span, cause)
		return result
	}

	// 7. Success: metrics and cache write.
	result.Success = true
	if result.Message == "" && outcome.Result != nil {
		result.Message = outcome.Result.Content
	}
	result.CompletedAt = a.now()
	a.metrics.recordSuccess(result.Duration())
	a.recorder.ObserveRequest(a.cfg.Name, OutcomeSuccess, result.Duration())
	if !noCache {
		a.cache.Set(key, result)
	}
	logger.Info("request processed",
		"tier", tier,
		"action", result.Action,
		"fallback", result.Fallback,
		"duration", result.Duration(),
	)
	tracer.SetOK(span)
	return result
}

func (a *AgentCore) publishProcessed(ctx context.Context, res domain.ProcessingResult) {
	a.events.Publish(ctx, domain.NewEvent(domain.EventRequestProcessed, a.cfg.Name, res.RequestID, domain.ProcessedPayload{
		Success:    res.Success,
		Action:     res.Action,
		Tier:       res.Tier,
		Cached:     res.Cached,
		Fallback:   res.Fallback,
		ErrorCode:  res.ErrorCode,
		DurationMS: res.Duration().Milliseconds(),
	}))
}

// reason calls the reasoning service for tier through the retrier and
// returns the raw reply text.
func (a *AgentCore) reason(ctx context.Context, tier domain.Tier, request string, reqCtx map[string]any) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "agent.reasoning_call",
		trace.WithAttributes(tracer.StringAttr("agent.tier", string(tier))),
	)
	defer span.End()

	provider, err := a.router.Route(tier)
	if err != nil {
		tracer.RecordError(span, err)
		return "", domain.WrapOp("AgentCore.reason", err)
	}

	req := domain.ChatRequest{
		System: a.prompt.BuildSystemPrompt(a.cfg, a.tools.Schemas(), reqCtx),
		Messages: []domain.Message{{
			Role:      domain.RoleUser,
			Content:   request,
			Timestamp: a.now(),
		}},
		MaxTokens: defaultMaxTokens,
	}

	resp, err := resilience.Run(ctx, a.retrier, func(ctx context.Context) (*domain.ChatResponse, error) {
		return provider.Chat(ctx, req)
	})
	if err != nil {
		tracer.RecordError(span, err)
		return "", err
	}
	span.SetAttributes(tracer.StringAttr("llm.provider", provider.Name()))
	tracer.SetOK(span)
	return resp.Message.Content, nil
}

func (a *AgentCore) fail(res domain.ProcessingResult, err error, message, outcome string) domain.ProcessingResult {
	res.Success = false
	res.Error = err.Error()
	res.ErrorCode = domain.ErrorCodeOf(err)
	res.Message = message
	res.CompletedAt = a.now()
	a.metrics.recordError(res.Error, res.Duration(), res.CompletedAt)
	a.recorder.ObserveRequest(a.cfg.Name, outcome, res.Duration())
	return res
}

// settle reports the breaker outcome once.
func settle(done *func(error), err error) {
	if *done == nil {
		return
	}
	(*done)(err)
	*done = nil
}

// emergencyMessage picks a degraded-mode reply when the reasoning service is
// unreachable.
func emergencyMessage(request string) string {
	lower := strings.ToLower(request)
	switch {
	case strings.Contains(lower, "help"):
		return "I can't reach the assistant service right now. You can still browse the catalog and dashboards; please retry in a few minutes."
	case strings.Contains(lower, "status"):
		return "Status checks are delayed because the assistant service is unreachable. Please retry in a few minutes."
	default:
		return "I couldn't complete that request because the assistant service is unreachable. Please try again shortly."
	}
}

// HealthCheck reports the agent's breaker, metrics and reasoning-service
// reachability.
func (a *AgentCore) HealthCheck(ctx context.Context) domain.Health {
	snap := a.breaker.Snapshot()
	h := domain.Health{
		Agent:          a.cfg.Name,
		Metrics:        a.metrics.snapshot(),
		CircuitBreaker: snap,
	}

	h.ReasoningServiceReachable = snap.State != resilience.StateOpen
	if provider, err := a.router.Route(domain.TierFast); err != nil {
		h.ReasoningServiceReachable = false
	} else if pinger, ok := provider.(domain.Pinger); ok {
		pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
		defer cancel()
		if err := pinger.Ping(pingCtx); err != nil {
			a.logger.Warn("reasoning service ping failed", "error", err)
			h.ReasoningServiceReachable = false
		} else {
			h.ReasoningServiceReachable = true
		}
	}

	switch {
	case snap.State == resilience.StateOpen:
		h.Status = domain.HealthUnhealthy
	case snap.State == resilience.StateHalfOpen || !h.ReasoningServiceReachable:
		h.Status = domain.HealthDegraded
	default:
		h.Status = domain.HealthHealthy
	}
	return h
}
