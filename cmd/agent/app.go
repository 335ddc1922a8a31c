package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"storefront-agent/internal/adapter/llm"
	"storefront-agent/internal/adapter/store"
	"storefront-agent/internal/adapter/tool"
	"storefront-agent/internal/domain"
	"storefront-agent/internal/infra/config"
	"storefront-agent/internal/infra/metrics"
	"storefront-agent/internal/usecase"
	"storefront-agent/internal/usecase/eventbus"
	"storefront-agent/internal/usecase/multiagent"
	"storefront-agent/internal/usecase/resilience"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	store    *store.SQLiteStore
	llm      *llm.TierRouter
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	events   *eventbus.Bus
	router   *multiagent.AgentRouter
}

// buildApp opens the store, builds the reasoning providers and every
// configured agent instance.
func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.MustNew(reg)

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if cfg.Store.Seed {
		seeded, err := st.Seed(ctx)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("seed store: %w", err)
		}
		if seeded {
			log.Info("store seeded with demo data", "path", cfg.Store.Path)
		}
	}

	_, tiers, err := llm.Build(cfg.LLM, log)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("llm: %w", err)
	}

	stores := tool.Stores{Catalog: st, Payments: st, Content: st, Reports: st}
	selector := usecase.NewModelSelector(selectorConfig(cfg.Selector))
	retry := resilience.RetryConfig{
		MaxAttempts:    cfg.Resilience.MaxAttempts,
		BaseDelay:      cfg.Resilience.BaseDelay,
		MaxDelay:       cfg.Resilience.MaxDelay,
		Jitter:         cfg.Resilience.Jitter,
		AttemptTimeout: cfg.Resilience.AttemptTimeout,
	}

	bus := eventbus.New(log)
	fail := func(err error) (*app, error) {
		bus.Close()
		st.Close()
		return nil, err
	}

	agents := multiagent.NewRegistry(log)
	for _, inst := range cfg.Agents.Instances {
		toolsets := inst.Tools
		err := agents.Register(agentConfig(inst, cfg), func(ac domain.AgentConfig) (domain.Agent, error) {
			tools, err := tool.NewAgentRegistry(toolsets, stores, log)
			if err != nil {
				return nil, err
			}
			return usecase.NewAgentCore(usecase.AgentDeps{
				Config:   ac,
				Router:   tiers,
				Tools:    tools,
				Selector: selector,
				Retry:    retry,
				Logger:   log,
				Recorder: m,
				Events:   bus,
			}), nil
		})
		if err != nil {
			return fail(fmt.Errorf("register agent %s: %w", inst.Name, err))
		}
	}
	built, err := agents.Build()
	if err != nil {
		return fail(fmt.Errorf("build agents: %w", err))
	}

	router, err := multiagent.NewAgentRouter(built, multiagent.RouterConfig{
		DefaultAgent: cfg.Router.DefaultAgent,
		Threshold:    cfg.Router.Threshold,
		Events:       bus,
	}, log, m)
	if err != nil {
		return fail(fmt.Errorf("agent router: %w", err))
	}

	return &app{
		cfg:      cfg,
		log:      log,
		store:    st,
		llm:      tiers,
		registry: reg,
		metrics:  m,
		events:   bus,
		router:   router,
	}, nil
}

// Close drains pending events before closing the store.
func (a *app) Close() error {
	a.events.Close()
	return a.store.Close()
}

// agentConfig fills the zero-valued resilience and cache fields of inst
// from the global defaults.
func agentConfig(inst config.AgentInstanceConfig, cfg *config.Config) domain.AgentConfig {
	ac := inst.AgentConfig
	if ac.MaxRetries == 0 {
		ac.MaxRetries = cfg.Resilience.MaxAttempts
	}
	if ac.AttemptTimeout == 0 {
		ac.AttemptTimeout = cfg.Resilience.AttemptTimeout
	}
	if ac.FailureThreshold == 0 {
		ac.FailureThreshold = cfg.Resilience.FailureThreshold
	}
	if ac.Cooldown == 0 {
		ac.Cooldown = cfg.Resilience.Cooldown
	}
	if ac.CacheTTL == 0 {
		ac.CacheTTL = cfg.Cache.TTL
	}
	if ac.CacheCapacity == 0 {
		ac.CacheCapacity = cfg.Cache.Capacity
	}
	if ac.PromptKind == "" {
		ac.PromptKind = domain.PromptGeneral
	}
	return ac
}

func selectorConfig(c config.SelectorConfig) usecase.SelectorConfig {
	return usecase.SelectorConfig{
		BaseScore:         c.BaseScore,
		PatternIncrement:  c.PatternIncrement,
		RichContextKeys:   c.RichContextKeys,
		RichContextBonus:  c.RichContextBonus,
		MultiSystemBonus:  c.MultiSystemBonus,
		CriticalBonus:     c.CriticalBonus,
		ThoroughThreshold: c.ThoroughThreshold,
		UrgentOverride:    c.UrgentOverride,
	}
}
