package multiagent

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"storefront-agent/internal/domain"
	applog "storefront-agent/internal/infra/logger"
)

// Factory builds one agent instance from its configuration.
type Factory func(cfg domain.AgentConfig) (domain.Agent, error)

type registration struct {
	cfg     domain.AgentConfig
	factory Factory
}

// Registry maps agent names to factories. It is filled explicitly at startup
// and instantiates each agent once on Build.
type Registry struct {
	mu      sync.Mutex
	entries map[string]registration
	built   map[string]domain.Agent
	logger  *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = applog.Discard()
	}
	return &Registry{
		entries: make(map[string]registration),
		logger:  logger,
	}
}

// Register adds a factory for cfg.Name. Returns ErrAgentDuplicate if the name
// is taken and ErrInvalidInput if it is empty or the registry was already built.
func (r *Registry) Register(cfg domain.AgentConfig, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cfg.Name == "" || factory == nil {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, "agent name and factory are required")
	}
	if r.built != nil {
		return domain.NewDomainError("Registry.Register", domain.ErrInvalidInput, "registry already built")
	}
	if _, exists := r.entries[cfg.Name]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrAgentDuplicate, cfg.Name)
	}
	r.entries[cfg.Name] = registration{cfg: cfg, factory: factory}
	r.logger.Info("agent registered", "agent", cfg.Name, "specialization", cfg.Specialization)
	return nil
}

// Names returns the registered agent names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build instantiates every registered agent. Later calls return the same
// instances. The returned map is a copy owned by the caller.
func (r *Registry) Build() (map[string]domain.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.built == nil {
		built := make(map[string]domain.Agent, len(r.entries))
		for name, e := range r.entries {
			agent, err := e.factory(e.cfg)
			if err != nil {
				return nil, fmt.Errorf("build agent %q: %w", name, err)
			}
			built[name] = agent
		}
		r.built = built
		r.logger.Info("agents built", "count", len(built))
	}

	out := make(map[string]domain.Agent, len(r.built))
	for name, agent := range r.built {
		out[name] = agent
	}
	return out, nil
}
