// Package llm adapts reasoning-service backends to domain.LLMProvider.
package llm

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"storefront-agent/internal/domain"
	"storefront-agent/internal/infra/config"
)

// Registry holds named reasoning-service providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.LLMProvider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]domain.LLMProvider),
	}
}

// Register adds a provider. Returns error if name already registered.
func (r *Registry) Register(provider domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}
	r.providers[name] = provider
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrProviderNotFound, name)
	}
	return p, nil
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewProvider constructs the provider described by cfg.
func NewProvider(cfg config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	switch cfg.Type {
	case "openai":
		return NewOpenAIProvider(cfg, logger), nil
	case "anthropic":
		return NewAnthropicProvider(cfg, logger), nil
	case "ollama":
		return NewOllamaProvider(cfg, logger), nil
	default:
		return nil, domain.NewDomainError("llm.NewProvider", domain.ErrInvalidInput,
			fmt.Sprintf("provider %q: unknown type %q", cfg.Name, cfg.Type))
	}
}

// Build creates a registry with every configured provider and returns the
// tier router over it. With failover enabled, the default provider is
// wrapped so it falls back to the configured providers in order.
func Build(cfg config.LLMConfig, logger *slog.Logger) (*Registry, *TierRouter, error) {
	reg := NewRegistry()
	for _, pc := range cfg.Providers {
		p, err := NewProvider(pc, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := reg.Register(p); err != nil {
			return nil, nil, err
		}
	}

	primary, err := reg.Get(cfg.DefaultProvider)
	if err != nil {
		return nil, nil, fmt.Errorf("default provider: %w", err)
	}
	if cfg.Failover.Enabled {
		fallbacks := make([]domain.LLMProvider, 0, len(cfg.Failover.Fallbacks))
		for _, name := range cfg.Failover.Fallbacks {
			fb, err := reg.Get(name)
			if err != nil {
				return nil, nil, fmt.Errorf("failover: %w", err)
			}
			fallbacks = append(fallbacks, fb)
		}
		primary = NewFailoverProvider(primary, fallbacks, logger)
	}

	tiers := make(map[domain.Tier]string, len(cfg.Tiers))
	for tier, name := range cfg.Tiers {
		tiers[domain.Tier(tier)] = name
	}
	return reg, NewTierRouter(tiers, reg, primary), nil
}
