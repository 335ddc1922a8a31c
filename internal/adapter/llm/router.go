package llm

import (
	"fmt"

	"storefront-agent/internal/domain"
)

var _ domain.ModelRouter = (*TierRouter)(nil)

// TierRouter maps reasoning tiers to concrete providers.
// It implements domain.ModelRouter.
type TierRouter struct {
	mapping  map[domain.Tier]string // tier → provider name
	registry *Registry
	fallback domain.LLMProvider
}

// NewTierRouter creates a router from a mapping and a provider registry.
// The fallback serves tiers that are unmapped or mapped to "default".
func NewTierRouter(mapping map[domain.Tier]string, registry *Registry, fallback domain.LLMProvider) *TierRouter {
	return &TierRouter{
		mapping:  mapping,
		registry: registry,
		fallback: fallback,
	}
}

// Route resolves a tier to a provider.
func (r *TierRouter) Route(tier domain.Tier) (domain.LLMProvider, error) {
	name := r.mapping[tier]
	if name == "" || name == "default" {
		if r.fallback == nil {
			return nil, domain.NewDomainError("TierRouter.Route", domain.ErrProviderNotFound,
				fmt.Sprintf("tier %q has no provider and no default is configured", tier))
		}
		return r.fallback, nil
	}

	provider, err := r.registry.Get(name)
	if err != nil {
		return nil, fmt.Errorf("tier %q: %w", tier, err)
	}
	return provider, nil
}

// Providers returns the distinct providers reachable through the router,
// default first.
func (r *TierRouter) Providers() []domain.LLMProvider {
	var out []domain.LLMProvider
	seen := make(map[string]bool)
	add := func(p domain.LLMProvider) {
		if p != nil && !seen[p.Name()] {
			seen[p.Name()] = true
			out = append(out, p)
		}
	}
	add(r.fallback)
	for _, tier := range []domain.Tier{domain.TierFast, domain.TierThorough} {
		if p, err := r.Route(tier); err == nil {
			add(p)
		}
	}
	return out
}
