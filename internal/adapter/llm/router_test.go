package llm

import (
	"errors"
	"testing"

	"storefront-agent/internal/domain"
	"storefront-agent/internal/infra/config"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(replying("openai", "")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(replying("anthropic", "")); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(replying("openai", "")); err == nil {
		t.Error("expected duplicate registration error")
	}

	if _, err := reg.Get("missing"); !errors.Is(err, domain.ErrProviderNotFound) {
		t.Errorf("expected ErrProviderNotFound, got %v", err)
	}
	names := reg.List()
	if len(names) != 2 || names[0] != "anthropic" || names[1] != "openai" {
		t.Errorf("List = %v, want sorted names", names)
	}
}

func TestTierRouterRoute(t *testing.T) {
	reg := NewRegistry()
	fast := replying("groq", "")
	reg.Register(fast)
	fallback := replying("ollama", "")

	router := NewTierRouter(map[domain.Tier]string{
		domain.TierFast:     "groq",
		domain.TierThorough: "default",
	}, reg, fallback)

	p, err := router.Route(domain.TierFast)
	if err != nil || p != fast {
		t.Errorf("Route(fast) = %v, %v", p, err)
	}
	p, err = router.Route(domain.TierThorough)
	if err != nil || p != fallback {
		t.Errorf("Route(thorough) should use the default provider, got %v, %v", p, err)
	}
	p, err = router.Route(domain.Tier("unmapped"))
	if err != nil || p != fallback {
		t.Errorf("unmapped tier should use the default provider, got %v, %v", p, err)
	}
}

func TestTierRouterMissingProvider(t *testing.T) {
	router := NewTierRouter(map[domain.Tier]string{domain.TierFast: "gone"}, NewRegistry(), nil)

	if _, err := router.Route(domain.TierFast); !errors.Is(err, domain.ErrProviderNotFound) {
		t.Errorf("expected ErrProviderNotFound, got %v", err)
	}
	if _, err := router.Route(domain.TierThorough); !errors.Is(err, domain.ErrProviderNotFound) {
		t.Errorf("expected ErrProviderNotFound without a default, got %v", err)
	}
}

func TestTierRouterProvidersDistinct(t *testing.T) {
	reg := NewRegistry()
	def := replying("ollama", "")
	reg.Register(def)
	reg.Register(replying("openai", ""))

	router := NewTierRouter(map[domain.Tier]string{
		domain.TierFast:     "ollama",
		domain.TierThorough: "openai",
	}, reg, def)

	providers := router.Providers()
	if len(providers) != 2 || providers[0].Name() != "ollama" || providers[1].Name() != "openai" {
		t.Errorf("Providers = %v", providers)
	}
}

func TestNewProviderUnknownType(t *testing.T) {
	_, err := NewProvider(config.ProviderConfig{Name: "x", Type: "bedrock"}, nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBuildWithFailoverAndTiers(t *testing.T) {
	cfg := config.LLMConfig{
		DefaultProvider: "ollama",
		Providers: []config.ProviderConfig{
			{Name: "ollama", Type: "ollama", Model: "llama3.2"},
			{Name: "openai", Type: "openai", APIKey: "k", Model: "gpt-4o"},
			{Name: "claude", Type: "anthropic", APIKey: "k", Model: "claude-sonnet-4-5"},
		},
		Failover: config.FailoverConfig{Enabled: true, Fallbacks: []string{"openai"}},
		Tiers:    map[string]string{"thorough": "claude"},
	}

	reg, router, err := Build(cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(reg.List()) != 3 {
		t.Errorf("registry = %v", reg.List())
	}

	fast, err := router.Route(domain.TierFast)
	if err != nil {
		t.Fatalf("Route(fast): %v", err)
	}
	if _, ok := fast.(*FailoverProvider); !ok {
		t.Errorf("default provider should be wrapped for failover, got %T", fast)
	}
	thorough, _ := router.Route(domain.TierThorough)
	if _, ok := thorough.(*AnthropicProvider); !ok {
		t.Errorf("thorough tier should route to the anthropic provider, got %T", thorough)
	}
}

func TestBuildUnknownDefault(t *testing.T) {
	cfg := config.LLMConfig{
		DefaultProvider: "missing",
		Providers:       []config.ProviderConfig{{Name: "ollama", Type: "ollama", Model: "m"}},
	}
	if _, _, err := Build(cfg, nil); !errors.Is(err, domain.ErrProviderNotFound) {
		t.Errorf("expected ErrProviderNotFound, got %v", err)
	}
}
