package domain

import "context"

// LLMProvider is the interface for any reasoning-service backend.
type LLMProvider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// Name returns the provider's identifier (e.g., "openai", "anthropic").
	Name() string
}

// Pinger is optionally implemented by providers that can cheaply check reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ModelRouter picks the provider that serves a reasoning tier.
type ModelRouter interface {
	Route(tier Tier) (LLMProvider, error)
}
