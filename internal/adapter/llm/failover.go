package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"storefront-agent/internal/domain"
	applog "storefront-agent/internal/infra/logger"
)

var (
	_ domain.LLMProvider = (*FailoverProvider)(nil)
	_ domain.Pinger      = (*FailoverProvider)(nil)
)

// FailoverProvider wraps a primary provider with fallback providers.
// If the primary fails, it tries each fallback in order.
type FailoverProvider struct {
	primary   domain.LLMProvider
	fallbacks []domain.LLMProvider
	logger    *slog.Logger
}

// NewFailoverProvider creates a failover-capable provider.
func NewFailoverProvider(primary domain.LLMProvider, fallbacks []domain.LLMProvider, logger *slog.Logger) *FailoverProvider {
	return &FailoverProvider{
		primary:   primary,
		fallbacks: fallbacks,
		logger:    applog.OrDiscard(logger),
	}
}

// Chat tries the primary provider first, then each fallback on failure.
// Fallbacks are skipped once ctx is done. The returned error joins every
// provider failure, so errors.Is matches any of them.
func (f *FailoverProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := f.primary.Chat(ctx, req)
	if err == nil {
		return resp, nil
	}
	f.logger.Warn("primary provider failed, trying fallbacks",
		"primary", f.primary.Name(), "error", err)

	errs := []error{fmt.Errorf("%s: %w", f.primary.Name(), err)}
	for _, fb := range f.fallbacks {
		if ctx.Err() != nil {
			break
		}
		resp, err = fb.Chat(ctx, req)
		if err == nil {
			f.logger.Info("failover succeeded", "provider", fb.Name())
			return resp, nil
		}
		f.logger.Warn("fallback provider failed", "provider", fb.Name(), "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", fb.Name(), err))
	}
	return nil, fmt.Errorf("all providers failed: %w", errors.Join(errs...))
}

// Ping reports success if any wrapped provider that supports Ping answers.
// Providers without Ping count as reachable.
func (f *FailoverProvider) Ping(ctx context.Context) error {
	var errs []error
	for _, p := range append([]domain.LLMProvider{f.primary}, f.fallbacks...) {
		pinger, ok := p.(domain.Pinger)
		if !ok {
			return nil
		}
		err := pinger.Ping(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
	}
	return errors.Join(errs...)
}

// Name returns a composite name.
func (f *FailoverProvider) Name() string {
	return f.primary.Name() + "+failover"
}
