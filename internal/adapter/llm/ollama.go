package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"storefront-agent/internal/domain"
	"storefront-agent/internal/infra/config"
	applog "storefront-agent/internal/infra/logger"
)

var (
	_ domain.LLMProvider = (*OllamaProvider)(nil)
	_ domain.Pinger      = (*OllamaProvider)(nil)
)

// Default Ollama timeouts: short connect (local), long response (model loading).
const (
	ollamaDefaultConnTimeout = 5 * time.Second
	ollamaDefaultRespTimeout = 300 * time.Second
)

// OllamaProvider wraps OpenAIProvider to work with a local Ollama server.
// Chat goes through Ollama's OpenAI-compatible /v1 endpoint; model listing
// and reachability checks use the native API.
type OllamaProvider struct {
	inner   *OpenAIProvider
	baseURL string // native API base, without /v1
	client  *http.Client
	logger  *slog.Logger
}

// OllamaModel describes a locally available Ollama model.
type OllamaModel struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}

// NewOllamaProvider creates an Ollama provider.
func NewOllamaProvider(cfg config.ProviderConfig, logger *slog.Logger) *OllamaProvider {
	ollamaCfg := cfg
	if ollamaCfg.ConnTimeout == 0 {
		ollamaCfg.ConnTimeout = ollamaDefaultConnTimeout
	}
	if ollamaCfg.RespTimeout == 0 {
		ollamaCfg.RespTimeout = ollamaDefaultRespTimeout
	}
	client := NewHTTPClient(ollamaCfg)

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	logger = applog.OrDiscard(logger)

	return &OllamaProvider{
		inner: &OpenAIProvider{
			name:      cfg.Name,
			model:     cfg.Model,
			baseURL:   baseURL + "/v1",
			maxTokens: cfg.MaxTokens,
			client:    client,
			logger:    logger,
		},
		baseURL: baseURL,
		client:  client,
		logger:  logger,
	}
}

// Chat implements domain.LLMProvider.
func (p *OllamaProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return p.inner.Chat(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *OllamaProvider) Name() string { return p.inner.Name() }

// ListModels returns the locally available models.
func (p *OllamaProvider) ListModels(ctx context.Context) ([]OllamaModel, error) {
	body, err := doGetRequest(ctx, p.client, p.baseURL+"/api/tags")
	if err != nil {
		return nil, err
	}
	var resp struct {
		Models []OllamaModel `json:"models"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return resp.Models, nil
}

// Ping implements domain.Pinger. It succeeds when the server answers and
// the configured model is pulled.
func (p *OllamaProvider) Ping(ctx context.Context) error {
	models, err := p.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("ollama at %s: %w", p.baseURL, err)
	}
	want := p.inner.model
	for _, m := range models {
		if m.Name == want || strings.TrimSuffix(m.Name, ":latest") == want {
			return nil
		}
	}
	return domain.NewDomainError("OllamaProvider.Ping", domain.ErrProviderError,
		fmt.Sprintf("model %q is not pulled", want))
}
