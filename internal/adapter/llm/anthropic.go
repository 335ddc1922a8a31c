package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/trace"

	"storefront-agent/internal/domain"
	"storefront-agent/internal/infra/config"
	applog "storefront-agent/internal/infra/logger"
	"storefront-agent/internal/infra/tracer"
)

var _ domain.LLMProvider = (*AnthropicProvider)(nil)

const anthropicDefaultMaxTokens = 1024

// AnthropicProvider implements domain.LLMProvider on the Anthropic Messages API.
type AnthropicProvider struct {
	name      string
	model     string
	maxTokens int
	client    anthropic.Client
	logger    *slog.Logger
}

// NewAnthropicProvider creates a provider. SDK retries are disabled; the
// agent's retry executor owns retrying.
func NewAnthropicProvider(cfg config.ProviderConfig, logger *slog.Logger) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(NewHTTPClient(cfg)),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	return &AnthropicProvider{
		name:      cfg.Name,
		model:     cfg.Model,
		maxTokens: maxTokens,
		client:    anthropic.NewClient(opts...),
		logger:    applog.OrDiscard(logger),
	}
}

// Chat implements domain.LLMProvider.
func (p *AnthropicProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if req.Model == "" {
		req.Model = p.model
	}
	if req.MaxTokens <= 0 {
		req.MaxTokens = p.maxTokens
	}

	ctx, span := tracer.StartSpan(ctx, "llm.chat",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
		),
	)
	defer span.End()

	msg, err := p.client.Messages.New(ctx, toAnthropicParams(req))
	if err != nil {
		err = mapAnthropicError(ctx, err)
		tracer.RecordError(span, err)
		return nil, err
	}

	result := fromAnthropicMessage(msg)
	if result.Message.Content == "" {
		err := fmt.Errorf("%w: response has no text content", domain.ErrProviderError)
		tracer.RecordError(span, err)
		return nil, err
	}
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, result)
	return result, nil
}

// Name implements domain.LLMProvider.
func (p *AnthropicProvider) Name() string { return p.name }

func toAnthropicParams(req domain.ChatRequest) anthropic.MessageNewParams {
	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	system := req.System
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case domain.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(block))
		case domain.RoleSystem:
			// The Messages API takes system text out of band.
			system = strings.TrimSpace(system + "\n\n" + m.Content)
		default:
			msgs = append(msgs, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	return params
}

func fromAnthropicMessage(msg *anthropic.Message) *domain.ChatResponse {
	var text strings.Builder
	for i := range msg.Content {
		if msg.Content[i].Type == "text" {
			text.WriteString(msg.Content[i].AsText().Text)
		}
	}
	now := time.Now()
	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return &domain.ChatResponse{
		ID:    msg.ID,
		Model: string(msg.Model),
		Message: domain.Message{
			Role:      domain.RoleAssistant,
			Content:   text.String(),
			Timestamp: now,
		},
		Usage: domain.Usage{
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
		},
		CreatedAt: now,
	}
}

// mapAnthropicError converts SDK errors to the same domain errors the raw
// HTTP providers produce.
func mapAnthropicError(ctx context.Context, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return mapHTTPError(apiErr.StatusCode, []byte(apiErr.Error()))
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderError, err)
}
