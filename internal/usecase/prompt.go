package usecase

import (
	"fmt"
	"strings"

	"storefront-agent/internal/domain"
	"storefront-agent/internal/usecase/cache"
)

// PromptBuilder produces the system prompt for one agent specialization.
type PromptBuilder interface {
	BuildSystemPrompt(cfg domain.AgentConfig, tools []domain.ToolSchema, reqCtx map[string]any) string
}

// NewPromptBuilder returns the builder for kind; unknown kinds get the general one.
func NewPromptBuilder(kind string) PromptBuilder {
	switch kind {
	case domain.PromptPayments:
		return PaymentsPrompt{}
	case domain.PromptContent:
		return ContentPrompt{}
	case domain.PromptCatalog:
		return CatalogPrompt{}
	default:
		return GeneralPrompt{}
	}
}

const responseContract = `Respond with a single JSON object and nothing else:
{
  "analysis": "what the user is asking for",
  "action": "<one of the tool names above>",
  "parameters": { "...": "arguments for the tool" },
  "confidence": 0.0-1.0,
  "reasoning": "why this tool fits",
  "humanMessage": "short reply for the user"
}`

// composePrompt assembles the shared prompt skeleton around a role section.
func composePrompt(cfg domain.AgentConfig, role string, rules []string, tools []domain.ToolSchema, reqCtx map[string]any) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are %s, %s.\n", cfg.Name, role)
	if cfg.Specialization != "" {
		fmt.Fprintf(&sb, "Specialization: %s\n", cfg.Specialization)
	}

	if len(rules) > 0 {
		sb.WriteString("\n## Rules\n")
		for _, r := range rules {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
	}

	sb.WriteString("\n## Available Tools\n")
	for _, t := range tools {
		fmt.Fprintf(&sb, "- %s: %s\n", t.Name, t.Description)
		if len(t.Parameters) > 0 {
			fmt.Fprintf(&sb, "  parameters: %s\n", compactJSON(t.Parameters))
		}
	}

	if len(reqCtx) > 0 {
		sb.WriteString("\n## Request Context\n")
		sb.WriteString(cache.CanonicalContext(reqCtx))
		sb.WriteByte('\n')
	}

	sb.WriteString("\n## Response Format\n")
	sb.WriteString(responseContract)
	return sb.String()
}

func compactJSON(raw []byte) string {
	return strings.Join(strings.Fields(string(raw)), " ")
}

// GeneralPrompt serves storefront operations that span several areas.
type GeneralPrompt struct{}

func (GeneralPrompt) BuildSystemPrompt(cfg domain.AgentConfig, tools []domain.ToolSchema, reqCtx map[string]any) string {
	return composePrompt(cfg, "a storefront operations assistant", []string{
		"Pick exactly one tool per request.",
		"Prefer read-only tools when the request is ambiguous.",
		"Report system status when asked about health or outages.",
	}, tools, reqCtx)
}

// PaymentsPrompt serves payment and refund handling.
type PaymentsPrompt struct{}

func (PaymentsPrompt) BuildSystemPrompt(cfg domain.AgentConfig, tools []domain.ToolSchema, reqCtx map[string]any) string {
	return composePrompt(cfg, "the payments specialist of an online store", []string{
		"Amounts are in minor currency units (cents).",
		"Never refund more than the captured amount.",
		"Lower confidence when the payment identifier is missing.",
	}, tools, reqCtx)
}

// ContentPrompt serves page and blog content management.
type ContentPrompt struct{}

func (ContentPrompt) BuildSystemPrompt(cfg domain.AgentConfig, tools []domain.ToolSchema, reqCtx map[string]any) string {
	return composePrompt(cfg, "the content editor of an online store", []string{
		"Pages are addressed by slug.",
		"Drafts must be published explicitly.",
		"Keep titles under 70 characters.",
	}, tools, reqCtx)
}

// CatalogPrompt serves product catalog and inventory management.
type CatalogPrompt struct{}

func (CatalogPrompt) BuildSystemPrompt(cfg domain.AgentConfig, tools []domain.ToolSchema, reqCtx map[string]any) string {
	return composePrompt(cfg, "the catalog manager of an online store", []string{
		"Products are addressed by SKU.",
		"Prices are in minor currency units (cents).",
		"Use sync_inventory for stock reconciliation across systems.",
	}, tools, reqCtx)
}
