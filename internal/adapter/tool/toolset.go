package tool

import (
	"fmt"
	"log/slog"
	"time"

	"storefront-agent/internal/domain"
)

// Toolset names selectable per agent instance.
const (
	ToolsetCatalog  = "catalog"
	ToolsetPayments = "payments"
	ToolsetContent  = "content"
	ToolsetData     = "data"
)

// Stores bundles the persistence each toolset needs.
type Stores struct {
	Catalog  domain.CatalogStore
	Payments domain.PaymentStore
	Content  domain.ContentStore
	Reports  domain.ReportStore
	Now      func() time.Time // optional
}

// Toolset returns the tools of one named toolset.
func Toolset(name string, stores Stores, logger *slog.Logger) ([]domain.Tool, error) {
	switch name {
	case ToolsetCatalog:
		return CatalogTools(stores.Catalog, logger), nil
	case ToolsetPayments:
		return PaymentTools(stores.Payments, logger), nil
	case ToolsetContent:
		return ContentTools(stores.Content, logger), nil
	case ToolsetData:
		return DataTools(stores.Reports, stores.Catalog, logger, stores.Now), nil
	default:
		return nil, domain.NewDomainError("tool.Toolset", domain.ErrInvalidInput, fmt.Sprintf("unknown toolset %q", name))
	}
}

// NewAgentRegistry builds a schema-validating registry holding the named
// toolsets, in the order given.
func NewAgentRegistry(toolsets []string, stores Stores, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry(logger)
	for _, name := range toolsets {
		tools, err := Toolset(name, stores, logger)
		if err != nil {
			return nil, err
		}
		for _, t := range tools {
			if err := reg.Register(t); err != nil {
				return nil, fmt.Errorf("toolset %s: %w", name, err)
			}
		}
	}
	return reg, nil
}
