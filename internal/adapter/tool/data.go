package tool

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"storefront-agent/internal/domain"
)

type analyzeSalesParams struct {
	Days int `json:"days"`
	Top  int `json:"top"`
}

type syncInventoryParams struct {
	Levels    map[string]int `json:"levels"`
	Threshold int            `json:"threshold"`
}

const (
	defaultSalesDays     = 30
	defaultTopProducts   = 5
	defaultLowStockLevel = 5
)

// DataTools returns the reporting and maintenance tools. The clock is
// injectable for tests; nil means time.Now.
func DataTools(reports domain.ReportStore, catalog domain.CatalogStore, logger *slog.Logger, now func() time.Time) []domain.Tool {
	if now == nil {
		now = time.Now
	}
	return []domain.Tool{
		NewFuncTool("system_status", "Report store reachability and record counts.", `{
			"type": "object",
			"properties": {}
		}`, logger, func(ctx context.Context, _ struct{}) (any, error) {
			if err := reports.Ping(ctx); err != nil {
				return nil, err
			}
			stats, err := reports.Stats(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{"store": "ok", "stats": stats, "checked_at": now().UTC()}, nil
		}),

		NewFuncTool("analyze_sales", "Summarize revenue, order counts and top products over recent days.", `{
			"type": "object",
			"properties": {
				"days": {"type": "integer", "minimum": 1, "maximum": 365},
				"top": {"type": "integer", "minimum": 1, "maximum": 50}
			}
		}`, logger, func(ctx context.Context, p analyzeSalesParams) (any, error) {
			if p.Days <= 0 {
				p.Days = defaultSalesDays
			}
			if p.Top <= 0 {
				p.Top = defaultTopProducts
			}
			since := now().Add(-time.Duration(p.Days) * 24 * time.Hour)
			report, err := reports.SalesReport(ctx, since, p.Top)
			if err != nil {
				return nil, err
			}
			avg := int64(0)
			if completed := report.ByStatus[domain.PaymentCompleted]; completed > 0 {
				avg = report.RevenueCents / int64(completed)
			}
			return map[string]any{
				"days":                p.Days,
				"report":              report,
				"average_order_cents": avg,
			}, nil
		}),

		NewFuncTool("sync_inventory", "Set stock levels by SKU, then report products below the low-stock threshold.", `{
			"type": "object",
			"properties": {
				"levels": {"type": "object", "additionalProperties": {"type": "integer", "minimum": 0}},
				"threshold": {"type": "integer", "minimum": 1}
			}
		}`, logger, func(ctx context.Context, p syncInventoryParams) (any, error) {
			var unknown []string
			if len(p.Levels) > 0 {
				var err error
				if unknown, err = catalog.SetStock(ctx, p.Levels); err != nil {
					return nil, err
				}
				sort.Strings(unknown)
			}
			if p.Threshold <= 0 {
				p.Threshold = defaultLowStockLevel
			}
			low, err := catalog.ListProducts(ctx, domain.ProductFilter{LowStock: p.Threshold})
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"updated":      len(p.Levels) - len(unknown),
				"unknown_skus": unknown,
				"low_stock":    low,
			}, nil
		}),
	}
}
