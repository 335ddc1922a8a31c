package store

import (
	"context"
	"fmt"

	"storefront-agent/internal/domain"
)

// Seed fills an empty store with a small demo catalog, payments and pages.
// It returns false without writing when products already exist.
func (s *SQLiteStore) Seed(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products").Scan(&n); err != nil {
		return false, storeErr(subStore, "SQLiteStore.Seed", err)
	}
	if n > 0 {
		return false, nil
	}

	products := []domain.Product{
		{SKU: "TEE-BLK-M", Name: "Classic Tee (Black, M)", Category: "apparel", PriceCents: 2400, Stock: 42},
		{SKU: "TEE-WHT-L", Name: "Classic Tee (White, L)", Category: "apparel", PriceCents: 2400, Stock: 3},
		{SKU: "MUG-CER-01", Name: "Ceramic Mug", Category: "home", PriceCents: 1500, Stock: 120},
		{SKU: "CAP-NVY-01", Name: "Navy Cap", Category: "accessories", PriceCents: 1900, Stock: 0},
	}
	for i := range products {
		if err := s.CreateProduct(ctx, &products[i]); err != nil {
			return false, fmt.Errorf("seed product %s: %w", products[i].SKU, err)
		}
	}

	payments := []domain.Payment{
		{OrderRef: "ORD-1001", ProductID: products[0].ID, Quantity: 2, AmountCents: 4800, Status: domain.PaymentCompleted},
		{OrderRef: "ORD-1002", ProductID: products[2].ID, Quantity: 1, AmountCents: 1500, Status: domain.PaymentCompleted},
		{OrderRef: "ORD-1003", ProductID: products[3].ID, Quantity: 1, AmountCents: 1900, Status: domain.PaymentPending},
	}
	for i := range payments {
		if err := s.CreatePayment(ctx, &payments[i]); err != nil {
			return false, fmt.Errorf("seed payment %s: %w", payments[i].OrderRef, err)
		}
	}

	pages := []domain.ContentPage{
		{Slug: "shipping-policy", Title: "Shipping Policy", Body: "Orders ship within two business days."},
		{Slug: "summer-sale", Title: "Summer Sale", Body: "Twenty percent off apparel this week."},
	}
	for i := range pages {
		if err := s.CreateContent(ctx, &pages[i]); err != nil {
			return false, fmt.Errorf("seed page %s: %w", pages[i].Slug, err)
		}
	}
	if _, err := s.PublishContent(ctx, pages[0].ID); err != nil {
		return false, fmt.Errorf("seed publish: %w", err)
	}
	return true, nil
}
