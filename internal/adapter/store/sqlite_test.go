package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-agent/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenFileCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.Ping(context.Background()))
}

func TestProductLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &domain.Product{SKU: "MUG-01", Name: "Mug", Category: "home", PriceCents: 1500, Stock: 10}
	require.NoError(t, s.CreateProduct(ctx, p))
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "USD", p.Currency)

	got, err := s.GetProduct(ctx, "MUG-01")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	got.PriceCents = 1200
	require.NoError(t, s.UpdateProduct(ctx, got))
	again, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1200), again.PriceCents)

	require.NoError(t, s.DeleteProduct(ctx, p.ID))
	_, err = s.GetProduct(ctx, p.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.True(t, errors.Is(s.DeleteProduct(ctx, p.ID), domain.ErrNotFound))
}

func TestCreateProductDuplicateSKU(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateProduct(ctx, &domain.Product{SKU: "A", Name: "a", PriceCents: 1}))
	err := s.CreateProduct(ctx, &domain.Product{SKU: "A", Name: "b", PriceCents: 1})
	assert.True(t, errors.Is(err, domain.ErrDuplicate), "got %v", err)
}

func TestListProductsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Seed(ctx)
	require.NoError(t, err)

	apparel, err := s.ListProducts(ctx, domain.ProductFilter{Category: "apparel"})
	require.NoError(t, err)
	assert.Len(t, apparel, 2)

	low, err := s.ListProducts(ctx, domain.ProductFilter{LowStock: 5})
	require.NoError(t, err)
	assert.Len(t, low, 2)

	mugs, err := s.ListProducts(ctx, domain.ProductFilter{Query: "mug"})
	require.NoError(t, err)
	require.Len(t, mugs, 1)
	assert.Equal(t, "MUG-CER-01", mugs[0].SKU)

	limited, err := s.ListProducts(ctx, domain.ProductFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSetStock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Seed(ctx)
	require.NoError(t, err)

	unknown, err := s.SetStock(ctx, map[string]int{"CAP-NVY-01": 25, "NOPE": 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"NOPE"}, unknown)

	navyCap, err := s.GetProduct(ctx, "CAP-NVY-01")
	require.NoError(t, err)
	assert.Equal(t, 25, navyCap.Stock)
}

func TestPaymentRefund(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &domain.Payment{OrderRef: "ORD-1", AmountCents: 999}
	require.NoError(t, s.CreatePayment(ctx, p))
	assert.Equal(t, domain.PaymentCompleted, p.Status)

	refunded, err := s.RefundPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundedAt)

	stored, err := s.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRefunded, stored.Status)
	assert.NotNil(t, stored.RefundedAt)

	_, err = s.RefundPayment(ctx, p.ID)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput), "second refund: %v", err)

	_, err = s.RefundPayment(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound), "missing: %v", err)
}

func TestListPaymentsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Seed(ctx)
	require.NoError(t, err)

	pending, err := s.ListPayments(ctx, domain.PaymentFilter{Status: domain.PaymentPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ORD-1003", pending[0].OrderRef)

	byOrder, err := s.ListPayments(ctx, domain.PaymentFilter{OrderRef: "ORD-1001"})
	require.NoError(t, err)
	require.Len(t, byOrder, 1)
	assert.Equal(t, 2, byOrder[0].Quantity)
}

func TestContentPublish(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &domain.ContentPage{Slug: "about", Title: "About", Body: "We sell mugs."}
	require.NoError(t, s.CreateContent(ctx, c))
	assert.Equal(t, domain.ContentDraft, c.Status)

	published, err := s.PublishContent(ctx, "about")
	require.NoError(t, err)
	assert.Equal(t, domain.ContentPublished, published.Status)
	require.NotNil(t, published.PublishedAt)
	first := *published.PublishedAt

	s.now = func() time.Time { return first.Add(time.Hour) }
	again, err := s.PublishContent(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, again.PublishedAt.Equal(first), "publication time should not move")

	drafts, err := s.ListContent(ctx, domain.ContentDraft)
	require.NoError(t, err)
	assert.Empty(t, drafts)

	c.Title = "About Us"
	require.NoError(t, s.UpdateContent(ctx, c))
	got, err := s.GetContent(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "About Us", got.Title)
	assert.Equal(t, domain.ContentPublished, got.Status)

	require.NoError(t, s.DeleteContent(ctx, "about"))
	_, err = s.GetContent(ctx, "about")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSalesReportAndStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seeded, err := s.Seed(ctx)
	require.NoError(t, err)
	require.True(t, seeded)

	report, err := s.SalesReport(ctx, time.Now().Add(-24*time.Hour), 5)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Orders)
	assert.Equal(t, int64(6300), report.RevenueCents)
	assert.Equal(t, 1, report.ByStatus[domain.PaymentPending])
	require.Len(t, report.TopProducts, 2)
	assert.Equal(t, "Classic Tee (Black, M)", report.TopProducts[0].Name)
	assert.Equal(t, 2, report.TopProducts[0].Units)

	future, err := s.SalesReport(ctx, time.Now().Add(time.Hour), 5)
	require.NoError(t, err)
	assert.Zero(t, future.Orders)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StoreStats{
		Products: 4, OutOfStock: 1, Payments: 3, PendingPayments: 1, Pages: 2, PublishedPages: 1,
	}, *stats)
}

func TestSeedIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Seed(ctx)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := s.Seed(ctx)
	require.NoError(t, err)
	assert.False(t, second)
}

func TestErrorCodesNameTheEntity(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetProduct(ctx, "missing")
	assert.Equal(t, domain.CodeProductNotFound, domain.ErrorCodeOf(err))

	_, err = s.GetPayment(ctx, "missing")
	assert.Equal(t, domain.CodePaymentNotFound, domain.ErrorCodeOf(err))

	err = s.DeleteContent(ctx, "missing")
	assert.Equal(t, domain.CodePageNotFound, domain.ErrorCodeOf(err))

	require.NoError(t, s.CreateContent(ctx, &domain.ContentPage{Slug: "faq", Title: "FAQ"}))
	err = s.CreateContent(ctx, &domain.ContentPage{Slug: "faq", Title: "FAQ again"})
	assert.Equal(t, domain.CodePageExists, domain.ErrorCodeOf(err))
}
