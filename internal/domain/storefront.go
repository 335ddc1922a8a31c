package domain

import (
	"context"
	"time"
)

// Product is a catalog item.
type Product struct {
	ID          string    `json:"id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	PriceCents  int64     `json:"price_cents"`
	Currency    string    `json:"currency"`
	Stock       int       `json:"stock"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProductFilter narrows catalog listings. Zero values mean "any".
type ProductFilter struct {
	Category string
	Query    string // substring match on name or SKU
	LowStock int    // when > 0, only products with stock below this level
	Limit    int
}

// Payment statuses.
const (
	PaymentPending   = "pending"
	PaymentCompleted = "completed"
	PaymentRefunded  = "refunded"
	PaymentFailed    = "failed"
)

// Payment is a recorded storefront payment.
type Payment struct {
	ID          string     `json:"id"`
	OrderRef    string     `json:"order_ref"`
	ProductID   string     `json:"product_id,omitempty"`
	Quantity    int        `json:"quantity"`
	AmountCents int64      `json:"amount_cents"`
	Currency    string     `json:"currency"`
	Method      string     `json:"method"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty"`
}

// PaymentFilter narrows payment listings. Zero values mean "any".
type PaymentFilter struct {
	Status   string
	OrderRef string
	Limit    int
}

// Content statuses.
const (
	ContentDraft     = "draft"
	ContentPublished = "published"
)

// ContentPage is a storefront page or article.
type ContentPage struct {
	ID          string     `json:"id"`
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Status      string     `json:"status"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ProductSales is one product's line in a sales report.
type ProductSales struct {
	ProductID    string `json:"product_id"`
	Name         string `json:"name"`
	Units        int    `json:"units"`
	RevenueCents int64  `json:"revenue_cents"`
}

// SalesReport aggregates payments over a window.
type SalesReport struct {
	Since         time.Time      `json:"since"`
	Orders        int            `json:"orders"`
	RevenueCents  int64          `json:"revenue_cents"`
	RefundedCents int64          `json:"refunded_cents"`
	ByStatus      map[string]int `json:"by_status"`
	TopProducts   []ProductSales `json:"top_products"`
}

// StoreStats summarizes the storefront database.
type StoreStats struct {
	Products        int `json:"products"`
	OutOfStock      int `json:"out_of_stock"`
	Payments        int `json:"payments"`
	PendingPayments int `json:"pending_payments"`
	Pages           int `json:"pages"`
	PublishedPages  int `json:"published_pages"`
}

// CatalogStore persists products.
type CatalogStore interface {
	ListProducts(ctx context.Context, f ProductFilter) ([]Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
	CreateProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p *Product) error
	DeleteProduct(ctx context.Context, id string) error
	// SetStock sets absolute stock levels keyed by SKU and returns the SKUs
	// that matched no product.
	SetStock(ctx context.Context, levels map[string]int) ([]string, error)
}

// PaymentStore persists payments.
type PaymentStore interface {
	ListPayments(ctx context.Context, f PaymentFilter) ([]Payment, error)
	GetPayment(ctx context.Context, id string) (*Payment, error)
	CreatePayment(ctx context.Context, p *Payment) error
	RefundPayment(ctx context.Context, id string) (*Payment, error)
}

// ContentStore persists storefront pages.
type ContentStore interface {
	ListContent(ctx context.Context, status string) ([]ContentPage, error)
	GetContent(ctx context.Context, idOrSlug string) (*ContentPage, error)
	CreateContent(ctx context.Context, c *ContentPage) error
	UpdateContent(ctx context.Context, c *ContentPage) error
	DeleteContent(ctx context.Context, id string) error
	PublishContent(ctx context.Context, id string) (*ContentPage, error)
}

// ReportStore answers aggregate queries.
type ReportStore interface {
	SalesReport(ctx context.Context, since time.Time, top int) (*SalesReport, error)
	Stats(ctx context.Context) (*StoreStats, error)
	Ping(ctx context.Context) error
}
