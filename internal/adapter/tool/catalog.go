package tool

import (
	"context"
	"log/slog"

	"storefront-agent/internal/domain"
)

type listProductsParams struct {
	Category string `json:"category"`
	Query    string `json:"query"`
	LowStock int    `json:"low_stock"`
	Limit    int    `json:"limit"`
}

type createProductParams struct {
	SKU         string  `json:"sku"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Currency    string  `json:"currency"`
	Stock       int     `json:"stock"`
}

type updateProductParams struct {
	ID          string   `json:"id"`
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Category    *string  `json:"category"`
	Price       *float64 `json:"price"`
	Stock       *int     `json:"stock"`
}

type idRef struct {
	ID string `json:"id"`
}

// CatalogTools returns the product catalog tools.
func CatalogTools(store domain.CatalogStore, logger *slog.Logger) []domain.Tool {
	return []domain.Tool{
		NewFuncTool("list_products", "List catalog products, optionally filtered by category, text or low stock.", `{
			"type": "object",
			"properties": {
				"category": {"type": "string"},
				"query": {"type": "string", "description": "substring of name or SKU"},
				"low_stock": {"type": "integer", "minimum": 0, "description": "only products with stock below this"},
				"limit": {"type": "integer", "minimum": 0, "maximum": 200}
			}
		}`, logger, func(ctx context.Context, p listProductsParams) (any, error) {
			products, err := store.ListProducts(ctx, domain.ProductFilter(p))
			if err != nil {
				return nil, err
			}
			return map[string]any{"products": products, "count": len(products)}, nil
		}),

		NewFuncTool("create_product", "Create a catalog product.", `{
			"type": "object",
			"properties": {
				"sku": {"type": "string", "minLength": 1},
				"name": {"type": "string", "minLength": 1},
				"description": {"type": "string"},
				"category": {"type": "string"},
				"price": {"type": "number", "exclusiveMinimum": 0},
				"currency": {"type": "string"},
				"stock": {"type": "integer", "minimum": 0}
			},
			"required": ["sku", "name", "price"]
		}`, logger, func(ctx context.Context, p createProductParams) (any, error) {
			if err := RequireFields("sku", p.SKU, "name", p.Name); err != nil {
				return nil, err
			}
			cents, err := toCents("price", p.Price)
			if err != nil {
				return nil, err
			}
			currency, err := normalizeCurrency(p.Currency)
			if err != nil {
				return nil, err
			}
			product := &domain.Product{
				SKU: p.SKU, Name: p.Name, Description: p.Description, Category: p.Category,
				PriceCents: cents, Currency: currency, Stock: p.Stock,
			}
			if err := store.CreateProduct(ctx, product); err != nil {
				return nil, err
			}
			return product, nil
		}),

		NewFuncTool("update_product", "Update fields of a product identified by ID or SKU.", `{
			"type": "object",
			"properties": {
				"id": {"type": "string", "minLength": 1, "description": "product ID or SKU"},
				"name": {"type": "string"},
				"description": {"type": "string"},
				"category": {"type": "string"},
				"price": {"type": "number", "exclusiveMinimum": 0},
				"stock": {"type": "integer", "minimum": 0}
			},
			"required": ["id"]
		}`, logger, func(ctx context.Context, p updateProductParams) (any, error) {
			if err := RequireFields("id", p.ID); err != nil {
				return nil, err
			}
			product, err := store.GetProduct(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			if p.Name != nil {
				product.Name = *p.Name
			}
			if p.Description != nil {
				product.Description = *p.Description
			}
			if p.Category != nil {
				product.Category = *p.Category
			}
			if p.Price != nil {
				cents, err := toCents("price", *p.Price)
				if err != nil {
					return nil, err
				}
				product.PriceCents = cents
			}
			if p.Stock != nil {
				product.Stock = *p.Stock
			}
			if err := store.UpdateProduct(ctx, product); err != nil {
				return nil, err
			}
			return product, nil
		}),

		NewFuncTool("delete_product", "Delete a product by ID or SKU.", `{
			"type": "object",
			"properties": {"id": {"type": "string", "minLength": 1}},
			"required": ["id"]
		}`, logger, func(ctx context.Context, p idRef) (any, error) {
			if err := RequireFields("id", p.ID); err != nil {
				return nil, err
			}
			if err := store.DeleteProduct(ctx, p.ID); err != nil {
				return nil, err
			}
			return map[string]any{"deleted": p.ID}, nil
		}),
	}
}
