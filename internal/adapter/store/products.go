package store

import (
	"context"
	"strings"

	"storefront-agent/internal/domain"
)

const productColumns = "id, sku, name, description, category, price_cents, currency, stock, created_at, updated_at"

// ListProducts implements domain.CatalogStore.
func (s *SQLiteStore) ListProducts(ctx context.Context, f domain.ProductFilter) ([]domain.Product, error) {
	var (
		where []string
		args  []any
	)
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Query != "" {
		where = append(where, "(name LIKE ? OR sku LIKE ?)")
		q := "%" + f.Query + "%"
		args = append(args, q, q)
	}
	if f.LowStock > 0 {
		where = append(where, "stock < ?")
		args = append(args, f.LowStock)
	}

	query := "SELECT " + productColumns + " FROM products"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name LIMIT ?"
	args = append(args, limitOrDefault(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(subCatalog, "SQLiteStore.ListProducts", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, storeErr(subCatalog, "SQLiteStore.ListProducts", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetProduct looks a product up by ID or SKU.
func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+productColumns+" FROM products WHERE id = ? OR sku = ?", id, id)
	p, err := scanProduct(row)
	if err != nil {
		return nil, storeErr(subCatalog, "SQLiteStore.GetProduct", err)
	}
	return p, nil
}

// CreateProduct implements domain.CatalogStore. ID and timestamps are assigned.
func (s *SQLiteStore) CreateProduct(ctx context.Context, p *domain.Product) error {
	now := s.now()
	p.ID = newID()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Currency == "" {
		p.Currency = "USD"
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO products ("+productColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		p.ID, p.SKU, p.Name, p.Description, p.Category, p.PriceCents, p.Currency, p.Stock,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return storeErr(subCatalog, "SQLiteStore.CreateProduct", err)
	}
	return nil
}

// UpdateProduct implements domain.CatalogStore.
func (s *SQLiteStore) UpdateProduct(ctx context.Context, p *domain.Product) error {
	p.UpdatedAt = s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET sku = ?, name = ?, description = ?, category = ?, price_cents = ?,
			currency = ?, stock = ?, updated_at = ? WHERE id = ?`,
		p.SKU, p.Name, p.Description, p.Category, p.PriceCents, p.Currency, p.Stock,
		formatTime(p.UpdatedAt), p.ID,
	)
	if err != nil {
		return storeErr(subCatalog, "SQLiteStore.UpdateProduct", err)
	}
	return checkAffected(subCatalog, "SQLiteStore.UpdateProduct", p.ID, res)
}

// DeleteProduct implements domain.CatalogStore.
func (s *SQLiteStore) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = ? OR sku = ?", id, id)
	if err != nil {
		return storeErr(subCatalog, "SQLiteStore.DeleteProduct", err)
	}
	return checkAffected(subCatalog, "SQLiteStore.DeleteProduct", id, res)
}

// SetStock implements domain.CatalogStore. All updates share one transaction.
func (s *SQLiteStore) SetStock(ctx context.Context, levels map[string]int) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr(subCatalog, "SQLiteStore.SetStock", err)
	}
	defer tx.Rollback()

	now := formatTime(s.now())
	var unknown []string
	for sku, stock := range levels {
		res, err := tx.ExecContext(ctx,
			"UPDATE products SET stock = ?, updated_at = ? WHERE sku = ?", stock, now, sku)
		if err != nil {
			return nil, storeErr(subCatalog, "SQLiteStore.SetStock", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			unknown = append(unknown, sku)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr(subCatalog, "SQLiteStore.SetStock", err)
	}
	return unknown, nil
}

func scanProduct(row scanner) (*domain.Product, error) {
	var p domain.Product
	var created, updated string
	if err := row.Scan(&p.ID, &p.SKU, &p.Name, &p.Description, &p.Category, &p.PriceCents,
		&p.Currency, &p.Stock, &created, &updated); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(created)
	p.UpdatedAt = parseTime(updated)
	return &p, nil
}
