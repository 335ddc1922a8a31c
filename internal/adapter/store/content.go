package store

import (
	"context"
	"database/sql"

	"storefront-agent/internal/domain"
)

const pageColumns = "id, slug, title, body, status, published_at, created_at, updated_at"

// ListContent implements domain.ContentStore. An empty status lists all pages.
func (s *SQLiteStore) ListContent(ctx context.Context, status string) ([]domain.ContentPage, error) {
	query := "SELECT " + pageColumns + " FROM pages"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY updated_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(subContent, "SQLiteStore.ListContent", err)
	}
	defer rows.Close()

	var out []domain.ContentPage
	for rows.Next() {
		c, err := scanPage(rows)
		if err != nil {
			return nil, storeErr(subContent, "SQLiteStore.ListContent", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// GetContent looks a page up by ID or slug.
func (s *SQLiteStore) GetContent(ctx context.Context, idOrSlug string) (*domain.ContentPage, error) {
	c, err := scanPage(s.db.QueryRowContext(ctx,
		"SELECT "+pageColumns+" FROM pages WHERE id = ? OR slug = ?", idOrSlug, idOrSlug))
	if err != nil {
		return nil, storeErr(subContent, "SQLiteStore.GetContent", err)
	}
	return c, nil
}

// CreateContent implements domain.ContentStore. New pages start as drafts.
func (s *SQLiteStore) CreateContent(ctx context.Context, c *domain.ContentPage) error {
	now := s.now()
	c.ID = newID()
	c.Status = domain.ContentDraft
	c.PublishedAt = nil
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO pages ("+pageColumns+") VALUES (?, ?, ?, ?, ?, NULL, ?, ?)",
		c.ID, c.Slug, c.Title, c.Body, c.Status, formatTime(now), formatTime(now),
	)
	if err != nil {
		return storeErr(subContent, "SQLiteStore.CreateContent", err)
	}
	return nil
}

// UpdateContent implements domain.ContentStore. Status is left unchanged.
func (s *SQLiteStore) UpdateContent(ctx context.Context, c *domain.ContentPage) error {
	c.UpdatedAt = s.now()
	res, err := s.db.ExecContext(ctx,
		"UPDATE pages SET slug = ?, title = ?, body = ?, updated_at = ? WHERE id = ?",
		c.Slug, c.Title, c.Body, formatTime(c.UpdatedAt), c.ID,
	)
	if err != nil {
		return storeErr(subContent, "SQLiteStore.UpdateContent", err)
	}
	return checkAffected(subContent, "SQLiteStore.UpdateContent", c.ID, res)
}

// DeleteContent implements domain.ContentStore.
func (s *SQLiteStore) DeleteContent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM pages WHERE id = ? OR slug = ?", id, id)
	if err != nil {
		return storeErr(subContent, "SQLiteStore.DeleteContent", err)
	}
	return checkAffected(subContent, "SQLiteStore.DeleteContent", id, res)
}

// PublishContent marks a page published. Publishing twice keeps the
// original publication time.
func (s *SQLiteStore) PublishContent(ctx context.Context, id string) (*domain.ContentPage, error) {
	const op = "SQLiteStore.PublishContent"
	now := formatTime(s.now())
	res, err := s.db.ExecContext(ctx,
		`UPDATE pages SET status = ?, published_at = COALESCE(published_at, ?), updated_at = ?
			WHERE id = ? OR slug = ?`,
		domain.ContentPublished, now, now, id, id,
	)
	if err != nil {
		return nil, storeErr(subContent, op, err)
	}
	if err := checkAffected(subContent, op, id, res); err != nil {
		return nil, err
	}
	return s.GetContent(ctx, id)
}

func scanPage(row scanner) (*domain.ContentPage, error) {
	var c domain.ContentPage
	var published sql.NullString
	var created, updated string
	if err := row.Scan(&c.ID, &c.Slug, &c.Title, &c.Body, &c.Status, &published,
		&created, &updated); err != nil {
		return nil, err
	}
	c.PublishedAt = parseNullTime(published)
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}
