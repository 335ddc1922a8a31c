package tool

import (
	"context"
	"log/slog"

	"storefront-agent/internal/domain"
)

type listContentParams struct {
	Status string `json:"status"`
}

type createContentParams struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

type updateContentParams struct {
	ID    string  `json:"id"`
	Slug  *string `json:"slug"`
	Title *string `json:"title"`
	Body  *string `json:"body"`
}

// ContentTools returns the storefront content tools.
func ContentTools(store domain.ContentStore, logger *slog.Logger) []domain.Tool {
	return []domain.Tool{
		NewFuncTool("list_content", "List storefront pages, optionally by status.", `{
			"type": "object",
			"properties": {"status": {"type": "string", "enum": ["draft", "published"]}}
		}`, logger, func(ctx context.Context, p listContentParams) (any, error) {
			if err := ValidateEnum("status", p.Status, domain.ContentDraft, domain.ContentPublished); err != nil {
				return nil, err
			}
			pages, err := store.ListContent(ctx, p.Status)
			if err != nil {
				return nil, err
			}
			return map[string]any{"pages": pages, "count": len(pages)}, nil
		}),

		NewFuncTool("create_content", "Create a draft page.", `{
			"type": "object",
			"properties": {
				"slug": {"type": "string", "minLength": 1},
				"title": {"type": "string", "minLength": 1},
				"body": {"type": "string"}
			},
			"required": ["slug", "title"]
		}`, logger, func(ctx context.Context, p createContentParams) (any, error) {
			if err := ValidateAll(RequireFields("slug", p.Slug, "title", p.Title), ValidateSlug(p.Slug)); err != nil {
				return nil, err
			}
			page := &domain.ContentPage{Slug: p.Slug, Title: p.Title, Body: p.Body}
			if err := store.CreateContent(ctx, page); err != nil {
				return nil, err
			}
			return page, nil
		}),

		NewFuncTool("update_content", "Update a page identified by ID or slug.", `{
			"type": "object",
			"properties": {
				"id": {"type": "string", "minLength": 1, "description": "page ID or slug"},
				"slug": {"type": "string"},
				"title": {"type": "string"},
				"body": {"type": "string"}
			},
			"required": ["id"]
		}`, logger, func(ctx context.Context, p updateContentParams) (any, error) {
			if err := RequireFields("id", p.ID); err != nil {
				return nil, err
			}
			page, err := store.GetContent(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			if p.Slug != nil {
				if err := ValidateSlug(*p.Slug); err != nil {
					return nil, err
				}
				page.Slug = *p.Slug
			}
			if p.Title != nil {
				page.Title = *p.Title
			}
			if p.Body != nil {
				page.Body = *p.Body
			}
			if err := store.UpdateContent(ctx, page); err != nil {
				return nil, err
			}
			return page, nil
		}),

		NewFuncTool("delete_content", "Delete a page by ID or slug.", `{
			"type": "object",
			"properties": {"id": {"type": "string", "minLength": 1}},
			"required": ["id"]
		}`, logger, func(ctx context.Context, p idRef) (any, error) {
			if err := RequireFields("id", p.ID); err != nil {
				return nil, err
			}
			if err := store.DeleteContent(ctx, p.ID); err != nil {
				return nil, err
			}
			return map[string]any{"deleted": p.ID}, nil
		}),

		NewFuncTool("publish_content", "Publish a draft page.", `{
			"type": "object",
			"properties": {"id": {"type": "string", "minLength": 1}},
			"required": ["id"]
		}`, logger, func(ctx context.Context, p idRef) (any, error) {
			if err := RequireFields("id", p.ID); err != nil {
				return nil, err
			}
			return store.PublishContent(ctx, p.ID)
		}),
	}
}
