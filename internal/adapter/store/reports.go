package store

import (
	"context"
	"time"

	"storefront-agent/internal/domain"
)

// SalesReport implements domain.ReportStore. Revenue counts completed
// payments created at or after since; top limits the product ranking.
func (s *SQLiteStore) SalesReport(ctx context.Context, since time.Time, top int) (*domain.SalesReport, error) {
	const op = "SQLiteStore.SalesReport"
	report := &domain.SalesReport{Since: since, ByStatus: make(map[string]int)}
	sinceStr := formatTime(since)

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(amount_cents), 0)
		FROM payments WHERE created_at >= ? GROUP BY status`, sinceStr)
	if err != nil {
		return nil, storeErr(subStore, op, err)
	}
	for rows.Next() {
		var (
			status string
			count  int
			cents  int64
		)
		if err := rows.Scan(&status, &count, &cents); err != nil {
			rows.Close()
			return nil, storeErr(subStore, op, err)
		}
		report.ByStatus[status] = count
		report.Orders += count
		switch status {
		case domain.PaymentCompleted:
			report.RevenueCents += cents
		case domain.PaymentRefunded:
			report.RefundedCents += cents
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, storeErr(subStore, op, err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT pay.product_id, COALESCE(p.name, ''), SUM(pay.quantity), SUM(pay.amount_cents) AS revenue
		FROM payments pay LEFT JOIN products p ON p.id = pay.product_id
		WHERE pay.status = ? AND pay.created_at >= ? AND pay.product_id != ''
		GROUP BY pay.product_id
		ORDER BY revenue DESC
		LIMIT ?`, domain.PaymentCompleted, sinceStr, limitOrDefault(top))
	if err != nil {
		return nil, storeErr(subStore, op, err)
	}
	defer rows.Close()
	for rows.Next() {
		var ps domain.ProductSales
		if err := rows.Scan(&ps.ProductID, &ps.Name, &ps.Units, &ps.RevenueCents); err != nil {
			return nil, storeErr(subStore, op, err)
		}
		report.TopProducts = append(report.TopProducts, ps)
	}
	return report, rows.Err()
}

// Stats implements domain.ReportStore.
func (s *SQLiteStore) Stats(ctx context.Context) (*domain.StoreStats, error) {
	var st domain.StoreStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM products),
			(SELECT COUNT(*) FROM products WHERE stock <= 0),
			(SELECT COUNT(*) FROM payments),
			(SELECT COUNT(*) FROM payments WHERE status = ?),
			(SELECT COUNT(*) FROM pages),
			(SELECT COUNT(*) FROM pages WHERE status = ?)`,
		domain.PaymentPending, domain.ContentPublished,
	).Scan(&st.Products, &st.OutOfStock, &st.Payments, &st.PendingPayments, &st.Pages, &st.PublishedPages)
	if err != nil {
		return nil, storeErr(subStore, "SQLiteStore.Stats", err)
	}
	return &st, nil
}
