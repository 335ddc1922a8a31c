package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"storefront-agent/internal/domain"
)

const paymentColumns = "id, order_ref, product_id, quantity, amount_cents, currency, method, status, created_at, refunded_at"

// ListPayments implements domain.PaymentStore. Newest first.
func (s *SQLiteStore) ListPayments(ctx context.Context, f domain.PaymentFilter) ([]domain.Payment, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.OrderRef != "" {
		where = append(where, "order_ref = ?")
		args = append(args, f.OrderRef)
	}

	query := "SELECT " + paymentColumns + " FROM payments"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limitOrDefault(f.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(subPayments, "SQLiteStore.ListPayments", err)
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, storeErr(subPayments, "SQLiteStore.ListPayments", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetPayment implements domain.PaymentStore.
func (s *SQLiteStore) GetPayment(ctx context.Context, id string) (*domain.Payment, error) {
	p, err := scanPayment(s.db.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE id = ?", id))
	if err != nil {
		return nil, storeErr(subPayments, "SQLiteStore.GetPayment", err)
	}
	return p, nil
}

// CreatePayment implements domain.PaymentStore. ID and creation time are
// assigned; an empty status records the payment as completed.
func (s *SQLiteStore) CreatePayment(ctx context.Context, p *domain.Payment) error {
	p.ID = newID()
	p.CreatedAt = s.now()
	if p.Status == "" {
		p.Status = domain.PaymentCompleted
	}
	if p.Currency == "" {
		p.Currency = "USD"
	}
	if p.Method == "" {
		p.Method = "card"
	}
	if p.Quantity <= 0 {
		p.Quantity = 1
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO payments ("+paymentColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)",
		p.ID, p.OrderRef, p.ProductID, p.Quantity, p.AmountCents, p.Currency, p.Method, p.Status,
		formatTime(p.CreatedAt),
	)
	if err != nil {
		return storeErr(subPayments, "SQLiteStore.CreatePayment", err)
	}
	return nil
}

// RefundPayment marks a completed payment refunded. Refunding any other
// status is rejected with ErrInvalidInput.
func (s *SQLiteStore) RefundPayment(ctx context.Context, id string) (*domain.Payment, error) {
	const op = "SQLiteStore.RefundPayment"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr(subPayments, op, err)
	}
	defer tx.Rollback()

	p, err := scanPayment(tx.QueryRowContext(ctx,
		"SELECT "+paymentColumns+" FROM payments WHERE id = ?", id))
	if err != nil {
		return nil, storeErr(subPayments, op, err)
	}
	if p.Status != domain.PaymentCompleted {
		return nil, domain.NewSubSystemError(subPayments, op, domain.ErrInvalidInput,
			fmt.Sprintf("payment %s is %s, only completed payments can be refunded", id, p.Status))
	}

	now := s.now()
	if _, err := tx.ExecContext(ctx,
		"UPDATE payments SET status = ?, refunded_at = ? WHERE id = ?",
		domain.PaymentRefunded, formatTime(now), id); err != nil {
		return nil, storeErr(subPayments, op, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, storeErr(subPayments, op, err)
	}
	p.Status = domain.PaymentRefunded
	p.RefundedAt = &now
	return p, nil
}

func scanPayment(row scanner) (*domain.Payment, error) {
	var (
		p        domain.Payment
		created  string
		refunded sql.NullString
	)
	if err := row.Scan(&p.ID, &p.OrderRef, &p.ProductID, &p.Quantity, &p.AmountCents,
		&p.Currency, &p.Method, &p.Status, &created, &refunded); err != nil {
		return nil, err
	}
	p.CreatedAt = parseTime(created)
	p.RefundedAt = parseNullTime(refunded)
	return &p, nil
}
