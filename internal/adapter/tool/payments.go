package tool

import (
	"context"
	"log/slog"

	"storefront-agent/internal/domain"
)

type listPaymentsParams struct {
	Status   string `json:"status"`
	OrderRef string `json:"order_ref"`
	Limit    int    `json:"limit"`
}

type createPaymentParams struct {
	OrderRef  string  `json:"order_ref"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
	Method    string  `json:"method"`
}

type paymentRef struct {
	PaymentID string `json:"payment_id"`
}

var paymentStatuses = []string{
	domain.PaymentPending, domain.PaymentCompleted, domain.PaymentRefunded, domain.PaymentFailed,
}

// PaymentTools returns the payment tools.
func PaymentTools(store domain.PaymentStore, logger *slog.Logger) []domain.Tool {
	return []domain.Tool{
		NewFuncTool("list_payments", "List payments, newest first.", `{
			"type": "object",
			"properties": {
				"status": {"type": "string", "enum": ["pending", "completed", "refunded", "failed"]},
				"order_ref": {"type": "string"},
				"limit": {"type": "integer", "minimum": 0, "maximum": 200}
			}
		}`, logger, func(ctx context.Context, p listPaymentsParams) (any, error) {
			if err := ValidateEnum("status", p.Status, paymentStatuses...); err != nil {
				return nil, err
			}
			payments, err := store.ListPayments(ctx, domain.PaymentFilter(p))
			if err != nil {
				return nil, err
			}
			return map[string]any{"payments": payments, "count": len(payments)}, nil
		}),

		NewFuncTool("create_payment", "Record a completed payment for an order.", `{
			"type": "object",
			"properties": {
				"order_ref": {"type": "string", "minLength": 1},
				"product_id": {"type": "string"},
				"quantity": {"type": "integer", "minimum": 1},
				"amount": {"type": "number", "exclusiveMinimum": 0},
				"currency": {"type": "string"},
				"method": {"type": "string", "enum": ["card", "bank_transfer", "wallet"]}
			},
			"required": ["order_ref", "amount"]
		}`, logger, func(ctx context.Context, p createPaymentParams) (any, error) {
			if err := ValidateAll(
				RequireFields("order_ref", p.OrderRef),
				ValidateEnum("method", p.Method, "card", "bank_transfer", "wallet"),
			); err != nil {
				return nil, err
			}
			cents, err := toCents("amount", p.Amount)
			if err != nil {
				return nil, err
			}
			currency, err := normalizeCurrency(p.Currency)
			if err != nil {
				return nil, err
			}
			payment := &domain.Payment{
				OrderRef: p.OrderRef, ProductID: p.ProductID, Quantity: p.Quantity,
				AmountCents: cents, Currency: currency, Method: p.Method,
			}
			if err := store.CreatePayment(ctx, payment); err != nil {
				return nil, err
			}
			return payment, nil
		}),

		NewFuncTool("refund_payment", "Refund a completed payment.", `{
			"type": "object",
			"properties": {"payment_id": {"type": "string", "minLength": 1}},
			"required": ["payment_id"]
		}`, logger, func(ctx context.Context, p paymentRef) (any, error) {
			if err := RequireFields("payment_id", p.PaymentID); err != nil {
				return nil, err
			}
			return store.RefundPayment(ctx, p.PaymentID)
		}),

		NewFuncTool("payment_status", "Look up the status of a payment.", `{
			"type": "object",
			"properties": {"payment_id": {"type": "string", "minLength": 1}},
			"required": ["payment_id"]
		}`, logger, func(ctx context.Context, p paymentRef) (any, error) {
			if err := RequireFields("payment_id", p.PaymentID); err != nil {
				return nil, err
			}
			payment, err := store.GetPayment(ctx, p.PaymentID)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"payment_id":  payment.ID,
				"order_ref":   payment.OrderRef,
				"status":      payment.Status,
				"amount":      payment.AmountCents,
				"currency":    payment.Currency,
				"refunded_at": payment.RefundedAt,
			}, nil
		}),
	}
}
