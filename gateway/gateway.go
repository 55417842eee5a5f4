package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

type IntentRequest struct {
	Amount   decimal.Decimal
	Currency string
	Receipt  string
	Notes    map[string]string
}

type Intent struct {
	ID       string
	Amount   decimal.Decimal
	Currency string
	Receipt  string
	Status   string
}

type Payment struct {
	ID               string
	OrderID          string
	Method           string
	Status           string
	Amount           decimal.Decimal
	ErrorDescription string
}

type RefundResult struct {
	ID        string
	PaymentID string
	Amount    decimal.Decimal
	Status    string
}

// Payment statuses reported by the gateway.
const (
	StatusCreated    = "created"
	StatusAuthorized = "authorized"
	StatusCaptured   = "captured"
	StatusFailed     = "failed"
	StatusRefunded   = "refunded"

	RefundStatusPending   = "pending"
	RefundStatusProcessed = "processed"
	RefundStatusFailed    = "failed"
)

type Gateway interface {
	Provider() string
	KeyID() string
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	VerifySignature(orderID, paymentID, signature string) bool
	FetchPayment(ctx context.Context, paymentID string) (Payment, error)
	FetchOrderPayments(ctx context.Context, orderID string) ([]Payment, error)
	Refund(ctx context.Context, paymentID string, amount decimal.Decimal, notes map[string]string) (RefundResult, error)
	FetchRefund(ctx context.Context, paymentID, refundID string) (RefundResult, error)
}
