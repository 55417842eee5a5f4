package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/campusbitesindia/cbBackend-sub000/apperror"
	"github.com/campusbitesindia/cbBackend-sub000/constants"
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type RazorpayOptions struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
}

// Razorpay talks to the orders/payments/refunds REST API.
type Razorpay struct {
	baseURL   string
	keyID     string
	keySecret string
	timeout   time.Duration
	scheme    HMACSHA256
}

func NewRazorpay(opts RazorpayOptions) *Razorpay {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Razorpay{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		keyID:     opts.KeyID,
		keySecret: opts.KeySecret,
		timeout:   opts.Timeout,
	}
}

func (r *Razorpay) Provider() string { return constants.PROVIDER_RAZORPAY }

func (r *Razorpay) KeyID() string { return r.keyID }

type rzpOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type rzpPayment struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Method           string `json:"method"`
	Status           string `json:"status"`
	Amount           int64  `json:"amount"`
	ErrorDescription string `json:"error_description"`
}

type rzpRefund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

func (p rzpPayment) toPayment() Payment {
	return Payment{
		ID:               p.ID,
		OrderID:          p.OrderID,
		Method:           p.Method,
		Status:           p.Status,
		Amount:           FromMinorUnits(p.Amount),
		ErrorDescription: p.ErrorDescription,
	}
}

func (f rzpRefund) toRefund() RefundResult {
	return RefundResult{ID: f.ID, PaymentID: f.PaymentID, Amount: FromMinorUnits(f.Amount), Status: f.Status}
}

func (r *Razorpay) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	currency := req.Currency
	if currency == "" {
		currency = "INR"
	}
	body := map[string]any{
		"amount":   ToMinorUnits(req.Amount),
		"currency": currency,
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		body["notes"] = req.Notes
	}

	var out rzpOrder
	if err := r.do(ctx, "create order", fiber.MethodPost, "/v1/orders", body, &out); err != nil {
		return Intent{}, err
	}
	return Intent{
		ID:       out.ID,
		Amount:   FromMinorUnits(out.Amount),
		Currency: out.Currency,
		Receipt:  out.Receipt,
		Status:   out.Status,
	}, nil
}

// VerifySignature checks the checkout signature: HMAC-SHA256("orderId|paymentId", key secret).
func (r *Razorpay) VerifySignature(orderID, paymentID, signature string) bool {
	if orderID == "" || paymentID == "" {
		return false
	}
	return r.scheme.Verify([]byte(orderID+"|"+paymentID), signature, r.keySecret)
}

func (r *Razorpay) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	var out rzpPayment
	if err := r.do(ctx, "fetch payment", fiber.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil, &out); err != nil {
		return Payment{}, err
	}
	return out.toPayment(), nil
}

func (r *Razorpay) FetchOrderPayments(ctx context.Context, orderID string) ([]Payment, error) {
	var out struct {
		Items []rzpPayment `json:"items"`
	}
	path := fmt.Sprintf("/v1/orders/%s/payments", url.PathEscape(orderID))
	if err := r.do(ctx, "fetch order payments", fiber.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	payments := make([]Payment, 0, len(out.Items))
	for _, p := range out.Items {
		payments = append(payments, p.toPayment())
	}
	return payments, nil
}

func (r *Razorpay) Refund(ctx context.Context, paymentID string, amount decimal.Decimal, notes map[string]string) (RefundResult, error) {
	body := map[string]any{"amount": ToMinorUnits(amount)}
	if len(notes) > 0 {
		body["notes"] = notes
	}
	var out rzpRefund
	path := fmt.Sprintf("/v1/payments/%s/refund", url.PathEscape(paymentID))
	if err := r.do(ctx, "create refund", fiber.MethodPost, path, body, &out); err != nil {
		return RefundResult{}, err
	}
	return out.toRefund(), nil
}

func (r *Razorpay) FetchRefund(ctx context.Context, paymentID, refundID string) (RefundResult, error) {
	var out rzpRefund
	path := fmt.Sprintf("/v1/payments/%s/refunds/%s", url.PathEscape(paymentID), url.PathEscape(refundID))
	if err := r.do(ctx, "fetch refund", fiber.MethodGet, path, nil, &out); err != nil {
		return RefundResult{}, err
	}
	return out.toRefund(), nil
}

func (r *Razorpay) do(ctx context.Context, op, method, path string, body any, out any) error {
	if err := ctx.Err(); err != nil {
		return &apperror.GatewayError{Op: op, Err: err}
	}

	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	a := fiber.AcquireAgent()
	req := a.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(r.baseURL + path)
	a.BasicAuth(r.keyID, r.keySecret)
	a.Timeout(timeout)
	if body != nil {
		a.JSON(body)
	}
	if err := a.Parse(); err != nil {
		fiber.ReleaseAgent(a)
		return &apperror.GatewayError{Op: op, Err: err}
	}

	code, respBody, errs := a.Bytes()
	if len(errs) > 0 {
		return &apperror.GatewayError{Op: op, StatusCode: code, Body: respBody, Err: errs[0]}
	}
	if code < 200 || code >= 300 {
		return &apperror.GatewayError{Op: op, StatusCode: code, Body: respBody}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &apperror.GatewayError{Op: op, StatusCode: code, Body: respBody, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
