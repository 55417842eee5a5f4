package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type Notification struct {
	UserID       uint      `json:"userId"`
	Kind         string    `json:"kind"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	OrderID      uint      `json:"orderId,omitempty"`
	OrderNumber  string    `json:"orderNumber,omitempty"`
	GroupOrderID uint      `json:"groupOrderId,omitempty"`
	Status       string    `json:"status,omitempty"`
	At           time.Time `json:"at"`
}

const (
	KindOrderStatus = "order_status"
	KindNewOrder    = "new_order"
	KindPayment     = "payment"
	KindRefund      = "refund"
	KindGroupOrder  = "group_order"
)

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Async hands notifications to a goroutine so callers never wait on delivery.
type Async struct {
	Next    Notifier
	Log     *slog.Logger
	Timeout time.Duration
}

func (a Async) Notify(_ context.Context, n Notification) error {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := a.Next.Notify(ctx, n); err != nil && a.Log != nil {
			a.Log.Warn("notification delivery failed", "user_id", n.UserID, "kind", n.Kind, "error", err)
		}
	}()
	return nil
}

// Log writes notifications to the logger; used when no transport is configured.
type Log struct {
	Log *slog.Logger
}

func (l Log) Notify(_ context.Context, n Notification) error {
	l.Log.Info("notification", "user_id", n.UserID, "kind", n.Kind, "title", n.Title, "order_id", n.OrderID, "status", n.Status)
	return nil
}
