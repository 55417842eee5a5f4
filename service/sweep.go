package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campusbitesindia/cbBackend-sub000/gateway"
	"github.com/campusbitesindia/cbBackend-sub000/model"
	"github.com/go-co-op/gocron/v2"
)

// StaleIntentAge is how long an intent may wait before the sweep asks the gateway about it.
const StaleIntentAge = 5 * time.Minute

// Sweeper catches up on anything webhooks failed to deliver.
type Sweeper struct {
	*core
	payments  *Payments
	webhooks  *Webhooks
	scheduler gocron.Scheduler
}

// Start schedules Run every interval. Overlapping runs are skipped.
func (s *Sweeper) Start(interval time.Duration) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()
			s.Run(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("reconciliation-sweep"),
	)
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.scheduler = sched
	sched.Start()
	s.log.Info("reconciliation sweep started", "interval", interval.String())
	return nil
}

func (s *Sweeper) Stop() error {
	if s.scheduler == nil {
		return nil
	}
	return s.scheduler.Shutdown()
}

// SweepReport counts what one run touched.
type SweepReport struct {
	Webhooks int
	Intents  int
	Refunds  int
}

func (s *Sweeper) Run(ctx context.Context) SweepReport {
	var report SweepReport
	var errs []error

	n, err := s.retryWebhooks(ctx)
	report.Webhooks = n
	errs = append(errs, err)

	n, err = s.reconcileIntents(ctx)
	report.Intents = n
	errs = append(errs, err)

	n, err = s.refreshRefunds(ctx)
	report.Refunds = n
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		s.log.Error("reconciliation sweep", "error", err)
	}
	if report != (SweepReport{}) {
		s.log.Info("reconciliation sweep done", "webhooks", report.Webhooks, "intents", report.Intents, "refunds", report.Refunds)
	}
	return report
}

func (s *Sweeper) retryWebhooks(ctx context.Context) (int, error) {
	var events []model.WebhookEvent
	err := s.db.WithContext(ctx).
		Where("status = ? AND attempts < ?", model.WebhookFailed, MaxWebhookAttempts).
		Order("id asc").
		Limit(100).
		Find(&events).Error
	if err != nil {
		return 0, fmt.Errorf("load failed webhooks: %w", err)
	}
	for i := range events {
		if err := s.webhooks.Reprocess(ctx, &events[i]); err != nil {
			s.log.Warn("reprocess webhook", "event_id", events[i].EventID, "error", err)
		}
	}
	return len(events), nil
}

// reconcileIntents asks the gateway about intents nobody reported back on.
func (s *Sweeper) reconcileIntents(ctx context.Context) (int, error) {
	var txns []model.Transaction
	err := s.db.WithContext(ctx).
		Where("method = ? AND status IN ? AND gateway_order_id IS NOT NULL AND created_at < ?",
			model.MethodUPI, openTxnStatuses, s.now().Add(-StaleIntentAge)).
		Limit(100).
		Find(&txns).Error
	if err != nil {
		return 0, fmt.Errorf("load stale intents: %w", err)
	}

	touched := 0
	for _, txn := range txns {
		payments, err := s.gw.FetchOrderPayments(ctx, *txn.GatewayOrderID)
		if err != nil {
			s.log.Warn("fetch order payments", "transaction_id", txn.ID, "error", err)
			continue
		}
		captured, failed := classifyPayments(payments)
		var applied bool
		switch {
		case captured != nil:
			applied, err = s.payments.markCaptured(ctx, *txn.GatewayOrderID, captured.ID)
		case failed != nil:
			reason := failed.ErrorDescription
			if reason == "" {
				reason = "payment failed"
			}
			applied, err = s.payments.markFailed(ctx, *txn.GatewayOrderID, failed.ID, reason)
		}
		if err != nil {
			s.log.Warn("reconcile intent", "transaction_id", txn.ID, "error", err)
			continue
		}
		if applied {
			touched++
		}
	}
	return touched, nil
}

// classifyPayments prefers any captured attempt; a failure only counts when every attempt failed.
func classifyPayments(payments []gateway.Payment) (captured, failed *gateway.Payment) {
	allFailed := len(payments) > 0
	for i := range payments {
		p := &payments[i]
		switch p.Status {
		case gateway.StatusCaptured:
			return p, nil
		case gateway.StatusFailed:
			failed = p
		default:
			allFailed = false
		}
	}
	if !allFailed {
		return nil, nil
	}
	return nil, failed
}

func (s *Sweeper) refreshRefunds(ctx context.Context) (int, error) {
	var txns []model.Transaction
	err := s.db.WithContext(ctx).
		Where("refund_status = ? AND refund_refund_id <> '' AND gateway_payment_id IS NOT NULL", model.RefundPending).
		Limit(100).
		Find(&txns).Error
	if err != nil {
		return 0, fmt.Errorf("load pending refunds: %w", err)
	}
	for i := range txns {
		if err := s.payments.refreshRefund(ctx, &txns[i]); err != nil {
			s.log.Warn("refresh refund", "transaction_id", txns[i].ID, "error", err)
		}
	}
	return len(txns), nil
}
