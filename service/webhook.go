package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/campusbitesindia/cbBackend-sub000/apperror"
	"github.com/campusbitesindia/cbBackend-sub000/constants"
	"github.com/campusbitesindia/cbBackend-sub000/gateway"
	"github.com/campusbitesindia/cbBackend-sub000/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxWebhookAttempts bounds how often a failing event is reprocessed.
const MaxWebhookAttempts = 5

const (
	EventPaymentAuthorized = "payment.authorized"
	EventPaymentCaptured   = "payment.captured"
	EventPaymentFailed     = "payment.failed"
	EventRefundProcessed   = "refund.processed"
	EventRefundFailed      = "refund.failed"
)

var errUnhandledEvent = errors.New("unhandled event")

type Webhooks struct {
	*core
	payments *Payments
	schemes  *gateway.Schemes
}

// Handle verifies, records and applies one gateway callback.
// Only signature and decoding problems are returned; reconciliation failures are stored
// on the event for the sweep and the callback is still acknowledged.
func (w *Webhooks) Handle(ctx context.Context, provider string, body []byte, signature, eventID string) (*model.WebhookEvent, error) {
	signed := body
	if provider == constants.PROVIDER_PHONEPE {
		raw, _, err := gateway.DecodePhonePeCallback(body)
		if err != nil {
			return nil, apperror.Validation("%v", err)
		}
		signed = raw
	}
	ok, err := w.schemes.Verify(provider, signed, signature)
	if err != nil {
		return nil, apperror.Validation("%v", err)
	}
	if !ok {
		w.logger(ctx).Warn("webhook signature mismatch", "provider", provider)
		return nil, apperror.Auth("invalid webhook signature")
	}

	payload, err := normalize(provider, body)
	if err != nil {
		return nil, apperror.Validation("%v", err)
	}
	if eventID == "" {
		sum := sha256.Sum256(body)
		eventID = hex.EncodeToString(sum[:])
	}

	unlock := w.locks.Lock("webhook:" + eventID)
	defer unlock()

	event := model.WebhookEvent{
		EventID:  eventID,
		Provider: provider,
		Event:    payload.Event,
		Payload:  string(body),
		Status:   model.WebhookReceived,
	}
	db := w.db.WithContext(ctx)
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&event)
	if res.Error != nil {
		return nil, fmt.Errorf("store webhook event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if err := db.Where("event_id = ?", eventID).First(&event).Error; err != nil {
			return nil, fmt.Errorf("load webhook event: %w", err)
		}
		if event.Status == model.WebhookProcessed || event.Status == model.WebhookIgnored {
			w.logger(ctx).Info("duplicate webhook acknowledged", "event_id", eventID, "event", event.Event)
			return &event, nil
		}
	}

	w.process(ctx, &event, payload)
	return &event, nil
}

// Reprocess runs a stored event again without re-verifying it.
func (w *Webhooks) Reprocess(ctx context.Context, event *model.WebhookEvent) error {
	unlock := w.locks.Lock("webhook:" + event.EventID)
	defer unlock()

	payload, err := normalize(event.Provider, []byte(event.Payload))
	if err != nil {
		return err
	}
	w.process(ctx, event, payload)
	return nil
}

func (w *Webhooks) process(ctx context.Context, event *model.WebhookEvent, payload *model.WebhookPayload) {
	log := w.logger(ctx).With("event_id", event.EventID, "event", payload.Event, "provider", event.Provider)

	err := w.dispatch(ctx, payload)
	fields := map[string]any{"attempts": gorm.Expr("attempts + ?", 1)}
	switch {
	case errors.Is(err, errUnhandledEvent):
		log.Info("webhook event ignored")
		event.Status = model.WebhookIgnored
	case err != nil:
		log.Error("webhook reconciliation failed", "attempt", event.Attempts+1, "error", err)
		event.Status = model.WebhookFailed
		event.LastError = err.Error()
		fields["last_error"] = event.LastError
	default:
		now := w.now()
		event.Status = model.WebhookProcessed
		event.ProcessedAt = &now
		fields["processed_at"] = now
		fields["last_error"] = ""
	}
	event.Attempts++
	fields["status"] = event.Status

	if err := w.db.WithContext(ctx).Model(&model.WebhookEvent{}).Where("id = ?", event.ID).Updates(fields).Error; err != nil {
		log.Error("store webhook outcome", "error", err)
	}
}

func (w *Webhooks) dispatch(ctx context.Context, payload *model.WebhookPayload) error {
	switch payload.Event {
	case EventPaymentAuthorized, EventPaymentCaptured, EventPaymentFailed:
		if payload.Payload.Payment == nil {
			return fmt.Errorf("%s without payment entity", payload.Event)
		}
		p := payload.Payload.Payment.Entity
		if p.OrderID == "" {
			return fmt.Errorf("%s without order id", payload.Event)
		}
		var err error
		switch payload.Event {
		case EventPaymentAuthorized:
			_, err = w.payments.markAuthorized(ctx, p.OrderID)
		case EventPaymentCaptured:
			_, err = w.payments.markCaptured(ctx, p.OrderID, p.ID)
		default:
			reason := p.ErrorDescription
			if reason == "" {
				reason = "payment failed"
			}
			_, err = w.payments.markFailed(ctx, p.OrderID, p.ID, reason)
		}
		return err

	case EventRefundProcessed, EventRefundFailed:
		if payload.Payload.Refund == nil {
			return fmt.Errorf("%s without refund entity", payload.Event)
		}
		r := payload.Payload.Refund.Entity
		success := payload.Event == EventRefundProcessed
		reason := ""
		if !success {
			reason = "refund failed at gateway"
		}
		_, err := w.payments.applyRefundResult(ctx, r.PaymentID, r.ID, success, reason)
		return err
	}
	return errUnhandledEvent
}

// normalize turns a provider callback body into the common event envelope.
func normalize(provider string, body []byte) (*model.WebhookPayload, error) {
	var payload model.WebhookPayload
	if provider != constants.PROVIDER_PHONEPE {
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("decode webhook: %w", err)
		}
		return &payload, nil
	}

	_, cb, err := gateway.DecodePhonePeCallback(body)
	if err != nil {
		return nil, err
	}
	entity := model.PaymentEntity{
		ID:      cb.Data.TransactionID,
		OrderID: cb.Data.MerchantTransactionID,
		Amount:  cb.Data.Amount,
		Status:  gateway.StatusCaptured,
	}
	payload.Event = EventPaymentCaptured
	if !cb.Captured() {
		payload.Event = EventPaymentFailed
		entity.Status = gateway.StatusFailed
		entity.ErrorCode = cb.Code
		entity.ErrorDescription = cb.Message
	}
	payload.Payload.Payment = &struct {
		Entity model.PaymentEntity `json:"entity"`
	}{Entity: entity}
	return &payload, nil
}
