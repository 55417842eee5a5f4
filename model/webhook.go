package model

import (
	"encoding/json"
	"time"
)

type WebhookStatus string

const (
	WebhookReceived  WebhookStatus = "received"
	WebhookProcessed WebhookStatus = "processed"
	WebhookIgnored   WebhookStatus = "ignored"
	WebhookFailed    WebhookStatus = "failed"
)

type WebhookEvent struct {
	DTO
	EventID     string        `gorm:"uniqueIndex;size:128;not null" json:"eventId"`
	Provider    string        `gorm:"size:20;not null" json:"provider"`
	Event       string        `gorm:"size:64" json:"event"`
	Payload     string        `gorm:"type:text" json:"-"`
	Status      WebhookStatus `gorm:"size:20;index;not null" json:"status"`
	Attempts    int           `gorm:"default:0" json:"attempts"`
	LastError   string        `json:"lastError,omitempty"`
	ProcessedAt *time.Time    `json:"processedAt,omitempty"`
}

// WebhookPayload is the gateway's envelope: {event, payload:{payment:{entity}}} or {payload:{refund:{entity}}}.
type WebhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment,omitempty"`
		Refund *struct {
			Entity RefundEntity `json:"entity"`
		} `json:"refund,omitempty"`
	} `json:"payload"`
	CreatedAt int64 `json:"created_at"`
}

type PaymentEntity struct {
	ID               string          `json:"id"`
	OrderID          string          `json:"order_id"`
	Amount           int64           `json:"amount"`
	Currency         string          `json:"currency"`
	Status           string          `json:"status"`
	Method           string          `json:"method"`
	ErrorCode        string          `json:"error_code"`
	ErrorDescription string          `json:"error_description"`
	Notes            json.RawMessage `json:"notes,omitempty"`
}

type RefundEntity struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}
