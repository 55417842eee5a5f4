package model

import "time"

type TransactionStatus string

const (
	TxnCreated   TransactionStatus = "created"
	TxnAttempted TransactionStatus = "attempted"
	TxnPaid      TransactionStatus = "paid"
	TxnFailed    TransactionStatus = "failed"
	TxnCancelled TransactionStatus = "cancelled"
	TxnRefunded  TransactionStatus = "refunded"
)

func (s TransactionStatus) IsTerminal() bool {
	return s != TxnCreated && s != TxnAttempted
}

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundProcessed RefundStatus = "processed"
	RefundFailed    RefundStatus = "failed"
)

type Refund struct {
	RefundID      string       `gorm:"index" json:"refundId,omitempty"`
	Amount        float64      `gorm:"type:decimal(10,2)" json:"amount,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Status        RefundStatus `gorm:"size:20" json:"status,omitempty"`
	InitiatedBy   uint         `json:"initiatedBy,omitempty"`
	InitiatedAt   *time.Time   `json:"initiatedAt,omitempty"`
	ProcessedAt   *time.Time   `json:"processedAt,omitempty"`
	FailureReason string       `json:"failureReason,omitempty"`
}

type Transaction struct {
	DTO
	OrderID          uint              `gorm:"uniqueIndex;not null" json:"orderId"`
	UserID           uint              `gorm:"index;not null" json:"userId"`
	Provider         string            `gorm:"size:20" json:"provider,omitempty"`
	GatewayOrderID   *string           `gorm:"index;size:64" json:"gatewayOrderId,omitempty"`
	GatewayPaymentID *string           `gorm:"index;size:64" json:"gatewayPaymentId,omitempty"`
	Receipt          string            `gorm:"size:64" json:"receipt,omitempty"`
	Amount           float64           `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency         string            `gorm:"size:3;default:'INR'" json:"currency"`
	Method           PaymentMethod     `gorm:"size:10;not null" json:"method"`
	Status           TransactionStatus `gorm:"size:20;index;not null" json:"status"`
	FailureReason    string            `json:"failureReason,omitempty"`
	PaidAt           *time.Time        `json:"paidAt,omitempty"`
	Refund           Refund            `gorm:"embedded;embeddedPrefix:refund_" json:"refund"`
}

type CreatePaymentIntentInput struct {
	OrderID uint `json:"orderId" validate:"required,gt=0"`
}

type VerifyPaymentInput struct {
	GatewayOrderID   string `json:"razorpay_order_id" validate:"required"`
	GatewayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature        string `json:"razorpay_signature" validate:"required"`
}

type PaymentFailureInput struct {
	GatewayOrderID   string `json:"razorpay_order_id" validate:"required"`
	GatewayPaymentID string `json:"razorpay_payment_id"`
	Reason           string `json:"reason"`
}

type RefundInput struct {
	Reason string `json:"reason" validate:"max=255"`
}

type PaymentIntentResponse struct {
	OrderID        uint    `json:"orderId"`
	TransactionID  uint    `json:"transactionId"`
	GatewayOrderID string  `json:"gatewayOrderId"`
	Amount         float64 `json:"amount"`
	Currency       string  `json:"currency"`
	KeyID          string  `json:"keyId"`
}
