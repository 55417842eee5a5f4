package model

import "time"

type OrderStatus string

const (
	OrderPending        OrderStatus = "pending"
	OrderPaymentPending OrderStatus = "payment_pending"
	OrderPlaced         OrderStatus = "placed"
	OrderPreparing      OrderStatus = "preparing"
	OrderReady          OrderStatus = "ready"
	OrderCompleted      OrderStatus = "completed"
	OrderCancelled      OrderStatus = "cancelled"
	OrderRefunded       OrderStatus = "refunded"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderCompleted || s == OrderCancelled || s == OrderRefunded
}

// IsCart reports whether the order has not been confirmed yet.
func (s OrderStatus) IsCart() bool {
	return s == OrderPending || s == OrderPaymentPending
}

type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "pending"
	PaymentPaid          PaymentStatus = "paid"
	PaymentFailed        PaymentStatus = "failed"
	PaymentRefundPending PaymentStatus = "refund_pending"
	PaymentRefunded      PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	MethodCOD PaymentMethod = "cod"
	MethodUPI PaymentMethod = "upi"
)

type Order struct {
	DTO
	OrderNumber   string        `gorm:"uniqueIndex;size:20;not null" json:"orderNumber"`
	StudentID     uint          `gorm:"index;not null" json:"studentId"`
	CanteenID     uint          `gorm:"index;not null" json:"canteenId"`
	Items         []OrderItem   `gorm:"foreignKey:OrderID" json:"items"`
	PenaltyAmount float64       `gorm:"type:decimal(10,2);default:0" json:"penaltyAmount"`
	Total         float64       `gorm:"type:decimal(10,2);not null" json:"total"`
	Status        OrderStatus   `gorm:"size:20;index;not null" json:"status"`
	PaymentStatus PaymentStatus `gorm:"size:20;not null" json:"paymentStatus"`
	PaymentMethod PaymentMethod `gorm:"size:10;not null" json:"paymentMethod"`
	PickupTime    time.Time     `json:"pickupTime"`
	DeviceID      string        `gorm:"index" json:"deviceId"`
	GroupOrderID  *uint         `gorm:"index" json:"groupOrderId,omitempty"`
	IsDeleted     bool          `gorm:"default:false" json:"isDeleted"`
	CancelledBy   string        `json:"cancelledBy,omitempty"`
	CancelledAt   *time.Time    `json:"cancelledAt,omitempty"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`

	Student     User         `gorm:"foreignKey:StudentID" json:"-"`
	Canteen     Canteen      `gorm:"foreignKey:CanteenID" json:"-"`
	Transaction *Transaction `gorm:"foreignKey:OrderID" json:"transaction,omitempty"`
}

type OrderItem struct {
	ID       uint    `gorm:"primaryKey" json:"id"`
	OrderID  uint    `gorm:"index;not null" json:"orderId"`
	ItemID   *uint   `json:"itemId,omitempty"`
	Name     string  `gorm:"not null" json:"name"`
	Price    float64 `gorm:"type:decimal(10,2);not null" json:"price"`
	Quantity int     `gorm:"not null" json:"quantity"`
	Subtotal float64 `gorm:"type:decimal(10,2);not null" json:"subtotal"`
}

type LineItemInput struct {
	ItemID   uint `json:"itemId" validate:"required,gt=0"`
	Quantity int  `json:"quantity" validate:"required,gt=0"`
}

type CreateOrderInput struct {
	CanteenID     uint            `json:"canteenId" validate:"required,gt=0"`
	Items         []LineItemInput `json:"items" validate:"required,min=1,dive"`
	PickupTime    time.Time       `json:"pickupTime" validate:"required"`
	PaymentMethod PaymentMethod   `json:"paymentMethod" validate:"required,oneof=cod upi"`
}

type UpdateOrderStatusInput struct {
	Status OrderStatus `json:"status" validate:"required,oneof=preparing ready completed cancelled"`
}

type OrderResponse struct {
	ID            uint          `json:"id"`
	OrderNumber   string        `json:"orderNumber"`
	StudentID     uint          `json:"studentId"`
	CanteenID     uint          `json:"canteenId"`
	Items         []OrderItem   `json:"items"`
	PenaltyAmount float64       `json:"penaltyAmount"`
	Total         float64       `json:"total"`
	Status        OrderStatus   `json:"status"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	PaymentMethod PaymentMethod `json:"paymentMethod"`
	PickupTime    time.Time     `json:"pickupTime"`
	GroupOrderID  *uint         `json:"groupOrderId,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
}
