package model

import "time"

type GroupStatus string

const (
	GroupOpen           GroupStatus = "open"
	GroupPaymentPending GroupStatus = "payment_pending"
	GroupPlaced         GroupStatus = "placed"
	GroupPreparing      GroupStatus = "preparing"
	GroupReady          GroupStatus = "ready"
	GroupCompleted      GroupStatus = "completed"
	GroupCancelled      GroupStatus = "cancelled"
)

func (s GroupStatus) IsTerminal() bool {
	return s == GroupCompleted || s == GroupCancelled
}

type SplitType string

const (
	SplitEqual  SplitType = "equal"
	SplitCustom SplitType = "custom"
)

type ShareStatus string

const (
	SharePending      ShareStatus = "pending"
	ShareIntentFailed ShareStatus = "intent_failed"
	SharePaid         ShareStatus = "paid"
	ShareFailed       ShareStatus = "failed"
	ShareCancelled    ShareStatus = "cancelled"
)

type GroupOrder struct {
	DTO
	OrderNumber   string             `gorm:"uniqueIndex;size:20;not null" json:"orderNumber"`
	CreatorID     uint               `gorm:"index;not null" json:"creatorId"`
	CanteenID     uint               `gorm:"index;not null" json:"canteenId"`
	JoinCode      string             `gorm:"uniqueIndex;size:32;not null" json:"joinCode"`
	JoinLink      string             `json:"joinLink"`
	Members       []GroupOrderMember `gorm:"foreignKey:GroupOrderID" json:"members"`
	Items         []GroupOrderItem   `gorm:"foreignKey:GroupOrderID" json:"items"`
	Shares        []GroupOrderShare  `gorm:"foreignKey:GroupOrderID" json:"shares"`
	TotalAmount   float64            `gorm:"type:decimal(10,2);default:0" json:"totalAmount"`
	SplitType     SplitType          `gorm:"size:10" json:"splitType,omitempty"`
	PayerID       *uint              `json:"payerId,omitempty"`
	PaymentMethod PaymentMethod      `gorm:"size:10" json:"paymentMethod,omitempty"`
	PickupTime    *time.Time         `json:"pickupTime,omitempty"`
	Status        GroupStatus        `gorm:"size:20;not null" json:"status"`

	Canteen Canteen `gorm:"foreignKey:CanteenID" json:"-"`
}

type GroupOrderMember struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	GroupOrderID uint      `gorm:"uniqueIndex:idx_group_member;not null" json:"groupOrderId"`
	UserID       uint      `gorm:"uniqueIndex:idx_group_member;not null" json:"userId"`
	Position     int       `gorm:"not null" json:"position"`
	JoinedAt     time.Time `json:"joinedAt"`
}

type GroupOrderItem struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	GroupOrderID uint    `gorm:"index;not null" json:"groupOrderId"`
	ItemID       uint    `json:"itemId"`
	Name         string  `json:"name"`
	Price        float64 `gorm:"type:decimal(10,2)" json:"price"`
	Quantity     int     `json:"quantity"`
	Subtotal     float64 `gorm:"type:decimal(10,2)" json:"subtotal"`
}

// GroupOrderShare is one payer's slice of the cart and the order/transaction minted for it.
type GroupOrderShare struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	GroupOrderID  uint        `gorm:"index;not null" json:"groupOrderId"`
	UserID        uint        `gorm:"index;not null" json:"userId"`
	Amount        float64     `gorm:"type:decimal(10,2)" json:"amount"`
	OrderID       *uint       `json:"orderId,omitempty"`
	TransactionID *uint       `json:"transactionId,omitempty"`
	Status        ShareStatus `gorm:"size:20" json:"status"`
	UpdatedAt     time.Time   `json:"updatedAt"`
}

type CreateGroupOrderInput struct {
	CanteenID uint `json:"canteenId" validate:"required,gt=0"`
}

type JoinGroupOrderInput struct {
	Link string `json:"link" validate:"required"`
}

type UpdateGroupOrderInput struct {
	GroupOrderID  uint            `json:"groupOrderId" validate:"required,gt=0"`
	Items         []LineItemInput `json:"items" validate:"required,min=1,dive"`
	SplitType     SplitType       `json:"splitType" validate:"required,oneof=equal custom"`
	Amounts       []MemberAmount  `json:"amounts" validate:"omitempty,dive"`
	PayerID       *uint           `json:"payerId" validate:"omitempty,gt=0"`
	PaymentMethod PaymentMethod   `json:"paymentMethod" validate:"required,oneof=cod upi"`
	PickupTime    time.Time       `json:"pickupTime" validate:"required"`
}

type MemberAmount struct {
	UserID uint    `json:"userId" validate:"required,gt=0"`
	Amount float64 `json:"amount" validate:"gte=0"`
}

type UpdateGroupStatusInput struct {
	GroupOrderID uint        `json:"groupOrderId" validate:"required,gt=0"`
	Status       OrderStatus `json:"status" validate:"required,oneof=preparing ready completed cancelled"`
}

type MemberTransaction struct {
	UserID         uint              `json:"userId"`
	OrderID        uint              `json:"orderId"`
	OrderNumber    string            `json:"orderNumber"`
	TransactionID  uint              `json:"transactionId"`
	GatewayOrderID string            `json:"gatewayOrderId,omitempty"`
	Amount         float64           `json:"amount"`
	Status         TransactionStatus `json:"status"`
}

type GroupOrderResponse struct {
	ID            uint               `json:"id"`
	OrderNumber   string             `json:"orderNumber"`
	CreatorID     uint               `json:"creatorId"`
	CanteenID     uint               `json:"canteenId"`
	JoinCode      string             `json:"joinCode"`
	JoinLink      string             `json:"joinLink"`
	QRCode        string             `json:"qrCode,omitempty"`
	Members       []GroupOrderMember `json:"members"`
	Items         []GroupOrderItem   `json:"items"`
	Shares        []GroupOrderShare  `json:"shares"`
	TotalAmount   float64            `json:"totalAmount"`
	SplitType     SplitType          `json:"splitType,omitempty"`
	PaymentMethod PaymentMethod      `json:"paymentMethod,omitempty"`
	Status        GroupStatus        `json:"status"`
}
