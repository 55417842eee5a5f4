package model

import "time"

type Penalty struct {
	DTO
	DeviceID       string     `gorm:"index:idx_penalty_device_canteen;not null" json:"deviceId"`
	CanteenID      uint       `gorm:"index:idx_penalty_device_canteen;not null" json:"canteenId"`
	UserID         uint       `gorm:"index" json:"userId"`
	OrderID        uint       `gorm:"index" json:"orderId"`
	Amount         float64    `gorm:"type:decimal(10,2);not null" json:"amount"`
	IsPaid         bool       `gorm:"default:false" json:"isPaid"`
	Reason         string     `json:"reason"`
	AppliedOrderID *uint      `gorm:"index" json:"appliedOrderId,omitempty"`
	PaidAt         *time.Time `json:"paidAt,omitempty"`
}
