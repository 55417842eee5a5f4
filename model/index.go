package model

import "time"

type TokenClaim struct {
	UserId uint   `json:"userId"`
	Role   string `json:"role"`
	Name   string `json:"name"`
}

type DTO struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID   uint
	Role     string
	DeviceID string
}

type ArrayId struct {
	IDs []uint `json:"ids"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type TokenData struct {
	AccessToken string `json:"accessToken"`
}
