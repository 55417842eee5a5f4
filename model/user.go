package model

// User, Canteen and Item are owned by the CRUD side of the platform.
// The engine only resolves them and snapshots names and prices.
type User struct {
	DTO
	Name     string `gorm:"not null" json:"name"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`
	Role     string `gorm:"not null;default:'student'" json:"role"`
}

type Canteen struct {
	DTO
	Name    string `gorm:"not null" json:"name"`
	Slug    string `gorm:"uniqueIndex" json:"slug"`
	OwnerID uint   `gorm:"index" json:"ownerId"`
	IsOpen  bool   `gorm:"default:true" json:"isOpen"`
	Owner   User   `gorm:"foreignKey:OwnerID" json:"-"`
}

type Item struct {
	DTO
	CanteenID   uint    `gorm:"index;not null" json:"canteenId"`
	Name        string  `gorm:"not null" json:"name"`
	Price       float64 `gorm:"type:decimal(10,2);not null" json:"price"`
	IsAvailable bool    `gorm:"default:true" json:"isAvailable"`
}
