package model

type Counter struct {
	Name string `gorm:"primaryKey;size:64" json:"name"`
	Seq  int64  `gorm:"not null;default:0" json:"seq"`
}
