package database

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/campusbitesindia/cbBackend-sub000/constants"
	"github.com/campusbitesindia/cbBackend-sub000/helper"
	"github.com/campusbitesindia/cbBackend-sub000/model"
	"gorm.io/gorm"
)

type seedItem struct {
	Name  string
	Price float64
}

// SeedData creates demo users, one canteen and its menu when they do not exist yet.
func SeedData(db *gorm.DB, log *slog.Logger) error {
	hash, err := helper.HashPassword("campus123")
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	users := []model.User{
		{Name: "Administrator", Email: "admin@campusbites.in", Password: hash, Role: constants.ROLE_ADMIN},
		{Name: "Main Canteen Vendor", Email: "vendor@campusbites.in", Password: hash, Role: constants.ROLE_VENDOR},
		{Name: "Demo Student", Email: "student@campusbites.in", Password: hash, Role: constants.ROLE_STUDENT},
	}
	for i := range users {
		if err := db.Where(model.User{Email: users[i].Email}).FirstOrCreate(&users[i]).Error; err != nil {
			log.Error("failed to seed user", "email", users[i].Email, "error", err)
		}
	}
	vendor := users[1]

	name := "Main Block Canteen"
	var canteen model.Canteen
	err = db.Where(model.Canteen{Name: name, OwnerID: vendor.ID}).First(&canteen).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		canteen = model.Canteen{Name: name, Slug: helper.GenerateUniqueCanteenSlug(db, name), OwnerID: vendor.ID, IsOpen: true}
		err = db.Create(&canteen).Error
	}
	if err != nil {
		return fmt.Errorf("seed canteen: %w", err)
	}

	menu := []seedItem{
		{Name: "Masala Dosa", Price: 60},
		{Name: "Veg Thali", Price: 90},
		{Name: "Paneer Roll", Price: 70},
		{Name: "Filter Coffee", Price: 20},
	}
	for _, m := range menu {
		item := model.Item{CanteenID: canteen.ID, Name: m.Name, Price: m.Price, IsAvailable: true}
		if err := db.Where(model.Item{CanteenID: canteen.ID, Name: m.Name}).FirstOrCreate(&item).Error; err != nil {
			log.Error("failed to seed item", "name", m.Name, "error", err)
		}
	}
	log.Info("seed data ready", "canteen", canteen.Slug)
	return nil
}
