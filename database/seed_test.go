package database

import (
	"testing"

	"github.com/campusbitesindia/cbBackend-sub000/logging"
	"github.com/campusbitesindia/cbBackend-sub000/model"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestSeedData_IsIdempotent(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(Models()...))

	require.NoError(t, SeedData(db, logging.Discard()))
	require.NoError(t, SeedData(db, logging.Discard()))

	var users, canteens, items int64
	db.Model(&model.User{}).Count(&users)
	db.Model(&model.Canteen{}).Count(&canteens)
	db.Model(&model.Item{}).Count(&items)
	assert.Equal(t, int64(3), users)
	assert.Equal(t, int64(1), canteens)
	assert.Equal(t, int64(4), items)

	var canteen model.Canteen
	require.NoError(t, db.First(&canteen).Error)
	assert.Equal(t, "main-block-canteen", canteen.Slug)
}
