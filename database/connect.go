package database

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/campusbitesindia/cbBackend-sub000/config"
	"github.com/campusbitesindia/cbBackend-sub000/model"
	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Models lists every table the engine owns, in migration order.
func Models() []any {
	return []any{
		&model.User{},
		&model.Canteen{},
		&model.Item{},
		&model.Counter{},
		&model.Order{},
		&model.OrderItem{},
		&model.Transaction{},
		&model.Penalty{},
		&model.GroupOrder{},
		&model.GroupOrderMember{},
		&model.GroupOrderItem{},
		&model.GroupOrderShare{},
		&model.WebhookEvent{},
	}
}

// Open connects to the configured store and migrates it.
// DB_DRIVER=sqlite keeps everything on one connection so writes serialise.
func Open(cfg config.AppConfig, log *slog.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.DBDriver {
	case "sqlite":
		dsn := cfg.DBDSN
		if dsn == "" {
			dsn = "file:canteen.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
		}
		db, err = gorm.Open(sqlite.Open(dsn), gormCfg)
	case "postgres", "":
		dsn := cfg.DBDSN
		if dsn == "" {
			dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
				cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
		}
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	if cfg.DBDriver == "sqlite" {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	log.Info("connection opened to database", "driver", cfg.DBDriver)

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Info("database migrated")

	DB = db
	return db, nil
}
