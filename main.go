package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/campusbitesindia/cbBackend-sub000/config"
	"github.com/campusbitesindia/cbBackend-sub000/constants"
	"github.com/campusbitesindia/cbBackend-sub000/database"
	"github.com/campusbitesindia/cbBackend-sub000/gateway"
	"github.com/campusbitesindia/cbBackend-sub000/handler"
	"github.com/campusbitesindia/cbBackend-sub000/logging"
	"github.com/campusbitesindia/cbBackend-sub000/model"
	"github.com/campusbitesindia/cbBackend-sub000/notify"
	"github.com/campusbitesindia/cbBackend-sub000/router"
	"github.com/campusbitesindia/cbBackend-sub000/service"
	"github.com/campusbitesindia/cbBackend-sub000/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()
	config.MustNonEmpty(string(cfg.JWTSecret), "JWT_SECRET")
	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)
	utils.Detailed = cfg.IsDevelopment()

	db, err := database.Open(cfg, logger)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	if err := database.SeedData(db, logger); err != nil {
		logger.Error("seed failed", "error", err)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
	}
	notifier, closeNotifier := buildNotifier(cfg, db, rdb, logger)
	defer closeNotifier()

	gw := gateway.NewRazorpay(gateway.RazorpayOptions{
		BaseURL:   cfg.Razorpay.BaseURL,
		KeyID:     cfg.Razorpay.KeyID,
		KeySecret: cfg.Razorpay.KeySecret,
		Timeout:   cfg.GatewayTimeout,
	})
	schemes := gateway.NewSchemes()
	schemes.Register(constants.PROVIDER_RAZORPAY, gateway.HMACSHA256{}, cfg.Razorpay.WebhookSecret)
	schemes.Register(constants.PROVIDER_PHONEPE, gateway.SaltedChecksum{SaltIndex: cfg.PhonePe.SaltIndex}, cfg.PhonePe.SaltKey)

	engine := service.New(service.Options{
		DB:       db,
		Gateway:  gw,
		Schemes:  schemes,
		Notifier: notifier,
		Log:      logger,
		AppURL:   cfg.AppURL,
	})
	if err := engine.Sweeper.Start(cfg.SweepInterval); err != nil {
		log.Fatalf("sweeper: %v", err)
	}
	defer engine.Sweeper.Stop()

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AppURL,
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Authorization, Accept, X-Device-Id",
		AllowCredentials: true,
		ExposeHeaders:    "Set-Cookie",
		MaxAge:           600,
	}))

	router.SetupRoutes(app, &handler.Handler{
		Engine:       engine,
		DB:           db,
		Redis:        rdb,
		JWTSecret:    cfg.JWTSecret,
		SecureCookie: !cfg.IsDevelopment(),
		Log:          logger,
	})

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		_ = app.Shutdown()
	}()

	logger.Info("server starting", "port", cfg.Port, "env", cfg.Env)
	if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
		log.Fatal(err)
	}
}

// buildNotifier fans out to every configured transport and falls back to the log.
func buildNotifier(cfg config.AppConfig, db *gorm.DB, rdb *redis.Client, logger *slog.Logger) (notify.Notifier, func()) {
	var targets notify.Multi
	closers := []func(){}

	if rdb != nil {
		targets = append(targets, notify.Redis{Client: rdb})
	}
	if cfg.SMTP.Host != "" {
		targets = append(targets, notify.NewMail(notify.MailConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, func(ctx context.Context, userID uint) (string, error) {
			var user model.User
			if err := db.WithContext(ctx).Select("email").First(&user, userID).Error; err != nil {
				return "", err
			}
			return user.Email, nil
		}))
	}
	if cfg.AMQPURL != "" {
		mq, err := notify.DialAMQP(cfg.AMQPURL)
		if err != nil {
			logger.Error("rabbitmq unavailable, order events will not be published", "error", err)
		} else {
			targets = append(targets, mq)
			closers = append(closers, func() { _ = mq.Close() })
		}
	}
	if len(targets) == 0 {
		targets = append(targets, notify.Log{Log: logger})
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return notify.Async{Next: targets, Log: logger}, closeAll
}
