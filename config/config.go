package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var loadOnce sync.Once

func loadEnv() {
	loadOnce.Do(func() {
		if err := godotenv.Load(".env"); err != nil {
			log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
		}
	})
}

// Config returns the value of a single environment key.
func Config(key string) string {
	loadEnv()
	return os.Getenv(key)
}

type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
	AppURL   string

	DBDriver   string
	DBDSN      string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string

	JWTSecret []byte

	Razorpay RazorpayConfig
	PhonePe  PhonePeConfig

	GatewayTimeout time.Duration
	SweepInterval  time.Duration

	RedisAddr string
	AMQPURL   string
	SMTP      SMTPConfig
}

type RazorpayConfig struct {
	BaseURL       string
	KeyID         string
	KeySecret     string
	WebhookSecret string
}

type PhonePeConfig struct {
	SaltKey   string
	SaltIndex string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func Load() AppConfig {
	loadEnv()
	return AppConfig{
		Env:      EnvDefault("APP_ENV", "production"),
		Port:     EnvIntDefault("PORT", 8002),
		LogLevel: EnvDefault("LOG_LEVEL", "info"),
		AppURL:   EnvDefault("APP_URL", "http://localhost:5173"),

		DBDriver:   EnvDefault("DB_DRIVER", "postgres"),
		DBDSN:      os.Getenv("DB_DSN"),
		DBHost:     EnvDefault("DB_HOST", "localhost"),
		DBPort:     EnvIntDefault("DB_PORT", 5432),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		JWTSecret: []byte(os.Getenv("JWT_SECRET")),

		Razorpay: RazorpayConfig{
			BaseURL:       EnvDefault("RAZORPAY_BASE_URL", "https://api.razorpay.com"),
			KeyID:         os.Getenv("RAZORPAY_KEY_ID"),
			KeySecret:     os.Getenv("RAZORPAY_KEY_SECRET"),
			WebhookSecret: os.Getenv("RAZORPAY_WEBHOOK_SECRET"),
		},
		PhonePe: PhonePeConfig{
			SaltKey:   os.Getenv("PHONEPE_SALT_KEY"),
			SaltIndex: EnvDefault("PHONEPE_SALT_INDEX", "1"),
		},

		GatewayTimeout: EnvDurationDefault("GATEWAY_TIMEOUT", 10*time.Second),
		SweepInterval:  EnvDurationDefault("SWEEP_INTERVAL", 2*time.Minute),

		RedisAddr: os.Getenv("REDIS_ADDR"),
		AMQPURL:   os.Getenv("AMQP_URL"),
		SMTP: SMTPConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     EnvIntDefault("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},
	}
}

func (c AppConfig) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development")
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func MustNonEmpty(value, envName string) {
	if value == "" {
		log.Fatalf("missing required env %s", envName)
	}
}
