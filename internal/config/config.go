package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config is the resolved application configuration.
type Config struct {
	AppPort     string
	AppBaseURL  string
	DBDriver    string
	DatabaseDSN string
	CORSOrigins string

	JWTSecret     string
	SessionCookie string
	SessionTTL    time.Duration
	SecureCookies bool

	RabbitMQURL      string
	RabbitMQExchange string

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	MailFrom     string

	PaymentBaseURL    string
	PaymentAPIKey     string
	PaymentSuccessURL string
	PaymentCancelURL  string

	UploadDir      string
	MaxUploadBytes int64

	Currency                 string
	DeliveryFee              decimal.Decimal
	UrgentFee                decimal.Decimal
	PrescriptionValidityDays int
	ReminderLead             time.Duration

	ExpiryInterval   time.Duration
	ReminderInterval time.Duration
	ReorderInterval  time.Duration
	NotifyInterval   time.Duration
	NotifyBatchSize  int
	NotifyMaxRetries int
	NotifyRetryBase  time.Duration

	JaegerEndpoint string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_PORT", ":8080")
	v.SetDefault("APP_BASE_URL", "http://localhost:3000")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DATABASE_DSN", "host=127.0.0.1 user=postgres password=postgres dbname=pharmacy port=5432 sslmode=disable")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("SESSION_COOKIE", "pharmacy_session")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("SECURE_COOKIES", false)
	v.SetDefault("RABBITMQ_URL", "")
	v.SetDefault("RABBITMQ_EXCHANGE", "pharmacy.events")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("MAIL_FROM", "no-reply@pharmacy.local")
	v.SetDefault("PAYMENT_BASE_URL", "")
	v.SetDefault("PAYMENT_SUCCESS_URL", "http://localhost:3000/checkout/success")
	v.SetDefault("PAYMENT_CANCEL_URL", "http://localhost:3000/checkout/cancel")
	v.SetDefault("UPLOAD_DIR", "./uploads")
	v.SetDefault("MAX_UPLOAD_BYTES", 5<<20)
	v.SetDefault("CURRENCY", "BHD")
	v.SetDefault("DELIVERY_FEE", "1")
	v.SetDefault("URGENT_FEE", "1")
	v.SetDefault("PRESCRIPTION_VALIDITY_DAYS", 90)
	v.SetDefault("REMINDER_LEAD", "24h")
	v.SetDefault("JOBS_EXPIRY_INTERVAL", "1h")
	v.SetDefault("JOBS_REMINDER_INTERVAL", "1h")
	v.SetDefault("JOBS_REORDER_INTERVAL", "6h")
	v.SetDefault("JOBS_NOTIFY_INTERVAL", "30s")
	v.SetDefault("NOTIFY_BATCH_SIZE", 50)
	v.SetDefault("NOTIFY_MAX_RETRIES", 5)
	v.SetDefault("NOTIFY_RETRY_BASE", "30s")
	v.SetDefault("JAEGER_ENDPOINT", "")
}

// Load resolves configuration from defaults, an optional .env file, an optional
// config.yaml and the environment, in increasing precedence.
func Load() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/pharmacy")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	v.AutomaticEnv()

	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	deliveryFee, err := decimal.NewFromString(v.GetString("DELIVERY_FEE"))
	if err != nil {
		return nil, fmt.Errorf("invalid DELIVERY_FEE: %w", err)
	}
	urgentFee, err := decimal.NewFromString(v.GetString("URGENT_FEE"))
	if err != nil {
		return nil, fmt.Errorf("invalid URGENT_FEE: %w", err)
	}

	cfg := &Config{
		AppPort:                  v.GetString("APP_PORT"),
		AppBaseURL:               strings.TrimRight(v.GetString("APP_BASE_URL"), "/"),
		DBDriver:                 strings.ToLower(v.GetString("DB_DRIVER")),
		DatabaseDSN:              v.GetString("DATABASE_DSN"),
		CORSOrigins:              v.GetString("CORS_ORIGINS"),
		JWTSecret:                v.GetString("JWT_SECRET"),
		SessionCookie:            v.GetString("SESSION_COOKIE"),
		SessionTTL:               v.GetDuration("SESSION_TTL"),
		SecureCookies:            v.GetBool("SECURE_COOKIES"),
		RabbitMQURL:              v.GetString("RABBITMQ_URL"),
		RabbitMQExchange:         v.GetString("RABBITMQ_EXCHANGE"),
		SMTPHost:                 v.GetString("SMTP_HOST"),
		SMTPPort:                 v.GetInt("SMTP_PORT"),
		SMTPUser:                 v.GetString("SMTP_USER"),
		SMTPPassword:             v.GetString("SMTP_PASSWORD"),
		MailFrom:                 v.GetString("MAIL_FROM"),
		PaymentBaseURL:           v.GetString("PAYMENT_BASE_URL"),
		PaymentAPIKey:            v.GetString("PAYMENT_API_KEY"),
		PaymentSuccessURL:        v.GetString("PAYMENT_SUCCESS_URL"),
		PaymentCancelURL:         v.GetString("PAYMENT_CANCEL_URL"),
		UploadDir:                v.GetString("UPLOAD_DIR"),
		MaxUploadBytes:           v.GetInt64("MAX_UPLOAD_BYTES"),
		Currency:                 v.GetString("CURRENCY"),
		DeliveryFee:              deliveryFee,
		UrgentFee:                urgentFee,
		PrescriptionValidityDays: v.GetInt("PRESCRIPTION_VALIDITY_DAYS"),
		ReminderLead:             v.GetDuration("REMINDER_LEAD"),
		ExpiryInterval:           v.GetDuration("JOBS_EXPIRY_INTERVAL"),
		ReminderInterval:         v.GetDuration("JOBS_REMINDER_INTERVAL"),
		ReorderInterval:          v.GetDuration("JOBS_REORDER_INTERVAL"),
		NotifyInterval:           v.GetDuration("JOBS_NOTIFY_INTERVAL"),
		NotifyBatchSize:          v.GetInt("NOTIFY_BATCH_SIZE"),
		NotifyMaxRetries:         v.GetInt("NOTIFY_MAX_RETRIES"),
		NotifyRetryBase:          v.GetDuration("NOTIFY_RETRY_BASE"),
		JaegerEndpoint:           v.GetString("JAEGER_ENDPOINT"),
	}

	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET must be set")
	}
	if cfg.DBDriver != "postgres" && cfg.DBDriver != "sqlite" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	return cfg, nil
}
