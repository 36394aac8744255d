package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	OTel         OTelConfig         `mapstructure:"otel"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Payment      PaymentConfig      `mapstructure:"payment"`
	Sales        SalesConfig        `mapstructure:"sales"`
	Notification NotificationConfig `mapstructure:"notification"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// Addr returns the listen address
func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig holds Kafka/Redpanda connection settings
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	ClientID      string   `mapstructure:"client_id"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// StorageConfig selects the persistence backends
type StorageConfig struct {
	Backend          string `mapstructure:"backend"`           // postgres, memory
	InventoryBackend string `mapstructure:"inventory_backend"` // redis, postgres, memory
}

// PaymentConfig holds payment backend settings
type PaymentConfig struct {
	CardProcessor      string        `mapstructure:"card_processor"` // sandbox, stripe
	SandboxDeclineRate float64       `mapstructure:"sandbox_decline_rate"`
	SandboxDelay       time.Duration `mapstructure:"sandbox_delay"`
	StripeSecretKey    string        `mapstructure:"stripe_secret_key"`
	StripeWebhookKey   string        `mapstructure:"stripe_webhook_secret"`
	Currency           string        `mapstructure:"currency"`
	MerchantName       string        `mapstructure:"merchant_name"`
	MerchantCity       string        `mapstructure:"merchant_city"`
	PixKey             string        `mapstructure:"pix_key"`
	PixExpiry          time.Duration `mapstructure:"pix_expiry"`
	PixQREnabled       bool          `mapstructure:"pix_qr_enabled"`
	BankCode           string        `mapstructure:"bank_code"`
	BankSlipDueDays    int           `mapstructure:"bank_slip_due_days"`
	WebhookSecret      string        `mapstructure:"webhook_secret"`
	CardConfirmWindow  time.Duration `mapstructure:"card_confirm_window"`
	SimulationEnabled  bool          `mapstructure:"simulation_enabled"` // manual confirm/expire routes
}

// SalesConfig holds purchase and sweep settings
type SalesConfig struct {
	MaxPerTransaction int           `mapstructure:"max_per_transaction"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	SweepBatchSize    int           `mapstructure:"sweep_batch_size"`
	ReminderLead      time.Duration `mapstructure:"reminder_lead"`
	SettleGrace       time.Duration `mapstructure:"settle_grace"`
}

// NotificationConfig holds sale event and email settings
type NotificationConfig struct {
	Topic           string        `mapstructure:"topic"`
	EmailServiceURL string        `mapstructure:"email_service_url"`
	EmailAPIKey     string        `mapstructure:"email_api_key"`
	EmailTimeout    time.Duration `mapstructure:"email_timeout"`
	EmailMaxRetries int           `mapstructure:"email_max_retries"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom loads configuration through an existing viper instance so
// commands can bind CLI flags before reading.
func LoadFrom(v *viper.Viper) (*Config, error) {
	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// .env is optional, environment variables may carry everything
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read .env: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := bindConfig(v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "ticket-storefront")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "10s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	// Database defaults
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "storefront")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 10)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "30m")
	v.SetDefault("DATABASE_AUTO_MIGRATE", true)

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka defaults
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CONSUMER_GROUP", "ticket-storefront")
	v.SetDefault("KAFKA_CLIENT_ID", "ticket-storefront")

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "ticket-storefront")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	// Storage defaults
	v.SetDefault("STORAGE_BACKEND", "postgres")
	v.SetDefault("STORAGE_INVENTORY_BACKEND", "redis")

	// Payment defaults
	v.SetDefault("PAYMENT_CARD_PROCESSOR", "sandbox")
	v.SetDefault("PAYMENT_SANDBOX_DECLINE_RATE", 0.01)
	v.SetDefault("PAYMENT_SANDBOX_DELAY", "0s")
	v.SetDefault("PAYMENT_STRIPE_SECRET_KEY", "")
	v.SetDefault("PAYMENT_STRIPE_WEBHOOK_SECRET", "")
	v.SetDefault("PAYMENT_CURRENCY", "BRL")
	v.SetDefault("PAYMENT_MERCHANT_NAME", "TICKET STOREFRONT")
	v.SetDefault("PAYMENT_MERCHANT_CITY", "SAO PAULO")
	v.SetDefault("PAYMENT_PIX_KEY", "pix@ticket-storefront.example")
	v.SetDefault("PAYMENT_PIX_EXPIRY", "30m")
	v.SetDefault("PAYMENT_PIX_QR_ENABLED", true)
	v.SetDefault("PAYMENT_BANK_CODE", "001")
	v.SetDefault("PAYMENT_BANK_SLIP_DUE_DAYS", 3)
	v.SetDefault("PAYMENT_WEBHOOK_SECRET", "change-me")
	v.SetDefault("PAYMENT_CARD_CONFIRM_WINDOW", "15m")
	v.SetDefault("PAYMENT_SIMULATION_ENABLED", true)

	// Sales defaults
	v.SetDefault("SALES_MAX_PER_TRANSACTION", 10)
	v.SetDefault("SALES_SWEEP_INTERVAL", "1m")
	v.SetDefault("SALES_SWEEP_BATCH_SIZE", 100)
	v.SetDefault("SALES_REMINDER_LEAD", "24h")
	v.SetDefault("SALES_SETTLE_GRACE", "1m")

	// Notification defaults
	v.SetDefault("NOTIFICATION_TOPIC", "sale-events")
	v.SetDefault("NOTIFICATION_EMAIL_SERVICE_URL", "http://localhost:8025")
	v.SetDefault("NOTIFICATION_EMAIL_API_KEY", "")
	v.SetDefault("NOTIFICATION_EMAIL_TIMEOUT", "5s")
	v.SetDefault("NOTIFICATION_EMAIL_MAX_RETRIES", 3)
}

func bindConfig(v *viper.Viper) *Config {
	cfg := &Config{}

	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")

	// Database
	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxOpenConns = v.GetInt("DATABASE_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = v.GetInt("DATABASE_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")
	cfg.Database.AutoMigrate = v.GetBool("DATABASE_AUTO_MIGRATE")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	cfg.Kafka.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.Kafka.ConsumerGroup = v.GetString("KAFKA_CONSUMER_GROUP")
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	// Storage
	cfg.Storage.Backend = strings.ToLower(v.GetString("STORAGE_BACKEND"))
	cfg.Storage.InventoryBackend = strings.ToLower(v.GetString("STORAGE_INVENTORY_BACKEND"))

	// Payment
	cfg.Payment.CardProcessor = strings.ToLower(v.GetString("PAYMENT_CARD_PROCESSOR"))
	cfg.Payment.SandboxDeclineRate = v.GetFloat64("PAYMENT_SANDBOX_DECLINE_RATE")
	cfg.Payment.SandboxDelay = v.GetDuration("PAYMENT_SANDBOX_DELAY")
	cfg.Payment.StripeSecretKey = v.GetString("PAYMENT_STRIPE_SECRET_KEY")
	cfg.Payment.StripeWebhookKey = v.GetString("PAYMENT_STRIPE_WEBHOOK_SECRET")
	cfg.Payment.Currency = strings.ToUpper(v.GetString("PAYMENT_CURRENCY"))
	cfg.Payment.MerchantName = v.GetString("PAYMENT_MERCHANT_NAME")
	cfg.Payment.MerchantCity = v.GetString("PAYMENT_MERCHANT_CITY")
	cfg.Payment.PixKey = v.GetString("PAYMENT_PIX_KEY")
	cfg.Payment.PixExpiry = v.GetDuration("PAYMENT_PIX_EXPIRY")
	cfg.Payment.PixQREnabled = v.GetBool("PAYMENT_PIX_QR_ENABLED")
	cfg.Payment.BankCode = v.GetString("PAYMENT_BANK_CODE")
	cfg.Payment.BankSlipDueDays = v.GetInt("PAYMENT_BANK_SLIP_DUE_DAYS")
	cfg.Payment.WebhookSecret = v.GetString("PAYMENT_WEBHOOK_SECRET")
	cfg.Payment.CardConfirmWindow = v.GetDuration("PAYMENT_CARD_CONFIRM_WINDOW")
	cfg.Payment.SimulationEnabled = v.GetBool("PAYMENT_SIMULATION_ENABLED")

	// Sales
	cfg.Sales.MaxPerTransaction = v.GetInt("SALES_MAX_PER_TRANSACTION")
	cfg.Sales.SweepInterval = v.GetDuration("SALES_SWEEP_INTERVAL")
	cfg.Sales.SweepBatchSize = v.GetInt("SALES_SWEEP_BATCH_SIZE")
	cfg.Sales.ReminderLead = v.GetDuration("SALES_REMINDER_LEAD")
	cfg.Sales.SettleGrace = v.GetDuration("SALES_SETTLE_GRACE")

	// Notification
	cfg.Notification.Topic = v.GetString("NOTIFICATION_TOPIC")
	cfg.Notification.EmailServiceURL = v.GetString("NOTIFICATION_EMAIL_SERVICE_URL")
	cfg.Notification.EmailAPIKey = v.GetString("NOTIFICATION_EMAIL_API_KEY")
	cfg.Notification.EmailTimeout = v.GetDuration("NOTIFICATION_EMAIL_TIMEOUT")
	cfg.Notification.EmailMaxRetries = v.GetInt("NOTIFICATION_EMAIL_MAX_RETRIES")

	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Storage.Backend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid STORAGE_BACKEND: %q", c.Storage.Backend)
	}

	switch c.Storage.InventoryBackend {
	case "redis", "postgres", "memory":
	default:
		return fmt.Errorf("invalid STORAGE_INVENTORY_BACKEND: %q", c.Storage.InventoryBackend)
	}

	if c.Storage.Backend == "memory" && c.Storage.InventoryBackend == "postgres" {
		return fmt.Errorf("postgres inventory requires postgres storage")
	}

	switch c.Payment.CardProcessor {
	case "sandbox":
		if c.Payment.SandboxDeclineRate < 0 || c.Payment.SandboxDeclineRate > 1 {
			return fmt.Errorf("PAYMENT_SANDBOX_DECLINE_RATE must be within [0,1], got %v", c.Payment.SandboxDeclineRate)
		}
	case "stripe":
		if c.Payment.StripeSecretKey == "" {
			return fmt.Errorf("PAYMENT_STRIPE_SECRET_KEY is required for the stripe processor")
		}
	default:
		return fmt.Errorf("invalid PAYMENT_CARD_PROCESSOR: %q", c.Payment.CardProcessor)
	}

	if c.Payment.CardConfirmWindow <= 0 {
		return fmt.Errorf("PAYMENT_CARD_CONFIRM_WINDOW must be positive")
	}

	if c.Sales.MaxPerTransaction <= 0 {
		return fmt.Errorf("SALES_MAX_PER_TRANSACTION must be positive")
	}

	if c.IsProduction() && c.Payment.WebhookSecret == "change-me" {
		return fmt.Errorf("PAYMENT_WEBHOOK_SECRET must be changed in production")
	}

	return nil
}

// ValidateDatabase validates database configuration
func (c *Config) ValidateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DATABASE_HOST is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("DATABASE_DBNAME is required")
	}
	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// PaymentSimulationEnabled reports whether the manual confirm and expire
// routes are mounted. They are never mounted in production.
func (c *Config) PaymentSimulationEnabled() bool {
	return c.Payment.SimulationEnabled && !c.IsProduction()
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
