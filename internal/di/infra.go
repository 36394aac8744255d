package di

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/ticket-storefront/internal/repository"
	"github.com/prohmpiriya/ticket-storefront/internal/service"
	"github.com/prohmpiriya/ticket-storefront/pkg/config"
	"github.com/prohmpiriya/ticket-storefront/pkg/database"
	"github.com/prohmpiriya/ticket-storefront/pkg/kafka"
	"github.com/prohmpiriya/ticket-storefront/pkg/logger"
	pkgredis "github.com/prohmpiriya/ticket-storefront/pkg/redis"
	"github.com/prohmpiriya/ticket-storefront/pkg/telemetry"
	"go.uber.org/zap"
)

// Infra holds the connections a command opened; Close releases them
type Infra struct {
	DB    *database.PostgresDB
	Redis *pkgredis.Client
}

// NeedsPostgres reports whether the storage selection uses PostgreSQL
func NeedsPostgres(cfg *config.Config) bool {
	return cfg.Storage.Backend == "postgres" || cfg.Storage.InventoryBackend == "postgres"
}

// NeedsRedis reports whether the ledger lives in Redis
func NeedsRedis(cfg *config.Config) bool {
	return cfg.Storage.InventoryBackend == "redis"
}

// InitObservability sets up the logger, tracing and metric instruments
func InitObservability(ctx context.Context, cfg *config.Config, serviceName string) (*logger.Logger, error) {
	if err := logger.Init(&logger.Config{
		Level:       cfg.App.Environment,
		ServiceName: serviceName,
		Development: cfg.IsDevelopment(),
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		logger.Get().Warn("Tracing disabled", zap.Error(err))
	}
	return logger.Get(), nil
}

// ConnectPostgres opens the pool and applies the schema when AutoMigrate is set
func ConnectPostgres(ctx context.Context, cfg *config.Config) (*database.PostgresDB, error) {
	if err := cfg.ValidateDatabase(); err != nil {
		return nil, err
	}
	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   time.Second,
		EnableTracing:   cfg.OTel.Enabled,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := repository.EnsureSchema(ctx, db.Pool()); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return db, nil
}

// ConnectRedis opens the client and preloads the ledger scripts
func ConnectRedis(ctx context.Context, cfg *config.Config) (*pkgredis.Client, error) {
	client, err := pkgredis.NewClient(ctx, &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
		PoolTimeout:   4 * time.Second,
		MaxRetries:    3,
		RetryInterval: time.Second,
	})
	if err != nil {
		return nil, err
	}
	if err := repository.NewRedisInventoryLedger(client).LoadScripts(ctx); err != nil {
		logger.Get().Warn("Failed to pre-load Lua scripts", zap.Error(err))
	}
	return client, nil
}

// NewProducer connects a Kafka producer for clientID
func NewProducer(ctx context.Context, cfg *config.Config, clientID string) (*kafka.Producer, error) {
	return kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Kafka.Brokers,
		ClientID:      clientID,
		MaxRetries:    3,
		RetryInterval: 100 * time.Millisecond,
		LingerMs:      5,
	})
}

// ConnectStorage opens whatever the storage selection requires
func ConnectStorage(ctx context.Context, cfg *config.Config) (*Infra, error) {
	infra := &Infra{}
	if NeedsPostgres(cfg) {
		db, err := ConnectPostgres(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("database connection failed: %w", err)
		}
		infra.DB = db
	}
	if NeedsRedis(cfg) {
		client, err := ConnectRedis(ctx, cfg)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		infra.Redis = client
	}
	return infra, nil
}

// Close releases every open connection
func (i *Infra) Close() {
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	if i.DB != nil {
		i.DB.Close()
	}
}

// NewNotifier publishes sale events to Kafka, falling back to a no-op
// notifier when the brokers are unreachable
func NewNotifier(ctx context.Context, cfg *config.Config, serviceName string) service.Notifier {
	log := logger.Get()
	producer, err := NewProducer(ctx, cfg, serviceName)
	if err != nil {
		log.Warn("Kafka connection failed, using no-op notifier", zap.Error(err))
		return service.NewNoOpNotifier()
	}
	log.Info("Kafka sale event notifier connected", zap.String("topic", cfg.Notification.Topic))
	return service.NewKafkaNotifier(producer, &service.NotifierConfig{
		Topic:       cfg.Notification.Topic,
		ServiceName: serviceName,
		Close:       producer.Close,
	})
}
