package di

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prohmpiriya/ticket-storefront/internal/handler"
	"github.com/prohmpiriya/ticket-storefront/internal/payment"
	"github.com/prohmpiriya/ticket-storefront/internal/repository"
	"github.com/prohmpiriya/ticket-storefront/internal/service"
	"github.com/prohmpiriya/ticket-storefront/internal/worker"
	"github.com/prohmpiriya/ticket-storefront/pkg/config"
	"github.com/prohmpiriya/ticket-storefront/pkg/database"
	"github.com/prohmpiriya/ticket-storefront/pkg/middleware"
	"github.com/prohmpiriya/ticket-storefront/pkg/redis"
	"github.com/prohmpiriya/ticket-storefront/pkg/retry"
)

// Container holds all dependencies for the storefront
type Container struct {
	// Infrastructure
	DB    *database.PostgresDB
	Redis *redis.Client

	// Repositories
	TicketTypeRepo repository.TicketTypeRepository
	SaleRepo       repository.SaleRepository
	Ledger         repository.InventoryLedger

	// Payments
	Payments *payment.Registry

	// Publishers
	Notifier service.Notifier

	// Services
	TransitionService service.TransitionService
	PurchaseService   service.PurchaseService
	TicketTypeService service.TicketTypeService

	// Workers
	ExpiryWorker *worker.ExpiryWorker

	// Handlers
	HealthHandler     *handler.HealthHandler
	SaleHandler       *handler.SaleHandler
	TicketTypeHandler *handler.TicketTypeHandler
	WebhookHandler    *handler.WebhookHandler

	stripeWebhook bool
	simulation    bool
}

// ContainerConfig contains configuration for building the container.
// DB and Redis may be nil when the configured backends do not need them.
type ContainerConfig struct {
	Config   *config.Config
	DB       *database.PostgresDB
	Redis    *redis.Client
	Notifier service.Notifier
	// Payments overrides the registry built from Config.Payment
	Payments *payment.Registry
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) (*Container, error) {
	if cfg == nil || cfg.Config == nil {
		return nil, fmt.Errorf("container config is required")
	}
	appCfg := cfg.Config

	c := &Container{
		DB:       cfg.DB,
		Redis:    cfg.Redis,
		Notifier: cfg.Notifier,
		Payments: cfg.Payments,
	}
	if c.Notifier == nil {
		c.Notifier = service.NewNoOpNotifier()
	}

	if err := c.buildRepositories(appCfg); err != nil {
		return nil, err
	}

	if c.Payments == nil {
		registry, err := payment.NewRegistryFromConfig(&appCfg.Payment)
		if err != nil {
			return nil, fmt.Errorf("failed to build payment backends: %w", err)
		}
		c.Payments = registry
	}

	// Initialize services
	c.TransitionService = service.NewTransitionService(c.SaleRepo, c.Ledger, c.Notifier)
	c.PurchaseService = service.NewPurchaseService(
		c.TicketTypeRepo,
		c.Ledger,
		c.SaleRepo,
		c.Payments,
		c.TransitionService,
		c.Notifier,
		&service.PurchaseServiceConfig{
			MaxPerTransaction: appCfg.Sales.MaxPerTransaction,
			Currency:          appCfg.Payment.Currency,
			ReleaseRetry:      retry.DefaultConfig(),
			ConfirmRetry:      retry.DefaultConfig(),
		},
	)
	c.TicketTypeService = service.NewTicketTypeService(c.TicketTypeRepo, c.Ledger, c.SaleRepo)

	// Initialize workers
	c.ExpiryWorker = worker.NewExpiryWorker(c.SaleRepo, c.TransitionService, &worker.ExpiryWorkerConfig{
		ScanInterval: appCfg.Sales.SweepInterval,
		BatchSize:    appCfg.Sales.SweepBatchSize,
		ReminderLead: appCfg.Sales.ReminderLead,
		SettleGrace:  appCfg.Sales.SettleGrace,
	})

	// Initialize handlers
	checkers := make(map[string]handler.HealthChecker)
	if c.DB != nil {
		checkers["database"] = c.DB
	}
	if c.Redis != nil {
		checkers["redis"] = c.Redis
	}
	c.HealthHandler = handler.NewHealthHandler(checkers)
	c.SaleHandler = handler.NewSaleHandler(c.PurchaseService, c.TransitionService)
	c.TicketTypeHandler = handler.NewTicketTypeHandler(c.TicketTypeService)
	c.WebhookHandler = handler.NewWebhookHandler(c.TransitionService, appCfg.Payment.WebhookSecret, appCfg.Payment.StripeWebhookKey)
	c.stripeWebhook = appCfg.Payment.StripeWebhookKey != ""
	c.simulation = appCfg.PaymentSimulationEnabled()

	return c, nil
}

func (c *Container) buildRepositories(cfg *config.Config) error {
	switch cfg.Storage.Backend {
	case "postgres":
		if c.DB == nil {
			return fmt.Errorf("postgres storage requires a database connection")
		}
		c.SaleRepo = repository.NewPostgresSaleRepository(c.DB.Pool())
		c.TicketTypeRepo = repository.NewPostgresTicketTypeRepository(c.DB.Pool())
	case "memory":
		c.SaleRepo = repository.NewMemorySaleRepository()
		c.TicketTypeRepo = repository.NewMemoryTicketTypeRepository(c.SaleRepo)
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	switch cfg.Storage.InventoryBackend {
	case "redis":
		if c.Redis == nil {
			return fmt.Errorf("redis inventory requires a redis connection")
		}
		c.Ledger = repository.NewRedisInventoryLedger(c.Redis)
	case "postgres":
		if c.DB == nil {
			return fmt.Errorf("postgres inventory requires a database connection")
		}
		c.Ledger = repository.NewPostgresInventoryLedger(c.DB.Pool())
	case "memory":
		c.Ledger = repository.NewMemoryInventoryLedger()
	default:
		return fmt.Errorf("unknown inventory backend %q", cfg.Storage.InventoryBackend)
	}
	return nil
}

// Router builds the HTTP router. POST /sales honours Idempotency-Key when
// Redis is available.
func (c *Container) Router(serviceName string) *gin.Engine {
	var idempotency gin.HandlerFunc
	if c.Redis != nil {
		idempotency = middleware.Idempotency(&middleware.IdempotencyConfig{Redis: c.Redis.Client()})
	}
	return handler.NewRouter(&handler.RouterConfig{
		ServiceName:   serviceName,
		Sales:         c.SaleHandler,
		TicketTypes:   c.TicketTypeHandler,
		Webhooks:      c.WebhookHandler,
		Health:        c.HealthHandler,
		Idempotency:   idempotency,
		StripeWebhook: c.stripeWebhook,
		Simulation:    c.simulation,
	})
}
