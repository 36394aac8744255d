package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/internal/repository"
	"github.com/prohmpiriya/ticket-storefront/pkg/logger"
	"github.com/prohmpiriya/ticket-storefront/pkg/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// TicketTypeUpdate carries the editable fields; nil means unchanged
type TicketTypeUpdate struct {
	Label       *string
	UnitPrice   *decimal.Decimal
	Capacity    *int
	Active      *bool
	KitContents *string
}

// TicketTypeService manages the ticket type catalog. The inventory ledger
// owns the counters; catalog reads overlay them.
type TicketTypeService interface {
	Create(ctx context.Context, tt *domain.TicketType) (*domain.TicketType, error)
	Get(ctx context.Context, id string) (*domain.TicketType, error)
	ListByEvent(ctx context.Context, eventID string) ([]*domain.TicketType, error)
	Update(ctx context.Context, id string, update *TicketTypeUpdate) (*domain.TicketType, error)
	Delete(ctx context.Context, id string) error
}

type ticketTypeService struct {
	repo   repository.TicketTypeRepository
	ledger repository.InventoryLedger
	sales  repository.SaleRepository
	log    *logger.Logger
	now    func() time.Time
}

// NewTicketTypeService creates a new ticket type service
func NewTicketTypeService(repo repository.TicketTypeRepository, ledger repository.InventoryLedger, sales repository.SaleRepository) TicketTypeService {
	return &ticketTypeService{
		repo:   repo,
		ledger: ledger,
		sales:  sales,
		log:    logger.Get(),
		now:    time.Now,
	}
}

// Create stores a new ticket type and seeds its counters
func (s *ticketTypeService) Create(ctx context.Context, tt *domain.TicketType) (*domain.TicketType, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticket_type.create")
	defer span.End()

	tt.Label = strings.TrimSpace(tt.Label)
	tt.Reserved, tt.Sold = 0, 0
	if err := tt.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	tt.ID = uuid.New().String()
	tt.CreatedAt = now
	tt.UpdatedAt = now
	span.SetAttributes(attribute.String("ticket_type_id", tt.ID))

	if err := s.repo.Create(ctx, tt); err != nil {
		return nil, domain.NewInfrastructureError("ticket_type.create", err)
	}
	if err := s.ledger.SetCapacity(ctx, tt.ID, tt.Capacity); err != nil {
		if delErr := s.repo.Delete(ctx, tt.ID); delErr != nil {
			s.log.ErrorContext(ctx, "failed to roll back ticket type",
				zap.String("ticket_type_id", tt.ID),
				zap.Error(delErr),
			)
		}
		return nil, domain.NewInfrastructureError("ledger.set_capacity", err)
	}

	s.log.InfoContext(ctx, "ticket type created",
		zap.String("ticket_type_id", tt.ID),
		zap.String("event_id", tt.EventID),
		zap.Int("capacity", tt.Capacity),
	)
	return tt, nil
}

// Get returns a ticket type with live counters
func (s *ticketTypeService) Get(ctx context.Context, id string) (*domain.TicketType, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticket_type.get")
	defer span.End()
	span.SetAttributes(attribute.String("ticket_type_id", id))

	tt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if domain.IsNotFoundError(err) {
			return nil, domain.ErrTicketTypeNotFound
		}
		return nil, domain.NewInfrastructureError("ticket_type.get", err)
	}
	s.overlay(ctx, tt)
	return tt, nil
}

// ListByEvent returns the ticket types of one event with live counters
func (s *ticketTypeService) ListByEvent(ctx context.Context, eventID string) ([]*domain.TicketType, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticket_type.list")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID))

	types, err := s.repo.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, domain.NewInfrastructureError("ticket_type.list", err)
	}
	for _, tt := range types {
		s.overlay(ctx, tt)
	}
	return types, nil
}

// Update edits the catalog fields. A capacity change goes through the
// ledger first, which refuses to drop below the reserved count.
func (s *ticketTypeService) Update(ctx context.Context, id string, update *TicketTypeUpdate) (*domain.TicketType, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticket_type.update")
	defer span.End()
	span.SetAttributes(attribute.String("ticket_type_id", id))

	tt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	oldCapacity := tt.Capacity

	if update.Label != nil {
		tt.Label = strings.TrimSpace(*update.Label)
	}
	if update.UnitPrice != nil {
		tt.UnitPrice = *update.UnitPrice
	}
	if update.Capacity != nil {
		tt.Capacity = *update.Capacity
	}
	if update.Active != nil {
		tt.Active = *update.Active
	}
	if update.KitContents != nil {
		tt.KitContents = *update.KitContents
	}
	if err := tt.Validate(); err != nil {
		return nil, err
	}
	tt.UpdatedAt = s.now().UTC()

	if tt.Capacity != oldCapacity {
		if err := s.ledger.SetCapacity(ctx, id, tt.Capacity); err != nil {
			if errors.Is(err, domain.ErrCapacityBelowReserved) || domain.IsValidationError(err) {
				return nil, err
			}
			return nil, domain.NewInfrastructureError("ledger.set_capacity", err)
		}
	}

	if err := s.repo.Update(ctx, tt); err != nil {
		if tt.Capacity != oldCapacity {
			if rbErr := s.ledger.SetCapacity(ctx, id, oldCapacity); rbErr != nil {
				s.log.ErrorContext(ctx, "failed to restore capacity",
					zap.String("ticket_type_id", id),
					zap.Int("capacity", oldCapacity),
					zap.Error(rbErr),
				)
			}
		}
		if errors.Is(err, domain.ErrCapacityBelowReserved) || domain.IsNotFoundError(err) {
			return nil, err
		}
		return nil, domain.NewInfrastructureError("ticket_type.update", err)
	}

	s.overlay(ctx, tt)
	return tt, nil
}

// Delete removes a ticket type that no sale references
func (s *ticketTypeService) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.ticket_type.delete")
	defer span.End()
	span.SetAttributes(attribute.String("ticket_type_id", id))

	count, err := s.sales.CountByTicketType(ctx, id)
	if err != nil {
		return domain.NewInfrastructureError("sale.count", err)
	}
	if count > 0 {
		return domain.ErrTicketTypeInUse
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrTicketTypeInUse) || domain.IsNotFoundError(err) {
			return err
		}
		return domain.NewInfrastructureError("ticket_type.delete", err)
	}
	if err := s.ledger.Delete(ctx, id); err != nil {
		s.log.WarnContext(ctx, "failed to drop inventory counters",
			zap.String("ticket_type_id", id),
			zap.Error(err),
		)
	}
	return nil
}

// overlay copies the ledger counters onto tt; on failure the stored values stay
func (s *ticketTypeService) overlay(ctx context.Context, tt *domain.TicketType) {
	snap, err := s.ledger.Get(ctx, tt.ID)
	if err != nil {
		if !domain.IsNotFoundError(err) {
			s.log.WarnContext(ctx, "failed to read inventory counters",
				zap.String("ticket_type_id", tt.ID),
				zap.Error(err),
			)
		}
		return
	}
	tt.Capacity = snap.Capacity
	tt.Reserved = snap.Reserved
	tt.Sold = snap.Sold
}
