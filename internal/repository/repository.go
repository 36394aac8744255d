package repository

import (
	"context"
	"time"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
)

// InventoryLedger owns the (capacity, reserved, sold) counters of each
// ticket type. Reserve is a single atomic check-and-increment in every
// implementation.
type InventoryLedger interface {
	// Reserve adds quantity to reserved when it fits and returns what is
	// left; otherwise *domain.InsufficientInventoryError, with no mutation
	Reserve(ctx context.Context, ticketTypeID string, quantity int) (int, error)

	// Release subtracts quantity from reserved, floored at zero. It applies
	// at most once per sale code; a repeat only reports availability.
	Release(ctx context.Context, ticketTypeID, saleCode string, quantity int) (int, error)

	// MarkSold moves quantity into the sold counter, capped at reserved. It
	// applies at most once per sale code.
	MarkSold(ctx context.Context, ticketTypeID, saleCode string, quantity int) error

	// SetCapacity creates or edits the counters; it rejects a capacity
	// below the current reserved count with domain.ErrCapacityBelowReserved
	SetCapacity(ctx context.Context, ticketTypeID string, capacity int) error

	// Get returns the current counters
	Get(ctx context.Context, ticketTypeID string) (*domain.InventorySnapshot, error)

	// Delete drops the counters of a removed ticket type
	Delete(ctx context.Context, ticketTypeID string) error
}

// SaleRepository persists sales
type SaleRepository interface {
	Create(ctx context.Context, sale *domain.Sale) error
	GetByCode(ctx context.Context, code string) (*domain.Sale, error)

	// CompareAndSwapState writes next only when the stored state still
	// equals expected. It returns false when another writer got there first.
	CompareAndSwapState(ctx context.Context, code string, expected, next domain.SaleState) (bool, error)

	// ListExpired returns pending, not cancelled sales whose deadline is at
	// or before now
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Sale, error)

	// ListReminderDue returns pending, not cancelled, not yet reminded sales
	// whose deadline falls in (now, before]
	ListReminderDue(ctx context.Context, now, before time.Time, limit int) ([]*domain.Sale, error)

	// ListUnsettled returns sales whose state owes a ledger side effect
	// (see domain.SaleState.Owed) last updated at or before updatedBefore
	ListUnsettled(ctx context.Context, updatedBefore time.Time, limit int) ([]*domain.Sale, error)

	// MarkReminded stamps reminded_at once; false means it was already set
	MarkReminded(ctx context.Context, code string, at time.Time) (bool, error)

	CountByTicketType(ctx context.Context, ticketTypeID string) (int, error)
}

// TicketTypeRepository persists the ticket type catalog. Update never
// touches the reserved or sold counters.
type TicketTypeRepository interface {
	Create(ctx context.Context, tt *domain.TicketType) error
	GetByID(ctx context.Context, id string) (*domain.TicketType, error)
	ListByEvent(ctx context.Context, eventID string) ([]*domain.TicketType, error)
	Update(ctx context.Context, tt *domain.TicketType) error
	Delete(ctx context.Context, id string) error
}
