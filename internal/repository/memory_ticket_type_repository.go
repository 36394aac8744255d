package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
)

// MemoryTicketTypeRepository implements TicketTypeRepository in memory.
// Counters are owned by the inventory ledger; the copy kept here only
// carries capacity.
type MemoryTicketTypeRepository struct {
	mu    sync.RWMutex
	types map[string]*domain.TicketType
	sales SaleRepository
}

// NewMemoryTicketTypeRepository creates a new MemoryTicketTypeRepository.
// sales, when set, blocks deletion of referenced ticket types.
func NewMemoryTicketTypeRepository(sales SaleRepository) *MemoryTicketTypeRepository {
	return &MemoryTicketTypeRepository{types: make(map[string]*domain.TicketType), sales: sales}
}

// Create stores a ticket type with zeroed counters
func (r *MemoryTicketTypeRepository) Create(ctx context.Context, tt *domain.TicketType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *tt
	c.Reserved, c.Sold = 0, 0
	r.types[tt.ID] = &c
	return nil
}

// GetByID returns a copy of the ticket type
func (r *MemoryTicketTypeRepository) GetByID(ctx context.Context, id string) (*domain.TicketType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tt, ok := r.types[id]
	if !ok {
		return nil, domain.ErrTicketTypeNotFound
	}
	c := *tt
	return &c, nil
}

// ListByEvent returns the ticket types of one event, oldest first
func (r *MemoryTicketTypeRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.TicketType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.TicketType
	for _, tt := range r.types {
		if tt.EventID == eventID {
			c := *tt
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Update writes the editable fields and keeps the stored counters
func (r *MemoryTicketTypeRepository) Update(ctx context.Context, tt *domain.TicketType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.types[tt.ID]
	if !ok {
		return domain.ErrTicketTypeNotFound
	}
	existing.Label = tt.Label
	existing.UnitPrice = tt.UnitPrice
	existing.Capacity = tt.Capacity
	existing.Active = tt.Active
	existing.KitContents = tt.KitContents
	existing.UpdatedAt = tt.UpdatedAt
	return nil
}

// Delete removes a ticket type that no sale references
func (r *MemoryTicketTypeRepository) Delete(ctx context.Context, id string) error {
	if r.sales != nil {
		count, err := r.sales.CountByTicketType(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return domain.ErrTicketTypeInUse
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[id]; !ok {
		return domain.ErrTicketTypeNotFound
	}
	delete(r.types, id)
	return nil
}

var _ TicketTypeRepository = (*MemoryTicketTypeRepository)(nil)
