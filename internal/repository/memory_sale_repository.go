package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
)

// MemorySaleRepository implements SaleRepository in memory
type MemorySaleRepository struct {
	mu    sync.RWMutex
	sales map[string]*domain.Sale
}

// NewMemorySaleRepository creates a new MemorySaleRepository
func NewMemorySaleRepository() *MemorySaleRepository {
	return &MemorySaleRepository{sales: make(map[string]*domain.Sale)}
}

// Create stores a copy of sale
func (r *MemorySaleRepository) Create(ctx context.Context, sale *domain.Sale) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sales[sale.Code]; exists {
		return domain.ErrSaleCodeConflict
	}
	r.sales[sale.Code] = copySale(sale)
	return nil
}

// GetByCode returns a copy of the stored sale
func (r *MemorySaleRepository) GetByCode(ctx context.Context, code string) (*domain.Sale, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sale, ok := r.sales[code]
	if !ok {
		return nil, domain.ErrSaleNotFound
	}
	return copySale(sale), nil
}

// CompareAndSwapState swaps the state under the write lock
func (r *MemorySaleRepository) CompareAndSwapState(ctx context.Context, code string, expected, next domain.SaleState) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sale, ok := r.sales[code]
	if !ok {
		return false, domain.ErrSaleNotFound
	}
	if sale.SaleState != expected {
		return false, nil
	}
	sale.SaleState = next
	sale.UpdatedAt = time.Now()
	return true, nil
}

// ListExpired returns pending, not cancelled sales past their deadline, oldest first
func (r *MemorySaleRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Sale, error) {
	return r.filter(limit, byExpiresAt, func(s *domain.Sale) bool {
		return s.BusinessStatus == domain.BusinessStatusPending && s.IsExpired(now)
	}), nil
}

// ListReminderDue returns pending, not reminded sales with a deadline in (now, before]
func (r *MemorySaleRepository) ListReminderDue(ctx context.Context, now, before time.Time, limit int) ([]*domain.Sale, error) {
	return r.filter(limit, byExpiresAt, func(s *domain.Sale) bool {
		return s.PaymentStatus == domain.PaymentStatusPending &&
			s.BusinessStatus == domain.BusinessStatusPending &&
			s.RemindedAt == nil &&
			s.ExpiresAt != nil &&
			s.ExpiresAt.After(now) &&
			!s.ExpiresAt.After(before)
	}), nil
}

// ListUnsettled returns sales whose status change still owes a ledger
// settlement and that have not moved since updatedBefore
func (r *MemorySaleRepository) ListUnsettled(ctx context.Context, updatedBefore time.Time, limit int) ([]*domain.Sale, error) {
	return r.filter(limit, byUpdatedAt, func(s *domain.Sale) bool {
		return s.Owed() != domain.SettlementNone && !s.UpdatedAt.After(updatedBefore)
	}), nil
}

// MarkReminded stamps reminded_at once
func (r *MemorySaleRepository) MarkReminded(ctx context.Context, code string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sale, ok := r.sales[code]
	if !ok {
		return false, domain.ErrSaleNotFound
	}
	if sale.RemindedAt != nil || sale.PaymentStatus != domain.PaymentStatusPending {
		return false, nil
	}
	sale.RemindedAt = &at
	return true, nil
}

// CountByTicketType counts the sales that reference a ticket type
func (r *MemorySaleRepository) CountByTicketType(ctx context.Context, ticketTypeID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, s := range r.sales {
		if s.TicketTypeID == ticketTypeID {
			count++
		}
	}
	return count, nil
}

func byExpiresAt(s *domain.Sale) time.Time { return *s.ExpiresAt }

func byUpdatedAt(s *domain.Sale) time.Time { return s.UpdatedAt }

func (r *MemorySaleRepository) filter(limit int, key func(*domain.Sale) time.Time, keep func(*domain.Sale) bool) []*domain.Sale {
	r.mu.RLock()
	var out []*domain.Sale
	for _, s := range r.sales {
		if keep(s) {
			out = append(out, copySale(s))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return key(out[i]).Before(key(out[j]))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func copySale(s *domain.Sale) *domain.Sale {
	c := *s
	if s.ExpiresAt != nil {
		t := *s.ExpiresAt
		c.ExpiresAt = &t
	}
	if s.RemindedAt != nil {
		t := *s.RemindedAt
		c.RemindedAt = &t
	}
	if s.Artifact.DueDate != nil {
		t := *s.Artifact.DueDate
		c.Artifact.DueDate = &t
	}
	return &c
}

var _ SaleRepository = (*MemorySaleRepository)(nil)
