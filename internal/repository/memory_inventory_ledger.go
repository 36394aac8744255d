package repository

import (
	"context"
	"sync"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
)

type inventoryCell struct {
	mu       sync.Mutex
	capacity int
	reserved int
	sold     int

	// sale codes whose release or sale was already applied
	released map[string]struct{}
	soldFor  map[string]struct{}
}

func newInventoryCell(capacity int) *inventoryCell {
	return &inventoryCell{
		capacity: capacity,
		released: make(map[string]struct{}),
		soldFor:  make(map[string]struct{}),
	}
}

func (c *inventoryCell) available() int {
	if avail := c.capacity - c.reserved; avail > 0 {
		return avail
	}
	return 0
}

// MemoryInventoryLedger serializes mutations per ticket type with one mutex
// each; different ticket types never contend. Only valid for a single
// process.
type MemoryInventoryLedger struct {
	mu    sync.RWMutex
	cells map[string]*inventoryCell
}

// NewMemoryInventoryLedger creates a new MemoryInventoryLedger
func NewMemoryInventoryLedger() *MemoryInventoryLedger {
	return &MemoryInventoryLedger{cells: make(map[string]*inventoryCell)}
}

func (l *MemoryInventoryLedger) cell(ticketTypeID string) (*inventoryCell, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.cells[ticketTypeID]
	return c, ok
}

// Reserve atomically reserves quantity units
func (l *MemoryInventoryLedger) Reserve(ctx context.Context, ticketTypeID string, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, domain.NewValidationError("quantity", "quantity must be positive")
	}
	c, ok := l.cell(ticketTypeID)
	if !ok {
		return 0, domain.ErrTicketTypeNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	available := c.capacity - c.reserved
	if available < 0 {
		available = 0
	}
	if c.reserved+quantity > c.capacity {
		return available, &domain.InsufficientInventoryError{Available: available}
	}
	c.reserved += quantity
	return c.capacity - c.reserved, nil
}

// Release returns quantity units to the pool once per sale code
func (l *MemoryInventoryLedger) Release(ctx context.Context, ticketTypeID, saleCode string, quantity int) (int, error) {
	if err := validateSettlement(saleCode, quantity); err != nil {
		return 0, err
	}
	c, ok := l.cell(ticketTypeID)
	if !ok {
		return 0, domain.ErrTicketTypeNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, done := c.released[saleCode]; done {
		return c.available(), nil
	}
	c.released[saleCode] = struct{}{}

	c.reserved -= quantity
	if c.reserved < 0 {
		c.reserved = 0
	}
	if c.sold > c.reserved {
		c.sold = c.reserved
	}
	return c.available(), nil
}

// MarkSold records quantity units as sold once per sale code
func (l *MemoryInventoryLedger) MarkSold(ctx context.Context, ticketTypeID, saleCode string, quantity int) error {
	if err := validateSettlement(saleCode, quantity); err != nil {
		return err
	}
	c, ok := l.cell(ticketTypeID)
	if !ok {
		return domain.ErrTicketTypeNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, done := c.soldFor[saleCode]; done {
		return nil
	}
	c.soldFor[saleCode] = struct{}{}

	c.sold += quantity
	if c.sold > c.reserved {
		c.sold = c.reserved
	}
	return nil
}

// SetCapacity creates or edits the counters
func (l *MemoryInventoryLedger) SetCapacity(ctx context.Context, ticketTypeID string, capacity int) error {
	if capacity < 0 {
		return domain.NewValidationError("capacity", "capacity cannot be negative")
	}

	l.mu.Lock()
	c, ok := l.cells[ticketTypeID]
	if !ok {
		l.cells[ticketTypeID] = newInventoryCell(capacity)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if capacity < c.reserved {
		return domain.ErrCapacityBelowReserved
	}
	c.capacity = capacity
	return nil
}

// Get reads the counters
func (l *MemoryInventoryLedger) Get(ctx context.Context, ticketTypeID string) (*domain.InventorySnapshot, error) {
	c, ok := l.cell(ticketTypeID)
	if !ok {
		return nil, domain.ErrTicketTypeNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return &domain.InventorySnapshot{
		TicketTypeID: ticketTypeID,
		Capacity:     c.capacity,
		Reserved:     c.reserved,
		Sold:         c.sold,
	}, nil
}

// Delete drops the counters
func (l *MemoryInventoryLedger) Delete(ctx context.Context, ticketTypeID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cells, ticketTypeID)
	return nil
}

func validateSettlement(saleCode string, quantity int) error {
	if saleCode == "" {
		return domain.NewValidationError("sale_code", "sale code is required")
	}
	if quantity <= 0 {
		return domain.NewValidationError("quantity", "quantity must be positive")
	}
	return nil
}

var _ InventoryLedger = (*MemoryInventoryLedger)(nil)
