package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TicketType is a purchasable SKU of one event
type TicketType struct {
	ID          string          `json:"id"`
	EventID     string          `json:"event_id"`
	Label       string          `json:"label"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Capacity    int             `json:"capacity"`
	Reserved    int             `json:"reserved"`
	Sold        int             `json:"sold"`
	Active      bool            `json:"active"`
	KitContents string          `json:"kit_contents,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Available returns capacity minus reserved, never negative
func (t *TicketType) Available() int {
	if avail := t.Capacity - t.Reserved; avail > 0 {
		return avail
	}
	return 0
}

// Validate checks the editable fields
func (t *TicketType) Validate() error {
	if strings.TrimSpace(t.EventID) == "" {
		return NewValidationError("event_id", "is required")
	}
	if strings.TrimSpace(t.Label) == "" {
		return NewValidationError("label", "is required")
	}
	if t.UnitPrice.IsNegative() {
		return NewValidationError("unit_price", "cannot be negative")
	}
	if t.Capacity < 0 {
		return NewValidationError("capacity", "cannot be negative")
	}
	if t.Capacity < t.Reserved {
		return ErrCapacityBelowReserved
	}
	return nil
}

// InventorySnapshot is the ledger view of one ticket type
type InventorySnapshot struct {
	TicketTypeID string `json:"ticket_type_id"`
	Capacity     int    `json:"capacity"`
	Reserved     int    `json:"reserved"`
	Sold         int    `json:"sold"`
}

// Available returns capacity minus reserved, never negative
func (s InventorySnapshot) Available() int {
	if avail := s.Capacity - s.Reserved; avail > 0 {
		return avail
	}
	return 0
}
