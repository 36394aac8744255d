package dto

import (
	"time"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/internal/service"
	"github.com/shopspring/decimal"
)

// CreateTicketTypeRequest represents request to create a ticket type
type CreateTicketTypeRequest struct {
	EventID     string          `json:"event_id"`
	Label       string          `json:"label"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Capacity    int             `json:"capacity"`
	Active      *bool           `json:"active,omitempty"`
	KitContents string          `json:"kit_contents,omitempty"`
}

// ToDomain converts the body to a ticket type; Active defaults to true
func (r *CreateTicketTypeRequest) ToDomain() *domain.TicketType {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return &domain.TicketType{
		EventID:     r.EventID,
		Label:       r.Label,
		UnitPrice:   r.UnitPrice,
		Capacity:    r.Capacity,
		Active:      active,
		KitContents: r.KitContents,
	}
}

// UpdateTicketTypeRequest represents request to edit a ticket type.
// Omitted fields keep their value.
type UpdateTicketTypeRequest struct {
	Label       *string          `json:"label,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	Capacity    *int             `json:"capacity,omitempty"`
	Active      *bool            `json:"active,omitempty"`
	KitContents *string          `json:"kit_contents,omitempty"`
}

// ToUpdate converts the body to a service update
func (r *UpdateTicketTypeRequest) ToUpdate() *service.TicketTypeUpdate {
	return &service.TicketTypeUpdate{
		Label:       r.Label,
		UnitPrice:   r.UnitPrice,
		Capacity:    r.Capacity,
		Active:      r.Active,
		KitContents: r.KitContents,
	}
}

// TicketTypeResponse represents a ticket type in API response
type TicketTypeResponse struct {
	ID          string          `json:"id"`
	EventID     string          `json:"event_id"`
	Label       string          `json:"label"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Capacity    int             `json:"capacity"`
	Reserved    int             `json:"reserved"`
	Sold        int             `json:"sold"`
	Available   int             `json:"available"`
	Active      bool            `json:"active"`
	KitContents string          `json:"kit_contents,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TicketTypeFromDomain converts domain TicketType to TicketTypeResponse
func TicketTypeFromDomain(t *domain.TicketType) *TicketTypeResponse {
	return &TicketTypeResponse{
		ID:          t.ID,
		EventID:     t.EventID,
		Label:       t.Label,
		UnitPrice:   t.UnitPrice,
		Capacity:    t.Capacity,
		Reserved:    t.Reserved,
		Sold:        t.Sold,
		Available:   t.Available(),
		Active:      t.Active,
		KitContents: t.KitContents,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// TicketTypesFromDomain converts a list
func TicketTypesFromDomain(list []*domain.TicketType) []*TicketTypeResponse {
	out := make([]*TicketTypeResponse, 0, len(list))
	for _, t := range list {
		out = append(out, TicketTypeFromDomain(t))
	}
	return out
}
