package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaleEventKind names what happened to a sale
type SaleEventKind string

const (
	SaleEventCreated   SaleEventKind = "created"
	SaleEventConfirmed SaleEventKind = "confirmed"
	SaleEventExpired   SaleEventKind = "expired"
	SaleEventCancelled SaleEventKind = "cancelled"
	SaleEventReminder  SaleEventKind = "reminder"
)

// IsValid checks if the kind is known
func (k SaleEventKind) IsValid() bool {
	switch k {
	case SaleEventCreated, SaleEventConfirmed, SaleEventExpired, SaleEventCancelled, SaleEventReminder:
		return true
	}
	return false
}

// SaleEvent is published to the notification gateway
type SaleEvent struct {
	ID             string          `json:"id"`
	Kind           SaleEventKind   `json:"kind"`
	SaleCode       string          `json:"sale_code"`
	TicketTypeID   string          `json:"ticket_type_id"`
	BuyerEmail     string          `json:"buyer_email"`
	BuyerName      string          `json:"buyer_name"`
	Quantity       int             `json:"quantity"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	BusinessStatus BusinessStatus  `json:"business_status"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// NewSaleEvent snapshots sale into an event of the given kind
func NewSaleEvent(kind SaleEventKind, sale *Sale) *SaleEvent {
	return &SaleEvent{
		ID:             uuid.NewString(),
		Kind:           kind,
		SaleCode:       sale.Code,
		TicketTypeID:   sale.TicketTypeID,
		BuyerEmail:     sale.Buyer.Email,
		BuyerName:      sale.Buyer.Name,
		Quantity:       sale.Quantity,
		Amount:         sale.Amount,
		Currency:       sale.Currency,
		PaymentMethod:  sale.PaymentMethod,
		PaymentStatus:  sale.PaymentStatus,
		BusinessStatus: sale.BusinessStatus,
		ExpiresAt:      sale.ExpiresAt,
		OccurredAt:     time.Now().UTC(),
	}
}
