package dto

import (
	"time"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/internal/payment"
	"github.com/prohmpiriya/ticket-storefront/internal/service"
	"github.com/shopspring/decimal"
)

// BuyerRequest is the buyer block of a purchase
type BuyerRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	NationalID string `json:"national_id"`
	Phone      string `json:"phone,omitempty"`
}

// CardRequest carries card data for credit and debit purchases. Expiry
// accepts MM/YY or MM/YYYY; the split month and year fields are an
// alternative.
type CardRequest struct {
	Number      string `json:"number"`
	Holder      string `json:"holder"`
	Expiry      string `json:"expiry,omitempty"`
	ExpiryMonth int    `json:"expiry_month,omitempty"`
	ExpiryYear  int    `json:"expiry_year,omitempty"`
	CVV         string `json:"cvv"`
	// Token is a processor-side payment method reference
	Token string `json:"token,omitempty"`
}

// CreateSaleRequest represents request to purchase tickets
type CreateSaleRequest struct {
	TicketTypeID  string       `json:"ticket_type_id"`
	Quantity      int          `json:"quantity"`
	Buyer         BuyerRequest `json:"buyer"`
	PaymentMethod string       `json:"payment_method"`
	Card          *CardRequest `json:"card,omitempty"`
}

// ToPurchaseRequest converts the body to a service request
func (r *CreateSaleRequest) ToPurchaseRequest() *service.PurchaseRequest {
	req := &service.PurchaseRequest{
		TicketTypeID: r.TicketTypeID,
		Quantity:     r.Quantity,
		Buyer: domain.Buyer{
			Name:       r.Buyer.Name,
			Email:      r.Buyer.Email,
			NationalID: r.Buyer.NationalID,
			Phone:      r.Buyer.Phone,
		},
		PaymentMethod: domain.PaymentMethod(r.PaymentMethod),
	}
	if r.Card != nil {
		req.Card = &payment.CardDetails{
			Number:      r.Card.Number,
			Holder:      r.Card.Holder,
			Expiry:      r.Card.Expiry,
			ExpiryMonth: r.Card.ExpiryMonth,
			ExpiryYear:  r.Card.ExpiryYear,
			CVV:         r.Card.CVV,
			Token:       r.Card.Token,
		}
	}
	return req
}

// BuyerResponse omits the national id
type BuyerResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// SaleResponse represents a sale in API response
type SaleResponse struct {
	Code           string                 `json:"code"`
	TicketTypeID   string                 `json:"ticket_type_id"`
	EventID        string                 `json:"event_id"`
	Buyer          BuyerResponse          `json:"buyer"`
	Quantity       int                    `json:"quantity"`
	UnitPrice      decimal.Decimal        `json:"unit_price"`
	Amount         decimal.Decimal        `json:"amount"`
	Currency       string                 `json:"currency"`
	PaymentMethod  string                 `json:"payment_method"`
	PaymentStatus  string                 `json:"payment_status"`
	BusinessStatus string                 `json:"business_status"`
	Artifact       domain.PaymentArtifact `json:"artifact"`
	ExpiresAt      *time.Time             `json:"expires_at,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// SaleFromDomain converts domain Sale to SaleResponse
func SaleFromDomain(s *domain.Sale) *SaleResponse {
	return &SaleResponse{
		Code:           s.Code,
		TicketTypeID:   s.TicketTypeID,
		EventID:        s.EventID,
		Buyer:          BuyerResponse{Name: s.Buyer.Name, Email: s.Buyer.Email},
		Quantity:       s.Quantity,
		UnitPrice:      s.UnitPrice,
		Amount:         s.Amount,
		Currency:       s.Currency,
		PaymentMethod:  string(s.PaymentMethod),
		PaymentStatus:  string(s.PaymentStatus),
		BusinessStatus: string(s.BusinessStatus),
		Artifact:       s.Artifact,
		ExpiresAt:      s.ExpiresAt,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

// PaymentCallbackRequest is the body of a signed gateway callback
type PaymentCallbackRequest struct {
	EventID  string `json:"event_id"`
	SaleCode string `json:"sale_code"`
	// Status is the payment status the gateway reports: confirmed or expired
	Status string `json:"status"`
}

// PaymentCallbackResponse acknowledges a callback
type PaymentCallbackResponse struct {
	Received bool   `json:"received"`
	SaleCode string `json:"sale_code,omitempty"`
	Status   string `json:"status,omitempty"`
}
