package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the payment side of a sale
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusExpired   PaymentStatus = "expired"
)

// IsValid checks if the status is a valid PaymentStatus
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusConfirmed, PaymentStatusExpired:
		return true
	}
	return false
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// BusinessStatus is the commercial side of a sale. Confirmed requires a
// confirmed payment; cancelled is reachable from pending only.
type BusinessStatus string

const (
	BusinessStatusPending   BusinessStatus = "pending"
	BusinessStatusConfirmed BusinessStatus = "confirmed"
	BusinessStatusCancelled BusinessStatus = "cancelled"
)

// IsValid checks if the status is a valid BusinessStatus
func (s BusinessStatus) IsValid() bool {
	switch s {
	case BusinessStatusPending, BusinessStatusConfirmed, BusinessStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of BusinessStatus
func (s BusinessStatus) String() string {
	return string(s)
}

// PaymentMethod selects the payment backend
type PaymentMethod string

const (
	PaymentMethodPix        PaymentMethod = "pix"
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	PaymentMethodDebitCard  PaymentMethod = "debit_card"
	PaymentMethodBankSlip   PaymentMethod = "bank_slip"
)

// IsValid checks if the method is supported
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodPix, PaymentMethodCreditCard, PaymentMethodDebitCard, PaymentMethodBankSlip:
		return true
	}
	return false
}

// IsCard reports whether the method settles synchronously by card
func (m PaymentMethod) IsCard() bool {
	return m == PaymentMethodCreditCard || m == PaymentMethodDebitCard
}

// String returns the string representation of PaymentMethod
func (m PaymentMethod) String() string {
	return string(m)
}

// PaymentArtifact is the method-specific data handed back to the buyer
type PaymentArtifact struct {
	// PIX
	PixPayload string `json:"pix_payload,omitempty"`
	PixQRCode  string `json:"pix_qr_code,omitempty"`

	// Card
	CardBrand         string `json:"card_brand,omitempty"`
	CardLastFour      string `json:"card_last_four,omitempty"`
	AuthorizationCode string `json:"authorization_code,omitempty"`
	ProcessorRef      string `json:"processor_ref,omitempty"`

	// Bank slip
	Barcode      string     `json:"barcode,omitempty"`
	TypeableLine string     `json:"typeable_line,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
}

// SaleState is the mutable part of a sale guarded by compare-and-set.
// SoldRecorded and ReservationReleased are set only after the ledger side
// effect they name has been applied.
type SaleState struct {
	PaymentStatus       PaymentStatus  `json:"payment_status"`
	BusinessStatus      BusinessStatus `json:"business_status"`
	SoldRecorded        bool           `json:"sold_recorded"`
	ReservationReleased bool           `json:"reservation_released"`
}

// InitialSaleState is the state every sale is persisted with
func InitialSaleState() SaleState {
	return SaleState{
		PaymentStatus:  PaymentStatusPending,
		BusinessStatus: BusinessStatusPending,
	}
}

// Transition computes the state after moving the payment to target.
// changed is false when the payment already is at target.
func (s SaleState) Transition(target PaymentStatus) (next SaleState, changed bool, err error) {
	if !target.IsValid() {
		return s, false, ErrInvalidTransition
	}
	if s.PaymentStatus == target {
		return s, false, nil
	}
	if s.PaymentStatus != PaymentStatusPending {
		return s, false, ErrInvalidTransition
	}

	next = s
	switch target {
	case PaymentStatusConfirmed:
		if s.BusinessStatus == BusinessStatusCancelled {
			return s, false, ErrInvalidTransition
		}
		next.PaymentStatus = PaymentStatusConfirmed
		next.BusinessStatus = BusinessStatusConfirmed
	case PaymentStatusExpired:
		next.PaymentStatus = PaymentStatusExpired
	default:
		return s, false, ErrInvalidTransition
	}
	return next, true, nil
}

// Cancel computes the state after an administrative cancellation
func (s SaleState) Cancel() (next SaleState, changed bool, err error) {
	if s.BusinessStatus == BusinessStatusCancelled {
		return s, false, nil
	}
	if s.BusinessStatus != BusinessStatusPending || s.PaymentStatus != PaymentStatusPending {
		return s, false, ErrInvalidTransition
	}
	next = s
	next.BusinessStatus = BusinessStatusCancelled
	return next, true, nil
}

// Settlement is a ledger side effect implied by a sale state
type Settlement string

const (
	SettlementNone     Settlement = ""
	SettlementMarkSold Settlement = "mark_sold"
	SettlementRelease  Settlement = "release"
)

// Owed returns the side effect the state implies but has not recorded yet
func (s SaleState) Owed() Settlement {
	switch {
	case s.PaymentStatus == PaymentStatusConfirmed && !s.SoldRecorded:
		return SettlementMarkSold
	case (s.PaymentStatus == PaymentStatusExpired || s.BusinessStatus == BusinessStatusCancelled) && !s.ReservationReleased:
		return SettlementRelease
	}
	return SettlementNone
}

// Settle records that done was applied. changed is false when the state did
// not owe it, which includes another writer having recorded it first.
func (s SaleState) Settle(done Settlement) (next SaleState, changed bool, err error) {
	if done == SettlementNone || s.Owed() != done {
		return s, false, nil
	}
	next = s
	switch done {
	case SettlementMarkSold:
		next.SoldRecorded = true
	case SettlementRelease:
		next.ReservationReleased = true
	}
	return next, true, nil
}

// Sale is one buyer transaction for a quantity of a single ticket type
type Sale struct {
	ID            string          `json:"id"`
	Code          string          `json:"code"`
	TicketTypeID  string          `json:"ticket_type_id"`
	EventID       string          `json:"event_id"`
	Buyer         Buyer           `json:"buyer"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	SaleState
	Artifact   PaymentArtifact `json:"artifact"`
	ExpiresAt  *time.Time      `json:"expires_at,omitempty"`
	RemindedAt *time.Time      `json:"reminded_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// State returns the CAS-guarded state
func (s *Sale) State() SaleState {
	return s.SaleState
}

// IsExpired reports whether a pending payment is past its deadline
func (s *Sale) IsExpired(now time.Time) bool {
	return s.PaymentStatus == PaymentStatusPending && s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// IsTerminal reports whether no further payment transition is possible
func (s *Sale) IsTerminal() bool {
	return s.PaymentStatus != PaymentStatusPending || s.BusinessStatus == BusinessStatusCancelled
}
