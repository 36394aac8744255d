// Package payment models one backend per payment method behind a single
// Backend interface. Business declines are values on Result; only
// infrastructure faults are returned as errors.
package payment

import (
	"context"
	"sort"
	"time"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// Request is what the orchestrator hands to a backend
type Request struct {
	Method   domain.PaymentMethod
	Amount   decimal.Decimal
	Currency string
	SaleCode string
	Buyer    domain.Buyer
	Card     *CardDetails
}

// CardDetails are the raw card fields; they never leave the card backend
type CardDetails struct {
	Number      string `json:"number"`
	Holder      string `json:"holder"`
	Expiry      string `json:"expiry,omitempty"`
	ExpiryMonth int    `json:"expiry_month,omitempty"`
	ExpiryYear  int    `json:"expiry_year,omitempty"`
	CVV         string `json:"cvv"`
	// Token is a processor-side payment method reference, when the client
	// tokenized the card
	Token string `json:"token,omitempty"`
}

// Result is the outcome of Initiate
type Result struct {
	Status        domain.PaymentStatus
	Artifact      domain.PaymentArtifact
	Declined      bool
	DeclineReason string
	DeclineCode   string
	// ExpiresAt is the confirmation deadline of a pending payment
	ExpiresAt *time.Time
}

// Backend drives one payment method
type Backend interface {
	Method() domain.PaymentMethod

	// Validate checks the method-specific fields without side effects and
	// returns a *domain.ValidationError naming the bad field
	Validate(req *Request) error

	// Initiate starts the payment
	Initiate(ctx context.Context, req *Request) (*Result, error)
}

// Registry resolves the backend for a payment method
type Registry struct {
	backends map[domain.PaymentMethod]Backend
}

// NewRegistry creates a registry; a later backend for the same method wins
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[domain.PaymentMethod]Backend, len(backends))}
	for _, b := range backends {
		r.backends[b.Method()] = b
	}
	return r
}

// Get returns the backend for method
func (r *Registry) Get(method domain.PaymentMethod) (Backend, error) {
	b, ok := r.backends[method]
	if !ok {
		return nil, domain.NewValidationError("payment_method", "unsupported payment method")
	}
	return b, nil
}

// Methods lists the registered methods in a stable order
func (r *Registry) Methods() []domain.PaymentMethod {
	methods := make([]domain.PaymentMethod, 0, len(r.backends))
	for m := range r.backends {
		methods = append(methods, m)
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })
	return methods
}

func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return domain.NewValidationError("amount", "must be greater than zero")
	}
	return nil
}
