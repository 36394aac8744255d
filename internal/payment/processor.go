package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// AuthorizationRequest is what a card processor sees. The raw number is
// present only for processors that tokenize server-side.
type AuthorizationRequest struct {
	SaleCode    string
	Amount      decimal.Decimal
	Currency    string
	Debit       bool
	Brand       string
	LastFour    string
	Number      string
	Holder      string
	ExpiryMonth int
	ExpiryYear  int
	CVV         string
	Token       string
	Email       string
}

// Authorization is the processor's answer. A decline is not an error.
type Authorization struct {
	Approved          bool
	AuthorizationCode string
	ProcessorRef      string
	DeclineReason     string
	DeclineCode       string
}

// CardProcessor authorizes card payments
type CardProcessor interface {
	Name() string
	Authorize(ctx context.Context, req *AuthorizationRequest) (*Authorization, error)
}
