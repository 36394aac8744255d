package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/pkg/breaker"
	"github.com/sony/gobreaker"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
)

// StripeConfig holds configuration for the Stripe processor
type StripeConfig struct {
	SecretKey string
	Breaker   *breaker.Config
}

// StripeProcessor authorizes cards through Stripe PaymentIntents. Cards
// must be tokenized client-side; Token carries the payment method id.
type StripeProcessor struct {
	client *paymentintent.Client
	cb     *gobreaker.CircuitBreaker
}

// NewStripeProcessor creates a new Stripe processor
func NewStripeProcessor(config *StripeConfig) (*StripeProcessor, error) {
	if config == nil {
		return nil, fmt.Errorf("stripe config is required")
	}
	if config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	bc := config.Breaker
	if bc == nil {
		bc = breaker.DefaultConfig("stripe")
	}

	return &StripeProcessor{
		client: &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: config.SecretKey},
		cb:     breaker.New(bc),
	}, nil
}

// Name returns the processor name
func (p *StripeProcessor) Name() string {
	return "stripe"
}

// Authorize creates and confirms a PaymentIntent in one call
func (p *StripeProcessor) Authorize(ctx context.Context, req *AuthorizationRequest) (*Authorization, error) {
	if req == nil {
		return nil, fmt.Errorf("authorization request is required")
	}
	if req.Token == "" {
		return nil, domain.NewValidationError("card_token", "a tokenized payment method is required")
	}

	// smallest currency unit
	amount := req.Amount.Shift(2).IntPart()

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(amount),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripe.String(req.Token),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
		Description: stripe.String("Ticket sale " + req.SaleCode),
		Metadata:    map[string]string{"sale_code": req.SaleCode},
	}
	if req.Email != "" {
		params.ReceiptEmail = stripe.String(req.Email)
	}
	params.Context = ctx
	params.SetIdempotencyKey("sale-" + req.SaleCode)

	var declined *stripe.Error
	pi, err := breaker.Execute(p.cb, func() (*stripe.PaymentIntent, error) {
		pi, err := p.client.New(params)
		// card errors are business declines and must not trip the breaker
		if errors.As(err, &declined) && declined.Type == stripe.ErrorTypeCard {
			return nil, nil
		}
		declined = nil
		return pi, err
	})
	if err != nil {
		if breaker.IsOpen(err) {
			return nil, fmt.Errorf("stripe unavailable: %w", err)
		}
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	if declined != nil {
		code := string(declined.DeclineCode)
		if code == "" {
			code = string(declined.Code)
		}
		return &Authorization{
			Approved:      false,
			DeclineReason: declined.Msg,
			DeclineCode:   code,
		}, nil
	}

	auth := &Authorization{ProcessorRef: pi.ID}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusRequiresCapture:
		auth.Approved = true
		if pi.LatestCharge != nil {
			auth.AuthorizationCode = pi.LatestCharge.AuthorizationCode
		}
	case stripe.PaymentIntentStatusCanceled:
		auth.DeclineReason = "payment_canceled"
		auth.DeclineCode = "canceled"
	default:
		auth.DeclineReason = "payment_requires_action"
		auth.DeclineCode = string(pi.Status)
	}
	return auth, nil
}

var _ CardProcessor = (*StripeProcessor)(nil)
