package payment

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/internal/validator"
)

// DefaultCardConfirmWindow bounds how long an authorized card sale may stay
// pending before the sweeper confirms it
const DefaultCardConfirmWindow = 15 * time.Minute

// CardBackend handles credit and debit cards; one instance per method
type CardBackend struct {
	method        domain.PaymentMethod
	processor     CardProcessor
	confirmWindow time.Duration
	now           func() time.Time
}

// NewCardBackend creates a card backend for method
func NewCardBackend(method domain.PaymentMethod, processor CardProcessor) *CardBackend {
	return &CardBackend{method: method, processor: processor, confirmWindow: DefaultCardConfirmWindow, now: time.Now}
}

// WithConfirmWindow overrides the deadline given to authorized sales
func (b *CardBackend) WithConfirmWindow(window time.Duration) *CardBackend {
	if window > 0 {
		b.confirmWindow = window
	}
	return b
}

// Method returns the card method this backend serves
func (b *CardBackend) Method() domain.PaymentMethod {
	return b.method
}

// Validate checks every card field and names the first bad one
func (b *CardBackend) Validate(req *Request) error {
	if err := validateAmount(req.Amount); err != nil {
		return err
	}
	_, err := b.checkCard(req.Card)
	return err
}

type checkedCard struct {
	check validator.CardCheck
	month int
	year  int
}

func (b *CardBackend) checkCard(card *CardDetails) (*checkedCard, error) {
	if card == nil {
		return nil, domain.NewValidationError("card_number", "card details are required")
	}

	check := validator.ValidateCardNumber(card.Number)
	if !check.Valid {
		return nil, domain.NewValidationError("card_number", "invalid card number")
	}

	cvv := strings.TrimSpace(card.CVV)
	if len(cvv) < 3 || len(cvv) > 4 || !isDigits(cvv) {
		return nil, domain.NewValidationError("card_cvv", "must be 3 or 4 digits")
	}

	month, year, err := parseExpiry(card)
	if err != nil {
		return nil, err
	}
	if cardExpired(month, year, b.now()) {
		return nil, domain.NewValidationError("card_expiry", "card has expired")
	}

	if utf8.RuneCountInString(strings.TrimSpace(card.Holder)) < 2 {
		return nil, domain.NewValidationError("card_holder", "must be at least 2 characters")
	}

	return &checkedCard{check: check, month: month, year: year}, nil
}

// Initiate authorizes the card synchronously
func (b *CardBackend) Initiate(ctx context.Context, req *Request) (*Result, error) {
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	card, err := b.checkCard(req.Card)
	if err != nil {
		return nil, err
	}

	auth, err := b.processor.Authorize(ctx, &AuthorizationRequest{
		SaleCode:    req.SaleCode,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Debit:       b.method == domain.PaymentMethodDebitCard,
		Brand:       card.check.Brand,
		LastFour:    card.check.LastFour,
		Number:      digitsOf(req.Card.Number),
		Holder:      strings.TrimSpace(req.Card.Holder),
		ExpiryMonth: card.month,
		ExpiryYear:  card.year,
		CVV:         strings.TrimSpace(req.Card.CVV),
		Token:       req.Card.Token,
		Email:       req.Buyer.Email,
	})
	if err != nil {
		if domain.IsValidationError(err) {
			return nil, err
		}
		return nil, domain.NewInfrastructureError("card.authorize", err)
	}

	artifact := domain.PaymentArtifact{
		CardBrand:    card.check.Brand,
		CardLastFour: card.check.LastFour,
		ProcessorRef: auth.ProcessorRef,
	}
	if !auth.Approved {
		return &Result{
			Status:        domain.PaymentStatusPending,
			Artifact:      artifact,
			Declined:      true,
			DeclineReason: auth.DeclineReason,
			DeclineCode:   auth.DeclineCode,
		}, nil
	}

	// the deadline only matters when the confirmation after persisting fails
	artifact.AuthorizationCode = auth.AuthorizationCode
	expiresAt := b.now().UTC().Add(b.confirmWindow)
	return &Result{
		Status:    domain.PaymentStatusConfirmed,
		Artifact:  artifact,
		ExpiresAt: &expiresAt,
	}, nil
}

// parseExpiry accepts "MM/YY", "MM/YYYY" or the separate month/year fields
func parseExpiry(card *CardDetails) (int, int, error) {
	month, year := card.ExpiryMonth, card.ExpiryYear
	if raw := strings.TrimSpace(card.Expiry); raw != "" {
		parts := strings.Split(raw, "/")
		if len(parts) != 2 {
			return 0, 0, domain.NewValidationError("card_expiry", "must be MM/YY or MM/YYYY")
		}
		m, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
		y, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
		yearLen := len(strings.TrimSpace(parts[1]))
		if err1 != nil || err2 != nil || (yearLen != 2 && yearLen != 4) {
			return 0, 0, domain.NewValidationError("card_expiry", "must be MM/YY or MM/YYYY")
		}
		month, year = m, y
	}
	if year > 0 && year < 100 {
		year += 2000
	}
	if month < 1 || month > 12 {
		return 0, 0, domain.NewValidationError("card_expiry", "month must be between 1 and 12")
	}
	if year == 0 {
		return 0, 0, domain.NewValidationError("card_expiry", "expiry year is required")
	}
	return month, year, nil
}

// cardExpired reports whether the last day of month/year is before now
func cardExpired(month, year int, now time.Time) bool {
	firstOfNext := time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, now.Location())
	return !now.Before(firstOfNext)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func digitsOf(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

var _ Backend = (*CardBackend)(nil)
