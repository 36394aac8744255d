package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/internal/metrics"
	"github.com/prohmpiriya/ticket-storefront/internal/payment"
	"github.com/prohmpiriya/ticket-storefront/internal/repository"
	"github.com/prohmpiriya/ticket-storefront/pkg/logger"
	"github.com/prohmpiriya/ticket-storefront/pkg/retry"
	"github.com/prohmpiriya/ticket-storefront/pkg/telemetry"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// PurchaseRequest is one checkout
type PurchaseRequest struct {
	TicketTypeID  string
	Quantity      int
	Buyer         domain.Buyer
	PaymentMethod domain.PaymentMethod
	Card          *payment.CardDetails
}

// PurchaseService turns a checkout into a sale
type PurchaseService interface {
	// Purchase validates, reserves, initiates payment and persists the sale.
	// Any failure after the reservation hands the units back.
	Purchase(ctx context.Context, req *PurchaseRequest) (*domain.Sale, error)

	// GetSale retrieves a sale by its code
	GetSale(ctx context.Context, code string) (*domain.Sale, error)
}

// PurchaseServiceConfig contains configuration for the purchase service
type PurchaseServiceConfig struct {
	MaxPerTransaction int
	Currency          string
	// ReleaseRetry bounds the compensating release
	ReleaseRetry *retry.Config
	// ConfirmRetry bounds the confirmation of an authorized card sale
	ConfirmRetry *retry.Config
}

type purchaseService struct {
	ticketTypes       repository.TicketTypeRepository
	ledger            repository.InventoryLedger
	sales             repository.SaleRepository
	payments          *payment.Registry
	transitions       TransitionService
	notifier          Notifier
	log               *logger.Logger
	maxPerTransaction int
	currency          string
	releaseRetry      *retry.Config
	confirmRetry      *retry.Config
	newCode           func() (string, error)
	now               func() time.Time
}

// NewPurchaseService creates a new purchase service
func NewPurchaseService(
	ticketTypes repository.TicketTypeRepository,
	ledger repository.InventoryLedger,
	sales repository.SaleRepository,
	payments *payment.Registry,
	transitions TransitionService,
	notifier Notifier,
	cfg *PurchaseServiceConfig,
) PurchaseService {
	maxPerTransaction := 10
	currency := "BRL"
	releaseRetry := &retry.Config{
		MaxRetries:      3,
		InitialInterval: 50 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
	confirmRetry := &retry.Config{
		MaxRetries:      2,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
	if cfg != nil {
		if cfg.MaxPerTransaction > 0 {
			maxPerTransaction = cfg.MaxPerTransaction
		}
		if cfg.Currency != "" {
			currency = strings.ToUpper(cfg.Currency)
		}
		if cfg.ReleaseRetry != nil {
			releaseRetry = cfg.ReleaseRetry
		}
		if cfg.ConfirmRetry != nil {
			confirmRetry = cfg.ConfirmRetry
		}
	}
	if notifier == nil {
		notifier = NewNoOpNotifier()
	}
	return &purchaseService{
		ticketTypes:       ticketTypes,
		ledger:            ledger,
		sales:             sales,
		payments:          payments,
		transitions:       transitions,
		notifier:          notifier,
		log:               logger.Get(),
		maxPerTransaction: maxPerTransaction,
		currency:          currency,
		releaseRetry:      releaseRetry,
		confirmRetry:      confirmRetry,
		newCode:           domain.NewSaleCode,
		now:               time.Now,
	}
}

// Purchase runs the checkout
func (s *purchaseService) Purchase(ctx context.Context, req *PurchaseRequest) (*domain.Sale, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.purchase")
	defer span.End()
	start := s.now()

	if req == nil {
		return nil, domain.NewValidationError("request", "is required")
	}
	span.SetAttributes(
		attribute.String("ticket_type_id", req.TicketTypeID),
		attribute.String("payment_method", string(req.PaymentMethod)),
		attribute.Int("quantity", req.Quantity),
	)

	sale, err := s.purchase(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordPurchaseFailure(ctx, string(req.PaymentMethod), failureReason(err))
		return nil, err
	}

	span.SetAttributes(attribute.String("sale_code", sale.Code))
	metrics.RecordSaleCreated(ctx, sale.TicketTypeID, string(sale.PaymentMethod), sale.Quantity, s.now().Sub(start).Seconds())
	return sale, nil
}

func (s *purchaseService) purchase(ctx context.Context, req *PurchaseRequest) (*domain.Sale, error) {
	tt, err := s.ticketTypes.GetByID(ctx, req.TicketTypeID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			return nil, domain.ErrTicketTypeNotFound
		}
		return nil, domain.NewInfrastructureError("ticket_type.get", err)
	}
	if !tt.Active {
		return nil, domain.ErrTicketTypeNotFound
	}

	// everything that can be rejected without side effects goes first
	req.Buyer.Normalize()
	if err := req.Buyer.Validate(); err != nil {
		return nil, err
	}
	if req.Quantity < 1 || req.Quantity > s.maxPerTransaction {
		return nil, domain.NewValidationError("quantity", "must be between 1 and "+strconv.Itoa(s.maxPerTransaction))
	}
	backend, err := s.payments.Get(req.PaymentMethod)
	if err != nil {
		return nil, err
	}

	amount := tt.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity)))
	payReq := &payment.Request{
		Method:   req.PaymentMethod,
		Amount:   amount,
		Currency: s.currency,
		Buyer:    req.Buyer,
		Card:     req.Card,
	}
	if err := backend.Validate(payReq); err != nil {
		return nil, err
	}

	code, err := s.newCode()
	if err != nil {
		return nil, domain.NewInfrastructureError("sale.code", err)
	}
	payReq.SaleCode = code

	if _, err := s.ledger.Reserve(ctx, tt.ID, req.Quantity); err != nil {
		if errors.Is(err, domain.ErrInsufficientInventory) || domain.IsNotFoundError(err) {
			return nil, err
		}
		return nil, domain.NewInfrastructureError("ledger.reserve", err)
	}

	// from here on every failure must release the reservation

	result, err := backend.Initiate(ctx, payReq)
	if err != nil {
		s.release(ctx, tt.ID, code, req.Quantity, "payment_error")
		if domain.IsValidationError(err) {
			return nil, err
		}
		return nil, domain.NewInfrastructureError("payment.initiate", err)
	}
	if result.Declined {
		s.release(ctx, tt.ID, code, req.Quantity, "payment_declined")
		return nil, &domain.PaymentDeclinedError{Reason: result.DeclineReason, Code: result.DeclineCode}
	}

	now := s.now().UTC()
	sale := &domain.Sale{
		ID:            uuid.New().String(),
		Code:          code,
		TicketTypeID:  tt.ID,
		EventID:       tt.EventID,
		Buyer:         req.Buyer,
		Quantity:      req.Quantity,
		UnitPrice:     tt.UnitPrice,
		Amount:        amount,
		Currency:      s.currency,
		PaymentMethod: req.PaymentMethod,
		SaleState:     domain.InitialSaleState(),
		Artifact:      result.Artifact,
		ExpiresAt:     result.ExpiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.sales.Create(ctx, sale); err != nil {
		s.release(ctx, tt.ID, code, req.Quantity, "persist_error")
		return nil, domain.NewInfrastructureError("sale.create", err)
	}

	s.log.InfoContext(ctx, "sale created",
		zap.String("sale_code", sale.Code),
		zap.String("ticket_type_id", sale.TicketTypeID),
		zap.Int("quantity", sale.Quantity),
		zap.String("payment_method", string(sale.PaymentMethod)),
		zap.String("amount", sale.Amount.StringFixed(2)),
	)
	notify(ctx, s.log, s.notifier, domain.SaleEventCreated, sale)

	if result.Status == domain.PaymentStatusConfirmed {
		if confirmed := s.confirm(ctx, sale); confirmed != nil {
			sale = confirmed
		}
	}

	return sale, nil
}

// GetSale retrieves a sale by its code
func (s *purchaseService) GetSale(ctx context.Context, code string) (*domain.Sale, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.sale.get")
	defer span.End()

	sale, err := s.sales.GetByCode(ctx, code)
	if err != nil {
		if domain.IsNotFoundError(err) {
			return nil, err
		}
		return nil, domain.NewInfrastructureError("sale.get", err)
	}
	return sale, nil
}

// confirm settles a sale whose payment was authorized at checkout,
// retrying transient failures. When it still fails the authorization
// stands and the sale stays pending until the sweeper confirms it.
func (s *purchaseService) confirm(ctx context.Context, sale *domain.Sale) *domain.Sale {
	ctx = context.WithoutCancel(ctx)
	var confirmed *domain.Sale
	result := retry.Do(ctx, s.confirmRetry, func(ctx context.Context) error {
		out, err := s.transitions.Transition(ctx, sale.Code, domain.PaymentStatusConfirmed)
		if err != nil {
			if domain.IsNotFoundError(err) || errors.Is(err, domain.ErrInvalidTransition) {
				return retry.Permanent(err)
			}
			return err
		}
		confirmed = out
		return nil
	})
	if result.Err != nil {
		s.log.ErrorContext(ctx, "failed to confirm authorized sale",
			zap.String("sale_code", sale.Code),
			zap.Int("attempts", result.Attempts),
			zap.Error(result.Err),
		)
		return nil
	}
	return confirmed
}

// release hands reserved units back, retrying transient failures. It
// survives cancellation of the request context.
func (s *purchaseService) release(ctx context.Context, ticketTypeID, code string, quantity int, reason string) {
	ctx = context.WithoutCancel(ctx)
	result := retry.Do(ctx, s.releaseRetry, func(ctx context.Context) error {
		_, err := s.ledger.Release(ctx, ticketTypeID, code, quantity)
		if domain.IsNotFoundError(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if result.Err != nil {
		s.log.ErrorContext(ctx, "failed to release reservation",
			zap.String("ticket_type_id", ticketTypeID),
			zap.String("sale_code", code),
			zap.Int("quantity", quantity),
			zap.String("reason", reason),
			zap.Int("attempts", result.Attempts),
			zap.Error(result.Err),
		)
		return
	}
	metrics.RecordRelease(ctx, ticketTypeID, quantity)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrInsufficientInventory):
		return "sold_out"
	case errors.Is(err, domain.ErrPaymentDeclined):
		return "declined"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "infrastructure"
	}
}
