package service

import (
	"context"
	"fmt"
	"time"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/internal/metrics"
	"github.com/prohmpiriya/ticket-storefront/internal/repository"
	"github.com/prohmpiriya/ticket-storefront/pkg/logger"
	"github.com/prohmpiriya/ticket-storefront/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// casAttempts is the first write plus one retry after a lost race
const casAttempts = 2

// TransitionService advances sales through their payment states. Every
// move is a compare-and-swap on the full state. The ledger side effect runs
// after the status swap and is recorded on the sale by a second swap.
type TransitionService interface {
	// Transition moves the payment to target (confirmed or expired).
	// Repeating a transition that already happened is a no-op.
	Transition(ctx context.Context, code string, target domain.PaymentStatus) (*domain.Sale, error)

	// Cancel cancels a sale whose payment is still pending
	Cancel(ctx context.Context, code string) (*domain.Sale, error)

	// Remind emits one reminder per pending sale; false when nothing was sent
	Remind(ctx context.Context, code string) (bool, error)
}

type transitionService struct {
	sales    repository.SaleRepository
	ledger   repository.InventoryLedger
	notifier Notifier
	log      *logger.Logger
	now      func() time.Time
}

// NewTransitionService creates a new transition service
func NewTransitionService(sales repository.SaleRepository, ledger repository.InventoryLedger, notifier Notifier) TransitionService {
	if notifier == nil {
		notifier = NewNoOpNotifier()
	}
	return &transitionService{
		sales:    sales,
		ledger:   ledger,
		notifier: notifier,
		log:      logger.Get(),
		now:      time.Now,
	}
}

// step computes the next state from the one just read
type step func(domain.SaleState) (domain.SaleState, bool, error)

// apply reads, computes and swaps, retrying once after a lost race. It
// returns the sale as written, the state it replaced and whether anything
// changed.
func (s *transitionService) apply(ctx context.Context, code, op string, compute step) (*domain.Sale, domain.SaleState, bool, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		sale, err := s.sales.GetByCode(ctx, code)
		if err != nil {
			if domain.IsNotFoundError(err) {
				return nil, domain.SaleState{}, false, err
			}
			return nil, domain.SaleState{}, false, domain.NewInfrastructureError("sale.get", err)
		}

		prev := sale.State()
		next, changed, err := compute(prev)
		if err != nil {
			return nil, prev, false, fmt.Errorf("sale %s is %s/%s: %w", code, prev.PaymentStatus, prev.BusinessStatus, err)
		}
		if !changed {
			return sale, prev, false, nil
		}

		ok, err := s.sales.CompareAndSwapState(ctx, code, prev, next)
		if err != nil {
			return nil, prev, false, domain.NewInfrastructureError("sale.compare_and_swap", err)
		}
		if ok {
			sale.SaleState = next
			sale.UpdatedAt = s.now()
			return sale, prev, true, nil
		}

		metrics.RecordConflict(ctx, op)
		s.log.Debug("lost state race, re-reading sale",
			zap.String("sale_code", code),
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
		)
	}
	return nil, domain.SaleState{}, false, domain.ErrConcurrentModification
}

// Transition moves the payment status of a sale. A call that finds the
// status already at target still completes a settlement left owed by an
// earlier failed call.
func (s *transitionService) Transition(ctx context.Context, code string, target domain.PaymentStatus) (*domain.Sale, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.sale.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("sale_code", code),
		attribute.String("target", string(target)),
	)

	sale, prev, changed, err := s.apply(ctx, code, "transition", func(st domain.SaleState) (domain.SaleState, bool, error) {
		return st.Transition(target)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if changed {
		s.log.InfoContext(ctx, "sale transitioned",
			zap.String("sale_code", code),
			zap.String("from", string(prev.PaymentStatus)),
			zap.String("to", string(target)),
		)
	}
	return s.settle(ctx, span, sale)
}

// Cancel moves a pending sale to cancelled and releases its reservation
func (s *transitionService) Cancel(ctx context.Context, code string) (*domain.Sale, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.sale.cancel")
	defer span.End()
	span.SetAttributes(attribute.String("sale_code", code))

	sale, _, changed, err := s.apply(ctx, code, "cancel", domain.SaleState.Cancel)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if changed {
		s.log.InfoContext(ctx, "sale cancelled", zap.String("sale_code", code))
	}
	return s.settle(ctx, span, sale)
}

// settle applies the ledger side effect the sale still owes and then records
// it on the sale. The ledger applies each settlement once per sale code, so
// racing callers may all run it; only the one whose marker swap wins emits
// metrics and the event.
func (s *transitionService) settle(ctx context.Context, span trace.Span, sale *domain.Sale) (*domain.Sale, error) {
	owed := sale.Owed()
	switch owed {
	case domain.SettlementNone:
		return sale, nil
	case domain.SettlementMarkSold:
		if err := s.ledger.MarkSold(ctx, sale.TicketTypeID, sale.Code, sale.Quantity); err != nil {
			return nil, s.sideEffectFailed(ctx, span, sale, "ledger.mark_sold", err)
		}
	case domain.SettlementRelease:
		if _, err := s.ledger.Release(ctx, sale.TicketTypeID, sale.Code, sale.Quantity); err != nil {
			return nil, s.sideEffectFailed(ctx, span, sale, "ledger.release", err)
		}
	}

	settled, _, changed, err := s.apply(ctx, sale.Code, "settle", func(st domain.SaleState) (domain.SaleState, bool, error) {
		return st.Settle(owed)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !changed {
		return settled, nil
	}

	method := string(settled.PaymentMethod)
	kind := domain.SaleEventConfirmed
	switch {
	case owed == domain.SettlementMarkSold:
		metrics.RecordConfirmation(ctx, method, s.now().Sub(settled.CreatedAt).Seconds())
	case settled.BusinessStatus == domain.BusinessStatusCancelled:
		kind = domain.SaleEventCancelled
		metrics.RecordRelease(ctx, settled.TicketTypeID, settled.Quantity)
		metrics.RecordCancellation(ctx, method)
	default:
		kind = domain.SaleEventExpired
		metrics.RecordRelease(ctx, settled.TicketTypeID, settled.Quantity)
		metrics.RecordExpiration(ctx, method)
	}

	notify(ctx, s.log, s.notifier, kind, settled)
	return settled, nil
}

// Remind emits a reminder for a pending sale that has not had one yet
func (s *transitionService) Remind(ctx context.Context, code string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.sale.remind")
	defer span.End()
	span.SetAttributes(attribute.String("sale_code", code))

	sale, err := s.sales.GetByCode(ctx, code)
	if err != nil {
		if domain.IsNotFoundError(err) {
			return false, err
		}
		return false, domain.NewInfrastructureError("sale.get", err)
	}
	// an authorized card sale needs no payment from the buyer
	if sale.IsTerminal() || sale.RemindedAt != nil || sale.Artifact.AuthorizationCode != "" {
		return false, nil
	}

	now := s.now()
	marked, err := s.sales.MarkReminded(ctx, code, now)
	if err != nil {
		return false, domain.NewInfrastructureError("sale.mark_reminded", err)
	}
	if !marked {
		return false, nil
	}
	sale.RemindedAt = &now

	metrics.RecordReminder(ctx)
	notify(ctx, s.log, s.notifier, domain.SaleEventReminder, sale)
	return true, nil
}

// sideEffectFailed logs a ledger failure that followed a committed state
// change. The state stays as written and the settlement stays owed until
// the next call or the sweeper completes it.
func (s *transitionService) sideEffectFailed(ctx context.Context, span trace.Span, sale *domain.Sale, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "ledger side effect failed")
	s.log.ErrorContext(ctx, "ledger side effect failed after state change",
		zap.String("sale_code", sale.Code),
		zap.String("ticket_type_id", sale.TicketTypeID),
		zap.Int("quantity", sale.Quantity),
		zap.String("op", op),
		zap.Error(err),
	)
	return domain.NewInfrastructureError(op, err)
}
