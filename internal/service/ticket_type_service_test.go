package service

import (
	"context"
	"testing"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/internal/payment"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

func newTicketTypeService(f *fixture) TicketTypeService {
	return NewTicketTypeService(f.ticketTypes, f.ledger, f.sales)
}

func TestTicketTypeService_CreateSeedsLedger(t *testing.T) {
	f := newFixture(t, 1, nil)
	svc := newTicketTypeService(f)

	tt, err := svc.Create(context.Background(), &domain.TicketType{
		EventID:   "event-1",
		Label:     "  Camarote ",
		UnitPrice: decimal.RequireFromString("300"),
		Capacity:  50,
		Reserved:  7,
		Active:    true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, tt.ID)
	assert.Equal(t, "Camarote", tt.Label)

	snap, err := f.memLedger.Get(context.Background(), tt.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, snap.Capacity)
	assert.Equal(t, 0, snap.Reserved)
}

func TestTicketTypeService_CreateValidates(t *testing.T) {
	f := newFixture(t, 1, nil)
	svc := newTicketTypeService(f)

	_, err := svc.Create(context.Background(), &domain.TicketType{EventID: "e", Label: "x", UnitPrice: decimal.NewFromInt(-1)})

	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "unit_price", ve.Field)
}

func TestTicketTypeService_GetOverlaysCounters(t *testing.T) {
	f := newFixture(t, 10, []payment.Backend{pixBackend()})
	f.pendingSale(t, 4)

	tt, err := newTicketTypeService(f).Get(context.Background(), "tt-1")

	require.NoError(t, err)
	assert.Equal(t, 4, tt.Reserved)
	assert.Equal(t, 6, tt.Available())
}

func TestTicketTypeService_UpdatePreservesReserved(t *testing.T) {
	f := newFixture(t, 10, []payment.Backend{pixBackend()})
	f.pendingSale(t, 4)
	svc := newTicketTypeService(f)

	tt, err := svc.Update(context.Background(), "tt-1", &TicketTypeUpdate{Label: strPtr("Pista Premium"), Capacity: intPtr(20)})

	require.NoError(t, err)
	assert.Equal(t, "Pista Premium", tt.Label)
	assert.Equal(t, 20, tt.Capacity)
	assert.Equal(t, 4, tt.Reserved)
}

func TestTicketTypeService_CapacityBelowReservedRejected(t *testing.T) {
	f := newFixture(t, 10, []payment.Backend{pixBackend()})
	f.pendingSale(t, 4)
	svc := newTicketTypeService(f)

	_, err := svc.Update(context.Background(), "tt-1", &TicketTypeUpdate{Capacity: intPtr(3)})

	assert.ErrorIs(t, err, domain.ErrCapacityBelowReserved)
	snap, _ := f.memLedger.Get(context.Background(), "tt-1")
	assert.Equal(t, 10, snap.Capacity)
}

func TestTicketTypeService_DeleteBlockedBySales(t *testing.T) {
	f := newFixture(t, 10, []payment.Backend{pixBackend()})
	sale := f.pendingSale(t, 1)
	svc := newTicketTypeService(f)

	err := svc.Delete(context.Background(), "tt-1")
	assert.ErrorIs(t, err, domain.ErrTicketTypeInUse)

	// cancelled sales still reference the ticket type
	_, err = f.transitions.Cancel(context.Background(), sale.Code)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Delete(context.Background(), "tt-1"), domain.ErrTicketTypeInUse)
}

func TestTicketTypeService_Delete(t *testing.T) {
	f := newFixture(t, 10, nil)
	svc := newTicketTypeService(f)

	require.NoError(t, svc.Delete(context.Background(), "tt-1"))

	_, err := svc.Get(context.Background(), "tt-1")
	assert.ErrorIs(t, err, domain.ErrTicketTypeNotFound)
	_, err = f.memLedger.Get(context.Background(), "tt-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
