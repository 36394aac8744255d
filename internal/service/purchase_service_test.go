package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/internal/payment"
	"github.com/prohmpiriya/ticket-storefront/internal/repository"
	"github.com/prohmpiriya/ticket-storefront/pkg/retry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validNationalID = "52998224725"

type fixture struct {
	ticketTypes *repository.MemoryTicketTypeRepository
	ledger      repository.InventoryLedger
	memLedger   *repository.MemoryInventoryLedger
	sales       repository.SaleRepository
	notifier    *recordingNotifier
	transitions TransitionService
	purchases   PurchaseService
	tt          *domain.TicketType
}

type fixtureOption func(f *fixture)

func withSales(wrap func(repository.SaleRepository) repository.SaleRepository) fixtureOption {
	return func(f *fixture) { f.sales = wrap(f.sales) }
}

func withLedger(wrap func(*repository.MemoryInventoryLedger) repository.InventoryLedger) fixtureOption {
	return func(f *fixture) { f.ledger = wrap(f.memLedger) }
}

func newFixture(t *testing.T, capacity int, backends []payment.Backend, opts ...fixtureOption) *fixture {
	t.Helper()
	ctx := context.Background()

	mem := repository.NewMemoryInventoryLedger()
	sales := repository.NewMemorySaleRepository()
	f := &fixture{
		memLedger: mem,
		ledger:    mem,
		sales:     sales,
		notifier:  &recordingNotifier{},
	}
	for _, opt := range opts {
		opt(f)
	}
	f.ticketTypes = repository.NewMemoryTicketTypeRepository(f.sales)

	f.tt = &domain.TicketType{
		ID:        "tt-1",
		EventID:   "event-1",
		Label:     "Pista",
		UnitPrice: decimal.RequireFromString("75.00"),
		Capacity:  capacity,
		Active:    true,
		CreatedAt: time.Now(),
	}
	require.NoError(t, f.ticketTypes.Create(ctx, f.tt))
	require.NoError(t, mem.SetCapacity(ctx, f.tt.ID, capacity))

	f.transitions = NewTransitionService(f.sales, f.ledger, f.notifier)
	f.purchases = NewPurchaseService(f.ticketTypes, f.ledger, f.sales, payment.NewRegistry(backends...), f.transitions, f.notifier,
		&PurchaseServiceConfig{
			MaxPerTransaction: 10,
			Currency:          "BRL",
			ReleaseRetry:      &retry.Config{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond},
			ConfirmRetry:      &retry.Config{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond},
		})
	return f
}

func (f *fixture) reserved(t *testing.T) int {
	t.Helper()
	snap, err := f.memLedger.Get(context.Background(), f.tt.ID)
	require.NoError(t, err)
	return snap.Reserved
}

func (f *fixture) sold(t *testing.T) int {
	t.Helper()
	snap, err := f.memLedger.Get(context.Background(), f.tt.ID)
	require.NoError(t, err)
	return snap.Sold
}

func buyer() domain.Buyer {
	return domain.Buyer{Name: "Maria Silva", Email: "Maria@Example.com", NationalID: "529.982.247-25"}
}

func pixBackend() payment.Backend {
	return payment.NewPixBackend(&payment.PixConfig{Key: "pix@example.com", MerchantName: "Storefront", MerchantCity: "Recife", Expiry: 30 * time.Minute})
}

func cardBackend(decline bool) payment.Backend {
	return payment.NewCardBackend(domain.PaymentMethodCreditCard, &stubProcessor{decline: decline})
}

func validCard() *payment.CardDetails {
	return &payment.CardDetails{Number: "4111111111111111", Holder: "Maria Silva", Expiry: "12/2099", CVV: "123"}
}

func purchaseReq(method domain.PaymentMethod, qty int) *PurchaseRequest {
	req := &PurchaseRequest{TicketTypeID: "tt-1", Quantity: qty, Buyer: buyer(), PaymentMethod: method}
	if method.IsCard() {
		req.Card = validCard()
	}
	return req
}

func TestPurchase_PixHappyPath(t *testing.T) {
	f := newFixture(t, 10, []payment.Backend{pixBackend()})

	sale, err := f.purchases.Purchase(context.Background(), purchaseReq(domain.PaymentMethodPix, 2))

	require.NoError(t, err)
	assert.True(t, domain.IsSaleCode(sale.Code))
	assert.Equal(t, domain.PaymentStatusPending, sale.PaymentStatus)
	assert.Equal(t, domain.BusinessStatusPending, sale.BusinessStatus)
	assert.True(t, decimal.RequireFromString("150.00").Equal(sale.Amount))
	assert.Equal(t, "maria@example.com", sale.Buyer.Email)
	assert.Equal(t, validNationalID, sale.Buyer.NationalID)
	assert.True(t, payment.VerifyPixPayload(sale.Artifact.PixPayload))
	assert.Contains(t, sale.Artifact.PixPayload, domain.SaleCodeBody(sale.Code))
	require.NotNil(t, sale.ExpiresAt)

	assert.Equal(t, 2, f.reserved(t))
	assert.Equal(t, 0, f.sold(t))
	assert.Equal(t, []domain.SaleEventKind{domain.SaleEventCreated}, f.notifier.kinds())

	stored, err := f.purchases.GetSale(context.Background(), sale.Code)
	require.NoError(t, err)
	assert.Equal(t, sale.Code, stored.Code)
}

func TestPurchase_CardApprovedIsConfirmedOnce(t *testing.T) {
	f := newFixture(t, 10, []payment.Backend{cardBackend(false)})

	sale, err := f.purchases.Purchase(context.Background(), purchaseReq(domain.PaymentMethodCreditCard, 3))

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusConfirmed, sale.PaymentStatus)
	assert.Equal(t, domain.BusinessStatusConfirmed, sale.BusinessStatus)
	assert.True(t, sale.SoldRecorded)
	require.NotNil(t, sale.ExpiresAt)
	assert.Equal(t, "1111", sale.Artifact.CardLastFour)
	assert.Equal(t, 3, f.reserved(t))
	assert.Equal(t, 3, f.sold(t))
	assert.Equal(t, []domain.SaleEventKind{domain.SaleEventCreated, domain.SaleEventConfirmed}, f.notifier.kinds())
}

func TestPurchase_DeclineReleasesReservation(t *testing.T) {
	f := newFixture(t, 10, []payment.Backend{cardBackend(true)})

	_, err := f.purchases.Purchase(context.Background(), purchaseReq(domain.PaymentMethodCreditCard, 2))

	var declined *domain.PaymentDeclinedError
	require.ErrorAs(t, err, &declined)
	assert.Equal(t, "insufficient_funds", declined.Reason)
	assert.Equal(t, 0, f.reserved(t))
	assert.Empty(t, f.notifier.kinds())
}

func TestPurchase_InfrastructureFailureCompensates(t *testing.T) {
	backend := &MockBackend{
		MethodValue: domain.PaymentMethodPix,
		InitiateFunc: func(ctx context.Context, req *payment.Request) (*payment.Result, error) {
			return nil, errors.New("gateway timeout")
		},
	}
	f := newFixture(t, 10, []payment.Backend{backend})

	_, err := f.purchases.Purchase(context.Background(), purchaseReq(domain.PaymentMethodPix, 4))

	assert.ErrorIs(t, err, domain.ErrInfrastructure)
	assert.Equal(t, 0, f.reserved(t))
	count, _ := f.sales.CountByTicketType(context.Background(), "tt-1")
	assert.Equal(t, 0, count)
}

func TestPurchase_PersistFailureCompensates(t *testing.T) {
	f := newFixture(t, 10, []payment.Backend{pixBackend()}, withSales(func(r repository.SaleRepository) repository.SaleRepository {
		return &flakySales{SaleRepository: r, createErr: errors.New("connection refused")}
	}))

	_, err := f.purchases.Purchase(context.Background(), purchaseReq(domain.PaymentMethodPix, 1))

	assert.ErrorIs(t, err, domain.ErrInfrastructure)
	assert.Equal(t, 0, f.reserved(t))
}

func TestPurchase_CompensationRetriesRelease(t *testing.T) {
	var ledger *failingLedger
	backend := &MockBackend{
		MethodValue: domain.PaymentMethodPix,
		InitiateFunc: func(ctx context.Context, req *payment.Request) (*payment.Result, error) {
			return nil, errors.New("gateway timeout")
		},
	}
	f := newFixture(t, 10, []payment.Backend{backend}, withLedger(func(m *repository.MemoryInventoryLedger) repository.InventoryLedger {
		ledger = &failingLedger{MemoryInventoryLedger: m, releaseErr: errors.New("redis down")}
		return ledger
	}))

	_, err := f.purchases.Purchase(context.Background(), purchaseReq(domain.PaymentMethodPix, 1))

	assert.ErrorIs(t, err, domain.ErrInfrastructure)
	assert.Equal(t, 3, ledger.releases)
}

func TestPurchase_SoldOut(t *testing.T) {
	backend := &MockBackend{MethodValue: domain.PaymentMethodPix}
	f := newFixture(t, 3, []payment.Backend{backend})

	_, err := f.purchases.Purchase(context.Background(), purchaseReq(domain.PaymentMethodPix, 2))
	require.NoError(t, err)

	_, err = f.purchases.Purchase(context.Background(), purchaseReq(domain.PaymentMethodPix, 2))

	var insufficient *domain.InsufficientInventoryError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 1, insufficient.Available)
	assert.Equal(t, 1, backend.Calls())
	assert.Equal(t, 2, f.reserved(t))
}

func TestPurchase_ValidationFailsBeforeReserve(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *PurchaseRequest)
		field  string
	}{
		{"bad national id", func(r *PurchaseRequest) { r.Buyer.NationalID = "529.982.247-24" }, "buyer.national_id"},
		{"repeated national id", func(r *PurchaseRequest) { r.Buyer.NationalID = "11111111111" }, "buyer.national_id"},
		{"bad email", func(r *PurchaseRequest) { r.Buyer.Email = "not-an-email" }, "buyer.email"},
		{"missing name", func(r *PurchaseRequest) { r.Buyer.Name = "" }, "buyer.name"},
		{"zero quantity", func(r *PurchaseRequest) { r.Quantity = 0 }, "quantity"},
		{"too many", func(r *PurchaseRequest) { r.Quantity = 11 }, "quantity"},
		{"unknown method", func(r *PurchaseRequest) { r.PaymentMethod = "cash" }, "payment_method"},
		{"bad card", func(r *PurchaseRequest) { r.Card.Number = "4111111111111112" }, "card_number"},
		{"bad cvv", func(r *PurchaseRequest) { r.Card.CVV = "1" }, "card_cvv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 20, []payment.Backend{cardBackend(false)})
			req := purchaseReq(domain.PaymentMethodCreditCard, 1)
			tt.mutate(req)

			_, err := f.purchases.Purchase(context.Background(), req)

			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Equal(t, 0, f.reserved(t))
		})
	}
}

func TestPurchase_UnknownOrInactiveTicketType(t *testing.T) {
	f := newFixture(t, 10, []payment.Backend{pixBackend()})

	req := purchaseReq(domain.PaymentMethodPix, 1)
	req.TicketTypeID = "missing"
	_, err := f.purchases.Purchase(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrTicketTypeNotFound)

	f.tt.Active = false
	require.NoError(t, f.ticketTypes.Update(context.Background(), f.tt))
	_, err = f.purchases.Purchase(context.Background(), purchaseReq(domain.PaymentMethodPix, 1))
	assert.ErrorIs(t, err, domain.ErrTicketTypeNotFound)
}

func TestPurchase_NotificationFailureIsSwallowed(t *testing.T) {
	f := newFixture(t, 10, []payment.Backend{pixBackend()})
	f.notifier.err = errors.New("kafka unavailable")

	sale, err := f.purchases.Purchase(context.Background(), purchaseReq(domain.PaymentMethodPix, 1))

	require.NoError(t, err)
	assert.NotEmpty(t, sale.Code)
}

func TestPurchase_ConfirmRetriesAfterLostRaces(t *testing.T) {
	f := newFixture(t, 10, []payment.Backend{cardBackend(false)}, withSales(func(r repository.SaleRepository) repository.SaleRepository {
		return &flakySales{SaleRepository: r, casLosses: 2}
	}))

	sale, err := f.purchases.Purchase(context.Background(), purchaseReq(domain.PaymentMethodCreditCard, 1))

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusConfirmed, sale.PaymentStatus)
	assert.True(t, sale.SoldRecorded)
	assert.Equal(t, 1, f.sold(t))
}

func TestPurchase_ConfirmFailureLeavesSaleForSweeper(t *testing.T) {
	f := newFixture(t, 10, []payment.Backend{cardBackend(false)}, withSales(func(r repository.SaleRepository) repository.SaleRepository {
		// two lost swaps per attempt, three attempts
		return &flakySales{SaleRepository: r, casLosses: 6}
	}))

	sale, err := f.purchases.Purchase(context.Background(), purchaseReq(domain.PaymentMethodCreditCard, 1))

	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, sale.PaymentStatus)
	assert.Equal(t, 1, f.reserved(t))
	assert.Equal(t, 0, f.sold(t))

	// the authorized sale has a deadline, so the sweeper finds it
	require.NotNil(t, sale.ExpiresAt)
	due, err := f.sales.ListExpired(context.Background(), sale.ExpiresAt.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.NotEmpty(t, due[0].Artifact.AuthorizationCode)

	confirmed, err := f.transitions.Transition(context.Background(), sale.Code, domain.PaymentStatusConfirmed)
	require.NoError(t, err)
	assert.True(t, confirmed.SoldRecorded)
	assert.Equal(t, 1, f.sold(t))
	assert.Equal(t, 1, f.notifier.count(domain.SaleEventConfirmed))
}

func TestPurchase_NoOversellUnderConcurrency(t *testing.T) {
	f := newFixture(t, 25, []payment.Backend{&MockBackend{MethodValue: domain.PaymentMethodPix}})

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, soldOut := 0, 0
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.purchases.Purchase(context.Background(), purchaseReq(domain.PaymentMethodPix, 1))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientInventory):
				soldOut++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 25, succeeded)
	assert.Equal(t, 35, soldOut)
	assert.Equal(t, 25, f.reserved(t))
}
