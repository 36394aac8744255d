package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/pkg/database"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPostgres(t *testing.T) *database.PostgresDB {
	t.Helper()
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}

	cfg := database.DefaultPostgresConfig()
	if host := os.Getenv("TEST_DB_HOST"); host != "" {
		cfg.Host = host
	}
	cfg.EnableTracing = false

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, EnsureSchema(ctx, db.Pool()))
	t.Cleanup(db.Close)
	return db
}

func createTicketType(t *testing.T, ctx context.Context, repo *PostgresTicketTypeRepository, capacity int) *domain.TicketType {
	t.Helper()
	tt := &domain.TicketType{
		ID:        uuid.NewString(),
		EventID:   "evt-" + uuid.NewString()[:8],
		Label:     "General",
		UnitPrice: decimal.RequireFromString("50.00"),
		Capacity:  capacity,
		Active:    true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	require.NoError(t, repo.Create(ctx, tt))
	return tt
}

func TestPostgresInventoryLedger_NoOversell_Integration(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	types := NewPostgresTicketTypeRepository(db.Pool())
	ledger := NewPostgresInventoryLedger(db.Pool())

	tt := createTicketType(t, ctx, types, 40)

	var reserved int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			if _, err := ledger.Reserve(ctx, tt.ID, q); err == nil {
				atomic.AddInt64(&reserved, int64(q))
			}
		}(1 + i%2)
	}
	wg.Wait()

	snap, err := ledger.Get(ctx, tt.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, int(reserved), 40)
	assert.Equal(t, int(reserved), snap.Reserved)

	_, err = ledger.Reserve(ctx, tt.ID, 41)
	var inv *domain.InsufficientInventoryError
	assert.True(t, errors.As(err, &inv))

	assert.ErrorIs(t, ledger.SetCapacity(ctx, tt.ID, snap.Reserved-1), domain.ErrCapacityBelowReserved)
}

func TestPostgresSaleRepository_CompareAndSwap_Integration(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	types := NewPostgresTicketTypeRepository(db.Pool())
	sales := NewPostgresSaleRepository(db.Pool())

	tt := createTicketType(t, ctx, types, 10)
	expires := time.Now().Add(-time.Minute)
	sale := &domain.Sale{
		ID:            uuid.NewString(),
		Code:          "TS-" + uuid.NewString()[:12],
		TicketTypeID:  tt.ID,
		EventID:       tt.EventID,
		Buyer:         domain.Buyer{Name: "Maria Silva", Email: "maria@example.com", NationalID: "52998224725"},
		Quantity:      2,
		UnitPrice:     tt.UnitPrice,
		Amount:        tt.UnitPrice.Mul(decimal.NewFromInt(2)),
		Currency:      "BRL",
		PaymentMethod: domain.PaymentMethodPix,
		SaleState:     domain.InitialSaleState(),
		Artifact:      domain.PaymentArtifact{PixPayload: "000201"},
		ExpiresAt:     &expires,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	require.NoError(t, sales.Create(ctx, sale))
	assert.ErrorIs(t, sales.Create(ctx, sale), domain.ErrSaleCodeConflict)

	got, err := sales.GetByCode(ctx, sale.Code)
	require.NoError(t, err)
	assert.True(t, sale.Amount.Equal(got.Amount))
	assert.Equal(t, "000201", got.Artifact.PixPayload)

	expired, _, _ := got.State().Transition(domain.PaymentStatusExpired)
	confirmed, _, _ := got.State().Transition(domain.PaymentStatusConfirmed)

	ok, err := sales.CompareAndSwapState(ctx, sale.Code, got.State(), expired)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = sales.CompareAndSwapState(ctx, sale.Code, got.State(), confirmed)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, types.Delete(ctx, tt.ID), domain.ErrTicketTypeInUse)
}

func TestPostgresInventoryLedger_SettlementOncePerSale_Integration(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()
	types := NewPostgresTicketTypeRepository(db.Pool())
	ledger := NewPostgresInventoryLedger(db.Pool())

	tt := createTicketType(t, ctx, types, 10)
	_, err := ledger.Reserve(ctx, tt.ID, 3)
	require.NoError(t, err)
	_, err = ledger.Reserve(ctx, tt.ID, 2)
	require.NoError(t, err)

	releaseCode := "TS-" + uuid.NewString()[:12]
	soldCode := "TS-" + uuid.NewString()[:12]
	for i := 0; i < 2; i++ {
		available, err := ledger.Release(ctx, tt.ID, releaseCode, 3)
		require.NoError(t, err)
		assert.Equal(t, 8, available)
		require.NoError(t, ledger.MarkSold(ctx, tt.ID, soldCode, 2))
	}

	snap, err := ledger.Get(ctx, tt.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Reserved)
	assert.Equal(t, 2, snap.Sold)

	_, err = ledger.Release(ctx, uuid.NewString(), "TS-"+uuid.NewString()[:12], 1)
	assert.ErrorIs(t, err, domain.ErrTicketTypeNotFound)
}
