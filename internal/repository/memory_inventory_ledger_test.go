package repository

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryInventoryLedger_ReserveAndRelease(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryInventoryLedger()
	require.NoError(t, ledger.SetCapacity(ctx, "tt-1", 10))

	available, err := ledger.Reserve(ctx, "tt-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 8, available)

	available, err = ledger.Release(ctx, "tt-1", "TS-A", 2)
	require.NoError(t, err)
	assert.Equal(t, 10, available)

	snap, err := ledger.Get(ctx, "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Reserved)
}

func TestMemoryInventoryLedger_SoldOut(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryInventoryLedger()
	require.NoError(t, ledger.SetCapacity(ctx, "tt-1", 5))
	_, err := ledger.Reserve(ctx, "tt-1", 5)
	require.NoError(t, err)

	_, err = ledger.Reserve(ctx, "tt-1", 1)

	var inv *domain.InsufficientInventoryError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, 0, inv.Available)

	snap, _ := ledger.Get(ctx, "tt-1")
	assert.Equal(t, 5, snap.Reserved)
}

func TestMemoryInventoryLedger_PartialRefusalLeavesCounters(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryInventoryLedger()
	require.NoError(t, ledger.SetCapacity(ctx, "tt-1", 3))

	_, err := ledger.Reserve(ctx, "tt-1", 4)
	var inv *domain.InsufficientInventoryError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, 3, inv.Available)

	snap, _ := ledger.Get(ctx, "tt-1")
	assert.Equal(t, 0, snap.Reserved)
}

func TestMemoryInventoryLedger_ReleaseFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryInventoryLedger()
	require.NoError(t, ledger.SetCapacity(ctx, "tt-1", 4))
	_, _ = ledger.Reserve(ctx, "tt-1", 1)

	available, err := ledger.Release(ctx, "tt-1", "TS-A", 3)
	require.NoError(t, err)
	assert.Equal(t, 4, available)

	snap, _ := ledger.Get(ctx, "tt-1")
	assert.Equal(t, 0, snap.Reserved)
}

func TestMemoryInventoryLedger_MarkSoldCappedAtReserved(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryInventoryLedger()
	require.NoError(t, ledger.SetCapacity(ctx, "tt-1", 10))
	_, _ = ledger.Reserve(ctx, "tt-1", 2)

	require.NoError(t, ledger.MarkSold(ctx, "tt-1", "TS-A", 5))

	snap, _ := ledger.Get(ctx, "tt-1")
	assert.Equal(t, 2, snap.Sold)
}

func TestMemoryInventoryLedger_SettlementOncePerSale(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryInventoryLedger()
	require.NoError(t, ledger.SetCapacity(ctx, "tt-1", 10))
	_, _ = ledger.Reserve(ctx, "tt-1", 3)
	_, _ = ledger.Reserve(ctx, "tt-1", 2)

	for i := 0; i < 3; i++ {
		available, err := ledger.Release(ctx, "tt-1", "TS-A", 3)
		require.NoError(t, err)
		assert.Equal(t, 8, available)
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, ledger.MarkSold(ctx, "tt-1", "TS-B", 2))
	}

	snap, _ := ledger.Get(ctx, "tt-1")
	assert.Equal(t, 2, snap.Reserved)
	assert.Equal(t, 2, snap.Sold)

	_, err := ledger.Release(ctx, "tt-1", "", 1)
	assert.True(t, domain.IsValidationError(err))
	assert.True(t, domain.IsValidationError(ledger.MarkSold(ctx, "tt-1", "", 1)))
}

func TestMemoryInventoryLedger_SetCapacityBelowReserved(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryInventoryLedger()
	require.NoError(t, ledger.SetCapacity(ctx, "tt-1", 10))
	_, _ = ledger.Reserve(ctx, "tt-1", 6)

	assert.ErrorIs(t, ledger.SetCapacity(ctx, "tt-1", 5), domain.ErrCapacityBelowReserved)
	assert.NoError(t, ledger.SetCapacity(ctx, "tt-1", 6))

	snap, _ := ledger.Get(ctx, "tt-1")
	assert.Equal(t, 6, snap.Capacity)
	assert.Equal(t, 6, snap.Reserved)
}

func TestMemoryInventoryLedger_UnknownTicketType(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryInventoryLedger()

	_, err := ledger.Reserve(ctx, "missing", 1)
	assert.ErrorIs(t, err, domain.ErrTicketTypeNotFound)
	_, err = ledger.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryInventoryLedger_InvalidQuantity(t *testing.T) {
	ctx := context.Background()
	ledger := NewMemoryInventoryLedger()
	require.NoError(t, ledger.SetCapacity(ctx, "tt-1", 1))

	_, err := ledger.Reserve(ctx, "tt-1", 0)
	assert.True(t, domain.IsValidationError(err))
}

// Concurrent reservations with random quantities never exceed capacity
func TestMemoryInventoryLedger_NoOversell(t *testing.T) {
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		ledger := NewMemoryInventoryLedger()
		capacity := 50 + rand.Intn(50)
		require.NoError(t, ledger.SetCapacity(ctx, "tt-1", capacity))

		var reserved int64
		var wg sync.WaitGroup
		for i := 0; i < 200; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				q := 1 + rand.Intn(4)
				if _, err := ledger.Reserve(ctx, "tt-1", q); err == nil {
					atomic.AddInt64(&reserved, int64(q))
				}
			}()
		}
		wg.Wait()

		snap, err := ledger.Get(ctx, "tt-1")
		require.NoError(t, err)
		assert.LessOrEqual(t, int(reserved), capacity)
		assert.Equal(t, int(reserved), snap.Reserved)
	}
}
