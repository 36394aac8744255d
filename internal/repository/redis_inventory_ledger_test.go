package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	pkgredis "github.com/prohmpiriya/ticket-storefront/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockLedger() (*RedisInventoryLedger, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	return NewRedisInventoryLedger(pkgredis.Wrap(db)), mock
}

func TestRedisInventoryLedger_Reserve_Success(t *testing.T) {
	ledger, mock := newMockLedger()
	mock.ExpectEvalSha(pkgredis.ScriptSHA(reserveScript), []string{"inventory:tt-1"}, 2).
		SetVal([]interface{}{int64(1), int64(8)})

	available, err := ledger.Reserve(context.Background(), "tt-1", 2)

	require.NoError(t, err)
	assert.Equal(t, 8, available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisInventoryLedger_Reserve_Insufficient(t *testing.T) {
	ledger, mock := newMockLedger()
	mock.ExpectEvalSha(pkgredis.ScriptSHA(reserveScript), []string{"inventory:tt-1"}, 1).
		SetVal([]interface{}{int64(0), "INSUFFICIENT_INVENTORY", "not enough tickets available", int64(0)})

	_, err := ledger.Reserve(context.Background(), "tt-1", 1)

	var inv *domain.InsufficientInventoryError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, 0, inv.Available)
}

func TestRedisInventoryLedger_Reserve_NotFound(t *testing.T) {
	ledger, mock := newMockLedger()
	mock.ExpectEvalSha(pkgredis.ScriptSHA(reserveScript), []string{"inventory:tt-1"}, 1).
		SetVal([]interface{}{int64(0), "NOT_FOUND", "ticket type inventory not found", int64(0)})

	_, err := ledger.Reserve(context.Background(), "tt-1", 1)
	assert.ErrorIs(t, err, domain.ErrTicketTypeNotFound)
}

func TestRedisInventoryLedger_Reserve_InfrastructureError(t *testing.T) {
	ledger, mock := newMockLedger()
	mock.ExpectEvalSha(pkgredis.ScriptSHA(reserveScript), []string{"inventory:tt-1"}, 1).
		SetErr(errors.New("connection refused"))

	_, err := ledger.Reserve(context.Background(), "tt-1", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestRedisInventoryLedger_SetCapacityBelowReserved(t *testing.T) {
	ledger, mock := newMockLedger()
	mock.ExpectEvalSha(pkgredis.ScriptSHA(setCapacityScript), []string{"inventory:tt-1"}, 3).
		SetVal([]interface{}{int64(0), "CAPACITY_BELOW_RESERVED", "capacity cannot be set below reserved count", int64(5)})

	err := ledger.SetCapacity(context.Background(), "tt-1", 3)
	assert.ErrorIs(t, err, domain.ErrCapacityBelowReserved)
}

func TestRedisInventoryLedger_ReleaseAndMarkSold(t *testing.T) {
	ledger, mock := newMockLedger()
	keys := []string{"inventory:tt-1", "inventory:tt-1:settlements"}
	mock.ExpectEvalSha(pkgredis.ScriptSHA(releaseScript), keys, 2, "release:TS-A").
		SetVal([]interface{}{int64(1), int64(10)})
	mock.ExpectEvalSha(pkgredis.ScriptSHA(markSoldScript), keys, 2, "sold:TS-B").
		SetVal([]interface{}{int64(1), int64(2)})

	available, err := ledger.Release(context.Background(), "tt-1", "TS-A", 2)
	require.NoError(t, err)
	assert.Equal(t, 10, available)
	assert.NoError(t, ledger.MarkSold(context.Background(), "tt-1", "TS-B", 2))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisInventoryLedger_SettlementRequiresSaleCode(t *testing.T) {
	ledger, mock := newMockLedger()

	_, err := ledger.Release(context.Background(), "tt-1", "", 2)
	assert.True(t, domain.IsValidationError(err))
	assert.True(t, domain.IsValidationError(ledger.MarkSold(context.Background(), "tt-1", "", 2)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisInventoryLedger_ReleaseOncePerSale_Integration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}

	ctx := context.Background()
	cfg := pkgredis.DefaultConfig()
	if host := os.Getenv("TEST_REDIS_HOST"); host != "" {
		cfg.Host = host
	}
	client, err := pkgredis.NewClient(ctx, cfg)
	require.NoError(t, err)
	defer client.Close()

	ledger := NewRedisInventoryLedger(client)
	id := uuid.NewString()
	defer ledger.Delete(ctx, id)
	require.NoError(t, ledger.SetCapacity(ctx, id, 10))
	_, err = ledger.Reserve(ctx, id, 3)
	require.NoError(t, err)
	_, err = ledger.Reserve(ctx, id, 2)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		available, err := ledger.Release(ctx, id, "TS-A", 3)
		require.NoError(t, err)
		assert.Equal(t, 8, available)
	}
	require.NoError(t, ledger.MarkSold(ctx, id, "TS-B", 2))
	require.NoError(t, ledger.MarkSold(ctx, id, "TS-B", 2))

	snap, err := ledger.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Reserved)
	assert.Equal(t, 2, snap.Sold)
}

func TestRedisInventoryLedger_Get(t *testing.T) {
	ledger, mock := newMockLedger()
	mock.ExpectHGetAll("inventory:tt-1").SetVal(map[string]string{"capacity": "10", "reserved": "4", "sold": "1"})
	mock.ExpectHGetAll("inventory:missing").SetVal(map[string]string{})

	snap, err := ledger.Get(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 10, snap.Capacity)
	assert.Equal(t, 4, snap.Reserved)
	assert.Equal(t, 1, snap.Sold)
	assert.Equal(t, 6, snap.Available())

	_, err = ledger.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrTicketTypeNotFound)
}

func TestRedisInventoryLedger_NoOversell_Integration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}

	ctx := context.Background()
	cfg := pkgredis.DefaultConfig()
	if host := os.Getenv("TEST_REDIS_HOST"); host != "" {
		cfg.Host = host
	}
	client, err := pkgredis.NewClient(ctx, cfg)
	require.NoError(t, err)
	defer client.Close()

	ledger := NewRedisInventoryLedger(client)
	require.NoError(t, ledger.LoadScripts(ctx))

	id := uuid.NewString()
	defer ledger.Delete(ctx, id)
	require.NoError(t, ledger.SetCapacity(ctx, id, 100))

	var reserved int64
	var wg sync.WaitGroup
	for i := 0; i < 300; i++ {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			if _, err := ledger.Reserve(ctx, id, q); err == nil {
				atomic.AddInt64(&reserved, int64(q))
			}
		}(1 + i%3)
	}
	wg.Wait()

	snap, err := ledger.Get(ctx, id)
	require.NoError(t, err)
	assert.LessOrEqual(t, int(reserved), 100)
	assert.Equal(t, int(reserved), snap.Reserved)
}
