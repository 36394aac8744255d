package repository

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"

	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	pkgredis "github.com/prohmpiriya/ticket-storefront/pkg/redis"
	"github.com/prohmpiriya/ticket-storefront/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

//go:embed scripts/reserve.lua
var reserveScript string

//go:embed scripts/release.lua
var releaseScript string

//go:embed scripts/mark_sold.lua
var markSoldScript string

//go:embed scripts/set_capacity.lua
var setCapacityScript string

// Script names for caching
const (
	scriptReserve     = "inventory_reserve"
	scriptRelease     = "inventory_release"
	scriptMarkSold    = "inventory_mark_sold"
	scriptSetCapacity = "inventory_set_capacity"
)

// RedisInventoryLedger keeps counters in a hash per ticket type and mutates
// them only through Lua scripts, so every check-and-write is atomic on the
// server no matter how many service instances run.
type RedisInventoryLedger struct {
	client *pkgredis.Client
}

// NewRedisInventoryLedger creates a new RedisInventoryLedger
func NewRedisInventoryLedger(client *pkgredis.Client) *RedisInventoryLedger {
	return &RedisInventoryLedger{client: client}
}

// InventoryKey is the hash holding capacity, reserved and sold
func InventoryKey(ticketTypeID string) string {
	return "inventory:" + ticketTypeID
}

// SettlementsKey is the set of applied release and sale markers
func SettlementsKey(ticketTypeID string) string {
	return InventoryKey(ticketTypeID) + ":settlements"
}

// LoadScripts preloads every script so the first call skips the EVAL fallback
func (r *RedisInventoryLedger) LoadScripts(ctx context.Context) error {
	scripts := map[string]string{
		scriptReserve:     reserveScript,
		scriptRelease:     releaseScript,
		scriptMarkSold:    markSoldScript,
		scriptSetCapacity: setCapacityScript,
	}
	for name, script := range scripts {
		if _, err := r.client.LoadScript(ctx, name, script); err != nil {
			return fmt.Errorf("failed to load script %s: %w", name, err)
		}
	}
	return nil
}

// scriptResult is the decoded {ok, ...} reply shared by all scripts
type scriptResult struct {
	OK      bool
	Value   int64
	Code    string
	Message string
}

func (r *RedisInventoryLedger) run(ctx context.Context, name, script, ticketTypeID string, arg int) (*scriptResult, error) {
	return r.eval(ctx, name, script, []string{InventoryKey(ticketTypeID)}, arg)
}

// settle runs a release or sale script guarded by the settlements set
func (r *RedisInventoryLedger) settle(ctx context.Context, name, script, ticketTypeID, member string, quantity int) (*scriptResult, error) {
	keys := []string{InventoryKey(ticketTypeID), SettlementsKey(ticketTypeID)}
	return r.eval(ctx, name, script, keys, quantity, member)
}

func (r *RedisInventoryLedger) eval(ctx context.Context, name, script string, keys []string, args ...interface{}) (*scriptResult, error) {
	cmd := r.client.EvalWithFallback(ctx, name, script, keys, args...)
	if err := cmd.Err(); err != nil {
		return nil, fmt.Errorf("failed to execute %s script: %w", name, err)
	}

	values, err := cmd.Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to parse script result: %w", err)
	}
	if len(values) < 2 {
		return nil, fmt.Errorf("unexpected script result length: %d", len(values))
	}

	ok, _ := toInt64(values[0])
	if ok == 1 {
		v, _ := toInt64(values[1])
		return &scriptResult{OK: true, Value: v}, nil
	}
	if len(values) < 4 {
		return nil, fmt.Errorf("unexpected script result length: %d", len(values))
	}
	res := &scriptResult{}
	res.Code, _ = values[1].(string)
	res.Message, _ = values[2].(string)
	res.Value, _ = toInt64(values[3])
	return res, nil
}

func (r *RedisInventoryLedger) failure(res *scriptResult) error {
	switch res.Code {
	case "NOT_FOUND":
		return domain.ErrTicketTypeNotFound
	case "INSUFFICIENT_INVENTORY":
		return &domain.InsufficientInventoryError{Available: int(res.Value)}
	case "CAPACITY_BELOW_RESERVED":
		return domain.ErrCapacityBelowReserved
	case "INVALID_QUANTITY":
		return domain.NewValidationError("quantity", res.Message)
	case "INVALID_CAPACITY":
		return domain.NewValidationError("capacity", res.Message)
	default:
		return fmt.Errorf("inventory script failed: %s: %s", res.Code, res.Message)
	}
}

// Reserve atomically reserves quantity units
func (r *RedisInventoryLedger) Reserve(ctx context.Context, ticketTypeID string, quantity int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.inventory.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("ticket_type_id", ticketTypeID),
		attribute.Int("quantity", quantity),
	)

	res, err := r.run(ctx, scriptReserve, reserveScript, ticketTypeID, quantity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	if !res.OK {
		span.SetStatus(codes.Error, res.Code)
		return int(res.Value), r.failure(res)
	}

	span.SetAttributes(attribute.Int64("available", res.Value))
	span.SetStatus(codes.Ok, "")
	return int(res.Value), nil
}

// Release returns quantity units to the pool once per sale code
func (r *RedisInventoryLedger) Release(ctx context.Context, ticketTypeID, saleCode string, quantity int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.inventory.release")
	defer span.End()
	span.SetAttributes(
		attribute.String("ticket_type_id", ticketTypeID),
		attribute.String("sale_code", saleCode),
		attribute.Int("quantity", quantity),
	)
	if saleCode == "" {
		return 0, domain.NewValidationError("sale_code", "sale code is required")
	}

	res, err := r.settle(ctx, scriptRelease, releaseScript, ticketTypeID, "release:"+saleCode, quantity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	if !res.OK {
		span.SetStatus(codes.Error, res.Code)
		return 0, r.failure(res)
	}

	span.SetStatus(codes.Ok, "")
	return int(res.Value), nil
}

// MarkSold records quantity units as sold once per sale code
func (r *RedisInventoryLedger) MarkSold(ctx context.Context, ticketTypeID, saleCode string, quantity int) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.inventory.mark_sold")
	defer span.End()
	span.SetAttributes(
		attribute.String("ticket_type_id", ticketTypeID),
		attribute.String("sale_code", saleCode),
		attribute.Int("quantity", quantity),
	)
	if saleCode == "" {
		return domain.NewValidationError("sale_code", "sale code is required")
	}

	res, err := r.settle(ctx, scriptMarkSold, markSoldScript, ticketTypeID, "sold:"+saleCode, quantity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if !res.OK {
		span.SetStatus(codes.Error, res.Code)
		return r.failure(res)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// SetCapacity creates or edits the counters
func (r *RedisInventoryLedger) SetCapacity(ctx context.Context, ticketTypeID string, capacity int) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.inventory.set_capacity")
	defer span.End()
	span.SetAttributes(
		attribute.String("ticket_type_id", ticketTypeID),
		attribute.Int("capacity", capacity),
	)

	res, err := r.run(ctx, scriptSetCapacity, setCapacityScript, ticketTypeID, capacity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if !res.OK {
		span.SetStatus(codes.Error, res.Code)
		return r.failure(res)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Get reads the counters
func (r *RedisInventoryLedger) Get(ctx context.Context, ticketTypeID string) (*domain.InventorySnapshot, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.inventory.get")
	defer span.End()
	span.SetAttributes(attribute.String("ticket_type_id", ticketTypeID))

	fields, err := r.client.Client().HGetAll(ctx, InventoryKey(ticketTypeID)).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get inventory: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrTicketTypeNotFound
	}

	snap := &domain.InventorySnapshot{TicketTypeID: ticketTypeID}
	snap.Capacity, _ = strconv.Atoi(fields["capacity"])
	snap.Reserved, _ = strconv.Atoi(fields["reserved"])
	snap.Sold, _ = strconv.Atoi(fields["sold"])

	span.SetStatus(codes.Ok, "")
	return snap, nil
}

// Delete drops the counters
func (r *RedisInventoryLedger) Delete(ctx context.Context, ticketTypeID string) error {
	if err := r.client.Client().Del(ctx, InventoryKey(ticketTypeID), SettlementsKey(ticketTypeID)).Err(); err != nil {
		return fmt.Errorf("failed to delete inventory: %w", err)
	}
	return nil
}

func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case int:
		return int64(val), true
	case float64:
		return int64(val), true
	case string:
		i, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

var _ InventoryLedger = (*RedisInventoryLedger)(nil)
