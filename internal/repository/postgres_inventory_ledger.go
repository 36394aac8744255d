package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresInventoryLedger keeps the counters on the ticket_types row. Each
// mutation is one conditional UPDATE, so the row lock taken by Postgres is
// the only serialization point.
type PostgresInventoryLedger struct {
	pool *pgxpool.Pool
}

// NewPostgresInventoryLedger creates a new PostgresInventoryLedger
func NewPostgresInventoryLedger(pool *pgxpool.Pool) *PostgresInventoryLedger {
	return &PostgresInventoryLedger{pool: pool}
}

// Reserve atomically reserves quantity units
func (l *PostgresInventoryLedger) Reserve(ctx context.Context, ticketTypeID string, quantity int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.inventory.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("ticket_type_id", ticketTypeID),
		attribute.Int("quantity", quantity),
	)

	if quantity <= 0 {
		return 0, domain.NewValidationError("quantity", "quantity must be positive")
	}

	query := `
		UPDATE ticket_types
		SET reserved = reserved + $2, updated_at = NOW()
		WHERE id = $1 AND reserved + $2 <= capacity
		RETURNING capacity - reserved
	`

	var available int
	err := l.pool.QueryRow(ctx, query, ticketTypeID, quantity).Scan(&available)
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return available, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to reserve inventory: %w", err)
	}

	snap, err := l.Get(ctx, ticketTypeID)
	if err != nil {
		return 0, err
	}
	span.SetStatus(codes.Error, "insufficient inventory")
	return snap.Available(), &domain.InsufficientInventoryError{Available: snap.Available()}
}

// Release returns quantity units to the pool once per sale code. The
// settlement row and the counter update commit in one statement.
func (l *PostgresInventoryLedger) Release(ctx context.Context, ticketTypeID, saleCode string, quantity int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.inventory.release")
	defer span.End()
	span.SetAttributes(
		attribute.String("ticket_type_id", ticketTypeID),
		attribute.String("sale_code", saleCode),
		attribute.Int("quantity", quantity),
	)

	if err := validateSettlement(saleCode, quantity); err != nil {
		return 0, err
	}

	query := `
		WITH settled AS (
			INSERT INTO inventory_settlements (sale_code, op, ticket_type_id, quantity)
			VALUES ($3, 'release', $1, $2)
			ON CONFLICT (sale_code, op) DO NOTHING
			RETURNING ticket_type_id
		)
		UPDATE ticket_types t
		SET reserved = GREATEST(t.reserved - $2, 0),
			sold = LEAST(t.sold, GREATEST(t.reserved - $2, 0)),
			updated_at = NOW()
		FROM settled
		WHERE t.id = settled.ticket_type_id
		RETURNING GREATEST(t.capacity - t.reserved, 0)
	`

	var available int
	err := l.pool.QueryRow(ctx, query, ticketTypeID, quantity, saleCode).Scan(&available)
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return available, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to release inventory: %w", err)
	}

	// already released for this sale, or no such ticket type
	snap, err := l.Get(ctx, ticketTypeID)
	if err != nil {
		return 0, err
	}
	span.SetStatus(codes.Ok, "")
	return snap.Available(), nil
}

// MarkSold records quantity units as sold once per sale code
func (l *PostgresInventoryLedger) MarkSold(ctx context.Context, ticketTypeID, saleCode string, quantity int) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.inventory.mark_sold")
	defer span.End()
	span.SetAttributes(
		attribute.String("ticket_type_id", ticketTypeID),
		attribute.String("sale_code", saleCode),
	)

	if err := validateSettlement(saleCode, quantity); err != nil {
		return err
	}

	query := `
		WITH settled AS (
			INSERT INTO inventory_settlements (sale_code, op, ticket_type_id, quantity)
			VALUES ($3, 'sold', $1, $2)
			ON CONFLICT (sale_code, op) DO NOTHING
			RETURNING ticket_type_id
		)
		UPDATE ticket_types t
		SET sold = LEAST(t.sold + $2, t.reserved), updated_at = NOW()
		FROM settled
		WHERE t.id = settled.ticket_type_id
	`

	tag, err := l.pool.Exec(ctx, query, ticketTypeID, quantity, saleCode)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to mark inventory sold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := l.Get(ctx, ticketTypeID); err != nil {
			return err
		}
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// SetCapacity edits the capacity column; the row itself is created by the
// ticket type repository
func (l *PostgresInventoryLedger) SetCapacity(ctx context.Context, ticketTypeID string, capacity int) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.inventory.set_capacity")
	defer span.End()

	if capacity < 0 {
		return domain.NewValidationError("capacity", "capacity cannot be negative")
	}

	query := `
		UPDATE ticket_types
		SET capacity = $2, updated_at = NOW()
		WHERE id = $1 AND reserved <= $2
	`

	tag, err := l.pool.Exec(ctx, query, ticketTypeID, capacity)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to set capacity: %w", err)
	}
	if tag.RowsAffected() == 1 {
		span.SetStatus(codes.Ok, "")
		return nil
	}

	if _, err := l.Get(ctx, ticketTypeID); err != nil {
		return err
	}
	return domain.ErrCapacityBelowReserved
}

// Get reads the counters
func (l *PostgresInventoryLedger) Get(ctx context.Context, ticketTypeID string) (*domain.InventorySnapshot, error) {
	query := `SELECT capacity, reserved, sold FROM ticket_types WHERE id = $1`

	snap := &domain.InventorySnapshot{TicketTypeID: ticketTypeID}
	err := l.pool.QueryRow(ctx, query, ticketTypeID).Scan(&snap.Capacity, &snap.Reserved, &snap.Sold)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTicketTypeNotFound
		}
		return nil, fmt.Errorf("failed to get inventory: %w", err)
	}
	return snap, nil
}

// Delete is a no-op; the counters go away with the ticket_types row
func (l *PostgresInventoryLedger) Delete(ctx context.Context, ticketTypeID string) error {
	return nil
}

var _ InventoryLedger = (*PostgresInventoryLedger)(nil)
