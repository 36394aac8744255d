package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// PostgresTicketTypeRepository implements TicketTypeRepository using PostgreSQL with pgxpool
type PostgresTicketTypeRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTicketTypeRepository creates a new PostgresTicketTypeRepository
func NewPostgresTicketTypeRepository(pool *pgxpool.Pool) *PostgresTicketTypeRepository {
	return &PostgresTicketTypeRepository{pool: pool}
}

const ticketTypeColumns = `
	id, event_id, label, unit_price, capacity, reserved, sold,
	active, kit_contents, created_at, updated_at
`

// Create inserts a ticket type with zeroed counters
func (r *PostgresTicketTypeRepository) Create(ctx context.Context, tt *domain.TicketType) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket_type.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("ticket_type_id", tt.ID),
		attribute.String("event_id", tt.EventID),
	)

	query := `
		INSERT INTO ticket_types (
			id, event_id, label, unit_price, capacity, reserved, sold,
			active, kit_contents, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, 0, 0, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		tt.ID,
		tt.EventID,
		tt.Label,
		tt.UnitPrice,
		tt.Capacity,
		tt.Active,
		nullString(tt.KitContents),
		tt.CreatedAt,
		tt.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create ticket type: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a ticket type by its ID
func (r *PostgresTicketTypeRepository) GetByID(ctx context.Context, id string) (*domain.TicketType, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket_type.get_by_id")
	defer span.End()
	span.SetAttributes(attribute.String("ticket_type_id", id))

	query := `SELECT ` + ticketTypeColumns + ` FROM ticket_types WHERE id = $1`

	tt, err := scanTicketType(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTicketTypeNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get ticket type: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return tt, nil
}

// ListByEvent returns the ticket types of one event
func (r *PostgresTicketTypeRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.TicketType, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket_type.list_by_event")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID))

	query := `SELECT ` + ticketTypeColumns + ` FROM ticket_types WHERE event_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list ticket types: %w", err)
	}
	defer rows.Close()

	var result []*domain.TicketType
	for rows.Next() {
		tt, err := scanTicketType(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ticket type: %w", err)
		}
		result = append(result, tt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ticket types: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return result, nil
}

// Update writes the editable fields. reserved and sold are left alone; the
// capacity check constraint rejects a capacity below reserved.
func (r *PostgresTicketTypeRepository) Update(ctx context.Context, tt *domain.TicketType) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket_type.update")
	defer span.End()
	span.SetAttributes(attribute.String("ticket_type_id", tt.ID))

	query := `
		UPDATE ticket_types
		SET label = $2, unit_price = $3, capacity = $4, active = $5,
			kit_contents = $6, updated_at = $7
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		tt.ID,
		tt.Label,
		tt.UnitPrice,
		tt.Capacity,
		tt.Active,
		nullString(tt.KitContents),
		tt.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation {
			return domain.ErrCapacityBelowReserved
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update ticket type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTicketTypeNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Delete removes a ticket type; the sales foreign key blocks it while any
// sale references the row
func (r *PostgresTicketTypeRepository) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket_type.delete")
	defer span.End()
	span.SetAttributes(attribute.String("ticket_type_id", id))

	tag, err := r.pool.Exec(ctx, `DELETE FROM ticket_types WHERE id = $1`, id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return domain.ErrTicketTypeInUse
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete ticket type: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTicketTypeNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func scanTicketType(row pgx.Row) (*domain.TicketType, error) {
	tt := &domain.TicketType{}
	var kit *string
	err := row.Scan(
		&tt.ID,
		&tt.EventID,
		&tt.Label,
		&tt.UnitPrice,
		&tt.Capacity,
		&tt.Reserved,
		&tt.Sold,
		&tt.Active,
		&kit,
		&tt.CreatedAt,
		&tt.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if kit != nil {
		tt.KitContents = *kit
	}
	return tt, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ TicketTypeRepository = (*PostgresTicketTypeRepository)(nil)
