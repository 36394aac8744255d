package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prohmpiriya/ticket-storefront/internal/domain"
	"github.com/prohmpiriya/ticket-storefront/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresSaleRepository implements SaleRepository using PostgreSQL with pgxpool
type PostgresSaleRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSaleRepository creates a new PostgresSaleRepository
func NewPostgresSaleRepository(pool *pgxpool.Pool) *PostgresSaleRepository {
	return &PostgresSaleRepository{pool: pool}
}

const saleColumns = `
	id, code, ticket_type_id, event_id,
	buyer_name, buyer_email, buyer_national_id, buyer_phone,
	quantity, unit_price, amount, currency, payment_method,
	payment_status, business_status, sold_recorded, reservation_released,
	artifact, expires_at, reminded_at, created_at, updated_at
`

// Create inserts a new sale
func (r *PostgresSaleRepository) Create(ctx context.Context, sale *domain.Sale) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.sale.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("sale_code", sale.Code),
		attribute.String("ticket_type_id", sale.TicketTypeID),
	)

	artifact, err := json.Marshal(sale.Artifact)
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	query := `
		INSERT INTO sales (` + saleColumns + `) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17,
			$18, $19, $20, $21, $22
		)
	`

	_, err = r.pool.Exec(ctx, query,
		sale.ID,
		sale.Code,
		sale.TicketTypeID,
		sale.EventID,
		sale.Buyer.Name,
		sale.Buyer.Email,
		sale.Buyer.NationalID,
		nullString(sale.Buyer.Phone),
		sale.Quantity,
		sale.UnitPrice,
		sale.Amount,
		sale.Currency,
		sale.PaymentMethod.String(),
		sale.PaymentStatus.String(),
		sale.BusinessStatus.String(),
		sale.SoldRecorded,
		sale.ReservationReleased,
		artifact,
		sale.ExpiresAt,
		sale.RemindedAt,
		sale.CreatedAt,
		sale.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.ErrSaleCodeConflict
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create sale: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByCode retrieves a sale by its public code
func (r *PostgresSaleRepository) GetByCode(ctx context.Context, code string) (*domain.Sale, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.sale.get_by_code")
	defer span.End()
	span.SetAttributes(attribute.String("sale_code", code))

	query := `SELECT ` + saleColumns + ` FROM sales WHERE code = $1`

	sale, err := scanSale(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSaleNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get sale: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return sale, nil
}

// CompareAndSwapState updates the state only when every state column still
// holds the expected value
func (r *PostgresSaleRepository) CompareAndSwapState(ctx context.Context, code string, expected, next domain.SaleState) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.sale.cas_state")
	defer span.End()
	span.SetAttributes(
		attribute.String("sale_code", code),
		attribute.String("from_payment_status", expected.PaymentStatus.String()),
		attribute.String("to_payment_status", next.PaymentStatus.String()),
	)

	query := `
		UPDATE sales
		SET payment_status = $2, business_status = $3,
			sold_recorded = $4, reservation_released = $5, updated_at = NOW()
		WHERE code = $1
			AND payment_status = $6 AND business_status = $7
			AND sold_recorded = $8 AND reservation_released = $9
	`

	tag, err := r.pool.Exec(ctx, query,
		code,
		next.PaymentStatus.String(),
		next.BusinessStatus.String(),
		next.SoldRecorded,
		next.ReservationReleased,
		expected.PaymentStatus.String(),
		expected.BusinessStatus.String(),
		expected.SoldRecorded,
		expected.ReservationReleased,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to update sale state: %w", err)
	}

	swapped := tag.RowsAffected() == 1
	span.SetAttributes(attribute.Bool("swapped", swapped))
	span.SetStatus(codes.Ok, "")
	return swapped, nil
}

// ListExpired returns pending, not cancelled sales past their deadline, oldest first
func (r *PostgresSaleRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*domain.Sale, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.sale.list_expired")
	defer span.End()

	query := `
		SELECT ` + saleColumns + `
		FROM sales
		WHERE payment_status = 'pending'
			AND business_status = 'pending'
			AND expires_at IS NOT NULL
			AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
	`

	sales, err := r.query(ctx, query, now, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list expired sales: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(sales)))
	span.SetStatus(codes.Ok, "")
	return sales, nil
}

// ListReminderDue returns pending sales close to their deadline that have
// not been reminded yet
func (r *PostgresSaleRepository) ListReminderDue(ctx context.Context, now, before time.Time, limit int) ([]*domain.Sale, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.sale.list_reminder_due")
	defer span.End()

	query := `
		SELECT ` + saleColumns + `
		FROM sales
		WHERE payment_status = 'pending'
			AND business_status = 'pending'
			AND reminded_at IS NULL
			AND expires_at > $1
			AND expires_at <= $2
		ORDER BY expires_at
		LIMIT $3
	`

	sales, err := r.query(ctx, query, now, before, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list reminder due sales: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return sales, nil
}

// ListUnsettled returns sales whose status change still owes a ledger
// settlement and that have not moved since updatedBefore
func (r *PostgresSaleRepository) ListUnsettled(ctx context.Context, updatedBefore time.Time, limit int) ([]*domain.Sale, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.sale.list_unsettled")
	defer span.End()

	query := `
		SELECT ` + saleColumns + `
		FROM sales
		WHERE ((payment_status = 'confirmed' AND NOT sold_recorded)
				OR ((payment_status = 'expired' OR business_status = 'cancelled') AND NOT reservation_released))
			AND updated_at <= $1
		ORDER BY updated_at
		LIMIT $2
	`

	sales, err := r.query(ctx, query, updatedBefore, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list unsettled sales: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(sales)))
	span.SetStatus(codes.Ok, "")
	return sales, nil
}

// MarkReminded stamps reminded_at when it is still empty
func (r *PostgresSaleRepository) MarkReminded(ctx context.Context, code string, at time.Time) (bool, error) {
	query := `
		UPDATE sales
		SET reminded_at = $2, updated_at = NOW()
		WHERE code = $1 AND reminded_at IS NULL AND payment_status = 'pending'
	`

	tag, err := r.pool.Exec(ctx, query, code, at)
	if err != nil {
		return false, fmt.Errorf("failed to mark sale reminded: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountByTicketType counts the sales that reference a ticket type
func (r *PostgresSaleRepository) CountByTicketType(ctx context.Context, ticketTypeID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM sales WHERE ticket_type_id = $1`, ticketTypeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sales: %w", err)
	}
	return count, nil
}

func (r *PostgresSaleRepository) query(ctx context.Context, query string, args ...interface{}) ([]*domain.Sale, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sales []*domain.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

func scanSale(row pgx.Row) (*domain.Sale, error) {
	sale := &domain.Sale{}
	var (
		phone          *string
		method         string
		paymentStatus  string
		businessStatus string
		artifact       []byte
	)

	err := row.Scan(
		&sale.ID,
		&sale.Code,
		&sale.TicketTypeID,
		&sale.EventID,
		&sale.Buyer.Name,
		&sale.Buyer.Email,
		&sale.Buyer.NationalID,
		&phone,
		&sale.Quantity,
		&sale.UnitPrice,
		&sale.Amount,
		&sale.Currency,
		&method,
		&paymentStatus,
		&businessStatus,
		&sale.SoldRecorded,
		&sale.ReservationReleased,
		&artifact,
		&sale.ExpiresAt,
		&sale.RemindedAt,
		&sale.CreatedAt,
		&sale.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if phone != nil {
		sale.Buyer.Phone = *phone
	}
	sale.PaymentMethod = domain.PaymentMethod(method)
	sale.PaymentStatus = domain.PaymentStatus(paymentStatus)
	sale.BusinessStatus = domain.BusinessStatus(businessStatus)
	if len(artifact) > 0 {
		if err := json.Unmarshal(artifact, &sale.Artifact); err != nil {
			return nil, fmt.Errorf("failed to decode artifact: %w", err)
		}
	}
	return sale, nil
}

var _ SaleRepository = (*PostgresSaleRepository)(nil)
