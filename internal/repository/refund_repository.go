package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kidsbook/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const refundColumns = `id, refund_no, order_id, amount_cents, reason, status, admin_note, created_at, processed_at`

// uq_refunds_open is the partial unique index enforcing a single
// non-terminal refund per order; see migrations/schema.sql.
const openRefundConstraint = "uq_refunds_open"

// refundRepository implements RefundRepository using PostgreSQL.
type refundRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewRefundRepository creates a new PostgreSQL-backed refund repository.
func NewRefundRepository(pool *pgxpool.Pool, logger zerolog.Logger) RefundRepository {
	return &refundRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "refund").Logger(),
	}
}

// BeginTx starts a new database transaction.
func (r *refundRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := beginTx(ctx, r.pool)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, err
	}
	return tx, nil
}

// NextRefundNo reserves the next refund number: RFD<yyyymmdd><zero-padded seq>.
func (r *refundRepository) NextRefundNo(ctx context.Context, tx pgx.Tx, now time.Time) (string, error) {
	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('refund_no_seq')`).Scan(&seq); err != nil {
		r.logger.Error().Err(err).Msg("failed to advance refund number sequence")
		return "", fmt.Errorf("failed to advance refund number sequence: %w", err)
	}
	return fmt.Sprintf("RFD%s%06d", now.UTC().Format("20060102"), seq), nil
}

// Create inserts a new refund. The partial unique index backs up the
// application-level open-refund check against insert races.
func (r *refundRepository) Create(ctx context.Context, tx pgx.Tx, rf *model.Refund) error {
	query := `
		INSERT INTO refunds (id, refund_no, order_id, amount_cents, reason, status, admin_note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := tx.Exec(ctx, query,
		rf.ID, rf.RefundNo, rf.OrderID, rf.AmountCents, rf.Reason, rf.Status, rf.AdminNote, rf.CreatedAt)
	if err != nil {
		if isUniqueViolation(err, openRefundConstraint) {
			return model.ErrRefundAlreadyOpen
		}
		r.logger.Error().Err(err).Str("refund_id", rf.ID.String()).Msg("failed to create refund")
		return fmt.Errorf("failed to create refund: %w", err)
	}

	r.logger.Debug().
		Str("refund_id", rf.ID.String()).
		Str("refund_no", rf.RefundNo).
		Msg("refund created")
	return nil
}

// GetByID retrieves a refund by its ID.
func (r *refundRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE id = $1`

	rf, err := scanRefund(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("refund_id", id.String()).Msg("refund not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("refund_id", id.String()).Msg("failed to query refund")
		return nil, fmt.Errorf("failed to query refund: %w", err)
	}

	return rf, nil
}

// GetForUpdate locks the refund row for the duration of the transaction.
func (r *refundRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Refund, error) {
	query := `SELECT ` + refundColumns + ` FROM refunds WHERE id = $1 FOR UPDATE`

	rf, err := scanRefund(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("refund_id", id.String()).Msg("failed to lock refund")
		return nil, fmt.Errorf("failed to lock refund: %w", err)
	}

	return rf, nil
}

// HasOpenRefund reports whether the order has a PENDING or APPROVED refund.
func (r *refundRepository) HasOpenRefund(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM refunds WHERE order_id = $1 AND status IN ('PENDING', 'APPROVED'))`,
		orderID).Scan(&exists)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", orderID.String()).Msg("failed to check open refunds")
		return false, fmt.Errorf("failed to check open refunds: %w", err)
	}
	return exists, nil
}

// UpdateStatus compare-and-swaps the refund status. Decisions carry the admin
// note; completion carries the processed timestamp.
func (r *refundRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to model.RefundStatus, note string, at time.Time) error {
	var (
		ct  pgconn.CommandTag
		err error
	)

	switch to {
	case model.RefundApproved, model.RefundRejected:
		ct, err = tx.Exec(ctx,
			`UPDATE refunds SET status = $1, admin_note = $2 WHERE id = $3 AND status = $4`,
			to, note, id, from)
	case model.RefundCompleted:
		ct, err = tx.Exec(ctx,
			`UPDATE refunds SET status = $1, processed_at = $2 WHERE id = $3 AND status = $4`,
			to, at, id, from)
	default:
		return model.ErrInvalidStateTransition
	}

	if err != nil {
		r.logger.Error().Err(err).
			Str("refund_id", id.String()).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("failed to update refund status")
		return fmt.Errorf("failed to update refund status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return model.ErrInvalidStateTransition
	}

	r.logger.Debug().
		Str("refund_id", id.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("refund status updated")
	return nil
}

// scanRefund scans a refund row in refundColumns order.
func scanRefund(row pgx.Row) (*model.Refund, error) {
	var rf model.Refund
	err := row.Scan(
		&rf.ID, &rf.RefundNo, &rf.OrderID, &rf.AmountCents, &rf.Reason,
		&rf.Status, &rf.AdminNote, &rf.CreatedAt, &rf.ProcessedAt)
	if err != nil {
		return nil, err
	}
	return &rf, nil
}
