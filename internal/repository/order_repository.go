package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kidsbook/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const orderColumns = `id, order_no, user_id, product_id, quantity, unit_price_cents, discount_cents,
		total_cents, user_coupon_id, status, payment_deadline, created_at,
		paid_at, confirmed_at, completed_at, cancelled_at, refunded_at`

// orderTimestampColumn maps a target status to the column stamped on entry.
var orderTimestampColumn = map[model.OrderStatus]string{
	model.OrderPaid:      "paid_at",
	model.OrderConfirmed: "confirmed_at",
	model.OrderCompleted: "completed_at",
	model.OrderCancelled: "cancelled_at",
	model.OrderRefunded:  "refunded_at",
}

// orderRepository implements OrderRepository using PostgreSQL.
type orderRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewOrderRepository creates a new PostgreSQL-backed order repository.
func NewOrderRepository(pool *pgxpool.Pool, logger zerolog.Logger) OrderRepository {
	return &orderRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "order").Logger(),
	}
}

// BeginTx starts a new database transaction.
func (r *orderRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := beginTx(ctx, r.pool)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, err
	}
	return tx, nil
}

// NextOrderNo reserves the next order number: ORD<yyyymmdd><zero-padded seq>.
func (r *orderRepository) NextOrderNo(ctx context.Context, tx pgx.Tx, now time.Time) (string, error) {
	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('order_no_seq')`).Scan(&seq); err != nil {
		r.logger.Error().Err(err).Msg("failed to advance order number sequence")
		return "", fmt.Errorf("failed to advance order number sequence: %w", err)
	}
	return fmt.Sprintf("ORD%s%06d", now.UTC().Format("20060102"), seq), nil
}

// Create inserts a new order within the provided transaction.
func (r *orderRepository) Create(ctx context.Context, tx pgx.Tx, o *model.Order) error {
	query := `
		INSERT INTO orders (id, order_no, user_id, product_id, quantity, unit_price_cents,
			discount_cents, total_cents, user_coupon_id, status, payment_deadline, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := tx.Exec(ctx, query,
		o.ID, o.OrderNo, o.UserID, o.ProductID, o.Quantity, o.UnitPriceCents,
		o.DiscountCents, o.TotalCents, o.UserCouponID, o.Status, o.PaymentDeadline, o.CreatedAt)
	if err != nil {
		r.logger.Error().Err(err).Str("order_id", o.ID.String()).Msg("failed to create order")
		return fmt.Errorf("failed to create order: %w", err)
	}

	r.logger.Debug().
		Str("order_id", o.ID.String()).
		Str("order_no", o.OrderNo).
		Msg("order created")
	return nil
}

// GetByID retrieves an order by its ID.
func (r *orderRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("order_id", id.String()).Msg("order not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to query order")
		return nil, fmt.Errorf("failed to query order: %w", err)
	}

	return o, nil
}

// GetForUpdate locks the order row so only one of two racing transitions
// can win; the loser observes the committed status and fails its CAS.
func (r *orderRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	o, err := scanOrder(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to lock order")
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}

	return o, nil
}

// UpdateStatus compare-and-swaps the status column and stamps the transition
// timestamp for the target status.
func (r *orderRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to model.OrderStatus, at time.Time) error {
	col, ok := orderTimestampColumn[to]
	if !ok {
		return model.ErrInvalidStateTransition
	}

	// col comes from the fixed map above, never from input.
	query := fmt.Sprintf(`UPDATE orders SET status = $1, %s = $2 WHERE id = $3 AND status = $4`, col)

	ct, err := tx.Exec(ctx, query, to, at, id, from)
	if err != nil {
		r.logger.Error().Err(err).
			Str("order_id", id.String()).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("failed to update order status")
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return model.ErrInvalidStateTransition
	}

	r.logger.Debug().
		Str("order_id", id.String()).
		Str("from", string(from)).
		Str("to", string(to)).
		Msg("order status updated")
	return nil
}

// ListExpiredPending returns ids of PENDING orders past their payment
// deadline, oldest first.
func (r *orderRepository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM orders
		WHERE status = 'PENDING' AND payment_deadline <= $1
		ORDER BY payment_deadline
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to query expired pending orders")
		return nil, fmt.Errorf("failed to query expired pending orders: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			r.logger.Error().Err(err).Msg("failed to scan expired order id")
			return nil, fmt.Errorf("failed to scan expired order id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating expired order rows")
		return nil, fmt.Errorf("error iterating expired orders: %w", err)
	}

	return ids, nil
}

// scanOrder scans an order row in orderColumns order.
func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	err := row.Scan(
		&o.ID, &o.OrderNo, &o.UserID, &o.ProductID, &o.Quantity, &o.UnitPriceCents, &o.DiscountCents,
		&o.TotalCents, &o.UserCouponID, &o.Status, &o.PaymentDeadline, &o.CreatedAt,
		&o.PaidAt, &o.ConfirmedAt, &o.CompletedAt, &o.CancelledAt, &o.RefundedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
