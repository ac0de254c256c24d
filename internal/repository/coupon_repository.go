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

const couponColumns = `id, code, title, discount_type, value, min_amount_cents, max_discount_cents,
		total_quantity, claimed_quantity, limit_per_user, valid_from, valid_until, is_enabled, created_at`

// couponRepository implements CouponRepository using PostgreSQL.
type couponRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewCouponRepository creates a new PostgreSQL-backed coupon repository.
func NewCouponRepository(pool *pgxpool.Pool, logger zerolog.Logger) CouponRepository {
	return &couponRepository{
		pool:   pool,
		logger: logger.With().Str("repository", "coupon").Logger(),
	}
}

// BeginTx starts a new database transaction.
func (r *couponRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := beginTx(ctx, r.pool)
	if err != nil {
		r.logger.Error().Err(err).Msg("failed to begin transaction")
		return nil, err
	}
	return tx, nil
}

// Create inserts a new coupon definition.
func (r *couponRepository) Create(ctx context.Context, c *model.Coupon) error {
	query := `
		INSERT INTO coupons (id, code, title, discount_type, value, min_amount_cents, max_discount_cents,
			total_quantity, claimed_quantity, limit_per_user, valid_from, valid_until, is_enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.pool.Exec(ctx, query,
		c.ID, c.Code, c.Title, c.DiscountType, c.Value, c.MinAmountCents, c.MaxDiscountCents,
		c.TotalQuantity, c.ClaimedQuantity, c.LimitPerUser, c.ValidFrom, c.ValidUntil, c.IsEnabled, c.CreatedAt)
	if err != nil {
		r.logger.Error().Err(err).Str("code", c.Code).Msg("failed to create coupon")
		return fmt.Errorf("failed to create coupon: %w", err)
	}

	return nil
}

// Upsert inserts or refreshes a coupon definition by code. Claimed quantity
// is never overwritten by an import.
func (r *couponRepository) Upsert(ctx context.Context, c *model.Coupon) error {
	query := `
		INSERT INTO coupons (id, code, title, discount_type, value, min_amount_cents, max_discount_cents,
			total_quantity, claimed_quantity, limit_per_user, valid_from, valid_until, is_enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9, $10, $11, $12, $13)
		ON CONFLICT (code) DO UPDATE SET
			title = EXCLUDED.title,
			discount_type = EXCLUDED.discount_type,
			value = EXCLUDED.value,
			min_amount_cents = EXCLUDED.min_amount_cents,
			max_discount_cents = EXCLUDED.max_discount_cents,
			total_quantity = EXCLUDED.total_quantity,
			limit_per_user = EXCLUDED.limit_per_user,
			valid_from = EXCLUDED.valid_from,
			valid_until = EXCLUDED.valid_until,
			is_enabled = EXCLUDED.is_enabled
	`

	_, err := r.pool.Exec(ctx, query,
		c.ID, c.Code, c.Title, c.DiscountType, c.Value, c.MinAmountCents, c.MaxDiscountCents,
		c.TotalQuantity, c.LimitPerUser, c.ValidFrom, c.ValidUntil, c.IsEnabled, c.CreatedAt)
	if err != nil {
		r.logger.Error().Err(err).Str("code", c.Code).Msg("failed to upsert coupon")
		return fmt.Errorf("failed to upsert coupon: %w", err)
	}

	return nil
}

// GetByID retrieves a coupon by its ID.
func (r *couponRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`

	c, err := scanCoupon(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug().Str("coupon_id", id.String()).Msg("coupon not found")
			return nil, nil
		}
		r.logger.Error().Err(err).Str("coupon_id", id.String()).Msg("failed to query coupon")
		return nil, fmt.Errorf("failed to query coupon: %w", err)
	}

	return c, nil
}

// GetForUpdate locks the coupon row for the duration of the transaction.
// Every concurrent claim serialises here, so the quantity and per-user
// checks observe a consistent counter.
func (r *couponRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1 FOR UPDATE`

	c, err := scanCoupon(tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error().Err(err).Str("coupon_id", id.String()).Msg("failed to lock coupon")
		return nil, fmt.Errorf("failed to lock coupon: %w", err)
	}

	return c, nil
}

// CountUserClaims counts existing user_coupons rows for a (user, coupon) pair.
func (r *couponRepository) CountUserClaims(ctx context.Context, tx pgx.Tx, couponID uuid.UUID, userID string) (int, error) {
	var count int
	err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_coupons WHERE coupon_id = $1 AND user_id = $2`,
		couponID, userID).Scan(&count)
	if err != nil {
		r.logger.Error().Err(err).Str("coupon_id", couponID.String()).Msg("failed to count user claims")
		return 0, fmt.Errorf("failed to count user claims: %w", err)
	}
	return count, nil
}

// IncrementClaimed bumps claimed_quantity, guarded against exhaustion.
func (r *couponRepository) IncrementClaimed(ctx context.Context, tx pgx.Tx, couponID uuid.UUID) error {
	query := `
		UPDATE coupons
		SET claimed_quantity = claimed_quantity + 1
		WHERE id = $1 AND claimed_quantity < total_quantity
	`

	ct, err := tx.Exec(ctx, query, couponID)
	if err != nil {
		r.logger.Error().Err(err).Str("coupon_id", couponID.String()).Msg("failed to increment claimed quantity")
		return fmt.Errorf("failed to increment claimed quantity: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return model.ErrCouponExhausted
	}

	return nil
}

// InsertUserCoupon inserts one claimed instance.
func (r *couponRepository) InsertUserCoupon(ctx context.Context, tx pgx.Tx, uc *model.UserCoupon) error {
	query := `
		INSERT INTO user_coupons (id, user_id, coupon_id, status, expires_at, claimed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := tx.Exec(ctx, query, uc.ID, uc.UserID, uc.CouponID, uc.Status, uc.ExpiresAt, uc.ClaimedAt)
	if err != nil {
		r.logger.Error().Err(err).
			Str("coupon_id", uc.CouponID.String()).
			Str("user_id", uc.UserID).
			Msg("failed to insert user coupon")
		return fmt.Errorf("failed to insert user coupon: %w", err)
	}

	return nil
}

// GetUserCouponForUpdate retrieves a claimed instance joined with its coupon
// definition, locking the instance row.
func (r *couponRepository) GetUserCouponForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.UserCoupon, *model.Coupon, error) {
	// Lock the instance first, then read the definition; the definition row
	// is not locked because usage does not touch its counters.
	ucQuery := `
		SELECT id, user_id, coupon_id, status, expires_at, claimed_at, used_at
		FROM user_coupons
		WHERE id = $1
		FOR UPDATE
	`

	var uc model.UserCoupon
	err := tx.QueryRow(ctx, ucQuery, id).Scan(
		&uc.ID, &uc.UserID, &uc.CouponID, &uc.Status, &uc.ExpiresAt, &uc.ClaimedAt, &uc.UsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		r.logger.Error().Err(err).Str("user_coupon_id", id.String()).Msg("failed to lock user coupon")
		return nil, nil, fmt.Errorf("failed to lock user coupon: %w", err)
	}

	c, err := scanCoupon(tx.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, uc.CouponID))
	if err != nil {
		r.logger.Error().Err(err).Str("coupon_id", uc.CouponID.String()).Msg("failed to query coupon for user coupon")
		return nil, nil, fmt.Errorf("failed to query coupon: %w", err)
	}

	return &uc, c, nil
}

// MarkUsed transitions AVAILABLE -> USED for an unexpired instance owned by
// userID. The conditional update makes redemption exactly-once.
func (r *couponRepository) MarkUsed(ctx context.Context, tx pgx.Tx, id uuid.UUID, userID string, now time.Time) error {
	query := `
		UPDATE user_coupons
		SET status = 'USED', used_at = $3
		WHERE id = $1 AND user_id = $2 AND status = 'AVAILABLE' AND expires_at > $3
	`

	ct, err := tx.Exec(ctx, query, id, userID, now)
	if err != nil {
		r.logger.Error().Err(err).Str("user_coupon_id", id.String()).Msg("failed to mark user coupon used")
		return fmt.Errorf("failed to mark user coupon used: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return model.ErrCouponNotApplicable
	}

	return nil
}

// ReleaseUserCoupon reverts USED -> AVAILABLE. claimed_quantity stays as is:
// the claim was consumed when the instance was issued.
func (r *couponRepository) ReleaseUserCoupon(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := `
		UPDATE user_coupons
		SET status = 'AVAILABLE', used_at = NULL
		WHERE id = $1 AND status = 'USED'
	`

	ct, err := tx.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error().Err(err).Str("user_coupon_id", id.String()).Msg("failed to release user coupon")
		return fmt.Errorf("failed to release user coupon: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return model.ErrCouponNotApplicable
	}

	r.logger.Debug().Str("user_coupon_id", id.String()).Msg("user coupon released")
	return nil
}

// ListForUser returns a user's claimed coupons, expiring overdue ones first.
func (r *couponRepository) ListForUser(ctx context.Context, userID string) ([]model.UserCoupon, error) {
	// Lazy expiry keeps AVAILABLE truthful without a background job.
	_, err := r.pool.Exec(ctx,
		`UPDATE user_coupons SET status = 'EXPIRED' WHERE user_id = $1 AND status = 'AVAILABLE' AND expires_at <= now()`,
		userID)
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", userID).Msg("failed to expire overdue user coupons")
		return nil, fmt.Errorf("failed to expire overdue user coupons: %w", err)
	}

	query := `
		SELECT id, user_id, coupon_id, status, expires_at, claimed_at, used_at
		FROM user_coupons
		WHERE user_id = $1
		ORDER BY claimed_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		r.logger.Error().Err(err).Str("user_id", userID).Msg("failed to query user coupons")
		return nil, fmt.Errorf("failed to query user coupons: %w", err)
	}
	defer rows.Close()

	var coupons []model.UserCoupon
	for rows.Next() {
		var uc model.UserCoupon
		err := rows.Scan(&uc.ID, &uc.UserID, &uc.CouponID, &uc.Status, &uc.ExpiresAt, &uc.ClaimedAt, &uc.UsedAt)
		if err != nil {
			r.logger.Error().Err(err).Msg("failed to scan user coupon row")
			return nil, fmt.Errorf("failed to scan user coupon: %w", err)
		}
		coupons = append(coupons, uc)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error().Err(err).Msg("error iterating user coupon rows")
		return nil, fmt.Errorf("error iterating user coupons: %w", err)
	}

	return coupons, nil
}

// scanCoupon scans a coupon row in couponColumns order.
func scanCoupon(row pgx.Row) (*model.Coupon, error) {
	var c model.Coupon
	err := row.Scan(
		&c.ID, &c.Code, &c.Title, &c.DiscountType, &c.Value, &c.MinAmountCents, &c.MaxDiscountCents,
		&c.TotalQuantity, &c.ClaimedQuantity, &c.LimitPerUser, &c.ValidFrom, &c.ValidUntil, &c.IsEnabled, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
