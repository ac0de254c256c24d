package repository

import (
	"context"
	"time"

	"kidsbook/internal/model"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProductRepository owns the product catalogue and the inventory ledger.
type ProductRepository interface {
	// Create inserts a new product.
	Create(ctx context.Context, p *model.Product) error

	// GetByID retrieves a single product. Returns nil when not found.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error)

	// List retrieves products with pagination support.
	List(ctx context.Context, limit, offset int) ([]model.Product, error)

	// UpdateStatus moves a product between publication states.
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.ProductStatus) error

	// ReserveStock atomically checks stock >= quantity on a PUBLISHED product
	// and decrements it, returning the post-reservation row. Fails with
	// model.ErrInsufficientStock (or ErrProductNotFound) with no side effect.
	ReserveStock(ctx context.Context, tx pgx.Tx, id uuid.UUID, quantity int) (*model.Product, error)

	// ReleaseStock atomically increments stock. Each release must correspond
	// to exactly one prior reservation of the same quantity.
	ReleaseStock(ctx context.Context, tx pgx.Tx, id uuid.UUID, quantity int) error
}

// CouponRepository owns coupon definitions and per-user claimed instances.
// Counters are only ever mutated through these operations.
type CouponRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// Create inserts a new coupon definition.
	Create(ctx context.Context, c *model.Coupon) error

	// Upsert inserts or refreshes a coupon definition by code (bulk import).
	Upsert(ctx context.Context, c *model.Coupon) error

	// GetByID retrieves a coupon. Returns nil when not found.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Coupon, error)

	// GetForUpdate retrieves a coupon under a row lock, serialising
	// concurrent claims against it.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Coupon, error)

	// CountUserClaims counts existing user_coupons rows for a (user, coupon) pair.
	CountUserClaims(ctx context.Context, tx pgx.Tx, couponID uuid.UUID, userID string) (int, error)

	// IncrementClaimed bumps claimed_quantity, guarded by
	// claimed_quantity < total_quantity. Fails with model.ErrCouponExhausted.
	IncrementClaimed(ctx context.Context, tx pgx.Tx, couponID uuid.UUID) error

	// InsertUserCoupon inserts one claimed instance.
	InsertUserCoupon(ctx context.Context, tx pgx.Tx, uc *model.UserCoupon) error

	// GetUserCouponForUpdate retrieves a claimed instance and its coupon
	// definition under a row lock on the instance. Returns nils when not found.
	GetUserCouponForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.UserCoupon, *model.Coupon, error)

	// MarkUsed transitions AVAILABLE -> USED for an unexpired instance owned
	// by userID. Fails with model.ErrCouponNotApplicable otherwise.
	MarkUsed(ctx context.Context, tx pgx.Tx, id uuid.UUID, userID string, now time.Time) error

	// ReleaseUserCoupon reverts USED -> AVAILABLE (failed-order rollback).
	// The claim on the coupon's quantity is not returned.
	ReleaseUserCoupon(ctx context.Context, tx pgx.Tx, id uuid.UUID) error

	// ListForUser returns a user's claimed coupons, transitioning overdue
	// AVAILABLE rows to EXPIRED first.
	ListForUser(ctx context.Context, userID string) ([]model.UserCoupon, error)
}

// OrderRepository owns order rows and their status column.
type OrderRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// NextOrderNo reserves the next human-readable order number.
	NextOrderNo(ctx context.Context, tx pgx.Tx, now time.Time) (string, error)

	// Create inserts a new order within the provided transaction.
	Create(ctx context.Context, tx pgx.Tx, o *model.Order) error

	// GetByID retrieves an order. Returns nil when not found.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// GetForUpdate retrieves an order under a row lock, so exactly one of
	// two racing transitions can win.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Order, error)

	// UpdateStatus compare-and-swaps the status column and stamps the
	// transition timestamp. Fails with model.ErrInvalidStateTransition when
	// the row is no longer in the expected status.
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to model.OrderStatus, at time.Time) error

	// ListExpiredPending returns ids of PENDING orders past their payment
	// deadline, oldest first.
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// RefundRepository owns refund rows and their status column.
type RefundRepository interface {
	// BeginTx starts a new database transaction.
	BeginTx(ctx context.Context) (pgx.Tx, error)

	// NextRefundNo reserves the next human-readable refund number.
	NextRefundNo(ctx context.Context, tx pgx.Tx, now time.Time) (string, error)

	// Create inserts a new refund. Fails with model.ErrRefundAlreadyOpen when
	// the order already has a non-terminal refund.
	Create(ctx context.Context, tx pgx.Tx, r *model.Refund) error

	// GetByID retrieves a refund. Returns nil when not found.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Refund, error)

	// GetForUpdate retrieves a refund under a row lock.
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*model.Refund, error)

	// HasOpenRefund reports whether the order has a PENDING or APPROVED refund.
	HasOpenRefund(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (bool, error)

	// UpdateStatus compare-and-swaps the refund status, recording the admin
	// note and processed timestamp where the transition carries them.
	UpdateStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to model.RefundStatus, note string, at time.Time) error
}
