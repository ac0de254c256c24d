package service

import (
	"context"
	"time"

	"kidsbook/internal/model"
	"kidsbook/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ProductService defines catalogue and publication operations.
type ProductService interface {
	// Create inserts a new DRAFT product.
	Create(ctx context.Context, req *model.CreateProductRequest) (*model.Product, error)

	// GetByID retrieves a single product.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Product, error)

	// List retrieves products with pagination.
	List(ctx context.Context, limit, offset int) ([]model.Product, error)

	// SetStatus publishes or unpublishes a product.
	SetStatus(ctx context.Context, id uuid.UUID, status model.ProductStatus) error
}

// CouponService defines the coupon allocator operations.
type CouponService interface {
	// Create inserts a new coupon definition.
	Create(ctx context.Context, req *model.CreateCouponRequest) (*model.Coupon, error)

	// Claim atomically acquires one unit of the coupon for the user.
	Claim(ctx context.Context, couponID uuid.UUID, userID string) (*model.UserCoupon, error)

	// ListForUser returns the user's claimed coupons.
	ListForUser(ctx context.Context, userID string) ([]model.UserCoupon, error)
}

// OrderService defines the order lifecycle operations.
type OrderService interface {
	// Create places an order: stock reservation, optional coupon redemption,
	// price snapshot and insert happen as one atomic unit.
	Create(ctx context.Context, req *model.CreateOrderRequest) (*model.Order, error)

	// GetByID retrieves an order.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// ConfirmPayment transitions PENDING -> PAID. Idempotent for duplicate
	// provider notifications.
	ConfirmPayment(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// Cancel transitions PENDING -> CANCELLED, releasing stock and coupon usage.
	Cancel(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// Expire is the system-driven equivalent of Cancel for overdue orders.
	Expire(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// Confirm transitions PAID -> CONFIRMED.
	Confirm(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// Complete transitions CONFIRMED -> COMPLETED.
	Complete(ctx context.Context, id uuid.UUID) (*model.Order, error)

	// ListExpiredPending returns ids of PENDING orders past their deadline.
	ListExpiredPending(ctx context.Context, limit int) ([]uuid.UUID, error)
}

// RefundService defines the refund workflow operations.
type RefundService interface {
	// Open creates a PENDING refund against a PAID or CONFIRMED order.
	Open(ctx context.Context, req *model.OpenRefundRequest) (*model.Refund, error)

	// GetByID retrieves a refund.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Refund, error)

	// Decide applies the administrator decision to a PENDING refund.
	Decide(ctx context.Context, id uuid.UUID, approve bool, note string) (*model.Refund, error)

	// Complete finishes an APPROVED refund: the refund transition, the order's
	// move to REFUNDED and the restock commit together, exactly once.
	Complete(ctx context.Context, id uuid.UUID) (*model.Refund, error)
}

// Contended transactions are retried a bounded number of times with
// exponential backoff before the failure is surfaced as retryable.
const (
	maxTxAttempts = 3
	retryBackoff  = 50 * time.Millisecond
)

// withRetry runs fn, retrying only on lock/serialization contention. Any
// other error, domain errors included, is terminal for the request.
func withRetry(ctx context.Context, logger zerolog.Logger, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		if attempt > 0 {
			backoff := retryBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			logger.Warn().
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("retrying contended transaction")
		}

		err = fn()
		if err == nil || !repository.IsContended(err) {
			return err
		}
	}

	logger.Warn().Err(err).Int("attempts", maxTxAttempts).Msg("transaction contention persisted")
	return model.ErrContendedResource
}
