package service

import (
	"context"
	"fmt"
	"time"

	"kidsbook/internal/cache"
	"kidsbook/internal/events"
	"kidsbook/internal/metrics"
	"kidsbook/internal/model"
	"kidsbook/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// orderService implements OrderService.
type orderService struct {
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	couponRepo  repository.CouponRepository
	publisher   events.Publisher
	metrics     *metrics.Metrics
	cache       *cache.ProductCache
	paymentTTL  time.Duration
	logger      zerolog.Logger
}

// NewOrderService creates a new order service.
func NewOrderService(
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	couponRepo repository.CouponRepository,
	publisher events.Publisher,
	m *metrics.Metrics,
	productCache *cache.ProductCache,
	paymentTTL time.Duration,
	logger zerolog.Logger,
) OrderService {
	return &orderService{
		orderRepo:   orderRepo,
		productRepo: productRepo,
		couponRepo:  couponRepo,
		publisher:   publisher,
		metrics:     m,
		cache:       productCache,
		paymentTTL:  paymentTTL,
		logger:      logger.With().Str("service", "order").Logger(),
	}
}

// Create places an order. Stock reservation, coupon redemption, price
// snapshot and the order insert run in one transaction: a failure at any
// step aborts the transaction and leaves stock and coupon state untouched.
func (s *orderService) Create(ctx context.Context, req *model.CreateOrderRequest) (*model.Order, error) {
	if err := s.validateCreateRequest(req); err != nil {
		return nil, err
	}

	var order *model.Order
	err := withRetry(ctx, s.logger, func() error {
		var err error
		order, err = s.createOnce(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrdersCreated.Inc()
	s.cache.Invalidate(ctx, req.ProductID)
	s.publishOrderEvent(ctx, events.TypeOrderCreated, order)

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("order_no", order.OrderNo).
		Str("user_id", order.UserID).
		Int64("total_cents", order.TotalCents).
		Msg("order created")
	return order, nil
}

func (s *orderService) createOnce(ctx context.Context, req *model.CreateOrderRequest) (order *model.Order, err error) {
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	now := time.Now().UTC()

	product, err := s.productRepo.ReserveStock(ctx, tx, req.ProductID, req.Quantity)
	if err != nil {
		return nil, err
	}

	amount := product.PriceCents * int64(req.Quantity)

	var discount int64
	if req.UserCouponID != nil {
		discount, err = s.redeemCoupon(ctx, tx, *req.UserCouponID, req.UserID, amount, now)
		if err != nil {
			return nil, err
		}
	}

	orderNo, err := s.orderRepo.NextOrderNo(ctx, tx, now)
	if err != nil {
		return nil, err
	}

	order = &model.Order{
		ID:              uuid.New(),
		OrderNo:         orderNo,
		UserID:          req.UserID,
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		UnitPriceCents:  product.PriceCents,
		DiscountCents:   discount,
		TotalCents:      amount - discount,
		UserCouponID:    req.UserCouponID,
		Status:          model.OrderPending,
		PaymentDeadline: now.Add(s.paymentTTL),
		CreatedAt:       now,
	}

	if err = s.orderRepo.Create(ctx, tx, order); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}
	return order, nil
}

// redeemCoupon validates ownership and applicability, computes the discount
// and flips the instance to USED, all inside the order transaction.
func (s *orderService) redeemCoupon(ctx context.Context, tx pgx.Tx, userCouponID uuid.UUID, userID string, amount int64, now time.Time) (int64, error) {
	uc, coupon, err := s.couponRepo.GetUserCouponForUpdate(ctx, tx, userCouponID)
	if err != nil {
		return 0, err
	}
	if uc == nil || coupon == nil {
		return 0, model.ErrCouponNotApplicable
	}
	if uc.UserID != userID {
		return 0, model.ErrCouponNotApplicable
	}

	discount, err := coupon.Discount(amount)
	if err != nil {
		return 0, err
	}

	if err := s.couponRepo.MarkUsed(ctx, tx, userCouponID, userID, now); err != nil {
		return 0, err
	}
	return discount, nil
}

// GetByID retrieves an order.
func (s *orderService) GetByID(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("order_id", id.String()).Msg("failed to get order")
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	return order, nil
}

// ConfirmPayment transitions PENDING -> PAID. A duplicate notification for
// an already-PAID order returns the order unchanged: providers redeliver.
func (s *orderService) ConfirmPayment(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var (
		order     *model.Order
		duplicate bool
	)
	err := withRetry(ctx, s.logger, func() error {
		var err error
		order, duplicate, err = s.confirmPaymentOnce(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	if duplicate {
		s.logger.Info().Str("order_id", id.String()).Msg("duplicate payment confirmation absorbed")
		return order, nil
	}

	s.metrics.PaymentConfirmations.Inc()
	s.publishOrderEvent(ctx, events.TypeOrderPaid, order)
	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("order_no", order.OrderNo).
		Msg("payment confirmed")
	return order, nil
}

func (s *orderService) confirmPaymentOnce(ctx context.Context, id uuid.UUID) (order *model.Order, duplicate bool, err error) {
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to confirm payment: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	order, err = s.orderRepo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, false, err
	}
	if order == nil {
		return nil, false, model.ErrOrderNotFound
	}

	if order.Status == model.OrderPaid {
		if err = tx.Commit(ctx); err != nil {
			return nil, false, fmt.Errorf("failed to commit: %w", err)
		}
		return order, true, nil
	}
	if order.Status != model.OrderPending {
		err = model.ErrInvalidStateTransition
		return nil, false, err
	}

	now := time.Now().UTC()
	if err = s.orderRepo.UpdateStatus(ctx, tx, id, model.OrderPending, model.OrderPaid, now); err != nil {
		return nil, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("failed to commit payment confirmation: %w", err)
	}

	order.Status = model.OrderPaid
	order.PaidAt = &now
	return order, false, nil
}

// Cancel transitions PENDING -> CANCELLED on behalf of the buyer.
func (s *orderService) Cancel(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return s.closePending(ctx, id, events.TypeOrderCancelled, "cancelled")
}

// Expire is the sweep-driven equivalent of Cancel. It races a concurrent
// ConfirmPayment safely: only one of the two wins the order row lock, and
// the loser fails with ErrInvalidStateTransition.
func (s *orderService) Expire(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return s.closePending(ctx, id, events.TypeOrderExpired, "expired")
}

func (s *orderService) closePending(ctx context.Context, id uuid.UUID, eventType, reason string) (*model.Order, error) {
	var order *model.Order
	err := withRetry(ctx, s.logger, func() error {
		var err error
		order, err = s.closePendingOnce(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrdersClosed.WithLabelValues(reason).Inc()
	s.cache.Invalidate(ctx, order.ProductID)
	s.publishOrderEvent(ctx, eventType, order)

	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("order_no", order.OrderNo).
		Str("reason", reason).
		Msg("pending order closed")
	return order, nil
}

func (s *orderService) closePendingOnce(ctx context.Context, id uuid.UUID) (order *model.Order, err error) {
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	order, err = s.orderRepo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	if order.Status != model.OrderPending {
		err = model.ErrInvalidStateTransition
		return nil, err
	}

	now := time.Now().UTC()
	if err = s.orderRepo.UpdateStatus(ctx, tx, id, model.OrderPending, model.OrderCancelled, now); err != nil {
		return nil, err
	}

	if err = s.productRepo.ReleaseStock(ctx, tx, order.ProductID, order.Quantity); err != nil {
		return nil, err
	}

	if order.UserCouponID != nil {
		if err = s.couponRepo.ReleaseUserCoupon(ctx, tx, *order.UserCouponID); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}

	order.Status = model.OrderCancelled
	order.CancelledAt = &now
	return order, nil
}

// Confirm transitions PAID -> CONFIRMED. No resource side effects.
func (s *orderService) Confirm(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return s.transition(ctx, id, model.OrderPaid, model.OrderConfirmed, events.TypeOrderConfirmed)
}

// Complete transitions CONFIRMED -> COMPLETED. No resource side effects.
func (s *orderService) Complete(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	return s.transition(ctx, id, model.OrderConfirmed, model.OrderCompleted, events.TypeOrderCompleted)
}

func (s *orderService) transition(ctx context.Context, id uuid.UUID, from, to model.OrderStatus, eventType string) (*model.Order, error) {
	var order *model.Order
	err := withRetry(ctx, s.logger, func() error {
		var err error
		order, err = s.transitionOnce(ctx, id, from, to)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishOrderEvent(ctx, eventType, order)
	s.logger.Info().
		Str("order_id", order.ID.String()).
		Str("status", string(to)).
		Msg("order transitioned")
	return order, nil
}

func (s *orderService) transitionOnce(ctx context.Context, id uuid.UUID, from, to model.OrderStatus) (order *model.Order, err error) {
	tx, err := s.orderRepo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to transition order: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	order, err = s.orderRepo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	if order.Status != from || !from.CanTransition(to) {
		err = model.ErrInvalidStateTransition
		return nil, err
	}

	now := time.Now().UTC()
	if err = s.orderRepo.UpdateStatus(ctx, tx, id, from, to, now); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order transition: %w", err)
	}

	order.Status = to
	switch to {
	case model.OrderConfirmed:
		order.ConfirmedAt = &now
	case model.OrderCompleted:
		order.CompletedAt = &now
	}
	return order, nil
}

// ListExpiredPending returns ids of PENDING orders past their deadline.
func (s *orderService) ListExpiredPending(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return s.orderRepo.ListExpiredPending(ctx, time.Now().UTC(), limit)
}

func (s *orderService) validateCreateRequest(req *model.CreateOrderRequest) error {
	if req == nil {
		return fmt.Errorf("order request is nil")
	}
	if req.UserID == "" {
		return fmt.Errorf("user ID is required")
	}
	if req.ProductID == uuid.Nil {
		return fmt.Errorf("product ID is required")
	}
	if req.Quantity <= 0 {
		s.logger.Warn().
			Str("product_id", req.ProductID.String()).
			Int("quantity", req.Quantity).
			Msg("invalid quantity")
		return model.ErrInvalidQuantity
	}
	return nil
}

func (s *orderService) publishOrderEvent(ctx context.Context, eventType string, o *model.Order) {
	s.publisher.Publish(ctx, eventType, o.ID.String(), events.OrderPayload{
		OrderID:       o.ID.String(),
		OrderNo:       o.OrderNo,
		UserID:        o.UserID,
		ProductID:     o.ProductID.String(),
		Quantity:      o.Quantity,
		TotalCents:    o.TotalCents,
		DiscountCents: o.DiscountCents,
		Status:        string(o.Status),
	})
}
