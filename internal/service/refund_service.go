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
	"github.com/rs/zerolog"
)

// refundService implements RefundService.
type refundService struct {
	refundRepo  repository.RefundRepository
	orderRepo   repository.OrderRepository
	productRepo repository.ProductRepository
	publisher   events.Publisher
	metrics     *metrics.Metrics
	cache       *cache.ProductCache
	logger      zerolog.Logger
}

// NewRefundService creates a new refund service.
func NewRefundService(
	refundRepo repository.RefundRepository,
	orderRepo repository.OrderRepository,
	productRepo repository.ProductRepository,
	publisher events.Publisher,
	m *metrics.Metrics,
	productCache *cache.ProductCache,
	logger zerolog.Logger,
) RefundService {
	return &refundService{
		refundRepo:  refundRepo,
		orderRepo:   orderRepo,
		productRepo: productRepo,
		publisher:   publisher,
		metrics:     m,
		cache:       productCache,
		logger:      logger.With().Str("service", "refund").Logger(),
	}
}

// Open creates a PENDING refund against a PAID or CONFIRMED order. The order
// row lock plus the open-refund uniqueness constraint guarantee at most one
// live refund per order.
func (s *refundService) Open(ctx context.Context, req *model.OpenRefundRequest) (*model.Refund, error) {
	if err := validateRefundRequest(req); err != nil {
		return nil, err
	}

	var refund *model.Refund
	err := withRetry(ctx, s.logger, func() error {
		var err error
		refund, err = s.openOnce(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RefundsOpened.Inc()
	s.publishRefundEvent(ctx, events.TypeRefundOpened, refund)

	s.logger.Info().
		Str("refund_id", refund.ID.String()).
		Str("refund_no", refund.RefundNo).
		Str("order_id", refund.OrderID.String()).
		Int64("amount_cents", refund.AmountCents).
		Msg("refund opened")
	return refund, nil
}

func (s *refundService) openOnce(ctx context.Context, req *model.OpenRefundRequest) (refund *model.Refund, err error) {
	tx, err := s.refundRepo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open refund: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	order, err := s.orderRepo.GetForUpdate(ctx, tx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, model.ErrOrderNotFound
	}
	if order.Status != model.OrderPaid && order.Status != model.OrderConfirmed {
		return nil, model.ErrOrderNotRefundable
	}
	if req.AmountCents > order.TotalCents {
		return nil, model.ErrAmountExceedsOrder
	}

	open, err := s.refundRepo.HasOpenRefund(ctx, tx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, model.ErrRefundAlreadyOpen
	}

	now := time.Now().UTC()
	refundNo, err := s.refundRepo.NextRefundNo(ctx, tx, now)
	if err != nil {
		return nil, err
	}

	refund = &model.Refund{
		ID:          uuid.New(),
		RefundNo:    refundNo,
		OrderID:     req.OrderID,
		AmountCents: req.AmountCents,
		Reason:      req.Reason,
		Status:      model.RefundPending,
		CreatedAt:   now,
	}
	if err = s.refundRepo.Create(ctx, tx, refund); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit refund: %w", err)
	}
	return refund, nil
}

// GetByID retrieves a refund.
func (s *refundService) GetByID(ctx context.Context, id uuid.UUID) (*model.Refund, error) {
	refund, err := s.refundRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("refund_id", id.String()).Msg("failed to get refund")
		return nil, fmt.Errorf("failed to get refund: %w", err)
	}
	if refund == nil {
		return nil, model.ErrRefundNotFound
	}
	return refund, nil
}

// Decide applies the administrator decision to a PENDING refund.
func (s *refundService) Decide(ctx context.Context, id uuid.UUID, approve bool, note string) (*model.Refund, error) {
	var refund *model.Refund
	err := withRetry(ctx, s.logger, func() error {
		var err error
		refund, err = s.decideOnce(ctx, id, approve, note)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishRefundEvent(ctx, events.TypeRefundDecided, refund)
	s.logger.Info().
		Str("refund_id", refund.ID.String()).
		Str("status", string(refund.Status)).
		Msg("refund decided")
	return refund, nil
}

func (s *refundService) decideOnce(ctx context.Context, id uuid.UUID, approve bool, note string) (refund *model.Refund, err error) {
	tx, err := s.refundRepo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to decide refund: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	refund, err = s.refundRepo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if refund == nil {
		return nil, model.ErrRefundNotFound
	}
	if refund.Status != model.RefundPending {
		return nil, model.ErrRefundNotPending
	}

	to := model.RefundRejected
	if approve {
		to = model.RefundApproved
	}

	now := time.Now().UTC()
	if err = s.refundRepo.UpdateStatus(ctx, tx, id, model.RefundPending, to, note, now); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit refund decision: %w", err)
	}

	refund.Status = to
	refund.AdminNote = note
	return refund, nil
}

// Complete finishes an APPROVED refund. The refund's move to COMPLETED, the
// order's move to REFUNDED and the restock commit together. The status CAS
// makes a crash retry safe: a second attempt finds COMPLETED and returns the
// refund without touching stock again.
func (s *refundService) Complete(ctx context.Context, id uuid.UUID) (*model.Refund, error) {
	var (
		refund    *model.Refund
		productID uuid.UUID
		replayed  bool
	)
	err := withRetry(ctx, s.logger, func() error {
		var err error
		refund, productID, replayed, err = s.completeOnce(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	if replayed {
		s.logger.Info().Str("refund_id", id.String()).Msg("refund already completed")
		return refund, nil
	}

	s.metrics.RefundsCompleted.Inc()
	s.cache.Invalidate(ctx, productID)
	s.publishRefundEvent(ctx, events.TypeRefundCompleted, refund)

	s.logger.Info().
		Str("refund_id", refund.ID.String()).
		Str("refund_no", refund.RefundNo).
		Str("order_id", refund.OrderID.String()).
		Msg("refund completed")
	return refund, nil
}

func (s *refundService) completeOnce(ctx context.Context, id uuid.UUID) (refund *model.Refund, productID uuid.UUID, replayed bool, err error) {
	tx, err := s.refundRepo.BeginTx(ctx)
	if err != nil {
		return nil, uuid.Nil, false, fmt.Errorf("failed to complete refund: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	refund, err = s.refundRepo.GetForUpdate(ctx, tx, id)
	if err != nil {
		return nil, uuid.Nil, false, err
	}
	if refund == nil {
		return nil, uuid.Nil, false, model.ErrRefundNotFound
	}

	if refund.Status == model.RefundCompleted {
		if err = tx.Commit(ctx); err != nil {
			return nil, uuid.Nil, false, fmt.Errorf("failed to commit: %w", err)
		}
		return refund, uuid.Nil, true, nil
	}
	if refund.Status != model.RefundApproved {
		err = model.ErrRefundNotApproved
		return nil, uuid.Nil, false, err
	}

	order, err := s.orderRepo.GetForUpdate(ctx, tx, refund.OrderID)
	if err != nil {
		return nil, uuid.Nil, false, err
	}
	if order == nil {
		return nil, uuid.Nil, false, model.ErrOrderNotFound
	}
	if order.Status != model.OrderPaid && order.Status != model.OrderConfirmed {
		err = model.ErrInvalidStateTransition
		return nil, uuid.Nil, false, err
	}

	now := time.Now().UTC()
	if err = s.refundRepo.UpdateStatus(ctx, tx, id, model.RefundApproved, model.RefundCompleted, "", now); err != nil {
		return nil, uuid.Nil, false, err
	}
	if err = s.orderRepo.UpdateStatus(ctx, tx, order.ID, order.Status, model.OrderRefunded, now); err != nil {
		return nil, uuid.Nil, false, err
	}
	if err = s.productRepo.ReleaseStock(ctx, tx, order.ProductID, order.Quantity); err != nil {
		return nil, uuid.Nil, false, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, uuid.Nil, false, fmt.Errorf("failed to commit refund completion: %w", err)
	}

	refund.Status = model.RefundCompleted
	refund.ProcessedAt = &now

	s.publisher.Publish(ctx, events.TypeOrderRefunded, order.ID.String(), events.OrderPayload{
		OrderID:       order.ID.String(),
		OrderNo:       order.OrderNo,
		UserID:        order.UserID,
		ProductID:     order.ProductID.String(),
		Quantity:      order.Quantity,
		TotalCents:    order.TotalCents,
		DiscountCents: order.DiscountCents,
		Status:        string(model.OrderRefunded),
	})
	return refund, order.ProductID, false, nil
}

func (s *refundService) publishRefundEvent(ctx context.Context, eventType string, r *model.Refund) {
	s.publisher.Publish(ctx, eventType, r.ID.String(), events.RefundPayload{
		RefundID:    r.ID.String(),
		RefundNo:    r.RefundNo,
		OrderID:     r.OrderID.String(),
		AmountCents: r.AmountCents,
		Status:      string(r.Status),
	})
}

func validateRefundRequest(req *model.OpenRefundRequest) error {
	if req == nil {
		return fmt.Errorf("refund request is nil")
	}
	if req.OrderID == uuid.Nil {
		return fmt.Errorf("order ID is required")
	}
	if req.AmountCents <= 0 {
		return model.ErrInvalidRefundAmount
	}
	if req.Reason == "" {
		return fmt.Errorf("refund reason is required")
	}
	return nil
}
