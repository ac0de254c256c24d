package service

import (
	"context"
	"fmt"
	"time"

	"kidsbook/internal/events"
	"kidsbook/internal/metrics"
	"kidsbook/internal/model"
	"kidsbook/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// couponService implements CouponService.
type couponService struct {
	couponRepo repository.CouponRepository
	publisher  events.Publisher
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

// NewCouponService creates a new coupon service.
func NewCouponService(
	couponRepo repository.CouponRepository,
	publisher events.Publisher,
	m *metrics.Metrics,
	logger zerolog.Logger,
) CouponService {
	return &couponService{
		couponRepo: couponRepo,
		publisher:  publisher,
		metrics:    m,
		logger:     logger.With().Str("service", "coupon").Logger(),
	}
}

// Create inserts a new coupon definition.
func (s *couponService) Create(ctx context.Context, req *model.CreateCouponRequest) (*model.Coupon, error) {
	if err := validateCouponRequest(req); err != nil {
		return nil, err
	}

	c := &model.Coupon{
		ID:               uuid.New(),
		Code:             req.Code,
		Title:            req.Title,
		DiscountType:     req.DiscountType,
		Value:            req.Value,
		MinAmountCents:   req.MinAmountCents,
		MaxDiscountCents: req.MaxDiscountCents,
		TotalQuantity:    req.TotalQuantity,
		ClaimedQuantity:  0,
		LimitPerUser:     req.LimitPerUser,
		ValidFrom:        req.ValidFrom,
		ValidUntil:       req.ValidUntil,
		IsEnabled:        req.IsEnabled,
		CreatedAt:        time.Now().UTC(),
	}

	if err := s.couponRepo.Create(ctx, c); err != nil {
		s.logger.Error().Err(err).Str("code", req.Code).Msg("failed to create coupon")
		return nil, fmt.Errorf("failed to create coupon: %w", err)
	}

	s.logger.Info().Str("coupon_id", c.ID.String()).Str("code", c.Code).Msg("coupon created")
	return c, nil
}

// Claim atomically acquires one unit of the coupon for the user. The coupon
// row lock serialises concurrent claims: with K units remaining and N
// concurrent claimants, exactly min(N, K) succeed.
func (s *couponService) Claim(ctx context.Context, couponID uuid.UUID, userID string) (*model.UserCoupon, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	var claimed *model.UserCoupon
	err := withRetry(ctx, s.logger, func() error {
		var err error
		claimed, err = s.claimOnce(ctx, couponID, userID)
		return err
	})
	if err != nil {
		s.recordClaim(err)
		return nil, err
	}

	s.recordClaim(nil)
	s.publisher.Publish(ctx, events.TypeCouponClaimed, claimed.ID.String(), events.CouponClaimedPayload{
		CouponID:     couponID.String(),
		UserCouponID: claimed.ID.String(),
		UserID:       userID,
	})

	s.logger.Info().
		Str("coupon_id", couponID.String()).
		Str("user_coupon_id", claimed.ID.String()).
		Str("user_id", userID).
		Msg("coupon claimed")
	return claimed, nil
}

func (s *couponService) claimOnce(ctx context.Context, couponID uuid.UUID, userID string) (uc *model.UserCoupon, err error) {
	tx, err := s.couponRepo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to claim coupon: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("failed to rollback transaction")
			}
		}
	}()

	coupon, err := s.couponRepo.GetForUpdate(ctx, tx, couponID)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, model.ErrCouponNotFound
	}

	now := time.Now().UTC()
	if !coupon.Active(now) {
		return nil, model.ErrCouponNotActive
	}
	if coupon.ClaimedQuantity >= coupon.TotalQuantity {
		return nil, model.ErrCouponExhausted
	}

	claims, err := s.couponRepo.CountUserClaims(ctx, tx, couponID, userID)
	if err != nil {
		return nil, err
	}
	if claims >= coupon.LimitPerUser {
		return nil, model.ErrPerUserLimitExceeded
	}

	if err = s.couponRepo.IncrementClaimed(ctx, tx, couponID); err != nil {
		return nil, err
	}

	uc = &model.UserCoupon{
		ID:        uuid.New(),
		UserID:    userID,
		CouponID:  couponID,
		Status:    model.UserCouponAvailable,
		ExpiresAt: coupon.ValidUntil,
		ClaimedAt: now,
	}
	if err = s.couponRepo.InsertUserCoupon(ctx, tx, uc); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit coupon claim: %w", err)
	}
	return uc, nil
}

// ListForUser returns the user's claimed coupons.
func (s *couponService) ListForUser(ctx context.Context, userID string) ([]model.UserCoupon, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	coupons, err := s.couponRepo.ListForUser(ctx, userID)
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("failed to list user coupons")
		return nil, fmt.Errorf("failed to list user coupons: %w", err)
	}

	return coupons, nil
}

func (s *couponService) recordClaim(err error) {
	result := "claimed"
	switch err {
	case nil:
	case model.ErrCouponExhausted:
		result = "exhausted"
	case model.ErrPerUserLimitExceeded:
		result = "limit_exceeded"
	case model.ErrCouponNotActive:
		result = "not_active"
	default:
		return
	}
	s.metrics.CouponClaims.WithLabelValues(result).Inc()
}

func validateCouponRequest(req *model.CreateCouponRequest) error {
	if req == nil {
		return fmt.Errorf("coupon request is nil")
	}
	if req.Code == "" {
		return fmt.Errorf("coupon code is required")
	}
	if req.DiscountType != model.DiscountPercentage && req.DiscountType != model.DiscountFixed {
		return fmt.Errorf("unsupported discount type: %s", req.DiscountType)
	}
	if req.Value <= 0 {
		return fmt.Errorf("coupon value must be positive")
	}
	if req.DiscountType == model.DiscountPercentage && req.Value > 100 {
		return fmt.Errorf("percentage discount cannot exceed 100")
	}
	if req.TotalQuantity < 1 {
		return fmt.Errorf("coupon total quantity must be at least 1")
	}
	if req.LimitPerUser < 1 {
		return fmt.Errorf("coupon per-user limit must be at least 1")
	}
	if !req.ValidUntil.After(req.ValidFrom) {
		return fmt.Errorf("coupon validity window is empty")
	}
	return nil
}
