package model

import (
	"time"

	"github.com/google/uuid"
)

// DiscountType distinguishes percentage coupons from fixed-amount coupons.
type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

// UserCouponStatus tracks the redemption state of a claimed coupon.
type UserCouponStatus string

const (
	UserCouponAvailable UserCouponStatus = "AVAILABLE"
	UserCouponUsed      UserCouponStatus = "USED"
	UserCouponExpired   UserCouponStatus = "EXPIRED"
)

// Coupon is a limited-quantity discount definition. ClaimedQuantity is
// monotonic: claiming consumes allocation permanently, even if the claimed
// instance is never redeemed.
type Coupon struct {
	ID                uuid.UUID    `json:"id" db:"id"`
	Code              string       `json:"code" db:"code"`
	Title             string       `json:"title" db:"title"`
	DiscountType      DiscountType `json:"discountType" db:"discount_type"`
	Value             int64        `json:"value" db:"value"`
	MinAmountCents    int64        `json:"minAmountCents" db:"min_amount_cents"`
	MaxDiscountCents  int64        `json:"maxDiscountCents" db:"max_discount_cents"`
	TotalQuantity     int          `json:"totalQuantity" db:"total_quantity"`
	ClaimedQuantity   int          `json:"claimedQuantity" db:"claimed_quantity"`
	LimitPerUser      int          `json:"limitPerUser" db:"limit_per_user"`
	ValidFrom         time.Time    `json:"validFrom" db:"valid_from"`
	ValidUntil        time.Time    `json:"validUntil" db:"valid_until"`
	IsEnabled         bool         `json:"isEnabled" db:"is_enabled"`
	CreatedAt         time.Time    `json:"createdAt" db:"created_at"`
}

// Active reports whether the coupon can be claimed at the given instant.
func (c *Coupon) Active(now time.Time) bool {
	return c.IsEnabled && !now.Before(c.ValidFrom) && !now.After(c.ValidUntil)
}

// Discount computes the discount for an order amount in minor units.
// Percentage discounts are capped at MaxDiscountCents (when set), fixed
// discounts at the order amount. Fails when the order is below MinAmountCents.
func (c *Coupon) Discount(orderAmountCents int64) (int64, error) {
	if orderAmountCents < c.MinAmountCents {
		return 0, ErrCouponNotApplicable
	}

	var discount int64
	switch c.DiscountType {
	case DiscountPercentage:
		discount = orderAmountCents * c.Value / 100
		if c.MaxDiscountCents > 0 && discount > c.MaxDiscountCents {
			discount = c.MaxDiscountCents
		}
	case DiscountFixed:
		discount = c.Value
	default:
		return 0, ErrCouponNotApplicable
	}

	if discount > orderAmountCents {
		discount = orderAmountCents
	}
	if discount < 0 {
		return 0, ErrCouponNotApplicable
	}
	return discount, nil
}

// UserCoupon is one claimed unit of a coupon, redeemable by its owner.
type UserCoupon struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	UserID    string           `json:"userId" db:"user_id"`
	CouponID  uuid.UUID        `json:"couponId" db:"coupon_id"`
	Status    UserCouponStatus `json:"status" db:"status"`
	ExpiresAt time.Time        `json:"expiresAt" db:"expires_at"`
	ClaimedAt time.Time        `json:"claimedAt" db:"claimed_at"`
	UsedAt    *time.Time       `json:"usedAt,omitempty" db:"used_at"`
}

// CreateCouponRequest is the payload for creating a coupon definition.
type CreateCouponRequest struct {
	Code             string       `json:"code"`
	Title            string       `json:"title"`
	DiscountType     DiscountType `json:"discountType"`
	Value            int64        `json:"value"`
	MinAmountCents   int64        `json:"minAmountCents"`
	MaxDiscountCents int64        `json:"maxDiscountCents"`
	TotalQuantity    int          `json:"totalQuantity"`
	LimitPerUser     int          `json:"limitPerUser"`
	ValidFrom        time.Time    `json:"validFrom"`
	ValidUntil       time.Time    `json:"validUntil"`
	IsEnabled        bool         `json:"isEnabled"`
}

// ClaimCouponRequest is the payload for claiming one unit of a coupon.
type ClaimCouponRequest struct {
	UserID string `json:"userId"`
}
