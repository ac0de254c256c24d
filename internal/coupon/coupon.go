package coupon

import (
	"context"
	"fmt"
	"time"

	"kidsbook/internal/model"

	"github.com/google/uuid"
)

// Definition is one coupon definition line from a campaign import file.
// Monetary fields are minor units; Value is a percentage for PERCENTAGE
// coupons and minor units for FIXED coupons.
type Definition struct {
	Code             string    `json:"code"`
	Title            string    `json:"title"`
	DiscountType     string    `json:"discountType"`
	Value            int64     `json:"value"`
	MinAmountCents   int64     `json:"minAmountCents"`
	MaxDiscountCents int64     `json:"maxDiscountCents"`
	TotalQuantity    int       `json:"totalQuantity"`
	LimitPerUser     int       `json:"limitPerUser"`
	ValidFrom        time.Time `json:"validFrom"`
	ValidUntil       time.Time `json:"validUntil"`
	Enabled          bool      `json:"enabled"`
}

// Validate checks the definition is importable.
func (d *Definition) Validate() error {
	if d.Code == "" {
		return fmt.Errorf("coupon code is required")
	}
	switch model.DiscountType(d.DiscountType) {
	case model.DiscountPercentage:
		if d.Value <= 0 || d.Value > 100 {
			return fmt.Errorf("percentage value out of range: %d", d.Value)
		}
	case model.DiscountFixed:
		if d.Value <= 0 {
			return fmt.Errorf("fixed discount must be positive: %d", d.Value)
		}
	default:
		return fmt.Errorf("unsupported discount type: %q", d.DiscountType)
	}
	if d.TotalQuantity < 1 {
		return fmt.Errorf("total quantity must be at least 1")
	}
	if d.LimitPerUser < 1 {
		return fmt.Errorf("per-user limit must be at least 1")
	}
	if !d.ValidUntil.After(d.ValidFrom) {
		return fmt.Errorf("validity window is empty")
	}
	return nil
}

// ToModel converts the definition to a coupon row. The id is fresh; upserts
// by code preserve the existing row's id and claimed count.
func (d *Definition) ToModel(now time.Time) *model.Coupon {
	return &model.Coupon{
		ID:               uuid.New(),
		Code:             d.Code,
		Title:            d.Title,
		DiscountType:     model.DiscountType(d.DiscountType),
		Value:            d.Value,
		MinAmountCents:   d.MinAmountCents,
		MaxDiscountCents: d.MaxDiscountCents,
		TotalQuantity:    d.TotalQuantity,
		LimitPerUser:     d.LimitPerUser,
		ValidFrom:        d.ValidFrom,
		ValidUntil:       d.ValidUntil,
		IsEnabled:        d.Enabled,
		CreatedAt:        now,
	}
}

// Loader reads a gzipped JSON-lines campaign file into definitions.
type Loader interface {
	Load(ctx context.Context, path string) ([]Definition, error)
}
