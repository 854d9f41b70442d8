package coupon

import (
	"fmt"
	"strings"
	"time"

	"storefront-be/internal/pricing"

	"github.com/shopspring/decimal"
)

type Coupon struct {
	Code          string             `json:"code"`
	Kind          pricing.CouponKind `json:"kind"`
	Value         decimal.Decimal    `json:"value"`
	MinOrderValue decimal.Decimal    `json:"minOrderValue"`
	MaxDiscount   decimal.Decimal    `json:"maxDiscount"`
	Active        bool               `json:"active"`
	StartsAt      *time.Time         `json:"startsAt,omitempty"`
	EndsAt        *time.Time         `json:"endsAt,omitempty"`
}

func (c Coupon) Validate() error {
	switch {
	case strings.TrimSpace(c.Code) == "":
		return fmt.Errorf("%w: code is required", ErrInvalidCoupon)
	case c.Kind != pricing.CouponFlat && c.Kind != pricing.CouponPercent:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidCoupon, c.Kind)
	case !c.Value.IsPositive():
		return fmt.Errorf("%w: value must be positive", ErrInvalidCoupon)
	case c.Kind == pricing.CouponPercent && c.Value.GreaterThan(decimal.NewFromInt(100)):
		return fmt.Errorf("%w: percent value above 100", ErrInvalidCoupon)
	case c.MinOrderValue.IsNegative() || c.MaxDiscount.IsNegative():
		return fmt.Errorf("%w: amounts must not be negative", ErrInvalidCoupon)
	case c.StartsAt != nil && c.EndsAt != nil && !c.EndsAt.After(*c.StartsAt):
		return fmt.Errorf("%w: window ends before it starts", ErrInvalidCoupon)
	}
	return nil
}

// Live reports whether the coupon can be applied at t.
func (c Coupon) Live(t time.Time) bool {
	if !c.Active {
		return false
	}
	if c.StartsAt != nil && t.Before(*c.StartsAt) {
		return false
	}
	if c.EndsAt != nil && !t.Before(*c.EndsAt) {
		return false
	}
	return true
}

func (c Coupon) Rule() *pricing.Coupon {
	return &pricing.Coupon{
		Code:          c.Code,
		Kind:          c.Kind,
		Value:         c.Value,
		MinOrderValue: c.MinOrderValue,
		MaxDiscount:   c.MaxDiscount,
	}
}
