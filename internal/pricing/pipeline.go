package pricing

import (
	"fmt"
	"strconv"
	"strings"

	"storefront-be/internal/loyalty"

	"github.com/shopspring/decimal"
)

// Price runs the pricing pipeline over a cart. It is pure: the same input
// always yields the same breakdown. Business limits (redemption caps,
// coupon eligibility, cashback caps) clamp and are recorded as Adjustments;
// only malformed input returns an error.
func Price(in Input) (Breakdown, error) {
	if err := validateInput(in); err != nil {
		return Breakdown{}, err
	}

	cfg := in.Config
	tier := in.Tier
	if tier == "" {
		tier = loyalty.TierNone
	}

	out := Breakdown{
		Currency:      cfg.Currency,
		Tier:          tier,
		ConfigVersion: cfg.Version,
	}

	// 1. subtotal at member prices
	listTotal := decimal.Zero
	subtotal := decimal.Zero
	for _, line := range in.Lines {
		qty := decimal.NewFromInt(int64(line.Quantity))
		listTotal = listTotal.Add(line.UnitPrice.Mul(qty))
		subtotal = subtotal.Add(memberUnitPrice(line, tier, cfg).Mul(qty))
	}
	out.Subtotal = subtotal
	out.MembershipDiscount = listTotal.Sub(subtotal)

	// 2. coupon
	couponDiscount, adj := applyCoupon(in.CouponCode, in.Coupon, subtotal)
	out.CouponCode = strings.TrimSpace(in.CouponCode)
	out.CouponDiscount = couponDiscount
	out.Adjustments = append(out.Adjustments, adj...)

	// 3-4. loyalty redemption
	afterCoupon := subtotal.Sub(couponDiscount)
	capUnits, capReason := redemptionCap(tier, afterCoupon, in.LoyaltyBalance, cfg)
	units := in.RequestedRedemptionUnits
	if units > capUnits {
		reason := capReason
		if reason == "" {
			reason = ReasonRedemptionClamped
		}
		out.Adjustments = append(out.Adjustments, Adjustment{
			Field:     "loyaltyRedemptionUnits",
			Requested: strconv.FormatInt(units, 10),
			Applied:   strconv.FormatInt(capUnits, 10),
			Reason:    reason,
		})
		units = capUnits
	}
	out.LoyaltyRedemptionUnits = units
	out.LoyaltyRedemptionDiscount = decimal.NewFromInt(units).Mul(cfg.LoyaltyExchangeRate)

	// 5. base
	base := afterCoupon.Sub(out.LoyaltyRedemptionDiscount)
	if base.IsNegative() {
		base = decimal.Zero
	}
	out.BaseAmount = base

	// 6. tax on the fully discounted base
	out.Tax = percentOf(base, cfg.TaxRatePercent)

	// 7. shipping
	if subtotal.GreaterThanOrEqual(cfg.FreeShippingThreshold) {
		out.Shipping = decimal.Zero
	} else {
		out.Shipping = cfg.StandardShippingRate
	}

	// 8. total
	out.Total = base.Add(out.Tax).Add(out.Shipping)

	// 9. cashback
	out.LoyaltyCashbackEarned, adj = cashback(tier, base, cfg)
	out.Adjustments = append(out.Adjustments, adj...)

	return out, nil
}

func validateInput(in Input) error {
	if err := in.Config.Validate(); err != nil {
		return err
	}
	if len(in.Lines) == 0 {
		return ErrEmptyCart
	}
	for _, line := range in.Lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: product %s quantity %d", ErrInvalidQuantity, line.ProductID, line.Quantity)
		}
		if line.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: product %s", ErrInvalidPrice, line.ProductID)
		}
		if line.MemberUnitPrice != nil && line.MemberUnitPrice.IsNegative() {
			return fmt.Errorf("%w: product %s member price", ErrInvalidPrice, line.ProductID)
		}
	}
	if in.RequestedRedemptionUnits < 0 {
		return ErrInvalidRedemption
	}
	if in.Tier != "" && !in.Tier.Valid() {
		return fmt.Errorf("%w: %q", loyalty.ErrInvalidTier, in.Tier)
	}
	return nil
}

// memberUnitPrice never exceeds the list price.
func memberUnitPrice(line Line, tier loyalty.Tier, cfg Config) decimal.Decimal {
	if !tier.IsMember() {
		return line.UnitPrice
	}
	if line.MemberUnitPrice != nil {
		return decimal.Min(*line.MemberUnitPrice, line.UnitPrice)
	}
	pct := cfg.membershipDiscountPercent(tier)
	if pct.IsZero() {
		return line.UnitPrice
	}
	return line.UnitPrice.Sub(percentOf(line.UnitPrice, pct)).Round(2)
}

func applyCoupon(code string, c *Coupon, subtotal decimal.Decimal) (decimal.Decimal, []Adjustment) {
	code = strings.TrimSpace(code)
	if code == "" {
		return decimal.Zero, nil
	}
	reject := func(reason string) (decimal.Decimal, []Adjustment) {
		return decimal.Zero, []Adjustment{{Field: "couponCode", Requested: code, Applied: "0", Reason: reason}}
	}
	if c == nil {
		return reject(ReasonCouponUnknown)
	}
	if !validCoupon(c) {
		return reject(ReasonCouponInvalid)
	}
	if c.MinOrderValue.IsPositive() && subtotal.LessThan(c.MinOrderValue) {
		return reject(ReasonCouponBelowMinimum)
	}

	var discount decimal.Decimal
	switch c.Kind {
	case CouponFlat:
		discount = c.Value
	case CouponPercent:
		discount = percentOf(subtotal, c.Value)
	}
	if c.MaxDiscount.IsPositive() {
		discount = decimal.Min(discount, c.MaxDiscount)
	}
	if discount.GreaterThan(subtotal) {
		return subtotal, []Adjustment{{
			Field:     "couponDiscount",
			Requested: discount.String(),
			Applied:   subtotal.String(),
			Reason:    ReasonCouponClamped,
		}}
	}
	return discount, nil
}

func validCoupon(c *Coupon) bool {
	if !c.Value.IsPositive() || c.MinOrderValue.IsNegative() || c.MaxDiscount.IsNegative() {
		return false
	}
	switch c.Kind {
	case CouponFlat:
		return true
	case CouponPercent:
		return c.Value.LessThanOrEqual(hundred)
	}
	return false
}

// redemptionCap is the most units the customer may redeem on this cart,
// with the reason when it is zero for an eligibility rule.
func redemptionCap(tier loyalty.Tier, afterCoupon decimal.Decimal, balance int64, cfg Config) (int64, string) {
	if !tier.IsMember() {
		return 0, ReasonRedemptionNotMember
	}
	if balance <= 0 || balance < cfg.MinRedemptionUnits {
		return 0, ReasonRedemptionMinimum
	}
	maxValue := percentOf(afterCoupon, cfg.maxRedemptionPercent(tier))
	maxUnits := maxValue.Div(cfg.LoyaltyExchangeRate).Floor().IntPart()
	if maxUnits < 0 {
		maxUnits = 0
	}
	if balance < maxUnits {
		return balance, ""
	}
	return maxUnits, ""
}

func cashback(tier loyalty.Tier, base decimal.Decimal, cfg Config) (int64, []Adjustment) {
	if !tier.IsMember() {
		return 0, nil
	}
	units := percentOf(base, cfg.earnRatePercent(tier)).Round(0).IntPart()
	if cfg.CashbackCapEnabled {
		limit := cfg.CashbackCapAmount.Floor().IntPart()
		if units > limit {
			return limit, []Adjustment{{
				Field:     "loyaltyCashbackEarned",
				Requested: strconv.FormatInt(units, 10),
				Applied:   strconv.FormatInt(limit, 10),
				Reason:    ReasonCashbackCapped,
			}}
		}
	}
	return units, nil
}
