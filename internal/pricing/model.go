package pricing

import (
	"storefront-be/internal/loyalty"

	"github.com/shopspring/decimal"
)

// CartLine is one product in a cart at its list price.
type CartLine struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name,omitempty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
}

// Line is a cart line enriched with the catalog's member price, if any.
type Line struct {
	CartLine
	MemberUnitPrice *decimal.Decimal `json:"memberUnitPrice,omitempty"`
}

type CouponKind string

const (
	CouponFlat    CouponKind = "flat"
	CouponPercent CouponKind = "percent"
)

// Coupon is a resolved discount rule. A zero MaxDiscount or MinOrderValue
// means no limit.
type Coupon struct {
	Code          string          `json:"code"`
	Kind          CouponKind      `json:"kind"`
	Value         decimal.Decimal `json:"value"`
	MinOrderValue decimal.Decimal `json:"minOrderValue"`
	MaxDiscount   decimal.Decimal `json:"maxDiscount"`
}

type Input struct {
	Lines []Line
	Tier  loyalty.Tier

	// CouponCode is what the customer typed; Coupon is the rule it
	// resolved to, nil when unknown.
	CouponCode string
	Coupon     *Coupon

	RequestedRedemptionUnits int64
	LoyaltyBalance           int64
	Config                   Config
}

// Adjustment records a request the pipeline clamped instead of rejecting.
type Adjustment struct {
	Field     string `json:"field"`
	Requested string `json:"requested,omitempty"`
	Applied   string `json:"applied,omitempty"`
	Reason    string `json:"reason"`
}

const (
	ReasonCouponUnknown       = "coupon_unknown"
	ReasonCouponUnavailable   = "coupon_unavailable"
	ReasonCouponInvalid       = "coupon_invalid"
	ReasonCouponBelowMinimum  = "coupon_below_minimum"
	ReasonCouponClamped       = "coupon_clamped_to_subtotal"
	ReasonRedemptionClamped   = "redemption_clamped_to_cap"
	ReasonRedemptionNotMember = "redemption_requires_membership"
	ReasonRedemptionMinimum   = "redemption_below_minimum_balance"
	ReasonCashbackCapped      = "cashback_capped"
)

// Breakdown is the itemised result of pricing a cart. It is the snapshot an
// order keeps so settlement and refunds never re-price.
type Breakdown struct {
	Currency string `json:"currency"`

	Subtotal           decimal.Decimal `json:"subtotal"`
	MembershipDiscount decimal.Decimal `json:"membershipDiscount"`

	CouponCode     string          `json:"couponCode,omitempty"`
	CouponDiscount decimal.Decimal `json:"couponDiscount"`

	LoyaltyRedemptionUnits    int64           `json:"loyaltyRedemptionUnits"`
	LoyaltyRedemptionDiscount decimal.Decimal `json:"loyaltyRedemptionDiscount"`

	BaseAmount decimal.Decimal `json:"baseAmount"`
	Tax        decimal.Decimal `json:"tax"`
	Shipping   decimal.Decimal `json:"shipping"`
	Total      decimal.Decimal `json:"total"`

	LoyaltyCashbackEarned int64 `json:"loyaltyCashbackEarned"`

	Tier          loyalty.Tier `json:"tier"`
	ConfigVersion int64        `json:"configVersion"`
	Adjustments   []Adjustment `json:"adjustments,omitempty"`
}

// Rounded returns the breakdown with every money field at 2 decimals for
// presentation.
func (b Breakdown) Rounded() Breakdown {
	out := b
	for _, f := range []*decimal.Decimal{
		&out.Subtotal, &out.MembershipDiscount, &out.CouponDiscount,
		&out.LoyaltyRedemptionDiscount, &out.BaseAmount, &out.Tax,
		&out.Shipping, &out.Total,
	} {
		*f = f.Round(2)
	}
	return out
}

// Quote is a priced cart: the lines as charged plus their breakdown.
type Quote struct {
	Lines     []Line    `json:"lines"`
	Breakdown Breakdown `json:"breakdown"`
}

func (q Quote) Rounded() Quote {
	q.Breakdown = q.Breakdown.Rounded()
	return q
}
