package pricing

import (
	"fmt"
	"maps"
	"time"

	"storefront-be/internal/loyalty"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Config is one immutable version of the merchant pricing parameters. All
// percentages are expressed on a 0-100 scale.
type Config struct {
	Version  int64  `json:"version"`
	Currency string `json:"currency"`

	TaxRatePercent decimal.Decimal `json:"taxRatePercent"`

	// LoyaltyExchangeRate is the currency value of one loyalty unit.
	LoyaltyExchangeRate        decimal.Decimal                  `json:"loyaltyExchangeRate"`
	MinRedemptionUnits         int64                            `json:"minRedemptionUnits"`
	MaxRedemptionPercentByTier map[loyalty.Tier]decimal.Decimal `json:"maxRedemptionPercentByTier"`
	EarnRatePercentByTier      map[loyalty.Tier]decimal.Decimal `json:"earnRatePercentByTier"`

	// MembershipDiscountPercentByTier applies when the catalog has no
	// explicit member price for a product.
	MembershipDiscountPercentByTier map[loyalty.Tier]decimal.Decimal `json:"membershipDiscountPercentByTier"`

	CashbackCapEnabled bool            `json:"cashbackCapEnabled"`
	CashbackCapAmount  decimal.Decimal `json:"cashbackCapAmount"`

	FreeShippingThreshold decimal.Decimal `json:"freeShippingThreshold"`
	StandardShippingRate  decimal.Decimal `json:"standardShippingRate"`

	CreatedAt time.Time `json:"createdAt"`
}

// DefaultConfig returns the parameters a fresh shop is seeded with.
func DefaultConfig() Config {
	return Config{
		Currency:            "INR",
		TaxRatePercent:      decimal.NewFromInt(18),
		LoyaltyExchangeRate: decimal.RequireFromString("0.05"),
		MinRedemptionUnits:  100,
		MaxRedemptionPercentByTier: map[loyalty.Tier]decimal.Decimal{
			loyalty.Tier1: decimal.NewFromInt(5),
			loyalty.Tier2: decimal.NewFromInt(10),
			loyalty.Tier3: decimal.NewFromInt(15),
		},
		EarnRatePercentByTier: map[loyalty.Tier]decimal.Decimal{
			loyalty.Tier1: decimal.NewFromInt(5),
			loyalty.Tier2: decimal.NewFromInt(7),
			loyalty.Tier3: decimal.NewFromInt(10),
		},
		MembershipDiscountPercentByTier: map[loyalty.Tier]decimal.Decimal{},
		CashbackCapEnabled:              true,
		CashbackCapAmount:               decimal.NewFromInt(1500),
		FreeShippingThreshold:           decimal.NewFromInt(500),
		StandardShippingRate:            decimal.NewFromInt(50),
	}
}

func (c Config) Validate() error {
	if err := checkPercent("taxRatePercent", c.TaxRatePercent); err != nil {
		return err
	}
	if !c.LoyaltyExchangeRate.IsPositive() {
		return fmt.Errorf("%w: loyaltyExchangeRate must be positive", ErrInvalidConfig)
	}
	if c.MinRedemptionUnits < 0 {
		return fmt.Errorf("%w: minRedemptionUnits must not be negative", ErrInvalidConfig)
	}
	tables := map[string]map[loyalty.Tier]decimal.Decimal{
		"maxRedemptionPercentByTier":      c.MaxRedemptionPercentByTier,
		"earnRatePercentByTier":           c.EarnRatePercentByTier,
		"membershipDiscountPercentByTier": c.MembershipDiscountPercentByTier,
	}
	for name, table := range tables {
		for tier, pct := range table {
			if !tier.IsMember() {
				return fmt.Errorf("%w: %s has entry for non-member tier %q", ErrInvalidConfig, name, tier)
			}
			if err := checkPercent(name+"["+string(tier)+"]", pct); err != nil {
				return err
			}
		}
	}
	amounts := map[string]decimal.Decimal{
		"cashbackCapAmount":     c.CashbackCapAmount,
		"freeShippingThreshold": c.FreeShippingThreshold,
		"standardShippingRate":  c.StandardShippingRate,
	}
	for name, amount := range amounts {
		if amount.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, name)
		}
	}
	return nil
}

// Clone returns a copy that shares no maps with c.
func (c Config) Clone() Config {
	out := c
	out.MaxRedemptionPercentByTier = cloneTable(c.MaxRedemptionPercentByTier)
	out.EarnRatePercentByTier = cloneTable(c.EarnRatePercentByTier)
	out.MembershipDiscountPercentByTier = cloneTable(c.MembershipDiscountPercentByTier)
	return out
}

func (c Config) maxRedemptionPercent(t loyalty.Tier) decimal.Decimal {
	return c.MaxRedemptionPercentByTier[t]
}

func (c Config) earnRatePercent(t loyalty.Tier) decimal.Decimal {
	return c.EarnRatePercentByTier[t]
}

func (c Config) membershipDiscountPercent(t loyalty.Tier) decimal.Decimal {
	return c.MembershipDiscountPercentByTier[t]
}

func checkPercent(name string, pct decimal.Decimal) error {
	if pct.IsNegative() || pct.GreaterThan(hundred) {
		return fmt.Errorf("%w: %s must be between 0 and 100", ErrInvalidConfig, name)
	}
	return nil
}

func cloneTable(in map[loyalty.Tier]decimal.Decimal) map[loyalty.Tier]decimal.Decimal {
	if in == nil {
		return map[loyalty.Tier]decimal.Decimal{}
	}
	return maps.Clone(in)
}

func percentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}
