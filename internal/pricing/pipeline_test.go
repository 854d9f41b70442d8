package pricing

import (
	"testing"

	"storefront-be/internal/loyalty"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func line(id, price string, qty int) Line {
	return Line{CartLine: CartLine{ProductID: id, UnitPrice: dec(price), Quantity: qty}}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Version = 3
	return cfg
}

func findAdjustment(b Breakdown, reason string) *Adjustment {
	for i := range b.Adjustments {
		if b.Adjustments[i].Reason == reason {
			return &b.Adjustments[i]
		}
	}
	return nil
}

func TestPrice_Tier2Redemption(t *testing.T) {
	b, err := Price(Input{
		Lines:                    []Line{line("p-1", "1000", 1)},
		Tier:                     loyalty.Tier2,
		RequestedRedemptionUnits: 50000,
		LoyaltyBalance:           10000,
		Config:                   testConfig(),
	})
	require.NoError(t, err)

	assert.Equal(t, "1000.00", b.Subtotal.StringFixed(2))
	assert.Equal(t, int64(2000), b.LoyaltyRedemptionUnits)
	assert.Equal(t, "100.00", b.LoyaltyRedemptionDiscount.StringFixed(2))
	assert.Equal(t, "900.00", b.BaseAmount.StringFixed(2))
	assert.Equal(t, "162.00", b.Tax.StringFixed(2))
	assert.Equal(t, "0.00", b.Shipping.StringFixed(2))
	assert.Equal(t, "1062.00", b.Total.StringFixed(2))
	assert.Equal(t, int64(63), b.LoyaltyCashbackEarned)
	assert.Equal(t, int64(3), b.ConfigVersion)
	assert.Equal(t, loyalty.Tier2, b.Tier)

	adj := findAdjustment(b, ReasonRedemptionClamped)
	require.NotNil(t, adj)
	assert.Equal(t, "50000", adj.Requested)
	assert.Equal(t, "2000", adj.Applied)
}

func TestPrice_TaxAfterAllDiscounts(t *testing.T) {
	b, err := Price(Input{
		Lines:      []Line{line("p-1", "1000", 1)},
		Tier:       loyalty.TierNone,
		CouponCode: "FLAT100",
		Coupon:     &Coupon{Code: "FLAT100", Kind: CouponFlat, Value: dec("100")},
		Config:     testConfig(),
	})
	require.NoError(t, err)

	assert.Equal(t, "100.00", b.CouponDiscount.StringFixed(2))
	assert.Equal(t, "900.00", b.BaseAmount.StringFixed(2))
	assert.Equal(t, "162.00", b.Tax.StringFixed(2))
	assert.Equal(t, "1062.00", b.Total.StringFixed(2))
	assert.Equal(t, int64(0), b.LoyaltyCashbackEarned)
	assert.Equal(t, "FLAT100", b.CouponCode)
}

func TestPrice_Redemption(t *testing.T) {
	t.Run("NonMemberRedeemsNothing", func(t *testing.T) {
		b, err := Price(Input{
			Lines:                    []Line{line("p-1", "1000", 1)},
			Tier:                     loyalty.TierNone,
			RequestedRedemptionUnits: 500,
			LoyaltyBalance:           5000,
			Config:                   testConfig(),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(0), b.LoyaltyRedemptionUnits)
		assert.True(t, b.LoyaltyRedemptionDiscount.IsZero())
		assert.NotNil(t, findAdjustment(b, ReasonRedemptionNotMember))
	})

	t.Run("BelowMinimumBalance", func(t *testing.T) {
		b, err := Price(Input{
			Lines:                    []Line{line("p-1", "1000", 1)},
			Tier:                     loyalty.Tier1,
			RequestedRedemptionUnits: 50,
			LoyaltyBalance:           50,
			Config:                   testConfig(),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(0), b.LoyaltyRedemptionUnits)
		assert.NotNil(t, findAdjustment(b, ReasonRedemptionMinimum))
	})

	t.Run("CappedByBalance", func(t *testing.T) {
		b, err := Price(Input{
			Lines:                    []Line{line("p-1", "1000", 1)},
			Tier:                     loyalty.Tier3,
			RequestedRedemptionUnits: 200,
			LoyaltyBalance:           150,
			Config:                   testConfig(),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(150), b.LoyaltyRedemptionUnits)
		assert.Equal(t, "7.50", b.LoyaltyRedemptionDiscount.StringFixed(2))
		assert.Equal(t, "992.50", b.BaseAmount.StringFixed(2))
		assert.Equal(t, "178.65", b.Tax.StringFixed(2))
		assert.Equal(t, "1171.15", b.Total.StringFixed(2))
		assert.Equal(t, int64(99), b.LoyaltyCashbackEarned)
	})

	t.Run("WithinCapIsUntouched", func(t *testing.T) {
		b, err := Price(Input{
			Lines:                    []Line{line("p-1", "1000", 1)},
			Tier:                     loyalty.Tier2,
			RequestedRedemptionUnits: 400,
			LoyaltyBalance:           10000,
			Config:                   testConfig(),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(400), b.LoyaltyRedemptionUnits)
		assert.Equal(t, "20.00", b.LoyaltyRedemptionDiscount.StringFixed(2))
		assert.Empty(t, b.Adjustments)
	})

	t.Run("CapUsesPostCouponAmount", func(t *testing.T) {
		b, err := Price(Input{
			Lines:                    []Line{line("p-1", "1000", 1)},
			Tier:                     loyalty.Tier2,
			CouponCode:               "HALF",
			Coupon:                   &Coupon{Code: "HALF", Kind: CouponPercent, Value: dec("50")},
			RequestedRedemptionUnits: 50000,
			LoyaltyBalance:           10000,
			Config:                   testConfig(),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1000), b.LoyaltyRedemptionUnits)
		assert.Equal(t, "50.00", b.LoyaltyRedemptionDiscount.StringFixed(2))
		assert.Equal(t, "450.00", b.BaseAmount.StringFixed(2))
	})
}

func TestPrice_Coupon(t *testing.T) {
	cases := []struct {
		name         string
		coupon       *Coupon
		wantDiscount string
		wantReason   string
	}{
		{
			name:         "PercentWithMaxDiscount",
			coupon:       &Coupon{Code: "C", Kind: CouponPercent, Value: dec("20"), MaxDiscount: dec("150")},
			wantDiscount: "150.00",
		},
		{
			name:         "BelowMinimumOrder",
			coupon:       &Coupon{Code: "C", Kind: CouponFlat, Value: dec("100"), MinOrderValue: dec("2000")},
			wantDiscount: "0.00",
			wantReason:   ReasonCouponBelowMinimum,
		},
		{
			name:         "ClampedToSubtotal",
			coupon:       &Coupon{Code: "C", Kind: CouponFlat, Value: dec("1500")},
			wantDiscount: "1000.00",
			wantReason:   ReasonCouponClamped,
		},
		{
			name:         "Unknown",
			coupon:       nil,
			wantDiscount: "0.00",
			wantReason:   ReasonCouponUnknown,
		},
		{
			name:         "MalformedPercent",
			coupon:       &Coupon{Code: "C", Kind: CouponPercent, Value: dec("150")},
			wantDiscount: "0.00",
			wantReason:   ReasonCouponInvalid,
		},
		{
			name:         "UnknownKind",
			coupon:       &Coupon{Code: "C", Kind: "bogo", Value: dec("10")},
			wantDiscount: "0.00",
			wantReason:   ReasonCouponInvalid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := Price(Input{
				Lines:      []Line{line("p-1", "1000", 1)},
				CouponCode: "C",
				Coupon:     tc.coupon,
				Config:     testConfig(),
			})
			require.NoError(t, err)
			assert.Equal(t, tc.wantDiscount, b.CouponDiscount.StringFixed(2))
			if tc.wantReason != "" {
				assert.NotNil(t, findAdjustment(b, tc.wantReason))
			}
			assert.False(t, b.BaseAmount.IsNegative())
			assert.False(t, b.Total.IsNegative())
		})
	}

	t.Run("NoCodeNoAdjustment", func(t *testing.T) {
		b, err := Price(Input{Lines: []Line{line("p-1", "1000", 1)}, Config: testConfig()})
		require.NoError(t, err)
		assert.True(t, b.CouponDiscount.IsZero())
		assert.Empty(t, b.Adjustments)
	})
}

func TestPrice_Shipping(t *testing.T) {
	b, err := Price(Input{Lines: []Line{line("p-1", "200", 1)}, Config: testConfig()})
	require.NoError(t, err)
	assert.Equal(t, "50.00", b.Shipping.StringFixed(2))
	assert.Equal(t, "286.00", b.Total.StringFixed(2))

	b, err = Price(Input{Lines: []Line{line("p-1", "250", 2)}, Config: testConfig()})
	require.NoError(t, err)
	assert.True(t, b.Shipping.IsZero())
}

func TestPrice_MemberPricing(t *testing.T) {
	t.Run("PercentFromConfig", func(t *testing.T) {
		cfg := testConfig()
		cfg.MembershipDiscountPercentByTier[loyalty.Tier2] = dec("10")

		b, err := Price(Input{Lines: []Line{line("p-1", "99.99", 3)}, Tier: loyalty.Tier2, Config: cfg})
		require.NoError(t, err)
		assert.Equal(t, "269.97", b.Subtotal.StringFixed(2))
		assert.Equal(t, "30.00", b.MembershipDiscount.StringFixed(2))
	})

	t.Run("CatalogMemberPrice", func(t *testing.T) {
		l := line("p-1", "100", 2)
		l.MemberUnitPrice = decPtr("80")

		b, err := Price(Input{Lines: []Line{l}, Tier: loyalty.Tier1, Config: testConfig()})
		require.NoError(t, err)
		assert.Equal(t, "160.00", b.Subtotal.StringFixed(2))
		assert.Equal(t, "40.00", b.MembershipDiscount.StringFixed(2))
	})

	t.Run("MemberPriceNeverAboveList", func(t *testing.T) {
		l := line("p-1", "100", 1)
		l.MemberUnitPrice = decPtr("120")

		b, err := Price(Input{Lines: []Line{l}, Tier: loyalty.Tier1, Config: testConfig()})
		require.NoError(t, err)
		assert.Equal(t, "100.00", b.Subtotal.StringFixed(2))
		assert.True(t, b.MembershipDiscount.IsZero())
	})

	t.Run("NonMemberPaysList", func(t *testing.T) {
		l := line("p-1", "100", 1)
		l.MemberUnitPrice = decPtr("80")

		b, err := Price(Input{Lines: []Line{l}, Config: testConfig()})
		require.NoError(t, err)
		assert.Equal(t, "100.00", b.Subtotal.StringFixed(2))
		assert.Equal(t, loyalty.TierNone, b.Tier)
	})
}

func TestPrice_CashbackCap(t *testing.T) {
	cfg := testConfig()
	cfg.CashbackCapAmount = dec("50.9")

	b, err := Price(Input{Lines: []Line{line("p-1", "1000", 1)}, Tier: loyalty.Tier3, Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, int64(50), b.LoyaltyCashbackEarned)
	adj := findAdjustment(b, ReasonCashbackCapped)
	require.NotNil(t, adj)
	assert.Equal(t, "100", adj.Requested)

	cfg.CashbackCapEnabled = false
	b, err = Price(Input{Lines: []Line{line("p-1", "1000", 1)}, Tier: loyalty.Tier3, Config: cfg})
	require.NoError(t, err)
	assert.Equal(t, int64(100), b.LoyaltyCashbackEarned)
}

func TestPrice_Validation(t *testing.T) {
	badConfig := testConfig()
	badConfig.TaxRatePercent = dec("120")

	cases := []struct {
		name string
		in   Input
		want error
	}{
		{"EmptyCart", Input{Config: testConfig()}, ErrEmptyCart},
		{"ZeroQuantity", Input{Lines: []Line{line("p-1", "10", 0)}, Config: testConfig()}, ErrInvalidQuantity},
		{"NegativePrice", Input{Lines: []Line{line("p-1", "-1", 1)}, Config: testConfig()}, ErrInvalidPrice},
		{"NegativeRedemption", Input{Lines: []Line{line("p-1", "10", 1)}, RequestedRedemptionUnits: -1, Config: testConfig()}, ErrInvalidRedemption},
		{"InvalidConfig", Input{Lines: []Line{line("p-1", "10", 1)}, Config: badConfig}, ErrInvalidConfig},
		{"InvalidTier", Input{Lines: []Line{line("p-1", "10", 1)}, Tier: "gold", Config: testConfig()}, loyalty.ErrInvalidTier},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Price(tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestPrice_Invariants(t *testing.T) {
	cfg := testConfig()
	for _, tier := range loyalty.MemberTiers {
		for _, balance := range []int64{0, 99, 100, 1234, 1_000_000} {
			for _, requested := range []int64{0, 1, 500, 10_000, 1_000_000} {
				b, err := Price(Input{
					Lines:                    []Line{line("p-1", "333.33", 2), line("p-2", "19.99", 5)},
					Tier:                     tier,
					CouponCode:               "TEN",
					Coupon:                   &Coupon{Code: "TEN", Kind: CouponPercent, Value: dec("10")},
					RequestedRedemptionUnits: requested,
					LoyaltyBalance:           balance,
					Config:                   cfg,
				})
				require.NoError(t, err)

				afterCoupon := b.Subtotal.Sub(b.CouponDiscount)
				limit := percentOf(afterCoupon, cfg.MaxRedemptionPercentByTier[tier])
				assert.True(t, b.LoyaltyRedemptionDiscount.LessThanOrEqual(limit))
				assert.LessOrEqual(t, b.LoyaltyRedemptionUnits, balance)
				assert.LessOrEqual(t, b.LoyaltyRedemptionUnits, requested)
				assert.True(t, b.LoyaltyRedemptionDiscount.Equal(decimal.NewFromInt(b.LoyaltyRedemptionUnits).Mul(cfg.LoyaltyExchangeRate)))
				assert.True(t, b.Tax.Equal(percentOf(b.BaseAmount, cfg.TaxRatePercent)))
				assert.True(t, b.Total.Equal(b.BaseAmount.Add(b.Tax).Add(b.Shipping)))
				assert.False(t, b.BaseAmount.IsNegative())
				assert.GreaterOrEqual(t, b.LoyaltyCashbackEarned, int64(0))
			}
		}
	}
}

func TestBreakdown_Rounded(t *testing.T) {
	b, err := Price(Input{Lines: []Line{line("p-1", "333.33", 1)}, Config: testConfig()})
	require.NoError(t, err)
	assert.Equal(t, "59.9994", b.Tax.String())

	r := b.Rounded()
	assert.Equal(t, "60", r.Tax.String())
	assert.Equal(t, "59.9994", b.Tax.String())
}
