package pricing

import (
	"context"
	"fmt"

	"storefront-be/internal/logger"
	"storefront-be/internal/loyalty"
	"storefront-be/internal/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ConfigSource serves immutable pricing config versions.
type ConfigSource interface {
	Current(ctx context.Context) (Config, error)
	ByVersion(ctx context.Context, version int64) (Config, error)
}

// ProductPrice is what the catalog charges for a product: its list price
// and, when one is set for the tier, the member price.
type ProductPrice struct {
	ProductID       string
	Name            string
	UnitPrice       decimal.Decimal
	MemberUnitPrice *decimal.Decimal
}

type PriceBook interface {
	Prices(ctx context.Context, productIDs []string, tier loyalty.Tier) (map[string]ProductPrice, error)
}

// CouponResolver returns nil, nil for codes it does not know.
type CouponResolver interface {
	Resolve(ctx context.Context, code string) (*Coupon, error)
}

type AccountReader interface {
	Account(ctx context.Context, customerID uint) (*loyalty.Account, error)
}

type ItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type QuoteRequest struct {
	CustomerID               uint          `json:"-"`
	Items                    []ItemRequest `json:"items"`
	CouponCode               string        `json:"couponCode"`
	RequestedRedemptionUnits int64         `json:"requestedRedemptionUnits"`
	// ConfigVersion pins a config version; zero uses the current one.
	ConfigVersion int64 `json:"configVersion,omitempty"`
}

// Quoter is the read-only pricing phase. It gathers config, tier, balance,
// catalog prices and the coupon, then runs Price. It never writes.
type Quoter struct {
	configs ConfigSource
	ledger  AccountReader
	catalog PriceBook
	coupons CouponResolver
	stats   *metrics.EngineStats
}

// NewQuoter wires the quoter. coupons may be nil, in which case every code
// is treated as unknown.
func NewQuoter(configs ConfigSource, ledger AccountReader, catalog PriceBook, coupons CouponResolver, stats *metrics.EngineStats) *Quoter {
	return &Quoter{
		configs: configs,
		ledger:  ledger,
		catalog: catalog,
		coupons: coupons,
		stats:   stats,
	}
}

func (q *Quoter) Quote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	log := logger.ForComponent(ctx, "service", "Quote").With(logger.CustomerID(req.CustomerID))
	timer := metrics.StartTimer()

	quote, err := q.quote(ctx, log, req)
	if err != nil {
		q.stats.Inc(metrics.QuoteRejections)
		return nil, err
	}
	q.stats.Inc(metrics.QuotesComputed)

	log.Debug("cart quoted",
		zap.String("total", quote.Breakdown.Total.StringFixed(2)),
		zap.Int64("config_version", quote.Breakdown.ConfigVersion),
		zap.Int("adjustments", len(quote.Breakdown.Adjustments)),
		zap.Duration("took", timer.Duration()),
	)
	return quote, nil
}

func (q *Quoter) quote(ctx context.Context, log *zap.Logger, req QuoteRequest) (*Quote, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyCart
	}
	if req.RequestedRedemptionUnits < 0 {
		return nil, ErrInvalidRedemption
	}
	ids := make([]string, 0, len(req.Items))
	for _, it := range req.Items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: product %s quantity %d", ErrInvalidQuantity, it.ProductID, it.Quantity)
		}
		ids = append(ids, it.ProductID)
	}

	cfg, err := q.config(ctx, req.ConfigVersion)
	if err != nil {
		log.Error("failed to load pricing config", zap.Error(err))
		return nil, err
	}

	acc, err := q.ledger.Account(ctx, req.CustomerID)
	if err != nil {
		log.Error("failed to load loyalty account", zap.Error(err))
		return nil, err
	}

	prices, err := q.catalog.Prices(ctx, ids, acc.Tier)
	if err != nil {
		log.Error("failed to load catalog prices", zap.Error(err))
		return nil, err
	}

	lines := make([]Line, 0, len(req.Items))
	for _, it := range req.Items {
		p, ok := prices[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, it.ProductID)
		}
		lines = append(lines, Line{
			CartLine: CartLine{
				ProductID: it.ProductID,
				Name:      p.Name,
				UnitPrice: p.UnitPrice,
				Quantity:  it.Quantity,
			},
			MemberUnitPrice: p.MemberUnitPrice,
		})
	}

	coupon, couponUnavailable := q.resolveCoupon(ctx, log, req.CouponCode)

	breakdown, err := Price(Input{
		Lines:                    lines,
		Tier:                     acc.Tier,
		CouponCode:               req.CouponCode,
		Coupon:                   coupon,
		RequestedRedemptionUnits: req.RequestedRedemptionUnits,
		LoyaltyBalance:           acc.Balance,
		Config:                   cfg,
	})
	if err != nil {
		log.Warn("cart rejected by pricing", zap.Error(err))
		return nil, err
	}
	if couponUnavailable {
		// Price recorded it as unknown; say why.
		for i := range breakdown.Adjustments {
			if breakdown.Adjustments[i].Reason == ReasonCouponUnknown {
				breakdown.Adjustments[i].Reason = ReasonCouponUnavailable
			}
		}
	}

	return &Quote{Lines: lines, Breakdown: breakdown}, nil
}

func (q *Quoter) config(ctx context.Context, version int64) (Config, error) {
	if version > 0 {
		return q.configs.ByVersion(ctx, version)
	}
	return q.configs.Current(ctx)
}

// resolveCoupon is best effort: a failing coupon service prices the cart
// without the discount instead of failing the quote.
func (q *Quoter) resolveCoupon(ctx context.Context, log *zap.Logger, code string) (*Coupon, bool) {
	if q.coupons == nil || code == "" {
		return nil, false
	}
	c, err := q.coupons.Resolve(ctx, code)
	if err != nil {
		log.Warn("coupon lookup failed, pricing without it", zap.String("coupon", code), zap.Error(err))
		return nil, true
	}
	return c, false
}
