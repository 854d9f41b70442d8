package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"storefront-be/internal/db"
	"storefront-be/internal/loyalty"
	"storefront-be/internal/pricing"

	"github.com/shopspring/decimal"
)

// Repository stores pricing configs, one immutable row per version.
type Repository interface {
	Latest(ctx context.Context) (pricing.Config, error)
	GetByVersion(ctx context.Context, version int64) (pricing.Config, error)
	Insert(ctx context.Context, cfg pricing.Config) (pricing.Config, error)
	ListVersions(ctx context.Context, limit int) ([]pricing.Config, error)
}

type repository struct {
	db db.DBTX
}

func NewRepository(q db.DBTX) Repository {
	return &repository{db: q}
}

const selectConfig = `
	SELECT version, currency, tax_rate_percent, loyalty_exchange_rate,
		min_redemption_units, max_redemption_percent_by_tier, earn_rate_percent_by_tier,
		membership_discount_percent_by_tier, cashback_cap_enabled, cashback_cap_amount,
		free_shipping_threshold, standard_shipping_rate, created_at
	FROM pricing_configs
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (pricing.Config, error) {
	var c pricing.Config
	var maxRedeem, earn, memberDisc []byte
	err := row.Scan(
		&c.Version, &c.Currency, &c.TaxRatePercent, &c.LoyaltyExchangeRate,
		&c.MinRedemptionUnits, &maxRedeem, &earn,
		&memberDisc, &c.CashbackCapEnabled, &c.CashbackCapAmount,
		&c.FreeShippingThreshold, &c.StandardShippingRate, &c.CreatedAt,
	)
	if err != nil {
		return pricing.Config{}, err
	}

	tables := []struct {
		raw []byte
		dst *map[loyalty.Tier]decimal.Decimal
	}{
		{maxRedeem, &c.MaxRedemptionPercentByTier},
		{earn, &c.EarnRatePercentByTier},
		{memberDisc, &c.MembershipDiscountPercentByTier},
	}
	for _, t := range tables {
		m := map[loyalty.Tier]decimal.Decimal{}
		if len(t.raw) > 0 {
			if err := json.Unmarshal(t.raw, &m); err != nil {
				return pricing.Config{}, fmt.Errorf("decode tier table: %w", err)
			}
		}
		*t.dst = m
	}
	return c, nil
}

func (r *repository) Latest(ctx context.Context) (pricing.Config, error) {
	c, err := scanConfig(r.db.QueryRowContext(ctx, selectConfig+` ORDER BY version DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return pricing.Config{}, pricing.ErrConfigNotFound
	}
	return c, err
}

func (r *repository) GetByVersion(ctx context.Context, version int64) (pricing.Config, error) {
	c, err := scanConfig(r.db.QueryRowContext(ctx, selectConfig+` WHERE version = $1`, version))
	if errors.Is(err, sql.ErrNoRows) {
		return pricing.Config{}, fmt.Errorf("%w: version %d", pricing.ErrConfigNotFound, version)
	}
	return c, err
}

// Insert stores cfg as a new version; the version and creation time are
// assigned by the database.
func (r *repository) Insert(ctx context.Context, cfg pricing.Config) (pricing.Config, error) {
	maxRedeem, err := json.Marshal(cfg.MaxRedemptionPercentByTier)
	if err != nil {
		return pricing.Config{}, err
	}
	earn, err := json.Marshal(cfg.EarnRatePercentByTier)
	if err != nil {
		return pricing.Config{}, err
	}
	memberDisc, err := json.Marshal(cfg.MembershipDiscountPercentByTier)
	if err != nil {
		return pricing.Config{}, err
	}

	out := cfg.Clone()
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO pricing_configs (
			currency, tax_rate_percent, loyalty_exchange_rate,
			min_redemption_units, max_redemption_percent_by_tier, earn_rate_percent_by_tier,
			membership_discount_percent_by_tier, cashback_cap_enabled, cashback_cap_amount,
			free_shipping_threshold, standard_shipping_rate
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING version, created_at
	`,
		cfg.Currency, cfg.TaxRatePercent, cfg.LoyaltyExchangeRate,
		cfg.MinRedemptionUnits, maxRedeem, earn,
		memberDisc, cfg.CashbackCapEnabled, cfg.CashbackCapAmount,
		cfg.FreeShippingThreshold, cfg.StandardShippingRate,
	).Scan(&out.Version, &out.CreatedAt)
	if err != nil {
		return pricing.Config{}, err
	}
	return out, nil
}

func (r *repository) ListVersions(ctx context.Context, limit int) ([]pricing.Config, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, selectConfig+` ORDER BY version DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pricing.Config
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
