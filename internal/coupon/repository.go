package coupon

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"storefront-be/internal/db"
	"storefront-be/internal/pricing"

	"github.com/shopspring/decimal"
)

var (
	ErrCouponNotFound = errors.New("coupon not found")
	ErrInvalidCoupon  = errors.New("invalid coupon")
)

type Repository interface {
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	Create(ctx context.Context, c Coupon) error
	// Resolve returns the pricing rule for a live coupon, or nil when the
	// code is unknown, inactive or outside its window.
	Resolve(ctx context.Context, code string) (*pricing.Coupon, error)
}

type repository struct {
	db  db.DBTX
	now func() time.Time
}

func NewRepository(q db.DBTX) Repository {
	return &repository{db: q, now: time.Now}
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *repository) GetByCode(ctx context.Context, code string) (*Coupon, error) {
	var (
		c           Coupon
		maxDiscount decimal.NullDecimal
		startsAt    sql.NullTime
		endsAt      sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT code, kind, value, min_order_value, max_discount, active, starts_at, ends_at
		FROM coupons
		WHERE code = $1
	`, normalize(code)).Scan(
		&c.Code, &c.Kind, &c.Value, &c.MinOrderValue, &maxDiscount, &c.Active, &startsAt, &endsAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCouponNotFound
	}
	if err != nil {
		return nil, err
	}

	if maxDiscount.Valid {
		c.MaxDiscount = maxDiscount.Decimal
	}
	if startsAt.Valid {
		c.StartsAt = &startsAt.Time
	}
	if endsAt.Valid {
		c.EndsAt = &endsAt.Time
	}
	return &c, nil
}

func (r *repository) Create(ctx context.Context, c Coupon) error {
	if err := c.Validate(); err != nil {
		return err
	}
	var maxDiscount decimal.NullDecimal
	if c.MaxDiscount.IsPositive() {
		maxDiscount = decimal.NewNullDecimal(c.MaxDiscount)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO coupons (code, kind, value, min_order_value, max_discount, active, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, normalize(c.Code), c.Kind, c.Value, c.MinOrderValue, maxDiscount, c.Active, c.StartsAt, c.EndsAt)
	return err
}

func (r *repository) Resolve(ctx context.Context, code string) (*pricing.Coupon, error) {
	if normalize(code) == "" {
		return nil, nil
	}
	c, err := r.GetByCode(ctx, code)
	if errors.Is(err, ErrCouponNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !c.Live(r.now()) {
		return nil, nil
	}
	return c.Rule(), nil
}
