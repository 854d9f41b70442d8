package catalog

import (
	"context"
	"fmt"

	"storefront-be/internal/db"
	"storefront-be/internal/loyalty"
	"storefront-be/internal/pricing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Repository is the product catalog. It doubles as the pricing price book.
type Repository interface {
	GetAll(ctx context.Context) ([]Product, error)
	Create(ctx context.Context, p Product) (Product, error)
	SetTierPrice(ctx context.Context, tp TierPrice) error
	Prices(ctx context.Context, productIDs []string, tier loyalty.Tier) (map[string]pricing.ProductPrice, error)
}

type repository struct {
	db db.DBTX
}

func NewRepository(q db.DBTX) Repository {
	return &repository{db: q}
}

func (r *repository) GetAll(ctx context.Context) ([]Product, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name, price, stock, created_at FROM products ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}

	return products, rows.Err()
}

func (r *repository) Create(ctx context.Context, p Product) (Product, error) {
	if p.Name == "" || p.Price.IsNegative() || p.Stock < 0 {
		return Product{}, ErrInvalidProduct
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := r.db.QueryRowContext(ctx,
		"INSERT INTO products (id, name, price, stock) VALUES ($1, $2, $3, $4) RETURNING created_at",
		p.ID, p.Name, p.Price, p.Stock,
	).Scan(&p.CreatedAt)
	return p, err
}

func (r *repository) SetTierPrice(ctx context.Context, tp TierPrice) error {
	if !tp.Tier.IsMember() || tp.Price.IsNegative() {
		return fmt.Errorf("%w: tier price for %s", ErrInvalidProduct, tp.ProductID)
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO product_tier_prices (product_id, tier, price)
		SELECT id, $2, $3 FROM products WHERE id = $1
		ON CONFLICT (product_id, tier) DO UPDATE SET price = EXCLUDED.price
	`, tp.ProductID, tp.Tier, tp.Price)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProductNotFound
	}
	return nil
}

// Prices returns list and member prices keyed by product id. Unknown ids
// are simply absent from the map.
func (r *repository) Prices(ctx context.Context, productIDs []string, tier loyalty.Tier) (map[string]pricing.ProductPrice, error) {
	out := make(map[string]pricing.ProductPrice, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.price, tp.price
		FROM products p
		LEFT JOIN product_tier_prices tp ON tp.product_id = p.id AND tp.tier = $2
		WHERE p.id = ANY($1)
	`, pq.Array(productIDs), tier)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p      pricing.ProductPrice
			member decimal.NullDecimal
		)
		if err := rows.Scan(&p.ProductID, &p.Name, &p.UnitPrice, &member); err != nil {
			return nil, err
		}
		if member.Valid {
			price := member.Decimal
			p.MemberUnitPrice = &price
		}
		out[p.ProductID] = p
	}
	return out, rows.Err()
}
