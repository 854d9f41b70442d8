package catalog

import (
	"time"

	"storefront-be/internal/loyalty"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	CreatedAt time.Time       `json:"createdAt"`
}

// TierPrice is an explicit member price for one product and tier.
type TierPrice struct {
	ProductID string          `json:"productId"`
	Tier      loyalty.Tier    `json:"tier"`
	Price     decimal.Decimal `json:"price"`
}
