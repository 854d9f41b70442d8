package pricing

import "errors"

var (
	// -- Validation & Input --
	ErrEmptyCart         = errors.New("cart has no items")
	ErrInvalidQuantity   = errors.New("item quantity must be greater than zero")
	ErrInvalidPrice      = errors.New("item price must not be negative")
	ErrInvalidRedemption = errors.New("requested redemption units must not be negative")
	ErrUnknownProduct    = errors.New("product not found in catalog")
	ErrInvalidConfig     = errors.New("invalid pricing config")

	// -- Collaborators --
	ErrConfigNotFound = errors.New("pricing config not found")
)
