package loyalty

import "errors"

var (
	// -- Validation & Input --
	ErrInvalidUnits = errors.New("loyalty units must not be negative")
	ErrInvalidTier  = errors.New("invalid loyalty tier")

	// -- Resource State --
	ErrAccountNotFound     = errors.New("loyalty account not found")
	ErrInsufficientBalance = errors.New("insufficient loyalty balance")

	// -- Concurrency --
	ErrConcurrentUpdate = errors.New("loyalty account changed concurrently, retries exhausted")
)
