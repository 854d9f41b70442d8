package order

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrUnauthorized  = errors.New("unauthorized")

	// -- Lifecycle --
	ErrInvalidTransition      = errors.New("invalid order transition")
	ErrStaleState             = errors.New("order changed since it was read")
	ErrPaymentDetailsRequired = errors.New("payment details are required to mark an order paid")
	ErrRefundFractionInvalid  = errors.New("partial refund fraction must be between 0 and 1")
	ErrSettlementFailed       = errors.New("loyalty settlement failed")
	ErrOrderNotDeletable      = errors.New("paid orders cannot be deleted")
	ErrInvalidStatus          = errors.New("invalid order status")
)

// InvalidTransitionError names the rejected pair. It matches
// ErrInvalidTransition under errors.Is.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid order transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
