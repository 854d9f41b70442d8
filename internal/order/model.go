package order

import (
	"time"

	"storefront-be/internal/pricing"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusInCart        Status = "incart"
	StatusPaid          Status = "paid"
	StatusFailed        Status = "failed"
	StatusAbandoned     Status = "abandoned"
	StatusPartialRefund Status = "partial_refund"
	StatusFullRefund    Status = "full_refund"
)

func (s Status) Valid() bool {
	switch s {
	case StatusInCart, StatusPaid, StatusFailed, StatusAbandoned, StatusPartialRefund, StatusFullRefund:
		return true
	}
	return false
}

// DeliveryStatus is the fulfilment track, only meaningful once paid.
type DeliveryStatus string

const (
	DeliveryOrderReceived   DeliveryStatus = "order_received"
	DeliveryInPacking       DeliveryStatus = "in_packing"
	DeliveryReadyToDispatch DeliveryStatus = "ready_to_dispatch"
	DeliveryShipped         DeliveryStatus = "shipped"
	DeliveryInTransit       DeliveryStatus = "in_transit"
	DeliveryDelivered       DeliveryStatus = "delivered"
	DeliveryReturned        DeliveryStatus = "returned"
)

type PaymentDetails struct {
	Mode              string    `json:"mode"`
	Date              time.Time `json:"date"`
	ExternalPaymentID string    `json:"externalPaymentId,omitempty"`
}

type RefundDetails struct {
	Reason string `json:"reason,omitempty"`
	// Fraction is 1 for a full refund.
	Fraction        decimal.Decimal `json:"fraction"`
	Amount          decimal.Decimal `json:"amount"`
	CreditedUnits   int64           `json:"creditedUnits"`
	ClawedBackUnits int64           `json:"clawedBackUnits"`
	RefundedAt      time.Time       `json:"refundedAt"`
}

type Item struct {
	ID              int64            `json:"id"`
	OrderID         string           `json:"orderId"`
	ProductID       string           `json:"productId"`
	Name            string           `json:"name"`
	UnitPrice       decimal.Decimal  `json:"unitPrice"`
	MemberUnitPrice *decimal.Decimal `json:"memberUnitPrice,omitempty"`
	Quantity        int              `json:"quantity"`
}

// Order is the lifecycle record. Breakdown is the snapshot taken when the
// cart was last priced; settlement and refunds read it, never re-price.
type Order struct {
	ID             string            `json:"id"`
	Reference      string            `json:"reference"`
	CustomerID     uint              `json:"customerId"`
	Status         Status            `json:"status"`
	DeliveryStatus *DeliveryStatus   `json:"deliveryStatus,omitempty"`
	Items          []Item            `json:"items"`
	Breakdown      pricing.Breakdown `json:"breakdown"`
	Payment        *PaymentDetails   `json:"payment,omitempty"`
	Refund         *RefundDetails    `json:"refund,omitempty"`
	AdminRemarks   *string           `json:"adminRemarks,omitempty"`
	Version        int64             `json:"version"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// Rounded returns a copy with money at 2 decimals for responses. The stored
// snapshot keeps full precision.
func (o *Order) Rounded() *Order {
	if o == nil {
		return nil
	}
	out := *o
	out.Breakdown = o.Breakdown.Rounded()
	if o.Refund != nil {
		refund := *o.Refund
		refund.Amount = refund.Amount.Round(2)
		out.Refund = &refund
	}
	return &out
}

type RefundRequest struct {
	Reason string `json:"reason"`
	// Fraction of the order being refunded, required for partial refunds.
	Fraction decimal.Decimal `json:"fraction"`
}

// TransitionRequest moves an order along the status table. A zero
// ExpectedStatus or ExpectedVersion means "whatever is current"; the write
// is still guarded against concurrent changes.
type TransitionRequest struct {
	OrderID         string          `json:"-"`
	ExpectedStatus  Status          `json:"expectedStatus"`
	ExpectedVersion int64           `json:"expectedVersion"`
	Target          Status          `json:"target"`
	Payment         *PaymentDetails `json:"payment,omitempty"`
	Refund          *RefundRequest  `json:"refund,omitempty"`
}

type DeliveryRequest struct {
	OrderID         string         `json:"-"`
	ExpectedVersion int64          `json:"expectedVersion"`
	Target          DeliveryStatus `json:"target"`
}

type ListFilter struct {
	CustomerID *uint
	Statuses   []Status
	Limit      int
	Offset     int
}
