package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

const ProviderXendit = "XENDIT"

// Provider statuses carried by invoice callbacks.
const (
	StatusPaid    = "PAID"
	StatusExpired = "EXPIRED"
	StatusFailed  = "FAILED"
)

// Callback is the invoice callback body posted by the payment provider.
// ExternalID carries the order reference issued at checkout.
type Callback struct {
	ID            string          `json:"id"`
	ExternalID    string          `json:"external_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	PaymentID     string          `json:"payment_id,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
}

// Webhook is a stored callback delivery.
type Webhook struct {
	ID             int64      `json:"id"`
	Provider       string     `json:"provider"`
	EventID        string     `json:"eventId"`
	EventType      string     `json:"eventType"`
	ExternalID     string     `json:"externalId"`
	SignatureValid bool       `json:"signatureValid"`
	Attempts       int        `json:"attempts"`
	ProcessedAt    *time.Time `json:"processedAt,omitempty"`
	ProcessError   *string    `json:"processError,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}
