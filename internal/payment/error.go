package payment

import "errors"

var ErrWebhookNotFound = errors.New("payment webhook not found")
