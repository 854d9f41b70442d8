package httpapi

import (
	"context"
	"errors"
	"net/http"

	"storefront-be/internal/catalog"
	"storefront-be/internal/coupon"
	"storefront-be/internal/logger"
	"storefront-be/internal/loyalty"
	"storefront-be/internal/order"
	"storefront-be/internal/payment"
	"storefront-be/internal/pricing"
	"storefront-be/internal/utils"

	"go.uber.org/zap"
)

var errBadRequest = errors.New("malformed request")

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Retry   bool   `json:"retry,omitempty"`
}

type errorMapping struct {
	status int
	code   string
	retry  bool
}

func classify(err error) errorMapping {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, pricing.ErrEmptyCart),
		errors.Is(err, pricing.ErrInvalidQuantity),
		errors.Is(err, pricing.ErrInvalidPrice),
		errors.Is(err, pricing.ErrInvalidRedemption),
		errors.Is(err, pricing.ErrInvalidConfig),
		errors.Is(err, order.ErrPaymentDetailsRequired),
		errors.Is(err, order.ErrRefundFractionInvalid),
		errors.Is(err, order.ErrInvalidStatus),
		errors.Is(err, loyalty.ErrInvalidUnits),
		errors.Is(err, loyalty.ErrInvalidTier),
		errors.Is(err, coupon.ErrInvalidCoupon),
		errors.Is(err, catalog.ErrInvalidProduct):
		return errorMapping{http.StatusBadRequest, "invalid_request", false}

	case errors.Is(err, pricing.ErrUnknownProduct):
		return errorMapping{http.StatusBadRequest, "unknown_product", false}

	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, coupon.ErrCouponNotFound),
		errors.Is(err, pricing.ErrConfigNotFound),
		errors.Is(err, loyalty.ErrAccountNotFound),
		errors.Is(err, payment.ErrWebhookNotFound):
		return errorMapping{http.StatusNotFound, "not_found", false}

	case errors.Is(err, order.ErrUnauthorized):
		return errorMapping{http.StatusForbidden, "forbidden", false}

	case errors.Is(err, order.ErrStaleState),
		errors.Is(err, loyalty.ErrConcurrentUpdate):
		return errorMapping{http.StatusConflict, "stale_state", true}

	case errors.Is(err, order.ErrSettlementFailed):
		return errorMapping{http.StatusConflict, "settlement_failed", true}

	case errors.Is(err, order.ErrInvalidTransition):
		return errorMapping{http.StatusConflict, "invalid_transition", false}

	case errors.Is(err, order.ErrOrderNotDeletable):
		return errorMapping{http.StatusConflict, "not_deletable", false}
	}
	return errorMapping{http.StatusInternalServerError, "internal", false}
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	m := classify(err)
	body := errorBody{Error: m.code, Message: err.Error(), Retry: m.retry}

	if m.status == http.StatusInternalServerError {
		logger.FromCtx(ctx).Error("request failed", zap.Error(err))
		body.Message = "internal server error"
	}

	utils.WriteJSON(w, m.status, body)
}
