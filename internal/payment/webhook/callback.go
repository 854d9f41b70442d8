package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"storefront-be/internal/logger"
	"storefront-be/internal/order"
	"storefront-be/internal/payment"
	"storefront-be/internal/utils"

	"go.uber.org/zap"
)

const maxCallbackBody = 1 << 20

var errAmountMismatch = errors.New("paid amount does not match order total")

// OrderUpdater is the part of the order lifecycle a payment callback drives.
type OrderUpdater interface {
	GetOrderByReference(ctx context.Context, reference string) (*order.Order, error)
	MarkAsPaid(ctx context.Context, reference string, payment order.PaymentDetails) (*order.Order, error)
	MarkAsFailed(ctx context.Context, reference string) (*order.Order, error)
}

type Handler struct {
	orders        OrderUpdater
	repo          payment.Repository
	callbackToken string
	now           func() time.Time
}

// NewWebhookHandler builds the callback endpoint. An empty callbackToken
// disables verification, which is only meant for local development.
func NewWebhookHandler(orders OrderUpdater, repo payment.Repository, callbackToken string) *Handler {
	return &Handler{
		orders:        orders,
		repo:          repo,
		callbackToken: callbackToken,
		now:           time.Now,
	}
}

func (h *Handler) verifyToken(r *http.Request) bool {
	if h.callbackToken == "" {
		return true
	}
	got := r.Header.Get("x-callback-token")
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.callbackToken)) == 1
}

func (h *Handler) PaymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.ForComponent(ctx, "webhook", "PaymentWebhookHandler")

	if !h.verifyToken(r) {
		log.Warn("callback token mismatch", zap.String("ip", r.RemoteAddr))
		utils.WriteJSONError(w, "invalid callback token", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBody))
	if err != nil {
		utils.WriteJSONError(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var cb payment.Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		utils.WriteJSONError(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if cb.ID == "" || cb.ExternalID == "" || cb.Status == "" {
		utils.WriteJSONError(w, "id, external_id and status are required", http.StatusBadRequest)
		return
	}

	log = log.With(
		zap.String("event_id", cb.ID),
		zap.String("reference", cb.ExternalID),
		zap.String("status", cb.Status),
	)

	webhookID, processed, err := h.repo.SaveWebhook(
		ctx, payment.ProviderXendit, cb.ID, cb.Status, cb.ExternalID, body, h.callbackToken != "",
	)
	if err != nil {
		log.Error("failed to store webhook", zap.Error(err))
		utils.WriteJSONError(w, "failed to store webhook", http.StatusInternalServerError)
		return
	}
	if processed {
		log.Info("duplicate webhook ignored")
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
		return
	}

	err = h.apply(utils.WithInternalRequest(ctx), cb)
	switch {
	case err == nil:
		if mErr := h.repo.MarkWebhookProcessed(ctx, webhookID); mErr != nil {
			log.Error("failed to mark webhook processed", zap.Error(mErr))
		}
		log.Info("webhook processed")
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})

	case errors.Is(err, order.ErrSettlementFailed):
		// the payment was captured but the ledger cannot settle it; an
		// operator has to reconcile, a redelivery never will
		reason := reasonNeedsReview + ": " + err.Error()
		if mErr := h.repo.MarkWebhookRejected(ctx, webhookID, reason); mErr != nil {
			log.Error("failed to mark webhook for review", zap.Error(mErr))
		}
		log.Error("captured payment could not be settled", zap.Error(err), zap.Int64("webhook_id", webhookID))
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "needs_review"})

	case isPermanent(err):
		// acknowledged so the provider stops redelivering
		if mErr := h.repo.MarkWebhookRejected(ctx, webhookID, err.Error()); mErr != nil {
			log.Error("failed to mark webhook rejected", zap.Error(mErr))
		}
		log.Warn("webhook rejected", zap.Error(err))
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "rejected"})

	default:
		if mErr := h.repo.MarkWebhookFailed(ctx, webhookID, err.Error()); mErr != nil {
			log.Error("failed to mark webhook failed", zap.Error(mErr))
		}
		log.Error("webhook processing failed", zap.Error(err))
		utils.WriteJSONError(w, "failed to update order", http.StatusInternalServerError)
	}
}

func (h *Handler) apply(ctx context.Context, cb payment.Callback) error {
	switch cb.Status {
	case payment.StatusPaid:
		o, err := h.orders.GetOrderByReference(ctx, cb.ExternalID)
		if err != nil {
			return err
		}
		total := o.Breakdown.Total.Round(2)
		if cb.Amount.IsPositive() && !cb.Amount.Equal(total) {
			return fmt.Errorf("%w: paid %s, total %s", errAmountMismatch, cb.Amount, total)
		}

		details := order.PaymentDetails{
			Mode:              cb.PaymentMethod,
			Date:              h.now(),
			ExternalPaymentID: cb.PaymentID,
		}
		if details.Mode == "" {
			details.Mode = payment.ProviderXendit
		}
		if details.ExternalPaymentID == "" {
			details.ExternalPaymentID = cb.ID
		}
		if cb.PaidAt != nil {
			details.Date = *cb.PaidAt
		}

		_, err = h.orders.MarkAsPaid(ctx, cb.ExternalID, details)
		return err

	case payment.StatusExpired, payment.StatusFailed:
		_, err := h.orders.MarkAsFailed(ctx, cb.ExternalID)
		return err

	default:
		logger.ForComponent(ctx, "webhook", "apply").Info("ignoring callback status", zap.String("status", cb.Status))
		return nil
	}
}

const reasonNeedsReview = "needs_review"

// isPermanent reports failures a redelivery cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, errAmountMismatch) ||
		errors.Is(err, order.ErrOrderNotFound) ||
		errors.Is(err, order.ErrInvalidTransition) ||
		errors.Is(err, order.ErrPaymentDetailsRequired)
}
