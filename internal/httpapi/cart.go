package httpapi

import (
	"net/http"

	"storefront-be/internal/pricing"
	"storefront-be/internal/utils"
)

func (h *handler) quoteCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req pricing.QuoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	req.CustomerID = callerID(r)

	quote, err := h.Quoter.Quote(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, quote.Rounded())
}

func (h *handler) saveCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req pricing.QuoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	req.CustomerID = callerID(r)

	cart, err := h.Orders.SaveCart(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, cart.Rounded())
}

func (h *handler) loyaltyBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	acc, err := h.Loyalty.Account(ctx, callerID(r))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, acc)
}

func (h *handler) loyaltyHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entries, err := h.Loyalty.History(ctx, callerID(r), utils.QueryInt(r, "limit", 50))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
