package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"storefront-be/internal/order"
	"storefront-be/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Operators always act on the version they were shown.
var errVersionRequired = fmt.Errorf("%w: expectedVersion is required", errBadRequest)

type orderPage struct {
	Orders []*order.Order `json:"orders"`
	Total  int64          `json:"total"`
}

func (h *handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	o, err := h.Orders.GetOrderDetail(ctx, callerID(r), chi.URLParam(r, "orderID"), utils.IsAdmin(ctx))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, o.Rounded())
}

func (h *handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	id := callerID(r)
	h.listOrders(w, r, &id)
}

func (h *handler) adminListOrders(w http.ResponseWriter, r *http.Request) {
	var customerID *uint
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		id, err := utils.ToUint(raw)
		if err != nil {
			writeError(r.Context(), w, fmt.Errorf("%w: customer_id must be a positive integer", errBadRequest))
			return
		}
		customerID = &id
	}
	h.listOrders(w, r, customerID)
}

func (h *handler) listOrders(w http.ResponseWriter, r *http.Request, customerID *uint) {
	ctx := r.Context()

	filter := order.ListFilter{
		CustomerID: customerID,
		Statuses:   parseStatuses(r.URL.Query()["status"]),
		Limit:      utils.QueryInt(r, "limit", 20),
		Offset:     utils.QueryInt(r, "offset", 0),
	}

	orders, total, err := h.Orders.ListOrders(ctx, filter)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	page := orderPage{Orders: make([]*order.Order, 0, len(orders)), Total: total}
	for _, o := range orders {
		page.Orders = append(page.Orders, o.Rounded())
	}
	utils.WriteJSON(w, http.StatusOK, page)
}

// parseStatuses accepts both ?status=a&status=b and ?status=a,b.
func parseStatuses(values []string) []order.Status {
	var out []order.Status
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, order.Status(strings.ToLower(part)))
			}
		}
	}
	return out
}

func (h *handler) transitionOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req order.TransitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if req.ExpectedVersion <= 0 {
		writeError(ctx, w, errVersionRequired)
		return
	}
	req.OrderID = chi.URLParam(r, "orderID")

	o, err := h.Orders.Transition(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, o.Rounded())
}

func (h *handler) updateDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req order.DeliveryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(ctx, w, err)
		return
	}
	if req.ExpectedVersion <= 0 {
		writeError(ctx, w, errVersionRequired)
		return
	}
	req.OrderID = chi.URLParam(r, "orderID")

	o, err := h.Orders.UpdateDelivery(ctx, req)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, o.Rounded())
}

func (h *handler) setRemarks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		Remarks string `json:"remarks"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(ctx, w, err)
		return
	}

	o, err := h.Orders.SetAdminRemarks(ctx, chi.URLParam(r, "orderID"), body.Remarks)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, o.Rounded())
}

func (h *handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.Orders.DeleteOrder(ctx, chi.URLParam(r, "orderID")); err != nil {
		writeError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
