package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"storefront-be/internal/catalog"
	"storefront-be/internal/coupon"
	"storefront-be/internal/loyalty"
	"storefront-be/internal/pricing"
	"storefront-be/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

func (h *handler) currentConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cfg, err := h.Settings.Current(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, cfg)
}

func (h *handler) configHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	versions, err := h.Settings.History(ctx, utils.QueryInt(r, "limit", 20))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

func (h *handler) publishConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var cfg pricing.Config
	if err := decodeJSON(w, r, &cfg); err != nil {
		writeError(ctx, w, err)
		return
	}

	published, err := h.Settings.Publish(ctx, cfg)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, published)
}

func (h *handler) createCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var c coupon.Coupon
	if err := decodeJSON(w, r, &c); err != nil {
		writeError(ctx, w, err)
		return
	}

	if err := h.Coupons.Create(ctx, c); err != nil {
		writeError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, c)
}

func (h *handler) getCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	c, err := h.Coupons.GetByCode(ctx, chi.URLParam(r, "code"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, c)
}

func (h *handler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	products, err := h.Products.GetAll(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (h *handler) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var p catalog.Product
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(ctx, w, err)
		return
	}

	created, err := h.Products.Create(ctx, p)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, created)
}

func (h *handler) setTierPrice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tier, err := loyalty.ParseTier(chi.URLParam(r, "tier"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	var body struct {
		Price decimal.Decimal `json:"price"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(ctx, w, err)
		return
	}

	tp := catalog.TierPrice{ProductID: chi.URLParam(r, "productID"), Tier: tier, Price: body.Price}
	if err := h.Products.SetTierPrice(ctx, tp); err != nil {
		writeError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, tp)
}

func (h *handler) setTier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	customerID, err := utils.ToUint(chi.URLParam(r, "customerID"))
	if err != nil || customerID == 0 {
		writeError(ctx, w, fmt.Errorf("%w: customer id must be a positive integer", errBadRequest))
		return
	}

	var body struct {
		Tier string `json:"tier"`
	}
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(ctx, w, err)
		return
	}
	tier, err := loyalty.ParseTier(body.Tier)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	acc, err := h.Loyalty.SetTier(ctx, customerID, tier)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, acc)
}

func (h *handler) getWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := strconv.ParseInt(chi.URLParam(r, "webhookID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(ctx, w, fmt.Errorf("%w: webhook id must be a positive integer", errBadRequest))
		return
	}

	hook, err := h.Webhooks.GetWebhook(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, hook)
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, h.Stats.Snapshot())
}
