package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"storefront-be/internal/catalog"
	"storefront-be/internal/coupon"
	"storefront-be/internal/logger"
	"storefront-be/internal/loyalty"
	"storefront-be/internal/metrics"
	"storefront-be/internal/middleware"
	"storefront-be/internal/order"
	"storefront-be/internal/payment"
	"storefront-be/internal/pricing"
	"storefront-be/internal/settings"
	"storefront-be/internal/utils"

	"github.com/go-chi/chi/v5"
)

const maxBodySize = 64 * 1024

type CartQuoter interface {
	Quote(ctx context.Context, req pricing.QuoteRequest) (*pricing.Quote, error)
}

type LoyaltyAccounts interface {
	Account(ctx context.Context, customerID uint) (*loyalty.Account, error)
	History(ctx context.Context, customerID uint, limit int) ([]loyalty.Entry, error)
	SetTier(ctx context.Context, customerID uint, tier loyalty.Tier) (*loyalty.Account, error)
}

type CouponStore interface {
	Create(ctx context.Context, c coupon.Coupon) error
	GetByCode(ctx context.Context, code string) (*coupon.Coupon, error)
}

type ProductStore interface {
	GetAll(ctx context.Context) ([]catalog.Product, error)
	Create(ctx context.Context, p catalog.Product) (catalog.Product, error)
	SetTierPrice(ctx context.Context, tp catalog.TierPrice) error
}

type WebhookLog interface {
	GetWebhook(ctx context.Context, webhookID int64) (*payment.Webhook, error)
}

// Deps are the collaborators the JSON surface is built on. Limiter,
// Webhooks and PaymentWebhook are optional.
type Deps struct {
	Quoter         CartQuoter
	Orders         order.Service
	Settings       settings.Service
	Loyalty        LoyaltyAccounts
	Coupons        CouponStore
	Products       ProductStore
	Webhooks       WebhookLog
	Stats          *metrics.EngineStats
	PaymentWebhook http.HandlerFunc
	Limiter        *middleware.RateLimiter
	JWTSecret      []byte
	CORSOrigin     string
}

type handler struct {
	Deps
}

func NewRouter(deps Deps) http.Handler {
	h := &handler{Deps: deps}
	r := chi.NewRouter()

	r.Use(logger.RequestIDMiddleware)
	r.Use(logger.LoggingMiddleware)
	r.Use(middleware.CORS(deps.CORSOrigin))
	r.Use(middleware.AuthMiddleware(deps.JWTSecret))
	if deps.Limiter != nil {
		r.Use(deps.Limiter.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.PaymentWebhook != nil {
		r.Post("/webhook/payment", deps.PaymentWebhook)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)

		r.Post("/cart/quote", h.quoteCart)
		r.Put("/cart", h.saveCart)
		r.Get("/orders", h.listMyOrders)
		r.Get("/orders/{orderID}", h.getOrder)
		r.Get("/loyalty/balance", h.loyaltyBalance)
		r.Get("/loyalty/history", h.loyaltyHistory)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireAdmin)
		r.Use(middleware.AuditLog)

		r.Get("/orders", h.adminListOrders)
		r.Post("/orders/{orderID}/transitions", h.transitionOrder)
		r.Post("/orders/{orderID}/delivery", h.updateDelivery)
		r.Put("/orders/{orderID}/remarks", h.setRemarks)
		r.Delete("/orders/{orderID}", h.deleteOrder)

		r.Get("/pricing-config", h.currentConfig)
		r.Get("/pricing-config/history", h.configHistory)
		r.Post("/pricing-config", h.publishConfig)

		r.Post("/coupons", h.createCoupon)
		r.Get("/coupons/{code}", h.getCoupon)
		r.Get("/products", h.listProducts)
		r.Post("/products", h.createProduct)
		r.Put("/products/{productID}/tier-prices/{tier}", h.setTierPrice)
		r.Put("/loyalty/{customerID}/tier", h.setTier)
		if deps.Webhooks != nil {
			r.Get("/payment-webhooks/{webhookID}", h.getWebhook)
		}

		r.Get("/stats", h.stats)
	})

	return r
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func callerID(r *http.Request) uint {
	id, _ := utils.GetUserIDFromContext(r.Context())
	return id
}
