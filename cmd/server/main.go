package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"storefront-be/internal/catalog"
	"storefront-be/internal/config"
	"storefront-be/internal/coupon"
	"storefront-be/internal/db"
	"storefront-be/internal/httpapi"
	"storefront-be/internal/logger"
	"storefront-be/internal/loyalty"
	"storefront-be/internal/metrics"
	"storefront-be/internal/middleware"
	"storefront-be/internal/order"
	"storefront-be/internal/payment"
	"storefront-be/internal/payment/webhook"
	"storefront-be/internal/pricing"
	"storefront-be/internal/settings"

	"go.uber.org/zap"
)

var (
	initDBFunc      = db.InitDB
	startServerFunc = func(addr string, handler http.Handler) error {
		srv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		return srv.ListenAndServe()
	}
)

func main() {
	if err := run(); err != nil {
		logger.L().Fatal("server stopped", zap.Error(err))
	}
}

func run() error {
	cfg := config.LoadConfig()
	logger.Init(cfg.AppEnv)
	defer logger.Sync()

	database := initDBFunc(cfg)
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newServer(ctx, cfg, database)
	if err != nil {
		return err
	}

	current, err := app.settings.EnsureSeeded(ctx)
	if err != nil {
		return fmt.Errorf("seed pricing config: %w", err)
	}

	addr := ":" + cfg.AppPort
	logger.L().Info("server running",
		zap.String("addr", addr),
		zap.Int64("pricing_config_version", current.Version),
	)
	return startServerFunc(addr, app.router)
}

type server struct {
	router   http.Handler
	settings settings.Service
	stats    *metrics.EngineStats
}

func newServer(ctx context.Context, cfg *config.Config, database *sql.DB) (*server, error) {
	if cfg.JWTSecret == "" {
		logger.L().Warn("JWT_SECRET is empty, every access token will be rejected")
	}
	if cfg.PaymentCallbackToken == "" {
		logger.L().Warn("PAYMENT_CALLBACK_TOKEN is empty, payment callbacks are not verified")
	}

	stats := metrics.NewEngineStats()
	txRunner := db.NewTxRunner(database)

	ledgers := loyalty.NewLedgerFactory(cfg.LedgerMaxRetries, stats)
	ledger := ledgers(database)

	settingsSvc, err := settings.NewService(settings.NewRepository(database), cfg.ConfigCacheSize)
	if err != nil {
		return nil, fmt.Errorf("init settings: %w", err)
	}

	products := catalog.NewRepository(database)
	coupons := coupon.NewRepository(database)
	quoter := pricing.NewQuoter(settingsSvc, ledger, products, coupons, stats)

	orderSvc := order.NewService(
		order.NewRepository(database),
		txRunner,
		order.NewRepository,
		ledgers,
		quoter,
		stats,
	)

	webhooks := payment.NewRepository(database)
	callbacks := webhook.NewWebhookHandler(orderSvc, webhooks, cfg.PaymentCallbackToken)

	router := httpapi.NewRouter(httpapi.Deps{
		Quoter:         quoter,
		Orders:         orderSvc,
		Settings:       settingsSvc,
		Loyalty:        ledger,
		Coupons:        coupons,
		Products:       products,
		Webhooks:       webhooks,
		Stats:          stats,
		PaymentWebhook: callbacks.PaymentWebhookHandler,
		Limiter:        middleware.NewRateLimiter(ctx, cfg.InternalServiceKey),
		JWTSecret:      []byte(cfg.JWTSecret),
		CORSOrigin:     cfg.CORSOrigin,
	})

	return &server{router: router, settings: settingsSvc, stats: stats}, nil
}
