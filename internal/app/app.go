package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/rihla-backoffice/internal/domain/customer"
	"github.com/xenking/rihla-backoffice/internal/domain/inventory"
	"github.com/xenking/rihla-backoffice/internal/domain/invoice"
	"github.com/xenking/rihla-backoffice/internal/domain/order"
	"github.com/xenking/rihla-backoffice/internal/domain/ordernum"
	"github.com/xenking/rihla-backoffice/internal/domain/pricing"
	"github.com/xenking/rihla-backoffice/internal/handler"
	"github.com/xenking/rihla-backoffice/internal/idempotency"
	"github.com/xenking/rihla-backoffice/pkg/health"
	"github.com/xenking/rihla-backoffice/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr), zap.Bool("memory", cfg.Memory))
	ctx = zctx.Base(ctx, lg)

	store, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	healthSvc := health.New()
	healthSvc.Add(health.Readiness, store.name, 5*time.Second, health.PingCheck(store.ping))
	healthSvc.Add(health.Liveness, "goroutines", time.Second, health.GoroutineCountCheck(10000))

	idem, closeIdem, err := openIdempotency(ctx, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer closeIdem()

	taxRate, err := cfg.Tax.Rate()
	if err != nil {
		return err
	}

	// Domain services.
	orderService, err := order.NewService(order.ServiceDeps{
		Products:  store.products,
		Brands:    store.brands,
		Ledger:    inventory.NewLedger(store.products, store.tx),
		Customers: customer.NewAggregator(store.customers),
		Orders:    store.orders,
		Tx:        store.tx,
		Numbers:   ordernum.NewIssuer(ordernum.NewGenerator(), ordernum.IssuerConfig{}),
		Pricing:   pricing.NewCalculator(pricing.StandardTaxTable().WithDefaultRate(taxRate)),
	}, order.ServiceConfig{
		DefaultCurrency: cfg.Order.DefaultCurrency,
		MaxAttempts:     cfg.Order.MaxAttempts,
		RetryBackoff:    cfg.Order.RetryBackoff,
	},
		order.WithIdempotency(idem),
		order.WithTelemetry(m.MeterProvider(), m.TracerProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	invoices := invoice.NewProjector(store.customers, store.orders)

	// HTTP handlers.
	h := handler.NewHandler(orderService, invoices)
	securityHandler := handler.NewSecurityHandler(store.apikeys, handler.SecurityConfig{
		Pepper:    []byte(cfg.APIKeyPepper),
		JWTSecret: []byte(cfg.JWT.Secret),
		JWTIssuer: cfg.JWT.Issuer,
	})

	router := h.Routes(securityHandler)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	routeFinder := httpmiddleware.MakeRouteFinder(router)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(router,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins: cfg.CORS.Origins,
				AllowHeaders: []string{
					"Content-Type", "Authorization", handler.APIKeyHeader,
					handler.IdempotencyKeyHeader, httpmiddleware.RequestIDHeader,
				},
				ExposeHeaders:    []string{"Location", "Retry-After", httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("rihla-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Graceful shutdown: wait for cancellation, drain, then stop.
		<-gctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}

// openIdempotency returns the Redis-backed key store when an address is
// configured and the in-process one otherwise.
func openIdempotency(ctx context.Context, cfg *Config, hs *health.Health) (order.IdempotencyStore, func(), error) {
	if cfg.Redis.Addr == "" {
		return idempotency.NewMemory(cfg.Redis.IdempotencyTTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store := idempotency.NewRedis(client, "rihla", cfg.Redis.IdempotencyTTL)
	if err := store.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, nil, errors.Wrap(err, "connect redis")
	}
	hs.Add(health.Readiness, "redis", 2*time.Second, health.PingCheck(store))

	zctx.From(ctx).Info("Idempotency keys in redis", zap.String("addr", cfg.Redis.Addr))
	return store, func() { _ = client.Close() }, nil
}
