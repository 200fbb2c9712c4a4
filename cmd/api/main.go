package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/auth"
	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/checkout"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/config"
	"github.com/noah-isme/toko-checkout/internal/coupon"
	"github.com/noah-isme/toko-checkout/internal/docstore"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/health"
	"github.com/noah-isme/toko-checkout/internal/lock"
	"github.com/noah-isme/toko-checkout/internal/notify"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/order"
	"github.com/noah-isme/toko-checkout/internal/payment"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/ratelimit"
	"github.com/noah-isme/toko-checkout/internal/resilience"
	"github.com/noah-isme/toko-checkout/internal/security"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(envOrDefault("OBS_LOG_FORMAT", "json"), envOrDefault("OBS_LOG_LEVEL", "info")).
		With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "toko")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	for _, c := range resilience.Collectors() {
		prometheus.MustRegister(c)
	}

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		stopTracer, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "toko-checkout",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := stopTracer(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := docstore.Open(ctx, docstore.Config{
		Driver:        cfg.StoreDriver,
		MongoURI:      cfg.MongoURI,
		MongoDatabase: cfg.MongoDatabase,
		PostgresURL:   cfg.DatabaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("open document store")
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Error().Err(err).Msg("close document store")
		}
	}()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	verifier, err := auth.NewVerifier(auth.Config{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token verifier")
	}
	authMiddleware := auth.Middleware{Parser: verifier, AccessCookie: envOrDefault("AUTH_ACCESS_COOKIE", "")}

	products := catalog.NewProducts(store)
	coupons := catalog.NewCoupons(store)
	orders := catalog.NewOrders(store)
	users := catalog.NewUsers(store)
	productCache := catalog.NewProductCache(catalog.NewCache(redisClient, cfg.ProductCacheTTL), products)

	couponSvc := &coupon.Service{Store: coupons, Logger: logger.With().Str("component", "coupon").Logger()}
	cartSvc := &cart.Service{
		Store:    cart.NewStore(redisClient, cfg.CartTTL),
		Products: productCache,
		Coupons:  couponSvc,
		Logger:   logger.With().Str("component", "cart").Logger(),
	}

	calc := pricing.NewCalculator(pricingConfig(cfg.Pricing))

	var mail common.EmailSender = common.NopEmailSender{}
	if cfg.NotifyEmailEnabled && cfg.SMTPHost != "" {
		mail = common.SMTPSender{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.NotifyEmailFrom,
		}
	}
	mailer := notify.Confirmation{
		Mail:    mail,
		Breaker: resilience.NewBreaker("smtp", 5, 0.5, 30*time.Second).WithLogger(logger),
		Retry:   resilience.Policy{Attempts: 2, Base: 200 * time.Millisecond, Jitter: 0.2},
		Logger:  logger.With().Str("component", "notify").Logger(),
	}

	bus := &events.Bus{Store: store}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.KafkaOrderTopic, cfg.KafkaBrokers...)
		defer func() {
			if err := publisher.Close(); err != nil {
				logger.Error().Err(err).Msg("close kafka publisher")
			}
		}()
		bus.Publisher = publisher
	}

	orchestrator := &checkout.Orchestrator{
		Products:       products,
		Orders:         orders,
		Coupons:        couponSvc,
		Payments:       payment.Simulated{Timeout: cfg.PaymentTimeout},
		Pricing:        calc,
		Locker:         lock.Locker{R: redisClient, Prefix: "lock:product:"},
		LockTTL:        cfg.CheckoutLockTTL,
		Cache:          productCache,
		Mailer:         mailer,
		Users:          users,
		Events:         bus,
		Cart:           cartSvc,
		DecrementStock: cfg.DecrementStock,
		Currency:       cfg.CurrencyCode,
		Logger:         logger.With().Str("component", "checkout").Logger(),
	}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	couponLimit := ratelimit.Handler{
		Limiter: ratelimit.Limiter{Client: redisClient, Prefix: "rl:"},
		Config: ratelimit.Config{
			Name:   "coupon_validate",
			Key:    ratelimit.UserOrIP,
			Window: cfg.CouponRateLimitWindow,
			Max:    cfg.CouponRateLimitMax,
		},
		Logger: logger,
	}

	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{Products: products})
	cartHandler := &cart.Handler{Svc: cartSvc}
	couponHandler := &coupon.Handler{Svc: couponSvc, Pricer: cartSvc, Coupons: coupons}
	pricingHandler := &pricing.Handler{Calc: calc}
	checkoutHandler := &checkout.Handler{Carts: cartSvc, Processor: orchestrator}
	orderHandler := &order.Handler{Orders: orders}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Total-Count", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(security.Headers{
		HSTS:                  envBool("SECURITY_HSTS", cfg.AppEnv == "production"),
		HSTSMaxAge:            envInt("SECURITY_HSTS_MAX_AGE", 31536000),
		HSTSIncludeSubdomains: envBool("SECURITY_HSTS_INCLUDE_SUBDOMAINS", true),
	}.Middleware)
	r.Use(security.BodyLimit{Max: int64(envInt("SECURITY_BODY_LIMIT_BYTES", 1<<20))}.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checks: map[string]health.Check{
			"store": store.Ping,
			"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		},
		Timeout: envDurationMillis("HEALTH_READY_TIMEOUT_MS", 500),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Get("/products", catalogHandler.List)
		v.Get("/products/{id}", catalogHandler.Get)
		v.Post("/pricing/quote", pricingHandler.Quote)

		v.Route("/cart", func(c chi.Router) {
			c.Use(authMiddleware.RequireAuth)
			c.Get("/", cartHandler.Get)
			c.Delete("/", cartHandler.Clear)
			c.Post("/items", cartHandler.AddItem)
			c.Patch("/items/{productId}", cartHandler.UpdateItem)
			c.Delete("/items/{productId}", cartHandler.RemoveItem)
			c.Post("/coupon", cartHandler.ApplyCoupon)
			c.Delete("/coupon", cartHandler.RemoveCoupon)
		})

		v.With(authMiddleware.RequireAuth, couponLimit.Middleware).Post("/coupons/validate", couponHandler.Validate)
		v.With(authMiddleware.RequireAuth, idem.Middleware).Post("/checkout", checkoutHandler.Checkout)

		v.Group(func(authR chi.Router) {
			authR.Use(authMiddleware.RequireAuth)
			authR.Get("/orders", orderHandler.List)
			authR.Get("/orders/{id}", orderHandler.Get)
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(authMiddleware.RequireAuth)
			admin.Post("/coupons/{id}/usage", couponHandler.RecordUsage)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("store", cfg.StoreDriver).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-runCtx.Done():
	}

	shutdown(srv, logger, envDurationMillis("SHUTDOWN_TIMEOUT_MS", 15000))
}

// shutdown flips readiness first so load balancers stop routing, then drains.
func shutdown(srv *http.Server, logger zerolog.Logger, timeout time.Duration) {
	health.SetReady(false)
	logger.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func pricingConfig(p config.Pricing) pricing.Config {
	return pricing.Config{
		TaxRate:                  p.TaxRate,
		DomesticCountry:          p.DomesticCountry,
		FreeShippingThreshold:    p.FreeShippingThreshold,
		DomesticStandardFee:      p.DomesticStandardFee,
		DomesticExpressFee:       p.DomesticExpressFee,
		InternationalStandardFee: p.InternationalStandardFee,
		InternationalExpressFee:  p.InternationalExpressFee,
		ImportDutyCountry:        p.ImportDutyCountry,
		ImportDutyRate:           p.ImportDutyRate,
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
