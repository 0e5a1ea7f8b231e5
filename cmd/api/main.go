package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/toko-pricing/internal/app"
	"github.com/noah-isme/toko-pricing/internal/auth"
	"github.com/noah-isme/toko-pricing/internal/cart"
	"github.com/noah-isme/toko-pricing/internal/checkout"
	"github.com/noah-isme/toko-pricing/internal/common"
	"github.com/noah-isme/toko-pricing/internal/config"
	"github.com/noah-isme/toko-pricing/internal/coupon"
	"github.com/noah-isme/toko-pricing/internal/customer"
	"github.com/noah-isme/toko-pricing/internal/discount"
	"github.com/noah-isme/toko-pricing/internal/events"
	"github.com/noah-isme/toko-pricing/internal/health"
	"github.com/noah-isme/toko-pricing/internal/lock"
	"github.com/noah-isme/toko-pricing/internal/obs"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/ratelimit"
	"github.com/noah-isme/toko-pricing/internal/resilience"
	"github.com/noah-isme/toko-pricing/internal/security"
	"github.com/noah-isme/toko-pricing/internal/storefront"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "toko")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingCfg := obs.TracingConfigFromEnv(cfg.AppEnv)
	tracingEnabled := tracingCfg.Enabled
	shutdownTracer, err := obs.InitTracer(context.Background(), tracingCfg)
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		tracingEnabled = false
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}()

	if cfg.MigrateOnStart {
		if err := app.RunMigrations(cfg.DatabaseURL, logger); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "toko-pricing"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}

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

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Signals fan out locally and through Redis so streams on other
	// instances refresh too.
	origin := uuid.NewString()
	relay := &events.RedisRelay{Client: redisClient, Origin: origin, Logger: logger}
	bus := &events.Bus{Notifiers: []events.Notifier{relay}, Origin: origin}
	go func() {
		if err := relay.Run(runCtx, bus); err != nil {
			logger.Error().Err(err).Msg("signal relay stopped")
		}
	}()

	states := checkout.NewStateStore(redisClient, cfg.CheckoutStateTTL).
		WithLocker(lock.Locker{R: redisClient, RetryBackoff: 25 * time.Millisecond, MaxWait: 2 * time.Second})
	cartStore := &cart.PgStore{Pool: pool}
	couponStore := &coupon.PgStore{Pool: pool}

	discounts, breaker := newDiscountEngine(cfg, pool, couponStore, logger)
	segments := &customer.CachedSegments{
		Next:   &customer.PgSegments{Pool: pool},
		Client: redisClient,
		TTL:    cfg.SegmentCacheTTL,
		Logger: logger,
	}

	aggregator := &pricing.Aggregator{
		Snapshots: cartStore,
		Context: &pricing.ContextBuilder{
			Currency:        pricing.StaticCurrency(cfg.Pricing.Currency),
			Segments:        segments,
			DefaultCurrency: cfg.Pricing.Currency,
			ChannelID:       cfg.Pricing.ChannelID,
			Logger:          logger,
		},
		Discounts: discounts,
		Shipping:  pricing.NewShippingResolver(cfg.Pricing.ShippingZoneRates, cfg.Pricing.ShippingDefaultRate, cfg.Pricing.FreeShippingThreshold),
		Tax:       pricing.TaxCalculator{Rates: pricing.NewZoneRates(cfg.Pricing.TaxZoneRates, cfg.Pricing.TaxDefaultRate)},
		Strict:    cfg.Discounts.Strict,
		Logger:    logger,
	}
	// Checkout quotes never silently drop a discount.
	strictAggregator := *aggregator
	strictAggregator.Strict = true

	validate := validator.New(validator.WithRequiredStructEnabled())
	couponValidator := &coupon.Validator{Coupons: couponStore, States: states, Events: bus, Logger: logger}
	storefrontSvc := &storefront.Service{States: states, Pricing: aggregator, Coupons: couponValidator, Logger: logger}
	storefrontHandler := &storefront.Handler{Svc: storefrontSvc, Validate: validate}
	closing := make(chan struct{})
	stream := &storefront.Stream{Svc: storefrontSvc, Bus: bus, Closing: closing, Logger: logger}
	checkoutHandler := &checkout.Handler{
		Svc:      &checkout.Service{States: states, Pricing: &strictAggregator, Events: bus, Logger: logger},
		Validate: validate,
	}
	cartHandler := &cart.Handler{Svc: &cart.Service{Store: cartStore, Events: bus, Logger: logger}}

	couponLimiter, err := ratelimit.NewRedis(redisClient, "toko:rl:coupon", cfg.CouponRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("configure coupon rate limit")
	}
	couponLimit := ratelimit.Handler{
		Limiter: couponLimiter,
		Key:     storefront.CouponRateKey,
		OnError: func(err error) { logger.Warn().Err(err).Msg("coupon_rate_limit_failopen") },
	}
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}
	authMW := auth.Middleware{
		Verifier:     auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience),
		AccessCookie: cfg.AccessCookieName,
	}

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
	httpObs := obs.HTTPObs{Metrics: httpMetrics}
	if metricsEnabled && httpMetrics != nil {
		r.Use(httpObs.Middleware)
	}
	r.Use(authMW.Authenticate)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(security.Headers{
		Enable:     envBool("SECURE_HEADERS_ENABLED", true),
		EnableHSTS: envBool("SECURE_HSTS_ENABLED", false),
		NoStore:    true,
	}.Middleware)
	r.Use(security.BodyLimit{Max: int64(envInt("SECURE_BODY_LIMIT_BYTES", int(security.DefaultBodyLimit)))}.Middleware)

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	pprofEnabled := envBool("OBS_ENABLE_PPROF", false)
	if pprofEnabled {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      health.Deps{DB: pool, Redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
	}
	if breaker != nil {
		healthHandler.DiscountEngine = func() string { return breaker.State().String() }
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/carts/{id}", func(c chi.Router) {
			c.Use(cart.RequireID)
			c.Get("/pricing", storefrontHandler.Pricing)
			c.Method(http.MethodGet, "/fragments/stream", httpObs.TrackStream(stream))
			c.Get("/fragments/{name}", storefrontHandler.Fragment)
			c.With(couponLimit.Middleware, idem.Middleware).Post("/coupon", storefrontHandler.ApplyCoupon)
			c.Delete("/coupon", storefrontHandler.RemoveCoupon)
			c.Put("/shipping", checkoutHandler.SelectShipping)
			c.Get("/checkout/quote", checkoutHandler.Quote)
			c.Patch("/items/{itemId}", cartHandler.UpdateItem)
			c.Delete("/items/{itemId}", cartHandler.RemoveItem)
		})
	})

	// WriteTimeout stays unset: fragment streams are long-lived.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	srv.RegisterOnShutdown(func() { close(closing) })

	go func() {
		<-runCtx.Done()
		health.SetReady(false)
		logger.Info().Msg("server draining")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), envDurationMillis("SHUTDOWN_TIMEOUT_MS", 10000))
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server stopped")
}

// newDiscountEngine picks the remote engine when a URL is configured and the
// local rule engine otherwise. The breaker is nil for the local engine.
func newDiscountEngine(cfg *config.Config, pool *pgxpool.Pool, coupons coupon.Finder, logger zerolog.Logger) (pricing.DiscountEngine, *resilience.Breaker) {
	if cfg.Discounts.EngineURL == "" {
		return &discount.RuleEngine{
			Source:   &discount.PgRuleStore{Pool: pool},
			Coupons:  coupons,
			CacheTTL: cfg.Discounts.RuleCacheTTL,
			Logger:   logger,
		}, nil
	}
	breaker := resilience.NewBreaker(cfg.Discounts.BreakerRequests, cfg.Discounts.BreakerRatio, cfg.Discounts.BreakerOpenFor).
		WithTarget("discount_engine").
		WithLogger(logger)
	return &discount.HTTPEngine{
		Endpoint: cfg.Discounts.EngineURL,
		Client: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     breaker,
			MaxAttempts: cfg.Discounts.EngineRetries + 1,
			BaseBackoff: 50 * time.Millisecond,
			Jitter:      0.2,
			Timeout:     cfg.Discounts.EngineTimeout,
		},
	}, breaker
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

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
