package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/motor-valuation/internal/app"
	"github.com/noah-isme/motor-valuation/internal/auth"
	"github.com/noah-isme/motor-valuation/internal/baseprice"
	"github.com/noah-isme/motor-valuation/internal/brandconfig"
	"github.com/noah-isme/motor-valuation/internal/common"
	"github.com/noah-isme/motor-valuation/internal/config"
	"github.com/noah-isme/motor-valuation/internal/events"
	"github.com/noah-isme/motor-valuation/internal/health"
	"github.com/noah-isme/motor-valuation/internal/items"
	"github.com/noah-isme/motor-valuation/internal/lock"
	"github.com/noah-isme/motor-valuation/internal/nonstd"
	"github.com/noah-isme/motor-valuation/internal/obs"
	"github.com/noah-isme/motor-valuation/internal/pricelog"
	"github.com/noah-isme/motor-valuation/internal/ratelimit"
	"github.com/noah-isme/motor-valuation/internal/security"
)

const serviceName = "motor-valuation-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := app.Logger(cfg, "api")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsEnabled {
		obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, nil)
	}
	tracingEnabled, shutdownTracer := app.InitTracing(ctx, cfg, serviceName, logger)
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}()

	if err := app.RunMigrations(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("migrate database")
	}

	startCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := app.NewPool(startCtx, cfg, serviceName)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise database")
	}
	defer pool.Close()

	redisClient, err := app.NewRedis(startCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise redis")
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	taskRedis, err := app.TaskRedis(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise task queue")
	}
	taskClient := asynq.NewClient(taskRedis)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	catalogs := brandconfig.NewCachedStore(brandconfig.NewPGStore(pool), redisClient, cfg.BrandConfigCacheTTL, &logger)
	bus := &events.Bus{Notifiers: []events.Notifier{events.LogNotifier{Logger: &logger}}}

	service, err := nonstd.NewService(nonstd.ServiceConfig{
		Catalogs:  catalogs,
		Prices:    baseprice.PGSource{DB: pool, PriceList: cfg.BasePriceList},
		Items:     items.NewPGStore(pool),
		Repo:      nonstd.NewPGRepository(pool, bus),
		PriceLogs: pricelog.NewPGStore(pool),
		Locker:    lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff, MaxWait: cfg.LockTTL},
		LockTTL:   cfg.LockTTL,
		Scheduler: items.Scheduler{Client: taskClient, MaxRetry: cfg.QueueMaxRetry},
		Logger:    &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise valuation service")
	}
	handler := nonstd.NewHandler(nonstd.HandlerConfig{Service: service})

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, 30*time.Second)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token verifier")
	}
	authMiddleware := auth.Middleware{Parser: verifier}

	limiter, err := ratelimit.NewRedisLimiter(redisClient, "ratelimit:", cfg.RateLimitWindow, cfg.RateLimitMax)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}
	rateLimit := ratelimit.Handler{
		Limiter: limiter,
		OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}
	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	var httpMetrics *obs.HTTPMetrics
	if cfg.MetricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(cfg.MetricsNamespace, obs.ParseBucketsCSV(cfg.MetricsBucketsMS), nil)
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
		AllowedOrigins: allowedOrigins(cfg),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders: []string{"Location", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		MaxAge:         300,
	}))
	r.Use(security.Headers{EnableHSTS: cfg.AppEnv == "production"}.Middleware)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	healthHandler := health.Handler{Checks: []health.Check{
		{Name: "database", Probe: health.PostgresProbe(pool)},
		{Name: "redis", Probe: health.RedisProbe(redisClient), Timeout: 300 * time.Millisecond},
	}}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.BodyLimit{Max: cfg.BodyLimitBytes}.Middleware)
		v.Use(authMiddleware.Authenticate)
		handler.Routes(v, func(w chi.Router) {
			w.Use(rateLimit.Middleware)
			w.Use(idem.Middleware)
		})
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}()

	<-ctx.Done()
	health.SetReady(false)
	logger.Info().Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
