// Package main is the entrypoint for the QR redirect service.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/marcel-gle/gb-qr-tracker/internal/aggregate"
	"github.com/marcel-gle/gb-qr-tracker/internal/analytics"
	"github.com/marcel-gle/gb-qr-tracker/internal/backend"
	"github.com/marcel-gle/gb-qr-tracker/internal/cache"
	"github.com/marcel-gle/gb-qr-tracker/internal/config"
	"github.com/marcel-gle/gb-qr-tracker/internal/geo"
	"github.com/marcel-gle/gb-qr-tracker/internal/handler"
	"github.com/marcel-gle/gb-qr-tracker/internal/housekeeping"
	"github.com/marcel-gle/gb-qr-tracker/internal/metrics"
	"github.com/marcel-gle/gb-qr-tracker/internal/middleware"
	"github.com/marcel-gle/gb-qr-tracker/internal/server"
	"github.com/marcel-gle/gb-qr-tracker/internal/service"
	"github.com/marcel-gle/gb-qr-tracker/internal/signature"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	st, err := backend.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	rc, err := backend.OpenCache(ctx, cfg, logger)
	if err != nil {
		_ = st.Close(ctx)
		return err
	}

	recorder := metrics.NewInMemory()

	// Housekeeping
	scheduler := housekeeping.New(st, logger, housekeeping.WithMetrics(recorder))
	if err := scheduleJobs(scheduler, cfg); err != nil {
		if rc != nil {
			_ = rc.Close()
		}
		_ = st.Close(ctx)
		return err
	}

	// Hit derivation
	locator, closeGeo := initGeo(cfg, logger)
	deriver := analytics.NewRecorder(analytics.RecorderConfig{
		Locator:             locator,
		StoreIPHash:         cfg.StoreIPHash,
		IPHashSalt:          cfg.IPHashSalt,
		HitTTL:              cfg.HitTTL(),
		SyntheticUserAgents: cfg.SyntheticUserAgents,
	})
	updater := aggregate.NewUpdater(st, recorder, logger)

	var (
		sink   analytics.Sink = updater
		worker *analytics.StreamWorker
	)
	if cfg.AnalyticsMode == config.AnalyticsStream {
		sink = analytics.NewStreamPublisher(rc.Client(), logger, recorder)
		worker = analytics.NewStreamWorker(rc.Client(), updater, logger, analytics.NewConsumerID(), recorder)
		go func() {
			if err := worker.Run(ctx); err != nil {
				logger.Error("stream worker stopped", "error", err)
			}
		}()
	}

	dispatcher := analytics.NewDispatcher(deriver, sink, logger,
		analytics.WithWorkers(cfg.AnalyticsWorkers),
		analytics.WithQueueSize(cfg.AnalyticsQueueSize),
		analytics.WithDispatcherMetrics(recorder),
	)
	dispatcher.Start()
	scheduler.Start()

	// Resolution
	var linkOpts []service.LinkServiceOption
	if rc != nil && rc.LinkCachingEnabled() {
		linkOpts = append(linkOpts, service.WithLinkCache(rc))
	}
	linkService := service.NewLinkService(st, logger, recorder, linkOpts...)

	verifier := signature.NewVerifier(cfg.WorkerHMACSecret,
		signature.WithWindow(cfg.SignatureWindow),
		signature.SignedOnly(cfg.RequireSignature),
	)
	if cfg.WorkerHMACSecret == "" {
		logger.Warn("WORKER_HMAC_SECRET not set, edge signatures cannot be verified")
	}

	// Handlers
	healthHandler := handler.NewHealthHandler(st, nil)
	if rc != nil {
		healthHandler = handler.NewHealthHandler(st, rc)
	}
	redirectHandler := handler.NewRedirectHandler(linkService, verifier, dispatcher, recorder, logger)
	metricsHandler := handler.NewMetricsHandler(recorder)

	var limiter cache.IPLimiter = cache.NewLocalLimiter()
	if rc != nil {
		limiter = rc
	}

	r := setupRouter(healthHandler, redirectHandler, metricsHandler, limiter, cfg, logger)

	srv := server.New(r, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Hooks run in reverse: the dispatcher drains before the stream worker,
	// the worker before the store closes.
	srv.OnShutdown("store", st.Close)
	if rc != nil {
		srv.OnShutdown("redis", func(context.Context) error { return rc.Close() })
	}
	if closeGeo != nil {
		srv.OnShutdown("geoip", func(context.Context) error { return closeGeo() })
	}
	srv.OnShutdown("housekeeping", scheduler.Shutdown)
	if worker != nil {
		srv.OnShutdown("stream_worker", worker.Shutdown)
	}
	srv.OnShutdown("dispatcher", dispatcher.Shutdown)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
		"store_backend", cfg.StoreBackend,
		"analytics_mode", cfg.AnalyticsMode,
		"signed_only", cfg.RequireSignature,
	)

	return srv.Run(ctx)
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// initGeo builds the geo lookup chain: the local MaxMind database first,
// then the HTTP provider. A missing database is logged and skipped.
func initGeo(cfg *config.Config, logger *slog.Logger) (geo.Locator, func() error) {
	var (
		chain    geo.Chain
		closeGeo func() error
	)
	if cfg.GeoIPDBPath != "" {
		mm, err := geo.OpenMaxMind(cfg.GeoIPDBPath, logger)
		if err != nil {
			logger.Warn("geoip database unavailable", "path", cfg.GeoIPDBPath, "error", err)
		} else {
			chain = append(chain, mm)
			closeGeo = mm.Close
		}
	}
	if cfg.GeoIPAPIURL != "" {
		chain = append(chain, geo.NewAPI(cfg.GeoIPAPIURL, cfg.GeoIPAPITimeout, logger))
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return chain, closeGeo
}

func scheduleJobs(s *housekeeping.Scheduler, cfg *config.Config) error {
	if cfg.PurgeSchedule != "" {
		if err := s.SchedulePurge(cfg.PurgeSchedule); err != nil {
			return err
		}
	}
	if cfg.RecountSchedule != "" {
		if err := s.ScheduleRecount(cfg.RecountSchedule, cfg.RecountCampaigns); err != nil {
			return err
		}
	}
	return nil
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	healthHandler *handler.HealthHandler,
	redirectHandler *handler.RedirectHandler,
	metricsHandler *handler.MetricsHandler,
	limiter cache.IPLimiter,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Hardening(cfg.IsDevelopment()))

	// Health and metrics endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/healthz", healthHandler.Health)
	r.Get("/readyz", healthHandler.Readyz)
	r.Get("/metrics", metricsHandler.Metrics)

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:  logger,
		Limiter: limiter,
		Enabled: cfg.RateLimitRedirectEnabled,
		RPS:     cfg.RateLimitRedirectRPS,
		Burst:   cfg.RateLimitRedirectBurst,
	}

	// Redirects: /?id=<identifier> from the edge relay, /<identifier> direct
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitIP(rateLimitCfg))
		r.Get("/", redirectHandler.Redirect)
		r.Get("/{identifier}", redirectHandler.Redirect)
	})

	// 404 and 405 handlers
	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}
