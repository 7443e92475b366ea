package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/unrolled/secure"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/shopfront/pkg/auth"
	"github.com/platinummonkey/shopfront/pkg/config"
	"github.com/platinummonkey/shopfront/pkg/httputil"
	"github.com/platinummonkey/shopfront/pkg/middleware"
	"github.com/platinummonkey/shopfront/pkg/observability"
	"github.com/platinummonkey/shopfront/pkg/rbac"
	"github.com/platinummonkey/shopfront/pkg/routing"
	"github.com/platinummonkey/shopfront/pkg/storage/postgres"
	"github.com/platinummonkey/shopfront/pkg/storefront"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Fatal("Shopfront exited")
	}
}

func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	obs := cfg.Observability
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        obs.OTelEnabled,
		Endpoint:       obs.OTelEndpoint,
		ServiceName:    obs.OTelServiceName,
		ServiceVersion: obs.OTelServiceVersion,
		Insecure:       obs.OTelInsecure,
		SampleRatio:    obs.OTelSampleRatio,
	}, logger)
	if err != nil {
		return err
	}

	db, err := postgres.Open(ctx, postgres.ConnectionConfig{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxOpenConns,
		MinConns:    cfg.Database.MaxIdleConns,
		Timeout:     cfg.Database.ConnectTimeout,
		MaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	logger.Info("Database connected")

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient, err = postgres.NewRedisClient(ctx, postgres.RedisConfig{
			URL:      cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err != nil {
			db.Close()
			return err
		}
		logger.Info("Redis connected")
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if obs.MetricsEnabled {
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	table := routing.NewTable()
	storefront.RegisterRoutes(table)

	rbacConfig := rbac.DefaultConfig()
	rbacConfig.QueryTimeout = cfg.Database.QueryTimeout
	rbacConfig.SeedEnabled = cfg.Bootstrap.SeedEnabled
	if cfg.Bootstrap.SeedFile != "" {
		seed, err := rbac.LoadSeedFile(cfg.Bootstrap.SeedFile)
		if err != nil {
			return err
		}
		rbacConfig.Seed = seed
	}

	manager := rbac.NewManager(db, table, metrics, logger, rbacConfig)
	manager.WithMutationMiddleware(httputil.Chain(
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(cfg.Server.MaxBodyBytes),
		mutationRateLimiter(ctx, cfg, redisClient, logger).Handler,
	))
	manager.RegisterRoutes(table)

	if err := manager.Initialize(ctx); err != nil {
		return err
	}
	if _, err := manager.Bootstrap(ctx); err != nil {
		return err
	}

	authn := middleware.NewAuthMiddleware(auth.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer), logger)
	table.Router().Use(observability.HTTPMetricsMiddleware(metrics), authn.Handler, manager.Middleware())

	apiServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      apiHandler(cfg, table, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisClient, obs.OTelServiceVersion))
	observability.RegisterMetricsEndpoint(healthMux, registry)
	healthServer := &http.Server{
		Addr:        cfg.Server.HealthAddr(),
		Handler:     healthMux,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(obs.InventorySchedule, func() {
		defer observability.RecoverPanic(logger, "inventory job")
		refreshInventory(ctx, manager, db, metrics, logger)
	}); err != nil {
		return fmt.Errorf("invalid inventory schedule: %w", err)
	}
	refreshInventory(ctx, manager, db, metrics, logger)
	scheduler.Start()

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	shutdown.Register("cron", func(ctx context.Context) error {
		select {
		case <-scheduler.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.Register("api server", apiServer.Shutdown)
	shutdown.Register("health server", healthServer.Shutdown)
	shutdown.Register("opentelemetry", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers)
	})
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("database", func(context.Context) error { return db.Close() })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("Starting API server")
		return listen(apiServer)
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Starting health server")
		return listen(healthServer)
	})
	g.Go(func() error {
		return shutdown.Wait(gctx)
	})

	err = g.Wait()
	logger.Info("Shopfront stopped")
	return err
}

// apiHandler wraps the route table with the middleware that runs before routing
func apiHandler(cfg *config.Config, table *routing.Table, logger logrus.FieldLogger) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Server.SSLRedirect,
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
		STSSeconds:         stsSeconds(cfg.Server.SSLRedirect),
	})

	handler := httputil.Chain(
		httputil.RecoveryMiddleware(logger),
		httputil.RequestIDMiddleware(logger),
		httputil.LoggingMiddleware(logger),
		httputil.CORSMiddleware(cfg.Server.CORSOrigins),
		secureMiddleware.Handler,
	)(table)

	return otelhttp.NewHandler(handler, "shopfront")
}

func stsSeconds(sslRedirect bool) int64 {
	if sslRedirect {
		return 31536000
	}
	return 0
}

// mutationRateLimiter shares counters through Redis when configured
func mutationRateLimiter(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger logrus.FieldLogger) *middleware.RateLimitMiddleware {
	limits := middleware.AdminMutationRateLimitConfig(cfg.RateLimit.AdminMutationsPerMinute)
	if redisClient != nil {
		return middleware.NewRateLimitMiddleware(middleware.NewDistributedRateLimiter(redisClient, limits, "shopfront:ratelimit:admin"), logger)
	}

	limiter := middleware.NewRateLimiter(limits)
	limiter.StartCleanup(ctx)
	return middleware.NewRateLimitMiddleware(limiter, logger)
}

func refreshInventory(ctx context.Context, manager *rbac.Manager, db *sql.DB, metrics *observability.Metrics, logger logrus.FieldLogger) {
	if _, err := manager.RefreshInventory(ctx); err != nil {
		logger.WithError(err).Warn("Failed to refresh permission inventory")
	}
	stats := db.Stats()
	metrics.SetDBStats(stats.OpenConnections, stats.InUse)
}

func listen(server *http.Server) error {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", server.Addr, err)
	}
	return nil
}
