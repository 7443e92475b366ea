// Package observability provides structured logging, Prometheus metrics, OpenTelemetry
// setup, health checks and graceful shutdown.
//
// # Logging
//
//	logger, err := observability.NewLogger("info", "json", os.Stdout)
//	log := observability.LoggerFromContext(r.Context(), logger)
//	log.WithField("role_id", roleID).Info("Permission added to role")
//
// # Metrics
//
// Metrics methods are nil-safe, so components accept a *Metrics that tests leave nil.
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	metrics.RecordAuthzDecision("forbidden", "not_granted")
//
// # Health
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(healthMux, checker)
//
// # Shutdown
//
//	sm := observability.NewShutdownManager(logger, 30*time.Second)
//	sm.Register("http", server.Shutdown)
//	sm.Register("database", func(context.Context) error { return db.Close() })
//	err := sm.Wait(ctx)
package observability
