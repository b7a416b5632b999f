package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	fulfillmentapp "github.com/reconcile/backend/internal/application/fulfillment"
	identityapp "github.com/reconcile/backend/internal/application/identity"
	ingestapp "github.com/reconcile/backend/internal/application/ingest"
	ledgerapp "github.com/reconcile/backend/internal/application/ledger"
	lotapp "github.com/reconcile/backend/internal/application/lot"
	"github.com/reconcile/backend/internal/domain/ledger"
	"github.com/reconcile/backend/internal/domain/shared"
	"github.com/reconcile/backend/internal/infrastructure/cache"
	"github.com/reconcile/backend/internal/infrastructure/config"
	"github.com/reconcile/backend/internal/infrastructure/event"
	"github.com/reconcile/backend/internal/infrastructure/logger"
	"github.com/reconcile/backend/internal/infrastructure/persistence"
	"github.com/reconcile/backend/internal/infrastructure/refdata"
	"github.com/reconcile/backend/internal/infrastructure/telemetry"
	"github.com/reconcile/backend/internal/interfaces/http/handler"
	"github.com/reconcile/backend/internal/interfaces/http/middleware"
	"github.com/reconcile/backend/internal/interfaces/http/router"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting reconciliation backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Initialize tracing
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Initialize metrics
	meterProvider, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(shutdownCtx); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	// Continuous profiling
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:             cfg.Profiling.Enabled,
		ServerAddress:       cfg.Profiling.ServerAddress,
		ApplicationName:     cfg.Profiling.ApplicationName,
		BasicAuthUser:       cfg.Profiling.BasicAuthUser,
		BasicAuthPassword:   cfg.Profiling.BasicAuthPassword,
		ProfileCPU:          true,
		ProfileAllocObjects: true,
		ProfileAllocSpace:   true,
		ProfileInuseObjects: true,
		ProfileInuseSpace:   true,
		ProfileGoroutines:   true,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()
	if cfg.Profiling.Enabled {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Warn("Failed to enable span profiles", zap.Error(err))
		}
	}

	// Create GORM logger backed by zap
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Database query tracing
	if cfg.Telemetry.DBTraceEnabled {
		dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		}, log)
		if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
			log.Fatal("Failed to register database tracing", zap.Error(err))
		}
	}

	// Database pool and query metrics
	dbMetrics, err := telemetry.RegisterDBMetrics(db.DB, meterProvider, telemetry.DBMetricsConfig{
		Enabled:            cfg.Telemetry.Enabled,
		SlowQueryThreshold: cfg.Telemetry.DBSlowQueryThresh,
	}, log)
	if err != nil {
		log.Fatal("Failed to register database metrics", zap.Error(err))
	}
	if dbMetrics != nil {
		dbMetrics.StartPoolStatsCollection(context.Background())
		defer dbMetrics.Stop()
	}

	// Redis-backed caches. The fallback flag trades durability for
	// availability in development setups without Redis.
	cacheFactory := cache.NewFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.Event.AllowMemoryFallback),
	)

	idempotencyStore, err := cacheFactory.CreateIdempotencyStore()
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}

	var rollupCache ledger.RollupCache
	if cfg.Reconcile.RollupCacheBackend == "redis" {
		rollupCache, err = cacheFactory.CreateRollupCache(cfg.Reconcile.RollupCacheTTL)
		if err != nil {
			log.Fatal("Failed to create rollup cache", zap.Error(err))
		}
	} else {
		rollupCache = cache.NewInMemoryRollupCache(cfg.Reconcile.RollupCacheTTL)
	}

	// Initialize repositories
	identityRepo := persistence.NewGormCanonicalIdentityRepository(db.DB)
	mergeRepo := persistence.NewGormMergeCandidateRepository(db.DB)
	mergeScope := persistence.NewGormMergeScope(db.DB)
	orderRepo := persistence.NewGormOrderRepository(db.DB)
	distributionRepo := persistence.NewGormDistributionRecordRepository(db.DB)
	lotReferenceRepo := persistence.NewGormLotReferenceRepository(db.DB)
	ledgerRepo := persistence.NewGormLedgerRepository(db.DB)
	runRepo := persistence.NewGormRunRepository(db.DB)

	// Lot reference snapshot source. Nil when no source is configured;
	// canonicalization then runs against whatever snapshot is stored.
	refdataSource, err := refdata.NewSource(&cfg.Refdata, refdata.WithLogger(log))
	if err != nil {
		log.Fatal("Failed to initialize reference data source", zap.Error(err))
	}

	// Initialize event bus
	eventBus := event.NewInMemoryEventBus(log)

	// Initialize application services
	resolutionService := identityapp.NewResolutionService(identityRepo, mergeRepo, eventBus, log,
		identityapp.ResolutionConfig{
			WeakPrefixLen: cfg.Reconcile.WeakPrefixLen,
		})
	mergeService := identityapp.NewMergeService(mergeScope, identityRepo, mergeRepo, eventBus, log)
	snapshotService := lotapp.NewSnapshotService(lotReferenceRepo, runRepo, refdataSource, eventBus, log)
	matcherService := fulfillmentapp.NewMatcherService(orderRepo, distributionRepo, identityRepo, eventBus, log,
		fulfillmentapp.MatcherConfig{})
	orderService := fulfillmentapp.NewOrderService(orderRepo, resolutionService, matcherService, eventBus, log)
	distributionService := fulfillmentapp.NewDistributionService(distributionRepo, snapshotService, matcherService, eventBus, log)
	ledgerService := ledgerapp.NewLedgerService(ledgerRepo, snapshotService, rollupCache, log,
		ledgerapp.LedgerConfig{
			DefaultMinYear: cfg.Reconcile.DefaultMinYear,
			RollupTTL:      cfg.Reconcile.RollupCacheTTL,
		})
	runService := ingestapp.NewRunService(runRepo, eventBus, log)
	batchService := ingestapp.NewBatchService(runRepo, orderService, distributionService, eventBus, log,
		ingestapp.BatchConfig{
			PageSize:  cfg.Reconcile.IngestPageSize,
			MaxRows:   cfg.Reconcile.IngestMaxRows,
			MaxErrors: cfg.Reconcile.IngestMaxErrors,
		})

	// Register event handlers for cross-context integration
	// New matches and merges make cached rollup windows stale
	rollupInvalidation := event.NewRollupInvalidationHandler(rollupCache, log)
	eventBus.Subscribe(event.NewIdempotentHandler(rollupInvalidation, idempotencyStore, log,
		event.WithIdempotencyConfig(shared.IdempotencyConfig{
			TTL:     cfg.Event.IdempotencyTTL,
			Enabled: true,
		})))

	// Domain events feed the reconciliation counters
	if cfg.Telemetry.Enabled {
		reconMetrics, err := telemetry.NewReconciliationMetrics(telemetry.ReconciliationMetricsConfig{
			Meter:           meterProvider.Meter("reconciliation"),
			Logger:          log,
			BacklogProvider: telemetry.NewGormBacklogMetricsProvider(db.DB),
		})
		if err != nil {
			log.Fatal("Failed to initialize reconciliation metrics", zap.Error(err))
		}
		eventBus.Subscribe(telemetry.NewEventMetricsHandler(reconMetrics, log))
		reconMetrics.StartPeriodicCollection(context.Background(), 0)
		defer reconMetrics.Stop()
	}

	log.Info("Event handlers registered",
		zap.Strings("rollup_invalidation_events", rollupInvalidation.EventTypes()),
	)

	// Start event bus
	if err := eventBus.Start(context.Background()); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	// Runs left processing by a crashed instance block nothing, but they
	// confuse operators; fail them before taking traffic.
	recovered, err := runService.RecoverStale(context.Background(), cfg.Reconcile.StaleRunAge)
	if err != nil {
		log.Warn("Failed to recover stale runs", zap.Error(err))
	} else if recovered > 0 {
		log.Info("Recovered stale ingestion runs", zap.Int("count", recovered))
	}

	// Optional snapshot refresh at boot. A failure degrades lot
	// canonicalization to the stored snapshot, so it is not fatal.
	if cfg.Refdata.SyncOnStart && refdataSource != nil {
		if resp, err := snapshotService.SyncFromSource(context.Background()); err != nil {
			log.Warn("Reference snapshot sync failed", zap.Error(err))
		} else {
			log.Info("Reference snapshot synced",
				zap.String("run_id", resp.RunID.String()),
				zap.Int("references", resp.References),
				zap.Int("corrections", resp.Corrections),
			)
		}
	}

	// Initialize HTTP handlers
	identityHandler := handler.NewIdentityHandler(resolutionService)
	mergeHandler := handler.NewMergeHandler(mergeService)
	orderHandler := handler.NewOrderHandler(orderService, distributionService)
	distributionHandler := handler.NewDistributionHandler(distributionService)
	lotHandler := handler.NewLotHandler(snapshotService)
	ledgerHandler := handler.NewLedgerHandler(ledgerService)
	ingestHandler := handler.NewIngestHandler(batchService, runService)
	systemHandler := handler.NewSystemHandler(db)

	// Set Gin mode based on environment
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	// Initialize router with custom middleware
	engine := gin.New()

	// Configure trusted proxies
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Apply middleware stack in order:
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Tracing - Open the request span, inject attributes, mark errors
	// 4. Logger - Log requests
	// 5. Security - Add security headers
	// 6. Metrics - Record request measurements
	// 7. Profiling - Attach pprof labels
	// 8. CORS - Handle cross-origin requests
	// 9. BodyLimit - Limit request body size
	// 10. RateLimit - Apply rate limiting (if enabled)
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.TracingAttributeInjector())
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: meterProvider,
		ServiceName:   cfg.Telemetry.ServiceName,
		Enabled:       cfg.Telemetry.Enabled,
	}))
	profilingConfig := middleware.DefaultProfilingConfig()
	profilingConfig.Enabled = cfg.Profiling.Enabled
	engine.Use(middleware.ProfilingWithConfig(profilingConfig))

	// Configure CORS from config
	corsConfig := middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	engine.Use(middleware.CORSWithConfig(corsConfig))

	// Body size limit
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Rate limiting (if enabled)
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Health check endpoint (outside API versioning)
	engine.GET("/health", healthHandler(db, log))

	// Setup API routes using router
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(identityHandler).
		Register(mergeHandler).
		Register(orderHandler).
		Register(distributionHandler).
		Register(lotHandler).
		Register(ledgerHandler).
		Register(ingestHandler).
		Register(systemHandler)
	r.Setup()

	// Also keep a simple ping at root API level for basic health checks
	engine.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// healthHandler returns a handler for health check endpoints
func healthHandler(db *persistence.Database, _ *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqLog := logger.GetGinLogger(c)
		if err := db.Ping(); err != nil {
			reqLog.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"time":     time.Now().Format(time.RFC3339),
				"database": "error",
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"time":     time.Now().Format(time.RFC3339),
			"database": "ok",
		})
	}
}
