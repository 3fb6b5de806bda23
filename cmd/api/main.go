// Package main is the entry point for the audit pipeline API server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/vigil/internal/alert"
	"github.com/onnwee/vigil/internal/api"
	"github.com/onnwee/vigil/internal/archive"
	"github.com/onnwee/vigil/internal/audit"
	"github.com/onnwee/vigil/internal/config"
	"github.com/onnwee/vigil/internal/db"
	"github.com/onnwee/vigil/internal/detect"
	"github.com/onnwee/vigil/internal/dispatch"
	"github.com/onnwee/vigil/internal/geo"
	"github.com/onnwee/vigil/internal/jobs"
	"github.com/onnwee/vigil/internal/middleware"
	"github.com/onnwee/vigil/internal/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Vigil Audit Pipeline Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "summary", cfg.LogSummary())

	tracerProvider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  "vigil-api",
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.TracingEndpoint,
		SamplingRate: cfg.TracingSamplingRate,
		InsecureMode: cfg.TracingInsecure,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	auditMetrics := audit.NewMetrics()
	geoMetrics := geo.NewMetrics()
	detectMetrics := detect.NewMetrics()
	alertMetrics := alert.NewMetrics()
	dispatchMetrics := dispatch.NewMetrics()
	jobsMetrics := jobs.NewMetrics()
	for name, m := range map[string]interface {
		Register(prometheus.Registerer) error
	}{
		"audit":    auditMetrics,
		"geo":      geoMetrics,
		"detect":   detectMetrics,
		"alert":    alertMetrics,
		"dispatch": dispatchMetrics,
		"jobs":     jobsMetrics,
	} {
		if err := m.Register(registry); err != nil {
			logger.Error("failed to register metrics", "package", name, "error", err)
			os.Exit(1)
		}
	}

	// Store: PostgreSQL when configured, in-memory otherwise.
	var store audit.Store
	var anonymizer audit.IPAnonymizer
	var dbChecker api.HealthChecker
	if cfg.DatabaseURL != "" {
		conn, err := db.Open(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer conn.Close()
		pg := audit.NewPostgresStore(conn, logger)
		store = pg
		anonymizer = pg
		dbChecker = db.NewChecker(conn)
		logger.Info("using postgres store")
	} else {
		mem := audit.NewInMemoryStore()
		store = mem
		anonymizer = mem
		logger.Warn("DATABASE_URL not set, using in-memory store")
	}

	// Geolocation provider and cache.
	var provider geo.Provider
	switch cfg.GeoProvider {
	case "maxmind":
		mm, err := geo.NewMaxMindProvider(cfg.GeoMMDBPath)
		if err != nil {
			logger.Error("failed to open MaxMind database", "error", err, "path", cfg.GeoMMDBPath)
			os.Exit(1)
		}
		defer mm.Close()
		provider = mm
	default:
		provider = geo.NewHTTPProvider(cfg.GeoHTTPEndpoint, nil)
	}

	cacheTTL := time.Duration(cfg.GeoCacheTTLHours) * time.Hour
	var geoCache geo.Cache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		geoCache = geo.NewRedisCache(client, cacheTTL, logger)
		logger.Info("using redis geo cache", "addr", cfg.RedisAddr)
	} else {
		mem := geo.NewMemoryCache(cacheTTL)
		mem.SetReporter(jobsMetrics)
		mem.StartSweeper(time.Hour)
		defer mem.StopSweeper()
		geoCache = mem
	}

	resolver := geo.NewResolver(provider, geoCache, geo.ResolverConfig{
		DailyQuota:    cfg.GeoDailyQuota,
		LookupTimeout: time.Duration(cfg.GeoTimeoutSeconds) * time.Second,
		Logger:        logger,
		Metrics:       geoMetrics,
	})

	detectConfig := detect.DefaultConfig()
	detectConfig.BruteForceWindow = time.Duration(cfg.BruteForceWindowMinutes) * time.Minute
	detectConfig.BruteForceThreshold = cfg.BruteForceThreshold
	detectConfig.UnusualGeoWindow = time.Duration(cfg.GeoHistoryDays) * 24 * time.Hour
	detectConfig.RapidChangeWindow = time.Duration(cfg.RapidChangeWindowMinutes) * time.Minute
	detectConfig.RapidChangeThreshold = cfg.RapidChangeThreshold
	detectConfig.NightStartHour = cfg.NightStartHour
	detectConfig.NightEndHour = cfg.NightEndHour
	detectConfig.Timezone = cfg.NightTimezone
	detectConfig.BulkDownloadWindow = time.Duration(cfg.BulkWindowMinutes) * time.Minute
	detectConfig.BulkDownloadThreshold = cfg.BulkThreshold

	analyzer, err := detect.NewAnalyzer(store, detectConfig, logger, detectMetrics)
	if err != nil {
		logger.Error("invalid detector configuration", "error", err)
		os.Exit(1)
	}

	var notifier alert.Notifier
	if cfg.AlertWebhookURL != "" {
		notifier = alert.NewWebhookNotifier(cfg.AlertWebhookURL, nil)
	} else {
		notifier = alert.NewLogNotifier(logger)
	}
	aggregator := alert.NewAggregator(store, notifier, alert.Config{
		DedupWindow:      time.Duration(cfg.DedupWindowMinutes) * time.Minute,
		MaxSourceEntries: cfg.MaxSourceEntries,
		Logger:           logger,
		Metrics:          alertMetrics,
		Jobs:             jobsMetrics,
	})

	pool := dispatch.NewPool(dispatch.Config{
		Workers: cfg.Workers,
		Logger:  logger,
		Metrics: dispatchMetrics,
	})
	pool.Start(context.Background())

	pipeline, err := audit.NewPipeline(
		store,
		audit.NewEnricher(nil, logger),
		resolver,
		analyzer,
		aggregator,
		pool,
		audit.PipelineConfig{
			Logger:  logger,
			Metrics: auditMetrics,
			Jobs:    jobsMetrics,
			Tracer:  tracerProvider.Tracer("audit"),
		},
	)
	if err != nil {
		logger.Error("failed to build pipeline", "error", err)
		os.Exit(1)
	}

	retention := audit.NewRetentionJob(audit.RetentionJobConfig{
		RetentionDays: cfg.RetentionDays,
		Logger:        logger,
		Reporter:      jobsMetrics,
	}, anonymizer)
	retention.Start(context.Background())

	// Export archiving is optional; without it /v1/exports only serves
	// direct downloads.
	var archiver api.Archiver
	if cfg.ArchiveBucketName != "" {
		svc, err := archive.NewService(archive.ServiceConfig{
			BucketName:      cfg.ArchiveBucketName,
			AccessKeyID:     cfg.ArchiveAccessKeyID,
			SecretAccessKey: cfg.ArchiveSecretAccessKey,
			Endpoint:        cfg.ArchiveEndpoint,
		})
		if err != nil {
			logger.Error("failed to configure export archiving", "error", err)
			os.Exit(1)
		}
		archiver = svc
		logger.Info("export archiving enabled", "bucket", cfg.ArchiveBucketName)
	}

	eventHandlers := api.NewEventHandlers(pipeline)
	alertHandlers := api.NewAlertHandlers(store)
	exportHandlers := api.NewExportHandlers(store, archiver, jobsMetrics)
	healthHandlers := api.NewHealthHandlers(dbChecker)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/events", eventHandlers.CreateEvent)
	mux.HandleFunc("/v1/alerts", alertHandlers.ListAlerts)
	mux.HandleFunc("/v1/exports", exportHandlers.Export)
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// Middleware chain: Tracing -> RequestID -> Logging.
	handler := middleware.Tracing("vigil-api")(
		middleware.RequestID(middleware.Logging(logger)(mux)),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Drain queued analysis before stopping background jobs.
	pool.Stop()
	retention.Stop()

	if err := tracerProvider.Shutdown(ctx); err != nil {
		logger.Error("tracer shutdown failed", "error", err)
	}

	logger.Info("server stopped")
}
