package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluerp/bluecore/internal/handlers"
	"github.com/bluerp/bluecore/internal/infrastructure/config"
	"github.com/bluerp/bluecore/internal/infrastructure/database"
	"github.com/bluerp/bluecore/internal/infrastructure/logging"
	"github.com/bluerp/bluecore/internal/infrastructure/metrics"
	"github.com/bluerp/bluecore/internal/repositories/postgres"
	"github.com/bluerp/bluecore/internal/services/authorization"
	"github.com/bluerp/bluecore/internal/services/forecast"
	"github.com/bluerp/bluecore/internal/services/insight"
	"github.com/bluerp/bluecore/internal/services/narrative"
	"github.com/bluerp/bluecore/internal/services/policy"
	"github.com/bluerp/bluecore/internal/services/vector"
	"github.com/bluerp/bluecore/pkg/cache/memorycache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultEnv = "dev"

func main() {
	// Get environment from ENV variable or use default
	env := os.Getenv("ENV")
	if env == "" {
		env = defaultEnv
	}

	// Initialize configuration
	if err := config.InitConfig(env); err != nil {
		log.Fatalf("Failed to initialize config: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.Init(cfg.LogLevel)

	// Connect to database
	pg, err := database.NewPostgres(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pg.Close()

	logger.Info("connected to database",
		"user", cfg.Database.User,
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Database)

	// Initialize repositories
	policyRepo := postgres.NewPostgresPolicyRepository(pg.DB)
	seriesRepo := postgres.NewPostgresSeriesRepository(pg.DB)
	recordRepo := postgres.NewPostgresRecordRepository(pg.DB)

	// Initialize permission services
	celEngine, err := authorization.NewCELEngine()
	if err != nil {
		log.Fatalf("Failed to create CEL engine: %v", err)
	}
	store := policy.NewStoreWithRepository(celEngine, policyRepo)
	if err := store.Load(context.Background()); err != nil {
		log.Fatalf("Failed to load policy: %v", err)
	}
	engine := authorization.NewEngine(celEngine)

	// Follow policy writes made by other instances
	watcher := database.NewPolicyWatcher(store, cfg.Database.ConnectionString(), 5*time.Minute, logger)
	if err := watcher.Start(); err != nil {
		log.Fatalf("Failed to start policy watcher: %v", err)
	}
	defer watcher.Stop()

	var checker *authorization.Checker
	collector := metrics.NewCollector()
	if cfg.Cache.Enabled {
		decisionCache := memorycache.New(memorycache.Config{
			MaxEntries: cfg.Cache.MaxEntries,
			DefaultTTL: time.Duration(cfg.Cache.TTLMinutes) * time.Minute,
		})
		defer decisionCache.Close()
		collector.SetCache(decisionCache)
		checker = authorization.NewCheckerWithCache(engine, store, decisionCache,
			time.Duration(cfg.Cache.TTLMinutes)*time.Minute)
	} else {
		checker = authorization.NewChecker(engine, store)
	}

	// Initialize AI pipeline
	embedder, err := vector.NewFeatureEmbedder(cfg.Vector.Features...)
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}
	index, err := vector.NewIndex(embedder.Dimension(), vector.Metric(cfg.Vector.Metric))
	if err != nil {
		log.Fatalf("Failed to create vector index: %v", err)
	}
	indexer, err := vector.NewIndexer(index, embedder)
	if err != nil {
		log.Fatalf("Failed to create indexer: %v", err)
	}

	// Rebuild the embedding index from stored records
	records, err := recordRepo.List(context.Background())
	if err != nil {
		log.Fatalf("Failed to load business records: %v", err)
	}
	for _, record := range records {
		if err := indexer.Sync(record.ID, record.Attributes); err != nil {
			logger.Warn("skipping unembeddable record", "record_id", record.ID, "error", err)
		}
	}
	logger.Info("embedding index rebuilt", "records", index.Len())

	exporter := metrics.NewPrometheusExporter(collector)
	forecaster := forecast.NewService(seriesRepo, forecast.Config{
		MinHistory: cfg.Forecast.MinHistory,
		Workers:    cfg.Forecast.Workers,
	}, logger)
	aggregator := insight.NewAggregator(index, forecaster, checker, store, insight.Config{
		Timeout:      time.Duration(cfg.Insight.TimeoutSeconds) * time.Second,
		DefaultLimit: cfg.Insight.DefaultLimit,
		Metrics:      exporter,
	}, logger)
	summarizer := narrative.NewSummarizer(narrative.Config{
		Enabled: cfg.Narrative.Enabled,
		APIKey:  cfg.Narrative.APIKey,
		BaseURL: cfg.Narrative.BaseURL,
		Model:   cfg.Narrative.Model,
	}, logger)

	// Assemble the HTTP API
	router := handlers.NewRouter(
		handlers.NewCheckHandler(checker, collector, exporter),
		handlers.NewInsightHandler(aggregator, summarizer),
		handlers.NewPolicyHandler(store),
		handlers.NewRecordHandler(recordRepo, indexer),
		collector,
		exporter,
		map[string]handlers.HealthChecker{"database": pg},
	)

	apiServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	// Metrics server on its own port
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler: metricsMux,
	}

	// Refresh gauge metrics periodically
	gaugeDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				exporter.Update()
			case <-gaugeDone:
				return
			}
		}
	}()

	serverErrors := make(chan error, 2)
	go func() {
		logger.Info("API server listening", "addr", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("API server error: %w", err)
		}
	}()
	go func() {
		logger.Info("metrics server listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- fmt.Errorf("metrics server error: %w", err)
		}
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErrors:
		log.Fatalf("Server error: %v", err)
	case sig := <-sigChan:
		logger.Info("received signal, initiating graceful shutdown", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		close(gaugeDone)
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}

		logger.Info("shutdown complete")
	}
}
