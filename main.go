// api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cmsanalytics/api/analytics"
	"cmsanalytics/api/cache"
	"cmsanalytics/api/config"
	"cmsanalytics/api/database"
	"cmsanalytics/api/handlers"
	"cmsanalytics/api/metrics"
	"cmsanalytics/api/middleware"
	"cmsanalytics/api/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

func newLogger(cfg config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if cfg.AppEnv == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	logger := newLogger(cfg)

	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	// --- Initialize PostgreSQL Database (source of truth for analytics) ---
	dbClient, err := database.NewPostgresDB(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize PostgreSQL database: %v", err)
	}
	defer dbClient.Close()

	if err := database.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, logger); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(dbClient.DB, "cmsdb"),
	)
	appMetrics := metrics.NewMetrics(registry)

	opts := analytics.Options{
		Store:    store.NewAnalyticsStore(dbClient.DB, logger),
		Metrics:  appMetrics,
		Location: loc,
		Logger:   logger,
	}

	// --- Optional ClickHouse mirror of every beacon ---
	if cfg.ClickHouseEnabled() {
		chClient, err := database.NewClickHouseDB(cfg, logger)
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, beacon mirror disabled")
		} else {
			defer chClient.Close()
			mirror := store.NewClickHouseMirror(chClient, logger)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := mirror.EnsureSchema(ctx); err != nil {
				logger.WithError(err).Warn("ClickHouse schema check failed")
			}
			cancel()
			opts.Mirror = mirror
		}
	}

	// --- Optional Redis cache for dashboard reports ---
	if cfg.RedisURL != "" && cfg.CacheTTL > 0 {
		rdb, err := database.InitRedis(cfg.RedisURL, cfg.RedisPassword, 0)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, report cache disabled")
		} else {
			defer rdb.Close()
			opts.Cache = cache.NewRedisCache(rdb, cfg.CacheTTL)
		}
	}

	geo, err := analytics.NewGeoIPLocator(cfg.GeoIPDBPath, logger)
	if err != nil {
		logger.WithError(err).Warn("GeoIP database unavailable, country lookup disabled")
		geo, _ = analytics.NewGeoIPLocator("", logger)
	}
	defer geo.Close()
	opts.Enricher = analytics.Enricher{Geo: geo, AnonymizeIP: cfg.AnonymizeIP}

	if cfg.AdminKey == "" && cfg.JWTSecret == "" {
		logger.Warn("Neither AUTH_DEFAULT nor JWT_SECRET_KEY is set; dashboard endpoints will reject every request")
	}

	appCtx, stop := context.WithCancel(context.Background())
	defer stop()

	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.TrackRateLimit), cfg.TrackRateBurst)
	limiter.StartCleanup(appCtx, 10*time.Minute, 30*time.Minute)

	analyticsHandlers := handlers.NewAnalyticsHandlers(analytics.NewService(opts), logger)
	r := handlers.SetupRouter(analyticsHandlers, handlers.RouterConfig{
		AdminKey:       cfg.AdminKey,
		JWTSecret:      []byte(cfg.JWTSecret),
		FrontendOrigin: cfg.FrontendOrigin,
		Limiter:        limiter,
		Metrics:        appMetrics,
		Registry:       registry,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Analytics API server starting on http://localhost:%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Analytics API server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exiting.")
}
