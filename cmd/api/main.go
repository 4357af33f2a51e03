package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/quickoffer/leadgen/internal/api/router"
	appconfig "github.com/quickoffer/leadgen/internal/config"
	"github.com/quickoffer/leadgen/internal/crm"
	httpmiddleware "github.com/quickoffer/leadgen/internal/http/middleware"
	"github.com/quickoffer/leadgen/internal/leads"
	"github.com/quickoffer/leadgen/internal/observability/metrics"
	"github.com/quickoffer/leadgen/internal/phoneverify"
	"github.com/quickoffer/leadgen/pkg/logging"
)

func main() {
	// .env is a local development convenience; in deployment the
	// environment is provided by the platform.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting leadgen API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	// Rate limiter counters live in Redis when configured so limits hold
	// across processes; otherwise counts are per-process.
	var counterStore httpmiddleware.CounterStore
	if cfg.RedisAddr != "" {
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		counterStore = httpmiddleware.NewRedisStore(redis.NewClient(opts))
		logger.Info("rate limiter using redis", "addr", cfg.RedisAddr)
	} else {
		counterStore = httpmiddleware.NewMemoryStore()
		logger.Info("rate limiter using in-process counters")
	}
	limiter := httpmiddleware.NewLimiter(counterStore, cfg.RateLimitMaxRequests, cfg.RateLimitWindow, logger)

	leadMetrics := metrics.NewLeadMetrics(nil)

	verifyClient := phoneverify.NewClient(phoneverify.Config{
		BaseURL: cfg.PhoneValidationBaseURL,
		APIKey:  cfg.PhoneValidationAPIKey,
		Logger:  logger,
	})
	crmClient := crm.NewClient(crm.Config{
		BaseURL:    cfg.CRMBaseURL,
		APIKey:     cfg.CRMAPIKey,
		LocationID: cfg.CRMLocationID,
		Logger:     logger,
	})

	leadService := leads.NewService(crmClient, logger)
	leadsHandler := leads.NewHandler(leadService, limiter, logger, leadMetrics, !cfg.IsProduction())
	phoneHandler := phoneverify.NewHandler(verifyClient, logger, leadMetrics)

	r := router.New(&router.Config{
		Logger:             logger,
		LeadsHandler:       leadsHandler,
		PhoneHandler:       phoneHandler,
		Limiter:            limiter,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		MapsAPIKey:         cfg.MapsAPIKey,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
