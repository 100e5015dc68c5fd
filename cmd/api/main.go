package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking/internal/api/router"
	"github.com/wolfman30/clinic-booking/internal/app/bootstrap"
	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/catalog"
	"github.com/wolfman30/clinic-booking/internal/clinicapi"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/internal/observability/metrics"
	"github.com/wolfman30/clinic-booking/internal/session"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting clinic booking API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"slot_mode", cfg.SlotMode,
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	metricsHandler, bookingMetrics := setupMetrics()

	client, err := clinicapi.NewClient(cfg.ClinicAPIBaseURL, logger,
		clinicapi.WithTimeout(cfg.ClinicAPITimeout),
		clinicapi.WithMetrics(bookingMetrics),
	)
	if err != nil {
		logger.Error("failed to build clinic API client", "error", err)
		os.Exit(1)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}
	catalogLoader := catalog.NewLoader(client, logger,
		catalog.WithCache(bootstrap.BuildCatalogCache(redisClient), cfg.CatalogCacheTTL),
		catalog.WithMetrics(bookingMetrics),
	)

	pool, submissions, err := bootstrap.BuildJournal(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}

	slotCfg, err := bootstrap.BuildSlotConfig(cfg)
	if err != nil {
		logger.Error("invalid slot configuration", "error", err)
		os.Exit(1)
	}

	sessions := session.NewStore(cfg.SessionTTL, logger, bookingMetrics)
	go sessions.Run(ctx, cfg.SessionSweepInterval)

	var limiter *httpmiddleware.RateLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
		go limiter.Run(ctx)
	}

	// Initialize handlers
	bookingHandler := handlers.NewBookingHandler(handlers.BookingConfig{
		Clinic:       client,
		Catalog:      catalogLoader,
		Slots:        slotCfg,
		Requirements: bootstrap.BuildRequirements(cfg),
		Sessions:     sessions,
		Journal:      submissions,
		Logger:       logger,
		Metrics:      bookingMetrics,
	})
	appointmentService := appointments.NewService(client, logger, bookingMetrics, appointments.WithRecorder(submissions))
	appointmentsHandler := handlers.NewAppointmentsHandler(client, appointmentService, submissions, logger)
	healthHandler := handlers.NewHealthHandler(healthChecks(redisClient, pool))

	// Setup router
	r := router.New(&router.Config{
		Logger:              logger,
		HealthHandler:       healthHandler,
		BookingHandler:      bookingHandler,
		AppointmentsHandler: appointmentsHandler,
		MetricsHandler:      metricsHandler,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimiter:         limiter,
	})

	// Create HTTP server. WriteTimeout stays zero so /events websockets are
	// not cut off; slow clients are bounded by ReadHeaderTimeout instead.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
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
	stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped", "open_sessions", sessions.Len())
	fmt.Println("Server exited gracefully")
}

// setupMetrics builds a dedicated registry carrying the booking collectors
// plus the Go runtime and process collectors.
func setupMetrics() (http.Handler, *metrics.BookingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewBookingMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), m
}

func healthChecks(redisClient *redis.Client, pool *pgxpool.Pool) map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	return checks
}
