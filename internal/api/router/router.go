package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/clinic-booking/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/clinic-booking/internal/http/middleware"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	HealthHandler       *handlers.HealthHandler
	BookingHandler      *handlers.BookingHandler
	AppointmentsHandler *handlers.AppointmentsHandler
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string
	// RateLimiter throttles /api per client; nil disables it.
	RateLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints
	r.Group(func(public chi.Router) {
		health := cfg.HealthHandler
		if health == nil {
			health = handlers.NewHealthHandler(nil)
		}
		public.Get("/health", health.HealthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Patient API, authenticated by the bearer token forwarded to the clinic API
	r.Route("/api", func(api chi.Router) {
		if cfg.RateLimiter != nil {
			api.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
		}
		api.Use(httpmiddleware.PatientBearer())
		if cfg.BookingHandler != nil {
			cfg.BookingHandler.RegisterRoutes(api)
		}
		if cfg.AppointmentsHandler != nil {
			cfg.AppointmentsHandler.RegisterRoutes(api)
		}
	})

	return r
}
