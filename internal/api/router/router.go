package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/quickoffer/leadgen/internal/http/middleware"
	"github.com/quickoffer/leadgen/internal/leads"
	"github.com/quickoffer/leadgen/internal/phoneverify"
	"github.com/quickoffer/leadgen/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	LeadsHandler       *leads.Handler
	PhoneHandler       *phoneverify.Handler
	Limiter            *httpmiddleware.Limiter
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// MapsAPIKey is handed to the browser for address autocomplete.
	MapsAPIKey string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		// Submission handlers run the rate check themselves as the first
		// pipeline step; validate-phone gets the middleware form.
		api.Post("/submit-partial", cfg.LeadsHandler.SubmitPartial)
		api.Post("/submit-complete", cfg.LeadsHandler.SubmitComplete)

		phone := api
		if cfg.Limiter != nil {
			phone = api.With(httpmiddleware.RateLimit(cfg.Limiter))
		}
		phone.Post("/validate-phone", cfg.PhoneHandler.ValidatePhone)

		api.Get("/config/maps-key", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"key": cfg.MapsAPIKey})
		})
	})

	return r
}
