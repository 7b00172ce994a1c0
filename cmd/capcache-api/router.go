// Package main provides the API router setup.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/mobr-ai/capcache/cmd/capcache-api/handlers"
	"github.com/mobr-ai/capcache/cmd/capcache-api/middleware"
	"github.com/mobr-ai/capcache/internal/cache"
	"github.com/mobr-ai/capcache/internal/config"
	"github.com/mobr-ai/capcache/internal/observability"
)

// NewRouter creates the admin API router with all routes configured.
func NewRouter(logger *observability.Logger, cfg *config.Config, nlCache *cache.NLClient) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(chimiddleware.Timeout(cfg.Server.ReadTimeout))

	// Health check (unauthenticated)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := nlCache.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","service":"capcache"}`))
			return
		}
		w.Write([]byte(`{"status":"healthy","service":"capcache"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ready"}`))
	})

	// Initialize handlers
	adminHandler := handlers.NewCacheAdminHandler(logger, nlCache, cfg.Precache.MaxFileSize)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(middleware.AuthConfig{
			Enabled: cfg.Auth.Enabled,
			APIKey:  cfg.Auth.APIKey,
		}))

		r.Route("/admin/cache", func(r chi.Router) {
			r.Post("/precache/file", adminHandler.PrecacheFile)
			r.Post("/precache/upload", adminHandler.PrecacheUpload)
			r.Delete("/clear", adminHandler.Clear)
			r.Get("/info", adminHandler.Info)
			r.Get("/popular", adminHandler.Popular)
		})
	})

	return r
}
