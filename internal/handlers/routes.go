package handlers

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SetupRoutes configures all diagnostics routes.
func SetupRoutes(r chi.Router, h *HALHandler) {
	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// Shell
	r.Route("/hal/shell", func(r chi.Router) {
		r.Get("/stats", h.GetShellStats)
		r.Get("/stats/{command}", h.GetCommandStats)
	})
}
