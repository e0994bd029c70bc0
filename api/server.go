/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the invoicing dashboard

ROUTE GROUPS:
  /api/health           Liveness
  /api/holidays/*       Public holiday calendar
  /api/calendar/*       Day classification
  /api/prices           Price catalog
  /api/overtime/*       Allocator preview
  /api/categories       Registered pipelines
  /api/runs/*           Pricing runs and exports

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/holidays/{year}", h.ListHolidays)
		r.Get("/calendar/{date}", h.GetDay)

		r.Route("/prices", func(r chi.Router) {
			r.Get("/", h.GetPrices)
			r.Post("/", h.CreatePrices)
		})

		r.Post("/overtime/split", h.SplitOvertime)
		r.Get("/categories", h.ListCategories)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.ListRuns)
			r.Post("/", h.CreateRun)
			r.Get("/{id}", h.GetRun)
			r.Get("/{id}/lines", h.GetRunLines)
			r.Get("/{id}/export/{category}", h.ExportRun)
		})
	})

	return r
}
