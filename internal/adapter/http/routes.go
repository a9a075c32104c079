package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Routing
		r.Post("/route", h.DecideRoute)

		// Usage ledger
		r.Post("/usage", h.RecordUsage)
		r.Get("/usage/stats", h.UsageStats)
		r.Post("/usage/reset", h.ResetUsage)
		r.Get("/usage/projection", h.CostProjection)
		r.Get("/usage/daily", h.DailyUsage)

		// Provider fleet
		r.Get("/providers", h.ListProviders)
	})
}
