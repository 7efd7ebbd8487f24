package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers the council's HTTP API on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": "0.1.0"})
		})

		r.Post("/run", h.HandleRun)
		r.Get("/doctor", h.HandleDoctor)
		r.Get("/providers", h.HandleProviders)
		r.Get("/subagents", h.HandleSubagents)
	})
}
