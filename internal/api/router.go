package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Device endpoints: live state reads plus thin catalog admin
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleCreateDevice)
			r.Get("/unknown", s.handleUnknownDevices)

			r.Route("/{mac}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Patch("/", s.handleUpdateDevice)
				r.Delete("/", s.handleDeleteDevice)

				// Outbound device commands
				r.Post("/toggle", s.handleToggleCommand)
				r.Post("/auto", s.handleAutoCommand)
				r.Post("/schedule", s.handleScheduleCommand)
			})
		})

		// Alert endpoints
		r.Route("/alerts", func(r chi.Router) {
			r.Get("/{tenant}", s.handleListAlerts)
			r.Post("/{id}/resolve", s.handleResolveAlert)
		})
	})

	// WebSocket viewer endpoints (outside the API prefix; the fronting
	// gateway routes them directly)
	r.Get("/ws/monitor", s.handleMonitorWS)
	r.Get("/ws/alert", s.handleAlertWS)

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     s.version,
		"state_store": s.store.Available(r.Context()),
	})
}
