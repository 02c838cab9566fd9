package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/baotran97/gridpulse-core/internal/alert"
)

// defaultAlertLimit caps alert listings when the client does not ask for
// a specific page size.
const defaultAlertLimit = 100

// handleListAlerts returns a tenant's alert log, most recent first.
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")

	limit := defaultAlertLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.alerts.ListByTenant(r.Context(), tenant, limit)
	if err != nil {
		s.logger.Error("listing alerts", "tenant", tenant, "error", err)
		writeInternalError(w, "listing alerts failed")
		return
	}
	if records == nil {
		records = []alert.Record{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": records,
		"count":  len(records),
	})
}

// resolveRequest is the request body for alert resolution.
type resolveRequest struct {
	ResolvedBy string `json:"resolved_by"`
}

// handleResolveAlert marks an alert as resolved. Administrative action,
// outside the pipeline: resolution never affects dedup or catch-up state.
func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.ResolvedBy == "" {
		writeBadRequest(w, "resolved_by is required")
		return
	}

	if err := s.alerts.Resolve(r.Context(), id, req.ResolvedBy); err != nil {
		if errors.Is(err, alert.ErrAlertNotFound) {
			writeNotFound(w, "alert not found or already resolved")
			return
		}
		s.logger.Error("resolving alert", "id", id, "error", err)
		writeInternalError(w, "resolving alert failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
