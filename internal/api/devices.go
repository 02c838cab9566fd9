package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/baotran97/gridpulse-core/internal/device"
)

// deviceRequest is the request body for catalog create/update.
type deviceRequest struct {
	MAC      string          `json:"mac"`
	Name     string          `json:"name"`
	Tenant   string          `json:"tenant"`
	Type     string          `json:"type"`
	Schedule device.Schedule `json:"schedule"`
	Auto     bool            `json:"auto"`
	Toggle   bool            `json:"toggle"`
}

// handleListDevices returns the live state of all devices, optionally
// filtered by tenant. Devices absent from the state store (TTL lapsed or
// never reported) do not appear; the catalog remains authoritative for
// registration.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	tenant := r.URL.Query().Get("tenant")

	var records []*device.Record
	if tenant == "" {
		records = s.store.GetAll(r.Context())
	} else {
		records = s.store.GetAllByTenant(r.Context(), tenant)
	}
	if records == nil {
		records = []*device.Record{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": records,
		"count":   len(records),
	})
}

// handleGetDevice returns one device's live state, falling back to the
// catalog configuration when the device is not in the state store.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	mac := device.NormalizeMAC(chi.URLParam(r, "mac"))

	if rec := s.store.GetByMAC(r.Context(), mac); rec != nil {
		writeJSON(w, http.StatusOK, rec)
		return
	}

	rec, err := s.catalog.GetByMAC(r.Context(), mac)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not registered")
			return
		}
		s.logger.Error("catalog lookup failed", "mac", mac, "error", err)
		writeInternalError(w, "catalog lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleUnknownDevices returns MACs that recently reported telemetry
// without being registered in the catalog.
func (s *Server) handleUnknownDevices(w http.ResponseWriter, r *http.Request) {
	macs := s.store.UnknownMACs(r.Context())
	if macs == nil {
		macs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"macs": macs})
}

// handleCreateDevice registers a device in the catalog and seeds its live
// record so viewers see it before first telemetry.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if req.MAC == "" || req.Tenant == "" {
		writeBadRequest(w, "mac and tenant are required")
		return
	}

	rec := &device.Record{
		ID:       uuid.NewString(),
		MAC:      device.NormalizeMAC(req.MAC),
		Name:     req.Name,
		Tenant:   req.Tenant,
		Type:     req.Type,
		Schedule: req.Schedule,
		Auto:     req.Auto,
		Toggle:   req.Toggle,
	}

	if err := s.catalog.Create(r.Context(), rec); err != nil {
		if errors.Is(err, device.ErrExists) {
			writeConflict(w, "mac already registered")
			return
		}
		s.logger.Error("creating device", "mac", rec.MAC, "error", err)
		writeInternalError(w, "creating device failed")
		return
	}

	s.store.UpsertConfig(r.Context(), rec)
	writeJSON(w, http.StatusCreated, rec)
}

// handleUpdateDevice modifies a registered device's configuration and
// refreshes its live record.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	mac := device.NormalizeMAC(chi.URLParam(r, "mac"))

	existing, err := s.catalog.GetByMAC(r.Context(), mac)
	if err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not registered")
			return
		}
		s.logger.Error("catalog lookup failed", "mac", mac, "error", err)
		writeInternalError(w, "catalog lookup failed")
		return
	}

	req := deviceRequest{
		Name:     existing.Name,
		Tenant:   existing.Tenant,
		Type:     existing.Type,
		Schedule: existing.Schedule,
		Auto:     existing.Auto,
		Toggle:   existing.Toggle,
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	existing.Name = req.Name
	existing.Tenant = req.Tenant
	existing.Type = req.Type
	existing.Schedule = req.Schedule
	existing.Auto = req.Auto
	existing.Toggle = req.Toggle

	if err := s.catalog.Update(r.Context(), existing); err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not registered")
			return
		}
		s.logger.Error("updating device", "mac", mac, "error", err)
		writeInternalError(w, "updating device failed")
		return
	}

	s.store.UpsertConfig(r.Context(), existing)
	writeJSON(w, http.StatusOK, existing)
}

// handleDeleteDevice removes a device from the catalog and evicts its
// live record.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	mac := device.NormalizeMAC(chi.URLParam(r, "mac"))

	if err := s.catalog.Delete(r.Context(), mac); err != nil {
		if errors.Is(err, device.ErrNotFound) {
			writeNotFound(w, "device not registered")
			return
		}
		s.logger.Error("deleting device", "mac", mac, "error", err)
		writeInternalError(w, "deleting device failed")
		return
	}

	s.store.Delete(r.Context(), mac)
	w.WriteHeader(http.StatusNoContent)
}

// onOffRequest is the request body for toggle/auto commands.
type onOffRequest struct {
	On bool `json:"on"`
}

// handleToggleCommand forces the device relay on or off. The commanded
// value is mirrored into the catalog and live record so the next
// classification sees it; auto mode is left off as a side effect of the
// manual override.
func (s *Server) handleToggleCommand(w http.ResponseWriter, r *http.Request) {
	if s.commander == nil {
		writeUnavailable(w, "command channel not connected")
		return
	}
	mac := device.NormalizeMAC(chi.URLParam(r, "mac"))

	var req onOffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if err := s.commander.SendToggle(mac, req.On); err != nil {
		s.logger.Error("sending toggle command", "mac", mac, "error", err)
		writeInternalError(w, "sending command failed")
		return
	}

	s.syncCommandedConfig(r, mac, func(rec *device.Record) {
		rec.Toggle = req.On
		rec.Auto = false
	})
	writeJSON(w, http.StatusOK, map[string]any{"mac": mac, "toggle": req.On})
}

// handleAutoCommand enables or disables schedule-driven operation.
func (s *Server) handleAutoCommand(w http.ResponseWriter, r *http.Request) {
	if s.commander == nil {
		writeUnavailable(w, "command channel not connected")
		return
	}
	mac := device.NormalizeMAC(chi.URLParam(r, "mac"))

	var req onOffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if err := s.commander.SendAuto(mac, req.On); err != nil {
		s.logger.Error("sending auto command", "mac", mac, "error", err)
		writeInternalError(w, "sending command failed")
		return
	}

	s.syncCommandedConfig(r, mac, func(rec *device.Record) {
		rec.Auto = req.On
	})
	writeJSON(w, http.StatusOK, map[string]any{"mac": mac, "auto": req.On})
}

// handleScheduleCommand pushes a new working-hours window to the device.
func (s *Server) handleScheduleCommand(w http.ResponseWriter, r *http.Request) {
	if s.commander == nil {
		writeUnavailable(w, "command channel not connected")
		return
	}
	mac := device.NormalizeMAC(chi.URLParam(r, "mac"))

	var schedule device.Schedule
	if err := json.NewDecoder(r.Body).Decode(&schedule); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if !validClock(schedule.OnHour, schedule.OnMinute) || !validClock(schedule.OffHour, schedule.OffMinute) {
		writeBadRequest(w, "schedule hours must be 0-23 and minutes 0-59")
		return
	}

	if err := s.commander.SendSchedule(mac, schedule); err != nil {
		s.logger.Error("sending schedule command", "mac", mac, "error", err)
		writeInternalError(w, "sending command failed")
		return
	}

	s.syncCommandedConfig(r, mac, func(rec *device.Record) {
		rec.Schedule = schedule
	})
	writeJSON(w, http.StatusOK, map[string]any{"mac": mac, "schedule": schedule})
}

// syncCommandedConfig mirrors a commanded config change into the catalog
// and the live record. Best-effort: the device echoes its state on the
// next report either way.
func (s *Server) syncCommandedConfig(r *http.Request, mac string, mutate func(*device.Record)) {
	rec, err := s.catalog.GetByMAC(r.Context(), mac)
	if err != nil {
		if !errors.Is(err, device.ErrNotFound) {
			s.logger.Warn("command sent but catalog sync failed", "mac", mac, "error", err)
		}
		return
	}

	mutate(rec)
	if err := s.catalog.Update(r.Context(), rec); err != nil {
		s.logger.Warn("command sent but catalog sync failed", "mac", mac, "error", err)
		return
	}
	s.store.UpsertConfig(r.Context(), rec)
}

// validClock reports whether hour/minute form a valid clock time.
func validClock(hour, minute int) bool {
	return hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59
}
