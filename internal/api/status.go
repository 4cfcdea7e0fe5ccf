package api

import (
	"net/http"
	"strconv"

	"github.com/Yogesh-MG/Iotfarming/internal/audit"
	"github.com/Yogesh-MG/Iotfarming/internal/irrigation"
)

type updatePumpRequest struct {
	PumpState *bool `json:"pump_state"`
}

type autoModeRequest struct {
	Enabled *bool `json:"enabled"`
}

type readingRequest struct {
	Moisture      *float64 `json:"moisture"`
	AckCommandIDs []int64  `json:"ack_command_ids,omitempty"`
}

type readingResponse struct {
	ReadingID    int64               `json:"reading_id"`
	Accepted     bool                `json:"accepted"`
	Command      *irrigation.Command `json:"command,omitempty"`
	Acknowledged int                 `json:"acknowledged"`
}

type ackRequest struct {
	CommandIDs []int64 `json:"command_ids"`
}

// handleStatus returns the snapshot for whoever is calling: owners get their
// action history, devices get their pending queue.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "credentials required")
		return
	}
	snap, err := s.service.Status(r.Context(), caller)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleUpdatePump queues a manual pump command.
func (s *Server) handleUpdatePump(w http.ResponseWriter, r *http.Request) {
	var req updatePumpRequest
	if err := decodeJSON(r, &req); err != nil || req.PumpState == nil {
		writeBadRequest(w, "pump_state (boolean) is required")
		return
	}

	caller, _ := callerFromContext(r.Context()) //nolint:errcheck // set by ownerMiddleware
	cmd, err := s.service.ToggleManualPump(r.Context(), caller.DeviceID, *req.PumpState)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.audit(r.Context(), &audit.AuditLog{
		Action:     audit.ActionCommand,
		EntityType: audit.EntityDevice,
		EntityID:   caller.DeviceID,
		UserID:     caller.UserID,
		Details: map[string]any{
			"command_id":   cmd.ID,
			"action":       cmd.Action,
			"triggered_by": cmd.TriggeredBy,
		},
	})
	writeJSON(w, http.StatusCreated, cmd)
}

// handleAutoMode switches auto control on or off.
func (s *Server) handleAutoMode(w http.ResponseWriter, r *http.Request) {
	var req autoModeRequest
	if err := decodeJSON(r, &req); err != nil || req.Enabled == nil {
		writeBadRequest(w, "enabled (boolean) is required")
		return
	}

	caller, _ := callerFromContext(r.Context()) //nolint:errcheck // set by ownerMiddleware
	status, err := s.service.SetAutoMode(r.Context(), caller.DeviceID, *req.Enabled)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.audit(r.Context(), &audit.AuditLog{
		Action:     audit.ActionAutoMode,
		EntityType: audit.EntityDevice,
		EntityID:   caller.DeviceID,
		UserID:     caller.UserID,
		Details:    map[string]any{"enabled": *req.Enabled},
	})
	writeJSON(w, http.StatusOK, status)
}

// handleSubmitReading runs the ingestion pipeline for the calling device.
func (s *Server) handleSubmitReading(w http.ResponseWriter, r *http.Request) {
	var req readingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Moisture == nil {
		writeBadRequest(w, "moisture is required")
		return
	}

	d := deviceFromContext(r.Context())
	res, err := s.service.SubmitReading(r.Context(), d.ID, *req.Moisture, req.AckCommandIDs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, readingResponse{
		ReadingID:    res.Reading.ID,
		Accepted:     true,
		Command:      res.Command,
		Acknowledged: res.Acknowledged,
	})
}

// handleReadingHistory lists the owner's newest readings.
func (s *Server) handleReadingHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	caller, _ := callerFromContext(r.Context()) //nolint:errcheck // set by ownerMiddleware
	readings, err := s.service.ReadingHistory(r.Context(), caller.DeviceID, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if readings == nil {
		readings = []irrigation.Reading{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"readings": readings, "count": len(readings)})
}

// handleCommandHistory lists the owner's newest commands.
func (s *Server) handleCommandHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	caller, _ := callerFromContext(r.Context()) //nolint:errcheck // set by ownerMiddleware
	cmds, err := s.service.CommandHistory(r.Context(), caller.DeviceID, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if cmds == nil {
		cmds = []irrigation.Command{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": cmds, "count": len(cmds)})
}

// handlePendingCommands returns the calling device's unacknowledged queue.
func (s *Server) handlePendingCommands(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	d := deviceFromContext(r.Context())
	cmds, err := s.service.Pending(r.Context(), d.ID, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if cmds == nil {
		cmds = []irrigation.Command{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": cmds, "count": len(cmds)})
}

// handleAcknowledge marks commands as executed by the calling device.
func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	var req ackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.CommandIDs) == 0 {
		writeBadRequest(w, "command_ids must not be empty")
		return
	}

	d := deviceFromContext(r.Context())
	n, err := s.service.Acknowledge(r.Context(), d.ID, req.CommandIDs)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"acknowledged": n})
}

// parseLimit reads the optional limit query parameter. Range clamping is
// left to the service.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		writeBadRequest(w, "limit must be an integer")
		return 0, false
	}
	return n, true
}
