package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Yogesh-MG/Iotfarming/internal/audit"
	"github.com/Yogesh-MG/Iotfarming/internal/auth"
	"github.com/Yogesh-MG/Iotfarming/internal/device"
	"github.com/Yogesh-MG/Iotfarming/internal/provision"
)

// ─── Request/Response Types ────────────────────────────────────────

type userResponse struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	FullName    string    `json:"full_name"`
	Email       string    `json:"email,omitempty"`
	Role        auth.Role `json:"role"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

func toUserResponse(u *auth.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		FullName:    u.FullName(),
		Email:       u.Email,
		Role:        u.Role,
		IsActive:    u.IsActive,
		CreatedAt:   u.CreatedAt,
	}
}

type deviceRequest struct {
	Name       string `json:"name"`
	HardwareID string `json:"hardware_id"`
}

type createUserRequest struct {
	Username    string         `json:"username"`
	Password    string         `json:"password"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email,omitempty"`
	Role        auth.Role      `json:"role,omitempty"`
	Device      *deviceRequest `json:"device,omitempty"`
}

type createDeviceRequest struct {
	OwnerID    string `json:"owner_id"`
	Name       string `json:"name"`
	HardwareID string `json:"hardware_id"`
}

type provisionResponse struct {
	User   *userResponse  `json:"user,omitempty"`
	Device *device.Device `json:"device,omitempty"`
	APIKey string         `json:"api_key,omitempty"`
}

func toProvisionResponse(res *provision.Result) provisionResponse {
	out := provisionResponse{Device: res.Device, APIKey: res.APIKey}
	if res.User != nil {
		u := toUserResponse(res.User)
		out.User = &u
	}
	return out
}

// ─── Users ─────────────────────────────────────────────────────────

// handleListUsers returns all user accounts.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, toUserResponse(&users[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"users": out,
		"count": len(out),
	})
}

// handleCreateUser creates an account and optionally its device. The raw
// device API key is only ever returned by this response.
func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if s.provisioner == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "provisioning is not available")
		return
	}

	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}
	if req.Role != "" && !auth.IsValidUserRole(req.Role) {
		writeBadRequest(w, "invalid role: must be user or admin")
		return
	}

	var dev *provision.NewDevice
	if req.Device != nil {
		dev = &provision.NewDevice{Name: req.Device.Name, HardwareID: req.Device.HardwareID}
	}

	actor := userIDFrom(r.Context())
	res, err := s.provisioner.CreateUser(r.Context(), provision.NewUser{
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Role:        req.Role,
	}, dev, actor, audit.SourceAPI)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.logger.Info("user created",
		"user_id", res.User.ID,
		"username", res.User.Username,
		"role", res.User.Role,
		"created_by", actor,
	)
	writeJSON(w, http.StatusCreated, toProvisionResponse(res))
}

// ─── Devices ───────────────────────────────────────────────────────

// handleListDevices returns every registered device.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.registry.ListDevices(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if devices == nil {
		devices = []device.Device{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleCreateDevice registers a device for an existing user.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	if s.provisioner == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "provisioning is not available")
		return
	}

	var req createDeviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.OwnerID == "" {
		writeBadRequest(w, "owner_id is required")
		return
	}

	res, err := s.provisioner.CreateDevice(r.Context(), req.OwnerID, provision.NewDevice{
		Name:       req.Name,
		HardwareID: req.HardwareID,
	}, userIDFrom(r.Context()), audit.SourceAPI)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.logger.Info("device created", "device_id", res.Device.ID, "hardware_id", res.Device.HardwareID, "owner_id", req.OwnerID)
	writeJSON(w, http.StatusCreated, toProvisionResponse(res))
}

// handleRotateDeviceKey replaces a device's API key and returns the new one.
func (s *Server) handleRotateDeviceKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	key, err := s.registry.RotateAPIKey(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.audit(r.Context(), &audit.AuditLog{
		Action:     audit.ActionRotateKey,
		EntityType: audit.EntityDevice,
		EntityID:   id,
		UserID:     userIDFrom(r.Context()),
		Details:    map[string]any{"key_prefix": device.KeyPrefix(key)},
	})
	writeJSON(w, http.StatusOK, map[string]any{"device_id": id, "api_key": key})
}

// handleRebuildStatus recomputes a device's CurrentStatus from its logs.
func (s *Server) handleRebuildStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.registry.GetDevice(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	status, err := s.service.RebuildStatus(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.audit(r.Context(), &audit.AuditLog{
		Action:     audit.ActionRebuild,
		EntityType: audit.EntityDevice,
		EntityID:   id,
		UserID:     userIDFrom(r.Context()),
	})
	writeJSON(w, http.StatusOK, status)
}
