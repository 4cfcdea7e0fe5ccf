package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Yogesh-MG/Iotfarming/internal/audit"
	"github.com/Yogesh-MG/Iotfarming/internal/auth"
	"github.com/Yogesh-MG/Iotfarming/internal/irrigation"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /auth/login.
type loginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	User        userResponse `json:"user"`
}

// ticketStore holds pending WebSocket authentication tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	tickets map[string]ticketEntry
	mu      sync.Mutex
	now     func() time.Time
}

type ticketEntry struct {
	caller    irrigation.Caller
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{
		tickets: make(map[string]ticketEntry),
		now:     time.Now,
	}
}

// issue stores a new ticket bound to caller.
func (t *ticketStore) issue(caller irrigation.Caller) string {
	ticket := generateTicket()
	t.mu.Lock()
	t.tickets[ticket] = ticketEntry{caller: caller, expiresAt: t.now().Add(ticketTTL)}
	t.mu.Unlock()
	return ticket
}

// consume validates a ticket and removes it (single-use).
func (t *ticketStore) consume(ticket string) (irrigation.Caller, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.tickets[ticket]
	if !ok {
		return irrigation.Caller{}, false
	}
	delete(t.tickets, ticket)

	if !t.now().Before(entry.expiresAt) {
		return irrigation.Caller{}, false
	}
	return entry.caller, true
}

// cleanExpired removes expired tickets from the store.
func (t *ticketStore) cleanExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for ticket, entry := range t.tickets {
		if now.After(entry.expiresAt) {
			delete(t.tickets, ticket)
		}
	}
}

// cleanLoop runs cleanExpired periodically until the context is cancelled.
func (t *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.cleanExpired()
		}
	}
}

// handleLogin authenticates a user and returns a JWT access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	user, err := auth.Login(r.Context(), s.users, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeUnauthorized(w, "invalid credentials")
		case errors.Is(err, auth.ErrUserInactive):
			writeForbidden(w, "account is disabled")
		default:
			s.writeServiceError(w, r, err)
		}
		return
	}

	token, err := auth.GenerateAccessToken(user, s.secCfg.JWT.Secret, s.secCfg.JWT.AccessTokenTTL)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	ttl := s.secCfg.JWT.AccessTokenTTL
	if ttl <= 0 {
		ttl = 60
	}

	s.audit(r.Context(), &audit.AuditLog{
		Action:     audit.ActionLogin,
		EntityType: audit.EntityUser,
		EntityID:   user.ID,
		UserID:     user.ID,
	})

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   ttl * 60,
		User:        toUserResponse(user),
	})
}

// handleMe returns the authenticated user's profile.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	user, err := s.users.GetByID(r.Context(), claims.Subject)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !user.IsActive {
		writeForbidden(w, "account is disabled")
		return
	}

	resp := meResponse{
		userResponse: toUserResponse(user),
		Permissions:  auth.PermissionsForRole(user.Role),
	}
	if d, err := s.registry.OwnerDevice(r.Context(), user.ID); err == nil {
		resp.DeviceID = d.ID
		resp.HardwareID = d.HardwareID
	}
	writeJSON(w, http.StatusOK, resp)
}

type meResponse struct {
	userResponse
	Permissions []auth.Permission `json:"permissions"`
	DeviceID    string            `json:"device_id,omitempty"`
	HardwareID  string            `json:"hardware_id,omitempty"`
}

// handleWSTicket generates a single-use WebSocket authentication ticket.
// The ticket is bound to the user's device so the socket only streams
// that device's updates.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "authentication required")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     s.tickets.issue(caller),
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}
