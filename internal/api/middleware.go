package api

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Yogesh-MG/Iotfarming/internal/auth"
	"github.com/Yogesh-MG/Iotfarming/internal/device"
	"github.com/Yogesh-MG/Iotfarming/internal/irrigation"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	ctxKeyRequestID contextKey = "request_id"
	ctxKeyClaims    contextKey = "claims"
	ctxKeyDevice    contextKey = "device"
	ctxKeyCaller    contextKey = "caller"
)

// apiKeyHeader carries the device credential.
const apiKeyHeader = "X-API-KEY"

// requestIDMiddleware generates a unique request ID for each request.
// If the client sends an X-Request-ID header, it is used; otherwise one is generated.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs each HTTP request with method, path, status, and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestIDFrom(r.Context()),
		)
	})
}

// recoveryMiddleware catches panics in handlers and returns a 500 response.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered in HTTP handler",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path,
					"request_id", requestIDFrom(r.Context()),
				)
				writeInternalError(w, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware handles Cross-Origin Resource Sharing headers.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, "+apiKeyHeader)
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		// Handle preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// maxRequestBodySize is the maximum allowed request body size (1 MB).
const maxRequestBodySize = 1 << 20

func (s *Server) bodySizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// userAuthMiddleware validates the bearer JWT and stores its claims.
func (s *Server) userAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := s.bearerClaims(r)
		if !ok {
			writeUnauthorized(w, "missing or invalid access token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// deviceAuthMiddleware resolves the X-API-KEY header to an active device.
func (s *Server) deviceAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := s.authenticateDevice(r)
		if err != nil {
			s.writeDeviceAuthError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyDevice, d)
		ctx = context.WithValue(ctx, ctxKeyCaller, irrigation.DeviceCaller(d.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerMiddleware accepts either credential and resolves the caller once.
// An API key takes precedence over a bearer token. Users are mapped to the
// device they own.
func (s *Server) callerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(apiKeyHeader) != "" {
			s.deviceAuthMiddleware(next).ServeHTTP(w, r)
			return
		}
		claims, ok := s.bearerClaims(r)
		if !ok {
			writeUnauthorized(w, "credentials required")
			return
		}
		if !auth.HasPermission(claims.Role, auth.PermStatusRead) {
			writeForbidden(w, "insufficient permissions")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
		caller, err := s.ownerCaller(ctx, claims)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		ctx = context.WithValue(ctx, ctxKeyCaller, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ownerMiddleware runs after userAuthMiddleware and resolves the user's
// device into an owner caller.
func (s *Server) ownerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil {
			writeUnauthorized(w, "authentication required")
			return
		}
		caller, err := s.ownerCaller(r.Context(), claims)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyCaller, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePermission rejects users whose role lacks perm.
func (s *Server) requirePermission(perm auth.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := claimsFromContext(r.Context())
			if claims == nil {
				writeUnauthorized(w, "authentication required")
				return
			}
			if !auth.HasPermission(claims.Role, perm) {
				writeForbidden(w, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) bearerClaims(r *http.Request) (*auth.CustomClaims, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return nil, false
	}
	claims, err := auth.ParseToken(token, s.secCfg.JWT.Secret)
	if err != nil {
		return nil, false
	}
	return claims, true
}

func (s *Server) authenticateDevice(r *http.Request) (*device.Device, error) {
	return s.registry.Authenticate(r.Context(), r.Header.Get(apiKeyHeader))
}

func (s *Server) writeDeviceAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, device.ErrInvalidAPIKey):
		writeUnauthorized(w, "invalid api key")
	case errors.Is(err, device.ErrDeviceInactive):
		writeForbidden(w, "device is disabled")
	default:
		s.writeServiceError(w, r, err)
	}
}

func (s *Server) ownerCaller(ctx context.Context, claims *auth.CustomClaims) (irrigation.Caller, error) {
	d, err := s.registry.OwnerDevice(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return irrigation.Caller{}, irrigation.ErrDeviceNotFound
		}
		return irrigation.Caller{}, err
	}
	return irrigation.OwnerCaller(claims.Subject, d.ID), nil
}

// isAllowedOrigin checks if the origin is in the allowed list.
// An empty list allows all origins (dev mode).
func (s *Server) isAllowedOrigin(origin string) bool {
	if len(s.cfg.CORS.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.cfg.CORS.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string) //nolint:errcheck // type assertion, not an error
	return id
}

func claimsFromContext(ctx context.Context) *auth.CustomClaims {
	c, _ := ctx.Value(ctxKeyClaims).(*auth.CustomClaims) //nolint:errcheck // type assertion, not an error
	return c
}

func deviceFromContext(ctx context.Context) *device.Device {
	d, _ := ctx.Value(ctxKeyDevice).(*device.Device) //nolint:errcheck // type assertion, not an error
	return d
}

func callerFromContext(ctx context.Context) (irrigation.Caller, bool) {
	c, ok := ctx.Value(ctxKeyCaller).(irrigation.Caller)
	return c, ok
}

// userIDFrom returns the authenticated user's ID, or "" for device calls.
func userIDFrom(ctx context.Context) string {
	if c := claimsFromContext(ctx); c != nil {
		return c.Subject
	}
	return ""
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the WebSocket upgrader take over the connection through the
// logging wrapper.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
