package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Yogesh-MG/Iotfarming/internal/auth"
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

	r.Route("/api/v1", func(r chi.Router) {
		// Public
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		// WebSocket (auth via ticket, validated in handler)
		r.Get("/ws", s.handleWebSocket)

		// Status accepts either a user token or a device key.
		r.With(s.callerMiddleware).Get("/status", s.handleStatus)

		// Device endpoints (X-API-KEY)
		r.Group(func(r chi.Router) {
			r.Use(s.deviceAuthMiddleware)

			r.Get("/status/device", s.handleStatus)
			r.Post("/readings", s.handleSubmitReading)
			r.Get("/commands/pending", s.handlePendingCommands)
			r.Post("/commands/ack", s.handleAcknowledge)
		})

		// User endpoints (Bearer JWT)
		r.Group(func(r chi.Router) {
			r.Use(s.userAuthMiddleware)

			r.Get("/me", s.handleMe)

			// Routes acting on the user's own device
			r.Group(func(r chi.Router) {
				r.Use(s.ownerMiddleware)

				r.With(s.requirePermission(auth.PermStatusRead)).Post("/auth/ws-ticket", s.handleWSTicket)
				r.With(s.requirePermission(auth.PermPumpOperate)).Post("/update", s.handleUpdatePump)
				r.With(s.requirePermission(auth.PermAutoManage)).Post("/auto", s.handleAutoMode)
				r.With(s.requirePermission(auth.PermHistoryRead)).Get("/readings", s.handleReadingHistory)
				r.With(s.requirePermission(auth.PermHistoryRead)).Get("/commands", s.handleCommandHistory)
			})

			// Administration
			r.Route("/users", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermUserManage))
				r.Get("/", s.handleListUsers)
				r.Post("/", s.handleCreateUser)
			})

			r.Route("/devices", func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermDeviceManage))
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleCreateDevice)
				r.Post("/{id}/rebuild", s.handleRebuildStatus)
				r.Post("/{id}/rotate-key", s.handleRotateDeviceKey)
			})

			r.With(s.requirePermission(auth.PermAuditRead)).Get("/audit", s.handleListAuditLogs)
			r.With(s.requirePermission(auth.PermSystemAdmin)).Get("/metrics", s.handleMetrics)
		})
	})

	return r
}
