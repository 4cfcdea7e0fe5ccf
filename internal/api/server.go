package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Yogesh-MG/Iotfarming/internal/audit"
	"github.com/Yogesh-MG/Iotfarming/internal/auth"
	"github.com/Yogesh-MG/Iotfarming/internal/bridge"
	"github.com/Yogesh-MG/Iotfarming/internal/device"
	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/config"
	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/database"
	"github.com/Yogesh-MG/Iotfarming/internal/infrastructure/logging"
	"github.com/Yogesh-MG/Iotfarming/internal/irrigation"
	"github.com/Yogesh-MG/Iotfarming/internal/provision"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is implemented by the optional infrastructure clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
	IsConnected() bool
}

// BridgeMetrics is implemented by the MQTT device bridge.
type BridgeMetrics interface {
	GetMetrics() bridge.Metrics
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Security    config.SecurityConfig
	Logger      *logging.Logger
	DB          *database.DB
	Service     *irrigation.Service
	Registry    *device.Registry
	Users       auth.UserRepository
	Provisioner *provision.Provisioner
	Audit       audit.Repository
	MQTT        HealthChecker // optional
	Influx      HealthChecker // optional
	Bridge      BridgeMetrics // optional
	Version     string
}

// Server is the HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	secCfg      config.SecurityConfig
	logger      *logging.Logger
	db          *database.DB
	service     *irrigation.Service
	registry    *device.Registry
	users       auth.UserRepository
	provisioner *provision.Provisioner
	auditRepo   audit.Repository
	auditCh     chan *audit.AuditLog
	auditDone   chan struct{}
	mqtt        HealthChecker
	influx      HealthChecker
	bridge      BridgeMetrics
	version     string
	startTime   time.Time
	tickets     *ticketStore
	hub         *Hub
	server      *http.Server
	cancel      context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies. The WebSocket
// hub is registered as a notifier on the service immediately so no event
// committed after New is missed.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("logger is required")
	case deps.Service == nil:
		return nil, errors.New("irrigation service is required")
	case deps.Registry == nil:
		return nil, errors.New("device registry is required")
	case deps.Users == nil:
		return nil, errors.New("user repository is required")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		secCfg:      deps.Security,
		logger:      deps.Logger.With("component", "api"),
		db:          deps.DB,
		service:     deps.Service,
		registry:    deps.Registry,
		users:       deps.Users,
		provisioner: deps.Provisioner,
		auditRepo:   deps.Audit,
		mqtt:        deps.MQTT,
		influx:      deps.Influx,
		bridge:      deps.Bridge,
		version:     deps.Version,
		startTime:   time.Now(),
		tickets:     newTicketStore(),
	}
	if deps.Audit != nil {
		s.auditCh = make(chan *audit.AuditLog, auditChanSize)
		s.auditDone = make(chan struct{})
	}

	s.hub = NewHub(s.wsCfg, s.logger)
	s.service.AddNotifier(s.hub)

	return s, nil
}

// Handler returns the router. Used by tests and by callers that manage
// their own listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)
	if s.auditCh != nil {
		go s.drainAuditLog(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then stops
// the hub and flushes queued audit entries.
func (s *Server) Close() error {
	var shutdownErr error
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		s.logger.Info("API server shutting down")
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("shutting down API server: %w", err)
		}
	}

	if s.cancel != nil {
		s.cancel()
		if s.auditDone != nil {
			<-s.auditDone
		}
	}
	return shutdownErr
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
