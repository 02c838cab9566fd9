package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/baotran97/gridpulse-core/internal/alert"
	"github.com/baotran97/gridpulse-core/internal/device"
	"github.com/baotran97/gridpulse-core/internal/fanout"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/config"
	"github.com/baotran97/gridpulse-core/internal/infrastructure/logging"
	"github.com/baotran97/gridpulse-core/internal/ingest"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	Logger    *logging.Logger
	Store     *device.Store
	Catalog   device.Catalog
	Alerts    alert.Repository
	Monitor   *fanout.Manager
	AlertHub  *fanout.AlertManager
	Commander *ingest.Commander // optional: command endpoints 503 without it
	Version   string
}

// Server is the HTTP API server for GridPulse Core.
//
// It manages the HTTP listener, routes, middleware, and the WebSocket
// viewer endpoints. The server is created with New() and started with
// Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	store     *device.Store
	catalog   device.Catalog
	alerts    alert.Repository
	monitor   *fanout.Manager
	alertHub  *fanout.AlertManager
	commander *ingest.Commander
	version   string
	server    *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("device store is required")
	}
	if deps.Monitor == nil || deps.AlertHub == nil {
		return nil, fmt.Errorf("fan-out managers are required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		store:     deps.Store,
		catalog:   deps.Catalog,
		alerts:    deps.Alerts,
		monitor:   deps.Monitor,
		alertHub:  deps.AlertHub,
		commander: deps.Commander,
		version:   deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
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
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
