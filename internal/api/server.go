package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/list-to-entities/internal/configentry"
	"github.com/nerrad567/list-to-entities/internal/entity"
	"github.com/nerrad567/list-to-entities/internal/infrastructure/config"
	"github.com/nerrad567/list-to-entities/internal/infrastructure/logging"
	"github.com/nerrad567/list-to-entities/internal/listsync"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// EntryManager is the part of the list sync manager the API drives.
// Implemented by *listsync.Manager.
type EntryManager interface {
	Entries(ctx context.Context) ([]configentry.Entry, error)
	Entry(ctx context.Context, entryID string) (*configentry.Entry, error)
	Add(ctx context.Context, watchedEntityID string) (*configentry.Entry, error)
	Remove(ctx context.Context, entryID string) error
	Sensors(entryID string) ([]entity.Sensor, error)
	Resync(entryID string) error
	Stats() []listsync.InstanceStats
}

// HomeAssistantStatus reports the state of the Home Assistant connection.
// Implemented by *homeassistant.Client.
type HomeAssistantStatus interface {
	IsConnected() bool
	HAVersion() string
	Reconnects() uint64
}

// ConnectionStatus reports whether a connection is up.
type ConnectionStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config        config.APIConfig
	Logger        *logging.Logger
	Manager       EntryManager
	HomeAssistant HomeAssistantStatus // optional
	MQTT          ConnectionStatus    // optional
	DB            *sql.DB             // optional, for pool statistics
	Hub           *Hub                // optional; created on Start when nil
	Version       string
}

// Server is the operator HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and the live event hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	manager   EntryManager
	ha        HomeAssistantStatus
	mqtt      ConnectionStatus
	db        *sql.DB
	version   string
	startTime time.Time
	server    *http.Server
	hub       *Hub
	cancel    context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, manager)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Manager == nil {
		return nil, fmt.Errorf("entry manager is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		manager:   deps.Manager,
		ha:        deps.HomeAssistant,
		mqtt:      deps.MQTT,
		db:        deps.DB,
		hub:       deps.Hub,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the event hub unless one was injected and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context bounding the background goroutines
//
// Returns:
//   - error: Always nil; listener errors are logged
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.cfg.WebSocket, s.logger)
	}
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr, "auth", s.cfg.Auth.JWTSecret != "")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
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
