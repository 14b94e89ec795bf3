package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/iuriaranda/signalk-mqtt-bridge/internal/bridge"
	"github.com/iuriaranda/signalk-mqtt-bridge/internal/infrastructure/config"
	"github.com/iuriaranda/signalk-mqtt-bridge/internal/infrastructure/logging"
	"github.com/iuriaranda/signalk-mqtt-bridge/internal/journal"
	"github.com/iuriaranda/signalk-mqtt-bridge/internal/signalk"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// BridgeView is the part of the bridge the API reads.
// This is satisfied by *bridge.Bridge.
type BridgeView interface {
	Status() bridge.StatusReport
	Stats() bridge.Stats
	Leases(ctx context.Context) ([]bridge.Lease, error)
}

// MQTTView reports broker connectivity.
// This is satisfied by *mqtt.Client.
type MQTTView interface {
	IsConnected() bool
	SubscriptionCount() int
}

// SignalKView reports Signal K connectivity.
// This is satisfied by *signalk.Client.
type SignalKView interface {
	Stats() signalk.Stats
}

// CommandLog lists journal entries.
// This is satisfied by *journal.SQLiteRepository.
type CommandLog interface {
	List(ctx context.Context, filter journal.Filter) (*journal.ListResult, error)
}

// DBView exposes connection pool statistics.
// This is satisfied by *database.DB.
type DBView interface {
	Stats() sql.DBStats
}

// HealthChecker is an optional dependency probed by the health endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Bridge   BridgeView
	MQTT     MQTTView
	SignalK  SignalKView
	Journal  CommandLog               // nil when the journal is disabled
	Database DBView                   // nil when the journal is disabled
	Checks   map[string]HealthChecker // named component probes
	Version  string
}

// Server is the HTTP status server.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	bridge    BridgeView
	mqtt      MQTTView
	signalk   SignalKView
	journal   CommandLog
	db        DBView
	checks    map[string]HealthChecker
	version   string
	startTime time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		bridge:    deps.Bridge,
		mqtt:      deps.MQTT,
		signalk:   deps.SignalK,
		journal:   deps.Journal,
		db:        deps.Database,
		checks:    deps.Checks,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
//
// Binding happens synchronously so a port conflict is reported to the
// caller. The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
