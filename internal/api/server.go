package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/atmeex-community/breeze-core/internal/breezer"
	"github.com/atmeex-community/breeze-core/internal/infrastructure/config"
	"github.com/atmeex-community/breeze-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Coordinator is the slice of the reconciliation coordinator the API
// serves. Satisfied by *breezer.Coordinator.
type Coordinator interface {
	Devices() []breezer.Device
	Device(deviceID string) (breezer.Device, error)
	States() map[string]breezer.DeviceState
	State(deviceID string) (breezer.DeviceState, error)
	ExecuteCommand(ctx context.Context, deviceID string, field breezer.Field, value any) error
	RefreshDevice(ctx context.Context, deviceID string) error
	Diagnostics() breezer.Diagnostics
	Interval() time.Duration
	SetInterval(interval time.Duration)
	Subscribe(l breezer.Listener) breezer.Subscription
	Unsubscribe(sub breezer.Subscription)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config      config.APIConfig
	WS          config.WebSocketConfig
	Logger      *logging.Logger
	Coordinator Coordinator
	Version     string
}

// Server is the HTTP API server for Breeze Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	coordinator Coordinator
	version     string

	server *http.Server
	hub    *Hub
	sub    breezer.Subscription
	cancel context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("coordinator is required")
	}

	return &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		coordinator: deps.Coordinator,
		version:     deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, attaches a
// coordinator listener for real-time WebSocket broadcast, and launches
// the HTTP listener in a background goroutine. The server is stopped
// with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Every reconciliation is relayed to WebSocket subscribers.
	s.sub = s.coordinator.Subscribe(func(states map[string]breezer.DeviceState) {
		for _, state := range states {
			s.hub.Broadcast(ChannelStateChanged, newDeviceStateView(state))
		}
	})

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
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

	s.coordinator.Unsubscribe(s.sub)

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

// HealthCheck verifies the API server is running and responsive.
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
