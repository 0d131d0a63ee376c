// Package api provides the HTTP REST API for Verdant Core.
//
// It exposes solenoid, group, and schedule management plus manual
// watering control and run history to operator UIs. The server follows
// the same lifecycle as the other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple
// goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/verdancy/verdant-core/internal/infrastructure/config"
	"github.com/verdancy/verdant-core/internal/infrastructure/logging"
	"github.com/verdancy/verdant-core/internal/infrastructure/mqtt"
	"github.com/verdancy/verdant-core/internal/run"
	"github.com/verdancy/verdant-core/internal/schedule"
	"github.com/verdancy/verdant-core/internal/scheduler"
	"github.com/verdancy/verdant-core/internal/solenoid"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Logger    *logging.Logger
	Solenoids *solenoid.Registry
	Groups    solenoid.GroupRepository
	Schedules schedule.Repository
	Runs      run.Repository
	Tracker   *run.Tracker
	Control   *scheduler.Scheduler
	MQTT      *mqtt.Client // optional, reported by /health
	Version   string
}

// Server is the HTTP API server for Verdant Core.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	solenoids *solenoid.Registry
	groups    solenoid.GroupRepository
	schedules schedule.Repository
	runs      run.Repository
	tracker   *run.Tracker
	control   *scheduler.Scheduler
	mqtt      *mqtt.Client
	version   string
	server    *http.Server
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Solenoids == nil {
		return nil, fmt.Errorf("solenoid registry is required")
	}
	if deps.Groups == nil {
		return nil, fmt.Errorf("group repository is required")
	}
	if deps.Schedules == nil {
		return nil, fmt.Errorf("schedule repository is required")
	}
	if deps.Runs == nil {
		return nil, fmt.Errorf("run repository is required")
	}
	if deps.Tracker == nil {
		return nil, fmt.Errorf("run tracker is required")
	}
	if deps.Control == nil {
		return nil, fmt.Errorf("scheduler is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		solenoids: deps.Solenoids,
		groups:    deps.Groups,
		schedules: deps.Schedules,
		runs:      deps.Runs,
		tracker:   deps.Tracker,
		control:   deps.Control,
		mqtt:      deps.MQTT,
		version:   deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background
// goroutine. The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
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

// Close gracefully shuts down the API server, waiting up to ten
// seconds for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}

	s.logger.Info("API server stopped")
	return nil
}
