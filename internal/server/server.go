package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/credgate/go-core/internal/api/handlers"
	"github.com/credgate/go-core/internal/api/routes"
	"github.com/credgate/go-core/internal/metrics"
	"github.com/credgate/go-core/internal/server/middleware"
)

// Config configures the HTTP server
type Config struct {
	// Port is the TCP port to listen on
	Port int
	// ReadTimeout bounds reading the full request including body
	ReadTimeout time.Duration
	// WriteTimeout bounds writing the response
	WriteTimeout time.Duration
	// IdleTimeout bounds keep-alive connections between requests
	IdleTimeout time.Duration
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Port:            8080,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Server is the HTTP admission and management server. Every request except
// the health endpoints passes through the admission gate before reaching a
// handler.
type Server struct {
	httpServer *http.Server
	config     Config
	logger     *zap.Logger
}

// New creates the HTTP server with the full middleware chain assembled
func New(
	cfg Config,
	gate *middleware.Gate,
	health *HealthHandler,
	keys *handlers.KeysHandler,
	sessions *handlers.SessionsHandler,
	m *metrics.Metrics,
	logger *zap.Logger,
) (*Server, error) {
	if gate == nil {
		return nil, fmt.Errorf("admission gate is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", health.Health).Methods(http.MethodGet)
	router.HandleFunc("/healthz/ready", health.Ready).Methods(http.MethodGet)
	if m != nil {
		router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	}
	routes.Register(router, keys, sessions)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      gate.Handler(router),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		config: cfg,
		logger: logger,
	}, nil
}

// Start starts serving and blocks until the listener closes
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", zap.Int("port", s.config.Port))
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server, draining in-flight requests
func (s *Server) Stop() error {
	s.logger.Info("Stopping HTTP server")
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
