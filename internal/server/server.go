// Package server wires the HTTP surface of the gateway.
//
// Responsibilities:
//   - Own the listener lifecycle (start, graceful stop)
//   - Dispatch /v1/messages requests through the translation pipeline
//   - Resolve model ids to upstream targets (resolver.go)
//   - Serialize SSE frames to clients (sse_writer.go)
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/claudeway/claudeway/internal/adapter"
	"github.com/claudeway/claudeway/internal/config"
	"github.com/claudeway/claudeway/internal/upstream"
)

// Server is the gateway HTTP server.
type Server struct {
	config *config.Config
	log    *zap.Logger

	// Core components
	resolver *StaticResolver
	client   *upstream.Client
	adapters *adapter.Registry

	// HTTP server
	httpServer *http.Server

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	mu      sync.RWMutex
	running bool
}

// NewServer creates a gateway server from validated configuration.
func NewServer(cfg *config.Config, log *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.ValidateStrict(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		config:   cfg,
		log:      log,
		resolver: NewStaticResolver(cfg),
		client:   upstream.NewClient(time.Duration(cfg.ConnectTimeoutSeconds)*time.Second, log),
		adapters: adapter.NewRegistry(),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// ApplyConfig swaps the model table after a configuration reload.
// Listener-level settings require a restart.
func (s *Server) ApplyConfig(cfg *config.Config) {
	s.mu.Lock()
	s.config = cfg
	s.mu.Unlock()
	s.resolver.Swap(cfg)
	s.log.Info("configuration reloaded", zap.Int("models", len(cfg.Models)))
}

// Start starts the HTTP listener.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	mux := http.NewServeMux()
	s.registerHandlers(mux)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// WriteTimeout stays zero: SSE responses are long-lived and the
		// per-request deadline already bounds them.
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info("starting HTTP server",
			zap.String("host", s.config.Server.Host),
			zap.Int("port", s.config.Server.Port))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Surface immediate bind failures to the caller.
	select {
	case err := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}

	s.wg.Wait()
	s.log.Info("server stopped")
	return nil
}

// registerHandlers registers all HTTP routes.
func (s *Server) registerHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/v1/messages", s.handleMessages)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
}
