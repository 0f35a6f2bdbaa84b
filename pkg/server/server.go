package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"floodgate/pkg/config"
	"floodgate/pkg/gateway/middleware"
	"floodgate/pkg/limits"
	"floodgate/pkg/telemetry/metrics"
)

// Server is the HTTP gateway in front of the upstream service.
type Server struct {
	config       *config.Config
	manager      *limits.Manager
	collector    *metrics.Collector
	upstream     *url.URL
	httpServer   *http.Server
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// New creates a new gateway server. The collector may be nil to disable
// metrics recording regardless of configuration.
func New(cfg *config.Config, manager *limits.Manager, collector *metrics.Collector) (*Server, error) {
	var upstream *url.URL
	if cfg.Server.Upstream != "" {
		parsed, err := url.Parse(cfg.Server.Upstream)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream URL %q: %w", cfg.Server.Upstream, err)
		}
		if parsed.Scheme == "" || parsed.Host == "" {
			return nil, fmt.Errorf("upstream URL %q must include scheme and host", cfg.Server.Upstream)
		}
		upstream = parsed
	}

	return &Server{
		config:       cfg,
		manager:      manager,
		collector:    collector,
		upstream:     upstream,
		shutdownChan: make(chan struct{}),
	}, nil
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	handler := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           s.config.Server.ListenAddress,
		Handler:        handler,
		ReadTimeout:    s.config.Server.ReadTimeout.Std(),
		WriteTimeout:   s.config.Server.WriteTimeout.Std(),
		IdleTimeout:    s.config.Server.IdleTimeout.Std(),
		MaxHeaderBytes: s.config.Server.MaxHeaderBytes,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting gateway server",
			"address", s.config.Server.ListenAddress,
			"upstream", s.config.Server.Upstream,
			"policies", len(s.manager.Policies()),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	case <-s.shutdownChan:
		slog.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		slog.Info("initiating graceful shutdown", "timeout", s.config.Server.ShutdownTimeout.Std().String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout.Std())
		defer cancel()

		if s.httpServer != nil {
			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("error during server shutdown", "error", err)
				shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			}
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		slog.Info("gateway server stopped")
	})

	return shutdownErr
}

// setupRoutes configures HTTP routes and the middleware chain. Health and
// metrics endpoints bypass admission; everything else is rate limited and
// forwarded upstream.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealth)

	if s.config.Metrics.Enabled && s.collector != nil {
		path := s.config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, s.collector.Handler())
	}

	mux.Handle("/", middleware.RateLimit(s.manager, s.collector)(s.forwardHandler()))

	var handler http.Handler = mux
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(handler)

	return handler
}

// forwardHandler returns the handler admitted requests reach. With an
// upstream configured this is a reverse proxy; without one the gateway runs
// standalone and acknowledges admitted requests directly.
func (s *Server) forwardHandler() http.Handler {
	if s.upstream == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.collector != nil {
				s.collector.RecordProxied(http.StatusOK)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
		})
	}

	proxy := httputil.NewSingleHostReverseProxy(s.upstream)

	proxy.ModifyResponse = func(resp *http.Response) error {
		if s.collector != nil {
			s.collector.RecordProxied(resp.StatusCode)
		}
		return nil
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		slog.ErrorContext(r.Context(), "upstream request failed",
			"error", err,
			"upstream", s.upstream.String(),
			"path", r.URL.Path,
		)
		if s.collector != nil {
			s.collector.RecordProxied(http.StatusBadGateway)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "Upstream request failed",
				"type":    "bad_gateway",
			},
		})
	}

	return proxy
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the configured HTTP handler. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Stop requests shutdown of a running server without waiting for a signal.
func (s *Server) Stop() {
	select {
	case <-s.shutdownChan:
	default:
		close(s.shutdownChan)
	}
}
