// Package server provides the HTTP gateway that admits requests through the
// configured rate-limit policies and forwards them upstream.
//
// This package ties together the limits manager, middleware chain, and
// metrics endpoint, and provides server lifecycle management including start,
// graceful shutdown, and health checks.
//
// # Basic Usage
//
// Creating and starting a server:
//
//	cfg, err := config.Load("floodgate.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	policies, err := limits.BuildPolicies(cfg.Limits.Policies)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	manager := limits.NewManager(policies, limits.ManagerConfig{})
//	defer manager.Close()
//
//	srv, err := server.New(cfg, manager, collector)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
// # Routes
//
// The server exposes the following HTTP endpoints:
//
//   - GET /healthz - Liveness probe (always returns 200)
//   - GET /metrics - Prometheus metrics (when enabled, path configurable)
//   - *           - All other requests pass admission and are proxied upstream
//
// # Middleware Chain
//
// Requests pass through the following middleware (outermost to innermost):
//  1. Recovery: Recovers from panics and returns 500 error
//  2. RequestID: Generates unique request ID for log correlation
//  3. Logging: Logs request/response details
//  4. RateLimit: Admission through all configured policies (proxied routes only)
//
// # Graceful Shutdown
//
// The server shuts down gracefully when receiving SIGTERM or SIGINT, waiting
// up to the configured shutdown timeout for in-flight requests to complete.
package server
