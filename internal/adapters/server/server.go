// Package server serves the REST API and MCP tools of one qctl process from a single listener.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hylla/qctl/internal/adapters/server/common"
	"github.com/hylla/qctl/internal/adapters/server/httpapi"
	"github.com/hylla/qctl/internal/adapters/server/mcpapi"
)

const (
	defaultBindAddress     = "127.0.0.1:5437"
	defaultAPIEndpoint     = "/api/v1"
	defaultMCPEndpoint     = "/mcp"
	defaultServerName      = "qctl"
	defaultShutdownTimeout = 5 * time.Second
	readHeaderTimeout      = 15 * time.Second
)

// Config defines serve-mode endpoint configuration. Zero fields take defaults.
type Config struct {
	HTTPBind        string
	APIEndpoint     string
	MCPEndpoint     string
	ServerName      string
	ServerVersion   string
	ShutdownTimeout time.Duration
}

// ReadinessCheck reports whether backing storage can serve requests.
type ReadinessCheck func(context.Context) error

// Logger receives lifecycle and per-request events.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
}

// Dependencies wires the transports to the application.
type Dependencies struct {
	Service common.Service
	// Ready backs /readyz; nil always reports ready.
	Ready ReadinessCheck
	// Logger is optional.
	Logger Logger
}

// NewHandler builds the health, REST and MCP routes and returns the normalized config it used.
func NewHandler(cfg Config, deps Dependencies) (http.Handler, Config, error) {
	cfg, err := normalizeConfig(cfg)
	if err != nil {
		return nil, Config{}, err
	}
	if deps.Service == nil {
		return nil, Config{}, errors.New("service dependency is required")
	}

	mcpHandler, err := mcpapi.NewHandler(mcpapi.Config{
		ServerName:    cfg.ServerName,
		ServerVersion: cfg.ServerVersion,
		EndpointPath:  cfg.MCPEndpoint,
	}, deps.Service)
	if err != nil {
		return nil, Config{}, fmt.Errorf("configure mcp handler: %w", err)
	}
	api := http.StripPrefix(cfg.APIEndpoint, httpapi.NewHandler(deps.Service))

	mux := http.NewServeMux()
	mux.Handle("/healthz", healthzHandler(cfg, nil))
	mux.Handle("/readyz", healthzHandler(cfg, deps.Ready))
	mux.Handle(cfg.MCPEndpoint, mcpHandler)
	mux.Handle(cfg.APIEndpoint, api)
	mux.Handle(cfg.APIEndpoint+"/", api)

	if deps.Logger == nil {
		return mux, cfg, nil
	}
	return logRequests(mux, deps.Logger), cfg, nil
}

// Run listens on cfg.HTTPBind and serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg Config, deps Dependencies) error {
	if ctx == nil {
		ctx = context.Background()
	}
	handler, cfg, err := NewHandler(cfg, deps)
	if err != nil {
		return fmt.Errorf("build server handler: %w", err)
	}
	ln, err := net.Listen("tcp", cfg.HTTPBind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.HTTPBind, err)
	}
	if deps.Logger != nil {
		deps.Logger.Info("server listening",
			"addr", ln.Addr().String(),
			"api", cfg.APIEndpoint,
			"mcp", cfg.MCPEndpoint,
			"version", cfg.ServerVersion,
		)
	}
	return serve(ctx, ln, handler, cfg.ShutdownTimeout)
}

// serve runs an http.Server on ln until ctx ends or the server fails.
func serve(ctx context.Context, ln net.Listener, handler http.Handler, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http after shutdown: %w", err)
	}
	return nil
}

// normalizeConfig applies defaults and rejects colliding endpoints.
func normalizeConfig(cfg Config) (Config, error) {
	cfg.HTTPBind = strings.TrimSpace(cfg.HTTPBind)
	if cfg.HTTPBind == "" {
		cfg.HTTPBind = defaultBindAddress
	}
	cfg.APIEndpoint = normalizeEndpoint(cfg.APIEndpoint, defaultAPIEndpoint)
	cfg.MCPEndpoint = normalizeEndpoint(cfg.MCPEndpoint, defaultMCPEndpoint)
	if cfg.APIEndpoint == cfg.MCPEndpoint {
		return Config{}, fmt.Errorf("api and mcp endpoints must differ, both are %q", cfg.APIEndpoint)
	}
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = defaultServerName
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	return cfg, nil
}

// normalizeEndpoint returns "/segment[/segment...]" with no trailing slash; root falls back.
func normalizeEndpoint(path, fallback string) string {
	path = "/" + strings.Trim(strings.TrimSpace(path), "/")
	if path == "/" {
		return fallback
	}
	return path
}

// healthzStatus is the body of /healthz and /readyz.
type healthzStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Error   string `json:"error,omitempty"`
}

// healthzHandler answers liveness when check is nil and readiness otherwise.
func healthzHandler(cfg Config, check ReadinessCheck) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := healthzStatus{Status: "ok", Service: cfg.ServerName, Version: cfg.ServerVersion}
		code := http.StatusOK
		if check != nil {
			if err := check(r.Context()); err != nil {
				body.Status = "unavailable"
				body.Error = err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	})
}

// statusRecorder captures the response code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streamed MCP responses working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// logRequests logs one line per request; health checks log at debug, server errors at warn.
func logRequests(next http.Handler, logger Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		keyvals := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(started).Round(time.Microsecond),
		}
		if actor := strings.TrimSpace(r.Header.Get(httpapi.ActorHeader)); actor != "" {
			keyvals = append(keyvals, "actor", actor)
		}
		switch {
		case rec.status >= http.StatusInternalServerError:
			logger.Warn("request failed", keyvals...)
		case r.URL.Path == "/healthz" || r.URL.Path == "/readyz":
			logger.Debug("health check served", keyvals...)
		default:
			logger.Info("request served", keyvals...)
		}
	})
}
