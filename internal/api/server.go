// Package api serves the local HTTP API: tracked processes, log lines,
// history, stats, config and the kill/launch/save commands.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/graaaaa/scr-multilauncher/internal/app"
)

// Server represents the HTTP API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger

	// Use case dependencies
	health    app.HealthUsecase
	processes app.ProcessesUsecase
	logs      app.LogsUsecase
	control   app.ControlUsecase
	stats     app.StatsUsecase
	cfg       app.ConfigUsecase

	// SSE hub
	hub *Hub

	metrics      http.Handler
	limiter      *RateLimiter
	allowedHosts []string

	// baseCtx is cancelled on Shutdown so open streams end.
	baseCtx    context.Context
	cancelBase context.CancelFunc
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithProcesses sets the processes use case.
func WithProcesses(p app.ProcessesUsecase) ServerOption {
	return func(s *Server) { s.processes = p }
}

// WithLogs sets the log lines use case.
func WithLogs(l app.LogsUsecase) ServerOption {
	return func(s *Server) { s.logs = l }
}

// WithControl sets the command use case.
func WithControl(c app.ControlUsecase) ServerOption {
	return func(s *Server) { s.control = c }
}

// WithStats sets the stats use case.
func WithStats(st app.StatsUsecase) ServerOption {
	return func(s *Server) { s.stats = st }
}

// WithConfig sets the config use case.
func WithConfig(c app.ConfigUsecase) ServerOption {
	return func(s *Server) { s.cfg = c }
}

// WithHub sets the SSE hub.
func WithHub(hub *Hub) ServerOption {
	return func(s *Server) { s.hub = hub }
}

// WithMetricsHandler exposes h on GET /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// WithRateLimiter limits requests per client IP.
func WithRateLimiter(rl *RateLimiter) ServerOption {
	return func(s *Server) { s.limiter = rl }
}

// WithAllowedHosts adds hosts accepted in Origin/Referer besides loopback.
func WithAllowedHosts(hosts ...string) ServerOption {
	return func(s *Server) { s.allowedHosts = append(s.allowedHosts, hosts...) }
}

// NewServer creates a new API server with the given dependencies.
func NewServer(addr string, health app.HealthUsecase, opts ...ServerOption) *Server {
	mux := http.NewServeMux()
	s := &Server{
		mux:    mux,
		logger: slog.Default(),
		health: health,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	s.baseCtx, s.cancelBase = context.WithCancel(context.Background())
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.wrap(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      0, // Disable for SSE (long-lived connections)
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}
	return s
}

// wrap applies the middleware chain. Outermost first.
func (s *Server) wrap(h http.Handler) http.Handler {
	h = csrfMiddleware(s.allowedHosts)(h)
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	h = securityHeadersMiddleware(h)
	return accessLogMiddleware(s.logger)(h)
}

// registerRoutes sets up the API routes. Routes whose use case was not
// provided are not registered.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)

	if s.processes != nil {
		s.mux.HandleFunc("GET /api/v1/processes", s.handleProcesses)
	}

	if s.logs != nil {
		s.mux.HandleFunc("GET /api/v1/logs", s.handleLogs)
		s.mux.HandleFunc("GET /api/v1/logs/history", s.handleLogHistory)
	}

	if s.hub != nil && s.logs != nil {
		s.mux.HandleFunc("GET /api/v1/stream", s.handleStream)
	}

	if s.stats != nil {
		s.mux.HandleFunc("GET /api/v1/stats", s.handleStats)
	}

	if s.cfg != nil {
		s.mux.HandleFunc("GET /api/v1/config", s.handleGetConfig)
		s.mux.HandleFunc("PUT /api/v1/config", s.handlePutConfig)
	}

	if s.control != nil {
		s.mux.HandleFunc("POST /api/v1/kill-all", s.handleKillAll)
		s.mux.HandleFunc("POST /api/v1/launch", s.handleLaunch)
		s.mux.HandleFunc("POST /api/v1/logs/save", s.handleSaveLogs)
		s.mux.HandleFunc("DELETE /api/v1/logs", s.handleClearLogs)
	}

	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}
}

// Handler returns the server's handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln. It returns nil after Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("api listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancelBase()
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}
