// Package server exposes the indexed entities over HTTP and relays live
// activity over WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/marketindexer/internal/domain"
	"github.com/alanyoungcy/marketindexer/internal/server/handler"
	"github.com/alanyoungcy/marketindexer/internal/server/middleware"
	"github.com/alanyoungcy/marketindexer/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, the trigger endpoint is unauthenticated
	// RateLimitPerMin caps requests per client IP. Zero disables limiting.
	RateLimitPerMin int
	// TrustProxy attributes requests by X-Forwarded-For.
	TrustProxy bool
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Markets  *handler.MarketHandler
	Users    *handler.UserHandler
	Stats    *handler.StatsHandler
	Pipeline *handler.PipelineHandler
	// Audit is optional; /api/audit is only registered when it is set.
	Audit *handler.AuditHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain.
// wsHub and limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/bets", handlers.Markets.ListBets)
	mux.HandleFunc("GET /api/markets/{id}/events", handlers.Markets.ListEvents)

	mux.HandleFunc("GET /api/users/{id}", handlers.Users.GetUser)
	mux.HandleFunc("GET /api/users/{id}/positions", handlers.Users.ListPositions)
	mux.HandleFunc("GET /api/users/{id}/bets", handlers.Users.ListBets)
	mux.HandleFunc("GET /api/leaderboard", handlers.Users.Leaderboard)

	mux.HandleFunc("GET /api/stats", handlers.Stats.Global)
	mux.HandleFunc("GET /api/stats/daily", handlers.Stats.Daily)

	operator := middleware.Auth(cfg.APIKey)
	mux.Handle("POST /api/pipeline/trigger", operator(http.HandlerFunc(handlers.Pipeline.TriggerPipeline)))
	if handlers.Audit != nil {
		mux.Handle("GET /api/audit", operator(http.HandlerFunc(handlers.Audit.ListAudit)))
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.RateLimit(limiter, middleware.RateLimitOptions{
		Limit:      cfg.RateLimitPerMin,
		Window:     time.Minute,
		TrustProxy: cfg.TrustProxy,
		Exempt:     []string{"/api/health", "/ws"},
	}, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler { return s.handler }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
