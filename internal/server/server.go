// Package server exposes the trading service over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/outcomelab/tradeflow/internal/domain"
	"github.com/outcomelab/tradeflow/internal/server/handler"
	"github.com/outcomelab/tradeflow/internal/server/middleware"
	"github.com/outcomelab/tradeflow/internal/server/ws"
)

// apiRateLimit caps requests per client across the whole API.
const (
	apiRateLimit  = 120
	apiRateWindow = time.Minute
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
}

// Handlers aggregates the HTTP handlers registered on the server. Health is
// mandatory; a nil handler in any other slot leaves its routes unregistered,
// which is how read-only modes drop the mutating endpoints.
type Handlers struct {
	Health   *handler.HealthHandler
	Trades   *handler.TradeHandler
	Mints    *handler.MintHandler
	Balances *handler.BalanceHandler
}

// Server is the HTTP plus WebSocket API front end.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain. limiter and
// wsHub are optional; nil disables the corresponding layer.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/ready", handlers.Health.ReadyCheck)

	if handlers.Trades != nil {
		mux.HandleFunc("POST /api/trades", handlers.Trades.PlaceTrade)
		mux.HandleFunc("GET /api/orders", handlers.Trades.ListOrders)
		mux.HandleFunc("GET /api/orders/{id}", handlers.Trades.GetOrder)
		mux.HandleFunc("GET /api/settlements", handlers.Trades.ListSettlements)
		mux.HandleFunc("POST /api/settlements/{id}/retry", handlers.Trades.RetrySettlement)
	}

	if handlers.Mints != nil {
		mux.HandleFunc("POST /api/mint", handlers.Mints.Mint)
	}
	if handlers.Balances != nil {
		mux.HandleFunc("GET /api/balances", handlers.Balances.GetBalances)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil {
		h = middleware.RateLimit(limiter, apiRateLimit, apiRateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start blocks serving requests until an error or shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
