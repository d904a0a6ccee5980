// Package server exposes the settlement API over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/veilcraft/settlehouse/internal/domain"
	"github.com/veilcraft/settlehouse/internal/server/handler"
	"github.com/veilcraft/settlehouse/internal/server/middleware"
	"github.com/veilcraft/settlehouse/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit caps requests per client IP per RateWindow when a limiter is
	// attached. Zero disables the middleware.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Orders     *handler.OrderHandler
	Auctions   *handler.AuctionHandler
	Currencies *handler.CurrencyHandler
	Events     *handler.EventHandler
}

// Server is the HTTP + WebSocket API server for the settlement house.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Order execution endpoints.
	mux.HandleFunc("POST /api/orders/ask", handlers.Orders.ExecuteAsk)
	mux.HandleFunc("POST /api/orders/bid", handlers.Orders.ExecuteBid)
	mux.HandleFunc("POST /api/orders/invalidate", handlers.Orders.InvalidateOrder)
	mux.HandleFunc("GET /api/orders/{maker}/{hash}", handlers.Orders.OrderStatus)

	// Auction endpoints.
	mux.HandleFunc("GET /api/auctions", handlers.Auctions.ListAuctions)
	mux.HandleFunc("POST /api/auctions", handlers.Auctions.CreateAuction)
	mux.HandleFunc("GET /api/auctions/{id}", handlers.Auctions.GetAuction)
	mux.HandleFunc("POST /api/auctions/{id}/raise", handlers.Auctions.RaiseAuction)
	mux.HandleFunc("POST /api/auctions/{id}/take", handlers.Auctions.TakeAuction)
	mux.HandleFunc("POST /api/auctions/{id}/buy", handlers.Auctions.BuyAuction)
	mux.HandleFunc("POST /api/auctions/{id}/unlock", handlers.Auctions.UnlockAuction)

	// Currency allow-list endpoint.
	mux.HandleFunc("PUT /api/currencies/{address}", handlers.Currencies.SetCurrencyStatus)

	// Settlement event log.
	mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

	// Auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Request logging middleware.
	h = middleware.Logging(logger)(h)

	// CORS middleware.
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
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
