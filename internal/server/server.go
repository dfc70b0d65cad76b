// Package server assembles the HTTP surface: route registration, the
// middleware chain, and graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/batchauction/auctiond/internal/config"
	"github.com/batchauction/auctiond/internal/domain"
	"github.com/batchauction/auctiond/internal/server/handler"
	"github.com/batchauction/auctiond/internal/server/middleware"
	"github.com/batchauction/auctiond/internal/server/ws"
)

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health     *handler.HealthHandler
	Auctions   *handler.AuctionHandler
	Orders     *handler.OrderHandler
	Settlement *handler.SettlementHandler
}

// Server is the HTTP + websocket API for the auction daemon.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain.
func NewServer(cfg config.ServerConfig, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check, unauthenticated.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Auction lifecycle.
	mux.HandleFunc("POST /api/auctions", handlers.Auctions.CreateAuction)
	mux.HandleFunc("GET /api/auctions", handlers.Auctions.ListAuctions)
	mux.HandleFunc("GET /api/auctions/{id}", handlers.Auctions.GetAuction)
	mux.HandleFunc("POST /api/auctions/{id}/bidders", handlers.Auctions.RegisterBidder)
	mux.HandleFunc("GET /api/auctions/{id}/balances/{account}", handlers.Auctions.GetBalance)

	// Order ledger.
	mux.HandleFunc("POST /api/auctions/{id}/orders", handlers.Orders.SubmitOrder)
	mux.HandleFunc("GET /api/auctions/{id}/orders", handlers.Orders.ListOrders)

	// Settlement and the claim/refund phase.
	mux.HandleFunc("POST /api/auctions/{id}/settle", handlers.Settlement.Settle)
	mux.HandleFunc("GET /api/auctions/{id}/winners", handlers.Auctions.ListWinners)
	mux.HandleFunc("GET /api/auctions/{id}/clearing-price", handlers.Auctions.GetClearingPrice)
	mux.HandleFunc("POST /api/auctions/{id}/claims", handlers.Settlement.Claim)
	mux.HandleFunc("POST /api/auctions/{id}/refunds", handlers.Settlement.RefundDeposit)

	// Live event feed.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil {
		h = middleware.RateLimit(limiter, cfg.RateLimit, time.Second)(h)
	}
	h = middleware.Logging(logger)(h)
	h = cors(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// cors sets the response headers for allowed origins and answers preflight
// requests. No configured origins means allow all.
func cors(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origin, allowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(origin string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
