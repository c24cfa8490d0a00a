package web

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/avbdev/crypto_scalper/internal/domain"
	"github.com/avbdev/crypto_scalper/internal/usecase"
)

// Server exposes the monitoring surface: JSON status endpoints, a
// websocket event stream and Prometheus metrics. It never mutates
// trading state except for the explicit risk-resume action.
type Server struct {
	router    *http.ServeMux
	server    *http.Server
	engine    *usecase.Engine
	tradeRepo domain.TradeRepository
	hub       *Hub
	logger    *zap.Logger
}

func NewServer(
	addr string,
	engine *usecase.Engine,
	tradeRepo domain.TradeRepository,
	hub *Hub,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:    http.NewServeMux(),
		engine:    engine,
		tradeRepo: tradeRepo,
		hub:       hub,
		logger:    logger,
	}
	s.routes()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	// Status
	s.router.HandleFunc("GET /api/status", s.handleStatus)

	// Positions
	s.router.HandleFunc("GET /api/positions", s.handlePositions)

	// Trades
	s.router.HandleFunc("GET /api/trades", s.handleTrades)

	// Risk
	s.router.HandleFunc("GET /api/risk", s.handleRisk)
	s.router.HandleFunc("POST /api/risk/resume", s.handleRiskResume)

	// Event stream
	s.router.HandleFunc("GET /ws", s.hub.handleWS)

	// Metrics
	s.router.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) Start() error {
	s.logger.Info("web server listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
