// Package httpapi exposes positions and rate history over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/shopspring/decimal"

	"cryptoRateWatch/internal/app"
	"cryptoRateWatch/internal/domain"
	"cryptoRateWatch/internal/ports"
)

// PositionAPI is the position use-case surface served over HTTP.
type PositionAPI interface {
	OpenPosition(ctx context.Context, symbol string, quantity, entryPrice decimal.Decimal, side domain.Side) (*domain.Position, error)
	ClosePosition(ctx context.Context, id string) (bool, error)
	ListOpen(ctx context.Context) ([]*domain.Position, error)
	ProfitLoss(ctx context.Context, id string, currentPrice decimal.Decimal) (domain.RevaluationResult, error)
}

// RateAPI is the rate use-case surface served over HTTP.
type RateAPI interface {
	TriggerFetch(ctx context.Context) (app.CycleReport, error)
	RecentRates(ctx context.Context, symbol string) ([]domain.RateSample, error)
}

// Config holds server configuration
type Config struct {
	Port      int
	Logger    ports.Logger
	Positions PositionAPI
	Rates     RateAPI
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	logger    ports.Logger
	positions PositionAPI
	rates     RateAPI
	port      int
}

// New creates a new HTTP server
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil || cfg.Positions == nil || cfg.Rates == nil {
		return nil, fmt.Errorf("missing required dependencies for HTTP server")
	}
	s := &Server{
		router:    chi.NewRouter(),
		logger:    cfg.Logger,
		positions: cfg.Positions,
		rates:     cfg.Rates,
		port:      cfg.Port,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/positions", func(r chi.Router) {
			r.Post("/", s.handleOpenPosition)
			r.Get("/", s.handleListPositions)
			r.Delete("/{id}", s.handleClosePosition)
			r.Get("/{id}/pnl", s.handlePositionPnL)
		})
		r.Route("/rates", func(r chi.Router) {
			r.Post("/fetch", s.handleFetchRates)
			r.Get("/recent/{symbol}", s.handleRecentRates)
		})
	})
}

// Start serves until Shutdown is called. http.ErrServerClosed is not reported as an error.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "Starting HTTP server", map[string]interface{}{"port": s.port})
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug(r.Context(), "HTTP request", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}
