// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/mux"

	"github.com/portfolio-ledger/internal/account"
	"github.com/portfolio-ledger/internal/graph"
	"github.com/portfolio-ledger/internal/instruction"
	"github.com/portfolio-ledger/internal/logging"
	"github.com/portfolio-ledger/internal/models"
	"github.com/portfolio-ledger/internal/service"
)

// PortfolioServiceInterface defines the portfolio operations the API exposes
type PortfolioServiceInterface interface {
	Derive(owner solana.PublicKey) (*service.DerivedAddress, error)
	Execute(ctx context.Context, address solana.PublicKey, env *instruction.Envelope) (*account.Record, error)
	GetPortfolio(ctx context.Context, address solana.PublicKey) (*service.PortfolioView, error)
	GetPortfolioByOwner(ctx context.Context, owner solana.PublicKey) (*service.PortfolioView, error)
	GetActivity(ctx context.Context, address solana.PublicKey, limit int) ([]*models.ActivityEvent, error)
	GetVouchesBy(ctx context.Context, voucher solana.PublicKey) ([]graph.Endorsement, error)
}

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP API server.
type Server struct {
	router           *mux.Router
	httpServer       *http.Server
	portfolioService PortfolioServiceInterface
	rateLimiter      *RateLimiter
	config           *ServerConfig

	checksMu sync.RWMutex
	checks   map[string]HealthCheck

	stopJanitor chan struct{}
	stopOnce    sync.Once
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestsPerSec  int
	Burst           int
	MaxBodyBytes    int64
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, portfolioService PortfolioServiceInterface) *Server {
	s := &Server{
		router:           mux.NewRouter(),
		portfolioService: portfolioService,
		config:           config,
		checks:           make(map[string]HealthCheck),
		stopJanitor:      make(chan struct{}),
	}
	if s.config.MaxBodyBytes <= 0 {
		s.config.MaxBodyBytes = 64 << 10
	}

	s.setupRouter()
	return s
}

// AddHealthCheck registers a dependency reported by /health
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checksMu.Lock()
	defer s.checksMu.Unlock()
	s.checks[name] = check
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.rateLimiter = NewRateLimiter(s.config.RequestsPerSec, s.config.Burst)

	// Order matters: the logger must be in the context before anything can fail,
	// and recovery must sit inside compression so a 500 is written before the
	// gzip stream commits a status
	s.router.Use(LoggingMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(s.rateLimiter))
	s.router.Use(CompressionMiddleware)
	s.router.Use(RecoveryMiddleware)

	s.setupRoutes()

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Route not found", nil)
	})

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/programs/derive/{owner}", s.handleDerive).Methods(http.MethodGet)

	api.HandleFunc("/portfolios/{address}/instructions", s.handleExecute).Methods(http.MethodPost)
	api.HandleFunc("/portfolios/{address}", s.handleGetPortfolio).Methods(http.MethodGet)
	api.HandleFunc("/portfolios/{address}/activity", s.handleGetActivity).Methods(http.MethodGet)

	api.HandleFunc("/owners/{owner}/portfolio", s.handleGetPortfolioByOwner).Methods(http.MethodGet)
	api.HandleFunc("/vouchers/{voucher}/vouches", s.handleGetVouches).Methods(http.MethodGet)

	// Preflight requests only need the CORS middleware
	s.router.PathPrefix("/").Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleHealth reports service health and the state of registered dependencies.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	s.checksMu.RLock()
	defer s.checksMu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	deps := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	respondJSON(w, code, map[string]interface{}{
		"status":       status,
		"service":      "portfolio-ledger",
		"dependencies": deps,
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	logging.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	go s.runJanitor(time.Minute, 10*time.Minute)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// runJanitor drops idle rate limiter entries until Shutdown
func (s *Server) runJanitor(every, maxIdle time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.rateLimiter.Cleanup(maxIdle); n > 0 {
				logging.WithField("dropped", n).Debug("Dropped idle rate limiters")
			}
		case <-s.stopJanitor:
			return
		}
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server")
	s.stopOnce.Do(func() { close(s.stopJanitor) })
	return s.httpServer.Shutdown(ctx)
}
