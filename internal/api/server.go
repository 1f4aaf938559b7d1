// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/cardano-portfolio/internal/logging"
	"github.com/cardano-portfolio/internal/models"
	"github.com/cardano-portfolio/internal/service"
)

// Service interfaces for dependency injection and testing

// WalletServiceInterface defines wallet, target and token definition operations
type WalletServiceInterface interface {
	CreateWallet(ctx context.Context, input *service.CreateWalletInput) (*models.Wallet, error)
	GetWallet(ctx context.Context, id string) (*models.Wallet, error)
	ListActive(ctx context.Context, offset, limit int) ([]*models.Wallet, error)
	UpdateSettings(ctx context.Context, id string, input *service.UpdateSettingsInput) (*models.Wallet, error)
	Deactivate(ctx context.Context, id string) error
	ReplaceTargets(ctx context.Context, walletID string, input []service.TargetInput) ([]models.Target, error)
	ListTargets(ctx context.Context, walletID string) ([]models.Target, error)
	UpsertTokenDefinition(ctx context.Context, def *models.TokenDefinition) (*models.TokenDefinition, error)
	ListTokenDefinitions(ctx context.Context) ([]*models.TokenDefinition, error)
}

// PortfolioServiceInterface defines the read-side operations
type PortfolioServiceInterface interface {
	CurrentAllocation(ctx context.Context, walletID string) (*service.AllocationView, error)
	AllocationHistory(ctx context.Context, walletID string, from, to *time.Time) ([]service.AllocationPoint, error)
	ListSnapshots(ctx context.Context, walletID string, from, to *time.Time) ([]service.SnapshotView, error)
	PriceHistory(ctx context.Context, unit string, from, to *time.Time) ([]models.PriceSnapshot, error)
	ListAlerts(ctx context.Context, walletID string, limit int) ([]*models.AlertEvent, error)
}

// SnapshotServiceInterface defines the paginated snapshot run
type SnapshotServiceInterface interface {
	RunPage(ctx context.Context, offset, limit int, now time.Time) (*service.PageResult, error)
}

// AlertServiceInterface defines the threshold evaluator
type AlertServiceInterface interface {
	EvaluateActive(ctx context.Context, bucket *time.Time) (*service.EvaluateResult, error)
}

// Server represents the HTTP API server.
type Server struct {
	router           *mux.Router
	httpServer       *http.Server
	walletService    WalletServiceInterface
	portfolioService PortfolioServiceInterface
	snapshotService  SnapshotServiceInterface
	alertService     AlertServiceInterface
	config           *ServerConfig
	now              func() time.Time
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	APIToken          string
	RequestsPerMinute int
	DefaultPageSize   int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	walletService WalletServiceInterface,
	portfolioService PortfolioServiceInterface,
	snapshotService SnapshotServiceInterface,
	alertService AlertServiceInterface,
) *Server {
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = 50
	}

	s := &Server{
		router:           mux.NewRouter(),
		walletService:    walletService,
		portfolioService: portfolioService,
		snapshotService:  snapshotService,
		alertService:     alertService,
		config:           config,
		now:              time.Now,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerMinute)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

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

	// Wallet endpoints
	api.HandleFunc("/wallets", s.handleCreateWallet).Methods(http.MethodPost)
	api.HandleFunc("/wallets", s.handleListWallets).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{id}", s.handleGetWallet).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{id}", s.handleDeactivateWallet).Methods(http.MethodDelete)
	api.HandleFunc("/wallets/{id}/settings", s.handleUpdateSettings).Methods(http.MethodPut)
	api.HandleFunc("/wallets/{id}/targets", s.handleReplaceTargets).Methods(http.MethodPut)
	api.HandleFunc("/wallets/{id}/targets", s.handleListTargets).Methods(http.MethodGet)

	// Read side
	api.HandleFunc("/wallets/{id}/allocation", s.handleCurrentAllocation).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{id}/allocation/history", s.handleAllocationHistory).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{id}/snapshots", s.handleListSnapshots).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{id}/alerts", s.handleListAlerts).Methods(http.MethodGet)
	api.HandleFunc("/prices/{unit}/history", s.handlePriceHistory).Methods(http.MethodGet)

	// Token definitions
	api.HandleFunc("/tokens", s.handleListTokens).Methods(http.MethodGet)
	api.HandleFunc("/tokens/{unit}", s.handleUpsertToken).Methods(http.MethodPut)

	// Pipeline endpoints, called by the external scheduler
	pipeline := api.PathPrefix("/pipeline").Subrouter()
	pipeline.Use(AuthMiddleware(s.config.APIToken))
	pipeline.HandleFunc("/snapshot", s.handleRunSnapshot).Methods(http.MethodPost)
	pipeline.HandleFunc("/alerts", s.handleEvaluateAlerts).Methods(http.MethodPost)
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "cardano-portfolio",
	})
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logger := logging.GetGlobalLogger().WithComponent("api")
	if s.config.APIToken == "" {
		logger.Warn("API_TOKEN is empty; pipeline endpoints are unauthenticated")
	}
	logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.GetGlobalLogger().WithComponent("api").Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
