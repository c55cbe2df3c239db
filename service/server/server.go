package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/photopay/photopay/service/config"
	"github.com/photopay/photopay/service/db"
	"github.com/photopay/photopay/service/metrics"
	"github.com/photopay/photopay/service/nats"
	"github.com/photopay/photopay/service/solana"
	"github.com/photopay/photopay/service/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server for the marketplace service.
type Server struct {
	addr         string
	cfg          *config.Config
	store        *db.Store
	solanaClient *solana.Client
	objectStore  storage.ObjectStore
	publisher    nats.Publisher
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The publisher is optional - if nil, purchase events are not emitted.
// The metrics is optional - if nil, the metrics endpoint won't be available.
func New(addr string, cfg *config.Config, store *db.Store, solanaClient *solana.Client, objectStore storage.ObjectStore, publisher nats.Publisher, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:         addr,
		cfg:          cfg,
		store:        store,
		solanaClient: solanaClient,
		objectStore:  objectStore,
		publisher:    publisher,
		metrics:      m,
		logger:       logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// handle registers a route with per-endpoint request metrics. The name is
	// a constant label, never the raw request path.
	handle := func(pattern, name string, h http.Handler) {
		mux.Handle(pattern, metrics.HTTPMetricsMiddleware(s.metrics, name)(h))
	}

	// User routes
	handle("POST /api/v1/users", "create_user", handleCreateUser(s.store, s.logger))
	handle("GET /api/v1/users/{wallet}", "get_user", handleGetUser(s.store, s.logger))
	handle("PUT /api/v1/users/{wallet}", "update_user", handleUpdateUser(s.store, s.logger))
	handle("GET /api/v1/users", "list_users", handleListUsers(s.store, s.logger))

	// Listing routes
	handle("POST /api/v1/listings", "create_listing", handleCreateListing(s.store, s.objectStore, s.cfg, s.logger))
	handle("GET /api/v1/listings", "list_listings", handleListListings(s.store, s.logger))
	handle("GET /api/v1/listings/{id}", "get_listing", handleGetListing(s.store, s.logger))
	handle("DELETE /api/v1/listings/{id}", "deactivate_listing", handleDeactivateListing(s.store, s.logger))
	handle("GET /api/v1/listings/{id}/download", "download_listing", handleDownloadListing(s.store, s.objectStore, s.cfg, s.logger))
	handle("GET /api/v1/creators/{wallet}/stats", "creator_stats", handleGetCreatorStats(s.store, s.logger))
	handle("GET /api/v1/buyers/{wallet}/unlocked", "unlocked_listings", handleListUnlockedListings(s.store, s.logger))

	// Purchase routes
	handle("POST /api/v1/purchases", "create_purchase", handleCreatePurchase(s.store, s.publisher, s.logger))
	handle("GET /api/v1/purchases", "list_purchases", handleListPurchases(s.store, s.logger))
	handle("GET /api/v1/purchases/{id}", "get_purchase", handleGetPurchase(s.store, s.logger))
	handle("POST /api/v1/purchases/{id}/transaction", "build_transaction", handleBuildPurchaseTransaction(s.store, s.solanaClient, s.cfg, s.logger))
	handle("POST /api/v1/purchases/{id}/verify", "verify_purchase", handleVerifyPurchase(s.store, s.solanaClient, s.publisher, s.metrics, s.cfg, s.logger))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	// Wrap mux with CORS middleware
	handler := corsMiddleware(mux)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		// Write timeout must outlast the synchronous verification budget.
		WriteTimeout: s.cfg.VerifyBudget + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
