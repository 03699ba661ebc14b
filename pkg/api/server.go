// Package api serves the indexer's read side over HTTP: GraphQL block
// queries, WebSocket event subscriptions, sync status, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/0xmhha/tron-indexer-go/internal/constants"
	"github.com/0xmhha/tron-indexer-go/pkg/api/graphql"
	apimiddleware "github.com/0xmhha/tron-indexer-go/pkg/api/middleware"
	"github.com/0xmhha/tron-indexer-go/pkg/api/websocket"
	"github.com/0xmhha/tron-indexer-go/pkg/events"
	"github.com/0xmhha/tron-indexer-go/pkg/observer"
	"github.com/0xmhha/tron-indexer-go/pkg/storage"
)

// ServerOptions contains optional collaborators for the API server
type ServerOptions struct {
	// Status supplies the sync status; nil disables /status and the graphql syncStatus query
	Status graphql.StatusProvider

	// EventBus feeds WebSocket subscriptions; nil disables /ws
	EventBus *events.EventBus

	// Observers is reported by /observers
	Observers *observer.Registry

	// Health drives /health; when nil a checker over Status and storage is built
	Health *HealthChecker

	// Gatherer serves /metrics; nil means the default registry
	Gatherer prometheus.Gatherer

	Version string
}

// Server represents the API server
type Server struct {
	config  *Config
	logger  *zap.Logger
	storage storage.BlockReader
	opts    ServerOptions

	router      *chi.Mux
	server      *http.Server
	wsServer    *websocket.Server
	rateLimiter *apimiddleware.RateLimiter
}

// NewServer creates a new API server
func NewServer(config *Config, logger *zap.Logger, store storage.BlockReader, opts *ServerOptions) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:  config,
		logger:  logger.With(zap.String("component", "api")),
		storage: store,
		router:  chi.NewRouter(),
	}
	if opts != nil {
		s.opts = *opts
	}
	if s.opts.Health == nil {
		s.opts.Health = NewHealthChecker("", s.opts.Version)
		s.opts.Health.SetStorage(store)
		if s.opts.Status != nil {
			s.opts.Health.SetStatusProvider(s.opts.Status)
		}
	}

	s.setupMiddleware()
	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, err
	}

	s.server = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s, nil
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware() {
	// Recovery middleware (must be first)
	s.router.Use(apimiddleware.Recovery(s.logger))
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apimiddleware.LoggerWithLevel(s.logger))

	if s.config.EnableRateLimit {
		s.rateLimiter = apimiddleware.NewRateLimiter(
			s.config.RateLimitPerSecond,
			s.config.RateLimitBurst,
			s.logger,
		)
		s.router.Use(s.rateLimiter.Middleware)
		s.logger.Info("rate limiting enabled",
			zap.Float64("rate_per_second", s.config.RateLimitPerSecond),
			zap.Int("burst", s.config.RateLimitBurst),
		)
	}

	if s.config.EnableCORS {
		s.router.Use(s.cors)
	}
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Upgrade, Connection")
			w.Header().Set("Access-Control-Max-Age", "300")
			w.Header().Add("Vary", "Origin")
		}

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.config.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() error {
	if s.config.EnableWebSocket && s.opts.EventBus != nil {
		s.wsServer = websocket.NewServer(s.opts.EventBus, s.logger)
		s.router.Get(s.config.WebSocketPath, s.wsServer.ServeHTTP)
		s.logger.Info("WebSocket API enabled", zap.String("path", s.config.WebSocketPath))
	}

	s.router.Get(constants.DefaultHealthPath, s.handleHealth)
	s.router.Get(constants.DefaultHealthPath+"/live", s.handleLive)
	s.router.Get(constants.DefaultStatusPath, s.handleStatus)
	s.router.Get("/version", s.handleVersion)
	s.router.Get("/subscribers", s.handleSubscribers)
	s.router.Get("/observers", s.handleObservers)

	if s.opts.Gatherer != nil {
		s.router.Handle(constants.DefaultMetricsPath, promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	} else {
		s.router.Handle(constants.DefaultMetricsPath, promhttp.Handler())
	}

	if s.config.EnableGraphQL {
		handler, err := graphql.NewHandler(s.storage, s.opts.Status, s.logger)
		if err != nil {
			return fmt.Errorf("failed to create GraphQL handler: %w", err)
		}
		s.router.Handle(s.config.GraphQLPath, handler)
		s.logger.Info("GraphQL API enabled", zap.String("path", s.config.GraphQLPath))
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleHealth answers 200 unless the checker reports the service unhealthy
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.opts.Health.GetDetailedHealth(r.Context())

	code := http.StatusOK
	if health.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, health)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus serves the sync status document
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.opts.Status == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "sync status not available"})
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Status.Status())
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    "tron-indexer-go",
		"version": s.opts.Version,
	})
}

// SubscribersResponse represents the subscribers list response
type SubscribersResponse struct {
	TotalCount  int                     `json:"total_count"`
	Subscribers []events.SubscriberInfo `json:"subscribers"`
}

func (s *Server) handleSubscribers(w http.ResponseWriter, r *http.Request) {
	if s.opts.EventBus == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "EventBus not configured"})
		return
	}

	subscribers := s.opts.EventBus.GetAllSubscriberInfo()
	writeJSON(w, http.StatusOK, SubscribersResponse{
		TotalCount:  len(subscribers),
		Subscribers: subscribers,
	})
}

func (s *Server) handleObservers(w http.ResponseWriter, r *http.Request) {
	if s.opts.Observers == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "observer registry not configured"})
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Observers.Stats())
}

// Start serves until Stop is called
func (s *Server) Start() error {
	s.logger.Info("starting API server",
		zap.String("address", s.config.Address()),
		zap.Bool("graphql", s.config.EnableGraphQL),
		zap.Bool("websocket", s.wsServer != nil),
	)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")
	s.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped gracefully")
	return nil
}

// Close releases the WebSocket clients and the rate limiter
func (s *Server) Close() {
	if s.wsServer != nil {
		s.wsServer.Stop()
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}

// Router returns the underlying chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}
