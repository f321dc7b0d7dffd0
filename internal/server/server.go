// Package server provides the HTTP server for the resource API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/synchub/api/internal/apierrors"
	"github.com/synchub/api/internal/auth"
	"github.com/synchub/api/internal/config"
	"github.com/synchub/api/internal/handler"
	"github.com/synchub/api/internal/health"
	"github.com/synchub/api/internal/idempotency"
	"github.com/synchub/api/internal/metrics"
	"github.com/synchub/api/internal/middleware"
)

// route describes a single API endpoint. Routes are registered in a static
// table so the auth requirements live next to the paths they protect.
type route struct {
	method  string
	path    string
	handler http.HandlerFunc
	public  bool
}

// Server represents the HTTP server.
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	handlers    *handler.Handlers
	healthCheck *health.HealthCheck
	errorWriter *apierrors.Writer
	authMW      *auth.Middleware
	idempotency *idempotency.Middleware
	metrics     *metrics.Metrics
	logger      *zap.Logger
	cfg         *config.Config
}

// Options carries the optional collaborators for a Server.
type Options struct {
	Idempotency *idempotency.Middleware
	Metrics     *metrics.Metrics
}

// NewServer creates a new HTTP server.
func NewServer(cfg *config.Config, handlers *handler.Handlers, healthCheck *health.HealthCheck, logger *zap.Logger, opts Options) *Server {
	router := mux.NewRouter()
	errorWriter := apierrors.NewWriter(logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		router:      router,
		httpServer:  httpServer,
		handlers:    handlers,
		healthCheck: healthCheck,
		errorWriter: errorWriter,
		authMW:      auth.NewMiddleware(errorWriter),
		idempotency: opts.Idempotency,
		metrics:     opts.Metrics,
		logger:      logger,
		cfg:         cfg,
	}
}

// routes returns the static route table.
func (s *Server) routes() []route {
	h := s.handlers
	return []route{
		{http.MethodGet, "/_health", s.healthCheck.LivenessHandler, true},
		{http.MethodGet, "/ready", s.healthCheck.ReadinessHandler, true},

		{http.MethodGet, "/settings", h.ListSettings, false},
		{http.MethodPost, "/settings", h.CreateSetting, false},
		{http.MethodGet, "/settings/public", h.ListPublicSettings, true},
		{http.MethodGet, "/settings/{id}", h.GetSetting, false},
		{http.MethodPut, "/settings/{id}", h.UpdateSetting, false},
		{http.MethodDelete, "/settings/{id}", h.DeleteSetting, false},
		{http.MethodGet, "/settings/{id}/history", h.GetSettingHistory, false},
		{http.MethodPost, "/settings/{id}/rollback", h.RollbackSetting, false},
		{http.MethodPut, "/settings/{id}/visibility", h.UpdateSettingVisibility, false},

		{http.MethodGet, "/bookmarks", h.ListBookmarks, false},
		{http.MethodPost, "/bookmarks", h.CreateBookmark, false},
		{http.MethodGet, "/bookmarks/{id}", h.GetBookmark, false},
		{http.MethodPut, "/bookmarks/{id}", h.UpdateBookmark, false},
		{http.MethodDelete, "/bookmarks/{id}", h.DeleteBookmark, false},

		{http.MethodGet, "/groups", h.ListGroups, false},
		{http.MethodPost, "/groups", h.CreateGroup, false},
		{http.MethodGet, "/groups/{id}", h.GetGroup, false},
		{http.MethodPut, "/groups/{id}", h.UpdateGroup, false},
		{http.MethodDelete, "/groups/{id}", h.DeleteGroup, false},
		{http.MethodGet, "/groups/{id}/members", h.ListGroupMembers, false},
		{http.MethodPost, "/groups/{id}/invite", h.InviteGroupMember, false},

		{http.MethodPost, "/auth/device/start", h.StartDeviceFlow, false},
		{http.MethodPost, "/auth/device/confirm", h.ConfirmDeviceFlow, true},

		{http.MethodPost, "/sessions/{id}/emoji", h.SessionEmoji, false},
	}
}

// SetupRoutes configures all HTTP routes.
func (s *Server) SetupRoutes() {
	// Setup middleware chain
	middlewareChain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
		middleware.CORS([]string{"*"}),
	}

	if s.metrics != nil {
		middlewareChain = append(middlewareChain, metrics.Middleware(s.metrics))
	}

	// Add rate limiter if enabled
	if s.cfg.RateLimiter.Enabled {
		rateLimiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.logger,
		)
		middlewareChain = append(middlewareChain, rateLimiter.Limit)
	}

	if s.idempotency != nil {
		middlewareChain = append(middlewareChain, s.idempotency.Handle)
	}

	// Apply middleware to router
	chain := middleware.Chain(middlewareChain...)
	s.router.Use(func(next http.Handler) http.Handler {
		return chain(next)
	})

	for _, rt := range s.routes() {
		var h http.Handler = rt.handler
		if !rt.public {
			h = s.authMW.Authenticate(h)
		}
		s.router.Handle(rt.path, h).Methods(rt.method)
	}

	// Not found handler
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorWriter.WriteErrorResponse(w, http.StatusNotFound, "not found")
	})

	// Method not allowed handler
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.errorWriter.WriteErrorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server",
		zap.Int("port", s.cfg.Server.Port),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// GetRouter returns the router for testing purposes.
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// GetHandler returns the http.Handler for the server.
func (s *Server) GetHandler() http.Handler {
	return s.router
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() chan error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errChan <- err
		}
		close(errChan)
	}()

	// Give the server a moment to start
	time.Sleep(100 * time.Millisecond)
	return errChan
}
