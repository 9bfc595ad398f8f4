package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/reachforge/outreachd/internal/candidate"
	"github.com/reachforge/outreachd/internal/config"
	"github.com/reachforge/outreachd/internal/ingest"
	"github.com/reachforge/outreachd/internal/linkedinq"
	"github.com/reachforge/outreachd/internal/metrics"
	"github.com/reachforge/outreachd/internal/role"
	"github.com/reachforge/outreachd/internal/sequence"
	"github.com/reachforge/outreachd/internal/template"
)

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	candidates candidate.Store
	roles      *role.Storage
	templates  *template.Storage
	engine     *template.Engine
	ingestor   *ingest.Ingestor
	scheduler  *sequence.Scheduler
	assigner   *linkedinq.Assigner
	queues     *linkedinq.Storage

	config    *config.APIConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
	startTime time.Time
}

// Deps bundles the collaborators the API exposes
type Deps struct {
	Candidates candidate.Store
	Roles      *role.Storage
	Templates  *template.Storage
	Ingestor   *ingest.Ingestor
	Scheduler  *sequence.Scheduler
	Assigner   *linkedinq.Assigner
	Queues     *linkedinq.Storage
	Metrics    *metrics.Metrics
}

// NewServer creates a new API server
func NewServer(deps Deps, cfg *config.APIConfig, logger *slog.Logger) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		candidates: deps.Candidates,
		roles:      deps.Roles,
		templates:  deps.Templates,
		engine:     template.NewEngine(),
		ingestor:   deps.Ingestor,
		scheduler:  deps.Scheduler,
		assigner:   deps.Assigner,
		queues:     deps.Queues,
		config:     cfg,
		metrics:    deps.Metrics,
		logger:     logger,
		startTime:  time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	// Public queue surface: authenticated by the opaque token alone
	s.router.Route("/api/v1/linkedin-queue/{token}", func(r chi.Router) {
		r.Get("/", s.handleQueueByToken)
		r.Patch("/assignments/{assignmentID}", s.handleAssignmentUpdate)
	})

	// Admin surface (API key required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/roles", s.handleCreateRole)
		r.Get("/roles", s.handleListRoles)
		r.Get("/roles/{roleID}", s.handleGetRole)

		r.Post("/roles/{roleID}/candidates", s.handleIngest)
		r.Get("/roles/{roleID}/candidates", s.handleListCandidates)
		r.Get("/roles/{roleID}/analytics", s.handleAnalytics)

		r.Put("/roles/{roleID}/templates", s.handlePutTemplates)
		r.Get("/roles/{roleID}/templates", s.handleGetTemplates)

		r.Post("/events/inbound", s.handleInboundEvent)

		r.Post("/roles/{roleID}/queues", s.handleCreateQueue)
		r.Get("/roles/{roleID}/queues", s.handleListQueues)
		r.Delete("/queues/{queueID}", s.handleDeleteQueue)
	})
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP API server", "addr", s.config.ListenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Router exposes the handler for tests
func (s *Server) Router() http.Handler {
	return s.router
}
