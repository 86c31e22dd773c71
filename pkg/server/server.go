package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fastctx/fastctx/pkg/config"
	"github.com/fastctx/fastctx/pkg/graphstore"
	"github.com/fastctx/fastctx/pkg/ingest"
	"github.com/fastctx/fastctx/pkg/mcptools"
	"github.com/fastctx/fastctx/pkg/metrics"
	"github.com/fastctx/fastctx/pkg/qa"
	"github.com/fastctx/fastctx/pkg/validation"
	"github.com/fastctx/fastctx/pkg/workspace"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Services are the components the HTTP API is built on
type Services struct {
	Store     graphstore.Store
	Chain     *qa.Chain
	Runner    *ingest.Runner
	Tools     *mcptools.Tools
	Workspace *workspace.Workspace
}

// Server represents the HTTP server
type Server struct {
	config    *config.Config
	store     graphstore.Store
	chain     *qa.Chain
	runner    *ingest.Runner
	tools     *mcptools.Tools
	workspace *workspace.Workspace
	validator validation.Validator
	logger    zerolog.Logger
	router    *chi.Mux
	http      *http.Server
}

// New creates a new server instance
func New(
	cfg *config.Config,
	svc Services,
	validator validation.Validator,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		config:    cfg,
		store:     svc.Store,
		chain:     svc.Chain,
		runner:    svc.Runner,
		tools:     svc.Tools,
		workspace: svc.Workspace,
		validator: validator,
		logger:    logger.With().Str("component", "server").Logger(),
		router:    chi.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(metrics.Middleware)
	s.router.Use(cors.New(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler)

	// Ingestion and MCP streams may outlive the request timeout
	s.router.Post("/api/documents/local", s.handleIngestLocal)
	s.router.Post("/api/documents/github", s.handleIngestGitHub)
	if s.tools != nil {
		s.router.Handle("/mcp", mcptools.HTTPHandler(mcptools.NewServer(s.tools, config.Version)))
	}

	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(60 * time.Second))

		// Health check
		r.Get("/", s.handleRoot)
		r.Get("/health", s.handleHealth)
		r.Get("/version", s.handleVersion)
		r.Handle("/metrics", metrics.Handler())

		// Graph
		r.Post("/query", s.handleQuery)
		r.Get("/schema", s.handleSchema)

		r.Route("/api", func(r chi.Router) {
			r.Get("/graph", s.handleGraph)

			r.Post("/index", s.handleIndex)
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{id}", s.handleGetRun)

			r.Post("/qa", s.handleQA)
			r.Post("/context", s.handleContext)
			r.Get("/examples", s.handleExamples)

			r.Get("/mcp/tools", s.handleListTools)
			r.Post("/mcp/tools/{name}/execute", s.handleExecuteTool)

			r.Route("/workspace", func(r chi.Router) {
				r.Post("/initialize", s.handleWorkspaceInit)
				r.Post("/execute", s.handleWorkspaceExecute)
				r.Get("/tools", s.handleWorkspaceTools)
				r.Post("/update", s.handleWorkspaceUpdate)
				r.Get("/node/{id}", s.handleWorkspaceNode)
				r.Get("/path", s.handleWorkspacePath)
			})
		})
	})
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("Starting server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Handler returns the HTTP handler (useful for testing)
func (s *Server) Handler() http.Handler {
	return s.router
}

// handleRoot is the frontend liveness check
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"Hello": "World"})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	resp := map[string]interface{}{
		"version": config.Version,
	}
	if err := s.store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
		resp["neo4j"] = err.Error()
	}
	resp["status"] = status
	s.writeJSON(w, code, resp)
}

// handleVersion returns server version
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"version": config.Version,
	})
}
