package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"

	"github.com/fastctx/fastctx/pkg/graph"
	"github.com/fastctx/fastctx/pkg/graphstore"
	"github.com/fastctx/fastctx/pkg/ingest"
	"github.com/fastctx/fastctx/pkg/mcptools"
	"github.com/fastctx/fastctx/pkg/models"
	"github.com/fastctx/fastctx/pkg/source"
	"github.com/fastctx/fastctx/pkg/storage"
	"github.com/fastctx/fastctx/pkg/workspace"
	"github.com/go-chi/chi/v5"
)

const (
	defaultGraphLimit = 1000
	defaultExamples   = 5
	defaultK          = 4
	defaultPathDepth  = 10
)

// handleQuery runs a raw read-only Cypher statement
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if !s.decode(w, r, &req) {
		return
	}

	rows, err := s.store.RunQuery(r.Context(), req.Query, req.Params)
	if err != nil {
		if errors.Is(err, graphstore.ErrWriteQuery) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("Query failed")
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Query failed: %v", err))
		return
	}

	s.writeJSON(w, http.StatusOK, models.QueryResponse{Rows: rows, Count: len(rows)})
}

// handleSchema returns the graph schema
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := s.chain.Schema(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to get schema")
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error retrieving graph schema: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, schema)
}

// handleGraph returns nodes and relationships for visualisation
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.queryInt(w, r, "limit", defaultGraphLimit)
	if !ok {
		return
	}

	snapshot, err := s.chain.Graph(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to get graph")
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error retrieving graph data: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, snapshot)
}

// handleIngestLocal ingests a directory on the server's filesystem
func (s *Server) handleIngestLocal(w http.ResponseWriter, r *http.Request) {
	var req models.LocalIngestRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.ingest(w, r, models.RunKindLocal, req.Path)
}

// handleIngestGitHub downloads and ingests a GitHub repository
func (s *Server) handleIngestGitHub(w http.ResponseWriter, r *http.Request) {
	var req models.GitHubIngestRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.ingest(w, r, models.RunKindGitHub, req.URL)
}

// ingest runs synchronously unless ?async=true is given.
func (s *Server) ingest(w http.ResponseWriter, r *http.Request, kind, target string) {
	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		s.startRun(w, r, kind, target)
		return
	}

	run, err := s.runner.Run(r.Context(), kind, target)
	if err != nil {
		status, message := runErrorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error().Err(err).Str("kind", kind).Str("target", target).Msg("Ingestion failed")
		}
		s.writeError(w, status, message)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

// handleIndex starts a background index run
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req models.IndexRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.startRun(w, r, models.RunKindIndex, req.RootDir)
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request, kind, target string) {
	run, err := s.runner.Start(r.Context(), kind, target)
	if errors.Is(err, ingest.ErrShutdown) {
		s.writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Str("kind", kind).Msg("Failed to start run")
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to start run: %v", err))
		return
	}
	s.writeJSON(w, http.StatusAccepted, models.RunAccepted{
		Message: fmt.Sprintf("Started %s run for %s", kind, target),
		RunID:   run.ID,
		Status:  string(run.Status),
	})
}

// runErrorStatus maps an ingestion failure to a response status.
func runErrorStatus(err error) (int, string) {
	var dl *source.DownloadError
	switch {
	case errors.Is(err, source.ErrInvalidGitHubURL), errors.Is(err, ingest.ErrUnknownKind):
		return http.StatusBadRequest, err.Error()
	case errors.As(err, &dl):
		status := dl.StatusCode
		if status < 400 {
			status = http.StatusBadGateway
		}
		return status, fmt.Sprintf("Failed to download file at: %s", dl.URL)
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound, err.Error()
	}
	return http.StatusInternalServerError, fmt.Sprintf("Ingestion failed: %v", err)
}

// handleListRuns lists runs, newest first
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := s.queryInt(w, r, "limit", 0)
	if !ok {
		return
	}
	filter := models.RunFilter{
		Kind:   r.URL.Query().Get("kind"),
		Status: models.RunStatus(r.URL.Query().Get("status")),
		Limit:  limit,
	}

	runs, err := s.runner.List(r.Context(), filter)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list runs")
		s.writeError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	if runs == nil {
		runs = []*models.Run{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

// handleGetRun returns one run
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "Invalid ID")
		return
	}

	run, err := s.runner.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, fmt.Sprintf("Run %d not found", id))
			return
		}
		s.logger.Error().Err(err).Int("run_id", id).Msg("Failed to get run")
		s.writeError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

// handleQA answers a question from the graph
func (s *Server) handleQA(w http.ResponseWriter, r *http.Request) {
	var req models.QARequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.K == 0 {
		req.K = defaultK
	}

	resp, err := s.chain.Ask(r.Context(), req.Query, req.K)
	if err != nil {
		s.logger.Error().Err(err).Msg("QA failed")
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error retrieving context: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleContext returns the chunks most similar to a query
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	var req models.ContextRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.K == 0 {
		req.K = defaultK
	}

	items, err := s.chain.Context(r.Context(), req.Query, req.K)
	if err != nil {
		s.logger.Error().Err(err).Msg("Context retrieval failed")
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error retrieving context: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, items)
}

// handleExamples suggests questions with the Cypher that answers them
func (s *Server) handleExamples(w http.ResponseWriter, r *http.Request) {
	n, ok := s.queryInt(w, r, "n", defaultExamples)
	if !ok {
		return
	}

	examples, err := s.chain.ExampleQueries(r.Context(), n)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate examples")
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error generating example queries: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, examples)
}

// handleListTools lists the MCP tool catalogue
func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, mcptools.Catalogue)
}

// handleExecuteTool runs one MCP tool with a JSON argument object
func (s *Server) handleExecuteTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	args := map[string]interface{}{}
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	result, err := s.tools.Execute(r.Context(), name, args)
	if err != nil {
		var te *mcptools.ToolError
		if errors.As(err, &te) {
			s.writeError(w, te.Status, te.Message)
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

// handleWorkspaceInit scans a directory into the workspace graph
func (s *Server) handleWorkspaceInit(w http.ResponseWriter, r *http.Request) {
	var req models.WorkspaceInitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	result, err := s.workspace.Initialize(r.Context(), req.Path)
	if err != nil {
		s.logger.Error().Err(err).Str("path", req.Path).Msg("Workspace initialization failed")
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to initialize workspace: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleWorkspaceExecute interprets and runs a workspace command
func (s *Server) handleWorkspaceExecute(w http.ResponseWriter, r *http.Request) {
	var req models.WorkspaceCommandRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.writeJSON(w, http.StatusOK, s.workspace.Execute(r.Context(), req.Command))
}

// handleWorkspaceTools lists the workspace commands
func (s *Server) handleWorkspaceTools(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"tools": workspace.Tools()})
}

// handleWorkspaceUpdate re-analyses one file
func (s *Server) handleWorkspaceUpdate(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("file_path")
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "missing required parameter: file_path")
		return
	}

	result, err := s.workspace.Update(r.Context(), path)
	if err != nil {
		if errors.Is(err, workspace.ErrFileNotFound) {
			s.writeJSON(w, http.StatusNotFound, result)
			return
		}
		s.logger.Error().Err(err).Str("path", path).Msg("Workspace update failed")
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to update file: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleWorkspaceNode returns one node's details
func (s *Server) handleWorkspaceNode(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.workspace.Node(chi.URLParam(r, "id")))
}

// handleWorkspacePath finds the shortest path between two nodes
func (s *Server) handleWorkspacePath(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if from == "" || to == "" {
		s.writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	depth, ok := s.queryInt(w, r, "max_depth", defaultPathDepth)
	if !ok {
		return
	}

	result, err := s.workspace.Path(from, to, depth)
	if err != nil {
		if errors.Is(err, graph.ErrNodeNotFound) || errors.Is(err, graph.ErrNoPath) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// Helper functions

// decode reads a JSON body into dst and validates it. It writes the error
// response and returns false on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return false
	}
	if valid, errs := s.validator.Validate(dst); !valid {
		s.writeError(w, http.StatusBadRequest, "Validation failed", errs...)
		return false
	}
	return true
}

func (s *Server) queryInt(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s", key))
		return 0, false
	}
	return n, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string, details ...string) {
	s.writeJSON(w, status, models.ErrorResponse{
		Error: models.ErrorBody{
			Message: message,
			Status:  status,
			Details: details,
		},
	})
}
