package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/flowstatehq/flowstate/types"
	"github.com/flowstatehq/flowstate/workflow"
)

// Server exposes the workflow engine over HTTP with JSON bodies. It
// holds no state beyond the engine; every handler is a thin adapter
// from request decoding to an engine call to response encoding.
type Server struct {
	engine *workflow.Engine
	logger *slog.Logger
}

// NewServer creates a Server for the given engine. A nil logger falls
// back to slog.Default.
func NewServer(engine *workflow.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, logger: logger}
}

// Handler returns the fully assembled http.Handler with all routes and
// middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /definitions", s.handleCreateDefinition)
	mux.HandleFunc("GET /definitions", s.handleListDefinitions)
	mux.HandleFunc("POST /instances", s.handleStartInstance)
	mux.HandleFunc("GET /instances", s.handleListInstances)
	mux.HandleFunc("GET /instances/{id}", s.handleGetInstance)
	mux.HandleFunc("POST /instances/{id}/execute", s.handleExecute)

	return corsMiddleware(loggingMiddleware(s.logger, mux))
}

// startInstanceRequest is the body of POST /instances.
type startInstanceRequest struct {
	DefinitionID string                 `json:"definitionId"`
	Context      map[string]interface{} `json:"context,omitempty"`
}

// executeRequest is the body of POST /instances/{id}/execute.
type executeRequest struct {
	ActionID string                 `json:"actionId"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleCreateDefinition(w http.ResponseWriter, r *http.Request) {
	var def types.WorkflowDefinition
	if !s.decode(w, r, &def) {
		return
	}

	created, err := s.engine.CreateDefinition(r.Context(), def)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	defs, err := s.engine.ListDefinitions(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if defs == nil {
		defs = []types.WorkflowDefinition{}
	}
	s.writeJSON(w, http.StatusOK, defs)
}

func (s *Server) handleStartInstance(w http.ResponseWriter, r *http.Request) {
	var req startInstanceRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.DefinitionID == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "definitionId is required"})
		return
	}

	inst, err := s.engine.StartInstance(r.Context(), req.DefinitionID, req.Context)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	insts, err := s.engine.ListInstances(r.Context())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if insts == nil {
		insts = []types.WorkflowInstance{}
	}
	s.writeJSON(w, http.StatusOK, insts)
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := s.engine.GetInstance(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ActionID == "" {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "actionId is required"})
		return
	}

	inst, err := s.engine.ExecuteAction(r.Context(), r.PathValue("id"), req.ActionID, req.Context)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, inst)
}

// decode unmarshals the request body into dst, answering 400 and
// returning false when the body is not valid JSON.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// writeEngineError maps engine errors onto the HTTP status space:
// not-found → 404, integrity violations → 500, every other engine
// rejection → 400.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, workflow.ErrDefinitionNotFound), errors.Is(err, workflow.ErrInstanceNotFound):
		status = http.StatusNotFound
	case errors.Is(err, workflow.ErrIntegrity):
		status = http.StatusInternalServerError
	case errors.Is(err, workflow.ErrInvalidDefinition),
		errors.Is(err, workflow.ErrDuplicateDefinition),
		errors.Is(err, workflow.ErrActionRejected):
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}
