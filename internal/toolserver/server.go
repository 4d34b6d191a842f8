// Package toolserver provides the shared HTTP scaffolding for the MCP tool
// servers. Both the data server and the prompt server expose a single
// endpoint, POST /mcp/tools/call, and dispatch on the "tool" field of the
// request body. Errors are returned as HTTP 200 with an error payload.
package toolserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"stridecoach/internal/logging"
)

// ToolFunc executes one tool. Arguments arrive as raw JSON; the tool decodes
// into its own typed request struct and validates at the boundary.
type ToolFunc func(ctx context.Context, args json.RawMessage) (any, *ToolError)

// CallRequest is the wire format of a tool call.
type CallRequest struct {
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments"`
}

// CallResponse is the wire format of a tool result. Exactly one of Result
// and Error is set.
type CallResponse struct {
	Result any        `json:"result,omitempty"`
	Error  *ToolError `json:"error,omitempty"`
}

// Server hosts a fixed set of tools over HTTP.
type Server struct {
	name   string
	tools  map[string]ToolFunc
	logger *zap.Logger
}

// New creates a tool server with the given name and tool table.
func New(name string, tools map[string]ToolFunc) *Server {
	return &Server{
		name:   name,
		tools:  tools,
		logger: logging.Named("server." + name),
	}
}

// ToolNames returns the registered tool names, for diagnostics.
func (s *Server) ToolNames() []string {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	return names
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Post("/mcp/tools/call", s.handleCall)
	r.Get("/health", s.handleHealth)
	return r
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	var req CallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, Errf(CodeInvalidRequest, "invalid JSON in request body"))
		return
	}
	if req.Tool == "" {
		s.writeError(w, Errf(CodeInvalidRequest, "missing 'tool' field"))
		return
	}

	fn, ok := s.tools[req.Tool]
	if !ok {
		s.writeError(w, Errf(CodeToolNotFound, "tool %q not found", req.Tool))
		return
	}

	result, terr := fn(r.Context(), req.Arguments)
	if terr != nil {
		s.logger.Warn("tool returned error",
			zap.String("tool", req.Tool),
			zap.String("code", string(terr.Code)),
			zap.String("message", terr.Message))
		s.writeError(w, terr)
		return
	}

	s.logger.Debug("tool call succeeded", zap.String("tool", req.Tool))
	s.writeJSON(w, CallResponse{Result: result})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]string{"status": "healthy", "server": s.name})
}

func (s *Server) writeError(w http.ResponseWriter, terr *ToolError) {
	// HTTP 200 with an error payload: transport-level status is reserved for
	// transport-level failures.
	s.writeJSON(w, CallResponse{Error: terr})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}
