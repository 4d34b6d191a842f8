// Package promptsrv is the prompt tool server: read-only access to the
// prompt files the controller composes its system prompts from. Filenames
// are validated before touching the filesystem so the tool can never read
// outside its directory.
package promptsrv

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"unicode/utf8"

	"go.uber.org/zap"

	"stridecoach/internal/logging"
	"stridecoach/internal/toolserver"
)

const orchestratorFile = "orchestrator.md"

// filenameRe admits plain names only: no separators, no traversal.
var filenameRe = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Service serves prompt files from a single directory.
type Service struct {
	dir    string
	logger *zap.Logger
}

func New(dir string) *Service {
	return &Service{dir: dir, logger: logging.Named("promptsrv")}
}

// Server builds the HTTP tool server over this service.
func (s *Service) Server() *toolserver.Server {
	return toolserver.New("prompt", map[string]toolserver.ToolFunc{
		"load_orchestrator_prompt": s.loadOrchestratorPrompt,
		"load_prompt":              s.loadPrompt,
	})
}

func (s *Service) loadOrchestratorPrompt(ctx context.Context, _ json.RawMessage) (any, *toolserver.ToolError) {
	return s.read(orchestratorFile)
}

type loadPromptRequest struct {
	Filename string `json:"filename"`
}

func (s *Service) loadPrompt(ctx context.Context, args json.RawMessage) (any, *toolserver.ToolError) {
	var req loadPromptRequest
	if err := json.Unmarshal(args, &req); err != nil || req.Filename == "" {
		return nil, toolserver.Errf(toolserver.CodeInvalidInput, "filename is required")
	}
	if !filenameRe.MatchString(req.Filename) {
		return nil, toolserver.Errf(toolserver.CodeInvalidFilename, "filename %q is not allowed", req.Filename)
	}
	return s.read(req.Filename)
}

func (s *Service) read(name string) (any, *toolserver.ToolError) {
	path := filepath.Join(s.dir, name)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, toolserver.Errf(toolserver.CodeFileNotFound, "prompt %q not found", name)
	}
	if err != nil {
		s.logger.Warn("prompt read failed", zap.String("file", name), zap.Error(err))
		return nil, toolserver.Errf(toolserver.CodeReadError, "failed to read prompt %q", name)
	}
	if !utf8.Valid(data) {
		return nil, toolserver.Errf(toolserver.CodeEncodingError, "prompt %q is not valid UTF-8", name)
	}
	return map[string]any{"filename": name, "content": string(data)}, nil
}
