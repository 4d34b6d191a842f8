package promptsrv

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stridecoach/internal/toolserver"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"orchestrator.md": "You are the execution controller.",
		"extraction.md":   "Extract training attributes.",
		"binary.bin":      string([]byte{0xff, 0xfe, 0x00, 0x81}),
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return New(dir)
}

func call(t *testing.T, s *Service, tool string, args string) (map[string]any, *toolserver.ToolError) {
	t.Helper()
	fn := map[string]toolserver.ToolFunc{
		"load_orchestrator_prompt": s.loadOrchestratorPrompt,
		"load_prompt":              s.loadPrompt,
	}[tool]
	require.NotNil(t, fn)
	result, terr := fn(t.Context(), json.RawMessage(args))
	if terr != nil {
		return nil, terr
	}
	return result.(map[string]any), nil
}

func TestLoadOrchestratorPrompt(t *testing.T) {
	s := newTestService(t)
	result, terr := call(t, s, "load_orchestrator_prompt", `{}`)
	require.Nil(t, terr)
	assert.Equal(t, "You are the execution controller.", result["content"])
}

func TestLoadPrompt(t *testing.T) {
	s := newTestService(t)
	result, terr := call(t, s, "load_prompt", `{"filename":"extraction.md"}`)
	require.Nil(t, terr)
	assert.Equal(t, "Extract training attributes.", result["content"])
}

func TestLoadPrompt_Errors(t *testing.T) {
	s := newTestService(t)
	cases := []struct {
		name string
		args string
		code toolserver.Code
	}{
		{"missing filename", `{}`, toolserver.CodeInvalidInput},
		{"traversal", `{"filename":"../secrets.md"}`, toolserver.CodeInvalidFilename},
		{"absolute path", `{"filename":"/etc/passwd"}`, toolserver.CodeInvalidFilename},
		{"nested path", `{"filename":"sub/inner.md"}`, toolserver.CodeInvalidFilename},
		{"not found", `{"filename":"nope.md"}`, toolserver.CodeFileNotFound},
		{"not utf8", `{"filename":"binary.bin"}`, toolserver.CodeEncodingError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, terr := call(t, s, "load_prompt", tc.args)
			require.NotNil(t, terr)
			assert.Equal(t, tc.code, terr.Code)
		})
	}
}
