// Package toolclient is the MCP-only boundary. Every side effect the
// controller or planner performs goes through Client.Call; there is no direct
// database or filesystem access anywhere above this package.
//
// The client performs no retries and no caching. Retries, where needed, are
// explicit operations initiated by callers so the boundary stays auditable.
package toolclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"stridecoach/internal/logging"
)

// Category classifies client-side tool-call failures.
type Category string

const (
	// CategoryTransport covers connection failures and timeouts.
	CategoryTransport Category = "TRANSPORT"
	// CategoryProtocol covers malformed responses.
	CategoryProtocol Category = "PROTOCOL"
	// CategoryRemote covers errors the tool itself returned.
	CategoryRemote Category = "REMOTE"
)

// Error is a failed tool call. Code is only set for CategoryRemote.
type Error struct {
	Category Category
	Tool     string
	Code     string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool %s: %s %s: %s", e.Tool, e.Category, e.Code, e.Message)
	}
	return fmt.Sprintf("tool %s: %s: %s", e.Tool, e.Category, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRemoteCode reports whether err is a remote tool error with the given code.
func IsRemoteCode(err error, code string) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Category == CategoryRemote && te.Code == code
	}
	return false
}

// callRequest mirrors the tool-server wire format.
type callRequest struct {
	Tool      string `json:"tool"`
	Arguments any    `json:"arguments"`
}

type callResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client routes tool calls to the two upstream servers.
type Client struct {
	routes       map[string]string
	httpClient   *http.Client
	timeout      time.Duration
	toolTimeouts map[string]time.Duration
	logger       *zap.Logger
}

// dataTools and promptTools define the static routing table. A tool name not
// listed here cannot be called.
var dataTools = []string{
	"load_context",
	"save_context",
	"save_progress",
	"load_progress",
	"summarize_conversation",
	"get_recent_activities",
	"save_planned_sessions",
	"get_planned_sessions",
	"plan_race_build",
	"plan_season",
	"weekly_plan",
	"add_workout",
	"modify_day",
	"modify_week",
	"link_session",
}

var promptTools = []string{
	"load_orchestrator_prompt",
	"load_prompt",
}

// Plan-generation tools run a full pipeline and need more than the default
// 30 s call budget.
var defaultToolTimeouts = map[string]time.Duration{
	"plan_race_build": 120 * time.Second,
	"plan_season":     120 * time.Second,
}

// New builds a client for the two tool endpoints. Both endpoints must be
// configured: an empty address is a configuration error and the caller must
// not proceed (fail closed).
func New(dataEndpoint, promptEndpoint string, timeout time.Duration) (*Client, error) {
	if dataEndpoint == "" {
		return nil, fmt.Errorf("data tool endpoint not configured")
	}
	if promptEndpoint == "" {
		return nil, fmt.Errorf("prompt tool endpoint not configured")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	routes := make(map[string]string, len(dataTools)+len(promptTools))
	for _, name := range dataTools {
		routes[name] = dataEndpoint
	}
	for _, name := range promptTools {
		routes[name] = promptEndpoint
	}

	return &Client{
		routes:       routes,
		httpClient:   &http.Client{},
		timeout:      timeout,
		toolTimeouts: defaultToolTimeouts,
		logger:       logging.Named("toolclient"),
	}, nil
}

// Call invokes the named tool and returns the raw result JSON. The context
// bounds the whole call; a per-tool timeout is layered on top.
func (c *Client) Call(ctx context.Context, tool string, args any) (json.RawMessage, error) {
	endpoint, ok := c.routes[tool]
	if !ok {
		return nil, &Error{Category: CategoryProtocol, Tool: tool, Message: "tool not in routing table"}
	}

	timeout := c.timeout
	if t, ok := c.toolTimeouts[tool]; ok {
		timeout = t
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(callRequest{Tool: tool, Arguments: args})
	if err != nil {
		return nil, &Error{Category: CategoryProtocol, Tool: tool, Message: "failed to encode arguments", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/mcp/tools/call", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Category: CategoryTransport, Tool: tool, Message: "failed to build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("calling tool", zap.String("tool", tool), zap.String("endpoint", endpoint))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Category: CategoryTransport, Tool: tool, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Category: CategoryTransport, Tool: tool,
			Message: fmt.Sprintf("unexpected HTTP status %d", resp.StatusCode)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Category: CategoryTransport, Tool: tool, Message: "failed to read response", Err: err}
	}

	var decoded callResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &Error{Category: CategoryProtocol, Tool: tool, Message: "malformed response body", Err: err}
	}

	if decoded.Error != nil {
		return nil, &Error{
			Category: CategoryRemote,
			Tool:     tool,
			Code:     decoded.Error.Code,
			Message:  decoded.Error.Message,
		}
	}
	if decoded.Result == nil {
		return nil, &Error{Category: CategoryProtocol, Tool: tool, Message: "response missing result"}
	}

	return decoded.Result, nil
}

// CallInto invokes the named tool and decodes the result into out.
func (c *Client) CallInto(ctx context.Context, tool string, args, out any) error {
	raw, err := c.Call(ctx, tool, args)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Category: CategoryProtocol, Tool: tool, Message: "failed to decode result", Err: err}
	}
	return nil
}
