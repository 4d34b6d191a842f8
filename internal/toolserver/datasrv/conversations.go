package datasrv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"stridecoach/internal/store"
	"stridecoach/internal/toolserver"
	"stridecoach/internal/types"
)

const (
	defaultContextLimit = 20
	maxContextLimit     = 200
	summaryTailTurns    = 5
)

type loadContextRequest struct {
	ConversationID string `json:"conversation_id"`
	Limit          int    `json:"limit"`
}

func (s *Service) loadContext(ctx context.Context, args json.RawMessage) (any, *toolserver.ToolError) {
	var req loadContextRequest
	if err := json.Unmarshal(args, &req); err != nil || req.ConversationID == "" {
		return nil, toolserver.Errf(toolserver.CodeInvalidInput, "conversation_id is required")
	}
	if req.Limit < 0 || req.Limit > maxContextLimit {
		return nil, toolserver.Errf(toolserver.CodeInvalidLimit, "limit must be in [0, %d]", maxContextLimit)
	}
	if req.Limit == 0 {
		req.Limit = defaultContextLimit
	}

	msgs, err := s.store.LoadContext(ctx, req.ConversationID, req.Limit)
	if err != nil {
		return nil, toolserver.Errf(toolserver.CodeDBError, "failed to load context: %v", err)
	}
	if msgs == nil {
		msgs = []types.Message{}
	}
	return map[string]any{"messages": msgs}, nil
}

type saveContextRequest struct {
	ConversationID   string `json:"conversation_id"`
	UserID           string `json:"user_id"`
	ModelName        string `json:"model_name"`
	UserMessage      string `json:"user_message"`
	AssistantMessage string `json:"assistant_message"`
}

func (s *Service) saveContext(ctx context.Context, args json.RawMessage) (any, *toolserver.ToolError) {
	var req saveContextRequest
	if err := json.Unmarshal(args, &req); err != nil || req.ConversationID == "" {
		return nil, toolserver.Errf(toolserver.CodeInvalidInput, "conversation_id is required")
	}
	if strings.TrimSpace(req.UserMessage) == "" && strings.TrimSpace(req.AssistantMessage) == "" {
		return nil, toolserver.Errf(toolserver.CodeInvalidMessage, "turn has no content")
	}
	if req.UserID == "" {
		req.UserID = req.ConversationID
	}

	if err := s.ensureConversation(ctx, req.ConversationID, req.UserID); err != nil {
		return nil, err
	}
	if err := s.store.AppendTurn(ctx, req.ConversationID, req.UserID, req.ModelName, req.UserMessage, req.AssistantMessage); err != nil {
		return nil, toolserver.Errf(toolserver.CodeDBError, "failed to append turn: %v", err)
	}
	return map[string]any{"saved": true}, nil
}

type progressRequest struct {
	ConversationID string          `json:"conversation_id"`
	Progress       *types.Progress `json:"progress"`
	Version        int             `json:"version"`
}

func (s *Service) loadProgress(ctx context.Context, args json.RawMessage) (any, *toolserver.ToolError) {
	var req progressRequest
	if err := json.Unmarshal(args, &req); err != nil || req.ConversationID == "" {
		return nil, toolserver.Errf(toolserver.CodeInvalidInput, "conversation_id is required")
	}

	progress, err := s.store.LoadProgress(ctx, req.ConversationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, toolserver.Errf(toolserver.CodeConversationMissing, "no progress for conversation %s", req.ConversationID)
	}
	if err != nil {
		return nil, toolserver.Errf(toolserver.CodeDBError, "failed to load progress: %v", err)
	}
	return map[string]any{"progress": progress, "version": progress.Version}, nil
}

func (s *Service) saveProgress(ctx context.Context, args json.RawMessage) (any, *toolserver.ToolError) {
	var req progressRequest
	if err := json.Unmarshal(args, &req); err != nil || req.ConversationID == "" || req.Progress == nil {
		return nil, toolserver.Errf(toolserver.CodeInvalidInput, "conversation_id and progress are required")
	}

	if err := s.ensureConversation(ctx, req.ConversationID, req.ConversationID); err != nil {
		return nil, err
	}
	req.Progress.Version = req.Version
	err := s.store.SaveProgress(ctx, req.ConversationID, req.Progress)
	if errors.Is(err, store.ErrVersionConflict) {
		return nil, toolserver.Errf(toolserver.CodeVersionConflict, "progress version %d is stale", req.Version)
	}
	if err != nil {
		return nil, toolserver.Errf(toolserver.CodeDBError, "failed to save progress: %v", err)
	}
	return map[string]any{"version": req.Progress.Version}, nil
}

type summarizeRequest struct {
	ConversationID string `json:"conversation_id"`
}

// summarizeConversation recomputes the rolling summary from the message tail
// and persists it. The summary is plain text, deterministic, and safe to
// regenerate on demand.
func (s *Service) summarizeConversation(ctx context.Context, args json.RawMessage) (any, *toolserver.ToolError) {
	var req summarizeRequest
	if err := json.Unmarshal(args, &req); err != nil || req.ConversationID == "" {
		return nil, toolserver.Errf(toolserver.CodeInvalidInput, "conversation_id is required")
	}

	msgs, err := s.store.LoadContext(ctx, req.ConversationID, summaryTailTurns*2)
	if err != nil {
		return nil, toolserver.Errf(toolserver.CodeDBError, "failed to load messages: %v", err)
	}
	if len(msgs) == 0 {
		return map[string]any{"summary": ""}, nil
	}

	var parts []string
	for _, m := range msgs {
		if m.Sender != types.SenderUser {
			continue
		}
		text := m.Content
		if len(text) > 120 {
			text = text[:120]
		}
		parts = append(parts, text)
	}
	summary := fmt.Sprintf("Recent user messages: %s", strings.Join(parts, " | "))
	if err := s.store.SaveSummary(ctx, req.ConversationID, summary); err != nil {
		return nil, toolserver.Errf(toolserver.CodeDBError, "failed to save summary: %v", err)
	}
	return map[string]any{"summary": summary}, nil
}

func (s *Service) ensureConversation(ctx context.Context, conversationID, userID string) *toolserver.ToolError {
	if err := s.store.EnsureUser(ctx, userID); err != nil {
		return toolserver.Errf(toolserver.CodeDBError, "failed to ensure user: %v", err)
	}
	if err := s.store.EnsureConversation(ctx, conversationID, userID); err != nil {
		return toolserver.Errf(toolserver.CodeDBError, "failed to ensure conversation: %v", err)
	}
	return nil
}
