// Package convo is the conversation store as the controller sees it: message
// history, slot progress, and the rolling summary, all reached through the
// tool boundary. Reads degrade to empty on failure; writes propagate errors
// and fail the turn.
package convo

import (
	"context"

	"go.uber.org/zap"

	"stridecoach/internal/logging"
	"stridecoach/internal/toolclient"
	"stridecoach/internal/types"
)

// Store wraps the conversation tools on the data server.
type Store struct {
	client *toolclient.Client
	logger *zap.Logger
}

func New(client *toolclient.Client) *Store {
	return &Store{client: client, logger: logging.Named("convo")}
}

// LoadContext returns up to limit recent messages, oldest first. A failed
// read degrades to empty history with a logged warning; history is context,
// not ground truth.
func (s *Store) LoadContext(ctx context.Context, conversationID string, limit int) []types.Message {
	var out struct {
		Messages []types.Message `json:"messages"`
	}
	err := s.client.CallInto(ctx, "load_context", map[string]any{
		"conversation_id": conversationID,
		"limit":           limit,
	}, &out)
	if err != nil {
		s.logger.Warn("context load failed, degrading to empty history",
			zap.String("conversation_id", conversationID), zap.Error(err))
		return nil
	}
	return out.Messages
}

// AppendTurn persists one user/assistant message pair.
func (s *Store) AppendTurn(ctx context.Context, conversationID, modelName, userMessage, assistantMessage string) error {
	return s.client.CallInto(ctx, "save_context", map[string]any{
		"conversation_id":   conversationID,
		"model_name":        modelName,
		"user_message":      userMessage,
		"assistant_message": assistantMessage,
	}, nil)
}

// LoadProgress returns the conversation's slot progress. A missing row or a
// failed read degrades to fresh progress.
func (s *Store) LoadProgress(ctx context.Context, conversationID string) *types.Progress {
	var out struct {
		Progress *types.Progress `json:"progress"`
		Version  int             `json:"version"`
	}
	err := s.client.CallInto(ctx, "load_progress", map[string]any{
		"conversation_id": conversationID,
	}, &out)
	if err != nil || out.Progress == nil {
		if err != nil && !toolclient.IsRemoteCode(err, "CONVERSATION_NOT_FOUND") {
			s.logger.Warn("progress load failed, starting fresh",
				zap.String("conversation_id", conversationID), zap.Error(err))
		}
		return types.NewProgress()
	}
	out.Progress.Version = out.Version
	return out.Progress
}

// SaveProgress writes the conversation's slot progress. Progress carries an
// optimistic version; a conflicting concurrent write surfaces as a remote
// VERSION_CONFLICT error and the caller re-reads.
func (s *Store) SaveProgress(ctx context.Context, conversationID string, progress *types.Progress) error {
	var out struct {
		Version int `json:"version"`
	}
	err := s.client.CallInto(ctx, "save_progress", map[string]any{
		"conversation_id": conversationID,
		"progress":        progress,
		"version":         progress.Version,
	}, &out)
	if err != nil {
		return err
	}
	progress.Version = out.Version
	return nil
}

// Summary returns the rolling conversation summary, or "" when none exists
// or the read fails.
func (s *Store) Summary(ctx context.Context, conversationID string) string {
	var out struct {
		Summary string `json:"summary"`
	}
	err := s.client.CallInto(ctx, "summarize_conversation", map[string]any{
		"conversation_id": conversationID,
	}, &out)
	if err != nil {
		return ""
	}
	return out.Summary
}
