package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stridecoach/internal/types"
)

// ErrVersionConflict is returned when an optimistic progress write loses the
// race; the caller re-reads and retries explicitly.
var ErrVersionConflict = errors.New("progress version conflict")

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// EnsureUser inserts the user row if missing.
func (s *Store) EnsureUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (id) VALUES (?)`, userID)
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

// EnsureConversation inserts the conversation row if missing.
func (s *Store) EnsureConversation(ctx context.Context, conversationID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (id, user_id) VALUES (?, ?)`,
		conversationID, userID)
	if err != nil {
		return fmt.Errorf("failed to ensure conversation: %w", err)
	}
	return nil
}

// LoadContext returns the most recent messages of a conversation in
// chronological order, capped at limit.
func (s *Store) LoadContext(ctx context.Context, conversationID string, limit int) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender, content, COALESCE(metadata, ''), created_at
		FROM (
			SELECT * FROM messages WHERE conversation_id = ?
			ORDER BY created_at DESC LIMIT ?
		) ORDER BY created_at ASC`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load context: %w", err)
	}
	defer rows.Close()

	var msgs []types.Message
	for rows.Next() {
		var m types.Message
		var meta string
		var created string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Sender, &m.Content, &meta, &created); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if meta != "" {
			m.Metadata = json.RawMessage(meta)
		}
		m.CreatedAt = parseTime(created)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// AppendTurn stores a user/assistant message pair atomically. Message
// created_at is strictly increasing within the conversation.
func (s *Store) AppendTurn(ctx context.Context, conversationID, userID, modelName, userMessage, assistantMessage string) error {
	if userMessage == "" || assistantMessage == "" {
		return fmt.Errorf("empty message in turn")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var last sql.NullString
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM messages WHERE conversation_id = ?`,
		conversationID).Scan(&last); err != nil {
		return fmt.Errorf("failed to read last message time: %w", err)
	}

	now := time.Now().UTC()
	if last.Valid {
		if prev := parseTime(last.String); !now.After(prev) {
			now = prev.Add(time.Millisecond)
		}
	}

	meta, _ := json.Marshal(map[string]string{"model": modelName})

	insert := func(sender types.Sender, content string, at time.Time, metadata []byte) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, conversation_id, sender, content, metadata, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), conversationID, string(sender), content, string(metadata), formatTime(at))
		return err
	}

	if err := insert(types.SenderUser, userMessage, now, nil); err != nil {
		return fmt.Errorf("failed to insert user message: %w", err)
	}
	if err := insert(types.SenderAssistant, assistantMessage, now.Add(time.Millisecond), meta); err != nil {
		return fmt.Errorf("failed to insert assistant message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		formatTime(now), conversationID); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	s.logger.Debug("turn appended",
		zap.String("conversation_id", conversationID),
		zap.String("user_id", userID))
	return tx.Commit()
}

// LoadProgress returns the progress record for a conversation, or ErrNotFound.
func (s *Store) LoadProgress(ctx context.Context, conversationID string) (*types.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	var version int
	err := s.db.QueryRowContext(ctx,
		`SELECT progress, version FROM conversation_progress WHERE conversation_id = ?`,
		conversationID).Scan(&raw, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}

	progress := types.NewProgress()
	if err := json.Unmarshal([]byte(raw), progress); err != nil {
		return nil, fmt.Errorf("failed to decode progress: %w", err)
	}
	progress.Version = version
	return progress, nil
}

// SaveProgress writes the progress record using optimistic locking: the write
// succeeds only when the stored version matches progress.Version. On success
// the stored version is progress.Version+1.
func (s *Store) SaveProgress(ctx context.Context, conversationID string, progress *types.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *progress
	stored.Version = 0 // version lives in its own column
	raw, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	if progress.Version == 0 {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO conversation_progress (conversation_id, progress, version, updated_at)
			VALUES (?, ?, 1, ?)`,
			conversationID, string(raw), formatTime(time.Now().UTC()))
		if err != nil {
			// Concurrent first write: surface as a version conflict so the
			// caller re-reads.
			return fmt.Errorf("%w: %v", ErrVersionConflict, err)
		}
		progress.Version = 1
		return nil
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE conversation_progress SET progress = ?, version = version + 1, updated_at = ?
		WHERE conversation_id = ? AND version = ?`,
		string(raw), formatTime(time.Now().UTC()), conversationID, progress.Version)
	if err != nil {
		return fmt.Errorf("failed to save progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check progress write: %w", err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	progress.Version++
	return nil
}

// SaveSummary stores the rolling conversation summary.
func (s *Store) SaveSummary(ctx context.Context, conversationID, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversation_summaries (conversation_id, summary, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (conversation_id) DO UPDATE SET summary = excluded.summary, updated_at = excluded.updated_at`,
		conversationID, summary, formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

// LoadSummary returns the rolling summary, empty when none exists.
func (s *Store) LoadSummary(ctx context.Context, conversationID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var summary string
	err := s.db.QueryRowContext(ctx,
		`SELECT summary FROM conversation_summaries WHERE conversation_id = ?`,
		conversationID).Scan(&summary)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load summary: %w", err)
	}
	return summary, nil
}

const timeLayout = "2006-01-02 15:04:05.000"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
