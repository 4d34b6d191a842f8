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

// SaveResult reports what a plan persistence run did. Conflicts list days
// where a completed session already existed and the planned session was
// skipped.
type SaveResult struct {
	Inserted  int      `json:"inserted"`
	Updated   int      `json:"updated"`
	Skipped   int      `json:"skipped"`
	Conflicts []string `json:"conflicts,omitempty"`
}

// SavePlannedSessions persists a plan's sessions atomically. The idempotency
// key is (user_id, plan_id, starts_at, session_type): a matching row is
// updated in place, so repeating the same call is a no-op. Days that already
// hold a completed session are skipped and reported as conflicts.
func (s *Store) SavePlannedSessions(ctx context.Context, userID, planID string, sessions []types.MaterializedSession) (*SaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result := &SaveResult{}

	for i := range sessions {
		sess := &sessions[i]
		if !sess.HasOnePrimaryMetric() {
			return nil, fmt.Errorf("session %s/%s has invalid primary metrics", sess.SessionType, sess.StartsAt.Format("2006-01-02"))
		}

		// A completed session already on this day is never overwritten.
		var completed int
		dayStart := sess.StartsAt.UTC().Truncate(24 * time.Hour)
		dayEnd := dayStart.Add(24 * time.Hour)
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM planned_sessions
			WHERE user_id = ? AND status = 'completed' AND starts_at >= ? AND starts_at < ?`,
			userID, formatTime(dayStart), formatTime(dayEnd)).Scan(&completed)
		if err != nil {
			return nil, fmt.Errorf("failed to check completed sessions: %w", err)
		}
		if completed > 0 {
			result.Skipped++
			result.Conflicts = append(result.Conflicts, dayStart.Format("2006-01-02"))
			continue
		}

		steps, err := json.Marshal(sess.WorkoutSteps)
		if err != nil {
			return nil, fmt.Errorf("failed to encode workout steps: %w", err)
		}
		tags, err := json.Marshal(sess.Tags)
		if err != nil {
			return nil, fmt.Errorf("failed to encode tags: %w", err)
		}

		var existingID string
		err = tx.QueryRowContext(ctx, `
			SELECT id FROM planned_sessions
			WHERE user_id = ? AND plan_id = ? AND starts_at = ? AND session_type = ?`,
			userID, planID, formatTime(sess.StartsAt), sess.SessionType).Scan(&existingID)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_, err = tx.ExecContext(ctx, `
				INSERT INTO planned_sessions
					(id, user_id, plan_id, starts_at, ends_at, sport, session_type, intent,
					 duration_seconds, distance_meters, description, workout_steps, status, tags)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'planned', ?)`,
				uuid.NewString(), userID, planID, formatTime(sess.StartsAt), formatTime(sess.EndsAt),
				sess.Sport, sess.SessionType, string(sess.Intent),
				sess.DurationSeconds, sess.DistanceMeters, sess.Description, string(steps), string(tags))
			if err != nil {
				return nil, fmt.Errorf("failed to insert planned session: %w", err)
			}
			result.Inserted++
		case err != nil:
			return nil, fmt.Errorf("failed to check planned session: %w", err)
		default:
			_, err = tx.ExecContext(ctx, `
				UPDATE planned_sessions SET
					ends_at = ?, sport = ?, intent = ?, duration_seconds = ?, distance_meters = ?,
					description = ?, workout_steps = ?, tags = ?
				WHERE id = ?`,
				formatTime(sess.EndsAt), sess.Sport, string(sess.Intent),
				sess.DurationSeconds, sess.DistanceMeters, sess.Description, string(steps), string(tags),
				existingID)
			if err != nil {
				return nil, fmt.Errorf("failed to update planned session: %w", err)
			}
			result.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit plan: %w", err)
	}

	s.logger.Info("planned sessions saved",
		zap.String("user_id", userID),
		zap.String("plan_id", planID),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// GetPlannedSessions returns planned sessions in [from, to) ordered by start.
func (s *Store) GetPlannedSessions(ctx context.Context, userID string, from, to time.Time) ([]types.MaterializedSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, plan_id, starts_at, ends_at, sport, session_type, intent,
		       duration_seconds, distance_meters, description, workout_steps, status, tags
		FROM planned_sessions
		WHERE user_id = ? AND starts_at >= ? AND starts_at < ?
		ORDER BY starts_at ASC`,
		userID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query planned sessions: %w", err)
	}
	defer rows.Close()

	var sessions []types.MaterializedSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

// GetSession returns one planned session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*types.MaterializedSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, plan_id, starts_at, ends_at, sport, session_type, intent,
		       duration_seconds, distance_meters, description, workout_steps, status, tags
		FROM planned_sessions WHERE id = ?`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sess, err
}

// SessionsOnDay returns the user's planned sessions for one calendar day.
func (s *Store) SessionsOnDay(ctx context.Context, userID string, day time.Time) ([]types.MaterializedSession, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	return s.GetPlannedSessions(ctx, userID, start, start.Add(24*time.Hour))
}

// UpdateSession replaces a planned session's mutable fields in place.
func (s *Store) UpdateSession(ctx context.Context, sess *types.MaterializedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps, err := json.Marshal(sess.WorkoutSteps)
	if err != nil {
		return fmt.Errorf("failed to encode workout steps: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE planned_sessions SET
			starts_at = ?, ends_at = ?, sport = ?, session_type = ?, intent = ?,
			duration_seconds = ?, distance_meters = ?, description = ?, workout_steps = ?, status = ?
		WHERE id = ?`,
		formatTime(sess.StartsAt), formatTime(sess.EndsAt), sess.Sport, sess.SessionType, string(sess.Intent),
		sess.DurationSeconds, sess.DistanceMeters, sess.Description, string(steps), sess.Status,
		sess.ID)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// HasRacePlan reports whether the user has any future race-build plan on the
// calendar. Ad-hoc workouts do not count. Weekly planning is gated on this.
func (s *Store) HasRacePlan(ctx context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM planned_sessions
		WHERE user_id = ? AND starts_at >= ? AND plan_id != '' AND plan_id != 'adhoc'`,
		userID, formatTime(time.Now().UTC())).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check race plan: %w", err)
	}
	return n > 0, nil
}

// LinkSession records a planned-session/activity pairing. Both sides carry a
// unique constraint, so a second link on either side fails.
func (s *Store) LinkSession(ctx context.Context, link *types.SessionLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if link.Status == "" {
		link.Status = types.LinkProposed
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_links (planned_session_id, activity_id, status, method, confidence)
		VALUES (?, ?, ?, ?, ?)`,
		link.PlannedSessionID, link.ActivityID, string(link.Status), link.Method, link.Confidence)
	if err != nil {
		return fmt.Errorf("failed to link session: %w", err)
	}
	return nil
}

// GetLink returns the link for a planned session, or ErrNotFound.
func (s *Store) GetLink(ctx context.Context, plannedSessionID string) (*types.SessionLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	link := &types.SessionLink{}
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT planned_session_id, activity_id, status, method, confidence
		FROM session_links WHERE planned_session_id = ?`,
		plannedSessionID).Scan(&link.PlannedSessionID, &link.ActivityID, &status, &link.Method, &link.Confidence)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load link: %w", err)
	}
	link.Status = types.LinkStatus(status)
	return link, nil
}

// CountSessions returns the number of planned sessions for a user and plan.
func (s *Store) CountSessions(ctx context.Context, userID, planID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM planned_sessions WHERE user_id = ? AND plan_id = ?`,
		userID, planID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*types.MaterializedSession, error) {
	var sess types.MaterializedSession
	var intent, startsAt, endsAt, steps, tags string
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.PlanID, &startsAt, &endsAt,
		&sess.Sport, &sess.SessionType, &intent,
		&sess.DurationSeconds, &sess.DistanceMeters, &sess.Description, &steps, &sess.Status, &tags); err != nil {
		return nil, err
	}
	sess.Intent = types.Intent(intent)
	sess.StartsAt = parseTime(startsAt)
	sess.EndsAt = parseTime(endsAt)
	if err := json.Unmarshal([]byte(steps), &sess.WorkoutSteps); err != nil {
		return nil, fmt.Errorf("failed to decode workout steps: %w", err)
	}
	if err := json.Unmarshal([]byte(tags), &sess.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	return &sess, nil
}
