package store

import (
	"context"
	"fmt"
	"time"

	"stridecoach/internal/types"
)

// InsertActivity stores a completed activity. Used by the external ingestion
// collaborator and by tests.
func (s *Store) InsertActivity(ctx context.Context, a *types.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	completed := 0
	if a.Completed {
		completed = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (id, user_id, starts_at, sport, duration_seconds, distance_meters, completed)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.UserID, formatTime(a.StartsAt), a.Sport, a.DurationSeconds, a.DistanceMeters, completed)
	if err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

// RecentActivities returns the user's activities from the last N days, newest
// first.
func (s *Store) RecentActivities(ctx context.Context, userID string, days int) ([]types.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, starts_at, sport, duration_seconds, distance_meters, completed
		FROM activities
		WHERE user_id = ? AND starts_at >= ?
		ORDER BY starts_at DESC`,
		userID, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var acts []types.Activity
	for rows.Next() {
		var a types.Activity
		var startsAt string
		var completed int
		if err := rows.Scan(&a.ID, &a.UserID, &startsAt, &a.Sport, &a.DurationSeconds, &a.DistanceMeters, &completed); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.StartsAt = parseTime(startsAt)
		a.Completed = completed == 1
		acts = append(acts, a)
	}
	return acts, rows.Err()
}
