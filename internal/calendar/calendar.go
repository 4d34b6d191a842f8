// Package calendar owns planned-session writes: atomic plan inserts,
// day/week modifications that preserve session intent, and the 1:1
// session-activity links.
package calendar

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stridecoach/internal/logging"
	"stridecoach/internal/planner"
	"stridecoach/internal/store"
	"stridecoach/internal/types"
)

// Persistor applies calendar writes against the local store. It implements
// planner.Persistor for in-process pipeline runs.
type Persistor struct {
	store  *store.Store
	logger *zap.Logger
}

func New(s *store.Store) *Persistor {
	return &Persistor{store: s, logger: logging.Named("calendar")}
}

// SavePlan writes a plan's sessions atomically through the idempotent upsert.
func (p *Persistor) SavePlan(ctx context.Context, userID, planID, planType string, sessions []types.MaterializedSession) (*planner.SaveOutcome, error) {
	res, err := p.store.SavePlannedSessions(ctx, userID, planID, sessions)
	if err != nil {
		return nil, err
	}
	return &planner.SaveOutcome{
		Inserted:  res.Inserted,
		Updated:   res.Updated,
		Skipped:   res.Skipped,
		Conflicts: res.Conflicts,
	}, nil
}

// Modification describes a requested change to a planned session. Zero-valued
// fields are left untouched. Intent is copied from the existing session
// verbatim unless ExplicitIntentChange is set: changing what a day is *for*
// is a deliberate act, not a side effect of resizing it.
type Modification struct {
	SessionType         string       `json:"session_type,omitempty"`
	DistanceMeters      float64      `json:"distance_meters,omitempty"`
	DurationSeconds     int          `json:"duration_seconds,omitempty"`
	Description         string       `json:"description,omitempty"`
	Intent              types.Intent `json:"intent,omitempty"`
	ExplicitIntentChange bool        `json:"explicit_intent_change,omitempty"`
}

// ModifyDay applies a modification to the user's planned session on one
// calendar day.
func (p *Persistor) ModifyDay(ctx context.Context, userID string, day time.Time, mod *Modification) (*types.MaterializedSession, error) {
	sessions, err := p.store.SessionsOnDay(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, fmt.Errorf("no planned session on %s: %w", day.Format("2006-01-02"), store.ErrNotFound)
	}
	sess := &sessions[0]
	if sess.Status == "completed" {
		return nil, fmt.Errorf("session on %s is already completed", day.Format("2006-01-02"))
	}

	originalIntent := sess.Intent
	if mod.SessionType != "" {
		sess.SessionType = mod.SessionType
	}
	if mod.DistanceMeters > 0 {
		sess.DistanceMeters = mod.DistanceMeters
		sess.DurationSeconds = 0
	} else if mod.DurationSeconds > 0 {
		sess.DurationSeconds = mod.DurationSeconds
		sess.DistanceMeters = 0
	}
	if mod.Description != "" {
		sess.Description = mod.Description
	}
	if mod.ExplicitIntentChange && mod.Intent != "" {
		sess.Intent = mod.Intent
	} else {
		sess.Intent = originalIntent
	}

	if !sess.HasOnePrimaryMetric() {
		return nil, fmt.Errorf("modification would leave session without exactly one primary metric")
	}
	if err := p.store.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}

	p.logger.Info("day modified",
		zap.String("user_id", userID),
		zap.String("day", day.Format("2006-01-02")),
		zap.String("intent", string(sess.Intent)),
		zap.Bool("intent_changed", sess.Intent != originalIntent))
	return sess, nil
}

// ModifyWeek applies the same modification to every non-completed session in
// the week starting at weekStart. Returns the modified sessions.
func (p *Persistor) ModifyWeek(ctx context.Context, userID string, weekStart time.Time, mod *Modification) ([]types.MaterializedSession, error) {
	start := weekStart.UTC().Truncate(24 * time.Hour)
	sessions, err := p.store.GetPlannedSessions(ctx, userID, start, start.AddDate(0, 0, 7))
	if err != nil {
		return nil, err
	}
	var modified []types.MaterializedSession
	for i := range sessions {
		if sessions[i].Status == "completed" {
			continue
		}
		out, err := p.ModifyDay(ctx, userID, sessions[i].StartsAt, mod)
		if err != nil {
			return nil, err
		}
		modified = append(modified, *out)
	}
	return modified, nil
}

// Link records a planned-session/activity pairing. Uniqueness on both sides
// is enforced by the store.
func (p *Persistor) Link(ctx context.Context, plannedSessionID, activityID, method string, confidence float64) (*types.SessionLink, error) {
	link := &types.SessionLink{
		PlannedSessionID: plannedSessionID,
		ActivityID:       activityID,
		Method:           method,
		Confidence:       confidence,
	}
	if err := p.store.LinkSession(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}
