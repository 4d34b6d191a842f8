package datasrv

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"stridecoach/internal/calendar"
	"stridecoach/internal/store"
	"stridecoach/internal/toolserver"
	"stridecoach/internal/types"
)

type savePlannedSessionsRequest struct {
	UserID   string                      `json:"user_id"`
	PlanID   string                      `json:"plan_id"`
	PlanType string                      `json:"plan_type"`
	Sessions []types.MaterializedSession `json:"sessions"`
}

func (s *Service) savePlannedSessions(ctx context.Context, args json.RawMessage) (any, *toolserver.ToolError) {
	var req savePlannedSessionsRequest
	if err := json.Unmarshal(args, &req); err != nil || req.UserID == "" || req.PlanID == "" {
		return nil, toolserver.Errf(toolserver.CodeInvalidInput, "user_id and plan_id are required")
	}
	if len(req.Sessions) == 0 {
		return nil, toolserver.Errf(toolserver.CodeInvalidSessionData, "no sessions to save")
	}
	for i := range req.Sessions {
		if !req.Sessions[i].HasOnePrimaryMetric() {
			return nil, toolserver.Errf(toolserver.CodeInvalidSessionData,
				"session %d must carry exactly one of distance and duration", i)
		}
		if req.Sessions[i].StartsAt.IsZero() {
			return nil, toolserver.Errf(toolserver.CodeInvalidSessionData, "session %d has no start time", i)
		}
	}

	if err := s.store.EnsureUser(ctx, req.UserID); err != nil {
		return nil, toolserver.Errf(toolserver.CodeDBError, "failed to ensure user: %v", err)
	}
	res, err := s.store.SavePlannedSessions(ctx, req.UserID, req.PlanID, req.Sessions)
	if err != nil {
		return nil, toolserver.Errf(toolserver.CodeDBError, "failed to save sessions: %v", err)
	}
	return map[string]any{
		"inserted":  res.Inserted,
		"updated":   res.Updated,
		"skipped":   res.Skipped,
		"conflicts": res.Conflicts,
	}, nil
}

type getPlannedSessionsRequest struct {
	UserID string `json:"user_id"`
	From   string `json:"from"`
	To     string `json:"to"`
}

func (s *Service) getPlannedSessions(ctx context.Context, args json.RawMessage) (any, *toolserver.ToolError) {
	var req getPlannedSessionsRequest
	if err := json.Unmarshal(args, &req); err != nil || req.UserID == "" {
		return nil, toolserver.Errf(toolserver.CodeInvalidInput, "user_id is required")
	}
	from, to, terr := parseRange(req.From, req.To)
	if terr != nil {
		return nil, terr
	}

	sessions, err := s.store.GetPlannedSessions(ctx, req.UserID, from, to)
	if err != nil {
		return nil, toolserver.Errf(toolserver.CodeDBError, "failed to load sessions: %v", err)
	}
	if sessions == nil {
		sessions = []types.MaterializedSession{}
	}
	return map[string]any{"sessions": sessions}, nil
}

type modifyRequest struct {
	UserID               string  `json:"user_id"`
	Date                 string  `json:"date"`
	WeekStart            string  `json:"week_start"`
	SessionType          string  `json:"session_type"`
	DistanceMeters       float64 `json:"distance_meters"`
	DurationSeconds      int     `json:"duration_seconds"`
	Description          string  `json:"description"`
	Intent               string  `json:"intent"`
	ExplicitIntentChange bool    `json:"explicit_intent_change"`
}

func (r *modifyRequest) modification() *calendar.Modification {
	return &calendar.Modification{
		SessionType:          r.SessionType,
		DistanceMeters:       r.DistanceMeters,
		DurationSeconds:      r.DurationSeconds,
		Description:          r.Description,
		Intent:               types.Intent(r.Intent),
		ExplicitIntentChange: r.ExplicitIntentChange,
	}
}

func (s *Service) modifyDay(ctx context.Context, args json.RawMessage) (any, *toolserver.ToolError) {
	var req modifyRequest
	if err := json.Unmarshal(args, &req); err != nil || req.UserID == "" {
		return nil, toolserver.Errf(toolserver.CodeInvalidInput, "user_id is required")
	}
	day, err := parseDay(req.Date)
	if err != nil {
		return nil, err
	}

	sess, merr := s.calendar.ModifyDay(ctx, req.UserID, day, req.modification())
	if errors.Is(merr, store.ErrNotFound) {
		return nil, toolserver.Errf(toolserver.CodeInvalidSessionData, "no planned session on %s", req.Date)
	}
	if merr != nil {
		return nil, toolserver.Errf(toolserver.CodeInvalidSessionData, "cannot modify day: %v", merr)
	}
	return map[string]any{"session": sess}, nil
}

func (s *Service) modifyWeek(ctx context.Context, args json.RawMessage) (any, *toolserver.ToolError) {
	var req modifyRequest
	if err := json.Unmarshal(args, &req); err != nil || req.UserID == "" {
		return nil, toolserver.Errf(toolserver.CodeInvalidInput, "user_id is required")
	}
	dateStr := req.WeekStart
	if dateStr == "" {
		dateStr = req.Date
	}
	weekStart, err := parseDay(dateStr)
	if err != nil {
		return nil, err
	}

	sessions, merr := s.calendar.ModifyWeek(ctx, req.UserID, weekStart, req.modification())
	if merr != nil {
		return nil, toolserver.Errf(toolserver.CodeInvalidSessionData, "cannot modify week: %v", merr)
	}
	return map[string]any{"sessions": sessions, "modified": len(sessions)}, nil
}

func parseDay(value string) (time.Time, *toolserver.ToolError) {
	if value == "" {
		return time.Time{}, toolserver.Errf(toolserver.CodeInvalidDateFormat, "date is required")
	}
	day, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, toolserver.Errf(toolserver.CodeInvalidDateFormat, "date must be YYYY-MM-DD")
	}
	return day, nil
}

func parseRange(fromStr, toStr string) (time.Time, time.Time, *toolserver.ToolError) {
	now := time.Now().UTC()
	from, to := now.AddDate(0, 0, -7), now.AddDate(0, 1, 0)
	if fromStr != "" {
		parsed, err := time.ParseInLocation(dateLayout, fromStr, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, toolserver.Errf(toolserver.CodeInvalidDateFormat, "from must be YYYY-MM-DD")
		}
		from = parsed
	}
	if toStr != "" {
		parsed, err := time.ParseInLocation(dateLayout, toStr, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, toolserver.Errf(toolserver.CodeInvalidDateFormat, "to must be YYYY-MM-DD")
		}
		// inclusive end of day
		to = parsed.AddDate(0, 0, 1)
	}
	return from, to, nil
}
