package datasrv

import (
	"context"
	"encoding/json"
	"strings"

	"stridecoach/internal/store"
	"stridecoach/internal/toolserver"
	"stridecoach/internal/types"
)

const maxActivityDays = 365

type recentActivitiesRequest struct {
	UserID string `json:"user_id"`
	Days   int    `json:"days"`
}

func (s *Service) getRecentActivities(ctx context.Context, args json.RawMessage) (any, *toolserver.ToolError) {
	var req recentActivitiesRequest
	if err := json.Unmarshal(args, &req); err != nil || req.UserID == "" {
		return nil, toolserver.Errf(toolserver.CodeInvalidInput, "user_id is required")
	}
	if req.Days < 0 || req.Days > maxActivityDays {
		return nil, toolserver.Errf(toolserver.CodeInvalidDays, "days must be in [0, %d]", maxActivityDays)
	}
	if req.Days == 0 {
		req.Days = 30
	}

	acts, err := s.store.RecentActivities(ctx, req.UserID, req.Days)
	if err != nil {
		return nil, toolserver.Errf(toolserver.CodeDBError, "failed to load activities: %v", err)
	}
	if acts == nil {
		acts = []types.Activity{}
	}
	return map[string]any{"activities": acts}, nil
}

type linkSessionRequest struct {
	PlannedSessionID string  `json:"planned_session_id"`
	ActivityID       string  `json:"activity_id"`
	Method           string  `json:"method"`
	Confidence       float64 `json:"confidence"`
}

// linkSession records a planned-session/activity pairing. Each side may carry
// at most one link; a second attempt on either side is rejected.
func (s *Service) linkSession(ctx context.Context, args json.RawMessage) (any, *toolserver.ToolError) {
	var req linkSessionRequest
	if err := json.Unmarshal(args, &req); err != nil || req.PlannedSessionID == "" || req.ActivityID == "" {
		return nil, toolserver.Errf(toolserver.CodeInvalidInput, "planned_session_id and activity_id are required")
	}

	if existing, err := s.store.GetLink(ctx, req.PlannedSessionID); err == nil {
		return nil, toolserver.Errf(toolserver.CodeDuplicateLink,
			"session %s is already linked to activity %s", req.PlannedSessionID, existing.ActivityID)
	} else if err != store.ErrNotFound {
		return nil, toolserver.Errf(toolserver.CodeDBError, "failed to check link: %v", err)
	}

	method := req.Method
	if method == "" {
		method = "manual"
	}
	link, err := s.calendar.Link(ctx, req.PlannedSessionID, req.ActivityID, method, req.Confidence)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "constraint") {
			return nil, toolserver.Errf(toolserver.CodeDuplicateLink,
				"activity %s is already linked", req.ActivityID)
		}
		return nil, toolserver.Errf(toolserver.CodeDBError, "failed to link: %v", err)
	}
	return map[string]any{"link": link}, nil
}
