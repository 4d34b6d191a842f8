package datasrv

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stridecoach/internal/activity"
	"stridecoach/internal/planner"
	"stridecoach/internal/toolserver"
	"stridecoach/internal/types"
)

const dateLayout = "2006-01-02"

// raceMiles maps the canonical race-distance enum to miles.
var raceMiles = map[string]float64{
	"5k":       3.107,
	"10k":      6.214,
	"half":     13.109,
	"marathon": 26.219,
	"ultra":    31.069,
}

type planRaceBuildRequest struct {
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id"`
	RaceDistance   string `json:"race_distance"`
	RaceDate       string `json:"race_date"`
	TargetTime     string `json:"target_time"`
	WeeklyMileage  string `json:"weekly_mileage"`
}

func (s *Service) planRaceBuild(ctx context.Context, args json.RawMessage) (any, *toolserver.ToolError) {
	var req planRaceBuildRequest
	if err := json.Unmarshal(args, &req); err != nil || req.UserID == "" {
		return nil, toolserver.Errf(toolserver.CodeInvalidInput, "user_id is required")
	}
	if req.RaceDistance == "" || req.RaceDate == "" {
		return nil, toolserver.Errf(toolserver.CodeMissingRaceInfo, "race_distance and race_date are required")
	}
	if _, ok := raceMiles[req.RaceDistance]; !ok {
		return nil, toolserver.Errf(toolserver.CodeInvalidInput, "unknown race distance %q", req.RaceDistance)
	}
	raceDate, err := time.ParseInLocation(dateLayout, req.RaceDate, time.UTC)
	if err != nil {
		return nil, toolserver.Errf(toolserver.CodeInvalidDateFormat, "race_date must be YYYY-MM-DD")
	}
	now := time.Now().UTC()
	if !raceDate.After(now) {
		return nil, toolserver.Errf(toolserver.CodeInvalidRaceDate, "race date %s is not in the future", req.RaceDate)
	}

	in := &planner.Inputs{
		UserID:     req.UserID,
		PlanID:     uuid.NewString(),
		RaceType:   req.RaceDistance,
		RaceDate:   raceDate,
		Start:      now,
		TargetTime: req.TargetTime,
	}
	if req.WeeklyMileage != "" {
		miles, err := strconv.ParseFloat(req.WeeklyMileage, 64)
		if err != nil || miles <= 0 {
			return nil, toolserver.Errf(toolserver.CodeInvalidInput, "weekly_mileage must be a positive number")
		}
		in.CurrentWeeklyMiles = miles
	}
	in.GoalPaceSecMile = goalPace(req.RaceDistance, req.TargetTime)
	s.applyActivityContext(ctx, in)

	return s.runPipeline(ctx, in)
}

type planSeasonRequest struct {
	UserID       string `json:"user_id"`
	SeasonStart  string `json:"season_start"`
	SeasonEnd    string `json:"season_end"`
	RaceDistance string `json:"race_distance"`
}

func (s *Service) planSeason(ctx context.Context, args json.RawMessage) (any, *toolserver.ToolError) {
	var req planSeasonRequest
	if err := json.Unmarshal(args, &req); err != nil || req.UserID == "" {
		return nil, toolserver.Errf(toolserver.CodeInvalidInput, "user_id is required")
	}
	if req.SeasonStart == "" || req.SeasonEnd == "" {
		return nil, toolserver.Errf(toolserver.CodeMissingSeasonInfo, "season_start and season_end are required")
	}
	start, err1 := time.ParseInLocation(dateLayout, req.SeasonStart, time.UTC)
	end, err2 := time.ParseInLocation(dateLayout, req.SeasonEnd, time.UTC)
	if err1 != nil || err2 != nil {
		return nil, toolserver.Errf(toolserver.CodeInvalidDateFormat, "season dates must be YYYY-MM-DD")
	}
	if !end.After(start) {
		return nil, toolserver.Errf(toolserver.CodeInvalidSeasonDates, "season end must follow season start")
	}

	raceType := req.RaceDistance
	if raceType == "" {
		raceType = "marathon"
	}
	in := &planner.Inputs{
		UserID:   req.UserID,
		PlanID:   uuid.NewString(),
		RaceType: raceType,
		RaceDate: end,
		Start:    start,
	}
	s.applyActivityContext(ctx, in)
	return s.runPipeline(ctx, in)
}

type weeklyPlanRequest struct {
	UserID string `json:"user_id"`
}

// weeklyPlan returns the already-materialized sessions for the next 7 days.
// Weekly planning requires a race plan on the calendar; the controller
// enforces this upstream and the server re-checks it.
func (s *Service) weeklyPlan(ctx context.Context, args json.RawMessage) (any, *toolserver.ToolError) {
	var req weeklyPlanRequest
	if err := json.Unmarshal(args, &req); err != nil || req.UserID == "" {
		return nil, toolserver.Errf(toolserver.CodeInvalidInput, "user_id is required")
	}

	hasPlan, err := s.store.HasRacePlan(ctx, req.UserID)
	if err != nil {
		return nil, toolserver.Errf(toolserver.CodeDBError, "failed to check race plan: %v", err)
	}
	if !hasPlan {
		return nil, toolserver.Errf(toolserver.CodeMissingRaceInfo, "no race plan on the calendar")
	}

	now := time.Now().UTC()
	sessions, err := s.store.GetPlannedSessions(ctx, req.UserID, now, now.AddDate(0, 0, 7))
	if err != nil {
		return nil, toolserver.Errf(toolserver.CodeDBError, "failed to load sessions: %v", err)
	}
	return map[string]any{"sessions": len(sessions), "week": sessions}, nil
}

var workoutMilesRe = regexp.MustCompile(`(?i)(\d{1,3}(?:\.\d+)?)\s*(mi|mile|miles)\b`)

type addWorkoutRequest struct {
	UserID      string `json:"user_id"`
	Description string `json:"description"`
	Date        string `json:"date"`
}

// addWorkout places a single ad-hoc session on the calendar from a free-text
// description. Distance is taken from the text when stated; otherwise the
// session carries a default duration so exactly one primary metric is set.
func (s *Service) addWorkout(ctx context.Context, args json.RawMessage) (any, *toolserver.ToolError) {
	var req addWorkoutRequest
	if err := json.Unmarshal(args, &req); err != nil || req.UserID == "" {
		return nil, toolserver.Errf(toolserver.CodeInvalidInput, "user_id is required")
	}
	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		return nil, toolserver.Errf(toolserver.CodeInvalidWorkout, "workout description is empty")
	}

	day := time.Now().UTC().AddDate(0, 0, 1)
	if req.Date != "" {
		parsed, err := time.ParseInLocation(dateLayout, req.Date, time.UTC)
		if err != nil {
			return nil, toolserver.Errf(toolserver.CodeInvalidDateFormat, "date must be YYYY-MM-DD")
		}
		day = parsed
	}
	startsAt := time.Date(day.Year(), day.Month(), day.Day(), 7, 0, 0, 0, time.UTC)

	sess := types.MaterializedSession{
		UserID:      req.UserID,
		PlanID:      "adhoc",
		StartsAt:    startsAt,
		EndsAt:      startsAt.Add(time.Hour),
		Sport:       "run",
		SessionType: "workout",
		Intent:      types.IntentEasy,
		Description: desc,
	}
	if m := workoutMilesRe.FindStringSubmatch(desc); m != nil {
		miles, _ := strconv.ParseFloat(m[1], 64)
		sess.DistanceMeters = types.MilesToMeters(miles)
	} else {
		sess.DurationSeconds = 3600
	}
	if strings.Contains(strings.ToLower(desc), "tempo") || strings.Contains(strings.ToLower(desc), "interval") {
		sess.Intent = types.IntentQuality
		sess.SessionType = "quality"
	}

	if err := s.store.EnsureUser(ctx, req.UserID); err != nil {
		return nil, toolserver.Errf(toolserver.CodeDBError, "failed to ensure user: %v", err)
	}
	res, err := s.store.SavePlannedSessions(ctx, req.UserID, sess.PlanID, []types.MaterializedSession{sess})
	if err != nil {
		return nil, toolserver.Errf(toolserver.CodeInvalidSessionData, "failed to save workout: %v", err)
	}
	return map[string]any{"sessions": 1, "inserted": res.Inserted, "updated": res.Updated}, nil
}

// runPipeline executes the planning pipeline in-process and shapes the
// result for the wire.
func (s *Service) runPipeline(ctx context.Context, in *planner.Inputs) (any, *toolserver.ToolError) {
	if err := s.store.EnsureUser(ctx, in.UserID); err != nil {
		return nil, toolserver.Errf(toolserver.CodeDBError, "failed to ensure user: %v", err)
	}
	pipe, err := planner.NewPipeline(s.corpus, s.completer, s.calendar, s.planDeadline)
	if err != nil {
		return nil, toolserver.Errf(toolserver.CodeInternalError, "pipeline init failed: %v", err)
	}
	result, err := pipe.Run(ctx, in)
	if err != nil {
		s.logger.Warn("pipeline aborted",
			zap.String("user_id", in.UserID),
			zap.String("plan_id", in.PlanID),
			zap.Error(err))
		return nil, toolserver.Errf(toolserver.CodeInvalidSessionData, "planning failed: %v", err)
	}
	return result, nil
}

// applyActivityContext folds recent completed activities into the planning
// inputs: a mileage hint when none was stated and a bounded fatigue factor.
func (s *Service) applyActivityContext(ctx context.Context, in *planner.Inputs) {
	acts, err := s.store.RecentActivities(ctx, in.UserID, 42)
	if err != nil || len(acts) == 0 {
		return
	}
	if in.CurrentWeeklyMiles <= 0 {
		if weeks := activity.WeeklyMiles(acts); len(weeks) > 0 {
			in.CurrentWeeklyMiles = weeks[0]
		}
	}
	loads := activity.ComputeLoad(acts, time.Now().UTC(), 42)
	in.FatigueFactor = activity.FatigueFactor(loads)
}

// goalPace derives seconds-per-mile from a target time and race distance.
// Paces downstream derive from this, never from free text.
func goalPace(raceType, targetTime string) int {
	miles, ok := raceMiles[raceType]
	if !ok || targetTime == "" {
		return 0
	}
	var h, m, sec int
	if _, err := fmt.Sscanf(targetTime, "%d:%d:%d", &h, &m, &sec); err != nil {
		return 0
	}
	total := h*3600 + m*60 + sec
	if total <= 0 {
		return 0
	}
	return int(float64(total) / miles)
}
