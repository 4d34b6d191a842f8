// Package datasrv is the data tool server: every conversation, activity,
// session, and planning operation the controller reaches through the tool
// boundary. Each tool decodes its own typed request struct and validates
// before touching the store.
package datasrv

import (
	"time"

	"go.uber.org/zap"

	"stridecoach/internal/calendar"
	"stridecoach/internal/corpus"
	"stridecoach/internal/llm"
	"stridecoach/internal/logging"
	"stridecoach/internal/store"
	"stridecoach/internal/toolserver"
)

// Service implements the data tool surface.
type Service struct {
	store        *store.Store
	calendar     *calendar.Persistor
	corpus       *corpus.Store
	completer    llm.Completer
	planDeadline time.Duration
	logger       *zap.Logger
}

// New wires the service. The completer may be nil; session text then always
// uses the deterministic fallback.
func New(s *store.Store, c *corpus.Store, completer llm.Completer, planDeadline time.Duration) *Service {
	return &Service{
		store:        s,
		calendar:     calendar.New(s),
		corpus:       c,
		completer:    completer,
		planDeadline: planDeadline,
		logger:       logging.Named("datasrv"),
	}
}

// Server builds the HTTP tool server over this service.
func (s *Service) Server() *toolserver.Server {
	return toolserver.New("data", map[string]toolserver.ToolFunc{
		"load_context":           s.loadContext,
		"save_context":           s.saveContext,
		"load_progress":          s.loadProgress,
		"save_progress":          s.saveProgress,
		"summarize_conversation": s.summarizeConversation,
		"get_recent_activities":  s.getRecentActivities,
		"save_planned_sessions":  s.savePlannedSessions,
		"get_planned_sessions":   s.getPlannedSessions,
		"plan_race_build":        s.planRaceBuild,
		"plan_season":            s.planSeason,
		"weekly_plan":            s.weeklyPlan,
		"add_workout":            s.addWorkout,
		"modify_day":             s.modifyDay,
		"modify_week":            s.modifyWeek,
		"link_session":           s.linkSession,
	})
}
