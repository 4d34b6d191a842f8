package controller

import (
	"regexp"
	"strings"
)

// Action is the single planning tool the controller has decided the
// conversation is driving toward.
type Action string

const (
	ActionNone       Action = "none"
	ActionRaceBuild  Action = "plan_race_build"
	ActionSeason     Action = "plan_season"
	ActionAddWorkout Action = "add_workout"
	ActionWeeklyPlan Action = "weekly_plan"
	ActionModifyDay  Action = "modify_day"
	ActionModifyWeek Action = "modify_week"
)

// attribute tables: what each action needs before it may execute, and what
// it will take if offered.
var requiredAttributes = map[Action][]string{
	ActionRaceBuild:  {"race_distance", "race_date"},
	ActionSeason:     {"season_start", "season_end"},
	ActionAddWorkout: {"description"},
	ActionWeeklyPlan: {},
	ActionModifyDay:  {"description"},
	ActionModifyWeek: {"description"},
	ActionNone:       {},
}

var optionalAttributes = map[Action][]string{
	ActionRaceBuild: {"target_time", "weekly_mileage"},
	ActionSeason:    {"race_distance"},
}

var (
	modifyRe  = regexp.MustCompile(`(?i)\b(change|move|swap|shorten|reschedul\w*|make .{0,30}(easier|harder|shorter|longer))\b`)
	weekRefRe = regexp.MustCompile(`(?i)\b(this|next|my) week\b|\bweekly plan\b|\bplan my week\b`)
	seasonRe  = regexp.MustCompile(`(?i)\bseason\b`)
	addRe     = regexp.MustCompile(`(?i)\b(add|log|schedule) (a |an )?(workout|run|session|ride)\b`)
	raceRe    = regexp.MustCompile(`(?i)\b(marathon|half|ultra|10\s?k|5\s?k|26\.2|13\.1|race|training for)\b`)
)

// Classify picks the target action for a message. It declares attributes,
// never extracts values. A previously chosen target with unanswered slots is
// sticky: a short answer like "April 25th" must not reclassify the
// conversation.
func Classify(message string, prevTarget Action, awaiting []string) Action {
	if prevTarget != "" && prevTarget != ActionNone && len(awaiting) > 0 {
		return prevTarget
	}

	switch {
	case modifyRe.MatchString(message):
		if weekRefRe.MatchString(message) {
			return ActionModifyWeek
		}
		return ActionModifyDay
	case weekRefRe.MatchString(message):
		return ActionWeeklyPlan
	case seasonRe.MatchString(message):
		return ActionSeason
	case addRe.MatchString(message):
		return ActionAddWorkout
	case raceRe.MatchString(message):
		return ActionRaceBuild
	default:
		return ActionNone
	}
}

var confirmationRe = regexp.MustCompile(`(?i)^\s*(yes|yep|yeah|sure|ok|okay|sounds good|go ahead|do it|please do|let's do it)[.! ]*$`)

// IsConfirmation reports whether the message is a bare go-ahead with no new
// content. Confirmations carry no slot values; while a question is pending
// they just repeat the ask.
func IsConfirmation(message string) bool {
	return confirmationRe.MatchString(message)
}

// RequiredFor returns the action's required attribute list (copied).
func RequiredFor(a Action) []string {
	return append([]string(nil), requiredAttributes[a]...)
}

// RequestedFor returns required ∪ optional attributes for extraction.
func RequestedFor(a Action) []string {
	out := RequiredFor(a)
	return append(out, optionalAttributes[a]...)
}

// questionFor maps each slot to its single clarifying question. Every entry
// contains exactly one question mark and no advisory language.
var questionFor = map[string]string{
	"race_distance":  "What race distance are you targeting?",
	"race_date":      "What date is your race?",
	"target_time":    "What's your goal finish time?",
	"weekly_mileage": "How many miles per week are you running right now?",
	"season_start":   "When does your season start?",
	"season_end":     "When does your season end?",
	"description":    "What session would you like on the calendar?",
}

// QuestionFor returns the clarifying question for a slot.
func QuestionFor(slot string) string {
	if q, ok := questionFor[slot]; ok {
		return q
	}
	return "What is your " + strings.ReplaceAll(slot, "_", " ") + "?"
}

// FallbackQuestion is the deterministic response emitted when a rendered
// response fails validation.
func FallbackQuestion(slot string) string {
	return "I need one more detail: " + strings.ReplaceAll(slot, "_", " ") + "?"
}
