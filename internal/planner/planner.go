// Package planner is the deterministic plan-materialization pipeline. Seven
// ordered stages turn filled slots into planned calendar sessions: macro plan,
// philosophy selection, week-structure loading, volume allocation, template
// selection, session-text generation, and persistence. Every stage is a pure
// function of its inputs plus the retrieval corpus; guards between stages
// abort the pipeline on the first violation, and nothing is persisted unless
// every stage succeeds.
package planner

import (
	"time"

	"stridecoach/internal/types"
)

// Phase is a macro-plan training phase.
type Phase string

const (
	PhaseBase  Phase = "base"
	PhaseBuild Phase = "build"
	PhasePeak  Phase = "peak"
	PhaseTaper Phase = "taper"
)

var phaseOrder = map[Phase]int{PhaseBase: 0, PhaseBuild: 1, PhasePeak: 2, PhaseTaper: 3}

// Inputs is the immutable planning context assembled from filled slots, the
// athlete profile, and recent activity.
type Inputs struct {
	UserID   string
	PlanID   string
	RaceType string    // canonical race distance enum
	RaceDate time.Time // future date
	Start    time.Time // first plan day; defaults to the next Monday

	TargetTime         string  // HH:MM:SS, optional
	CurrentWeeklyMiles float64 // from slots or recent activity
	Audience           string  // beginner/intermediate/advanced
	AthleteTags        []string
	GoalPaceSecMile    int     // race-goal pace; paces derive from this, never free text
	FatigueFactor      float64 // bounded volume scale; 0 means no adjustment
}

// Week is one macro-plan week.
type Week struct {
	Index       int       `json:"index"`
	Phase       Phase     `json:"phase"`
	Focus       string    `json:"focus"`
	TargetMiles float64   `json:"target_weekly_miles"`
	StartsOn    time.Time `json:"starts_on"`
	DaysToRace  int       `json:"days_to_race"`
}

// DayPlan is one allocated day before template instantiation.
type DayPlan struct {
	Day         string // lowercase weekday name
	Date        time.Time
	SessionType string
	Intent      types.Intent
	Miles       float64
}

// Result is what a completed pipeline run produces.
type Result struct {
	PlanID       string  `json:"plan_id"`
	PhilosophyID string  `json:"philosophy_id"`
	Weeks        []Week  `json:"weeks"`
	Sessions     int     `json:"sessions"`
	Inserted     int     `json:"inserted"`
	Updated      int     `json:"updated"`
	Skipped      int     `json:"skipped"`
	Conflicts    []string `json:"conflicts,omitempty"`
}
