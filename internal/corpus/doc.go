// Package corpus is the read-only retrieval store of training philosophies,
// week structures, and session templates. Documents are markdown files with a
// YAML front-matter block and a fenced spec block; the store is loaded once
// at startup and never mutated afterwards.
package corpus

import "fmt"

// Domain identifies the kind of corpus document.
type Domain string

const (
	DomainPhilosophy Domain = "philosophy"
	DomainStructure  Domain = "plan_structure"
	DomainTemplate   Domain = "session_template"
)

// Metadata is the front-matter shared by all corpus documents.
type Metadata struct {
	ID            string   `yaml:"id"`
	Domain        Domain   `yaml:"domain"`
	PhilosophyID  string   `yaml:"philosophy_id,omitempty"`
	RaceTypes     []string `yaml:"race_types"`
	Audience      string   `yaml:"audience"`
	Phase         string   `yaml:"phase"`
	Priority      int      `yaml:"priority"`
	Version       int      `yaml:"version"`
	LastReviewed  string   `yaml:"last_reviewed,omitempty"`
	DaysToRaceMin int      `yaml:"days_to_race_min,omitempty"`
	DaysToRaceMax int      `yaml:"days_to_race_max,omitempty"`
}

// MatchesRaceType reports whether the document applies to the race type.
func (m *Metadata) MatchesRaceType(raceType string) bool {
	for _, rt := range m.RaceTypes {
		if rt == raceType || rt == "any" {
			return true
		}
	}
	return false
}

// Range is a closed numeric bound used by template parameters and intensity
// distributions.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Mid returns the range midpoint.
func (r Range) Mid() float64 { return (r.Min + r.Max) / 2 }

// Clamp returns v bounded to the range.
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Philosophy is a training doctrine with gating predicates and a precomputed
// embedding used for ranking.
type Philosophy struct {
	Metadata  Metadata
	Intensity map[string]Range `yaml:"intensity_distribution"`
	HardDays  int              `yaml:"max_hard_days"`
	Requires  []string         `yaml:"requires"`
	Prohibits []string         `yaml:"prohibits"`
	Summary   string           `yaml:"summary"`
	Embedding []float32        `yaml:"embedding"`
}

// StructureRules is the rules block of a week structure.
type StructureRules struct {
	HardDaysMax           int  `yaml:"hard_days_max"`
	NoConsecutiveHardDays bool `yaml:"no_consecutive_hard_days"`
	LongRunRequiredCount  int  `yaml:"long_run_required_count"`
	TaperDaysToRaceLE     int  `yaml:"taper_days_to_race_le,omitempty"`
}

// Structure is a 7-day week pattern plus rules for a philosophy and phase.
// WeekPattern maps lowercase weekday names (monday..sunday) to session types.
type Structure struct {
	Metadata      Metadata
	WeekPattern   map[string]string   `yaml:"week_pattern"`
	Rules         StructureRules      `yaml:"rules"`
	SessionGroups map[string][]string `yaml:"session_groups"`
}

// Weekdays is the canonical day ordering for week patterns.
var Weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// HardSessionTypes returns the session types in the structure's hard group.
// "Hard day" is intent-level: members of this group map to intent quality at
// load time.
func (s *Structure) HardSessionTypes() map[string]bool {
	hard := make(map[string]bool)
	for _, st := range s.SessionGroups["hard"] {
		hard[st] = true
	}
	return hard
}

// Validate checks structural invariants: a full 7-day pattern, no two
// adjacent hard-group days, and a sane long-run count.
func (s *Structure) Validate() error {
	if len(s.WeekPattern) != 7 {
		return fmt.Errorf("structure %s: week_pattern has %d days, want 7", s.Metadata.ID, len(s.WeekPattern))
	}
	hard := s.HardSessionTypes()
	prevHard := false
	for _, day := range Weekdays {
		st, ok := s.WeekPattern[day]
		if !ok {
			return fmt.Errorf("structure %s: week_pattern missing %s", s.Metadata.ID, day)
		}
		isHard := hard[st]
		if s.Rules.NoConsecutiveHardDays && isHard && prevHard {
			return fmt.Errorf("structure %s: consecutive hard days around %s", s.Metadata.ID, day)
		}
		prevHard = isHard
	}
	if s.Rules.LongRunRequiredCount < 0 || s.Rules.LongRunRequiredCount > 2 {
		return fmt.Errorf("structure %s: long_run_required_count %d out of range", s.Metadata.ID, s.Rules.LongRunRequiredCount)
	}
	return nil
}

// Template is one parameter-bounded session description.
type Template struct {
	Metadata    Metadata
	TemplateID  string           `yaml:"template_id"`
	SessionType string           `yaml:"session_type"`
	Params      map[string]Range `yaml:"params"`
	Description string           `yaml:"description"`
}

// Document is the union of parsed corpus documents. Exactly one of the typed
// fields is non-nil; Templates holds every template a template document
// defines.
type Document struct {
	Metadata   Metadata
	Philosophy *Philosophy
	Structure  *Structure
	Templates  []Template
}
