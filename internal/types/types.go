// Package types holds the domain model shared across the controller, the
// planning pipeline, and the persistence layer.
package types

import (
	"encoding/json"
	"time"
)

// Sender identifies who produced a conversation message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
	SenderSystem    Sender = "system"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
)

// Conversation is owned by one user and holds a linearly ordered message
// history plus a single Progress record.
type Conversation struct {
	ID        string             `json:"id"`
	UserID    string             `json:"user_id"`
	Title     string             `json:"title"`
	Status    ConversationStatus `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Message is one entry in a conversation. CreatedAt is strictly increasing
// within a conversation.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Sender         Sender          `json:"sender"`
	Content        string          `json:"content"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Progress tracks the slot-filling state of a conversation. It is rewritten
// each turn; Version guards against concurrent writers.
type Progress struct {
	RequiredAttributes []string          `json:"required_attributes"`
	OptionalAttributes []string          `json:"optional_attributes"`
	FilledSlots        map[string]string `json:"filled_slots"`
	AwaitingSlots      []string          `json:"awaiting_slots"`
	TargetAction       string            `json:"target_action,omitempty"`
	Version            int               `json:"version"`
}

// NewProgress returns an empty Progress with allocated maps so JSON
// round-trips are stable.
func NewProgress() *Progress {
	return &Progress{
		RequiredAttributes: []string{},
		OptionalAttributes: []string{},
		FilledSlots:        map[string]string{},
		AwaitingSlots:      []string{},
	}
}

// AthleteProfile carries stable training preferences. Immutable for the
// lifetime of a conversation.
type AthleteProfile struct {
	UserID              string   `json:"user_id"`
	Units               string   `json:"units"`
	Timezone            string   `json:"timezone"`
	RaceGoalPaceSecMile int      `json:"race_goal_pace_sec_mile"`
	Tags                []string `json:"tags,omitempty"`
}

// Intent is the immutable session purpose. Distinct from pace.
type Intent string

const (
	IntentRest    Intent = "rest"
	IntentEasy    Intent = "easy"
	IntentLong    Intent = "long"
	IntentQuality Intent = "quality"
)

// WorkoutStep is one ordered step of a materialized session. StepIndex is
// canonical ordering.
type WorkoutStep struct {
	StepIndex    int             `json:"step_index"`
	StepType     string          `json:"step_type"`
	Targets      json.RawMessage `json:"targets"`
	Instructions string          `json:"instructions"`
	Purpose      string          `json:"purpose"`
}

// MaterializedSession is a concrete planned session for one calendar day.
// Exactly one primary metric is set: DistanceMeters XOR DurationSeconds.
type MaterializedSession struct {
	ID              string        `json:"id,omitempty"`
	UserID          string        `json:"user_id"`
	PlanID          string        `json:"plan_id"`
	StartsAt        time.Time     `json:"starts_at"`
	EndsAt          time.Time     `json:"ends_at,omitempty"`
	Sport           string        `json:"sport"`
	SessionType     string        `json:"session_type"`
	Intent          Intent        `json:"intent"`
	DurationSeconds int           `json:"duration_seconds,omitempty"`
	DistanceMeters  float64       `json:"distance_meters,omitempty"`
	Description     string        `json:"description_text"`
	WorkoutSteps    []WorkoutStep `json:"workout_steps,omitempty"`
	Status          string        `json:"status,omitempty"`
	Tags            []string      `json:"tags,omitempty"`
}

// HasOnePrimaryMetric reports whether exactly one of distance and duration
// is set.
func (s *MaterializedSession) HasOnePrimaryMetric() bool {
	hasDistance := s.DistanceMeters > 0
	hasDuration := s.DurationSeconds > 0
	return hasDistance != hasDuration
}

// LinkStatus is the lifecycle of a planned-session/activity pairing.
type LinkStatus string

const (
	LinkProposed  LinkStatus = "proposed"
	LinkConfirmed LinkStatus = "confirmed"
	LinkRejected  LinkStatus = "rejected"
)

// SessionLink pairs one planned session with one completed activity.
// At most one link exists per planned session and per activity.
type SessionLink struct {
	PlannedSessionID string     `json:"planned_session_id"`
	ActivityID       string     `json:"activity_id"`
	Status           LinkStatus `json:"status"`
	Method           string     `json:"method"`
	Confidence       float64    `json:"confidence"`
}

// Activity is a completed activity as seen by the core. Ingestion is an
// external collaborator; the core only consumes this shape.
type Activity struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	StartsAt        time.Time `json:"starts_at"`
	Sport           string    `json:"sport"`
	DurationSeconds int       `json:"duration_seconds"`
	DistanceMeters  float64   `json:"distance_meters"`
	Completed       bool      `json:"completed"`
}

// MilesToMeters converts miles to meters.
func MilesToMeters(mi float64) float64 { return mi * 1609.344 }

// MetersToMiles converts meters to miles.
func MetersToMiles(m float64) float64 { return m / 1609.344 }
