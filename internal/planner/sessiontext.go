package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"stridecoach/internal/corpus"
	"stridecoach/internal/llm"
	"stridecoach/internal/types"
)

// StepSchemaJSON constrains model-generated workout steps. Output that fails
// this schema is discarded in favor of the deterministic fallback.
const StepSchemaJSON = `{
	"type": "object",
	"required": ["steps"],
	"properties": {
		"steps": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["step_index", "step_type", "instructions", "purpose"],
				"properties": {
					"step_index": {"type": "integer", "minimum": 0},
					"step_type": {"type": "string", "enum": ["warmup", "work", "recovery", "cooldown"]},
					"targets": {"type": "object"},
					"instructions": {"type": "string"},
					"purpose": {"type": "string"}
				}
			}
		}
	}
}`

const sessionStartHour = 7

// paceFor derives a working pace from the athlete's race-goal pace. Paces
// are never taken from free text.
func paceFor(intent types.Intent, goalPaceSecMile int) int {
	if goalPaceSecMile <= 0 {
		return 0
	}
	switch intent {
	case types.IntentEasy:
		return goalPaceSecMile + 75
	case types.IntentLong:
		return goalPaceSecMile + 60
	case types.IntentQuality:
		return goalPaceSecMile - 10
	default:
		return 0
	}
}

func formatPace(secPerMile int) string {
	return fmt.Sprintf("%d:%02d/mi", secPerMile/60, secPerMile%60)
}

// TextGenerator produces session descriptions and workout steps, using the
// structured-completion capability when available and a deterministic
// template otherwise.
type TextGenerator struct {
	completer llm.Completer
	schema    *llm.Schema
	logger    *zap.Logger
}

func NewTextGenerator(completer llm.Completer, logger *zap.Logger) (*TextGenerator, error) {
	schema, err := llm.CompileSchema("workout_steps.json", []byte(StepSchemaJSON))
	if err != nil {
		return nil, err
	}
	return &TextGenerator{completer: completer, schema: schema, logger: logger}, nil
}

// Materialize turns one allocated day into a planned session with description
// text and ordered workout steps. Rest days return nil: they are not
// persisted.
func (g *TextGenerator) Materialize(ctx context.Context, in *Inputs, day *DayPlan, tmpl *corpus.Template, params map[string]float64) (*types.MaterializedSession, error) {
	if day.Intent == types.IntentRest {
		return nil, nil
	}

	pace := paceFor(day.Intent, in.GoalPaceSecMile)
	perMile := pace
	if perMile <= 0 {
		perMile = 540 // 9:00/mi when no goal pace is known
	}

	startsAt := time.Date(day.Date.Year(), day.Date.Month(), day.Date.Day(), sessionStartHour, 0, 0, 0, time.UTC)
	sess := &types.MaterializedSession{
		UserID:         in.UserID,
		PlanID:         in.PlanID,
		StartsAt:       startsAt,
		EndsAt:         startsAt.Add(time.Duration(day.Miles*float64(perMile)) * time.Second),
		Sport:          "run",
		SessionType:    day.SessionType,
		Intent:         day.Intent,
		DistanceMeters: types.MilesToMeters(day.Miles),
	}

	sess.Description = g.describe(day, tmpl, pace)
	sess.WorkoutSteps = g.steps(ctx, day, tmpl, pace, params)
	return sess, nil
}

func (g *TextGenerator) describe(day *DayPlan, tmpl *corpus.Template, pace int) string {
	desc := fmt.Sprintf("%.1f mi %s", day.Miles, day.SessionType)
	if pace > 0 {
		desc += fmt.Sprintf(" @ %s", formatPace(pace))
	}
	if tmpl != nil && tmpl.Description != "" {
		desc += ". " + tmpl.Description
	}
	return desc
}

// steps asks the model for a structured step list; anything invalid falls
// back to the deterministic template.
func (g *TextGenerator) steps(ctx context.Context, day *DayPlan, tmpl *corpus.Template, pace int, params map[string]float64) []types.WorkoutStep {
	if g.completer != nil {
		if steps, err := g.modelSteps(ctx, day, tmpl, pace, params); err == nil {
			return steps
		} else {
			g.logger.Warn("step generation failed, using fallback",
				zap.String("day", day.Day),
				zap.String("session_type", day.SessionType),
				zap.Error(err))
		}
	}
	return fallbackSteps(day, pace)
}

func (g *TextGenerator) modelSteps(ctx context.Context, day *DayPlan, tmpl *corpus.Template, pace int, params map[string]float64) ([]types.WorkoutStep, error) {
	system := "You write structured running workouts. Respond with JSON only: " +
		`{"steps": [{"step_index", "step_type", "targets", "instructions", "purpose"}]}. ` +
		"step_type is one of warmup, work, recovery, cooldown."
	user := fmt.Sprintf("Session: %.1f mi %s (intent %s).", day.Miles, day.SessionType, day.Intent)
	if pace > 0 {
		user += fmt.Sprintf(" Target pace %s.", formatPace(pace))
	}
	if tmpl != nil && tmpl.Description != "" {
		user += " Template: " + tmpl.Description
	}
	if len(params) > 0 {
		b, _ := json.Marshal(params)
		user += " Parameters: " + string(b)
	}

	payload, err := llm.CompleteStructured(ctx, g.completer, system, user, g.schema)
	if err != nil {
		return nil, err
	}
	var out struct {
		Steps []types.WorkoutStep `json:"steps"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("failed to decode steps: %w", err)
	}
	// step_index carries the model's intended order regardless of array
	// position; sort on it, then renumber densely from zero
	sort.SliceStable(out.Steps, func(i, j int) bool {
		return out.Steps[i].StepIndex < out.Steps[j].StepIndex
	})
	for i := range out.Steps {
		out.Steps[i].StepIndex = i
	}
	return out.Steps, nil
}

// fallbackSteps is the deterministic warm-up / work / cooldown skeleton.
func fallbackSteps(day *DayPlan, pace int) []types.WorkoutStep {
	target := func(kv map[string]any) json.RawMessage {
		b, _ := json.Marshal(kv)
		return b
	}
	paceText := ""
	if pace > 0 {
		paceText = " at " + formatPace(pace)
	}

	if day.Intent == types.IntentEasy || day.Intent == types.IntentLong {
		return []types.WorkoutStep{{
			StepIndex:    0,
			StepType:     "work",
			Targets:      target(map[string]any{"distance_mi": day.Miles}),
			Instructions: fmt.Sprintf("Run %.1f mi%s, conversational effort.", day.Miles, paceText),
			Purpose:      "aerobic development",
		}}
	}

	workMiles := day.Miles - 2
	if workMiles < 1 {
		workMiles = 1
	}
	return []types.WorkoutStep{
		{
			StepIndex:    0,
			StepType:     "warmup",
			Targets:      target(map[string]any{"distance_mi": 1}),
			Instructions: "1 mi easy jog plus strides.",
			Purpose:      "prepare for quality work",
		},
		{
			StepIndex:    1,
			StepType:     "work",
			Targets:      target(map[string]any{"distance_mi": workMiles}),
			Instructions: fmt.Sprintf("%.1f mi %s%s.", workMiles, day.SessionType, paceText),
			Purpose:      "race-specific stimulus",
		},
		{
			StepIndex:    2,
			StepType:     "cooldown",
			Targets:      target(map[string]any{"distance_mi": 1}),
			Instructions: "1 mi easy jog.",
			Purpose:      "recovery",
		},
	}
}
