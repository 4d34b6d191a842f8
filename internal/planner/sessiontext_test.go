package planner

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"stridecoach/internal/llm"
	"stridecoach/internal/types"
)

func TestMaterialize_OrdersStepsByIndex(t *testing.T) {
	// the model lists steps out of order; step_index, not array position,
	// decides the sequence
	completer := &llm.Static{Responses: []string{`{"steps": [
		{"step_index": 2, "step_type": "cooldown", "instructions": "1 mi easy jog.", "purpose": "recovery"},
		{"step_index": 0, "step_type": "warmup", "instructions": "1 mi easy jog plus strides.", "purpose": "preparation"},
		{"step_index": 1, "step_type": "work", "instructions": "4 mi at threshold.", "purpose": "race-specific stimulus"}
	]}`}}
	g, err := NewTextGenerator(completer, zap.NewNop())
	if err != nil {
		t.Fatalf("NewTextGenerator failed: %v", err)
	}

	day := &DayPlan{
		Day:         "thursday",
		Date:        time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		SessionType: "tempo",
		Intent:      types.IntentQuality,
		Miles:       6,
	}
	sess, err := g.Materialize(context.Background(), testInputs(), day, nil, nil)
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}

	wantTypes := []string{"warmup", "work", "cooldown"}
	if len(sess.WorkoutSteps) != len(wantTypes) {
		t.Fatalf("got %d steps, want %d", len(sess.WorkoutSteps), len(wantTypes))
	}
	for i, step := range sess.WorkoutSteps {
		if step.StepIndex != i {
			t.Errorf("step %d carries index %d", i, step.StepIndex)
		}
		if step.StepType != wantTypes[i] {
			t.Errorf("step %d is %s, want %s", i, step.StepType, wantTypes[i])
		}
	}
}

func TestMaterialize_FallsBackOnInvalidSteps(t *testing.T) {
	completer := &llm.Static{Responses: []string{`{"steps": []}`}}
	g, err := NewTextGenerator(completer, zap.NewNop())
	if err != nil {
		t.Fatalf("NewTextGenerator failed: %v", err)
	}

	day := &DayPlan{
		Day:         "sunday",
		Date:        time.Date(2026, 1, 18, 0, 0, 0, 0, time.UTC),
		SessionType: "long_run",
		Intent:      types.IntentLong,
		Miles:       14,
	}
	sess, err := g.Materialize(context.Background(), testInputs(), day, nil, nil)
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if len(sess.WorkoutSteps) != 1 || sess.WorkoutSteps[0].StepType != "work" {
		t.Errorf("expected the deterministic single-step fallback, got %+v", sess.WorkoutSteps)
	}
}
