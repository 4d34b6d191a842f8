package planner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"stridecoach/internal/corpus"
	"stridecoach/internal/llm"
	"stridecoach/internal/logging"
	"stridecoach/internal/types"
)

// SaveOutcome reports what plan persistence did. Conflicts list days that
// held completed sessions and were skipped.
type SaveOutcome struct {
	Inserted  int      `json:"inserted"`
	Updated   int      `json:"updated"`
	Skipped   int      `json:"skipped"`
	Conflicts []string `json:"conflicts,omitempty"`
}

// Persistor writes a plan's sessions to the calendar. Writes are atomic per
// plan: either every session lands or none do.
type Persistor interface {
	SavePlan(ctx context.Context, userID, planID, planType string, sessions []types.MaterializedSession) (*SaveOutcome, error)
}

// Pipeline runs the staged plan materialization. A Pipeline is stateless
// across runs; multiple runs may execute concurrently for distinct users.
type Pipeline struct {
	corpus    *corpus.Store
	text      *TextGenerator
	persistor Persistor
	deadline  time.Duration
	logger    *zap.Logger
}

func NewPipeline(c *corpus.Store, completer llm.Completer, persistor Persistor, deadline time.Duration) (*Pipeline, error) {
	logger := logging.Named("planner")
	text, err := NewTextGenerator(completer, logger)
	if err != nil {
		return nil, err
	}
	if deadline <= 0 {
		deadline = 120 * time.Second
	}
	return &Pipeline{corpus: c, text: text, persistor: persistor, deadline: deadline, logger: logger}, nil
}

// Run executes the pipeline for one plan. Stages are sequential; a guard
// violation or stage error aborts immediately, and on deadline no sessions
// are persisted.
func (p *Pipeline) Run(ctx context.Context, in *Inputs) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.deadline)
	defer cancel()

	if in.PlanID == "" {
		return nil, fmt.Errorf("plan id not set")
	}

	weeks, err := BuildMacroPlan(in)
	if err != nil {
		return nil, fmt.Errorf("macro plan: %w", err)
	}
	if err := checkMacroPlan(weeks); err != nil {
		return nil, err
	}

	philosophy, err := SelectPhilosophy(p.corpus, in, p.logger)
	if err != nil {
		return nil, fmt.Errorf("philosophy selection: %w", err)
	}
	philosophyID := philosophy.Metadata.ID

	var sessions []types.MaterializedSession
	for i := range weeks {
		week := &weeks[i]
		structure, err := StructureForWeek(p.corpus, philosophyID, week)
		if err != nil {
			return nil, fmt.Errorf("structure loading: %w", err)
		}

		alloc, err := AllocateWeek(week, structure, in.FatigueFactor)
		if err != nil {
			return nil, fmt.Errorf("volume allocation: %w", err)
		}
		if err := checkWeekAllocation(week.Index, alloc.TargetMiles, alloc.Days, structure.Rules.LongRunRequiredCount == 1); err != nil {
			return nil, err
		}

		for j := range alloc.Days {
			day := &alloc.Days[j]
			if day.Intent == types.IntentRest {
				continue
			}
			tmpl, err := SelectTemplate(p.corpus, philosophyID, day.SessionType, week.Phase)
			if err != nil {
				return nil, fmt.Errorf("template selection: %w", err)
			}
			params := ResolveParams(tmpl, day.Miles)

			sess, err := p.text.Materialize(ctx, in, day, tmpl, params)
			if err != nil {
				return nil, fmt.Errorf("session text: %w", err)
			}
			if sess != nil {
				sessions = append(sessions, *sess)
			}
		}
	}

	if err := checkSessions(sessions); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("plan deadline exceeded before persistence: %w", err)
	}

	outcome, err := p.persistor.SavePlan(ctx, in.UserID, in.PlanID, "race_build", sessions)
	if err != nil {
		return nil, fmt.Errorf("persistence: %w", err)
	}

	p.logger.Info("plan materialized",
		zap.String("user_id", in.UserID),
		zap.String("plan_id", in.PlanID),
		zap.String("philosophy_id", philosophyID),
		zap.Int("weeks", len(weeks)),
		zap.Int("sessions", len(sessions)))

	return &Result{
		PlanID:       in.PlanID,
		PhilosophyID: philosophyID,
		Weeks:        weeks,
		Sessions:     len(sessions),
		Inserted:     outcome.Inserted,
		Updated:      outcome.Updated,
		Skipped:      outcome.Skipped,
		Conflicts:    outcome.Conflicts,
	}, nil
}
