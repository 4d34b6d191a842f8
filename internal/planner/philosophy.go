package planner

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"stridecoach/internal/corpus"
)

// philosophyScore is one candidate's ranking record, logged with the
// selection so the choice is auditable.
type philosophyScore struct {
	ID         string  `json:"id"`
	Priority   int     `json:"priority"`
	Similarity float64 `json:"similarity"`
}

// SelectPhilosophy picks the training philosophy for the plan. Candidates are
// filtered by race type and gating predicates, then ranked by priority,
// embedding similarity to a slot-derived query, and finally id. The whole
// ranking is deterministic: same corpus and inputs, same winner.
func SelectPhilosophy(store *corpus.Store, in *Inputs, logger *zap.Logger) (*corpus.Philosophy, error) {
	candidates := store.PhilosophiesFor(in.RaceType)

	tags := make(map[string]bool, len(in.AthleteTags))
	for _, t := range in.AthleteTags {
		tags[t] = true
	}

	var eligible []*corpus.Philosophy
	for _, p := range candidates {
		if prohibited(p, tags) || !requirementsMet(p, tags) {
			continue
		}
		if aud := p.Metadata.Audience; aud != "" && aud != "any" && in.Audience != "" && aud != in.Audience {
			continue
		}
		eligible = append(eligible, p)
	}
	if len(eligible) == 0 {
		return nil, fmt.Errorf("no philosophy in corpus matches race type %q", in.RaceType)
	}

	query := corpus.EmbedText(queryText(in))
	scores := make([]philosophyScore, len(eligible))
	for i, p := range eligible {
		scores[i] = philosophyScore{
			ID:         p.Metadata.ID,
			Priority:   p.Metadata.Priority,
			Similarity: corpus.Cosine(query, corpus.EmbeddingFor(p)),
		}
	}

	order := make([]int, len(eligible))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		sa, sb := scores[order[a]], scores[order[b]]
		if sa.Priority != sb.Priority {
			return sa.Priority > sb.Priority
		}
		if sa.Similarity != sb.Similarity {
			return sa.Similarity > sb.Similarity
		}
		return sa.ID < sb.ID
	})

	winner := eligible[order[0]]
	logger.Info("philosophy selected",
		zap.String("philosophy_id", winner.Metadata.ID),
		zap.String("race_type", in.RaceType),
		zap.Any("ranking", scores))
	return winner, nil
}

func prohibited(p *corpus.Philosophy, tags map[string]bool) bool {
	for _, t := range p.Prohibits {
		if tags[t] {
			return true
		}
	}
	return false
}

func requirementsMet(p *corpus.Philosophy, tags map[string]bool) bool {
	for _, t := range p.Requires {
		// structural requirements (e.g. weekly_long_run) are satisfied by the
		// planner itself; only athlete-tag requirements gate here
		if strings.HasPrefix(t, "athlete:") && !tags[strings.TrimPrefix(t, "athlete:")] {
			return false
		}
	}
	return true
}

// queryText builds the ranking query from the slots driving the plan.
func queryText(in *Inputs) string {
	parts := []string{in.RaceType, in.Audience}
	if in.TargetTime != "" {
		parts = append(parts, "goal time", in.TargetTime)
	}
	if in.CurrentWeeklyMiles > 0 {
		parts = append(parts, "weekly mileage", fmt.Sprintf("%.0f", in.CurrentWeeklyMiles))
	}
	parts = append(parts, in.AthleteTags...)
	return strings.Join(parts, " ")
}
