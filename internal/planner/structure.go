package planner

import (
	"fmt"
	"sort"

	"stridecoach/internal/corpus"
)

// StructureForWeek picks the week structure for one macro week: candidates
// matching (philosophy, phase) whose days-to-race window admits the week,
// with taper structures preferred once the week falls inside their taper
// window. Ties resolve by priority then id.
func StructureForWeek(store *corpus.Store, philosophyID string, week *Week) (*corpus.Structure, error) {
	candidates := store.StructuresFor(philosophyID, string(week.Phase), week.DaysToRace)
	if len(candidates) == 0 {
		// a phase-agnostic structure is better than no plan
		candidates = store.StructuresFor(philosophyID, "", week.DaysToRace)
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no week structure for philosophy %s phase %s at %d days to race",
			philosophyID, week.Phase, week.DaysToRace)
	}

	inTaperWindow := func(s *corpus.Structure) bool {
		return s.Rules.TaperDaysToRaceLE > 0 && week.DaysToRace <= s.Rules.TaperDaysToRaceLE
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		ta, tb := inTaperWindow(candidates[a]), inTaperWindow(candidates[b])
		if ta != tb {
			return ta
		}
		pa, pb := candidates[a].Metadata.Priority, candidates[b].Metadata.Priority
		if pa != pb {
			return pa > pb
		}
		return candidates[a].Metadata.ID < candidates[b].Metadata.ID
	})
	return candidates[0], nil
}
