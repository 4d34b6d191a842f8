package planner

import (
	"fmt"
	"math"

	"stridecoach/internal/types"
)

// GuardViolation is a failed inter-stage invariant. The pipeline surfaces the
// first violation and persists nothing.
type GuardViolation struct {
	Stage   string
	Guard   string
	Message string
}

func (v *GuardViolation) Error() string {
	return fmt.Sprintf("%s guard %s: %s", v.Stage, v.Guard, v.Message)
}

func violation(stage, guard, format string, args ...any) *GuardViolation {
	return &GuardViolation{Stage: stage, Guard: guard, Message: fmt.Sprintf(format, args...)}
}

// checkMacroPlan validates the macro plan before structure loading: weeks are
// contiguous with monotonic indices and phases only move forward through
// base, build, peak, taper.
func checkMacroPlan(weeks []Week) error {
	if len(weeks) == 0 {
		return violation("macro", "nonempty", "macro plan has no weeks")
	}
	for i, w := range weeks {
		if w.Index != i {
			return violation("macro", "monotonic_indices", "week %d carries index %d", i, w.Index)
		}
		if _, ok := phaseOrder[w.Phase]; !ok {
			return violation("macro", "valid_phase", "week %d has unknown phase %q", i, w.Phase)
		}
		if i > 0 {
			if !w.StartsOn.Equal(weeks[i-1].StartsOn.AddDate(0, 0, 7)) {
				return violation("macro", "contiguous_weeks", "week %d does not start 7 days after week %d", i, i-1)
			}
			if phaseOrder[w.Phase] < phaseOrder[weeks[i-1].Phase] {
				return violation("macro", "phase_order", "phase %s after %s at week %d",
					w.Phase, weeks[i-1].Phase, i)
			}
		}
	}
	return nil
}

// checkWeekAllocation validates a week allocation against the target it was
// allocated for: the week sums to that target within 1%, exactly the required
// number of long runs, and no two hard-intent days back to back.
func checkWeekAllocation(weekIndex int, targetMiles float64, days []DayPlan, requiredLongRuns bool) error {
	sum := 0.0
	longs := 0
	prevHard := false
	for _, d := range days {
		sum += d.Miles
		if d.Intent == types.IntentLong {
			longs++
		}
		hard := d.Intent == types.IntentQuality
		if hard && prevHard {
			return violation("volume", "no_consecutive_hard_days",
				"week %d: consecutive hard days around %s", weekIndex, d.Day)
		}
		prevHard = hard
	}
	if targetMiles > 0 {
		if delta := math.Abs(sum-targetMiles) / targetMiles; delta > 0.01 {
			return violation("volume", "weekly_sum",
				"week %d: allocated %.1f mi vs target %.1f mi (%.1f%% off)",
				weekIndex, sum, targetMiles, delta*100)
		}
	}
	if requiredLongRuns && longs != 1 {
		return violation("volume", "one_long_run", "week %d has %d long runs, want 1", weekIndex, longs)
	}
	return nil
}

// checkSessions validates materialized sessions before persistence: one primary
// metric per session and no two sessions sharing a user+start second.
func checkSessions(sessions []types.MaterializedSession) error {
	seen := make(map[string]bool, len(sessions))
	for _, s := range sessions {
		if !s.HasOnePrimaryMetric() {
			return violation("materialize", "one_primary_metric",
				"session %s on %s sets both or neither of distance and duration",
				s.SessionType, s.StartsAt.Format("2006-01-02"))
		}
		key := s.UserID + "|" + s.StartsAt.UTC().Format("2006-01-02T15:04:05")
		if seen[key] {
			return violation("materialize", "unique_start",
				"two sessions share start %s", s.StartsAt.Format("2006-01-02 15:04:05"))
		}
		seen[key] = true
	}
	return nil
}
