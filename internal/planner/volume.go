package planner

import (
	"fmt"
	"math"
	"strings"

	"stridecoach/internal/corpus"
	"stridecoach/internal/types"
)

const (
	longRunMinShare = 0.25
	longRunMaxShare = 0.35
	easyDayFloor    = 2.0
	hardDayWeight   = 1.25
	fatigueFloor    = 0.7
)

// intentFor maps a structure session type to its session intent. Long
// outranks hard: a long run listed in the hard group still plans as long.
func intentFor(sessionType string, structure *corpus.Structure) types.Intent {
	if sessionType == "rest" {
		return types.IntentRest
	}
	for _, st := range structure.SessionGroups["long"] {
		if st == sessionType {
			return types.IntentLong
		}
	}
	if strings.Contains(sessionType, "long") {
		return types.IntentLong
	}
	if structure.HardSessionTypes()[sessionType] {
		return types.IntentQuality
	}
	return types.IntentEasy
}

// WeekAllocation is the allocator's output: the per-day plan and the target
// it actually allocated against, after any fatigue adjustment.
type WeekAllocation struct {
	Days        []DayPlan
	TargetMiles float64
}

// AllocateWeek distributes the week's target miles across the structure's
// days. The allocator is a deterministic solver: the long run takes 25-35% of
// volume, easy days never drop below the 2-mile floor, rest days get zero,
// and hard days absorb the residual weighted slightly above easy days. A
// caller-supplied fatigue factor scales the target inside [0.7, 1.0] before
// allocation. The week itself is read-only input; the adjusted target is
// reported on the returned allocation.
func AllocateWeek(week *Week, structure *corpus.Structure, fatigue float64) (*WeekAllocation, error) {
	target := week.TargetMiles
	if fatigue > 0 {
		f := math.Max(fatigueFloor, math.Min(1.0, fatigue))
		target = math.Round(target*f*10) / 10
	}
	if target <= 0 {
		return nil, fmt.Errorf("week %d has no target volume", week.Index)
	}

	days := make([]DayPlan, 0, 7)
	for i, name := range corpus.Weekdays {
		st := structure.WeekPattern[name]
		days = append(days, DayPlan{
			Day:         name,
			Date:        week.StartsOn.AddDate(0, 0, i),
			SessionType: st,
			Intent:      intentFor(st, structure),
		})
	}

	var longIdx, easyIdx, hardIdx []int
	for i, d := range days {
		switch d.Intent {
		case types.IntentLong:
			longIdx = append(longIdx, i)
		case types.IntentQuality:
			hardIdx = append(hardIdx, i)
		case types.IntentEasy:
			easyIdx = append(easyIdx, i)
		}
	}

	required := structure.Rules.LongRunRequiredCount
	if required > 0 && len(longIdx) != required {
		return nil, fmt.Errorf("week %d: structure %s requires %d long runs, pattern has %d",
			week.Index, structure.Metadata.ID, required, len(longIdx))
	}

	remaining := target
	if len(longIdx) > 0 {
		share := 0.30 * target
		share = math.Max(longRunMinShare*target, math.Min(longRunMaxShare*target, share))
		per := share / float64(len(longIdx))
		for _, i := range longIdx {
			days[i].Miles = per
			remaining -= per
		}
	}

	weightSum := float64(len(easyIdx)) + hardDayWeight*float64(len(hardIdx))
	if weightSum == 0 {
		if remaining > 0.01 {
			return nil, fmt.Errorf("week %d: structure %s has no runnable days for %.1f residual miles",
				week.Index, structure.Metadata.ID, remaining)
		}
	} else {
		easyShare := remaining / weightSum
		floored := 0.0
		for _, i := range easyIdx {
			days[i].Miles = math.Max(easyDayFloor, easyShare)
			floored += days[i].Miles
		}
		hardRemaining := remaining - floored
		if len(hardIdx) > 0 {
			per := hardRemaining / float64(len(hardIdx))
			if per < 0 {
				per = 0
			}
			for _, i := range hardIdx {
				days[i].Miles = per
			}
		}
	}

	// round to tenths and settle the residue on the largest running day so
	// the week sums exactly to target
	sum := 0.0
	largest := -1
	for i := range days {
		days[i].Miles = math.Round(days[i].Miles*10) / 10
		sum += days[i].Miles
		if days[i].Intent != types.IntentRest && (largest == -1 || days[i].Miles > days[largest].Miles) {
			largest = i
		}
	}
	if largest >= 0 {
		days[largest].Miles = math.Round((days[largest].Miles+target-sum)*10) / 10
		if days[largest].Miles < 0 {
			return nil, fmt.Errorf("week %d: allocation underflow", week.Index)
		}
	}
	return &WeekAllocation{Days: days, TargetMiles: target}, nil
}
