package planner

import (
	"fmt"
	"math"
	"time"
)

const (
	maxWeeklyIncrease = 0.10
	recoveryEvery     = 4 // every 4th week in base/build is a recovery week
	recoveryScale     = 0.72
	defaultStartMiles = 25
	peakCapScale      = 1.40 // peak volume relative to starting volume
	minPlanWeeks      = 4
	maxPlanWeeks      = 32
)

// phaseFor maps a week's position in the plan to its phase.
func phaseFor(index, total int) Phase {
	f := float64(index+1) / float64(total)
	switch {
	case f <= 0.5:
		return PhaseBase
	case f <= 0.8:
		return PhaseBuild
	case f <= 0.9:
		return PhasePeak
	default:
		return PhaseTaper
	}
}

var phaseFocus = map[Phase]string{
	PhaseBase:  "aerobic volume",
	PhaseBuild: "race-specific workload",
	PhasePeak:  "sharpening",
	PhaseTaper: "freshness",
}

// nextMonday returns the Monday strictly after t (or t itself if Monday).
func nextMonday(t time.Time) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	for t.Weekday() != time.Monday {
		t = t.AddDate(0, 0, 1)
	}
	return t
}

// BuildMacroPlan produces the week sequence for [start, race_date]. Weekly
// volume follows a bounded progression: at most +10% week over week, a
// recovery week every 4th base/build week, and a monotonically decreasing
// taper.
func BuildMacroPlan(in *Inputs) ([]Week, error) {
	if in.RaceDate.IsZero() {
		return nil, fmt.Errorf("race date not set")
	}
	start := in.Start
	if start.IsZero() {
		return nil, fmt.Errorf("plan start not set")
	}
	start = nextMonday(start)

	total := int(in.RaceDate.Sub(start).Hours()/24/7) + 1
	if total < minPlanWeeks {
		return nil, fmt.Errorf("only %d weeks until race, need at least %d", total, minPlanWeeks)
	}
	if total > maxPlanWeeks {
		total = maxPlanWeeks
	}

	startMiles := in.CurrentWeeklyMiles
	if startMiles <= 0 {
		startMiles = defaultStartMiles
	}
	peakCap := startMiles * peakCapScale

	weeks := make([]Week, 0, total)
	lastBuild := startMiles // last non-recovery volume, anchor for progression
	var peakVolume float64
	taperIdx := 0

	for i := 0; i < total; i++ {
		phase := phaseFor(i, total)
		var miles float64
		switch phase {
		case PhaseTaper:
			if peakVolume == 0 {
				peakVolume = lastBuild
			}
			// monotonic decrease across taper weeks
			scale := 0.70 - 0.18*float64(taperIdx)
			if scale < 0.30 {
				scale = 0.30
			}
			miles = peakVolume * scale
			taperIdx++
		default:
			if i == 0 {
				miles = startMiles
			} else if (i+1)%recoveryEvery == 0 {
				miles = lastBuild * recoveryScale
			} else {
				miles = math.Min(lastBuild*(1+maxWeeklyIncrease), peakCap)
				lastBuild = miles
			}
			if miles > peakVolume {
				peakVolume = miles
			}
		}

		startsOn := start.AddDate(0, 0, 7*i)
		weeks = append(weeks, Week{
			Index:       i,
			Phase:       phase,
			Focus:       phaseFocus[phase],
			TargetMiles: math.Round(miles*10) / 10,
			StartsOn:    startsOn,
			DaysToRace:  int(in.RaceDate.Sub(startsOn).Hours() / 24),
		})
	}
	return weeks, nil
}
