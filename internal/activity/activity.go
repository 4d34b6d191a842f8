// Package activity defines the boundary to completed-activity providers and
// the training-load math the controller uses for context. Provider ingestion
// (webhooks, OAuth, polling) lives outside this repo; the core only consumes
// the Source interface.
package activity

import (
	"context"
	"math"
	"sort"
	"time"

	"stridecoach/internal/types"
)

// Source supplies completed activities. Implementations are external
// collaborators (provider adapters, the local store in tests).
type Source interface {
	RecentActivities(ctx context.Context, userID string, days int) ([]types.Activity, error)
}

// Matcher proposes links between planned sessions and completed activities.
// Pairing heuristics are an external collaborator; the core only records the
// links it is handed.
type Matcher interface {
	Propose(ctx context.Context, planned []types.MaterializedSession, completed []types.Activity) ([]types.SessionLink, error)
}

// Load is one day's training-load state.
type Load struct {
	Day time.Time
	CTL float64 // chronic load, 42-day EWMA
	ATL float64 // acute load, 7-day EWMA
	TSB float64 // balance: yesterday's CTL - ATL
}

const (
	ctlDays = 42.0
	atlDays = 7.0
)

// ComputeLoad runs the exponentially-weighted training-load model over daily
// stress scores. Pure function: activities in, per-day series out, ending at
// through. Duration in minutes stands in for a stress score when no power or
// pace data is available.
func ComputeLoad(activities []types.Activity, through time.Time, days int) []Load {
	if days <= 0 {
		days = 42
	}
	end := time.Date(through.Year(), through.Month(), through.Day(), 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -(days - 1))

	stress := map[time.Time]float64{}
	for _, a := range activities {
		day := time.Date(a.StartsAt.Year(), a.StartsAt.Month(), a.StartsAt.Day(), 0, 0, 0, 0, time.UTC)
		stress[day] += float64(a.DurationSeconds) / 60
	}

	ctlAlpha := 1 - math.Exp(-1/ctlDays)
	atlAlpha := 1 - math.Exp(-1/atlDays)

	var ctl, atl float64
	out := make([]Load, 0, days)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		prevCTL, prevATL := ctl, atl
		s := stress[day]
		ctl = prevCTL + ctlAlpha*(s-prevCTL)
		atl = prevATL + atlAlpha*(s-prevATL)
		out = append(out, Load{Day: day, CTL: ctl, ATL: atl, TSB: prevCTL - prevATL})
	}
	return out
}

// FatigueFactor condenses the latest load balance into the bounded volume
// scale the planner accepts: a rested athlete plans at full volume, a deeply
// fatigued one is scaled down toward the 0.7 floor.
func FatigueFactor(loads []Load) float64 {
	if len(loads) == 0 {
		return 1.0
	}
	latest := loads[len(loads)-1]
	if latest.CTL <= 0 {
		return 1.0
	}
	ratio := latest.ATL / latest.CTL
	switch {
	case ratio <= 1.1:
		return 1.0
	case ratio >= 1.8:
		return 0.7
	default:
		// linear ramp between the two bounds
		return 1.0 - 0.3*(ratio-1.1)/0.7
	}
}

// WeeklyMiles sums completed run mileage per ISO week, most recent first.
// The controller uses the latest full week as a mileage hint when the
// athlete has not stated one.
func WeeklyMiles(activities []types.Activity) []float64 {
	if len(activities) == 0 {
		return nil
	}
	byWeek := map[string]float64{}
	var keys []string
	for _, a := range activities {
		y, w := a.StartsAt.ISOWeek()
		key := time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, (w-1)*7).Format("2006-01-02")
		if _, ok := byWeek[key]; !ok {
			keys = append(keys, key)
		}
		byWeek[key] += types.MetersToMiles(a.DistanceMeters)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = byWeek[k]
	}
	return out
}
