package planner

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"stridecoach/internal/corpus"
	"stridecoach/internal/types"
)

const testPhilosophy = `---
id: phil_aerobic
domain: philosophy
race_types: [marathon, half]
audience: any
priority: 10
version: 1
---
` + "```philosophy_spec" + `
intensity_distribution:
  easy: [0.75, 0.85]
max_hard_days: 2
prohibits:
  - injury_prone
summary: High aerobic volume, two quality days, weekly long run.
` + "```" + `
`

const testPhilosophyLow = `---
id: phil_intervals
domain: philosophy
race_types: [marathon]
audience: any
priority: 5
version: 1
---
` + "```philosophy_spec" + `
max_hard_days: 3
summary: Interval-heavy preparation.
` + "```" + `
`

const testStructure = `---
id: struct_standard
domain: plan_structure
philosophy_id: phil_aerobic
race_types: [marathon]
priority: 10
version: 1
---
` + "```structure_spec" + `
week_pattern:
  monday: rest
  tuesday: quality
  wednesday: easy_run
  thursday: tempo
  friday: rest
  saturday: easy_run
  sunday: long_run
rules:
  hard_days_max: 2
  no_consecutive_hard_days: true
  long_run:
    required_count: 1
session_groups:
  hard: [quality, tempo]
  long: [long_run]
` + "```" + `
`

const testTaperStructure = `---
id: struct_taper
domain: plan_structure
philosophy_id: phil_aerobic
race_types: [marathon]
priority: 5
version: 1
---
` + "```structure_spec" + `
week_pattern:
  monday: rest
  tuesday: quality
  wednesday: easy_run
  thursday: rest
  friday: easy_run
  saturday: rest
  sunday: long_run
rules:
  hard_days_max: 1
  no_consecutive_hard_days: true
  long_run:
    required_count: 1
  taper_days_to_race_le: 21
session_groups:
  hard: [quality]
  long: [long_run]
` + "```" + `
`

const testTemplates = `---
id: tmpl_all
domain: session_template
philosophy_id: phil_aerobic
race_types: [marathon]
priority: 5
version: 1
---
` + "```template_spec" + `
templates:
  - id: easy_standard
    session_type: easy_run
    params:
      easy_mi: [2, 12]
    description: Relaxed aerobic running.
  - id: quality_intervals
    session_type: quality
    priority: 8
    params:
      work_mi: [3, 8]
    description: Interval session at goal effort.
  - id: quality_hills
    session_type: quality
    priority: 8
    params:
      work_mi: [3, 6]
    description: Hill repeats.
  - id: tempo_classic
    session_type: tempo
    params:
      tempo_mi: [3, 8]
    description: Sustained tempo at threshold.
  - id: long_standard
    session_type: long_run
    params:
      long_mi: [8, 22]
    description: Steady long run.
` + "```" + `
`

func testCorpus(t *testing.T) *corpus.Store {
	t.Helper()
	dir := t.TempDir()
	for name, content := range map[string]string{
		"phil_aerobic.md":   testPhilosophy,
		"phil_intervals.md": testPhilosophyLow,
		"struct_standard.md": testStructure,
		"struct_taper.md":   testTaperStructure,
		"tmpl_all.md":       testTemplates,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	s, err := corpus.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	return s
}

func testInputs() *Inputs {
	return &Inputs{
		UserID:             "u1",
		PlanID:             "plan-1",
		RaceType:           "marathon",
		RaceDate:           time.Date(2026, 4, 25, 0, 0, 0, 0, time.UTC),
		Start:              time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		TargetTime:         "03:00:00",
		CurrentWeeklyMiles: 55,
		GoalPaceSecMile:    412, // ~6:52/mi for a 3:00 marathon
	}
}

type capturePersistor struct {
	sessions []types.MaterializedSession
}

func (p *capturePersistor) SavePlan(ctx context.Context, userID, planID, planType string, sessions []types.MaterializedSession) (*SaveOutcome, error) {
	p.sessions = sessions
	return &SaveOutcome{Inserted: len(sessions)}, nil
}

func TestBuildMacroPlan_Progression(t *testing.T) {
	weeks, err := BuildMacroPlan(testInputs())
	if err != nil {
		t.Fatalf("BuildMacroPlan failed: %v", err)
	}
	if err := checkMacroPlan(weeks); err != nil {
		t.Fatalf("macro guard failed: %v", err)
	}

	if weeks[0].Phase != PhaseBase || weeks[len(weeks)-1].Phase != PhaseTaper {
		t.Errorf("phases: first %s last %s", weeks[0].Phase, weeks[len(weeks)-1].Phase)
	}

	lastBuild := weeks[0].TargetMiles
	var taperPrev float64
	for i := 1; i < len(weeks); i++ {
		w := weeks[i]
		switch {
		case w.Phase == PhaseTaper:
			if taperPrev > 0 && w.TargetMiles >= taperPrev {
				t.Errorf("taper week %d not decreasing: %.1f then %.1f", i, taperPrev, w.TargetMiles)
			}
			taperPrev = w.TargetMiles
		case w.TargetMiles < lastBuild:
			// recovery week: 20-30% below the running build volume
			drop := 1 - w.TargetMiles/lastBuild
			if drop < 0.15 || drop > 0.35 {
				t.Errorf("week %d recovery drop %.0f%% out of range", i, drop*100)
			}
		default:
			if w.TargetMiles > lastBuild*1.101 {
				t.Errorf("week %d increases more than 10%%: %.1f -> %.1f", i, lastBuild, w.TargetMiles)
			}
			lastBuild = w.TargetMiles
		}
	}
}

func TestBuildMacroPlan_TooShort(t *testing.T) {
	in := testInputs()
	in.RaceDate = in.Start.AddDate(0, 0, 14)
	if _, err := BuildMacroPlan(in); err == nil {
		t.Fatal("expected error for a 2-week runway")
	}
}

func TestSelectPhilosophy_Deterministic(t *testing.T) {
	c := testCorpus(t)
	in := testInputs()
	logger := zap.NewNop()

	first, err := SelectPhilosophy(c, in, logger)
	if err != nil {
		t.Fatalf("SelectPhilosophy failed: %v", err)
	}
	if first.Metadata.ID != "phil_aerobic" {
		t.Errorf("winner = %s, want phil_aerobic (higher priority)", first.Metadata.ID)
	}
	second, _ := SelectPhilosophy(c, in, logger)
	if second.Metadata.ID != first.Metadata.ID {
		t.Error("selection not deterministic")
	}
}

func TestSelectPhilosophy_ProhibitsGating(t *testing.T) {
	c := testCorpus(t)
	in := testInputs()
	in.AthleteTags = []string{"injury_prone"}

	got, err := SelectPhilosophy(c, in, zap.NewNop())
	if err != nil {
		t.Fatalf("SelectPhilosophy failed: %v", err)
	}
	if got.Metadata.ID != "phil_intervals" {
		t.Errorf("prohibited philosophy not dropped, got %s", got.Metadata.ID)
	}
}

func TestStructureForWeek_TaperPreference(t *testing.T) {
	c := testCorpus(t)

	early := &Week{Index: 0, Phase: PhaseBase, DaysToRace: 90}
	st, err := StructureForWeek(c, "phil_aerobic", early)
	if err != nil {
		t.Fatalf("StructureForWeek failed: %v", err)
	}
	if st.Metadata.ID != "struct_standard" {
		t.Errorf("early week structure = %s, want struct_standard", st.Metadata.ID)
	}

	late := &Week{Index: 14, Phase: PhaseTaper, DaysToRace: 12}
	st, err = StructureForWeek(c, "phil_aerobic", late)
	if err != nil {
		t.Fatalf("StructureForWeek failed: %v", err)
	}
	if st.Metadata.ID != "struct_taper" {
		t.Errorf("taper week structure = %s, want struct_taper", st.Metadata.ID)
	}
}

func TestSelectTemplate_PriorityThenLexicographic(t *testing.T) {
	c := testCorpus(t)
	tmpl, err := SelectTemplate(c, "phil_aerobic", "quality", PhaseBuild)
	if err != nil {
		t.Fatalf("SelectTemplate failed: %v", err)
	}
	// quality_hills and quality_intervals share priority 8; lexicographic id wins
	if tmpl.TemplateID != "quality_hills" {
		t.Errorf("template = %s, want quality_hills", tmpl.TemplateID)
	}
}

func TestAllocateWeek_SumsAndFloors(t *testing.T) {
	c := testCorpus(t)
	st, _ := StructureForWeek(c, "phil_aerobic", &Week{Phase: PhaseBase, DaysToRace: 90})

	week := &Week{Index: 0, TargetMiles: 50, StartsOn: time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)}
	alloc, err := AllocateWeek(week, st, 0)
	if err != nil {
		t.Fatalf("AllocateWeek failed: %v", err)
	}
	if err := checkWeekAllocation(week.Index, alloc.TargetMiles, alloc.Days, true); err != nil {
		t.Fatalf("allocation guard failed: %v", err)
	}

	var sum, long float64
	for _, d := range alloc.Days {
		sum += d.Miles
		switch d.Intent {
		case types.IntentRest:
			if d.Miles != 0 {
				t.Errorf("rest day %s has %.1f miles", d.Day, d.Miles)
			}
		case types.IntentEasy:
			if d.Miles < 2 {
				t.Errorf("easy day %s below 2 mi floor: %.1f", d.Day, d.Miles)
			}
		case types.IntentLong:
			long = d.Miles
		}
	}
	if math.Abs(sum-50) > 0.5 {
		t.Errorf("week sums to %.1f, want 50", sum)
	}
	if long < 0.25*50 || long > 0.35*50 {
		t.Errorf("long run %.1f outside 25-35%% of volume", long)
	}
}

func TestAllocateWeek_FatigueClamped(t *testing.T) {
	c := testCorpus(t)
	st, _ := StructureForWeek(c, "phil_aerobic", &Week{Phase: PhaseBase, DaysToRace: 90})

	week := &Week{Index: 0, TargetMiles: 50, StartsOn: time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)}
	alloc, err := AllocateWeek(week, st, 0.2)
	if err != nil {
		t.Fatalf("AllocateWeek failed: %v", err)
	}
	// 0.2 clamps to the 0.7 floor
	if alloc.TargetMiles != 35 {
		t.Errorf("fatigue-adjusted target = %.1f, want 35", alloc.TargetMiles)
	}
	if week.TargetMiles != 50 {
		t.Errorf("input week mutated: target = %.1f, want 50", week.TargetMiles)
	}
	var sum float64
	for _, d := range alloc.Days {
		sum += d.Miles
	}
	if math.Abs(sum-35) > 0.5 {
		t.Errorf("week sums to %.1f, want the adjusted 35", sum)
	}
}

func TestPipeline_Run(t *testing.T) {
	c := testCorpus(t)
	persistor := &capturePersistor{}
	pipe, err := NewPipeline(c, nil, persistor, time.Minute)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	in := testInputs()
	res, err := pipe.Run(context.Background(), in)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.PhilosophyID != "phil_aerobic" {
		t.Errorf("philosophy = %s", res.PhilosophyID)
	}
	if res.Sessions == 0 || res.Inserted != res.Sessions {
		t.Errorf("sessions=%d inserted=%d", res.Sessions, res.Inserted)
	}

	// group persisted sessions by week and re-check the core plan invariants
	byWeek := map[int][]types.MaterializedSession{}
	for _, s := range persistor.sessions {
		if !s.HasOnePrimaryMetric() {
			t.Errorf("session %s has invalid primary metrics", s.SessionType)
		}
		if len(s.WorkoutSteps) == 0 {
			t.Errorf("session %s has no workout steps", s.SessionType)
		}
		wk := int(s.StartsAt.Sub(res.Weeks[0].StartsOn).Hours() / 24 / 7)
		byWeek[wk] = append(byWeek[wk], s)
	}
	for wk, sessions := range byWeek {
		target := res.Weeks[wk].TargetMiles
		var sum float64
		longs := 0
		prevHard := false
		for _, s := range sessions {
			sum += types.MetersToMiles(s.DistanceMeters)
			if s.Intent == types.IntentLong {
				longs++
			}
			hard := s.Intent == types.IntentQuality
			if hard && prevHard {
				t.Errorf("week %d: consecutive hard days", wk)
			}
			prevHard = hard
		}
		if math.Abs(sum-target)/target > 0.011 {
			t.Errorf("week %d: %.1f mi planned vs %.1f target", wk, sum, target)
		}
		if longs != 1 {
			t.Errorf("week %d has %d long runs", wk, longs)
		}
	}
}

func TestPipeline_AbortsOnMissingTemplate(t *testing.T) {
	dir := t.TempDir()
	// corpus with structure but no templates: template selection must abort
	for name, content := range map[string]string{
		"phil_aerobic.md":    testPhilosophy,
		"struct_standard.md": testStructure,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	c, err := corpus.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}

	persistor := &capturePersistor{}
	pipe, _ := NewPipeline(c, nil, persistor, time.Minute)
	if _, err := pipe.Run(context.Background(), testInputs()); err == nil {
		t.Fatal("expected pipeline abort")
	}
	if persistor.sessions != nil {
		t.Error("nothing may be persisted after an abort")
	}
}
