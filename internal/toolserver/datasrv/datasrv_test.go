package datasrv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stridecoach/internal/corpus"
	"stridecoach/internal/store"
	"stridecoach/internal/toolserver"
	"stridecoach/internal/types"
)

const testPhilosophyDoc = `---
id: phil_aerobic
domain: philosophy
race_types: [marathon, half]
audience: any
priority: 10
version: 1
---
` + "```philosophy_spec" + `
max_hard_days: 2
summary: High aerobic volume, weekly long run.
` + "```" + `
`

const testStructureDoc = `---
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

const testTemplateDoc = `---
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
    params:
      work_mi: [3, 8]
    description: Interval session at goal effort.
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

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "data.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	dir := t.TempDir()
	for name, content := range map[string]string{
		"phil.md":   testPhilosophyDoc,
		"struct.md": testStructureDoc,
		"tmpl.md":   testTemplateDoc,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	c, err := corpus.LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}
	return New(st, c, nil, time.Minute)
}

func call(t *testing.T, fn toolserver.ToolFunc, args any) (any, *toolserver.ToolError) {
	t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return fn(t.Context(), raw)
}

func mustCall(t *testing.T, fn toolserver.ToolFunc, args any) any {
	t.Helper()
	result, terr := call(t, fn, args)
	if terr != nil {
		t.Fatalf("tool returned %s: %s", terr.Code, terr.Message)
	}
	return result
}

func wantCode(t *testing.T, fn toolserver.ToolFunc, args any, code toolserver.Code) {
	t.Helper()
	_, terr := call(t, fn, args)
	if terr == nil {
		t.Fatalf("expected %s, got success", code)
	}
	if terr.Code != code {
		t.Fatalf("code = %s, want %s (%s)", terr.Code, code, terr.Message)
	}
}

func TestPlanRaceBuild_EndToEnd(t *testing.T) {
	s := newTestService(t)
	raceDate := time.Now().UTC().AddDate(0, 0, 105).Format(dateLayout)

	result := mustCall(t, s.planRaceBuild, map[string]any{
		"user_id":        "u1",
		"race_distance":  "marathon",
		"race_date":      raceDate,
		"target_time":    "03:00:00",
		"weekly_mileage": "55",
	})
	raw, _ := json.Marshal(result)
	var res struct {
		Sessions int `json:"sessions"`
		Inserted int `json:"inserted"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Sessions == 0 || res.Inserted != res.Sessions {
		t.Fatalf("sessions=%d inserted=%d", res.Sessions, res.Inserted)
	}

	// the plan is now queryable through the session tools
	listed := mustCall(t, s.getPlannedSessions, map[string]any{
		"user_id": "u1",
		"from":    time.Now().UTC().Format(dateLayout),
		"to":      raceDate,
	})
	raw, _ = json.Marshal(listed)
	var out struct {
		Sessions []types.MaterializedSession `json:"sessions"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(out.Sessions) != res.Sessions {
		t.Errorf("listed %d sessions, planned %d", len(out.Sessions), res.Sessions)
	}
	for _, sess := range out.Sessions {
		if !sess.HasOnePrimaryMetric() {
			t.Errorf("session %s violates the single-metric rule", sess.ID)
		}
	}
}

func TestPlanRaceBuild_Validation(t *testing.T) {
	s := newTestService(t)

	wantCode(t, s.planRaceBuild, map[string]any{"user_id": "u1"}, toolserver.CodeMissingRaceInfo)
	wantCode(t, s.planRaceBuild, map[string]any{
		"user_id": "u1", "race_distance": "marathon", "race_date": "2020-04-25",
	}, toolserver.CodeInvalidRaceDate)
	wantCode(t, s.planRaceBuild, map[string]any{
		"user_id": "u1", "race_distance": "marathon", "race_date": "soon",
	}, toolserver.CodeInvalidDateFormat)
	wantCode(t, s.planRaceBuild, map[string]any{
		"user_id": "u1", "race_distance": "parkrun", "race_date": "2030-04-25",
	}, toolserver.CodeInvalidInput)
}

func TestPlanSeason_Validation(t *testing.T) {
	s := newTestService(t)

	wantCode(t, s.planSeason, map[string]any{"user_id": "u1"}, toolserver.CodeMissingSeasonInfo)
	wantCode(t, s.planSeason, map[string]any{
		"user_id": "u1", "season_start": "2030-06-01", "season_end": "2030-03-01",
	}, toolserver.CodeInvalidSeasonDates)
}

func testSession(userID string, startsAt time.Time) types.MaterializedSession {
	return types.MaterializedSession{
		UserID:         userID,
		PlanID:         "plan-t",
		StartsAt:       startsAt,
		EndsAt:         startsAt.Add(time.Hour),
		Sport:          "run",
		SessionType:    "easy_run",
		Intent:         types.IntentEasy,
		DistanceMeters: types.MilesToMeters(6),
		Description:    "Easy aerobic run.",
	}
}

func TestSavePlannedSessions_RejectsDualMetric(t *testing.T) {
	s := newTestService(t)
	sess := testSession("u1", time.Date(2030, 3, 2, 7, 0, 0, 0, time.UTC))
	sess.DurationSeconds = 3600 // second primary metric

	wantCode(t, s.savePlannedSessions, map[string]any{
		"user_id":  "u1",
		"plan_id":  "plan-t",
		"sessions": []types.MaterializedSession{sess},
	}, toolserver.CodeInvalidSessionData)
}

func TestSavePlannedSessions_IdempotentResave(t *testing.T) {
	s := newTestService(t)
	sessions := []types.MaterializedSession{
		testSession("u1", time.Date(2030, 3, 2, 7, 0, 0, 0, time.UTC)),
		testSession("u1", time.Date(2030, 3, 3, 7, 0, 0, 0, time.UTC)),
	}
	args := map[string]any{"user_id": "u1", "plan_id": "plan-t", "sessions": sessions}

	first := mustCall(t, s.savePlannedSessions, args).(map[string]any)
	if first["inserted"].(int) != 2 {
		t.Fatalf("first save inserted %v, want 2", first["inserted"])
	}
	second := mustCall(t, s.savePlannedSessions, args).(map[string]any)
	if second["inserted"].(int) != 0 {
		t.Errorf("resave inserted %v, want 0", second["inserted"])
	}
}

func TestWeeklyPlan_RequiresRacePlan(t *testing.T) {
	s := newTestService(t)
	wantCode(t, s.weeklyPlan, map[string]any{"user_id": "u1"}, toolserver.CodeMissingRaceInfo)

	// an ad-hoc workout alone is not a race plan
	mustCall(t, s.addWorkout, map[string]any{"user_id": "u1", "description": "easy 4 miles"})
	wantCode(t, s.weeklyPlan, map[string]any{"user_id": "u1"}, toolserver.CodeMissingRaceInfo)

	mustCall(t, s.savePlannedSessions, map[string]any{
		"user_id": "u1", "plan_id": "plan-t",
		"sessions": []types.MaterializedSession{
			testSession("u1", time.Now().UTC().AddDate(0, 0, 1)),
		},
	})
	mustCall(t, s.weeklyPlan, map[string]any{"user_id": "u1"})
}

func TestAddWorkout(t *testing.T) {
	s := newTestService(t)

	wantCode(t, s.addWorkout, map[string]any{"user_id": "u1", "description": "  "},
		toolserver.CodeInvalidWorkout)

	mustCall(t, s.addWorkout, map[string]any{
		"user_id":     "u1",
		"description": "6 mi tempo at threshold",
		"date":        "2030-03-02",
	})
	listed := mustCall(t, s.getPlannedSessions, map[string]any{
		"user_id": "u1", "from": "2030-03-01", "to": "2030-03-03",
	})
	raw, _ := json.Marshal(listed)
	var out struct {
		Sessions []types.MaterializedSession `json:"sessions"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Sessions) != 1 {
		t.Fatalf("got %d sessions", len(out.Sessions))
	}
	got := out.Sessions[0]
	if got.Intent != types.IntentQuality {
		t.Errorf("tempo workout intent = %s, want quality", got.Intent)
	}
	if got.DistanceMeters == 0 || got.DurationSeconds != 0 {
		t.Errorf("stated distance must be the single primary metric: %+v", got)
	}
}

func TestModifyDay_PreservesIntent(t *testing.T) {
	s := newTestService(t)
	mustCall(t, s.savePlannedSessions, map[string]any{
		"user_id": "u1", "plan_id": "plan-t",
		"sessions": []types.MaterializedSession{
			testSession("u1", time.Date(2030, 3, 2, 7, 0, 0, 0, time.UTC)),
		},
	})

	result := mustCall(t, s.modifyDay, map[string]any{
		"user_id":         "u1",
		"date":            "2030-03-02",
		"distance_meters": types.MilesToMeters(8),
		"intent":          "quality", // ignored without explicit_intent_change
	})
	raw, _ := json.Marshal(result)
	var out struct {
		Session types.MaterializedSession `json:"session"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Session.Intent != types.IntentEasy {
		t.Errorf("intent changed without explicit flag: %s", out.Session.Intent)
	}

	wantCode(t, s.modifyDay, map[string]any{"user_id": "u1", "date": "tomorrow"},
		toolserver.CodeInvalidDateFormat)
	wantCode(t, s.modifyDay, map[string]any{"user_id": "u1", "date": "2030-07-04"},
		toolserver.CodeInvalidSessionData)
}

func TestLinkSession_Duplicate(t *testing.T) {
	s := newTestService(t)
	mustCall(t, s.savePlannedSessions, map[string]any{
		"user_id": "u1", "plan_id": "plan-t",
		"sessions": []types.MaterializedSession{
			testSession("u1", time.Date(2030, 3, 2, 7, 0, 0, 0, time.UTC)),
		},
	})
	listed := mustCall(t, s.getPlannedSessions, map[string]any{
		"user_id": "u1", "from": "2030-03-01", "to": "2030-03-03",
	})
	raw, _ := json.Marshal(listed)
	var out struct {
		Sessions []types.MaterializedSession `json:"sessions"`
	}
	if err := json.Unmarshal(raw, &out); err != nil || len(out.Sessions) != 1 {
		t.Fatalf("need one saved session: %v", err)
	}
	plannedID := out.Sessions[0].ID

	mustCall(t, s.linkSession, map[string]any{
		"planned_session_id": plannedID,
		"activity_id":        "act-1",
		"method":             "auto",
		"confidence":         0.9,
	})
	wantCode(t, s.linkSession, map[string]any{
		"planned_session_id": plannedID,
		"activity_id":        "act-2",
	}, toolserver.CodeDuplicateLink)
}

func TestGetRecentActivities_InvalidDays(t *testing.T) {
	s := newTestService(t)
	wantCode(t, s.getRecentActivities, map[string]any{"user_id": "u1", "days": -1},
		toolserver.CodeInvalidDays)
	wantCode(t, s.getRecentActivities, map[string]any{"user_id": "u1", "days": 9999},
		toolserver.CodeInvalidDays)
	mustCall(t, s.getRecentActivities, map[string]any{"user_id": "u1"})
}

func TestProgress_VersionConflict(t *testing.T) {
	s := newTestService(t)

	wantCode(t, s.loadProgress, map[string]any{"conversation_id": "c1"},
		toolserver.CodeConversationMissing)

	progress := types.NewProgress()
	progress.TargetAction = "plan_race_build"
	mustCall(t, s.saveProgress, map[string]any{
		"conversation_id": "c1", "progress": progress, "version": 0,
	})

	// stale writer re-submits version 0
	wantCode(t, s.saveProgress, map[string]any{
		"conversation_id": "c1", "progress": progress, "version": 0,
	}, toolserver.CodeVersionConflict)
}

func TestSummarizeConversation_Deterministic(t *testing.T) {
	s := newTestService(t)
	mustCall(t, s.saveContext, map[string]any{
		"conversation_id": "c1",
		"user_message":    "I want to run a marathon",
		"assistant_message": "What date is your race?",
	})

	first := mustCall(t, s.summarizeConversation, map[string]any{"conversation_id": "c1"}).(map[string]any)
	second := mustCall(t, s.summarizeConversation, map[string]any{"conversation_id": "c1"}).(map[string]any)
	if first["summary"] != second["summary"] {
		t.Errorf("summary not stable: %q vs %q", first["summary"], second["summary"])
	}
	if first["summary"] == "" {
		t.Error("summary is empty")
	}
}

func TestGoalPace(t *testing.T) {
	if got := goalPace("marathon", "03:00:00"); got < 405 || got > 415 {
		t.Errorf("3:00 marathon pace = %d sec/mi, want ~412", got)
	}
	if got := goalPace("marathon", ""); got != 0 {
		t.Errorf("no target time must yield 0, got %d", got)
	}
	if got := goalPace("trail", "03:00:00"); got != 0 {
		t.Errorf("unknown race must yield 0, got %d", got)
	}
}

// wire-level check: errors come back as HTTP 200 with an error payload
func TestServer_WireFormat(t *testing.T) {
	s := newTestService(t)
	srv := httptest.NewServer(s.Server().Handler())
	defer srv.Close()

	body, _ := json.Marshal(toolserver.CallRequest{
		Tool:      "load_progress",
		Arguments: json.RawMessage(`{"conversation_id":"missing"}`),
	})
	resp, err := http.Post(fmt.Sprintf("%s/mcp/tools/call", srv.URL), "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out toolserver.CallResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Error == nil || out.Error.Code != toolserver.CodeConversationMissing {
		t.Fatalf("error = %+v, want CONVERSATION_NOT_FOUND", out.Error)
	}
}
