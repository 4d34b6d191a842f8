package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"stridecoach/internal/config"
	"stridecoach/internal/types"
)

// fakeServers is an in-memory stand-in for the two tool servers.
type fakeServers struct {
	mu        sync.Mutex
	progress  map[string]*types.Progress
	versions  map[string]int64
	turns        int
	toolCalls    []map[string]any // recorded plan/modify tool invocations
	planned      int              // future race-plan sessions to report
	adhocPlanned int              // future ad-hoc sessions to report
}

func newFakeServers() *fakeServers {
	return &fakeServers{
		progress: map[string]*types.Progress{},
		versions: map[string]int64{},
	}
}

func (f *fakeServers) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Tool      string          `json:"tool"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		var result any
		switch req.Tool {
		case "load_progress":
			var args struct {
				ConversationID string `json:"conversation_id"`
			}
			json.Unmarshal(req.Arguments, &args)
			p := f.progress[args.ConversationID]
			result = map[string]any{"progress": p, "version": f.versions[args.ConversationID]}
		case "save_progress":
			var args struct {
				ConversationID string          `json:"conversation_id"`
				Progress       *types.Progress `json:"progress"`
			}
			json.Unmarshal(req.Arguments, &args)
			f.progress[args.ConversationID] = args.Progress
			f.versions[args.ConversationID]++
			result = map[string]any{"version": f.versions[args.ConversationID]}
		case "save_context":
			f.turns++
			result = map[string]any{"saved": true}
		case "summarize_conversation":
			result = map[string]any{"summary": ""}
		case "get_planned_sessions":
			sessions := make([]map[string]any, 0, f.planned+f.adhocPlanned)
			for i := 0; i < f.planned; i++ {
				sessions = append(sessions, map[string]any{"id": "s", "plan_id": "plan-1"})
			}
			for i := 0; i < f.adhocPlanned; i++ {
				sessions = append(sessions, map[string]any{"id": "w", "plan_id": "adhoc"})
			}
			result = map[string]any{"sessions": sessions}
		case "load_orchestrator_prompt":
			result = map[string]any{
				"filename": "orchestrator.md",
				"content":  "Collect the goal, ask one question at a time, execute when complete.",
			}
		case "plan_race_build", "plan_season", "weekly_plan", "add_workout", "modify_day", "modify_week":
			var args map[string]any
			json.Unmarshal(req.Arguments, &args)
			args["__tool"] = req.Tool
			f.toolCalls = append(f.toolCalls, args)
			result = map[string]any{
				"plan_id":  "plan-1",
				"weeks":    []map[string]any{{"index": 0}, {"index": 1}, {"index": 2}, {"index": 3}},
				"sessions": 20,
			}
		default:
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"code": "TOOL_NOT_FOUND", "message": req.Tool},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"result": result})
	}
}

func newTestController(t *testing.T) (*Controller, *fakeServers) {
	t.Helper()
	fake := newFakeServers()
	srv := httptest.NewServer(fake.handler())
	t.Cleanup(srv.Close)

	cfg := config.DefaultConfig()
	cfg.Tools.DataEndpoint = srv.URL
	cfg.Tools.PromptEndpoint = srv.URL

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c.now = func() time.Time { return time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC) }
	return c, fake
}

func turn(t *testing.T, c *Controller, msg string) *TurnOutput {
	t.Helper()
	out, err := c.Turn(context.Background(), &TurnInput{ConversationID: "c1", UserID: "u1", Message: msg})
	if err != nil {
		t.Fatalf("Turn(%q) failed: %v", msg, err)
	}
	return out
}

// exactly one of ask / execute / chat per turn
func assertOneOutcome(t *testing.T, out *TurnOutput) {
	t.Helper()
	asked := out.AskedSlot != ""
	if asked && out.Executed {
		t.Errorf("turn both asked and executed: %+v", out)
	}
}

func TestTurn_MarathonAnnouncement(t *testing.T) {
	c, _ := newTestController(t)
	out := turn(t, c, "I'm training for a marathon")

	assertOneOutcome(t, out)
	if out.Target != ActionRaceBuild {
		t.Errorf("target = %s", out.Target)
	}
	if out.FilledSlots["race_distance"] != "marathon" {
		t.Errorf("filled = %+v", out.FilledSlots)
	}
	if out.AskedSlot != "race_date" || out.Executed {
		t.Errorf("expected ask for race_date, got %+v", out)
	}
	if n := strings.Count(out.Text, "?"); n != 1 {
		t.Errorf("response has %d question marks: %q", n, out.Text)
	}
}

func TestTurn_FollowUpDateExecutes(t *testing.T) {
	c, fake := newTestController(t)
	turn(t, c, "I'm training for a marathon")
	out := turn(t, c, "April 25th")

	assertOneOutcome(t, out)
	if !out.Executed {
		t.Fatalf("expected execution, got %+v", out)
	}
	if len(fake.toolCalls) != 1 {
		t.Fatalf("expected one tool call, got %d", len(fake.toolCalls))
	}
	call := fake.toolCalls[0]
	if call["__tool"] != "plan_race_build" || call["race_date"] != "2026-04-25" || call["race_distance"] != "marathon" {
		t.Errorf("tool call args = %+v", call)
	}
}

func TestTurn_SingleShotAllSlots(t *testing.T) {
	c, fake := newTestController(t)
	out := turn(t, c, "Marathon on April 25, aiming for sub-3. Running ~55 mpw.")

	if !out.Executed {
		t.Fatalf("expected immediate execution, got %+v", out)
	}
	call := fake.toolCalls[0]
	if call["target_time"] != "03:00:00" || call["weekly_mileage"] != "55" {
		t.Errorf("optional slots not passed: %+v", call)
	}
}

func TestTurn_AmbiguousSeason(t *testing.T) {
	c, _ := newTestController(t)
	out := turn(t, c, "I want to run a race in spring")

	assertOneOutcome(t, out)
	if out.Executed {
		t.Fatal("must not execute on ambiguous input")
	}
	if n := strings.Count(out.Text, "?"); n != 1 {
		t.Errorf("response has %d question marks: %q", n, out.Text)
	}
	found := false
	for _, s := range out.MissingSlots {
		if s == "race_date" {
			found = true
		}
	}
	if !found {
		t.Errorf("race_date should be missing, got %+v", out.MissingSlots)
	}
}

func TestTurn_WeeklyPlanGating(t *testing.T) {
	c, _ := newTestController(t)
	out := turn(t, c, "Plan my next week")

	if out.Target != ActionRaceBuild {
		t.Errorf("target = %s, want rewrite to plan_race_build", out.Target)
	}
	if out.AskedSlot != "race_date" {
		t.Errorf("asked = %s, want race_date", out.AskedSlot)
	}
}

func TestTurn_WeeklyPlanWithExistingRacePlan(t *testing.T) {
	c, fake := newTestController(t)
	fake.planned = 5
	out := turn(t, c, "Plan my next week")

	if out.Target != ActionWeeklyPlan {
		t.Errorf("target = %s, want weekly_plan", out.Target)
	}
	if !out.Executed {
		t.Errorf("weekly plan with a race plan should execute, got %+v", out)
	}
}

func TestTurn_WeeklyPlanIgnoresAdhocSessions(t *testing.T) {
	c, fake := newTestController(t)
	fake.adhocPlanned = 3
	out := turn(t, c, "Plan my next week")

	if out.Target != ActionRaceBuild {
		t.Errorf("target = %s, want rewrite to plan_race_build: ad-hoc workouts are not a race plan", out.Target)
	}
	if out.AskedSlot != "race_date" {
		t.Errorf("asked = %s, want race_date", out.AskedSlot)
	}
}

func TestTurn_RefusesWhenPromptServerUnreachable(t *testing.T) {
	fake := newFakeServers()
	dataSrv := httptest.NewServer(fake.handler())
	t.Cleanup(dataSrv.Close)
	promptSrv := httptest.NewServer(http.NotFoundHandler())
	promptURL := promptSrv.URL
	promptSrv.Close()

	cfg := config.DefaultConfig()
	cfg.Tools.DataEndpoint = dataSrv.URL
	cfg.Tools.PromptEndpoint = promptURL

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	_, err = c.Turn(context.Background(), &TurnInput{ConversationID: "c1", UserID: "u1", Message: "I'm training for a marathon"})
	if err == nil {
		t.Fatal("turn must refuse when the prompt upstream is unreachable")
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.turns != 0 {
		t.Errorf("no turn may be persisted after a refusal, got %d", fake.turns)
	}
}

func TestTurn_EmptyMessageReasks(t *testing.T) {
	c, _ := newTestController(t)
	turn(t, c, "I'm training for a marathon")
	out := turn(t, c, "   ")

	if out.Executed || out.AskedSlot != "race_date" {
		t.Errorf("empty message should re-ask the first missing slot, got %+v", out)
	}
}

func TestTurn_BareConfirmationReasks(t *testing.T) {
	c, fake := newTestController(t)
	turn(t, c, "I'm training for a marathon")
	out := turn(t, c, "go ahead")

	if out.Executed {
		t.Fatal("a bare confirmation must not execute while slots are missing")
	}
	if out.AskedSlot != "race_date" {
		t.Errorf("asked = %s, want race_date again", out.AskedSlot)
	}
	if len(fake.toolCalls) != 0 {
		t.Errorf("no planning tool may run, got %d calls", len(fake.toolCalls))
	}
}

func TestNew_FailsClosedWithoutEndpoints(t *testing.T) {
	cfg := config.DefaultConfig()
	if _, err := New(cfg); err == nil {
		t.Fatal("expected fail-closed error with unconfigured endpoints")
	}
}

func TestValidate_Rules(t *testing.T) {
	cases := []struct {
		name string
		resp Response
		ok   bool
	}{
		{"single question", Response{Text: "What date is your race?", Target: ActionRaceBuild, MissingSlots: []string{"race_date"}}, true},
		{"two questions", Response{Text: "What date? And where?", Target: ActionRaceBuild, MissingSlots: []string{"race_date"}}, false},
		{"no question", Response{Text: "Tell me the date.", Target: ActionRaceBuild, MissingSlots: []string{"race_date"}}, false},
		{"advice while collecting", Response{Text: "I recommend you pick a spring race, what date?", Target: ActionRaceBuild, MissingSlots: []string{"race_date"}}, false},
		{"chatty execution", Response{Text: strings.Repeat("Great work! ", 30), Target: ActionRaceBuild, ShouldExecute: true}, false},
		{"execute immediately", Response{Text: "Done.", Target: ActionRaceBuild, ShouldExecute: false}, false},
		{"clean execution", Response{Text: "Done: 16 weeks planned.", Target: ActionRaceBuild, ShouldExecute: true}, true},
		{"plain chat", Response{Text: "I can help with planning."}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(&tc.resp)
			if tc.ok && err != nil {
				t.Errorf("unexpected rejection: %v", err)
			}
			if !tc.ok && err == nil {
				t.Error("expected rejection")
			}
		})
	}
}

func TestRunner_SerializesConversation(t *testing.T) {
	c, fake := newTestController(t)
	runner := NewRunner(context.Background(), c, 4)

	var mu sync.Mutex
	var outs []*TurnOutput
	for i := 0; i < 5; i++ {
		runner.Submit(&TurnInput{ConversationID: "c1", UserID: "u1", Message: "I'm training for a marathon"},
			func(out *TurnOutput, err error) {
				if err != nil {
					t.Errorf("turn failed: %v", err)
					return
				}
				mu.Lock()
				outs = append(outs, out)
				mu.Unlock()
			})
	}
	if err := runner.Wait(); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if len(outs) != 5 {
		t.Fatalf("got %d outcomes", len(outs))
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.turns != 5 {
		t.Errorf("persisted %d turns, want 5", fake.turns)
	}
}
