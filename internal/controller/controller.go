// Package controller is the conversational execution controller: the
// two-stage agent that turns a free-form user message into exactly one of
// three outcomes per turn. It either fills slots and asks one question,
// executes the chosen planning tool, or replies informationally when no tool
// is in play. All side effects go through the tool boundary; the controller
// refuses to run at all when that boundary is unconfigured.
package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"stridecoach/internal/config"
	"stridecoach/internal/convo"
	"stridecoach/internal/extract"
	"stridecoach/internal/logging"
	"stridecoach/internal/toolclient"
	"stridecoach/internal/types"
)

const (
	modelName    = "stride-controller"
	contextLimit = 20
	adhocPlanID  = "adhoc"
	chatReply    = "I can plan a race build, lay out a season, or adjust sessions already on your calendar. Tell me about your goal."
)

// Controller drives the per-turn slot state machine.
type Controller struct {
	tools        *toolclient.Client
	convo        *convo.Store
	turnDeadline time.Duration
	logger       *zap.Logger
	now          func() time.Time
}

// New builds a controller. It fails closed: construction requires a working
// tool client, which itself requires both endpoints configured.
func New(cfg *config.Config) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("controller cannot start: %w", err)
	}
	client, err := toolclient.New(cfg.Tools.DataEndpoint, cfg.Tools.PromptEndpoint, cfg.ToolCallTimeout())
	if err != nil {
		return nil, fmt.Errorf("controller cannot start: %w", err)
	}
	return &Controller{
		tools:        client,
		convo:        convo.New(client),
		turnDeadline: cfg.TurnDeadline(),
		logger:       logging.Named("controller"),
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// TurnInput is one user utterance.
type TurnInput struct {
	ConversationID string
	UserID         string
	Message        string
}

// TurnOutput reports what the turn did. Exactly one of AskedSlot being
// non-empty, Executed being true, or neither (informational chat) holds.
type TurnOutput struct {
	Text         string          `json:"text"`
	Target       Action          `json:"target_action"`
	AskedSlot    string          `json:"asked_slot,omitempty"`
	Executed     bool            `json:"executed"`
	ToolResult   json.RawMessage `json:"tool_result,omitempty"`
	FilledSlots  map[string]string `json:"filled_slots"`
	MissingSlots []string        `json:"missing_slots"`
}

// Turn runs the state machine for one message: load progress, classify the
// target, extract, merge, decide, validate, persist. On deadline or error the
// turn fails and progress is not updated.
func (c *Controller) Turn(ctx context.Context, in *TurnInput) (*TurnOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, c.turnDeadline)
	defer cancel()

	if in.ConversationID == "" || in.UserID == "" {
		return nil, fmt.Errorf("conversation and user ids are required")
	}
	if _, err := c.instructions(ctx); err != nil {
		return nil, fmt.Errorf("refusing turn: %w", err)
	}

	progress := c.convo.LoadProgress(ctx, in.ConversationID)

	target := Classify(in.Message, Action(progress.TargetAction), progress.AwaitingSlots)
	rewritten := false
	if target == ActionWeeklyPlan && !c.hasRacePlan(ctx, in.UserID) {
		// weekly planning depends on an existing race plan
		c.logger.Info("weekly plan requested without race plan, rewriting target",
			zap.String("conversation_id", in.ConversationID))
		target = ActionRaceBuild
		rewritten = true
	}

	required := RequiredFor(target)
	if rewritten {
		// the athlete asked about scheduling, not a race: anchor the
		// conversation on the race date first
		required = moveToFront(required, "race_date")
	}
	lastAsked := ""
	if len(progress.AwaitingSlots) > 0 {
		lastAsked = progress.AwaitingSlots[0]
	}

	var result extract.Result
	if lastAsked != "" && IsConfirmation(in.Message) {
		// a bare go-ahead carries no slot values; re-ask rather than
		// misreading "sure" as content
		result.MissingFields = append([]string(nil), progress.AwaitingSlots...)
	} else {
		result = extract.Extract(extract.Request{
			Message:    in.Message,
			Attributes: RequestedFor(target),
			Known:      progress.FilledSlots,
			Summary:    c.convo.Summary(ctx, in.ConversationID),
			Today:      c.now(),
			LastAsked:  lastAsked,
		})
	}

	// merge: new values win, ambiguity evicts
	for k, v := range result.Values {
		progress.FilledSlots[k] = v
	}
	for _, k := range result.AmbiguousFields {
		delete(progress.FilledSlots, k)
	}
	missing := make([]string, 0, len(required))
	for _, k := range required {
		if _, ok := progress.FilledSlots[k]; !ok {
			missing = append(missing, k)
		}
	}

	out := &TurnOutput{
		Target:       target,
		FilledSlots:  progress.FilledSlots,
		MissingSlots: missing,
	}
	resp := &Response{Target: target, MissingSlots: missing}

	switch {
	case len(missing) > 0:
		out.AskedSlot = missing[0]
		resp.Text = QuestionFor(missing[0])
	case target != ActionNone:
		toolResult, err := c.execute(ctx, in, target, progress.FilledSlots)
		if err != nil {
			return nil, err
		}
		out.Executed = true
		out.ToolResult = toolResult
		resp.ShouldExecute = true
		resp.Text = executionSummary(target, toolResult)
	default:
		resp.Text = chatReply
	}

	if err := Validate(resp); err != nil {
		c.logger.Warn("response failed validation, using fallback",
			zap.String("conversation_id", in.ConversationID),
			zap.String("target", string(target)),
			zap.Error(err))
		if len(missing) > 0 {
			resp.Text = FallbackQuestion(missing[0])
		} else {
			resp.Text = "Done."
		}
	}
	out.Text = resp.Text

	progress.TargetAction = string(target)
	progress.RequiredAttributes = required
	progress.OptionalAttributes = append([]string(nil), optionalAttributes[target]...)
	progress.AwaitingSlots = missing
	if out.Executed {
		progress.TargetAction = ""
		progress.AwaitingSlots = []string{}
	}

	if err := c.saveProgress(ctx, in.ConversationID, progress); err != nil {
		return nil, fmt.Errorf("failed to persist progress: %w", err)
	}
	if err := c.convo.AppendTurn(ctx, in.ConversationID, modelName, in.Message, out.Text); err != nil {
		return nil, fmt.Errorf("failed to persist turn: %w", err)
	}
	return out, nil
}

// instructions loads the orchestrator prompt from the prompt upstream. The
// turn rules themselves are compiled in, but both upstreams are fail-closed:
// an unreachable prompt server or an empty prompt refuses the turn before any
// state is read or written.
func (c *Controller) instructions(ctx context.Context) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	if err := c.tools.CallInto(ctx, "load_orchestrator_prompt", map[string]any{}, &out); err != nil {
		return "", fmt.Errorf("orchestrator prompt unavailable: %w", err)
	}
	if strings.TrimSpace(out.Content) == "" {
		return "", fmt.Errorf("orchestrator prompt is empty")
	}
	return out.Content, nil
}

// saveProgress writes progress, absorbing one optimistic-version conflict by
// re-reading and reapplying.
func (c *Controller) saveProgress(ctx context.Context, conversationID string, p *types.Progress) error {
	err := c.convo.SaveProgress(ctx, conversationID, p)
	if err == nil || !toolclient.IsRemoteCode(err, "VERSION_CONFLICT") {
		return err
	}
	fresh := c.convo.LoadProgress(ctx, conversationID)
	p.Version = fresh.Version
	return c.convo.SaveProgress(ctx, conversationID, p)
}

// hasRacePlan checks for a future planned session belonging to a real plan.
// Ad-hoc workouts carry the sentinel plan id and do not satisfy the gate. A
// failed read counts as no plan: the worst case is re-collecting race details.
func (c *Controller) hasRacePlan(ctx context.Context, userID string) bool {
	var out struct {
		Sessions []struct {
			PlanID string `json:"plan_id"`
		} `json:"sessions"`
	}
	from := c.now()
	err := c.tools.CallInto(ctx, "get_planned_sessions", map[string]any{
		"user_id": userID,
		"from":    from.Format("2006-01-02"),
		"to":      from.AddDate(1, 0, 0).Format("2006-01-02"),
	}, &out)
	if err != nil {
		return false
	}
	for _, s := range out.Sessions {
		if s.PlanID != "" && s.PlanID != adhocPlanID {
			return true
		}
	}
	return false
}

// execute invokes the target planning tool with the filled slots.
func (c *Controller) execute(ctx context.Context, in *TurnInput, target Action, slots map[string]string) (json.RawMessage, error) {
	args := map[string]any{
		"user_id":         in.UserID,
		"conversation_id": in.ConversationID,
	}
	for k, v := range slots {
		args[k] = v
	}
	raw, err := c.tools.Call(ctx, string(target), args)
	if err != nil {
		return nil, fmt.Errorf("tool %s failed: %w", target, err)
	}
	c.logger.Info("tool executed",
		zap.String("conversation_id", in.ConversationID),
		zap.String("tool", string(target)))
	return raw, nil
}

func moveToFront(list []string, item string) []string {
	out := []string{}
	for _, v := range list {
		if v == item {
			out = append([]string{item}, out...)
			continue
		}
		out = append(out, v)
	}
	return out
}

// executionSummary renders a terse confirmation from a tool result.
func executionSummary(target Action, result json.RawMessage) string {
	var plan struct {
		Weeks    []json.RawMessage `json:"weeks"`
		Sessions int               `json:"sessions"`
	}
	if err := json.Unmarshal(result, &plan); err == nil && plan.Sessions > 0 {
		if len(plan.Weeks) > 0 {
			return fmt.Sprintf("Done: %d weeks planned, %d sessions on your calendar.", len(plan.Weeks), plan.Sessions)
		}
		return fmt.Sprintf("Done: %d sessions on your calendar.", plan.Sessions)
	}
	switch target {
	case ActionModifyDay, ActionModifyWeek:
		return "Done: schedule updated."
	case ActionAddWorkout:
		return "Done: workout added."
	default:
		return "Done."
	}
}
