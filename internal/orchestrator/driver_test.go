package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"obra/internal/command"
	"obra/internal/confidence"
	"obra/internal/config"
	"obra/internal/decision"
	"obra/internal/hooks"
	"obra/internal/prompt"
	"obra/internal/quality"
	"obra/internal/retry"
	"obra/internal/state"
	"obra/internal/store"
	"obra/internal/types"
	"obra/internal/validation"
)

// harness wires a driver over an in-memory state store with scripted
// collaborators.
type harness struct {
	mgr       *state.Manager
	llm       *mockLLM
	agent     *scriptedAgent
	queue     *command.Queue
	telemetry *hooks.Telemetry
	orchCfg   config.OrchestrationConfig
	decCfg    config.DecisionConfig
	projectID int64
}

func newHarness(t *testing.T, agent *scriptedAgent) *harness {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	mgr := state.New(st, config.DefaultDependenciesConfig())
	pid, err := mgr.CreateProject(context.Background(), "p", "", "/tmp/ws")
	if err != nil {
		t.Fatal(err)
	}
	return &harness{
		mgr:       mgr,
		llm:       newMockLLM(),
		agent:     agent,
		queue:     command.NewQueue(16),
		telemetry: hooks.NewTelemetry(),
		orchCfg:   config.DefaultOrchestrationConfig(),
		decCfg:    config.DefaultDecisionConfig(),
		projectID: pid,
	}
}

func (h *harness) driver() *Driver {
	dispatcher := hooks.NewDispatcher()
	dispatcher.Register(h.telemetry)
	return NewDriver(Deps{
		Config:    h.orchCfg,
		State:     h.mgr,
		LLM:       h.llm,
		Agent:     h.agent,
		Contexts:  prompt.NewContextBuilder(h.llm),
		Prompts:   prompt.NewBuilder(),
		Validator: validation.New(),
		Quality:   quality.New(h.llm, nil),
		Scorer:    confidence.New(h.decCfg),
		Engine:    decision.New(h.decCfg),
		Retries: retry.New(config.RetryConfig{
			MaxAttempts:      3,
			BaseDelaySeconds: 0.0001,
			MaxDelaySeconds:  0.001,
			Multiplier:       2,
		}),
		Commands: h.queue,
		Hooks:    dispatcher,
	})
}

func (h *harness) task(t *testing.T, title string, deps ...int64) int64 {
	t.Helper()
	id, err := h.mgr.CreateWorkItem(context.Background(), state.CreateWorkItemSpec{
		ProjectID: h.projectID,
		Kind:      types.KindTask,
		Title:     title,
		Deps:      deps,
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

// resolveWhenOpen answers the item's next breakpoint from a side goroutine,
// the way a human would through the REPL.
func resolveWhenOpen(t *testing.T, mgr *state.Manager, itemID int64, res types.Resolution, feedback string) {
	t.Helper()
	go func() {
		deadline := time.Now().Add(15 * time.Second)
		for time.Now().Before(deadline) {
			open, err := mgr.OpenBreakpoints(context.Background(), itemID)
			if err == nil && len(open) > 0 {
				mgr.ResolveBreakpoint(context.Background(), open[0].ID, res, feedback)
				return
			}
			time.Sleep(50 * time.Millisecond)
		}
	}()
}

func TestDriverAcceptsGoodResponse(t *testing.T) {
	h := newHarness(t, newScriptedAgent(agentStep{output: goodOutput}))
	id := h.task(t, "implement the loader")

	if err := h.driver().Run(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	w, _ := h.mgr.GetWorkItem(context.Background(), id)
	if w.Status != types.StatusCompleted {
		t.Errorf("status = %s", w.Status)
	}
	ins, _ := h.mgr.ListInteractions(context.Background(), id)
	if len(ins) != 1 || ins[0].Decision != types.ActionAccept {
		t.Fatalf("interactions = %+v", ins)
	}
	if !ins[0].ValidatorOK || ins[0].ConfidenceScore < 0.85 {
		t.Errorf("interaction = %+v", ins[0])
	}
	// The score's decomposition is persisted alongside it.
	if len(ins[0].ConfidenceDetail) != 5 || ins[0].ConfidenceDetail["validator"] != 1 {
		t.Errorf("confidence detail = %v", ins[0].ConfidenceDetail)
	}
	if h.telemetry.Counts()[types.StatusCompleted] != 1 {
		t.Error("completion hook not fired")
	}
}

func TestDriverRetriesThenAccepts(t *testing.T) {
	h := newHarness(t, newScriptedAgent(
		agentStep{output: badOutput},
		agentStep{output: goodOutput},
	))
	id := h.task(t, "t")

	if err := h.driver().Run(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	ins, _ := h.mgr.ListInteractions(context.Background(), id)
	if len(ins) != 2 {
		t.Fatalf("interactions = %d", len(ins))
	}
	if ins[0].Decision != types.ActionRetry || ins[0].ValidatorOK {
		t.Errorf("first interaction = %+v", ins[0])
	}
	if ins[1].Decision != types.ActionAccept {
		t.Errorf("second interaction = %+v", ins[1])
	}
	// The rejection feeds the next prompt as corrections.
	if !strings.Contains(ins[1].Prompt, "corrections from the previous attempt") {
		t.Error("violations not carried into the retry prompt")
	}
	w, _ := h.mgr.GetWorkItem(context.Background(), id)
	if w.Status != types.StatusCompleted {
		t.Errorf("status = %s", w.Status)
	}
}

func TestDriverEscalatesAfterRetryCap(t *testing.T) {
	h := newHarness(t, newScriptedAgent(agentStep{output: badOutput}))
	h.decCfg.RetryCap = 2
	id := h.task(t, "t")
	resolveWhenOpen(t, h.mgr, id, types.ResolutionCancel, "")

	if err := h.driver().Run(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	w, _ := h.mgr.GetWorkItem(context.Background(), id)
	if w.Status != types.StatusFailed {
		t.Errorf("status = %s, want failed after cancel", w.Status)
	}
	ins, _ := h.mgr.ListInteractions(context.Background(), id)
	if len(ins) != 3 {
		t.Fatalf("interactions = %d, want two retries then the escalation", len(ins))
	}
	if ins[2].Decision != types.ActionEscalate {
		t.Errorf("final decision = %s", ins[2].Decision)
	}
	if h.telemetry.Counts()[types.StatusFailed] != 1 {
		t.Error("failure outcome not dispatched to hooks")
	}
}

func TestDriverResumesAfterContinueResolution(t *testing.T) {
	h := newHarness(t, newScriptedAgent(
		agentStep{output: badOutput},
		agentStep{output: badOutput},
		agentStep{output: goodOutput},
	))
	h.decCfg.RetryCap = 1
	id := h.task(t, "t")
	resolveWhenOpen(t, h.mgr, id, types.ResolutionContinue, "try splitting the change into two files")

	if err := h.driver().Run(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	w, _ := h.mgr.GetWorkItem(context.Background(), id)
	if w.Status != types.StatusCompleted {
		t.Errorf("status = %s", w.Status)
	}
	ins, _ := h.mgr.ListInteractions(context.Background(), id)
	if len(ins) != 3 {
		t.Fatalf("interactions = %d", len(ins))
	}
	// Human feedback from the breakpoint reaches the next prompt.
	if !strings.Contains(ins[2].Prompt, "try splitting the change into two files") {
		t.Error("breakpoint feedback not injected into the resumed prompt")
	}
}

func TestDriverStopCommand(t *testing.T) {
	h := newHarness(t, newScriptedAgent(agentStep{output: goodOutput}))
	id := h.task(t, "t")
	if err := h.queue.Submit("stop"); err != nil {
		t.Fatal(err)
	}

	err := h.driver().Run(context.Background(), id)
	if types.KindOf(err) != types.KindUserStop {
		t.Fatalf("kind = %s, err = %v", types.KindOf(err), err)
	}

	// The item is reopened so a later run can resume it.
	w, _ := h.mgr.GetWorkItem(context.Background(), id)
	if w.Status != types.StatusPending {
		t.Errorf("status = %s, want pending", w.Status)
	}
	if got := len(h.agent.sentPrompts()); got != 0 {
		t.Errorf("executor invoked %d times after a stop", got)
	}
}

func TestDriverOverrideDecision(t *testing.T) {
	h := newHarness(t, newScriptedAgent(agentStep{output: badOutput}))
	id := h.task(t, "t")
	if err := h.queue.Submit("override-decision accept"); err != nil {
		t.Fatal(err)
	}

	if err := h.driver().Run(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	w, _ := h.mgr.GetWorkItem(context.Background(), id)
	if w.Status != types.StatusCompleted {
		t.Errorf("status = %s, want completed despite failing validation", w.Status)
	}
	ins, _ := h.mgr.ListInteractions(context.Background(), id)
	if len(ins) != 1 || ins[0].Decision != types.ActionAccept {
		t.Fatalf("interactions = %+v", ins)
	}
}

func TestDriverInjectsExecutorNote(t *testing.T) {
	h := newHarness(t, newScriptedAgent(agentStep{output: goodOutput}))
	id := h.task(t, "t")
	if err := h.queue.Submit("to-executor prefer table-driven tests"); err != nil {
		t.Fatal(err)
	}

	if err := h.driver().Run(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	prompts := h.agent.sentPrompts()
	if len(prompts) != 1 {
		t.Fatalf("prompts = %d", len(prompts))
	}
	if !strings.Contains(prompts[0], "## user note") ||
		!strings.Contains(prompts[0], "prefer table-driven tests") {
		t.Error("executor note missing from prompt")
	}
	// The note is consumed at exactly one injection point.
	if n := strings.Count(prompts[0], "prefer table-driven tests"); n != 1 {
		t.Errorf("note appears %d times in prompt", n)
	}
}

func TestDriverRecoversFromTransientSendFailure(t *testing.T) {
	h := newHarness(t, newScriptedAgent(
		agentStep{err: types.Errorf(types.KindSpawnFailed, "agent.Send", "fork refused")},
		agentStep{output: goodOutput},
	))
	id := h.task(t, "t")

	if err := h.driver().Run(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	// The retry manager absorbs the spawn failure inside one iteration.
	ins, _ := h.mgr.ListInteractions(context.Background(), id)
	if len(ins) != 1 || ins[0].Decision != types.ActionAccept {
		t.Fatalf("interactions = %+v", ins)
	}
	if got := len(h.agent.sentPrompts()); got != 2 {
		t.Errorf("sends = %d, want failed attempt plus retry", got)
	}
}

func TestDriverEscalatesOnTerminalSendFailure(t *testing.T) {
	h := newHarness(t, newScriptedAgent(
		agentStep{err: types.Errorf(types.KindWorkspaceInvalid, "agent.Send", "workspace vanished")},
	))
	id := h.task(t, "t")
	resolveWhenOpen(t, h.mgr, id, types.ResolutionCancel, "")

	if err := h.driver().Run(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	w, _ := h.mgr.GetWorkItem(context.Background(), id)
	if w.Status != types.StatusFailed {
		t.Errorf("status = %s", w.Status)
	}
	ins, _ := h.mgr.ListInteractions(context.Background(), id)
	if len(ins) != 1 || ins[0].ErrorKind != types.KindWorkspaceInvalid {
		t.Fatalf("interactions = %+v", ins)
	}
	if ins[0].Decision != types.ActionEscalate {
		t.Errorf("decision = %s", ins[0].Decision)
	}
}

func TestDriverEscalatesAtIterationBudget(t *testing.T) {
	h := newHarness(t, newScriptedAgent(agentStep{output: goodOutput}))
	h.orchCfg.MaxIterations = 1
	id := h.task(t, "t")
	resolveWhenOpen(t, h.mgr, id, types.ResolutionCancel, "")

	if err := h.driver().Run(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	ins, _ := h.mgr.ListInteractions(context.Background(), id)
	if len(ins) != 1 || ins[0].Decision != types.ActionEscalate {
		t.Fatalf("interactions = %+v", ins)
	}
	w, _ := h.mgr.GetWorkItem(context.Background(), id)
	if w.Status != types.StatusFailed {
		t.Errorf("status = %s", w.Status)
	}
}
