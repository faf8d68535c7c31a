package state

import (
	"context"
	"testing"

	"obra/internal/config"
	"obra/internal/store"
	"obra/internal/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, config.DefaultDependenciesConfig())
}

func mustProject(t *testing.T, m *Manager) int64 {
	t.Helper()
	id, err := m.CreateProject(context.Background(), "test", "a test project", "/tmp/ws")
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func mustTask(t *testing.T, m *Manager, projectID int64, title string, deps ...int64) int64 {
	t.Helper()
	id, err := m.CreateWorkItem(context.Background(), CreateWorkItemSpec{
		Kind:      types.KindTask,
		ProjectID: projectID,
		Title:     title,
		Deps:      deps,
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestCreateProjectValidation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	if _, err := m.CreateProject(ctx, "", "", "/tmp/ws"); types.KindOf(err) != types.KindInvariantViolation {
		t.Errorf("empty name: kind = %s", types.KindOf(err))
	}
	if _, err := m.CreateProject(ctx, "x", "", "relative/dir"); types.KindOf(err) != types.KindInvariantViolation {
		t.Errorf("relative workdir: kind = %s", types.KindOf(err))
	}
}

func TestCreateAndGetProject(t *testing.T) {
	m := newTestManager(t)
	id := mustProject(t, m)

	p, err := m.GetProject(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "test" || p.Status != types.ProjectActive || p.WorkDir != "/tmp/ws" {
		t.Errorf("project = %+v", p)
	}
	if _, err := m.GetProject(context.Background(), 999); types.KindOf(err) != types.KindNotFound {
		t.Errorf("missing project: kind = %s", types.KindOf(err))
	}
}

func TestCreateWorkItemDefaults(t *testing.T) {
	m := newTestManager(t)
	pid := mustProject(t, m)
	id := mustTask(t, m, pid, "first")

	w, err := m.GetWorkItem(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	if w.Status != types.StatusPending {
		t.Errorf("new items start pending, got %s", w.Status)
	}
	if w.MaxRetries != 3 {
		t.Errorf("default max retries = %d", w.MaxRetries)
	}
	if w.DocumentationNote != types.DocPending {
		t.Errorf("documentation note = %s", w.DocumentationNote)
	}
}

func TestCreateWorkItemRejectsUnknownProject(t *testing.T) {
	m := newTestManager(t)
	_, err := m.CreateWorkItem(context.Background(), CreateWorkItemSpec{
		Kind: types.KindTask, ProjectID: 42, Title: "orphan",
	})
	if types.KindOf(err) != types.KindNotFound {
		t.Errorf("kind = %s", types.KindOf(err))
	}
}

func TestCreateWorkItemRejectsMissingDependency(t *testing.T) {
	m := newTestManager(t)
	pid := mustProject(t, m)
	_, err := m.CreateWorkItem(context.Background(), CreateWorkItemSpec{
		Kind: types.KindTask, ProjectID: pid, Title: "x", Deps: []int64{777},
	})
	if types.KindOf(err) != types.KindInvariantViolation {
		t.Errorf("kind = %s", types.KindOf(err))
	}
}

func TestHierarchyInvariants(t *testing.T) {
	m := newTestManager(t)
	pid := mustProject(t, m)
	ctx := context.Background()

	epicID, err := m.CreateWorkItem(ctx, CreateWorkItemSpec{Kind: types.KindEpic, ProjectID: pid, Title: "epic"})
	if err != nil {
		t.Fatal(err)
	}

	// A story requires its epic.
	if _, err := m.CreateWorkItem(ctx, CreateWorkItemSpec{Kind: types.KindStory, ProjectID: pid, Title: "story"}); err == nil {
		t.Error("story without epic accepted")
	}
	storyID, err := m.CreateWorkItem(ctx, CreateWorkItemSpec{Kind: types.KindStory, ProjectID: pid, Title: "story", EpicID: &epicID})
	if err != nil {
		t.Fatal(err)
	}

	// An epic reference must actually be an epic.
	if _, err := m.CreateWorkItem(ctx, CreateWorkItemSpec{Kind: types.KindStory, ProjectID: pid, Title: "bad", EpicID: &storyID}); err == nil {
		t.Error("story pointing at a story as its epic accepted")
	}

	// A task with a story must name the story's epic.
	if _, err := m.CreateWorkItem(ctx, CreateWorkItemSpec{Kind: types.KindTask, ProjectID: pid, Title: "bad", StoryID: &storyID}); err == nil {
		t.Error("task with story but no epic accepted")
	}
	taskID, err := m.CreateWorkItem(ctx, CreateWorkItemSpec{Kind: types.KindTask, ProjectID: pid, Title: "task", EpicID: &epicID, StoryID: &storyID})
	if err != nil {
		t.Fatal(err)
	}

	// A subtask hangs off a task or subtask.
	if _, err := m.CreateWorkItem(ctx, CreateWorkItemSpec{Kind: types.KindSubtask, ProjectID: pid, Title: "sub"}); err == nil {
		t.Error("subtask without parent accepted")
	}
	if _, err := m.CreateWorkItem(ctx, CreateWorkItemSpec{Kind: types.KindSubtask, ProjectID: pid, Title: "sub", ParentID: &epicID}); err == nil {
		t.Error("subtask under an epic accepted")
	}
	if _, err := m.CreateWorkItem(ctx, CreateWorkItemSpec{Kind: types.KindSubtask, ProjectID: pid, Title: "sub", ParentID: &taskID}); err != nil {
		t.Errorf("subtask under task rejected: %v", err)
	}

	// Epics stand alone.
	if _, err := m.CreateWorkItem(ctx, CreateWorkItemSpec{Kind: types.KindEpic, ProjectID: pid, Title: "bad", ParentID: &taskID}); err == nil {
		t.Error("epic with a parent accepted")
	}
}

func TestStatusMachine(t *testing.T) {
	m := newTestManager(t)
	pid := mustProject(t, m)
	ctx := context.Background()
	id := mustTask(t, m, pid, "t")

	// pending -> completed skips in-progress: illegal.
	if err := m.UpdateStatus(ctx, id, types.StatusCompleted); types.KindOf(err) != types.KindInvariantViolation {
		t.Errorf("illegal transition kind = %s", types.KindOf(err))
	}

	for _, status := range []types.WorkItemStatus{types.StatusInProgress, types.StatusCompleted} {
		if err := m.UpdateStatus(ctx, id, status); err != nil {
			t.Fatalf("-> %s: %v", status, err)
		}
	}

	// Completed is terminal.
	if err := m.UpdateStatus(ctx, id, types.StatusPending); err == nil {
		t.Error("completed item reopened")
	}

	w, _ := m.GetWorkItem(ctx, id)
	if w.StartedAt == nil || w.CompletedAt == nil {
		t.Error("timestamps not stamped on transition")
	}
}

func TestNonTerminalStatusesAcceptBlocked(t *testing.T) {
	// Any non-terminal item can be blocked, including ones parked in
	// failed or escalated.
	cases := []struct {
		name string
		path []types.WorkItemStatus
	}{
		{"failed", []types.WorkItemStatus{types.StatusInProgress, types.StatusFailed}},
		{"escalated", []types.WorkItemStatus{types.StatusInProgress, types.StatusEscalated}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestManager(t)
			pid := mustProject(t, m)
			ctx := context.Background()
			id := mustTask(t, m, pid, "t")
			for _, status := range tc.path {
				if err := m.UpdateStatus(ctx, id, status); err != nil {
					t.Fatalf("-> %s: %v", status, err)
				}
			}

			if err := m.UpdateStatus(ctx, id, types.StatusBlocked); err != nil {
				t.Fatalf("%s -> blocked: %v", tc.name, err)
			}
			w, _ := m.GetWorkItem(ctx, id)
			if w.Status != types.StatusBlocked {
				t.Errorf("status = %s", w.Status)
			}
		})
	}
}

func TestLeaseLifecycle(t *testing.T) {
	m := newTestManager(t)
	pid := mustProject(t, m)
	ctx := context.Background()
	id := mustTask(t, m, pid, "t")

	if err := m.UpdateStatus(ctx, id, types.StatusInProgress); err != nil {
		t.Fatal(err)
	}
	if !m.LeaseHeld(id) {
		t.Fatal("lease not acquired on in-progress")
	}

	// A second driver cannot take the same item.
	if err := m.UpdateStatus(ctx, id, types.StatusInProgress); err != nil {
		t.Fatalf("same-status update should be a no-op: %v", err)
	}

	if err := m.UpdateStatus(ctx, id, types.StatusCompleted); err != nil {
		t.Fatal(err)
	}
	if m.LeaseHeld(id) {
		t.Error("lease not released on terminal status")
	}
}

func TestFailureCascadesBlocked(t *testing.T) {
	m := newTestManager(t)
	pid := mustProject(t, m)
	ctx := context.Background()

	a := mustTask(t, m, pid, "a")
	b := mustTask(t, m, pid, "b", a)
	c := mustTask(t, m, pid, "c", b)
	other := mustTask(t, m, pid, "other")

	if err := m.UpdateStatus(ctx, a, types.StatusInProgress); err != nil {
		t.Fatal(err)
	}
	if err := m.UpdateStatus(ctx, a, types.StatusFailed); err != nil {
		t.Fatal(err)
	}

	for _, id := range []int64{b, c} {
		w, _ := m.GetWorkItem(ctx, id)
		if w.Status != types.StatusBlocked {
			t.Errorf("item %d = %s, want blocked", id, w.Status)
		}
	}
	w, _ := m.GetWorkItem(ctx, other)
	if w.Status != types.StatusPending {
		t.Errorf("unrelated item = %s, want pending", w.Status)
	}
}

func TestEscalationDoesNotCascade(t *testing.T) {
	m := newTestManager(t)
	pid := mustProject(t, m)
	ctx := context.Background()

	a := mustTask(t, m, pid, "a")
	b := mustTask(t, m, pid, "b", a)

	if err := m.UpdateStatus(ctx, a, types.StatusInProgress); err != nil {
		t.Fatal(err)
	}
	if err := m.UpdateStatus(ctx, a, types.StatusEscalated); err != nil {
		t.Fatal(err)
	}

	w, _ := m.GetWorkItem(ctx, b)
	if w.Status != types.StatusPending {
		t.Errorf("dependent of an escalated item = %s, want pending", w.Status)
	}
}

func TestAddDependencyRejectsCycle(t *testing.T) {
	m := newTestManager(t)
	pid := mustProject(t, m)
	ctx := context.Background()

	a := mustTask(t, m, pid, "a")
	b := mustTask(t, m, pid, "b", a)

	err := m.AddDependency(ctx, a, b)
	if types.KindOf(err) != types.KindWouldCycle {
		t.Errorf("kind = %s", types.KindOf(err))
	}
	// The graph is unchanged: b still runs after a.
	w, _ := m.GetWorkItem(ctx, a)
	if len(w.DependencyIDs) != 0 {
		t.Errorf("failed AddDependency mutated the item: %v", w.DependencyIDs)
	}

	if err := m.AddDependency(ctx, a, a); types.KindOf(err) != types.KindWouldCycle {
		t.Errorf("self dependency kind = %s", types.KindOf(err))
	}
}

func TestReadyWorkItemsTracksCompletion(t *testing.T) {
	m := newTestManager(t)
	pid := mustProject(t, m)
	ctx := context.Background()

	a := mustTask(t, m, pid, "a")
	b := mustTask(t, m, pid, "b", a)

	ready, err := m.ReadyWorkItems(ctx, pid)
	if err != nil {
		t.Fatal(err)
	}
	if len(ready) != 1 || ready[0] != a {
		t.Fatalf("ready = %v, want [a]", ready)
	}

	m.UpdateStatus(ctx, a, types.StatusInProgress)
	m.UpdateStatus(ctx, a, types.StatusCompleted)

	ready, _ = m.ReadyWorkItems(ctx, pid)
	if len(ready) != 1 || ready[0] != b {
		t.Errorf("ready = %v, want [b]", ready)
	}
}

func TestUpdateWorkItemFieldsGuardsStatus(t *testing.T) {
	m := newTestManager(t)
	pid := mustProject(t, m)
	ctx := context.Background()
	id := mustTask(t, m, pid, "t")

	w, _ := m.GetWorkItem(ctx, id)
	w.Result = "done well"
	w.RetryCount = 2
	if err := m.UpdateWorkItemFields(ctx, w); err != nil {
		t.Fatal(err)
	}

	got, _ := m.GetWorkItem(ctx, id)
	if got.Result != "done well" || got.RetryCount != 2 {
		t.Errorf("fields not persisted: %+v", got)
	}

	w.Status = types.StatusCompleted
	if err := m.UpdateWorkItemFields(ctx, w); types.KindOf(err) != types.KindInvariantViolation {
		t.Errorf("status smuggling kind = %s", types.KindOf(err))
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	m := newTestManager(t)
	events := m.Subscribe()
	pid := mustProject(t, m)
	id := mustTask(t, m, pid, "t")
	m.UpdateStatus(context.Background(), id, types.StatusInProgress)

	want := []EventType{EventProjectCreated, EventItemCreated, EventStatusChanged}
	for i, wantType := range want {
		select {
		case ev := <-events:
			if ev.Type != wantType {
				t.Errorf("event %d = %s, want %s", i, ev.Type, wantType)
			}
		default:
			t.Fatalf("missing event %d (%s)", i, wantType)
		}
	}
}
