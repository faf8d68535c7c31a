package state

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"obra/internal/types"
)

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	m := newTestManager(t)
	pid := mustProject(t, m)
	ctx := context.Background()

	epic, _ := m.CreateWorkItem(ctx, CreateWorkItemSpec{Kind: types.KindEpic, ProjectID: pid, Title: "epic"})
	a := mustTask(t, m, pid, "a")
	b := mustTask(t, m, pid, "b", a)
	m.CreateMilestone(ctx, &types.Milestone{ProjectID: pid, Name: "v1", RequiredEpicIDs: []int64{epic}})
	m.RecordInteraction(ctx, &types.Interaction{
		WorkItemID: a, Iteration: 1, Response: "resp",
		Decision: types.ActionRetry, StartedAt: time.Now().UTC(), CompletedAt: time.Now().UTC(),
	})

	before, err := m.ListWorkItems(ctx, pid)
	if err != nil {
		t.Fatal(err)
	}

	cpID, err := m.Snapshot(ctx, pid, "before the experiment")
	if err != nil {
		t.Fatal(err)
	}

	// Mutate everything after the snapshot.
	if err := m.UpdateStatus(ctx, a, types.StatusInProgress); err != nil {
		t.Fatal(err)
	}
	if err := m.UpdateStatus(ctx, a, types.StatusFailed); err != nil {
		t.Fatal(err)
	}
	mustTask(t, m, pid, "straggler")

	if err := m.RestoreCheckpoint(ctx, cpID); err != nil {
		t.Fatal(err)
	}

	after, err := m.ListWorkItems(ctx, pid)
	if err != nil {
		t.Fatal(err)
	}
	// Work items keep ids, contents, and timestamps across restore.
	if diff := cmp.Diff(before, after, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("restored items differ (-before +after):\n%s", diff)
	}

	w, _ := m.GetWorkItem(ctx, a)
	if w.Status != types.StatusPending {
		t.Errorf("restored status = %s, want pending", w.Status)
	}
	if w, _ := m.GetWorkItem(ctx, b); w.Status != types.StatusPending {
		t.Errorf("cascaded block must be rolled back, got %s", w.Status)
	}

	ins, _ := m.ListInteractions(ctx, a)
	if len(ins) != 1 || ins[0].Response != "resp" {
		t.Errorf("interactions not restored: %+v", ins)
	}
}

func TestSnapshotUnknownProject(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Snapshot(context.Background(), 123, "r"); types.KindOf(err) != types.KindNotFound {
		t.Errorf("kind = %s", types.KindOf(err))
	}
}

func TestRestoreRefusedWhileLeased(t *testing.T) {
	m := newTestManager(t)
	pid := mustProject(t, m)
	ctx := context.Background()
	id := mustTask(t, m, pid, "t")

	cpID, err := m.Snapshot(ctx, pid, "baseline")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.UpdateStatus(ctx, id, types.StatusInProgress); err != nil {
		t.Fatal(err)
	}

	err = m.RestoreCheckpoint(ctx, cpID)
	if types.KindOf(err) != types.KindConflict {
		t.Errorf("restore under an active lease: kind = %s", types.KindOf(err))
	}

	// The failed restore must not have clobbered anything.
	w, _ := m.GetWorkItem(ctx, id)
	if w.Status != types.StatusInProgress {
		t.Errorf("status = %s after refused restore", w.Status)
	}
}

func TestRestoreUnknownCheckpoint(t *testing.T) {
	m := newTestManager(t)
	if err := m.RestoreCheckpoint(context.Background(), 777); types.KindOf(err) != types.KindNotFound {
		t.Errorf("kind = %s", types.KindOf(err))
	}
}
