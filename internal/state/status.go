package state

import (
	"context"

	"github.com/google/uuid"

	"obra/internal/deps"
	"obra/internal/logging"
	"obra/internal/store"
	"obra/internal/types"
)

// legalTransitions is the status machine from the data model: pending →
// ready → in-progress → {completed, failed, escalated}; any non-terminal
// may be blocked; completed is terminal; failed/escalated may reopen.
var legalTransitions = map[types.WorkItemStatus][]types.WorkItemStatus{
	types.StatusPending:    {types.StatusReady, types.StatusInProgress, types.StatusBlocked},
	types.StatusReady:      {types.StatusInProgress, types.StatusPending, types.StatusBlocked},
	types.StatusInProgress: {types.StatusCompleted, types.StatusFailed, types.StatusEscalated, types.StatusBlocked, types.StatusPending},
	types.StatusBlocked:    {types.StatusPending, types.StatusReady},
	types.StatusCompleted:  {},
	types.StatusFailed:     {types.StatusPending, types.StatusBlocked},
	types.StatusEscalated:  {types.StatusPending, types.StatusInProgress, types.StatusFailed, types.StatusBlocked},
}

func transitionAllowed(from, to types.WorkItemStatus) bool {
	if from == to {
		return true
	}
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// UpdateStatus moves a work item through the status machine. Moving to
// in-progress acquires the item's exclusive write lease; terminal statuses
// and breakpoint suspension release it. Completing an epic recomputes the
// project's milestones in the same transaction.
func (m *Manager) UpdateStatus(ctx context.Context, id int64, newStatus types.WorkItemStatus) error {
	var (
		projectID int64
		achieved  []int64
		cascaded  []int64
	)

	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		w, err := tx.GetWorkItem(ctx, id)
		if err != nil {
			return err
		}
		projectID = w.ProjectID

		if !transitionAllowed(w.Status, newStatus) {
			return types.Errorf(types.KindInvariantViolation, "state.UpdateStatus",
				"illegal transition %s -> %s for item %d", w.Status, newStatus, id)
		}
		if w.Status == newStatus {
			return nil
		}

		if newStatus == types.StatusInProgress {
			if err := m.acquireLease(id); err != nil {
				return err
			}
		}

		now := timeNow()
		prev := w.Status
		w.Status = newStatus
		switch newStatus {
		case types.StatusInProgress:
			if w.StartedAt == nil {
				w.StartedAt = &now
			}
		case types.StatusCompleted:
			w.CompletedAt = &now
		}

		if err := tx.UpdateWorkItem(ctx, w); err != nil {
			if newStatus == types.StatusInProgress {
				m.releaseLease(id)
			}
			return err
		}

		// Failure cascades blocked to transitive dependents; escalation
		// does not.
		if newStatus == types.StatusFailed {
			cascaded, err = m.cascadeFailure(ctx, tx, w)
			if err != nil {
				return err
			}
		}

		if newStatus == types.StatusCompleted && w.Kind == types.KindEpic {
			achieved, err = m.recomputeMilestones(ctx, tx, w.ProjectID)
			if err != nil {
				return err
			}
		}

		logging.State("Item %d: %s -> %s", id, prev, newStatus)
		return nil
	})
	if err != nil {
		return err
	}

	switch newStatus {
	case types.StatusCompleted, types.StatusFailed, types.StatusEscalated, types.StatusBlocked:
		m.releaseLease(id)
	case types.StatusPending:
		m.releaseLease(id)
	}

	m.notify(Event{Type: EventStatusChanged, ProjectID: projectID, WorkItemID: id, Status: newStatus})
	for _, msID := range achieved {
		m.notify(Event{Type: EventMilestoneAchieved, ProjectID: projectID, WorkItemID: msID})
	}
	for _, blockedID := range cascaded {
		m.notify(Event{Type: EventStatusChanged, ProjectID: projectID, WorkItemID: blockedID, Status: types.StatusBlocked})
	}
	return nil
}

// cascadeFailure marks every transitive dependent of the failed item
// blocked, within the caller's transaction.
func (m *Manager) cascadeFailure(ctx context.Context, tx *store.Tx, failed *types.WorkItem) ([]int64, error) {
	items, err := tx.ListWorkItems(ctx, failed.ProjectID)
	if err != nil {
		return nil, err
	}
	r := deps.NewResolver(items, m.depsCfg.MaxDepth)
	byID := make(map[int64]*types.WorkItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	var blocked []int64
	for _, depID := range r.Cascade(failed.ID) {
		it, ok := byID[depID]
		if !ok || it.Status.Terminal() || it.Status == types.StatusBlocked {
			continue
		}
		it.Status = types.StatusBlocked
		if err := tx.UpdateWorkItem(ctx, it); err != nil {
			return nil, err
		}
		blocked = append(blocked, depID)
	}
	if len(blocked) > 0 {
		logging.State("Failure of item %d blocked %d dependents: %v", failed.ID, len(blocked), blocked)
	}
	return blocked, nil
}

// acquireLease grants the exclusive write lease for a work item, enforcing
// the single-writer-per-item rule.
func (m *Manager) acquireLease(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if holder, held := m.leases[id]; held {
		return types.Errorf(types.KindConflict, "state.acquireLease",
			"item %d already leased (%s)", id, holder)
	}
	m.leases[id] = uuid.NewString()
	return nil
}

func (m *Manager) releaseLease(id int64) {
	m.mu.Lock()
	delete(m.leases, id)
	m.mu.Unlock()
}

// LeaseHeld reports whether a driver currently holds the item's write
// lease.
func (m *Manager) LeaseHeld(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, held := m.leases[id]
	return held
}
