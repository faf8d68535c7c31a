package state

import (
	"context"

	"obra/internal/logging"
	"obra/internal/store"
	"obra/internal/types"
)

// RecordInteraction appends one iteration record. The write is atomic: a
// storage failure leaves no partial Interaction visible.
func (m *Manager) RecordInteraction(ctx context.Context, in *types.Interaction) error {
	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetWorkItem(ctx, in.WorkItemID); err != nil {
			return err
		}
		return tx.InsertInteraction(ctx, in)
	})
	if err != nil {
		return err
	}
	m.notify(Event{Type: EventInteraction, WorkItemID: in.WorkItemID})
	return nil
}

// ListInteractions returns a work item's interactions in iteration order.
func (m *Manager) ListInteractions(ctx context.Context, workItemID int64) ([]*types.Interaction, error) {
	var out []*types.Interaction
	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.ListInteractions(ctx, workItemID)
		return err
	})
	return out, err
}

// OpenBreakpoint records a human-intervention request and flips the item
// to escalated in the same transaction.
func (m *Manager) OpenBreakpoint(ctx context.Context, workItemID int64, severity types.Severity, reason string, context_ map[string]any) (int64, error) {
	b := &types.BreakpointEvent{
		WorkItemID: workItemID,
		Severity:   severity,
		Reason:     reason,
		Context:    context_,
	}
	var projectID int64
	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		w, err := tx.GetWorkItem(ctx, workItemID)
		if err != nil {
			return err
		}
		projectID = w.ProjectID
		if !transitionAllowed(w.Status, types.StatusEscalated) {
			return types.Errorf(types.KindInvariantViolation, "state.OpenBreakpoint",
				"cannot escalate item %d from %s", workItemID, w.Status)
		}
		if w.Status != types.StatusEscalated {
			w.Status = types.StatusEscalated
			if err := tx.UpdateWorkItem(ctx, w); err != nil {
				return err
			}
		}
		return tx.InsertBreakpoint(ctx, b)
	})
	if err != nil {
		return 0, err
	}

	m.releaseLease(workItemID)
	logging.State("Breakpoint %d opened on item %d (%s): %s", b.ID, workItemID, severity, reason)
	m.notify(Event{Type: EventBreakpointOpened, ProjectID: projectID, WorkItemID: workItemID, Status: types.StatusEscalated})
	return b.ID, nil
}

// resolutionStatus maps a breakpoint resolution to the item's next status.
func resolutionStatus(r types.Resolution) (types.WorkItemStatus, error) {
	switch r {
	case types.ResolutionContinue:
		return types.StatusInProgress, nil
	case types.ResolutionRetry, types.ResolutionModify:
		return types.StatusPending, nil
	case types.ResolutionCancel:
		return types.StatusFailed, nil
	default:
		return "", types.Errorf(types.KindInvariantViolation, "state.ResolveBreakpoint",
			"unknown resolution %q", r)
	}
}

// ResolveBreakpoint stamps the human's answer and restores the item's
// status per the resolution: continue resumes in-progress, retry and
// modify reopen to pending, cancel fails the item.
func (m *Manager) ResolveBreakpoint(ctx context.Context, id int64, resolution types.Resolution, feedback string) error {
	next, err := resolutionStatus(resolution)
	if err != nil {
		return err
	}

	var workItemID, projectID int64
	err = m.store.WithTx(ctx, func(tx *store.Tx) error {
		b, err := tx.GetBreakpoint(ctx, id)
		if err != nil {
			return err
		}
		if b.Resolved() {
			return types.Errorf(types.KindConflict, "state.ResolveBreakpoint",
				"breakpoint %d already resolved", id)
		}
		workItemID = b.WorkItemID
		if err := tx.ResolveBreakpoint(ctx, id, resolution, feedback, timeNow()); err != nil {
			return err
		}
		w, err := tx.GetWorkItem(ctx, b.WorkItemID)
		if err != nil {
			return err
		}
		projectID = w.ProjectID
		return nil
	})
	if err != nil {
		return err
	}

	// Status restoration goes through UpdateStatus so lease bookkeeping
	// and cascades stay in one place.
	if err := m.UpdateStatus(ctx, workItemID, next); err != nil {
		return err
	}
	logging.State("Breakpoint %d resolved (%s) -> item %d %s", id, resolution, workItemID, next)
	m.notify(Event{Type: EventBreakpointClosed, ProjectID: projectID, WorkItemID: workItemID, Status: next})
	return nil
}

// GetBreakpoint returns a breakpoint by id.
func (m *Manager) GetBreakpoint(ctx context.Context, id int64) (*types.BreakpointEvent, error) {
	var b *types.BreakpointEvent
	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		b, err = tx.GetBreakpoint(ctx, id)
		return err
	})
	return b, err
}

// OpenBreakpoints returns a work item's unresolved breakpoints.
func (m *Manager) OpenBreakpoints(ctx context.Context, workItemID int64) ([]*types.BreakpointEvent, error) {
	var out []*types.BreakpointEvent
	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.ListOpenBreakpoints(ctx, workItemID)
		return err
	})
	return out, err
}

// RecordFileChange appends one workspace mutation record.
func (m *Manager) RecordFileChange(ctx context.Context, fc *types.FileChange) error {
	return m.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.InsertFileChange(ctx, fc)
	})
}

// ListFileChanges returns the audit trail for a work item.
func (m *Manager) ListFileChanges(ctx context.Context, workItemID int64) ([]*types.FileChange, error) {
	var out []*types.FileChange
	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		out, err = tx.ListFileChanges(ctx, workItemID)
		return err
	})
	return out, err
}
