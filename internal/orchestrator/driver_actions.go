package orchestrator

import (
	"context"
	"time"

	"obra/internal/command"
	"obra/internal/decision"
	"obra/internal/logging"
	"obra/internal/types"
)

// breakpointPollInterval is how often a suspended driver re-checks its
// breakpoint for human resolution.
const breakpointPollInterval = 500 * time.Millisecond

// handleAction applies the decision. done=true ends the driver's run.
func (d *Driver) handleAction(ctx context.Context, itemID int64, outcome decision.Outcome) (bool, error) {
	switch outcome.Action {
	case types.ActionAccept:
		if err := d.mgr.UpdateStatus(ctx, itemID, types.StatusCompleted); err != nil {
			return false, err
		}
		d.fireHooks(ctx, itemID, types.StatusCompleted, outcome.Reason)
		return true, nil

	case types.ActionRetry:
		d.loop.consecutiveRetries++
		d.loop.feedback = append(d.loop.feedback, outcome.Feedback...)
		return false, nil

	case types.ActionClarify:
		// A clarify means the validator passed; the retry streak is over.
		d.loop.consecutiveRetries = 0
		d.loop.feedback = append(d.loop.feedback, outcome.Feedback...)
		d.loop.feedback = append(d.loop.feedback, d.supervisorFeedback(command.ClassFeedbackRequest)...)
		return false, nil

	case types.ActionEscalate:
		resume, err := d.escalateAndWait(ctx, itemID, types.SeverityMedium, outcome.Reason)
		if err != nil {
			return false, err
		}
		if resume {
			d.loop.consecutiveRetries = 0
			return false, nil
		}
		return true, nil

	case types.ActionStop:
		return true, d.handleStop(ctx, itemID)
	}
	return false, types.Errorf(types.KindInvariantViolation, "orchestrator.handleAction",
		"unknown action %q", outcome.Action)
}

// handleStop reopens the item so a later run can resume it, then reports
// the user-initiated stop to the caller.
func (d *Driver) handleStop(ctx context.Context, itemID int64) error {
	logging.Orchestrator("Item %d: stopping at user request", itemID)
	if err := d.mgr.UpdateStatus(ctx, itemID, types.StatusPending); err != nil {
		return err
	}
	return types.Errorf(types.KindUserStop, "orchestrator.Run", "stopped by user")
}

// escalate opens a breakpoint and waits; resume is discarded because the
// caller has no loop left to resume into.
func (d *Driver) escalate(ctx context.Context, itemID int64, sev types.Severity, reason string) error {
	_, err := d.escalateAndWait(ctx, itemID, sev, reason)
	return err
}

// escalateAndWait opens a breakpoint, suspends until a human resolves it,
// and applies the resolution. resume=true means the loop should keep
// iterating (resolution was "continue"); false means the run is over and
// the item's status already reflects the resolution.
func (d *Driver) escalateAndWait(ctx context.Context, itemID int64, sev types.Severity, reason string) (bool, error) {
	log := logging.Get(logging.CategoryOrchestrator)
	bpID, err := d.mgr.OpenBreakpoint(ctx, itemID, sev, reason, map[string]any{
		"iteration": d.loop.iteration,
	})
	if err != nil {
		return false, err
	}
	log.Info("Item %d suspended on breakpoint %d: %s", itemID, bpID, reason)

	// Suspension point: no locks held, the lease was released by
	// OpenBreakpoint. Poll until a human resolves or we are cancelled.
	for {
		select {
		case <-ctx.Done():
			return false, types.NewError(types.KindDeadlineExceeded, "orchestrator.escalateAndWait", ctx.Err())
		case <-time.After(breakpointPollInterval):
		}
		bp, err := d.mgr.GetBreakpoint(ctx, bpID)
		if err != nil {
			return false, err
		}
		if !bp.Resolved() {
			continue
		}
		log.Info("Breakpoint %d resolved: %s", bpID, bp.Resolution)
		if bp.Feedback != "" {
			d.loop.feedback = append(d.loop.feedback, bp.Feedback)
		}
		resume := bp.Resolution == types.ResolutionContinue
		if !resume {
			item, err := d.mgr.GetWorkItem(ctx, itemID)
			if err == nil && (item.Status.Terminal() || item.Status == types.StatusFailed) {
				d.fireHooks(ctx, itemID, item.Status, reason)
			}
		}
		return resume, nil
	}
}

// fireHooks delivers the terminal outcome to the dispatcher.
func (d *Driver) fireHooks(ctx context.Context, itemID int64, outcome types.WorkItemStatus, summary string) {
	if d.hooks == nil {
		return
	}
	item, err := d.mgr.GetWorkItem(ctx, itemID)
	projectID := int64(0)
	if err == nil {
		projectID = item.ProjectID
	}
	d.hooks.Fire(ctx, types.CompletionEvent{
		WorkItemID: itemID,
		ProjectID:  projectID,
		Outcome:    outcome,
		Summary:    summary,
	})
}
