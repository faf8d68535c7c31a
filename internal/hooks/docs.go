package hooks

import (
	"context"
	"fmt"

	"obra/internal/logging"
	"obra/internal/state"
	"obra/internal/types"
)

// DocMaintenance creates a follow-up documentation task when a completed
// item carries architectural changes or requires an ADR, and flips the
// item's documentation status accordingly.
type DocMaintenance struct {
	mgr *state.Manager
}

// NewDocMaintenance creates the hook over the StateManager.
func NewDocMaintenance(mgr *state.Manager) *DocMaintenance {
	return &DocMaintenance{mgr: mgr}
}

// Name implements CompletionHook.
func (d *DocMaintenance) Name() string { return "doc-maintenance" }

// OnCompletion inspects the completed item's documentation flags.
func (d *DocMaintenance) OnCompletion(ctx context.Context, ev types.CompletionEvent) error {
	if ev.Outcome != types.StatusCompleted {
		return nil
	}
	item, err := d.mgr.GetWorkItem(ctx, ev.WorkItemID)
	if err != nil {
		return err
	}
	if !item.RequiresADR && !item.HasArchChanges {
		if item.DocumentationNote == types.DocPending {
			item.DocumentationNote = types.DocSkipped
			return d.mgr.UpdateWorkItemFields(ctx, item)
		}
		return nil
	}

	title := fmt.Sprintf("Document changes from #%d: %s", item.ID, item.Title)
	desc := "Update project documentation for the completed work item."
	if item.RequiresADR {
		desc += " An architecture decision record is required."
	}
	if item.ChangesSummary != "" {
		desc += "\n\nChanges summary:\n" + item.ChangesSummary
	}

	spec := state.CreateWorkItemSpec{
		ProjectID:   item.ProjectID,
		Kind:        types.KindTask,
		Title:       title,
		Description: desc,
		EpicID:      item.EpicID,
		StoryID:     item.StoryID,
		Priority:    item.Priority,
		// The doc task depends on nothing; it is ready immediately.
	}
	docID, err := d.mgr.CreateWorkItem(ctx, spec)
	if err != nil {
		return err
	}
	logging.Get(logging.CategoryHooks).Info("Created documentation task %d for item %d", docID, item.ID)

	item.DocumentationNote = types.DocUpdated
	return d.mgr.UpdateWorkItemFields(ctx, item)
}
