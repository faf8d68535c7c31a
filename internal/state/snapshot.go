package state

import (
	"context"
	"encoding/json"

	"obra/internal/logging"
	"obra/internal/store"
	"obra/internal/types"
)

// snapshotPayload is the serialized form of a project checkpoint. Work
// items and milestones keep their ids across restore; interactions,
// breakpoints, and file changes may be re-issued new ids with equal
// content.
type snapshotPayload struct {
	Project      *types.Project           `json:"project"`
	WorkItems    []*types.WorkItem        `json:"work_items"`
	Milestones   []*types.Milestone       `json:"milestones"`
	Interactions []*types.Interaction     `json:"interactions"`
	Breakpoints  []*types.BreakpointEvent `json:"breakpoints"`
	FileChanges  []*types.FileChange      `json:"file_changes"`
}

// Snapshot captures the whole project state atomically and stores it as a
// checkpoint for manual rollback.
func (m *Manager) Snapshot(ctx context.Context, projectID int64, reason string) (int64, error) {
	cp := &types.Checkpoint{ProjectID: projectID, Reason: reason}

	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		project, err := tx.GetProject(ctx, projectID)
		if err != nil {
			return err
		}
		items, err := tx.ListWorkItems(ctx, projectID)
		if err != nil {
			return err
		}
		milestones, err := tx.ListMilestones(ctx, projectID)
		if err != nil {
			return err
		}

		payload := snapshotPayload{
			Project:    project,
			WorkItems:  items,
			Milestones: milestones,
		}
		for _, it := range items {
			ins, err := tx.ListInteractions(ctx, it.ID)
			if err != nil {
				return err
			}
			payload.Interactions = append(payload.Interactions, ins...)

			bps, err := tx.ListOpenBreakpoints(ctx, it.ID)
			if err != nil {
				return err
			}
			payload.Breakpoints = append(payload.Breakpoints, bps...)

			fcs, err := tx.ListFileChanges(ctx, it.ID)
			if err != nil {
				return err
			}
			payload.FileChanges = append(payload.FileChanges, fcs...)
		}

		cp.Payload, err = json.Marshal(payload)
		if err != nil {
			return types.NewError(types.KindStorageUnavailable, "state.Snapshot", err)
		}
		return tx.InsertCheckpoint(ctx, cp)
	})
	if err != nil {
		return 0, err
	}

	logging.State("Snapshot %d of project %d (%s)", cp.ID, projectID, reason)
	return cp.ID, nil
}

// RestoreCheckpoint rewrites the project's state to the snapshot, all in
// one transaction. Active leases on the project's items must be released
// before calling.
func (m *Manager) RestoreCheckpoint(ctx context.Context, checkpointID int64) error {
	return m.store.WithTx(ctx, func(tx *store.Tx) error {
		cp, err := tx.GetCheckpoint(ctx, checkpointID)
		if err != nil {
			return err
		}
		var payload snapshotPayload
		if err := json.Unmarshal(cp.Payload, &payload); err != nil {
			return types.NewError(types.KindStorageUnavailable, "state.RestoreCheckpoint", err)
		}

		m.mu.Lock()
		for _, it := range payload.WorkItems {
			if _, held := m.leases[it.ID]; held {
				m.mu.Unlock()
				return types.Errorf(types.KindConflict, "state.RestoreCheckpoint",
					"item %d is leased by an active driver", it.ID)
			}
		}
		m.mu.Unlock()

		projectID := cp.ProjectID
		if err := tx.HardDeleteProjectFileChanges(ctx, projectID); err != nil {
			return err
		}
		if err := tx.HardDeleteProjectInteractions(ctx, projectID); err != nil {
			return err
		}
		if err := tx.HardDeleteProjectBreakpoints(ctx, projectID); err != nil {
			return err
		}
		if err := tx.HardDeleteProjectWorkItems(ctx, projectID); err != nil {
			return err
		}
		if err := tx.HardDeleteProjectMilestones(ctx, projectID); err != nil {
			return err
		}

		for _, it := range payload.WorkItems {
			if err := tx.InsertWorkItemWithID(ctx, it); err != nil {
				return err
			}
		}
		for _, ms := range payload.Milestones {
			if err := tx.InsertMilestoneWithID(ctx, ms); err != nil {
				return err
			}
		}
		for _, in := range payload.Interactions {
			if err := tx.InsertInteraction(ctx, in); err != nil {
				return err
			}
		}
		for _, b := range payload.Breakpoints {
			if err := tx.InsertBreakpoint(ctx, b); err != nil {
				return err
			}
		}
		for _, fc := range payload.FileChanges {
			if err := tx.InsertFileChange(ctx, fc); err != nil {
				return err
			}
		}

		logging.State("Restored project %d from checkpoint %d", projectID, checkpointID)
		return nil
	})
}
