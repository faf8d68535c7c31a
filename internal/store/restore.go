package store

import "context"

// The helpers below exist solely for checkpoint restore, which rewrites a
// project's rows wholesale inside one transaction. Child tables go first
// so foreign keys hold throughout.

// HardDeleteProjectInteractions removes interaction rows for every work
// item in the project.
func (t *Tx) HardDeleteProjectInteractions(ctx context.Context, projectID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM interactions WHERE work_item_id IN
			(SELECT id FROM work_items WHERE project_id = ?)`, projectID)
	return storageErr("store.HardDeleteProjectInteractions", err)
}

// HardDeleteProjectBreakpoints removes breakpoint rows for every work item
// in the project.
func (t *Tx) HardDeleteProjectBreakpoints(ctx context.Context, projectID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM breakpoints WHERE work_item_id IN
			(SELECT id FROM work_items WHERE project_id = ?)`, projectID)
	return storageErr("store.HardDeleteProjectBreakpoints", err)
}

// HardDeleteProjectFileChanges removes file-change rows for every work item
// in the project.
func (t *Tx) HardDeleteProjectFileChanges(ctx context.Context, projectID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM file_changes WHERE work_item_id IN
			(SELECT id FROM work_items WHERE project_id = ?)`, projectID)
	return storageErr("store.HardDeleteProjectFileChanges", err)
}
