package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"obra/internal/types"
)

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func unmarshalIDs(s sql.NullString) []int64 {
	if !s.Valid || s.String == "" {
		return nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(s.String), &ids); err != nil {
		return nil
	}
	return ids
}

func unmarshalMap(s sql.NullString) map[string]any {
	if !s.Valid || s.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil
	}
	return m
}

func unmarshalFloats(s sql.NullString) map[string]float64 {
	if !s.Valid || s.String == "" {
		return nil
	}
	var m map[string]float64
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil
	}
	return m
}

func unmarshalStrings(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s.String), &out); err != nil {
		return nil
	}
	return out
}

func requireRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr(op, err)
	}
	if n == 0 {
		return types.Errorf(types.KindNotFound, op, "no matching row")
	}
	return nil
}

const workItemColumns = `id, project_id, parent_id, epic_id, story_id, kind, title, description,
	status, priority, dependency_ids, retry_count, max_retries, executor, prompt, result,
	metadata, requires_adr, has_arch_changes, changes_summary, documentation_status,
	created_at, updated_at, started_at, completed_at, deleted`

// InsertWorkItem persists a new work item and fills in its id.
func (t *Tx) InsertWorkItem(ctx context.Context, w *types.WorkItem) error {
	now := time.Now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	w.UpdatedAt = now

	deps, err := marshalJSON(w.DependencyIDs)
	if err != nil {
		return types.NewError(types.KindInvariantViolation, "store.InsertWorkItem", err)
	}
	meta, err := marshalJSON(w.Metadata)
	if err != nil {
		return types.NewError(types.KindInvariantViolation, "store.InsertWorkItem", err)
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO work_items (project_id, parent_id, epic_id, story_id, kind, title,
			description, status, priority, dependency_ids, retry_count, max_retries,
			executor, prompt, result, metadata, requires_adr, has_arch_changes,
			changes_summary, documentation_status, created_at, updated_at,
			started_at, completed_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ProjectID, w.ParentID, w.EpicID, w.StoryID, string(w.Kind), w.Title,
		w.Description, string(w.Status), w.Priority, deps, w.RetryCount, w.MaxRetries,
		w.Executor, w.Prompt, w.Result, meta, boolToInt(w.RequiresADR),
		boolToInt(w.HasArchChanges), w.ChangesSummary, string(w.DocumentationNote),
		fmtTime(w.CreatedAt), fmtTime(w.UpdatedAt),
		fmtTimePtr(w.StartedAt), fmtTimePtr(w.CompletedAt), boolToInt(w.Deleted))
	if err != nil {
		return storageErr("store.InsertWorkItem", err)
	}
	w.ID, err = res.LastInsertId()
	return storageErr("store.InsertWorkItem", err)
}

func scanWorkItem(scan func(dest ...any) error) (*types.WorkItem, error) {
	var w types.WorkItem
	var kind, title, status, docStatus, createdAt, updatedAt string
	var description, executor, prompt, result, changesSummary sql.NullString
	var deps, meta, startedAt, completedAt sql.NullString
	var requiresADR, hasArch, deleted int

	err := scan(&w.ID, &w.ProjectID, &w.ParentID, &w.EpicID, &w.StoryID, &kind, &title,
		&description, &status, &w.Priority, &deps, &w.RetryCount, &w.MaxRetries,
		&executor, &prompt, &result, &meta, &requiresADR, &hasArch,
		&changesSummary, &docStatus, &createdAt, &updatedAt, &startedAt, &completedAt,
		&deleted)
	if err != nil {
		return nil, err
	}

	w.Kind = types.WorkItemKind(kind)
	w.Title = title
	w.Description = description.String
	w.Status = types.WorkItemStatus(status)
	w.DependencyIDs = unmarshalIDs(deps)
	w.Executor = executor.String
	w.Prompt = prompt.String
	w.Result = result.String
	w.Metadata = unmarshalMap(meta)
	w.RequiresADR = requiresADR != 0
	w.HasArchChanges = hasArch != 0
	w.ChangesSummary = changesSummary.String
	w.DocumentationNote = types.DocumentationStatus(docStatus)
	w.CreatedAt = parseTime(createdAt)
	w.UpdatedAt = parseTime(updatedAt)
	w.StartedAt = parseTimePtr(startedAt)
	w.CompletedAt = parseTimePtr(completedAt)
	w.Deleted = deleted != 0
	return &w, nil
}

// GetWorkItem returns a work item by id, soft-delete filtered.
func (t *Tx) GetWorkItem(ctx context.Context, id int64) (*types.WorkItem, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE id = ? AND deleted = 0`, id)
	w, err := scanWorkItem(row.Scan)
	if err != nil {
		return nil, storageErr("store.GetWorkItem", err)
	}
	return w, nil
}

// ListWorkItems returns every non-deleted work item in a project, oldest
// first.
func (t *Tx) ListWorkItems(ctx context.Context, projectID int64) ([]*types.WorkItem, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+workItemColumns+` FROM work_items
		 WHERE project_id = ? AND deleted = 0 ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, storageErr("store.ListWorkItems", err)
	}
	defer rows.Close()

	var items []*types.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows.Scan)
		if err != nil {
			return nil, storageErr("store.ListWorkItems", err)
		}
		items = append(items, w)
	}
	return items, storageErr("store.ListWorkItems", rows.Err())
}

// ListWorkItemsByStatus returns non-deleted items with the given status,
// highest priority first, then oldest first.
func (t *Tx) ListWorkItemsByStatus(ctx context.Context, projectID int64, status types.WorkItemStatus) ([]*types.WorkItem, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+workItemColumns+` FROM work_items
		 WHERE project_id = ? AND status = ? AND deleted = 0
		 ORDER BY priority DESC, created_at ASC, id ASC`, projectID, string(status))
	if err != nil {
		return nil, storageErr("store.ListWorkItemsByStatus", err)
	}
	defer rows.Close()

	var items []*types.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows.Scan)
		if err != nil {
			return nil, storageErr("store.ListWorkItemsByStatus", err)
		}
		items = append(items, w)
	}
	return items, storageErr("store.ListWorkItemsByStatus", rows.Err())
}

// UpdateWorkItem rewrites every mutable column of a work item.
func (t *Tx) UpdateWorkItem(ctx context.Context, w *types.WorkItem) error {
	w.UpdatedAt = time.Now().UTC()

	deps, err := marshalJSON(w.DependencyIDs)
	if err != nil {
		return types.NewError(types.KindInvariantViolation, "store.UpdateWorkItem", err)
	}
	meta, err := marshalJSON(w.Metadata)
	if err != nil {
		return types.NewError(types.KindInvariantViolation, "store.UpdateWorkItem", err)
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE work_items SET
			parent_id = ?, epic_id = ?, story_id = ?, title = ?, description = ?,
			status = ?, priority = ?, dependency_ids = ?, retry_count = ?, max_retries = ?,
			executor = ?, prompt = ?, result = ?, metadata = ?, requires_adr = ?,
			has_arch_changes = ?, changes_summary = ?, documentation_status = ?,
			updated_at = ?, started_at = ?, completed_at = ?
		WHERE id = ? AND deleted = 0`,
		w.ParentID, w.EpicID, w.StoryID, w.Title, w.Description,
		string(w.Status), w.Priority, deps, w.RetryCount, w.MaxRetries,
		w.Executor, w.Prompt, w.Result, meta, boolToInt(w.RequiresADR),
		boolToInt(w.HasArchChanges), w.ChangesSummary, string(w.DocumentationNote),
		fmtTime(w.UpdatedAt), fmtTimePtr(w.StartedAt), fmtTimePtr(w.CompletedAt), w.ID)
	if err != nil {
		return storageErr("store.UpdateWorkItem", err)
	}
	return requireRow(res, "store.UpdateWorkItem")
}

// SoftDeleteWorkItem hides a work item from all external reads.
func (t *Tx) SoftDeleteWorkItem(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE work_items SET deleted = 1, updated_at = ? WHERE id = ?`,
		fmtTime(time.Now().UTC()), id)
	if err != nil {
		return storageErr("store.SoftDeleteWorkItem", err)
	}
	return requireRow(res, "store.SoftDeleteWorkItem")
}

// HardDeleteProjectWorkItems removes every work item row of a project.
// Only checkpoint restore uses this; normal deletion is always soft.
func (t *Tx) HardDeleteProjectWorkItems(ctx context.Context, projectID int64) error {
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM work_items WHERE project_id = ?`, projectID); err != nil {
		return storageErr("store.HardDeleteProjectWorkItems", err)
	}
	return nil
}

// InsertWorkItemWithID re-inserts a work item preserving its original id.
// Only checkpoint restore uses this.
func (t *Tx) InsertWorkItemWithID(ctx context.Context, w *types.WorkItem) error {
	deps, err := marshalJSON(w.DependencyIDs)
	if err != nil {
		return types.NewError(types.KindInvariantViolation, "store.InsertWorkItemWithID", err)
	}
	meta, err := marshalJSON(w.Metadata)
	if err != nil {
		return types.NewError(types.KindInvariantViolation, "store.InsertWorkItemWithID", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO work_items (id, project_id, parent_id, epic_id, story_id, kind, title,
			description, status, priority, dependency_ids, retry_count, max_retries,
			executor, prompt, result, metadata, requires_adr, has_arch_changes,
			changes_summary, documentation_status, created_at, updated_at,
			started_at, completed_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.ProjectID, w.ParentID, w.EpicID, w.StoryID, string(w.Kind), w.Title,
		w.Description, string(w.Status), w.Priority, deps, w.RetryCount, w.MaxRetries,
		w.Executor, w.Prompt, w.Result, meta, boolToInt(w.RequiresADR),
		boolToInt(w.HasArchChanges), w.ChangesSummary, string(w.DocumentationNote),
		fmtTime(w.CreatedAt), fmtTime(w.UpdatedAt),
		fmtTimePtr(w.StartedAt), fmtTimePtr(w.CompletedAt), boolToInt(w.Deleted))
	return storageErr("store.InsertWorkItemWithID", err)
}
