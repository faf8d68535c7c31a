package store

import (
	"context"
	"time"

	"obra/internal/types"
)

// InsertProject persists a new project and fills in its id.
func (t *Tx) InsertProject(ctx context.Context, p *types.Project) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO projects (name, description, workdir, status, created_at, updated_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Description, p.WorkDir, string(p.Status),
		fmtTime(p.CreatedAt), fmtTime(p.UpdatedAt), boolToInt(p.Deleted))
	if err != nil {
		return storageErr("store.InsertProject", err)
	}
	p.ID, err = res.LastInsertId()
	return storageErr("store.InsertProject", err)
}

// GetProject returns a project by id. Soft-deleted projects are invisible.
func (t *Tx) GetProject(ctx context.Context, id int64) (*types.Project, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, name, description, workdir, status, created_at, updated_at, deleted
		FROM projects WHERE id = ? AND deleted = 0`, id)

	var p types.Project
	var status, createdAt, updatedAt string
	var deleted int
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.WorkDir,
		&status, &createdAt, &updatedAt, &deleted); err != nil {
		return nil, storageErr("store.GetProject", err)
	}
	p.Status = types.ProjectStatus(status)
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	p.Deleted = deleted != 0
	return &p, nil
}

// UpdateProjectStatus flips a project's status. Projects are never
// destroyed; archive is the strongest transition.
func (t *Tx) UpdateProjectStatus(ctx context.Context, id int64, status types.ProjectStatus) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE projects SET status = ?, updated_at = ? WHERE id = ? AND deleted = 0`,
		string(status), fmtTime(time.Now().UTC()), id)
	if err != nil {
		return storageErr("store.UpdateProjectStatus", err)
	}
	return requireRow(res, "store.UpdateProjectStatus")
}

// SoftDeleteProject hides a project from all external reads.
func (t *Tx) SoftDeleteProject(ctx context.Context, id int64) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE projects SET deleted = 1, updated_at = ? WHERE id = ?`,
		fmtTime(time.Now().UTC()), id)
	if err != nil {
		return storageErr("store.SoftDeleteProject", err)
	}
	return requireRow(res, "store.SoftDeleteProject")
}
