package store

import (
	"context"
	"database/sql"
	"time"

	"obra/internal/types"
)

// InsertInteraction appends one iteration record. Interactions are
// append-only; there is no update path.
func (t *Tx) InsertInteraction(ctx context.Context, in *types.Interaction) error {
	issues, err := marshalJSON(in.ValidatorIssues)
	if err != nil {
		return types.NewError(types.KindInvariantViolation, "store.InsertInteraction", err)
	}
	detail, err := marshalJSON(in.ConfidenceDetail)
	if err != nil {
		return types.NewError(types.KindInvariantViolation, "store.InsertInteraction", err)
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO interactions (work_item_id, iteration, prompt, response,
			validator_ok, validator_issues, quality_score, confidence_score,
			confidence_detail, decision, error_kind, duration_ns, prompt_tokens,
			response_tokens, estimated_tokens, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.WorkItemID, in.Iteration, in.Prompt, in.Response,
		boolToInt(in.ValidatorOK), issues, in.QualityScore, in.ConfidenceScore,
		detail, string(in.Decision), string(in.ErrorKind), int64(in.Duration),
		in.PromptTokens, in.ResponseTokens, in.EstimatedTokens,
		fmtTime(in.StartedAt), fmtTime(in.CompletedAt))
	if err != nil {
		return storageErr("store.InsertInteraction", err)
	}
	in.ID, err = res.LastInsertId()
	return storageErr("store.InsertInteraction", err)
}

func scanInteraction(scan func(dest ...any) error) (*types.Interaction, error) {
	var in types.Interaction
	var prompt, response, decision, errorKind sql.NullString
	var issues, detail sql.NullString
	var validatorOK int
	var durationNS int64
	var startedAt, completedAt string

	err := scan(&in.ID, &in.WorkItemID, &in.Iteration, &prompt, &response,
		&validatorOK, &issues, &in.QualityScore, &in.ConfidenceScore, &detail,
		&decision, &errorKind, &durationNS, &in.PromptTokens, &in.ResponseTokens,
		&in.EstimatedTokens, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	in.Prompt = prompt.String
	in.Response = response.String
	in.ValidatorOK = validatorOK != 0
	in.ValidatorIssues = unmarshalStrings(issues)
	in.ConfidenceDetail = unmarshalFloats(detail)
	in.Decision = types.Action(decision.String)
	in.ErrorKind = types.ErrorKind(errorKind.String)
	in.Duration = time.Duration(durationNS)
	in.StartedAt = parseTime(startedAt)
	in.CompletedAt = parseTime(completedAt)
	return &in, nil
}

const interactionColumns = `id, work_item_id, iteration, prompt, response, validator_ok,
	validator_issues, quality_score, confidence_score, confidence_detail, decision,
	error_kind, duration_ns, prompt_tokens, response_tokens, estimated_tokens,
	started_at, completed_at`

// ListInteractions returns every interaction for a work item in iteration
// order.
func (t *Tx) ListInteractions(ctx context.Context, workItemID int64) ([]*types.Interaction, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+interactionColumns+` FROM interactions
		 WHERE work_item_id = ? ORDER BY iteration ASC, id ASC`, workItemID)
	if err != nil {
		return nil, storageErr("store.ListInteractions", err)
	}
	defer rows.Close()

	var out []*types.Interaction
	for rows.Next() {
		in, err := scanInteraction(rows.Scan)
		if err != nil {
			return nil, storageErr("store.ListInteractions", err)
		}
		out = append(out, in)
	}
	return out, storageErr("store.ListInteractions", rows.Err())
}

// InsertMilestone persists a milestone and fills in its id.
func (t *Tx) InsertMilestone(ctx context.Context, m *types.Milestone) error {
	epics, err := marshalJSON(m.RequiredEpicIDs)
	if err != nil {
		return types.NewError(types.KindInvariantViolation, "store.InsertMilestone", err)
	}
	meta, err := marshalJSON(m.Metadata)
	if err != nil {
		return types.NewError(types.KindInvariantViolation, "store.InsertMilestone", err)
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO milestones (project_id, name, description, target_date,
			required_epic_ids, achieved, achieved_at, version, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ProjectID, m.Name, m.Description, fmtTimePtr(m.TargetDate),
		epics, boolToInt(m.Achieved), fmtTimePtr(m.AchievedAt), m.Version, meta)
	if err != nil {
		return storageErr("store.InsertMilestone", err)
	}
	m.ID, err = res.LastInsertId()
	return storageErr("store.InsertMilestone", err)
}

func scanMilestone(scan func(dest ...any) error) (*types.Milestone, error) {
	var m types.Milestone
	var description, version sql.NullString
	var targetDate, achievedAt, epics, meta sql.NullString
	var achieved int

	err := scan(&m.ID, &m.ProjectID, &m.Name, &description, &targetDate,
		&epics, &achieved, &achievedAt, &version, &meta)
	if err != nil {
		return nil, err
	}
	m.Description = description.String
	m.TargetDate = parseTimePtr(targetDate)
	m.RequiredEpicIDs = unmarshalIDs(epics)
	m.Achieved = achieved != 0
	m.AchievedAt = parseTimePtr(achievedAt)
	m.Version = version.String
	m.Metadata = unmarshalMap(meta)
	return &m, nil
}

// GetMilestone returns a milestone by id.
func (t *Tx) GetMilestone(ctx context.Context, id int64) (*types.Milestone, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, project_id, name, description, target_date, required_epic_ids,
			achieved, achieved_at, version, metadata
		FROM milestones WHERE id = ?`, id)
	m, err := scanMilestone(row.Scan)
	if err != nil {
		return nil, storageErr("store.GetMilestone", err)
	}
	return m, nil
}

// ListMilestones returns every milestone for a project.
func (t *Tx) ListMilestones(ctx context.Context, projectID int64) ([]*types.Milestone, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, project_id, name, description, target_date, required_epic_ids,
			achieved, achieved_at, version, metadata
		FROM milestones WHERE project_id = ? ORDER BY id ASC`, projectID)
	if err != nil {
		return nil, storageErr("store.ListMilestones", err)
	}
	defer rows.Close()

	var out []*types.Milestone
	for rows.Next() {
		m, err := scanMilestone(rows.Scan)
		if err != nil {
			return nil, storageErr("store.ListMilestones", err)
		}
		out = append(out, m)
	}
	return out, storageErr("store.ListMilestones", rows.Err())
}

// MarkMilestoneAchieved stamps the achievement flag and time.
func (t *Tx) MarkMilestoneAchieved(ctx context.Context, id int64, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE milestones SET achieved = 1, achieved_at = ? WHERE id = ? AND achieved = 0`,
		fmtTime(at), id)
	if err != nil {
		return storageErr("store.MarkMilestoneAchieved", err)
	}
	return requireRow(res, "store.MarkMilestoneAchieved")
}

// InsertBreakpoint persists a human-intervention request.
func (t *Tx) InsertBreakpoint(ctx context.Context, b *types.BreakpointEvent) error {
	bctx, err := marshalJSON(b.Context)
	if err != nil {
		return types.NewError(types.KindInvariantViolation, "store.InsertBreakpoint", err)
	}
	if b.OpenedAt.IsZero() {
		b.OpenedAt = time.Now().UTC()
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO breakpoints (work_item_id, severity, reason, context, opened_at,
			resolved_at, resolution, feedback)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.WorkItemID, string(b.Severity), b.Reason, bctx, fmtTime(b.OpenedAt),
		fmtTimePtr(b.ResolvedAt), string(b.Resolution), b.Feedback)
	if err != nil {
		return storageErr("store.InsertBreakpoint", err)
	}
	b.ID, err = res.LastInsertId()
	return storageErr("store.InsertBreakpoint", err)
}

func scanBreakpoint(scan func(dest ...any) error) (*types.BreakpointEvent, error) {
	var b types.BreakpointEvent
	var severity, openedAt string
	var reason, bctx, resolvedAt, resolution, feedback sql.NullString

	err := scan(&b.ID, &b.WorkItemID, &severity, &reason, &bctx, &openedAt,
		&resolvedAt, &resolution, &feedback)
	if err != nil {
		return nil, err
	}
	b.Severity = types.Severity(severity)
	b.Reason = reason.String
	b.Context = unmarshalMap(bctx)
	b.OpenedAt = parseTime(openedAt)
	b.ResolvedAt = parseTimePtr(resolvedAt)
	b.Resolution = types.Resolution(resolution.String)
	b.Feedback = feedback.String
	return &b, nil
}

const breakpointColumns = `id, work_item_id, severity, reason, context, opened_at,
	resolved_at, resolution, feedback`

// GetBreakpoint returns a breakpoint by id.
func (t *Tx) GetBreakpoint(ctx context.Context, id int64) (*types.BreakpointEvent, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+breakpointColumns+` FROM breakpoints WHERE id = ?`, id)
	b, err := scanBreakpoint(row.Scan)
	if err != nil {
		return nil, storageErr("store.GetBreakpoint", err)
	}
	return b, nil
}

// ListOpenBreakpoints returns unresolved breakpoints for a work item.
func (t *Tx) ListOpenBreakpoints(ctx context.Context, workItemID int64) ([]*types.BreakpointEvent, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT `+breakpointColumns+` FROM breakpoints
		 WHERE work_item_id = ? AND resolved_at IS NULL ORDER BY id ASC`, workItemID)
	if err != nil {
		return nil, storageErr("store.ListOpenBreakpoints", err)
	}
	defer rows.Close()

	var out []*types.BreakpointEvent
	for rows.Next() {
		b, err := scanBreakpoint(rows.Scan)
		if err != nil {
			return nil, storageErr("store.ListOpenBreakpoints", err)
		}
		out = append(out, b)
	}
	return out, storageErr("store.ListOpenBreakpoints", rows.Err())
}

// ResolveBreakpoint stamps resolution, feedback, and the resolution time.
func (t *Tx) ResolveBreakpoint(ctx context.Context, id int64, resolution types.Resolution, feedback string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE breakpoints SET resolved_at = ?, resolution = ?, feedback = ?
		WHERE id = ? AND resolved_at IS NULL`,
		fmtTime(at), string(resolution), feedback, id)
	if err != nil {
		return storageErr("store.ResolveBreakpoint", err)
	}
	return requireRow(res, "store.ResolveBreakpoint")
}

// InsertFileChange appends one workspace mutation record.
func (t *Tx) InsertFileChange(ctx context.Context, fc *types.FileChange) error {
	if fc.ObservedAt.IsZero() {
		fc.ObservedAt = time.Now().UTC()
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO file_changes (work_item_id, interaction_id, path, kind,
			content_hash, size, observed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fc.WorkItemID, fc.InteractionID, fc.Path, string(fc.Kind),
		fc.ContentHash, fc.Size, fmtTime(fc.ObservedAt))
	if err != nil {
		return storageErr("store.InsertFileChange", err)
	}
	fc.ID, err = res.LastInsertId()
	return storageErr("store.InsertFileChange", err)
}

// ListFileChanges returns the audit trail for a work item in observation
// order.
func (t *Tx) ListFileChanges(ctx context.Context, workItemID int64) ([]*types.FileChange, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, work_item_id, interaction_id, path, kind, content_hash, size, observed_at
		FROM file_changes WHERE work_item_id = ? ORDER BY id ASC`, workItemID)
	if err != nil {
		return nil, storageErr("store.ListFileChanges", err)
	}
	defer rows.Close()

	var out []*types.FileChange
	for rows.Next() {
		var fc types.FileChange
		var kind, observedAt string
		var hash sql.NullString
		var interactionID sql.NullInt64
		if err := rows.Scan(&fc.ID, &fc.WorkItemID, &interactionID, &fc.Path,
			&kind, &hash, &fc.Size, &observedAt); err != nil {
			return nil, storageErr("store.ListFileChanges", err)
		}
		fc.InteractionID = interactionID.Int64
		fc.Kind = types.ChangeKind(kind)
		fc.ContentHash = hash.String
		fc.ObservedAt = parseTime(observedAt)
		out = append(out, &fc)
	}
	return out, storageErr("store.ListFileChanges", rows.Err())
}

// InsertCheckpoint persists a project snapshot.
func (t *Tx) InsertCheckpoint(ctx context.Context, cp *types.Checkpoint) error {
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO checkpoints (project_id, reason, payload, created_at)
		VALUES (?, ?, ?, ?)`,
		cp.ProjectID, cp.Reason, cp.Payload, fmtTime(cp.CreatedAt))
	if err != nil {
		return storageErr("store.InsertCheckpoint", err)
	}
	cp.ID, err = res.LastInsertId()
	return storageErr("store.InsertCheckpoint", err)
}

// GetCheckpoint returns a checkpoint by id.
func (t *Tx) GetCheckpoint(ctx context.Context, id int64) (*types.Checkpoint, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT id, project_id, reason, payload, created_at
		FROM checkpoints WHERE id = ?`, id)

	var cp types.Checkpoint
	var reason sql.NullString
	var createdAt string
	if err := row.Scan(&cp.ID, &cp.ProjectID, &reason, &cp.Payload, &createdAt); err != nil {
		return nil, storageErr("store.GetCheckpoint", err)
	}
	cp.Reason = reason.String
	cp.CreatedAt = parseTime(createdAt)
	return &cp, nil
}

// HardDeleteProjectMilestones removes milestone rows for checkpoint restore.
func (t *Tx) HardDeleteProjectMilestones(ctx context.Context, projectID int64) error {
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM milestones WHERE project_id = ?`, projectID); err != nil {
		return storageErr("store.HardDeleteProjectMilestones", err)
	}
	return nil
}

// InsertMilestoneWithID re-inserts a milestone preserving its original id.
// Only checkpoint restore uses this.
func (t *Tx) InsertMilestoneWithID(ctx context.Context, m *types.Milestone) error {
	epics, err := marshalJSON(m.RequiredEpicIDs)
	if err != nil {
		return types.NewError(types.KindInvariantViolation, "store.InsertMilestoneWithID", err)
	}
	meta, err := marshalJSON(m.Metadata)
	if err != nil {
		return types.NewError(types.KindInvariantViolation, "store.InsertMilestoneWithID", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO milestones (id, project_id, name, description, target_date,
			required_epic_ids, achieved, achieved_at, version, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ProjectID, m.Name, m.Description, fmtTimePtr(m.TargetDate),
		epics, boolToInt(m.Achieved), fmtTimePtr(m.AchievedAt), m.Version, meta)
	return storageErr("store.InsertMilestoneWithID", err)
}
