package state

import (
	"context"
	"encoding/json"
	"time"

	"obra/internal/deps"
	"obra/internal/logging"
	"obra/internal/store"
	"obra/internal/types"
)

func timeNow() time.Time { return time.Now().UTC() }

// CreateWorkItemSpec carries the caller-supplied fields for a new item.
type CreateWorkItemSpec struct {
	Kind        types.WorkItemKind
	ProjectID   int64
	ParentID    *int64
	EpicID      *int64
	StoryID     *int64
	Title       string
	Description string
	Priority    int
	Deps        []int64
	MaxRetries  int
	Executor    string
	Metadata    map[string]any
}

// CreateWorkItem validates the hierarchy invariants and inserts the item
// as pending.
func (m *Manager) CreateWorkItem(ctx context.Context, spec CreateWorkItemSpec) (int64, error) {
	if spec.Title == "" {
		return 0, types.Errorf(types.KindInvariantViolation, "state.CreateWorkItem", "title required")
	}
	if spec.Metadata != nil {
		if _, err := json.Marshal(spec.Metadata); err != nil {
			return 0, types.NewError(types.KindInvariantViolation, "state.CreateWorkItem", err)
		}
	}
	maxRetries := spec.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	w := &types.WorkItem{
		ProjectID:         spec.ProjectID,
		ParentID:          spec.ParentID,
		EpicID:            spec.EpicID,
		StoryID:           spec.StoryID,
		Kind:              spec.Kind,
		Title:             spec.Title,
		Description:       spec.Description,
		Status:            types.StatusPending,
		Priority:          spec.Priority,
		DependencyIDs:     append([]int64(nil), spec.Deps...),
		MaxRetries:        maxRetries,
		Executor:          spec.Executor,
		Metadata:          spec.Metadata,
		DocumentationNote: types.DocPending,
	}

	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetProject(ctx, spec.ProjectID); err != nil {
			return err
		}
		if err := m.validateHierarchy(ctx, tx, w); err != nil {
			return err
		}
		items, err := tx.ListWorkItems(ctx, spec.ProjectID)
		if err != nil {
			return err
		}
		byID := make(map[int64]*types.WorkItem, len(items))
		for _, it := range items {
			byID[it.ID] = it
		}
		for _, dep := range w.DependencyIDs {
			if _, ok := byID[dep]; !ok {
				return types.Errorf(types.KindInvariantViolation, "state.CreateWorkItem",
					"dependency %d does not exist in project %d", dep, spec.ProjectID)
			}
		}
		if err := tx.InsertWorkItem(ctx, w); err != nil {
			return err
		}
		// Trial sort over the graph including the new node.
		r := deps.NewResolver(append(items, w), m.depsCfg.MaxDepth)
		if _, err := r.Validate(); err != nil {
			return err
		}
		if _, err := r.ChainDepth(w.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	logging.State("Created %s %d (%s) in project %d", w.Kind, w.ID, w.Title, w.ProjectID)
	m.notify(Event{Type: EventItemCreated, ProjectID: w.ProjectID, WorkItemID: w.ID, Status: w.Status})
	return w.ID, nil
}

// validateHierarchy enforces the kind-specific parent/epic/story rules.
func (m *Manager) validateHierarchy(ctx context.Context, tx *store.Tx, w *types.WorkItem) error {
	fail := func(format string, args ...any) error {
		return types.Errorf(types.KindInvariantViolation, "state.CreateWorkItem", format, args...)
	}

	switch w.Kind {
	case types.KindEpic:
		if w.ParentID != nil || w.EpicID != nil || w.StoryID != nil {
			return fail("an epic cannot have a parent, epic, or story reference")
		}

	case types.KindStory:
		if w.EpicID == nil {
			return fail("a story requires an epic reference")
		}
		if w.StoryID != nil {
			return fail("a story cannot reference another story")
		}
		epic, err := tx.GetWorkItem(ctx, *w.EpicID)
		if err != nil {
			return err
		}
		if epic.Kind != types.KindEpic || epic.ProjectID != w.ProjectID {
			return fail("item %d is not an epic in project %d", *w.EpicID, w.ProjectID)
		}

	case types.KindTask:
		if w.StoryID != nil {
			if w.EpicID == nil {
				return fail("a task with a story reference also requires its epic")
			}
			story, err := tx.GetWorkItem(ctx, *w.StoryID)
			if err != nil {
				return err
			}
			if story.Kind != types.KindStory || story.ProjectID != w.ProjectID {
				return fail("item %d is not a story in project %d", *w.StoryID, w.ProjectID)
			}
			if story.EpicID == nil || *story.EpicID != *w.EpicID {
				return fail("story %d does not belong to epic %d", *w.StoryID, *w.EpicID)
			}
		}
		if w.EpicID != nil {
			epic, err := tx.GetWorkItem(ctx, *w.EpicID)
			if err != nil {
				return err
			}
			if epic.Kind != types.KindEpic || epic.ProjectID != w.ProjectID {
				return fail("item %d is not an epic in project %d", *w.EpicID, w.ProjectID)
			}
		}

	case types.KindSubtask:
		if w.ParentID == nil {
			return fail("a subtask requires a parent reference")
		}
		parent, err := tx.GetWorkItem(ctx, *w.ParentID)
		if err != nil {
			return err
		}
		if parent.ProjectID != w.ProjectID {
			return fail("parent %d belongs to another project", *w.ParentID)
		}
		if parent.Kind != types.KindTask && parent.Kind != types.KindSubtask {
			return fail("a subtask's parent must be a task or subtask, got %s", parent.Kind)
		}

	default:
		return fail("unknown work-item kind %q", w.Kind)
	}
	return nil
}

// GetWorkItem returns a work item by id.
func (m *Manager) GetWorkItem(ctx context.Context, id int64) (*types.WorkItem, error) {
	var w *types.WorkItem
	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		w, err = tx.GetWorkItem(ctx, id)
		return err
	})
	return w, err
}

// ListWorkItems returns a project's non-deleted items.
func (m *Manager) ListWorkItems(ctx context.Context, projectID int64) ([]*types.WorkItem, error) {
	var items []*types.WorkItem
	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		items, err = tx.ListWorkItems(ctx, projectID)
		return err
	})
	return items, err
}

// UpdateWorkItemFields persists mutations to non-status fields (result,
// prompt, retry count, documentation flags). Status must go through
// UpdateStatus.
func (m *Manager) UpdateWorkItemFields(ctx context.Context, w *types.WorkItem) error {
	return m.store.WithTx(ctx, func(tx *store.Tx) error {
		current, err := tx.GetWorkItem(ctx, w.ID)
		if err != nil {
			return err
		}
		if current.Status != w.Status {
			return types.Errorf(types.KindInvariantViolation, "state.UpdateWorkItemFields",
				"status changes must use UpdateStatus")
		}
		return tx.UpdateWorkItem(ctx, w)
	})
}

// AddDependency records from -> to, failing with dependency-would-cycle
// if acceptance would introduce a cycle. The graph is left unchanged on
// failure.
func (m *Manager) AddDependency(ctx context.Context, from, to int64) error {
	if from == to {
		return types.Errorf(types.KindWouldCycle, "state.AddDependency",
			"item %d cannot depend on itself", from)
	}
	return m.store.WithTx(ctx, func(tx *store.Tx) error {
		src, err := tx.GetWorkItem(ctx, from)
		if err != nil {
			return err
		}
		dst, err := tx.GetWorkItem(ctx, to)
		if err != nil {
			return err
		}
		if src.ProjectID != dst.ProjectID {
			return types.Errorf(types.KindInvariantViolation, "state.AddDependency",
				"items %d and %d belong to different projects", from, to)
		}

		items, err := tx.ListWorkItems(ctx, src.ProjectID)
		if err != nil {
			return err
		}
		r := deps.NewResolver(items, m.depsCfg.MaxDepth)
		r.AddEdge(from, to)
		if _, err := r.Validate(); err != nil {
			return err
		}
		if _, err := r.ChainDepth(from); err != nil {
			return err
		}

		src.DependencyIDs = append(src.DependencyIDs, to)
		return tx.UpdateWorkItem(ctx, src)
	})
}

// ReadyWorkItems returns non-deleted pending items whose dependencies are
// all completed, ordered by priority descending then created-at ascending.
func (m *Manager) ReadyWorkItems(ctx context.Context, projectID int64) ([]int64, error) {
	var ready []int64
	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		items, err := tx.ListWorkItems(ctx, projectID)
		if err != nil {
			return err
		}
		r := deps.NewResolver(items, m.depsCfg.MaxDepth)
		ready = r.ReadySet()
		return nil
	})
	return ready, err
}
