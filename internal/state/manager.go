// Package state implements the StateManager, the single source of truth
// for all Obra entities. It is the sole mutator of the store: it enforces
// hierarchy and dependency invariants, serializes mutations through
// transactions, assigns the per-item write lease, and fans out change
// notifications. It depends on no other in-process component.
package state

import (
	"context"
	"path/filepath"
	"sync"

	"obra/internal/config"
	"obra/internal/logging"
	"obra/internal/store"
	"obra/internal/types"
)

// EventType labels a change notification.
type EventType string

const (
	EventProjectCreated    EventType = "project_created"
	EventItemCreated       EventType = "item_created"
	EventStatusChanged     EventType = "status_changed"
	EventInteraction       EventType = "interaction_recorded"
	EventBreakpointOpened  EventType = "breakpoint_opened"
	EventBreakpointClosed  EventType = "breakpoint_resolved"
	EventMilestoneAchieved EventType = "milestone_achieved"
)

// Event is one change notification. Subscribers receive events after the
// transaction that produced them has committed.
type Event struct {
	Type       EventType
	ProjectID  int64
	WorkItemID int64
	Status     types.WorkItemStatus
}

// Manager is the StateManager.
type Manager struct {
	store   *store.Store
	depsCfg config.DependenciesConfig

	mu     sync.Mutex
	leases map[int64]string // work-item id -> lease token
	subs   []chan Event
}

// New creates a StateManager over an open store.
func New(st *store.Store, depsCfg config.DependenciesConfig) *Manager {
	return &Manager{
		store:   st,
		depsCfg: depsCfg,
		leases:  make(map[int64]string),
	}
}

// Store exposes the underlying store for maintenance operations only.
func (m *Manager) Store() *store.Store { return m.store }

// Subscribe returns a channel of change notifications. The channel is
// buffered; slow consumers drop events rather than block writers.
func (m *Manager) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

func (m *Manager) notify(ev Event) {
	m.mu.Lock()
	subs := append([]chan Event(nil), m.subs...)
	m.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// CreateProject validates the working directory and persists a new active
// project.
func (m *Manager) CreateProject(ctx context.Context, name, description, workdir string) (int64, error) {
	if name == "" {
		return 0, types.Errorf(types.KindInvariantViolation, "state.CreateProject", "name required")
	}
	if !filepath.IsAbs(workdir) {
		return 0, types.Errorf(types.KindInvariantViolation, "state.CreateProject",
			"working directory must be absolute, got %q", workdir)
	}

	p := &types.Project{
		Name:        name,
		Description: description,
		WorkDir:     workdir,
		Status:      types.ProjectActive,
	}
	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.InsertProject(ctx, p)
	})
	if err != nil {
		return 0, err
	}
	logging.State("Created project %d (%s) at %s", p.ID, name, workdir)
	m.notify(Event{Type: EventProjectCreated, ProjectID: p.ID})
	return p.ID, nil
}

// GetProject returns a project by id.
func (m *Manager) GetProject(ctx context.Context, id int64) (*types.Project, error) {
	var p *types.Project
	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		p, err = tx.GetProject(ctx, id)
		return err
	})
	return p, err
}

// SetProjectStatus flips a project's status.
func (m *Manager) SetProjectStatus(ctx context.Context, id int64, status types.ProjectStatus) error {
	switch status {
	case types.ProjectActive, types.ProjectPaused, types.ProjectCompleted, types.ProjectArchived:
	default:
		return types.Errorf(types.KindInvariantViolation, "state.SetProjectStatus",
			"unknown project status %q", status)
	}
	return m.store.WithTx(ctx, func(tx *store.Tx) error {
		return tx.UpdateProjectStatus(ctx, id, status)
	})
}

// CreateMilestone persists a milestone after verifying every required epic
// exists in the project and is an epic.
func (m *Manager) CreateMilestone(ctx context.Context, ms *types.Milestone) (int64, error) {
	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.GetProject(ctx, ms.ProjectID); err != nil {
			return err
		}
		for _, epicID := range ms.RequiredEpicIDs {
			epic, err := tx.GetWorkItem(ctx, epicID)
			if err != nil {
				return err
			}
			if epic.ProjectID != ms.ProjectID {
				return types.Errorf(types.KindInvariantViolation, "state.CreateMilestone",
					"epic %d belongs to project %d, not %d", epicID, epic.ProjectID, ms.ProjectID)
			}
			if epic.Kind != types.KindEpic {
				return types.Errorf(types.KindInvariantViolation, "state.CreateMilestone",
					"required item %d is a %s, not an epic", epicID, epic.Kind)
			}
		}
		return tx.InsertMilestone(ctx, ms)
	})
	if err != nil {
		return 0, err
	}
	return ms.ID, nil
}

// GetMilestone returns a milestone by id.
func (m *Manager) GetMilestone(ctx context.Context, id int64) (*types.Milestone, error) {
	var ms *types.Milestone
	err := m.store.WithTx(ctx, func(tx *store.Tx) error {
		var err error
		ms, err = tx.GetMilestone(ctx, id)
		return err
	})
	return ms, err
}

// recomputeMilestones scans the project's unachieved milestones and marks
// achieved every one whose required epics are all completed. Runs inside
// the transaction that completed an epic, so achievement is atomic with
// the epic's completion.
func (m *Manager) recomputeMilestones(ctx context.Context, tx *store.Tx, projectID int64) ([]int64, error) {
	milestones, err := tx.ListMilestones(ctx, projectID)
	if err != nil {
		return nil, err
	}
	items, err := tx.ListWorkItems(ctx, projectID)
	if err != nil {
		return nil, err
	}
	status := make(map[int64]types.WorkItemStatus, len(items))
	completedAt := make(map[int64]*types.WorkItem, len(items))
	for _, it := range items {
		status[it.ID] = it.Status
		completedAt[it.ID] = it
	}

	var achieved []int64
	for _, ms := range milestones {
		if ms.Achieved || len(ms.RequiredEpicIDs) == 0 {
			continue
		}
		done := true
		// The achievement stamp must not precede any epic's completion.
		var latest = ms.AchievedAt
		for _, epicID := range ms.RequiredEpicIDs {
			if status[epicID] != types.StatusCompleted {
				done = false
				break
			}
			if it := completedAt[epicID]; it.CompletedAt != nil {
				if latest == nil || it.CompletedAt.After(*latest) {
					latest = it.CompletedAt
				}
			}
		}
		if !done {
			continue
		}
		at := timeNow()
		if latest != nil && latest.After(at) {
			at = *latest
		}
		if err := tx.MarkMilestoneAchieved(ctx, ms.ID, at); err != nil {
			return nil, err
		}
		achieved = append(achieved, ms.ID)
		logging.State("Milestone %d (%s) achieved", ms.ID, ms.Name)
	}
	return achieved, nil
}
