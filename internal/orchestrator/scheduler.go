package orchestrator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"obra/internal/logging"
	"obra/internal/types"
)

// readyPollInterval bounds how stale the ready set can get between
// dependency-completion events.
const readyPollInterval = time.Second

// DriverFactory builds a fresh driver per dispatched item so drivers
// never share loop state.
type DriverFactory func() *Driver

// Scheduler pulls the ready set from the StateManager and dispatches one
// driver per item under the concurrency cap.
type Scheduler struct {
	projectID int64
	factory   DriverFactory
	sem       *semaphore.Weighted
	mgr       stateReader

	mu       sync.Mutex
	inflight map[int64]bool
}

// stateReader is the slice of the StateManager the scheduler needs.
type stateReader interface {
	ReadyWorkItems(ctx context.Context, projectID int64) ([]int64, error)
}

// NewScheduler creates a scheduler with the given parallelism (minimum 1).
func NewScheduler(projectID int64, concurrency int, mgr stateReader, factory DriverFactory) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scheduler{
		projectID: projectID,
		factory:   factory,
		sem:       semaphore.NewWeighted(int64(concurrency)),
		mgr:       mgr,
		inflight:  make(map[int64]bool),
	}
}

// Run dispatches ready items until the project drains, a user stop is
// observed, or ctx is cancelled. It returns nil when no ready or running
// work remains.
func (s *Scheduler) Run(ctx context.Context) error {
	log := logging.Get(logging.CategoryOrchestrator)
	var wg sync.WaitGroup
	var stopErr error
	var stopMu sync.Mutex

	setStop := func(err error) {
		stopMu.Lock()
		if stopErr == nil {
			stopErr = err
		}
		stopMu.Unlock()
	}
	stopped := func() error {
		stopMu.Lock()
		defer stopMu.Unlock()
		return stopErr
	}

	for {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := stopped(); err != nil {
			break
		}

		ready, err := s.mgr.ReadyWorkItems(ctx, s.projectID)
		if err != nil {
			setStop(err)
			break
		}

		dispatched := false
		for _, id := range ready {
			if s.markInflight(id) {
				continue
			}
			if err := s.sem.Acquire(ctx, 1); err != nil {
				s.clearInflight(id)
				break
			}
			dispatched = true
			wg.Add(1)
			go func(itemID int64) {
				defer wg.Done()
				defer s.sem.Release(1)
				defer s.clearInflight(itemID)
				log.Info("Dispatching item %d", itemID)
				if err := s.factory().Run(ctx, itemID); err != nil {
					if types.IsKind(err, types.KindUserStop) {
						setStop(err)
						return
					}
					log.Warn("Item %d finished with error: %v", itemID, err)
				}
			}(id)
		}

		if !dispatched {
			if len(ready) == 0 && !s.anyInflight() {
				break // drained
			}
			select {
			case <-ctx.Done():
			case <-time.After(readyPollInterval):
			}
		}
	}

	wg.Wait()
	if err := stopped(); err != nil {
		return err
	}
	return ctx.Err()
}

// markInflight reserves an item; reports true when it was already taken.
func (s *Scheduler) markInflight(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[id] {
		return true
	}
	s.inflight[id] = true
	return false
}

func (s *Scheduler) clearInflight(id int64) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

func (s *Scheduler) anyInflight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight) > 0
}
