// Package hooks fans a work item's terminal outcome out to independent
// post-completion consumers. A hook failure is logged and counted but
// never touches the item's status.
package hooks

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"obra/internal/logging"
	"obra/internal/types"
)

// Dispatcher runs registered hooks concurrently with failure isolation.
type Dispatcher struct {
	mu       sync.Mutex
	hooks    []types.CompletionHook
	timeout  time.Duration
	fired    int64
	failures map[string]int64
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		timeout:  30 * time.Second,
		failures: make(map[string]int64),
	}
}

// Register appends a hook. Hooks run in registration order per event but
// concurrently with each other.
func (d *Dispatcher) Register(h types.CompletionHook) {
	d.mu.Lock()
	d.hooks = append(d.hooks, h)
	d.mu.Unlock()
}

// Fire delivers the event to every hook and blocks until all finish or
// the per-dispatch timeout expires. Individual failures are absorbed.
func (d *Dispatcher) Fire(ctx context.Context, ev types.CompletionEvent) {
	d.mu.Lock()
	hooks := append([]types.CompletionHook(nil), d.hooks...)
	d.fired++
	d.mu.Unlock()
	if len(hooks) == 0 {
		return
	}

	log := logging.Get(logging.CategoryHooks)
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for _, h := range hooks {
		h := h
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					d.countFailure(h.Name())
					log.Error("Hook %s panicked on item %d: %v", h.Name(), ev.WorkItemID, r)
				}
			}()
			if err := h.OnCompletion(ctx, ev); err != nil {
				d.countFailure(h.Name())
				log.Warn("Hook %s failed on item %d: %v", h.Name(), ev.WorkItemID, err)
			}
			// Never propagate: one hook must not cancel its siblings.
			return nil
		})
	}
	g.Wait()
	log.Debug("Dispatched %s for item %d to %d hooks", ev.Outcome, ev.WorkItemID, len(hooks))
}

func (d *Dispatcher) countFailure(name string) {
	d.mu.Lock()
	d.failures[name]++
	d.mu.Unlock()
}

// Stats reports dispatch and per-hook failure counters.
func (d *Dispatcher) Stats() (fired int64, failures map[string]int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int64, len(d.failures))
	for k, v := range d.failures {
		out[k] = v
	}
	return d.fired, out
}
