package hooks

import (
	"context"
	"sync"

	"obra/internal/types"
)

// Telemetry keeps in-process counters of terminal outcomes. Counters are
// surfaced through the status command; nothing leaves the process.
type Telemetry struct {
	mu       sync.Mutex
	outcomes map[types.WorkItemStatus]int64
}

// NewTelemetry creates the hook.
func NewTelemetry() *Telemetry {
	return &Telemetry{outcomes: make(map[types.WorkItemStatus]int64)}
}

// Name implements CompletionHook.
func (t *Telemetry) Name() string { return "telemetry" }

// OnCompletion counts the outcome.
func (t *Telemetry) OnCompletion(_ context.Context, ev types.CompletionEvent) error {
	t.mu.Lock()
	t.outcomes[ev.Outcome]++
	t.mu.Unlock()
	return nil
}

// Counts returns a copy of the outcome counters.
func (t *Telemetry) Counts() map[types.WorkItemStatus]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[types.WorkItemStatus]int64, len(t.outcomes))
	for k, v := range t.outcomes {
		out[k] = v
	}
	return out
}
