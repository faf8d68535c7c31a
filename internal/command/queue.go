package command

import (
	"obra/internal/logging"
	"obra/internal/types"
)

// DefaultQueueSize bounds the pending command buffer.
const DefaultQueueSize = 64

// Queue is the bounded, non-blocking channel between the input producer
// and an iteration driver. Checkpoints drain in arrival order.
type Queue struct {
	ch chan Command
}

// NewQueue creates a queue with the given capacity (default when <= 0).
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan Command, size)}
}

// Submit parses and enqueues one input line. A full queue rejects rather
// than blocks; the producer surfaces the error to the user.
func (q *Queue) Submit(line string) error {
	cmd, err := Parse(line)
	if err != nil {
		return err
	}
	return q.Push(cmd)
}

// Push enqueues an already-parsed command.
func (q *Queue) Push(cmd Command) error {
	select {
	case q.ch <- cmd:
		logging.Get(logging.CategoryCommand).Debug("Queued command: %s", cmd)
		return nil
	default:
		return types.Errorf(types.KindConflict, "command.Push",
			"command queue full (%d pending)", cap(q.ch))
	}
}

// Drain returns every pending command without blocking.
func (q *Queue) Drain() []Command {
	var out []Command
	for {
		select {
		case cmd := <-q.ch:
			out = append(out, cmd)
		default:
			return out
		}
	}
}

// Len reports the number of pending commands.
func (q *Queue) Len() int { return len(q.ch) }
