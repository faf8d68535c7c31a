package orchestrator

import (
	"context"
	"time"

	"obra/internal/command"
	"obra/internal/logging"
	"obra/internal/types"
)

// pausePollInterval is how often a paused driver re-checks its queue.
const pausePollInterval = 200 * time.Millisecond

// checkpoint drains pending commands, applies each in arrival order, and
// blocks while paused. Returns an error only on cancellation; malformed
// input never reaches the queue (the producer rejects it at parse time).
func (d *Driver) checkpoint(ctx context.Context, n int) error {
	d.applyCommands(d.commands.Drain(), n)

	for d.loop.paused && !d.loop.stopRequested {
		logging.Get(logging.CategoryCommand).Debug("Checkpoint %d: paused, waiting for resume", n)
		select {
		case <-ctx.Done():
			return types.NewError(types.KindDeadlineExceeded, "orchestrator.checkpoint", ctx.Err())
		case <-time.After(pausePollInterval):
			d.applyCommands(d.commands.Drain(), n)
		}
	}
	return nil
}

// applyCommands folds commands into the loop state. Re-applying the same
// command is a no-op by construction.
func (d *Driver) applyCommands(cmds []command.Command, checkpoint int) {
	log := logging.Get(logging.CategoryCommand)
	for _, cmd := range cmds {
		log.Info("Checkpoint %d: applying %s", checkpoint, cmd)
		switch cmd.Kind {
		case command.KindPause:
			d.loop.paused = true
		case command.KindResume:
			d.loop.paused = false
		case command.KindStop:
			d.loop.stopRequested = true
		case command.KindToExecutor:
			// Last-wins by contract.
			d.loop.executorNote = cmd.Text
		case command.KindToSupervisor:
			d.loop.supervisorNotes = append(d.loop.supervisorNotes, cmd)
		case command.KindOverrideDecision:
			action := cmd.Action
			d.loop.override = &action
		}
	}
}

// takeOverride consumes the pending override, if any. Overrides apply to
// the current iteration only.
func (d *Driver) takeOverride() *types.Action {
	o := d.loop.override
	d.loop.override = nil
	return o
}

// supervisorFeedback flattens pending supervisor notes of one class into
// feedback lines and removes them from the queue of notes.
func (d *Driver) supervisorFeedback(class command.SupervisorClass) []string {
	var out []string
	var rest []command.Command
	for _, note := range d.loop.supervisorNotes {
		if note.Class == class {
			out = append(out, note.Text)
			continue
		}
		rest = append(rest, note)
	}
	d.loop.supervisorNotes = rest
	return out
}
