// Package orchestrator binds the whole pipeline together: the iteration
// driver runs one work item through build-prompt / execute / validate /
// decide cycles, and the scheduler fans drivers out over the ready set
// under a concurrency cap.
package orchestrator

import (
	"context"
	"time"

	"obra/internal/command"
	"obra/internal/confidence"
	"obra/internal/config"
	"obra/internal/decision"
	"obra/internal/hooks"
	"obra/internal/logging"
	"obra/internal/prompt"
	"obra/internal/quality"
	"obra/internal/retry"
	"obra/internal/state"
	"obra/internal/types"
	"obra/internal/validation"
	"obra/internal/watcher"
)

// Driver runs iterations for exactly one work item at a time. It owns no
// persistent state of its own; everything observable lives in the
// StateManager.
type Driver struct {
	cfg      config.OrchestrationConfig
	mgr      *state.Manager
	llm      types.LLMClient
	agent    types.AgentSession
	contexts *prompt.ContextBuilder
	prompts  *prompt.Builder
	valid    *validation.Validator
	quality  *quality.Controller
	scorer   *confidence.Scorer
	engine   *decision.Engine
	retries  *retry.Manager
	commands *command.Queue
	hooks    *hooks.Dispatcher
	watch    *watcher.Watcher // may be nil

	systemPrompt string
	glossary     string

	// loop is per-Run scratch, reset at the top of Run.
	loop loopState
}

// loopState is the driver's mutable per-item state.
type loopState struct {
	iteration          int
	consecutiveRetries int
	paused             bool
	stopRequested      bool
	feedback           []string
	// executorNote is injected into the next prompt, last-wins.
	executorNote string
	// supervisorNotes accumulate for the supervisor stages.
	supervisorNotes []command.Command
	// override replaces the computed action for the current iteration.
	override *types.Action
	deadline time.Time
}

// Deps bundles a driver's collaborators.
type Deps struct {
	Config    config.OrchestrationConfig
	State     *state.Manager
	LLM       types.LLMClient
	Agent     types.AgentSession
	Contexts  *prompt.ContextBuilder
	Prompts   *prompt.Builder
	Validator *validation.Validator
	Quality   *quality.Controller
	Scorer    *confidence.Scorer
	Engine    *decision.Engine
	Retries   *retry.Manager
	Commands  *command.Queue
	Hooks     *hooks.Dispatcher
	Watcher   *watcher.Watcher

	SystemPrompt string
	Glossary     string
}

// NewDriver wires a driver from its collaborators.
func NewDriver(d Deps) *Driver {
	return &Driver{
		cfg:          d.Config,
		mgr:          d.State,
		llm:          d.LLM,
		agent:        d.Agent,
		contexts:     d.Contexts,
		prompts:      d.Prompts,
		valid:        d.Validator,
		quality:      d.Quality,
		scorer:       d.Scorer,
		engine:       d.Engine,
		retries:      d.Retries,
		commands:     d.Commands,
		hooks:        d.Hooks,
		watch:        d.Watcher,
		systemPrompt: d.SystemPrompt,
		glossary:     d.Glossary,
	}
}

// Run drives one work item to a terminal or suspended status. Cleanup of
// the agent session happens on every exit path.
func (d *Driver) Run(ctx context.Context, itemID int64) (err error) {
	log := logging.Get(logging.CategoryOrchestrator)
	d.loop = loopState{deadline: time.Now().Add(d.cfg.WorkItemTimeout())}

	if err := d.mgr.UpdateStatus(ctx, itemID, types.StatusInProgress); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Driver panic on item %d: %v", itemID, r)
			d.agent.Cleanup()
			panic(r)
		}
		d.agent.Cleanup()
	}()

	baseCtx := ctx
	ctx, cancel := context.WithDeadline(ctx, d.loop.deadline)
	defer cancel()

	for {
		for d.loop.iteration < d.cfg.MaxIterations {
			d.loop.iteration++
			log.Info("Item %d iteration %d/%d", itemID, d.loop.iteration, d.cfg.MaxIterations)

			done, err := d.runIteration(ctx, itemID)
			if err != nil {
				if types.KindOf(err) == types.KindDeadlineExceeded && ctx.Err() != nil && baseCtx.Err() == nil {
					// Whole-item timeout: escalate rather than fail silently.
					return d.escalate(baseCtx, itemID, types.SeverityHigh,
						"work-item timeout exceeded")
				}
				return err
			}
			if done {
				return nil
			}
		}

		// Loop bound exhausted without acceptance. A "continue" resolution
		// grants a fresh iteration budget.
		resume, err := d.escalateAndWait(ctx, itemID, types.SeverityMedium, "max iterations reached")
		if err != nil || !resume {
			return err
		}
		d.loop.iteration = 0
		d.loop.consecutiveRetries = 0
	}
}
