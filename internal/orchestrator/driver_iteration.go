package orchestrator

import (
	"context"
	"time"

	"obra/internal/command"
	"obra/internal/confidence"
	"obra/internal/decision"
	"obra/internal/logging"
	"obra/internal/prompt"
	"obra/internal/quality"
	"obra/internal/retry"
	"obra/internal/types"
	"obra/internal/validation"
)

// runIteration executes one full pipeline pass. It returns done=true when
// the item reached a terminal or suspended outcome and the driver should
// stop; a non-nil error aborts the run without recording an Interaction.
func (d *Driver) runIteration(ctx context.Context, itemID int64) (done bool, err error) {
	iterCtx, cancel := context.WithTimeout(ctx, d.cfg.IterationTimeout())
	defer cancel()
	startedAt := time.Now()

	// Checkpoint 1: commands that arrived between iterations.
	if err := d.checkpoint(iterCtx, 1); err != nil {
		return false, err
	}
	if d.loop.stopRequested {
		return true, d.handleStop(ctx, itemID)
	}

	item, err := d.mgr.GetWorkItem(iterCtx, itemID)
	if err != nil {
		return false, err
	}
	history, err := d.mgr.ListInteractions(iterCtx, itemID)
	if err != nil {
		return false, err
	}

	promptText, rules, err := d.buildPrompt(iterCtx, item, history)
	if err != nil {
		return false, err
	}

	// Checkpoint 2: last chance to amend the prompt.
	if err := d.checkpoint(iterCtx, 2); err != nil {
		return false, err
	}
	if d.loop.executorNote != "" {
		promptText += "\n## user note\n" + d.loop.executorNote + "\n"
		d.loop.executorNote = ""
	}

	// The watcher attributes workspace mutations to this item while the
	// executor runs.
	if d.watch != nil {
		d.watch.SetActiveItem(itemID, 0)
		defer d.watch.SetActiveItem(0, 0)
	}

	response, sendErr := d.execute(iterCtx, promptText)

	// Checkpoint 3: commands that arrived during execution.
	if err := d.checkpoint(iterCtx, 3); err != nil {
		return false, err
	}

	if sendErr != nil {
		return d.handleExecutionFailure(ctx, itemID, promptText, sendErr, startedAt)
	}

	vres := d.valid.Validate(response.Output, rules)
	var qeval quality.Evaluation
	if vres.Passed {
		qeval = d.quality.Evaluate(iterCtx, item, response.Output)
	} else {
		qeval = quality.Evaluation{Score: 0, Issues: []string{"incomplete response"}}
	}
	qeval.Issues = append(qeval.Issues, d.supervisorFeedback(command.ClassValidationGuidance)...)

	decomp := d.scorer.Score(d.signals(item, history, vres, qeval))

	// Checkpoint 4: scores are on the table; supervisor notes may adjust.
	if err := d.checkpoint(iterCtx, 4); err != nil {
		return false, err
	}

	outcome := d.engine.Decide(decision.Inputs{
		ValidatorPassed:     vres.Passed,
		ValidatorViolations: vres.Violations,
		QualityScore:        qeval.Score,
		QualityIssues:       qeval.Issues,
		Confidence:          decomp.Score,
		Iteration:           d.loop.iteration,
		MaxIterations:       d.cfg.MaxIterations,
		ConsecutiveRetries:  d.loop.consecutiveRetries,
		StopRequested:       d.loop.stopRequested,
		Override:            d.takeOverride(),
	})

	// Checkpoint 5: the user may replace the computed action.
	if err := d.checkpoint(iterCtx, 5); err != nil {
		return false, err
	}
	if late := d.takeOverride(); late != nil && types.ValidAction(string(*late)) {
		logging.Get(logging.CategoryDecision).Info("Action %s overridden to %s", outcome.Action, *late)
		outcome.Action = *late
		outcome.Overridden = true
	}

	interaction := &types.Interaction{
		WorkItemID:       itemID,
		Iteration:        d.loop.iteration,
		Prompt:           promptText,
		Response:         response.Output,
		ValidatorOK:      vres.Passed,
		ValidatorIssues:  vres.Violations,
		QualityScore:     qeval.Score,
		ConfidenceScore:  decomp.Score,
		ConfidenceDetail: decomp.Components(),
		Decision:         outcome.Action,
		Duration:         response.Duration,
		PromptTokens:     d.llm.EstimateTokens(promptText),
		ResponseTokens:   d.llm.EstimateTokens(response.Output),
		EstimatedTokens:  d.llm.EstimateTokens(promptText) + d.llm.EstimateTokens(response.Output),
		StartedAt:        startedAt.UTC(),
		CompletedAt:      time.Now().UTC(),
	}
	if response.Truncated {
		interaction.ErrorKind = types.KindOutputTruncated
	}
	if err := d.mgr.RecordInteraction(ctx, interaction); err != nil {
		// Storage unavailable aborts the iteration; nothing partial is
		// visible because RecordInteraction is transactional.
		return false, err
	}

	done, err = d.handleAction(ctx, itemID, outcome)
	if err != nil {
		return false, err
	}

	// Checkpoint 6: end of iteration.
	if cerr := d.checkpoint(ctx, 6); cerr != nil {
		return done, cerr
	}
	return done, nil
}

// buildPrompt assembles context then renders the hybrid prompt with the
// iteration's accumulated feedback.
func (d *Driver) buildPrompt(ctx context.Context, item *types.WorkItem, history []*types.Interaction) (string, prompt.Rules, error) {
	in := prompt.ContextInput{
		Item:         item,
		Interactions: history,
		SystemPrompt: d.systemPrompt,
		Glossary:     d.glossary,
	}
	var err error
	if item.EpicID != nil {
		if in.Epic, err = d.mgr.GetWorkItem(ctx, *item.EpicID); err != nil {
			return "", prompt.Rules{}, err
		}
	}
	if item.StoryID != nil {
		if in.Story, err = d.mgr.GetWorkItem(ctx, *item.StoryID); err != nil {
			return "", prompt.Rules{}, err
		}
	}

	contextText, err := d.contexts.Build(ctx, in)
	if err != nil {
		return "", prompt.Rules{}, err
	}
	rules := prompt.DefaultRules(item.Kind)
	text := d.prompts.Build(prompt.Input{
		Item:      item,
		Iteration: d.loop.iteration,
		Context:   contextText,
		Feedback:  d.loop.feedback,
		Rules:     rules,
	})
	return text, rules, nil
}

// execute sends the prompt to the executor under the retry manager.
func (d *Driver) execute(ctx context.Context, promptText string) (*types.AgentResponse, error) {
	var response *types.AgentResponse
	_, err := d.retries.WithRetry(ctx, "agent.Send", retry.DefaultClassifier, func(ctx context.Context) error {
		var sendErr error
		response, sendErr = d.agent.Send(ctx, promptText, d.loop.deadline)
		return sendErr
	})
	return response, err
}

// signals derives the confidence inputs from the item's history.
func (d *Driver) signals(item *types.WorkItem, history []*types.Interaction, vres validation.Result, qeval quality.Evaluation) confidence.Signals {
	failures := 0
	for _, h := range history {
		if h.Decision == types.ActionEscalate || h.Decision == types.ActionRetry || h.ErrorKind != "" {
			failures++
		}
	}
	return confidence.Signals{
		ValidatorPassed: vres.Passed,
		QualityScore:    qeval.Score,
		AgentHealthy:    d.agent.Healthy(),
		Iteration:       d.loop.iteration,
		MaxIterations:   d.cfg.MaxIterations,
		PriorFailures:   failures,
		PriorTotal:      len(history),
	}
}

// handleExecutionFailure records the failed attempt and maps the error to
// an action: retryable kinds consume an iteration, terminal kinds open a
// breakpoint.
func (d *Driver) handleExecutionFailure(ctx context.Context, itemID int64, promptText string, sendErr error, startedAt time.Time) (bool, error) {
	kind := types.KindOf(sendErr)
	interaction := &types.Interaction{
		WorkItemID:   itemID,
		Iteration:    d.loop.iteration,
		Prompt:       promptText,
		Decision:     types.ActionRetry,
		ErrorKind:    kind,
		PromptTokens: d.llm.EstimateTokens(promptText),
		StartedAt:    startedAt.UTC(),
		CompletedAt:  time.Now().UTC(),
	}
	if types.TerminalKind(kind) || (kind == types.KindDeadlineExceeded && ctx.Err() != nil) {
		interaction.Decision = types.ActionEscalate
	}
	if err := d.mgr.RecordInteraction(ctx, interaction); err != nil {
		return false, err
	}

	if interaction.Decision == types.ActionEscalate {
		resume, err := d.escalateAndWait(ctx, itemID, types.SeverityHigh,
			"executor failure: "+sendErr.Error())
		return !resume, err
	}
	d.loop.feedback = append(d.loop.feedback, "previous attempt failed: "+sendErr.Error())
	return false, nil
}
