package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"obra/internal/command"
	"obra/internal/confidence"
	"obra/internal/decision"
	"obra/internal/hooks"
	"obra/internal/orchestrator"
	"obra/internal/prompt"
	"obra/internal/quality"
	"obra/internal/retry"
	"obra/internal/state"
	"obra/internal/validation"
	"obra/internal/watcher"
)

var (
	runProjectID    int64
	runSystemPrompt string
	runNoWatch      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run ready work items of a project through the iteration loop",
	Long: `Dispatches every ready work item to an iteration driver, bounded by the
configured concurrency cap. Interactive commands are read from stdin, one
per line:

  pause | resume | stop
  to-executor <text>
  to-supervisor <text>
  override-decision <accept|retry|clarify|escalate|stop>`,
	RunE: runProject,
}

func init() {
	runCmd.Flags().Int64Var(&runProjectID, "project", 0, "project id (required)")
	runCmd.Flags().StringVar(&runSystemPrompt, "system-prompt", "", "project-level constraint text for every prompt")
	runCmd.Flags().BoolVar(&runNoWatch, "no-watch", false, "disable the workspace file watcher")
	runCmd.MarkFlagRequired("project")
}

func runProject(cmd *cobra.Command, args []string) error {
	st, mgr, err := openState()
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := mgr.GetProject(cmd.Context(), runProjectID); err != nil {
		return err
	}

	client, err := buildLLM()
	if err != nil {
		return err
	}
	session, err := buildAgent()
	if err != nil {
		return err
	}
	defer session.Cleanup()

	var watch *watcher.Watcher
	if !runNoWatch {
		watch, err = watcher.New(resolveWorkspace(), mgr)
		if err != nil {
			return err
		}
		defer watch.Close()
	}

	dispatcher := hooks.NewDispatcher()
	dispatcher.Register(hooks.NewCommitWriter(resolveWorkspace()))
	dispatcher.Register(hooks.NewDocMaintenance(mgr))
	telemetry := hooks.NewTelemetry()
	dispatcher.Register(telemetry)

	queue := command.NewQueue(0)
	go readCommands(queue)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	factory := func() *orchestrator.Driver {
		return orchestrator.NewDriver(orchestrator.Deps{
			Config:       cfg.Orchestration,
			State:        mgr,
			LLM:          client,
			Agent:        session,
			Contexts:     prompt.NewContextBuilder(client),
			Prompts:      prompt.NewBuilder(),
			Validator:    validation.New(),
			Quality:      quality.New(client, mgr),
			Scorer:       confidence.New(cfg.Decision),
			Engine:       decision.New(cfg.Decision),
			Retries:      retry.New(cfg.Retry),
			Commands:     queue,
			Hooks:        dispatcher,
			Watcher:      watch,
			SystemPrompt: runSystemPrompt,
		})
	}

	sched := orchestrator.NewScheduler(runProjectID, cfg.Orchestration.ConcurrentItems, mgr, factory)
	runErr := sched.Run(ctx)

	printOutcome(cmd, mgr, telemetry)
	if runErr != nil {
		return runErr
	}
	return unresolvedBreakpoints(ctx, mgr)
}

// readCommands feeds stdin lines into the command queue; parse errors are
// surfaced without stopping the reader.
func readCommands(queue *command.Queue) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := queue.Submit(line); err != nil {
			fmt.Fprintf(os.Stderr, "command rejected: %v\n", err)
		}
	}
}

func printOutcome(cmd *cobra.Command, mgr *state.Manager, telemetry *hooks.Telemetry) {
	counts := telemetry.Counts()
	if len(counts) == 0 {
		return
	}
	cmd.Println("Run outcomes:")
	for status, n := range counts {
		cmd.Printf("  %-10s %d\n", status, n)
	}
	logger.Info("run finished", zap.Int64("project", runProjectID), zap.Any("outcomes", counts))
}

// unresolvedBreakpoints makes open escalations visible in the exit code.
func unresolvedBreakpoints(ctx context.Context, mgr *state.Manager) error {
	items, err := mgr.ListWorkItems(ctx, runProjectID)
	if err != nil {
		return err
	}
	open := 0
	for _, it := range items {
		bps, err := mgr.OpenBreakpoints(ctx, it.ID)
		if err != nil {
			return err
		}
		open += len(bps)
	}
	if open > 0 {
		return &escalationUnresolvedError{count: open}
	}
	return nil
}
