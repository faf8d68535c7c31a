// Command obra is the semi-autonomous development supervisor: it plans
// work items, drives a headless coding agent through supervised
// iterations, and escalates to a human when confidence runs out.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"obra/internal/config"
	"obra/internal/logging"
	"obra/internal/types"
)

// Exit codes carry the error taxonomy to calling scripts.
const (
	exitOK          = 0
	exitInvariant   = 2
	exitPlugin      = 3
	exitTimeout     = 4
	exitUnresolved  = 5
	exitStorage     = 6
	exitUserStopped = 7
)

var (
	verbose    bool
	configPath string
	workspace  string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "obra",
	Short: "obra - supervised autonomous development orchestrator",
	Long: `obra drives a headless coding agent through supervised iterations.

A Supervisor LLM validates, scores, and gates every executor response;
humans intervene only at breakpoints or through the interactive command
plane (pause, resume, stop, to-executor, to-supervisor, override-decision).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = loadConfig()
		if err != nil {
			return err
		}
		settings := cfg.Logging.Settings()
		if verbose {
			settings.DebugMode = true
		}
		return logging.Initialize(resolveWorkspace(), settings)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func loadConfig() (*config.Config, error) {
	project := configPath
	if project == "" {
		project = filepath.Join(resolveWorkspace(), ".obra", "config.yaml")
	}
	user := ""
	if home, err := os.UserHomeDir(); err == nil {
		user = filepath.Join(home, ".obra", "config.yaml")
	}
	c, err := config.Load(project, user)
	if err != nil {
		return nil, err
	}
	if workspace != "" {
		abs, err := filepath.Abs(workspace)
		if err != nil {
			return nil, err
		}
		c.Agent.Workspace = abs
	}
	if c.Agent.Workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		c.Agent.Workspace = wd
	}
	return c, nil
}

func resolveWorkspace() string {
	if workspace != "" {
		if abs, err := filepath.Abs(workspace); err == nil {
			return abs
		}
	}
	if cfg != nil && cfg.Agent.Workspace != "" {
		return cfg.Agent.Workspace
	}
	wd, _ := os.Getwd()
	return wd
}

// exitCode maps the error taxonomy onto the documented exit codes.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	switch types.KindOf(err) {
	case types.KindUserStop:
		return exitUserStopped
	case types.KindStorageUnavailable:
		return exitStorage
	case types.KindDeadlineExceeded, types.KindLLMTimeout:
		return exitTimeout
	case types.KindInvariantViolation, types.KindWouldCycle, types.KindDependencyTooDeep,
		types.KindConflict, types.KindNotFound:
		return exitInvariant
	case types.KindSpawnFailed, types.KindChildDiedEarly, types.KindWorkspaceInvalid,
		types.KindLLMUnavailable, types.KindModelMissing, types.KindLLMProtocol,
		types.KindRateLimited, types.KindLLMInternal:
		return exitPlugin
	}
	var unresolved *escalationUnresolvedError
	if errors.As(err, &unresolved) {
		return exitUnresolved
	}
	return 1
}

// escalationUnresolvedError marks a shutdown with open breakpoints.
type escalationUnresolvedError struct {
	count int
}

func (e *escalationUnresolvedError) Error() string {
	return fmt.Sprintf("%d breakpoint(s) unresolved at shutdown", e.count)
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "project config file (default <workspace>/.obra/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "agent workspace directory (default cwd)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(itemCmd)
	rootCmd.AddCommand(milestoneCmd)
	rootCmd.AddCommand(breakpointCmd)
	rootCmd.AddCommand(checkpointCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(dbCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
