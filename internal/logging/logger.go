// Package logging provides config-driven categorized file logging for Obra.
// Logs are written to <workspace>/.obra/logs/ with one file per category per
// day. Logging is controlled by the logging section of the Obra config; when
// debug mode is off, every call is a silent no-op.
package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category names a log sink.
type Category string

const (
	CategoryBoot         Category = "boot"         // Startup and shutdown
	CategoryStore        Category = "store"        // SQLite store operations
	CategoryState        Category = "state"        // StateManager transactions and leases
	CategoryLLM          Category = "llm"          // Supervisor LLM calls and cache
	CategoryAgent        Category = "agent"        // Executor subprocess lifecycle
	CategoryPrompt       Category = "prompt"       // Context and prompt assembly
	CategoryValidation   Category = "validation"   // Validator / quality / confidence pipeline
	CategoryDecision     Category = "decision"     // Decision engine outcomes
	CategoryDeps         Category = "deps"         // Dependency resolution
	CategoryCommand      Category = "command"      // Interactive command plane
	CategoryOrchestrator Category = "orchestrator" // Iteration driver and scheduler
	CategoryHooks        Category = "hooks"        // Post-completion hook dispatch
	CategoryWatcher      Category = "watcher"      // Workspace file watcher
)

// Settings controls the logging subsystem. It mirrors config.LoggingConfig
// to avoid a circular import.
type Settings struct {
	DebugMode  bool
	Level      string
	JSONFormat bool
	Categories map[string]bool
}

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

var (
	mu       sync.RWMutex
	loggers  = make(map[Category]*Logger)
	logsDir  string
	settings Settings
	logLevel = LevelInfo
)

// Logger writes to one category file.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

// entry is the JSON form of one log line.
type entry struct {
	Timestamp int64          `json:"ts"`
	Category  string         `json:"cat"`
	Level     string         `json:"lvl"`
	Message   string         `json:"msg"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Initialize sets up the logging directory from the workspace path and the
// resolved settings. Call once at startup; a no-op when debug mode is off.
func Initialize(workspace string, s Settings) error {
	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}

	mu.Lock()
	settings = s
	logsDir = filepath.Join(workspace, ".obra", "logs")
	switch s.Level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	mu.Unlock()

	if !s.DebugMode {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== Obra logging initialized ===")
	boot.Info("Workspace: %s", workspace)
	boot.Info("Log level: %s", s.Level)
	return nil
}

// enabled reports whether a category should produce output.
func enabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	if !settings.DebugMode {
		return false
	}
	if settings.Categories == nil {
		return true
	}
	on, exists := settings.Categories[string(category)]
	if !exists {
		return true
	}
	return on
}

// Get returns (or creates) the logger for a category. Disabled categories
// get a no-op logger.
func Get(category Category) *Logger {
	if !enabled(category) || logsDir == "" {
		return &Logger{category: category}
	}

	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(logsDir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open %s: %v\n", path, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

func (l *Logger) write(level int, label, format string, args ...any) {
	if l.logger == nil || logLevel > level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	mu.RLock()
	jsonOut := settings.JSONFormat
	mu.RUnlock()
	if jsonOut {
		data, err := json.Marshal(entry{
			Timestamp: time.Now().UnixMilli(),
			Category:  string(l.category),
			Level:     label,
			Message:   msg,
		})
		if err == nil {
			l.logger.Printf("%s", data)
			return
		}
	}
	l.logger.Printf("[%s] %s", label, msg)
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...any) { l.write(LevelDebug, "DEBUG", format, args...) }

// Info logs at info level.
func (l *Logger) Info(format string, args ...any) { l.write(LevelInfo, "INFO", format, args...) }

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...any) { l.write(LevelWarn, "WARN", format, args...) }

// Error logs at error level.
func (l *Logger) Error(format string, args ...any) { l.write(LevelError, "ERROR", format, args...) }

// StructuredLog writes one entry with custom fields, regardless of format.
func (l *Logger) StructuredLog(level, msg string, fields map[string]any) {
	if l.logger == nil {
		return
	}
	data, err := json.Marshal(entry{
		Timestamp: time.Now().UnixMilli(),
		Category:  string(l.category),
		Level:     level,
		Message:   msg,
		Fields:    fields,
	})
	if err != nil {
		l.logger.Printf("[%s] %s | fields=%v", level, msg, fields)
		return
	}
	l.logger.Printf("%s", data)
}

// CloseAll closes every open log file. Call at shutdown.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// Convenience wrappers for the hot categories.

// State logs to the state category at info level.
func State(format string, args ...any) { Get(CategoryState).Info(format, args...) }

// StateDebug logs to the state category at debug level.
func StateDebug(format string, args ...any) { Get(CategoryState).Debug(format, args...) }

// Agent logs to the agent category at info level.
func Agent(format string, args ...any) { Get(CategoryAgent).Info(format, args...) }

// AgentDebug logs to the agent category at debug level.
func AgentDebug(format string, args ...any) { Get(CategoryAgent).Debug(format, args...) }

// LLM logs to the llm category at info level.
func LLM(format string, args ...any) { Get(CategoryLLM).Info(format, args...) }

// LLMDebug logs to the llm category at debug level.
func LLMDebug(format string, args ...any) { Get(CategoryLLM).Debug(format, args...) }

// Orchestrator logs to the orchestrator category at info level.
func Orchestrator(format string, args ...any) { Get(CategoryOrchestrator).Info(format, args...) }

// OrchestratorDebug logs to the orchestrator category at debug level.
func OrchestratorDebug(format string, args ...any) { Get(CategoryOrchestrator).Debug(format, args...) }

// Timer measures an operation's duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold warns if the duration exceeds the threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}
