package types

import (
	"errors"
	"fmt"
)

// ErrorKind is the classification attached to every error that crosses a
// component boundary. The iteration driver only ever sees classified errors.
type ErrorKind string

const (
	// StateManager boundary.
	KindNotFound           ErrorKind = "not_found"
	KindInvariantViolation ErrorKind = "invariant_violation"
	KindConflict           ErrorKind = "conflict"
	KindStorageUnavailable ErrorKind = "storage_unavailable"
	KindWouldCycle         ErrorKind = "dependency_would_cycle"
	KindDependencyTooDeep  ErrorKind = "dependency_too_deep"

	// LLM client boundary.
	KindLLMUnavailable ErrorKind = "llm_unavailable"
	KindLLMTimeout     ErrorKind = "llm_timeout"
	KindModelMissing   ErrorKind = "llm_model_missing"
	KindLLMProtocol    ErrorKind = "llm_protocol"
	KindRateLimited    ErrorKind = "llm_rate_limited"
	KindLLMInternal    ErrorKind = "llm_internal"

	// Agent session boundary.
	KindSpawnFailed      ErrorKind = "agent_spawn_failed"
	KindDeadlineExceeded ErrorKind = "agent_deadline_exceeded"
	KindChildDiedEarly   ErrorKind = "agent_child_died_early"
	KindOutputTruncated  ErrorKind = "agent_output_truncated"
	KindWorkspaceInvalid ErrorKind = "agent_workspace_invalid"

	// Pipeline outcomes.
	KindValidationIncomplete ErrorKind = "validation_incomplete"
	KindLowQuality           ErrorKind = "validation_low_quality"
	KindLowConfidence        ErrorKind = "confidence_low"
	KindUserStop             ErrorKind = "user_stop"
)

// Error carries a classification alongside the underlying cause. Use the
// kind constructors below rather than building these by hand.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with a classification. Op names the failing operation.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the classification from err, or "" if unclassified.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// RetryableKind reports whether a kind is safe to retry without new input.
func RetryableKind(kind ErrorKind) bool {
	switch kind {
	case KindLLMTimeout, KindLLMUnavailable, KindRateLimited,
		KindSpawnFailed, KindDeadlineExceeded, KindChildDiedEarly:
		return true
	}
	return false
}

// TerminalKind reports whether a kind must escalate rather than retry.
func TerminalKind(kind ErrorKind) bool {
	switch kind {
	case KindModelMissing, KindLLMProtocol, KindWorkspaceInvalid,
		KindInvariantViolation, KindWouldCycle, KindDependencyTooDeep:
		return true
	}
	return false
}
