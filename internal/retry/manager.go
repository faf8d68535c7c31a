// Package retry implements the bounded exponential-backoff policy shared
// by every component that talks to an unreliable collaborator. Errors are
// classified before each sleep; terminal errors stop immediately.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"obra/internal/config"
	"obra/internal/logging"
	"obra/internal/types"
)

// Class partitions errors for the retry loop.
type Class int

const (
	// Transient errors are retried as-is after a backoff sleep.
	Transient Class = iota
	// WithFeedback errors are retryable only with new input; the retry
	// loop stops and surfaces them to the decision layer.
	WithFeedback
	// Terminal errors are never retried.
	Terminal
)

// Classifier maps an error to its retry class.
type Classifier func(err error) Class

// DefaultClassifier classifies by the error's kind taxonomy.
func DefaultClassifier(err error) Class {
	kind := types.KindOf(err)
	switch {
	case types.RetryableKind(kind):
		return Transient
	case kind == types.KindValidationIncomplete:
		return WithFeedback
	case types.TerminalKind(kind):
		return Terminal
	}
	// Unclassified errors get one conservative retry path.
	return Transient
}

// Attempt records one try for post-mortem analysis.
type Attempt struct {
	Number   int
	Err      error
	Class    Class
	SleptFor time.Duration
	At       time.Time
}

// Manager computes backoff schedules and drives retry loops.
type Manager struct {
	cfg config.RetryConfig
	// rand is swappable for deterministic tests.
	rand *rand.Rand
}

// New builds a manager from the retry configuration.
func New(cfg config.RetryConfig) *Manager {
	return &Manager{
		cfg:  cfg,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Backoff returns the sleep before the given attempt (0-based):
// min(cap, base * mult^attempt) plus uniform jitter in [0, jitter).
func (m *Manager) Backoff(attempt int) time.Duration {
	base := float64(m.cfg.BaseDelay())
	d := base * math.Pow(m.cfg.Multiplier, float64(attempt))
	if cap := float64(m.cfg.MaxDelay()); d > cap {
		d = cap
	}
	if j := m.cfg.Jitter(); j > 0 {
		d += float64(m.rand.Int63n(int64(j)))
	}
	return time.Duration(d)
}

// MaxAttempts returns the configured attempt bound.
func (m *Manager) MaxAttempts() int {
	if m.cfg.MaxAttempts <= 0 {
		return 1
	}
	return m.cfg.MaxAttempts
}

// WithRetry runs op up to MaxAttempts times, sleeping the backoff between
// transient failures. It returns the attempt history alongside the final
// error; on success the history covers the failed tries that preceded it.
func (m *Manager) WithRetry(ctx context.Context, name string, classify Classifier, op func(ctx context.Context) error) ([]Attempt, error) {
	if classify == nil {
		classify = DefaultClassifier
	}
	log := logging.Get(logging.CategoryOrchestrator)

	var attempts []Attempt
	var lastErr error
	for attempt := 0; attempt < m.MaxAttempts(); attempt++ {
		if err := ctx.Err(); err != nil {
			return attempts, err
		}

		err := op(ctx)
		if err == nil {
			return attempts, nil
		}
		lastErr = err

		class := classify(err)
		rec := Attempt{Number: attempt + 1, Err: err, Class: class, At: time.Now()}
		if class != Transient || attempt == m.MaxAttempts()-1 {
			attempts = append(attempts, rec)
			if class == Terminal {
				log.Warn("%s: terminal error on attempt %d: %v", name, attempt+1, err)
			}
			return attempts, err
		}

		sleep := m.Backoff(attempt)
		rec.SleptFor = sleep
		attempts = append(attempts, rec)
		log.Debug("%s: attempt %d failed (%v), retrying in %v", name, attempt+1, err, sleep)

		select {
		case <-ctx.Done():
			return attempts, ctx.Err()
		case <-time.After(sleep):
		}
	}
	return attempts, lastErr
}
