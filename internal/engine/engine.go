package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"campusattend/internal/keylock"
)

// Options tune the engine's derivation and risk rules.
type Options struct {
	// LateThreshold is the grace period after lesson start before a first
	// sighting counts as late.
	LateThreshold time.Duration
	// DefaultGoal is the minimum attendance percentage applied to students
	// without a personal goal.
	DefaultGoal float64
}

const (
	defaultLateThreshold = 15 * time.Minute
	defaultGoal          = 85.0

	// writeAttempts bounds internal retries on per-key lock contention
	// before ErrWriteConflict surfaces to the caller.
	writeAttempts = 3
)

// Engine derives attendance verdicts, aggregates rates and evaluates risk.
// All reads are safe for unbounded parallel use; writes are serialized per
// key through locks.
type Engine struct {
	roster   RosterStore
	events   DetectionStore
	verdicts VerdictStore
	notifs   NotificationStore
	clock    Clock
	locks    *keylock.KeyMutex
	logger   *zap.Logger
	opts     Options
}

// New creates an engine over the given collaborator stores.
func New(roster RosterStore, events DetectionStore, verdicts VerdictStore, notifs NotificationStore, clock Clock, logger *zap.Logger, opts Options) *Engine {
	if opts.LateThreshold <= 0 {
		opts.LateThreshold = defaultLateThreshold
	}
	if opts.DefaultGoal <= 0 {
		opts.DefaultGoal = defaultGoal
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Engine{
		roster:   roster,
		events:   events,
		verdicts: verdicts,
		notifs:   notifs,
		clock:    clock,
		locks:    keylock.New(),
		logger:   logger,
		opts:     opts,
	}
}

// LateThreshold returns the configured grace period.
func (e *Engine) LateThreshold() time.Duration { return e.opts.LateThreshold }

// withKeyLock runs fn while holding key, retrying a bounded number of times
// on contention with a small backoff between attempts.
func (e *Engine) withKeyLock(ctx context.Context, key string, fn func() error) error {
	for attempt := 1; ; attempt++ {
		if e.locks.TryLock(key) {
			defer e.locks.Unlock(key)
			return fn()
		}
		if attempt == writeAttempts {
			e.logger.Warn("write conflict after retries", zap.String("key", key))
			return ErrWriteConflict
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 25 * time.Millisecond):
		}
	}
}
