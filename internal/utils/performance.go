package utils

import (
	"time"

	"github.com/rs/zerolog"
)

// SlowOperationThreshold is the duration after which a timed operation is
// logged at warn level.
const SlowOperationThreshold = 10 * time.Second

// Timer measures the duration of a single operation
type Timer struct {
	start     time.Time
	name      string
	threshold time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// NewTimer creates a new timer with the given name
func NewTimer(name string, log zerolog.Logger) *Timer {
	return &Timer{
		start:     time.Now(),
		name:      name,
		threshold: SlowOperationThreshold,
		log:       log,
		now:       time.Now,
	}
}

// WithThreshold overrides the slow-operation threshold
func (t *Timer) WithThreshold(d time.Duration) *Timer {
	t.threshold = d
	return t
}

// Stop logs the elapsed time and returns it
func (t *Timer) Stop() time.Duration {
	duration := t.now().Sub(t.start)

	t.log.Debug().
		Str("operation", t.name).
		Dur("duration_ms", duration).
		Msg("Operation completed")

	if t.threshold > 0 && duration > t.threshold {
		t.log.Warn().
			Str("operation", t.name).
			Dur("duration", duration).
			Dur("threshold", t.threshold).
			Msg("Slow operation detected")
	}

	return duration
}

// OperationTimer provides a defer-friendly way to measure operation duration
//
// Usage:
//
//	func (m *Manager) RebalanceAccount(...) {
//	    defer utils.OperationTimer("rebalance_account", m.log)()
//	}
func OperationTimer(operation string, log zerolog.Logger) func() {
	t := NewTimer(operation, log)
	return func() {
		t.Stop()
	}
}
