// Package events is the outbound notification seam. Publishing is
// fire-and-forget: event consumers must never affect import processing.
package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Event names emitted by the import pipeline.
const (
	ExpensesCreated    = "expenses.created"
	EmailAutoConfirmed = "import.email.auto_confirmed"
	EmailImportCreated = "import.email.created"
)

// Event is one published notification.
type Event struct {
	Name    string
	UserID  string
	JobID   string
	Payload map[string]any
}

// Bus publishes events. Publish never returns an error and never blocks on
// consumers.
type Bus interface {
	Publish(ctx context.Context, e Event)
}

// LogBus writes every event to the structured log and keeps a bounded
// in-memory tail. This is the only implementation; a broker-backed bus would
// slot in behind the same interface.
type LogBus struct {
	log zerolog.Logger

	mu     sync.Mutex
	recent []Event
}

const recentCap = 256

// NewLogBus creates a logging event bus.
func NewLogBus(log zerolog.Logger) *LogBus {
	return &LogBus{log: log}
}

func (b *LogBus) Publish(ctx context.Context, e Event) {
	b.log.Info().
		Str("event", e.Name).
		Str("user_id", e.UserID).
		Str("job_id", e.JobID).
		Interface("payload", e.Payload).
		Msg("event published")

	b.mu.Lock()
	defer b.mu.Unlock()
	b.recent = append(b.recent, e)
	if len(b.recent) > recentCap {
		b.recent = b.recent[len(b.recent)-recentCap:]
	}
}

// Recent returns a copy of the retained event tail, newest last. Used by
// tests and the debug surface.
func (b *LogBus) Recent() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.recent))
	copy(out, b.recent)
	return out
}
