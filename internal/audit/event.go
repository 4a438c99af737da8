package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Severity classifies an audit entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Event is one append-only audit entry.
type Event struct {
	Action     string
	EntityType string
	EntityID   string
	UserID     string
	OldData    map[string]any
	NewData    map[string]any
	IPAddress  string
	UserAgent  string
	Severity   Severity
	OccurredAt time.Time
}

func (e Event) normalizedSeverity() Severity {
	if e.Severity == SeverityWarning {
		return SeverityWarning
	}
	return SeverityInfo
}

func (e Event) level() slog.Level {
	if e.normalizedSeverity() == SeverityWarning {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

// Sink receives audit events. Callers log a failed Record and carry on.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

type multi []Sink

// Multi fans an event out to every sink and joins their errors.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multi) Record(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Record(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Find returns recorded events with the given action.
func (r *Recorder) Find(action string) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Action == action {
			out = append(out, ev)
		}
	}
	return out
}
