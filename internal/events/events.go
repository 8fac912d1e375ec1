// Package events publishes escrow lifecycle notifications to downstream
// consumers such as indexers and UIs.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Event kinds emitted by the escrow ledgers.
const (
	KindStreamCreated   = "stream.created"
	KindStreamWithdrawn = "stream.withdrawn"
	KindStreamPaused    = "stream.paused"
	KindStreamResumed   = "stream.resumed"
	KindStreamCancelled = "stream.cancelled"
	KindStreamCompleted = "stream.completed"

	KindVestingCreated   = "vesting.created"
	KindVestingClaimed   = "vesting.claimed"
	KindVestingCancelled = "vesting.cancelled"
	KindVestingCompleted = "vesting.completed"

	KindLinkCreated   = "link.created"
	KindLinkClaimed   = "link.claimed"
	KindLinkCancelled = "link.cancelled"
	KindLinkExpired   = "link.expired"
)

// Event is one lifecycle notification. Subject identifies the record and is
// used as the partition key.
type Event struct {
	Kind    string         `json:"kind"`
	Subject string         `json:"subject"`
	Fields  map[string]any `json:"fields,omitempty"`
	At      int64          `json:"at"`
}

// Emitter delivers events downstream.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// redactedFields hold claim tokens. Logs only get a short prefix of them.
var redactedFields = map[string]bool{"commitment": true}

// LoggerEmitter writes events to the structured logger.
type LoggerEmitter struct {
	logger *slog.Logger
}

// NewLoggerEmitter constructs a logging emitter.
func NewLoggerEmitter(logger *slog.Logger) *LoggerEmitter {
	return &LoggerEmitter{logger: logger}
}

// Emit writes the event to the logger.
func (e *LoggerEmitter) Emit(ctx context.Context, event Event) error {
	if e == nil || e.logger == nil {
		return nil
	}
	attrs := make([]any, 0, len(event.Fields)+2)
	attrs = append(attrs, slog.String("kind", event.Kind), slog.String("subject", event.Subject))
	for k, v := range event.Fields {
		if redactedFields[k] {
			v = redact(v)
		}
		attrs = append(attrs, slog.Any(k, v))
	}
	e.logger.InfoContext(ctx, "event", attrs...)
	return nil
}

func redact(v any) string {
	s := fmt.Sprint(v)
	if len(s) <= 8 {
		return "..."
	}
	return s[:8] + "..."
}

// Multi fans an event out to every emitter and joins their errors.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, event Event) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps emitted events in memory for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the kinds of the recorded events in order.
func (r *Recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Kind)
	}
	return out
}

// Stamp returns an Event of kind for subject at unix second at.
func Stamp(kind, subject string, at int64, fields map[string]any) Event {
	if at == 0 {
		at = time.Now().Unix()
	}
	return Event{Kind: kind, Subject: subject, Fields: fields, At: at}
}
