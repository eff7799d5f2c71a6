// Package progress implements the optional run-progress push surface: an
// Observer interface events flow through, and a WebSocket hub that fans them
// out to subscribed dashboard clients. Nothing in the engine or runner
// depends on an Observer being attached — a run with zero subscribers
// behaves identically to one with a hundred.
package progress

import (
	"context"
	"time"
)

// Observer receives run-progress events as they occur. Implementations
// must return quickly; OnEvent is called synchronously from the Workflow
// Engine's walk.
type Observer interface {
	OnEvent(ctx context.Context, event Event) error
	Name() string
	Filter() EventFilter
}

// EventType names a point in the Run/Service lifecycle an Observer can
// be notified about.
type EventType string

const (
	EventRunStarted        EventType = "run.started"
	EventRunCompleted      EventType = "run.completed"
	EventRunAborted        EventType = "run.aborted"
	EventServiceDispatched EventType = "service.dispatched"
	EventServiceRetrying   EventType = "service.retrying"
	EventServiceSkipped    EventType = "service.skipped"
	EventServiceCompleted  EventType = "service.completed"
	EventServiceFailed     EventType = "service.failed"
)

// Event carries the fields relevant to its Type; fields that don't
// apply are left at their zero value.
type Event struct {
	Type      EventType
	Runtime   string
	ServiceID string
	Device    *string
	Status    string
	Timestamp time.Time

	DurationMs *int64
	RetryCount *int
	Error      error
	Result     any
	Message    *string
}

// EventFilter decides whether an Observer should be notified of a
// given Event. A nil filter means "notify for everything".
type EventFilter interface {
	ShouldNotify(event Event) bool
}

// RuntimeFilter passes only events belonging to one runtime.
type RuntimeFilter struct {
	Runtime string
}

func (f *RuntimeFilter) ShouldNotify(event Event) bool { return event.Runtime == f.Runtime }

// EventTypeFilter passes only events of the given types.
type EventTypeFilter struct {
	allowed map[EventType]bool
}

// NewEventTypeFilter builds a filter for the given types. An empty
// argument list returns nil (no filtering).
func NewEventTypeFilter(types ...EventType) EventFilter {
	if len(types) == 0 {
		return nil
	}
	m := make(map[EventType]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return &EventTypeFilter{allowed: m}
}

func (f *EventTypeFilter) ShouldNotify(event Event) bool {
	if f == nil || len(f.allowed) == 0 {
		return true
	}
	return f.allowed[event.Type]
}

// Dispatcher fans one Event out to every registered Observer whose
// Filter accepts it. Observer errors are collected, not short-circuit
// raised, since one misbehaving subscriber must not block a run.
type Dispatcher struct {
	observers []Observer
}

// NewDispatcher builds a Dispatcher over the given observers.
func NewDispatcher(observers ...Observer) *Dispatcher {
	return &Dispatcher{observers: observers}
}

// Attach registers an additional Observer.
func (d *Dispatcher) Attach(o Observer) {
	d.observers = append(d.observers, o)
}

// Emit notifies every matching Observer, returning the first error
// encountered (after notifying all of them) so a caller can log it.
func (d *Dispatcher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	var firstErr error
	for _, o := range d.observers {
		if f := o.Filter(); f != nil && !f.ShouldNotify(event) {
			continue
		}
		if err := o.OnEvent(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
