// Package progress defines the ordered event stream a run emits and a
// fanout hub for delivering it to observers.
package progress

import (
	"time"

	"github.com/forgeworks/appforge/internal/domain"
)

// EventType names one kind of progress event
type EventType string

const (
	EventStageStart    EventType = "stage-start"
	EventStageDone     EventType = "stage-done"
	EventLoopIteration EventType = "loop-iteration"
	EventLoopDone      EventType = "loop-done"
	EventRunComplete   EventType = "run-complete"
	EventRunError      EventType = "run-error"
)

// Terminal reports whether the event ends the stream for its run.
// Consumers must treat run-complete and run-error as the only terminal
// signals.
func (t EventType) Terminal() bool {
	return t == EventRunComplete || t == EventRunError
}

// Event is one entry in a run's progress stream. Payload carries enough
// structure for a remote observer to render progress without polling.
type Event struct {
	Type    EventType      `json:"type"`
	RunID   string         `json:"run_id"`
	Stage   domain.Stage   `json:"stage,omitempty"`
	Attempt int            `json:"attempt,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	Time    time.Time      `json:"time"`
}

// Sink receives progress events. Emit must not block the pipeline.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(Event)

// Emit implements Sink
func (f SinkFunc) Emit(e Event) { f(e) }

// Nop returns a Sink that discards all events
func Nop() Sink { return SinkFunc(func(Event) {}) }

// Tee fans one event out to several sinks in order
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			s.Emit(e)
		}
	})
}
