package qllm

import (
	"sync"
	"time"
)

// EventType identifies a lifecycle notification emitted during execution.
type EventType string

// Lifecycle event types, emitted in this order for a successful run:
// execution-start, variables-resolved, content-prepared, request-sent,
// then response-received (non-streaming) or
// stream-start/stream-chunk*/stream-complete (streaming), followed by
// output-variables-processed and execution-complete.
const (
	EventExecutionStart    EventType = "execution-start"
	EventVariablesResolved EventType = "variables-resolved"
	EventContentPrepared   EventType = "content-prepared"
	EventRequestSent       EventType = "request-sent"
	EventResponseReceived  EventType = "response-received"
	EventStreamStart       EventType = "stream-start"
	EventStreamChunk       EventType = "stream-chunk"
	EventStreamComplete    EventType = "stream-complete"
	EventStreamError       EventType = "stream-error"
	EventOutputsProcessed  EventType = "output-variables-processed"
	EventExecutionComplete EventType = "execution-complete"
	EventExecutionError    EventType = "execution-error"
)

// ExecutionEvent is a one-way lifecycle notification. Events inform
// external consumers (UI, logging, metrics) and never gate or alter
// control flow.
type ExecutionEvent struct {
	// Type identifies the lifecycle point.
	Type EventType

	// ExecutionID ties all events of one Execute call together.
	ExecutionID string

	// TemplateName names the executing template.
	TemplateName string

	// Timestamp is when the event was emitted.
	Timestamp time.Time

	// Chunk carries the text delta for stream-chunk events.
	Chunk string

	// Err carries the failure for stream-error and execution-error events.
	Err error
}

// EventListener consumes lifecycle events. Listeners run synchronously in
// emission order on the executing goroutine; long-running work should be
// handed off by the listener itself.
type EventListener func(event ExecutionEvent)

// eventDispatcher fans events out to registered listeners.
// Safe for concurrent use.
type eventDispatcher struct {
	mu        sync.RWMutex
	listeners []EventListener
}

func newEventDispatcher() *eventDispatcher {
	return &eventDispatcher{}
}

// subscribe registers a listener for all future events.
func (d *eventDispatcher) subscribe(listener EventListener) {
	if listener == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, listener)
}

// emit delivers an event to every listener in registration order.
func (d *eventDispatcher) emit(event ExecutionEvent) {
	d.mu.RLock()
	listeners := d.listeners
	d.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	for _, listener := range listeners {
		listener(event)
	}
}
