// Package events defines the dispatcher's lifecycle event model: the
// same shape used for the admin WebSocket stream and the optional Redis
// telemetry mirror. Nothing in this package is authoritative — it is
// purely an observability fan-out of decisions the Dispatcher already
// made on its own run-loop.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// EventType names a kind of dispatcher lifecycle event.
type EventType string

const (
	EventTaskSubmitted EventType = "task.submitted"
	EventTaskStarted   EventType = "task.started"
	EventTaskCompleted EventType = "task.completed"
	EventTaskFailed    EventType = "task.failed"

	EventWorkerJoined EventType = "worker.joined"
	EventWorkerLeft   EventType = "worker.left"

	EventQueueDepth EventType = "queue.depth"
)

// Event is a single lifecycle occurrence, serializable for the
// WebSocket stream and the Redis telemetry mirror alike.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// NewEvent stamps data with the current time and wraps it as an Event.
func NewEvent(eventType EventType, data map[string]any) *Event {
	return &Event{Type: eventType, Timestamp: time.Now().UTC(), Data: data}
}

// NewTaskEvent builds an Event describing something that happened to
// taskID, merging in any extra fields (worker_id, failure reason, ...).
func NewTaskEvent(eventType EventType, taskID uint64, extra map[string]any) *Event {
	data := map[string]any{"task_id": taskID}
	for k, v := range extra {
		data[k] = v
	}
	return NewEvent(eventType, data)
}

// NewWorkerEvent builds an Event describing a worker lifecycle change.
func NewWorkerEvent(eventType EventType, workerID, state string) *Event {
	return NewEvent(eventType, map[string]any{"worker_id": workerID, "state": state})
}

// NewQueueDepthEvent builds a periodic queue-depth sample event.
func NewQueueDepthEvent(depth, pending int) *Event {
	return NewEvent(EventQueueDepth, map[string]any{"depth": depth, "pending": pending})
}

// ToJSON serializes the event to JSON.
func (e *Event) ToJSON() ([]byte, error) { return json.Marshal(e) }

// FromJSON deserializes an event from JSON.
func FromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Publisher is the best-effort fan-out sink the Dispatcher reports
// lifecycle events to. It is explicitly non-authoritative: a Publisher
// implementation is never consulted to reconstruct dispatcher state,
// only informed of decisions already made.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Subscribe(ctx context.Context, eventTypes ...EventType) (<-chan *Event, error)
	Close() error
}

// Subscriber represents an event subscriber, e.g. a WebSocket client
// with a filtered set of event types it cares about.
type Subscriber interface {
	OnEvent(event *Event)
	EventTypes() []EventType
}
