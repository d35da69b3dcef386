package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventProjectChanged   EventType = "project.changed"
	EventEngineDetected   EventType = "engine.detected"
	EventDetectionFailed  EventType = "detection.failed"
	EventTaskStarted      EventType = "task.started"
	EventTaskCompleted    EventType = "task.completed"
	EventTaskSuperseded   EventType = "task.superseded"
	EventLogLines         EventType = "log.lines"
	EventWorkspaceChanged EventType = "workspace.changed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// TaskEventPayload is the payload of task.* events.
type TaskEventPayload struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Command     ComposedCommand `json:"command"`
	CommandLine string          `json:"command_line,omitempty"`
	Status      TaskStatus      `json:"status"`
	ExitCode    *int            `json:"exit_code,omitempty"`
	DurationMs  int64           `json:"duration_ms,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// ProjectEventPayload is the payload of project.changed and engine.detected.
type ProjectEventPayload struct {
	Name              string `json:"name"`
	ManifestPath      string `json:"manifest_path"`
	EngineAssociation string `json:"engine_association"`
	EngineRoot        string `json:"engine_root,omitempty"`
}

// DetectionFailedPayload is the payload of detection.failed.
type DetectionFailedPayload struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

// LogLinesPayload is the payload of log.lines.
type LogLinesPayload struct {
	Path  string           `json:"path"`
	Lines []ClassifiedLine `json:"lines"`
}

// NewEvent marshals payload into an Event stamped with the current time.
// A payload that fails to marshal is dropped.
func NewEvent(t EventType, payload any) Event {
	ev := Event{Type: t, Timestamp: time.Now()}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			ev.Payload = data
		}
	}
	return ev
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
