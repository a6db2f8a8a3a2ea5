package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventDeviceDiscovered    EventType = "device.discovered"
	EventDeviceConnected     EventType = "device.connected"
	EventDeviceDisconnected  EventType = "device.disconnected"
	EventDeviceReconnecting  EventType = "device.reconnecting"
	EventHeartRateSample     EventType = "hr.sample"
	EventECGBatch            EventType = "ecg.batch"
	EventQualityUpdated      EventType = "quality.updated"
	EventSessionStarted      EventType = "session.started"
	EventSessionEnded        EventType = "session.ended"
	EventStreamError         EventType = "stream.error"
	EventExportCompleted     EventType = "export.completed"
	EventWatchdogDataTimeout EventType = "watchdog.data_timeout"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
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

// NewEvent builds an event with the payload marshaled to JSON.
// Marshal failures yield a nil payload; events are best-effort telemetry.
func NewEvent(t EventType, sessionID string, payload any) Event {
	e := Event{Type: t, Timestamp: time.Now(), SessionID: sessionID}
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			e.Payload = b
		}
	}
	return e
}
