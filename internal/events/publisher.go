// Package events is the job master's live-status feed (SPEC_FULL.md
// component O): a best-effort, fire-and-forget lifecycle notification
// stream consumed only by external observers. Nothing in the kernel ever
// subscribes back to it, and its unavailability never affects the kernel's
// own state. Grounded on the teacher's internal/events/publisher.go, whose
// Event/Publisher/Subscriber shapes are kept, repurposed from
// task-execution events to plan/worker lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies what happened.
type EventType string

const (
	EventPlanAdmitted      EventType = "plan.admitted"
	EventPlanDenied        EventType = "plan.denied"
	EventPlanStateChanged  EventType = "plan.state_changed"
	EventWorkerRegistered  EventType = "worker.registered"
	EventWorkerEvicted     EventType = "worker.evicted"
	EventWorkerLost        EventType = "worker.lost"
	EventCommandEnqueued   EventType = "command.enqueued"
)

// Event is one lifecycle notification.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent constructs an Event stamped with the current time.
func NewEvent(eventType EventType, data map[string]interface{}) *Event {
	return &Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// ToJSON serializes the event.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an event.
func FromJSON(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Publisher fans events out to subscribers. Publish must never block the
// caller on a slow or absent subscriber.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Subscribe(ctx context.Context, eventTypes ...EventType) (<-chan *Event, error)
	Close() error
}

// Subscriber is a typed event consumer (used by the WebSocket hub).
type Subscriber interface {
	OnEvent(event *Event)
	EventTypes() []EventType
}

// PlanEventData builds the data payload for a plan lifecycle event.
func PlanEventData(planID int64, name string, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"plan_id": planID,
		"name":    name,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}

// WorkerEventData builds the data payload for a worker lifecycle event.
func WorkerEventData(workerID int64, extra map[string]interface{}) map[string]interface{} {
	data := map[string]interface{}{
		"worker_id": workerID,
	}
	for k, v := range extra {
		data[k] = v
	}
	return data
}
