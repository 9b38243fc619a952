// Package events defines event types and structures for pipeline lifecycle
// notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Kafka topic.
const Topic = "sourcepipe.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Job lifecycle events.
	JobCreatedEvent  EventType = "job.created"
	JobFinishedEvent EventType = "job.finished"
	JobFailedEvent   EventType = "job.failed"

	// Dispatch events.
	FlowDispatchedEvent EventType = "flow.dispatched"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	FlowID    string         `json:"flow_id"`
	WorkerID  string         `json:"worker_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// JobCreated announces a persisted pending job ready for asynchronous
// execution.
type JobCreated struct {
	BaseEvent

	JobID string `json:"job_id"`
	Owner string `json:"owner"`
}

func (e JobCreated) GetType() EventType {
	return JobCreatedEvent
}

type JobFinished struct {
	BaseEvent

	JobID    string        `json:"job_id"`
	Duration time.Duration `json:"duration"`
}

func (e JobFinished) GetType() EventType {
	return JobFinishedEvent
}

type JobFailed struct {
	BaseEvent

	JobID    string        `json:"job_id"`
	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (e JobFailed) GetType() EventType {
	return JobFailedEvent
}

// FlowDispatched records the outcome of one fetch-and-fan-out pass over a
// flow.
type FlowDispatched struct {
	BaseEvent

	ProjectID   string `json:"project_id,omitempty"`
	JobsCreated int    `json:"jobs_created"`
}

func (e FlowDispatched) GetType() EventType {
	return FlowDispatchedEvent
}

func NewBaseEvent(eventType EventType, flowID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		FlowID:    flowID,
		Metadata:  make(map[string]any),
	}
}
