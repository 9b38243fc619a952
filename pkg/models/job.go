package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

var (
	// ErrJobTerminal is returned when a status transition is attempted on a
	// completed or failed job.
	ErrJobTerminal = errors.New("job is in a terminal state")

	// ErrJobNotPending is returned when a job is started twice.
	ErrJobNotPending = errors.New("job is not pending")
)

// Job is a durable, single-item unit of asynchronous work. Exactly one
// DataPacket per job: multi-item fetch results are fanned out into multiple
// jobs, never batched.
type Job struct {
	ID          string          `json:"id"          validate:"required"`
	FlowID      string          `json:"flow_id"     validate:"required"`
	Owner       string          `json:"owner"`
	BaseConfig  json.RawMessage `json:"base_config"`
	Payload     json.RawMessage `json:"payload"     validate:"required"`
	Status      JobStatus       `json:"status"      validate:"required"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// NewJob creates a pending job carrying one serialized packet and an
// immutable snapshot of the flow configuration at trigger time.
func NewJob(flowID, owner string, baseConfig json.RawMessage, payload json.RawMessage) *Job {
	return &Job{
		ID:         uuid.New().String(),
		FlowID:     flowID,
		Owner:      owner,
		BaseConfig: baseConfig,
		Payload:    payload,
		Status:     JobStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
}

// Packet deserializes the job payload.
func (j *Job) Packet() (*DataPacket, error) {
	var packet DataPacket
	if err := json.Unmarshal(j.Payload, &packet); err != nil {
		return nil, err
	}

	return &packet, nil
}

// Terminal reports whether the job has reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// Start transitions the job from pending to running.
func (j *Job) Start() error {
	if j.Terminal() {
		return ErrJobTerminal
	}

	if j.Status != JobStatusPending {
		return ErrJobNotPending
	}

	j.Status = JobStatusRunning

	return nil
}

// Complete transitions the job to completed. Terminal states are immutable.
func (j *Job) Complete(now time.Time) error {
	if j.Terminal() {
		return ErrJobTerminal
	}

	j.Status = JobStatusCompleted
	j.CompletedAt = &now

	return nil
}

// Fail transitions the job to failed, recording the cause.
func (j *Job) Fail(now time.Time, cause error) error {
	if j.Terminal() {
		return ErrJobTerminal
	}

	j.Status = JobStatusFailed
	j.CompletedAt = &now

	if cause != nil {
		j.Error = cause.Error()
	}

	return nil
}
