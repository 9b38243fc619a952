package models

import "time"

// FlowStatus represents whether a flow participates in scheduling.
type FlowStatus string

const (
	FlowStatusActive FlowStatus = "active"
	FlowStatusPaused FlowStatus = "paused"
)

// ScheduleMode determines how a flow resolves its schedule against the
// parent project.
type ScheduleMode string

const (
	// ScheduleModeInherit runs the flow whenever the parent project fires.
	ScheduleModeInherit ScheduleMode = "inherit"
	// ScheduleModeCustom runs the flow on its own cron expression.
	ScheduleModeCustom ScheduleMode = "custom"
	// ScheduleModeManual never auto-triggers the flow.
	ScheduleModeManual ScheduleMode = "manual"
)

// StepConfig describes one downstream pipeline step (transform or publish)
// of a flow.
type StepConfig struct {
	ID            string         `json:"id"   validate:"required"`
	Type          string         `json:"type" validate:"required"`
	Configuration map[string]any `json:"configuration"`
}

// Flow is a configured instance of a fetch→transform→publish pipeline that
// can be triggered independently. Its ID doubles as the dedup ledger scope.
type Flow struct {
	ID             string       `json:"id"            validate:"required"`
	ProjectID      string       `json:"project_id"    validate:"required"`
	Name           string       `json:"name"          validate:"required,min=3"`
	Owner          string       `json:"owner"`
	FetcherID      string       `json:"fetcher_id"    validate:"required"`
	Configuration  map[string]any `json:"configuration"`
	Steps          []StepConfig `json:"steps"`
	ScheduleMode   ScheduleMode `json:"schedule_mode" validate:"required,oneof=inherit custom manual"`
	CronExpression string       `json:"cron_expression,omitempty"`
	Status         FlowStatus   `json:"status"        validate:"required,oneof=active paused"`
	Schedulable    bool         `json:"schedulable"`
	LastRunAt      *time.Time   `json:"last_run_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// SchedulableOnProjectTrigger reports whether a parent project trigger should
// fan out to this flow. Only flows that inherit the parent schedule, are
// active, and have a schedulable fetch mode are candidates.
func (f *Flow) SchedulableOnProjectTrigger() bool {
	return f.ScheduleMode == ScheduleModeInherit &&
		f.Status == FlowStatusActive &&
		f.Schedulable
}

// SchedulableOnFlowTrigger reports whether a flow-level trigger may run this
// flow. The same eligibility checks apply, scoped to the single flow, except
// the schedule mode must be the flow's own.
func (f *Flow) SchedulableOnFlowTrigger() bool {
	return f.ScheduleMode == ScheduleModeCustom &&
		f.Status == FlowStatusActive &&
		f.Schedulable
}

// Project is the parent unit that owns a set of flows and carries the
// schedule they may inherit.
type Project struct {
	ID             string     `json:"id"              validate:"required"`
	Name           string     `json:"name"            validate:"required,min=3"`
	Owner          string     `json:"owner"`
	CronExpression string     `json:"cron_expression" validate:"required"`
	Status         FlowStatus `json:"status"          validate:"required,oneof=active paused"`
	LastRunAt      *time.Time `json:"last_run_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
