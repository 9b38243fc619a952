package models

import "time"

// LedgerEntry marks one upstream item as consumed by one flow. Uniqueness is
// per (FlowID, Source, ExternalID): the same external item may be consumed
// again by a different flow, never twice by the same one.
type LedgerEntry struct {
	FlowID      string    `json:"flow_id"     validate:"required"`
	Source      string    `json:"source"      validate:"required"`
	ExternalID  string    `json:"external_id" validate:"required"`
	JobID       string    `json:"job_id"`
	ProcessedAt time.Time `json:"processed_at"`
}
