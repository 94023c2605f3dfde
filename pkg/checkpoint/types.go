// Package checkpoint implements the per-request execution checkpoint store
// (spec C3): durable stage-by-stage progress with a terminal status, so a
// crashed process can resume or report RESUMABLE_FAILURE instead of
// silently losing a job.
package checkpoint

import "time"

// Status is the terminal or in-flight state of a checkpoint.
type Status string

const (
	StatusRunning          Status = "RUNNING"
	StatusResumableFailure Status = "RESUMABLE_FAILURE"
	StatusDone             Status = "DONE"
	StatusFailed           Status = "FAILED"
)

// StageOutcome records one stage's result within a checkpoint's history.
type StageOutcome struct {
	Stage     string         `json:"stage"`
	Success   bool           `json:"success"`
	Outputs   map[string]any `json:"outputs,omitempty"`
	Error     string         `json:"error,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Checkpoint is the full per-job durable record. Writes replace the whole
// record (spec: "atomic per checkpoint, full-record replace") rather than
// patching individual fields, so a reader never observes a half-updated
// stage history.
type Checkpoint struct {
	JobID     string                  `json:"job_id"`
	JobType   string                  `json:"job_type"`
	Inputs    map[string]any          `json:"inputs"`
	Status    Status                  `json:"status"`
	Stages    map[string]StageOutcome `json:"stages"`
	Reason    string                  `json:"reason,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}
