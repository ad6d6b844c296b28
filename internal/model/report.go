// Package model defines the domain types shared across the ingestion and
// attribution pipeline.
package model

import (
	"strings"
	"time"
)

// ReportDescriptor identifies a report in the upstream catalog. Produced by
// discovery, consumed by scheduling; never mutated after discovery.
type ReportDescriptor struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Accessible bool   `json:"accessible"`
}

// JobStatus is the canonical lifecycle state of an export job. Upstream
// status strings are normalized to these values at the API boundary only.
type JobStatus string

const (
	JobStatusScheduled JobStatus = "scheduled"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimedOut  JobStatus = "timed_out"
)

// Terminal reports whether the status ends the job lifecycle. Polling stops
// on the first terminal status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusTimedOut:
		return true
	default:
		return false
	}
}

// rank orders statuses along the lifecycle so transitions stay monotonic.
func (s JobStatus) rank() int {
	switch s {
	case JobStatusScheduled:
		return 0
	case JobStatusRunning:
		return 1
	case JobStatusCompleted, JobStatusFailed, JobStatusTimedOut:
		return 2
	default:
		return -1
	}
}

// NormalizeJobStatus maps an upstream status string ("QUEUED", "Completed",
// "FAILED", ...) to the canonical enum. Unknown strings normalize to running
// so the poller keeps waiting rather than inventing a terminal state.
func NormalizeJobStatus(raw string) JobStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "scheduled", "pending":
		return JobStatusScheduled
	case "running", "in_progress", "in progress", "processing":
		return JobStatusRunning
	case "completed", "complete", "done", "success":
		return JobStatusCompleted
	case "failed", "error", "cancelled", "canceled":
		return JobStatusFailed
	default:
		return JobStatusRunning
	}
}

// ExportJob tracks a scheduled export through its lifecycle. Mutated only by
// the poller (via Advance), transitions are monotonic.
type ExportJob struct {
	ReportID       string     `json:"report_id"`
	ReportName     string     `json:"report_name,omitempty"`
	JobID          string     `json:"job_id"`
	Status         JobStatus  `json:"status"`
	ResultLocation string     `json:"result_location,omitempty"`
	Error          string     `json:"error,omitempty"`
	ScheduledAt    time.Time  `json:"scheduled_at"`
	DateRange      *DateRange `json:"date_range,omitempty"`
}

// DateRange bounds an export request. Formatted upstream as
// YYYY-MM-DDTHH:mm:ssZ with no sub-second precision.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Advance applies a status update, ignoring any transition that would move
// the job backwards in its lifecycle. Returns true if the update was applied.
func (j *ExportJob) Advance(next ExportJob) bool {
	if next.Status.rank() < j.Status.rank() {
		return false
	}
	if j.Status.Terminal() && next.Status != j.Status {
		return false
	}
	j.Status = next.Status
	if next.ResultLocation != "" {
		j.ResultLocation = next.ResultLocation
	}
	if next.Error != "" {
		j.Error = next.Error
	}
	return true
}
