package model

import "time"

// RunStatus represents the current state of an ingestion run.
type RunStatus string

const (
	RunStatusDiscovering RunStatus = "discovering"
	RunStatusScheduling  RunStatus = "scheduling"
	RunStatusProcessing  RunStatus = "processing"
	RunStatusFinalizing  RunStatus = "finalizing"
	RunStatusComplete    RunStatus = "complete"
	RunStatusFailed      RunStatus = "failed"
	// RunStatusSuspended means the run hit its deadline between items and
	// persisted its job list; it can be resumed from the first non-terminal job.
	RunStatusSuspended RunStatus = "suspended"
)

// Run records one pipeline execution, including the mutable job list that
// backs the resume contract.
type Run struct {
	ID        string      `json:"id"`
	Status    RunStatus   `json:"status"`
	Jobs      []ExportJob `json:"jobs,omitempty"`
	Summary   *RunSummary `json:"summary,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Resumable reports whether the run can re-enter the processing phase.
func (r Run) Resumable() bool {
	return r.Status == RunStatusSuspended && len(r.Jobs) > 0
}

// RunSummary is the structured process-boundary output. A run always yields
// one, even under partial failure.
type RunSummary struct {
	Scheduled       int         `json:"scheduled"`
	Succeeded       int         `json:"succeeded"`
	Failed          int         `json:"failed"`
	TotalRows       int         `json:"total_rows"`
	UnassignedCount int         `json:"unassigned_count"`
	Errors          []ItemError `json:"errors,omitempty"`
}

// ItemError records one per-item failure captured at the orchestrator
// boundary. Item failures never abort the run.
type ItemError struct {
	Phase    string `json:"phase"`
	ReportID string `json:"report_id,omitempty"`
	JobID    string `json:"job_id,omitempty"`
	Message  string `json:"message"`
}
