package models

import (
	"time"
)

// RunStatus tracks the lifecycle of an ingestion run
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run kinds
const (
	RunKindLocal  = "local"
	RunKindGitHub = "github"
	RunKindIndex  = "index"
)

// Done reports whether the run reached a terminal state.
func (s RunStatus) Done() bool {
	return s == RunCompleted || s == RunFailed
}

// IngestStats summarizes what a pipeline run produced
type IngestStats struct {
	Documents      int `json:"documents"`
	Skipped        int `json:"skipped"`
	Chunks         int `json:"chunks,omitempty"`
	GraphDocuments int `json:"graph_documents"`
	Nodes          int `json:"nodes"`
	Relationships  int `json:"relationships"`
}

// Run is one ingestion recorded in the run ledger
type Run struct {
	ID            int          `json:"id"`
	Kind          string       `json:"kind"`
	Target        string       `json:"target"`
	Status        RunStatus    `json:"status"`
	Error         string       `json:"error,omitempty"`
	Stats         *IngestStats `json:"stats,omitempty"`
	CorrelationID string       `json:"correlation_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	StartedAt     *time.Time   `json:"started_at,omitempty"`
	FinishedAt    *time.Time   `json:"finished_at,omitempty"`
}

// RunFilter narrows run listings; empty fields match everything
type RunFilter struct {
	Kind   string
	Status RunStatus
	Limit  int
}

// Match reports whether the run passes the filter.
func (f RunFilter) Match(r *Run) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

// ErrorBody is the payload of every error response. Details lists field
// errors when a request body fails validation.
type ErrorBody struct {
	Message string   `json:"message"`
	Status  int      `json:"status"`
	Details []string `json:"details,omitempty"`
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// SuccessResponse represents a generic success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RunAccepted is returned when a background run is started
type RunAccepted struct {
	Message string `json:"message"`
	RunID   int    `json:"run_id"`
	Status  string `json:"status"`
}
