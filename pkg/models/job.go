package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusDone       = "done"
	JobStatusError      = "error"
)

// IsTerminalStatus reports whether a job in the given status can no longer change.
func IsTerminalStatus(status string) bool {
	return status == JobStatusDone || status == JobStatusError
}

// GenerationRequest is the caller's input: the requesting organization and
// the free-text description of the service request.
type GenerationRequest struct {
	Scope       string `json:"scope"`
	RequestText string `json:"requestText"`
}

// Job tracks one asynchronous document generation. The API returns the job id on
// POST /api/v1/submit-job; the client polls GET /api/v1/job-status until the
// status is done or error.
type Job struct {
	ID              uuid.UUID `db:"id"               json:"jobId"`
	Scope           string    `db:"scope"            json:"-"`
	RequestText     string    `db:"request_text"     json:"-"`
	Status          string    `db:"status"           json:"status"`
	Message         string    `db:"message"          json:"message"`
	ProgressPercent int       `db:"progress_percent" json:"progress"`
	Result          *string   `db:"result"           json:"result,omitempty"`
	ErrorDetail     *string   `db:"error_detail"     json:"errorDetail,omitempty"`
	ModelUsed       *string   `db:"model_used"       json:"modelUsed,omitempty"`
	CreatedAt       time.Time `db:"created_at"       json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at"       json:"updatedAt"`
}

// Request returns the generation request the job was submitted with.
func (j *Job) Request() GenerationRequest {
	return GenerationRequest{Scope: j.Scope, RequestText: j.RequestText}
}
