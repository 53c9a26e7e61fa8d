package store

import (
	"context"
	"errors"
	"time"

	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrInvalidTransition is returned when a status update is not allowed from
// the job's current status, including any update to a terminal job.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// UpdateJob applies a transition to status atomically. A status equal to
	// the current one updates only message and progress.
	UpdateJob(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) (*models.Job, error)
	// FailStaleJobs moves pending and processing jobs not updated since
	// before to error and returns how many were changed.
	FailStaleJobs(ctx context.Context, before time.Time, message string) (int64, error)
}

// validTransitions lists, per target status, the statuses a job may be in.
var validTransitions = map[string][]string{
	models.JobStatusProcessing: {models.JobStatusPending, models.JobStatusProcessing},
	models.JobStatusDone:       {models.JobStatusProcessing},
	models.JobStatusError:      {models.JobStatusPending, models.JobStatusProcessing},
}

// AllowedFrom returns the statuses from which a job may move to status.
func AllowedFrom(status string) []string {
	return validTransitions[status]
}

// JobUpdate is the set of field changes carried by JobUpdateOptions. A nil
// field is left untouched.
type JobUpdate struct {
	Message     *string
	Progress    *int
	Result      *string
	ErrorDetail *string
	ModelUsed   *string
}

type JobUpdateOption func(*JobUpdate)

// NewJobUpdate collects opts into a JobUpdate.
func NewJobUpdate(opts ...JobUpdateOption) JobUpdate {
	var u JobUpdate
	for _, opt := range opts {
		opt(&u)
	}
	return u
}

func WithMessage(msg string) JobUpdateOption {
	return func(p *JobUpdate) {
		p.Message = &msg
	}
}

// WithProgress raises progress to pct. Progress never decreases.
func WithProgress(pct int) JobUpdateOption {
	return func(p *JobUpdate) {
		if pct < 0 {
			pct = 0
		}
		if pct > 100 {
			pct = 100
		}
		p.Progress = &pct
	}
}

func WithResult(content, model string) JobUpdateOption {
	return func(p *JobUpdate) {
		p.Result = &content
		if model != "" {
			p.ModelUsed = &model
		}
	}
}

func WithErrorDetail(detail string) JobUpdateOption {
	return func(p *JobUpdate) {
		p.ErrorDetail = &detail
	}
}
