package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/F-kaue/WorkflowApp-sub000/internal/api/response"
	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
	"github.com/google/uuid"
)

const maxRequestBody = 64 << 10

// JobService is the job API the handlers depend on.
type JobService interface {
	SubmitJob(ctx context.Context, req models.GenerationRequest) (*models.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	MarkJobTimeout(ctx context.Context, id uuid.UUID) (*models.Job, error)
}

type submitResponse struct {
	JobID  uuid.UUID `json:"jobId"`
	Status string    `json:"status"`
}

type markTimeoutResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

// NewSubmitJobHandler returns an http.HandlerFunc for POST /api/v1/submit-job.
func NewSubmitJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeRequest(w, r)
		if !ok {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid JSON body", nil)
			return
		}

		job, err := svc.SubmitJob(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}

		response.Accepted(w, submitResponse{JobID: job.ID, Status: job.Status})
	}
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /api/v1/job-status.
func NewJobStatusHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		job, err := svc.GetJob(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}

		response.JSON(w, job)
	}
}

// NewMarkJobTimeoutHandler returns an http.HandlerFunc for
// POST /api/v1/mark-job-timeout. Calling it again, or on a finished job, is
// not an error.
func NewMarkJobTimeoutHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobIDParam(w, r)
		if !ok {
			return
		}

		job, err := svc.MarkJobTimeout(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}

		response.JSON(w, markTimeoutResponse{Success: true, Status: job.Status})
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request) (models.GenerationRequest, bool) {
	var req models.GenerationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		return req, false
	}
	return req, true
}

func jobIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("jobId"))
	if raw == "" {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "jobId is required", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "jobId must be a valid UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	e := classify(err)
	if e.Status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", r.URL.Path, "code", e.Code, "error", err)
	}
	response.Error(w, e.Status, e.Code, e.Message, nil)
}
