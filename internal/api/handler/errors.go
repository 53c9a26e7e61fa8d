package handler

import (
	"errors"
	"net/http"

	"github.com/F-kaue/WorkflowApp-sub000/internal/ai"
	"github.com/F-kaue/WorkflowApp-sub000/internal/generation"
	"github.com/F-kaue/WorkflowApp-sub000/internal/store"
	"github.com/F-kaue/WorkflowApp-sub000/internal/worker"
	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
)

// apiError is an error translated for HTTP clients.
type apiError struct {
	Status  int
	Code    string
	Message string
}

// classify maps service and upstream errors to an HTTP status, an error code
// and a message safe to show to users.
func classify(err error) apiError {
	switch {
	case errors.Is(err, generation.ErrValidation):
		return apiError{http.StatusBadRequest, "VALIDATION_ERROR", err.Error()}
	case errors.Is(err, generation.ErrNotConfigured):
		return apiError{http.StatusInternalServerError, "CONFIGURATION_ERROR", "No AI model is configured on the server"}
	case errors.Is(err, store.ErrNotFound):
		return apiError{http.StatusNotFound, "JOB_NOT_FOUND", "Job not found"}
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrPoolClosed):
		return apiError{http.StatusServiceUnavailable, "QUEUE_FULL", "The server is busy, try again shortly"}
	}

	kind := ai.KindOf(err)
	msg := generation.UserMessage(kind)
	switch kind {
	case models.ErrorKindRateLimited:
		return apiError{http.StatusTooManyRequests, "UPSTREAM_RATE_LIMITED", msg}
	case models.ErrorKindQuotaExceeded:
		return apiError{http.StatusPaymentRequired, "UPSTREAM_QUOTA_EXCEEDED", msg}
	case models.ErrorKindModelUnavailable, models.ErrorKindServer:
		return apiError{http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", msg}
	case models.ErrorKindBadRequest:
		return apiError{http.StatusBadRequest, "UPSTREAM_BAD_REQUEST", msg}
	case models.ErrorKindTimeout:
		return apiError{http.StatusGatewayTimeout, "TIMEOUT", msg}
	default:
		return apiError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}
	}
}
