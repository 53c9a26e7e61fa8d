package api

import (
	"net/http"

	mw "github.com/F-kaue/WorkflowApp-sub000/internal/api/middleware"
	"github.com/F-kaue/WorkflowApp-sub000/internal/api/response"
	"github.com/go-chi/chi/v5"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler         http.HandlerFunc
	SubmitJobHandler      http.HandlerFunc
	JobStatusHandler      http.HandlerFunc
	MarkJobTimeoutHandler http.HandlerFunc
	StreamGenerateHandler http.HandlerFunc

	// MetricsHandler serves Prometheus metrics. Nil leaves /metrics unrouted.
	MetricsHandler http.Handler
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public endpoints
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/submit-job", orNotImplemented(deps.SubmitJobHandler))
		r.Get("/api/v1/job-status", orNotImplemented(deps.JobStatusHandler))
		r.Post("/api/v1/mark-job-timeout", orNotImplemented(deps.MarkJobTimeoutHandler))
		r.Post("/api/v1/stream-generate", orNotImplemented(deps.StreamGenerateHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
