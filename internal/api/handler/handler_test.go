package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/F-kaue/WorkflowApp-sub000/internal/ai"
	"github.com/F-kaue/WorkflowApp-sub000/internal/client"
	"github.com/F-kaue/WorkflowApp-sub000/internal/generation"
	"github.com/F-kaue/WorkflowApp-sub000/internal/store"
	"github.com/F-kaue/WorkflowApp-sub000/internal/worker"
	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock services ---

type mockJobs struct {
	submit  func(models.GenerationRequest) (*models.Job, error)
	get     func(uuid.UUID) (*models.Job, error)
	timeout func(uuid.UUID) (*models.Job, error)
}

func (m *mockJobs) SubmitJob(_ context.Context, req models.GenerationRequest) (*models.Job, error) {
	return m.submit(req)
}

func (m *mockJobs) GetJob(_ context.Context, id uuid.UUID) (*models.Job, error) {
	return m.get(id)
}

func (m *mockJobs) MarkJobTimeout(_ context.Context, id uuid.UUID) (*models.Job, error) {
	return m.timeout(id)
}

type mockStreamer struct {
	fn func(w func(string) error) (*generation.StreamOutcome, error)
}

func (m *mockStreamer) Stream(_ context.Context, _ models.GenerationRequest, w func(string) error) (*generation.StreamOutcome, error) {
	return m.fn(w)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

// --- helpers ---

func jsonReq(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(method, path, bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func parseData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env), rec.Body.String())
	return env.Data
}

func parseErrCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Error.Code
}

// --- submit-job ---

func TestSubmitJob_202(t *testing.T) {
	id := uuid.New()
	var got models.GenerationRequest
	svc := &mockJobs{submit: func(req models.GenerationRequest) (*models.Job, error) {
		got = req
		return &models.Job{ID: id, Status: models.JobStatusPending}, nil
	}}

	rec := httptest.NewRecorder()
	NewSubmitJobHandler(svc)(rec, jsonReq(t, http.MethodPost, "/api/v1/submit-job",
		map[string]string{"scope": "SindicatoX", "requestText": "backup"}))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	data := parseData(t, rec)
	assert.Equal(t, id.String(), data["jobId"])
	assert.Equal(t, "pending", data["status"])
	assert.Equal(t, models.GenerationRequest{Scope: "SindicatoX", RequestText: "backup"}, got)
}

func TestSubmitJob_InvalidJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/submit-job", strings.NewReader("{"))
	NewSubmitJobHandler(&mockJobs{})(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", parseErrCode(t, rec))
}

func TestSubmitJob_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", fmt.Errorf("%w: scope is required", generation.ErrValidation), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not configured", generation.ErrNotConfigured, http.StatusInternalServerError, "CONFIGURATION_ERROR"},
		{"queue full", fmt.Errorf("scheduling job: %w", worker.ErrQueueFull), http.StatusServiceUnavailable, "QUEUE_FULL"},
		{"store down", errors.New("connection refused"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockJobs{submit: func(models.GenerationRequest) (*models.Job, error) { return nil, tt.err }}
			rec := httptest.NewRecorder()
			NewSubmitJobHandler(svc)(rec, jsonReq(t, http.MethodPost, "/api/v1/submit-job",
				map[string]string{"scope": "S", "requestText": "t"}))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, parseErrCode(t, rec))
		})
	}
}

// --- job-status ---

func TestJobStatus_200(t *testing.T) {
	id := uuid.New()
	result := "# Documento\n\nResponsável Principal: Walter"
	now := time.Now().UTC()
	svc := &mockJobs{get: func(got uuid.UUID) (*models.Job, error) {
		require.Equal(t, id, got)
		return &models.Job{ID: id, Scope: "S", RequestText: "segredo", Status: models.JobStatusDone,
			Message: "ok", ProgressPercent: 100, Result: &result, CreatedAt: now, UpdatedAt: now}, nil
	}}

	rec := httptest.NewRecorder()
	NewJobStatusHandler(svc)(rec, httptest.NewRequest(http.MethodGet, "/api/v1/job-status?jobId="+id.String(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	data := parseData(t, rec)
	assert.Equal(t, "done", data["status"])
	assert.Equal(t, result, data["result"])
	assert.Equal(t, float64(100), data["progress"])
	assert.NotEmpty(t, data["updatedAt"])
	assert.NotContains(t, data, "requestText")
}

func TestJobStatus_BadParams(t *testing.T) {
	for _, q := range []string{"", "?jobId=", "?jobId=not-a-uuid"} {
		rec := httptest.NewRecorder()
		NewJobStatusHandler(&mockJobs{})(rec, httptest.NewRequest(http.MethodGet, "/api/v1/job-status"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestJobStatus_404(t *testing.T) {
	svc := &mockJobs{get: func(uuid.UUID) (*models.Job, error) { return nil, store.ErrNotFound }}
	rec := httptest.NewRecorder()
	NewJobStatusHandler(svc)(rec, httptest.NewRequest(http.MethodGet, "/api/v1/job-status?jobId="+uuid.NewString(), nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "JOB_NOT_FOUND", parseErrCode(t, rec))
}

// --- mark-job-timeout ---

func TestMarkJobTimeout_200(t *testing.T) {
	svc := &mockJobs{timeout: func(id uuid.UUID) (*models.Job, error) {
		return &models.Job{ID: id, Status: models.JobStatusDone}, nil
	}}
	rec := httptest.NewRecorder()
	NewMarkJobTimeoutHandler(svc)(rec, httptest.NewRequest(http.MethodPost, "/api/v1/mark-job-timeout?jobId="+uuid.NewString(), nil))

	require.Equal(t, http.StatusOK, rec.Code)
	data := parseData(t, rec)
	assert.Equal(t, true, data["success"])
	assert.Equal(t, "done", data["status"])
}

func TestMarkJobTimeout_404(t *testing.T) {
	svc := &mockJobs{timeout: func(uuid.UUID) (*models.Job, error) { return nil, store.ErrNotFound }}
	rec := httptest.NewRecorder()
	NewMarkJobTimeoutHandler(svc)(rec, httptest.NewRequest(http.MethodPost, "/api/v1/mark-job-timeout?jobId="+uuid.NewString(), nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// --- stream-generate ---

func TestStreamGenerate_Chunks(t *testing.T) {
	svc := &mockStreamer{fn: func(w func(string) error) (*generation.StreamOutcome, error) {
		for _, c := range []string{"# Doc", "umento\n", "Responsável Principal: Walter"} {
			if err := w(c); err != nil {
				return nil, err
			}
		}
		return &generation.StreamOutcome{ModelUsed: "gpt-4o"}, nil
	}}

	rec := httptest.NewRecorder()
	NewStreamGenerateHandler(svc)(rec, jsonReq(t, http.MethodPost, "/api/v1/stream-generate",
		map[string]string{"scope": "S", "requestText": "t"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, rec.Flushed)
	assert.Equal(t, "# Documento\nResponsável Principal: Walter", rec.Body.String())
	assert.Equal(t, "complete", rec.Result().Trailer.Get(OutcomeTrailer))
}

func TestStreamGenerate_ErrorBeforeFirstByte(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", generation.ErrValidation, http.StatusBadRequest},
		{"not configured", generation.ErrNotConfigured, http.StatusInternalServerError},
		{"rate limited", &ai.InvocationError{Kind: models.ErrorKindRateLimited}, http.StatusTooManyRequests},
		{"quota", &ai.InvocationError{Kind: models.ErrorKindQuotaExceeded}, http.StatusPaymentRequired},
		{"exhausted", &ai.InvocationError{Kind: models.ErrorKindModelUnavailable}, http.StatusBadGateway},
		{"upstream bad request", &ai.InvocationError{Kind: models.ErrorKindBadRequest}, http.StatusBadRequest},
		{"timeout", &ai.InvocationError{Kind: models.ErrorKindTimeout}, http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockStreamer{fn: func(func(string) error) (*generation.StreamOutcome, error) { return nil, tt.err }}
			rec := httptest.NewRecorder()
			NewStreamGenerateHandler(svc)(rec, jsonReq(t, http.MethodPost, "/api/v1/stream-generate",
				map[string]string{"scope": "S", "requestText": "t"}))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
			assert.NotEmpty(t, rec.Body.String())
		})
	}
}

func TestStreamGenerate_ErrorAfterFirstByteAbortsConnection(t *testing.T) {
	svc := &mockStreamer{fn: func(w func(string) error) (*generation.StreamOutcome, error) {
		require.NoError(t, w("parcial"))
		return nil, &ai.InvocationError{Kind: models.ErrorKindTimeout, Err: ai.ErrPartialTooShort}
	}}

	rec := httptest.NewRecorder()
	req := jsonReq(t, http.MethodPost, "/api/v1/stream-generate", map[string]string{"scope": "S", "requestText": "t"})
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		NewStreamGenerateHandler(svc)(rec, req)
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "parcial", rec.Body.String())
	assert.Empty(t, rec.Result().Trailer.Get(OutcomeTrailer))
}

func TestStreamGenerate_ErrorAfterFirstByteIsAnErrorForTheClient(t *testing.T) {
	svc := &mockStreamer{fn: func(w func(string) error) (*generation.StreamOutcome, error) {
		assert.NoError(t, w(strings.Repeat("z", 20)))
		return nil, &ai.InvocationError{Kind: models.ErrorKindTimeout, Err: ai.ErrPartialTooShort}
	}}
	srv := httptest.NewServer(NewStreamGenerateHandler(svc))
	defer srv.Close()

	c := client.New(client.Config{BaseURL: srv.URL, Deadline: 5 * time.Second})
	res, err := c.GenerateStreaming(context.Background(), models.GenerationRequest{Scope: "S", RequestText: "t"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, client.ErrStreamInterrupted)
}

func TestStreamGenerate_PartialTrailer(t *testing.T) {
	svc := &mockStreamer{fn: func(w func(string) error) (*generation.StreamOutcome, error) {
		require.NoError(t, w(strings.Repeat("x", 120)))
		return &generation.StreamOutcome{ModelUsed: "gpt-4o", Partial: true}, nil
	}}

	rec := httptest.NewRecorder()
	NewStreamGenerateHandler(svc)(rec, jsonReq(t, http.MethodPost, "/api/v1/stream-generate",
		map[string]string{"scope": "S", "requestText": "t"}))

	assert.Equal(t, "partial", rec.Result().Trailer.Get(OutcomeTrailer))
}

func TestStreamGenerate_InvalidJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	NewStreamGenerateHandler(&mockStreamer{})(rec, httptest.NewRequest(http.MethodPost, "/api/v1/stream-generate", strings.NewReader("nope")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid JSON body", rec.Body.String())
}

// --- health ---

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(pinger{}, pinger{})(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", parseData(t, rec)["status"])

	rec = httptest.NewRecorder()
	NewHealthHandler(pinger{}, pinger{err: errors.New("down")})(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "DEGRADED", parseErrCode(t, rec))
}
