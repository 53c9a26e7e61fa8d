// Package client talks to the generation API and implements the caller-side
// deadline, polling and stream supervision.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
)

// Sentinel errors for transport failures.
var (
	ErrUnreachable = errors.New("generation api unreachable")
	ErrTimeout     = errors.New("generation api timeout")
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (%d %s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// Config holds the client's endpoint, credentials and timing policy.
type Config struct {
	BaseURL string
	APIKey  string

	// Deadline bounds a whole Generate call.
	Deadline     time.Duration
	PollInterval time.Duration

	ReadTimeout        time.Duration
	StallTimeout       time.Duration
	StallCheckInterval time.Duration
	MinPartialLength   int

	HTTPClient *http.Client
}

func (c Config) withDefaults() Config {
	if c.Deadline <= 0 {
		c.Deadline = 30 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 1500 * time.Millisecond
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 8 * time.Second
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = 10 * time.Second
	}
	if c.StallCheckInterval <= 0 {
		c.StallCheckInterval = 3 * time.Second
	}
	if c.MinPartialLength <= 0 {
		c.MinPartialLength = 100
	}
	if c.HTTPClient == nil {
		// no client timeout; every call is bounded by its context
		c.HTTPClient = &http.Client{}
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c
}

// Client calls the generation API.
type Client struct {
	cfg Config
}

// New creates a Client.
func New(cfg Config) *Client {
	return &Client{cfg: cfg.withDefaults()}
}

type submitResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

type markTimeoutResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

// SubmitJob sends POST /api/v1/submit-job and returns the new job id.
func (c *Client) SubmitJob(ctx context.Context, req models.GenerationRequest) (string, error) {
	var out submitResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/submit-job", nil, req, &out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

// JobStatus sends GET /api/v1/job-status.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := c.do(ctx, http.MethodGet, "/api/v1/job-status", url.Values{"jobId": {jobID}}, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkJobTimeout sends POST /api/v1/mark-job-timeout and returns the job's
// status afterwards.
func (c *Client) MarkJobTimeout(ctx context.Context, jobID string) (string, error) {
	var out markTimeoutResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/mark-job-timeout", url.Values{"jobId": {jobID}}, nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}

	env := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

// decodeAPIError reads either the JSON error envelope or a plain-text body.
func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}

	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
