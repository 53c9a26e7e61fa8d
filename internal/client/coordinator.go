package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
)

const outcomeTrailer = "X-Generation-Outcome"

var (
	ErrDeadline          = errors.New("generation did not finish before the deadline")
	ErrStreamInterrupted = errors.New("stream ended before enough content was received")
)

// JobFailedError reports a job that reached the error status.
type JobFailedError struct {
	JobID   string
	Message string
	Detail  string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Message)
}

// Result is a finished generation as seen by the caller.
type Result struct {
	Content   string
	JobID     string
	ModelUsed string
	Partial   bool
	Cached    bool
}

// GeneratePolling submits a job and polls its status until it is terminal or
// the deadline passes. A job abandoned at the deadline is marked as timed out
// on the server so it does not linger as pending.
func (c *Client) GeneratePolling(ctx context.Context, req models.GenerationRequest) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Deadline)
	defer cancel()

	jobID, err := c.SubmitJob(ctx, req)
	if err != nil {
		return nil, deadlineOr(ctx, err)
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.abandon(ctx, jobID)
			return nil, fmt.Errorf("job %s: %w", jobID, deadlineOr(ctx, ctx.Err()))
		case <-ticker.C:
		}

		job, err := c.JobStatus(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				c.abandon(ctx, jobID)
				return nil, fmt.Errorf("job %s: %w", jobID, deadlineOr(ctx, ctx.Err()))
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError {
				return nil, err
			}
			slog.Warn("polling job status failed", "job_id", jobID, "error", err)
			continue
		}

		switch job.Status {
		case models.JobStatusDone:
			res := &Result{JobID: jobID}
			if job.Result != nil {
				res.Content = *job.Result
			}
			if job.ModelUsed != nil {
				res.ModelUsed = *job.ModelUsed
				res.Cached = *job.ModelUsed == "cache"
			}
			return res, nil
		case models.JobStatusError:
			failed := &JobFailedError{JobID: jobID, Message: job.Message}
			if job.ErrorDetail != nil {
				failed.Detail = *job.ErrorDetail
			}
			return nil, failed
		}
	}
}

// abandon tells the server the caller stopped waiting for jobID.
func (c *Client) abandon(ctx context.Context, jobID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	status, err := c.MarkJobTimeout(ctx, jobID)
	if err != nil {
		slog.Warn("marking job as timed out failed", "job_id", jobID, "error", err)
		return
	}
	slog.Info("job abandoned", "job_id", jobID, "status", status)
}

type readResult struct {
	data string
	err  error
}

// GenerateStreaming opens a streaming generation and reads it to the end.
// Every read is bounded by ReadTimeout and a separate ticker watches for
// stalls. A stream that breaks off after at least MinPartialLength
// characters is returned as a partial result.
func (c *Client) GenerateStreaming(ctx context.Context, req models.GenerationRequest) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Deadline)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/v1/stream-generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, deadlineOr(ctx, classifyError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeAPIError(resp)
	}

	return c.readStream(ctx, resp)
}

func (c *Client) readStream(ctx context.Context, resp *http.Response) (*Result, error) {
	reads := make(chan readResult)
	done := make(chan struct{})
	defer close(done)

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			if n == 0 && err == nil {
				continue
			}
			select {
			case reads <- readResult{data: string(buf[:n]), err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	readTimer := time.NewTimer(c.cfg.ReadTimeout)
	defer readTimer.Stop()
	stallCheck := time.NewTicker(c.cfg.StallCheckInterval)
	defer stallCheck.Stop()

	var (
		content  strings.Builder
		lastData = time.Now()
	)

	for {
		select {
		case <-ctx.Done():
			return c.interrupted(content.String(), deadlineOr(ctx, ctx.Err()))

		case <-readTimer.C:
			return c.interrupted(content.String(), fmt.Errorf("%w: no data for %s", ErrTimeout, c.cfg.ReadTimeout))

		case <-stallCheck.C:
			if content.Len() > 0 && time.Since(lastData) >= c.cfg.StallTimeout {
				return c.interrupted(content.String(), fmt.Errorf("stream stalled for %s", time.Since(lastData).Round(time.Millisecond)))
			}

		case r := <-reads:
			if r.data != "" {
				content.WriteString(r.data)
				lastData = time.Now()
				readTimer.Reset(c.cfg.ReadTimeout)
			}
			if errors.Is(r.err, io.EOF) {
				outcome := resp.Trailer.Get(outcomeTrailer)
				if outcome == "" {
					return c.interrupted(content.String(), errors.New("stream closed without an outcome"))
				}
				return finished(content.String(), outcome)
			}
			if r.err != nil {
				return c.interrupted(content.String(), classifyError(r.err))
			}
		}
	}
}

func finished(content, outcome string) (*Result, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: empty body", ErrStreamInterrupted)
	}
	return &Result{
		Content: content,
		Partial: outcome == "partial" || strings.Contains(content, models.PartialResultNotice),
		Cached:  outcome == "cached",
	}, nil
}

// interrupted accepts what was received so far when it is long enough.
func (c *Client) interrupted(content string, cause error) (*Result, error) {
	n := utf8.RuneCountInString(content)
	if n < c.cfg.MinPartialLength {
		if errors.Is(cause, ErrDeadline) {
			return nil, cause
		}
		return nil, fmt.Errorf("%w (%d chars): %w", ErrStreamInterrupted, n, cause)
	}

	slog.Warn("accepting partial stream", "chars", n, "cause", cause)
	if !strings.Contains(content, models.PartialResultNotice) {
		content += "\n\n" + models.PartialResultNotice
	}
	return &Result{Content: content, Partial: true}, nil
}

// deadlineOr reports ErrDeadline when ctx ran out of time, and err otherwise.
func deadlineOr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrDeadline, err)
	}
	return err
}
