package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	mw "github.com/F-kaue/WorkflowApp-sub000/internal/api/middleware"
	"github.com/F-kaue/WorkflowApp-sub000/internal/api/response"
	"github.com/F-kaue/WorkflowApp-sub000/internal/generation"
	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
)

// OutcomeTrailer reports how a stream ended: complete, partial or cached.
const OutcomeTrailer = "X-Generation-Outcome"

// StreamService is the streaming API the handler depends on.
type StreamService interface {
	Stream(ctx context.Context, req models.GenerationRequest, w func(chunk string) error) (*generation.StreamOutcome, error)
}

// NewStreamGenerateHandler returns an http.HandlerFunc for
// POST /api/v1/stream-generate. The body is chunked text/plain. Failures
// before the first chunk get a plain-text error response. Once the status
// line is sent a failure aborts the connection, so the client sees a
// truncated body instead of a clean end without an outcome trailer.
func NewStreamGenerateHandler(svc StreamService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeRequest(w, r)
		if !ok {
			response.Text(w, http.StatusBadRequest, "Invalid JSON body")
			return
		}

		sw := &streamWriter{w: w, rc: http.NewResponseController(w)}
		out, err := svc.Stream(r.Context(), req, sw.write)
		if err != nil {
			if !sw.started {
				e := classify(err)
				if e.Status >= http.StatusInternalServerError {
					slog.Error("stream failed", "code", e.Code, "error", err, "request_id", mw.GetRequestID(r))
				}
				response.Text(w, e.Status, e.Message)
				return
			}
			slog.Warn("stream ended early", "error", err, "request_id", mw.GetRequestID(r))
			panic(http.ErrAbortHandler)
		}

		sw.commit()
		w.Header().Set(OutcomeTrailer, outcomeName(out))
		slog.Info("stream finished",
			"model", out.ModelUsed,
			"cached", out.Cached,
			"partial", out.Partial,
			"request_id", mw.GetRequestID(r),
		)
	}
}

// streamWriter sends the response headers lazily, on the first chunk.
type streamWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func (s *streamWriter) commit() {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Accel-Buffering", "no")
	h.Set("Trailer", OutcomeTrailer)
	s.w.WriteHeader(http.StatusOK)
}

func (s *streamWriter) write(chunk string) error {
	s.commit()
	if _, err := io.WriteString(s.w, chunk); err != nil {
		return err
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	return nil
}

func outcomeName(out *generation.StreamOutcome) string {
	switch {
	case out.Cached:
		return "cached"
	case out.Partial:
		return "partial"
	default:
		return "complete"
	}
}
