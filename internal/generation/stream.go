package generation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/F-kaue/WorkflowApp-sub000/internal/ai"
	"github.com/F-kaue/WorkflowApp-sub000/internal/cache"
	"github.com/F-kaue/WorkflowApp-sub000/internal/metrics"
	"github.com/F-kaue/WorkflowApp-sub000/internal/routing"
	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
)

// StreamOutcome describes how a stream ended.
type StreamOutcome struct {
	ModelUsed string
	Cached    bool
	Partial   bool
}

// Streamer delivers a document as it is generated.
type Streamer struct {
	cache    cache.SimilarityCache
	engine   Engine
	router   *routing.Router
	hitDelay time.Duration
}

// NewStreamer creates a Streamer. hitDelay is waited before a cached
// document is sent.
func NewStreamer(sc cache.SimilarityCache, engine Engine, router *routing.Router, hitDelay time.Duration) *Streamer {
	return &Streamer{cache: sc, engine: engine, router: router, hitDelay: hitDelay}
}

// Stream generates a document for req and writes it to w piece by piece.
// Errors returned before w was first called can still be reported to the
// caller as a normal response; later errors mean the output is truncated.
func (s *Streamer) Stream(ctx context.Context, req models.GenerationRequest, w func(chunk string) error) (*StreamOutcome, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	if !s.engine.Configured() {
		return nil, ErrNotConfigured
	}
	req.Scope = strings.TrimSpace(req.Scope)
	decision := s.router.Route(req.RequestText)

	match, err := s.cache.Lookup(ctx, req.Scope, req.RequestText)
	switch {
	case err != nil:
		slog.Warn("cache lookup failed, streaming from model", "error", err)
		metrics.IncCacheLookup("stream", "error")
	case match != nil:
		metrics.IncCacheLookup("stream", "hit")
		if err := sleepCtx(ctx, s.hitDelay); err != nil {
			return nil, err
		}
		if err := w(decision.Apply(match.Content)); err != nil {
			return nil, err
		}
		metrics.IncStreamOutcome("cached")
		return &StreamOutcome{ModelUsed: CachedModel, Cached: true}, nil
	default:
		metrics.IncCacheLookup("stream", "miss")
	}

	system, prompt := ai.BuildPrompt(req, decision)
	res, err := s.engine.Stream(ctx, prompt, system, w)
	if err != nil {
		metrics.IncStreamOutcome("failed")
		return nil, err
	}

	tail := decision.Footer(res.Content)
	if res.Partial {
		tail += "\n\n" + models.PartialResultNotice
	}
	if tail != "" {
		if err := w(tail); err != nil {
			slog.Warn("writing stream footer failed", "error", err)
		}
	}

	if res.Partial {
		metrics.IncStreamOutcome("partial")
		return &StreamOutcome{ModelUsed: res.ModelUsed, Partial: true}, nil
	}

	metrics.IncStreamOutcome("complete")
	if err := s.cache.Insert(context.WithoutCancel(ctx), req.Scope, req.RequestText, res.Content+tail); err != nil {
		slog.Warn("cache insert failed", "error", err)
	}
	return &StreamOutcome{ModelUsed: res.ModelUsed}, nil
}
