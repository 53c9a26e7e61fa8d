// Package generation turns service requests into documents, either as
// persisted background jobs or as a live stream, sharing one similarity cache
// and one invocation engine.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/F-kaue/WorkflowApp-sub000/internal/ai"
	"github.com/F-kaue/WorkflowApp-sub000/internal/cache"
	"github.com/F-kaue/WorkflowApp-sub000/internal/metrics"
	"github.com/F-kaue/WorkflowApp-sub000/internal/routing"
	"github.com/F-kaue/WorkflowApp-sub000/internal/store"
	"github.com/F-kaue/WorkflowApp-sub000/internal/worker"
	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
	"github.com/google/uuid"
)

// CachedModel is recorded as the model of jobs served from the cache.
const CachedModel = "cache"

const (
	msgQueued      = "Solicitação recebida. Aguardando processamento."
	msgProcessing  = "Processando solicitação."
	msgAnalyzing   = "Analisando a solicitação."
	msgGenerating  = "Gerando documento com IA."
	msgReviewing   = "Documento gerado. Revisando conteúdo."
	msgFinalizing  = "Finalizando documento."
	msgDone        = "Documento gerado com sucesso."
	msgCached      = "Documento recuperado de uma solicitação semelhante."
	msgOverloaded  = "O servidor está sobrecarregado. Tente novamente em instantes."
	msgClientGone  = "Tempo esgotado: o cliente deixou de aguardar o resultado."
	msgStale       = "O processamento foi interrompido. Envie a solicitação novamente."
	maxErrorDetail = 500

	storeWriteTimeout = 5 * time.Second
)

// Engine is the part of ai.Engine the generation paths depend on.
type Engine interface {
	Configured() bool
	Generate(ctx context.Context, prompt, systemPrompt string) (*ai.Result, error)
	Stream(ctx context.Context, prompt, systemPrompt string, sink func(delta string) error) (*ai.Result, error)
}

// Submitter schedules background work.
type Submitter interface {
	Submit(task worker.Task) error
}

// Options tunes the job path.
type Options struct {
	// CacheHitDelay is waited before a cached document is published.
	CacheHitDelay time.Duration
	// StaleAfter is how long an active job may go without updates before the
	// reaper fails it.
	StaleAfter   time.Duration
	ReapInterval time.Duration
}

// Service drives jobs from submission to a terminal state.
type Service struct {
	store  store.Store
	cache  cache.SimilarityCache
	engine Engine
	router *routing.Router
	pool   Submitter
	opts   Options

	// running holds the cancel func of each job currently being generated.
	running sync.Map
}

// NewService creates a new Service.
func NewService(st store.Store, sc cache.SimilarityCache, engine Engine, router *routing.Router, pool Submitter, opts Options) *Service {
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 5 * time.Minute
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = time.Minute
	}
	return &Service{
		store:  st,
		cache:  sc,
		engine: engine,
		router: router,
		pool:   pool,
		opts:   opts,
	}
}

// SubmitJob creates a pending job and hands it to the worker pool. It returns
// without waiting for generation. When the pool is saturated the job is
// stored as failed and the returned error wraps worker.ErrQueueFull.
func (s *Service) SubmitJob(ctx context.Context, req models.GenerationRequest) (*models.Job, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	if !s.engine.Configured() {
		return nil, ErrNotConfigured
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:          uuid.New(),
		Scope:       strings.TrimSpace(req.Scope),
		RequestText: req.RequestText,
		Status:      models.JobStatusPending,
		Message:     msgQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating job: %w", err)
	}

	jobReq := job.Request()
	err := s.pool.Submit(func(ctx context.Context) error {
		s.runJob(ctx, job.ID, jobReq)
		return nil
	})
	if err != nil {
		slog.Warn("job rejected by worker pool", "job_id", job.ID, "error", err)
		_, _ = s.store.UpdateJob(ctx, job.ID, models.JobStatusError,
			store.WithMessage(msgOverloaded), store.WithErrorDetail(err.Error()))
		metrics.IncJob(models.JobStatusError)
		return nil, fmt.Errorf("scheduling job: %w", err)
	}

	slog.Info("job submitted", "job_id", job.ID, "scope", job.Scope)
	return job, nil
}

// GetJob returns the current state of a job.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.store.GetJob(ctx, id)
}

// MarkJobTimeout records that the client stopped waiting. Active jobs move to
// error and their generation is cancelled; jobs already in a terminal state
// are returned unchanged, so a finished document is never discarded.
func (s *Service) MarkJobTimeout(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if models.IsTerminalStatus(job.Status) {
		return job, nil
	}

	updated, err := s.store.UpdateJob(ctx, id, models.JobStatusError,
		store.WithMessage(msgClientGone), store.WithErrorDetail("client_timeout"))
	if errors.Is(err, store.ErrInvalidTransition) {
		// the worker finished between the read and the write
		return s.store.GetJob(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	if cancel, ok := s.running.Load(id); ok {
		cancel.(context.CancelFunc)()
	}
	metrics.IncJob(models.JobStatusError)
	slog.Info("job marked as timed out by client", "job_id", id)
	return updated, nil
}

// RunReaper fails jobs left active longer than StaleAfter, once immediately
// and then every ReapInterval until ctx is done.
func (s *Service) RunReaper(ctx context.Context) error {
	s.reap(ctx)

	ticker := time.NewTicker(s.opts.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.reap(ctx)
		}
	}
}

func (s *Service) reap(ctx context.Context) {
	n, err := s.store.FailStaleJobs(ctx, time.Now().UTC().Add(-s.opts.StaleAfter), msgStale)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("reaping stale jobs failed", "error", err)
		}
		return
	}
	if n > 0 {
		slog.Warn("stale jobs failed", "count", n, "stale_after", s.opts.StaleAfter)
		for i := int64(0); i < n; i++ {
			metrics.IncJob(models.JobStatusError)
		}
	}
}

// runJob performs generation for one job. It recovers from panics and always
// leaves the job done or error unless someone else already finished it.
func (s *Service) runJob(ctx context.Context, id uuid.UUID, req models.GenerationRequest) {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	s.running.Store(id, cancel)
	defer func() {
		s.running.Delete(id)
		cancel()
	}()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in runJob", "error", r, "job_id", id, "stack", string(debug.Stack()))
			s.fail(ctx, id, start, fmt.Errorf("panic: %v", r))
		}
	}()

	if !s.advance(ctx, id, 10, msgProcessing) {
		return
	}

	match, err := s.cache.Lookup(ctx, req.Scope, req.RequestText)
	if err != nil {
		slog.Warn("cache lookup failed, generating", "job_id", id, "error", err)
		metrics.IncCacheLookup("job", "error")
	}
	decision := s.router.Route(req.RequestText)

	if match != nil {
		metrics.IncCacheLookup("job", "hit")
		slog.Info("serving job from cache", "job_id", id, "score", match.Score)
		if err := sleepCtx(ctx, s.opts.CacheHitDelay); err != nil {
			s.fail(ctx, id, start, err)
			return
		}
		s.complete(ctx, id, start, decision.Apply(match.Content), CachedModel, msgCached)
		return
	}
	if err == nil {
		metrics.IncCacheLookup("job", "miss")
	}

	if !s.advance(ctx, id, 20, msgAnalyzing) {
		return
	}
	system, prompt := ai.BuildPrompt(req, decision)

	if !s.advance(ctx, id, 40, msgGenerating) {
		return
	}
	res, err := s.engine.Generate(ctx, prompt, system)
	if err != nil {
		s.fail(ctx, id, start, err)
		return
	}

	if !s.advance(ctx, id, 60, msgReviewing) {
		return
	}
	content := decision.Apply(res.Content)

	if !s.advance(ctx, id, 80, msgFinalizing) {
		return
	}
	// cached before the job is published so a caller seeing done can rely on it
	if err := s.cache.Insert(context.WithoutCancel(ctx), req.Scope, req.RequestText, content); err != nil {
		slog.Warn("cache insert failed", "job_id", id, "error", err)
	}
	s.complete(ctx, id, start, content, res.ModelUsed, msgDone)
}

// advance records a progress checkpoint. It returns false when the job may
// not continue, either because it was finished elsewhere or the write failed.
func (s *Service) advance(ctx context.Context, id uuid.UUID, pct int, msg string) bool {
	if ctx.Err() != nil {
		s.fail(ctx, id, time.Time{}, ctx.Err())
		return false
	}
	wctx, cancel := writeContext(ctx)
	defer cancel()

	_, err := s.store.UpdateJob(wctx, id, models.JobStatusProcessing, store.WithProgress(pct), store.WithMessage(msg))
	switch {
	case err == nil:
		return true
	case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, store.ErrNotFound):
		slog.Info("job no longer active, stopping", "job_id", id, "error", err)
		return false
	default:
		slog.Error("updating job progress failed", "job_id", id, "error", err)
		s.fail(ctx, id, time.Time{}, err)
		return false
	}
}

func (s *Service) complete(ctx context.Context, id uuid.UUID, start time.Time, content, model, msg string) {
	wctx, cancel := writeContext(ctx)
	defer cancel()

	_, err := s.store.UpdateJob(wctx, id, models.JobStatusDone,
		store.WithMessage(msg), store.WithResult(content, model))
	if errors.Is(err, store.ErrInvalidTransition) {
		slog.Info("job finished elsewhere, dropping result", "job_id", id)
		return
	}
	if err != nil {
		slog.Error("storing job result failed", "job_id", id, "error", err)
		s.fail(ctx, id, start, err)
		return
	}

	metrics.IncJob(models.JobStatusDone)
	metrics.ObserveJobDuration(time.Since(start))
	slog.Info("job done", "job_id", id, "model", model, "duration", time.Since(start))
}

func (s *Service) fail(ctx context.Context, id uuid.UUID, start time.Time, cause error) {
	kind := ai.KindOf(cause)
	detail := string(kind) + ": " + cause.Error()
	if r := []rune(detail); len(r) > maxErrorDetail {
		detail = string(r[:maxErrorDetail])
	}

	wctx, cancel := writeContext(ctx)
	defer cancel()

	_, err := s.store.UpdateJob(wctx, id, models.JobStatusError,
		store.WithMessage(UserMessage(kind)), store.WithErrorDetail(detail))
	if errors.Is(err, store.ErrInvalidTransition) || errors.Is(err, store.ErrNotFound) {
		return
	}
	if err != nil {
		slog.Error("marking job as failed", "job_id", id, "error", err, "cause", cause)
		return
	}

	metrics.IncJob(models.JobStatusError)
	if !start.IsZero() {
		metrics.ObserveJobDuration(time.Since(start))
	}
	slog.Warn("job failed", "job_id", id, "kind", kind, "error", cause)
}

// writeContext detaches store writes from job cancellation so a cancelled job
// can still be moved to a terminal state.
func writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
