package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/F-kaue/WorkflowApp-sub000/internal/metrics"
	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
)

// EngineConfig holds the retry, fallback and streaming policy of an Engine.
type EngineConfig struct {
	// Models is the fallback order, most capable first.
	Models         []string
	MaxRetries     int
	InitialDelay   time.Duration
	AttemptTimeout time.Duration
	OverallTimeout time.Duration
	MaxTokens      int
	Temperature    float64

	SimplifiedPromptChars int
	SimplifiedMaxTokens   int
	SimplifiedTemperature float64

	FirstChunkTimeout  time.Duration
	StallTimeout       time.Duration
	StallCheckInterval time.Duration
	MinPartialLength   int
}

// Attempt describes one upstream call made during an engine invocation.
type Attempt struct {
	Model     string
	Number    int
	Succeeded bool
	Kind      models.ErrorKind
	Latency   time.Duration
}

// Result is the outcome of a successful engine invocation. Content always
// comes from a single model.
type Result struct {
	Content    string
	ModelUsed  string
	TokensUsed int
	Attempts   []Attempt
	// Partial is set when a stream stalled after producing enough content.
	Partial bool
}

// Engine invokes upstream models with per-model retries, ordered fallback and
// an overall deadline. One Engine serves both the job worker and the
// streaming handler.
type Engine struct {
	provider models.AIProvider
	cfg      EngineConfig
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an Engine over provider.
func NewEngine(provider models.AIProvider, cfg EngineConfig) *Engine {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = 50 * time.Second
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = cfg.OverallTimeout
	}
	if cfg.FirstChunkTimeout <= 0 {
		cfg.FirstChunkTimeout = 10 * time.Second
	}
	if cfg.StallTimeout <= 0 {
		cfg.StallTimeout = 10 * time.Second
	}
	if cfg.StallCheckInterval <= 0 {
		cfg.StallCheckInterval = 3 * time.Second
	}
	return &Engine{provider: provider, cfg: cfg, sleep: sleepCtx}
}

// Models returns the configured fallback order.
func (e *Engine) Models() []string {
	return e.cfg.Models
}

// Configured reports whether at least one model can be invoked.
func (e *Engine) Configured() bool {
	return len(e.cfg.Models) > 0
}

// Generate runs a non-streaming completion.
func (e *Engine) Generate(ctx context.Context, prompt, systemPrompt string) (*Result, error) {
	if !e.Configured() {
		return nil, ErrNoModels
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.OverallTimeout)
	defer cancel()

	var (
		attempts   []Attempt
		lastErr    error
		lastKind   models.ErrorKind
		simplified bool
	)

	for _, model := range e.cfg.Models {
		req := e.request(model, prompt, systemPrompt, simplified)

	retries:
		for n := 1; n <= e.cfg.MaxRetries; n++ {
			if n > 1 {
				if err := e.sleep(ctx, e.backoff(n-1)); err != nil {
					return nil, &InvocationError{Kind: models.ErrorKindTimeout, Model: model, Err: err}
				}
			}

			attemptCtx, cancelAttempt := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
			start := time.Now()
			comp, err := e.provider.Complete(attemptCtx, req)
			cancelAttempt()
			if err == nil && strings.TrimSpace(comp.Content) == "" {
				err = &models.ProviderError{Provider: e.provider.Name(), Kind: models.ErrorKindServer, Message: ErrEmptyResponse.Error()}
			}

			kind := KindOf(err)
			att := Attempt{Model: model, Number: n, Succeeded: err == nil, Kind: kind, Latency: time.Since(start)}
			attempts = append(attempts, att)
			recordAttempt(att, err)

			if err == nil {
				tokens := comp.TokensUsed
				if tokens == 0 {
					tokens = CountTokens(comp.Content)
				}
				return &Result{Content: comp.Content, ModelUsed: model, TokensUsed: tokens, Attempts: attempts}, nil
			}

			lastErr, lastKind = err, kind

			if ctx.Err() != nil {
				return nil, &InvocationError{Kind: models.ErrorKindTimeout, Model: model, Err: ctx.Err()}
			}

			switch kind {
			case models.ErrorKindTimeout, models.ErrorKindRateLimited, models.ErrorKindQuotaExceeded:
				return nil, &InvocationError{Kind: kind, Model: model, Err: err}
			case models.ErrorKindModelUnavailable:
				simplified = true
				metrics.IncFallback(model, string(kind))
				break retries
			}

			if n == e.cfg.MaxRetries {
				metrics.IncFallback(model, string(kind))
			}
		}
	}

	return nil, exhausted(lastKind, lastErr)
}

// Stream runs a streaming completion, passing every delta to sink as it
// arrives. A model that fails before its first chunk is replaced by the next
// one. Once content has been delivered the stream is never switched: a stall
// or upstream error then ends the call, successfully with Partial set when at
// least MinPartialLength characters were produced. The overall deadline
// applies as it does in Generate.
func (e *Engine) Stream(ctx context.Context, prompt, systemPrompt string, sink func(delta string) error) (*Result, error) {
	if !e.Configured() {
		return nil, ErrNoModels
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.OverallTimeout)
	defer cancel()

	var (
		attempts   []Attempt
		lastErr    error
		lastKind   models.ErrorKind
		simplified bool
	)

	for _, model := range e.cfg.Models {
		req := e.request(model, prompt, systemPrompt, simplified)

		res, started, err := e.streamModel(ctx, req, sink)
		kind := KindOf(err)
		att := Attempt{Model: model, Number: 1, Succeeded: err == nil, Kind: kind}
		if res != nil {
			att.Latency = res.Attempts[0].Latency
		}
		attempts = append(attempts, att)
		recordAttempt(att, err)

		if err == nil {
			res.Attempts = attempts
			return res, nil
		}
		if started || ctx.Err() != nil {
			return nil, err
		}

		lastErr, lastKind = err, kind
		switch kind {
		case models.ErrorKindTimeout, models.ErrorKindRateLimited, models.ErrorKindQuotaExceeded:
			return nil, err
		case models.ErrorKindModelUnavailable:
			simplified = true
		}
		metrics.IncFallback(model, string(kind))
		slog.Warn("stream failed before first chunk, trying next model", "model", model, "error", err)
	}

	return nil, exhausted(lastKind, lastErr)
}

// streamModel consumes one upstream stream. started reports whether any
// content reached the sink.
func (e *Engine) streamModel(ctx context.Context, req models.CompletionRequest, sink func(string) error) (*Result, bool, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	start := time.Now()
	chunks, err := e.provider.Stream(streamCtx, req)
	if err != nil {
		return nil, false, &InvocationError{Kind: KindOf(err), Model: req.Model, Err: err}
	}

	firstChunk := time.NewTimer(e.cfg.FirstChunkTimeout)
	defer firstChunk.Stop()
	stallCheck := time.NewTicker(e.cfg.StallCheckInterval)
	defer stallCheck.Stop()

	var (
		buf       strings.Builder
		started   bool
		lastChunk time.Time
	)

	finish := func(partial bool) *Result {
		content := buf.String()
		return &Result{
			Content:    content,
			ModelUsed:  req.Model,
			TokensUsed: CountTokens(content),
			Attempts:   []Attempt{{Model: req.Model, Number: 1, Succeeded: true, Latency: time.Since(start)}},
			Partial:    partial,
		}
	}

	// interrupted decides between partial acceptance and failure once content has started.
	interrupted := func(kind models.ErrorKind, cause error) (*Result, bool, error) {
		if utf8.RuneCountInString(buf.String()) >= e.cfg.MinPartialLength {
			slog.Warn("accepting partial stream", "model", req.Model, "chars", buf.Len(), "cause", cause)
			return finish(true), true, nil
		}
		return nil, true, &InvocationError{Kind: kind, Model: req.Model, Err: fmt.Errorf("%w: %v", ErrPartialTooShort, cause)}
	}

	for {
		select {
		case <-ctx.Done():
			if started && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return interrupted(models.ErrorKindTimeout, fmt.Errorf("deadline reached: %w", ctx.Err()))
			}
			return nil, started, &InvocationError{Kind: models.ErrorKindTimeout, Model: req.Model, Err: ctx.Err()}

		case <-firstChunk.C:
			if !started {
				return nil, false, &InvocationError{Kind: models.ErrorKindTimeout, Model: req.Model,
					Err: fmt.Errorf("no content within %s", e.cfg.FirstChunkTimeout)}
			}

		case <-stallCheck.C:
			if started && time.Since(lastChunk) >= e.cfg.StallTimeout {
				return interrupted(models.ErrorKindTimeout, fmt.Errorf("stream stalled for %s", time.Since(lastChunk).Round(time.Millisecond)))
			}

		case chunk, ok := <-chunks:
			if !ok {
				if !started {
					return nil, false, &InvocationError{Kind: models.ErrorKindServer, Model: req.Model, Err: ErrEmptyResponse}
				}
				return finish(false), true, nil
			}
			if chunk.Err != nil {
				if !started {
					return nil, false, &InvocationError{Kind: KindOf(chunk.Err), Model: req.Model, Err: chunk.Err}
				}
				return interrupted(KindOf(chunk.Err), chunk.Err)
			}
			if chunk.Delta == "" {
				continue
			}
			if err := sink(chunk.Delta); err != nil {
				return nil, started, &InvocationError{Kind: models.ErrorKindTimeout, Model: req.Model, Err: fmt.Errorf("write to client: %w", err)}
			}
			if !started {
				started = true
				firstChunk.Stop()
			}
			lastChunk = time.Now()
			buf.WriteString(chunk.Delta)
		}
	}
}

func (e *Engine) request(model, prompt, systemPrompt string, simplified bool) models.CompletionRequest {
	req := models.CompletionRequest{
		Model:        model,
		SystemPrompt: systemPrompt,
		Prompt:       prompt,
		MaxTokens:    e.cfg.MaxTokens,
		Temperature:  e.cfg.Temperature,
	}
	if simplified {
		if e.cfg.SimplifiedPromptChars > 0 {
			req.Prompt = truncateString(prompt, e.cfg.SimplifiedPromptChars)
		}
		if e.cfg.SimplifiedMaxTokens > 0 {
			req.MaxTokens = e.cfg.SimplifiedMaxTokens
		}
		req.Temperature = e.cfg.SimplifiedTemperature
	}
	return req
}

// backoff returns the wait before retry number n (1-based).
func (e *Engine) backoff(n int) time.Duration {
	return e.cfg.InitialDelay * time.Duration(1<<(n-1))
}

func exhausted(lastKind models.ErrorKind, lastErr error) error {
	kind := models.ErrorKindModelUnavailable
	if lastKind == models.ErrorKindBadRequest {
		kind = models.ErrorKindBadRequest
	}
	if lastErr == nil {
		lastErr = errors.New("all models failed")
	}
	return &InvocationError{Kind: kind, Err: fmt.Errorf("all models exhausted: %w", lastErr)}
}

func recordAttempt(att Attempt, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(att.Kind)
		slog.Warn("model attempt failed", "model", att.Model, "attempt", att.Number, "kind", att.Kind, "error", err)
	}
	metrics.ObserveAttempt(att.Model, outcome, att.Latency)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
