package ai

import (
	"context"

	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
)

type limitedProvider struct {
	inner models.AIProvider
	sem   chan struct{}
}

// NewLimitedProvider bounds the number of concurrent upstream calls made
// through inner. A stream holds its slot until the stream ends.
func NewLimitedProvider(inner models.AIProvider, maxConcurrent int) models.AIProvider {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedProvider{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedProvider) Name() string { return l.inner.Name() }

func (l *limitedProvider) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *limitedProvider) release() { <-l.sem }

func (l *limitedProvider) Complete(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	if err := l.acquire(ctx); err != nil {
		return models.Completion{}, err
	}
	defer l.release()
	return l.inner.Complete(ctx, req)
}

func (l *limitedProvider) Stream(ctx context.Context, req models.CompletionRequest) (<-chan models.StreamChunk, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	in, err := l.inner.Stream(ctx, req)
	if err != nil {
		l.release()
		return nil, err
	}

	out := make(chan models.StreamChunk)
	go func() {
		defer l.release()
		defer close(out)
		for c := range in {
			select {
			case out <- c:
			case <-ctx.Done():
				// drain so the inner goroutine can exit
				for range in {
				}
				return
			}
		}
	}()
	return out, nil
}
