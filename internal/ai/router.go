package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
)

// Router dispatches each request to the provider that serves its model.
// Explicit model pins win over name prefixes.
type Router struct {
	byProvider      map[string]models.AIProvider
	modelToProvider map[string]string
}

// NewRouter creates a Router over the given providers, keyed by their Name().
func NewRouter(modelToProvider map[string]string, providers ...models.AIProvider) *Router {
	r := &Router{
		byProvider:      make(map[string]models.AIProvider, len(providers)),
		modelToProvider: make(map[string]string, len(modelToProvider)),
	}
	for _, p := range providers {
		r.byProvider[strings.ToLower(p.Name())] = p
	}
	for m, p := range modelToProvider {
		r.modelToProvider[m] = strings.ToLower(p)
	}
	return r
}

func (r *Router) Name() string { return "router" }

func (r *Router) resolveProvider(model string) string {
	if p := r.modelToProvider[model]; p != "" {
		return p
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "chatgpt"),
		strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"), strings.HasPrefix(l, "o4"):
		return "openai"
	case strings.HasPrefix(l, "mock"):
		return "mock"
	default:
		return ""
	}
}

// Resolve returns the provider serving model.
func (r *Router) Resolve(model string) (models.AIProvider, bool) {
	p, ok := r.byProvider[r.resolveProvider(model)]
	return p, ok
}

// Available filters models down to the ones a configured provider can serve,
// preserving order.
func (r *Router) Available(candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, m := range candidates {
		if _, ok := r.Resolve(m); ok {
			out = append(out, m)
		}
	}
	return out
}

func (r *Router) Complete(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	p, ok := r.Resolve(req.Model)
	if !ok {
		return models.Completion{}, fmt.Errorf("%w: %s", ErrNoProvider, req.Model)
	}
	return p.Complete(ctx, req)
}

func (r *Router) Stream(ctx context.Context, req models.CompletionRequest) (<-chan models.StreamChunk, error) {
	p, ok := r.Resolve(req.Model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoProvider, req.Model)
	}
	return p.Stream(ctx, req)
}

var _ models.AIProvider = (*Router)(nil)
