package mock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
)

// MockProvider satisfies models.AIProvider for tests and offline runs.
type MockProvider struct {
	Name_        string
	CompleteFunc func(ctx context.Context, req models.CompletionRequest) (models.Completion, error)
	StreamFunc   func(ctx context.Context, req models.CompletionRequest) (<-chan models.StreamChunk, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Complete(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return models.Completion{}, nil
}

func (m *MockProvider) Stream(ctx context.Context, req models.CompletionRequest) (<-chan models.StreamChunk, error) {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	ch := make(chan models.StreamChunk)
	close(ch)
	return ch, nil
}

// NewMockProvider returns a MockProvider that renders a deterministic document
// from the prompt. Streaming splits the same document into small chunks.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock",
		CompleteFunc: func(_ context.Context, req models.CompletionRequest) (models.Completion, error) {
			doc := Render(req)
			return models.Completion{Content: doc, Model: req.Model, TokensUsed: len(doc) / 4}, nil
		},
		StreamFunc: func(ctx context.Context, req models.CompletionRequest) (<-chan models.StreamChunk, error) {
			return Chunks(ctx, splitEvery(Render(req), 32), 0), nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		CompleteFunc: func(_ context.Context, _ models.CompletionRequest) (models.Completion, error) {
			return models.Completion{}, err
		},
		StreamFunc: func(_ context.Context, _ models.CompletionRequest) (<-chan models.StreamChunk, error) {
			return nil, err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		CompleteFunc: func(ctx context.Context, _ models.CompletionRequest) (models.Completion, error) {
			<-ctx.Done()
			return models.Completion{}, ctx.Err()
		},
		StreamFunc: func(ctx context.Context, _ models.CompletionRequest) (<-chan models.StreamChunk, error) {
			ch := make(chan models.StreamChunk)
			go func() {
				<-ctx.Done()
				close(ch)
			}()
			return ch, nil
		},
	}
}

// NewStallingProvider streams the given chunks and then goes silent without
// closing the stream until ctx is cancelled.
func NewStallingProvider(chunks ...string) *MockProvider {
	return &MockProvider{
		Name_: "mock-stalling",
		StreamFunc: func(ctx context.Context, _ models.CompletionRequest) (<-chan models.StreamChunk, error) {
			ch := make(chan models.StreamChunk)
			go func() {
				defer close(ch)
				for _, c := range chunks {
					select {
					case ch <- models.StreamChunk{Delta: c}:
					case <-ctx.Done():
						return
					}
				}
				<-ctx.Done()
			}()
			return ch, nil
		},
	}
}

// Chunks emits deltas on a channel, waiting delay before each one.
func Chunks(ctx context.Context, deltas []string, delay time.Duration) <-chan models.StreamChunk {
	ch := make(chan models.StreamChunk)
	go func() {
		defer close(ch)
		for _, d := range deltas {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return
				}
			}
			select {
			case ch <- models.StreamChunk{Delta: d}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

// Render produces the offline document for a request.
func Render(req models.CompletionRequest) string {
	responsible := ""
	for _, line := range strings.Split(req.SystemPrompt, "\"") {
		if strings.HasPrefix(line, "Responsável Principal:") {
			responsible = line
		}
	}

	var b strings.Builder
	b.WriteString("# Documento de Solicitação de Serviço\n\n")
	b.WriteString("## Resumo da solicitação\n\n")
	b.WriteString(req.Prompt)
	b.WriteString("\n\n## Passos de execução\n\n")
	b.WriteString("1. Validar o escopo com o solicitante.\n")
	b.WriteString("2. Executar a alteração em ambiente de homologação.\n")
	b.WriteString("3. Aplicar em produção com registro de auditoria.\n\n")
	b.WriteString("## Riscos e cuidados\n\n")
	b.WriteString("- Realizar backup antes de qualquer alteração.\n\n")
	b.WriteString("## Responsável\n\n")
	if responsible != "" {
		b.WriteString(responsible)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\n_Gerado por %s._\n", req.Model)
	return b.String()
}

func splitEvery(s string, n int) []string {
	var out []string
	r := []rune(s)
	for len(r) > 0 {
		k := n
		if k > len(r) {
			k = len(r)
		}
		out = append(out, string(r[:k]))
		r = r[k:]
	}
	return out
}

// Compile-time check that MockProvider implements AIProvider.
var _ models.AIProvider = (*MockProvider)(nil)
