package openai_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/F-kaue/WorkflowApp-sub000/internal/ai/openai"
	"github.com/F-kaue/WorkflowApp-sub000/internal/config"
	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProvider(t *testing.T, h http.HandlerFunc) *openai.Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return openai.NewProvider(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL}, srv.Client())
}

func request() models.CompletionRequest {
	return models.CompletionRequest{Model: "gpt-4o", SystemPrompt: "sys", Prompt: "hello", MaxTokens: 100, Temperature: 0.5}
}

func TestComplete_Success(t *testing.T) {
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"documento"}}],
			"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`)
	})

	out, err := p.Complete(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, "documento", out.Content)
	assert.Equal(t, 7, out.TokensUsed)
}

func TestComplete_ErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		code   string
		want   models.ErrorKind
	}{
		{http.StatusTooManyRequests, "rate_limit_exceeded", models.ErrorKindRateLimited},
		{http.StatusTooManyRequests, "insufficient_quota", models.ErrorKindQuotaExceeded},
		{http.StatusNotFound, "model_not_found", models.ErrorKindModelUnavailable},
		{http.StatusBadRequest, "invalid_request_error", models.ErrorKindBadRequest},
		{http.StatusInternalServerError, "server_error", models.ErrorKindServer},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_%s", tt.status, tt.code), func(t *testing.T) {
			p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				fmt.Fprintf(w, `{"error":{"message":"nope","type":"x","code":%q}}`, tt.code)
			})

			_, err := p.Complete(context.Background(), request())
			require.Error(t, err)
			var pe *models.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.want, pe.Kind)
			assert.Equal(t, tt.status, pe.StatusCode)
		})
	}
}

func TestStream_Deltas(t *testing.T) {
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, d := range []string{"Olá", ", ", "mundo"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", d)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	ch, err := p.Stream(context.Background(), request())
	require.NoError(t, err)

	var b strings.Builder
	for c := range ch {
		require.NoError(t, c.Err)
		b.WriteString(c.Delta)
	}
	assert.Equal(t, "Olá, mundo", b.String())
}

func TestStream_UpstreamError(t *testing.T) {
	p := newProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
	})

	ch, err := p.Stream(context.Background(), request())
	require.NoError(t, err)

	var last models.StreamChunk
	for c := range ch {
		last = c
	}
	require.Error(t, last.Err)
	var pe *models.ProviderError
	require.ErrorAs(t, last.Err, &pe)
	assert.Equal(t, http.StatusServiceUnavailable, pe.StatusCode)
}
