// Package models contains shared data models used across the service.
package models

import (
	"context"
	"fmt"
)

// AIProvider is the core interface that all LLM integrations must implement.
// Never call a specific provider directly; always inject this interface.
type AIProvider interface {
	// Complete runs a single non-streaming completion.
	Complete(ctx context.Context, req CompletionRequest) (Completion, error)
	// Stream starts a streaming completion. The returned channel is closed when
	// the upstream finishes; a chunk with a non-nil Err is always the last one.
	// Implementations must stop sending once ctx is cancelled.
	Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)
	// Name returns the provider identifier (e.g., "openai", "gemini").
	Name() string
}

// CompletionRequest is the input to a single model invocation.
type CompletionRequest struct {
	Model        string
	SystemPrompt string
	Prompt       string
	MaxTokens    int
	Temperature  float64
}

// Completion is the output of a successful model invocation.
type Completion struct {
	Content    string
	Model      string
	TokensUsed int
}

// StreamChunk is one incremental piece of a streamed completion.
type StreamChunk struct {
	Delta string
	Err   error
}

// ErrorKind classifies upstream failures; the invocation engine decides between
// retry, fallback and immediate failure from it.
type ErrorKind string

const (
	ErrorKindTimeout          ErrorKind = "timeout"
	ErrorKindRateLimited      ErrorKind = "rate_limited"
	ErrorKindQuotaExceeded    ErrorKind = "quota_exceeded"
	ErrorKindModelUnavailable ErrorKind = "model_unavailable"
	ErrorKindBadRequest       ErrorKind = "bad_request"
	ErrorKindServer           ErrorKind = "server_error"
	ErrorKindUnknown          ErrorKind = "unknown"
)

// ProviderError is returned by providers for upstream API failures.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %s", e.Provider, e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// KindForStatus maps an upstream HTTP status code to an ErrorKind.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == 429:
		return ErrorKindRateLimited
	case status == 402:
		return ErrorKindQuotaExceeded
	case status == 404:
		return ErrorKindModelUnavailable
	case status == 408 || status == 504:
		return ErrorKindTimeout
	case status == 400 || status == 413 || status == 422:
		return ErrorKindBadRequest
	case status >= 500:
		return ErrorKindServer
	default:
		return ErrorKindUnknown
	}
}

// PartialResultNotice marks a document whose generation stopped before the
// model finished.
const PartialResultNotice = "[Resultado parcial: a geração foi interrompida antes da conclusão.]"
