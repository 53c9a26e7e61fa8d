package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
)

var (
	ErrNoModels        = errors.New("no upstream model configured")
	ErrEmptyResponse   = errors.New("ai provider returned empty response")
	ErrNoProvider      = errors.New("no provider configured for model")
	ErrPartialTooShort = errors.New("stream stopped before enough content was produced")
)

// InvocationError is the terminal failure of an engine call.
type InvocationError struct {
	Kind  models.ErrorKind
	Model string
	Err   error
}

func (e *InvocationError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("invocation failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("invocation failed on %s (%s): %v", e.Model, e.Kind, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// KindOf classifies any error returned by a provider or the engine.
func KindOf(err error) models.ErrorKind {
	if err == nil {
		return ""
	}
	var inv *InvocationError
	if errors.As(err, &inv) {
		return inv.Kind
	}
	var pe *models.ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.ErrorKindTimeout
	}
	if errors.Is(err, ErrNoProvider) {
		return models.ErrorKindModelUnavailable
	}
	return models.ErrorKindUnknown
}
