// Package gemini implements models.AIProvider on the Google Gen AI SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/F-kaue/WorkflowApp-sub000/internal/config"
	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
	"google.golang.org/genai"
)

const name = "gemini"

type Provider struct {
	client *genai.Client
}

// NewProvider creates a Gemini provider using the official SDK.
func NewProvider(ctx context.Context, cfg config.GeminiConfig) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Provider{client: c}, nil
}

func (p *Provider) Name() string { return name }

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	resp, err := p.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), generationConfig(req))
	if err != nil {
		return models.Completion{}, classify(err)
	}

	out := models.Completion{Content: resp.Text(), Model: req.Model}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

func (p *Provider) Stream(ctx context.Context, req models.CompletionRequest) (<-chan models.StreamChunk, error) {
	out := make(chan models.StreamChunk)
	go func() {
		defer close(out)
		for resp, err := range p.client.Models.GenerateContentStream(ctx, req.Model, genai.Text(req.Prompt), generationConfig(req)) {
			chunk := models.StreamChunk{}
			if err != nil {
				chunk.Err = classify(err)
			} else if chunk.Delta = resp.Text(); chunk.Delta == "" {
				continue
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
			if chunk.Err != nil {
				return
			}
		}
	}()
	return out, nil
}

func generationConfig(req models.CompletionRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	return cfg
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var ptr *genai.APIError
		if !errors.As(err, &ptr) || ptr == nil {
			return &models.ProviderError{Provider: name, Kind: models.ErrorKindServer, Message: err.Error()}
		}
		apiErr = *ptr
	}

	kind := models.KindForStatus(apiErr.Code)
	// quota exhaustion arrives as 429 RESOURCE_EXHAUSTED
	if kind == models.ErrorKindRateLimited && strings.Contains(strings.ToLower(apiErr.Message), "quota") {
		kind = models.ErrorKindQuotaExceeded
	}
	return &models.ProviderError{Provider: name, Kind: kind, StatusCode: apiErr.Code, Message: apiErr.Message}
}

var _ models.AIProvider = (*Provider)(nil)
