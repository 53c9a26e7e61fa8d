// Package openai implements models.AIProvider for OpenAI and any server that
// speaks the OpenAI chat completions API.
package openai

import (
	"context"
	"errors"
	"net/http"

	"github.com/F-kaue/WorkflowApp-sub000/internal/config"
	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const name = "openai"

// Provider calls the chat completions endpoint through openai-go.
type Provider struct {
	client openai.Client
}

// NewProvider creates an OpenAI provider from config.
func NewProvider(cfg config.OpenAIConfig, httpClient *http.Client) *Provider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		// the engine owns retries
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	return &Provider{client: openai.NewClient(opts...)}
}

func (p *Provider) Name() string { return name }

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	resp, err := p.client.Chat.Completions.New(ctx, params(req))
	if err != nil {
		return models.Completion{}, classify(err)
	}
	if len(resp.Choices) == 0 {
		return models.Completion{}, &models.ProviderError{Provider: name, Kind: models.ErrorKindServer, Message: "no choices in response"}
	}
	return models.Completion{
		Content:    resp.Choices[0].Message.Content,
		Model:      resp.Model,
		TokensUsed: int(resp.Usage.TotalTokens),
	}, nil
}

func (p *Provider) Stream(ctx context.Context, req models.CompletionRequest) (<-chan models.StreamChunk, error) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, params(req))

	out := make(chan models.StreamChunk)
	go func() {
		defer close(out)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case out <- models.StreamChunk{Delta: chunk.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			select {
			case out <- models.StreamChunk{Err: classify(err)}:
			case <-ctx.Done():
			}
		}
	}()
	return out, nil
}

func params(req models.CompletionRequest) openai.ChatCompletionNewParams {
	msgs := []openai.ChatCompletionMessageParamUnion{}
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.SystemMessage(req.SystemPrompt))
	}
	msgs = append(msgs, openai.UserMessage(req.Prompt))

	p := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    msgs,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		p.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	return p
}

func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		kind := models.KindForStatus(apiErr.StatusCode)
		// OpenAI reports exhausted credit as 429 insufficient_quota
		if apiErr.StatusCode == http.StatusTooManyRequests && apiErr.Code == "insufficient_quota" {
			kind = models.ErrorKindQuotaExceeded
		}
		if apiErr.StatusCode == http.StatusBadRequest && apiErr.Code == "model_not_found" {
			kind = models.ErrorKindModelUnavailable
		}
		return &models.ProviderError{Provider: name, Kind: kind, StatusCode: apiErr.StatusCode, Message: apiErr.Message}
	}
	return &models.ProviderError{Provider: name, Kind: models.ErrorKindServer, Message: err.Error()}
}

var _ models.AIProvider = (*Provider)(nil)
