package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/F-kaue/WorkflowApp-sub000/internal/ai/gemini"
	"github.com/F-kaue/WorkflowApp-sub000/internal/ai/mock"
	"github.com/F-kaue/WorkflowApp-sub000/internal/ai/openai"
	"github.com/F-kaue/WorkflowApp-sub000/internal/config"
	"github.com/F-kaue/WorkflowApp-sub000/pkg/models"
)

// NewProvider constructs the provider router from config. Providers without
// credentials are skipped. Called once at server startup.
func NewProvider(ctx context.Context, cfg config.AIConfig) (*Router, error) {
	var providers []models.AIProvider

	if cfg.OpenAI.APIKey != "" {
		providers = append(providers, NewLimitedProvider(openai.NewProvider(cfg.OpenAI, nil), cfg.MaxConcurrent))
	}
	if cfg.Gemini.APIKey != "" {
		g, err := gemini.NewProvider(ctx, cfg.Gemini)
		if err != nil {
			return nil, fmt.Errorf("creating gemini provider: %w", err)
		}
		providers = append(providers, NewLimitedProvider(g, cfg.MaxConcurrent))
	}
	if cfg.MockEnabled {
		providers = append(providers, mock.NewMockProvider())
	}

	for _, p := range providers {
		slog.Info("ai provider enabled", "provider", p.Name())
	}
	return NewRouter(cfg.ModelProviders, providers...), nil
}

// NewEngineFromConfig builds the shared invocation engine. Models no
// configured provider can serve are dropped from the fallback order.
func NewEngineFromConfig(router *Router, ai config.AIConfig, stream config.StreamConfig) *Engine {
	available := router.Available(ai.Models)
	if len(available) < len(ai.Models) {
		slog.Warn("some models have no configured provider", "configured", ai.Models, "available", available)
	}
	return NewEngine(router, EngineConfig{
		Models:                available,
		MaxRetries:            ai.MaxRetries,
		InitialDelay:          ai.InitialDelay,
		AttemptTimeout:        ai.AttemptTimeout,
		OverallTimeout:        ai.OverallTimeout,
		MaxTokens:             ai.MaxTokens,
		Temperature:           ai.Temperature,
		SimplifiedPromptChars: ai.SimplifiedPromptChars,
		SimplifiedMaxTokens:   ai.SimplifiedMaxTokens,
		SimplifiedTemperature: ai.SimplifiedTemperature,
		FirstChunkTimeout:     stream.FirstChunkTimeout,
		StallTimeout:          stream.StallTimeout,
		StallCheckInterval:    stream.StallCheckInterval,
		MinPartialLength:      stream.MinPartialLength,
	})
}
