package factory

import (
	"context"
	"fmt"

	"github.com/iWorld-y/post_digest/app/post_digest/pkg/config"
	"github.com/iWorld-y/post_digest/app/post_digest/pkg/llm"
)

// NewBackend 根据配置创建 LLM backend
func NewBackend(ctx context.Context, cfg *config.Config) (llm.Backend, error) {
	if cfg.LLM.APIKey == "" {
		return nil, config.ErrMissingAPIKey
	}

	bc := llm.BackendConfig{
		BaseURL:    cfg.LLM.BaseURL,
		APIKey:     cfg.LLM.APIKey,
		Model:      cfg.LLM.Model,
		MaxTokens:  cfg.LLM.MaxTokens,
		HTTPClient: llm.NewHTTPClient(cfg.Timeout()),
	}

	switch cfg.LLM.Provider {
	case "", "openai":
		return llm.NewOpenAIBackend(ctx, bc)
	case "gemini":
		return llm.NewGeminiBackend(ctx, bc)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.LLM.Provider)
	}
}

// NewClient 创建带重试与限流配置的生成客户端
func NewClient(ctx context.Context, cfg *config.Config) (*llm.Client, error) {
	backend, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return llm.NewClient(backend,
		llm.WithMaxAttempts(cfg.LLM.MaxAttempts),
		llm.WithRetryBaseDelay(cfg.RetryBaseDelay()),
		llm.WithRPM(cfg.LLM.RPM),
		llm.WithMaxContentChars(cfg.LLM.MaxContentChars),
	), nil
}
