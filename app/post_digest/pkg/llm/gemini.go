package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiBackend Google Gemini 接口
type GeminiBackend struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

var _ Backend = (*GeminiBackend)(nil)

// NewGeminiBackend 创建 Gemini backend
func NewGeminiBackend(ctx context.Context, cfg BackendConfig) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini 初始化失败: %w", err)
	}
	return &GeminiBackend{
		client:    client,
		model:     cfg.Model,
		maxTokens: int32(cfg.MaxTokens),
	}, nil
}

// Complete 实现 Backend
func (b *GeminiBackend) Complete(ctx context.Context, system, user string) (string, error) {
	result, err := b.client.Models.GenerateContent(
		ctx,
		b.model,
		genai.Text(user),
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
			MaxOutputTokens:   b.maxTokens,
		},
	)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	return result.Text(), nil
}
