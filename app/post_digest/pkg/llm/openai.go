package llm

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// BackendConfig provider 通用配置
type BackendConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
}

// OpenAIBackend OpenAI 兼容接口(DeepSeek、Qwen 等)
type OpenAIBackend struct {
	chatModel model.BaseChatModel
}

var _ Backend = (*OpenAIBackend)(nil)

// NewOpenAIBackend 基于 eino ChatModel 创建 backend
func NewOpenAIBackend(ctx context.Context, cfg BackendConfig) (*OpenAIBackend, error) {
	maxTokens := cfg.MaxTokens
	chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		MaxTokens:  &maxTokens,
		HTTPClient: cfg.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM 初始化失败: %w", err)
	}
	return &OpenAIBackend{chatModel: chatModel}, nil
}

// Complete 实现 Backend
func (b *OpenAIBackend) Complete(ctx context.Context, system, user string) (string, error) {
	messages := []*schema.Message{
		{Role: schema.System, Content: system},
		{Role: schema.User, Content: user},
	}

	resp, err := b.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", nil
	}
	return resp.Content, nil
}
