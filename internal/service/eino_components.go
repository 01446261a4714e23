package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ashwinyue/next-tutor/internal/config"
	"github.com/cloudwego/eino-ext/components/embedding/dashscope"
	"github.com/cloudwego/eino-ext/components/embedding/ollama"
	openaiemb "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
)

const dashscopeCompatibleURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"

// newChatModel 创建 ChatModel；dashscope 与 deepseek 都走 OpenAI 兼容接口
func newChatModel(ctx context.Context, aiCfg *config.AIConfig) (model.BaseChatModel, error) {
	var apiKey, baseURL, modelName string

	switch aiCfg.Provider {
	case "openai":
		apiKey = aiCfg.OpenAI.APIKey
		baseURL = aiCfg.OpenAI.BaseURL
		modelName = aiCfg.OpenAI.Model
	case "alibaba", "qwen", "dashscope":
		apiKey = aiCfg.Alibaba.AccessKeySecret
		baseURL = dashscopeCompatibleURL
		modelName = aiCfg.Alibaba.Model
	case "deepseek":
		apiKey = aiCfg.DeepSeek.APIKey
		baseURL = aiCfg.DeepSeek.BaseURL
		modelName = aiCfg.DeepSeek.Model
	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", aiCfg.Provider)
	}

	if apiKey == "" {
		return nil, fmt.Errorf("api_key is required for provider: %s", aiCfg.Provider)
	}
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}

	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   modelName,
		Timeout: time.Duration(aiCfg.Timeout) * time.Second,
	})
}

// newEmbedder 创建 Embedding 后端
func newEmbedder(ctx context.Context, embCfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	timeout := time.Duration(embCfg.Timeout) * time.Second
	var dims *int
	if embCfg.Dimensions > 0 {
		d := embCfg.Dimensions
		dims = &d
	}

	switch embCfg.Provider {
	case "openai", "":
		if embCfg.APIKey == "" {
			return nil, fmt.Errorf("embedding api_key is required for provider: openai")
		}
		cfg := &openaiemb.EmbeddingConfig{
			APIKey:  embCfg.APIKey,
			BaseURL: embCfg.BaseURL,
			Model:   embCfg.Model,
			Timeout: timeout,
		}
		// ada-002 不接受 dimensions 参数
		if embCfg.Model != "text-embedding-ada-002" {
			cfg.Dimensions = dims
		}
		return openaiemb.NewEmbedder(ctx, cfg)
	case "alibaba", "qwen", "dashscope":
		if embCfg.APIKey == "" {
			return nil, fmt.Errorf("embedding api_key is required for provider: %s", embCfg.Provider)
		}
		model := embCfg.Model
		if model == "" {
			model = "text-embedding-v3"
		}
		return dashscope.NewEmbedder(ctx, &dashscope.EmbeddingConfig{
			APIKey:     embCfg.APIKey,
			Model:      model,
			Timeout:    timeout,
			Dimensions: dims,
		})
	case "ollama":
		baseURL := embCfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		return ollama.NewEmbedder(ctx, &ollama.EmbeddingConfig{
			BaseURL: baseURL,
			Model:   embCfg.Model,
			Timeout: timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", embCfg.Provider)
	}
}
