package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	embdashscope "github.com/cloudwego/eino-ext/components/embedding/dashscope"
	embollama "github.com/cloudwego/eino-ext/components/embedding/ollama"
	embopenai "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino-ext/components/model/openai"
	ecomodel "github.com/cloudwego/eino/components/model"

	"github.com/ashwinyue/rag-eval/internal/config"
	"github.com/ashwinyue/rag-eval/internal/service/rag"
	"github.com/ashwinyue/rag-eval/internal/service/registry"
	"github.com/ashwinyue/rag-eval/internal/service/types"
)

// ========== ChatModel ==========

// chatModelFactory 基于 OpenAI 兼容接口创建 ChatModel，凭据由调用方提供
type chatModelFactory struct {
	baseURL string
	timeout time.Duration
}

func newChatModelFactory(cfg *config.Config) *chatModelFactory {
	return &chatModelFactory{
		baseURL: cfg.AI.OpenAI.BaseURL,
		timeout: time.Duration(cfg.AI.OpenAI.Timeout) * time.Second,
	}
}

// NewChatModel 创建 ChatModel
func (f *chatModelFactory) NewChatModel(ctx context.Context, modelName, apiKey string, temperature float64) (ecomodel.BaseChatModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api_key is required for model: %s", modelName)
	}

	temp := float32(temperature)
	return openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      apiKey,
		BaseURL:     f.baseURL,
		Model:       modelName,
		Temperature: &temp,
		Timeout:     f.timeout,
	})
}

// ========== Embedding ==========

// newEmbeddingLoader 向量模型加载器，名称格式为 source:model
func newEmbeddingLoader(cfg *config.Config) registry.Loader {
	return func(ctx context.Context, name string) (interface{}, error) {
		source, modelName, ok := strings.Cut(name, ":")
		if !ok || modelName == "" {
			return nil, fmt.Errorf("invalid embedding model name: %s", name)
		}

		switch source {
		case "dashscope":
			embCfg := &embdashscope.EmbeddingConfig{
				APIKey: cfg.AI.DashScope.APIKey,
				Model:  modelName,
			}
			if cfg.AI.DashScope.Timeout > 0 {
				embCfg.Timeout = time.Duration(cfg.AI.DashScope.Timeout) * time.Second
			}
			if cfg.AI.Embedding.Dimensions > 0 {
				dims := cfg.AI.Embedding.Dimensions
				embCfg.Dimensions = &dims
			}
			return embdashscope.NewEmbedder(ctx, embCfg)

		case "ollama":
			return embollama.NewEmbedder(ctx, &embollama.EmbeddingConfig{
				BaseURL: cfg.AI.Ollama.BaseURL,
				Model:   modelName,
				Timeout: time.Duration(cfg.AI.Ollama.Timeout) * time.Second,
			})

		case "openai", "huggingface", "sentence-transformers":
			// 默认使用 OpenAI 兼容接口
			embCfg := &embopenai.EmbeddingConfig{
				APIKey:  cfg.AI.Embedding.APIKey,
				BaseURL: cfg.AI.Embedding.BaseURL,
				Model:   modelName,
			}
			if cfg.AI.Embedding.Timeout > 0 {
				embCfg.Timeout = time.Duration(cfg.AI.Embedding.Timeout) * time.Second
			}
			if cfg.AI.Embedding.Dimensions > 0 {
				dims := cfg.AI.Embedding.Dimensions
				embCfg.Dimensions = &dims
			}
			return embopenai.NewEmbedder(ctx, embCfg)

		default:
			return nil, fmt.Errorf("unsupported embedding source: %s", source)
		}
	}
}

// ========== Reranker ==========

// newRerankerLoader 重排模型加载器，llm 模式使用配置中的默认对话模型
func newRerankerLoader(cfg *config.Config, factory types.ChatModelFactory) registry.Loader {
	return func(ctx context.Context, name string) (interface{}, error) {
		var chatModel ecomodel.BaseChatModel
		if cfg.AI.Reranker.Provider == "llm" {
			cm, err := factory.NewChatModel(ctx, cfg.AI.OpenAI.Model, cfg.AI.OpenAI.APIKey, 0)
			if err != nil {
				return nil, err
			}
			chatModel = cm
		}
		return rag.NewReranker(cfg.AI.Reranker, name, chatModel)
	}
}
