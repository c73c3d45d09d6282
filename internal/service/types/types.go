// Package types 定义共享的类型和接口
package types

import (
	"context"

	ecomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/ashwinyue/rag-eval/internal/model"
)

// RerankDoc 待重排的段落
type RerankDoc struct {
	CorpusID  uint
	DocID     string
	SectionID int
	Text      string
}

// Reranker 交叉编码器重排接口，返回按分数降序、截断到 topK 的结果
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []RerankDoc, topK int) ([]model.RetrievedItem, error)
}

// SectionKey 段落标识
type SectionKey struct {
	DocID     string
	SectionID int
}

// ChatModelFactory 按模型名和调用方凭据创建对话模型
type ChatModelFactory interface {
	NewChatModel(ctx context.Context, modelName, apiKey string, temperature float64) (ecomodel.BaseChatModel, error)
}

// UsageFromMessage 读取模型响应中的 token 用量，缺失时为 0
func UsageFromMessage(msg *schema.Message) (input, output int) {
	if msg == nil || msg.ResponseMeta == nil || msg.ResponseMeta.Usage == nil {
		return 0, 0
	}
	return msg.ResponseMeta.Usage.PromptTokens, msg.ResponseMeta.Usage.CompletionTokens
}
