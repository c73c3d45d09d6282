// Package generation 基于检索上下文生成答案
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/ashwinyue/rag-eval/internal/logger"
	"github.com/ashwinyue/rag-eval/internal/observability"
	"github.com/ashwinyue/rag-eval/internal/service/types"
)

const systemPrompt = `You are a helpful assistant that answers questions based on provided context.

Rules:
- Answer ONLY based on the provided context
- If the context doesn't contain enough information, say so
- Be concise but complete
- Do not make up information not in the context`

const userPrompt = `CONTEXT:
{context}

QUESTION:
{question}

Answer the question based only on the context provided above.`

// Request 生成请求
type Request struct {
	Question    string
	Contexts    []string
	ModelName   string
	APIKey      string
	Temperature float64
}

// Result 生成结果
type Result struct {
	Answer       string
	InputTokens  int
	OutputTokens int
}

// Generator 答案生成器
type Generator struct {
	factory types.ChatModelFactory
	logger  *logger.Logger
}

// NewGenerator 创建答案生成器
func NewGenerator(factory types.ChatModelFactory, log *logger.Logger) *Generator {
	return &Generator{factory: factory, logger: log.With("component", "generation")}
}

// Generate 生成答案，凭据为空时返回 ErrInvalidInput，模型调用失败返回 CollaboratorError
func (g *Generator) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.APIKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is required", types.ErrInvalidInput)
	}

	chatModel, err := g.factory.NewChatModel(ctx, req.ModelName, req.APIKey, req.Temperature)
	if err != nil {
		return nil, types.NewCollaboratorError("generate", err)
	}

	prompt := strings.NewReplacer(
		"{context}", JoinContexts(req.Contexts),
		"{question}", req.Question,
	).Replace(userPrompt)

	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(prompt),
	}

	start := time.Now()
	resp, err := chatModel.Generate(ctx, messages)
	observability.ObserveStage("generate", start)
	if err != nil {
		return nil, types.NewCollaboratorError("generate", err)
	}
	if resp == nil {
		return nil, types.NewCollaboratorError("generate", errors.New("model returned no message"))
	}

	input, output := types.UsageFromMessage(resp)
	observability.AddTokens("generation_input", input)
	observability.AddTokens("generation_output", output)

	g.logger.Debug("answer generated", "model", req.ModelName, "contexts", len(req.Contexts), "input_tokens", input, "output_tokens", output)

	return &Result{
		Answer:       resp.Content,
		InputTokens:  input,
		OutputTokens: output,
	}, nil
}

// JoinContexts 拼接非空上下文
func JoinContexts(contexts []string) string {
	parts := make([]string, 0, len(contexts))
	for _, c := range contexts {
		if c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n\n")
}
