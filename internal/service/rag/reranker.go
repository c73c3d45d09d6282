package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	ecomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/ashwinyue/rag-eval/internal/config"
	"github.com/ashwinyue/rag-eval/internal/model"
	"github.com/ashwinyue/rag-eval/internal/service/types"
)

// NewReranker 按配置创建交叉编码器重排器
func NewReranker(cfg config.RerankerConfig, modelName string, chatModel ecomodel.BaseChatModel) (types.Reranker, error) {
	switch cfg.Provider {
	case "", "http":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("reranker base url not configured")
		}
		timeout := time.Duration(cfg.Timeout) * time.Second
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		return &httpReranker{
			baseURL: strings.TrimRight(cfg.BaseURL, "/"),
			apiKey:  cfg.APIKey,
			model:   modelName,
			client:  &http.Client{Timeout: timeout},
		}, nil
	case "llm":
		if chatModel == nil {
			return nil, fmt.Errorf("llm reranker requires a chat model")
		}
		return &llmReranker{chatModel: chatModel}, nil
	default:
		return nil, fmt.Errorf("unsupported reranker provider: %s", cfg.Provider)
	}
}

// sortAndTruncate 按分数降序稳定排序并截断
func sortAndTruncate(items []model.RetrievedItem, topK int) []model.RetrievedItem {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
	if topK >= 0 && topK < len(items) {
		items = items[:topK]
	}
	return items
}

func toItem(doc types.RerankDoc, score float64) model.RetrievedItem {
	return model.RetrievedItem{
		CorpusID:  doc.CorpusID,
		DocID:     doc.DocID,
		SectionID: doc.SectionID,
		Score:     score,
	}
}

// ========== HTTP 重排服务 ==========

// httpReranker 调用兼容 /rerank 接口的交叉编码器服务
type httpReranker struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

func (r *httpReranker) Rerank(ctx context.Context, query string, docs []types.RerankDoc, topK int) ([]model.RetrievedItem, error) {
	if len(docs) == 0 {
		return []model.RetrievedItem{}, nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}

	// 对全部文档打分，排序和截断在本地完成
	payload, err := json.Marshal(rerankRequest{Model: r.model, Query: query, Documents: texts, TopN: len(docs)})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rerank request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	items := make([]model.RetrievedItem, 0, len(parsed.Results))
	for _, res := range parsed.Results {
		if res.Index < 0 || res.Index >= len(docs) {
			return nil, fmt.Errorf("rerank response index out of range: %d", res.Index)
		}
		items = append(items, toItem(docs[res.Index], res.RelevanceScore))
	}
	return sortAndTruncate(items, topK), nil
}

// ========== LLM 重排 ==========

// llmReranker 由对话模型给出相关度排序，按名次换算分数
type llmReranker struct {
	chatModel ecomodel.BaseChatModel
}

func (r *llmReranker) Rerank(ctx context.Context, query string, docs []types.RerankDoc, topK int) ([]model.RetrievedItem, error) {
	if len(docs) == 0 {
		return []model.RetrievedItem{}, nil
	}

	// 构建文档描述
	var docDesc strings.Builder
	for i, doc := range docs {
		content := []rune(doc.Text)
		if len(content) > 200 {
			content = append(content[:200], []rune("...")...)
		}
		fmt.Fprintf(&docDesc, "%d. %s\n", i+1, string(content))
	}

	prompt := fmt.Sprintf(`你是一个检索结果重排专家。请根据查询的相关性，对检索到的文档进行排序。

查询：%s

检索到的文档：
%s

请按照与查询的相关度从高到低排序，输出排序后的文档编号（用逗号分隔，如：1,3,2,4,5）。

排序结果：`, query, docDesc.String())

	messages := []*schema.Message{
		schema.SystemMessage("你是一个专业的检索结果重排助手。"),
		schema.UserMessage(prompt),
	}

	resp, err := r.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("llm rerank failed: %w", err)
	}

	// 名次越靠前分数越高，未被提及的文档保持原顺序排在后面
	n := len(docs)
	scores := make([]float64, n)
	ranked := make([]bool, n)
	position := 0
	for _, num := range extractNumbersFromOutput(resp.Content) {
		idx := num - 1
		if idx < 0 || idx >= n || ranked[idx] {
			continue
		}
		ranked[idx] = true
		scores[idx] = float64(2*n - position)
		position++
	}
	for i := range docs {
		if !ranked[i] {
			scores[i] = float64(n - i)
		}
	}

	items := make([]model.RetrievedItem, n)
	for i, doc := range docs {
		items[i] = toItem(doc, scores[i]/float64(2*n))
	}
	return sortAndTruncate(items, topK), nil
}

func extractNumbersFromOutput(s string) []int {
	nums := make([]int, 0)
	current := 0
	inNumber := false

	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			current = current*10 + int(ch-'0')
			inNumber = true
		} else if inNumber {
			nums = append(nums, current)
			current = 0
			inNumber = false
		}
	}
	if inNumber {
		nums = append(nums, current)
	}

	return nums
}
