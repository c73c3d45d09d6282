// Package dataset 评估数据集导入与向量模型登记
package dataset

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ashwinyue/rag-eval/internal/logger"
	"github.com/ashwinyue/rag-eval/internal/model"
	"github.com/ashwinyue/rag-eval/internal/repository"
	"github.com/ashwinyue/rag-eval/internal/service/types"
)

// 支持的向量模型来源
var modelSources = map[string]bool{
	"openai":                true,
	"dashscope":             true,
	"ollama":                true,
	"huggingface":           true,
	"sentence-transformers": true,
}

var collectionUnsafe = regexp.MustCompile(`[^a-z0-9_]+`)

// Service 数据集服务
type Service struct {
	repo   *repository.Repositories
	logger *logger.Logger
}

// NewService 创建数据集服务
func NewService(repo *repository.Repositories, log *logger.Logger) *Service {
	return &Service{repo: repo, logger: log.With("component", "dataset")}
}

// ========== 数据集导入 ==========

// CorpusItem 语料段落
type CorpusItem struct {
	DocID          string `json:"doc_id"`
	SectionID      int    `json:"section_id"`
	SectionText    string `json:"section_text"`
	TablesMarkdown string `json:"tables_markdown,omitempty"`
}

// QueryItem 评估问题
type QueryItem struct {
	QueryUUID  string `json:"query_uuid"`
	QueryText  string `json:"query_text"`
	QueryType  string `json:"query_type,omitempty"`
	SourceType string `json:"source_type,omitempty"`
}

// QrelItem 相关性标注，relevance_score 缺省为 1
type QrelItem struct {
	QueryUUID      string `json:"query_uuid"`
	DocID          string `json:"doc_id"`
	SectionID      int    `json:"section_id"`
	RelevanceScore int    `json:"relevance_score"`
}

// AnswerItem 参考答案
type AnswerItem struct {
	QueryUUID       string `json:"query_uuid"`
	ReferenceAnswer string `json:"reference_answer"`
}

// ImportRequest 批量导入请求，已存在的记录跳过
type ImportRequest struct {
	Corpus  []CorpusItem `json:"corpus"`
	Queries []QueryItem  `json:"queries"`
	Qrels   []QrelItem   `json:"qrels"`
	Answers []AnswerItem `json:"answers"`
}

// ImportResult 导入统计
type ImportResult struct {
	Corpus  int `json:"corpus"`
	Queries int `json:"queries"`
	Qrels   int `json:"qrels"`
	Answers int `json:"answers"`
}

// Import 校验并导入数据集
func (s *Service) Import(ctx context.Context, req *ImportRequest) (*ImportResult, error) {
	data := &repository.DatasetImport{}

	for i, c := range req.Corpus {
		if c.DocID == "" || strings.TrimSpace(c.SectionText) == "" {
			return nil, fmt.Errorf("%w: corpus[%d] requires doc_id and section_text", types.ErrInvalidInput, i)
		}
		data.Corpus = append(data.Corpus, model.Corpus{
			DocID:          c.DocID,
			SectionID:      c.SectionID,
			SectionText:    c.SectionText,
			TablesMarkdown: c.TablesMarkdown,
		})
	}

	for i, q := range req.Queries {
		if q.QueryUUID == "" || strings.TrimSpace(q.QueryText) == "" {
			return nil, fmt.Errorf("%w: queries[%d] requires query_uuid and query_text", types.ErrInvalidInput, i)
		}
		data.Queries = append(data.Queries, model.Query{
			QueryUUID:  q.QueryUUID,
			QueryText:  q.QueryText,
			QueryType:  q.QueryType,
			SourceType: q.SourceType,
		})
	}

	for i, r := range req.Qrels {
		if r.QueryUUID == "" || r.DocID == "" {
			return nil, fmt.Errorf("%w: qrels[%d] requires query_uuid and doc_id", types.ErrInvalidInput, i)
		}
		score := r.RelevanceScore
		if score == 0 {
			score = 1
		}
		if score < 0 {
			return nil, fmt.Errorf("%w: qrels[%d] relevance_score must be positive", types.ErrInvalidInput, i)
		}
		data.Qrels = append(data.Qrels, model.Qrel{
			QueryUUID:      r.QueryUUID,
			DocID:          r.DocID,
			SectionID:      r.SectionID,
			RelevanceScore: score,
		})
	}

	for i, a := range req.Answers {
		if a.QueryUUID == "" {
			return nil, fmt.Errorf("%w: answers[%d] requires query_uuid", types.ErrInvalidInput, i)
		}
		data.Answers = append(data.Answers, model.ReferenceAnswer{
			QueryUUID:       a.QueryUUID,
			ReferenceAnswer: a.ReferenceAnswer,
		})
	}

	if err := s.repo.Dataset.Import(ctx, data); err != nil {
		return nil, fmt.Errorf("failed to import dataset: %w", err)
	}

	result := &ImportResult{
		Corpus:  len(data.Corpus),
		Queries: len(data.Queries),
		Qrels:   len(data.Qrels),
		Answers: len(data.Answers),
	}
	s.logger.Info("dataset imported",
		"corpus", result.Corpus,
		"queries", result.Queries,
		"qrels", result.Qrels,
		"answers", result.Answers,
	)
	return result, nil
}

// ========== 向量模型 ==========

// CreateEmbeddingModelRequest 登记向量模型请求
type CreateEmbeddingModelRequest struct {
	ModelName      string `json:"model_name" binding:"required"`
	ModelSource    string `json:"model_source" binding:"required"`
	Dimension      int    `json:"dimension" binding:"required"`
	CollectionName string `json:"collection_name"`
	TotalVectors   int    `json:"total_vectors"`
}

// CreateEmbeddingModel 登记已建好索引的向量模型
func (s *Service) CreateEmbeddingModel(ctx context.Context, req *CreateEmbeddingModelRequest) (*model.EmbeddingModel, error) {
	if !modelSources[req.ModelSource] {
		return nil, fmt.Errorf("%w: unsupported model_source %q", types.ErrInvalidInput, req.ModelSource)
	}
	if req.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", types.ErrInvalidInput)
	}

	collection := req.CollectionName
	if collection == "" {
		collection = CollectionName(req.ModelName)
	}

	m := &model.EmbeddingModel{
		ModelName:      req.ModelName,
		ModelSource:    req.ModelSource,
		Dimension:      req.Dimension,
		CollectionName: collection,
		Status:         model.EmbeddingModelReady,
		TotalVectors:   req.TotalVectors,
	}
	if err := s.repo.EmbeddingModel.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to create embedding model: %w", err)
	}
	s.logger.Info("embedding model registered", "id", m.ID, "model", m.ModelName, "collection", collection)
	return m, nil
}

// ListEmbeddingModels 列出已登记的向量模型
func (s *Service) ListEmbeddingModels(ctx context.Context) ([]*model.EmbeddingModel, error) {
	return s.repo.EmbeddingModel.List(ctx)
}

// CollectionName 由模型名生成向量集合名，如 BAAI/bge-m3 -> vectors_baai_bge_m3
func CollectionName(modelName string) string {
	name := collectionUnsafe.ReplaceAllString(strings.ToLower(modelName), "_")
	return "vectors_" + strings.Trim(name, "_")
}
