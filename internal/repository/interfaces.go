// Package repository 定义数据访问接口
// 接口抽象使依赖注入和单元测试成为可能
package repository

import (
	"context"
	"time"

	"github.com/ashwinyue/rag-eval/internal/model"
)

// ========== RunRepository 接口 ==========

// RunRepository 评估任务数据访问接口
// 状态迁移均为条件更新，终态之后不会再回到 running
type RunRepository interface {
	Create(ctx context.Context, run *model.EvaluationRun) error
	GetByID(ctx context.Context, id string) (*model.EvaluationRun, error)
	List(ctx context.Context, status model.RunStatus, limit, offset int) ([]*model.EvaluationRun, int64, error)

	// MarkRunning pending -> running，返回是否发生迁移
	MarkRunning(ctx context.Context, id string, totalQueries int, startedAt time.Time) (bool, error)
	// Complete running -> completed，写入汇总指标与 token 统计
	Complete(ctx context.Context, id string, summary *model.MetricsSummary, usage TokenUsage, completedAt time.Time) error
	// Fail pending/running -> error
	Fail(ctx context.Context, id string, message string, usage TokenUsage, completedAt time.Time) error
	// FailStale 将处于给定状态的任务全部记为 error，返回影响行数
	FailStale(ctx context.Context, statuses []model.RunStatus, message string, completedAt time.Time) (int64, error)

	// Delete 级联删除结果与评分，running 状态拒绝删除
	Delete(ctx context.Context, id string) error
}

// TokenUsage 任务级 token 统计
type TokenUsage struct {
	GenerationInput  int
	GenerationOutput int
	JudgeInput       int
	JudgeOutput      int
}

// ========== ResultRepository 接口 ==========

// ResultRepository 单题结果数据访问接口
type ResultRepository interface {
	// CreateWithScore 在同一事务中写入结果及其评分
	CreateWithScore(ctx context.Context, result *model.EvaluationResult) error
	CountByRun(ctx context.Context, runID string) (int64, error)
	ListByRun(ctx context.Context, runID string, limit, offset int) ([]*model.EvaluationResult, int64, error)
	GetByRunAndQuery(ctx context.Context, runID, queryUUID string) (*model.EvaluationResult, error)
}

// ========== DatasetRepository 接口 ==========

// DatasetRepository 评估数据集（问题、标注、参考答案、语料）只读访问
type DatasetRepository interface {
	ListQueries(ctx context.Context) ([]model.Query, error)
	GetQuery(ctx context.Context, queryUUID string) (*model.Query, error)
	QrelsByQuery(ctx context.Context, queryUUID string) ([]model.Qrel, error)
	// ReferenceAnswer 无参考答案时返回空字符串
	ReferenceAnswer(ctx context.Context, queryUUID string) (string, error)
	// GetSection 段落不存在时返回 nil, nil
	GetSection(ctx context.Context, docID string, sectionID int) (*model.Corpus, error)

	Import(ctx context.Context, data *DatasetImport) error
}

// DatasetImport 批量导入的数据集内容
type DatasetImport struct {
	Corpus  []model.Corpus
	Queries []model.Query
	Qrels   []model.Qrel
	Answers []model.ReferenceAnswer
}

// ========== EmbeddingModelRepository 接口 ==========

// EmbeddingModelRepository 向量模型数据访问接口
type EmbeddingModelRepository interface {
	Create(ctx context.Context, m *model.EmbeddingModel) error
	GetByID(ctx context.Context, id string) (*model.EmbeddingModel, error)
	List(ctx context.Context) ([]*model.EmbeddingModel, error)
}

// 确保实现了接口
var (
	_ RunRepository            = (*runRepositoryImpl)(nil)
	_ ResultRepository         = (*resultRepositoryImpl)(nil)
	_ DatasetRepository        = (*datasetRepositoryImpl)(nil)
	_ EmbeddingModelRepository = (*embeddingModelRepositoryImpl)(nil)
)
