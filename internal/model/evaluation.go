package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RunStatus 评估任务状态
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"   // 已入队
	RunStatusRunning   RunStatus = "running"   // 执行中
	RunStatusCompleted RunStatus = "completed" // 已完成
	RunStatusError     RunStatus = "error"     // 失败
)

// IsTerminal 是否为终态
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusError
}

// RetrievedItem 检索或重排得到的一条候选，按分数降序排列
type RetrievedItem struct {
	CorpusID  uint    `json:"corpus_id,omitempty"`
	DocID     string  `json:"doc_id"`
	SectionID int     `json:"section_id"`
	Score     float64 `json:"score"`
}

// RerankerSettings 重排配置
type RerankerSettings struct {
	ModelName string `json:"model_name"`
	TopK      int    `json:"top_k"`
}

// JudgeSettings 评审模型配置，凭据本身不落库，只保存指纹
type JudgeSettings struct {
	ModelName             string  `json:"model_name"`
	Temperature           float64 `json:"temperature"`
	CredentialFingerprint string  `json:"credential_fingerprint,omitempty"`
}

// RunConfig 创建时的配置快照，之后不随全局配置变化
type RunConfig struct {
	EmbeddingModelID string            `json:"embedding_model_id"`
	RetrievalTopK    int               `json:"retrieval_top_k"`
	UseReranker      bool              `json:"use_reranker"`
	Reranker         *RerankerSettings `json:"reranker_config"`
	RerankerTopK     int               `json:"reranker_top_k"`
	Judge            JudgeSettings     `json:"judge_config"`
	SampleSize       int               `json:"sample_size"`
	SampleSeed       *int64            `json:"sample_seed"`
}

// RerankerModelName 启用重排时返回模型名，否则为空
func (c RunConfig) RerankerModelName() string {
	if !c.UseReranker || c.Reranker == nil {
		return ""
	}
	return c.Reranker.ModelName
}

// EvaluationRun 一次评估任务
type EvaluationRun struct {
	ID               string                       `json:"id" gorm:"type:varchar(36);primaryKey"`
	RunName          string                       `json:"run_name,omitempty" gorm:"type:varchar(255)"`
	EmbeddingModelID string                       `json:"embedding_model_id" gorm:"type:varchar(36);not null;index"`
	Config           datatypes.JSONType[RunConfig] `json:"config" gorm:"not null"`
	Status           RunStatus                    `json:"status" gorm:"type:varchar(20);default:'pending';index"`
	ErrorMessage     *string                      `json:"error_message,omitempty" gorm:"type:text"`
	MetricsSummary   datatypes.JSON               `json:"metrics_summary,omitempty"`
	TotalQueries     int                          `json:"total_queries" gorm:"default:0"`

	// Token 统计
	GenerationInputTokens  int `json:"generation_input_tokens" gorm:"default:0"`
	GenerationOutputTokens int `json:"generation_output_tokens" gorm:"default:0"`
	JudgeInputTokens       int `json:"judge_input_tokens" gorm:"default:0"`
	JudgeOutputTokens      int `json:"judge_output_tokens" gorm:"default:0"`

	// 时间戳
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate GORM 钩子，创建前生成 UUID
func (r *EvaluationRun) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (EvaluationRun) TableName() string {
	return "evaluation_runs"
}

// Summary 解析汇总指标，未完成的任务返回 nil
func (r *EvaluationRun) Summary() (*MetricsSummary, error) {
	if len(r.MetricsSummary) == 0 || string(r.MetricsSummary) == "null" {
		return nil, nil
	}
	var s MetricsSummary
	if err := json.Unmarshal(r.MetricsSummary, &s); err != nil {
		return nil, fmt.Errorf("failed to decode metrics summary: %w", err)
	}
	return &s, nil
}

// MetricsSummary 任务级汇总指标
type MetricsSummary struct {
	Retrieval RetrievalSummary `json:"retrieval"`
	TrackA    TrackASummary    `json:"track_a"`
	TrackB    TrackBSummary    `json:"track_b"`
}

// RetrievalSummary 检索指标均值
type RetrievalSummary struct {
	RecallAtK  float64 `json:"recall_at_k"`
	MRR        float64 `json:"mrr"`
	NDCGAtK    float64 `json:"ndcg_at_k"`
	GoldInTopK float64 `json:"gold_in_top_k"`
}

// TrackASummary 答案质量评分均值
type TrackASummary struct {
	AvgCorrectness  float64 `json:"avg_correctness"`
	AvgCompleteness float64 `json:"avg_completeness"`
	AvgSpecificity  float64 `json:"avg_specificity"`
	AvgClarity      float64 `json:"avg_clarity"`
	AvgOverall      float64 `json:"avg_overall"`
}

// TrackBSummary 依据性评分均值
type TrackBSummary struct {
	AvgContextSupport  float64 `json:"avg_context_support"`
	AvgHallucination   float64 `json:"avg_hallucination"`
	AvgCitationQuality float64 `json:"avg_citation_quality"`
	AvgOverall         float64 `json:"avg_overall"`
}

// EvaluationResult 单个问题的评估结果，写入后不再修改
type EvaluationResult struct {
	ID               string                            `json:"id" gorm:"type:varchar(36);primaryKey"`
	RunID            string                            `json:"run_id" gorm:"type:varchar(36);not null;index;uniqueIndex:idx_results_run_query"`
	QueryUUID        string                            `json:"query_uuid" gorm:"type:varchar(255);not null;index;uniqueIndex:idx_results_run_query"`
	RetrievedIDs     datatypes.JSONSlice[RetrievedItem] `json:"retrieved_ids" gorm:"not null"`
	RerankedIDs      datatypes.JSONSlice[RetrievedItem] `json:"reranked_ids"`
	FinalContextIDs  datatypes.JSONSlice[RetrievedItem] `json:"final_context_ids" gorm:"not null"`
	FinalContextText string                            `json:"final_context_text" gorm:"type:text"`
	GeneratedAnswer  string                            `json:"generated_answer" gorm:"type:text;not null"`

	// 检索指标
	RecallAtK  float64 `json:"recall_at_k"`
	MRR        float64 `json:"mrr"`
	NDCGAtK    float64 `json:"ndcg_at_k"`
	GoldInTopK bool    `json:"gold_in_top_k"`

	// 生成 token
	ContextTokens int `json:"context_tokens"`
	AnswerTokens  int `json:"answer_tokens"`

	JudgeScore *JudgeScore `json:"judge_score,omitempty" gorm:"foreignKey:ResultID;constraint:OnDelete:CASCADE"`
	CreatedAt  time.Time   `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate GORM 钩子，创建前生成 UUID
func (r *EvaluationResult) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (EvaluationResult) TableName() string {
	return "evaluation_results"
}

// JudgeScore 评审得分，与 EvaluationResult 一一对应
type JudgeScore struct {
	ID       string `json:"id" gorm:"type:varchar(36);primaryKey"`
	ResultID string `json:"result_id" gorm:"type:varchar(36);not null;uniqueIndex"`

	// Track A: 答案质量
	TrackACorrectness  *float64       `json:"track_a_correctness"`
	TrackACompleteness *float64       `json:"track_a_completeness"`
	TrackASpecificity  *float64       `json:"track_a_specificity"`
	TrackAClarity      *float64       `json:"track_a_clarity"`
	TrackAOverall      *float64       `json:"track_a_overall"`
	TrackAReason       string         `json:"track_a_reason" gorm:"type:text"`
	TrackARawResponse  datatypes.JSON `json:"track_a_raw_response"`

	// Track B: 依据性
	TrackBContextSupport    *float64                   `json:"track_b_context_support"`
	TrackBHallucination     *float64                   `json:"track_b_hallucination"`
	TrackBCitationQuality   *float64                   `json:"track_b_citation_quality"`
	TrackBOverall           *float64                   `json:"track_b_overall"`
	TrackBUnsupportedClaims datatypes.JSONSlice[string] `json:"track_b_unsupported_claims"`
	TrackBRawResponse       datatypes.JSON             `json:"track_b_raw_response"`

	TrackAInputTokens  int `json:"track_a_input_tokens"`
	TrackAOutputTokens int `json:"track_a_output_tokens"`
	TrackBInputTokens  int `json:"track_b_input_tokens"`
	TrackBOutputTokens int `json:"track_b_output_tokens"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate GORM 钩子，创建前生成 UUID
func (s *JudgeScore) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (JudgeScore) TableName() string {
	return "judge_scores"
}

// TotalTokens 两个评审轨道的 token 总数
func (s *JudgeScore) TotalTokens() int {
	if s == nil {
		return 0
	}
	return s.TrackAInputTokens + s.TrackAOutputTokens + s.TrackBInputTokens + s.TrackBOutputTokens
}
