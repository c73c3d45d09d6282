package evaluation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ashwinyue/rag-eval/internal/model"
)

// RunSummary 任务汇总
type RunSummary struct {
	RunID          string                `json:"run_id"`
	RunName        string                `json:"run_name,omitempty"`
	Status         model.RunStatus       `json:"status"`
	Config         model.RunConfig       `json:"config"`
	MetricsSummary *model.MetricsSummary `json:"metrics_summary"`
	TokenUsage     TokenUsageView        `json:"token_usage"`
	Timing         TimingView            `json:"timing"`
	ErrorMessage   *string               `json:"error_message,omitempty"`
}

// TokenUsageView token 统计与估算费用
type TokenUsageView struct {
	GenerationInput  int     `json:"total_generation_input"`
	GenerationOutput int     `json:"total_generation_output"`
	JudgeInput       int     `json:"total_judge_input"`
	JudgeOutput      int     `json:"total_judge_output"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// TimingView 时间信息
type TimingView struct {
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	DurationSeconds *float64   `json:"duration_seconds"`
}

// GetRunSummary 返回配置、汇总指标、token 与耗时，未完成时 metrics_summary 为 null
func (s *Service) GetRunSummary(ctx context.Context, runID string) (*RunSummary, error) {
	run, err := s.repo.Run.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	summary, err := run.Summary()
	if err != nil {
		return nil, err
	}
	cfg := run.Config.Data()

	usage := TokenUsageView{
		GenerationInput:  run.GenerationInputTokens,
		GenerationOutput: run.GenerationOutputTokens,
		JudgeInput:       run.JudgeInputTokens,
		JudgeOutput:      run.JudgeOutputTokens,
	}
	// 生成与评审使用同一模型
	price := s.cfg.Evaluation.PriceFor(cfg.Judge.ModelName)
	input := float64(usage.GenerationInput + usage.JudgeInput)
	output := float64(usage.GenerationOutput + usage.JudgeOutput)
	usage.EstimatedCostUSD = (input*price.Input + output*price.Output) / 1e6

	timing := TimingView{
		CreatedAt:   run.CreatedAt,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}
	if run.StartedAt != nil && run.CompletedAt != nil {
		d := run.CompletedAt.Sub(*run.StartedAt).Seconds()
		timing.DurationSeconds = &d
	}

	return &RunSummary{
		RunID:          run.ID,
		RunName:        run.RunName,
		Status:         run.Status,
		Config:         cfg,
		MetricsSummary: summary,
		TokenUsage:     usage,
		Timing:         timing,
		ErrorMessage:   run.ErrorMessage,
	}, nil
}

// ========== 单题结果 ==========

// TrackAView 答案质量评分
type TrackAView struct {
	Correctness  *float64 `json:"correctness"`
	Completeness *float64 `json:"completeness"`
	Specificity  *float64 `json:"specificity"`
	Clarity      *float64 `json:"clarity"`
	Overall      *float64 `json:"overall"`
	Reason       string   `json:"reason"`
}

// TrackBView 依据性评分
type TrackBView struct {
	ContextSupport      *float64 `json:"context_support"`
	Hallucination       *float64 `json:"hallucination"`
	CitationQuality     *float64 `json:"citation_quality"`
	OverallGroundedness *float64 `json:"overall_groundedness"`
	UnsupportedClaims   []string `json:"unsupported_claims"`
}

// ScoresView 两轨评分
type ScoresView struct {
	TrackA TrackAView `json:"track_a"`
	TrackB TrackBView `json:"track_b"`
}

// RetrievalMetricsView 单题检索指标
type RetrievalMetricsView struct {
	RecallAtK  float64 `json:"recall_at_k"`
	MRR        float64 `json:"mrr"`
	NDCGAtK    float64 `json:"ndcg_at_k"`
	GoldInTopK bool    `json:"gold_in_top_k"`
}

// ResultView 结果列表中的一行
type ResultView struct {
	QueryUUID        string                `json:"query_uuid"`
	QueryText        string                `json:"query_text"`
	ReferenceAnswer  string                `json:"reference_answer"`
	GeneratedAnswer  string                `json:"generated_answer"`
	RetrievedDocs    []model.RetrievedItem `json:"retrieved_docs"`
	RerankedDocs     []model.RetrievedItem `json:"reranked_docs"`
	Scores           ScoresView            `json:"scores"`
	RetrievalMetrics RetrievalMetricsView  `json:"retrieval_metrics"`
}

// ResultList 分页结果
type ResultList struct {
	RunID   string        `json:"run_id"`
	Total   int64         `json:"total"`
	Results []*ResultView `json:"results"`
}

// ListResults 分页列出单题结果，limit <= 0 返回全部
func (s *Service) ListResults(ctx context.Context, runID string, limit, offset int) (*ResultList, error) {
	if _, err := s.repo.Run.GetByID(ctx, runID); err != nil {
		return nil, err
	}
	rows, total, err := s.repo.Result.ListByRun(ctx, runID, limit, offset)
	if err != nil {
		return nil, err
	}

	views := make([]*ResultView, 0, len(rows))
	for _, row := range rows {
		view, err := s.resultView(ctx, row)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return &ResultList{RunID: runID, Total: total, Results: views}, nil
}

// ExportResults 导出任务的全部结果
func (s *Service) ExportResults(ctx context.Context, runID string) (*ResultList, error) {
	return s.ListResults(ctx, runID, 0, 0)
}

func (s *Service) resultView(ctx context.Context, row *model.EvaluationResult) (*ResultView, error) {
	query, err := s.repo.Dataset.GetQuery(ctx, row.QueryUUID)
	if err != nil {
		return nil, err
	}
	reference, err := s.repo.Dataset.ReferenceAnswer(ctx, row.QueryUUID)
	if err != nil {
		return nil, err
	}

	return &ResultView{
		QueryUUID:        row.QueryUUID,
		QueryText:        query.QueryText,
		ReferenceAnswer:  reference,
		GeneratedAnswer:  row.GeneratedAnswer,
		RetrievedDocs:    row.RetrievedIDs,
		RerankedDocs:     row.RerankedIDs,
		Scores:           scoresView(row.JudgeScore),
		RetrievalMetrics: metricsView(row),
	}, nil
}

func scoresView(score *model.JudgeScore) ScoresView {
	if score == nil {
		return ScoresView{TrackB: TrackBView{UnsupportedClaims: []string{}}}
	}
	claims := []string(score.TrackBUnsupportedClaims)
	if claims == nil {
		claims = []string{}
	}
	return ScoresView{
		TrackA: TrackAView{
			Correctness:  score.TrackACorrectness,
			Completeness: score.TrackACompleteness,
			Specificity:  score.TrackASpecificity,
			Clarity:      score.TrackAClarity,
			Overall:      score.TrackAOverall,
			Reason:       score.TrackAReason,
		},
		TrackB: TrackBView{
			ContextSupport:      score.TrackBContextSupport,
			Hallucination:       score.TrackBHallucination,
			CitationQuality:     score.TrackBCitationQuality,
			OverallGroundedness: score.TrackBOverall,
			UnsupportedClaims:   claims,
		},
	}
}

func metricsView(row *model.EvaluationResult) RetrievalMetricsView {
	return RetrievalMetricsView{
		RecallAtK:  row.RecallAtK,
		MRR:        row.MRR,
		NDCGAtK:    row.NDCGAtK,
		GoldInTopK: row.GoldInTopK,
	}
}

// ========== 单题详情 ==========

// QueryInfo 问题信息
type QueryInfo struct {
	UUID string `json:"uuid"`
	Text string `json:"text"`
	Type string `json:"type,omitempty"`
}

// JudgeResponses 评审原始输出
type JudgeResponses struct {
	TrackA json.RawMessage `json:"track_a"`
	TrackB json.RawMessage `json:"track_b"`
}

// TokenCounts 单题 token 统计
type TokenCounts struct {
	ContextTokens int `json:"context_tokens"`
	AnswerTokens  int `json:"answer_tokens"`
	JudgeTokens   int `json:"judge_tokens"`
}

// QueryResultDetail 单题完整结果
type QueryResultDetail struct {
	RunID            string                `json:"run_id"`
	Query            QueryInfo             `json:"query"`
	ReferenceAnswer  string                `json:"reference_answer"`
	GeneratedAnswer  string                `json:"generated_answer"`
	RetrievedDocs    []model.RetrievedItem `json:"retrieved_docs"`
	RerankedDocs     []model.RetrievedItem `json:"reranked_docs"`
	FinalContextDocs []model.RetrievedItem `json:"final_context_docs"`
	FinalContext     string                `json:"final_context"`
	Scores           ScoresView            `json:"scores"`
	RetrievalMetrics RetrievalMetricsView  `json:"retrieval_metrics"`
	JudgeResponses   JudgeResponses        `json:"judge_responses"`
	TokenCounts      TokenCounts           `json:"token_counts"`
}

// GetQueryResult 返回某个问题在任务中的完整结果
func (s *Service) GetQueryResult(ctx context.Context, runID, queryUUID string) (*QueryResultDetail, error) {
	row, err := s.repo.Result.GetByRunAndQuery(ctx, runID, queryUUID)
	if err != nil {
		return nil, err
	}
	query, err := s.repo.Dataset.GetQuery(ctx, queryUUID)
	if err != nil {
		return nil, err
	}
	reference, err := s.repo.Dataset.ReferenceAnswer(ctx, queryUUID)
	if err != nil {
		return nil, err
	}

	detail := &QueryResultDetail{
		RunID:            runID,
		Query:            QueryInfo{UUID: query.QueryUUID, Text: query.QueryText, Type: query.QueryType},
		ReferenceAnswer:  reference,
		GeneratedAnswer:  row.GeneratedAnswer,
		RetrievedDocs:    row.RetrievedIDs,
		RerankedDocs:     row.RerankedIDs,
		FinalContextDocs: row.FinalContextIDs,
		FinalContext:     row.FinalContextText,
		Scores:           scoresView(row.JudgeScore),
		RetrievalMetrics: metricsView(row),
		TokenCounts: TokenCounts{
			ContextTokens: row.ContextTokens,
			AnswerTokens:  row.AnswerTokens,
			JudgeTokens:   row.JudgeScore.TotalTokens(),
		},
	}
	if row.JudgeScore != nil {
		detail.JudgeResponses = JudgeResponses{
			TrackA: rawOrNull(row.JudgeScore.TrackARawResponse),
			TrackB: rawOrNull(row.JudgeScore.TrackBRawResponse),
		}
	}
	return detail, nil
}

func rawOrNull(raw []byte) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(raw)
}
