// Package evaluation 评估任务编排：抽样、检索、生成、评审、指标计算与持久化
package evaluation

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/ashwinyue/rag-eval/internal/config"
	"github.com/ashwinyue/rag-eval/internal/logger"
	"github.com/ashwinyue/rag-eval/internal/model"
	"github.com/ashwinyue/rag-eval/internal/observability"
	"github.com/ashwinyue/rag-eval/internal/repository"
	"github.com/ashwinyue/rag-eval/internal/service/generation"
	"github.com/ashwinyue/rag-eval/internal/service/jobs"
	"github.com/ashwinyue/rag-eval/internal/service/judge"
	"github.com/ashwinyue/rag-eval/internal/service/rag"
	"github.com/ashwinyue/rag-eval/internal/service/types"
)

const (
	defaultRetrievalTopK = 50
	maxRetrievalTopK     = 500
	defaultRerankerTopK  = 5
	maxRerankerTopK      = 50
	defaultSampleSize    = 100
)

// Retriever 检索流水线
type Retriever interface {
	Retrieve(ctx context.Context, req rag.RetrieveRequest) (*rag.RetrieveResult, error)
}

// AnswerGenerator 答案生成
type AnswerGenerator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
}

// Judge 双轨评审，失败时返回兜底分数而不是错误
type Judge interface {
	TrackA(ctx context.Context, req judge.Request) *judge.TrackAResult
	TrackB(ctx context.Context, req judge.Request) *judge.TrackBResult
}

// Service 评估服务
type Service struct {
	repo      *repository.Repositories
	retriever Retriever
	generator AnswerGenerator
	judge     Judge
	queue     jobs.Queue
	cfg       *config.Config
	logger    *logger.Logger
	now       func() time.Time
}

// NewService 创建评估服务
func NewService(
	repo *repository.Repositories,
	retriever Retriever,
	generator AnswerGenerator,
	j Judge,
	queue jobs.Queue,
	cfg *config.Config,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:      repo,
		retriever: retriever,
		generator: generator,
		judge:     j,
		queue:     queue,
		cfg:       cfg,
		logger:    log.With("component", "evaluation"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ========== 创建任务 ==========

// CreateRunRequest 创建评估任务请求
type CreateRunRequest struct {
	RunName          string                 `json:"run_name"`
	EmbeddingModelID string                 `json:"embedding_model_id" binding:"required"`
	RetrievalTopK    int                    `json:"retrieval_top_k"`
	UseReranker      bool                   `json:"use_reranker"`
	RerankerConfig   *RerankerConfigRequest `json:"reranker_config"`
	JudgeConfig      JudgeConfigRequest     `json:"judge_config"`
	SampleSize       int                    `json:"sample_size"`
	SampleSeed       *int64                 `json:"sample_seed"`
}

// RerankerConfigRequest 重排配置
type RerankerConfigRequest struct {
	ModelName string `json:"model_name"`
	TopK      int    `json:"top_k"`
}

// JudgeConfigRequest 评审配置，api_key 只随任务传递
type JudgeConfigRequest struct {
	ModelName   string   `json:"model_name"`
	APIKey      string   `json:"api_key"`
	Temperature *float64 `json:"temperature"`
}

// CreateRun 校验并保存任务快照，然后入队，立即返回
func (s *Service) CreateRun(ctx context.Context, req *CreateRunRequest) (*model.EvaluationRun, error) {
	runCfg, credential, err := s.buildRunConfig(ctx, req)
	if err != nil {
		return nil, err
	}

	run := &model.EvaluationRun{
		RunName:          req.RunName,
		EmbeddingModelID: runCfg.EmbeddingModelID,
		Config:           datatypes.NewJSONType(*runCfg),
		Status:           model.RunStatusPending,
	}
	if err := s.repo.Run.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	if err := s.queue.Enqueue(ctx, jobs.Job{RunID: run.ID, Credential: credential}); err != nil {
		msg := fmt.Sprintf("failed to enqueue run: %v", err)
		if ferr := s.repo.Run.Fail(context.WithoutCancel(ctx), run.ID, msg, repository.TokenUsage{}, s.now()); ferr != nil {
			s.logger.Error("failed to record enqueue failure", "run_id", run.ID, "error", ferr)
		}
		return nil, fmt.Errorf("failed to enqueue run: %w", err)
	}

	s.logger.Info("evaluation run created",
		"run_id", run.ID,
		"embedding_model_id", runCfg.EmbeddingModelID,
		"sample_size", runCfg.SampleSize,
		"use_reranker", runCfg.UseReranker,
	)
	return run, nil
}

func (s *Service) buildRunConfig(ctx context.Context, req *CreateRunRequest) (*model.RunConfig, string, error) {
	if req.EmbeddingModelID == "" {
		return nil, "", types.NewConfigurationError("embedding_model_id is required")
	}
	if _, err := s.repo.EmbeddingModel.GetByID(ctx, req.EmbeddingModelID); err != nil {
		if types.IsNotFound(err) {
			return nil, "", types.NewConfigurationError("embedding model not found: %s", req.EmbeddingModelID)
		}
		return nil, "", err
	}

	cfg := &model.RunConfig{
		EmbeddingModelID: req.EmbeddingModelID,
		RetrievalTopK:    req.RetrievalTopK,
		UseReranker:      req.UseReranker,
		SampleSize:       req.SampleSize,
		SampleSeed:       req.SampleSeed,
	}

	if cfg.RetrievalTopK == 0 {
		cfg.RetrievalTopK = defaultRetrievalTopK
	}
	if cfg.RetrievalTopK < 1 || cfg.RetrievalTopK > maxRetrievalTopK {
		return nil, "", types.NewConfigurationError("retrieval_top_k must be between 1 and %d", maxRetrievalTopK)
	}

	if cfg.SampleSize == 0 {
		cfg.SampleSize = defaultSampleSize
	}
	if cfg.SampleSize < 1 {
		return nil, "", types.NewConfigurationError("sample_size must be at least 1")
	}

	if req.UseReranker {
		if req.RerankerConfig == nil || req.RerankerConfig.ModelName == "" {
			return nil, "", types.NewConfigurationError("reranker config is required when use_reranker is true")
		}
		topK := req.RerankerConfig.TopK
		if topK == 0 {
			topK = defaultRerankerTopK
		}
		if topK < 1 || topK > maxRerankerTopK {
			return nil, "", types.NewConfigurationError("reranker top_k must be between 1 and %d", maxRerankerTopK)
		}
		cfg.Reranker = &model.RerankerSettings{ModelName: req.RerankerConfig.ModelName, TopK: topK}
		cfg.RerankerTopK = topK
	}

	judgeModel := req.JudgeConfig.ModelName
	if judgeModel == "" {
		judgeModel = s.cfg.AI.OpenAI.Model
	}
	temperature := 0.0
	if req.JudgeConfig.Temperature != nil {
		temperature = *req.JudgeConfig.Temperature
	}
	if temperature < 0 || temperature > 1 {
		return nil, "", types.NewConfigurationError("judge temperature must be between 0 and 1")
	}

	credential := req.JudgeConfig.APIKey
	if credential == "" {
		credential = s.cfg.AI.OpenAI.APIKey
	}
	if credential == "" {
		return nil, "", types.NewConfigurationError("judge_config.api_key is required")
	}

	cfg.Judge = model.JudgeSettings{
		ModelName:             judgeModel,
		Temperature:           temperature,
		CredentialFingerprint: fingerprint(credential),
	}
	return cfg, credential, nil
}

// fingerprint 凭据的不可逆指纹，用于区分任务使用的密钥
func fingerprint(credential string) string {
	sum := blake2b.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:8])
}

// ========== 执行任务 ==========

// queryOutcome 单题执行结果，用于任务结束后的汇总
type queryOutcome struct {
	metrics          RetrievalMetrics
	score            *model.JudgeScore
	generationInput  int
	generationOutput int
}

// InterruptedMessage 重启时未结束任务的错误信息
const InterruptedMessage = "interrupted by restart"

// RecoverInterrupted 启动时收尾上次进程遗留的任务
// running 任务一律记为失败；内存队列的 pending 任务已随进程丢失，同样记为失败
func (s *Service) RecoverInterrupted(ctx context.Context) (int64, error) {
	statuses := []model.RunStatus{model.RunStatusRunning}
	if s.cfg.Evaluation.Queue != "redis" {
		statuses = append(statuses, model.RunStatusPending)
	}

	n, err := s.repo.Run.FailStale(ctx, statuses, InterruptedMessage, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to recover interrupted runs: %w", err)
	}
	if n > 0 {
		observability.RunsTotal.WithLabelValues(string(model.RunStatusError)).Add(float64(n))
		s.logger.Warn("interrupted runs marked as failed", "count", n)
	}
	return n, nil
}

// Handle 执行队列中的任务
func (s *Service) Handle(ctx context.Context, job jobs.Job) error {
	return s.Execute(ctx, job.RunID, job.Credential)
}

// Abort 记录执行器未能处理的失败
func (s *Service) Abort(ctx context.Context, runID string, cause error) {
	if err := s.repo.Run.Fail(ctx, runID, cause.Error(), repository.TokenUsage{}, s.now()); err != nil {
		s.logger.Error("failed to record run abort", "run_id", runID, "error", err)
		return
	}
	observability.RunsTotal.WithLabelValues(string(model.RunStatusError)).Inc()
}

// Execute 执行评估任务：pending -> running -> completed|error
// 已写入的单题结果在失败时保留
func (s *Service) Execute(ctx context.Context, runID, credential string) error {
	run, err := s.repo.Run.GetByID(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != model.RunStatusPending {
		s.logger.Warn("skip run that is no longer pending", "run_id", runID, "status", run.Status)
		return nil
	}
	cfg := run.Config.Data()

	// 加载失败也先进入 running，再记为 error
	queries, loadErr := s.repo.Dataset.ListQueries(ctx)
	sampled := SampleQueries(queries, cfg.SampleSize, cfg.SampleSeed)

	started, err := s.repo.Run.MarkRunning(ctx, runID, len(sampled), s.now())
	if err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	if !started {
		s.logger.Warn("run was claimed elsewhere, skipping", "run_id", runID)
		return nil
	}
	if loadErr != nil {
		return s.fail(ctx, runID, types.NewCollaboratorError("load queries", loadErr), nil)
	}

	s.logger.Info("evaluation run started", "run_id", runID, "queries", len(sampled))

	outcomes := make([]*queryOutcome, len(sampled))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.queryConcurrency())
	for i := range sampled {
		if gctx.Err() != nil {
			break
		}
		i, q := i, sampled[i]
		g.Go(func() error {
			out, err := s.processQuery(gctx, runID, cfg, credential, q)
			if err != nil {
				return fmt.Errorf("query %s: %w", q.QueryUUID, err)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return s.fail(ctx, runID, err, outcomes)
	}

	metrics := make([]RetrievalMetrics, 0, len(outcomes))
	scores := make([]*model.JudgeScore, 0, len(outcomes))
	for _, out := range outcomes {
		metrics = append(metrics, out.metrics)
		scores = append(scores, out.score)
	}
	summary := BuildSummary(metrics, scores)

	if err := s.repo.Run.Complete(context.WithoutCancel(ctx), runID, summary, sumUsage(outcomes), s.now()); err != nil {
		return s.fail(ctx, runID, fmt.Errorf("failed to complete run: %w", err), outcomes)
	}

	observability.RunsTotal.WithLabelValues(string(model.RunStatusCompleted)).Inc()
	s.logger.Info("evaluation run completed",
		"run_id", runID,
		"recall_at_k", summary.Retrieval.RecallAtK,
		"mrr", summary.Retrieval.MRR,
		"track_a_overall", summary.TrackA.AvgOverall,
	)
	return nil
}

func (s *Service) queryConcurrency() int {
	if s.cfg.Evaluation.QueryConcurrency < 1 {
		return 1
	}
	return s.cfg.Evaluation.QueryConcurrency
}

func (s *Service) fail(ctx context.Context, runID string, cause error, outcomes []*queryOutcome) error {
	s.logger.Error("evaluation run failed", "run_id", runID, "error", cause)

	if err := s.repo.Run.Fail(context.WithoutCancel(ctx), runID, cause.Error(), sumUsage(outcomes), s.now()); err != nil {
		s.logger.Error("failed to record run failure", "run_id", runID, "error", err)
	}
	observability.RunsTotal.WithLabelValues(string(model.RunStatusError)).Inc()
	return cause
}

func sumUsage(outcomes []*queryOutcome) repository.TokenUsage {
	var u repository.TokenUsage
	for _, out := range outcomes {
		if out == nil {
			continue
		}
		u.GenerationInput += out.generationInput
		u.GenerationOutput += out.generationOutput
		if out.score != nil {
			u.JudgeInput += out.score.TrackAInputTokens + out.score.TrackBInputTokens
			u.JudgeOutput += out.score.TrackAOutputTokens + out.score.TrackBOutputTokens
		}
	}
	return u
}

// processQuery 单题流程：检索 -> 解析上下文 -> 生成 -> 评审 -> 指标 -> 持久化
func (s *Service) processQuery(ctx context.Context, runID string, cfg model.RunConfig, credential string, q model.Query) (*queryOutcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reference, err := s.repo.Dataset.ReferenceAnswer(ctx, q.QueryUUID)
	if err != nil {
		return nil, types.NewCollaboratorError("load reference answer", err)
	}
	qrels, err := s.repo.Dataset.QrelsByQuery(ctx, q.QueryUUID)
	if err != nil {
		return nil, types.NewCollaboratorError("load qrels", err)
	}

	retrieval, err := s.retriever.Retrieve(ctx, rag.RetrieveRequest{
		EmbeddingModelID:  cfg.EmbeddingModelID,
		QueryText:         q.QueryText,
		TopK:              cfg.RetrievalTopK,
		UseReranker:       cfg.UseReranker,
		RerankerModelName: cfg.RerankerModelName(),
		RerankerTopK:      cfg.RerankerTopK,
	})
	if err != nil {
		return nil, err
	}
	final := retrieval.Final()

	contexts, err := s.resolveContexts(ctx, final)
	if err != nil {
		return nil, types.NewCollaboratorError("resolve context", err)
	}

	gen, err := s.generator.Generate(ctx, generation.Request{
		Question:    q.QueryText,
		Contexts:    contexts,
		ModelName:   cfg.Judge.ModelName,
		APIKey:      credential,
		Temperature: cfg.Judge.Temperature,
	})
	if err != nil {
		return nil, err
	}

	jreq := judge.Request{
		Question:        q.QueryText,
		ReferenceAnswer: reference,
		Answer:          gen.Answer,
		Contexts:        contexts,
		ModelName:       cfg.Judge.ModelName,
		APIKey:          credential,
		Temperature:     cfg.Judge.Temperature,
	}
	score := judge.NewScore(s.judge.TrackA(ctx, jreq), s.judge.TrackB(ctx, jreq))

	metrics := ComputeRetrievalMetrics(retrieval.Retrieved, qrels, cfg.RetrievalTopK)

	result := &model.EvaluationResult{
		RunID:            runID,
		QueryUUID:        q.QueryUUID,
		RetrievedIDs:     nonNilItems(retrieval.Retrieved),
		RerankedIDs:      retrieval.Reranked,
		FinalContextIDs:  nonNilItems(final),
		FinalContextText: generation.JoinContexts(contexts),
		GeneratedAnswer:  gen.Answer,
		RecallAtK:        metrics.RecallAtK,
		MRR:              metrics.MRR,
		NDCGAtK:          metrics.NDCGAtK,
		GoldInTopK:       metrics.GoldInTopK,
		ContextTokens:    gen.InputTokens,
		AnswerTokens:     gen.OutputTokens,
		JudgeScore:       score,
	}
	if err := s.repo.Result.CreateWithScore(ctx, result); err != nil {
		return nil, types.NewCollaboratorError("persist result", err)
	}
	observability.QueriesProcessed.Inc()

	s.logger.Debug("query evaluated",
		"run_id", runID,
		"query_uuid", q.QueryUUID,
		"recall_at_k", metrics.RecallAtK,
		"track_a_overall", *score.TrackAOverall,
	)

	return &queryOutcome{
		metrics:          metrics,
		score:            score,
		generationInput:  gen.InputTokens,
		generationOutput: gen.OutputTokens,
	}, nil
}

// resolveContexts 取最终上下文的展示文本，找不到的段落跳过
func (s *Service) resolveContexts(ctx context.Context, items []model.RetrievedItem) ([]string, error) {
	contexts := make([]string, 0, len(items))
	for _, item := range items {
		section, err := s.repo.Dataset.GetSection(ctx, item.DocID, item.SectionID)
		if err != nil {
			return nil, err
		}
		if section == nil {
			continue
		}
		contexts = append(contexts, section.DisplayText())
	}
	return contexts, nil
}

func nonNilItems(items []model.RetrievedItem) []model.RetrievedItem {
	if items == nil {
		return []model.RetrievedItem{}
	}
	return items
}

// ========== 查询 ==========

// Progress 任务进度
type Progress struct {
	RunID          string          `json:"run_id"`
	Status         model.RunStatus `json:"status"`
	ProcessedCount int64           `json:"processed_count"`
	TotalCount     int             `json:"total_count"`
	Percentage     float64         `json:"percentage"`
	CurrentStep    string          `json:"current_step"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
}

// GetProgress 已写入的结果数 / 抽样数
func (s *Service) GetProgress(ctx context.Context, runID string) (*Progress, error) {
	run, err := s.repo.Run.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	processed, err := s.repo.Result.CountByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	// 开始执行前还不知道实际抽样数，先用请求的 sample_size
	total := run.TotalQueries
	if total == 0 {
		total = run.Config.Data().SampleSize
	}
	percentage := 0.0
	if total > 0 {
		percentage = float64(processed) / float64(total) * 100
	}

	return &Progress{
		RunID:          run.ID,
		Status:         run.Status,
		ProcessedCount: processed,
		TotalCount:     total,
		Percentage:     percentage,
		CurrentStep:    string(run.Status),
		ErrorMessage:   run.ErrorMessage,
	}, nil
}

// ListRuns 按创建时间倒序列出任务
func (s *Service) ListRuns(ctx context.Context, status model.RunStatus, limit, offset int) ([]*model.EvaluationRun, int64, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.Run.List(ctx, status, limit, offset)
}

// DeleteRun 删除任务及其结果，执行中的任务拒绝删除
func (s *Service) DeleteRun(ctx context.Context, runID string) error {
	if err := s.repo.Run.Delete(ctx, runID); err != nil {
		return err
	}
	s.logger.Info("evaluation run deleted", "run_id", runID)
	return nil
}
