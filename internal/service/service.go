package service

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ashwinyue/rag-eval/internal/config"
	"github.com/ashwinyue/rag-eval/internal/logger"
	"github.com/ashwinyue/rag-eval/internal/repository"
	"github.com/ashwinyue/rag-eval/internal/service/dataset"
	"github.com/ashwinyue/rag-eval/internal/service/evaluation"
	"github.com/ashwinyue/rag-eval/internal/service/generation"
	"github.com/ashwinyue/rag-eval/internal/service/jobs"
	"github.com/ashwinyue/rag-eval/internal/service/judge"
	"github.com/ashwinyue/rag-eval/internal/service/rag"
	"github.com/ashwinyue/rag-eval/internal/service/registry"
	"github.com/ashwinyue/rag-eval/internal/service/vectorstore"
)

// Services 服务集合
type Services struct {
	// 业务服务
	Evaluation *evaluation.Service
	Dataset    *dataset.Service

	// 基础组件
	Config   *config.Config
	Registry *registry.Registry
	Queue    jobs.Queue
	Pipeline *rag.Pipeline
}

// NewServices 创建所有服务
// eino 组件按需通过注册表加载，评审与生成的模型在每次调用时按任务配置创建
func NewServices(repo *repository.Repositories, cfg *config.Config, redisClient *redis.Client, log *logger.Logger) (*Services, error) {
	store, err := vectorstore.New(cfg, repo.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}

	chatFactory := newChatModelFactory(cfg)

	reg := registry.New()
	reg.Register(registry.KindEmbedding, newEmbeddingLoader(cfg))
	reg.Register(registry.KindReranker, newRerankerLoader(cfg, chatFactory))

	pipeline := rag.NewPipeline(repo.EmbeddingModel, repo.Dataset, store, reg, log)

	j, err := judge.NewJudge(chatFactory, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create judge: %w", err)
	}
	generator := generation.NewGenerator(chatFactory, log)

	queue, err := jobs.NewQueue(cfg.Evaluation, redisClient)
	if err != nil {
		return nil, fmt.Errorf("failed to create job queue: %w", err)
	}

	log.Info("Services initialized",
		"vector_backend", cfg.Vector.Backend,
		"queue", cfg.Evaluation.Queue,
		"reranker_provider", cfg.AI.Reranker.Provider,
	)

	return &Services{
		Evaluation: evaluation.NewService(repo, pipeline, generator, j, queue, cfg, log),
		Dataset:    dataset.NewService(repo, log),

		Config:   cfg,
		Registry: reg,
		Queue:    queue,
		Pipeline: pipeline,
	}, nil
}

// NewWorker 创建执行评估任务的工作池
func (s *Services) NewWorker(log *logger.Logger) *jobs.Worker {
	return jobs.NewWorker(s.Queue, s.Evaluation, log, s.Config.Evaluation.Workers)
}
