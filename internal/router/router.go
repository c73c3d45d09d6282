package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashwinyue/rag-eval/internal/config"
	"github.com/ashwinyue/rag-eval/internal/handler"
	"github.com/ashwinyue/rag-eval/internal/logger"
	"github.com/ashwinyue/rag-eval/internal/middleware"
)

// SetupRouter 设置路由
func SetupRouter(h *handler.Handlers, cfg *config.Config, log *logger.Logger) *gin.Engine {
	r := gin.New()

	// 中间件
	r.Use(middleware.RecoveryMiddleware(log))
	r.Use(middleware.LoggingMiddleware(log))

	// 健康检查与指标
	r.GET("/health", h.System.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1
	v1 := r.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware(cfg.Auth.JWTSecret))
	{
		// Evaluation 评估任务
		runs := v1.Group("/evaluation/runs")
		{
			runs.POST("", h.Evaluation.CreateRun)
			runs.GET("", h.Evaluation.ListRuns)
			runs.GET("/:run_id", h.Evaluation.GetProgress)
			runs.GET("/:run_id/summary", h.Evaluation.GetSummary)
			runs.DELETE("/:run_id", h.Evaluation.DeleteRun)
		}

		// Results 评估结果
		results := v1.Group("/results/:run_id")
		{
			results.GET("/details", h.Results.ListResults)
			results.GET("/query/:query_uuid", h.Results.GetQueryResult)
			results.GET("/export", h.Results.ExportResults)
		}

		// Dataset 数据集与向量模型
		datasets := v1.Group("/datasets")
		{
			datasets.POST("/import", h.Dataset.Import)
			datasets.POST("/embedding-models", h.Dataset.CreateEmbeddingModel)
			datasets.GET("/embedding-models", h.Dataset.ListEmbeddingModels)
		}

		// System 模型注册表
		system := v1.Group("/system")
		{
			system.GET("/models", h.System.ListModels)
			system.POST("/unload-models", h.System.UnloadModels)
		}
	}

	return r
}
