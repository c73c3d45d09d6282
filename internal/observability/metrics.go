// Package observability 提供 Prometheus 指标
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal 按终态统计评估任务
	// Labels: status (completed|error)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_eval_runs_total",
			Help: "Total number of evaluation runs by terminal status",
		},
		[]string{"status"},
	)

	// QueriesProcessed 已写入结果的问题数
	QueriesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rag_eval_queries_processed_total",
			Help: "Total number of queries whose result was persisted",
		},
	)

	// JudgeFallbacks 评审降级次数
	// Labels: track (a|b), reason (format|call)
	JudgeFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_eval_judge_fallbacks_total",
			Help: "Total number of judge fallbacks by track and reason",
		},
		[]string{"track", "reason"},
	)

	// StageDuration 外部协作方调用耗时
	// Labels: stage (embed|search|rerank|generate|judge)
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rag_eval_stage_duration_seconds",
			Help:    "Duration of collaborator calls in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	// TokensUsed token 消耗
	// Labels: kind (generation_input|generation_output|judge_input|judge_output)
	TokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_eval_tokens_total",
			Help: "Total number of LLM tokens by kind",
		},
		[]string{"kind"},
	)

	// HTTPRequests HTTP 请求计数
	// Labels: method, path, status
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_eval_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)

// ObserveStage 记录某阶段从 start 开始的耗时
func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// AddTokens 累加 token，非正数忽略
func AddTokens(kind string, n int) {
	if n > 0 {
		TokensUsed.WithLabelValues(kind).Add(float64(n))
	}
}
