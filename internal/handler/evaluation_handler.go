// Package handler 提供评估相关的 HTTP 处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/rag-eval/internal/model"
	"github.com/ashwinyue/rag-eval/internal/service/evaluation"
	"github.com/ashwinyue/rag-eval/internal/service/types"
)

// EvaluationHandler 评估任务处理器
type EvaluationHandler struct {
	svc *evaluation.Service
}

// NewEvaluationHandler 创建评估任务处理器
func NewEvaluationHandler(svc *evaluation.Service) *EvaluationHandler {
	return &EvaluationHandler{svc: svc}
}

// CreateRun 创建评估任务
// POST /api/v1/evaluation/runs
func (h *EvaluationHandler) CreateRun(c *gin.Context) {
	var req evaluation.CreateRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	run, err := h.svc.CreateRun(c.Request.Context(), &req)
	if err != nil {
		Error(c, err)
		return
	}

	Accepted(c, gin.H{
		"run_id":  run.ID,
		"status":  run.Status,
		"message": "Evaluation run queued",
	})
}

// ListRuns 列出评估任务
// GET /api/v1/evaluation/runs?status=&limit=&offset=
func (h *EvaluationHandler) ListRuns(c *gin.Context) {
	limit, offset := pageParams(c, 50, 200)
	status := model.RunStatus(c.Query("status"))

	runs, total, err := h.svc.ListRuns(c.Request.Context(), status, limit, offset)
	if err != nil {
		Error(c, err)
		return
	}

	SuccessWithPagination(c, runs, total, limit, offset)
}

// GetProgress 查询任务进度
// GET /api/v1/evaluation/runs/:run_id
func (h *EvaluationHandler) GetProgress(c *gin.Context) {
	progress, err := h.svc.GetProgress(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, progress)
}

// GetSummary 查询任务汇总
// GET /api/v1/evaluation/runs/:run_id/summary
func (h *EvaluationHandler) GetSummary(c *gin.Context) {
	summary, err := h.svc.GetRunSummary(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, summary)
}

// DeleteRun 删除任务，执行中返回 409
// DELETE /api/v1/evaluation/runs/:run_id
func (h *EvaluationHandler) DeleteRun(c *gin.Context) {
	err := h.svc.DeleteRun(c.Request.Context(), c.Param("run_id"))
	if types.IsConfigurationError(err) {
		Conflict(c, err.Error())
		return
	}
	if err != nil {
		Error(c, err)
		return
	}

	NoContent(c)
}
