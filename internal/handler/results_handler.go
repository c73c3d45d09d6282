package handler

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/rag-eval/internal/service/evaluation"
)

// ResultsHandler 评估结果处理器
type ResultsHandler struct {
	svc *evaluation.Service
}

// NewResultsHandler 创建评估结果处理器
func NewResultsHandler(svc *evaluation.Service) *ResultsHandler {
	return &ResultsHandler{svc: svc}
}

// ListResults 分页列出单题结果
// GET /api/v1/results/:run_id/details?limit=&offset=
func (h *ResultsHandler) ListResults(c *gin.Context) {
	limit, offset := pageParams(c, 100, 1000)

	list, err := h.svc.ListResults(c.Request.Context(), c.Param("run_id"), limit, offset)
	if err != nil {
		Error(c, err)
		return
	}

	SuccessWithPagination(c, list.Results, list.Total, limit, offset)
}

// GetQueryResult 单题详情
// GET /api/v1/results/:run_id/query/:query_uuid
func (h *ResultsHandler) GetQueryResult(c *gin.Context) {
	detail, err := h.svc.GetQueryResult(c.Request.Context(), c.Param("run_id"), c.Param("query_uuid"))
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, detail)
}

// ExportResults 导出全部结果为 JSON 附件
// GET /api/v1/results/:run_id/export
func (h *ResultsHandler) ExportResults(c *gin.Context) {
	runID := c.Param("run_id")

	list, err := h.svc.ExportResults(c.Request.Context(), runID)
	if err != nil {
		Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="evaluation_%s.json"`, runID))
	Success(c, list)
}
