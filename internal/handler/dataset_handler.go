package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ashwinyue/rag-eval/internal/service/dataset"
)

// DatasetHandler 数据集处理器
type DatasetHandler struct {
	svc *dataset.Service
}

// NewDatasetHandler 创建数据集处理器
func NewDatasetHandler(svc *dataset.Service) *DatasetHandler {
	return &DatasetHandler{svc: svc}
}

// Import 批量导入语料、问题、标注与参考答案
// POST /api/v1/datasets/import
func (h *DatasetHandler) Import(c *gin.Context) {
	var req dataset.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	res, err := h.svc.Import(c.Request.Context(), &req)
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, res)
}

// CreateEmbeddingModel 登记向量模型
// POST /api/v1/datasets/embedding-models
func (h *DatasetHandler) CreateEmbeddingModel(c *gin.Context) {
	var req dataset.CreateEmbeddingModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	m, err := h.svc.CreateEmbeddingModel(c.Request.Context(), &req)
	if err != nil {
		Error(c, err)
		return
	}

	Created(c, m)
}

// ListEmbeddingModels 列出向量模型
// GET /api/v1/datasets/embedding-models
func (h *DatasetHandler) ListEmbeddingModels(c *gin.Context) {
	models, err := h.svc.ListEmbeddingModels(c.Request.Context())
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{"models": models, "total": len(models)})
}
