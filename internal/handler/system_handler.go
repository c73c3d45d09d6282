package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/ashwinyue/rag-eval/internal/service/registry"
)

// SystemHandler 系统处理器
type SystemHandler struct {
	registry *registry.Registry
	db       *gorm.DB
	version  string
}

// NewSystemHandler 创建系统处理器
func NewSystemHandler(reg *registry.Registry, db *gorm.DB, version string) *SystemHandler {
	return &SystemHandler{registry: reg, db: db, version: version}
}

// ListModels 列出已加载的模型
// GET /api/v1/system/models
func (h *SystemHandler) ListModels(c *gin.Context) {
	models := h.registry.Loaded()
	Success(c, gin.H{"models": models, "total": len(models)})
}

// UnloadModels 卸载全部模型，有推理中的模型时返回 409
// POST /api/v1/system/unload-models
func (h *SystemHandler) UnloadModels(c *gin.Context) {
	n, err := h.registry.EvictAll()
	if err != nil {
		Error(c, err)
		return
	}

	Success(c, gin.H{"unloaded": n})
}

// Health 健康检查，数据库不可用时返回 503
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	status := "ok"
	code := http.StatusOK

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":   status,
		"version":  h.version,
		"database": err == nil,
		"time":     time.Now().UTC(),
	})
}
