package handler

import (
	"gorm.io/gorm"

	"github.com/ashwinyue/rag-eval/internal/service"
)

// Handlers 处理器集合
type Handlers struct {
	Evaluation *EvaluationHandler
	Results    *ResultsHandler
	Dataset    *DatasetHandler
	System     *SystemHandler
}

// NewHandlers 创建所有处理器
func NewHandlers(svc *service.Services, db *gorm.DB) *Handlers {
	return &Handlers{
		Evaluation: NewEvaluationHandler(svc.Evaluation),
		Results:    NewResultsHandler(svc.Evaluation),
		Dataset:    NewDatasetHandler(svc.Dataset),
		System:     NewSystemHandler(svc.Registry, db, svc.Config.App.Version),
	}
}
