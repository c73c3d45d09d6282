package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ashwinyue/rag-eval/internal/model"
	"github.com/ashwinyue/rag-eval/internal/service/types"
)

type embeddingModelRepositoryImpl struct {
	db *gorm.DB
}

// NewEmbeddingModelRepository 创建向量模型仓库
func NewEmbeddingModelRepository(db *gorm.DB) EmbeddingModelRepository {
	return &embeddingModelRepositoryImpl{db: db}
}

// Create 注册向量模型
func (r *embeddingModelRepositoryImpl) Create(ctx context.Context, m *model.EmbeddingModel) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// GetByID 根据 ID 获取向量模型，不存在时返回包装了 ErrModelNotFound 的 NotFoundError
func (r *embeddingModelRepositoryImpl) GetByID(ctx context.Context, id string) (*model.EmbeddingModel, error) {
	var m model.EmbeddingModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &types.NotFoundError{Resource: "embedding model", ID: id, Err: types.ErrModelNotFound}
		}
		return nil, err
	}
	return &m, nil
}

// List 列出全部向量模型
func (r *embeddingModelRepositoryImpl) List(ctx context.Context) ([]*model.EmbeddingModel, error) {
	var models []*model.EmbeddingModel
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&models).Error
	return models, err
}
