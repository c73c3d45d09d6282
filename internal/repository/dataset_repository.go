package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ashwinyue/rag-eval/internal/model"
	"github.com/ashwinyue/rag-eval/internal/service/types"
)

const importBatchSize = 500

type datasetRepositoryImpl struct {
	db *gorm.DB
}

// NewDatasetRepository 创建数据集仓库
func NewDatasetRepository(db *gorm.DB) DatasetRepository {
	return &datasetRepositoryImpl{db: db}
}

// ListQueries 按 ID 稳定排序返回全部问题
func (r *datasetRepositoryImpl) ListQueries(ctx context.Context) ([]model.Query, error) {
	var queries []model.Query
	err := r.db.WithContext(ctx).Order("id ASC").Find(&queries).Error
	return queries, err
}

// GetQuery 根据 UUID 获取问题
func (r *datasetRepositoryImpl) GetQuery(ctx context.Context, queryUUID string) (*model.Query, error) {
	var q model.Query
	err := r.db.WithContext(ctx).Where("query_uuid = ?", queryUUID).First(&q).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewNotFoundError("query", queryUUID)
		}
		return nil, err
	}
	return &q, nil
}

// QrelsByQuery 获取问题的相关性标注
func (r *datasetRepositoryImpl) QrelsByQuery(ctx context.Context, queryUUID string) ([]model.Qrel, error) {
	var qrels []model.Qrel
	err := r.db.WithContext(ctx).Where("query_uuid = ?", queryUUID).Order("id ASC").Find(&qrels).Error
	return qrels, err
}

// ReferenceAnswer 获取参考答案
func (r *datasetRepositoryImpl) ReferenceAnswer(ctx context.Context, queryUUID string) (string, error) {
	var answers []model.ReferenceAnswer
	err := r.db.WithContext(ctx).Where("query_uuid = ?", queryUUID).Limit(1).Find(&answers).Error
	if err != nil {
		return "", err
	}
	if len(answers) == 0 {
		return "", nil
	}
	return answers[0].ReferenceAnswer, nil
}

// GetSection 根据 (doc_id, section_id) 获取段落
func (r *datasetRepositoryImpl) GetSection(ctx context.Context, docID string, sectionID int) (*model.Corpus, error) {
	var sections []model.Corpus
	err := r.db.WithContext(ctx).
		Where("doc_id = ? AND section_id = ?", docID, sectionID).
		Limit(1).Find(&sections).Error
	if err != nil {
		return nil, err
	}
	if len(sections) == 0 {
		return nil, nil
	}
	return &sections[0], nil
}

// Import 批量导入数据集，已存在的记录跳过
func (r *datasetRepositoryImpl) Import(ctx context.Context, data *DatasetImport) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = tx.Clauses(clause.OnConflict{DoNothing: true}).Session(&gorm.Session{})
		if len(data.Corpus) > 0 {
			if err := tx.CreateInBatches(data.Corpus, importBatchSize).Error; err != nil {
				return err
			}
		}
		if len(data.Queries) > 0 {
			if err := tx.CreateInBatches(data.Queries, importBatchSize).Error; err != nil {
				return err
			}
		}
		if len(data.Qrels) > 0 {
			if err := tx.CreateInBatches(data.Qrels, importBatchSize).Error; err != nil {
				return err
			}
		}
		if len(data.Answers) > 0 {
			if err := tx.CreateInBatches(data.Answers, importBatchSize).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
