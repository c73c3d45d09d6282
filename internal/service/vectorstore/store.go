// Package vectorstore 向量相似度检索，每个向量模型对应一个独立的索引或表
package vectorstore

import (
	"context"
	"fmt"

	"github.com/ashwinyue/rag-eval/internal/config"
	"github.com/ashwinyue/rag-eval/internal/model"
	"gorm.io/gorm"
)

// Store 向量检索接口
// 返回至多 k 条结果，按相似度降序，Score = 1 - 余弦距离
type Store interface {
	SimilaritySearch(ctx context.Context, collection string, vector []float64, k int) ([]model.RetrievedItem, error)
}

// New 根据配置创建向量检索后端
func New(cfg *config.Config, db *gorm.DB) (Store, error) {
	switch cfg.Vector.Backend {
	case "", "elastic", "elasticsearch":
		return NewElasticStore(cfg.Elastic, cfg.Vector.VectorField)
	case "pgvector", "postgres":
		if db == nil {
			return nil, fmt.Errorf("pgvector backend requires a database connection")
		}
		return NewPGVectorStore(db), nil
	default:
		return nil, fmt.Errorf("unsupported vector backend: %s", cfg.Vector.Backend)
	}
}
