package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ashwinyue/rag-eval/internal/model"
)

var collectionPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// PGVectorStore 基于 pgvector 的检索，集合即向量表
type PGVectorStore struct {
	db *gorm.DB
}

// NewPGVectorStore 创建 pgvector 检索后端
func NewPGVectorStore(db *gorm.DB) *PGVectorStore {
	return &PGVectorStore{db: db}
}

type pgRow struct {
	CorpusID  uint
	DocID     string
	SectionID int
	Score     float64
}

// SimilaritySearch 按余弦距离升序检索
func (s *PGVectorStore) SimilaritySearch(ctx context.Context, collection string, vector []float64, k int) ([]model.RetrievedItem, error) {
	if !collectionPattern.MatchString(collection) {
		return nil, fmt.Errorf("invalid vector collection name: %q", collection)
	}

	literal := vectorLiteral(vector)
	var rows []pgRow
	err := s.db.WithContext(ctx).Raw(
		`SELECT corpus_id, doc_id, section_id, 1 - (embedding <=> ?::vector) AS score
		 FROM ? ORDER BY embedding <=> ?::vector LIMIT ?`,
		literal, clause.Table{Name: collection}, literal, k,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("pgvector search failed: %w", err)
	}

	items := make([]model.RetrievedItem, 0, len(rows))
	for _, r := range rows {
		items = append(items, model.RetrievedItem{
			CorpusID:  r.CorpusID,
			DocID:     r.DocID,
			SectionID: r.SectionID,
			Score:     r.Score,
		})
	}
	return items, nil
}

// vectorLiteral 转为 pgvector 文本格式 [a,b,c]
func vectorLiteral(v []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	}
	sb.WriteByte(']')
	return sb.String()
}
