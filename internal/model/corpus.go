// Package model 提供评估相关的数据模型
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Corpus 语料段落，(doc_id, section_id) 唯一
type Corpus struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	DocID          string    `json:"doc_id" gorm:"type:varchar(255);not null;uniqueIndex:idx_corpus_doc_section"`
	SectionID      int       `json:"section_id" gorm:"not null;uniqueIndex:idx_corpus_doc_section"`
	SectionText    string    `json:"section_text" gorm:"type:text;not null"`
	TablesMarkdown string    `json:"tables_markdown,omitempty" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (Corpus) TableName() string {
	return "corpus"
}

// DisplayText 生成与评审使用的上下文文本，含表格时追加在正文后
func (c *Corpus) DisplayText() string {
	if c.TablesMarkdown != "" {
		return c.SectionText + "\n\n" + c.TablesMarkdown
	}
	return c.SectionText
}

// Query 评估问题，创建后不再修改
type Query struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	QueryUUID  string    `json:"query_uuid" gorm:"type:varchar(255);not null;uniqueIndex"`
	QueryText  string    `json:"query_text" gorm:"type:text;not null"`
	QueryType  string    `json:"query_type,omitempty" gorm:"type:varchar(50);index"`
	SourceType string    `json:"source_type,omitempty" gorm:"type:varchar(50)"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (Query) TableName() string {
	return "queries"
}

// Qrel 相关性标注
type Qrel struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	QueryUUID      string    `json:"query_uuid" gorm:"type:varchar(255);not null;uniqueIndex:idx_qrels_query_doc_section"`
	DocID          string    `json:"doc_id" gorm:"type:varchar(255);not null;uniqueIndex:idx_qrels_query_doc_section"`
	SectionID      int       `json:"section_id" gorm:"not null;uniqueIndex:idx_qrels_query_doc_section"`
	RelevanceScore int       `json:"relevance_score" gorm:"default:1"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (Qrel) TableName() string {
	return "qrels"
}

// ReferenceAnswer 参考答案，每个问题一条
type ReferenceAnswer struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	QueryUUID       string    `json:"query_uuid" gorm:"type:varchar(255);not null;uniqueIndex"`
	ReferenceAnswer string    `json:"reference_answer" gorm:"type:text;not null"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (ReferenceAnswer) TableName() string {
	return "answers"
}

// EmbeddingModelStatus 向量模型状态
type EmbeddingModelStatus string

const (
	EmbeddingModelPending EmbeddingModelStatus = "pending"
	EmbeddingModelReady   EmbeddingModelStatus = "completed"
	EmbeddingModelFailed  EmbeddingModelStatus = "error"
)

// EmbeddingModel 已注册的向量模型，CollectionName 指向其专属的向量索引或表
type EmbeddingModel struct {
	ID             string               `json:"id" gorm:"type:varchar(36);primaryKey"`
	ModelName      string               `json:"model_name" gorm:"type:varchar(255);not null;index"`
	ModelSource    string               `json:"model_source" gorm:"type:varchar(50);not null"` // openai | dashscope | ollama | huggingface | sentence-transformers
	Dimension      int                  `json:"dimension" gorm:"not null"`
	CollectionName string               `json:"collection_name" gorm:"type:varchar(255);not null;uniqueIndex"`
	Status         EmbeddingModelStatus `json:"status" gorm:"type:varchar(50);default:'pending';index"`
	TotalVectors   int                  `json:"total_vectors" gorm:"default:0"`
	CreatedAt      time.Time            `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time            `json:"updated_at" gorm:"autoUpdateTime"`
}

// BeforeCreate GORM 钩子，创建前生成 UUID
func (m *EmbeddingModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (EmbeddingModel) TableName() string {
	return "embedding_models"
}
