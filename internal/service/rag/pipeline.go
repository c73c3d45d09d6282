// Package rag 检索流水线：向量化、相似度检索与可选的交叉编码器重排
package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/ashwinyue/rag-eval/internal/logger"
	"github.com/ashwinyue/rag-eval/internal/model"
	"github.com/ashwinyue/rag-eval/internal/observability"
	"github.com/ashwinyue/rag-eval/internal/repository"
	"github.com/ashwinyue/rag-eval/internal/service/registry"
	"github.com/ashwinyue/rag-eval/internal/service/types"
	"github.com/ashwinyue/rag-eval/internal/service/vectorstore"
)

// RetrieveRequest 检索请求
type RetrieveRequest struct {
	EmbeddingModelID  string
	QueryText         string
	TopK              int
	UseReranker       bool
	RerankerModelName string
	RerankerTopK      int
}

// RetrieveResult 检索结果，未启用重排时 Reranked 为 nil
type RetrieveResult struct {
	Retrieved []model.RetrievedItem
	Reranked  []model.RetrievedItem
}

// Final 最终使用的上下文来源，重排结果非空时优先
func (r *RetrieveResult) Final() []model.RetrievedItem {
	if len(r.Reranked) > 0 {
		return r.Reranked
	}
	return r.Retrieved
}

// Pipeline 检索流水线
type Pipeline struct {
	models   repository.EmbeddingModelRepository
	dataset  repository.DatasetRepository
	store    vectorstore.Store
	registry *registry.Registry
	logger   *logger.Logger
}

// NewPipeline 创建检索流水线
func NewPipeline(
	models repository.EmbeddingModelRepository,
	dataset repository.DatasetRepository,
	store vectorstore.Store,
	reg *registry.Registry,
	log *logger.Logger,
) *Pipeline {
	return &Pipeline{
		models:   models,
		dataset:  dataset,
		store:    store,
		registry: reg,
		logger:   log.With("component", "retrieval"),
	}
}

// EmbedderName 注册表中向量模型的名称
func EmbedderName(m *model.EmbeddingModel) string {
	return m.ModelSource + ":" + m.ModelName
}

// Retrieve 执行检索，必要时重排
func (p *Pipeline) Retrieve(ctx context.Context, req RetrieveRequest) (*RetrieveResult, error) {
	em, err := p.models.GetByID(ctx, req.EmbeddingModelID)
	if err != nil {
		return nil, err
	}

	vector, err := p.embedQuery(ctx, em, req.QueryText)
	if err != nil {
		return nil, types.NewCollaboratorError("embed", err)
	}

	start := time.Now()
	retrieved, err := p.store.SimilaritySearch(ctx, em.CollectionName, vector, req.TopK)
	observability.ObserveStage("search", start)
	if err != nil {
		return nil, types.NewCollaboratorError("similarity search", err)
	}

	result := &RetrieveResult{Retrieved: retrieved}
	if !req.UseReranker || req.RerankerModelName == "" {
		return result, nil
	}

	reranked, err := p.rerank(ctx, req, retrieved)
	if err != nil {
		return nil, types.NewCollaboratorError("rerank", err)
	}
	result.Reranked = reranked
	return result, nil
}

func (p *Pipeline) embedQuery(ctx context.Context, em *model.EmbeddingModel, text string) ([]float64, error) {
	name := EmbedderName(em)
	handle, err := p.registry.Acquire(ctx, registry.KindEmbedding, name)
	if err != nil {
		return nil, err
	}
	defer p.registry.Release(registry.KindEmbedding, name)

	embedder, ok := handle.(embedding.Embedder)
	if !ok {
		return nil, fmt.Errorf("registry entry %s is not an embedder", name)
	}

	start := time.Now()
	vectors, err := embedder.EmbedStrings(ctx, []string{text})
	observability.ObserveStage("embed", start)
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 input", len(vectors))
	}
	return vectors[0], nil
}

func (p *Pipeline) rerank(ctx context.Context, req RetrieveRequest, retrieved []model.RetrievedItem) ([]model.RetrievedItem, error) {
	docs := make([]types.RerankDoc, 0, len(retrieved))
	for _, item := range retrieved {
		section, err := p.dataset.GetSection(ctx, item.DocID, item.SectionID)
		if err != nil {
			return nil, err
		}
		if section == nil {
			p.logger.Debug("skip unresolved section", "doc_id", item.DocID, "section_id", item.SectionID)
			continue
		}
		docs = append(docs, types.RerankDoc{
			CorpusID:  section.ID,
			DocID:     section.DocID,
			SectionID: section.SectionID,
			Text:      section.SectionText,
		})
	}

	handle, err := p.registry.Acquire(ctx, registry.KindReranker, req.RerankerModelName)
	if err != nil {
		return nil, err
	}
	defer p.registry.Release(registry.KindReranker, req.RerankerModelName)

	reranker, ok := handle.(types.Reranker)
	if !ok {
		return nil, fmt.Errorf("registry entry %s is not a reranker", req.RerankerModelName)
	}

	start := time.Now()
	reranked, err := reranker.Rerank(ctx, req.QueryText, docs, req.RerankerTopK)
	observability.ObserveStage("rerank", start)
	if err != nil {
		return nil, err
	}
	if reranked == nil {
		reranked = []model.RetrievedItem{}
	}
	return reranked, nil
}
