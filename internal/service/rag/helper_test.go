package rag

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/ashwinyue/rag-eval/internal/logger"
	evalmodel "github.com/ashwinyue/rag-eval/internal/model"
	"github.com/ashwinyue/rag-eval/internal/repository"
	"github.com/ashwinyue/rag-eval/internal/service/registry"
	"github.com/ashwinyue/rag-eval/internal/service/types"
	"github.com/ashwinyue/rag-eval/internal/testutil"
)

// ========== Mock Embedder ==========

type mockEmbedder struct {
	err   error
	calls int
}

func (m *mockEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{0.1, 0.2, 0.3}
	}
	return out, nil
}

// ========== Mock Store ==========

type mockStore struct {
	mu         sync.Mutex
	items      []evalmodel.RetrievedItem
	err        error
	collection string
	k          int
}

func (m *mockStore) SimilaritySearch(ctx context.Context, collection string, vector []float64, k int) ([]evalmodel.RetrievedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collection = collection
	m.k = k
	if m.err != nil {
		return nil, m.err
	}
	if k < len(m.items) {
		return append([]evalmodel.RetrievedItem(nil), m.items[:k]...), nil
	}
	return append([]evalmodel.RetrievedItem(nil), m.items...), nil
}

// ========== Mock Reranker ==========

// mockReranker 按文本长度打分
type mockReranker struct {
	seen []types.RerankDoc
}

func (m *mockReranker) Rerank(ctx context.Context, query string, docs []types.RerankDoc, topK int) ([]evalmodel.RetrievedItem, error) {
	m.seen = docs
	items := make([]evalmodel.RetrievedItem, 0, len(docs))
	for _, d := range docs {
		items = append(items, toItem(d, float64(len(d.Text))))
	}
	return sortAndTruncate(items, topK), nil
}

// ========== Mock ChatModel ==========

type mockRerankChatModel struct {
	response string
	err      error
	prompts  []string
}

func (m *mockRerankChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	for _, msg := range messages {
		m.prompts = append(m.prompts, msg.Content)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &schema.Message{
		Role:    schema.Assistant,
		Content: m.response,
	}, nil
}

func (m *mockRerankChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

// ========== 测试环境 ==========

type pipelineEnv struct {
	pipeline *Pipeline
	embedder *mockEmbedder
	store    *mockStore
	reranker *mockReranker
	registry *registry.Registry
	modelID  string
}

func newPipelineEnv(t *testing.T) *pipelineEnv {
	t.Helper()
	db := testutil.NewDB(t)

	repos := repository.NewRepositories(db.DB)
	ctx := context.Background()

	em := &evalmodel.EmbeddingModel{ModelName: "text-embedding-3-small", ModelSource: "openai", Dimension: 3, CollectionName: "vectors_small"}
	if err := repos.EmbeddingModel.Create(ctx, em); err != nil {
		t.Fatalf("create embedding model: %v", err)
	}
	err := repos.Dataset.Import(ctx, &repository.DatasetImport{
		Corpus: []evalmodel.Corpus{
			{DocID: "d1", SectionID: 1, SectionText: "short"},
			{DocID: "d2", SectionID: 1, SectionText: "a much longer section"},
			{DocID: "d3", SectionID: 1, SectionText: "medium text", TablesMarkdown: "| t |"},
		},
	})
	if err != nil {
		t.Fatalf("import dataset: %v", err)
	}

	env := &pipelineEnv{
		embedder: &mockEmbedder{},
		store: &mockStore{items: []evalmodel.RetrievedItem{
			{DocID: "d1", SectionID: 1, Score: 0.9},
			{DocID: "d2", SectionID: 1, Score: 0.8},
			{DocID: "gone", SectionID: 9, Score: 0.75},
			{DocID: "d3", SectionID: 1, Score: 0.7},
		}},
		reranker: &mockReranker{},
		registry: registry.New(),
		modelID:  em.ID,
	}
	env.registry.Register(registry.KindEmbedding, func(ctx context.Context, name string) (interface{}, error) {
		return env.embedder, nil
	})
	env.registry.Register(registry.KindReranker, func(ctx context.Context, name string) (interface{}, error) {
		return env.reranker, nil
	})

	env.pipeline = NewPipeline(repos.EmbeddingModel, repos.Dataset, env.store, env.registry, logger.Nop())
	return env
}
