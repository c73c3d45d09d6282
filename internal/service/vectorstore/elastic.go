package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/ashwinyue/rag-eval/internal/config"
	"github.com/ashwinyue/rag-eval/internal/model"
)

const defaultVectorField = "embedding"

// ElasticStore 基于 Elasticsearch dense_vector 的检索
type ElasticStore struct {
	client      *elasticsearch.Client
	indexPrefix string
	vectorField string
}

// NewElasticStore 创建 ES 检索后端
func NewElasticStore(cfg config.ElasticConfig, vectorField string) (*ElasticStore, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("elasticsearch host not configured")
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.Host},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create es client: %w", err)
	}

	if vectorField == "" {
		vectorField = defaultVectorField
	}
	return &ElasticStore{client: client, indexPrefix: cfg.IndexPrefix, vectorField: vectorField}, nil
}

// IndexName 向量集合对应的索引名
func (s *ElasticStore) IndexName(collection string) string {
	name := strings.ToLower(collection)
	if s.indexPrefix == "" {
		return name
	}
	return s.indexPrefix + "_" + name
}

type esSource struct {
	CorpusID  uint   `json:"corpus_id"`
	DocID     string `json:"doc_id"`
	SectionID int    `json:"section_id"`
}

type esSearchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64  `json:"_score"`
			Source esSource `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SimilaritySearch script_score 计算 cosineSimilarity + 1.0，返回时减去偏移
func (s *ElasticStore) SimilaritySearch(ctx context.Context, collection string, vector []float64, k int) ([]model.RetrievedItem, error) {
	body := map[string]interface{}{
		"size":    k,
		"_source": []string{"corpus_id", "doc_id", "section_id"},
		"query": map[string]interface{}{
			"script_score": map[string]interface{}{
				"query": map[string]interface{}{"match_all": map[string]interface{}{}},
				"script": map[string]interface{}{
					"source": fmt.Sprintf("cosineSimilarity(params.query_vector, '%s') + 1.0", s.vectorField),
					"params": map[string]interface{}{"query_vector": vector},
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("failed to encode search body: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.IndexName(collection)),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("es search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("es search error: %s", res.String())
	}

	var parsed esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	items := make([]model.RetrievedItem, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, model.RetrievedItem{
			CorpusID:  hit.Source.CorpusID,
			DocID:     hit.Source.DocID,
			SectionID: hit.Source.SectionID,
			Score:     hit.Score - 1.0,
		})
	}
	return items, nil
}
