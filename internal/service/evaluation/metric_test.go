package evaluation

import (
	"math"
	"testing"

	"github.com/ashwinyue/rag-eval/internal/model"
)

func items(keys ...string) []model.RetrievedItem {
	out := make([]model.RetrievedItem, 0, len(keys))
	for i, k := range keys {
		out = append(out, model.RetrievedItem{DocID: k, SectionID: 1, Score: 1.0 - float64(i)*0.1})
	}
	return out
}

func qrel(doc string, score int) model.Qrel {
	return model.Qrel{DocID: doc, SectionID: 1, RelevanceScore: score}
}

// ========== Recall@K 测试 ==========

func TestRecallMetric_Compute(t *testing.T) {
	tests := []struct {
		name      string
		retrieved []model.RetrievedItem
		qrels     []model.Qrel
		k         int
		expected  float64
	}{
		{
			name:      "all relevant found",
			retrieved: items("d1", "d2", "d3"),
			qrels:     []model.Qrel{qrel("d1", 1), qrel("d3", 1)},
			k:         3,
			expected:  1.0,
		},
		{
			name:      "relevant outside k",
			retrieved: items("d1", "d2", "d3"),
			qrels:     []model.Qrel{qrel("d1", 1), qrel("d3", 1)},
			k:         2,
			expected:  0.5,
		},
		{
			name:      "duplicate hits counted once",
			retrieved: items("d1", "d1", "d2"),
			qrels:     []model.Qrel{qrel("d1", 1), qrel("d4", 1)},
			k:         3,
			expected:  0.5,
		},
		{
			name:      "empty relevant set",
			retrieved: items("d1"),
			qrels:     nil,
			k:         3,
			expected:  0.0,
		},
		{
			name:      "empty retrieval",
			retrieved: nil,
			qrels:     []model.Qrel{qrel("d1", 1)},
			k:         3,
			expected:  0.0,
		},
		{
			name: "section id distinguishes keys",
			retrieved: []model.RetrievedItem{
				{DocID: "d1", SectionID: 2},
			},
			qrels:    []model.Qrel{qrel("d1", 1)},
			k:        3,
			expected: 0.0,
		},
	}

	rm := NewRecallMetric()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rm.Compute(NewMetricInput(tt.retrieved, tt.qrels, tt.k))
			if !almostEqual(got, tt.expected, 1e-9) {
				t.Errorf("Compute() = %v, want %v", got, tt.expected)
			}
			if got < 0 || got > 1 {
				t.Errorf("Compute() = %v out of [0,1]", got)
			}
		})
	}
}

// ========== MRR 测试 ==========

func TestMRRMetric_Compute(t *testing.T) {
	tests := []struct {
		name      string
		retrieved []model.RetrievedItem
		qrels     []model.Qrel
		k         int
		expected  float64
	}{
		{
			name:      "first item relevant",
			retrieved: items("d1", "d2"),
			qrels:     []model.Qrel{qrel("d1", 1)},
			k:         1,
			expected:  1.0,
		},
		{
			name:      "third item relevant",
			retrieved: items("d1", "d2", "d3"),
			qrels:     []model.Qrel{qrel("d3", 1)},
			k:         3,
			expected:  1.0 / 3.0,
		},
		{
			name:      "scans beyond k",
			retrieved: items("d1", "d2", "d3", "d4"),
			qrels:     []model.Qrel{qrel("d4", 1)},
			k:         1,
			expected:  0.25,
		},
		{
			name:      "no relevant item",
			retrieved: items("d1", "d2"),
			qrels:     []model.Qrel{qrel("d9", 1)},
			k:         10,
			expected:  0.0,
		},
	}

	mm := NewMRRMetric()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mm.Compute(NewMetricInput(tt.retrieved, tt.qrels, tt.k))
			if !almostEqual(got, tt.expected, 1e-9) {
				t.Errorf("Compute() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// ========== NDCG 测试 ==========

func TestNDCGMetric_Compute(t *testing.T) {
	tests := []struct {
		name      string
		retrieved []model.RetrievedItem
		qrels     []model.Qrel
		k         int
		expected  float64
	}{
		{
			name:      "ideal order",
			retrieved: items("d1", "d2", "d3"),
			qrels:     []model.Qrel{qrel("d1", 3), qrel("d2", 2), qrel("d3", 1)},
			k:         3,
			expected:  1.0,
		},
		{
			name:      "single relevant at rank 2",
			retrieved: items("d1", "d2", "d3"),
			qrels:     []model.Qrel{qrel("d2", 2)},
			k:         3,
			expected:  1.0 / math.Log2(3),
		},
		{
			name:      "reversed graded order",
			retrieved: items("d2", "d1"),
			qrels:     []model.Qrel{qrel("d1", 2), qrel("d2", 1)},
			k:         2,
			expected:  (1.0 + 3.0/math.Log2(3)) / (3.0 + 1.0/math.Log2(3)),
		},
		{
			name:      "ideal truncated to k",
			retrieved: items("d1", "d2"),
			qrels:     []model.Qrel{qrel("d1", 1), qrel("d2", 1), qrel("d3", 1)},
			k:         2,
			expected:  1.0,
		},
		{
			name:      "no relevance",
			retrieved: items("d1"),
			qrels:     nil,
			k:         3,
			expected:  0.0,
		},
		{
			name:      "negative relevance excluded from ideal",
			retrieved: items("d1"),
			qrels:     []model.Qrel{qrel("d1", -1)},
			k:         3,
			expected:  0.0,
		},
		{
			name:      "zero relevance defaults to one",
			retrieved: items("d1"),
			qrels:     []model.Qrel{qrel("d1", 0)},
			k:         1,
			expected:  1.0,
		},
	}

	nm := NewNDCGMetric()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nm.Compute(NewMetricInput(tt.retrieved, tt.qrels, tt.k))
			if !almostEqual(got, tt.expected, 1e-9) {
				t.Errorf("Compute() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMetric_Names(t *testing.T) {
	metrics := []Metric{NewRecallMetric(), NewMRRMetric(), NewNDCGMetric(), NewGoldInTopKMetric()}
	want := []string{"recall_at_k", "mrr", "ndcg_at_k", "gold_in_top_k"}
	for i, m := range metrics {
		if m.Name() != want[i] {
			t.Errorf("Name() = %q, want %q", m.Name(), want[i])
		}
	}
}

// ========== 端到端场景 ==========

func TestComputeRetrievalMetrics_SingleGradedHit(t *testing.T) {
	retrieved := []model.RetrievedItem{
		{DocID: "d1", SectionID: 1, Score: 0.9},
		{DocID: "d2", SectionID: 1, Score: 0.8},
		{DocID: "d3", SectionID: 1, Score: 0.7},
	}
	qrels := []model.Qrel{{DocID: "d2", SectionID: 1, RelevanceScore: 2}}

	got := ComputeRetrievalMetrics(retrieved, qrels, 3)

	if !almostEqual(got.RecallAtK, 1.0, 1e-9) {
		t.Errorf("RecallAtK = %v, want 1.0", got.RecallAtK)
	}
	if !almostEqual(got.MRR, 0.5, 1e-9) {
		t.Errorf("MRR = %v, want 0.5", got.MRR)
	}
	if !almostEqual(got.NDCGAtK, 0.631, 1e-3) {
		t.Errorf("NDCGAtK = %v, want ~0.631", got.NDCGAtK)
	}
	if !got.GoldInTopK {
		t.Error("GoldInTopK = false, want true")
	}
}

func TestComputeRetrievalMetrics_EmptyRelevant(t *testing.T) {
	got := ComputeRetrievalMetrics(items("d1", "d2"), nil, 3)
	want := RetrievalMetrics{}
	if got != want {
		t.Errorf("ComputeRetrievalMetrics() = %+v, want all zero", got)
	}
}

func TestComputeRetrievalMetrics_Idempotent(t *testing.T) {
	retrieved := items("d3", "d1", "d2")
	qrels := []model.Qrel{qrel("d1", 2), qrel("d2", 1)}

	first := ComputeRetrievalMetrics(retrieved, qrels, 2)
	second := ComputeRetrievalMetrics(retrieved, qrels, 2)
	if first != second {
		t.Errorf("results differ: %+v vs %+v", first, second)
	}
}

// almostEqual 比较两个浮点数是否近似相等
func almostEqual(a, b, epsilon float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return a == b
	}
	return math.Abs(a-b) <= epsilon
}

// ========== Benchmark ==========

func BenchmarkComputeRetrievalMetrics(b *testing.B) {
	retrieved := items("d1", "d2", "d3", "d4", "d5", "d6", "d7", "d8", "d9", "d10")
	qrels := []model.Qrel{qrel("d2", 2), qrel("d5", 1), qrel("d11", 3)}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ComputeRetrievalMetrics(retrieved, qrels, 10)
	}
}
