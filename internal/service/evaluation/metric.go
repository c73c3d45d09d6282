// Package evaluation 提供评估服务
package evaluation

import (
	"math"
	"sort"

	"github.com/ashwinyue/rag-eval/internal/model"
	"github.com/ashwinyue/rag-eval/internal/service/types"
)

// MetricInput 指标计算输入
type MetricInput struct {
	// Retrieved 检索返回的候选，按分数降序
	Retrieved []model.RetrievedItem

	// Relevance 相关性标注，(doc_id, section_id) -> 相关度
	Relevance map[types.SectionKey]int

	// K 截断位置
	K int
}

// Metric 指标接口
type Metric interface {
	Compute(input *MetricInput) float64
	Name() string
}

// NewMetricInput 由 qrels 构建指标输入，相关度为 0 时按 1 处理
func NewMetricInput(retrieved []model.RetrievedItem, qrels []model.Qrel, k int) *MetricInput {
	relevance := make(map[types.SectionKey]int, len(qrels))
	for _, q := range qrels {
		score := q.RelevanceScore
		if score == 0 {
			score = 1
		}
		relevance[types.SectionKey{DocID: q.DocID, SectionID: q.SectionID}] = score
	}
	return &MetricInput{Retrieved: retrieved, Relevance: relevance, K: k}
}

// topK 返回前 k 个候选
func (in *MetricInput) topK() []model.RetrievedItem {
	if in.K < 0 {
		return nil
	}
	if in.K < len(in.Retrieved) {
		return in.Retrieved[:in.K]
	}
	return in.Retrieved
}

func (in *MetricInput) isRelevant(item model.RetrievedItem) bool {
	_, ok := in.Relevance[keyOf(item)]
	return ok
}

func keyOf(item model.RetrievedItem) types.SectionKey {
	return types.SectionKey{DocID: item.DocID, SectionID: item.SectionID}
}

// ========== Recall@K 召回率 ==========

// RecallMetric 召回率指标
// Recall@K = 前 K 个结果中命中的相关段落数（去重） / 相关段落总数
type RecallMetric struct{}

// NewRecallMetric 创建召回率指标
func NewRecallMetric() *RecallMetric {
	return &RecallMetric{}
}

// Compute 计算召回率，无相关段落时为 0
func (m *RecallMetric) Compute(input *MetricInput) float64 {
	if len(input.Relevance) == 0 {
		return 0.0
	}

	hitSet := make(map[types.SectionKey]struct{})
	for _, item := range input.topK() {
		if input.isRelevant(item) {
			hitSet[keyOf(item)] = struct{}{}
		}
	}

	return float64(len(hitSet)) / float64(len(input.Relevance))
}

// Name 返回指标名称
func (m *RecallMetric) Name() string {
	return "recall_at_k"
}

// ========== MRR 平均倒数排名 ==========

// MRRMetric 倒数排名指标，扫描完整列表，不受 K 截断
type MRRMetric struct{}

// NewMRRMetric 创建 MRR 指标
func NewMRRMetric() *MRRMetric {
	return &MRRMetric{}
}

// Compute 计算 MRR
func (m *MRRMetric) Compute(input *MetricInput) float64 {
	for rank, item := range input.Retrieved {
		if input.isRelevant(item) {
			return 1.0 / float64(rank+1)
		}
	}
	return 0.0
}

// Name 返回指标名称
func (m *MRRMetric) Name() string {
	return "mrr"
}

// ========== NDCG@K ==========

// NDCGMetric NDCG 指标，增益为 2^rel - 1
type NDCGMetric struct{}

// NewNDCGMetric 创建 NDCG 指标
func NewNDCGMetric() *NDCGMetric {
	return &NDCGMetric{}
}

// Compute 计算 NDCG，IDCG 为 0 时返回 0
func (m *NDCGMetric) Compute(input *MetricInput) float64 {
	dcg := 0.0
	for i, item := range input.topK() {
		rel := input.Relevance[keyOf(item)]
		dcg += gain(rel, i+1)
	}

	idcg := m.calculateIDCG(input.Relevance, input.K)
	if idcg == 0 {
		return 0.0
	}
	return dcg / idcg
}

// calculateIDCG 计算理想DCG：相关度降序排列后取前 k 个
func (m *NDCGMetric) calculateIDCG(relevance map[types.SectionKey]int, k int) float64 {
	ideal := make([]int, 0, len(relevance))
	for _, rel := range relevance {
		ideal = append(ideal, rel)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ideal)))
	if k >= 0 && k < len(ideal) {
		ideal = ideal[:k]
	}

	idcg := 0.0
	for i, rel := range ideal {
		idcg += gain(rel, i+1)
	}
	return idcg
}

// gain 第 rank 位（从 1 开始）的折扣增益，非正相关度不计
func gain(rel, rank int) float64 {
	if rel <= 0 {
		return 0.0
	}
	return (math.Pow(2, float64(rel)) - 1) / math.Log2(float64(rank+1))
}

// Name 返回指标名称
func (m *NDCGMetric) Name() string {
	return "ndcg_at_k"
}

// ========== Gold in Top K ==========

// GoldInTopKMetric 前 K 个结果中是否包含任一相关段落，返回 0 或 1
type GoldInTopKMetric struct{}

// NewGoldInTopKMetric 创建 gold_in_top_k 指标
func NewGoldInTopKMetric() *GoldInTopKMetric {
	return &GoldInTopKMetric{}
}

// Compute 计算 gold_in_top_k
func (m *GoldInTopKMetric) Compute(input *MetricInput) float64 {
	for _, item := range input.topK() {
		if input.isRelevant(item) {
			return 1.0
		}
	}
	return 0.0
}

// Name 返回指标名称
func (m *GoldInTopKMetric) Name() string {
	return "gold_in_top_k"
}

// ========== 单个问题的检索指标 ==========

// RetrievalMetrics 单个问题的检索指标
type RetrievalMetrics struct {
	RecallAtK  float64 `json:"recall_at_k"`
	MRR        float64 `json:"mrr"`
	NDCGAtK    float64 `json:"ndcg_at_k"`
	GoldInTopK bool    `json:"gold_in_top_k"`
}

// ComputeRetrievalMetrics 计算单个问题的全部检索指标
func ComputeRetrievalMetrics(retrieved []model.RetrievedItem, qrels []model.Qrel, k int) RetrievalMetrics {
	input := NewMetricInput(retrieved, qrels, k)
	return RetrievalMetrics{
		RecallAtK:  NewRecallMetric().Compute(input),
		MRR:        NewMRRMetric().Compute(input),
		NDCGAtK:    NewNDCGMetric().Compute(input),
		GoldInTopK: NewGoldInTopKMetric().Compute(input) == 1.0,
	}
}
