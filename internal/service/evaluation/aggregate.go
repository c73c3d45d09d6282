package evaluation

import "github.com/ashwinyue/rag-eval/internal/model"

// AggregateRetrieval 检索指标取算术平均，布尔值按 0/1 计，空列表返回全 0
func AggregateRetrieval(metrics []RetrievalMetrics) model.RetrievalSummary {
	if len(metrics) == 0 {
		return model.RetrievalSummary{}
	}

	var s model.RetrievalSummary
	for _, m := range metrics {
		s.RecallAtK += m.RecallAtK
		s.MRR += m.MRR
		s.NDCGAtK += m.NDCGAtK
		if m.GoldInTopK {
			s.GoldInTopK++
		}
	}

	n := float64(len(metrics))
	s.RecallAtK /= n
	s.MRR /= n
	s.NDCGAtK /= n
	s.GoldInTopK /= n
	return s
}

// AggregateTrackA Track A 各字段分别求均值，缺失字段只在该字段中跳过
func AggregateTrackA(scores []*model.JudgeScore) model.TrackASummary {
	var correctness, completeness, specificity, clarity, overall mean
	for _, s := range scores {
		if s == nil {
			continue
		}
		correctness.add(s.TrackACorrectness)
		completeness.add(s.TrackACompleteness)
		specificity.add(s.TrackASpecificity)
		clarity.add(s.TrackAClarity)
		overall.add(s.TrackAOverall)
	}
	return model.TrackASummary{
		AvgCorrectness:  correctness.value(),
		AvgCompleteness: completeness.value(),
		AvgSpecificity:  specificity.value(),
		AvgClarity:      clarity.value(),
		AvgOverall:      overall.value(),
	}
}

// AggregateTrackB Track B 各字段分别求均值，缺失字段只在该字段中跳过
func AggregateTrackB(scores []*model.JudgeScore) model.TrackBSummary {
	var support, hallucination, citation, overall mean
	for _, s := range scores {
		if s == nil {
			continue
		}
		support.add(s.TrackBContextSupport)
		hallucination.add(s.TrackBHallucination)
		citation.add(s.TrackBCitationQuality)
		overall.add(s.TrackBOverall)
	}
	return model.TrackBSummary{
		AvgContextSupport:  support.value(),
		AvgHallucination:   hallucination.value(),
		AvgCitationQuality: citation.value(),
		AvgOverall:         overall.value(),
	}
}

// BuildSummary 汇总整个任务的指标
func BuildSummary(metrics []RetrievalMetrics, scores []*model.JudgeScore) *model.MetricsSummary {
	return &model.MetricsSummary{
		Retrieval: AggregateRetrieval(metrics),
		TrackA:    AggregateTrackA(scores),
		TrackB:    AggregateTrackB(scores),
	}
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v *float64) {
	if v == nil {
		return
	}
	m.sum += *v
	m.n++
}

func (m *mean) value() float64 {
	if m.n == 0 {
		return 0.0
	}
	return m.sum / float64(m.n)
}
