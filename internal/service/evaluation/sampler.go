package evaluation

import (
	"math/rand"
	"time"

	"github.com/ashwinyue/rag-eval/internal/model"
)

// SampleQueries 从稳定排序的问题集中抽取 size 个
// size 不小于总数时返回全集；seed 为 nil 时每次抽样结果不同
func SampleQueries(queries []model.Query, size int, seed *int64) []model.Query {
	if size >= len(queries) {
		return queries
	}
	if size <= 0 {
		return nil
	}

	s := time.Now().UnixNano()
	if seed != nil {
		s = *seed
	}
	r := rand.New(rand.NewSource(s))

	out := make([]model.Query, 0, size)
	for _, idx := range r.Perm(len(queries))[:size] {
		out = append(out, queries[idx])
	}
	return out
}
