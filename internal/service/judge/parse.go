package judge

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonrepair"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ashwinyue/rag-eval/internal/service/types"
)

const trackASchema = `{
  "type": "object",
  "required": ["correctness", "completeness", "specificity", "clarity"],
  "properties": {
    "correctness": {"type": "integer"},
    "completeness": {"type": "integer"},
    "specificity": {"type": "integer"},
    "clarity": {"type": "integer"},
    "overall": {"type": ["number", "null"]},
    "short_reason": {"type": ["string", "null"]}
  }
}`

const trackBSchema = `{
  "type": "object",
  "required": ["context_support", "hallucination", "citation_quality"],
  "properties": {
    "context_support": {"type": "number"},
    "hallucination": {"type": "number"},
    "citation_quality": {"type": "number"},
    "overall_groundedness": {"type": ["number", "null"]},
    "unsupported_claims": {
      "type": ["string", "array", "null"],
      "items": {"type": "string"}
    },
    "short_reason": {"type": ["string", "null"]}
  }
}`

type schemaRegistry struct {
	once    sync.Once
	initErr error
	trackA  *jsonschema.Schema
	trackB  *jsonschema.Schema
}

var schemas schemaRegistry

func initSchemas() error {
	schemas.once.Do(func() {
		a, err := jsonschema.CompileString("judge_track_a.json", trackASchema)
		if err != nil {
			schemas.initErr = err
			return
		}
		b, err := jsonschema.CompileString("judge_track_b.json", trackBSchema)
		if err != nil {
			schemas.initErr = err
			return
		}
		schemas.trackA = a
		schemas.trackB = b
	})
	return schemas.initErr
}

// trackAOutput 评审 A 的原始输出
type trackAOutput struct {
	Correctness  float64  `json:"correctness"`
	Completeness float64  `json:"completeness"`
	Specificity  float64  `json:"specificity"`
	Clarity      float64  `json:"clarity"`
	Overall      *float64 `json:"overall"`
	ShortReason  string   `json:"short_reason"`
}

// trackBOutput 评审 B 的原始输出
type trackBOutput struct {
	ContextSupport      float64         `json:"context_support"`
	Hallucination       float64         `json:"hallucination"`
	CitationQuality     float64         `json:"citation_quality"`
	OverallGroundedness *float64        `json:"overall_groundedness"`
	UnsupportedClaims   json.RawMessage `json:"unsupported_claims"`
	ShortReason         string          `json:"short_reason"`
}

// extractJSON 去掉代码块标记，截取最外层的 JSON 对象
func extractJSON(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		} else {
			s = strings.TrimPrefix(s, "```")
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	start := strings.Index(s, "{")
	if start < 0 {
		return strings.TrimSpace(s)
	}
	end := strings.LastIndex(s, "}")
	if end < start {
		return strings.TrimSpace(s[start:])
	}
	return s[start : end+1]
}

// decodeOutput 修复、校验并解码评审输出
func decodeOutput(track, content string, schema *jsonschema.Schema, out interface{}) error {
	s := extractJSON(content)
	if s == "" {
		return &types.JudgeFormatError{Track: track, Reason: "empty response"}
	}

	if !json.Valid([]byte(s)) {
		repaired, err := jsonrepair.JSONRepair(s)
		if err != nil {
			return &types.JudgeFormatError{Track: track, Reason: fmt.Sprintf("unrepairable json: %v", err)}
		}
		s = repaired
	}

	var payload interface{}
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return &types.JudgeFormatError{Track: track, Reason: fmt.Sprintf("invalid json: %v", err)}
	}
	if err := schema.Validate(payload); err != nil {
		return &types.JudgeFormatError{Track: track, Reason: fmt.Sprintf("schema violation: %v", err)}
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return &types.JudgeFormatError{Track: track, Reason: fmt.Sprintf("decode: %v", err)}
	}
	return nil
}

// normalizeClaims 兼容字符串和数组两种形式，去除空白后最多保留 3 条
func normalizeClaims(raw json.RawMessage) []string {
	claims := make([]string, 0, maxClaims)
	if len(raw) == 0 {
		return claims
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if s := strings.TrimSpace(single); s != "" {
			claims = append(claims, s)
		}
		return claims
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return claims
	}
	for _, item := range list {
		if len(claims) == maxClaims {
			break
		}
		if s := strings.TrimSpace(item); s != "" {
			claims = append(claims, s)
		}
	}
	return claims
}

func clamp(v float64) float64 {
	if v < minScore {
		return minScore
	}
	if v > maxScore {
		return maxScore
	}
	return v
}
