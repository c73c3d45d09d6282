// Package judge 双轨 LLM 评审：Track A 对照参考答案打分，Track B 评估答案在上下文中的依据性
// 评审失败不会向上传播，统一返回固定的中性兜底分数
package judge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/ashwinyue/rag-eval/internal/logger"
	"github.com/ashwinyue/rag-eval/internal/model"
	"github.com/ashwinyue/rag-eval/internal/observability"
	"github.com/ashwinyue/rag-eval/internal/service/types"
)

var errEmptyResponse = errors.New("judge model returned no message")

const (
	minScore      = 0.0
	maxScore      = 5.0
	fallbackScore = 3.0
	maxClaims     = 3

	// FallbackReason Track A 兜底时的说明
	FallbackReason = "Fallback due to parsing error"

	trackA = "a"
	trackB = "b"
)

var fallbackRaw = json.RawMessage(`{"content":"Fallback used"}`)

// Request 评审请求
type Request struct {
	Question        string
	ReferenceAnswer string
	Answer          string
	Contexts        []string
	ModelName       string
	APIKey          string
	Temperature     float64
}

// TrackAResult 答案质量评分
type TrackAResult struct {
	Correctness  float64
	Completeness float64
	Specificity  float64
	Clarity      float64
	Overall      float64
	Reason       string
	Raw          json.RawMessage
	InputTokens  int
	OutputTokens int
	Fallback     bool
}

// TrackBResult 依据性评分
type TrackBResult struct {
	ContextSupport    float64
	Hallucination     float64
	CitationQuality   float64
	Overall           float64
	UnsupportedClaims []string
	Raw               json.RawMessage
	InputTokens       int
	OutputTokens      int
	Fallback          bool
}

// Judge LLM 评审
type Judge struct {
	factory types.ChatModelFactory
	logger  *logger.Logger
}

// NewJudge 创建评审，同时编译输出校验 schema
func NewJudge(factory types.ChatModelFactory, log *logger.Logger) (*Judge, error) {
	if err := initSchemas(); err != nil {
		return nil, fmt.Errorf("failed to compile judge schemas: %w", err)
	}
	return &Judge{factory: factory, logger: log.With("component", "judge")}, nil
}

// TrackA 对照参考答案评估答案质量
func (j *Judge) TrackA(ctx context.Context, req Request) *TrackAResult {
	prompt := strings.NewReplacer(
		"{question}", req.Question,
		"{reference_answer}", req.ReferenceAnswer,
		"{model_answer}", req.Answer,
	).Replace(trackAUserPrompt)

	resp, err := j.call(ctx, req, trackASystemPrompt, prompt)
	if err != nil {
		j.recordFallback(trackA, err)
		return trackAFallback()
	}

	var out trackAOutput
	if err := decodeOutput(trackA, resp.Content, schemas.trackA, &out); err != nil {
		j.recordFallback(trackA, err)
		return trackAFallback()
	}

	res := &TrackAResult{
		Correctness:  clamp(out.Correctness),
		Completeness: clamp(out.Completeness),
		Specificity:  clamp(out.Specificity),
		Clarity:      clamp(out.Clarity),
		Reason:       strings.TrimSpace(out.ShortReason),
		Raw:          rawPayload(resp.Content),
	}
	if out.Overall != nil {
		res.Overall = clamp(*out.Overall)
	} else {
		res.Overall = TrackAOverall(res.Correctness, res.Completeness, res.Specificity, res.Clarity)
	}
	res.InputTokens, res.OutputTokens = types.UsageFromMessage(resp)
	j.addTokens(res.InputTokens, res.OutputTokens)
	return res
}

// TrackB 评估答案在检索上下文中的依据性
func (j *Judge) TrackB(ctx context.Context, req Request) *TrackBResult {
	prompt := strings.NewReplacer(
		"{question}", req.Question,
		"{numbered_contexts}", FormatContexts(req.Contexts),
		"{model_answer}", req.Answer,
	).Replace(trackBUserPrompt)

	resp, err := j.call(ctx, req, trackBSystemPrompt, prompt)
	if err != nil {
		j.recordFallback(trackB, err)
		return trackBFallback()
	}

	var out trackBOutput
	if err := decodeOutput(trackB, resp.Content, schemas.trackB, &out); err != nil {
		j.recordFallback(trackB, err)
		return trackBFallback()
	}

	res := &TrackBResult{
		ContextSupport:    clamp(out.ContextSupport),
		Hallucination:     clamp(out.Hallucination),
		CitationQuality:   clamp(out.CitationQuality),
		UnsupportedClaims: normalizeClaims(out.UnsupportedClaims),
		Raw:               rawPayload(resp.Content),
	}
	if out.OverallGroundedness != nil {
		res.Overall = clamp(*out.OverallGroundedness)
	} else {
		res.Overall = (res.ContextSupport + res.Hallucination + res.CitationQuality) / 3
	}
	res.InputTokens, res.OutputTokens = types.UsageFromMessage(resp)
	j.addTokens(res.InputTokens, res.OutputTokens)
	return res
}

func (j *Judge) call(ctx context.Context, req Request, system, user string) (*schema.Message, error) {
	chatModel, err := j.factory.NewChatModel(ctx, req.ModelName, req.APIKey, req.Temperature)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer observability.ObserveStage("judge", start)

	resp, err := chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	})
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, errEmptyResponse
	}
	return resp, nil
}

// recordFallback 区分格式错误与调用失败，两者都降级为兜底分数
func (j *Judge) recordFallback(track string, err error) {
	var fe *types.JudgeFormatError
	if errors.As(err, &fe) {
		observability.JudgeFallbacks.WithLabelValues(track, "format").Inc()
		j.logger.Warn("judge output malformed, using fallback", "track", track, "reason", fe.Reason)
		return
	}
	observability.JudgeFallbacks.WithLabelValues(track, "call").Inc()
	j.logger.Error("judge call failed, using fallback", "track", track, "error", err)
}

func (j *Judge) addTokens(input, output int) {
	observability.AddTokens("judge_input", input)
	observability.AddTokens("judge_output", output)
}

// TrackAOverall 固定权重的综合分
func TrackAOverall(correctness, completeness, specificity, clarity float64) float64 {
	return correctness*0.5 + completeness*0.3 + specificity*0.1 + clarity*0.1
}

// FormatContexts 按 [1]、[2] 编号上下文，空上下文跳过但保留编号
func FormatContexts(contexts []string) string {
	lines := make([]string, 0, len(contexts))
	for i, c := range contexts {
		if c == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%d] %s", i+1, c))
	}
	return strings.Join(lines, "\n\n")
}

func rawPayload(content string) json.RawMessage {
	b, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fallbackRaw
	}
	return b
}

func trackAFallback() *TrackAResult {
	return &TrackAResult{
		Correctness:  fallbackScore,
		Completeness: fallbackScore,
		Specificity:  fallbackScore,
		Clarity:      fallbackScore,
		Overall:      fallbackScore,
		Reason:       FallbackReason,
		Raw:          fallbackRaw,
		Fallback:     true,
	}
}

func trackBFallback() *TrackBResult {
	return &TrackBResult{
		ContextSupport:    fallbackScore,
		Hallucination:     fallbackScore,
		CitationQuality:   fallbackScore,
		Overall:           fallbackScore,
		UnsupportedClaims: []string{},
		Raw:               fallbackRaw,
		Fallback:          true,
	}
}

// NewScore 组装持久化的评审记录
func NewScore(a *TrackAResult, b *TrackBResult) *model.JudgeScore {
	return &model.JudgeScore{
		TrackACorrectness:       floatPtr(a.Correctness),
		TrackACompleteness:      floatPtr(a.Completeness),
		TrackASpecificity:       floatPtr(a.Specificity),
		TrackAClarity:           floatPtr(a.Clarity),
		TrackAOverall:           floatPtr(a.Overall),
		TrackAReason:            a.Reason,
		TrackARawResponse:       []byte(a.Raw),
		TrackBContextSupport:    floatPtr(b.ContextSupport),
		TrackBHallucination:     floatPtr(b.Hallucination),
		TrackBCitationQuality:   floatPtr(b.CitationQuality),
		TrackBOverall:           floatPtr(b.Overall),
		TrackBUnsupportedClaims: b.UnsupportedClaims,
		TrackBRawResponse:       []byte(b.Raw),
		TrackAInputTokens:       a.InputTokens,
		TrackAOutputTokens:      a.OutputTokens,
		TrackBInputTokens:       b.InputTokens,
		TrackBOutputTokens:      b.OutputTokens,
	}
}

func floatPtr(v float64) *float64 {
	return &v
}
