package judge

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ashwinyue/rag-eval/internal/logger"
	"github.com/ashwinyue/rag-eval/internal/observability"
)

type mockChatModel struct {
	nilResp  bool
	content  string
	usage    *schema.TokenUsage
	err      error
	messages []*schema.Message
}

func (m *mockChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.messages = messages
	if m.err != nil {
		return nil, m.err
	}
	if m.nilResp {
		return nil, nil
	}
	msg := &schema.Message{Role: schema.Assistant, Content: m.content}
	if m.usage != nil {
		msg.ResponseMeta = &schema.ResponseMeta{Usage: m.usage}
	}
	return msg, nil
}

func (m *mockChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

type mockFactory struct {
	chat *mockChatModel
	err  error
}

func (f *mockFactory) NewChatModel(ctx context.Context, modelName, apiKey string, temperature float64) (model.BaseChatModel, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.chat, nil
}

func newTestJudge(t *testing.T, chat *mockChatModel) *Judge {
	t.Helper()
	j, err := NewJudge(&mockFactory{chat: chat}, logger.Nop())
	if err != nil {
		t.Fatalf("NewJudge() error = %v", err)
	}
	return j
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func assertTrackAFallback(t *testing.T, res *TrackAResult) {
	t.Helper()
	if !res.Fallback {
		t.Error("Fallback = false, want true")
	}
	if res.Correctness != 3 || res.Completeness != 3 || res.Specificity != 3 || res.Clarity != 3 {
		t.Errorf("scores = %+v, want all 3", res)
	}
	if res.Overall != 3.0 || res.Reason != FallbackReason {
		t.Errorf("overall/reason = %v/%q", res.Overall, res.Reason)
	}
	if res.InputTokens != 0 || res.OutputTokens != 0 {
		t.Errorf("tokens = %d/%d, want 0/0", res.InputTokens, res.OutputTokens)
	}
	if string(res.Raw) != `{"content":"Fallback used"}` {
		t.Errorf("Raw = %s", res.Raw)
	}
}

func TestTrackA_Success(t *testing.T) {
	chat := &mockChatModel{
		content: `{"correctness": 4, "completeness": 3, "specificity": 5, "clarity": 4, "overall": 3.8, "short_reason": " good "}`,
		usage:   &schema.TokenUsage{PromptTokens: 300, CompletionTokens: 40},
	}
	j := newTestJudge(t, chat)

	res := j.TrackA(context.Background(), Request{
		Question:        "What is X?",
		ReferenceAnswer: "X is Y.",
		Answer:          "X is Y!",
		ModelName:       "gpt-4o",
		APIKey:          "k",
	})

	if res.Fallback {
		t.Fatal("unexpected fallback")
	}
	if res.Correctness != 4 || res.Completeness != 3 || res.Specificity != 5 || res.Clarity != 4 {
		t.Errorf("scores = %+v", res)
	}
	if res.Overall != 3.8 || res.Reason != "good" {
		t.Errorf("overall/reason = %v/%q", res.Overall, res.Reason)
	}
	if res.InputTokens != 300 || res.OutputTokens != 40 {
		t.Errorf("tokens = %d/%d", res.InputTokens, res.OutputTokens)
	}

	var raw map[string]string
	if err := json.Unmarshal(res.Raw, &raw); err != nil || raw["content"] != chat.content {
		t.Errorf("Raw = %s", res.Raw)
	}

	user := chat.messages[1].Content
	for _, want := range []string{"QUESTION:\nWhat is X?", "REFERENCE_ANSWER:\nX is Y.", "MODEL_ANSWER:\nX is Y!"} {
		if !strings.Contains(user, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestTrackA_Normalization(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantOverall float64
		check       func(t *testing.T, res *TrackAResult)
	}{
		{
			name:        "overall computed when missing",
			content:     `{"correctness": 4, "completeness": 2, "specificity": 3, "clarity": 5}`,
			wantOverall: 4*0.5 + 2*0.3 + 3*0.1 + 5*0.1,
		},
		{
			name:        "out of range values clamped",
			content:     `{"correctness": 7, "completeness": -1, "specificity": 5, "clarity": 5, "overall": 9.5}`,
			wantOverall: 5,
			check: func(t *testing.T, res *TrackAResult) {
				if res.Correctness != 5 || res.Completeness != 0 {
					t.Errorf("clamped = %v/%v, want 5/0", res.Correctness, res.Completeness)
				}
			},
		},
		{
			name:        "code fence stripped",
			content:     "```json\n{\"correctness\": 5, \"completeness\": 5, \"specificity\": 5, \"clarity\": 5, \"overall\": 5}\n```",
			wantOverall: 5,
		},
		{
			name:        "prose around json",
			content:     "Here is my evaluation: {\"correctness\": 1, \"completeness\": 1, \"specificity\": 1, \"clarity\": 1, \"overall\": 1} Thanks.",
			wantOverall: 1,
		},
		{
			name:        "repairable json",
			content:     `{"correctness": 2, "completeness": 2, "specificity": 2, "clarity": 2, "overall": 2,}`,
			wantOverall: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := newTestJudge(t, &mockChatModel{content: tt.content})
			res := j.TrackA(context.Background(), Request{APIKey: "k"})
			if res.Fallback {
				t.Fatal("unexpected fallback")
			}
			if !almostEqual(res.Overall, tt.wantOverall) {
				t.Errorf("Overall = %v, want %v", res.Overall, tt.wantOverall)
			}
			if tt.check != nil {
				tt.check(t, res)
			}
		})
	}
}

func TestTrackA_FallbackOnFormatError(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"missing required field", `{"correctness": 4, "completeness": 3, "specificity": 5}`},
		{"wrong type", `{"correctness": "high", "completeness": 3, "specificity": 5, "clarity": 4}`},
		{"not an object", `[1, 2, 3]`},
		{"fractional rubric score", `{"correctness": 3.7, "completeness": 2.5, "specificity": 5, "clarity": 4}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(observability.JudgeFallbacks.WithLabelValues("a", "format"))

			j := newTestJudge(t, &mockChatModel{content: tt.content, usage: &schema.TokenUsage{PromptTokens: 10, CompletionTokens: 5}})
			assertTrackAFallback(t, j.TrackA(context.Background(), Request{APIKey: "k"}))

			after := testutil.ToFloat64(observability.JudgeFallbacks.WithLabelValues("a", "format"))
			if after-before != 1 {
				t.Errorf("format fallbacks delta = %v, want 1", after-before)
			}
		})
	}
}

func TestTrackA_FallbackOnCallError(t *testing.T) {
	before := testutil.ToFloat64(observability.JudgeFallbacks.WithLabelValues("a", "call"))

	j := newTestJudge(t, &mockChatModel{err: errors.New("connection reset")})
	assertTrackAFallback(t, j.TrackA(context.Background(), Request{APIKey: "k"}))

	after := testutil.ToFloat64(observability.JudgeFallbacks.WithLabelValues("a", "call"))
	if after-before != 1 {
		t.Errorf("call fallbacks delta = %v, want 1", after-before)
	}
}

func TestJudge_NilResponseFallsBack(t *testing.T) {
	beforeA := testutil.ToFloat64(observability.JudgeFallbacks.WithLabelValues("a", "call"))
	beforeB := testutil.ToFloat64(observability.JudgeFallbacks.WithLabelValues("b", "call"))

	j := newTestJudge(t, &mockChatModel{nilResp: true})
	assertTrackAFallback(t, j.TrackA(context.Background(), Request{APIKey: "k"}))
	if res := j.TrackB(context.Background(), Request{APIKey: "k"}); res.ContextSupport != fallbackScore || res.InputTokens != 0 {
		t.Errorf("TrackB() = %+v, want fallback", res)
	}

	if d := testutil.ToFloat64(observability.JudgeFallbacks.WithLabelValues("a", "call")) - beforeA; d != 1 {
		t.Errorf("track a call fallbacks delta = %v, want 1", d)
	}
	if d := testutil.ToFloat64(observability.JudgeFallbacks.WithLabelValues("b", "call")) - beforeB; d != 1 {
		t.Errorf("track b call fallbacks delta = %v, want 1", d)
	}
}

func TestTrackA_FallbackOnFactoryError(t *testing.T) {
	j, err := NewJudge(&mockFactory{err: errors.New("api_key is required")}, logger.Nop())
	if err != nil {
		t.Fatalf("NewJudge() error = %v", err)
	}
	assertTrackAFallback(t, j.TrackA(context.Background(), Request{}))
}

func TestTrackB_Success(t *testing.T) {
	chat := &mockChatModel{
		content: `{"context_support": 4.5, "hallucination": 5, "citation_quality": 4, "overall_groundedness": 4.5, "unsupported_claims": [" a ", "", "b", "c", "d"], "short_reason": "ok"}`,
		usage:   &schema.TokenUsage{PromptTokens: 500, CompletionTokens: 60},
	}
	j := newTestJudge(t, chat)

	res := j.TrackB(context.Background(), Request{
		Question: "q",
		Answer:   "ans",
		Contexts: []string{"first", "", "third"},
		APIKey:   "k",
	})

	if res.Fallback {
		t.Fatal("unexpected fallback")
	}
	if res.ContextSupport != 4.5 || res.Hallucination != 5 || res.CitationQuality != 4 || res.Overall != 4.5 {
		t.Errorf("scores = %+v", res)
	}
	want := []string{"a", "b", "c"}
	if strings.Join(res.UnsupportedClaims, "|") != strings.Join(want, "|") {
		t.Errorf("UnsupportedClaims = %v, want %v", res.UnsupportedClaims, want)
	}
	if res.InputTokens != 500 || res.OutputTokens != 60 {
		t.Errorf("tokens = %d/%d", res.InputTokens, res.OutputTokens)
	}
	if !strings.Contains(chat.messages[1].Content, "CONTEXTS:\n[1] first\n\n[3] third") {
		t.Errorf("contexts not numbered: %q", chat.messages[1].Content)
	}
}

func TestTrackB_Normalization(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantOverall float64
		wantClaims  []string
	}{
		{
			name:        "overall is mean when missing",
			content:     `{"context_support": 3, "hallucination": 4, "citation_quality": 5}`,
			wantOverall: 4,
			wantClaims:  []string{},
		},
		{
			name:        "claims as string",
			content:     `{"context_support": 2, "hallucination": 2, "citation_quality": 2, "overall_groundedness": 2, "unsupported_claims": "  made up date "}`,
			wantOverall: 2,
			wantClaims:  []string{"made up date"},
		},
		{
			name:        "null claims",
			content:     `{"context_support": 2, "hallucination": 2, "citation_quality": 2, "overall_groundedness": 2, "unsupported_claims": null}`,
			wantOverall: 2,
			wantClaims:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := newTestJudge(t, &mockChatModel{content: tt.content})
			res := j.TrackB(context.Background(), Request{APIKey: "k"})
			if res.Fallback {
				t.Fatal("unexpected fallback")
			}
			if !almostEqual(res.Overall, tt.wantOverall) {
				t.Errorf("Overall = %v, want %v", res.Overall, tt.wantOverall)
			}
			if strings.Join(res.UnsupportedClaims, "|") != strings.Join(tt.wantClaims, "|") || res.UnsupportedClaims == nil {
				t.Errorf("UnsupportedClaims = %#v, want %#v", res.UnsupportedClaims, tt.wantClaims)
			}
		})
	}
}

func TestTrackB_Fallback(t *testing.T) {
	j := newTestJudge(t, &mockChatModel{content: `{"context_support": 4}`})
	res := j.TrackB(context.Background(), Request{APIKey: "k"})

	if !res.Fallback {
		t.Fatal("Fallback = false, want true")
	}
	if res.ContextSupport != 3 || res.Hallucination != 3 || res.CitationQuality != 3 || res.Overall != 3 {
		t.Errorf("scores = %+v, want all 3.0", res)
	}
	if res.UnsupportedClaims == nil || len(res.UnsupportedClaims) != 0 {
		t.Errorf("UnsupportedClaims = %#v, want empty", res.UnsupportedClaims)
	}
	if res.InputTokens != 0 || res.OutputTokens != 0 {
		t.Error("fallback must report zero tokens")
	}
}

func TestNewScore(t *testing.T) {
	a := trackAFallback()
	b := &TrackBResult{ContextSupport: 4, Hallucination: 5, CitationQuality: 3, Overall: 4, UnsupportedClaims: []string{"x"}, Raw: json.RawMessage(`{"content":"{}"}`), InputTokens: 7, OutputTokens: 2}

	score := NewScore(a, b)
	if *score.TrackAOverall != 3 || score.TrackAReason != FallbackReason {
		t.Errorf("track a = %v/%q", *score.TrackAOverall, score.TrackAReason)
	}
	if *score.TrackBHallucination != 5 || len(score.TrackBUnsupportedClaims) != 1 {
		t.Errorf("track b = %+v", score)
	}
	if score.TotalTokens() != 9 {
		t.Errorf("TotalTokens() = %d, want 9", score.TotalTokens())
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}```", `{"a":1}`},
		{`result: {"a":{"b":2}} done`, `{"a":{"b":2}}`},
		{`{"a":1`, `{"a":1`},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := extractJSON(tt.in); got != tt.want {
			t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatContexts(t *testing.T) {
	if got := FormatContexts(nil); got != "" {
		t.Errorf("FormatContexts(nil) = %q", got)
	}
	if got := FormatContexts([]string{"a", "b"}); got != "[1] a\n\n[2] b" {
		t.Errorf("FormatContexts() = %q", got)
	}
}
