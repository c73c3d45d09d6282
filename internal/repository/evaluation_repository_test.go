package repository

import (
	"context"
	"testing"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ashwinyue/rag-eval/internal/model"
	"github.com/ashwinyue/rag-eval/internal/service/types"
	"github.com/ashwinyue/rag-eval/internal/testutil"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := testutil.NewDB(t)
	return db.DB
}

func newPendingRun(t *testing.T, repo RunRepository) *model.EvaluationRun {
	t.Helper()
	run := &model.EvaluationRun{
		EmbeddingModelID: "m1",
		Config: datatypes.NewJSONType(model.RunConfig{
			EmbeddingModelID: "m1",
			RetrievalTopK:    10,
			SampleSize:       5,
			Judge:            model.JudgeSettings{ModelName: "gpt-4o"},
		}),
		Status: model.RunStatusPending,
	}
	if err := repo.Create(context.Background(), run); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return run
}

func TestRunRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(newTestDB(t))
	run := newPendingRun(t, repo)

	if run.ID == "" {
		t.Fatal("Create() should assign an ID")
	}

	ok, err := repo.MarkRunning(ctx, run.ID, 3, time.Now())
	if err != nil || !ok {
		t.Fatalf("MarkRunning() = %v, %v; want true, nil", ok, err)
	}
	// 重复迁移不生效
	ok, err = repo.MarkRunning(ctx, run.ID, 3, time.Now())
	if err != nil || ok {
		t.Fatalf("second MarkRunning() = %v, %v; want false, nil", ok, err)
	}

	summary := &model.MetricsSummary{Retrieval: model.RetrievalSummary{RecallAtK: 0.5}}
	usage := TokenUsage{GenerationInput: 10, GenerationOutput: 5, JudgeInput: 20, JudgeOutput: 8}
	if err := repo.Complete(ctx, run.ID, summary, usage, time.Now()); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	got, err := repo.GetByID(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != model.RunStatusCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}
	if got.TotalQueries != 3 || got.JudgeInputTokens != 20 || got.GenerationOutputTokens != 5 {
		t.Errorf("counters not persisted: %+v", got)
	}
	s, err := got.Summary()
	if err != nil || s == nil {
		t.Fatalf("Summary() = %v, %v", s, err)
	}
	if s.Retrieval.RecallAtK != 0.5 {
		t.Errorf("RecallAtK = %v, want 0.5", s.Retrieval.RecallAtK)
	}
	if got.Config.Data().RetrievalTopK != 10 {
		t.Errorf("config snapshot RetrievalTopK = %d, want 10", got.Config.Data().RetrievalTopK)
	}

	// 终态之后不能再失败
	if err := repo.Fail(ctx, run.ID, "boom", TokenUsage{}, time.Now()); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	got, _ = repo.GetByID(ctx, run.ID)
	if got.Status != model.RunStatusCompleted || got.ErrorMessage != nil {
		t.Errorf("terminal run changed: status=%s error=%v", got.Status, got.ErrorMessage)
	}
}

func TestRunRepository_Fail(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(newTestDB(t))
	run := newPendingRun(t, repo)

	if _, err := repo.MarkRunning(ctx, run.ID, 5, time.Now()); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if err := repo.Fail(ctx, run.ID, "retrieval failed", TokenUsage{JudgeInput: 4}, time.Now()); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, run.ID)
	if got.Status != model.RunStatusError {
		t.Errorf("Status = %s, want error", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "retrieval failed" {
		t.Errorf("ErrorMessage = %v", got.ErrorMessage)
	}
	if s, _ := got.Summary(); s != nil {
		t.Errorf("Summary() = %+v, want nil", s)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}

	if err := repo.Complete(ctx, run.ID, &model.MetricsSummary{}, TokenUsage{}, time.Now()); err == nil {
		t.Error("Complete() on errored run should fail")
	}
}

func TestRunRepository_FailStale(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(newTestDB(t))

	pending := newPendingRun(t, repo)
	running := newPendingRun(t, repo)
	done := newPendingRun(t, repo)
	for _, id := range []string{running.ID, done.ID} {
		if _, err := repo.MarkRunning(ctx, id, 1, time.Now()); err != nil {
			t.Fatalf("MarkRunning() error = %v", err)
		}
	}
	if err := repo.Complete(ctx, done.ID, &model.MetricsSummary{}, TokenUsage{}, time.Now()); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	// 仅 running
	n, err := repo.FailStale(ctx, []model.RunStatus{model.RunStatusRunning}, "interrupted by restart", time.Now())
	if err != nil || n != 1 {
		t.Fatalf("FailStale(running) = %d, %v; want 1, nil", n, err)
	}
	if got, _ := repo.GetByID(ctx, pending.ID); got.Status != model.RunStatusPending {
		t.Errorf("pending run status = %s, want pending", got.Status)
	}

	n, err = repo.FailStale(ctx, []model.RunStatus{model.RunStatusPending, model.RunStatusRunning}, "interrupted by restart", time.Now())
	if err != nil || n != 1 {
		t.Fatalf("FailStale(pending, running) = %d, %v; want 1, nil", n, err)
	}

	for _, id := range []string{pending.ID, running.ID} {
		got, _ := repo.GetByID(ctx, id)
		if got.Status != model.RunStatusError || got.ErrorMessage == nil || *got.ErrorMessage != "interrupted by restart" {
			t.Errorf("run %s = %s/%v, want error with restart message", id, got.Status, got.ErrorMessage)
		}
		if got.CompletedAt == nil {
			t.Errorf("run %s CompletedAt not set", id)
		}
	}
	if got, _ := repo.GetByID(ctx, done.ID); got.Status != model.RunStatusCompleted {
		t.Errorf("completed run status = %s, want completed", got.Status)
	}

	if _, err := repo.FailStale(ctx, []model.RunStatus{model.RunStatusCompleted}, "x", time.Now()); err == nil {
		t.Error("FailStale(completed) expected error")
	}
}

func TestRunRepository_GetByID_NotFound(t *testing.T) {
	repo := NewRunRepository(newTestDB(t))
	_, err := repo.GetByID(context.Background(), "missing")
	if !types.IsNotFound(err) {
		t.Errorf("GetByID() error = %v, want NotFoundError", err)
	}
}

func TestRunRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := NewRunRepository(newTestDB(t))
	first := newPendingRun(t, repo)
	newPendingRun(t, repo)
	if _, err := repo.MarkRunning(ctx, first.ID, 1, time.Now()); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}

	runs, total, err := repo.List(ctx, "", 10, 0)
	if err != nil || total != 2 || len(runs) != 2 {
		t.Fatalf("List() = %d runs, total %d, err %v", len(runs), total, err)
	}

	runs, total, err = repo.List(ctx, model.RunStatusRunning, 10, 0)
	if err != nil || total != 1 || runs[0].ID != first.ID {
		t.Fatalf("List(running) = %v, total %d, err %v", runs, total, err)
	}
}

func TestRunRepository_Delete(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	runs := NewRunRepository(db)
	results := NewResultRepository(db)

	run := newPendingRun(t, runs)
	if _, err := runs.MarkRunning(ctx, run.ID, 1, time.Now()); err != nil {
		t.Fatalf("MarkRunning() error = %v", err)
	}
	if err := results.CreateWithScore(ctx, newResult(run.ID, "q1")); err != nil {
		t.Fatalf("CreateWithScore() error = %v", err)
	}

	if err := runs.Delete(ctx, run.ID); !types.IsConfigurationError(err) {
		t.Fatalf("Delete(running) error = %v, want ConfigurationError", err)
	}

	if err := runs.Fail(ctx, run.ID, "stopped", TokenUsage{}, time.Now()); err != nil {
		t.Fatalf("Fail() error = %v", err)
	}
	if err := runs.Delete(ctx, run.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := runs.GetByID(ctx, run.ID); !types.IsNotFound(err) {
		t.Errorf("run still present: %v", err)
	}
	var scores int64
	db.Model(&model.JudgeScore{}).Count(&scores)
	if scores != 0 {
		t.Errorf("judge scores left = %d, want 0", scores)
	}
	if n, _ := results.CountByRun(ctx, run.ID); n != 0 {
		t.Errorf("results left = %d, want 0", n)
	}

	if err := runs.Delete(ctx, "missing"); !types.IsNotFound(err) {
		t.Errorf("Delete(missing) error = %v, want NotFoundError", err)
	}
}

func newResult(runID, queryUUID string) *model.EvaluationResult {
	overall := 3.0
	return &model.EvaluationResult{
		RunID:     runID,
		QueryUUID: queryUUID,
		RetrievedIDs: datatypes.NewJSONSlice([]model.RetrievedItem{
			{DocID: "d1", SectionID: 1, Score: 0.9},
		}),
		FinalContextIDs: datatypes.NewJSONSlice([]model.RetrievedItem{
			{DocID: "d1", SectionID: 1, Score: 0.9},
		}),
		GeneratedAnswer: "answer",
		RecallAtK:       1,
		GoldInTopK:      true,
		ContextTokens:   12,
		AnswerTokens:    3,
		JudgeScore: &model.JudgeScore{
			TrackAOverall:           &overall,
			TrackAReason:            "ok",
			TrackARawResponse:       datatypes.JSON(`{"overall":3}`),
			TrackBUnsupportedClaims: datatypes.NewJSONSlice([]string{"claim"}),
			TrackAInputTokens:       7,
			TrackBOutputTokens:      2,
		},
	}
}

func TestResultRepository_CreateAndQuery(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	runs := NewRunRepository(db)
	results := NewResultRepository(db)
	run := newPendingRun(t, runs)

	for _, q := range []string{"q1", "q2", "q3"} {
		if err := results.CreateWithScore(ctx, newResult(run.ID, q)); err != nil {
			t.Fatalf("CreateWithScore(%s) error = %v", q, err)
		}
	}

	count, err := results.CountByRun(ctx, run.ID)
	if err != nil || count != 3 {
		t.Fatalf("CountByRun() = %d, %v; want 3", count, err)
	}

	page, total, err := results.ListByRun(ctx, run.ID, 2, 1)
	if err != nil {
		t.Fatalf("ListByRun() error = %v", err)
	}
	if total != 3 || len(page) != 2 {
		t.Fatalf("ListByRun() = %d items, total %d; want 2, 3", len(page), total)
	}
	if page[0].JudgeScore == nil {
		t.Fatal("JudgeScore should be preloaded")
	}

	all, _, err := results.ListByRun(ctx, run.ID, 0, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListByRun(no limit) = %d, %v", len(all), err)
	}

	got, err := results.GetByRunAndQuery(ctx, run.ID, "q2")
	if err != nil {
		t.Fatalf("GetByRunAndQuery() error = %v", err)
	}
	if got.RerankedIDs != nil {
		t.Errorf("RerankedIDs = %v, want nil", got.RerankedIDs)
	}
	if len(got.RetrievedIDs) != 1 || got.RetrievedIDs[0].DocID != "d1" {
		t.Errorf("RetrievedIDs = %v", got.RetrievedIDs)
	}
	if got.JudgeScore.TotalTokens() != 9 {
		t.Errorf("TotalTokens() = %d, want 9", got.JudgeScore.TotalTokens())
	}
	if len(got.JudgeScore.TrackBUnsupportedClaims) != 1 {
		t.Errorf("claims = %v", got.JudgeScore.TrackBUnsupportedClaims)
	}

	if _, err := results.GetByRunAndQuery(ctx, run.ID, "missing"); !types.IsNotFound(err) {
		t.Errorf("GetByRunAndQuery(missing) error = %v, want NotFoundError", err)
	}

	// 同一任务同一问题只能写入一次
	if err := results.CreateWithScore(ctx, newResult(run.ID, "q1")); err == nil {
		t.Error("duplicate (run, query) result should be rejected")
	}
}
