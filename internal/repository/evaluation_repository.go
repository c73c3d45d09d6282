// Package repository 数据访问层
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/ashwinyue/rag-eval/internal/model"
	"github.com/ashwinyue/rag-eval/internal/service/types"
)

// ========== 评估任务 ==========

type runRepositoryImpl struct {
	db *gorm.DB
}

// NewRunRepository 创建评估任务仓库
func NewRunRepository(db *gorm.DB) RunRepository {
	return &runRepositoryImpl{db: db}
}

// Create 创建评估任务
func (r *runRepositoryImpl) Create(ctx context.Context, run *model.EvaluationRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

// GetByID 根据 ID 获取评估任务
func (r *runRepositoryImpl) GetByID(ctx context.Context, id string) (*model.EvaluationRun, error) {
	var run model.EvaluationRun
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewNotFoundError("evaluation run", id)
		}
		return nil, err
	}
	return &run, nil
}

// List 列出评估任务，按创建时间倒序
func (r *runRepositoryImpl) List(ctx context.Context, status model.RunStatus, limit, offset int) ([]*model.EvaluationRun, int64, error) {
	var runs []*model.EvaluationRun
	var total int64

	query := r.db.WithContext(ctx).Model(&model.EvaluationRun{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Limit(limit).Offset(offset).Order("created_at DESC").Find(&runs).Error
	return runs, total, err
}

// MarkRunning pending -> running
func (r *runRepositoryImpl) MarkRunning(ctx context.Context, id string, totalQueries int, startedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.EvaluationRun{}).
		Where("id = ? AND status = ?", id, model.RunStatusPending).
		Updates(map[string]interface{}{
			"status":        model.RunStatusRunning,
			"started_at":    startedAt,
			"total_queries": totalQueries,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Complete running -> completed
func (r *runRepositoryImpl) Complete(ctx context.Context, id string, summary *model.MetricsSummary, usage TokenUsage, completedAt time.Time) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode metrics summary: %w", err)
	}

	updates := usage.columns()
	updates["status"] = model.RunStatusCompleted
	updates["metrics_summary"] = datatypes.JSON(raw)
	updates["completed_at"] = completedAt

	res := r.db.WithContext(ctx).Model(&model.EvaluationRun{}).
		Where("id = ? AND status = ?", id, model.RunStatusRunning).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("run %s is not running", id)
	}
	return nil
}

// Fail pending/running -> error，已处于终态时不做修改
func (r *runRepositoryImpl) Fail(ctx context.Context, id string, message string, usage TokenUsage, completedAt time.Time) error {
	updates := usage.columns()
	updates["status"] = model.RunStatusError
	updates["error_message"] = message
	updates["completed_at"] = completedAt

	return r.db.WithContext(ctx).Model(&model.EvaluationRun{}).
		Where("id = ? AND status IN ?", id, []model.RunStatus{model.RunStatusPending, model.RunStatusRunning}).
		Updates(updates).Error
}

// FailStale 进程重启后收尾未结束的任务，只接受非终态
func (r *runRepositoryImpl) FailStale(ctx context.Context, statuses []model.RunStatus, message string, completedAt time.Time) (int64, error) {
	for _, st := range statuses {
		if st != model.RunStatusPending && st != model.RunStatusRunning {
			return 0, fmt.Errorf("cannot fail runs in terminal status %s", st)
		}
	}
	if len(statuses) == 0 {
		return 0, nil
	}

	res := r.db.WithContext(ctx).Model(&model.EvaluationRun{}).
		Where("status IN ?", statuses).
		Updates(map[string]interface{}{
			"status":        model.RunStatusError,
			"error_message": message,
			"completed_at":  completedAt,
		})
	return res.RowsAffected, res.Error
}

// Delete 删除评估任务及其结果
func (r *runRepositoryImpl) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var run model.EvaluationRun
		if err := tx.Where("id = ?", id).First(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return types.NewNotFoundError("evaluation run", id)
			}
			return err
		}
		if run.Status == model.RunStatusRunning {
			return types.NewConfigurationError("run %s is running and cannot be deleted", id)
		}

		resultIDs := tx.Model(&model.EvaluationResult{}).Select("id").Where("run_id = ?", id)
		if err := tx.Where("result_id IN (?)", resultIDs).Delete(&model.JudgeScore{}).Error; err != nil {
			return err
		}
		if err := tx.Where("run_id = ?", id).Delete(&model.EvaluationResult{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.EvaluationRun{}, "id = ?", id).Error
	})
}

func (u TokenUsage) columns() map[string]interface{} {
	return map[string]interface{}{
		"generation_input_tokens":  u.GenerationInput,
		"generation_output_tokens": u.GenerationOutput,
		"judge_input_tokens":       u.JudgeInput,
		"judge_output_tokens":      u.JudgeOutput,
	}
}

// ========== 单题结果 ==========

type resultRepositoryImpl struct {
	db *gorm.DB
}

// NewResultRepository 创建结果仓库
func NewResultRepository(db *gorm.DB) ResultRepository {
	return &resultRepositoryImpl{db: db}
}

// CreateWithScore 写入结果与评分
func (r *resultRepositoryImpl) CreateWithScore(ctx context.Context, result *model.EvaluationResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		score := result.JudgeScore
		if err := tx.Omit("JudgeScore").Create(result).Error; err != nil {
			return err
		}
		if score == nil {
			return nil
		}
		score.ResultID = result.ID
		return tx.Create(score).Error
	})
}

// CountByRun 已写入的结果数，即任务进度
func (r *resultRepositoryImpl) CountByRun(ctx context.Context, runID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.EvaluationResult{}).Where("run_id = ?", runID).Count(&count).Error
	return count, err
}

// ListByRun 分页列出任务结果，limit <= 0 时不限制
func (r *resultRepositoryImpl) ListByRun(ctx context.Context, runID string, limit, offset int) ([]*model.EvaluationResult, int64, error) {
	var results []*model.EvaluationResult
	var total int64

	query := r.db.WithContext(ctx).Model(&model.EvaluationResult{}).Where("run_id = ?", runID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Offset(offset).Preload("JudgeScore").Order("created_at ASC, id ASC").Find(&results).Error
	return results, total, err
}

// GetByRunAndQuery 获取单个问题的结果
func (r *resultRepositoryImpl) GetByRunAndQuery(ctx context.Context, runID, queryUUID string) (*model.EvaluationResult, error) {
	var result model.EvaluationResult
	err := r.db.WithContext(ctx).Preload("JudgeScore").
		Where("run_id = ? AND query_uuid = ?", runID, queryUUID).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewNotFoundError("evaluation result", queryUUID)
		}
		return nil, err
	}
	return &result, nil
}
