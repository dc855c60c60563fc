package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"sitebot/internal/model"
)

// TrainingJobRepository guards every write with the state the job must be in,
// so terminal jobs are never modified and progress never moves backwards.
type TrainingJobRepository struct {
	db *gorm.DB
}

func NewTrainingJobRepository(db *gorm.DB) *TrainingJobRepository {
	return &TrainingJobRepository{db: db}
}

func (r *TrainingJobRepository) Create(ctx context.Context, job *model.TrainingJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("create training job failed: %w", err)
	}
	return nil
}

func (r *TrainingJobRepository) GetByID(ctx context.Context, id string) (*model.TrainingJob, error) {
	var job model.TrainingJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get training job failed: %w", err)
	}
	return &job, nil
}

func (r *TrainingJobRepository) ListBySite(ctx context.Context, siteID string, limit int) ([]model.TrainingJob, error) {
	if limit <= 0 {
		limit = 20
	}
	var jobs []model.TrainingJob
	err := r.db.WithContext(ctx).
		Where("site_id = ?", siteID).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("list training jobs failed: %w", err)
	}
	return jobs, nil
}

func (r *TrainingJobRepository) MarkRunning(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.TrainingJob{}).
		Where("id = ? AND status = ?", id, model.JobStatusPending).
		Updates(map[string]any{
			"status":     model.JobStatusRunning,
			"started_at": startedAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("mark training job running failed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *TrainingJobRepository) SetPlan(ctx context.Context, id string, total int, meta model.JobMetadata) error {
	err := r.db.WithContext(ctx).Model(&model.TrainingJob{}).
		Where("id = ? AND status = ?", id, model.JobStatusRunning).
		Updates(map[string]any{
			"total_pages": total,
			"metadata":    datatypes.NewJSONType(meta),
		}).Error
	if err != nil {
		return fmt.Errorf("set training job plan failed: %w", err)
	}
	return nil
}

func (r *TrainingJobRepository) UpdateProgress(ctx context.Context, id string, processed int) error {
	err := r.db.WithContext(ctx).Model(&model.TrainingJob{}).
		Where("id = ? AND status = ? AND processed_pages < ?", id, model.JobStatusRunning, processed).
		Update("processed_pages", processed).Error
	if err != nil {
		return fmt.Errorf("update training job progress failed: %w", err)
	}
	return nil
}

func (r *TrainingJobRepository) Complete(ctx context.Context, id string, processed int, finishedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.TrainingJob{}).
		Where("id = ? AND status = ?", id, model.JobStatusRunning).
		Updates(map[string]any{
			"status":          model.JobStatusCompleted,
			"processed_pages": gorm.Expr("CASE WHEN processed_pages > ? THEN processed_pages ELSE ? END", processed, processed),
			"finished_at":     finishedAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("complete training job failed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *TrainingJobRepository) Fail(ctx context.Context, id, message string, finishedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.TrainingJob{}).
		Where("id = ? AND status IN ?", id, []model.JobStatus{model.JobStatusPending, model.JobStatusRunning}).
		Updates(map[string]any{
			"status":        model.JobStatusFailed,
			"error_message": message,
			"finished_at":   finishedAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("fail training job failed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ListStaleRunning returns running jobs started before the cutoff.
func (r *TrainingJobRepository) ListStaleRunning(ctx context.Context, before time.Time) ([]model.TrainingJob, error) {
	var jobs []model.TrainingJob
	err := r.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", model.JobStatusRunning, before).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("list stale training jobs failed: %w", err)
	}
	return jobs, nil
}
