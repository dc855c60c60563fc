package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"sitebot/internal/model"
)

type UsageRepository struct {
	db *gorm.DB
}

// UsageSummary is the per-action aggregate shown on the dashboard.
type UsageSummary struct {
	Action       model.UsageAction `json:"action"`
	Requests     int64             `json:"requests"`
	InputTokens  int64             `json:"input_tokens"`
	OutputTokens int64             `json:"output_tokens"`
	Tokens       int64             `json:"tokens"`
	CostUSD      float64           `json:"cost_usd"`
}

func NewUsageRepository(db *gorm.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) Create(ctx context.Context, rec *model.UsageRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create usage record failed: %w", err)
	}
	return nil
}

// ExistsByID lets queue consumers skip redelivered records.
func (r *UsageRepository) ExistsByID(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.UsageRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check usage record failed: %w", err)
	}
	return count > 0, nil
}

func (r *UsageRepository) CountSince(ctx context.Context, userID uint, action model.UsageAction, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.UsageRecord{}).
		Where("user_id = ? AND action = ? AND created_at >= ?", userID, action, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count usage records failed: %w", err)
	}
	return count, nil
}

func (r *UsageRepository) Summarize(ctx context.Context, userID uint, from, to time.Time) ([]UsageSummary, error) {
	var rows []UsageSummary
	err := r.db.WithContext(ctx).Model(&model.UsageRecord{}).
		Select("action, COUNT(*) AS requests, SUM(input_tokens) AS input_tokens, SUM(output_tokens) AS output_tokens, SUM(tokens) AS tokens, SUM(cost_usd) AS cost_usd").
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, from, to).
		Group("action").
		Order("action").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("summarize usage failed: %w", err)
	}
	return rows, nil
}
