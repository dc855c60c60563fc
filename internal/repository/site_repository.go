package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"sitebot/internal/model"
)

type SiteRepository struct {
	db *gorm.DB
}

func NewSiteRepository(db *gorm.DB) *SiteRepository {
	return &SiteRepository{db: db}
}

func (r *SiteRepository) Create(ctx context.Context, site *model.Site) error {
	if err := r.db.WithContext(ctx).Create(site).Error; err != nil {
		return fmt.Errorf("create site failed: %w", err)
	}
	return nil
}

func (r *SiteRepository) GetByID(ctx context.Context, id string) (*model.Site, error) {
	var site model.Site
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&site).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get site failed: %w", err)
	}
	return &site, nil
}

func (r *SiteRepository) GetByIDAndOwner(ctx context.Context, id string, ownerID uint) (*model.Site, error) {
	var site model.Site
	if err := r.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&site).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get site by owner failed: %w", err)
	}
	return &site, nil
}

func (r *SiteRepository) ListByOwner(ctx context.Context, ownerID uint) ([]model.Site, error) {
	var list []model.Site
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list sites failed: %w", err)
	}
	return list, nil
}

// UpdateSettings writes owner-editable columns only; status is never touched here.
func (r *SiteRepository) UpdateSettings(ctx context.Context, site *model.Site) error {
	err := r.db.WithContext(ctx).Model(&model.Site{}).
		Where("id = ?", site.ID).
		Updates(map[string]any{
			"name":             site.Name,
			"sitemap_url":      site.SitemapURL,
			"is_embed_enabled": site.IsEmbedEnabled,
		}).Error
	if err != nil {
		return fmt.Errorf("update site settings failed: %w", err)
	}
	return nil
}

// TryBeginTraining flips the site to training unless it already is. It is the
// per-site lease: false means another run holds it.
func (r *SiteRepository) TryBeginTraining(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Site{}).
		Where("id = ? AND status <> ?", id, model.SiteStatusTraining).
		Update("status", model.SiteStatusTraining)
	if res.Error != nil {
		return false, fmt.Errorf("begin site training failed: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *SiteRepository) SetStatus(ctx context.Context, id string, status model.SiteStatus) error {
	err := r.db.WithContext(ctx).Model(&model.Site{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("set site status failed: %w", err)
	}
	return nil
}

func (r *SiteRepository) MarkReady(ctx context.Context, id string, trainedAt time.Time) error {
	err := r.db.WithContext(ctx).Model(&model.Site{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          model.SiteStatusReady,
			"last_trained_at": trainedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("mark site ready failed: %w", err)
	}
	return nil
}

// DeleteUnlessTraining removes the site and its jobs in one transaction,
// guarded the same way as the training lease. false means the site is
// training (or already gone) and nothing was deleted. Chunks live in the
// vector store and are removed by the caller afterwards.
func (r *SiteRepository) DeleteUnlessTraining(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND status <> ?", id, model.SiteStatusTraining).Delete(&model.Site{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true
		return tx.Where("site_id = ?", id).Delete(&model.TrainingJob{}).Error
	})
	if err != nil {
		return false, fmt.Errorf("delete site failed: %w", err)
	}
	return deleted, nil
}
