package app

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"sitebot/internal/cache"
	"sitebot/internal/events"
	"sitebot/internal/model"
	"sitebot/internal/training"
	"sitebot/internal/vectorstore"
)

var (
	ErrSiteNotFound       = errors.New("site not found")
	ErrJobNotFound        = errors.New("training job not found")
	ErrInvalidURL         = errors.New("url must be an absolute http(s) url")
	ErrSiteBusy           = errors.New("site is training")
	ErrTrainingInProgress = training.ErrTrainingInProgress
)

const defaultJobListLimit = 20

type TrainingStarter interface {
	Start(ctx context.Context, siteID string) (*model.TrainingJob, error)
}

type SiteService struct {
	sites      SiteStore
	jobs       JobStore
	vectors    vectorstore.Store
	trainer    TrainingStarter
	siteCache  cache.SiteCache
	subscriber events.Subscriber
	logger     *zap.Logger
}

type RegisterSiteInput struct {
	OwnerID    uint
	Name       string
	BaseURL    string
	SitemapURL string
}

// UpdateSiteInput leaves nil fields unchanged.
type UpdateSiteInput struct {
	OwnerID        uint
	SiteID         string
	Name           *string
	SitemapURL     *string
	IsEmbedEnabled *bool
}

func NewSiteService(
	sites SiteStore,
	jobs JobStore,
	vectors vectorstore.Store,
	trainer TrainingStarter,
	siteCache cache.SiteCache,
	subscriber events.Subscriber,
	logger *zap.Logger,
) *SiteService {
	return &SiteService{
		sites:      sites,
		jobs:       jobs,
		vectors:    vectors,
		trainer:    trainer,
		siteCache:  siteCache,
		subscriber: subscriber,
		logger:     logger.Named("sites"),
	}
}

func (s *SiteService) Register(ctx context.Context, input RegisterSiteInput) (*model.Site, error) {
	if input.OwnerID == 0 {
		return nil, ErrInvalidInput
	}
	base, err := normalizeURL(input.BaseURL)
	if err != nil {
		return nil, err
	}
	sitemap := ""
	if strings.TrimSpace(input.SitemapURL) != "" {
		if sitemap, err = normalizeURL(input.SitemapURL); err != nil {
			return nil, err
		}
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		u, _ := url.Parse(base)
		name = u.Host
	}

	site := &model.Site{
		OwnerID:        input.OwnerID,
		Name:           name,
		BaseURL:        base,
		SitemapURL:     sitemap,
		Status:         model.SiteStatusIdle,
		IsEmbedEnabled: true,
	}
	if err := s.sites.Create(ctx, site); err != nil {
		return nil, err
	}
	s.logger.Info("site registered", zap.String("site_id", site.ID), zap.Uint("owner_id", site.OwnerID))
	return site, nil
}

func (s *SiteService) List(ctx context.Context, ownerID uint) ([]model.Site, error) {
	if ownerID == 0 {
		return nil, ErrInvalidInput
	}
	return s.sites.ListByOwner(ctx, ownerID)
}

// Get returns the site only to its owner; other users see not found.
func (s *SiteService) Get(ctx context.Context, ownerID uint, siteID string) (*model.Site, error) {
	if ownerID == 0 || siteID == "" {
		return nil, ErrInvalidInput
	}
	site, err := s.sites.GetByIDAndOwner(ctx, siteID, ownerID)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, ErrSiteNotFound
	}
	return site, nil
}

func (s *SiteService) Update(ctx context.Context, input UpdateSiteInput) (*model.Site, error) {
	site, err := s.Get(ctx, input.OwnerID, input.SiteID)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, ErrInvalidInput
		}
		site.Name = name
	}
	if input.SitemapURL != nil {
		site.SitemapURL = ""
		if strings.TrimSpace(*input.SitemapURL) != "" {
			if site.SitemapURL, err = normalizeURL(*input.SitemapURL); err != nil {
				return nil, err
			}
		}
	}
	if input.IsEmbedEnabled != nil {
		site.IsEmbedEnabled = *input.IsEmbedEnabled
	}

	if err := s.sites.UpdateSettings(ctx, site); err != nil {
		return nil, err
	}
	s.invalidate(ctx, site.ID)
	return site, nil
}

// Delete removes the site, its jobs and its vectors. A site that is training
// cannot be deleted; the row delete is conditional so a run starting after
// the status check still wins.
func (s *SiteService) Delete(ctx context.Context, ownerID uint, siteID string) error {
	site, err := s.Get(ctx, ownerID, siteID)
	if err != nil {
		return err
	}
	if site.Status == model.SiteStatusTraining {
		return ErrSiteBusy
	}

	deleted, err := s.sites.DeleteUnlessTraining(ctx, site.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrSiteBusy
	}
	s.invalidate(ctx, site.ID)
	if err := s.vectors.DeleteBySite(ctx, site.ID); err != nil {
		return err
	}
	s.logger.Info("site deleted", zap.String("site_id", site.ID))
	return nil
}

// StartTraining optionally replaces the sitemap URL, then starts a job.
func (s *SiteService) StartTraining(ctx context.Context, ownerID uint, siteID, sitemapURL string) (*model.TrainingJob, error) {
	site, err := s.Get(ctx, ownerID, siteID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(sitemapURL) != "" {
		normalized, err := normalizeURL(sitemapURL)
		if err != nil {
			return nil, err
		}
		if normalized != site.SitemapURL {
			site.SitemapURL = normalized
			if err := s.sites.UpdateSettings(ctx, site); err != nil {
				return nil, err
			}
		}
	}

	job, err := s.trainer.Start(ctx, site.ID)
	if errors.Is(err, training.ErrSiteNotFound) {
		return nil, ErrSiteNotFound
	}
	return job, err
}

func (s *SiteService) GetJob(ctx context.Context, ownerID uint, jobID string) (*model.TrainingJob, error) {
	if ownerID == 0 || jobID == "" {
		return nil, ErrInvalidInput
	}
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrJobNotFound
	}
	if _, err := s.Get(ctx, ownerID, job.SiteID); err != nil {
		if errors.Is(err, ErrSiteNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (s *SiteService) ListJobs(ctx context.Context, ownerID uint, siteID string, limit int) ([]model.TrainingJob, error) {
	if _, err := s.Get(ctx, ownerID, siteID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = defaultJobListLimit
	}
	return s.jobs.ListBySite(ctx, siteID, limit)
}

// Subscribe streams the site's job and status events to its owner.
func (s *SiteService) Subscribe(ctx context.Context, ownerID uint, siteID string) (<-chan events.Event, error) {
	if _, err := s.Get(ctx, ownerID, siteID); err != nil {
		return nil, err
	}
	return s.subscriber.Subscribe(ctx, siteID)
}

func (s *SiteService) invalidate(ctx context.Context, siteID string) {
	if err := s.siteCache.Invalidate(ctx, siteID); err != nil {
		s.logger.Warn("invalidate site cache failed", zap.String("site_id", siteID), zap.Error(err))
	}
}

func normalizeURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidURL
	}
	u.Fragment = ""
	return u.String(), nil
}
