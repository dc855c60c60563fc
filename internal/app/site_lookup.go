package app

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sitebot/internal/cache"
)

// siteLookup resolves the public view of a site through the cache. Unknown
// or malformed ids yield nil without an error.
type siteLookup struct {
	sites  SiteStore
	cache  cache.SiteCache
	logger *zap.Logger
}

func (l *siteLookup) View(ctx context.Context, siteID string) (*cache.SiteView, error) {
	if _, err := uuid.Parse(siteID); err != nil {
		return nil, nil
	}

	view, ok, err := l.cache.Get(ctx, siteID)
	if err != nil {
		l.logger.Warn("read site cache failed", zap.String("site_id", siteID), zap.Error(err))
	}
	if ok {
		return view, nil
	}

	site, err := l.sites.GetByID(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, nil
	}
	view = cache.ViewOf(site)
	if err := l.cache.Set(ctx, view); err != nil {
		l.logger.Warn("write site cache failed", zap.String("site_id", siteID), zap.Error(err))
	}
	return view, nil
}
