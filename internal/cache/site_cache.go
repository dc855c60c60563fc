package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"sitebot/internal/model"
)

// SiteView is the part of a site the public widget paths need.
type SiteView struct {
	ID             string           `json:"id"`
	OwnerID        uint             `json:"owner_id"`
	Status         model.SiteStatus `json:"status"`
	IsEmbedEnabled bool             `json:"is_embed_enabled"`
}

func ViewOf(site *model.Site) *SiteView {
	return &SiteView{
		ID:             site.ID,
		OwnerID:        site.OwnerID,
		Status:         site.Status,
		IsEmbedEnabled: site.IsEmbedEnabled,
	}
}

// Answerable reports whether public visitors may query the site.
func (v *SiteView) Answerable() bool {
	return v.IsEmbedEnabled && v.Status == model.SiteStatusReady
}

// SiteCache stores SiteViews by site id.
type SiteCache interface {
	Get(ctx context.Context, siteID string) (*SiteView, bool, error)
	Set(ctx context.Context, view *SiteView) error
	Invalidate(ctx context.Context, siteID string) error
}

type RedisSiteCache struct {
	client *redisv9.Client
	prefix string
	ttl    time.Duration
}

func NewRedisSiteCache(client *redisv9.Client, prefix string, ttl time.Duration) *RedisSiteCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	if prefix == "" {
		prefix = "sitebot"
	}
	return &RedisSiteCache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (c *RedisSiteCache) Get(ctx context.Context, siteID string) (*SiteView, bool, error) {
	raw, err := c.client.Get(ctx, c.key(siteID)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get site failed: %w", err)
	}

	var view SiteView
	if err := json.Unmarshal([]byte(raw), &view); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached site failed: %w", err)
	}
	return &view, true, nil
}

func (c *RedisSiteCache) Set(ctx context.Context, view *SiteView) error {
	payload, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("marshal site cache failed: %w", err)
	}
	if err := c.client.Set(ctx, c.key(view.ID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set site failed: %w", err)
	}
	return nil
}

func (c *RedisSiteCache) Invalidate(ctx context.Context, siteID string) error {
	if err := c.client.Del(ctx, c.key(siteID)).Err(); err != nil {
		return fmt.Errorf("redis delete site failed: %w", err)
	}
	return nil
}

func (c *RedisSiteCache) key(siteID string) string {
	return fmt.Sprintf("%s:site:%s:view", c.prefix, siteID)
}

// NopSiteCache always misses.
type NopSiteCache struct{}

func (NopSiteCache) Get(context.Context, string) (*SiteView, bool, error) { return nil, false, nil }
func (NopSiteCache) Set(context.Context, *SiteView) error                 { return nil }
func (NopSiteCache) Invalidate(context.Context, string) error             { return nil }
