package app

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sitebot/internal/cache"
	"sitebot/internal/model"
)

func TestWidgetService_Script(t *testing.T) {
	ready := &model.Site{ID: uuid.NewString(), OwnerID: 1, Status: model.SiteStatusReady, IsEmbedEnabled: true}
	disabled := &model.Site{ID: uuid.NewString(), OwnerID: 1, Status: model.SiteStatusReady, IsEmbedEnabled: false}
	training := &model.Site{ID: uuid.NewString(), OwnerID: 1, Status: model.SiteStatusTraining, IsEmbedEnabled: true}
	svc := NewWidgetService(newMemSites(ready, disabled, training), cache.NopSiteCache{}, "https://bot.example.com", zap.NewNop())
	ctx := testContext(t)

	script := svc.Script(ctx, ready.ID)
	assert.Contains(t, script, ready.ID)
	assert.Contains(t, script, "https://bot.example.com/widget/")

	for _, id := range []string{disabled.ID, training.ID, uuid.NewString(), "garbage"} {
		got := svc.Script(ctx, id)
		assert.Equal(t, PlaceholderScript, got)
		assert.NotContains(t, got, id)
	}
}

func TestWidgetService_UsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	site := &model.Site{ID: uuid.NewString(), OwnerID: 1, Status: model.SiteStatusReady, IsEmbedEnabled: true}
	sites := newMemSites(site)
	siteCache := cache.NewRedisSiteCache(client, "test", time.Minute)
	svc := NewWidgetService(sites, siteCache, "https://bot.example.com", zap.NewNop())

	assert.NotEqual(t, PlaceholderScript, svc.Script(testContext(t), site.ID))
	assert.NotEqual(t, PlaceholderScript, svc.Script(testContext(t), site.ID))
	assert.Equal(t, 1, sites.gets)

	// disabling through the site service invalidates the entry
	siteSvc := NewSiteService(sites, &memJobs{}, nil, nil, siteCache, nil, zap.NewNop())
	off := false
	_, err := siteSvc.Update(testContext(t), UpdateSiteInput{OwnerID: 1, SiteID: site.ID, IsEmbedEnabled: &off})
	require.NoError(t, err)
	assert.Equal(t, PlaceholderScript, svc.Script(testContext(t), site.ID))
}
