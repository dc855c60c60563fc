package cache

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitebot/internal/model"
)

func newTestCache(t *testing.T) (*RedisSiteCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSiteCache(client, "test", 30*time.Second), mr
}

func TestRedisSiteCache_RoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := testContext(t)

	_, ok, err := c.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)

	site := &model.Site{ID: "s1", OwnerID: 9, Status: model.SiteStatusReady, IsEmbedEnabled: true}
	require.NoError(t, c.Set(ctx, ViewOf(site)))

	view, ok, err := c.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint(9), view.OwnerID)
	assert.True(t, view.Answerable())

	require.NoError(t, c.Invalidate(ctx, "s1"))
	_, ok, err = c.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSiteCache_Expires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := testContext(t)

	require.NoError(t, c.Set(ctx, &SiteView{ID: "s1", Status: model.SiteStatusTraining}))
	mr.FastForward(31 * time.Second)

	_, ok, err := c.Get(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisSiteCache_CorruptEntry(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("test:site:s1:view", "{not json"))

	_, _, err := c.Get(testContext(t), "s1")
	assert.Error(t, err)
}
