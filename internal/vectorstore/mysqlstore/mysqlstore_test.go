package mysqlstore

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sitebot/internal/document"
	"sitebot/internal/model"
)

func newTestStore(t *testing.T, pageSize int) (*Store, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := New(db, 2, pageSize)
	require.NoError(t, s.Migrate(testContext(t)))
	return s, db
}

// seedInterleaved stores six chunks whose ids alternate between sites A and
// B, so every keyset page boundary falls next to the other tenant's rows.
// B's vectors match the query {0, 1} better than any of A's.
func seedInterleaved(t *testing.T, s *Store) {
	t.Helper()
	var chunks []document.Chunk
	var vectors [][]float32
	for i := 1; i <= 6; i++ {
		site, vec := "A", []float32{1, float32(i) / 10}
		if i%2 == 0 {
			site, vec = "B", []float32{0, 1}
		}
		chunks = append(chunks, document.Chunk{
			ID:       fmt.Sprintf("c%d", i),
			SiteID:   site,
			JobID:    "job-" + site,
			Index:    i,
			Content:  fmt.Sprintf("%s page %d", site, i),
			Metadata: document.Metadata{Source: fmt.Sprintf("https://%s.test/%d", site, i), Title: "Page"},
		})
		vectors = append(vectors, vec)
	}
	require.NoError(t, s.Store(testContext(t), chunks, vectors))
}

func TestStore_SearchPagesWithinTenant(t *testing.T) {
	s, _ := newTestStore(t, 2)
	seedInterleaved(t, s)

	hits, err := s.Search(testContext(t), []float32{0, 1}, "A", 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for _, h := range hits {
		assert.Equal(t, "A", h.SiteID)
		assert.Equal(t, "job-A", h.JobID)
	}
	// highest second component first
	assert.Equal(t, "c5", hits[0].ID)
	assert.Equal(t, "https://A.test/5", hits[0].Metadata.Source)
	assert.Equal(t, "A page 5", hits[0].Content)

	hits, err = s.Search(testContext(t), []float32{0, 1}, "B", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, "B", h.SiteID)
		assert.InDelta(t, 1.0, h.Score, 1e-6)
	}

	hits, err = s.Search(testContext(t), []float32{0, 1}, "C", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStore_SearchRejectsZeroQuery(t *testing.T) {
	s, _ := newTestStore(t, 2)
	seedInterleaved(t, s)

	hits, err := s.Search(testContext(t), []float32{0, 0}, "A", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestStore_SearchFailsOnCorruptEmbedding(t *testing.T) {
	s, db := newTestStore(t, 2)
	seedInterleaved(t, s)
	require.NoError(t, db.Model(&model.DocumentChunk{}).Where("id = ?", "c3").Update("embedding", "not-json").Error)

	_, err := s.Search(testContext(t), []float32{0, 1}, "A", 10)
	assert.ErrorContains(t, err, "c3")

	hits, err := s.Search(testContext(t), []float32{0, 1}, "B", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestStore_Deletes(t *testing.T) {
	s, _ := newTestStore(t, 2)
	seedInterleaved(t, s)
	ctx := testContext(t)

	require.NoError(t, s.Store(ctx,
		[]document.Chunk{{ID: "c7", SiteID: "A", JobID: "job-A2", Content: "new"}},
		[][]float32{{1, 0}},
	))
	require.NoError(t, s.DeleteBySiteExceptJob(ctx, "A", "job-A2"))
	hits, err := s.Search(ctx, []float32{1, 0}, "A", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c7", hits[0].ID)

	require.NoError(t, s.DeleteByJob(ctx, "job-A2"))
	hits, err = s.Search(ctx, []float32{1, 0}, "A", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, s.DeleteBySite(ctx, "B"))
	hits, err = s.Search(ctx, []float32{0, 1}, "B", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
