package repository

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sitebot/internal/model"
)

// openTestDB returns an in-memory database with the tenant tables migrated.
// One connection keeps every query on the same memory database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&model.Site{}, &model.TrainingJob{}))
	return db
}

func createSite(t *testing.T, repo *SiteRepository) *model.Site {
	t.Helper()
	site := &model.Site{OwnerID: 1, Name: "Docs", BaseURL: "https://docs.test", IsEmbedEnabled: true}
	require.NoError(t, repo.Create(testContext(t), site))
	return site
}

func TestSiteRepository_TrainingLease(t *testing.T) {
	repo := NewSiteRepository(openTestDB(t))
	site := createSite(t, repo)

	ok, err := repo.TryBeginTraining(testContext(t), site.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TryBeginTraining(testContext(t), site.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.MarkReady(testContext(t), site.ID, time.Now().UTC()))
	got, err := repo.GetByID(testContext(t), site.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SiteStatusReady, got.Status)
	assert.NotNil(t, got.LastTrainedAt)

	ok, err = repo.TryBeginTraining(testContext(t), site.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TryBeginTraining(testContext(t), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSiteRepository_DeleteUnlessTraining(t *testing.T) {
	db := openTestDB(t)
	sites := NewSiteRepository(db)
	jobs := NewTrainingJobRepository(db)
	site := createSite(t, sites)
	require.NoError(t, jobs.Create(testContext(t), &model.TrainingJob{SiteID: site.ID}))

	ok, err := sites.TryBeginTraining(testContext(t), site.ID)
	require.NoError(t, err)
	require.True(t, ok)

	deleted, err := sites.DeleteUnlessTraining(testContext(t), site.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
	got, err := sites.GetByID(testContext(t), site.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	list, err := jobs.ListBySite(testContext(t), site.ID, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, sites.SetStatus(testContext(t), site.ID, model.SiteStatusError))
	deleted, err = sites.DeleteUnlessTraining(testContext(t), site.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	got, err = sites.GetByID(testContext(t), site.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
	list, err = jobs.ListBySite(testContext(t), site.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTrainingJobRepository_ProgressNeverMovesBack(t *testing.T) {
	db := openTestDB(t)
	jobs := NewTrainingJobRepository(db)
	job := &model.TrainingJob{SiteID: "site-1"}
	require.NoError(t, jobs.Create(testContext(t), job))

	// progress is ignored until the job runs
	require.NoError(t, jobs.UpdateProgress(testContext(t), job.ID, 1))
	got, err := jobs.GetByID(testContext(t), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusPending, got.Status)
	assert.Zero(t, got.ProcessedPages)

	ok, err := jobs.MarkRunning(testContext(t), job.ID, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = jobs.MarkRunning(testContext(t), job.ID, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, jobs.UpdateProgress(testContext(t), job.ID, 5))
	require.NoError(t, jobs.UpdateProgress(testContext(t), job.ID, 3))
	got, err = jobs.GetByID(testContext(t), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.ProcessedPages)

	// completing with a lower count keeps the higher one
	ok, err = jobs.Complete(testContext(t), job.ID, 2, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = jobs.GetByID(testContext(t), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, got.Status)
	assert.Equal(t, 5, got.ProcessedPages)
	assert.NotNil(t, got.FinishedAt)
}

func TestTrainingJobRepository_CompleteRaisesProgress(t *testing.T) {
	jobs := NewTrainingJobRepository(openTestDB(t))
	job := &model.TrainingJob{SiteID: "site-1"}
	require.NoError(t, jobs.Create(testContext(t), job))
	_, err := jobs.MarkRunning(testContext(t), job.ID, time.Now().UTC())
	require.NoError(t, err)
	require.NoError(t, jobs.UpdateProgress(testContext(t), job.ID, 2))

	ok, err := jobs.Complete(testContext(t), job.ID, 9, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, ok)
	got, err := jobs.GetByID(testContext(t), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, got.ProcessedPages)
}

func TestTrainingJobRepository_TerminalStatesAreFinal(t *testing.T) {
	jobs := NewTrainingJobRepository(openTestDB(t))
	job := &model.TrainingJob{SiteID: "site-1"}
	require.NoError(t, jobs.Create(testContext(t), job))
	_, err := jobs.MarkRunning(testContext(t), job.ID, time.Now().UTC())
	require.NoError(t, err)

	ok, err := jobs.Fail(testContext(t), job.ID, "fetch failed", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = jobs.Complete(testContext(t), job.ID, 4, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = jobs.Fail(testContext(t), job.ID, "again", time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, jobs.UpdateProgress(testContext(t), job.ID, 4))
	require.NoError(t, jobs.SetPlan(testContext(t), job.ID, 10, model.JobMetadata{DetectionMethod: model.DetectionSitemap}))

	got, err := jobs.GetByID(testContext(t), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, got.Status)
	assert.Equal(t, "fetch failed", got.ErrorMessage)
	assert.Zero(t, got.ProcessedPages)
	assert.Zero(t, got.TotalPages)
}

func TestTrainingJobRepository_ListStaleRunning(t *testing.T) {
	jobs := NewTrainingJobRepository(openTestDB(t))
	now := time.Now().UTC()

	stale := &model.TrainingJob{SiteID: "site-1"}
	fresh := &model.TrainingJob{SiteID: "site-2"}
	require.NoError(t, jobs.Create(testContext(t), stale))
	require.NoError(t, jobs.Create(testContext(t), fresh))
	_, err := jobs.MarkRunning(testContext(t), stale.ID, now.Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = jobs.MarkRunning(testContext(t), fresh.ID, now)
	require.NoError(t, err)

	list, err := jobs.ListStaleRunning(testContext(t), now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, stale.ID, list[0].ID)
}
