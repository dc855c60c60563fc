package training

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sitebot/internal/events"
	"sitebot/internal/model"
)

func TestProgressTracker_SerializedAndMonotonic(t *testing.T) {
	jobs := newMemJobs()
	job := &model.TrainingJob{ID: "j1", SiteID: "s1", Status: model.JobStatusRunning}
	require.NoError(t, jobs.Create(testContext(t), job))

	bus := events.NewLocal()
	tracker := newProgressTracker(testContext(t), jobs, bus, zap.NewNop(), "j1", "s1", 50)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Inc()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, tracker.Close())
	assert.Equal(t, 50, tracker.Close())
	assert.Equal(t, 50, jobs.job("j1").ProcessedPages)

	require.NotEmpty(t, jobs.progress)
	for i := 1; i < len(jobs.progress); i++ {
		assert.Greater(t, jobs.progress[i], jobs.progress[i-1])
	}
}
