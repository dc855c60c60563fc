package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sitebot/internal/model"
	"sitebot/internal/training"
)

type fakeRunner struct {
	tasks   []training.Task
	ctxErrs []error
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, task training.Task) error {
	f.tasks = append(f.tasks, task)
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	return f.err
}

func TestTrainingWorker_Handle(t *testing.T) {
	runner := &fakeRunner{}
	w := NewTrainingWorker(nil, runner, "training", 2, zap.NewNop())

	body, err := json.Marshal(training.Task{JobID: "j1", SiteID: "s1"})
	require.NoError(t, err)

	assert.Equal(t, outcomeAck, w.handle(testContext(t), body))
	require.Len(t, runner.tasks, 1)
	assert.Equal(t, "s1", runner.tasks[0].SiteID)

	runner.err = errors.New("embedding failed")
	assert.Equal(t, outcomeAck, w.handle(testContext(t), body))

	assert.Equal(t, outcomeReject, w.handle(testContext(t), []byte("{bad")))
	assert.Equal(t, outcomeReject, w.handle(testContext(t), []byte(`{"site_id":"s1"}`)))
	assert.Len(t, runner.tasks, 2)
}

func TestTrainingWorker_ShutdownDoesNotCancelRun(t *testing.T) {
	runner := &fakeRunner{}
	w := NewTrainingWorker(nil, runner, "training", 1, zap.NewNop())

	body, err := json.Marshal(training.Task{JobID: "j1", SiteID: "s1"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(testContext(t))
	cancel()
	assert.Equal(t, outcomeAck, w.handle(ctx, body))
	require.Len(t, runner.ctxErrs, 1)
	assert.NoError(t, runner.ctxErrs[0])
}

type fakeUsageStore struct {
	records map[string]*model.UsageRecord
	err     error
}

func (f *fakeUsageStore) Create(_ context.Context, rec *model.UsageRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records[rec.ID] = rec
	return nil
}

func (f *fakeUsageStore) ExistsByID(_ context.Context, id string) (bool, error) {
	_, ok := f.records[id]
	return ok, nil
}

func TestUsagePersistWorker_Handle(t *testing.T) {
	store := &fakeUsageStore{records: map[string]*model.UsageRecord{}}
	w := NewUsagePersistWorker(nil, store, "usage", zap.NewNop())

	body, err := json.Marshal(&model.UsageRecord{ID: "u1", UserID: 3, Action: model.UsageActionChat, Tokens: 12})
	require.NoError(t, err)

	assert.Equal(t, outcomeAck, w.handle(testContext(t), body))
	require.Contains(t, store.records, "u1")
	assert.Equal(t, 12, store.records["u1"].Tokens)

	// redelivery is a no-op
	store.err = errors.New("should not be called")
	assert.Equal(t, outcomeAck, w.handle(testContext(t), body))

	other, err := json.Marshal(&model.UsageRecord{ID: "u2", UserID: 3})
	require.NoError(t, err)
	assert.Equal(t, outcomeReject, w.handle(testContext(t), other))

	assert.Equal(t, outcomeReject, w.handle(testContext(t), []byte("nope")))
}
