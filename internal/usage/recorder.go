package usage

import (
	"context"

	"sitebot/internal/model"
)

// Recorder persists one usage record.
type Recorder interface {
	Record(ctx context.Context, rec *model.UsageRecord) error
}

type recordCreator interface {
	Create(ctx context.Context, rec *model.UsageRecord) error
}

// RepositoryRecorder writes records synchronously.
type RepositoryRecorder struct {
	repo recordCreator
}

func NewRepositoryRecorder(repo recordCreator) *RepositoryRecorder {
	return &RepositoryRecorder{repo: repo}
}

func (r *RepositoryRecorder) Record(ctx context.Context, rec *model.UsageRecord) error {
	return r.repo.Create(ctx, rec)
}

type jsonPublisher interface {
	PublishJSON(ctx context.Context, messageID string, v any) error
}

// QueueRecorder hands records to the usage queue; a worker persists them.
type QueueRecorder struct {
	publisher jsonPublisher
}

func NewQueueRecorder(publisher jsonPublisher) *QueueRecorder {
	return &QueueRecorder{publisher: publisher}
}

func (r *QueueRecorder) Record(ctx context.Context, rec *model.UsageRecord) error {
	return r.publisher.PublishJSON(ctx, rec.ID, rec)
}
