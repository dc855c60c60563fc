package worker

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"sitebot/internal/logging"
	"sitebot/internal/model"
)

type usageStore interface {
	Create(ctx context.Context, rec *model.UsageRecord) error
	ExistsByID(ctx context.Context, id string) (bool, error)
}

// UsagePersistWorker writes usage records published by the API nodes.
// Records carry their id, so a redelivered message is not counted twice.
type UsagePersistWorker struct {
	consumer
	repo usageStore
}

func NewUsagePersistWorker(conn *amqp.Connection, repo usageStore, queueName string, logger *zap.Logger) *UsagePersistWorker {
	w := &UsagePersistWorker{repo: repo}
	w.consumer = consumer{
		conn:        conn,
		queueName:   queueName,
		concurrency: 1,
		onMessage:   w.handle,
		logger:      logger.Named("usage_worker"),
	}
	return w
}

func (w *UsagePersistWorker) handle(ctx context.Context, body []byte) outcome {
	var rec model.UsageRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		w.logger.Warn("worker decode usage record failed", zap.Error(err))
		return outcomeReject
	}

	if rec.ID != "" {
		exists, err := w.repo.ExistsByID(ctx, rec.ID)
		if err != nil {
			w.logger.Warn("worker check usage record failed", zap.String("error", logging.SanitizeError(err)))
			return outcomeReject
		}
		if exists {
			return outcomeAck
		}
	}

	if err := w.repo.Create(ctx, &rec); err != nil {
		w.logger.Warn("worker persist usage record failed", zap.String("error", logging.SanitizeError(err)))
		return outcomeReject
	}
	return outcomeAck
}
