package worker

import (
	"context"
	"encoding/json"
	"errors"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"sitebot/internal/logging"
	"sitebot/internal/training"
)

// TrainingWorker executes training tasks from the training queue. A task is
// acked once Run returned, which means the job reached a terminal state or
// will be picked up by stale-job recovery. Run does not see the worker's
// cancellation, so Close waits for in-flight jobs to finish instead of
// failing them.
type TrainingWorker struct {
	consumer
	runner training.Runner
}

func NewTrainingWorker(conn *amqp.Connection, runner training.Runner, queueName string, concurrency int, logger *zap.Logger) *TrainingWorker {
	w := &TrainingWorker{runner: runner}
	w.consumer = consumer{
		conn:        conn,
		queueName:   queueName,
		concurrency: concurrency,
		onMessage:   w.handle,
		logger:      logger.Named("training_worker"),
	}
	return w
}

func (w *TrainingWorker) handle(ctx context.Context, body []byte) outcome {
	var task training.Task
	if err := json.Unmarshal(body, &task); err != nil || task.JobID == "" {
		w.logger.Warn("worker decode training task failed", zap.ByteString("body", body))
		return outcomeReject
	}

	err := w.runner.Run(context.WithoutCancel(ctx), task)
	switch {
	case err == nil:
	case errors.Is(err, training.ErrJobNotFound):
		w.logger.Warn("training task for unknown job", zap.String("job_id", task.JobID))
	default:
		w.logger.Warn("training task finished with error",
			zap.String("job_id", task.JobID),
			zap.String("error", logging.SanitizeError(err)))
	}
	return outcomeAck
}
