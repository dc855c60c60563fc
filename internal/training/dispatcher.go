package training

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"sitebot/internal/logging"
)

// Task is the message that asks a worker to run one training job.
type Task struct {
	JobID  string `json:"job_id"`
	SiteID string `json:"site_id"`
}

// Dispatcher hands a task to whatever executes training jobs.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) error
}

// Runner executes a task to a terminal job state.
type Runner interface {
	Run(ctx context.Context, task Task) error
}

type jsonPublisher interface {
	PublishJSON(ctx context.Context, messageID string, v any) error
}

// QueueDispatcher publishes tasks to the training queue.
type QueueDispatcher struct {
	publisher jsonPublisher
}

func NewQueueDispatcher(publisher jsonPublisher) *QueueDispatcher {
	return &QueueDispatcher{publisher: publisher}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, task Task) error {
	return d.publisher.PublishJSON(ctx, task.JobID, task)
}

// InlineDispatcher runs tasks in a background goroutine of this process. The
// run is detached from the dispatching request's context.
type InlineDispatcher struct {
	runner Runner
	logger *zap.Logger
	wg     sync.WaitGroup
}

func NewInlineDispatcher(runner Runner, logger *zap.Logger) *InlineDispatcher {
	return &InlineDispatcher{
		runner: runner,
		logger: logger.Named("inline_dispatcher"),
	}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, task Task) error {
	runCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.runner.Run(runCtx, task); err != nil {
			d.logger.Warn("training task ended with error",
				zap.String("job_id", task.JobID),
				zap.String("error", logging.SanitizeError(err)))
		}
	}()
	return nil
}

// Wait blocks until every dispatched task has returned.
func (d *InlineDispatcher) Wait() {
	d.wg.Wait()
}
