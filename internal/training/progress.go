package training

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"sitebot/internal/events"
	"sitebot/internal/model"
)

// progressTracker serializes processed_pages writes through one goroutine.
// Concurrent extractors only signal increments, so observers never see the
// counter go down.
type progressTracker struct {
	jobs     JobStore
	notifier events.Notifier
	logger   *zap.Logger
	ctx      context.Context
	jobID    string
	siteID   string
	total    int

	incs      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	processed int
}

func newProgressTracker(ctx context.Context, jobs JobStore, notifier events.Notifier, logger *zap.Logger, jobID, siteID string, total int) *progressTracker {
	p := &progressTracker{
		jobs:     jobs,
		notifier: notifier,
		logger:   logger,
		ctx:      context.WithoutCancel(ctx),
		jobID:    jobID,
		siteID:   siteID,
		total:    total,
		incs:     make(chan struct{}, 64),
		done:     make(chan struct{}),
	}
	go p.loop()
	return p
}

// Inc records one more processed page.
func (p *progressTracker) Inc() {
	p.incs <- struct{}{}
}

// Close waits for pending writes and returns the final count. Safe to call
// more than once.
func (p *progressTracker) Close() int {
	p.closeOnce.Do(func() { close(p.incs) })
	<-p.done
	return p.processed
}

func (p *progressTracker) loop() {
	defer close(p.done)
	for range p.incs {
		p.processed++
		// coalesce queued increments into one write
		for drained := false; !drained; {
			select {
			case _, ok := <-p.incs:
				if !ok {
					drained = true
				} else {
					p.processed++
				}
			default:
				drained = true
			}
		}
		p.flush()
	}
}

func (p *progressTracker) flush() {
	if err := p.jobs.UpdateProgress(p.ctx, p.jobID, p.processed); err != nil {
		p.logger.Warn("update progress failed", zap.String("job_id", p.jobID), zap.Error(err))
		return
	}
	p.notifier.Publish(p.ctx, events.Event{
		Type:           events.JobProgress,
		SiteID:         p.siteID,
		JobID:          p.jobID,
		Status:         string(model.JobStatusRunning),
		ProcessedPages: p.processed,
		TotalPages:     p.total,
	})
}
