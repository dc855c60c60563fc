// Package training runs ingestion jobs: resolve a site's URLs, extract and
// chunk the pages, embed the chunks and replace the site's vectors.
package training

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sitebot/internal/ai"
	"sitebot/internal/cache"
	"sitebot/internal/document"
	"sitebot/internal/events"
	"sitebot/internal/logging"
	"sitebot/internal/model"
	"sitebot/internal/retry"
	"sitebot/internal/usage"
	"sitebot/internal/vectorstore"
)

var (
	ErrSiteNotFound       = errors.New("site not found")
	ErrJobNotFound        = errors.New("training job not found")
	ErrTrainingInProgress = errors.New("training already in progress")
	ErrNoContent          = errors.New("no content could be extracted")
)

const (
	defaultConcurrency = 4
	defaultBatchSize   = 64
	maxErrorMessageLen = 1000
	interruptedMessage = "interrupted: the worker stopped before the job finished"
)

type SiteStore interface {
	GetByID(ctx context.Context, id string) (*model.Site, error)
	TryBeginTraining(ctx context.Context, id string) (bool, error)
	SetStatus(ctx context.Context, id string, status model.SiteStatus) error
	MarkReady(ctx context.Context, id string, trainedAt time.Time) error
}

type JobStore interface {
	Create(ctx context.Context, job *model.TrainingJob) error
	GetByID(ctx context.Context, id string) (*model.TrainingJob, error)
	MarkRunning(ctx context.Context, id string, startedAt time.Time) (bool, error)
	SetPlan(ctx context.Context, id string, total int, meta model.JobMetadata) error
	UpdateProgress(ctx context.Context, id string, processed int) error
	Complete(ctx context.Context, id string, processed int, finishedAt time.Time) (bool, error)
	Fail(ctx context.Context, id, message string, finishedAt time.Time) (bool, error)
	ListStaleRunning(ctx context.Context, before time.Time) ([]model.TrainingJob, error)
}

type URLResolver interface {
	Resolve(ctx context.Context, sitemapURL, baseURL string) ([]string, error)
}

type PageExtractor interface {
	Extract(ctx context.Context, pageURL string) (*document.Document, error)
}

type Splitter interface {
	SplitDocuments(docs []document.Document) []document.Chunk
}

type Deps struct {
	Sites     SiteStore
	Jobs      JobStore
	Resolver  URLResolver
	Extractor PageExtractor
	Splitter  Splitter
	Embedder  ai.Embedder
	Vectors   vectorstore.Store
	Meter     *usage.Meter
	Notifier  events.Notifier
	Cache     cache.SiteCache
	Logger    *zap.Logger
}

type Options struct {
	Concurrency int
	BatchSize   int
	StaleAfter  time.Duration
	Retry       *retry.Config
}

type Orchestrator struct {
	Deps
	opts       Options
	dispatcher Dispatcher
	now        func() time.Time
}

func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Retry == nil {
		opts.Retry = retry.DefaultConfig()
	}
	if deps.Notifier == nil {
		deps.Notifier = events.Nop{}
	}
	if deps.Cache == nil {
		deps.Cache = cache.NopSiteCache{}
	}
	deps.Logger = deps.Logger.Named("training")
	return &Orchestrator{
		Deps: deps,
		opts: opts,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// SetDispatcher must be called before Start.
func (o *Orchestrator) SetDispatcher(d Dispatcher) {
	o.dispatcher = d
}

// Start takes the site's training lease, creates a running job and hands it
// to the dispatcher. It returns as soon as the task is queued.
func (o *Orchestrator) Start(ctx context.Context, siteID string) (*model.TrainingJob, error) {
	site, err := o.Sites.GetByID(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if site == nil {
		return nil, ErrSiteNotFound
	}

	ok, err := o.Sites.TryBeginTraining(ctx, siteID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTrainingInProgress
	}
	o.siteChanged(ctx, siteID, model.SiteStatusTraining)

	job := &model.TrainingJob{SiteID: siteID}
	if err := o.Jobs.Create(ctx, job); err != nil {
		o.releaseLease(ctx, site)
		return nil, err
	}

	startedAt := o.now()
	if _, err := o.Jobs.MarkRunning(ctx, job.ID, startedAt); err != nil {
		o.failJob(ctx, job.ID, siteID, err)
		return nil, err
	}
	job.Status = model.JobStatusRunning
	job.StartedAt = &startedAt

	if err := o.dispatcher.Dispatch(ctx, Task{JobID: job.ID, SiteID: siteID}); err != nil {
		o.failJob(ctx, job.ID, siteID, fmt.Errorf("dispatch training task failed: %w", err))
		return nil, err
	}

	o.Logger.Info("training job started", zap.String("site_id", siteID), zap.String("job_id", job.ID))
	return job, nil
}

// Run executes one job to a terminal state. Tasks for jobs that are already
// terminal are ignored, so redelivered messages are harmless. Every failure,
// including a panic, marks the job failed and the site errored.
func (o *Orchestrator) Run(ctx context.Context, task Task) (err error) {
	job, err := o.Jobs.GetByID(ctx, task.JobID)
	if err != nil {
		if task.SiteID != "" {
			o.failJob(ctx, task.JobID, task.SiteID, err)
		}
		return err
	}
	if job == nil {
		return ErrJobNotFound
	}
	if job.Status.Terminal() {
		o.Logger.Info("skip finished training job", zap.String("job_id", job.ID), zap.String("status", string(job.Status)))
		return nil
	}
	if job.Status == model.JobStatusPending {
		if _, err := o.Jobs.MarkRunning(ctx, job.ID, o.now()); err != nil {
			o.failJob(ctx, job.ID, job.SiteID, err)
			return err
		}
	}

	site, err := o.Sites.GetByID(ctx, job.SiteID)
	if err != nil {
		o.failJob(ctx, job.ID, job.SiteID, err)
		return err
	}
	if site == nil {
		o.failJob(ctx, job.ID, job.SiteID, ErrSiteNotFound)
		return ErrSiteNotFound
	}

	defer func() {
		if r := recover(); r != nil {
			o.Logger.Error("training panicked",
				zap.String("job_id", job.ID),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("training panicked: %v", r)
			o.failJob(ctx, job.ID, site.ID, err)
		}
	}()

	if err := o.run(ctx, job, site); err != nil {
		o.failJob(ctx, job.ID, site.ID, err)
		return err
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, job *model.TrainingJob, site *model.Site) error {
	logger := o.Logger.With(zap.String("site_id", site.ID), zap.String("job_id", job.ID))

	// a redelivered task may find chunks of its own earlier attempt
	if err := o.Vectors.DeleteByJob(ctx, job.ID); err != nil {
		return fmt.Errorf("clear previous attempt failed: %w", err)
	}

	urls, method := o.discover(ctx, site, logger)
	meta := model.JobMetadata{DetectionMethod: method, URLCount: len(urls), URLs: urls}
	if err := o.Jobs.SetPlan(ctx, job.ID, len(urls), meta); err != nil {
		return err
	}
	o.Notifier.Publish(ctx, events.Event{
		Type:       events.JobStarted,
		SiteID:     site.ID,
		JobID:      job.ID,
		Status:     string(model.JobStatusRunning),
		TotalPages: len(urls),
	})

	tracker := newProgressTracker(ctx, o.Jobs, o.Notifier, logger, job.ID, site.ID, len(urls))
	defer tracker.Close()

	docs, err := o.extractAll(ctx, urls, tracker, logger)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("%w from %d url(s)", ErrNoContent, len(urls))
	}

	chunks := o.Splitter.SplitDocuments(docs)
	for i := range chunks {
		chunks[i].ID = uuid.NewString()
		chunks[i].SiteID = site.ID
		chunks[i].JobID = job.ID
	}

	tokens, err := o.embedAndStore(ctx, chunks, logger)
	if tokens > 0 {
		o.Meter.RecordTraining(ctx, site.OwnerID, site.ID, job.ID, tokens, len(chunks))
	}
	if err != nil {
		return err
	}

	if err := o.Vectors.DeleteBySiteExceptJob(ctx, site.ID, job.ID); err != nil {
		return fmt.Errorf("remove superseded chunks failed: %w", err)
	}

	pages := tracker.Close()
	finishedAt := o.now()
	if _, err := o.Jobs.Complete(ctx, job.ID, len(chunks), finishedAt); err != nil {
		return err
	}

	// the job is completed and its chunks are live; nothing below may fail it
	doneCtx := context.WithoutCancel(ctx)
	err = retry.Do(doneCtx, o.opts.Retry, func() error {
		return o.Sites.MarkReady(doneCtx, site.ID, finishedAt)
	})
	if err != nil {
		logger.Error("mark site ready failed", zap.String("error", logging.SanitizeError(err)))
	}

	o.Notifier.Publish(ctx, events.Event{
		Type:           events.JobCompleted,
		SiteID:         site.ID,
		JobID:          job.ID,
		Status:         string(model.JobStatusCompleted),
		ProcessedPages: len(chunks),
		TotalPages:     len(urls),
	})
	o.siteChanged(ctx, site.ID, model.SiteStatusReady)

	logger.Info("training job completed",
		zap.Int("urls", len(urls)),
		zap.Int("pages", pages),
		zap.Int("chunks", len(chunks)),
		zap.Int("embedding_tokens", tokens))
	return nil
}

// discover prefers the sitemap. A missing, unreadable or empty sitemap falls
// back to the base URL alone.
func (o *Orchestrator) discover(ctx context.Context, site *model.Site, logger *zap.Logger) ([]string, string) {
	if site.SitemapURL != "" {
		urls, err := o.Resolver.Resolve(ctx, site.SitemapURL, site.BaseURL)
		switch {
		case err != nil:
			logger.Warn("sitemap unusable, falling back to base url",
				zap.String("sitemap_url", site.SitemapURL),
				zap.String("error", logging.SanitizeError(err)))
		case len(urls) == 0:
			logger.Warn("sitemap has no usable urls, falling back to base url",
				zap.String("sitemap_url", site.SitemapURL))
		default:
			return urls, model.DetectionSitemap
		}
	}
	return []string{site.BaseURL}, model.DetectionBaseURL
}

// extractAll fetches urls with bounded parallelism. A failing URL is skipped;
// the result keeps the input order.
func (o *Orchestrator) extractAll(ctx context.Context, urls []string, tracker *progressTracker, logger *zap.Logger) ([]document.Document, error) {
	results := make([]*document.Document, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Concurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			doc, err := o.extractOne(gctx, u)
			if err != nil {
				logger.Warn("skip url", zap.String("url", u), zap.String("error", logging.SanitizeError(err)))
				return nil
			}
			results[i] = doc
			tracker.Inc()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docs := make([]document.Document, 0, len(urls))
	for _, d := range results {
		if d != nil {
			docs = append(docs, *d)
		}
	}
	return docs, nil
}

func (o *Orchestrator) extractOne(ctx context.Context, u string) (doc *document.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract panicked: %v", r)
		}
	}()
	return o.Extractor.Extract(ctx, u)
}

// embedAndStore embeds chunks batch by batch, retrying transient provider
// errors, and writes each batch as soon as it is embedded. It returns the
// estimated tokens embedded so far, also on failure.
func (o *Orchestrator) embedAndStore(ctx context.Context, chunks []document.Chunk, logger *zap.Logger) (int, error) {
	tokens := 0
	for start := 0; start < len(chunks); start += o.opts.BatchSize {
		end := min(start+o.opts.BatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		batchTokens := 0
		for i, c := range batch {
			texts[i] = c.Content
			batchTokens += usage.EstimateTokens(c.Content)
		}

		vectors, err := retry.DoWithResult(ctx, o.opts.Retry, func() ([][]float32, error) {
			v, err := o.Embedder.EmbedDocuments(ctx, texts)
			if errors.Is(err, ai.ErrDimensionMismatch) || errors.Is(err, ai.ErrEmptyInput) {
				return nil, retry.Permanent(err)
			}
			return v, err
		})
		if err != nil {
			return tokens, fmt.Errorf("embed batch %d-%d failed: %w", start, end, err)
		}
		tokens += batchTokens

		if err := o.Vectors.Store(ctx, batch, vectors); err != nil {
			return tokens, fmt.Errorf("store batch %d-%d failed: %w", start, end, err)
		}
		logger.Debug("stored batch", zap.Int("from", start), zap.Int("to", end))
	}
	return tokens, nil
}

// RecoverStale fails jobs that stayed running longer than the stale threshold,
// which only happens when a worker died mid-run.
func (o *Orchestrator) RecoverStale(ctx context.Context) (int, error) {
	if o.opts.StaleAfter <= 0 {
		return 0, nil
	}
	jobs, err := o.Jobs.ListStaleRunning(ctx, o.now().Add(-o.opts.StaleAfter))
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, job := range jobs {
		if o.failJob(ctx, job.ID, job.SiteID, errors.New(interruptedMessage)) {
			recovered++
		}
	}
	if recovered > 0 {
		o.Logger.Warn("recovered stale training jobs", zap.Int("count", recovered))
	}
	return recovered, nil
}

// failJob moves the job to failed, drops its partial chunks and flips the
// site to error. It runs on a context that survives cancellation of the run
// and reports whether this call made the transition. A job that is already
// terminal is left alone together with its chunks and its site.
func (o *Orchestrator) failJob(ctx context.Context, jobID, siteID string, cause error) bool {
	ctx = context.WithoutCancel(ctx)
	msg := logging.SanitizeError(cause)
	if len(msg) > maxErrorMessageLen {
		msg = msg[:maxErrorMessageLen]
	}

	logger := o.Logger.With(zap.String("site_id", siteID), zap.String("job_id", jobID))

	changed, err := o.Jobs.Fail(ctx, jobID, msg, o.now())
	if err != nil {
		logger.Error("mark job failed failed", zap.Error(err))
	} else if !changed {
		logger.Warn("training job already finished", zap.String("error", msg))
		return false
	}
	logger.Error("training job failed", zap.String("error", msg))

	if err := o.Vectors.DeleteByJob(ctx, jobID); err != nil {
		logger.Warn("remove partial chunks failed", zap.Error(err))
	}
	if err := o.Sites.SetStatus(ctx, siteID, model.SiteStatusError); err != nil {
		logger.Error("mark site errored failed", zap.Error(err))
	}

	o.Notifier.Publish(ctx, events.Event{
		Type:   events.JobFailed,
		SiteID: siteID,
		JobID:  jobID,
		Status: string(model.JobStatusFailed),
		Error:  msg,
	})
	o.siteChanged(ctx, siteID, model.SiteStatusError)
	return changed
}

// releaseLease undoes TryBeginTraining when no job could be created.
func (o *Orchestrator) releaseLease(ctx context.Context, site *model.Site) {
	ctx = context.WithoutCancel(ctx)
	if err := o.Sites.SetStatus(ctx, site.ID, site.Status); err != nil {
		o.Logger.Error("release training lease failed", zap.String("site_id", site.ID), zap.Error(err))
	}
	o.siteChanged(ctx, site.ID, site.Status)
}

func (o *Orchestrator) siteChanged(ctx context.Context, siteID string, status model.SiteStatus) {
	if err := o.Cache.Invalidate(ctx, siteID); err != nil {
		o.Logger.Warn("invalidate site cache failed", zap.String("site_id", siteID), zap.Error(err))
	}
	o.Notifier.Publish(ctx, events.Event{
		Type:   events.SiteStatus,
		SiteID: siteID,
		Status: string(status),
	})
}
