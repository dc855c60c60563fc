package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sitebot/internal/ai"
	"sitebot/internal/cache"
	"sitebot/internal/chunker"
	"sitebot/internal/config"
	"sitebot/internal/events"
	"sitebot/internal/extract"
	"sitebot/internal/logging"
	"sitebot/internal/model"
	mysqlClient "sitebot/internal/platform/mysql"
	postgresClient "sitebot/internal/platform/postgres"
	rabbitmqClient "sitebot/internal/platform/rabbitmq"
	redisClient "sitebot/internal/platform/redis"
	"sitebot/internal/qa"
	"sitebot/internal/repository"
	"sitebot/internal/retrieval"
	"sitebot/internal/training"
	"sitebot/internal/usage"
	"sitebot/internal/vectorstore"
	"sitebot/internal/vectorstore/memory"
	"sitebot/internal/vectorstore/mysqlstore"
	"sitebot/internal/vectorstore/pgvectorstore"
	"sitebot/internal/worker"
)

type Repositories struct {
	Users *repository.UserRepository
	Sites *repository.SiteRepository
	Jobs  *repository.TrainingJobRepository
	Usage *repository.UsageRepository
}

// App owns every long-lived resource of the process. Redis and RabbitMQ
// are optional: without them events stay in-process, the site cache is
// disabled, and training and usage writes run inline.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	MySQL    *gorm.DB
	Postgres *gorm.DB
	Redis    *redis.Client
	MQConn   *amqp.Connection

	Repos        Repositories
	Vectors      vectorstore.Store
	Events       events.Bus
	SiteCache    cache.SiteCache
	Chain        *qa.Chain
	Meter        *usage.Meter
	Quota        *usage.QuotaChecker
	Orchestrator *training.Orchestrator

	inline  *training.InlineDispatcher
	workers []interface{ Close() }

	StartedAt time.Time
}

type vectorMigrator interface {
	Migrate(ctx context.Context) error
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logger, err := logging.New(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, StartedAt: time.Now()}
	if err := a.init(ctx); err != nil {
		logger.Error("bootstrap failed", zap.String("error", logging.SanitizeError(err)))
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN(), mysqlClient.Options{Debug: cfg.Log.Level == "debug"})
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	a.Logger.Info("mysql connected", zap.String("dsn", logging.SanitizeConnectionString(cfg.MySQLDSN())))
	if err := mysqlDB.WithContext(ctx).AutoMigrate(&model.User{}, &model.Site{}, &model.TrainingJob{}, &model.UsageRecord{}); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}
	a.Repos = Repositories{
		Users: repository.NewUserRepository(mysqlDB),
		Sites: repository.NewSiteRepository(mysqlDB),
		Jobs:  repository.NewTrainingJobRepository(mysqlDB),
		Usage: repository.NewUsageRepository(mysqlDB),
	}

	if err := a.initVectors(ctx); err != nil {
		return err
	}

	if cfg.Redis.Enabled {
		redisCli, err := redisClient.New(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		a.Redis = redisCli
		a.Events = events.NewRedisBus(redisCli, cfg.Redis.EventsKeyPrefix, a.Logger)
		a.SiteCache = cache.NewRedisSiteCache(redisCli, cfg.Redis.EventsKeyPrefix, time.Duration(cfg.Redis.SiteTTLSeconds)*time.Second)
	} else {
		a.Events = events.NewLocal()
		a.SiteCache = cache.NopSiteCache{}
	}

	var recorder usage.Recorder = usage.NewRepositoryRecorder(a.Repos.Usage)
	if cfg.RabbitMQ.Enabled {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		a.MQConn = mqConn
		a.Logger.Info("rabbitmq connected", zap.String("url", logging.SanitizeConnectionString(cfg.RabbitMQ.URL)))
		recorder = usage.NewQueueRecorder(rabbitmqClient.NewPublisher(mqConn, cfg.RabbitMQ.UsageQueue))
	}
	a.Meter = usage.NewMeter(recorder, usage.Rates{
		InputPerMillion:     cfg.LLM.InputRate,
		OutputPerMillion:    cfg.LLM.OutputRate,
		EmbeddingPerMillion: cfg.Embedding.Rate,
	}, a.Logger)
	a.Quota = usage.NewQuotaChecker(a.Repos.Usage, cfg.Quota.MonthlyChats, cfg.Quota.DefaultPlan)

	embedder := ai.NewOpenAIEmbedder(cfg.Embedding, a.Logger)
	chat, err := ai.NewChatProvider(cfg.LLM, a.Logger)
	if err != nil {
		return err
	}
	retriever := retrieval.New(embedder, a.Vectors, cfg.Vector.TopK, cfg.Vector.AllowUnscoped, a.Logger)
	a.Chain = qa.NewChain(chat, retriever, a.Logger)

	fetcher := extract.NewFetcher(cfg.Crawler)
	a.Orchestrator = training.NewOrchestrator(training.Deps{
		Sites:     a.Repos.Sites,
		Jobs:      a.Repos.Jobs,
		Resolver:  extract.NewSitemapResolver(fetcher, cfg.Crawler.MaxPages, a.Logger),
		Extractor: extract.NewExtractor(fetcher, a.Logger),
		Splitter:  chunker.New(chunker.WithChunkSize(cfg.Chunker.Size), chunker.WithOverlap(cfg.Chunker.Overlap)),
		Embedder:  embedder,
		Vectors:   a.Vectors,
		Meter:     a.Meter,
		Notifier:  a.Events,
		Cache:     a.SiteCache,
		Logger:    a.Logger,
	}, training.Options{
		Concurrency: cfg.Crawler.Concurrency,
		BatchSize:   cfg.Embedding.BatchSize,
		StaleAfter:  cfg.StaleTrainingAfter(),
	})
	if a.MQConn != nil {
		a.Orchestrator.SetDispatcher(training.NewQueueDispatcher(rabbitmqClient.NewPublisher(a.MQConn, cfg.RabbitMQ.TrainingQueue)))
	} else {
		a.inline = training.NewInlineDispatcher(a.Orchestrator, a.Logger)
		a.Orchestrator.SetDispatcher(a.inline)
	}
	return nil
}

func (a *App) initVectors(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Vector.Backend {
	case "pgvector":
		pg, err := postgresClient.New(ctx, cfg.PostgresDSN())
		if err != nil {
			return err
		}
		a.Postgres = pg
		a.Logger.Info("postgres connected", zap.String("dsn", logging.SanitizeConnectionString(cfg.PostgresDSN())))
		a.Vectors = pgvectorstore.New(pg, cfg.Embedding.Dimensions)
	case "memory":
		a.Logger.Warn("using in-memory vector store, trained content is lost on restart")
		a.Vectors = memory.New(cfg.Embedding.Dimensions)
	default:
		a.Vectors = mysqlstore.New(a.MySQL, cfg.Embedding.Dimensions, cfg.Vector.SearchPageSize)
	}

	if m, ok := a.Vectors.(vectorMigrator); ok {
		if err := m.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate vector store failed: %w", err)
		}
	}
	return nil
}

// StartWorkers consumes the training and usage queues in this process.
// It is a no-op without RabbitMQ, where both run inline.
func (a *App) StartWorkers(ctx context.Context) error {
	if a.MQConn == nil {
		return nil
	}
	cfg := a.Config.RabbitMQ

	trainingWorker := worker.NewTrainingWorker(a.MQConn, a.Orchestrator, cfg.TrainingQueue, cfg.Prefetch, a.Logger)
	if err := trainingWorker.Start(ctx); err != nil {
		return fmt.Errorf("start training worker failed: %w", err)
	}
	a.workers = append(a.workers, trainingWorker)

	usageWorker := worker.NewUsagePersistWorker(a.MQConn, a.Repos.Usage, cfg.UsageQueue, a.Logger)
	if err := usageWorker.Start(ctx); err != nil {
		return fmt.Errorf("start usage worker failed: %w", err)
	}
	a.workers = append(a.workers, usageWorker)
	return nil
}

// RecoverStale fails training jobs left running by a crashed process.
func (a *App) RecoverStale(ctx context.Context) {
	n, err := a.Orchestrator.RecoverStale(ctx)
	if err != nil {
		a.Logger.Warn("recover stale training jobs failed", zap.Error(err))
		return
	}
	if n > 0 {
		a.Logger.Info("recovered stale training jobs", zap.Int("count", n))
	}
}

// WaitTraining blocks until inline training jobs have finished. With a
// queue dispatcher jobs run in workers and it returns immediately.
func (a *App) WaitTraining() {
	if a.inline != nil {
		a.inline.Wait()
	}
}

func (a *App) Close() error {
	var closeErr error
	for _, w := range a.workers {
		w.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	for _, db := range []*gorm.DB{a.Postgres, a.MySQL} {
		if db == nil {
			continue
		}
		sqlDB, err := db.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return closeErr
}
