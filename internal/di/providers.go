package di

import (
	"context"
	"fmt"
	"time"

	"SignalDesk/internal/domain/repository"
	"SignalDesk/internal/domain/service"
	"SignalDesk/internal/handler/api"
	internalrepo "SignalDesk/internal/repository"
	svccache "SignalDesk/internal/service/cache"
	"SignalDesk/internal/service/ratelimit"
	"SignalDesk/internal/services/strategies"
	"SignalDesk/internal/usecase"
	pkgcache "SignalDesk/pkg/cache"
	pkgch "SignalDesk/pkg/clickhouse"
	"SignalDesk/pkg/config"
	xhttp "SignalDesk/pkg/http"
	"SignalDesk/pkg/http/middleware"
	pkgkafka "SignalDesk/pkg/kafka"
	applogger "SignalDesk/pkg/logger"
	"SignalDesk/pkg/metrics"
	pkgpg "SignalDesk/pkg/postgres"
	"SignalDesk/pkg/queue"
	"SignalDesk/pkg/scheduler"
	"SignalDesk/pkg/server"
)

// ProvideKafkaProducer creates the event producer, or nil when Kafka is
// disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithWriteTimeout(cfg.Kafka.WriteTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideLogger builds the app logger. With Kafka and the collector enabled,
// Warn and Error entries are also shipped as periodic digests.
func ProvideLogger(cfg *config.Config, producer *pkgkafka.Producer) (*applogger.Logger, error) {
	l, err := applogger.New(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	if cfg.LogCollector.Enabled && producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.LogCollector.Interval,
			CountThreshold: cfg.LogCollector.CountThreshold,
			Topic:          cfg.LogCollector.Topic,
			Source:         "signaldesk",
			Publisher:      producer,
		})
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

func ProvideMetrics() repository.Metrics {
	return metrics.New(nil)
}

func ProvidePostgres(cfg *config.Config) (*pkgpg.Client, error) {
	client, err := pkgpg.NewClient(
		pkgpg.WithDSN(cfg.Postgres.DSN),
		pkgpg.WithPool(cfg.Postgres.MaxOpenConns, cfg.Postgres.MaxIdleConns, cfg.Postgres.ConnMaxLifetime),
		pkgpg.WithLogLevel(cfg.Postgres.LogLevel),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres client: %w", err)
	}
	return client, nil
}

// ProvideStore opens the signal store and migrates it when configured.
func ProvideStore(pg *pkgpg.Client, cfg *config.Config, l *applogger.Logger) (*internalrepo.Store, error) {
	store := internalrepo.NewStore(pg.DB())
	if cfg.Postgres.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("postgres migrate: %w", err)
		}
		l.Info("postgres schema migrated")
	}
	return store, nil
}

func ProvideSignalRepository(store *internalrepo.Store) repository.SignalRepository {
	return store
}

func ProvidePositionRepository(store *internalrepo.Store) repository.PositionRepository {
	return internalrepo.PositionStore{Store: store}
}

func ProvideAllocationRepository(store *internalrepo.Store) repository.AllocationRepository {
	return internalrepo.AllocationStore{Store: store}
}

func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithAddr(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithAuth(cfg.ClickHouse.Database, cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithPool(cfg.ClickHouse.MaxOpenConns, cfg.ClickHouse.MaxOpenConns/4+1, 0),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if cfg.ClickHouse.InitSchema {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.InitSchema(ctx, internalrepo.CandleSchema); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
	}
	return client, nil
}

func ProvideCandleStore(ch *pkgch.Client, l *applogger.Logger) repository.CandleStore {
	return internalrepo.NewCHCandleStore(ch, l)
}

// ProvideRedis connects to Redis, or returns nil when it is disabled.
func ProvideRedis(cfg *config.Config) (*pkgcache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := pkgcache.NewRedisCache(
		pkgcache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		pkgcache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		pkgcache.WithRedisPool(cfg.Redis.PoolSize, cfg.Redis.PoolSize/4),
		pkgcache.WithRedisTimeouts(cfg.Redis.DialTimeout, cfg.Redis.IOTimeout),
		pkgcache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return rc, nil
}

// ProvideCache prefers Redis so leases hold across replicas; the in-memory
// cache only protects a single process.
func ProvideCache(rc *pkgcache.RedisCache) pkgcache.Service {
	if rc != nil {
		return rc
	}
	return pkgcache.NewMemoryCache()
}

func ProvideRunLocker(c pkgcache.Service) repository.RunLocker {
	return internalrepo.NewCacheRunLocker(c)
}

func ProvideEventPublisher(producer *pkgkafka.Producer, cfg *config.Config, l *applogger.Logger) repository.EventPublisher {
	if producer == nil {
		return internalrepo.NewLogEventPublisher(l)
	}
	return internalrepo.NewKafkaEventPublisher(producer, cfg.Kafka.EventsTopic)
}

func ProvideQuoteProvider(cfg *config.Config, candles repository.CandleStore, rc *pkgcache.RedisCache, l *applogger.Logger) repository.QuoteProvider {
	if cfg.Quotes.Provider != "alpaca" {
		return internalrepo.NewCandleQuoteProvider(candles)
	}
	var cache svccache.BytesCache = svccache.NewTTLCache(0)
	if rc != nil {
		cache = svccache.NewRedisCache(rc.Client(), cfg.Redis.Prefix+":quotes")
	}
	client := internalrepo.NewAlpacaClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
	return internalrepo.NewAlpacaQuoteProvider(
		client,
		ratelimit.New(cfg.Quotes.Burst, cfg.Quotes.RatePerSec),
		cache,
		internalrepo.AlpacaQuoteConfig{
			Feed:     cfg.Alpaca.Feed,
			CacheTTL: cfg.Quotes.CacheTTL,
			Timeout:  cfg.Quotes.Timeout,
			Retries:  cfg.Quotes.Retries,
		},
		l,
	)
}

func ProvideStrategyRegistry() service.StrategyRegistry {
	return strategies.Default()
}

func screenConfig(cfg *config.Config) usecase.ScreenConfig {
	return usecase.ScreenConfig{
		Workers:         cfg.Screening.Workers,
		BacktestWorkers: cfg.Screening.BacktestWorkers,
		FetchTimeout:    cfg.Screening.FetchTimeout,
		FetchRetries:    cfg.Screening.FetchRetries,
		HistoryBars:     cfg.Screening.HistoryBars,
	}
}

func ProvideScreener(cfg *config.Config, candles repository.CandleStore, registry service.StrategyRegistry, l *applogger.Logger, m repository.Metrics) *usecase.Screener {
	return usecase.NewScreener(candles, registry, l.With(applogger.String("component", "screener")), m, screenConfig(cfg))
}

func ProvideEnsembleService(
	cfg *config.Config,
	screener *usecase.Screener,
	signals repository.SignalRepository,
	locker repository.RunLocker,
	publisher repository.EventPublisher,
	l *applogger.Logger,
	m repository.Metrics,
) *usecase.EnsembleService {
	return usecase.NewEnsembleService(screener, signals, locker, publisher,
		usecase.StrategyWeights(cfg.Ensemble.Weights), cfg.Ensemble.LeaseTTL,
		l.With(applogger.String("component", "ensemble")), m)
}

func ProvideRankingService(
	cfg *config.Config,
	signals repository.SignalRepository,
	positions repository.PositionRepository,
	candles repository.CandleStore,
	l *applogger.Logger,
	m repository.Metrics,
) *usecase.RankingService {
	return usecase.NewRankingService(signals, positions, candles, cfg.Screening.HistoryBars,
		l.With(applogger.String("component", "ranking")), m)
}

func ProvideAllocationService(allocs repository.AllocationRepository, publisher repository.EventPublisher, l *applogger.Logger, m repository.Metrics) *usecase.AllocationService {
	return usecase.NewAllocationService(allocs, publisher, l.With(applogger.String("component", "allocation")), m)
}

func ProvideLifecycleService(
	cfg *config.Config,
	signals repository.SignalRepository,
	positions repository.PositionRepository,
	allocs repository.AllocationRepository,
	quotes repository.QuoteProvider,
	publisher repository.EventPublisher,
	l *applogger.Logger,
	m repository.Metrics,
) *usecase.LifecycleService {
	return usecase.NewLifecycleService(signals, positions, allocs, quotes, publisher,
		usecase.LifecycleConfig{MaxHoldDays: cfg.Lifecycle.MaxHoldDays},
		l.With(applogger.String("component", "lifecycle")), m)
}

func ProvidePipelineService(
	cfg *config.Config,
	ensemble *usecase.EnsembleService,
	ranking *usecase.RankingService,
	signals repository.SignalRepository,
	locker repository.RunLocker,
	publisher repository.EventPublisher,
	l *applogger.Logger,
	m repository.Metrics,
) *usecase.PipelineService {
	params := make(map[string]service.Params, len(cfg.Ensemble.Params))
	for code, p := range cfg.Ensemble.Params {
		params[code] = p
	}
	return usecase.NewPipelineService(ensemble, ranking, signals, locker, publisher, usecase.PipelineConfig{
		Strategies: cfg.Ensemble.Strategies,
		Standalone: cfg.Ensemble.Standalone,
		Params:     params,
		Market:     repository.NormalizeMarket(cfg.Screening.Market),
		LeaseTTL:   cfg.Ensemble.LeaseTTL,
	}, l.With(applogger.String("component", "pipeline")), m)
}

func ProvideBacktestService(cfg *config.Config, candles repository.CandleStore, registry service.StrategyRegistry, l *applogger.Logger) *usecase.BacktestService {
	return usecase.NewBacktestService(candles, registry, screenConfig(cfg), l.With(applogger.String("component", "backtest")))
}

func ProvideCandlesUseCase(candles repository.CandleStore) *usecase.CandlesUseCase {
	return usecase.NewCandlesUseCase(candles)
}

// JobQueue pairs the dispatcher with the workers that drain it. Workers is
// nil for the inline queue.
type JobQueue struct {
	Dispatcher repository.JobDispatcher
	Workers    server.Component
}

// ProvideJobQueue uses the Redis queue when Redis is enabled and runs jobs
// inline otherwise.
func ProvideJobQueue(
	cfg *config.Config,
	rc *pkgcache.RedisCache,
	pipeline *usecase.PipelineService,
	ranking *usecase.RankingService,
	lifecycle *usecase.LifecycleService,
	l *applogger.Logger,
) (*JobQueue, error) {
	jobs := usecase.Jobs(pipeline, ranking, lifecycle, l.With(applogger.String("component", "jobs")))
	if rc == nil {
		inline, err := queue.NewInline(cfg.Queue.JobTimeout, jobs...)
		if err != nil {
			return nil, fmt.Errorf("inline queue: %w", err)
		}
		return &JobQueue{Dispatcher: inline}, nil
	}
	q := queue.NewRedisQueue(l, queue.Config{
		Workers:    cfg.Queue.Workers,
		RetryLimit: cfg.Queue.RetryLimit,
		RetryDelay: cfg.Queue.RetryDelay,
		JobTimeout: cfg.Queue.JobTimeout,
		KeyPrefix:  cfg.Redis.Prefix + ":jobs",
	}, rc.Client())
	if err := q.Register(jobs...); err != nil {
		return nil, fmt.Errorf("redis queue: %w", err)
	}
	return &JobQueue{Dispatcher: q, Workers: q}, nil
}

// ProvideKafkaConsumer listens for candles-ready notifications, or returns
// nil when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, jobs *JobQueue, l *applogger.Logger, m repository.Metrics) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.RetryMax, cfg.Kafka.BackoffMin, cfg.Kafka.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.RegisterHandler(usecase.NewCandlesReadyHandler(cfg.Kafka.CandlesTopic, jobs.Dispatcher, l, m))
	return consumer, nil
}

// ProvideScheduler registers the cron schedules, or returns nil when the
// scheduler is disabled.
func ProvideScheduler(cfg *config.Config, jobs *JobQueue, l *applogger.Logger) (*scheduler.Runner, error) {
	if !cfg.Scheduler.Enabled {
		return nil, nil
	}
	loc, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, fmt.Errorf("scheduler timezone: %w", err)
	}
	r := scheduler.New(context.Background(), jobs.Dispatcher, loc, l)
	payload := usecase.JobPayload{Market: cfg.Screening.Market}
	for _, s := range []struct{ spec, job string }{
		{cfg.Scheduler.ScreenCron, usecase.JobDailyScreen},
		{cfg.Scheduler.RankCron, usecase.JobRankPending},
		{cfg.Scheduler.LifecycleCron, usecase.JobLifecycleRefresh},
	} {
		if _, err := r.Schedule(s.spec, s.job, payload); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ProvideJWT returns nil when auth is disabled, which opens every route.
func ProvideJWT(cfg *config.Config) *middleware.JWT {
	if !cfg.Auth.Enabled {
		return nil
	}
	return &middleware.JWT{Secret: []byte(cfg.Auth.Secret), Issuer: cfg.Auth.Issuer}
}

func ProvideSignalsHandler(
	ensemble *usecase.EnsembleService,
	ranking *usecase.RankingService,
	lifecycle *usecase.LifecycleService,
	signals repository.SignalRepository,
	auth *middleware.JWT,
	l *applogger.Logger,
) *api.SignalsHandler {
	return api.NewSignalsHandler(ensemble, ranking, lifecycle, signals, auth, l)
}

func ProvidePortfolioHandler(
	allocs *usecase.AllocationService,
	lifecycle *usecase.LifecycleService,
	positions repository.PositionRepository,
	auth *middleware.JWT,
	l *applogger.Logger,
) *api.PortfolioHandler {
	return api.NewPortfolioHandler(allocs, lifecycle, positions, auth, l)
}

func ProvideResearchHandler(backtests *usecase.BacktestService, candles *usecase.CandlesUseCase, l *applogger.Logger) *api.ResearchHandler {
	return api.NewResearchHandler(backtests, candles, l)
}

func ProvideJobsHandler(jobs *JobQueue, auth *middleware.JWT, l *applogger.Logger) *api.JobsHandler {
	return api.NewJobsHandler(jobs.Dispatcher, auth, l)
}

// Infra groups the clients the App closes on shutdown and probes on /healthz.
type Infra struct {
	Postgres   *pkgpg.Client
	ClickHouse *pkgch.Client
	Redis      *pkgcache.RedisCache
	Producer   *pkgkafka.Producer
	Publisher  repository.EventPublisher
}

func ProvideInfra(pg *pkgpg.Client, ch *pkgch.Client, rc *pkgcache.RedisCache, producer *pkgkafka.Producer, publisher repository.EventPublisher) *Infra {
	return &Infra{Postgres: pg, ClickHouse: ch, Redis: rc, Producer: producer, Publisher: publisher}
}

func (i *Infra) healthChecks() map[string]api.HealthCheck {
	checks := map[string]api.HealthCheck{
		"postgres":   i.Postgres.Health,
		"clickhouse": i.ClickHouse.Health,
	}
	if i.Redis != nil {
		checks["redis"] = i.Redis.Health
	}
	return checks
}

func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	infra *Infra,
	jobs *JobQueue,
	consumer *pkgkafka.Consumer,
	cron *scheduler.Runner,
	signals *api.SignalsHandler,
	portfolio *api.PortfolioHandler,
	research *api.ResearchHandler,
	jobsHandler *api.JobsHandler,
) *server.App {
	apiServer := xhttp.NewServer(l,
		[]xhttp.Handler{signals, portfolio, research, jobsHandler},
		xhttp.WithName("api"),
		xhttp.WithHost(cfg.HTTP.Host),
		xhttp.WithPort(cfg.HTTP.Port),
		xhttp.WithTimeouts(cfg.HTTP.ReadTimeout, cfg.HTTP.WriteTimeout, cfg.HTTP.ShutdownTimeout),
		xhttp.WithCORS(cfg.HTTP.CORS),
	)
	metricsServer := xhttp.NewServer(l,
		[]xhttp.Handler{api.NewHealthHandler(infra.healthChecks())},
		xhttp.WithName("metrics"),
		xhttp.WithHost(cfg.HTTP.Host),
		xhttp.WithPort(cfg.Metrics.Port),
	)

	opts := []server.Option{
		server.WithShutdownTimeout(cfg.HTTP.ShutdownTimeout),
		// the collector flushes through the producer, so it goes first
		server.WithCloser("log collector", func() error { l.RemoveCollector(); return nil }),
		server.WithCloser("event publisher", infra.Publisher.Close),
		server.WithCloser("postgres", infra.Postgres.Close),
		server.WithCloser("clickhouse", infra.ClickHouse.Close),
	}
	if jobs.Workers != nil {
		opts = append(opts, server.WithWorkers(jobs.Workers))
	}
	if consumer != nil {
		opts = append(opts, server.WithConsumer(consumer))
	}
	if cron != nil {
		opts = append(opts, server.WithScheduler(cron))
	}
	if infra.Redis != nil {
		opts = append(opts, server.WithCloser("redis", infra.Redis.Close))
	}
	return server.New(l, apiServer, metricsServer, opts...)
}
