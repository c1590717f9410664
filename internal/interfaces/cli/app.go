package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/manufacture/internal/application/dedup"
	"github.com/erp/manufacture/internal/application/feedsync"
	"github.com/erp/manufacture/internal/application/ingestion"
	appmanufacture "github.com/erp/manufacture/internal/application/manufacture"
	appreplenishment "github.com/erp/manufacture/internal/application/replenishment"
	"github.com/erp/manufacture/internal/domain/manufacture"
	"github.com/erp/manufacture/internal/domain/replenishment"
	"github.com/erp/manufacture/internal/infrastructure/cache"
	"github.com/erp/manufacture/internal/infrastructure/config"
	"github.com/erp/manufacture/internal/infrastructure/ecommerce"
	"github.com/erp/manufacture/internal/infrastructure/event"
	"github.com/erp/manufacture/internal/infrastructure/logger"
	"github.com/erp/manufacture/internal/infrastructure/persistence"
	"github.com/erp/manufacture/internal/infrastructure/persistence/models"
	"github.com/erp/manufacture/internal/infrastructure/scheduler"
	"github.com/erp/manufacture/internal/infrastructure/telemetry"
	"github.com/erp/manufacture/internal/interfaces/http/handler"
	"github.com/erp/manufacture/internal/interfaces/http/middleware"
	"github.com/erp/manufacture/internal/interfaces/http/router"
)

// Version is reported by /api/v1/system/info
var Version = telemetry.ServiceVersion

const shutdownTimeout = 30 * time.Second

// App holds the wired components of the service
type App struct {
	cfg *config.Config
	log *zap.Logger

	meters  *telemetry.MeterProvider
	tracers *telemetry.TracerProvider
	logs    *telemetry.LoggerProvider

	db       *persistence.Database
	stores   *cache.Stores
	accounts *config.AccountRegistry
	bus      *event.InMemoryEventBus
	relay    *event.OutboxRelay

	scheduler *scheduler.Scheduler
	trigger   *scheduler.IntervalTrigger
	limiter   *middleware.RateLimiter

	engine *gin.Engine
	server *http.Server

	cancel context.CancelFunc
}

// NewApp connects the stores and wires every component. Nothing runs until Start.
func NewApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{cfg: cfg, log: log}
	if err := a.wire(ctx); err != nil {
		_ = a.release(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context) (err error) {
	cfg := a.cfg

	if err = a.initTelemetry(ctx); err != nil {
		return err
	}
	log := a.log

	gormLogger := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh))
	if a.db, err = persistence.NewDatabaseWithLogger(&cfg.Database, gormLogger); err != nil {
		return err
	}
	if cfg.Database.IsSQLite() {
		// SQL migrations target postgres; sqlite schemas come from the models
		if err = a.db.DB.AutoMigrate(models.All()...); err != nil {
			return fmt.Errorf("failed to migrate sqlite schema: %w", err)
		}
	}
	dbSystem := "postgresql"
	if cfg.Database.IsSQLite() {
		dbSystem = "sqlite"
	}
	tracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
		Enabled:         cfg.Telemetry.Enabled && cfg.Telemetry.Traces,
		SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		DBSystem:        dbSystem,
	}, log)
	if err = tracing.Register(a.db.DB); err != nil {
		return err
	}

	if a.stores, err = a.createStores(); err != nil {
		return err
	}
	if a.accounts, err = config.NewAccountRegistry(cfg.Marketplace.Accounts); err != nil {
		return err
	}

	metrics, err := telemetry.NewSyncMetrics(a.meters.Meter("github.com/erp/manufacture/sync"))
	if err != nil {
		return err
	}

	wb, err := ecommerce.NewWildberriesClient(&ecommerce.WildberriesConfig{
		StatisticsBaseURL:  cfg.Marketplace.StatisticsBaseURL,
		MarketplaceBaseURL: cfg.Marketplace.MarketplaceBaseURL,
		TimeoutSeconds:     cfg.Marketplace.TimeoutSeconds,
		CollapseTTL:        cfg.Marketplace.CollapseTTL,
		PageTTL:            cfg.Marketplace.PageTTL,
	}, a.accounts, a.stores.Pages, log)
	if err != nil {
		return err
	}

	db := a.db.DB
	deduplicator := dedup.New(a.stores.Dedup, dedup.NamespaceManufacture, log)
	resolver := persistence.NewGormProductResolver(db)
	orders := persistence.NewGormOrderRepository(db)
	stocks := persistence.NewGormStockRepository(db)
	supplies := persistence.NewGormSupplyRepository(db)

	a.bus = event.NewInMemoryEventBus(event.BusConfig{
		Workers:         cfg.Orchestration.Workers,
		MaxRedeliveries: cfg.Orchestration.MaxRedeliveries,
		RedeliveryDelay: cfg.Orchestration.RedeliveryDelay,
	}, log)
	codec := event.NewJSONCodec()
	codec.Register(manufacture.EventTypeBatchCompleted, &manufacture.BatchCompletedEvent{})
	batches := persistence.NewGormBatchRepository(db, codec, log)
	a.relay = event.NewOutboxRelay(persistence.NewGormOutboxRepository(db), a.bus, codec, event.RelayConfig{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		ClaimHold:    cfg.Outbox.ClaimHold,
		Retention:    cfg.Outbox.Retention,
	}, log)

	channel, err := manufacture.ParseCompletionChannel(cfg.Orchestration.Channel)
	if err != nil {
		return fmt.Errorf("orchestration.channel: %w", err)
	}
	orchestration := appmanufacture.OrchestratorConfig{
		Channel:         channel,
		SupplyWaitDelay: cfg.Orchestration.SupplyWaitDelay,
		MaxRequeues:     cfg.Orchestration.MaxRequeues,
		EffectTTL:       cfg.Orchestration.EffectTTL,
	}
	opener := appmanufacture.NewSupplyOpener(batches, supplies, deduplicator, orchestration, log)
	orchestrator := appmanufacture.NewCompletionOrchestrator(
		batches,
		supplies,
		persistence.NewGormWorkflowOrderRepository(db),
		persistence.NewGormPackageRepository(db),
		a.bus,
		deduplicator,
		orchestration,
		log,
	).WithObserver(metrics)
	a.bus.Subscribe(opener, opener.EventTypes()...)
	a.bus.Subscribe(orchestrator, orchestrator.EventTypes()...)

	ingest := ingestion.Config{
		Concurrency: cfg.Sync.IngestConcurrency,
		OrderTTL:    cfg.Sync.OrderDedupTTL,
		StockTTL:    cfg.Sync.StockDedupTTL,
	}
	retry := feedsync.RetryPolicy{
		MaxAttempts: cfg.Marketplace.RetryMaxAttempts,
		Delay:       cfg.Marketplace.RetryDelay,
		MaxDelay:    cfg.Marketplace.RetryMaxDelay,
	}
	orderSync := feedsync.NewOrderSync(
		wb,
		ingestion.NewOrderIngestor(resolver, orders, deduplicator, ingest, log),
		feedsync.OrderSyncConfig{Lookback: cfg.Sync.OrdersLookback, ByDay: cfg.Sync.OrdersByDay},
		retry,
		metrics,
		log,
	)
	stockSync := feedsync.NewStockSync(
		wb,
		ingestion.NewStockIngestor(resolver, stocks, deduplicator, ingest, log),
		feedsync.StockSyncConfig{Lookback: cfg.Sync.StocksLookback},
		retry,
		metrics,
		log,
	)
	resetter := appmanufacture.NewStockResetter(stocks, wb, wb, deduplicator, appmanufacture.StockResetConfig{
		Threshold:   cfg.StockReset.Threshold,
		FallbackMin: cfg.StockReset.FallbackMin,
		FallbackMax: cfg.StockReset.FallbackMax,
		ChunkSize:   cfg.StockReset.ChunkSize,
		EffectTTL:   cfg.StockReset.DedupTTL,
	}, log)

	schedulerCfg := scheduler.DefaultSchedulerConfig()
	schedulerCfg.MaxConcurrentJobs = cfg.Sync.MaxConcurrentJobs
	schedulerCfg.JobTimeout = cfg.Sync.JobTimeout
	schedulerCfg.RetryAttempts = cfg.Sync.RetryAttempts
	schedulerCfg.RetryDelay = cfg.Sync.RetryDelay
	a.scheduler, err = scheduler.NewScheduler(schedulerCfg, &scheduler.SyncExecutor{
		Orders:    orderSync,
		Stocks:    stockSync,
		Reset:     resetter,
		Purger:    orders,
		Retention: cfg.Sync.OrderRetention,
		Logger:    log,
	}, log)
	if err != nil {
		return err
	}
	a.scheduler.WithObserver(metrics)

	if cfg.Sync.Enabled {
		a.trigger = scheduler.NewIntervalTrigger(scheduler.TriggerConfig{
			Intervals: map[scheduler.JobKind]time.Duration{
				scheduler.JobKindOrders:   cfg.Sync.OrdersInterval,
				scheduler.JobKindStocks:   cfg.Sync.StocksInterval,
				scheduler.JobKindFBSReset: cfg.Sync.ResetInterval,
				scheduler.JobKindPurge:    cfg.Sync.PurgeInterval,
			},
		}, a.scheduler, a.accounts, log)
	}

	analyzer := appreplenishment.NewAnalyzer(
		persistence.NewGormDemandReader(db),
		batches,
		replenishment.Params{
			WindowDays:      cfg.Replenishment.WindowDays,
			MinCoverageDays: cfg.Replenishment.MinCoverageDays,
			Channel:         manufacture.CompletionChannel(cfg.Replenishment.Channel),
		},
		log,
	)

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if cfg.HTTP.RateLimit > 0 {
		a.limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimit, cfg.HTTP.RateWindow)
	}
	a.engine, err = router.NewEngine(router.EngineConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		Tracing:        a.tracers.IsEnabled(),
		RateLimiter:    a.limiter,
	}, router.Handlers{
		System:        handler.NewSystemHandler(cfg.App.Name, Version, sqlDB),
		Replenishment: handler.NewReplenishmentHandler(analyzer),
		Accounts:      handler.NewAccountHandler(a.accounts),
		Jobs:          handler.NewJobHandler(a.scheduler, a.accounts),
		Batches:       handler.NewBatchHandler(batches),
	}, log)
	if err != nil {
		return err
	}

	a.server = &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        a.engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	return nil
}

// initTelemetry starts the OpenTelemetry providers and bridges the logger to the collector
func (a *App) initTelemetry(ctx context.Context) error {
	t := a.cfg.Telemetry
	var err error

	a.meters, err = telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           t.Enabled,
		CollectorEndpoint: t.CollectorEndpoint,
		ExportInterval:    t.ExportInterval,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	}, a.log)
	if err != nil {
		return err
	}

	a.tracers, err = telemetry.NewTracerProvider(ctx, telemetry.TracingConfig{
		Enabled:           t.Enabled && t.Traces,
		CollectorEndpoint: t.CollectorEndpoint,
		SamplingRatio:     t.SamplingRatio,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	}, a.log)
	if err != nil {
		return err
	}

	a.logs, err = telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           t.Enabled && t.Logs,
		CollectorEndpoint: t.CollectorEndpoint,
		ServiceName:       t.ServiceName,
		Insecure:          t.Insecure,
	}, a.log)
	if err != nil {
		return err
	}
	a.log = a.logs.Bridge(a.log, logger.ParseLevel(a.cfg.Log.Level))
	return nil
}

func (a *App) createStores() (*cache.Stores, error) {
	if !a.cfg.Redis.Enabled {
		a.log.Info("Redis disabled, dedup store and page cache stay in memory")
		return &cache.Stores{
			Dedup: cache.NewInMemoryDedupStore(),
			Pages: cache.NewInMemoryPageCache(),
		}, nil
	}
	factory := cache.NewStoreFactory(cache.RedisConfig{
		Host:     a.cfg.Redis.Host,
		Port:     a.cfg.Redis.Port,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	},
		cache.WithLogger(a.log),
		cache.WithKeyPrefix(a.cfg.Redis.KeyPrefix+":"),
		cache.WithInMemoryFallback(a.cfg.App.Env != "production"),
	)
	return factory.CreateStores()
}

// Engine returns the HTTP handler of the service
func (a *App) Engine() *gin.Engine {
	return a.engine
}

// Start runs the background workers. The HTTP server is started by Serve.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	if err := a.bus.Start(ctx); err != nil {
		return err
	}
	if err := a.relay.Start(ctx); err != nil {
		return err
	}
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	if a.trigger != nil {
		if err := a.trigger.Start(ctx); err != nil {
			return err
		}
	}
	if a.limiter != nil {
		go a.limiter.Run(ctx)
	}
	return nil
}

// Serve listens until the server is shut down
func (a *App) Serve() error {
	a.log.Info("Starting server", zap.String("addr", a.server.Addr))
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, drains the workers and releases every resource
func (a *App) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if a.trigger != nil {
		if err := a.trigger.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trigger: %w", err))
		}
	}
	if err := a.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	// entries the relay no longer reaches stay in the outbox for the next start
	if err := a.relay.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("outbox relay: %w", err))
	}
	if err := a.bus.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("event bus: %w", err))
	}
	if a.cancel != nil {
		a.cancel()
	}
	errs = append(errs, a.release(ctx))
	return errors.Join(errs...)
}

// release closes the stores and flushes telemetry; it tolerates a partially built App
func (a *App) release(ctx context.Context) error {
	var errs []error
	if a.stores != nil {
		if err := a.stores.Close(); err != nil {
			errs = append(errs, fmt.Errorf("stores: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if a.logs != nil {
		errs = append(errs, a.logs.Shutdown(ctx))
	}
	if a.tracers != nil {
		errs = append(errs, a.tracers.Shutdown(ctx))
	}
	if a.meters != nil {
		errs = append(errs, a.meters.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
