package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/crosslist/backend/internal/application/importer"
	"github.com/crosslist/backend/internal/application/ingestion"
	appledger "github.com/crosslist/backend/internal/application/ledger"
	"github.com/crosslist/backend/internal/application/platformsync"
	"github.com/crosslist/backend/internal/application/reconciliation"
	"github.com/crosslist/backend/internal/application/recovery"
	"github.com/crosslist/backend/internal/domain/platform"
	"github.com/crosslist/backend/internal/infrastructure/cache"
	"github.com/crosslist/backend/internal/infrastructure/config"
	"github.com/crosslist/backend/internal/infrastructure/lock"
	"github.com/crosslist/backend/internal/infrastructure/logger"
	"github.com/crosslist/backend/internal/infrastructure/marketplace"
	"github.com/crosslist/backend/internal/infrastructure/notify"
	"github.com/crosslist/backend/internal/infrastructure/persistence"
	"github.com/crosslist/backend/internal/infrastructure/scheduler"
	"github.com/crosslist/backend/internal/infrastructure/telemetry"
)

func main() {
	importFile := flag.String("import-file", "", "run a one-shot CSV inventory import from this file and exit")
	importShop := flag.String("import-shop", "", "shop UUID that owns the imported inventory (required with -import-file)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Crosslist sync backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
	)

	// Initialize telemetry
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	meterProvider, err := telemetry.NewMeterProvider(context.Background(), telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()

	loggerProvider, err := telemetry.NewLoggerProvider(context.Background(), telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	defer func() {
		if err := loggerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down logger provider", zap.Error(err))
		}
	}()
	if loggerProvider.IsEnabled() {
		otelCore := telemetry.NewZapOTELCore(telemetry.ZapBridgeConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			LoggerProvider: loggerProvider,
			Level:          zapcore.InfoLevel,
		})
		log = telemetry.NewBridgedLogger(log.Core(), otelCore)
		log.Info("Log export to OTLP collector enabled")
	}

	// Initialize database connection with zap-backed gorm logging
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, logger.MapGormLogLevel(cfg.Log.Level))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	if cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled {
		dbTracing := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
		}, log)
		if err := dbTracing.RegisterOtelGorm(db.DB); err != nil {
			log.Fatal("Failed to register database tracing", zap.Error(err))
		}
		log.Info("Database query tracing enabled")
	}

	// Inventory gauges are polled from the database by the metrics exporter
	if meterProvider.IsEnabled() {
		observer := telemetry.NewGormInventoryObserver(db.DB)
		if err := telemetry.RegisterInventoryObservers(meterProvider.Meter("crosslist.inventory"), observer); err != nil {
			log.Fatal("Failed to register inventory metrics", zap.Error(err))
		}
	}

	// Redis backs both the lock manager and the operation cache
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Error("Error closing redis client", zap.Error(err))
		}
	}()
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal("Failed to connect to redis", zap.Error(err))
	}
	log.Info("Redis connected successfully", zap.String("addr", cfg.Redis.Addr()))

	operationCache, err := cache.NewOperationCacheFactory(cfg.Redis, cache.WithLogger(log)).
		CreateCache(cfg.Ledger.CacheBackend)
	if err != nil {
		log.Fatal("Failed to create operation cache", zap.Error(err))
	}

	lockManager := lock.NewRedisLockManager(redisClient,
		lock.WithPollInterval(cfg.Locking.PollInterval))
	coordinator := lock.NewRedisCoordinator(redisClient,
		lock.WithJobLockTTL(cfg.Locking.JobLockTTL),
		lock.WithCoordinatorLogger(log))

	// Repositories bound per transaction through the scope
	scope := persistence.NewGormTransactionScope(db.DB)

	notifier := notify.NewLogNotifier(log)

	// Marketplace adapters double as order sources for the pull loop
	var adapters []platform.Adapter
	var orderSources []platform.OrderSource
	if cfg.Marketplaces.Ebay.Enabled {
		ebayCfg := marketplace.NewEbayConfig(
			cfg.Marketplaces.Ebay.ClientID,
			cfg.Marketplaces.Ebay.ClientSecret,
			cfg.Marketplaces.Ebay.OAuthToken,
		)
		if cfg.Marketplaces.Ebay.Sandbox {
			ebayCfg = marketplace.NewSandboxEbayConfig(
				cfg.Marketplaces.Ebay.ClientID,
				cfg.Marketplaces.Ebay.ClientSecret,
				cfg.Marketplaces.Ebay.OAuthToken,
			)
		}
		if cfg.Marketplaces.Ebay.MarketplaceID != "" {
			ebayCfg.MarketplaceID = cfg.Marketplaces.Ebay.MarketplaceID
		}
		ebayAdapter, err := marketplace.NewEbayAdapter(ebayCfg)
		if err != nil {
			log.Fatal("Failed to create eBay adapter", zap.Error(err))
		}
		adapters = append(adapters, ebayAdapter)
		orderSources = append(orderSources, ebayAdapter)
		log.Info("eBay adapter registered", zap.Bool("sandbox", cfg.Marketplaces.Ebay.Sandbox))
	}
	if cfg.Marketplaces.Whatnot.Enabled {
		whatnotAdapter, err := marketplace.NewWhatnotAdapter(marketplace.NewWhatnotConfig(
			cfg.Marketplaces.Whatnot.APIToken,
			cfg.Marketplaces.Whatnot.SellerID,
		))
		if err != nil {
			log.Fatal("Failed to create Whatnot adapter", zap.Error(err))
		}
		adapters = append(adapters, whatnotAdapter)
		orderSources = append(orderSources, whatnotAdapter)
		log.Info("Whatnot adapter registered")
	}
	if len(adapters) == 0 {
		log.Warn("No marketplace adapters configured, pushes will fail as unsupported")
	}
	registry := platform.NewRegistry(adapters...)

	// Application services
	ledgerService := appledger.NewService(scope, lockManager, operationCache, notifier, log, appledger.Config{
		LockMaxWait: cfg.Locking.MaxWait,
		LockTTL:     cfg.Locking.TTL,
		CacheTTL:    cfg.Ledger.CacheTTL,
	})
	recoveryService := recovery.NewService(scope, registry, notifier, log,
		recovery.WithCoordinator(coordinator))
	reconciliationService := reconciliation.NewService(ledgerService, scope, registry, notifier, log,
		reconciliation.Config{
			PercentThreshold: cfg.Reconciliation.PercentThreshold,
			AlertThreshold:   cfg.Reconciliation.AlertThreshold,
		},
		reconciliation.WithCoordinator(coordinator))
	ingestionService := ingestion.NewService(scope, ledgerService, operationCache, log)
	importService := importer.NewService(scope, coordinator, log)

	// One-shot import mode runs the import and exits without starting workers
	if *importFile != "" {
		os.Exit(runImport(log, importService, *importShop, *importFile))
	}

	dispatcher := platformsync.NewDispatcher(scope, registry, recoveryService, log, platformsync.Config{
		Workers:     cfg.Sync.Workers,
		QueueSize:   cfg.Sync.QueueSize,
		PushTimeout: cfg.Sync.PushTimeout,
	})
	if err := dispatcher.Start(context.Background()); err != nil {
		log.Fatal("Failed to start sync dispatcher", zap.Error(err))
	}
	log.Info("Platform sync dispatcher started",
		zap.Int("workers", cfg.Sync.Workers),
		zap.Int("queue_size", cfg.Sync.QueueSize),
	)

	// Background schedulers
	var retryPoller *scheduler.RetryPoller
	var reconciliationTrigger *scheduler.ReconciliationTrigger
	var orderSyncTrigger *scheduler.OrderSyncTrigger
	if cfg.Scheduler.Enabled {
		shopDirectory := persistence.NewGormShopDirectory(db.DB)
		if cfg.Recovery.Enabled {
			retryPoller = scheduler.NewRetryPoller(scheduler.RetryPollerConfig{
				PollInterval: cfg.Recovery.PollInterval,
				BatchLimit:   cfg.Recovery.BatchLimit,
			}, recoveryService, log)
			if err := retryPoller.Start(context.Background()); err != nil {
				log.Fatal("Failed to start retry poller", zap.Error(err))
			}
			log.Info("Retry poller started",
				zap.Duration("poll_interval", cfg.Recovery.PollInterval),
				zap.Int("batch_limit", cfg.Recovery.BatchLimit),
			)
		}
		if cfg.Reconciliation.Enabled {
			reconciliationTrigger = scheduler.NewReconciliationTrigger(scheduler.ReconciliationTriggerConfig{
				Interval: cfg.Reconciliation.Interval,
			}, reconciliationService, shopDirectory, log)
			if err := reconciliationTrigger.Start(context.Background()); err != nil {
				log.Fatal("Failed to start reconciliation trigger", zap.Error(err))
			}
			log.Info("Reconciliation trigger started",
				zap.Duration("interval", cfg.Reconciliation.Interval),
			)
		}
		if cfg.OrderSync.Enabled {
			if len(orderSources) == 0 {
				log.Warn("Order sync enabled but no marketplace adapters configured, skipping")
			} else {
				orderSyncTrigger = scheduler.NewOrderSyncTrigger(scheduler.OrderSyncTriggerConfig{
					Interval: cfg.OrderSync.Interval,
					Lookback: cfg.OrderSync.Lookback,
					PageSize: cfg.OrderSync.PageSize,
					MaxPages: cfg.OrderSync.MaxPages,
				}, ingestionService, dispatcher, orderSources, shopDirectory, coordinator, log)
				if err := orderSyncTrigger.Start(context.Background()); err != nil {
					log.Fatal("Failed to start order sync trigger", zap.Error(err))
				}
				log.Info("Order sync trigger started",
					zap.Duration("interval", cfg.OrderSync.Interval),
					zap.Duration("lookback", cfg.OrderSync.Lookback),
				)
			}
		}
	} else {
		log.Warn("Scheduler disabled, no background sweeps will run")
	}

	log.Info("Crosslist sync backend is running")

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.ShutdownTimeout)
	defer cancel()

	if orderSyncTrigger != nil {
		if err := orderSyncTrigger.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping order sync trigger", zap.Error(err))
		}
	}
	if reconciliationTrigger != nil {
		if err := reconciliationTrigger.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping reconciliation trigger", zap.Error(err))
		}
	}
	if retryPoller != nil {
		if err := retryPoller.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping retry poller", zap.Error(err))
		}
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		log.Error("Error stopping sync dispatcher", zap.Error(err))
	}

	log.Info("Shutdown complete")
}

// runImport executes a one-shot CSV inventory import and returns the exit code.
func runImport(log *zap.Logger, svc *importer.Service, shopArg, path string) int {
	if shopArg == "" {
		fmt.Fprintln(os.Stderr, "Error: -import-shop is required with -import-file")
		return 1
	}
	shopID, err := uuid.Parse(shopArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid shop UUID %q: %v\n", shopArg, err)
		return 1
	}
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot open import file: %v\n", err)
		return 1
	}
	defer f.Close()

	result, err := svc.ImportInventory(context.Background(), shopID, f)
	if err != nil {
		log.Error("Inventory import failed", zap.Error(err))
		return 1
	}
	log.Info("Inventory import finished",
		zap.String("shop_id", shopID.String()),
		zap.Int("rows", result.Rows),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)),
	)
	for _, rowErr := range result.Errors {
		log.Warn("Import row rejected", zap.Int("line", rowErr.Line), zap.String("reason", rowErr.Message))
	}
	if len(result.Errors) > 0 {
		return 2
	}
	return 0
}
