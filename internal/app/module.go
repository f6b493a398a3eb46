// Package app holds the fx providers shared by the worker and the CLI.
package app

import (
	"context"
	"time"

	"github.com/septivank/electricity-billing/internal/anomaly"
	"github.com/septivank/electricity-billing/internal/billing"
	"github.com/septivank/electricity-billing/internal/config"
	"github.com/septivank/electricity-billing/internal/db"
	"github.com/septivank/electricity-billing/internal/ledger"
	"github.com/septivank/electricity-billing/internal/lock"
	"github.com/septivank/electricity-billing/internal/logging"
	"github.com/septivank/electricity-billing/internal/repository"
	"github.com/septivank/electricity-billing/internal/repository/memory"
	mongostore "github.com/septivank/electricity-billing/internal/repository/mongo"
	"github.com/septivank/electricity-billing/internal/service"
	"github.com/septivank/electricity-billing/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides configuration, logging, the selected store and the ledger
// service. Callers supply a service.EventPublisher.
var Module = fx.Module("ledger",
	fx.Provide(
		config.Load,
		ProvideLogger,
		ProvideStore,
		ProvideEngine,
		ProvideLocker,
		ProvideAnomalyDetector,
		ProvideValidator,
		ProvideLedgerService,
	),
)

// ProvideLogger creates the service logger
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
}

// ProvideStore opens the backend named by STORE_DRIVER
func ProvideStore(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (ledger.Store, error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		client, err := db.NewMongoClient(lc, logger, cfg.Mongo.URI)
		if err != nil {
			return nil, err
		}
		store := mongostore.New(client, cfg.Mongo.Database, cfg.Mongo.Transactions)
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return store.Migrate(ctx)
			},
		})
		logger.Info("using mongo store",
			zap.String("database", cfg.Mongo.Database),
			zap.Bool("transactions", cfg.Mongo.Transactions),
		)
		return store, nil
	case config.DriverMemory:
		logger.Warn("using in-memory store, data is lost on exit")
		return memory.New(), nil
	default:
		pool, err := db.NewPool(lc, logger, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		return repository.NewRepository(pool), nil
	}
}

// ProvideEngine creates the billing engine from the configured tariffs
func ProvideEngine(cfg *config.Config) *billing.Engine {
	return billing.NewEngine(
		billing.Rates{Day: cfg.Billing.Tariffs.Day, Night: cfg.Billing.Tariffs.Night},
		billing.Rates{Day: cfg.Billing.ResetValues.Day, Night: cfg.Billing.ResetValues.Night},
	)
}

// ProvideLocker uses Redis when REDIS_ADDR is set so that several processes
// share per-meter locks
func ProvideLocker(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (lock.Locker, error) {
	if cfg.Redis.Addr == "" {
		return lock.NewLocal(), nil
	}

	client, err := lock.NewRedisClient(lc, logger, cfg.Redis.Addr, cfg.Redis.Password)
	if err != nil {
		return nil, err
	}
	return lock.NewRedis(
		client,
		time.Duration(cfg.Lock.TTLSeconds)*time.Second,
		time.Duration(cfg.Lock.WaitSeconds)*time.Second,
		logger,
	), nil
}

// ProvideAnomalyDetector creates a new anomaly detector instance
func ProvideAnomalyDetector(cfg *config.Config) *anomaly.Detector {
	return anomaly.NewDetector(cfg.Anomaly.SpikeThreshold, cfg.Anomaly.MinDataPointsForDetection)
}

// ProvideValidator creates a new validator instance
func ProvideValidator(cfg *config.Config) *validator.Validator {
	return validator.NewValidator(cfg.Validation.TimestampToleranceMinutes)
}

// ProvideLedgerService creates the ledger service
func ProvideLedgerService(
	store ledger.Store,
	engine *billing.Engine,
	locker lock.Locker,
	detector *anomaly.Detector,
	publisher service.EventPublisher,
	cfg *config.Config,
	logger *zap.Logger,
) *service.LedgerService {
	return service.NewLedgerService(store, engine, locker, detector, publisher, cfg.Billing.DecreasePolicy, logger)
}
