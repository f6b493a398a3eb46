package main

import (
	"context"

	"github.com/septivank/electricity-billing/internal/config"
	"github.com/septivank/electricity-billing/internal/httpserver"
	"github.com/septivank/electricity-billing/internal/mq"
	"github.com/septivank/electricity-billing/internal/service"
	"github.com/septivank/electricity-billing/internal/validator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func startWorker(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	processor *service.ProcessorService,
) (*mq.Consumer, error) {
	// Create context for consumer that will be cancelled on shutdown
	ctx, cancel := context.WithCancel(context.Background())

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:       conn,
		Queue:            cfg.RabbitMQ.CommandQueue,
		DLQQueue:         cfg.RabbitMQ.DLQQueue,
		Exchange:         cfg.RabbitMQ.CommandExchange,
		RoutingKey:       cfg.RabbitMQ.CommandRoutingKey,
		PrefetchCount:    cfg.RabbitMQ.PrefetchCount,
		Logger:           logger,
		MessageProcessor: processor.ProcessMessage,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting worker consumer",
				zap.String("queue", cfg.RabbitMQ.CommandQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			return consumer.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			logger.Info("worker stopped gracefully")
			return nil
		},
	})

	return consumer, nil
}

func startHTTPServer(lc fx.Lifecycle, cfg *config.Config, handler *httpserver.Handler, logger *zap.Logger) *httpserver.Server {
	return httpserver.NewServer(lc, cfg.ServicePort, handler, logger)
}

// ProvideHTTPHandler creates the API handler
func ProvideHTTPHandler(ledger *service.LedgerService, logger *zap.Logger) *httpserver.Handler {
	return httpserver.NewHandler(ledger, logger)
}

// ProvideProcessorService creates a new processor service instance
func ProvideProcessorService(
	ledger *service.LedgerService,
	validator *validator.Validator,
	logger *zap.Logger,
) *service.ProcessorService {
	return service.NewProcessorService(ledger, validator, logger)
}

// ProvidePublisher creates the event publisher and closes it on shutdown
func ProvidePublisher(lc fx.Lifecycle, conn *mq.Connection, cfg *config.Config, logger *zap.Logger) (*mq.Publisher, error) {
	publisher, err := mq.NewPublisher(mq.PublisherConfig{
		Connection:           conn,
		Exchange:             cfg.RabbitMQ.EventsExchange,
		RegisteredRoutingKey: cfg.RabbitMQ.RegisteredRoutingKey,
		RecordedRoutingKey:   cfg.RabbitMQ.RecordedRoutingKey,
		Logger:               logger,
	})
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

// ProvideMQConnection creates a new RabbitMQ connection instance
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	if err := cfg.RequireRabbitMQ(); err != nil {
		return nil, err
	}
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}
