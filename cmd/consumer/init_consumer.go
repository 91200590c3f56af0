package main

import (
	"context"
	"os"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/alifcapital/mqconsumer"
	"github.com/alifcapital/mqconsumer/mqutils"
)

func consumerConfig(c *cli.Context) mqconsumer.ConsumerConfig {
	return mqconsumer.ConsumerConfig{
		RoutingKey:   c.String(flagRoutingKey),
		ExchangeName: mqutils.NewExchangeName(c.String(flagApp), c.String(flagExchange)),
		QueueName:    mqutils.NewQueueName(c.String(flagApp), c.String(flagEnv), c.String(flagQueue)),
	}
}

// consumerMiddlewares builds the handler chain. Panic recovery is always the
// outermost middleware.
func consumerMiddlewares(opentracingOn, otelOn, debug bool, logger zerolog.Logger) []mqutils.Middleware {
	mids := []mqutils.Middleware{
		mqutils.NewPanicRecoveryMiddleware(func(_ context.Context, msg amqp.Delivery, recErr any) {
			logger.Error().
				Interface("panic", recErr).
				Uint64("delivery_tag", msg.DeliveryTag).
				Msg("handler panicked, message already acknowledged")
		}),
	}
	if opentracingOn {
		mids = append(mids, mqutils.NewTracerMiddleware())
		if debug {
			mids = append(mids, mqutils.NewTraceLoggerMiddleware())
		}
	}
	if otelOn {
		mids = append(mids, mqutils.NewOpenTelemetryMiddleware())
		if debug {
			mids = append(mids, mqutils.NewOpenTelemetryTraceLoggerMiddleware())
		}
	}
	return append(mids, mqutils.NewLoggerMiddleware(logger))
}

func consumerOptions(c *cli.Context, logger zerolog.Logger) []mqconsumer.Option {
	mids := consumerMiddlewares(c.Bool(flagTrace), c.Bool(flagOtel), c.Bool(flagDebug), logger)

	return []mqconsumer.Option{
		mqconsumer.WithLogger(logger),
		mqconsumer.WithOutput(os.Stdout),
		mqconsumer.WithHandler(mqutils.Chain(mqconsumer.NewPrinter(os.Stdout), mids...)),
	}
}

func initConsumer(
	c *cli.Context,
	cfg mqconsumer.ConsumerConfig,
	logger zerolog.Logger,
) (*mqconsumer.Consumer, error) {
	return mqconsumer.NewConsumer(cfg, consumerOptions(c, logger)...)
}

// initPool registers one consumer per worker, each on its own queue bound
// with the same exchange and routing key.
func initPool(
	c *cli.Context,
	cfg mqconsumer.ConsumerConfig,
	workers int,
	logger zerolog.Logger,
) (*mqutils.Pool, error) {
	pool := mqutils.NewPool(logger)
	for i := 0; i < workers; i++ {
		workerCfg := cfg
		workerCfg.QueueName = mqutils.NewWorkerQueueName(cfg.QueueName, i)
		workerLogger := logger.With().Int("worker", i).Logger()
		if err := pool.Register(workerCfg, consumerOptions(c, workerLogger)...); err != nil {
			_ = pool.Close()
			return nil, err
		}
	}
	return pool, nil
}
