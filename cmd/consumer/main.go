package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/alifcapital/mqconsumer/internal/signals"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("app", "mqconsumer").Logger()

	app := cli.NewApp()
	app.Name = "mqconsumer"
	app.Usage = "Bind a queue to an exchange and print every message it receives"
	app.Flags = consumerFlags
	app.Action = func(c *cli.Context) error {
		return run(c, logger)
	}

	if err := app.RunContext(signals.Context(), os.Args); err != nil {
		logger.Fatal().Err(err).Msg("consumer stopped")
	}
}

func run(c *cli.Context, logger zerolog.Logger) error {
	if c.Bool(flagDebug) {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	cfg := consumerConfig(c)
	workers := c.Int(flagWorkers)
	if workers <= 1 {
		consumer, err := initConsumer(c, cfg, logger)
		if err != nil {
			return err
		}
		defer consumer.Close()

		return consumer.StartConsuming(c.Context)
	}

	pool, err := initPool(c, cfg, workers, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	return pool.Run(c.Context)
}
