package main

import (
	"os"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/alifcapital/mqconsumer"
	"github.com/alifcapital/mqconsumer/internal/signals"
	"github.com/alifcapital/mqconsumer/mqutils"
)

const (
	flagBody       = "body"
	flagExchange   = "exchange"
	flagRoutingKey = "routing-key"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("app", "mqpublisher").Logger()

	app := cli.NewApp()
	app.Name = "mqpublisher"
	app.Usage = "Publish one message to an exchange"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:     flagExchange,
			Aliases:  []string{"e"},
			EnvVars:  []string{"EXCHANGE_NAME"},
			Required: true,
		},
		&cli.StringFlag{
			Name:     flagRoutingKey,
			Aliases:  []string{"k"},
			EnvVars:  []string{"ROUTING_KEY"},
			Required: true,
		},
		&cli.StringFlag{
			Name:  flagBody,
			Usage: "Message body, sent verbatim",
			Value: "hello",
		},
	}
	app.Action = func(c *cli.Context) error {
		cfg, err := mqconsumer.GetBrokerConfigFromEnvironment()
		if err != nil {
			return err
		}

		conn, err := amqp.Dial(cfg.URL)
		if err != nil {
			return errors.Wrap(err, "error connecting to broker")
		}
		defer conn.Close()

		ch, err := conn.Channel()
		if err != nil {
			return errors.Wrap(err, "error opening channel")
		}
		defer ch.Close()

		exchange, key := c.String(flagExchange), c.String(flagRoutingKey)
		if err := mqutils.Publish(c.Context, exchange, key, []byte(c.String(flagBody)), ch); err != nil {
			return err
		}
		logger.Info().Str("exchange", exchange).Str("routing_key", key).Msg("message published")
		return nil
	}

	if err := app.RunContext(signals.Context(), os.Args); err != nil {
		logger.Fatal().Err(err).Msg("publish failed")
	}
}
