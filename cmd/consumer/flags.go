package main

import "github.com/urfave/cli/v2"

const (
	flagApp        = "app"
	flagDebug      = "debug"
	flagEnv        = "env"
	flagExchange   = "exchange"
	flagOtel       = "otel"
	flagQueue      = "queue"
	flagRoutingKey = "routing-key"
	flagTrace      = "trace"
	flagWorkers    = "workers"
)

var consumerFlags = []cli.Flag{
	&cli.StringFlag{
		Name:     flagRoutingKey,
		Aliases:  []string{"k"},
		Usage:    "Routing key binding the queue to the exchange",
		EnvVars:  []string{"ROUTING_KEY"},
		Required: true,
	},
	&cli.StringFlag{
		Name:     flagExchange,
		Aliases:  []string{"e"},
		Usage:    "Exchange to declare and bind to",
		EnvVars:  []string{"EXCHANGE_NAME"},
		Required: true,
	},
	&cli.StringFlag{
		Name:     flagQueue,
		Aliases:  []string{"q"},
		Usage:    "Queue to declare and consume from",
		EnvVars:  []string{"QUEUE_NAME"},
		Required: true,
	},
	&cli.StringFlag{
		Name:  flagApp,
		Usage: "Owner prefix for exchange and queue names",
	},
	&cli.StringFlag{
		Name:  flagEnv,
		Usage: "Environment segment of the queue name, e.g. prod",
	},
	&cli.IntFlag{
		Name: flagWorkers,
		Usage: "Number of independent consumers; each gets its own connection " +
			"and its own queue, so each receives every message",
		Value: 1,
	},
	&cli.BoolFlag{
		Name:  flagTrace,
		Usage: "Start an opentracing span per message",
	},
	&cli.BoolFlag{
		Name:  flagOtel,
		Usage: "Start an OpenTelemetry span per message",
	},
	&cli.BoolFlag{
		Name:  flagDebug,
		Usage: "Log every delivery; with tracing on, also record bodies on spans",
	},
}
