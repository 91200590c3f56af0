package mqconsumer

import (
	"io"

	"github.com/rs/zerolog"
)

type Option func(*Consumer)

// WithBrokerConfig skips reading AMQP_* from the environment.
func WithBrokerConfig(cfg BrokerConfig) Option {
	return func(c *Consumer) {
		c.broker = cfg
		c.brokerSet = true
	}
}

func WithDialer(dial Dialer) Option {
	return func(c *Consumer) {
		c.dial = dial
	}
}

// WithOutput sets where status lines and, with the default handler, message
// bodies are written. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(c *Consumer) {
		c.out = w
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Consumer) {
		c.logger = logger
	}
}

// WithHandler replaces the body printer.
func WithHandler(h IConsumer) Option {
	return func(c *Consumer) {
		c.handler = h
	}
}

func WithConsumerTag(tag string) Option {
	return func(c *Consumer) {
		c.tag = tag
	}
}
