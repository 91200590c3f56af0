package mqconsumer

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	waitingMessage = "[*] Waiting for messages. To exit press CTRL+C"
	closingMessage = "[*] Closing RMQ connection."
)

type State int

const (
	StateUninitialized State = iota
	StateConnected
	StateConsuming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnected:
		return "connected"
	case StateConsuming:
		return "consuming"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Consumer owns one broker connection and one channel. It declares its queue
// and exchange once, binds them with the routing key and acknowledges every
// delivery before handing it to the handler.
//
// A Consumer is not reusable after Close; build a new one to reconnect.
type Consumer struct {
	config    ConsumerConfig
	broker    BrokerConfig
	brokerSet bool

	dial    Dialer
	out     io.Writer
	logger  zerolog.Logger
	handler IConsumer
	tag     string

	mx         sync.Mutex
	state      State
	connection Connection
	channel    Channel
	deliveries <-chan amqp.Delivery
	closeCh    chan *amqp.Error

	queue            amqp.Queue
	queueDeclared    bool
	exchangeDeclared bool
}

// NewConsumer stores cfg and immediately connects. AMQP_URL is read from the
// environment unless WithBrokerConfig is given; it is validated before any
// network call.
func NewConsumer(cfg ConsumerConfig, opts ...Option) (*Consumer, error) {
	c := &Consumer{
		config: cfg,
		out:    os.Stdout,
		logger: zerolog.New(os.Stderr).With().Timestamp().Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.brokerSet {
		if err := c.broker.Validate(); err != nil {
			return nil, err
		}
	} else {
		broker, err := GetBrokerConfigFromEnvironment()
		if err != nil {
			return nil, err
		}
		c.broker = broker
	}
	if c.broker.ExchangeKind == "" {
		c.broker.ExchangeKind = amqp.ExchangeDirect
	}

	if c.dial == nil {
		c.dial = DialAMQP(c.broker)
	}
	if c.handler == nil {
		c.handler = NewPrinter(c.out)
	}
	if c.tag == "" {
		c.tag = "ctag-" + uuid.NewString()
	}
	c.logger = c.logger.With().
		Str("queue", cfg.QueueName).
		Str("exchange", cfg.ExchangeName).
		Str("routing_key", cfg.RoutingKey).
		Logger()

	if err := c.SetupConnection(); err != nil {
		return nil, err
	}
	return c, nil
}

// SetupConnection opens a fresh session, declares the queue and exchange if
// this Consumer has not declared them yet, then binds and registers the
// manual-ack consumer. Binding and registration are repeated on every call.
// A session left over from a previous call is released first, so a failed
// call leaves the Consumer without a session.
func (c *Consumer) SetupConnection() error {
	c.mx.Lock()
	defer c.mx.Unlock()

	switch c.state {
	case StateClosed:
		return amqp.ErrClosed
	case StateConsuming:
		return ErrConsuming
	}
	if err := c.releaseSession(); err != nil {
		c.logger.Warn().Err(err).Msg("error releasing previous broker session")
	}
	c.state = StateUninitialized

	host, port, vhost := c.broker.endpoint()
	addr := fmt.Sprintf("%s:%d", host, port)

	conn, err := c.dial(c.broker.URL)
	if err != nil {
		return NewConnectionError(addr, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return NewConnectionError(addr, errors.Wrap(err, "error opening channel"))
	}

	if err := c.declare(ch); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return err
	}

	deliveries, err := ch.Consume(c.config.QueueName, c.tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return NewChannelError("basic.consume", errors.Wrapf(err, "error consuming queue %q", c.config.QueueName))
	}

	c.connection = conn
	c.channel = ch
	c.deliveries = deliveries
	c.closeCh = ch.NotifyClose(make(chan *amqp.Error, 1))
	c.state = StateConnected

	c.logger.Info().
		Str("host", host).
		Int("port", port).
		Str("vhost", vhost).
		Str("consumer_tag", c.tag).
		Msg("broker session established")
	return nil
}

func (c *Consumer) declare(ch Channel) error {
	if c.broker.Prefetch > 0 {
		if err := ch.Qos(c.broker.Prefetch, 0, false); err != nil {
			return NewChannelError("basic.qos", errors.Wrapf(err, "error setting prefetch %d", c.broker.Prefetch))
		}
	}

	if !c.queueDeclared {
		queue, err := ch.QueueDeclare(c.config.QueueName, false, false, false, false, nil)
		if err != nil {
			return NewChannelError("queue.declare", errors.Wrapf(err, "error declaring queue %q", c.config.QueueName))
		}
		c.queue = queue
		c.queueDeclared = true
	}

	if !c.exchangeDeclared {
		err := ch.ExchangeDeclare(c.config.ExchangeName, c.broker.ExchangeKind, false, false, false, false, nil)
		if err != nil {
			return NewChannelError("exchange.declare", errors.Wrapf(err, "error declaring exchange %q", c.config.ExchangeName))
		}
		c.exchangeDeclared = true
	}

	err := ch.QueueBind(c.config.QueueName, c.config.RoutingKey, c.config.ExchangeName, false, nil)
	if err != nil {
		return NewChannelError(
			"queue.bind",
			errors.Wrapf(err, "error binding queue %q to exchange %q with key %q", c.config.QueueName, c.config.ExchangeName, c.config.RoutingKey),
		)
	}
	return nil
}

// OnMessage acknowledges msg by its own delivery tag and then passes it to the
// handler. The ack happens first, so a handler error loses the message.
func (c *Consumer) OnMessage(ctx context.Context, msg amqp.Delivery) error {
	c.mx.Lock()
	ch := c.channel
	c.mx.Unlock()
	if ch == nil {
		return ErrNotConnected
	}

	if err := ch.Ack(msg.DeliveryTag, false); err != nil {
		return NewAckFailedError(msg, err)
	}
	if err := c.handler.Consume(ctx, msg); err != nil {
		return NewCallbackError(msg, err)
	}
	return nil
}

// StartConsuming blocks, dispatching deliveries to OnMessage. It returns nil
// when ctx is done or Close is called, a *ChannelError when the broker closes
// the channel, and the first OnMessage error otherwise.
//
// When ctx is done or the handler fails the Consumer goes back to
// StateConnected and may consume again. When the channel or the ack fails the
// session is released and the Consumer is left in StateUninitialized until
// SetupConnection succeeds.
func (c *Consumer) StartConsuming(ctx context.Context) error {
	c.mx.Lock()
	if c.state != StateConnected {
		state := c.state
		c.mx.Unlock()
		if state == StateConsuming {
			return ErrConsuming
		}
		return ErrNotConnected
	}
	c.state = StateConsuming
	deliveries, closeCh := c.deliveries, c.closeCh
	c.mx.Unlock()

	fmt.Fprintln(c.out, waitingMessage)
	c.logger.Info().Str("consumer_tag", c.tag).Msg("consuming")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("consume loop stopped")
			c.stopConsuming(false)
			return nil
		case amqpErr, ok := <-closeCh:
			if c.closedByUser() {
				return nil
			}
			c.stopConsuming(true)
			if !ok || amqpErr == nil {
				return NewChannelError("consume", errChannelNotifyDone)
			}
			c.logger.Error().Err(amqpErr).Msg("channel closed by broker")
			return NewChannelError("consume", amqpErr)
		case msg, ok := <-deliveries:
			if c.closedByUser() {
				return nil
			}
			if !ok {
				c.stopConsuming(true)
				return NewChannelError("consume", errDeliveriesClosed)
			}
			if err := c.OnMessage(ctx, msg); err != nil {
				if c.closedByUser() && isSessionGone(err) {
					return nil
				}
				c.logger.Error().Err(err).Uint64("delivery_tag", msg.DeliveryTag).Msg("message handling failed")
				var cbErr *CallbackError
				c.stopConsuming(!errors.As(err, &cbErr))
				return err
			}
		}
	}
}

// stopConsuming leaves StateConsuming. A Consumer closed meanwhile stays
// closed.
func (c *Consumer) stopConsuming(release bool) {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state != StateConsuming {
		return
	}
	if !release {
		c.state = StateConnected
		return
	}
	if err := c.releaseSession(); err != nil {
		c.logger.Warn().Err(err).Msg("error releasing failed broker session")
	}
	c.state = StateUninitialized
}

// isSessionGone reports whether err comes from the session being torn down
// under a running OnMessage.
func isSessionGone(err error) bool {
	return errors.Is(err, ErrNotConnected) || errors.Is(err, amqp.ErrClosed)
}

// Close writes a status line and closes the channel, then the connection.
// It is safe to call while StartConsuming runs in another goroutine. A
// second call returns amqp.ErrClosed.
func (c *Consumer) Close() error {
	c.mx.Lock()
	defer c.mx.Unlock()

	if c.state == StateClosed {
		return amqp.ErrClosed
	}
	c.state = StateClosed

	fmt.Fprintln(c.out, closingMessage)
	err := c.releaseSession()
	c.logger.Info().Msg("broker session closed")
	return err
}

// releaseSession closes the current channel and connection. Callers hold mx.
func (c *Consumer) releaseSession() error {
	var err error
	if c.channel != nil {
		if closeErr := c.channel.Close(); closeErr != nil && !errors.Is(closeErr, amqp.ErrClosed) {
			err = NewChannelError("channel.close", closeErr)
		}
	}
	if c.connection != nil {
		if closeErr := c.connection.Close(); closeErr != nil && !errors.Is(closeErr, amqp.ErrClosed) && err == nil {
			err = NewConnectionError("", errors.Wrap(closeErr, "error closing connection"))
		}
	}
	c.channel = nil
	c.connection = nil
	c.deliveries = nil
	c.closeCh = nil
	return err
}

func (c *Consumer) closedByUser() bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.state == StateClosed
}

func (c *Consumer) State() State {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.state
}

// Config returns a copy of the topology this Consumer was built with.
func (c *Consumer) Config() ConsumerConfig {
	return c.config
}

// Queue returns the queue as reported by the broker at declaration.
func (c *Consumer) Queue() amqp.Queue {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.queue
}

func (c *Consumer) ConsumerTag() string {
	return c.tag
}
