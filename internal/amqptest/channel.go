package amqptest

import (
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is a fake *amqp.Channel. Every call is recorded in the broker's
// Journal.
type Channel struct {
	broker *Broker

	mx          sync.Mutex
	closed      bool
	consumerTag string
	deliveries  chan amqp.Delivery
	notify      []chan *amqp.Error
}

func (ch *Channel) Qos(prefetchCount, prefetchSize int, global bool) error {
	ch.broker.Journal.Record("basic.qos %d", prefetchCount)
	return ch.broker.fail("basic.qos")
}

func (ch *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	ch.broker.Journal.Record("queue.declare %s", name)
	if err := ch.broker.fail("queue.declare"); err != nil {
		return amqp.Queue{}, err
	}
	return amqp.Queue{Name: name}, nil
}

func (ch *Channel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	ch.broker.Journal.Record("exchange.declare %s %s", name, kind)
	return ch.broker.fail("exchange.declare")
}

func (ch *Channel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	ch.broker.Journal.Record("queue.bind %s %s %s", name, exchange, key)
	return ch.broker.fail("queue.bind")
}

func (ch *Channel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	ch.broker.Journal.Record("basic.consume %s auto_ack=%t", queue, autoAck)
	if err := ch.broker.fail("basic.consume"); err != nil {
		return nil, err
	}
	ch.mx.Lock()
	ch.consumerTag = consumer
	ch.mx.Unlock()
	return ch.deliveries, nil
}

func (ch *Channel) Ack(tag uint64, multiple bool) error {
	ch.broker.Journal.Record("basic.ack %d multiple=%t", tag, multiple)
	return ch.broker.fail("basic.ack")
}

func (ch *Channel) NotifyClose(c chan *amqp.Error) chan *amqp.Error {
	ch.mx.Lock()
	defer ch.mx.Unlock()
	if ch.closed {
		close(c)
		return c
	}
	ch.notify = append(ch.notify, c)
	return c
}

func (ch *Channel) Close() error {
	ch.mx.Lock()
	closed := ch.closed
	ch.mx.Unlock()
	if closed {
		return amqp.ErrClosed
	}
	ch.broker.Journal.Record("channel.close")
	ch.shutdown(nil)
	return ch.broker.fail("channel.close")
}

// Deliver queues body for the registered consumer with the given delivery
// tag. It is a no-op once the channel is closed.
func (ch *Channel) Deliver(tag uint64, routingKey string, body []byte) {
	ch.mx.Lock()
	defer ch.mx.Unlock()
	if ch.closed {
		return
	}
	ch.deliveries <- amqp.Delivery{
		ConsumerTag: ch.consumerTag,
		DeliveryTag: tag,
		RoutingKey:  routingKey,
		Body:        body,
	}
}

// Fail simulates the broker closing the channel with err.
func (ch *Channel) Fail(err *amqp.Error) {
	ch.broker.Journal.Record("channel.fail %d", err.Code)
	ch.shutdown(err)
}

func (ch *Channel) ConsumerTag() string {
	ch.mx.Lock()
	defer ch.mx.Unlock()
	return ch.consumerTag
}

func (ch *Channel) IsClosed() bool {
	ch.mx.Lock()
	defer ch.mx.Unlock()
	return ch.closed
}

func (ch *Channel) shutdown(err *amqp.Error) {
	ch.mx.Lock()
	defer ch.mx.Unlock()
	if ch.closed {
		return
	}
	ch.closed = true
	for _, c := range ch.notify {
		if err != nil {
			c <- err
		}
		close(c)
	}
	ch.notify = nil
	close(ch.deliveries)
}
