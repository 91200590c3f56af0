package mqconsumer

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the part of *amqp.Channel a Consumer drives.
type Channel interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Ack(tag uint64, multiple bool) error
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	Close() error
}

// Connection is the part of *amqp.Connection a Consumer drives.
type Connection interface {
	Channel() (Channel, error)
	Close() error
}

// Dialer opens a broker connection for the given URL.
type Dialer func(url string) (Connection, error)

type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *amqpConnection) Close() error {
	return c.conn.Close()
}

// DialAMQP returns a Dialer backed by amqp091-go using the heartbeat and
// connection name from cfg.
func DialAMQP(cfg BrokerConfig) Dialer {
	return func(url string) (Connection, error) {
		props := amqp.NewConnectionProperties()
		props.SetClientConnectionName(cfg.ConnectionName)

		conn, err := amqp.DialConfig(url, amqp.Config{
			Heartbeat:  cfg.Heartbeat,
			Properties: props,
		})
		if err != nil {
			return nil, err
		}
		return &amqpConnection{conn: conn}, nil
	}
}
