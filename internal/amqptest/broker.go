// Package amqptest provides an in-memory stand-in for a RabbitMQ broker so
// consumers can be exercised without a network.
package amqptest

import (
	"fmt"
	"strings"
	"sync"

	"github.com/alifcapital/mqconsumer"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Journal records broker operations and output lines in call order.
type Journal struct {
	mx      sync.Mutex
	entries []string
}

func (j *Journal) Record(format string, args ...any) {
	j.mx.Lock()
	defer j.mx.Unlock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
}

func (j *Journal) Entries() []string {
	j.mx.Lock()
	defer j.mx.Unlock()
	out := make([]string, len(j.entries))
	copy(out, j.entries)
	return out
}

// Count returns how many entries start with prefix.
func (j *Journal) Count(prefix string) int {
	n := 0
	for _, e := range j.Entries() {
		if strings.HasPrefix(e, prefix) {
			n++
		}
	}
	return n
}

// Writer returns an io.Writer that records every written line as
// "stdout <line>".
func (j *Journal) Writer() *JournalWriter {
	return &JournalWriter{journal: j}
}

type JournalWriter struct {
	journal *Journal
}

func (w *JournalWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimSuffix(string(p), "\n"), "\n") {
		w.journal.Record("stdout %s", line)
	}
	return len(p), nil
}

// Broker hands out fake connections. Failures maps an operation name
// ("dial", "channel", "basic.qos", "queue.declare", "exchange.declare",
// "queue.bind", "basic.consume", "basic.ack", "channel.close") to the error
// it returns.
type Broker struct {
	Journal  *Journal
	Failures map[string]error

	mx          sync.Mutex
	dials       int
	connections []*Connection
}

func NewBroker() *Broker {
	return &Broker{
		Journal:  &Journal{},
		Failures: map[string]error{},
	}
}

func (b *Broker) fail(op string) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.Failures[op]
}

// SetFailure makes op fail with err from now on; a nil err clears it.
func (b *Broker) SetFailure(op string, err error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if err == nil {
		delete(b.Failures, op)
		return
	}
	b.Failures[op] = err
}

// Dial satisfies mqconsumer.Dialer.
func (b *Broker) Dial(url string) (mqconsumer.Connection, error) {
	b.mx.Lock()
	b.dials++
	b.mx.Unlock()
	b.Journal.Record("dial %s", url)
	if err := b.fail("dial"); err != nil {
		return nil, err
	}
	conn := &Connection{broker: b}
	b.mx.Lock()
	b.connections = append(b.connections, conn)
	b.mx.Unlock()
	return conn, nil
}

func (b *Broker) Dials() int {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.dials
}

// LastChannel returns the most recently opened channel, or nil.
func (b *Broker) LastChannel() *Channel {
	b.mx.Lock()
	defer b.mx.Unlock()
	for i := len(b.connections) - 1; i >= 0; i-- {
		if ch := b.connections[i].LastChannel(); ch != nil {
			return ch
		}
	}
	return nil
}

// Connections returns every connection dialed so far.
func (b *Broker) Connections() []*Connection {
	b.mx.Lock()
	defer b.mx.Unlock()
	out := make([]*Connection, len(b.connections))
	copy(out, b.connections)
	return out
}

type Connection struct {
	broker *Broker

	mx       sync.Mutex
	closed   bool
	channels []*Channel
}

func (c *Connection) Channel() (mqconsumer.Channel, error) {
	c.broker.Journal.Record("channel.open")
	if err := c.broker.fail("channel"); err != nil {
		return nil, err
	}
	ch := &Channel{
		broker:     c.broker,
		deliveries: make(chan amqp.Delivery, 64),
	}
	c.mx.Lock()
	c.channels = append(c.channels, ch)
	c.mx.Unlock()
	return ch, nil
}

func (c *Connection) Close() error {
	c.mx.Lock()
	if c.closed {
		c.mx.Unlock()
		return amqp.ErrClosed
	}
	c.closed = true
	channels := c.channels
	c.mx.Unlock()

	c.broker.Journal.Record("connection.close")
	for _, ch := range channels {
		ch.shutdown(nil)
	}
	return nil
}

func (c *Connection) IsClosed() bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.closed
}

// LastChannel returns the most recently opened channel on c, or nil.
func (c *Connection) LastChannel() *Channel {
	c.mx.Lock()
	defer c.mx.Unlock()
	if len(c.channels) == 0 {
		return nil
	}
	return c.channels[len(c.channels)-1]
}
