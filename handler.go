package mqconsumer

import (
	"context"
	"io"

	amqp "github.com/rabbitmq/amqp091-go"
)

// IConsumer handles a delivery after it has been acknowledged.
// MUST NOT Ack or Nack the message.
type IConsumer interface {
	Consume(ctx context.Context, msg amqp.Delivery) error
}

type ConsumerFunc func(ctx context.Context, msg amqp.Delivery) error

func (f ConsumerFunc) Consume(ctx context.Context, msg amqp.Delivery) error {
	return f(ctx, msg)
}

// NewPrinter writes each message body to w verbatim, one per line.
func NewPrinter(w io.Writer) IConsumer {
	return ConsumerFunc(func(_ context.Context, msg amqp.Delivery) error {
		line := make([]byte, 0, len(msg.Body)+1)
		line = append(line, msg.Body...)
		line = append(line, '\n')
		_, err := w.Write(line)
		return err
	})
}
