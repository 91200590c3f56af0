package mqconsumer

import (
	"bytes"
	"context"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

func TestPrinter(t *testing.T) {
	buf := &bytes.Buffer{}
	printer := NewPrinter(buf)

	require.NoError(t, printer.Consume(context.Background(), amqp.Delivery{Body: []byte("hello")}))
	require.NoError(t, printer.Consume(context.Background(), amqp.Delivery{Body: []byte{0xff, 'x'}}))
	require.NoError(t, printer.Consume(context.Background(), amqp.Delivery{}))

	require.Equal(t, "hello\n\xffx\n\n", buf.String())
}
