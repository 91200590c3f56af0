package mqutils

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel/propagation"
)

// Publisher is satisfied by *amqp.Channel.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publish sends body to exchange with routing key, carrying the caller's
// opentracing and OpenTelemetry context in the opentracing_data header.
func Publish(ctx context.Context, exchange, key string, body []byte, publisher Publisher) error {
	return PublishMsg(ctx, exchange, key, NewMessage(uuid.NewString(), body), publisher)
}

func PublishMsg(ctx context.Context, exchange, key string, msg amqp.Publishing, publisher Publisher) error {
	spanName := fmt.Sprintf("|publish|%s|%s", exchange, key)
	span, newCtx := opentracing.StartSpanFromContext(ctx, spanName, ext.SpanKindProducer)
	defer span.Finish()

	span.LogFields(log.String("message_id", msg.MessageId))

	bagItems := map[string]string{}
	if err := span.Tracer().Inject(span.Context(), opentracing.TextMap, opentracing.TextMapCarrier(bagItems)); err != nil {
		ext.LogError(span, err)
		return errors.Wrap(err, "error injecting trace context")
	}
	propagation.TraceContext{}.Inject(newCtx, propagation.MapCarrier(bagItems))

	bagItemsJsonBytes, err := json.Marshal(bagItems)
	if err != nil {
		ext.LogError(span, err)
		return errors.Wrap(err, "error encoding trace context")
	}

	if msg.Headers == nil {
		msg.Headers = amqp.Table{}
	}
	msg.Headers[opentracingData] = string(bagItemsJsonBytes)
	if err := publisher.PublishWithContext(newCtx, exchange, key, false, false, msg); err != nil {
		ext.LogError(span, err)
		return errors.Wrapf(err, "error publishing to exchange %q with key %q", exchange, key)
	}
	return nil
}

// NewMessage wraps a raw body; the consumer never decodes it.
func NewMessage(id string, body []byte) amqp.Publishing {
	return amqp.Publishing{
		Headers:      amqp.Table{},
		ContentType:  "application/octet-stream",
		MessageId:    id,
		Timestamp:    time.Now(),
		DeliveryMode: amqp.Transient,
		Priority:     0,
		Body:         body,
	}
}
