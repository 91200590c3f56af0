package mqutils

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	trace2 "go.opentelemetry.io/otel/trace"

	"github.com/alifcapital/mqconsumer"
)

const otelTracerName = "mqconsumer-amqp-tracer"

// Middleware wraps the handler that runs after a delivery is acknowledged.
type Middleware func(next mqconsumer.IConsumer) mqconsumer.IConsumer

// Chain wraps h so that mids[0] runs first.
func Chain(h mqconsumer.IConsumer, mids ...Middleware) mqconsumer.IConsumer {
	for i := len(mids) - 1; i >= 0; i-- {
		h = mids[i](h)
	}
	return h
}

type PanicRecoveryCallback func(ctx context.Context, msg amqp.Delivery, recErr any)

// NewPanicRecoveryMiddleware turns a handler panic into an error, so the
// consume loop stops and the Consumer can still be closed. The message is
// already acknowledged and is not requeued.
func NewPanicRecoveryMiddleware(cb PanicRecoveryCallback) Middleware {
	return func(next mqconsumer.IConsumer) mqconsumer.IConsumer {
		return mqconsumer.ConsumerFunc(func(ctx context.Context, msg amqp.Delivery) (err error) {
			defer func() {
				if recErr := recover(); recErr != nil {
					if cb != nil {
						cb(ctx, msg, recErr)
					}
					err = errors.Errorf("handler panic: %v", recErr)
				}
			}()
			return next.Consume(ctx, msg)
		})
	}
}

// NewTracerMiddleware starts an opentracing span per delivery, continuing the
// trace injected by Publish when present.
func NewTracerMiddleware() Middleware {
	return func(next mqconsumer.IConsumer) mqconsumer.IConsumer {
		return mqconsumer.ConsumerFunc(func(ctx context.Context, msg amqp.Delivery) error {
			var span opentracing.Span
			var tracerCtx context.Context

			spanName := fmt.Sprintf("|consume|%s|%s", msg.Exchange, msg.RoutingKey)
			bagItemsJson, ok := msg.Headers[opentracingData].(string)
			if ok {
				bagItems := map[string]string{}
				_ = json.Unmarshal([]byte(bagItemsJson), &bagItems)
				spanContext, err := opentracing.GlobalTracer().Extract(opentracing.TextMap, opentracing.TextMapCarrier(bagItems))
				if err != nil {
					span = opentracing.StartSpan(spanName, ext.SpanKindConsumer)
				} else {
					span = opentracing.StartSpan(spanName, ext.RPCServerOption(spanContext), ext.SpanKindConsumer)
				}
				tracerCtx = opentracing.ContextWithSpan(ctx, span)
			} else {
				span, tracerCtx = opentracing.StartSpanFromContext(ctx, spanName, ext.SpanKindConsumer)
			}
			defer span.Finish()

			span.LogFields(
				log.String("message_id", msg.MessageId),
				log.Uint64("delivery_tag", msg.DeliveryTag),
			)

			if err := next.Consume(tracerCtx, msg); err != nil {
				ext.LogError(span, err)
				return err
			}
			return nil
		})
	}
}

// NewOpenTelemetryMiddleware is NewTracerMiddleware for OpenTelemetry, using
// W3C trace context carried in the same header.
func NewOpenTelemetryMiddleware() Middleware {
	return func(next mqconsumer.IConsumer) mqconsumer.IConsumer {
		return mqconsumer.ConsumerFunc(func(ctx context.Context, msg amqp.Delivery) error {
			var span trace2.Span
			var tracerCtx context.Context

			tracer := otel.Tracer(otelTracerName)

			spanName := fmt.Sprintf("|consume|%s|%s", msg.Exchange, msg.RoutingKey)
			bagItemsJson, ok := msg.Headers[opentracingData].(string)
			if ok {
				bagItems := map[string]string{}
				_ = json.Unmarshal([]byte(bagItemsJson), &bagItems)

				propagator := propagation.TraceContext{}
				parentCtx := propagator.Extract(ctx, propagation.MapCarrier(bagItems))
				tracerCtx, span = tracer.Start(parentCtx, spanName, trace2.WithSpanKind(trace2.SpanKindConsumer))
			} else {
				tracerCtx, span = tracer.Start(ctx, spanName, trace2.WithSpanKind(trace2.SpanKindConsumer))
			}
			defer span.End()

			span.SetAttributes(
				attribute.String("message_id", msg.MessageId),
				attribute.Int64("delivery_tag", int64(msg.DeliveryTag)),
			)

			if err := next.Consume(tracerCtx, msg); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			return nil
		})
	}
}

// NewTraceLoggerMiddleware records the message id and body on a child span.
func NewTraceLoggerMiddleware() Middleware {
	return func(next mqconsumer.IConsumer) mqconsumer.IConsumer {
		return mqconsumer.ConsumerFunc(func(ctx context.Context, msg amqp.Delivery) error {
			span, newCtx := opentracing.StartSpanFromContext(ctx, "LOG_MESSAGE")
			defer span.Finish()

			span.LogFields(log.String("id", msg.MessageId))
			span.LogFields(log.String("body", string(msg.Body)))

			if err := next.Consume(newCtx, msg); err != nil {
				ext.LogError(span, err)
				return err
			}
			return nil
		})
	}
}

func NewOpenTelemetryTraceLoggerMiddleware() Middleware {
	return func(next mqconsumer.IConsumer) mqconsumer.IConsumer {
		return mqconsumer.ConsumerFunc(func(ctx context.Context, msg amqp.Delivery) error {
			tracer := otel.Tracer(otelTracerName)

			newCtx, span := tracer.Start(ctx, "LOG_MESSAGE", trace2.WithSpanKind(trace2.SpanKindConsumer))
			defer span.End()

			span.SetAttributes(
				attribute.String("id", msg.MessageId),
				attribute.String("body", string(msg.Body)),
			)

			if err := next.Consume(newCtx, msg); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			return nil
		})
	}
}

// NewLoggerMiddleware logs every delivery at debug level.
func NewLoggerMiddleware(logger zerolog.Logger) Middleware {
	return func(next mqconsumer.IConsumer) mqconsumer.IConsumer {
		return mqconsumer.ConsumerFunc(func(ctx context.Context, msg amqp.Delivery) error {
			logger.Debug().
				Uint64("delivery_tag", msg.DeliveryTag).
				Str("exchange", msg.Exchange).
				Str("routing_key", msg.RoutingKey).
				Str("message_id", msg.MessageId).
				Int("size", len(msg.Body)).
				Msg("message received")

			err := next.Consume(ctx, msg)
			if err != nil {
				logger.Error().Err(err).Uint64("delivery_tag", msg.DeliveryTag).Msg("message handler failed")
			}
			return err
		})
	}
}
