package mqutils

import (
	"bytes"
	"context"
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/mocktracer"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/alifcapital/mqconsumer"
)

func useMockTracer(t *testing.T) *mocktracer.MockTracer {
	tracer := mocktracer.New()
	prev := opentracing.GlobalTracer()
	opentracing.SetGlobalTracer(tracer)
	t.Cleanup(func() {
		opentracing.SetGlobalTracer(prev)
	})
	return tracer
}

func TestChainOrder(t *testing.T) {
	var calls []string
	mark := func(name string) Middleware {
		return func(next mqconsumer.IConsumer) mqconsumer.IConsumer {
			return mqconsumer.ConsumerFunc(func(ctx context.Context, msg amqp.Delivery) error {
				calls = append(calls, name)
				return next.Consume(ctx, msg)
			})
		}
	}
	h := Chain(
		mqconsumer.ConsumerFunc(func(context.Context, amqp.Delivery) error {
			calls = append(calls, "handler")
			return nil
		}),
		mark("first"),
		mark("second"),
	)

	require.NoError(t, h.Consume(context.Background(), amqp.Delivery{}))
	require.Equal(t, []string{"first", "second", "handler"}, calls)
}

func TestPanicRecoveryMiddleware(t *testing.T) {
	var recovered any
	h := Chain(
		mqconsumer.ConsumerFunc(func(context.Context, amqp.Delivery) error {
			panic("bad body")
		}),
		NewPanicRecoveryMiddleware(func(_ context.Context, _ amqp.Delivery, recErr any) {
			recovered = recErr
		}),
	)

	err := h.Consume(context.Background(), amqp.Delivery{DeliveryTag: 1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad body")
	require.Equal(t, "bad body", recovered)
}

func TestPanicRecoveryMiddlewarePassesThrough(t *testing.T) {
	handlerErr := errors.New("write failed")
	h := Chain(
		mqconsumer.ConsumerFunc(func(context.Context, amqp.Delivery) error {
			return handlerErr
		}),
		NewPanicRecoveryMiddleware(nil),
	)

	require.Equal(t, handlerErr, h.Consume(context.Background(), amqp.Delivery{}))
}

func TestTracerMiddlewareStartsSpan(t *testing.T) {
	tracer := useMockTracer(t)

	var gotSpan opentracing.Span
	h := Chain(
		mqconsumer.ConsumerFunc(func(ctx context.Context, _ amqp.Delivery) error {
			gotSpan = opentracing.SpanFromContext(ctx)
			return nil
		}),
		NewTracerMiddleware(),
	)

	require.NoError(t, h.Consume(context.Background(), amqp.Delivery{
		Exchange:    "ex1",
		RoutingKey:  "rk1",
		MessageId:   "m-1",
		DeliveryTag: 9,
	}))
	require.NotNil(t, gotSpan)

	spans := tracer.FinishedSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "|consume|ex1|rk1", spans[0].OperationName)
	require.Equal(t, ext.SpanKindConsumerEnum, spans[0].Tag(string(ext.SpanKind)))
	require.Equal(t, 0, spans[0].ParentID)
}

func TestTracerMiddlewareRecordsError(t *testing.T) {
	tracer := useMockTracer(t)

	h := Chain(
		mqconsumer.ConsumerFunc(func(context.Context, amqp.Delivery) error {
			return errors.New("boom")
		}),
		NewTracerMiddleware(),
	)

	require.Error(t, h.Consume(context.Background(), amqp.Delivery{}))
	spans := tracer.FinishedSpans()
	require.Len(t, spans, 1)
	require.Equal(t, true, spans[0].Tag(string(ext.Error)))
}

func TestOpenTelemetryMiddlewareCallsNext(t *testing.T) {
	called := false
	h := Chain(
		mqconsumer.ConsumerFunc(func(context.Context, amqp.Delivery) error {
			called = true
			return nil
		}),
		NewOpenTelemetryMiddleware(),
	)

	require.NoError(t, h.Consume(context.Background(), amqp.Delivery{
		Headers: amqp.Table{opentracingData: `{"traceparent":"00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}`},
	}))
	require.True(t, called)
}

func TestTraceLoggerMiddleware(t *testing.T) {
	tracer := useMockTracer(t)

	h := Chain(
		mqconsumer.ConsumerFunc(func(context.Context, amqp.Delivery) error {
			return errors.New("boom")
		}),
		NewTracerMiddleware(),
		NewTraceLoggerMiddleware(),
	)

	require.Error(t, h.Consume(context.Background(), amqp.Delivery{
		Exchange:   "ex1",
		RoutingKey: "rk1",
		MessageId:  "m-2",
		Body:       []byte("hello"),
	}))

	spans := tracer.FinishedSpans()
	require.Len(t, spans, 2)
	logSpan, consumeSpan := spans[0], spans[1]
	require.Equal(t, "LOG_MESSAGE", logSpan.OperationName)
	require.Equal(t, "|consume|ex1|rk1", consumeSpan.OperationName)
	require.Equal(t, consumeSpan.SpanContext.SpanID, logSpan.ParentID)
	require.Equal(t, true, logSpan.Tag(string(ext.Error)))

	var fields []string
	for _, record := range logSpan.Logs() {
		for _, field := range record.Fields {
			fields = append(fields, field.Key+"="+field.ValueString)
		}
	}
	require.Contains(t, fields, "id=m-2")
	require.Contains(t, fields, "body=hello")
}

func TestOpenTelemetryTraceLoggerMiddlewarePassesError(t *testing.T) {
	handlerErr := errors.New("boom")
	h := Chain(
		mqconsumer.ConsumerFunc(func(context.Context, amqp.Delivery) error {
			return handlerErr
		}),
		NewOpenTelemetryMiddleware(),
		NewOpenTelemetryTraceLoggerMiddleware(),
	)

	require.Equal(t, handlerErr, h.Consume(context.Background(), amqp.Delivery{Body: []byte("hello")}))
}

func TestLoggerMiddleware(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := zerolog.New(buf).Level(zerolog.DebugLevel)

	h := Chain(
		mqconsumer.ConsumerFunc(func(context.Context, amqp.Delivery) error {
			return errors.New("boom")
		}),
		NewLoggerMiddleware(logger),
	)

	require.Error(t, h.Consume(context.Background(), amqp.Delivery{
		DeliveryTag: 4,
		RoutingKey:  "rk1",
		Body:        []byte("hello"),
	}))
	require.Contains(t, buf.String(), `"message":"message received"`)
	require.Contains(t, buf.String(), `"delivery_tag":4`)
	require.Contains(t, buf.String(), `"size":5`)
	require.Contains(t, buf.String(), `"message":"message handler failed"`)
}
