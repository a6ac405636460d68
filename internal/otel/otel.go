package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	eventbus "github.com/hanpama/apqgate/internal/eventbus"
	events "github.com/hanpama/apqgate/internal/events"
	reqid "github.com/hanpama/apqgate/internal/reqid"
)

// Setup configures an OTLP trace exporter and attaches span subscribers to
// bus. If endpoint is empty, no telemetry is configured.
func Setup(ctx context.Context, bus *eventbus.Bus, endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	stop := Attach(bus, tp.Tracer("apqgate"))
	return func(ctx context.Context) error {
		stop()
		return tp.Shutdown(ctx)
	}, nil
}

// Attach turns bus events into spans on tracer. Spans of one request are
// correlated by the server generated reqid.Local id; the client visible
// request id is only recorded as an attribute. The returned function detaches
// the subscribers.
func Attach(bus *eventbus.Bus, tracer trace.Tracer) func() {
	s := &subscriber{tracer: tracer}
	return s.register(bus)
}

type subscriber struct {
	tracer        trace.Tracer
	httpSpans     sync.Map // local id -> trace.Span
	gqlSpans      sync.Map // local id -> trace.Span
	upstreamSpans sync.Map // local id -> trace.Span
}

// parent returns ctx carrying the innermost open span for key.
func (s *subscriber) parent(ctx context.Context, key string, maps ...*sync.Map) context.Context {
	for _, m := range maps {
		if v, ok := m.Load(key); ok {
			return trace.ContextWithSpan(ctx, v.(trace.Span))
		}
	}
	return ctx
}

func (s *subscriber) register(bus *eventbus.Bus) func() {
	unsubs := []func(){
		eventbus.On(bus, func(ctx context.Context, e events.HTTPStart) {
			key, ok := reqid.Local(ctx)
			if !ok {
				return
			}
			_, span := s.tracer.Start(ctx, "http.request", trace.WithSpanKind(trace.SpanKindServer))
			span.SetAttributes(
				semconv.HTTPMethodKey.String(e.Request.Method),
				attribute.String("http.target", e.Request.URL.Path),
				attribute.String("request.id", e.RequestID),
			)
			s.httpSpans.Store(key, span)
		}),

		eventbus.On(bus, func(ctx context.Context, e events.HTTPFinish) {
			key, _ := reqid.Local(ctx)
			v, ok := s.httpSpans.LoadAndDelete(key)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
			if e.Status >= 500 {
				span.SetStatus(codes.Error, "")
			}
			span.End()
		}),

		eventbus.On(bus, func(ctx context.Context, e events.PersistedQuery) {
			key, _ := reqid.Local(ctx)
			v, ok := s.httpSpans.Load(key)
			if !ok {
				return
			}
			attrs := []attribute.KeyValue{
				attribute.String("apq.hash", e.Hash),
				attribute.String("apq.outcome", e.Outcome),
			}
			if e.Error != "" {
				attrs = append(attrs, attribute.String("apq.error", e.Error))
			}
			if e.CacheOp != events.CacheOpNone {
				attrs = append(attrs, attribute.String("apq.cache_op", e.CacheOp))
			}
			span := v.(trace.Span)
			span.AddEvent("apq.resolve", trace.WithAttributes(attrs...))
			if e.CacheErr != nil {
				span.RecordError(e.CacheErr)
			}
		}),

		eventbus.On(bus, func(ctx context.Context, e events.GraphQLStart) {
			key, _ := reqid.Local(ctx)
			_, span := s.tracer.Start(s.parent(ctx, key, &s.httpSpans), "graphql.operation")
			span.SetAttributes(
				attribute.String("graphql.operation.name", e.OperationName),
				attribute.String("graphql.operation.type", e.OperationType),
			)
			s.gqlSpans.Store(key, span)
		}),

		eventbus.On(bus, func(ctx context.Context, e events.GraphQLFinish) {
			key, _ := reqid.Local(ctx)
			v, ok := s.gqlSpans.LoadAndDelete(key)
			if !ok {
				return
			}
			span := v.(trace.Span)
			span.SetAttributes(attribute.Int("graphql.error_count", len(e.Errors)))
			span.End()
		}),

		eventbus.On(bus, func(ctx context.Context, e events.UpstreamStart) {
			key, _ := reqid.Local(ctx)
			_, span := s.tracer.Start(s.parent(ctx, key, &s.gqlSpans, &s.httpSpans), "upstream.request",
				trace.WithSpanKind(trace.SpanKindClient))
			span.SetAttributes(
				attribute.String("http.url", e.Endpoint),
				attribute.String("graphql.operation.name", e.OperationName),
			)
			s.upstreamSpans.Store(key, span)
		}),

		eventbus.On(bus, func(ctx context.Context, e events.UpstreamFinish) {
			key, _ := reqid.Local(ctx)
			v, ok := s.upstreamSpans.LoadAndDelete(key)
			if !ok {
				return
			}
			span := v.(trace.Span)
			if e.Status != 0 {
				span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
			}
			if e.Err != nil {
				span.RecordError(e.Err)
				span.SetStatus(codes.Error, e.Err.Error())
			}
			span.End()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
