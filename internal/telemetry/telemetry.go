package telemetry

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/imagesof/relay/internal/domain"
)

const serviceName = "imagesof-relay"

var tracer trace.Tracer

type Option func(*config)

type config struct {
	exporter sdktrace.SpanExporter
}

func WithTestExporter() Option {
	return func(c *config) {
		c.exporter = noopExporter{}
	}
}

func WithExporter(exp sdktrace.SpanExporter) Option {
	return func(c *config) {
		c.exporter = exp
	}
}

func Init(opts ...Option) (*sdktrace.TracerProvider, error) {
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	if cfg.exporter == nil {
		endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		exp, err := otlptracegrpc.New(
			context.Background(),
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create OTLP exporter: %w", err)
		}
		cfg.exporter = exp
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(cfg.exporter),
	)
	otel.SetTracerProvider(tp)
	tracer = tp.Tracer(serviceName)
	return tp, nil
}

func Tracer() trace.Tracer {
	if tracer == nil {
		return otel.Tracer(serviceName)
	}
	return tracer
}

func StartConnectSpan(ctx context.Context) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "stream.connect")
}

func StartItemSpan(ctx context.Context, item *domain.Item) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "item.process",
		trace.WithAttributes(
			attribute.String("item.id", item.ID),
			attribute.String("item.subreddit", item.Subreddit),
			attribute.String("item.domain", item.Domain),
		),
	)
}

func StartForwardSpan(ctx context.Context, item *domain.Item, destination string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "platform.forward",
		trace.WithAttributes(
			attribute.String("item.url", item.URL),
			attribute.String("forward.destination", destination),
		),
	)
}

func StartFetchSpan(ctx context.Context, collection, page string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "docstore.fetch",
		trace.WithAttributes(
			attribute.String("doc.collection", collection),
			attribute.String("doc.page", page),
		),
	)
}

type noopExporter struct{}

func (noopExporter) ExportSpans(_ context.Context, _ []sdktrace.ReadOnlySpan) error {
	return nil
}

func (noopExporter) Shutdown(_ context.Context) error { return nil }
