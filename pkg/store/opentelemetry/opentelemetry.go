// Package opentelemetry emits observation records as spans to an OTLP
// collector. Every record becomes an "observers.add" span under a root
// "observers.init" span that lives as long as the store.
package opentelemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.31.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/cfahlgren1/observers/pkg/record"
	"github.com/cfahlgren1/observers/pkg/store"
)

const (
	// TracerName is the instrumentation scope of every span.
	TracerName = "huggingface.co/observers"

	InitSpanName = "observers.init"
	AddSpanName  = "observers.add"
)

// Config configures the trace sink.
type Config struct {
	// ServiceName is the resource service name, "observers" by default.
	ServiceName    string
	ServiceVersion string

	// Exporter overrides the OTLP gRPC exporter, which otherwise reads the
	// standard OTEL_EXPORTER_OTLP_* environment.
	Exporter sdktrace.SpanExporter

	// Endpoint and Insecure override the environment when set.
	Endpoint string
	Insecure bool

	// Headers are sent with every export request.
	Headers map[string]string

	// Synchronous exports each span as it ends instead of batching.
	Synchronous bool

	Logger *slog.Logger
}

// Store implements store.Store on an OpenTelemetry tracer provider.
type Store struct {
	provider *sdktrace.TracerProvider
	exporter *failureTracker
	tracer   trace.Tracer
	rootCtx  context.Context
	rootSpan trace.Span
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Connect builds the tracer provider and starts the root span.
func Connect(ctx context.Context, c Config) (*Store, error) {
	if c.ServiceName == "" {
		c.ServiceName = "observers"
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	exporter := c.Exporter
	if exporter == nil {
		var err error
		exporter, err = newExporter(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(c.ServiceName)}
	if c.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(c.ServiceVersion))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenTelemetry resource: %w", err)
	}

	tracked := &failureTracker{SpanExporter: exporter}
	var processor sdktrace.SpanProcessor
	if c.Synchronous {
		processor = sdktrace.NewSimpleSpanProcessor(tracked)
	} else {
		processor = sdktrace.NewBatchSpanProcessor(tracked)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(processor),
	)
	tracer := tp.Tracer(TracerName)

	rootCtx, rootSpan := tracer.Start(context.WithoutCancel(ctx), InitSpanName)
	rootSpan.SetAttributes(attribute.Bool("connected", true))

	spanCtx := rootSpan.SpanContext()
	c.Logger.Debug("initialized OpenTelemetry store",
		"trace_id", spanCtx.TraceID().String(),
		"span_id", spanCtx.SpanID().String(),
	)

	return &Store{
		provider: tp,
		exporter: tracked,
		tracer:   tracer,
		rootCtx:  rootCtx,
		rootSpan: rootSpan,
		logger:   c.Logger,
	}, nil
}

func newExporter(ctx context.Context, c Config) (sdktrace.SpanExporter, error) {
	var opts []otlptracegrpc.Option
	if c.Endpoint != "" {
		opts = append(opts, otlptracegrpc.WithEndpoint(c.Endpoint))
	}
	if c.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if len(c.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(c.Headers))
	}
	return otlptracegrpc.New(ctx, opts...)
}

// Add records rec as a child span of the root span.
func (s *Store) Add(_ context.Context, rec record.Record) error {
	if rec == nil {
		return store.ErrNilRecord
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}

	_, span := s.tracer.Start(s.rootCtx, AddSpanName)
	defer span.End()

	span.SetAttributes(Attributes(rec)...)
	return nil
}

// Close ends the root span and flushes the provider. It fails when any span
// export failed during the store's lifetime, since the processors only report
// those errors to the global otel handler.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	s.rootSpan.End()
	ctx := context.Background()
	flushErr := s.provider.ForceFlush(ctx)
	shutdownErr := s.provider.Shutdown(ctx)
	if exportErr := s.exporter.failure(); exportErr != nil {
		return errors.Join(fmt.Errorf("exporting spans: %w", exportErr), shutdownErr)
	}
	return errors.Join(flushErr, shutdownErr)
}

// failureTracker remembers the first export error of the wrapped exporter.
type failureTracker struct {
	sdktrace.SpanExporter

	mu  sync.Mutex
	err error
}

func (f *failureTracker) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	err := f.SpanExporter.ExportSpans(ctx, spans)
	if err != nil {
		f.mu.Lock()
		if f.err == nil {
			f.err = err
		}
		f.mu.Unlock()
	}
	return err
}

func (f *failureTracker) failure() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}
