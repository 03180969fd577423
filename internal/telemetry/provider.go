// Package telemetry records traces and metrics for journal consumption
// and instruments the HTTP transport the client uses.
//
// A nil *Recorder is valid and records nothing.
package telemetry

import (
	"context"
	"runtime/debug"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/jpalmerr/journalwatch"

// Provider supplies the OpenTelemetry providers a Recorder is built from.
// Nil fields fall back to the global providers.
type Provider struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Recorder records spans and counters for one client.
type Recorder struct {
	tracer trace.Tracer

	polls   metric.Int64Counter
	events  metric.Int64Counter
	errors  metric.Int64Counter
	retries metric.Int64Counter
}

// Recorder returns a new Recorder. attrs are attached to the
// instrumentation scope.
func (p Provider) Recorder(attrs ...attribute.KeyValue) *Recorder {
	tp := p.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := p.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	meter := mp.Meter(
		instrumentationName,
		meterVersion,
		metric.WithInstrumentationAttributes(attrs...),
	)

	return &Recorder{
		tracer: tp.Tracer(
			instrumentationName,
			tracerVersion,
			trace.WithInstrumentationAttributes(attrs...),
		),
		polls:   counter(meter, "journalwatch.polls", "{poll}", "The number of journal pages requested."),
		events:  counter(meter, "journalwatch.events", "{event}", "The number of events delivered to handlers."),
		errors:  counter(meter, "journalwatch.errors", "{error}", "The number of failed operations."),
		retries: counter(meter, "journalwatch.retries", "{retry}", "The number of retried HTTP attempts."),
	}
}

func counter(m metric.Meter, name, unit, desc string) metric.Int64Counter {
	c, err := m.Int64Counter(
		name,
		metric.WithUnit(unit),
		metric.WithDescription(desc),
	)
	if err != nil {
		otel.Handle(err)
	}
	return c
}

// StartSpan starts a client span. On a nil Recorder it returns ctx and the
// span already carried by ctx, which is a no-op span unless the caller
// started one.
func (r *Recorder) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if r == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return r.tracer.Start(
		ctx,
		name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

// Poll counts one page request against the journal.
func (r *Recorder) Poll(ctx context.Context, attrs ...attribute.KeyValue) {
	if r == nil || r.polls == nil {
		return
	}
	r.polls.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Events counts n delivered events.
func (r *Recorder) Events(ctx context.Context, n int, attrs ...attribute.KeyValue) {
	if r == nil || r.events == nil || n <= 0 {
		return
	}
	r.events.Add(ctx, int64(n), metric.WithAttributes(attrs...))
}

// Retry counts one retried attempt of op.
func (r *Recorder) Retry(ctx context.Context, op string) {
	if r == nil || r.retries == nil {
		return
	}
	r.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}

// Error counts a failure of the given kind and marks span as failed.
func (r *Recorder) Error(ctx context.Context, span trace.Span, kind string, err error) {
	if err == nil {
		return
	}
	Fail(span, err)
	if r == nil || r.errors == nil {
		return
	}
	r.errors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// Fail marks span as failed without counting the error.
func Fail(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

var (
	tracerVersion trace.TracerOption
	meterVersion  metric.MeterOption
)

func init() {
	version := "unknown"

	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Path == instrumentationName && info.Main.Version != "" {
			version = info.Main.Version
		}
		for _, dep := range info.Deps {
			if dep.Path == instrumentationName {
				version = dep.Version
				break
			}
		}
	}

	tracerVersion = trace.WithInstrumentationVersion(version)
	meterVersion = metric.WithInstrumentationVersion(version)
}
