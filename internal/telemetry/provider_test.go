package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestRecorder(t *testing.T) (*Recorder, *sdkmetric.ManualReader, *tracetest.SpanRecorder) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	spans := tracetest.NewSpanRecorder()

	p := Provider{
		MeterProvider:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		TracerProvider: sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans)),
	}
	return p.Recorder(attribute.String("org", "test-org")), reader, spans
}

// sum returns the total of the int64 counter called name.
func sum(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			data, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("%s: data is %T, want metricdata.Sum[int64]", name, m.Data)
			}
			for _, dp := range data.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestRecorder_Counters(t *testing.T) {
	r, reader, _ := newTestRecorder(t)
	ctx := context.Background()

	r.Poll(ctx)
	r.Poll(ctx)
	r.Events(ctx, 3)
	r.Events(ctx, 0)
	r.Retry(ctx, "send")
	r.Error(ctx, nil, "network", errors.New("boom"))
	r.Error(ctx, nil, "network", nil)

	tests := []struct {
		name string
		want int64
	}{
		{"journalwatch.polls", 2},
		{"journalwatch.events", 3},
		{"journalwatch.retries", 1},
		{"journalwatch.errors", 1},
	}

	for _, tt := range tests {
		if got := sum(t, reader, tt.name); got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestRecorder_Spans(t *testing.T) {
	r, _, spans := newTestRecorder(t)

	ctx, span := r.StartSpan(context.Background(), "journal.fetch", attribute.String("url", "https://example.com/j"))
	r.Error(ctx, span, "transient", errors.New("502 Bad Gateway"))
	span.End()

	ended := spans.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}

	got := ended[0]
	if got.Name() != "journal.fetch" {
		t.Errorf("span name = %q, want %q", got.Name(), "journal.fetch")
	}
	if got.Status().Code != codes.Error {
		t.Errorf("span status = %v, want Error", got.Status().Code)
	}
	if len(got.Events()) == 0 {
		t.Error("span has no events, want a recorded error")
	}
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	ctx := context.Background()

	ctx, span := r.StartSpan(ctx, "noop")
	r.Poll(ctx)
	r.Events(ctx, 10)
	r.Retry(ctx, "fetch")
	r.Error(ctx, span, "unknown", errors.New("ignored"))
	span.End()
}

func TestProvider_DefaultsToGlobal(t *testing.T) {
	if r := (Provider{}).Recorder(); r == nil {
		t.Fatal("Recorder() = nil")
	}
}
