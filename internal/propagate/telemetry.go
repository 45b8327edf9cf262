package propagate

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/RamXX/plansync/propagate"

// telemetry uses the global providers, which are no-ops unless the host
// process installs real ones.
type telemetry struct {
	tracer trace.Tracer
	levels metric.Int64Counter
	errs   metric.Int64Counter
}

func newTelemetry() telemetry {
	m := otel.Meter(scopeName)
	levels, _ := m.Int64Counter("plansync.propagation.levels",
		metric.WithDescription("Documents rewritten by completion propagation"),
	)
	errs, _ := m.Int64Counter("plansync.propagation.errors",
		metric.WithDescription("Propagation walks that stopped on an error"),
	)
	return telemetry{tracer: otel.Tracer(scopeName), levels: levels, errs: errs}
}

func (t telemetry) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "propagate."+name, trace.WithAttributes(attrs...))
}

func (t telemetry) end(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if t.errs != nil {
			t.errs.Add(context.Background(), 1)
		}
	}
	span.End()
}

func (t telemetry) level(ctx context.Context, level string) {
	if t.levels != nil {
		t.levels.Add(ctx, 1, metric.WithAttributes(attribute.String("level", level)))
	}
	trace.SpanFromContext(ctx).AddEvent("level.written", trace.WithAttributes(attribute.String("level", level)))
}
