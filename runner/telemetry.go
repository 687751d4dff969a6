package runner

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/spetersoncode/agbridge/runner"

// instruments records run metrics through the global MeterProvider.
// Configure it with otel.SetMeterProvider before creating a Runner.
type instruments struct {
	runs        metric.Int64Counter
	failures    metric.Int64Counter
	longRunning metric.Int64Counter
	persisted   metric.Int64Counter
	duration    metric.Float64Histogram
}

func newInstruments() *instruments {
	meter := otel.Meter(instrumentationName)
	in := &instruments{}
	var err error
	if in.runs, err = meter.Int64Counter("agbridge.runs",
		metric.WithDescription("Runs started")); err != nil {
		in.runs = noop.Int64Counter{}
	}
	if in.failures, err = meter.Int64Counter("agbridge.run_failures",
		metric.WithDescription("Runs that ended with RUN_ERROR")); err != nil {
		in.failures = noop.Int64Counter{}
	}
	if in.longRunning, err = meter.Int64Counter("agbridge.long_running_calls",
		metric.WithDescription("Tool calls surfaced to the client for a result")); err != nil {
		in.longRunning = noop.Int64Counter{}
	}
	if in.persisted, err = meter.Int64Counter("agbridge.function_responses_persisted",
		metric.WithDescription("Client tool results written to the session log")); err != nil {
		in.persisted = noop.Int64Counter{}
	}
	if in.duration, err = meter.Float64Histogram("agbridge.run_duration",
		metric.WithDescription("Run duration"), metric.WithUnit("s")); err != nil {
		in.duration = noop.Float64Histogram{}
	}
	return in
}

func (in *instruments) finished(ctx context.Context, start time.Time, code string) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome(code)))
	in.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	if code != "" {
		in.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("code", code)))
	}
}

func outcome(code string) string {
	if code == "" {
		return "finished"
	}
	return "error"
}
