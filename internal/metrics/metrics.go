package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	otelglobal "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"workbasket/internal/apperr"
)

const meterName = "workbasket/internal/engine"

const (
	operationsName = "workbasket_operations_total"
	denialsName    = "workbasket_authorization_denials_total"
	durationName   = "workbasket_operation_duration_seconds"
)

var (
	AttrOperation = attribute.Key("operation")
	AttrOutcome   = attribute.Key("outcome")
)

// Recorder holds the engine instruments. A nil Recorder records nothing.
type Recorder struct {
	ops      metric.Int64Counter
	denials  metric.Int64Counter
	duration metric.Float64Histogram
}

func New(m metric.Meter) (*Recorder, error) {
	if m == nil {
		m = otelglobal.Meter(meterName)
	}
	ops, err := m.Int64Counter(operationsName, metric.WithDescription("Engine operations by outcome"))
	if err != nil {
		return nil, err
	}
	denials, err := m.Int64Counter(denialsName, metric.WithDescription("Operations refused for missing role or grant"))
	if err != nil {
		return nil, err
	}
	duration, err := m.Float64Histogram(durationName, metric.WithDescription("Engine operation duration in seconds"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &Recorder{ops: ops, denials: denials, duration: duration}, nil
}

// Outcome is "ok" for a nil error, otherwise the error kind.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return apperr.KindOf(err).String()
}

// Operation records one finished engine call.
func (r *Recorder) Operation(ctx context.Context, op string, err error, elapsed time.Duration) {
	if r == nil {
		return
	}
	outcome := Outcome(err)
	attrs := metric.WithAttributes(AttrOperation.String(op), AttrOutcome.String(outcome))
	r.ops.Add(ctx, 1, attrs)
	r.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(AttrOperation.String(op)))
	switch apperr.KindOf(err) {
	case apperr.KindNotAuthorized, apperr.KindNotAuthorizedOnResource:
		r.denials.Add(ctx, 1, attrs)
	}
}

// NewManual returns a Recorder backed by a private provider whose values are
// read on demand through the returned reader.
func NewManual() (*Recorder, *sdkmetric.ManualReader, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	rec, err := New(provider.Meter(meterName))
	if err != nil {
		return nil, nil, err
	}
	return rec, reader, nil
}

// Count is one counter data point.
type Count struct {
	Name      string
	Operation string
	Outcome   string
	Value     int64
}

// Collect reads every counter data point, sorted by name, operation and outcome.
func Collect(ctx context.Context, reader *sdkmetric.ManualReader) ([]Count, error) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}
	var out []Count
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				op, _ := dp.Attributes.Value(AttrOperation)
				outcome, _ := dp.Attributes.Value(AttrOutcome)
				out = append(out, Count{Name: m.Name, Operation: op.AsString(), Outcome: outcome.AsString(), Value: dp.Value})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		if out[i].Operation != out[j].Operation {
			return out[i].Operation < out[j].Operation
		}
		return out[i].Outcome < out[j].Outcome
	})
	return out, nil
}
