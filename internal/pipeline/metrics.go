package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/faxd/internal/pipeline"

// Metrics holds pipeline-level instruments.
type Metrics struct {
	meter              metric.Meter
	logger             *zap.Logger
	runsTotal          metric.Int64Counter
	runDur             metric.Float64Histogram
	fieldsBySource     metric.Int64Counter
	correctionsSaved   metric.Int64Counter
	correctionLookupMs metric.Float64Histogram
}

// NewMetrics creates pipeline metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.runsTotal, err = m.meter.Int64Counter(
		"faxd.pipeline.runs_total",
		metric.WithDescription("Total pipeline runs labeled by outcome (ok, canceled, invalid)."),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		m.logger.Warn("failed to create runs counter", zap.Error(err))
	}

	m.runDur, err = m.meter.Float64Histogram(
		"faxd.pipeline.run_duration_seconds",
		metric.WithDescription("End-to-end pipeline run duration in seconds. Use histogram_quantile for P50/P95/P99."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0),
	)
	if err != nil {
		m.logger.Warn("failed to create run duration histogram", zap.Error(err))
	}

	m.fieldsBySource, err = m.meter.Int64Counter(
		"faxd.pipeline.fields_total",
		metric.WithDescription("Resolved fields labeled by field name and source (llm, correction, unavailable)."),
		metric.WithUnit("{field}"),
	)
	if err != nil {
		m.logger.Warn("failed to create fields counter", zap.Error(err))
	}

	m.correctionsSaved, err = m.meter.Int64Counter(
		"faxd.pipeline.corrections_saved_total",
		metric.WithDescription("Operator corrections persisted to the store, labeled by field."),
		metric.WithUnit("{correction}"),
	)
	if err != nil {
		m.logger.Warn("failed to create corrections counter", zap.Error(err))
	}

	m.correctionLookupMs, err = m.meter.Float64Histogram(
		"faxd.pipeline.correction_lookup_duration_ms",
		metric.WithDescription("Per-field correction store lookup latency in milliseconds."),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.logger.Warn("failed to create lookup histogram", zap.Error(err))
	}
}

func (m *Metrics) recordRun(ctx context.Context, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	if m.runsTotal != nil {
		m.runsTotal.Add(ctx, 1, attrs)
	}
	if m.runDur != nil {
		m.runDur.Record(ctx, dur.Seconds(), attrs)
	}
}

func (m *Metrics) recordField(ctx context.Context, field, source string) {
	if m == nil || m.fieldsBySource == nil {
		return
	}
	m.fieldsBySource.Add(ctx, 1, metric.WithAttributes(
		attribute.String("field", field),
		attribute.String("source", source),
	))
}

func (m *Metrics) recordCorrectionSaved(ctx context.Context, field string) {
	if m == nil || m.correctionsSaved == nil {
		return
	}
	m.correctionsSaved.Add(ctx, 1, metric.WithAttributes(attribute.String("field", field)))
}

func (m *Metrics) recordLookup(ctx context.Context, field string, dur time.Duration) {
	if m == nil || m.correctionLookupMs == nil {
		return
	}
	m.correctionLookupMs.Record(ctx, float64(dur.Microseconds())/1000.0,
		metric.WithAttributes(attribute.String("field", field)))
}
