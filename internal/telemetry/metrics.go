package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// CoordinationMetricsMeterName is the name used for the coordination metrics meter
	CoordinationMetricsMeterName = "github.com/researchportal/datashare-coordinator/coordination"

	// PollMetricsMeterName is the name used for the delivery poll metrics meter
	PollMetricsMeterName = "github.com/researchportal/datashare-coordinator/poller"
)

// CoordinationMetrics holds the OpenTelemetry instruments for coordination rounds
type CoordinationMetrics struct {
	roundsStarted metric.Int64Counter
	decisions     metric.Int64Counter
}

// NewCoordinationMetrics creates a new CoordinationMetrics instance with the given
// meter provider. If provider is nil, it returns nil (no-op metrics).
func NewCoordinationMetrics(provider metric.MeterProvider) (*CoordinationMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(CoordinationMetricsMeterName)

	roundsStarted, err := meter.Int64Counter(
		"dsc_coordination_rounds_started_total",
		metric.WithDescription("Number of coordination rounds started"),
		metric.WithUnit("{round}"),
	)
	if err != nil {
		return nil, err
	}

	decisions, err := meter.Int64Counter(
		"dsc_coordination_decisions_total",
		metric.WithDescription("Number of release and extension decisions recorded"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	return &CoordinationMetrics{
		roundsStarted: roundsStarted,
		decisions:     decisions,
	}, nil
}

// RecordRoundStarted records one started coordination round
func (m *CoordinationMetrics) RecordRoundStarted(ctx context.Context, success bool) {
	if m == nil || m.roundsStarted == nil {
		return
	}

	m.roundsStarted.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("success", success),
	))
}

// RecordDecision records a release or extension decision for a round
func (m *CoordinationMetrics) RecordDecision(ctx context.Context, decision string) {
	if m == nil || m.decisions == nil {
		return
	}

	m.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("decision", decision),
	))
}

// PollMetrics holds the OpenTelemetry instruments for delivery polling
type PollMetrics struct {
	pollDuration     metric.Float64Histogram
	dataSetsReceived metric.Int64Counter
}

// NewPollMetrics creates a new PollMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewPollMetrics(provider metric.MeterProvider) (*PollMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(PollMetricsMeterName)

	pollDuration, err := meter.Float64Histogram(
		"dsc_poll_duration_seconds",
		metric.WithDescription("Duration of delivery poll operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	dataSetsReceived, err := meter.Int64Counter(
		"dsc_data_sets_received_total",
		metric.WithDescription("Number of data-set delivery notifications observed"),
		metric.WithUnit("{data_set}"),
	)
	if err != nil {
		return nil, err
	}

	return &PollMetrics{
		pollDuration:     pollDuration,
		dataSetsReceived: dataSetsReceived,
	}, nil
}

// RecordPoll records the duration and outcome of one poll pass
func (m *PollMetrics) RecordPoll(ctx context.Context, duration time.Duration, success bool) {
	if m == nil || m.pollDuration == nil {
		return
	}

	m.pollDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.Bool("success", success),
	))
}

// RecordDataSets records newly observed delivery notifications
func (m *PollMetrics) RecordDataSets(ctx context.Context, count int64) {
	if m == nil || m.dataSetsReceived == nil {
		return
	}

	m.dataSetsReceived.Add(ctx, count)
}
