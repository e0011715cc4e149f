package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics holds the instruments for the capture and delivery
// pipeline. All methods are nil-safe so components can run without
// telemetry wired.
type PipelineMetrics struct {
	fixesAccepted   metric.Int64Counter
	fixesRejected   metric.Int64Counter
	recordsEnqueued metric.Int64Counter
	recordsSent     metric.Int64Counter
	sendFailures    metric.Int64Counter
}

// NewPipelineMetrics creates the pipeline instruments on the given meter.
func NewPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	m := &PipelineMetrics{}
	var err error

	if m.fixesAccepted, err = meter.Int64Counter("waypost.fixes.accepted",
		metric.WithDescription("Position fixes that passed the capture filter")); err != nil {
		return nil, err
	}
	if m.fixesRejected, err = meter.Int64Counter("waypost.fixes.rejected",
		metric.WithDescription("Position fixes dropped by the capture filter")); err != nil {
		return nil, err
	}
	if m.recordsEnqueued, err = meter.Int64Counter("waypost.records.enqueued",
		metric.WithDescription("Location records written to the delivery queue")); err != nil {
		return nil, err
	}
	if m.recordsSent, err = meter.Int64Counter("waypost.records.sent",
		metric.WithDescription("Location records acknowledged by the endpoint")); err != nil {
		return nil, err
	}
	if m.sendFailures, err = meter.Int64Counter("waypost.records.send_failures",
		metric.WithDescription("Delivery attempts that did not get a 2xx")); err != nil {
		return nil, err
	}
	return m, nil
}

// FixAccepted records one fix surviving the capture filter.
func (m *PipelineMetrics) FixAccepted(ctx context.Context) {
	if m == nil {
		return
	}
	m.fixesAccepted.Add(ctx, 1)
}

// FixRejected records one fix dropped by the capture filter.
func (m *PipelineMetrics) FixRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.fixesRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordEnqueued records one durable queue write.
func (m *PipelineMetrics) RecordEnqueued(ctx context.Context) {
	if m == nil {
		return
	}
	m.recordsEnqueued.Add(ctx, 1)
}

// DrainOutcome records the per-record outcome of one drain pass.
func (m *PipelineMetrics) DrainOutcome(ctx context.Context, sent, failed int) {
	if m == nil {
		return
	}
	if sent > 0 {
		m.recordsSent.Add(ctx, int64(sent))
	}
	if failed > 0 {
		m.sendFailures.Add(ctx, int64(failed))
	}
}

// RegisterQueueDepth exposes the queued-record count as an observable
// gauge, read on the meter's collection interval.
func RegisterQueueDepth(meter metric.Meter, depth func(ctx context.Context) (int64, error)) error {
	gauge, err := meter.Int64ObservableGauge("waypost.queue.depth",
		metric.WithDescription("Records waiting for delivery"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		n, err := depth(ctx)
		if err != nil {
			return err
		}
		o.ObserveInt64(gauge, n)
		return nil
	}, gauge)
	return err
}
