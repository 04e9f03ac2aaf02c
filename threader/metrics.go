package threader

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
)

const meterName = "github.com/aws/aws-gamekit-unity-sub001/threader"

// attrShape labels scheduled work with its call shape.
var attrShape = attribute.Key("gamekit.call_shape")

type metrics struct {
	scheduled        metric.Int64Counter
	completed        metric.Int64Counter
	staleDropped     metric.Int64Counter
	callbackFailures metric.Int64Counter
	outstanding      metric.Int64UpDownCounter
}

func newMetrics(mp metric.MeterProvider, log *zap.Logger) *metrics {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	m, err := buildMetrics(mp.Meter(meterName))
	if err != nil {
		log.Warn("dispatcher metrics unavailable, recording to no-op provider", zap.Error(err))
		m, _ = buildMetrics(noop.NewMeterProvider().Meter(meterName))
	}
	return m
}

func buildMetrics(meter metric.Meter) (*metrics, error) {
	scheduled, err := meter.Int64Counter(
		"gamekit.dispatcher.scheduled",
		metric.WithDescription("Work items submitted to the dispatcher"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	completed, err := meter.Int64Counter(
		"gamekit.dispatcher.completed",
		metric.WithDescription("Work items whose function returned or panicked"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	stale, err := meter.Int64Counter(
		"gamekit.dispatcher.stale_dropped",
		metric.WithDescription("Results discarded because their epoch ended before they were queued"),
		metric.WithUnit("{result}"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"gamekit.dispatcher.callback_failures",
		metric.WithDescription("Update ticks stopped by a panicking callback or work function"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return nil, err
	}

	outstanding, err := meter.Int64UpDownCounter(
		"gamekit.dispatcher.outstanding",
		metric.WithDescription("Work items scheduled but not yet finished"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	return &metrics{
		scheduled:        scheduled,
		completed:        completed,
		staleDropped:     stale,
		callbackFailures: failures,
		outstanding:      outstanding,
	}, nil
}

func (m *metrics) onScheduled(ctx context.Context, shape string) {
	m.scheduled.Add(ctx, 1, metric.WithAttributes(attrShape.String(shape)))
	m.outstanding.Add(ctx, 1)
}

func (m *metrics) onFinished(ctx context.Context, shape string) {
	m.completed.Add(ctx, 1, metric.WithAttributes(attrShape.String(shape)))
	m.outstanding.Add(ctx, -1)
}
