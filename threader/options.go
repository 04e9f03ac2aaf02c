package threader

import (
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Option configures a Dispatcher.
type Option func(*options)

type options struct {
	logger        *zap.Logger
	meterProvider metric.MeterProvider
	maxWorkers    int
}

// WithLogger sets the dispatcher's logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMeterProvider sets the provider used for dispatcher metrics.
// Without it the dispatcher records to a no-op provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithMaxWorkers bounds how many work functions run at once.
// n <= 0 means unbounded, which is the default.
func WithMaxWorkers(n int) Option {
	return func(o *options) {
		o.maxWorkers = n
	}
}
