package config

import (
	"fmt"

	"github.com/aws/aws-gamekit-unity-sub001/errors"
)

// Validate checks all configuration values and returns aggregated errors.
func (c *Config) Validate() error {
	return errors.Join(
		c.Native.validate(),
		c.Dispatcher.validate(),
		c.Log.validate(),
		c.Telemetry.validate(),
	)
}

func invalid(format string, args ...any) error {
	return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf(format, args...))
}

func (n *NativeConfig) validate() error {
	if n.MemoryLimitPages > 65536 {
		return invalid("native.memory_limit_pages must be at most 65536, got %d", n.MemoryLimitPages)
	}
	return nil
}

func (d *DispatcherConfig) validate() error {
	var errs []error

	if d.MaxWorkers < 0 {
		errs = append(errs, invalid("dispatcher.max_workers must be >= 0, got %d", d.MaxWorkers))
	}
	if d.DrainTimeout <= 0 {
		errs = append(errs, invalid("dispatcher.drain_timeout must be positive"))
	}
	if d.TickInterval <= 0 {
		errs = append(errs, invalid("dispatcher.tick_interval must be positive"))
	}

	return errors.Join(errs...)
}

func (l *LogConfig) validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return invalid("log.level must be one of: debug, info, warn, error; got %q", l.Level)
	}
}

func (t *TelemetryConfig) validate() error {
	if t.Enabled && t.ExportInterval <= 0 {
		return invalid("telemetry.export_interval must be positive when telemetry is enabled")
	}
	return nil
}
