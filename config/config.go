// Package config loads runtime settings for the native runtime, the
// dispatcher and logging. Values are layered: built-in defaults, then an
// optional YAML file, then GAMEKIT_ environment variables.
package config

import "time"

// Config holds all configuration.
type Config struct {
	Native     NativeConfig     `koanf:"native"`
	Dispatcher DispatcherConfig `koanf:"dispatcher"`
	Log        LogConfig        `koanf:"log"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

// NativeConfig configures library loading.
type NativeConfig struct {
	LibraryDir       string `koanf:"library_dir"`
	MemoryLimitPages uint32 `koanf:"memory_limit_pages"`
}

// DispatcherConfig configures the threader.
type DispatcherConfig struct {
	// MaxWorkers bounds concurrently running work; 0 is unbounded.
	MaxWorkers   int           `koanf:"max_workers"`
	DrainTimeout time.Duration `koanf:"drain_timeout"`
	TickInterval time.Duration `koanf:"tick_interval"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `koanf:"level"`
	Development bool   `koanf:"development"`
}

// TelemetryConfig configures metric export.
type TelemetryConfig struct {
	Enabled        bool          `koanf:"enabled"`
	ExportInterval time.Duration `koanf:"export_interval"`
}
