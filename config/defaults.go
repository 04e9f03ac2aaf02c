package config

const defaultMemoryLimitPages = 1024

// defaults returns the values loaded before any file or environment layer.
func defaults() map[string]any {
	return map[string]any{
		"native.library_dir":        "Plugins",
		"native.memory_limit_pages": defaultMemoryLimitPages,

		"dispatcher.max_workers":   0,
		"dispatcher.drain_timeout": "5s",
		"dispatcher.tick_interval": "16ms",

		"log.level":       "info",
		"log.development": false,

		"telemetry.enabled":         false,
		"telemetry.export_interval": "10s",
	}
}
