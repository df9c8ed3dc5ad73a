package config

// TelemetryConfig holds tracing configuration
type TelemetryConfig struct {
	// Tracing selects the span exporter: "none" or "stdout".
	Tracing     string `env:"TRACING" envDefault:"none"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"content-queue-indexer"`
}

// TracingEnabled returns true if spans should be exported
func (c *TelemetryConfig) TracingEnabled() bool {
	return c.Tracing != "" && c.Tracing != "none"
}
