package config

import "context"

// Config holds all application configuration loaded from environment variables
type Config struct {
	ApplicationConfig
	Http          HttpConfig          `envPrefix:"HTTP_"`
	Elasticsearch ElasticsearchConfig `envPrefix:"ELASTICSEARCH_"`
	Index         IndexConfig         `envPrefix:"INDEX_"`
	Database      DatabaseConfig      `envPrefix:"DATABASE_"`
	Queue         QueueConfig         `envPrefix:"QUEUE_"`
	Indexing      IndexingConfig      `envPrefix:"INDEXING_"`
	Telemetry     TelemetryConfig     `envPrefix:"TELEMETRY_"`
	OIDC          OIDCConfig          `envPrefix:"OIDC_"`
}

type contextKey string

const configKey contextKey = "config"

// WithConfig returns a new context with the provided Config attached
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// GetConfig retrieves the Config from the context.
// It panics if the config is not found in the context.
func GetConfig(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configKey).(*Config)
	if !ok {
		panic("config not found in context")
	}
	return cfg
}
