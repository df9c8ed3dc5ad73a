package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Load reads configuration from environment variables and optionally from
// env files. Without files, a .env in the working directory is tried.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		// Try to load .env file, but ignore error if it doesn't exist
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad loads the configuration and exits if it fails.
// This is useful for initialization in main() where we want to fail fast.
func MustLoad(files ...string) *Config {
	cfg, err := Load(files...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func (c *Config) validate() error {
	if c.Indexing.BatchSize <= 0 {
		return fmt.Errorf("invalid configuration: INDEXING_BATCH_SIZE must be positive, got %d", c.Indexing.BatchSize)
	}
	if c.Indexing.AcceptedFailedJobs < -1 {
		return fmt.Errorf("invalid configuration: INDEXING_ACCEPTED_FAILED_JOBS must be -1 or greater, got %d", c.Indexing.AcceptedFailedJobs)
	}
	switch c.Queue.Driver {
	case QueueDriverRabbitMQ, QueueDriverBadger:
	default:
		return fmt.Errorf("invalid configuration: unknown QUEUE_DRIVER %q", c.Queue.Driver)
	}
	return nil
}
