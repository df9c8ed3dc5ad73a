package config

import "time"

// IndexingConfig holds build and worker behaviour.
// AcceptedFailedJobs of -1 switches the alias regardless of failed batches.
type IndexingConfig struct {
	BatchSize                 int           `env:"BATCH_SIZE" envDefault:"500"`
	AcceptedFailedJobs        int           `env:"ACCEPTED_FAILED_JOBS" envDefault:"-1"`
	CleanupIndicesAfterSwitch bool          `env:"CLEANUP_INDICES_AFTER_SWITCH" envDefault:"true"`
	ExcludedNodeTypes         []string      `env:"EXCLUDED_NODE_TYPES" envSeparator:","`
	JobTimeout                time.Duration `env:"JOB_TIMEOUT" envDefault:"5m"`
	Dimensions                string        `env:"DIMENSIONS"`
	EnableLiveAsync           bool          `env:"ENABLE_LIVE_ASYNC" envDefault:"true"`
	IndexAllWorkspaces        bool          `env:"ALL_WORKSPACES" envDefault:"true"`
	BarrierEnabled            bool          `env:"BARRIER_ENABLED" envDefault:"false"`
	BarrierDelay              time.Duration `env:"BARRIER_DELAY" envDefault:"5s"`
	BarrierMaxDeferrals       int           `env:"BARRIER_MAX_DEFERRALS" envDefault:"120"`
}
