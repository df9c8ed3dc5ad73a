package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

const metricsNamespace = "content_indexer"

var tracer = otel.Tracer("github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/app")

var (
	// jobsExecuted counts executed jobs by kind and result
	jobsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "jobs_executed_total",
		Help:      "Executed queue jobs by kind and result",
	}, []string{"kind", "result"})

	// jobDuration tracks job execution time
	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Name:      "job_duration_seconds",
		Help:      "Job execution duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
	}, []string{"kind"})

	// recordsProcessed counts records by operation and outcome
	recordsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "records_processed_total",
		Help:      "Records handled by indexing and removal jobs",
	}, []string{"operation", "outcome"})

	// recordsPerSecond is the throughput of the last indexing job
	recordsPerSecond = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Name:      "records_per_second",
		Help:      "Records indexed per second by the last indexing job",
	})

	aliasSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "alias_switches_total",
		Help:      "Alias switch decisions by result",
	}, []string{"result"})

	workerIterations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "worker_iterations_total",
		Help:      "Worker loop iterations by state",
	}, []string{"queue", "state"})

	batchesQueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Name:      "build_batches_queued_total",
		Help:      "Indexing batches queued by builds",
	})
)
