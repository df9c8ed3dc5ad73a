package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/domain"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
)

// Executor runs a decoded job.
type Executor interface {
	Execute(ctx context.Context, queue ports.Queue, msg *ports.Message, job domain.Job) (bool, error)
}

// JobManager moves jobs between the queues and the executor.
type JobManager struct {
	queues     ports.QueueManager
	executor   Executor
	jobTimeout time.Duration
	tracker    ports.BuildTracker
	onReserve  func(*ports.Message)
	logger     *slog.Logger
}

// NewJobManager creates a JobManager. A jobTimeout of zero runs jobs
// without a deadline of their own.
func NewJobManager(queues ports.QueueManager, executor Executor, jobTimeout time.Duration) *JobManager {
	return &JobManager{
		queues:     queues,
		executor:   executor,
		jobTimeout: jobTimeout,
		logger:     slog.Default().With("component", "jobmanager"),
	}
}

// OnReserve registers a function called with every reserved message before
// it is executed. Passing nil removes it.
func (m *JobManager) OnReserve(fn func(*ports.Message)) {
	m.onReserve = fn
}

// TrackBatches records indexing batches of a build that end up in the
// failed state, so the alias switch of that build can account for them.
func (m *JobManager) TrackBatches(tracker ports.BuildTracker) {
	m.tracker = tracker
}

// Queue encodes a job and puts it on the named queue.
func (m *JobManager) Queue(ctx context.Context, queueName string, job domain.Job) (string, error) {
	q, err := m.queues.Queue(queueName)
	if err != nil {
		return "", domain.E(domain.KindQueue, "open queue "+queueName, err)
	}

	payload, err := domain.EncodeJob(job)
	if err != nil {
		return "", err
	}

	id, err := q.Enqueue(ctx, payload)
	if err != nil {
		return "", domain.E(domain.KindQueue, "enqueue "+job.Label(), err)
	}

	m.logger.DebugContext(ctx, "queued job", "queue", queueName, "messageID", id, "jobID", job.JobID(), "label", job.Label())
	return id, nil
}

// WaitAndExecute reserves the next message of the named queue and executes
// it. It returns nil, nil when no message arrived within timeout.
//
// A job that fails is reported to the queue, which redelivers it until its
// retry budget is spent. Such failures are returned with KindJobFailed.
// Queue backend problems are returned with KindQueue.
func (m *JobManager) WaitAndExecute(ctx context.Context, queueName string, timeout time.Duration) (*ports.Message, error) {
	q, err := m.queues.Queue(queueName)
	if err != nil {
		return nil, domain.E(domain.KindQueue, "open queue "+queueName, err)
	}

	msg, err := q.Reserve(ctx, timeout)
	if err != nil {
		return nil, domain.E(domain.KindQueue, "reserve", err)
	}
	if msg == nil {
		return nil, nil
	}
	if m.onReserve != nil {
		m.onReserve(msg)
	}

	job, err := domain.DecodeJob(msg.Payload)
	if err != nil {
		return msg, m.fail(ctx, q, msg, nil, err)
	}

	jobCtx := ctx
	if m.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, m.jobTimeout)
		defer cancel()
	}

	ok, err := m.executor.Execute(jobCtx, q, msg, job)
	if err == nil && !ok {
		err = errors.New("job reported failure")
	}
	if err != nil {
		return msg, m.fail(ctx, q, msg, job, err)
	}

	if err := q.Ack(ctx, msg); err != nil {
		return msg, domain.E(domain.KindQueue, "ack", err)
	}
	return msg, nil
}

func (m *JobManager) fail(ctx context.Context, q ports.Queue, msg *ports.Message, job domain.Job, cause error) error {
	dead, err := q.Fail(ctx, msg)
	if err != nil {
		return domain.E(domain.KindQueue, "fail message", errors.Join(cause, err))
	}
	if dead {
		m.trackFailedBatch(ctx, job)
	}
	return domain.E(domain.KindJobFailed, "execute message "+msg.ID, cause)
}

func (m *JobManager) trackFailedBatch(ctx context.Context, job domain.Job) {
	indexing, ok := job.(*domain.IndexingJob)
	if !ok || indexing.IndexPostfix == "" || m.tracker == nil {
		return
	}
	if err := m.tracker.MarkBatchFailed(ctx, indexing.IndexPostfix, indexing.ID); err != nil {
		m.logger.ErrorContext(ctx, "failed to record failed batch",
			"jobID", indexing.ID,
			"indexPostfix", indexing.IndexPostfix,
			"error", err,
		)
	}
}
