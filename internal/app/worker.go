package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/domain"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
)

// WorkerState is the state of the worker loop.
type WorkerState string

const (
	StateWaiting   WorkerState = "waiting"
	StateExecuting WorkerState = "executing"
	StateSucceeded WorkerState = "succeeded"
	StateFailed    WorkerState = "failed"
	StateStopped   WorkerState = "stopped"
)

// StopReason tells why the worker loop ended.
type StopReason string

const (
	StopExitAfter StopReason = "exit-after"
	StopLimit     StopReason = "limit"
	StopCancelled StopReason = "cancelled"
	StopFatal     StopReason = "fatal"
)

const (
	previewLength     = 50
	queueErrorBackoff = time.Second
)

// JobRunner reserves and executes one job at a time.
type JobRunner interface {
	WaitAndExecute(ctx context.Context, queueName string, timeout time.Duration) (*ports.Message, error)
}

// reserveNotifier is implemented by runners that can report a reserved
// message before executing it.
type reserveNotifier interface {
	OnReserve(fn func(*ports.Message))
}

// WorkerOptions controls one run of the worker loop.
type WorkerOptions struct {
	Queue string
	// ExitAfter stops the loop once this much time has passed. Zero runs
	// until cancelled.
	ExitAfter time.Duration
	// Limit stops the loop after this many executed jobs. Zero is unlimited.
	Limit   int
	Verbose bool
	Out     io.Writer
}

// WorkerResult summarises a finished run.
type WorkerResult struct {
	Executed int
	Failed   int
	Reason   StopReason
}

// Worker runs the reserve, execute, acknowledge loop of one process.
type Worker struct {
	runner       JobRunner
	now          func() time.Time
	errorBackoff time.Duration
	state        WorkerState
	logger       *slog.Logger
}

// NewWorker creates a worker for the given runner.
func NewWorker(runner JobRunner) *Worker {
	return &Worker{
		runner:       runner,
		now:          time.Now,
		errorBackoff: queueErrorBackoff,
		state:        StateWaiting,
		logger:       slog.Default().With("component", "worker"),
	}
}

// State returns the current loop state.
func (w *Worker) State() WorkerState {
	return w.state
}

func (w *Worker) setState(queue string, state WorkerState) {
	w.state = state
	workerIterations.WithLabelValues(queue, string(state)).Inc()
}

// Run processes jobs until an exit condition holds. Exit conditions are
// checked between jobs, never during one. An error with no recognised kind
// stops the loop and is returned.
func (w *Worker) Run(ctx context.Context, opts WorkerOptions) (WorkerResult, error) {
	var result WorkerResult
	start := w.now()
	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	if n, ok := w.runner.(reserveNotifier); ok {
		n.OnReserve(func(*ports.Message) {
			w.setState(opts.Queue, StateExecuting)
		})
		defer n.OnReserve(nil)
	}

	w.logger.InfoContext(ctx, "worker started",
		"queue", opts.Queue,
		"exitAfter", opts.ExitAfter.String(),
		"limit", opts.Limit,
	)

	for {
		if ctx.Err() != nil {
			return w.stop(ctx, opts, result, StopCancelled), nil
		}

		var timeout time.Duration
		if opts.ExitAfter > 0 {
			timeout = max(time.Second, opts.ExitAfter-w.now().Sub(start))
		}

		w.setState(opts.Queue, StateWaiting)
		msg, err := w.runner.WaitAndExecute(ctx, opts.Queue, timeout)

		switch {
		case err != nil && ctx.Err() != nil:
			return w.stop(ctx, opts, result, StopCancelled), nil

		case err != nil:
			kind := domain.KindOf(err)
			if kind != domain.KindJobFailed && kind != domain.KindQueue {
				w.setState(opts.Queue, StateStopped)
				result.Reason = StopFatal
				w.logger.ErrorContext(ctx, "worker stopped on unexpected error", "queue", opts.Queue, "error", err)
				return result, fmt.Errorf("worker stopped: %w", err)
			}

			result.Executed++
			result.Failed++
			w.setState(opts.Queue, StateFailed)
			w.logFailure(ctx, err)

			if kind == domain.KindQueue {
				w.backoff(ctx)
			}

		case msg != nil:
			result.Executed++
			w.setState(opts.Queue, StateSucceeded)
			if opts.Verbose {
				fmt.Fprintf(out, "Successfully executed job %q (%s)\n", msg.ID, preview(msg.Payload))
			}
		}

		if opts.ExitAfter > 0 && w.now().Sub(start) >= opts.ExitAfter {
			return w.stop(ctx, opts, result, StopExitAfter), nil
		}
		if opts.Limit > 0 && result.Executed >= opts.Limit {
			return w.stop(ctx, opts, result, StopLimit), nil
		}
	}
}

func (w *Worker) stop(ctx context.Context, opts WorkerOptions, result WorkerResult, reason StopReason) WorkerResult {
	w.setState(opts.Queue, StateStopped)
	result.Reason = reason
	w.logger.InfoContext(ctx, "worker stopped",
		"queue", opts.Queue,
		"reason", string(reason),
		"executed", result.Executed,
		"failed", result.Failed,
	)
	return result
}

func (w *Worker) logFailure(ctx context.Context, err error) {
	root := domain.RootCause(err)
	if root != nil && root != err {
		w.logger.ErrorContext(ctx, fmt.Sprintf("Indexing job failed: %s. Detailed reason %s", err, root), "error", err)
		return
	}
	w.logger.ErrorContext(ctx, fmt.Sprintf("Indexing job failed: %s", err), "error", err)
}

func (w *Worker) backoff(ctx context.Context) {
	if w.errorBackoff <= 0 {
		return
	}
	timer := time.NewTimer(w.errorBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// preview returns the first bytes of a payload for log output.
func preview(payload []byte) string {
	if len(payload) <= previewLength {
		return string(payload)
	}
	return string(payload[:previewLength]) + "..."
}
