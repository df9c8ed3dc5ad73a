package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/domain"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnerStep struct {
	msg *ports.Message
	err error
}

// scriptedRunner replays steps and then reports an empty queue
type scriptedRunner struct {
	steps    []runnerStep
	timeouts []time.Duration
	onStep   func()
}

func (r *scriptedRunner) WaitAndExecute(ctx context.Context, queueName string, timeout time.Duration) (*ports.Message, error) {
	r.timeouts = append(r.timeouts, timeout)
	if r.onStep != nil {
		r.onStep()
	}
	if len(r.steps) == 0 {
		return nil, nil
	}
	step := r.steps[0]
	r.steps = r.steps[1:]
	return step.msg, step.err
}

func newTestWorker(runner JobRunner) *Worker {
	w := NewWorker(runner)
	w.errorBackoff = 0
	return w
}

func okStep(id string) runnerStep {
	return runnerStep{msg: &ports.Message{ID: id, Payload: []byte(`{"kind":"indexing"}`)}}
}

func TestWorker_StopsAtLimit(t *testing.T) {
	runner := &scriptedRunner{steps: []runnerStep{okStep("1"), okStep("2"), okStep("3"), okStep("4")}}

	result, err := newTestWorker(runner).Run(context.Background(), WorkerOptions{Queue: "batch", Limit: 3})

	require.NoError(t, err)
	assert.Equal(t, WorkerResult{Executed: 3, Reason: StopLimit}, result)
	assert.Len(t, runner.steps, 1)
	assert.Equal(t, time.Duration(0), runner.timeouts[0], "no exit-after means waiting indefinitely")
}

func TestWorker_ContinuesAfterJobFailure(t *testing.T) {
	jobErr := domain.E(domain.KindJobFailed, "execute message 2", domain.E(domain.KindUnknown, "bulk", errors.New("mapper_parsing_exception")))
	queueErr := domain.E(domain.KindQueue, "reserve", errors.New("connection reset"))
	runner := &scriptedRunner{steps: []runnerStep{
		okStep("1"),
		{msg: &ports.Message{ID: "2"}, err: jobErr},
		{err: queueErr},
		okStep("4"),
	}}

	result, err := newTestWorker(runner).Run(context.Background(), WorkerOptions{Queue: "batch", Limit: 4})

	require.NoError(t, err)
	assert.Equal(t, 4, result.Executed)
	assert.Equal(t, 2, result.Failed)
	assert.Equal(t, StopLimit, result.Reason)
}

func TestWorker_StopsOnUnexpectedError(t *testing.T) {
	fatal := errors.New("out of file descriptors")
	runner := &scriptedRunner{steps: []runnerStep{okStep("1"), {err: fatal}, okStep("3")}}
	w := newTestWorker(runner)

	result, err := w.Run(context.Background(), WorkerOptions{Queue: "batch"})

	require.Error(t, err)
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, StopFatal, result.Reason)
	assert.Equal(t, 1, result.Executed)
	assert.Equal(t, StateStopped, w.State())
}

func TestWorker_ExitAfter(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	runner := &scriptedRunner{}
	runner.onStep = func() { clock = clock.Add(4 * time.Second) }

	w := newTestWorker(runner)
	w.now = func() time.Time { return clock }

	result, err := w.Run(context.Background(), WorkerOptions{Queue: "batch", ExitAfter: 10 * time.Second})

	require.NoError(t, err)
	assert.Equal(t, StopExitAfter, result.Reason)
	assert.Equal(t, 0, result.Executed)
	assert.Equal(t, []time.Duration{10 * time.Second, 6 * time.Second, 2 * time.Second}, runner.timeouts)
}

func TestWorker_ExitAfterWaitsAtLeastOneSecond(t *testing.T) {
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	runner := &scriptedRunner{}
	runner.onStep = func() { clock = clock.Add(1900 * time.Millisecond) }

	w := newTestWorker(runner)
	w.now = func() time.Time { return clock }

	_, err := w.Run(context.Background(), WorkerOptions{Queue: "batch", ExitAfter: 2 * time.Second})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Second, time.Second}, runner.timeouts)
}

func TestWorker_VerboseOutput(t *testing.T) {
	long := strings.Repeat("x", 80)
	runner := &scriptedRunner{steps: []runnerStep{
		{msg: &ports.Message{ID: "short", Payload: []byte(`{"kind":"removal"}`)}},
		{msg: &ports.Message{ID: "long", Payload: []byte(long)}},
	}}
	var out bytes.Buffer

	_, err := newTestWorker(runner).Run(context.Background(), WorkerOptions{Queue: "batch", Limit: 2, Verbose: true, Out: &out})

	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `Successfully executed job "short" ({"kind":"removal"})`, lines[0])
	assert.Equal(t, `Successfully executed job "long" (`+strings.Repeat("x", 50)+`...)`, lines[1])
}

func TestWorker_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &scriptedRunner{steps: []runnerStep{okStep("1")}}
	runner.onStep = func() {
		if len(runner.steps) == 0 {
			cancel()
		}
	}

	result, err := newTestWorker(runner).Run(ctx, WorkerOptions{Queue: "batch"})

	require.NoError(t, err)
	assert.Equal(t, StopCancelled, result.Reason)
	assert.Equal(t, 1, result.Executed)
}

func TestWorker_ReportsExecutingState(t *testing.T) {
	queues := newMemQueueManager(0)
	var states []WorkerState
	var w *Worker
	m := NewJobManager(queues, funcExecutor(func(context.Context, ports.Queue, *ports.Message, domain.Job) (bool, error) {
		states = append(states, w.State())
		return true, nil
	}), 0)
	queueTestJob(t, m, "batch")

	w = newTestWorker(m)
	_, err := w.Run(context.Background(), WorkerOptions{Queue: "batch", Limit: 1})

	require.NoError(t, err)
	assert.Equal(t, []WorkerState{StateExecuting}, states)
	assert.Equal(t, StateStopped, w.State())
}
