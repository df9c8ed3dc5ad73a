package badgerqueue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestManager(t *testing.T, maxRetries int) *Manager {
	t.Helper()
	m, err := Open(Options{
		InMemory:     true,
		MaxRetries:   maxRetries,
		LeaseTimeout: time.Minute,
		PollInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func openTestQueue(t *testing.T, m *Manager) *Queue {
	t.Helper()
	q, err := m.queue("batch")
	require.NoError(t, err)
	return q
}

func counts(t *testing.T, q *Queue) [3]int {
	t.Helper()
	ctx := context.Background()
	ready, err := q.CountReady(ctx)
	require.NoError(t, err)
	reserved, err := q.CountReserved(ctx)
	require.NoError(t, err)
	failed, err := q.CountFailed(ctx)
	require.NoError(t, err)
	return [3]int{ready, reserved, failed}
}

func TestOpen_RequiresDirectory(t *testing.T) {
	_, err := Open(Options{})
	assert.Error(t, err)
}

func TestQueue_FIFO(t *testing.T) {
	q := openTestQueue(t, openTestManager(t, 0))
	ctx := context.Background()

	var ids []string
	for i := 0; i < 12; i++ {
		id, err := q.Enqueue(ctx, []byte(fmt.Sprintf(`{"n":%d}`, i)))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, [3]int{12, 0, 0}, counts(t, q))

	for i := 0; i < 12; i++ {
		msg, err := q.Reserve(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, ids[i], msg.ID)
		assert.Equal(t, fmt.Sprintf(`{"n":%d}`, i), string(msg.Payload))
		require.NoError(t, q.Ack(ctx, msg))
	}
	assert.Equal(t, [3]int{0, 0, 0}, counts(t, q))
}

func TestQueue_ReserveAndAck(t *testing.T) {
	q := openTestQueue(t, openTestManager(t, 0))
	ctx := context.Background()

	_, err := q.Enqueue(ctx, []byte(`{}`))
	require.NoError(t, err)

	msg, err := q.Reserve(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, [3]int{0, 1, 0}, counts(t, q))

	require.NoError(t, q.Ack(ctx, msg))
	assert.Equal(t, [3]int{0, 0, 0}, counts(t, q))

	assert.Error(t, q.Ack(ctx, msg), "a message can only be acknowledged once")
}

func TestQueue_FailRetriesThenMovesToFailed(t *testing.T) {
	q := openTestQueue(t, openTestManager(t, 2))
	ctx := context.Background()

	id, err := q.Enqueue(ctx, []byte(`{}`))
	require.NoError(t, err)

	for attempt := 0; attempt < 3; attempt++ {
		msg, err := q.Reserve(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, id, msg.ID)
		assert.Equal(t, attempt, msg.Attempts)
		dead, err := q.Fail(ctx, msg)
		require.NoError(t, err)
		assert.Equal(t, attempt == 2, dead)
	}

	assert.Equal(t, [3]int{0, 0, 1}, counts(t, q))

	msg, err := q.Reserve(ctx, 20*time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, msg)
}

func TestQueue_FailedMessageGoesToTheBack(t *testing.T) {
	q := openTestQueue(t, openTestManager(t, 3))
	ctx := context.Background()

	first, _ := q.Enqueue(ctx, []byte(`1`))
	second, _ := q.Enqueue(ctx, []byte(`2`))

	msg, err := q.Reserve(ctx, time.Second)
	require.NoError(t, err)
	require.Equal(t, first, msg.ID)
	dead, err := q.Fail(ctx, msg)
	require.NoError(t, err)
	require.False(t, dead)

	msg, err = q.Reserve(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, second, msg.ID)
}

func TestQueue_ExpiredLeaseIsRequeued(t *testing.T) {
	m := openTestManager(t, 0)
	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	q := openTestQueue(t, m)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, []byte(`{}`))
	require.NoError(t, err)

	msg, err := q.Reserve(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)

	again, err := q.Reserve(ctx, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, again, "the lease still holds")

	clock = clock.Add(2 * time.Minute)
	again, err = q.Reserve(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, id, again.ID)
}

func TestQueue_ReserveTimeoutAndCancel(t *testing.T) {
	q := openTestQueue(t, openTestManager(t, 0))

	start := time.Now()
	msg, err := q.Reserve(context.Background(), 30*time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, msg)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	msg, err = q.Reserve(ctx, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, msg)
}

func TestQueue_ReserveWaitsForNewMessages(t *testing.T) {
	q := openTestQueue(t, openTestManager(t, 0))
	ctx := context.Background()

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Enqueue(ctx, []byte(`late`))
	}()

	msg, err := q.Reserve(ctx, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "late", string(msg.Payload))
}

func TestQueue_ConcurrentReserveHandsOutEachMessageOnce(t *testing.T) {
	q := openTestQueue(t, openTestManager(t, 0))
	ctx := context.Background()

	const total = 50
	for i := 0; i < total; i++ {
		_, err := q.Enqueue(ctx, []byte(`{}`))
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				msg, err := q.Reserve(ctx, 20*time.Millisecond)
				if err != nil || msg == nil {
					return
				}
				mu.Lock()
				seen[msg.ID]++
				mu.Unlock()
				q.Ack(ctx, msg)
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "message %s reserved more than once", id)
	}
}

func TestQueue_Flush(t *testing.T) {
	m := openTestManager(t, 0)
	q := openTestQueue(t, m)
	other, err := m.queue("live")
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, _ = q.Enqueue(ctx, []byte(`{}`))
	}
	msg, err := q.Reserve(ctx, time.Second)
	require.NoError(t, err)
	_, err = q.Fail(ctx, msg)
	require.NoError(t, err)
	_, _ = other.Enqueue(ctx, []byte(`{}`))

	require.NoError(t, q.Flush(ctx))

	assert.Equal(t, [3]int{0, 0, 0}, counts(t, q))
	assert.Equal(t, [3]int{1, 0, 0}, counts(t, other), "other queues are untouched")

	_, err = q.Enqueue(ctx, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, [3]int{1, 0, 0}, counts(t, q))
}

func TestManager_QueueIsShared(t *testing.T) {
	m := openTestManager(t, 0)
	a, err := m.Queue("batch")
	require.NoError(t, err)
	b, err := m.Queue("batch")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, "batch", a.Name())
}
