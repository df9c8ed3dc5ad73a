package rabbitmq

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestQueue declares a fresh queue on QUEUE_RABBITMQ_URL. The test is
// skipped without it.
func openTestQueue(t *testing.T, maxRetries int) ports.Queue {
	t.Helper()
	url := os.Getenv("QUEUE_RABBITMQ_URL")
	if url == "" {
		t.Skip("QUEUE_RABBITMQ_URL not set")
	}

	m, err := NewWithURL(url, maxRetries, 20*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	q, err := m.Queue("indexer-test-" + uuid.NewString())
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Flush(context.Background()) })
	return q
}

func TestQueue_ReserveAck(t *testing.T) {
	q := openTestQueue(t, 1)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, []byte(`{"kind":"indexing"}`))
	require.NoError(t, err)

	msg, err := q.Reserve(ctx, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, id, msg.ID)
	assert.Equal(t, `{"kind":"indexing"}`, string(msg.Payload))
	assert.Zero(t, msg.Attempts)

	reserved, err := q.CountReserved(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reserved)

	require.NoError(t, q.Ack(ctx, msg))

	empty, err := q.Reserve(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestQueue_FailRetriesThenDeadLetters(t *testing.T) {
	q := openTestQueue(t, 1)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, []byte(`{}`))
	require.NoError(t, err)

	msg, err := q.Reserve(ctx, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	dead, err := q.Fail(ctx, msg)
	require.NoError(t, err)
	assert.False(t, dead)

	msg, err = q.Reserve(ctx, 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, id, msg.ID)
	assert.Equal(t, 1, msg.Attempts)
	dead, err = q.Fail(ctx, msg)
	require.NoError(t, err)
	assert.True(t, dead)

	assert.Eventually(t, func() bool {
		failed, err := q.CountFailed(ctx)
		return err == nil && failed == 1
	}, 5*time.Second, 50*time.Millisecond)

	ready, err := q.CountReady(ctx)
	require.NoError(t, err)
	assert.Zero(t, ready)

	require.NoError(t, q.Flush(ctx))
	failed, err := q.CountFailed(ctx)
	require.NoError(t, err)
	assert.Zero(t, failed)
}
