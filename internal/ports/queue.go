package ports

import (
	"context"
	"time"
)

// Message is a reserved queue message.
type Message struct {
	ID      string
	Payload []byte
	// Attempts is the number of earlier failed deliveries.
	Attempts int
}

// Queue is a durable job queue with ready, reserved and failed states.
type Queue interface {
	Name() string
	Enqueue(ctx context.Context, payload []byte) (string, error)

	// Reserve waits up to timeout for a ready message. A timeout of zero or
	// less waits until ctx is done. It returns nil, nil when nothing arrived.
	Reserve(ctx context.Context, timeout time.Duration) (*Message, error)

	Ack(ctx context.Context, msg *Message) error

	// Fail reports a failed attempt. The queue redelivers the message until
	// its retry budget is spent and then moves it to the failed state, in
	// which case dead is true.
	Fail(ctx context.Context, msg *Message) (dead bool, err error)

	// Flush drops every message of the queue in every state.
	Flush(ctx context.Context) error

	CountReady(ctx context.Context) (int, error)
	CountReserved(ctx context.Context) (int, error)
	CountFailed(ctx context.Context) (int, error)
}

// QueueManager hands out queues by name.
type QueueManager interface {
	Queue(name string) (Queue, error)
	Close() error
}
