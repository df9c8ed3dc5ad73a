package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/time/rate"
)

const retryHeader = "x-retry-count"

var _ ports.Queue = (*Queue)(nil)

// Queue is a durable RabbitMQ queue. Messages that run out of retries are
// dead-lettered into a companion queue named <name>.failed.
//
// Reserved messages are tracked in process memory, so CountReserved only
// covers deliveries held by this process.
type Queue struct {
	conn         *Connection
	name         string
	maxRetries   int
	pollInterval time.Duration

	mu       sync.Mutex
	inflight map[string]amqp.Delivery
	logger   *slog.Logger
}

func newQueue(conn *Connection, name string, maxRetries int, pollInterval time.Duration, logger *slog.Logger) *Queue {
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	return &Queue{
		conn:         conn,
		name:         name,
		maxRetries:   maxRetries,
		pollInterval: pollInterval,
		inflight:     map[string]amqp.Delivery{},
		logger:       logger.With("queue", name),
	}
}

func failedQueueName(name string) string {
	return name + ".failed"
}

func deadLetterArgs(name string) amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": failedQueueName(name),
	}
}

func (q *Queue) declare() error {
	return q.conn.do(func(ch *amqp.Channel) error {
		if _, err := ch.QueueDeclare(failedQueueName(q.name), true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare a %s queue: %w", failedQueueName(q.name), err)
		}
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, deadLetterArgs(q.name)); err != nil {
			return fmt.Errorf("failed to declare a %s queue: %w", q.name, err)
		}
		return nil
	})
}

func (q *Queue) Name() string {
	return q.name
}

// Enqueue publishes a persistent message and returns its id.
func (q *Queue) Enqueue(ctx context.Context, payload []byte) (string, error) {
	id := uuid.NewString()
	err := q.publish(ctx, amqp.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		MessageId:    id,
		Timestamp:    time.Now(),
		Headers:      amqp.Table{retryHeader: int32(0)},
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (q *Queue) publish(ctx context.Context, msg amqp.Publishing) error {
	return q.conn.do(func(ch *amqp.Channel) error {
		if err := ch.PublishWithContext(ctx, "", q.name, false, false, msg); err != nil {
			return fmt.Errorf("failed to publish message in queue: %w", err)
		}
		return nil
	})
}

// Reserve polls the queue until a message arrives, the timeout passes or
// ctx is done.
func (q *Queue) Reserve(ctx context.Context, timeout time.Duration) (*ports.Message, error) {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	limiter := rate.NewLimiter(rate.Every(q.pollInterval), 1)
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, nil
		}

		var (
			delivery amqp.Delivery
			ok       bool
		)
		err := q.conn.do(func(ch *amqp.Channel) error {
			var err error
			delivery, ok, err = ch.Get(q.name, false)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get message from %s: %w", q.name, err)
		}
		if !ok {
			continue
		}

		msg := messageOf(delivery)
		q.mu.Lock()
		q.inflight[msg.ID] = delivery
		q.mu.Unlock()
		return msg, nil
	}
}

func messageOf(d amqp.Delivery) *ports.Message {
	id := d.MessageId
	if id == "" {
		id = fmt.Sprintf("delivery-%d", d.DeliveryTag)
	}
	return &ports.Message{
		ID:       id,
		Payload:  d.Body,
		Attempts: retryCount(d.Headers),
	}
}

func (q *Queue) take(msg *ports.Message) (amqp.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	d, ok := q.inflight[msg.ID]
	if !ok {
		return amqp.Delivery{}, fmt.Errorf("message %s is not reserved", msg.ID)
	}
	delete(q.inflight, msg.ID)
	return d, nil
}

func (q *Queue) Ack(ctx context.Context, msg *ports.Message) error {
	d, err := q.take(msg)
	if err != nil {
		return err
	}
	return q.conn.do(func(*amqp.Channel) error {
		if err := d.Ack(false); err != nil {
			return fmt.Errorf("failed to ack message %s: %w", msg.ID, err)
		}
		return nil
	})
}

// Fail republishes the message with an incremented retry count, or
// dead-letters it once the retry budget is spent.
func (q *Queue) Fail(ctx context.Context, msg *ports.Message) (bool, error) {
	d, err := q.take(msg)
	if err != nil {
		return false, err
	}

	attempts := retryCount(d.Headers)
	if attempts >= q.maxRetries {
		q.logger.WarnContext(ctx, "message moved to failed queue", "messageID", msg.ID, "attempts", attempts+1)
		return true, q.conn.do(func(*amqp.Channel) error {
			return d.Nack(false, false)
		})
	}

	retry := amqp.Publishing{
		ContentType:  d.ContentType,
		Body:         d.Body,
		MessageId:    d.MessageId,
		Timestamp:    d.Timestamp,
		Headers:      withRetryCount(d.Headers, attempts+1),
		DeliveryMode: amqp.Persistent,
	}
	if err := q.publish(ctx, retry); err != nil {
		q.logger.ErrorContext(ctx, "failed to requeue message, moving it to failed queue", "messageID", msg.ID, "error", err)
		return true, q.conn.do(func(*amqp.Channel) error {
			return d.Nack(false, false)
		})
	}
	return false, q.conn.do(func(*amqp.Channel) error {
		return d.Ack(false)
	})
}

// Flush purges the queue and its failed queue.
func (q *Queue) Flush(ctx context.Context) error {
	return q.conn.do(func(ch *amqp.Channel) error {
		for _, name := range []string{q.name, failedQueueName(q.name)} {
			if _, err := ch.QueuePurge(name, false); err != nil {
				return fmt.Errorf("failed to purge %s: %w", name, err)
			}
		}
		return nil
	})
}

func (q *Queue) CountReady(ctx context.Context) (int, error) {
	return q.count(q.name, deadLetterArgs(q.name))
}

func (q *Queue) CountReserved(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight), nil
}

func (q *Queue) CountFailed(ctx context.Context) (int, error) {
	return q.count(failedQueueName(q.name), nil)
}

func (q *Queue) count(name string, args amqp.Table) (int, error) {
	var n int
	err := q.conn.do(func(ch *amqp.Channel) error {
		state, err := ch.QueueDeclarePassive(name, true, false, false, false, args)
		if err != nil {
			return fmt.Errorf("failed to inspect %s: %w", name, err)
		}
		n = state.Messages
		return nil
	})
	return n, err
}

// retryCount reads the retry header. Brokers may hand integers back in any
// width.
func retryCount(headers amqp.Table) int {
	if headers == nil {
		return 0
	}
	switch v := headers[retryHeader].(type) {
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	default:
		return 0
	}
}

func withRetryCount(headers amqp.Table, count int) amqp.Table {
	out := amqp.Table{}
	for k, v := range headers {
		out[k] = v
	}
	out[retryHeader] = int32(count)
	return out
}
