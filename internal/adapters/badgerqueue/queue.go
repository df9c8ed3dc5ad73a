package badgerqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var _ ports.Queue = (*Queue)(nil)

const maxConflictRetries = 10

// entry is the stored form of a message in every state.
type entry struct {
	ID         string    `json:"id"`
	Payload    []byte    `json:"payload"`
	Attempts   int       `json:"attempts"`
	LeaseUntil time.Time `json:"leaseUntil,omitzero"`
}

// Queue is a FIFO queue in a Badger keyspace:
//
//	q/<name>/ready/<sequence>
//	q/<name>/reserved/<id>
//	q/<name>/failed/<id>
//
// A reservation holds a lease. Reservations whose lease ran out, for
// example because the worker died, are made ready again.
type Queue struct {
	db     *badger.DB
	name   string
	seq    *badger.Sequence
	opts   Options
	now    func() time.Time
	logger *slog.Logger
}

func (q *Queue) prefix() []byte         { return []byte("q/" + q.name + "/") }
func (q *Queue) readyPrefix() []byte    { return []byte("q/" + q.name + "/ready/") }
func (q *Queue) reservedPrefix() []byte { return []byte("q/" + q.name + "/reserved/") }
func (q *Queue) failedPrefix() []byte   { return []byte("q/" + q.name + "/failed/") }

func (q *Queue) readyKey(n uint64) []byte {
	return fmt.Appendf(q.readyPrefix(), "%020d", n)
}

func (q *Queue) reservedKey(id string) []byte {
	return append(q.reservedPrefix(), id...)
}

func (q *Queue) failedKey(id string) []byte {
	return append(q.failedPrefix(), id...)
}

func (q *Queue) Name() string {
	return q.name
}

func (q *Queue) Enqueue(ctx context.Context, payload []byte) (string, error) {
	e := entry{ID: uuid.NewString(), Payload: payload}
	if err := q.pushReady(e); err != nil {
		return "", err
	}
	return e.ID, nil
}

func (q *Queue) pushReady(e entry) error {
	n, err := q.seq.Next()
	if err != nil {
		return fmt.Errorf("failed to allocate sequence: %w", err)
	}
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode message %s: %w", e.ID, err)
	}
	return q.db.Update(func(txn *badger.Txn) error {
		return txn.Set(q.readyKey(n), value)
	})
}

// Reserve takes the oldest ready message. It polls until the timeout passes
// or ctx is done.
func (q *Queue) Reserve(ctx context.Context, timeout time.Duration) (*ports.Message, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		if err := q.requeueExpired(); err != nil {
			return nil, err
		}
		msg, err := q.tryReserve()
		if err != nil || msg != nil {
			return msg, err
		}

		poll := time.NewTimer(q.opts.PollInterval)
		select {
		case <-ctx.Done():
			poll.Stop()
			return nil, ctx.Err()
		case <-deadline:
			poll.Stop()
			return nil, nil
		case <-poll.C:
		}
	}
}

func (q *Queue) tryReserve() (*ports.Message, error) {
	var msg *ports.Message
	err := q.retryConflicts(func(txn *badger.Txn) error {
		msg = nil
		it := txn.NewIterator(badger.IteratorOptions{Prefix: q.readyPrefix(), PrefetchValues: true, PrefetchSize: 1})
		defer it.Close()

		it.Seek(q.readyPrefix())
		if !it.ValidForPrefix(q.readyPrefix()) {
			return nil
		}
		item := it.Item()
		key := item.KeyCopy(nil)
		var e entry
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
			return fmt.Errorf("failed to decode message at %s: %w", key, err)
		}

		e.LeaseUntil = q.now().Add(q.opts.LeaseTimeout)
		value, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		if err := txn.Set(q.reservedKey(e.ID), value); err != nil {
			return err
		}
		msg = &ports.Message{ID: e.ID, Payload: e.Payload, Attempts: e.Attempts}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reserve from %s: %w", q.name, err)
	}
	return msg, nil
}

// requeueExpired moves reservations with a lapsed lease back to ready.
func (q *Queue) requeueExpired() error {
	var expired []entry
	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: q.reservedPrefix(), PrefetchValues: true})
		defer it.Close()

		now := q.now()
		for it.Seek(q.reservedPrefix()); it.ValidForPrefix(q.reservedPrefix()); it.Next() {
			var e entry
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
				return err
			}
			if now.After(e.LeaseUntil) {
				expired = append(expired, e)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan reservations of %s: %w", q.name, err)
	}

	for _, e := range expired {
		n, err := q.seq.Next()
		if err != nil {
			return fmt.Errorf("failed to allocate sequence: %w", err)
		}
		e.LeaseUntil = time.Time{}
		value, err := json.Marshal(e)
		if err != nil {
			return err
		}
		err = q.retryConflicts(func(txn *badger.Txn) error {
			if _, err := txn.Get(q.reservedKey(e.ID)); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return nil
				}
				return err
			}
			if err := txn.Delete(q.reservedKey(e.ID)); err != nil {
				return err
			}
			return txn.Set(q.readyKey(n), value)
		})
		if err != nil {
			return fmt.Errorf("failed to requeue message %s: %w", e.ID, err)
		}
		q.logger.Warn("reservation expired, message requeued", "messageID", e.ID)
	}
	return nil
}

func (q *Queue) Ack(ctx context.Context, msg *ports.Message) error {
	return q.retryConflicts(func(txn *badger.Txn) error {
		if _, err := txn.Get(q.reservedKey(msg.ID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("message %s is not reserved", msg.ID)
			}
			return err
		}
		return txn.Delete(q.reservedKey(msg.ID))
	})
}

// Fail makes the message ready again at the end of the queue, or moves it
// to the failed state once it has failed more than MaxRetries times.
func (q *Queue) Fail(ctx context.Context, msg *ports.Message) (bool, error) {
	n, err := q.seq.Next()
	if err != nil {
		return false, fmt.Errorf("failed to allocate sequence: %w", err)
	}

	var dead bool
	err = q.retryConflicts(func(txn *badger.Txn) error {
		dead = false
		item, err := txn.Get(q.reservedKey(msg.ID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("message %s is not reserved", msg.ID)
			}
			return err
		}
		var e entry
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
			return err
		}

		e.Attempts++
		e.LeaseUntil = time.Time{}
		value, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := txn.Delete(q.reservedKey(e.ID)); err != nil {
			return err
		}
		if e.Attempts > q.opts.MaxRetries {
			dead = true
			return txn.Set(q.failedKey(e.ID), value)
		}
		return txn.Set(q.readyKey(n), value)
	})
	if err != nil {
		return false, err
	}
	if dead {
		q.logger.WarnContext(ctx, "message moved to failed state", "messageID", msg.ID)
	}
	return dead, nil
}

func (q *Queue) Flush(ctx context.Context) error {
	if err := q.db.DropPrefix(q.prefix()); err != nil {
		return fmt.Errorf("failed to flush %s: %w", q.name, err)
	}
	return nil
}

func (q *Queue) CountReady(ctx context.Context) (int, error) {
	return q.count(q.readyPrefix())
}

func (q *Queue) CountReserved(ctx context.Context) (int, error) {
	return q.count(q.reservedPrefix())
}

func (q *Queue) CountFailed(ctx context.Context) (int, error) {
	return q.count(q.failedPrefix())
}

func (q *Queue) count(prefix []byte) (int, error) {
	n := 0
	err := q.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", prefix, err)
	}
	return n, nil
}

func (q *Queue) retryConflicts(fn func(txn *badger.Txn) error) error {
	var err error
	for range maxConflictRetries {
		err = q.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}
