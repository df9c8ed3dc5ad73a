package badgerqueue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/config"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
	"github.com/dgraph-io/badger/v4"
)

var _ ports.QueueManager = (*Manager)(nil)

// Options configures the embedded queue store.
type Options struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir          string
	InMemory     bool
	MaxRetries   int
	LeaseTimeout time.Duration
	PollInterval time.Duration
}

// Manager keeps every queue of the process in one Badger database.
type Manager struct {
	db   *badger.DB
	opts Options
	now  func() time.Time

	mu     sync.Mutex
	queues map[string]*Queue
	logger *slog.Logger
}

// New opens the queue database, retrieving configuration from context.
func New(ctx context.Context) (*Manager, error) {
	cfg := config.GetConfig(ctx).Queue
	return Open(Options{
		Dir:          cfg.BadgerDir,
		MaxRetries:   cfg.MaxRetries,
		LeaseTimeout: cfg.LeaseTimeout,
		PollInterval: cfg.PollInterval,
	})
}

// Open opens the queue database with explicit options.
func Open(opts Options) (*Manager, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, fmt.Errorf("queue directory is required for a persistent queue")
	}
	if opts.LeaseTimeout <= 0 {
		opts.LeaseTimeout = 10 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 200 * time.Millisecond
	}

	logger := slog.Default().With("component", "badgerqueue")

	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Dir, 0750); err != nil {
			return nil, fmt.Errorf("create queue directory %s: %w", opts.Dir, err)
		}
		badgerOpts = badger.DefaultOptions(opts.Dir).WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.WithNumVersionsToKeep(1).WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open queue database: %w", err)
	}

	logger.Info("opened queue database", "dir", opts.Dir, "inMemory", opts.InMemory)

	return &Manager{
		db:     db,
		opts:   opts,
		now:    time.Now,
		queues: map[string]*Queue{},
		logger: logger,
	}, nil
}

func (m *Manager) Queue(name string) (ports.Queue, error) {
	return m.queue(name)
}

func (m *Manager) queue(name string) (*Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.queues[name]; ok {
		return q, nil
	}
	seq, err := m.db.GetSequence([]byte("seq/"+name), 100)
	if err != nil {
		return nil, fmt.Errorf("failed to open sequence of %s: %w", name, err)
	}
	q := &Queue{
		db:     m.db,
		name:   name,
		seq:    seq,
		opts:   m.opts,
		now:    func() time.Time { return m.now() },
		logger: m.logger.With("queue", name),
	}
	m.queues[name] = q
	return q, nil
}

// Close releases the sequences and closes the database.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, q := range m.queues {
		if err := q.seq.Release(); err != nil {
			m.logger.Warn("failed to release sequence", "queue", name, "error", err)
		}
	}
	return m.db.Close()
}

// badgerLogger adapts slog.Logger to Badger's Logger interface. Badger's
// info chatter is logged at debug level.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
