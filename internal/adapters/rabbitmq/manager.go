package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/config"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
)

var _ ports.QueueManager = (*Manager)(nil)

// Manager opens RabbitMQ backed queues on one connection.
type Manager struct {
	conn         *Connection
	maxRetries   int
	pollInterval time.Duration

	mu     sync.Mutex
	queues map[string]*Queue
	logger *slog.Logger
}

// New connects to RabbitMQ, retrieving configuration from context.
func New(ctx context.Context) (*Manager, error) {
	cfg := config.GetConfig(ctx).Queue
	return NewWithURL(cfg.RabbitMQURL, cfg.MaxRetries, cfg.PollInterval)
}

// NewWithURL connects to RabbitMQ with explicit settings.
func NewWithURL(url string, maxRetries int, pollInterval time.Duration) (*Manager, error) {
	conn, err := Dial(url)
	if err != nil {
		return nil, err
	}

	logger := slog.Default().With("component", "rabbitmq")
	logger.Info("connected to rabbitmq", "maxRetries", maxRetries)

	return &Manager{
		conn:         conn,
		maxRetries:   maxRetries,
		pollInterval: pollInterval,
		queues:       map[string]*Queue{},
		logger:       logger,
	}, nil
}

// Queue declares the named queue and its failed queue on first use.
func (m *Manager) Queue(name string) (ports.Queue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.queues[name]; ok {
		return q, nil
	}

	q := newQueue(m.conn, name, m.maxRetries, m.pollInterval, m.logger)
	if err := q.declare(); err != nil {
		return nil, fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	m.queues[name] = q
	return q, nil
}

func (m *Manager) Close() error {
	return m.conn.Close()
}
