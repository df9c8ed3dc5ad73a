package app

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/domain"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
)

// mockRecordStore is an in-memory implementation of ports.RecordStore
type mockRecordStore struct {
	records    map[string]*domain.Record
	workspaces []string
	nodeTypes  []string

	findErr              error
	findByWorkspaceCalls []domain.Cursor
	workspaceLookups     int
}

func newMockRecordStore() *mockRecordStore {
	return &mockRecordStore{
		records:    map[string]*domain.Record{},
		workspaces: []string{domain.LiveWorkspace},
		nodeTypes:  []string{"Neos.NodeTypes:Page", "Neos.NodeTypes:Text"},
	}
}

func (m *mockRecordStore) add(r *domain.Record) {
	m.records[r.ID] = r
}

func (m *mockRecordStore) FindRecordsByWorkspace(ctx context.Context, workspace string, after domain.Cursor, limit int, excluded []string) ([]domain.RecordReference, error) {
	m.findByWorkspaceCalls = append(m.findByWorkspaceCalls, after)
	if m.findErr != nil {
		return nil, m.findErr
	}

	ids := make([]string, 0, len(m.records))
	for id, r := range m.records {
		if r.Workspace != workspace || r.Removed || r.MovedTo != "" || slices.Contains(excluded, r.NodeType) {
			continue
		}
		if id > string(after) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}

	refs := make([]domain.RecordReference, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, m.records[id].Reference())
	}
	return refs, nil
}

func (m *mockRecordStore) FindRecordByID(ctx context.Context, recordID string) (*domain.Record, error) {
	if r, ok := m.records[recordID]; ok {
		return r, nil
	}
	return nil, nil
}

func (m *mockRecordStore) ListWorkspaces(ctx context.Context) ([]string, error) {
	return m.workspaces, nil
}

func (m *mockRecordStore) WorkspaceExists(ctx context.Context, name string) (bool, error) {
	m.workspaceLookups++
	return slices.Contains(m.workspaces, name), nil
}

func (m *mockRecordStore) NodeTypeExists(ctx context.Context, name string) (bool, error) {
	return slices.Contains(m.nodeTypes, name), nil
}

// mockMaterializer resolves every record unless listed as unresolvable
type mockMaterializer struct {
	unresolvable map[string]bool
	calls        []domain.MaterializeContext
}

func (m *mockMaterializer) Materialize(ctx context.Context, record *domain.Record, mc domain.MaterializeContext) (*domain.Variant, error) {
	m.calls = append(m.calls, mc)
	if m.unresolvable[record.Identifier] {
		return nil, nil
	}
	if record.Removed && !mc.RemovedContentShown {
		return nil, nil
	}
	return domain.VariantOf(record, mc), nil
}

// mockSearchIndex records every call and keeps documents per index
type mockSearchIndex struct {
	mu sync.Mutex

	indices   map[string]bool
	documents map[string]map[string]any

	listIndicesFunc  func(ctx context.Context, pattern string) ([]string, error)
	deleteIndexFunc  func(ctx context.Context, indexName string) error
	updateAliasFunc  func(ctx context.Context, alias, indexName string) error
	flushFunc        func(ctx context.Context) error
	createIndexCalls []string
	putMappingCalls  []string
	deleteIndexCalls []string
	updateAliasCalls []aliasCall
	deleteDocCalls   []string
	flushCalls       int
}

type aliasCall struct {
	Alias string
	Index string
}

func newMockSearchIndex() *mockSearchIndex {
	return &mockSearchIndex{
		indices:   map[string]bool{},
		documents: map[string]map[string]any{},
	}
}

func (m *mockSearchIndex) IndexExists(ctx context.Context, indexName string) (bool, error) {
	return m.indices[indexName], nil
}

func (m *mockSearchIndex) CreateIndex(ctx context.Context, indexName string, mapping string) error {
	m.createIndexCalls = append(m.createIndexCalls, indexName)
	m.indices[indexName] = true
	return nil
}

func (m *mockSearchIndex) PutMapping(ctx context.Context, indexName string, mapping string) error {
	m.putMappingCalls = append(m.putMappingCalls, indexName)
	return nil
}

func (m *mockSearchIndex) DeleteIndex(ctx context.Context, indexName string) error {
	m.deleteIndexCalls = append(m.deleteIndexCalls, indexName)
	if m.deleteIndexFunc != nil {
		return m.deleteIndexFunc(ctx, indexName)
	}
	delete(m.indices, indexName)
	return nil
}

func (m *mockSearchIndex) UpdateAlias(ctx context.Context, alias string, indexName string) error {
	m.updateAliasCalls = append(m.updateAliasCalls, aliasCall{Alias: alias, Index: indexName})
	if m.updateAliasFunc != nil {
		return m.updateAliasFunc(ctx, alias, indexName)
	}
	return nil
}

func (m *mockSearchIndex) ListIndices(ctx context.Context, pattern string) ([]string, error) {
	if m.listIndicesFunc != nil {
		return m.listIndicesFunc(ctx, pattern)
	}
	prefix := strings.TrimSuffix(pattern, "*")
	var names []string
	for name := range m.indices {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *mockSearchIndex) NewBulk(flushSize int) ports.BulkWriter {
	return &mockBulk{index: m}
}

func (m *mockSearchIndex) docCount(indexName string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key := range m.documents {
		if strings.HasPrefix(key, indexName+"/") {
			n++
		}
	}
	return n
}

type bulkOp struct {
	remove bool
	key    string
	doc    any
}

// mockBulk applies buffered operations to the index on Flush
type mockBulk struct {
	index   *mockSearchIndex
	pending []bulkOp
}

func (b *mockBulk) Index(ctx context.Context, indexName, id string, document any) error {
	b.pending = append(b.pending, bulkOp{key: indexName + "/" + id, doc: document})
	return nil
}

func (b *mockBulk) Delete(ctx context.Context, indexName, id string) error {
	b.pending = append(b.pending, bulkOp{remove: true, key: indexName + "/" + id})
	return nil
}

func (b *mockBulk) Flush(ctx context.Context) error {
	b.index.mu.Lock()
	defer b.index.mu.Unlock()
	b.index.flushCalls++
	if b.index.flushFunc != nil {
		if err := b.index.flushFunc(ctx); err != nil {
			return err
		}
	}
	for _, op := range b.pending {
		if op.remove {
			b.index.deleteDocCalls = append(b.index.deleteDocCalls, op.key)
			delete(b.index.documents, op.key)
			continue
		}
		b.index.documents[op.key] = op.doc.(map[string]any)
	}
	b.pending = nil
	return nil
}

// memQueue is an in-memory ports.Queue with retry accounting
type memQueue struct {
	mu         sync.Mutex
	name       string
	maxRetries int
	seq        int
	ready      []*ports.Message
	reserved   map[string]*ports.Message
	failed     []*ports.Message

	reserveErr error
	ackCalls   int
	failCalls  int
}

func newMemQueue(name string, maxRetries int) *memQueue {
	return &memQueue{name: name, maxRetries: maxRetries, reserved: map[string]*ports.Message{}}
}

func (q *memQueue) Name() string { return q.name }

func (q *memQueue) Enqueue(ctx context.Context, payload []byte) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	id := fmt.Sprintf("%s-%d", q.name, q.seq)
	q.ready = append(q.ready, &ports.Message{ID: id, Payload: payload})
	return id, nil
}

func (q *memQueue) Reserve(ctx context.Context, timeout time.Duration) (*ports.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reserveErr != nil {
		return nil, q.reserveErr
	}
	if len(q.ready) == 0 {
		return nil, nil
	}
	msg := q.ready[0]
	q.ready = q.ready[1:]
	q.reserved[msg.ID] = msg
	return msg, nil
}

func (q *memQueue) Ack(ctx context.Context, msg *ports.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ackCalls++
	delete(q.reserved, msg.ID)
	return nil
}

func (q *memQueue) Fail(ctx context.Context, msg *ports.Message) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failCalls++
	delete(q.reserved, msg.ID)
	msg.Attempts++
	if msg.Attempts > q.maxRetries {
		q.failed = append(q.failed, msg)
		return true, nil
	}
	q.ready = append(q.ready, msg)
	return false, nil
}

func (q *memQueue) Flush(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready = nil
	q.reserved = map[string]*ports.Message{}
	q.failed = nil
	return nil
}

func (q *memQueue) CountReady(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready), nil
}

func (q *memQueue) CountReserved(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.reserved), nil
}

func (q *memQueue) CountFailed(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.failed), nil
}

// decodeReady returns the jobs waiting in the queue
func (q *memQueue) decodeReady() []domain.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	jobs := make([]domain.Job, 0, len(q.ready))
	for _, msg := range q.ready {
		job, err := domain.DecodeJob(msg.Payload)
		if err != nil {
			panic(err)
		}
		jobs = append(jobs, job)
	}
	return jobs
}

// memQueueManager hands out memQueues by name
type memQueueManager struct {
	queues     map[string]*memQueue
	maxRetries int
}

func newMemQueueManager(maxRetries int) *memQueueManager {
	return &memQueueManager{queues: map[string]*memQueue{}, maxRetries: maxRetries}
}

func (m *memQueueManager) Queue(name string) (ports.Queue, error) {
	return m.get(name), nil
}

func (m *memQueueManager) get(name string) *memQueue {
	q, ok := m.queues[name]
	if !ok {
		q = newMemQueue(name, m.maxRetries)
		m.queues[name] = q
	}
	return q
}

func (m *memQueueManager) Close() error { return nil }

// mockTracker keeps the settled state of every batch per postfix
type mockTracker struct {
	states map[string]map[string]string
}

func newMockTracker() *mockTracker {
	return &mockTracker{states: map[string]map[string]string{}}
}

func (m *mockTracker) mark(indexPostfix, jobID, state string) {
	if m.states[indexPostfix] == nil {
		m.states[indexPostfix] = map[string]string{}
	}
	m.states[indexPostfix][jobID] = state
}

func (m *mockTracker) MarkBatchCompleted(ctx context.Context, indexPostfix, jobID string) error {
	m.mark(indexPostfix, jobID, "completed")
	return nil
}

func (m *mockTracker) MarkBatchFailed(ctx context.Context, indexPostfix, jobID string) error {
	if m.states[indexPostfix][jobID] != "completed" {
		m.mark(indexPostfix, jobID, "failed")
	}
	return nil
}

func (m *mockTracker) count(indexPostfix, state string) int {
	n := 0
	for _, s := range m.states[indexPostfix] {
		if s == state {
			n++
		}
	}
	return n
}

func (m *mockTracker) CompletedBatches(ctx context.Context, indexPostfix string) (int, error) {
	return m.count(indexPostfix, "completed"), nil
}

func (m *mockTracker) FailedBatches(ctx context.Context, indexPostfix string) (int, error) {
	return m.count(indexPostfix, "failed"), nil
}

// testRecord builds a live page record with a zero padded id
func testRecord(n int) *domain.Record {
	return &domain.Record{
		ID:         fmt.Sprintf("%08d", n),
		Identifier: fmt.Sprintf("node-%d", n),
		Workspace:  domain.LiveWorkspace,
		Path:       fmt.Sprintf("/sites/site/node-%d", n),
		NodeType:   "Neos.NodeTypes:Page",
		Properties: map[string]any{"title": fmt.Sprintf("Page %d", n)},
	}
}

func testExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		IndexName:                 "neos",
		BulkSize:                  100,
		AcceptedFailedJobs:        -1,
		CleanupIndicesAfterSwitch: true,
	}
}
