package store

import (
	"context"
	"sort"
	"sync"
)

type memoryDoc struct {
	doc Document
	seq int
}

// MemoryClient is an in-memory DocumentClient used in development and
// tests. Tests can queue errors per operation to exercise the retry
// wrapper's throttling and not-found paths.
type MemoryClient struct {
	mu   sync.RWMutex
	docs map[string]map[string]memoryDoc // kind -> partition/id -> doc
	seq  int

	faultMu sync.Mutex
	faults  map[string][]error // op+":"+id -> queued errors
}

// NewMemoryClient creates an empty in-memory document client.
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		docs:   make(map[string]map[string]memoryDoc),
		faults: make(map[string][]error),
	}
}

// FailNext queues errors to be returned by upcoming calls of op ("create",
// "read", "replace", "delete") for the given id. Queued errors are
// consumed in order before the real operation runs.
func (m *MemoryClient) FailNext(op, id string, errs ...error) {
	m.faultMu.Lock()
	defer m.faultMu.Unlock()
	key := op + ":" + id
	m.faults[key] = append(m.faults[key], errs...)
}

func (m *MemoryClient) takeFault(op, id string) error {
	m.faultMu.Lock()
	defer m.faultMu.Unlock()
	key := op + ":" + id
	queue := m.faults[key]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	m.faults[key] = queue[1:]
	return err
}

func docKey(partition, id string) string {
	return partition + "/" + id
}

// Create writes a new document.
func (m *MemoryClient) Create(ctx context.Context, doc Document) error {
	if err := m.takeFault("create", doc.ID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kind, ok := m.docs[doc.Kind]
	if !ok {
		kind = make(map[string]memoryDoc)
		m.docs[doc.Kind] = kind
	}

	key := docKey(doc.Partition, doc.ID)
	if _, exists := kind[key]; exists {
		return ErrConflict
	}

	m.seq++
	kind[key] = memoryDoc{doc: doc, seq: m.seq}
	return nil
}

// Read returns a document body.
func (m *MemoryClient) Read(ctx context.Context, kind, partition, id string) ([]byte, error) {
	if err := m.takeFault("read", id); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[kind][docKey(partition, id)]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.doc.Data, nil
}

// Replace overwrites an existing document.
func (m *MemoryClient) Replace(ctx context.Context, doc Document) error {
	if err := m.takeFault("replace", doc.ID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := docKey(doc.Partition, doc.ID)
	existing, ok := m.docs[doc.Kind][key]
	if !ok {
		return ErrNotFound
	}

	existing.doc = doc
	m.docs[doc.Kind][key] = existing
	return nil
}

// Delete removes a document.
func (m *MemoryClient) Delete(ctx context.Context, kind, partition, id string) error {
	if err := m.takeFault("delete", id); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := docKey(partition, id)
	if _, ok := m.docs[kind][key]; !ok {
		return ErrNotFound
	}
	delete(m.docs[kind], key)
	return nil
}

// Query returns matching document bodies in insertion order.
func (m *MemoryClient) Query(ctx context.Context, kind string, filters []Filter) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []memoryDoc
	for _, doc := range m.docs[kind] {
		if matchesFilters(doc.doc.Data, filters) {
			matched = append(matched, doc)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].seq < matched[j].seq
	})

	results := make([][]byte, len(matched))
	for i, doc := range matched {
		results[i] = doc.doc.Data
	}
	return results, nil
}
