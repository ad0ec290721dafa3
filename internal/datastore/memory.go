package datastore

import (
	"context"
	"sync"
)

// MemoryStore keeps embeddings in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Insert(ctx context.Context, embedding []float32, meta Metadata) (string, error) {
	ids, err := m.InsertBatch(ctx, []Record{{Embedding: embedding, Metadata: meta}})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (m *MemoryStore) InsertBatch(ctx context.Context, records []Record) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recs, ids := prepareRecords(records)

	m.mu.Lock()
	m.records = append(m.records, recs...)
	m.mu.Unlock()
	return ids, nil
}

func (m *MemoryStore) Search(ctx context.Context, query []float32, k int, metric Metric) ([]Match, error) {
	if err := validateQuery(query, k); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	r := newRanker(query, k, metric)
	for _, rec := range m.records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.add(rec); err != nil {
			return nil, err
		}
	}
	return r.results(), nil
}

func (m *MemoryStore) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *MemoryStore) Close() error { return nil }
