package store

import (
	"context"
	"fmt"
	"sync"
)

// Memory keeps collections in process memory. It is safe for concurrent use.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

type memCollection struct {
	order   []string
	records map[string]Record
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memCollection)}
}

func (m *Memory) collection(name string) *memCollection {
	c, ok := m.collections[name]
	if !ok {
		c = &memCollection{records: make(map[string]Record)}
		m.collections[name] = c
	}
	return c
}

// snapshot returns the collection's records in insertion order. Callers hold
// at least the read lock.
func (m *Memory) snapshot(name string) []Record {
	c, ok := m.collections[name]
	if !ok {
		return nil
	}
	out := make([]Record, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.records[id])
	}
	return out
}

func (m *Memory) Find(ctx context.Context, collection string, filter Filter, limit int) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	found, err := filterRecords(m.snapshot(collection), filter, limit)
	if err != nil {
		return nil, err
	}
	for i, r := range found {
		found[i] = cloneRecord(r)
	}
	return found, nil
}

func (m *Memory) FindOne(ctx context.Context, collection string, filter Filter) (Record, error) {
	found, err := m.Find(ctx, collection, filter, 1)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return found[0], nil
}

func (m *Memory) Insert(ctx context.Context, collection string, doc any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r, err := prepareInsert(doc)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(collection, r)
}

func (m *Memory) insertLocked(collection string, r Record) (string, error) {
	c := m.collection(collection)
	id := r.ID()
	if _, exists := c.records[id]; exists {
		return "", fmt.Errorf("insert into %s: duplicate id %q", collection, id)
	}
	c.order = append(c.order, id)
	c.records[id] = r
	return id, nil
}

func (m *Memory) Update(ctx context.Context, collection string, filter Filter, p Patch) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	found, err := filterRecords(m.snapshot(collection), filter, 0)
	if err != nil {
		return 0, err
	}
	if len(found) == 0 && p.Upsert {
		r := upsertSeed(filter)
		if err := applyPatch(r, p); err != nil {
			return 0, err
		}
		r, err = prepareInsert(r)
		if err != nil {
			return 0, err
		}
		if _, err := m.insertLocked(collection, r); err != nil {
			return 0, err
		}
		return 1, nil
	}

	c := m.collection(collection)
	for _, r := range found {
		updated := cloneRecord(r)
		if err := applyPatch(updated, p); err != nil {
			return 0, err
		}
		c.records[r.ID()] = updated
	}
	return len(found), nil
}

func (m *Memory) Delete(ctx context.Context, collection string, filter Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	found, err := filterRecords(m.snapshot(collection), filter, 0)
	if err != nil || len(found) == 0 {
		return 0, err
	}
	c := m.collection(collection)
	removed := make(map[string]bool, len(found))
	for _, r := range found {
		removed[r.ID()] = true
		delete(c.records, r.ID())
	}
	kept := c.order[:0]
	for _, id := range c.order {
		if !removed[id] {
			kept = append(kept, id)
		}
	}
	c.order = kept
	return len(found), nil
}

func (m *Memory) Aggregate(ctx context.Context, collection string, stages []Stage) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	records := m.snapshot(collection)
	m.mu.RUnlock()

	out, err := Run(records, stages)
	if err != nil {
		return nil, err
	}
	for i, r := range out {
		out[i] = cloneRecord(r)
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
