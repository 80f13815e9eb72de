package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"procurement-backend/internal/logger"
	"procurement-backend/internal/realtime"
)

// Memory is an in-process Store used by tests and local demo runs.
type Memory struct {
	mu     sync.RWMutex
	docs   map[string]map[string]Document
	maxOps int
	bus    realtime.Bus
	log    *logger.Logger
	now    func() time.Time
}

func NewMemory(maxOps int, bus realtime.Bus, log *logger.Logger) *Memory {
	if bus == nil {
		bus = realtime.NewMemoryBus()
	}
	return &Memory{
		docs:   make(map[string]map[string]Document),
		maxOps: maxOps,
		bus:    bus,
		log:    logger.OrNop(log).With("service", "MemoryStore"),
		now:    time.Now,
	}
}

func (m *Memory) MaxBatchSize() int { return m.maxOps }

func (m *Memory) Get(_ context.Context, p Path) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[p.Collection][p.ID]
	if !ok {
		return Document{}, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return copyDoc(d), nil
}

func (m *Memory) Query(_ context.Context, collection string, filters ...Filter) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Document, 0, len(m.docs[collection]))
	for _, d := range m.docs[collection] {
		if matches(d.Data, filters) {
			out = append(out, copyDoc(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Path.ID < out[j].Path.ID
	})
	return out, nil
}

func (m *Memory) Subscribe(ctx context.Context, collection string, filters ...Filter) (<-chan Snapshot, error) {
	return subscribe(ctx, m, m.bus, m.log, collection, filters)
}

func (m *Memory) BatchCommit(ctx context.Context, mutations []Mutation) error {
	if m.maxOps > 0 && len(mutations) > m.maxOps {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, len(mutations), m.maxOps)
	}
	if len(mutations) == 0 {
		return nil
	}

	m.mu.Lock()
	// stage on a copy of the touched collections so a failing mutation leaves
	// nothing behind
	staged := map[string]map[string]Document{}
	view := func(col string) map[string]Document {
		if c, ok := staged[col]; ok {
			return c
		}
		c := make(map[string]Document, len(m.docs[col]))
		for k, v := range m.docs[col] {
			c[k] = v
		}
		staged[col] = c
		return c
	}

	now := m.now()
	for _, mut := range mutations {
		if err := mut.validate(); err != nil {
			m.mu.Unlock()
			return err
		}
		col := view(mut.Path.Collection)
		cur, exists := col[mut.Path.ID]
		if err := checkExpect(mut, cur.Data, exists); err != nil {
			m.mu.Unlock()
			return err
		}
		switch mut.Op {
		case OpSet:
			data, err := normalize(mut.Data)
			if err != nil {
				m.mu.Unlock()
				return err
			}
			created := now
			if exists {
				created = cur.CreatedAt
			}
			col[mut.Path.ID] = Document{Path: mut.Path, Data: data, CreatedAt: created, UpdatedAt: now}
		case OpUpdate:
			if !exists {
				m.mu.Unlock()
				return fmt.Errorf("%w: %s", ErrNotFound, mut.Path)
			}
			patch, err := normalize(mut.Data)
			if err != nil {
				m.mu.Unlock()
				return err
			}
			merged := make(map[string]any, len(cur.Data)+len(patch))
			for k, v := range cur.Data {
				merged[k] = v
			}
			for k, v := range patch {
				merged[k] = v
			}
			col[mut.Path.ID] = Document{Path: mut.Path, Data: merged, CreatedAt: cur.CreatedAt, UpdatedAt: now}
		case OpDelete:
			delete(col, mut.Path.ID)
		}
	}
	for col, docs := range staged {
		m.docs[col] = docs
	}
	m.mu.Unlock()

	publish(ctx, m.bus, m.log, mutations)
	return nil
}

func copyDoc(d Document) Document {
	data := make(map[string]any, len(d.Data))
	for k, v := range d.Data {
		data[k] = deepCopy(v)
	}
	d.Data = data
	return d
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = deepCopy(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = deepCopy(vv)
		}
		return out
	}
	return v
}
