package repository

import (
	"context"
	"strings"
	"sync"
)

// InMemoryDB keeps records in a map. Nothing survives a restart.
type InMemoryDB struct {
	mu    sync.RWMutex
	table map[string][]byte
}

func NewInMemoryDB() *InMemoryDB {
	return &InMemoryDB{table: make(map[string][]byte)}
}

func (i *InMemoryDB) Get(_ context.Context, key string) ([]byte, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	value, ok := i.table[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (i *InMemoryDB) Put(_ context.Context, key string, value []byte) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.table[key] = append([]byte(nil), value...)
	return nil
}

func (i *InMemoryDB) Delete(_ context.Context, key string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.table, key)
	return nil
}

func (i *InMemoryDB) List(_ context.Context, prefix string) ([]string, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	keys := make([]string, 0, len(i.table))
	for key := range i.table {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (i *InMemoryDB) Ping(context.Context) error { return nil }

func (i *InMemoryDB) Close() error { return nil }
