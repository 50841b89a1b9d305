package state

import (
	"errors"
	"sync"

	"github.com/Hussein-Mazeh/vaultlock/internal/db"
)

// ErrNotFound is returned by a Store when nothing is saved under a key.
var ErrNotFound = errors.New("state: not found")

// Store is a flat scope/name byte store.
type Store interface {
	Get(scope, name string) ([]byte, error)
	Put(scope, name string, value []byte) error
	Delete(scope, name string) error
}

// MemoryStore keeps values in a map.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]map[string][]byte
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: map[string]map[string][]byte{}}
}

func (m *MemoryStore) Get(scope, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[scope][name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) Put(scope, name string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.values[scope]
	if !ok {
		s = map[string][]byte{}
		m.values[scope] = s
	}
	s[name] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) Delete(scope, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values[scope], name)
	return nil
}

// DiskStore adapts the sqlite state database to Store.
type DiskStore struct {
	db *db.DB
}

// NewDiskStore wraps an open database.
func NewDiskStore(d *db.DB) *DiskStore { return &DiskStore{db: d} }

func (s *DiskStore) Get(scope, name string) ([]byte, error) {
	v, err := db.Get(s.db, scope, name)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	return v, err
}

func (s *DiskStore) Put(scope, name string, value []byte) error {
	return db.Put(s.db, scope, name, value)
}

func (s *DiskStore) Delete(scope, name string) error {
	return db.Delete(s.db, scope, name)
}
