package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrBlobNotFound wird von Get geliefert, wenn der Schlüssel nicht existiert.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore abstrahiert den Objekt-Speicher für gerendertes HTML und
// Roh-Inhalte. Produktiv steht dahinter S3, in Tests die Memory-Variante.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// MemoryStore ist eine In-Memory-Implementierung des BlobStore für Tests.
// FailPuts lässt die nächsten n Put-Aufrufe deterministisch fehlschlagen,
// um Rollback-Pfade zu prüfen.
type MemoryStore struct {
	mu       sync.RWMutex
	objects  map[string][]byte
	FailPuts int
}

// NewMemoryStore erstellt einen leeren MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string][]byte{}}
}

func (m *MemoryStore) Put(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPuts > 0 {
		m.FailPuts--
		return errors.New("injected put failure")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.objects[key] = cp
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, ErrBlobNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.objects {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Len gibt die Anzahl gespeicherter Objekte zurück (nur für Tests).
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
