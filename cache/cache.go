package cache

import (
	"context"
	"sync"
	"time"
)

// Loader lädt den Wert eines Schlüssels aus der dahinterliegenden Quelle
// (hier: dem Blob-Store) bei einem Cache-Miss.
type Loader func(ctx context.Context) ([]byte, error)

type entry struct {
	data      []byte
	expiresAt time.Time
}

// Cache ist ein Read-Through-Cache mit TTL vor dem Blob-Store, gekeyed
// über die Artikel-Identität (source/slug). Invalidate wird synchron aus
// der Approval-Transaktion aufgerufen; es gibt bewusst keinen ambienten
// Prozess-Zustand außerhalb dieser Struktur.
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
}

// New erstellt einen leeren Cache mit der gegebenen TTL.
func New(ttl time.Duration) *Cache {
	return &Cache{ttl: ttl, entries: map[string]entry{}}
}

// Fetch liefert den gecachten Wert oder lädt ihn über den Loader nach.
// Abgelaufene Einträge zählen als Miss.
func (c *Cache) Fetch(ctx context.Context, key string, load Loader) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && time.Now().Before(e.expiresAt) {
		return e.data, nil
	}

	data, err := load(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = entry{data: data, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
	return data, nil
}

// Invalidate entfernt einen Eintrag sofort.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Purge entfernt alle abgelaufenen Einträge (Cron-Job).
func (c *Cache) Purge() {
	now := time.Now()
	c.mu.Lock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// Contains meldet, ob ein frischer Eintrag für key vorliegt (für Tests).
func (c *Cache) Contains(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return ok && time.Now().Before(e.expiresAt)
}
