package ratelimit

import (
	"sync"
	"time"
)

// Limiter zählt Ereignisse pro Client-Schlüssel in einem gleitenden
// Zeitfenster. Die Bereinigung alter Einträge läuft periodisch über
// Cleanup und muss nicht atomar mit den Checks sein.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	events map[string][]time.Time

	// now ist in Tests überschreibbar.
	now func() time.Time
}

// New erstellt einen Limiter: höchstens limit Ereignisse pro Schlüssel
// innerhalb des gleitenden Fensters.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		events: map[string][]time.Time{},
		now:    time.Now,
	}
}

// Allow registriert ein Ereignis für key und meldet, ob es noch innerhalb
// des Limits liegt. Abgelehnte Ereignisse werden nicht gezählt.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.events[key][:0]
	for _, t := range l.events[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.limit {
		l.events[key] = recent
		return false
	}
	l.events[key] = append(recent, now)
	return true
}

// Cleanup entfernt Schlüssel, deren Ereignisse komplett abgelaufen sind.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	for key, times := range l.events {
		alive := false
		for _, t := range times {
			if t.After(cutoff) {
				alive = true
				break
			}
		}
		if !alive {
			delete(l.events, key)
		}
	}
}

// SetNow ersetzt die Zeitquelle (nur für Tests).
func (l *Limiter) SetNow(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}
