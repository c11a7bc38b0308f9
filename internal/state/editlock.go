package state

import (
	"strings"
	"sync"
	"time"
)

// Locks tracks which field paths are under active local editing. While a path
// is held, no update from a non-local source may write it. Editing is
// single-focus in the UI, so a second acquire on a held path is a silent no-op.
type Locks struct {
	mu   sync.Mutex
	held map[string]lockEntry
}

type lockEntry struct {
	acquiredAt time.Time
	seed       any
}

// NewLocks creates an empty lock registry.
func NewLocks() *Locks {
	return &Locks{held: make(map[string]lockEntry)}
}

// acquire records a lock seeded with the field's current value. Returns false
// if the path is already held.
func (l *Locks) acquire(path string, seed any) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.held[path]; exists {
		return false
	}
	l.held[path] = lockEntry{acquiredAt: time.Now(), seed: seed}
	return true
}

// release removes the lock. Releasing an unheld path is a no-op.
func (l *Locks) release(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, path)
}

// seed returns the value captured when the lock was acquired.
func (l *Locks) seedValue(path string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.held[path]
	return e.seed, ok
}

// IsLocked reports whether the exact path is held.
func (l *Locks) IsLocked(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[path]
	return ok
}

// AnyWithPrefix reports whether any held path starts with prefix. Used to
// skip a whole settings section while one of its fields is being edited.
func (l *Locks) AnyWithPrefix(prefix string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for path := range l.held {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// HeldWithPrefix returns every held path under prefix.
func (l *Locks) HeldWithPrefix(prefix string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var paths []string
	for path := range l.held {
		if strings.HasPrefix(path, prefix) {
			paths = append(paths, path)
		}
	}
	return paths
}

// Count returns the number of held locks.
func (l *Locks) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.held)
}
