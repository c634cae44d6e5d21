package locker

import (
	"sync"

	"go.uber.org/fx"
)

// Module provides the process-wide keyed locker to Fx.
var Module = fx.Provide(New)

// Keyed hands out one mutex per key. Entries are dropped once no goroutine
// holds or waits for them, so the map stays bounded by in-flight keys.
type Keyed struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New constructs an empty Keyed locker.
func New() *Keyed {
	return &Keyed{locks: make(map[string]*entry)}
}

// Lock blocks until the key's mutex is held and returns its release func.
func (k *Keyed) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			k.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(k.locks, key)
			}
			k.mu.Unlock()
		})
	}
}

// Len returns the number of keys currently held or awaited.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
