// Package locks provides a mutex per string key. Entries live only while
// some caller holds or waits for them.
package locks

import "sync"

type entry struct {
	sync.Mutex
	refs int
}

// Keyed hands out one mutex per key. The zero value is ready to use.
type Keyed struct {
	mu sync.Mutex
	m  map[string]*entry
}

// Lock blocks until key is free and returns the matching unlock.
func (k *Keyed) Lock(key string) func() {
	k.mu.Lock()
	if k.m == nil {
		k.m = make(map[string]*entry)
	}
	e, ok := k.m[key]
	if !ok {
		e = &entry{}
		k.m[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.Lock()
	return func() {
		e.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.m, key)
		}
		k.mu.Unlock()
	}
}

// Len reports how many keys are currently held or awaited.
func (k *Keyed) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.m)
}
