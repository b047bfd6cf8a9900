package enrollment

import (
	"sort"
	"sync"
)

// keyLock serializes work per employee number. Entries are refcounted and
// removed once nobody holds or waits for them.
type keyLock struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{entries: make(map[string]*keyEntry)}
}

// Lock acquires every key in sorted order and returns the release func.
func (l *keyLock) Lock(keys ...string) func() {
	keys = uniqueSorted(keys)

	held := make([]*keyEntry, 0, len(keys))
	for _, k := range keys {
		l.mu.Lock()
		e, ok := l.entries[k]
		if !ok {
			e = &keyEntry{}
			l.entries[k] = e
		}
		e.refs++
		l.mu.Unlock()

		e.mu.Lock()
		held = append(held, e)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(l.entries, keys[i])
			}
			l.mu.Unlock()
		}
	}
}

func (l *keyLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func uniqueSorted(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
