package memstore

import (
	"context"
	"sort"
	"sync"
)

// keyLocks hands out one exclusive lock per key. A lock is a one-slot channel so waiting
// can be abandoned when the context ends.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]chan struct{}
}

func newKeyLocks() *keyLocks {
	return &keyLocks{m: make(map[string]chan struct{})}
}

func (l *keyLocks) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.m[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.m[key] = ch
	}
	return ch
}

// heldLocks tracks the keys one transaction owns. Locking a held key again is a no-op.
type heldLocks struct {
	locks *keyLocks
	held  map[string]chan struct{}
}

func (h *heldLocks) lock(ctx context.Context, keys []string) error {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	for _, k := range sorted {
		if _, ok := h.held[k]; ok {
			continue
		}
		ch := h.locks.slot(k)
		select {
		case ch <- struct{}{}:
			h.held[k] = ch
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (h *heldLocks) releaseAll() {
	for k, ch := range h.held {
		<-ch
		delete(h.held, k)
	}
}
