package collection

import (
	"sync"
	"sync/atomic"
)

type sharedState[K comparable, T Document[K, T]] struct {
	mu    sync.RWMutex
	store Store[K, T]
	refs  atomic.Int64
}

// Shared is a handle to a store that can be used from many goroutines.
// Mutations are serialized, reads run concurrently with each other.
//
// Clone creates another handle to the same store. The store is closed when
// the last handle is closed.
type Shared[K comparable, T Document[K, T]] struct {
	s      *sharedState[K, T]
	closed atomic.Bool
}

// NewShared takes ownership of store
func NewShared[K comparable, T Document[K, T]](store Store[K, T]) *Shared[K, T] {
	s := &sharedState[K, T]{store: store}
	s.refs.Store(1)
	return &Shared[K, T]{s: s}
}

// Clone returns a new handle to the same store. Cloning a closed handle
// returns nil.
func (h *Shared[K, T]) Clone() *Shared[K, T] {
	if h.closed.Load() {
		return nil
	}
	h.s.refs.Add(1)
	return &Shared[K, T]{s: h.s}
}

// Refs returns the number of open handles to the store
func (h *Shared[K, T]) Refs() int {
	return int(h.s.refs.Load())
}

func (h *Shared[K, T]) Insert(doc T) error {
	if h.closed.Load() {
		return ErrClosed
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.s.store.Insert(doc)
}

func (h *Shared[K, T]) Update(doc T) error {
	if h.closed.Load() {
		return ErrClosed
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.s.store.Update(doc)
}

func (h *Shared[K, T]) Delete(key K) error {
	if h.closed.Load() {
		return ErrClosed
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.s.store.Delete(key)
}

// Filter returns nil on a closed handle
func (h *Shared[K, T]) Filter(pred func(T) bool) []T {
	if h.closed.Load() {
		return nil
	}
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	return h.s.store.Filter(pred)
}

func (h *Shared[K, T]) Find(pred func(T) bool) (T, bool) {
	if h.closed.Load() {
		var zero T
		return zero, false
	}
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	return h.s.store.Find(pred)
}

func (h *Shared[K, T]) Get(key K) (T, bool) {
	if h.closed.Load() {
		var zero T
		return zero, false
	}
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	return h.s.store.Get(key)
}

func (h *Shared[K, T]) Len() int {
	if h.closed.Load() {
		return 0
	}
	h.s.mu.RLock()
	defer h.s.mu.RUnlock()
	return h.s.store.Len()
}

// WithLock runs fn with exclusive access to the store, e.g. to read a
// document and write a new version of it without another writer in between
func (h *Shared[K, T]) WithLock(fn func(store Store[K, T]) error) error {
	if h.closed.Load() {
		return ErrClosed
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return fn(h.s.store)
}

// Close closes this handle. The store is closed when the last handle is
// closed. Closing a handle again is a no-op.
func (h *Shared[K, T]) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	if h.s.refs.Add(-1) > 0 {
		return nil
	}
	h.s.mu.Lock()
	defer h.s.mu.Unlock()
	return h.s.store.Close()
}
