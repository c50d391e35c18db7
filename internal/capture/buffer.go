package capture

import "sync"

// Buffer is a bounded, insertion-ordered store with FIFO eviction and an
// optional dedup key. It is created inactive; Activate fixes the capacity and
// re-activation with a new capacity rebuilds the buffer keeping the newest
// entries. All methods take a short exclusive critical section, so a Snapshot
// never observes a partially evicted or partially merged entry.
type Buffer[T any] struct {
	mu       sync.Mutex
	active   bool
	capacity int
	entries  []T // oldest first

	keyFn   func(T) string // nil disables dedup
	mergeFn func(*T, T)    // applied when keyFn matches an existing entry
	index   map[string]int // dedup key -> position in entries
	evicted uint64
}

// NewBuffer creates an inactive buffer without dedup.
func NewBuffer[T any]() *Buffer[T] {
	return &Buffer[T]{}
}

// NewDedupBuffer creates an inactive buffer that merges entries sharing a key
// instead of appending duplicates.
func NewDedupBuffer[T any](keyFn func(T) string, mergeFn func(existing *T, incoming T)) *Buffer[T] {
	return &Buffer[T]{keyFn: keyFn, mergeFn: mergeFn}
}

// Activate enables recording with the given capacity. Calling it again is
// idempotent: entries survive unless the new capacity is smaller, in which
// case the oldest are dropped first. Non-positive capacities are rejected by
// clamping to 1.
func (b *Buffer[T]) Activate(capacity int) {
	if capacity < 1 {
		capacity = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active && capacity == b.capacity {
		return
	}

	b.capacity = capacity
	b.active = true
	if excess := len(b.entries) - capacity; excess > 0 {
		b.dropOldest(excess)
	}
}

// Deactivate clears the buffer and stops recording. Used when the instrumented
// context tears down.
func (b *Buffer[T]) Deactivate() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active = false
	b.entries = nil
	b.index = nil
	b.evicted = 0
}

// Record stores an entry, merging by dedup key when configured, and evicts the
// oldest entry when capacity is exceeded. Returns false when the buffer is not
// active.
func (b *Buffer[T]) Record(entry T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active {
		return false
	}

	if b.keyFn != nil {
		key := b.keyFn(entry)
		if pos, ok := b.index[key]; ok {
			b.mergeFn(&b.entries[pos], entry)
			return true
		}
		if b.index == nil {
			b.index = make(map[string]int)
		}
		b.entries = append(b.entries, entry)
		b.index[key] = len(b.entries) - 1
	} else {
		b.entries = append(b.entries, entry)
	}

	if len(b.entries) > b.capacity {
		b.dropOldest(len(b.entries) - b.capacity)
	}
	return true
}

// Update applies fn to the entry matching the dedup key, if present. Used for
// in-place completion of in-flight network requests.
func (b *Buffer[T]) Update(key string, fn func(*T)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.active || b.index == nil {
		return false
	}
	pos, ok := b.index[key]
	if !ok {
		return false
	}
	fn(&b.entries[pos])
	return true
}

// Clear empties the buffer; the next Record starts a fresh sequence.
func (b *Buffer[T]) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
	b.index = nil
}

// Snapshot returns an independent copy of the current entries, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]T, len(b.entries))
	copy(out, b.entries)
	return out
}

// Len returns the current entry count.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Capacity returns the configured capacity, or 0 when inactive.
func (b *Buffer[T]) Capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.active {
		return 0
	}
	return b.capacity
}

// Active reports whether the buffer has been activated.
func (b *Buffer[T]) Active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// Evicted returns the total number of entries dropped by capacity pressure.
func (b *Buffer[T]) Evicted() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evicted
}

// dropOldest removes n entries from the front. Caller must hold the lock.
func (b *Buffer[T]) dropOldest(n int) {
	if n > len(b.entries) {
		n = len(b.entries)
	}
	if b.keyFn != nil {
		for i := 0; i < n; i++ {
			delete(b.index, b.keyFn(b.entries[i]))
		}
	}
	b.entries = append(b.entries[:0], b.entries[n:]...)
	if b.keyFn != nil {
		for i, e := range b.entries {
			b.index[b.keyFn(e)] = i
		}
	}
	b.evicted += uint64(n)
}
