package feed

import (
	"sync"
)

// Buffer is a thread-safe ring buffer that doubles its capacity when it
// reaches 70% full, so a slow writer never drops telemetry.
type Buffer[T any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	// Stats
	pushed  int64
	popped  int64
	resizes int
}

// NewBuffer creates a buffer with the given initial capacity.
func NewBuffer[T any](initialCapacity int) *Buffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &Buffer[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Push adds an item, growing the buffer if it is at 70% capacity.
// Returns false if the buffer is closed.
func (b *Buffer[T]) Push(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := (b.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.grow()
	}

	b.buf[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	b.pushed++

	b.cond.Signal()
	return true
}

// Pop removes and returns an item, blocking until one is available or the
// buffer is closed. Returns false once the buffer is closed and drained.
func (b *Buffer[T]) Pop() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}

	if b.count == 0 && b.closed {
		var zero T
		return zero, false
	}
	return b.popLocked(), true
}

// TryPop attempts to pop without blocking.
func (b *Buffer[T]) TryPop() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.popLocked(), true
}

// Drain removes up to max items (all items if max <= 0) for batch
// processing.
func (b *Buffer[T]) Drain(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = b.popLocked()
	}
	return out
}

// Close closes the buffer. Push returns false afterwards; poppers drain
// remaining items and then get the closed signal.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Len returns the current number of buffered items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current capacity.
func (b *Buffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity
}

// Stats returns buffer counters.
func (b *Buffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:    b.count,
		Capacity: b.capacity,
		Pushed:   b.pushed,
		Popped:   b.popped,
		Resizes:  b.resizes,
	}
}

// BufferStats contains buffer counters.
type BufferStats struct {
	Count    int
	Capacity int
	Pushed   int64
	Popped   int64
	Resizes  int
}

// popLocked removes one item. Caller holds the lock and has checked count.
func (b *Buffer[T]) popLocked() T {
	item := b.buf[b.head]
	var zero T
	b.buf[b.head] = zero // release reference for GC
	b.head = (b.head + 1) % b.capacity
	b.count--
	b.popped++
	return item
}

// grow doubles capacity. Caller holds the lock.
func (b *Buffer[T]) grow() {
	newCapacity := b.capacity * 2
	newBuf := make([]T, newCapacity)

	if b.count > 0 {
		if b.head < b.tail {
			copy(newBuf, b.buf[b.head:b.tail])
		} else {
			n := copy(newBuf, b.buf[b.head:])
			copy(newBuf[n:], b.buf[:b.tail])
		}
	}

	b.buf = newBuf
	b.head = 0
	b.tail = b.count
	b.capacity = newCapacity
	b.resizes++
}
