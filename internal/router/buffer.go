package router

import (
	"context"
	"sync"
)

// GrowableBuffer is an unbounded FIFO safe for concurrent use. It starts at
// an initial capacity and doubles whenever it reaches 70% full, so Send never
// blocks and never drops while the buffer is open.
type GrowableBuffer[T any] struct {
	mu     sync.Mutex
	buf    []T
	head   int // read position
	count  int
	closed bool

	// notify has capacity 1; a pending token means "state changed".
	notify chan struct{}

	totalReceived int64
	totalSent     int64
	resizeCount   int
	highWater     int
}

// NewGrowableBuffer creates a buffer with the given initial capacity.
func NewGrowableBuffer[T any](initialCapacity int) *GrowableBuffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &GrowableBuffer[T]{
		buf:    make([]T, initialCapacity),
		notify: make(chan struct{}, 1),
	}
}

// Send appends an item. Returns false if the buffer is closed.
func (b *GrowableBuffer[T]) Send(item T) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}

	threshold := max(len(b.buf)*70/100, 1)
	if b.count+1 >= threshold {
		b.grow()
	}

	b.buf[(b.head+b.count)%len(b.buf)] = item
	b.count++
	b.totalReceived++
	b.highWater = max(b.highWater, b.count)
	b.mu.Unlock()

	b.wake()
	return true
}

// Receive blocks until an item is available, the buffer is closed and
// drained, or ctx is done. ok is false in the latter two cases.
func (b *GrowableBuffer[T]) Receive(ctx context.Context) (item T, ok bool) {
	for {
		b.mu.Lock()
		if b.count > 0 {
			item = b.popLocked()
			more := b.count > 0
			b.mu.Unlock()
			if more {
				b.wake()
			}
			return item, true
		}
		closed := b.closed
		b.mu.Unlock()
		if closed {
			b.wake()
			return item, false
		}

		select {
		case <-b.notify:
		case <-ctx.Done():
			return item, false
		}
	}
}

// TryReceive returns the oldest item without blocking.
func (b *GrowableBuffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.popLocked(), true
}

// DrainTo removes up to limit items (all when limit <= 0) in FIFO order.
func (b *GrowableBuffer[T]) DrainTo(limit int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	n := b.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, n)
	for i := range out {
		out[i] = b.popLocked()
	}
	return out
}

// Close stops further sends. Queued items remain receivable.
func (b *GrowableBuffer[T]) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wake()
}

// Len returns the number of queued items.
func (b *GrowableBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current capacity.
func (b *GrowableBuffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// BufferStats is a point-in-time view of a buffer.
type BufferStats struct {
	Count         int
	Capacity      int
	HighWater     int // largest Count observed
	TotalReceived int64
	TotalSent     int64
	ResizeCount   int
}

// Stats returns buffer statistics.
func (b *GrowableBuffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:         b.count,
		Capacity:      len(b.buf),
		HighWater:     b.highWater,
		TotalReceived: b.totalReceived,
		TotalSent:     b.totalSent,
		ResizeCount:   b.resizeCount,
	}
}

func (b *GrowableBuffer[T]) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// popLocked removes the head item. Caller holds mu and count > 0.
func (b *GrowableBuffer[T]) popLocked() T {
	var zero T
	item := b.buf[b.head]
	b.buf[b.head] = zero
	b.head = (b.head + 1) % len(b.buf)
	b.count--
	b.totalSent++
	return item
}

// grow doubles capacity, unwrapping the ring. Caller holds mu.
func (b *GrowableBuffer[T]) grow() {
	next := make([]T, len(b.buf)*2)
	n := copy(next, b.buf[b.head:])
	if n < b.count {
		copy(next[n:], b.buf[:b.count-n])
	}
	b.buf = next
	b.head = 0
	b.resizeCount++
}
