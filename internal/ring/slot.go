package ring

import "sync/atomic"

// SlotRing is the "slot" variant of Ring for element types large enough
// that an intermediate move on TryPush would be wasteful (RawFrame,
// EncodedFrame). The producer writes directly into the backing slot via
// BeginWrite and then publishes it with CommitWrite; the consumer never
// sees a slot whose ready flag hasn't been published yet.
type SlotRing[T any] struct {
	tail atomic.Uint64
	_    cacheLinePad
	head atomic.Uint64
	_    cacheLinePad

	buf   []T
	ready []atomic.Bool
	mask  uint64
}

// NewSlotRing creates a slot ring with capacity rounded up to the next
// power of two strictly greater than minCapacity.
func NewSlotRing[T any](minCapacity int) *SlotRing[T] {
	n := 2
	for n <= minCapacity {
		n <<= 1
	}
	return &SlotRing[T]{
		buf:   make([]T, n),
		ready: make([]atomic.Bool, n),
		mask:  uint64(n - 1),
	}
}

// BeginWrite returns a pointer to the next free slot for in-place
// construction, or nil if the ring is full. Producer-only.
func (r *SlotRing[T]) BeginWrite() *T {
	tail := r.tail.Load()
	head := r.head.Load()
	if (tail+1)&r.mask == head {
		return nil
	}
	return &r.buf[tail]
}

// CommitWrite publishes the slot most recently returned by BeginWrite.
// Producer-only; must be called exactly once per successful BeginWrite.
func (r *SlotRing[T]) CommitWrite() {
	tail := r.tail.Load()
	r.ready[tail].Store(true)
	r.tail.Store((tail + 1) & r.mask)
}

// TryPop returns a pointer to the oldest published slot and advances head,
// or nil if no slot is ready yet. The caller must be done reading the
// slot's contents before the next BeginWrite/CommitWrite cycle wraps back
// to it. Consumer-only.
func (r *SlotRing[T]) TryPop() *T {
	head := r.head.Load()
	if !r.ready[head].Load() {
		return nil
	}
	item := &r.buf[head]
	r.ready[head].Store(false)
	r.head.Store((head + 1) & r.mask)
	return item
}

// Empty reports whether no slot is currently ready for the consumer.
func (r *SlotRing[T]) Empty() bool {
	return !r.ready[r.head.Load()].Load()
}
