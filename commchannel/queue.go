package commchannel

import (
	"fmt"
	"sync/atomic"
)

// MaxQueueDepth bounds the depth of a Queue.
const MaxQueueDepth = 16 * 1024

// Queue is a bounded single-producer/single-consumer ring. One slot is kept
// free to tell a full ring from an empty one, so a Queue of depth d holds at
// most d-1 elements. Exactly one goroutine may push and exactly one may pop.
type Queue[T any] struct {
	head  atomic.Uint32
	tail  atomic.Uint32
	depth uint32
	slots []T
}

// NewQueue creates a Queue of the given depth.
func NewQueue[T any](depth uint32) (*Queue[T], error) {
	if depth < 2 || depth > MaxQueueDepth {
		return nil, fmt.Errorf("queue depth %d out of range [2, %d]",
			depth, MaxQueueDepth)
	}

	return &Queue[T]{
		depth: depth,
		slots: make([]T, depth),
	}, nil
}

// Push appends v. It returns false if the queue is full.
func (q *Queue[T]) Push(v T) bool {
	tail := q.tail.Load()
	next := (tail + 1) % q.depth

	if next == q.head.Load() {
		return false
	}

	q.slots[tail] = v
	q.tail.Store(next)

	return true
}

// Front returns the oldest element without removing it.
func (q *Queue[T]) Front() (T, bool) {
	var zero T

	head := q.head.Load()
	if head == q.tail.Load() {
		return zero, false
	}

	return q.slots[head], true
}

// Pop removes and returns the oldest element.
func (q *Queue[T]) Pop() (T, bool) {
	var zero T

	head := q.head.Load()
	if head == q.tail.Load() {
		return zero, false
	}

	v := q.slots[head]
	q.slots[head] = zero
	q.head.Store((head + 1) % q.depth)

	return v, true
}

// Size returns the number of queued elements.
func (q *Queue[T]) Size() uint32 {
	return (q.tail.Load() + q.depth - q.head.Load()) % q.depth
}

// Capacity returns the maximum number of elements the queue can hold.
func (q *Queue[T]) Capacity() uint32 {
	return q.depth - 1
}

// IsFull tells if the next Push would fail.
func (q *Queue[T]) IsFull() bool {
	return q.Size() == q.Capacity()
}

// IsEmpty tells if the queue holds no element.
func (q *Queue[T]) IsEmpty() bool {
	return q.head.Load() == q.tail.Load()
}
