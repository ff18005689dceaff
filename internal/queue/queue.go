package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
)

// DefaultCapacity is the queue capacity used when none is configured
const DefaultCapacity = 30

// ErrDisposed is returned by Dequeue once the queue has been disposed
var ErrDisposed = errors.New("queue: disposed")

// QueueAltered is called synchronously after every accepted Enqueue, on the
// producer's goroutine. It must not block.
type QueueAltered func(s *Sample)

// BoundedFrameQueue is a fixed-capacity FIFO of samples.
//
// Enqueue never blocks and never grows the queue: a full queue rejects the
// sample. One producer (the driver tick) and one consumer are expected.
//
// The ring buffer rounds its size up to a power of two, so the capacity is
// enforced here and the ring is only used for storage and ordering.
type BoundedFrameQueue struct {
	ring     *queue.RingBuffer
	capacity int

	// signal wakes a blocked Dequeue (mailbox semantics, never blocks Enqueue)
	signal   chan struct{}
	done     chan struct{}
	doneOnce sync.Once

	mu      sync.RWMutex
	altered QueueAltered
}

// New creates a queue holding at most capacity samples.
// A non-positive capacity selects DefaultCapacity.
func New(capacity int) *BoundedFrameQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &BoundedFrameQueue{
		ring:     queue.NewRingBuffer(uint64(capacity)),
		capacity: capacity,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// SetQueueAltered registers the consumer notification (nil clears it)
func (q *BoundedFrameQueue) SetQueueAltered(fn QueueAltered) {
	q.mu.Lock()
	q.altered = fn
	q.mu.Unlock()
}

// Enqueue appends s and notifies the consumer.
// Returns false when the queue is full or disposed.
func (q *BoundedFrameQueue) Enqueue(s *Sample) bool {
	if !q.Offer(s) {
		return false
	}
	q.Notify(s)
	return true
}

// Offer appends s without running the QueueAltered callback. The caller
// must follow an accepted Offer with Notify.
func (q *BoundedFrameQueue) Offer(s *Sample) bool {
	if s == nil || q.ring.IsDisposed() {
		return false
	}
	if q.Len() >= q.capacity {
		return false
	}
	ok, err := q.ring.Offer(s)
	if err != nil || !ok {
		return false
	}

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Notify runs the QueueAltered callback for an accepted sample
func (q *BoundedFrameQueue) Notify(s *Sample) {
	q.mu.RLock()
	fn := q.altered
	q.mu.RUnlock()
	if fn != nil {
		fn(s)
	}
}

// TryDequeue removes the oldest sample without blocking
func (q *BoundedFrameQueue) TryDequeue() (*Sample, bool) {
	if q.ring.Len() == 0 || q.ring.IsDisposed() {
		return nil, false
	}
	// Len counts slots already claimed by the producer; the write completes
	// immediately after, so a short poll is enough.
	item, err := q.ring.Poll(time.Millisecond)
	if err != nil {
		return nil, false
	}
	s, ok := item.(*Sample)
	return s, ok
}

// Dequeue blocks until a sample is available, ctx is done or the queue is disposed
func (q *BoundedFrameQueue) Dequeue(ctx context.Context) (*Sample, error) {
	for {
		if s, ok := q.TryDequeue(); ok {
			return s, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.done:
			return nil, ErrDisposed
		case <-q.signal:
		}
	}
}

// Len returns the number of queued samples
func (q *BoundedFrameQueue) Len() int {
	return int(q.ring.Len())
}

// Cap returns the configured capacity
func (q *BoundedFrameQueue) Cap() int {
	return q.capacity
}

// Fullness returns Len/Cap in [0,1]
func (q *BoundedFrameQueue) Fullness() float64 {
	n := q.Len()
	if n >= q.capacity {
		return 1
	}
	return float64(n) / float64(q.capacity)
}

// Flush drops every queued sample and returns how many were dropped
func (q *BoundedFrameQueue) Flush() int {
	n := 0
	for {
		if _, ok := q.TryDequeue(); !ok {
			return n
		}
		n++
	}
}

// Dispose releases the queue; blocked Dequeue calls return ErrDisposed
func (q *BoundedFrameQueue) Dispose() {
	q.doneOnce.Do(func() {
		q.ring.Dispose()
		close(q.done)
	})
}
