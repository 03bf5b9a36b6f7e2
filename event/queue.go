package event

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Queue fans events from several concurrently producing adapters in to one
// consumer. Publishing never blocks: if the consumer can't keep up the event
// is dropped and counted.
type Queue struct {
	events chan Event
	closed bool
	lock   sync.Mutex

	dropped uint64
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1024
	}

	q := &Queue{
		events: make(chan Event, size),
	}

	return q
}

// Publish hands an event to the consumer. It returns an error if the queue
// is closed or full.
func (q *Queue) Publish(e Event) error {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.closed {
		return fmt.Errorf("queue is closed")
	}

	select {
	case q.events <- e:
	default:
		atomic.AddUint64(&q.dropped, 1)
		return fmt.Errorf("queue is full")
	}

	return nil
}

// Events returns the consumer side of the queue. The channel is closed when
// the queue is closed, after all queued events have been made available for
// draining.
func (q *Queue) Events() <-chan Event {
	return q.events
}

// Dropped returns how many events have been rejected because the queue was
// full.
func (q *Queue) Dropped() uint64 {
	return atomic.LoadUint64(&q.dropped)
}

// Close stops accepting events. Events that are already queued can still be
// drained by the consumer.
func (q *Queue) Close() {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.events)
}
