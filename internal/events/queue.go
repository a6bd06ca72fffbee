package events

import "sync"

// Queue is the single ordered event stream the engine consumes. External
// producers (feed adapter, exchange stream, timers, operator commands) push
// into it; exactly one goroutine drains it, so every risk-limit check
// observes fully-applied state; no event is admitted until the previous
// one is processed to completion.
//
// Push blocks when the buffer is full rather than dropping: a lost fill or
// disconnect would corrupt position state, and backpressure on the feed is
// the safer failure mode.
type Queue struct {
	ch      chan Event
	closeMu sync.Mutex
	closed  bool
}

func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1024
	}
	return &Queue{ch: make(chan Event, size)}
}

// Push enqueues an event, blocking if the queue is full.
// Pushing to a closed queue is a silent no-op (shutdown races).
func (q *Queue) Push(e Event) {
	q.closeMu.Lock()
	if q.closed {
		q.closeMu.Unlock()
		return
	}
	q.closeMu.Unlock()
	q.ch <- e
}

// Events returns the receive side for the single consumer loop.
func (q *Queue) Events() <-chan Event {
	return q.ch
}

// Close stops the queue. The consumer drains whatever remains buffered.
// Must be called after all producers have stopped.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}
