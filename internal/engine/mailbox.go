package engine

import (
	"sync"
)

// message is a unit of work run by a subject's actor goroutine.
type message func()

// mailbox is a thread-safe FIFO queue feeding one subject actor.
//
// The mailbox is unbounded so background completions can always post their
// result without blocking, even while a turn is being processed.
//
// The signal channel enables select-based waiting in the actor loop.
type mailbox struct {
	mu       sync.Mutex
	messages []message
	closed   bool
	signal   chan struct{} // Signals message availability (buffered, size 1)
}

// newMailbox creates an empty mailbox.
func newMailbox() *mailbox {
	return &mailbox{
		messages: make([]message, 0, 16),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue adds a message to the back of the mailbox.
// Thread-safe: may be called from any goroutine.
// Returns false if the mailbox is closed.
func (q *mailbox) Enqueue(m message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.messages = append(q.messages, m)

	// Non-blocking: buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front message without blocking.
// Returns (nil, false) if the mailbox is empty.
func (q *mailbox) TryDequeue() (message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.messages) == 0 {
		return nil, false
	}

	m := q.messages[0]

	// Nil out the slot so the closure's captures can be collected.
	q.messages[0] = nil

	if len(q.messages) == 1 {
		q.messages = q.messages[:0]
	} else {
		q.messages = q.messages[1:]
	}

	return m, true
}

// Wait returns a channel that signals when messages may be available.
// The channel is closed when the mailbox is closed.
func (q *mailbox) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current number of queued messages.
func (q *mailbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Closed reports whether Close has been called.
func (q *mailbox) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close rejects further messages and wakes the actor. Messages already
// queued are still delivered.
func (q *mailbox) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
