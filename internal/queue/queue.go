package queue

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

// Entry is a single unit of pending work held by the Queue.
type Entry struct {

	// Thunk is the work to be executed. The Queue never inspects or invokes it.
	Thunk func()

	// Enqueued records when the entry was pushed, so that the time spent waiting
	// for a worker can be observed once the entry is dispatched.
	Enqueued time.Time
}

// Queue is an unbounded FIFO of pending entries shared between any number of
// producers and a single consumer (the dispatcher).
// All access is serialised through one mutex; the condition variable is
// signalled whenever the queue becomes non-empty or is closed.
type Queue struct {

	// mu guards entries and closed.
	mu *sync.Mutex

	// nonEmpty is signalled on Push and broadcast on Close.
	nonEmpty *sync.Cond

	// entries is the ring buffer backing the queue. Insertion order is removal order.
	entries *queue.Queue

	// closed is set by Close. Once closed, Pop drains whatever remains and then
	// reports false.
	closed bool
}

//region Implementation

// Push appends the thunk to the tail of the queue and wakes one blocked Pop.
// It returns the queue length after insertion.
func (q *Queue) Push(thunk func()) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries.Add(Entry{Thunk: thunk, Enqueued: time.Now()})
	q.nonEmpty.Signal()

	return q.entries.Length()
}

// Pop removes and returns the head of the queue, blocking until an entry is
// available or the queue has been closed.
// The second return value is false only when the queue is closed and empty.
func (q *Queue) Pop() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.entries.Length() == 0 && !q.closed {
		q.nonEmpty.Wait()
	}

	if q.entries.Length() == 0 {
		return Entry{}, false
	}

	return q.entries.Remove().(Entry), true
}

// Close marks the queue as closed and wakes every blocked Pop.
// Calling Close more than once has no further effect.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	q.nonEmpty.Broadcast()
}

// Len returns the number of entries currently waiting in the queue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.entries.Length()
}

//endregion

//region Constructor

// New returns an empty, open Queue.
func New() *Queue {
	mu := &sync.Mutex{}

	return &Queue{
		mu:       mu,
		nonEmpty: sync.NewCond(mu),
		entries:  queue.New(),
	}
}

//endregion
