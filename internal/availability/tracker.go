package availability

import (
	"errors"
	"sync"
)

// Tracker records which of a fixed number of worker indices are idle.
// The dispatcher claims indices when it assigns work; each worker releases its
// own index once its work has finished.
type Tracker struct {

	// mu protects idle and idleCount.
	mu *sync.Mutex

	// idle holds one flag per worker index. true means the worker may be assigned work.
	idle []bool

	// idleCount caches the number of true entries in idle.
	idleCount int
}

//region Implementation

// Claim selects an idle worker index and marks it busy.
// Any idle index may be returned; callers must not rely on the selection order.
// The boolean result is false when every worker is busy.
func (t *Tracker) Claim() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.idleCount == 0 {
		return -1, false
	}

	for id, free := range t.idle {
		if free {
			t.idle[id] = false
			t.idleCount--
			return id, true
		}
	}

	return -1, false
}

// Release marks the worker index as idle again.
// It panics if the index is out of range or already idle, since either means an
// index was released without a matching Claim.
func (t *Tracker) Release(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id < 0 || id >= len(t.idle) {
		panic(errors.New("cannot release an unknown worker"))
	}

	if t.idle[id] {
		panic(errors.New("cannot release a worker that is already idle"))
	}

	t.idle[id] = true
	t.idleCount++
}

// Idle returns the number of idle workers.
func (t *Tracker) Idle() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.idleCount
}

// Busy returns the number of claimed workers.
func (t *Tracker) Busy() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.idle) - t.idleCount
}

//endregion

//region Constructor

// New returns a Tracker for size workers, all of which start idle.
func New(size int) *Tracker {

	idle := make([]bool, size)
	for i := range idle {
		idle[i] = true
	}

	return &Tracker{
		mu:        &sync.Mutex{},
		idle:      idle,
		idleCount: size,
	}
}

//endregion
