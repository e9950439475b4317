package barrier

import (
	"context"
	"errors"
	"sync"
)

// Barrier counts units of work that have been added but not yet finished, and
// releases everyone waiting on it whenever that count returns to zero.
//
// Unlike sync.WaitGroup, Add may be called while other goroutines are already
// blocked in Wait; the new work simply extends their wait.
type Barrier struct {

	// mu protects count and drained.
	mu *sync.Mutex

	// count is the number of outstanding units. Never negative.
	count int64

	// drained is closed when count reaches zero. A fresh channel is installed
	// each time count leaves zero, so waiters always block on the current round.
	drained chan struct{}
}

//region Implementation

// Add records one more outstanding unit of work.
func (b *Barrier) Add() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		b.drained = make(chan struct{})
	}
	b.count++
}

// Done records that one unit of work has finished. When the count reaches zero
// every waiter is released. It panics if called more times than Add.
func (b *Barrier) Done() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		panic(errors.New("barrier count cannot go below zero"))
	}

	b.count--
	if b.count == 0 {
		close(b.drained)
	}
}

// Wait blocks until the count is zero.
func (b *Barrier) Wait() {
	_ = b.WaitContext(context.Background())
}

// WaitContext blocks until the count is zero or ctx is done, in which case
// the context's error is returned.
// Work added after a zero crossing starts a new round, and a waiter that wakes
// into a non-zero count keeps waiting.
func (b *Barrier) WaitContext(ctx context.Context) error {
	for {
		b.mu.Lock()
		if b.count == 0 {
			b.mu.Unlock()
			return nil
		}
		drained := b.drained
		b.mu.Unlock()

		select {
		case <-drained:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Count returns the number of outstanding units.
func (b *Barrier) Count() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.count
}

//endregion

//region Constructor

// New returns a Barrier with nothing outstanding.
func New() *Barrier {

	drained := make(chan struct{})
	close(drained)

	return &Barrier{
		mu:      &sync.Mutex{},
		drained: drained,
	}
}

//endregion
