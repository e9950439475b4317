package concurrency

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter is a counting permit that bounds how many workers may be executing
// work at the same time. It starts with size permits available.
type Limiter struct {

	// semaphore holds the permits.
	semaphore *semaphore.Weighted

	// size is the total number of permits.
	size int64

	// held is the number of permits currently acquired. Always within [0, size].
	held *atomic.Int64

	// closed is set by Close. Acquire fails fast once it is set.
	closed *atomic.Bool

	// closeCtx is cancelled by Close so that blocked Acquire calls return.
	closeCtx context.Context

	// closeFunc cancels closeCtx.
	closeFunc context.CancelFunc
}

//region Implementation

// Acquire blocks until a permit is available, ctx is done, or the limiter is closed.
// It returns ErrLimiterClosed if the limiter was closed before or while waiting,
// and the context's error if ctx ended first.
func (l *Limiter) Acquire(ctx context.Context) error {

	if l.isClosed() {
		return ErrLimiterClosed
	}

	// Stop waiting as soon as either the caller's context or Close fires.
	acquireCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(l.closeCtx, cancel)
	defer stop()

	if err := l.semaphore.Acquire(acquireCtx, 1); err != nil {
		if l.isClosed() {
			return ErrLimiterClosed
		}
		return fmt.Errorf("acquire permit: %w", err)
	}

	l.held.Add(1)
	return nil
}

// Release returns one permit.
// It panics with ErrReleaseExceedsMaxLimit if no permit is held.
func (l *Limiter) Release() {

	if l.held.Add(-1) < 0 {
		l.held.Add(1)
		panic(ErrReleaseExceedsMaxLimit)
	}

	l.semaphore.Release(1)
}

// Close wakes every blocked Acquire and prevents further acquisitions.
// Permits that are already held may still be released. Close is idempotent.
func (l *Limiter) Close() {
	if l.closed.CompareAndSwap(false, true) {
		l.closeFunc()
	}
}

// Size returns the total number of permits.
func (l *Limiter) Size() int64 {
	return l.size
}

// Held returns the number of permits currently acquired.
func (l *Limiter) Held() int64 {
	return l.held.Load()
}

//endregion

//region Helpers

func (l *Limiter) isClosed() bool {
	return l.closed.Load()
}

//endregion

//region Constructor

// NewLimiter returns a Limiter with size permits, all available.
// A size of zero yields a limiter whose Acquire only returns on cancellation or Close.
func NewLimiter(size uint16) *Limiter {

	closeCtx, closeFunc := context.WithCancel(context.Background())

	return &Limiter{
		semaphore: semaphore.NewWeighted(int64(size)),
		size:      int64(size),
		held:      &atomic.Int64{},
		closed:    &atomic.Bool{},
		closeCtx:  closeCtx,
		closeFunc: closeFunc,
	}
}

//endregion
