package pool

import (
	"time"

	"github.com/rs/zerolog"
)

// Observer receives notifications about work moving through a Pool.
// Implementations are called from the scheduling goroutine, the dispatcher and
// the workers concurrently, and must not block.
type Observer interface {

	// Scheduled is called when a thunk is scheduled, before it is queued, so
	// it always precedes Started for the same thunk. pending is the queue
	// length including the new thunk, as seen by the scheduling goroutine.
	Scheduled(pending int)

	// Started is called when a thunk is handed to a worker, with the time it
	// spent in the queue.
	Started(worker int, queued time.Duration)

	// Finished is called when a thunk has returned or panicked, with the time
	// it ran for.
	Finished(worker int, ran time.Duration, panicked bool)
}

// PanicHandler receives the value recovered from a panicking thunk and the
// stack of the worker at the time of the panic.
type PanicHandler func(recovered any, stack []byte)

// Config holds the optional collaborators of a Pool. The zero value is valid:
// nothing is logged, panics are only counted, and nothing is observed.
type Config struct {

	// Logger receives lifecycle debug events and recovered panics. nil disables logging.
	Logger *zerolog.Logger

	// PanicHandler, if set, is called by a worker after it recovers a panic.
	PanicHandler PanicHandler

	// Observer, if set, is notified as thunks are scheduled, started and finished.
	Observer Observer
}

type noopObserver struct{}

func (noopObserver) Scheduled(int)                     {}
func (noopObserver) Started(int, time.Duration)        {}
func (noopObserver) Finished(int, time.Duration, bool) {}
