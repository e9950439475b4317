package pool

import "errors"

// ErrPoolClosed is the panic value raised when work is scheduled on a pool whose
// shutdown has already begun.
var ErrPoolClosed = errors.New("pool is closed")

// ErrNilThunk is the panic value raised when a nil thunk is scheduled.
var ErrNilThunk = errors.New("cannot schedule a nil thunk")

// errNoIdleWorker is returned by the dispatcher if it holds a permit but finds
// no idle worker, which would mean the permit and idle accounting diverged.
var errNoIdleWorker = errors.New("dispatcher acquired a permit but no worker was idle")
