package threadpool

import (
	"context"

	"github.com/pgvanniekerk/ezpool/internal/pool"
)

// State is the lifecycle phase of a ThreadPool.
type State = pool.State

const (
	// StateRunning accepts and executes work.
	StateRunning = pool.StateRunning

	// StateDraining is entered by Close while outstanding work finishes.
	StateDraining = pool.StateDraining

	// StateStopping refuses new work and is stopping the workers.
	StateStopping = pool.StateStopping

	// StateStopped has no running goroutines left.
	StateStopped = pool.StateStopped
)

// Stats is a point in time snapshot of a ThreadPool's counters.
type Stats = pool.Stats

// New creates a ThreadPool with the given number of workers and starts them.
//
// Parameters:
//   - workers: The number of thunks that may run at once. Zero is accepted, but
//     such a pool never runs anything it is given.
//   - opts: Optional configuration, see WithLogger, WithPanicHandler and WithObserver.
//
// Example:
//
//	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
//
//	pool := threadpool.New(8,
//	    threadpool.WithLogger(logger),
//	    threadpool.WithPanicHandler(func(r any, stack []byte) {
//	        alert(fmt.Sprintf("thunk panicked: %v", r))
//	    }),
//	)
//	defer pool.Close()
func New(workers uint16, opts ...Option) *ThreadPool {

	o := &options{}
	for idx := range opts {
		opts[idx](o)
	}

	return &ThreadPool{
		pool: pool.NewPool(workers, o.config()),
	}
}

// ThreadPool runs thunks on a fixed set of worker goroutines.
// All of its methods are safe for concurrent use.
type ThreadPool struct {
	// pool is the engine that owns the queue, the dispatcher and the workers
	pool *pool.Pool
}

// Schedule hands thunk to the pool and returns immediately. The thunk runs on
// one of the workers once every thunk scheduled before it has started.
//
// Schedule may be called from inside a running thunk. It panics with
// ErrNilThunk if thunk is nil, and with ErrPoolClosed if the pool has been closed.
func (tp *ThreadPool) Schedule(thunk Thunk) {
	tp.pool.Schedule(thunk)
}

// Wait blocks until no scheduled thunk is queued or running. Thunks scheduled
// while Wait is blocked are waited for too. Wait returns at once on an idle pool
// and may be called repeatedly and from several goroutines at the same time.
func (tp *ThreadPool) Wait() {
	tp.pool.Wait()
}

// WaitContext is like Wait, but returns ctx.Err() if ctx is done before the
// pool becomes idle. The outstanding work is not cancelled.
//
// Example:
//
//	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
//	defer cancel()
//
//	if err := pool.WaitContext(ctx); errors.Is(err, context.DeadlineExceeded) {
//	    log.Println("pool is still busy")
//	}
func (tp *ThreadPool) WaitContext(ctx context.Context) error {
	return tp.pool.WaitContext(ctx)
}

// Close waits for all outstanding work to finish and then stops every worker.
// It returns once all of the pool's goroutines have exited, with an error if
// any of them stopped abnormally. Further calls return nil immediately.
func (tp *ThreadPool) Close() error {
	return tp.pool.Close()
}

// Run blocks until the pool has been stopped by Stop or Close. Together with
// Stop it lets a ThreadPool be managed as an ezapp Runnable; the workers
// themselves are already running once New returns.
//
// Example:
//
//	go func() {
//	    if err := pool.Run(); err != nil {
//	        log.Printf("pool error: %v", err)
//	    }
//	}()
func (tp *ThreadPool) Run() error {
	<-tp.pool.Stopped()
	return nil
}

// Stop gracefully shuts down the pool. It waits for all outstanding work to
// finish and then closes the pool. If stopCtx is done first, Stop returns the
// context's error and leaves the pool running, so a later Stop or Close can
// still drain it.
func (tp *ThreadPool) Stop(stopCtx context.Context) error {
	if err := tp.pool.WaitContext(stopCtx); err != nil {
		return err
	}
	return tp.pool.Close()
}

// Size returns the number of workers.
func (tp *ThreadPool) Size() int {
	return tp.pool.Size()
}

// State returns the pool's lifecycle phase.
func (tp *ThreadPool) State() State {
	return tp.pool.State()
}

// Stats returns a snapshot of the pool's counters.
func (tp *ThreadPool) Stats() Stats {
	return tp.pool.Stats()
}
